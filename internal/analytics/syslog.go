package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/syslog"
	"sync"
)

type dataPoint struct {
	Indexes []string  `json:"indexes"`
	Blobs   []string  `json:"blobs"`
	Doubles []float64 `json:"doubles"`
}

// WriterSink writes every data point as a single json document. It is used
// with a syslog connection so a SIEM can pick the rows up.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// DialSyslog connects to a syslog server. An empty network and address
// connects to the local syslog daemon.
func DialSyslog(network, address, tag string) (*WriterSink, io.Closer, error) {
	w, err := syslog.Dial(network, address, syslog.LOG_WARNING|syslog.LOG_DAEMON, tag)
	if err != nil {
		return nil, nil, fmt.Errorf("could not connect to syslog: %w", err)
	}
	return NewWriterSink(w), w, nil
}

func (s *WriterSink) WriteRow(ctx context.Context, indexes []string, blobs []string, doubles []float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(dataPoint{
		Indexes: indexes,
		Blobs:   blobs,
		Doubles: doubles,
	})
	if err != nil {
		return fmt.Errorf("could not marshal JSON: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// hint: we can't check the number returned here because
	// it's just the len of the input, so pretty useless
	if _, err := s.w.Write(b); err != nil {
		return fmt.Errorf("could not send syslog entry: %w", err)
	}
	return nil
}
