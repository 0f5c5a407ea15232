package dmarc

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
)

// DefaultMaxPayloadSize caps the decompressed size of a single report
const DefaultMaxPayloadSize int64 = 64 << 20

// Extractor turns an attachment into report xml. The zero value uses
// DefaultMaxPayloadSize.
type Extractor struct {
	MaxPayloadSize int64
}

// Extract is a shortcut for an Extractor with default limits
func Extract(kind ContainerKind, content []byte) (string, error) {
	return Extractor{}.Extract(kind, content)
}

// Extract returns the xml text carried by content
func (e Extractor) Extract(kind ContainerKind, content []byte) (string, error) {
	var xmlContent []byte
	var err error
	switch kind {
	case Gzip:
		xmlContent, err = e.readGZ(content)
	case Zip:
		xmlContent, err = e.readZIP(content)
	case RawXML:
		xmlContent, err = e.limit(content)
	default:
		return "", &ExtractionError{Reason: fmt.Sprintf("unsupported container %s", kind)}
	}
	if err != nil {
		return "", err
	}
	return string(xmlContent), nil
}

func (e Extractor) maxSize() int64 {
	if e.MaxPayloadSize <= 0 {
		return DefaultMaxPayloadSize
	}
	return e.MaxPayloadSize
}

func (e Extractor) limit(content []byte) ([]byte, error) {
	if int64(len(content)) > e.maxSize() {
		return nil, &ExtractionError{Reason: fmt.Sprintf("payload exceeds %d bytes", e.maxSize())}
	}
	return content, nil
}

// readAll reads r until EOF but fails once more than maxSize bytes are produced
func (e Extractor) readAll(r io.Reader) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, e.maxSize()+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > e.maxSize() {
		return nil, fmt.Errorf("payload exceeds %d bytes", e.maxSize())
	}
	return b, nil
}

func (e Extractor) readGZ(content []byte) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(content))
	if err != nil {
		return nil, &ExtractionError{Reason: "could not gzip read", Err: err}
	}
	defer gz.Close()
	// a report is exactly one gzip member
	gz.Multistream(false)

	xmlContent, err := e.readAll(gz)
	if err != nil {
		return nil, &ExtractionError{Reason: "could not decompress gzip stream", Err: err}
	}
	return xmlContent, nil
}

// readZIP only uses the first file in the archive. Reports with more than
// one file are not handled.
func (e Extractor) readZIP(content []byte) ([]byte, error) {
	r, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, &ExtractionError{Reason: "could not open zip", Err: err}
	}
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		x, err := f.Open()
		if err != nil {
			return nil, &ExtractionError{Reason: fmt.Sprintf("could not open file %s inside zip", f.Name), Err: err}
		}
		defer x.Close()
		xmlContent, err := e.readAll(x)
		if err != nil {
			return nil, &ExtractionError{Reason: fmt.Sprintf("could not read file %s inside zip", f.Name), Err: err}
		}
		return xmlContent, nil
	}
	return nil, &ExtractionError{Reason: "empty archive"}
}
