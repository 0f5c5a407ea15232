package dmarc

import (
	"errors"
	"fmt"
)

// ErrNoAttachment is returned when an inbound message carries no attachment
var ErrNoAttachment = errors.New("message has no attachments")

var errEmptyDocument = errors.New("empty document")

// ExtractionError is returned when the report payload can not be taken out
// of its container (unsupported, corrupt or empty container)
type ExtractionError struct {
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("could not extract payload: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("could not extract payload: %s", e.Reason)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// ParseError is returned on malformed XML
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("could not parse xml: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// SchemaError is returned when a mandatory node is missing from the report.
// Record is -1 for report level errors, otherwise the index of the offending
// record element.
type SchemaError struct {
	Path   string
	Record int
}

func (e *SchemaError) Error() string {
	if e.Record >= 0 {
		return fmt.Sprintf("record %d: missing mandatory node %s", e.Record, e.Path)
	}
	return fmt.Sprintf("missing mandatory node %s", e.Path)
}
