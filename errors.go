package pageledger

import (
	"errors"
	"fmt"
)

// Status taxonomy. Storage I/O failures are reported through the same error
// channel, wrapped with page/operation context; callers must treat any
// non-nil error as "no state change occurred".
var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrCancelled       = errors.New("cancelled")
	ErrInvalidArgument = errors.New("invalid argument")
)

// PageError annotates a failure with the page and operation it belongs to.
type PageError struct {
	Page PageID
	Op   string
	Err  error
}

func pageErrf(page PageID, op string, err error) error {
	return &PageError{Page: page, Op: op, Err: err}
}

func (e *PageError) Unwrap() error {
	return e.Err
}

func (e *PageError) Error() string {
	return fmt.Sprintf("page %s: %s: %v", e.Page, e.Op, e.Err)
}

// DataError reports a corrupted or malformed stored record.
type DataError struct {
	Data []byte
	Err  error
	Msg  string
}

func dataErrf(data []byte, err error, format string, args ...any) error {
	return &DataError{data, err, fmt.Sprintf(format, args...)}
}

func (e *DataError) Unwrap() error {
	return e.Err
}

func (e *DataError) Error() string {
	const maxDump = 64
	if len(e.Data) <= maxDump {
		return fmt.Sprintf("%s: %v: (%d) %x", e.Msg, e.Err, len(e.Data), e.Data)
	}
	return fmt.Sprintf("%s: %v: (%d) %x...", e.Msg, e.Err, len(e.Data), e.Data[:maxDump])
}
