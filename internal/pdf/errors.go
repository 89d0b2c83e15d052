package pdf

import (
	"errors"
	"fmt"
)

// ErrorKind categorises extraction failures
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindInvalidHeader
	KindMalformedDocument
	KindMalformedPage
	KindCanceled
)

// String returns a stable identifier for the kind
func (k ErrorKind) String() string {
	switch k {
	case KindInvalidHeader:
		return "INVALID_HEADER"
	case KindMalformedDocument:
		return "MALFORMED_DOCUMENT"
	case KindMalformedPage:
		return "MALFORMED_PAGE"
	case KindCanceled:
		return "CANCELED"
	default:
		return "UNKNOWN"
	}
}

// ExtractionError reports that a document could not be turned into text.
// It is terminal for the upload attempt: the user has to select a file again.
type ExtractionError struct {
	Kind ErrorKind
	Page int // 1-based, zero when the failure is not tied to a page
	Err  error
}

// Error implements the error interface
func (e *ExtractionError) Error() string {
	if e.Page > 0 {
		return fmt.Sprintf("[%s] page %d: %v", e.Kind, e.Page, e.Err)
	}
	return fmt.Sprintf("[%s] %v", e.Kind, e.Err)
}

// Unwrap returns the underlying cause
func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// UserMessage is the text shown to the person who uploaded the report
func (e *ExtractionError) UserMessage() string {
	switch e.Kind {
	case KindInvalidHeader:
		return "The selected file is not a PDF document. Please select a PDF report."
	case KindCanceled:
		return "Reading the report was canceled."
	default:
		return "The PDF report could not be read. Please select another file."
	}
}

func newExtractionError(kind ErrorKind, page int, err error) *ExtractionError {
	return &ExtractionError{Kind: kind, Page: page, Err: err}
}

// IsExtractionError reports whether err is, or wraps, an *ExtractionError
func IsExtractionError(err error) bool {
	var ee *ExtractionError
	return errors.As(err, &ee)
}
