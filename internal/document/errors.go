package document

import (
	"errors"
	"fmt"
)

// Error kinds for input and lookup failures. Id generation failures, such as
// [ErrIDGenerationFailed] or a failing id source, match neither.
var (
	// ErrValidation reports bad or missing user input.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound reports a document id or version index that does not exist.
	ErrNotFound = errors.New("not found")
)

// Specific errors, each wrapping one of the kinds above.
var (
	ErrCategoryRequired   = fmt.Errorf("%w: category cannot be empty", ErrValidation)
	ErrTitleRequired      = fmt.Errorf("%w: title cannot be empty", ErrValidation)
	ErrIDRequired         = fmt.Errorf("%w: document id is required", ErrValidation)
	ErrDuplicateID        = fmt.Errorf("%w: document id already exists", ErrValidation)
	ErrDocumentNotFound   = fmt.Errorf("document %w", ErrNotFound)
	ErrVersionNotFound    = fmt.Errorf("version %w", ErrNotFound)
	ErrIDGenerationFailed = errors.New("no unique id after repeated attempts")
)

// Error attaches the document id to an underlying error:
//
//	document not found (doc_id=doc_0190...)
//
// Use [errors.As] to read the id and [errors.Is] to match the cause.
type Error struct {
	ID  string
	Err error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	cause := ""
	if e.Err != nil {
		cause = e.Err.Error()
	}

	if e.ID == "" {
		return cause
	}

	return cause + " (doc_id=" + e.ID + ")"
}

// Unwrap returns the underlying error for use with [errors.Is] and [errors.As].
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.Err
}

// WithID wraps err with the document id unless it already carries one.
func WithID(err error, id string) error {
	if err == nil {
		return nil
	}

	existing := &Error{}
	if errors.As(err, &existing) {
		if existing.ID == "" {
			existing.ID = id
		}

		return err
	}

	return &Error{ID: id, Err: err}
}
