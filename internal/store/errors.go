package store

import (
	"errors"
	"fmt"
)

// ErrStorage reports a durable read or write failure. Messages wrapped in it
// may contain filesystem paths; boundaries log them and show a generic text.
var ErrStorage = errors.New("storage failure")

// ErrMalformedCollection reports a collection that cannot be persisted:
// a document without id, or two documents sharing one.
var ErrMalformedCollection = fmt.Errorf("%w: malformed collection", ErrStorage)

// ErrUnreadableCollection reports a collection file that exists but cannot be
// read or decoded in full. Writers refuse to replace it.
var ErrUnreadableCollection = fmt.Errorf("%w: collection file is unreadable", ErrStorage)

// ErrTxClosed reports use of a committed or rolled back transaction.
var ErrTxClosed = errors.New("transaction already closed")

// DuplicateIDError names an id held by more than one document.
type DuplicateIDError struct {
	ID string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("duplicate id %q", e.ID)
}

// RecordError reports one record of the collection file that could not be
// decoded. Position is zero based.
type RecordError struct {
	Position int
	ID       string
	Err      error
}

func (e *RecordError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("record %d: %v", e.Position, e.Err)
	}

	return fmt.Sprintf("record %d (doc_id=%s): %v", e.Position, e.ID, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}
