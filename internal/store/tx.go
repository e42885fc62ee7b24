package store

import (
	"context"
	"errors"

	"github.com/calvinalkan/docbase/internal/document"
	"github.com/calvinalkan/docbase/internal/fs"
)

// Tx is a locked read-modify-write cycle over the collection.
// The zero value is not usable; call [Backend.Begin].
//
// A Tx holds the exclusive write lock for its whole lifetime, from the load
// in Begin to the write in Commit. Callers must call [Tx.Commit] or
// [Tx.Rollback] to release it; Rollback after Commit is a no-op, so
//
//	tx, err := backend.Begin(ctx)
//	if err != nil { return err }
//	defer tx.Rollback()
//
// is the expected pattern.
type Tx struct {
	backend *Backend
	ctx     context.Context
	lock    *fs.Lock
	docs    []document.Document
	closed  bool
}

// Begin acquires the write lock (bounded by the backend's lock timeout) and
// loads the current collection under it.
//
// A missing file begins an empty collection. A file that exists but cannot be
// read or decoded in full fails with [ErrUnreadableCollection] and the lock
// is released, so a commit can never replace documents that were not loaded.
func (b *Backend) Begin(ctx context.Context) (*Tx, error) {
	if ctx == nil {
		return nil, errors.New("begin: context is nil")
	}

	lock, err := b.lock(ctx)
	if err != nil {
		return nil, err
	}

	docs, err := b.readForUpdate(ctx)
	if err != nil {
		b.unlock(ctx, lock)

		return nil, err
	}

	return &Tx{
		backend: b,
		ctx:     ctx,
		lock:    lock,
		docs:    docs,
	}, nil
}

// Documents returns a deep copy of the collection loaded by Begin.
func (tx *Tx) Documents() []document.Document {
	return document.CloneAll(tx.docs)
}

// Commit writes docs as the new collection and releases the lock.
// On error the stored collection is unchanged and the lock is released.
func (tx *Tx) Commit(docs []document.Document) error {
	if tx.closed {
		return ErrTxClosed
	}

	tx.closed = true
	defer tx.backend.unlock(tx.ctx, tx.lock)

	return tx.backend.write(tx.ctx, docs)
}

// Rollback releases the lock without writing. Safe to call more than once.
func (tx *Tx) Rollback() {
	if tx.closed {
		return
	}

	tx.closed = true
	tx.backend.unlock(tx.ctx, tx.lock)
}
