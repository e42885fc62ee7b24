// Package engine applies mutations to the document collection.
//
// Every mutation runs as one locked read-modify-write cycle: load the
// collection, apply the change to a request-scoped repository, save the whole
// collection. If the save fails the change is discarded and the call fails.
// The engine knows nothing about sessions or anti-forgery tokens.
package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/calvinalkan/docbase/internal/document"
	"github.com/calvinalkan/docbase/internal/metrics"
	"github.com/calvinalkan/docbase/internal/store"
)

// Options configures an [Engine]. Zero values select defaults.
type Options struct {
	// Now returns the current time. Defaults to [time.Now].
	Now func() time.Time

	// Policy assigns ids and validates input. Defaults to [document.NewPolicy].
	Policy *document.Policy

	// Logger receives operator-facing detail. Defaults to a discard logger.
	Logger *slog.Logger
}

// Engine is the state-transition layer over one [store.Backend].
// It is safe for concurrent use.
type Engine struct {
	backend *store.Backend
	policy  *document.Policy
	now     func() time.Time
	logger  *slog.Logger
}

// New returns an Engine writing through backend.
func New(backend *store.Backend, opts Options) *Engine {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	policy := opts.Policy
	if policy == nil {
		policy = document.NewPolicy()
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Engine{backend: backend, policy: policy, now: now, logger: logger}
}

// Create validates in and appends a new document with a fresh id, no
// versions and UpdatedAt set to now.
func (e *Engine) Create(ctx context.Context, in document.Input) (document.Document, error) {
	var created document.Document

	err := e.mutate(ctx, ActionCreate, "", func(repo *document.Repository) (bool, error) {
		fields, err := e.policy.Prepare(in)
		if err != nil {
			return false, err
		}

		id, err := e.policy.AssignOrValidateID("", repo.Has)
		if err != nil {
			return false, err
		}

		created = document.Document{
			ID:          id,
			Category:    fields.Category,
			Title:       fields.Title,
			Description: fields.Description,
			Content:     fields.Content,
			Tags:        fields.Tags,
			Versions:    []document.Snapshot{},
			UpdatedAt:   document.FormatTime(e.now()),
		}

		return true, repo.Insert(created)
	})
	if err != nil {
		return document.Document{}, err
	}

	return created.Clone(), nil
}

// Update replaces the fields of document id with in.
//
// The prior content is always snapshotted with its prior UpdatedAt, even when
// in carries the same content, and UpdatedAt becomes now.
func (e *Engine) Update(ctx context.Context, id string, in document.Input) (document.Document, error) {
	var updated document.Document

	err := e.mutate(ctx, ActionUpdate, id, func(repo *document.Repository) (bool, error) {
		fields, err := e.policy.Prepare(in)
		if err != nil {
			return false, err
		}

		current, err := repo.FindByID(id)
		if err != nil {
			return false, err
		}

		updated = document.Document{
			ID:          current.ID,
			Category:    fields.Category,
			Title:       fields.Title,
			Description: fields.Description,
			Content:     fields.Content,
			Tags:        fields.Tags,
			Versions:    document.RecordSnapshot(current.Versions, current.Content, current.UpdatedAt),
			UpdatedAt:   document.FormatTime(e.now()),
		}

		return true, repo.Put(updated)
	})
	if err != nil {
		return document.Document{}, err
	}

	return updated.Clone(), nil
}

// Delete removes document id.
func (e *Engine) Delete(ctx context.Context, id string) error {
	return e.mutate(ctx, ActionDelete, id, func(repo *document.Repository) (bool, error) {
		return true, repo.Remove(id)
	})
}

// RestoreVersion makes snapshot index of document id its current content.
// See [document.Restore].
func (e *Engine) RestoreVersion(ctx context.Context, id string, index int) (document.Document, error) {
	var restored document.Document

	err := e.mutate(ctx, ActionRestore, id, func(repo *document.Repository) (bool, error) {
		current, err := repo.FindByID(id)
		if err != nil {
			return false, err
		}

		restored, _, err = document.Restore(current, index, document.FormatTime(e.now()))
		if err != nil {
			return false, err
		}

		return true, repo.Put(restored)
	})
	if err != nil {
		return document.Document{}, err
	}

	return restored.Clone(), nil
}

// List returns the stored collection, reloaded on every call.
func (e *Engine) List(ctx context.Context) []document.Document {
	return e.backend.Load(ctx)
}

// Repository returns a fresh repository over the stored collection.
func (e *Engine) Repository(ctx context.Context) *document.Repository {
	return document.NewRepository(e.backend.Load(ctx))
}

// Get returns document id.
func (e *Engine) Get(ctx context.Context, id string) (document.Document, error) {
	return e.Repository(ctx).FindByID(id)
}

// Export renders the whole collection in the persisted format.
func (e *Engine) Export(ctx context.Context) ([]byte, error) {
	return store.Encode(e.backend.Load(ctx))
}

// mutate runs fn inside a store transaction. fn reports whether it changed
// the repository; an unchanged repository is not written.
func (e *Engine) mutate(ctx context.Context, action Action, id string, fn func(*document.Repository) (bool, error)) error {
	tx, err := e.backend.Begin(ctx)
	if err != nil {
		return e.fail(ctx, action, id, err)
	}

	defer tx.Rollback()

	repo := document.NewRepository(tx.Documents())

	changed, err := fn(repo)
	if err != nil {
		return e.fail(ctx, action, id, err)
	}

	if !changed {
		tx.Rollback()
		metrics.Mutations.WithLabelValues(string(action), "noop").Inc()

		return nil
	}

	err = tx.Commit(repo.All())
	if err != nil {
		return e.fail(ctx, action, id, err)
	}

	metrics.Mutations.WithLabelValues(string(action), "success").Inc()
	e.logger.DebugContext(ctx, "mutation applied", "action", action, "doc_id", id, "documents", repo.Len())

	return nil
}

func (e *Engine) fail(ctx context.Context, action Action, id string, err error) error {
	kind := Classify(err)
	metrics.Mutations.WithLabelValues(string(action), kind.String()).Inc()

	switch kind {
	case KindStorage, KindInternal:
		e.logger.ErrorContext(ctx, "mutation failed", "action", action, "doc_id", id, "error", err)
	default:
		e.logger.DebugContext(ctx, "mutation rejected", "action", action, "doc_id", id, "error", err)
	}

	if id != "" && !errors.Is(err, store.ErrStorage) {
		return document.WithID(err, id)
	}

	return err
}
