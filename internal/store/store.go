// Package store persists the document collection as one JSON file.
//
// Every save rewrites the whole collection through a temp file and rename
// while holding an exclusive flock on a sibling lock file, so readers never
// observe a half-written collection and two writers never interleave.
// Reads take no lock.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/calvinalkan/docbase/internal/document"
	"github.com/calvinalkan/docbase/internal/fs"
	"github.com/calvinalkan/docbase/internal/metrics"
)

const (
	// DefaultLockTimeout bounds how long a writer waits for the collection lock.
	DefaultLockTimeout = 10 * time.Second

	filePerm = 0o644
	dirPerm  = 0o755
)

// Options configures a [Backend]. Zero values select defaults.
type Options struct {
	// FS is the filesystem. Defaults to [fs.NewReal].
	FS fs.FS

	// LockTimeout bounds the wait for the write lock. Defaults to
	// [DefaultLockTimeout].
	LockTimeout time.Duration

	// Logger receives operator-facing detail. Defaults to a discard logger.
	Logger *slog.Logger
}

// Backend reads and writes the collection file at one path.
// It is safe for concurrent use; cross-process safety comes from flock.
type Backend struct {
	fs          fs.FS
	locker      *fs.Locker
	path        string
	lockPath    string
	lockTimeout time.Duration
	logger      *slog.Logger
}

// New returns a Backend for the collection file at path. The file does not
// need to exist yet.
func New(path string, opts Options) (*Backend, error) {
	if path == "" {
		return nil, errors.New("new store: path is empty")
	}

	fsys := opts.FS
	if fsys == nil {
		fsys = fs.NewReal()
	}

	timeout := opts.LockTimeout
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	clean := filepath.Clean(path)

	return &Backend{
		fs:          fsys,
		locker:      fs.NewLocker(fsys),
		path:        clean,
		lockPath:    clean + ".lock",
		lockTimeout: timeout,
		logger:      logger,
	}, nil
}

// Path returns the collection file path.
func (b *Backend) Path() string {
	return b.path
}

// Exists reports whether the collection file exists.
func (b *Backend) Exists() (bool, error) {
	ok, err := b.fs.Exists(b.path)
	if err != nil {
		return false, fmt.Errorf("%w: stat %s: %w", ErrStorage, b.path, err)
	}

	return ok, nil
}

// Load returns the stored collection in storage order.
//
// Load fails soft: a missing, unreadable or syntactically invalid file yields
// an empty collection, and records that do not decode are left out. The cause
// is logged. Writers use [Backend.Begin], which refuses such files instead.
func (b *Backend) Load(ctx context.Context) []document.Document {
	data, err := b.fs.ReadFile(b.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			b.logger.DebugContext(ctx, "collection file not found", "path", b.path)
		} else {
			metrics.StorageErrors.WithLabelValues("load").Inc()
			b.logger.WarnContext(ctx, "collection unreadable, treating as empty", "path", b.path, "error", err)
		}

		return []document.Document{}
	}

	docs, bad, err := decode(data)
	if err != nil {
		metrics.StorageErrors.WithLabelValues("load").Inc()
		b.logger.WarnContext(ctx, "collection unreadable, treating as empty", "path", b.path, "error", err)

		return []document.Document{}
	}

	for _, rerr := range bad {
		metrics.StorageErrors.WithLabelValues("load").Inc()
		b.logger.WarnContext(ctx, "skipping undecodable record", "path", b.path, "position", rerr.Position, "doc_id", rerr.ID, "error", rerr.Err)
	}

	b.warnDuplicates(ctx, docs)
	metrics.CollectionSize.Set(float64(len(docs)))

	return docs
}

// readForUpdate loads the collection for a writer. Only a missing file counts
// as empty; any other read or decode failure is [ErrUnreadableCollection], so
// a writer never replaces data it could not read.
func (b *Backend) readForUpdate(ctx context.Context) ([]document.Document, error) {
	data, err := b.fs.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return []document.Document{}, nil
	}

	if err != nil {
		metrics.StorageErrors.WithLabelValues("load").Inc()

		return nil, fmt.Errorf("%w: read %s: %w", ErrUnreadableCollection, b.path, err)
	}

	docs, err := Decode(data)
	if err != nil {
		metrics.StorageErrors.WithLabelValues("load").Inc()

		return nil, fmt.Errorf("%w: %s: %w", ErrUnreadableCollection, b.path, err)
	}

	b.warnDuplicates(ctx, docs)

	return docs, nil
}

func (b *Backend) warnDuplicates(ctx context.Context, docs []document.Document) {
	for _, id := range duplicateIDs(docs) {
		b.logger.WarnContext(ctx, "collection holds duplicate id, saves fail until one copy is deleted", "path", b.path, "doc_id", id)
	}
}

// Save replaces the stored collection with docs while holding the write lock.
//
// Save is all-or-nothing. On error the previous file is left untouched and
// the error wraps [ErrStorage].
func (b *Backend) Save(ctx context.Context, docs []document.Document) error {
	if ctx == nil {
		return errors.New("save: context is nil")
	}

	lock, err := b.lock(ctx)
	if err != nil {
		return err
	}

	defer b.unlock(ctx, lock)

	return b.write(ctx, docs)
}

func (b *Backend) lock(ctx context.Context) (*fs.Lock, error) {
	lockCtx, cancel := context.WithTimeout(ctx, b.lockTimeout)
	defer cancel()

	lock, err := b.locker.LockContext(lockCtx, b.lockPath)
	if err != nil {
		metrics.StorageErrors.WithLabelValues("lock").Inc()

		return nil, fmt.Errorf("%w: lock %s: %w", ErrStorage, b.lockPath, err)
	}

	return lock, nil
}

func (b *Backend) unlock(ctx context.Context, lock *fs.Lock) {
	err := lock.Close()
	if err != nil {
		b.logger.ErrorContext(ctx, "releasing collection lock", "path", b.lockPath, "error", err)
	}
}

// write encodes and atomically replaces the file. Caller holds the lock.
func (b *Backend) write(ctx context.Context, docs []document.Document) error {
	start := time.Now()

	data, err := Encode(docs)
	if err != nil {
		metrics.StorageErrors.WithLabelValues("encode").Inc()

		return err
	}

	err = b.fs.MkdirAll(filepath.Dir(b.path), dirPerm)
	if err != nil {
		metrics.StorageErrors.WithLabelValues("save").Inc()

		return fmt.Errorf("%w: create directory for %s: %w", ErrStorage, b.path, err)
	}

	err = b.fs.WriteFileAtomic(b.path, data, filePerm)
	if err != nil {
		metrics.StorageErrors.WithLabelValues("save").Inc()

		return fmt.Errorf("%w: write %s: %w", ErrStorage, b.path, err)
	}

	metrics.StorageSaveSeconds.Observe(time.Since(start).Seconds())
	metrics.CollectionSize.Set(float64(len(docs)))
	b.logger.DebugContext(ctx, "collection saved", "path", b.path, "documents", len(docs))

	return nil
}

// Encode renders docs as the persisted format: a pretty-printed JSON array
// with non-ASCII and HTML characters left unescaped.
//
// It fails with [ErrMalformedCollection] if any id is empty or repeated; a
// repeated id is reported as a [DuplicateIDError].
func Encode(docs []document.Document) ([]byte, error) {
	for i, d := range docs {
		if d.ID == "" {
			return nil, fmt.Errorf("%w: document at position %d has no id", ErrMalformedCollection, i)
		}
	}

	if dups := duplicateIDs(docs); len(dups) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrMalformedCollection, &DuplicateIDError{ID: dups[0]})
	}

	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")

	err := enc.Encode(document.CloneAll(docs))
	if err != nil {
		return nil, fmt.Errorf("%w: encode collection: %w", ErrStorage, err)
	}

	out := bytes.TrimRight(buf.Bytes(), "\n")
	if !json.Valid(out) {
		return nil, fmt.Errorf("%w: encoded collection is not valid JSON", ErrStorage)
	}

	return out, nil
}

// Decode parses a persisted collection. The input must be a JSON array of
// document objects; the first record that does not decode fails the whole
// call with a [RecordError].
func Decode(data []byte) ([]document.Document, error) {
	docs, bad, err := decode(data)
	if err != nil {
		return nil, err
	}

	if len(bad) > 0 {
		return nil, bad[0]
	}

	return docs, nil
}

// decode parses the array record by record. Records that do not decode are
// returned in bad and left out of docs. err is set only when data is not an
// array at all.
func decode(data []byte) ([]document.Document, []*RecordError, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, nil, errors.New("collection is not a JSON array")
	}

	var raw []json.RawMessage

	err := json.Unmarshal(trimmed, &raw)
	if err != nil {
		return nil, nil, fmt.Errorf("decode collection: %w", err)
	}

	docs := make([]document.Document, 0, len(raw))

	var bad []*RecordError

	for i, msg := range raw {
		var doc document.Document

		err := json.Unmarshal(msg, &doc)
		if err != nil {
			bad = append(bad, &RecordError{Position: i, ID: recordID(msg), Err: err})

			continue
		}

		docs = append(docs, doc.Clone())
	}

	return docs, bad, nil
}

// recordID extracts the id of an undecodable record for log messages.
func recordID(msg json.RawMessage) string {
	var rec struct {
		ID string `json:"id"`
	}

	_ = json.Unmarshal(msg, &rec)

	return rec.ID
}

// duplicateIDs returns every non-empty id that occurs more than once, in
// order of its second occurrence.
func duplicateIDs(docs []document.Document) []string {
	seen := make(map[string]int, len(docs))

	var dups []string

	for _, d := range docs {
		if d.ID == "" {
			continue
		}

		seen[d.ID]++
		if seen[d.ID] == 2 {
			dups = append(dups, d.ID)
		}
	}

	return dups
}
