package store_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/calvinalkan/docbase/internal/document"
	"github.com/calvinalkan/docbase/internal/fs"
	"github.com/calvinalkan/docbase/internal/store"
)

// Two records as an older writer saved them: the second has its tags stored
// as an object because empty tokens were dropped with their keys kept.
const legacyCollection = `[
    {"id": "doc_a1", "category": "Ops", "title": "Deploy", "description": "", "content": "ship",
     "tags": ["ops"], "versions": [], "updated_at": "01.01.2026 10:00"},
    {"id": "doc_b2", "category": "Ops", "title": "Rollback", "description": "", "content": "undo",
     "tags": {"1": "go"}, "versions": [], "updated_at": "01.01.2026 10:01"}
]`

func writeCollection(t *testing.T, b *store.Backend, content string) {
	t.Helper()

	if err := os.WriteFile(b.Path(), []byte(content), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
}

func readCollection(t *testing.T, b *store.Backend) string {
	t.Helper()

	raw, err := os.ReadFile(b.Path())
	if err != nil {
		t.Fatalf("read collection: %v", err)
	}

	return string(raw)
}

// Contract: a record with tags stored as an object loads like any other.
func Test_Load_Accepts_Tags_Stored_As_Object(t *testing.T) {
	t.Parallel()

	b := openBackend(t, testLockTimeout)
	writeCollection(t, b, legacyCollection)

	docs := b.Load(t.Context())
	if len(docs) != 2 {
		t.Fatalf("Load returned %d docs, want 2", len(docs))
	}

	if diff := cmp.Diff([]string{"go"}, docs[1].Tags); diff != "" {
		t.Fatalf("tags (-want +got):\n%s", diff)
	}
}

// Contract: one undecodable record does not hide the others from readers.
func Test_Load_Skips_Only_Undecodable_Records(t *testing.T) {
	t.Parallel()

	b := openBackend(t, testLockTimeout)
	writeCollection(t, b, `[
		{"id": "doc_a1", "title": "A", "content": "a"},
		{"id": "doc_bad", "title": "B", "tags": "oops"},
		{"id": "doc_c3", "title": "C", "content": "c", "versions": [{"content": "x", "saved_at": 5}]},
		{"id": "doc_d4", "title": "D", "content": "d"}
	]`)

	var ids []string
	for _, d := range b.Load(t.Context()) {
		ids = append(ids, d.ID)
	}

	if diff := cmp.Diff([]string{"doc_a1", "doc_d4"}, ids); diff != "" {
		t.Fatalf("loaded ids (-want +got):\n%s", diff)
	}
}

// Contract: a writer never replaces a file it could not decode in full.
func Test_Begin_Fails_And_Keeps_File_When_Collection_Cannot_Be_Decoded(t *testing.T) {
	t.Parallel()

	inputs := map[string]string{
		"garbage":      "not json at all",
		"truncated":    `[{"id":"doc_a1","title":"x"`,
		"object":       `{"id":"doc_a1"}`,
		"bad tag type": `[{"id":"doc_a1","title":"A","content":"a"},{"id":"doc_b2","tags":"oops"}]`,
	}

	for name, content := range inputs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			b := openBackend(t, testLockTimeout)
			writeCollection(t, b, content)

			_, err := b.Begin(t.Context())
			if !errors.Is(err, store.ErrUnreadableCollection) || !errors.Is(err, store.ErrStorage) {
				t.Fatalf("begin err = %v, want %v", err, store.ErrUnreadableCollection)
			}

			if got := readCollection(t, b); got != content {
				t.Fatalf("file changed to %q", got)
			}

			// The lock was released: an explicit save still goes through.
			if err := b.Save(t.Context(), nil); err != nil {
				t.Fatalf("save after failed begin: %v", err)
			}
		})
	}
}

// Contract: a read error other than a missing file fails the writer.
func Test_Begin_Fails_When_Existing_File_Cannot_Be_Read(t *testing.T) {
	t.Parallel()

	faulty := fs.NewFaulty(fs.NewReal())

	b, err := store.New(filepath.Join(t.TempDir(), "docbase.json"), store.Options{FS: faulty, LockTimeout: testLockTimeout})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	writeCollection(t, b, legacyCollection)
	faulty.Fail(fs.OpReadFile, nil)

	_, err = b.Begin(t.Context())
	if !errors.Is(err, store.ErrUnreadableCollection) || !fs.IsInjected(err) {
		t.Fatalf("begin err = %v, want %v wrapping the read error", err, store.ErrUnreadableCollection)
	}

	faulty.Heal(fs.OpReadFile)

	if got := readCollection(t, b); got != legacyCollection {
		t.Fatal("file changed after failed begin")
	}
}

// Contract: a missing file begins an empty collection.
func Test_Begin_Starts_Empty_When_File_Is_Missing(t *testing.T) {
	t.Parallel()

	b := openBackend(t, testLockTimeout)

	tx, err := b.Begin(t.Context())
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	defer tx.Rollback()

	if docs := tx.Documents(); len(docs) != 0 {
		t.Fatalf("documents = %+v, want empty", docs)
	}
}

// Contract: a commit over a legacy file keeps every stored document.
func Test_Tx_Keeps_Legacy_Records_When_Appending(t *testing.T) {
	t.Parallel()

	b := openBackend(t, testLockTimeout)
	writeCollection(t, b, legacyCollection)

	tx, err := b.Begin(t.Context())
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	defer tx.Rollback()

	docs := append(tx.Documents(), document.Document{ID: "doc_new", Category: "C", Title: "T"})

	if err := tx.Commit(docs); err != nil {
		t.Fatalf("commit: %v", err)
	}

	var ids []string
	for _, d := range b.Load(t.Context()) {
		ids = append(ids, d.ID)
	}

	if diff := cmp.Diff([]string{"doc_a1", "doc_b2", "doc_new"}, ids); diff != "" {
		t.Fatalf("stored ids (-want +got):\n%s", diff)
	}

	raw := readCollection(t, b)
	if !strings.Contains(raw, `"tags": [
            "go"
        ]`) {
		t.Fatalf("object tags should be rewritten as a list:\n%s", raw)
	}
}

// Contract: a repeated id is reported by name.
func Test_Encode_Names_Duplicate_ID(t *testing.T) {
	t.Parallel()

	_, err := store.Encode([]document.Document{{ID: "doc_x"}, {ID: "doc_y"}, {ID: "doc_x"}})

	var dup *store.DuplicateIDError
	if !errors.As(err, &dup) || dup.ID != "doc_x" {
		t.Fatalf("err = %v, want DuplicateIDError for doc_x", err)
	}

	if !errors.Is(err, store.ErrMalformedCollection) {
		t.Fatalf("err = %v, want %v", err, store.ErrMalformedCollection)
	}
}

// Contract: Decode names the first record that does not decode.
func Test_Decode_Reports_Position_And_ID_Of_Bad_Record(t *testing.T) {
	t.Parallel()

	_, err := store.Decode([]byte(`[{"id":"doc_a"},{"id":"doc_b","tags":7}]`))

	var rerr *store.RecordError
	if !errors.As(err, &rerr) {
		t.Fatalf("err = %v, want RecordError", err)
	}

	if rerr.Position != 1 || rerr.ID != "doc_b" {
		t.Fatalf("record error = %+v, want position 1 doc_b", rerr)
	}
}
