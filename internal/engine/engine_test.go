package engine_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/calvinalkan/docbase/internal/document"
	"github.com/calvinalkan/docbase/internal/engine"
	"github.com/calvinalkan/docbase/internal/fs"
	"github.com/calvinalkan/docbase/internal/store"
)

// clock hands out a new minute on every call so timestamps are distinguishable.
type clock struct {
	mu   sync.Mutex
	next time.Time
}

func newClock() *clock {
	return &clock{next: time.Date(2026, 3, 14, 9, 0, 0, 0, time.Local)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.next
	c.next = c.next.Add(time.Minute)

	return now
}

type fixture struct {
	engine  *engine.Engine
	backend *store.Backend
	faulty  *fs.Faulty
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	faulty := fs.NewFaulty(fs.NewReal())

	backend, err := store.New(filepath.Join(t.TempDir(), "docbase.json"), store.Options{FS: faulty, LockTimeout: time.Second})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	eng := engine.New(backend, engine.Options{Now: newClock().Now})

	return fixture{engine: eng, backend: backend, faulty: faulty}
}

func mustCreate(t *testing.T, f fixture, in document.Input) document.Document {
	t.Helper()

	doc, err := f.engine.Create(t.Context(), in)
	if err != nil {
		t.Fatalf("create %+v: %v", in, err)
	}

	return doc
}

func Test_Create_Update_Delete_Follows_Document_Lifecycle(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := t.Context()

	created := mustCreate(t, f, document.Input{Category: "Guides", Title: "Intro", Content: "hello"})

	docs := f.backend.Load(ctx)
	if len(docs) != 1 {
		t.Fatalf("documents = %d, want 1", len(docs))
	}

	if diff := cmp.Diff([]document.Snapshot{}, docs[0].Versions); diff != "" {
		t.Fatalf("versions after create (-want +got):\n%s", diff)
	}

	if created.UpdatedAt != "14.03.2026 09:00" {
		t.Fatalf("updated_at = %q, want 14.03.2026 09:00", created.UpdatedAt)
	}

	updated, err := f.engine.Update(ctx, created.ID, document.Input{Category: "Guides", Title: "Intro", Content: "hello world"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	wantVersions := []document.Snapshot{{Content: "hello", SavedAt: created.UpdatedAt}}
	if diff := cmp.Diff(wantVersions, updated.Versions); diff != "" {
		t.Fatalf("versions after update (-want +got):\n%s", diff)
	}

	got, err := f.engine.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if got.Content != "hello world" {
		t.Fatalf("content = %q, want %q", got.Content, "hello world")
	}

	err = f.engine.Delete(ctx, created.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}

	if docs := f.backend.Load(ctx); len(docs) != 0 {
		t.Fatalf("documents after delete = %+v, want none", docs)
	}
}

func Test_Create_Escapes_Display_Fields_And_Keeps_Content_Verbatim(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	doc := mustCreate(t, f, document.Input{
		Category:    "  <b>Ops</b> ",
		Title:       "A & B",
		Description: `say "hi"`,
		Content:     "<script>x</script>",
		Tags:        "go, <i>, go  web",
	})

	want := document.Document{
		ID:          doc.ID,
		Category:    "&lt;b&gt;Ops&lt;/b&gt;",
		Title:       "A &amp; B",
		Description: "say &#34;hi&#34;",
		Content:     "<script>x</script>",
		Tags:        []string{"go", "&lt;i&gt;", "web"},
		Versions:    []document.Snapshot{},
		UpdatedAt:   doc.UpdatedAt,
	}

	if diff := cmp.Diff(want, doc); diff != "" {
		t.Fatalf("document (-want +got):\n%s", diff)
	}
}

func Test_Create_And_Update_Reject_Empty_Category_Or_Title_Without_Storing(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := t.Context()

	existing := mustCreate(t, f, document.Input{Category: "Guides", Title: "Intro", Content: "hello"})
	before := f.backend.Load(ctx)

	cases := []struct {
		name string
		in   document.Input
		want error
	}{
		{"empty category", document.Input{Category: "", Title: "T"}, document.ErrCategoryRequired},
		{"blank category", document.Input{Category: " \t ", Title: "T"}, document.ErrCategoryRequired},
		{"empty title", document.Input{Category: "C", Title: ""}, document.ErrTitleRequired},
		{"blank title", document.Input{Category: "C", Title: "\n "}, document.ErrTitleRequired},
	}

	for _, tc := range cases {
		_, err := f.engine.Create(ctx, tc.in)
		if !errors.Is(err, tc.want) || engine.Classify(err) != engine.KindValidation {
			t.Errorf("%s: create err = %v, want %v", tc.name, err, tc.want)
		}

		_, err = f.engine.Update(ctx, existing.ID, tc.in)
		if !errors.Is(err, tc.want) {
			t.Errorf("%s: update err = %v, want %v", tc.name, err, tc.want)
		}
	}

	if diff := cmp.Diff(before, f.backend.Load(ctx)); diff != "" {
		t.Fatalf("collection changed (-want +got):\n%s", diff)
	}
}

func Test_Update_Delete_Restore_Return_Not_Found_When_ID_Is_Unknown(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := t.Context()

	mustCreate(t, f, document.Input{Category: "Guides", Title: "Intro"})

	_, err := f.engine.Update(ctx, "doc_missing", document.Input{Category: "C", Title: "T"})
	if !errors.Is(err, document.ErrDocumentNotFound) {
		t.Fatalf("update err = %v, want %v", err, document.ErrDocumentNotFound)
	}

	var docErr *document.Error
	if !errors.As(err, &docErr) || docErr.ID != "doc_missing" {
		t.Fatalf("update err = %v, want doc_id=doc_missing", err)
	}

	err = f.engine.Delete(ctx, "doc_missing")
	if engine.Classify(err) != engine.KindNotFound {
		t.Fatalf("delete err = %v, want not found", err)
	}

	_, err = f.engine.RestoreVersion(ctx, "doc_missing", 0)
	if engine.Classify(err) != engine.KindNotFound {
		t.Fatalf("restore err = %v, want not found", err)
	}

	if n := len(f.backend.Load(ctx)); n != 1 {
		t.Fatalf("documents = %d, want 1", n)
	}
}

func Test_Update_Snapshots_Even_When_Content_Is_Unchanged(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	doc := mustCreate(t, f, document.Input{Category: "Guides", Title: "Intro", Content: "same"})

	updated, err := f.engine.Update(t.Context(), doc.ID, document.Input{Category: "Guides", Title: "Renamed", Content: "same"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	want := []document.Snapshot{{Content: "same", SavedAt: doc.UpdatedAt}}
	if diff := cmp.Diff(want, updated.Versions); diff != "" {
		t.Fatalf("versions (-want +got):\n%s", diff)
	}

	if updated.UpdatedAt == doc.UpdatedAt {
		t.Fatalf("updated_at not advanced: %q", updated.UpdatedAt)
	}
}

func Test_Update_Keeps_Only_Five_Most_Recent_Snapshots(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := t.Context()

	doc := mustCreate(t, f, document.Input{Category: "C", Title: "T", Content: "v0"})
	stamps := []string{doc.UpdatedAt}

	const updates = 8

	for i := 1; i <= updates; i++ {
		next, err := f.engine.Update(ctx, doc.ID, document.Input{Category: "C", Title: "T", Content: fmt.Sprintf("v%d", i)})
		if err != nil {
			t.Fatalf("update %d: %v", i, err)
		}

		stamps = append(stamps, next.UpdatedAt)
	}

	got, err := f.engine.Get(ctx, doc.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	want := make([]document.Snapshot, 0, document.MaxVersions)
	for i := updates - document.MaxVersions; i < updates; i++ {
		want = append(want, document.Snapshot{Content: fmt.Sprintf("v%d", i), SavedAt: stamps[i]})
	}

	if diff := cmp.Diff(want, got.Versions); diff != "" {
		t.Fatalf("versions (-want +got):\n%s", diff)
	}

	if got.Content != fmt.Sprintf("v%d", updates) {
		t.Fatalf("content = %q", got.Content)
	}
}

func Test_RestoreVersion_Archives_Current_Content_And_Can_Be_Undone(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := t.Context()

	doc := mustCreate(t, f, document.Input{Category: "C", Title: "T", Content: "first"})

	for _, content := range []string{"second", "third"} {
		_, err := f.engine.Update(ctx, doc.ID, document.Input{Category: "C", Title: "T", Content: content})
		if err != nil {
			t.Fatalf("update: %v", err)
		}
	}

	restored, err := f.engine.RestoreVersion(ctx, doc.ID, 0)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}

	if restored.Content != "first" {
		t.Fatalf("content = %q, want first", restored.Content)
	}

	last := restored.Versions[len(restored.Versions)-1]
	if last.Content != "third" || last.SavedAt != restored.UpdatedAt {
		t.Fatalf("archived = %+v, want third at %s", last, restored.UpdatedAt)
	}

	undone, err := f.engine.RestoreVersion(ctx, doc.ID, len(restored.Versions)-1)
	if err != nil {
		t.Fatalf("undo restore: %v", err)
	}

	if undone.Content != "third" {
		t.Fatalf("content after undo = %q, want third", undone.Content)
	}

	if len(undone.Versions) != 4 {
		t.Fatalf("versions = %d, want 4", len(undone.Versions))
	}
}

func Test_RestoreVersion_Returns_Not_Found_When_Index_Out_Of_Range(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := t.Context()

	doc := mustCreate(t, f, document.Input{Category: "C", Title: "T", Content: "a"})

	for _, index := range []int{-1, 0, 1} {
		_, err := f.engine.RestoreVersion(ctx, doc.ID, index)
		if !errors.Is(err, document.ErrVersionNotFound) {
			t.Fatalf("restore(%d) err = %v, want %v", index, err, document.ErrVersionNotFound)
		}
	}
}

func Test_Create_Assigns_Distinct_IDs(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	seen := map[string]bool{}

	for i := range 50 {
		doc := mustCreate(t, f, document.Input{Category: "C", Title: fmt.Sprintf("T%d", i)})
		if seen[doc.ID] {
			t.Fatalf("duplicate id %s", doc.ID)
		}

		seen[doc.ID] = true
	}

	if n := len(f.backend.Load(t.Context())); n != 50 {
		t.Fatalf("documents = %d, want 50", n)
	}
}

func Test_Create_Retries_When_Generated_ID_Collides(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	ids := []string{"doc_a", "doc_a", "doc_a", "doc_b"}
	gen := func() (string, error) {
		id := ids[0]
		ids = ids[1:]

		return id, nil
	}

	eng := engine.New(f.backend, engine.Options{Policy: document.NewPolicyWithIDs(gen)})

	first, err := eng.Create(t.Context(), document.Input{Category: "C", Title: "1"})
	if err != nil || first.ID != "doc_a" {
		t.Fatalf("first = %q, %v; want doc_a", first.ID, err)
	}

	second, err := eng.Create(t.Context(), document.Input{Category: "C", Title: "2"})
	if err != nil || second.ID != "doc_b" {
		t.Fatalf("second = %q, %v; want doc_b", second.ID, err)
	}
}

func Test_Create_Fails_When_No_Unique_ID_Can_Be_Generated(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	eng := engine.New(f.backend, engine.Options{Policy: document.NewPolicyWithIDs(func() (string, error) { return "doc_same", nil })})

	if _, err := eng.Create(t.Context(), document.Input{Category: "C", Title: "1"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err := eng.Create(t.Context(), document.Input{Category: "C", Title: "2"})
	if !errors.Is(err, document.ErrIDGenerationFailed) {
		t.Fatalf("err = %v, want %v", err, document.ErrIDGenerationFailed)
	}
}

func Test_Mutations_Fail_And_Leave_Collection_Unchanged_When_Write_Fails(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := t.Context()

	doc := mustCreate(t, f, document.Input{Category: "C", Title: "T", Content: "a"})
	_, _ = f.engine.Update(ctx, doc.ID, document.Input{Category: "C", Title: "T", Content: "b"})

	before := f.backend.Load(ctx)

	f.faulty.Fail(fs.OpWriteFileAtomic, nil)

	mutations := map[string]func() error{
		"create": func() error {
			_, err := f.engine.Create(ctx, document.Input{Category: "C", Title: "new"})

			return err
		},
		"update": func() error {
			_, err := f.engine.Update(ctx, doc.ID, document.Input{Category: "C", Title: "T", Content: "c"})

			return err
		},
		"delete": func() error { return f.engine.Delete(ctx, doc.ID) },
		"restore": func() error {
			_, err := f.engine.RestoreVersion(ctx, doc.ID, 0)

			return err
		},
		"import": func() error {
			_, err := f.engine.BulkImport(ctx, []byte(`[{"id":"doc_new","title":"N","content":"n"}]`))

			return err
		},
	}

	for name, run := range mutations {
		err := run()
		if !errors.Is(err, store.ErrStorage) || engine.Classify(err) != engine.KindStorage {
			t.Errorf("%s: err = %v, want storage error", name, err)
		}
	}

	f.faulty.Heal(fs.OpWriteFileAtomic)

	if diff := cmp.Diff(before, f.backend.Load(ctx)); diff != "" {
		t.Fatalf("collection changed (-want +got):\n%s", diff)
	}
}

func Test_Concurrent_Creates_Are_All_Persisted(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	const n = 10

	var wg sync.WaitGroup

	for i := range n {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := f.engine.Create(context.Background(), document.Input{Category: "C", Title: fmt.Sprintf("T%d", i)})
			if err != nil {
				t.Errorf("create %d: %v", i, err)
			}
		}()
	}

	wg.Wait()

	if got := len(f.backend.Load(t.Context())); got != n {
		t.Fatalf("documents = %d, want %d", got, n)
	}
}

func Test_EnsureSeeded_Writes_Welcome_Only_When_File_Is_Missing(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := t.Context()

	seeded, err := f.engine.EnsureSeeded(ctx)
	if err != nil || !seeded {
		t.Fatalf("first seed = %v, %v; want true, nil", seeded, err)
	}

	welcome, err := f.engine.Get(ctx, engine.WelcomeID)
	if err != nil {
		t.Fatalf("get welcome: %v", err)
	}

	if welcome.Category != "System" {
		t.Fatalf("category = %q, want System", welcome.Category)
	}

	if err := f.engine.Delete(ctx, engine.WelcomeID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	seeded, err = f.engine.EnsureSeeded(ctx)
	if err != nil || seeded {
		t.Fatalf("second seed = %v, %v; want false, nil", seeded, err)
	}

	if n := len(f.backend.Load(ctx)); n != 0 {
		t.Fatalf("documents = %d, want 0", n)
	}
}

func Test_EnsureSeeded_Returns_Storage_Error_When_Write_Fails(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.faulty.Fail(fs.OpWriteFileAtomic, nil)

	seeded, err := f.engine.EnsureSeeded(t.Context())
	if seeded || engine.Classify(err) != engine.KindStorage {
		t.Fatalf("seed = %v, %v; want false, storage error", seeded, err)
	}

	if docs := f.engine.List(t.Context()); len(docs) != 0 {
		t.Fatalf("documents = %d, want 0", len(docs))
	}
}
