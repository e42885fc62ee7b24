package document

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func Test_RecordSnapshot_Appends_Prior_State_When_Under_Limit(t *testing.T) {
	t.Parallel()

	got := RecordSnapshot(nil, "hello", "01.02.2026 10:00")

	want := []Snapshot{{Content: "hello", SavedAt: "01.02.2026 10:00"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("versions mismatch (-want +got):\n%s", diff)
	}
}

func Test_RecordSnapshot_Keeps_Five_Most_Recent_When_Sixth_Is_Appended(t *testing.T) {
	t.Parallel()

	var versions []Snapshot
	for i := range 8 {
		versions = RecordSnapshot(versions, fmt.Sprintf("v%d", i), fmt.Sprintf("t%d", i))
	}

	if len(versions) != MaxVersions {
		t.Fatalf("len=%d, want %d", len(versions), MaxVersions)
	}

	want := []Snapshot{
		{Content: "v3", SavedAt: "t3"},
		{Content: "v4", SavedAt: "t4"},
		{Content: "v5", SavedAt: "t5"},
		{Content: "v6", SavedAt: "t6"},
		{Content: "v7", SavedAt: "t7"},
	}
	if diff := cmp.Diff(want, versions); diff != "" {
		t.Fatalf("versions mismatch (-want +got):\n%s", diff)
	}
}

func Test_RecordSnapshot_Does_Not_Modify_Input_Slice(t *testing.T) {
	t.Parallel()

	in := make([]Snapshot, 0, 10)
	in = append(in, Snapshot{Content: "a", SavedAt: "t"})

	_ = RecordSnapshot(in, "b", "t2")

	if len(in) != 1 {
		t.Fatalf("input len=%d, want 1", len(in))
	}

	full := []Snapshot{{Content: "1"}, {Content: "2"}, {Content: "3"}, {Content: "4"}, {Content: "5"}}
	_ = RecordSnapshot(full, "6", "")

	if full[0].Content != "1" {
		t.Fatalf("input mutated: %+v", full)
	}
}

func Test_Restore_Swaps_Content_And_Archives_Current_When_Index_Is_Valid(t *testing.T) {
	t.Parallel()

	doc := Document{
		ID:        "doc_a",
		Content:   "current",
		UpdatedAt: "02.01.2026 09:00",
		Versions: []Snapshot{
			{Content: "first", SavedAt: "01.01.2026 08:00"},
			{Content: "second", SavedAt: "01.01.2026 09:00"},
		},
	}

	got, archived, err := Restore(doc, 0, "03.01.2026 12:00")
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}

	if got.Content != "first" {
		t.Fatalf("content=%q, want %q", got.Content, "first")
	}

	if got.UpdatedAt != "03.01.2026 12:00" {
		t.Fatalf("updated_at=%q, want now", got.UpdatedAt)
	}

	wantArchived := Snapshot{Content: "current", SavedAt: "03.01.2026 12:00"}
	if diff := cmp.Diff(wantArchived, archived); diff != "" {
		t.Fatalf("archived mismatch (-want +got):\n%s", diff)
	}

	wantVersions := []Snapshot{
		{Content: "first", SavedAt: "01.01.2026 08:00"},
		{Content: "second", SavedAt: "01.01.2026 09:00"},
		wantArchived,
	}
	if diff := cmp.Diff(wantVersions, got.Versions); diff != "" {
		t.Fatalf("versions mismatch (-want +got):\n%s", diff)
	}

	if doc.Content != "current" || len(doc.Versions) != 2 {
		t.Fatalf("input document mutated: %+v", doc)
	}
}

func Test_Restore_Returns_ErrVersionNotFound_When_Index_Is_Out_Of_Range(t *testing.T) {
	t.Parallel()

	doc := Document{ID: "doc_a", Versions: []Snapshot{{Content: "x"}}}

	for _, idx := range []int{-1, 1, 5} {
		_, _, err := Restore(doc, idx, "now")
		if !errors.Is(err, ErrVersionNotFound) || !errors.Is(err, ErrNotFound) {
			t.Fatalf("Restore(%d): err=%v, want %v", idx, err, ErrVersionNotFound)
		}

		var docErr *Error
		if !errors.As(err, &docErr) || docErr.ID != "doc_a" {
			t.Fatalf("Restore(%d): err=%v, want doc id attached", idx, err)
		}
	}
}

func Test_Restore_Evicts_Oldest_When_History_Is_Full(t *testing.T) {
	t.Parallel()

	doc := Document{ID: "doc_a", Content: "cur"}
	for i := range MaxVersions {
		doc.Versions = append(doc.Versions, Snapshot{Content: fmt.Sprintf("v%d", i)})
	}

	got, _, err := Restore(doc, 0, "now")
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}

	if got.Content != "v0" {
		t.Fatalf("content=%q, want v0", got.Content)
	}

	if len(got.Versions) != MaxVersions {
		t.Fatalf("len(versions)=%d, want %d", len(got.Versions), MaxVersions)
	}

	if got.Versions[0].Content != "v1" || got.Versions[MaxVersions-1].Content != "cur" {
		t.Fatalf("versions=%+v, want v1..v4,cur", got.Versions)
	}
}
