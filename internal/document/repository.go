package document

import (
	"cmp"
	"slices"
	"strings"
)

// UncategorizedLabel groups documents whose category is empty. Only imported
// records can end up that way; the policy rejects empty categories.
const UncategorizedLabel = "Uncategorized"

// Repository is an in-memory view over one loaded collection.
//
// It is request scoped: build it from a fresh load, mutate it, hand
// [Repository.All] back to the store, then drop it. Lookups scan linearly;
// collections are expected to stay in the low thousands.
//
// Repository is not safe for concurrent use.
type Repository struct {
	docs []Document
}

// NewRepository copies docs into a new repository. Order is preserved.
func NewRepository(docs []Document) *Repository {
	return &Repository{docs: CloneAll(docs)}
}

// All returns a deep copy of the collection in storage order.
func (r *Repository) All() []Document {
	return CloneAll(r.docs)
}

// Len returns the number of documents.
func (r *Repository) Len() int {
	return len(r.docs)
}

// Replace swaps the whole collection.
func (r *Repository) Replace(docs []Document) {
	r.docs = CloneAll(docs)
}

// Has reports whether a document with id exists.
func (r *Repository) Has(id string) bool {
	return r.indexOf(id) >= 0
}

// FindByID returns a copy of the document with id, or [ErrDocumentNotFound].
func (r *Repository) FindByID(id string) (Document, error) {
	i := r.indexOf(id)
	if i < 0 {
		return Document{}, WithID(ErrDocumentNotFound, id)
	}

	return r.docs[i].Clone(), nil
}

// Insert appends doc. It fails with [ErrIDRequired] for an empty id and
// [ErrDuplicateID] when the id is taken.
func (r *Repository) Insert(doc Document) error {
	if doc.ID == "" {
		return ErrIDRequired
	}

	if r.Has(doc.ID) {
		return WithID(ErrDuplicateID, doc.ID)
	}

	r.docs = append(r.docs, doc.Clone())

	return nil
}

// Put replaces the stored document that has doc's id, keeping its position.
func (r *Repository) Put(doc Document) error {
	i := r.indexOf(doc.ID)
	if i < 0 {
		return WithID(ErrDocumentNotFound, doc.ID)
	}

	r.docs[i] = doc.Clone()

	return nil
}

// Remove deletes the document with id.
func (r *Repository) Remove(id string) error {
	i := r.indexOf(id)
	if i < 0 {
		return WithID(ErrDocumentNotFound, id)
	}

	r.docs = slices.Delete(r.docs, i, i+1)

	return nil
}

func (r *Repository) indexOf(id string) int {
	return slices.IndexFunc(r.docs, func(d Document) bool { return d.ID == id })
}

// Category is a navigation group.
type Category struct {
	Name      string
	Documents []Document
}

// Categories groups documents by category in order of first appearance.
func (r *Repository) Categories() []Category {
	var groups []Category

	index := make(map[string]int)

	for _, d := range r.docs {
		name := d.Category
		if name == "" {
			name = UncategorizedLabel
		}

		i, ok := index[name]
		if !ok {
			i = len(groups)
			index[name] = i
			groups = append(groups, Category{Name: name})
		}

		groups[i].Documents = append(groups[i].Documents, d.Clone())
	}

	return groups
}

// ByCategory returns the documents of one category in storage order.
func (r *Repository) ByCategory(category string) []Document {
	var out []Document

	for _, d := range r.docs {
		name := d.Category
		if name == "" {
			name = UncategorizedLabel
		}

		if name == category {
			out = append(out, d.Clone())
		}
	}

	return out
}

// TagCount is one entry of the tag index.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// TagCounts counts documents per tag, most used first, ties by name.
func (r *Repository) TagCounts() []TagCount {
	counts := make(map[string]int)

	for _, d := range r.docs {
		for _, t := range d.Tags {
			counts[t]++
		}
	}

	out := make([]TagCount, 0, len(counts))
	for tag, n := range counts {
		out = append(out, TagCount{Tag: tag, Count: n})
	}

	slices.SortFunc(out, func(a, b TagCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}

		return cmp.Compare(a.Tag, b.Tag)
	})

	return out
}

// WithTag returns the documents carrying tag.
func (r *Repository) WithTag(tag string) []Document {
	var out []Document

	for _, d := range r.docs {
		if slices.Contains(d.Tags, tag) {
			out = append(out, d.Clone())
		}
	}

	return out
}

// Search returns documents whose title, description, content or tags contain
// query, case-insensitively. An empty query matches everything.
func (r *Repository) Search(query string) []Document {
	q := strings.ToLower(strings.TrimSpace(query))

	var out []Document

	for _, d := range r.docs {
		if q == "" || matches(d, q) {
			out = append(out, d.Clone())
		}
	}

	return out
}

func matches(d Document, q string) bool {
	fields := append([]string{d.Title, d.Description, d.Content}, d.Tags...)

	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}

	return false
}
