// Package document holds the knowledge-base data model and the rules that
// apply to a single collection: lookup, identity, validation and the bounded
// version log.
//
// Nothing in this package touches the filesystem. The store loads and saves
// collections; the engine combines the pieces into atomic mutations.
package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"
)

// TimeLayout is the display format of [Document.UpdatedAt] and
// [Snapshot.SavedAt]: minute precision, local server time.
const TimeLayout = "02.01.2006 15:04"

// MaxVersions bounds [Document.Versions]. Appending beyond it evicts the oldest.
const MaxVersions = 5

// Document is one markdown page.
//
// Field names match the persisted JSON collection. Category, Title,
// Description and Tags are stored escaped for display; Content is stored
// verbatim.
type Document struct {
	ID          string     `json:"id"`
	Category    string     `json:"category"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Content     string     `json:"content"`
	Tags        []string   `json:"tags"`
	Versions    []Snapshot `json:"versions"`
	UpdatedAt   string     `json:"updated_at"`
}

// Snapshot is an archived content state, with the time it was current until.
type Snapshot struct {
	Content string `json:"content"`
	SavedAt string `json:"saved_at"`
}

// UnmarshalJSON decodes a stored or imported record.
//
// Besides a list, tags may be an object of strings (older files hold
// {"1":"go"} when empty tokens were dropped before saving) or null. Object
// values are taken in file order.
func (d *Document) UnmarshalJSON(data []byte) error {
	type plain Document

	var rec struct {
		plain

		Tags json.RawMessage `json:"tags"`
	}

	err := json.Unmarshal(data, &rec)
	if err != nil {
		return err
	}

	tags, err := decodeTags(rec.Tags)
	if err != nil {
		return err
	}

	*d = Document(rec.plain)
	d.Tags = tags

	return nil
}

func decodeTags(raw json.RawMessage) ([]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []string{}, nil
	}

	switch raw[0] {
	case '[':
		var tags []string

		err := json.Unmarshal(raw, &tags)
		if err != nil {
			return nil, fmt.Errorf("tags: %w", err)
		}

		return tags, nil
	case '{':
		return decodeTagObject(raw)
	default:
		return nil, errors.New("tags: want a list or an object of strings")
	}
}

func decodeTagObject(raw json.RawMessage) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))

	_, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("tags: %w", err)
	}

	tags := []string{}

	for dec.More() {
		_, err = dec.Token()
		if err != nil {
			return nil, fmt.Errorf("tags: %w", err)
		}

		var tag string

		err = dec.Decode(&tag)
		if err != nil {
			return nil, fmt.Errorf("tags: %w", err)
		}

		tags = append(tags, tag)
	}

	return tags, nil
}

// FormatTime renders t in [TimeLayout].
func FormatTime(t time.Time) string {
	return t.Format(TimeLayout)
}

// Clone returns a deep copy so callers can mutate slices freely.
// Nil slices become empty slices, which serialize as [] instead of null.
func (d Document) Clone() Document {
	out := d
	out.Tags = slices.Clone(d.Tags)
	out.Versions = slices.Clone(d.Versions)

	if out.Tags == nil {
		out.Tags = []string{}
	}

	if out.Versions == nil {
		out.Versions = []Snapshot{}
	}

	return out
}

// CloneAll deep-copies a collection.
func CloneAll(docs []Document) []Document {
	out := make([]Document, len(docs))
	for i, d := range docs {
		out[i] = d.Clone()
	}

	return out
}
