package document

import (
	"fmt"
	"html"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// IDPrefix starts every generated document id.
const IDPrefix = "doc_"

const maxIDAttempts = 10

// Input is the raw payload of a create or update, as typed by the user.
// Tags is a single delimited string.
type Input struct {
	Category    string
	Title       string
	Description string
	Content     string
	Tags        string
}

// Fields is an [Input] that passed validation, with display fields escaped.
type Fields struct {
	Category    string
	Title       string
	Description string
	Content     string
	Tags        []string
}

// Policy assigns document identities and validates input.
// The zero value is not usable; call [NewPolicy].
type Policy struct {
	newID func() (string, error)
}

// NewPolicy returns a policy that generates "doc_<uuidv7>" ids.
func NewPolicy() *Policy {
	return &Policy{newID: newDocumentID}
}

// NewPolicyWithIDs returns a policy that draws ids from gen. Tests use it to
// force collisions.
func NewPolicyWithIDs(gen func() (string, error)) *Policy {
	return &Policy{newID: gen}
}

// AssignOrValidateID returns existing (trimmed) when supplied. Otherwise it
// generates a fresh id, retrying while taken reports a collision.
func (p *Policy) AssignOrValidateID(existing string, taken func(id string) bool) (string, error) {
	if id := strings.TrimSpace(existing); id != "" {
		return id, nil
	}

	for range maxIDAttempts {
		id, err := p.newID()
		if err != nil {
			return "", err
		}

		if taken == nil || !taken(id) {
			return id, nil
		}
	}

	return "", ErrIDGenerationFailed
}

// ValidateFields checks that category and title are non-empty after trimming.
func ValidateFields(category, title string) error {
	if strings.TrimSpace(category) == "" {
		return ErrCategoryRequired
	}

	if strings.TrimSpace(title) == "" {
		return ErrTitleRequired
	}

	return nil
}

// Prepare validates in and escapes its display fields. Content is kept
// verbatim because it is rendered through markdown, not as raw HTML.
func (*Policy) Prepare(in Input) (Fields, error) {
	err := ValidateFields(in.Category, in.Title)
	if err != nil {
		return Fields{}, err
	}

	return Fields{
		Category:    Sanitize(in.Category),
		Title:       Sanitize(in.Title),
		Description: Sanitize(in.Description),
		Content:     in.Content,
		Tags:        ParseTags(in.Tags),
	}, nil
}

// Sanitize trims s and escapes HTML metacharacters (<, >, &, ', ").
func Sanitize(s string) string {
	return html.EscapeString(strings.TrimSpace(s))
}

// ParseTags splits raw on commas and whitespace runs, drops empty tokens,
// escapes each tag and removes duplicates keeping the first occurrence.
func ParseTags(raw string) []string {
	tokens := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})

	tags := make([]string, 0, len(tokens))
	seen := make(map[string]bool, len(tokens))

	for _, tok := range tokens {
		tag := Sanitize(tok)
		if tag == "" || seen[tag] {
			continue
		}

		seen[tag] = true
		tags = append(tags, tag)
	}

	return tags
}

// JoinTags renders tags back into the delimited input form.
func JoinTags(tags []string) string {
	return strings.Join(tags, ", ")
}

func newDocumentID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuidv7: %w", err)
	}

	return IDPrefix + id.String(), nil
}
