package engine

import (
	"context"
	"time"

	"github.com/calvinalkan/docbase/internal/document"
)

// WelcomeID is the id of the document written into a fresh collection.
const WelcomeID = "doc_welcome"

const welcomeContent = `# Welcome

This knowledge base stores markdown pages grouped by category.

- Create a page with **New page** or ` + "`kb create`" + `.
- Every save keeps the previous content; the last five versions can be restored.
- Export the whole collection as JSON and import it elsewhere.
`

// EnsureSeeded writes the welcome document when the collection file does not
// exist yet. It reports whether it wrote anything.
//
// An existing file is never touched, even if it holds an empty or unreadable
// collection.
func (e *Engine) EnsureSeeded(ctx context.Context) (bool, error) {
	exists, err := e.backend.Exists()
	if err != nil {
		return false, e.fail(ctx, ActionSeed, WelcomeID, err)
	}

	if exists {
		return false, nil
	}

	seeded := false

	err = e.mutate(ctx, ActionSeed, WelcomeID, func(repo *document.Repository) (bool, error) {
		if repo.Len() > 0 {
			return false, nil
		}

		seeded = true

		return true, repo.Insert(Welcome(e.now()))
	})
	if err != nil {
		return false, err
	}

	return seeded, nil
}

// Welcome returns the welcome document stamped with now.
func Welcome(now time.Time) document.Document {
	return document.Document{
		ID:          WelcomeID,
		Category:    "System",
		Title:       "Welcome",
		Description: "Start here",
		Content:     welcomeContent,
		Tags:        []string{"system", "home"},
		Versions:    []document.Snapshot{},
		UpdatedAt:   document.FormatTime(now),
	}
}
