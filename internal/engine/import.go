package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/calvinalkan/docbase/internal/document"
	"github.com/calvinalkan/docbase/internal/metrics"
)

// importRecord distinguishes absent fields from empty ones.
type importRecord struct {
	ID      string  `json:"id"`
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

// BulkImport appends every record of data whose id is not stored yet and
// returns how many were accepted.
//
// data must be a JSON array. Records are appended verbatim except that they
// need an id, a title and a content. Records colliding with a stored id, or
// with an id accepted earlier in the same batch, are skipped silently. The
// collection is only written when at least one record is accepted.
func (e *Engine) BulkImport(ctx context.Context, data []byte) (int, error) {
	var raw []json.RawMessage

	err := json.Unmarshal(data, &raw)
	if err != nil || raw == nil {
		return 0, e.fail(ctx, ActionImport, "", importError(err))
	}

	count := 0

	err = e.mutate(ctx, ActionImport, "", func(repo *document.Repository) (bool, error) {
		for i, msg := range raw {
			doc, ok := decodeImportRecord(msg)
			if !ok || repo.Has(doc.ID) {
				e.logger.DebugContext(ctx, "import record skipped", "position", i, "doc_id", doc.ID)

				continue
			}

			err := repo.Insert(doc)
			if err != nil {
				return false, err
			}

			count++
		}

		return count > 0, nil
	})
	if err != nil {
		return 0, err
	}

	metrics.ImportedDocuments.Add(float64(count))

	return count, nil
}

func decodeImportRecord(msg json.RawMessage) (document.Document, bool) {
	var rec importRecord

	err := json.Unmarshal(msg, &rec)
	if err != nil || rec.ID == "" || rec.Title == nil || rec.Content == nil {
		return document.Document{ID: rec.ID}, false
	}

	var doc document.Document

	err = json.Unmarshal(msg, &doc)
	if err != nil {
		return document.Document{ID: rec.ID}, false
	}

	return doc.Clone(), true
}

func importError(err error) error {
	if err == nil {
		return ErrImportMalformed
	}

	return fmt.Errorf("%w: %w", ErrImportMalformed, err)
}
