package document

import "slices"

// RecordSnapshot appends {priorContent, priorUpdatedAt} to versions and keeps
// only the newest [MaxVersions] entries, oldest first. versions is not
// modified; a new slice is returned.
func RecordSnapshot(versions []Snapshot, priorContent, priorUpdatedAt string) []Snapshot {
	out := append(slices.Clone(versions), Snapshot{Content: priorContent, SavedAt: priorUpdatedAt})

	if over := len(out) - MaxVersions; over > 0 {
		out = slices.Delete(out, 0, over)
	}

	return out
}

// Restore makes the snapshot at index the current content of doc.
//
// The content that was current before the restore is archived with savedAt
// now, and UpdatedAt becomes now, so a restore is itself a reversible content
// mutation. The bound on versions applies afterwards. The index refers to
// doc.Versions before the restore.
//
// Returns the updated document and the archived snapshot, or
// [ErrVersionNotFound] when index is out of range.
func Restore(doc Document, index int, now string) (Document, Snapshot, error) {
	if index < 0 || index >= len(doc.Versions) {
		return Document{}, Snapshot{}, WithID(ErrVersionNotFound, doc.ID)
	}

	out := doc.Clone()
	archived := Snapshot{Content: doc.Content, SavedAt: now}

	out.Content = doc.Versions[index].Content
	out.Versions = RecordSnapshot(doc.Versions, archived.Content, archived.SavedAt)
	out.UpdatedAt = now

	return out, archived, nil
}
