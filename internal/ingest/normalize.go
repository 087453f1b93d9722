package ingest

import (
	"time"

	"mentionwatch/internal/model"
)

// UnknownAuthor stands in for a record without author_id.
const UnknownAuthor = "unknown"

// Normalize maps a raw record to a Mention. Records without an id are
// rejected; other missing fields fall back to safe defaults.
func Normalize(t model.Tweet, now time.Time) (model.Mention, bool) {
	if t.ID == "" {
		return model.Mention{}, false
	}
	m := model.Mention{
		ID:             t.ID,
		Text:           t.Text,
		ConversationID: t.ConversationID,
		AuthorID:       t.AuthorID,
		CreatedAt:      t.CreatedAt,
	}
	if m.ConversationID == "" {
		m.ConversationID = t.ID
	}
	if m.AuthorID == "" {
		m.AuthorID = UnknownAuthor
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	return m, true
}
