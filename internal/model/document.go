package model

import (
	"database/sql"
	"time"
)

// RegulatoryDocument represents one regulatory text or policy document.
// A document is identified by its (state, source_index, type) triple and is
// immutable once stored.
type RegulatoryDocument struct {
	ID          int
	SourceIndex int
	Type        string         // "regulation" or "policy_document"
	State       sql.NullString // two-letter code, NULL for federal documents
	Title       string
	URL         sql.NullString
	URLType     sql.NullString
	Content     sql.NullString
	CreatedAt   time.Time
}

// StatuteReference holds legal citation metadata for a document
type StatuteReference struct {
	ID           int
	DocumentID   int
	USCCitations sql.NullString
	CFRCitations sql.NullString
	PublicLaws   sql.NullString
	Acts         sql.NullString
	StateTitle   sql.NullString
	StateSection sql.NullString
	CreatedAt    time.Time
}

// StatuteRow is one decoded row of a statute reference CSV export
type StatuteRow struct {
	SourceIndex  int
	Title        string
	USCCitations string
	CFRCitations string
	PublicLaws   string
	Acts         string
	StateTitle   string
	StateSection string
}
