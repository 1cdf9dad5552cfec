package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmorgan/regflag/internal/model"
)

// DocumentStore handles database operations for regulatory documents and
// their statute references
type DocumentStore struct {
	db *sql.DB
}

// NewDocumentStore creates a new DocumentStore
func NewDocumentStore(db *sql.DB) *DocumentStore {
	return &DocumentStore{db: db}
}

// InsertOrGet resolves a document by its (state, source_index, type)
// identity, inserting it if absent. Existing documents are never updated:
// content is immutable once stored, so a re-run with truncated fields
// cannot clobber richer data.
func (s *DocumentStore) InsertOrGet(ctx context.Context, d *model.RegulatoryDocument) error {
	insertQuery := `
		INSERT INTO regulatory_documents (source_index, type, state, title, url, url_type, content)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (state, source_index, type) DO NOTHING
		RETURNING id, created_at
	`

	err := s.db.QueryRowContext(ctx, insertQuery,
		d.SourceIndex,
		d.Type,
		d.State,
		d.Title,
		d.URL,
		d.URLType,
		d.Content,
	).Scan(&d.ID, &d.CreatedAt)
	if err == nil {
		return nil
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("failed to insert document %d: %w", d.SourceIndex, err)
	}

	// Conflict: the document already exists, reuse its identifier
	selectQuery := `
		SELECT id, created_at FROM regulatory_documents
		WHERE state IS NOT DISTINCT FROM $1 AND source_index = $2 AND type = $3
	`
	err = s.db.QueryRowContext(ctx, selectQuery, d.State, d.SourceIndex, d.Type).Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to resolve document %d: %w", d.SourceIndex, err)
	}

	return nil
}

// GetByIdentity retrieves a document by its (state, source_index, type) triple
func (s *DocumentStore) GetByIdentity(ctx context.Context, state sql.NullString, sourceIndex int, docType string) (*model.RegulatoryDocument, error) {
	query := `
		SELECT id, source_index, type, state, title, url, url_type, content, created_at
		FROM regulatory_documents
		WHERE state IS NOT DISTINCT FROM $1 AND source_index = $2 AND type = $3
	`

	var d model.RegulatoryDocument
	err := s.db.QueryRowContext(ctx, query, state, sourceIndex, docType).Scan(
		&d.ID,
		&d.SourceIndex,
		&d.Type,
		&d.State,
		&d.Title,
		&d.URL,
		&d.URLType,
		&d.Content,
		&d.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %d: %w", sourceIndex, err)
	}

	return &d, nil
}

// UpsertStatuteReference inserts or updates the statute reference for a
// document. A document carries at most one reference row; re-imports
// replace the citation fields in place.
func (s *DocumentStore) UpsertStatuteReference(ctx context.Context, ref *model.StatuteReference) error {
	query := `
		INSERT INTO statute_references (document_id, usc_citations, cfr_citations,
		                                public_laws, acts, state_title, state_section)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (document_id) DO UPDATE SET
			usc_citations = EXCLUDED.usc_citations,
			cfr_citations = EXCLUDED.cfr_citations,
			public_laws = EXCLUDED.public_laws,
			acts = EXCLUDED.acts,
			state_title = EXCLUDED.state_title,
			state_section = EXCLUDED.state_section
		RETURNING id
	`

	err := s.db.QueryRowContext(ctx, query,
		ref.DocumentID,
		ref.USCCitations,
		ref.CFRCitations,
		ref.PublicLaws,
		ref.Acts,
		ref.StateTitle,
		ref.StateSection,
	).Scan(&ref.ID)

	if err != nil {
		return fmt.Errorf("failed to upsert statute reference for document %d: %w", ref.DocumentID, err)
	}

	return nil
}

// GetStatuteReference retrieves the statute reference for a document, or
// nil when the document has none
func (s *DocumentStore) GetStatuteReference(ctx context.Context, documentID int) (*model.StatuteReference, error) {
	query := `
		SELECT id, document_id, usc_citations, cfr_citations, public_laws, acts,
		       state_title, state_section, created_at
		FROM statute_references
		WHERE document_id = $1
	`

	var ref model.StatuteReference
	err := s.db.QueryRowContext(ctx, query, documentID).Scan(
		&ref.ID,
		&ref.DocumentID,
		&ref.USCCitations,
		&ref.CFRCitations,
		&ref.PublicLaws,
		&ref.Acts,
		&ref.StateTitle,
		&ref.StateSection,
		&ref.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get statute reference for document %d: %w", documentID, err)
	}

	return &ref, nil
}
