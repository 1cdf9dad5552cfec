package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmorgan/regflag/internal/model"
	"github.com/lib/pq"
)

// AnalysisStore handles database operations for analyses and their red flags
type AnalysisStore struct {
	db *sql.DB
}

// NewAnalysisStore creates a new AnalysisStore
func NewAnalysisStore(db *sql.DB) *AnalysisStore {
	return &AnalysisStore{db: db}
}

// ImportAnalysis demotes any current analysis for the document and inserts
// the new one with its flags, all in a single transaction. A flag that
// violates the severity constraint rolls back the whole analysis, so a row
// never commits partially.
func (s *AnalysisStore) ImportAnalysis(ctx context.Context, a *model.Analysis, flags []model.RedFlag) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	demoteQuery := `
		UPDATE analyses SET is_current = FALSE
		WHERE document_id = $1 AND is_current = TRUE
	`
	if _, err := tx.ExecContext(ctx, demoteQuery, a.DocumentID); err != nil {
		return fmt.Errorf("failed to demote analyses for document %d: %w", a.DocumentID, err)
	}

	insertQuery := `
		INSERT INTO analyses (document_id, model_version, has_implementation_issues,
		                      requires_technical_review, has_reporting_requirement,
		                      overall_complexity, summary, max_severity, num_flags, is_current)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, TRUE)
		RETURNING id, analysis_timestamp
	`
	err = tx.QueryRowContext(ctx, insertQuery,
		a.DocumentID,
		a.ModelVersion,
		a.HasImplementationIssues,
		a.RequiresTechnicalReview,
		a.HasReportingRequirement,
		a.OverallComplexity,
		a.Summary,
		a.MaxSeverity,
		a.NumFlags,
	).Scan(&a.ID, &a.AnalysisTimestamp)
	if err != nil {
		return fmt.Errorf("failed to insert analysis for document %d: %w", a.DocumentID, err)
	}
	a.IsCurrent = true

	flagQuery := `
		INSERT INTO red_flags (analysis_id, category, explanation, severity, complexity,
		                       matched_phrases, implementation_approach, effort_estimate,
		                       text_examples)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`
	for i := range flags {
		f := &flags[i]
		f.AnalysisID = a.ID
		err := tx.QueryRowContext(ctx, flagQuery,
			f.AnalysisID,
			f.Category,
			f.Explanation,
			f.Severity,
			f.Complexity,
			pq.Array(f.MatchedPhrases),
			f.ImplementationApproach,
			f.EffortEstimate,
			pq.Array(f.TextExamples),
		).Scan(&f.ID)
		if err != nil {
			return fmt.Errorf("failed to insert red flag %q for analysis %d: %w", f.Category, a.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetFlags retrieves the red flags for an analysis, worst first
func (s *AnalysisStore) GetFlags(ctx context.Context, analysisID int) ([]model.RedFlag, error) {
	query := `
		SELECT id, analysis_id, category, explanation, severity, complexity,
		       matched_phrases, implementation_approach, effort_estimate,
		       text_examples, created_at
		FROM red_flags
		WHERE analysis_id = $1
		ORDER BY severity DESC, category
	`

	rows, err := s.db.QueryContext(ctx, query, analysisID)
	if err != nil {
		return nil, fmt.Errorf("failed to get flags for analysis %d: %w", analysisID, err)
	}
	defer rows.Close()

	var flags []model.RedFlag
	for rows.Next() {
		var f model.RedFlag
		err := rows.Scan(
			&f.ID,
			&f.AnalysisID,
			&f.Category,
			&f.Explanation,
			&f.Severity,
			&f.Complexity,
			pq.Array(&f.MatchedPhrases),
			&f.ImplementationApproach,
			&f.EffortEstimate,
			pq.Array(&f.TextExamples),
			&f.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan red flag: %w", err)
		}
		flags = append(flags, f)
	}

	return flags, rows.Err()
}

// GetLatestForDocument reads the latest_analyses view for one document
func (s *AnalysisStore) GetLatestForDocument(ctx context.Context, documentID int) (*model.LatestAnalysis, error) {
	query := `
		SELECT document_id, state, source_index, type, title, url, url_type,
		       analysis_id, analysis_timestamp, model_version,
		       has_implementation_issues, requires_technical_review,
		       has_reporting_requirement, overall_complexity, summary,
		       max_severity, num_flags
		FROM latest_analyses
		WHERE document_id = $1
	`

	var la model.LatestAnalysis
	err := s.db.QueryRowContext(ctx, query, documentID).Scan(
		&la.DocumentID,
		&la.State,
		&la.SourceIndex,
		&la.Type,
		&la.Title,
		&la.URL,
		&la.URLType,
		&la.AnalysisID,
		&la.AnalysisTimestamp,
		&la.ModelVersion,
		&la.HasImplementationIssues,
		&la.RequiresTechnicalReview,
		&la.HasReportingRequirement,
		&la.OverallComplexity,
		&la.Summary,
		&la.MaxSeverity,
		&la.NumFlags,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest analysis for document %d: %w", documentID, err)
	}

	return &la, nil
}
