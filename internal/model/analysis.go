package model

import (
	"database/sql"
	"time"
)

// Analysis represents one analysis run against a document. At most one
// analysis per document is current; older runs are demoted, never deleted.
type Analysis struct {
	ID                      int
	DocumentID              int
	AnalysisTimestamp       time.Time
	ModelVersion            sql.NullString
	HasImplementationIssues bool
	RequiresTechnicalReview bool
	HasReportingRequirement bool
	OverallComplexity       sql.NullString // HIGH, MEDIUM or LOW
	Summary                 sql.NullString
	MaxSeverity             sql.NullInt64 // NULL when the analysis carries no flags
	NumFlags                int
	IsCurrent               bool
}

// RedFlag represents one discrete issue found during an analysis
type RedFlag struct {
	ID                     int
	AnalysisID             int
	Category               string
	Explanation            sql.NullString
	Severity               int // 1-10, enforced by the schema
	Complexity             sql.NullString
	MatchedPhrases         []string
	ImplementationApproach sql.NullString
	EffortEstimate         sql.NullString
	TextExamples           []string
	CreatedAt              time.Time
}

// AnalysisRow is one decoded row of a red_flag_analysis CSV export
type AnalysisRow struct {
	SourceIndex             int
	Title                   string
	URL                     string
	URLType                 string
	Content                 string
	HasImplementationIssues bool
	RequiresTechnicalReview bool
	HasReportingRequirement bool
	OverallComplexity       string
	Summary                 string
	ModelVersion            string
	RedFlagsJSON            string
}

// FlagRecord is one flag entry parsed from a row's embedded flag list
type FlagRecord struct {
	Category               string   `json:"category"`
	Explanation            string   `json:"explanation"`
	Severity               int      `json:"severity"`
	Complexity             string   `json:"complexity"`
	MatchedPhrases         []string `json:"matched_phrases"`
	ImplementationApproach string   `json:"implementation_approach"`
	EffortEstimate         string   `json:"effort_estimate"`
	TextExamples           []string `json:"text_examples"`
}

// LatestAnalysis is one row of the latest_analyses view: a document joined
// with its current analysis, or NULL analysis fields when none exists
type LatestAnalysis struct {
	DocumentID              int
	State                   sql.NullString
	SourceIndex             int
	Type                    string
	Title                   string
	URL                     sql.NullString
	URLType                 sql.NullString
	AnalysisID              sql.NullInt64
	AnalysisTimestamp       sql.NullTime
	ModelVersion            sql.NullString
	HasImplementationIssues sql.NullBool
	RequiresTechnicalReview sql.NullBool
	HasReportingRequirement sql.NullBool
	OverallComplexity       sql.NullString
	Summary                 sql.NullString
	MaxSeverity             sql.NullInt64
	NumFlags                sql.NullInt64
}
