package service

import (
	"context"
	"database/sql"
	"fmt"
)

// MetricsService computes read-only aggregates over the imported data
type MetricsService struct {
	db *sql.DB
}

// NewMetricsService creates a new MetricsService
func NewMetricsService(db *sql.DB) *MetricsService {
	return &MetricsService{db: db}
}

// SystemMetrics summarizes the state of the database after a migration run
type SystemMetrics struct {
	TotalDocuments   int
	TotalAnalyses    int
	CurrentAnalyses  int
	TotalFlags       int
	AverageSeverity  float64
	HighSeverityDocs int
	SeverityByType   []TypeSeverity
	TopCategories    []CategoryCount
}

// TypeSeverity is the average max severity for one document type
type TypeSeverity struct {
	Type            string
	Documents       int
	AverageSeverity float64
}

// CategoryCount is the flag count and average severity for one category
type CategoryCount struct {
	Category        string
	Count           int
	AverageSeverity float64
}

// Calculate computes the post-import report. Nothing is written; the
// queries run against the tables and the latest_analyses view.
func (m *MetricsService) Calculate(ctx context.Context) (*SystemMetrics, error) {
	metrics := &SystemMetrics{}

	countQuery := `
		SELECT
			(SELECT COUNT(*) FROM regulatory_documents),
			(SELECT COUNT(*) FROM analyses),
			(SELECT COUNT(*) FROM analyses WHERE is_current),
			(SELECT COUNT(*) FROM red_flags)
	`
	err := m.db.QueryRowContext(ctx, countQuery).Scan(
		&metrics.TotalDocuments,
		&metrics.TotalAnalyses,
		&metrics.CurrentAnalyses,
		&metrics.TotalFlags,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate counts: %w", err)
	}

	severityQuery := `
		SELECT COALESCE(AVG(max_severity), 0)
		FROM analyses
		WHERE is_current AND max_severity IS NOT NULL
	`
	if err := m.db.QueryRowContext(ctx, severityQuery).Scan(&metrics.AverageSeverity); err != nil {
		return nil, fmt.Errorf("failed to calculate average severity: %w", err)
	}

	highQuery := `SELECT COUNT(*) FROM latest_analyses WHERE max_severity >= 9`
	if err := m.db.QueryRowContext(ctx, highQuery).Scan(&metrics.HighSeverityDocs); err != nil {
		return nil, fmt.Errorf("failed to count high severity documents: %w", err)
	}

	byType, err := m.severityByType(ctx)
	if err != nil {
		return nil, err
	}
	metrics.SeverityByType = byType

	categories, err := m.topCategories(ctx)
	if err != nil {
		return nil, err
	}
	metrics.TopCategories = categories

	return metrics, nil
}

// severityByType groups current analyses by document type
func (m *MetricsService) severityByType(ctx context.Context) ([]TypeSeverity, error) {
	query := `
		SELECT type, COUNT(*), COALESCE(AVG(max_severity), 0)
		FROM latest_analyses
		GROUP BY type
		ORDER BY type
	`

	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate severity by type: %w", err)
	}
	defer rows.Close()

	var result []TypeSeverity
	for rows.Next() {
		var ts TypeSeverity
		if err := rows.Scan(&ts.Type, &ts.Documents, &ts.AverageSeverity); err != nil {
			return nil, fmt.Errorf("failed to scan severity by type: %w", err)
		}
		result = append(result, ts)
	}

	return result, rows.Err()
}

// topCategories ranks flag categories across current analyses
func (m *MetricsService) topCategories(ctx context.Context) ([]CategoryCount, error) {
	query := `
		SELECT f.category, COUNT(*), AVG(f.severity)
		FROM red_flags f
		INNER JOIN analyses a ON a.id = f.analysis_id
		WHERE a.is_current
		GROUP BY f.category
		ORDER BY COUNT(*) DESC, f.category
		LIMIT 10
	`

	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate top categories: %w", err)
	}
	defer rows.Close()

	var result []CategoryCount
	for rows.Next() {
		var cc CategoryCount
		if err := rows.Scan(&cc.Category, &cc.Count, &cc.AverageSeverity); err != nil {
			return nil, fmt.Errorf("failed to scan category count: %w", err)
		}
		result = append(result, cc)
	}

	return result, rows.Err()
}
