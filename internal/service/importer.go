package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmorgan/regflag/internal/model"
	"go.uber.org/zap"
)

// DocumentStore is the document persistence the Importer needs
type DocumentStore interface {
	InsertOrGet(ctx context.Context, d *model.RegulatoryDocument) error
	GetByIdentity(ctx context.Context, state sql.NullString, sourceIndex int, docType string) (*model.RegulatoryDocument, error)
	UpsertStatuteReference(ctx context.Context, ref *model.StatuteReference) error
}

// AnalysisStore is the analysis persistence the Importer needs
type AnalysisStore interface {
	ImportAnalysis(ctx context.Context, a *model.Analysis, flags []model.RedFlag) error
}

// MigrationStats tracks analysis migration statistics
type MigrationStats struct {
	Files       int
	FilesFailed int
	Total       int
	Imported    int
	Skipped     int
	Failed      int
}

// StatuteStats tracks statute reference migration statistics
type StatuteStats struct {
	Total    int
	Imported int
	Missing  int
	Skipped  int
	Failed   int
}

// ImporterOptions carries the fixed attributes a migration run applies to
// every row: the exports themselves don't encode jurisdiction or document
// type, those come from the operator.
type ImporterOptions struct {
	State        string
	DocType      string
	ModelVersion string
}

// Importer migrates analyzer CSV exports into the normalized schema
type Importer struct {
	source    *CSVSource
	parser    *FlagParser
	documents DocumentStore
	analyses  AnalysisStore
	opts      ImporterOptions
	log       *zap.Logger
}

// NewImporter creates a new Importer
func NewImporter(source *CSVSource, parser *FlagParser, documents DocumentStore, analyses AnalysisStore, opts ImporterOptions, log *zap.Logger) *Importer {
	return &Importer{
		source:    source,
		parser:    parser,
		documents: documents,
		analyses:  analyses,
		opts:      opts,
		log:       log,
	}
}

// Migrate discovers all analysis exports and imports them row by row.
// A failed row is logged and skipped; the batch keeps moving.
func (i *Importer) Migrate(ctx context.Context) (*MigrationStats, error) {
	stats := &MigrationStats{}

	files, err := i.source.DiscoverAnalysisFiles()
	if err != nil {
		return nil, fmt.Errorf("failed to discover analysis files: %w", err)
	}

	if len(files) == 0 {
		i.log.Warn("no analysis export files found", zap.String("pattern", analysisPattern))
		return stats, nil
	}

	i.log.Info("found analysis export files", zap.Int("count", len(files)))

	for _, file := range files {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		if err := i.migrateFile(ctx, file, stats); err != nil {
			if ctx.Err() != nil {
				return stats, err
			}
			i.log.Error("failed to read analysis export", zap.String("file", file), zap.Error(err))
			stats.FilesFailed++
		}
	}

	return stats, nil
}

// migrateFile imports a single analysis export
func (i *Importer) migrateFile(ctx context.Context, file string, stats *MigrationStats) error {
	i.log.Info("migrating analysis export", zap.String("file", file))

	rows, rowErrs, err := i.source.ReadAnalysisRows(file)
	if err != nil {
		return err
	}
	stats.Files++

	for _, rowErr := range rowErrs {
		i.log.Warn("skipping malformed row",
			zap.String("file", rowErr.File),
			zap.Int("row", rowErr.Row),
			zap.Error(rowErr.Err),
		)
		stats.Total++
		stats.Skipped++
	}

	for _, row := range rows {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		stats.Total++

		flags, err := i.parser.Parse(row.RedFlagsJSON)
		if err != nil {
			i.log.Warn("skipping row with unparseable flag list",
				zap.String("file", file),
				zap.Int("source_index", row.SourceIndex),
				zap.Error(err),
			)
			stats.Skipped++
			continue
		}

		if err := i.importRow(ctx, row, flags); err != nil {
			i.log.Error("failed to import row",
				zap.String("file", file),
				zap.Int("source_index", row.SourceIndex),
				zap.String("title", truncate(row.Title, 50)),
				zap.Error(err),
			)
			stats.Failed++
			continue
		}

		stats.Imported++
		if stats.Imported%25 == 0 {
			i.log.Info("migration progress", zap.Int("imported", stats.Imported))
		}
	}

	return nil
}

// importRow writes one CSV row into the schema: resolve the document,
// then demote-and-insert its new current analysis with all flags.
func (i *Importer) importRow(ctx context.Context, row model.AnalysisRow, flags []model.FlagRecord) error {
	doc := &model.RegulatoryDocument{
		SourceIndex: row.SourceIndex,
		Type:        i.opts.DocType,
		State:       nullString(i.opts.State),
		Title:       row.Title,
		URL:         nullString(row.URL),
		URLType:     nullString(row.URLType),
		Content:     nullString(row.Content),
	}
	if err := i.documents.InsertOrGet(ctx, doc); err != nil {
		return fmt.Errorf("failed to resolve document: %w", err)
	}

	modelVersion := row.ModelVersion
	if modelVersion == "" {
		modelVersion = i.opts.ModelVersion
	}

	// num_flags and max_severity come from the parsed flag list, not the
	// export's own columns, so they can never disagree with the flag rows.
	analysis := &model.Analysis{
		DocumentID:              doc.ID,
		ModelVersion:            nullString(modelVersion),
		HasImplementationIssues: row.HasImplementationIssues,
		RequiresTechnicalReview: row.RequiresTechnicalReview,
		HasReportingRequirement: row.HasReportingRequirement,
		OverallComplexity:       nullString(row.OverallComplexity),
		Summary:                 nullString(row.Summary),
		NumFlags:                len(flags),
	}
	if max, ok := MaxSeverity(flags); ok {
		analysis.MaxSeverity = sql.NullInt64{Int64: int64(max), Valid: true}
	}

	redFlags := make([]model.RedFlag, len(flags))
	for idx, f := range flags {
		redFlags[idx] = model.RedFlag{
			Category:               f.Category,
			Explanation:            nullString(f.Explanation),
			Severity:               f.Severity,
			Complexity:             nullString(f.Complexity),
			MatchedPhrases:         f.MatchedPhrases,
			ImplementationApproach: nullString(f.ImplementationApproach),
			EffortEstimate:         nullString(f.EffortEstimate),
			TextExamples:           f.TextExamples,
		}
	}

	if err := i.analyses.ImportAnalysis(ctx, analysis, redFlags); err != nil {
		return fmt.Errorf("failed to import analysis: %w", err)
	}

	return nil
}

// MigrateStatuteReferences imports the statute reference export if one
// exists. References resolve strictly by document identity; rows for
// unknown documents are reported and skipped.
func (i *Importer) MigrateStatuteReferences(ctx context.Context) (*StatuteStats, error) {
	stats := &StatuteStats{}

	file := i.source.StatuteFile()
	if file == "" {
		i.log.Info("no statute reference export found", zap.String("file", statuteFileName))
		return stats, nil
	}

	i.log.Info("migrating statute references", zap.String("file", file))

	rows, rowErrs, err := i.source.ReadStatuteRows(file)
	if err != nil {
		return nil, err
	}

	for _, rowErr := range rowErrs {
		i.log.Warn("skipping malformed statute row",
			zap.String("file", rowErr.File),
			zap.Int("row", rowErr.Row),
			zap.Error(rowErr.Err),
		)
		stats.Skipped++
	}

	for _, row := range rows {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		stats.Total++

		doc, err := i.documents.GetByIdentity(ctx, nullString(i.opts.State), row.SourceIndex, i.opts.DocType)
		if err != nil {
			i.log.Error("failed to resolve document for statute reference",
				zap.Int("source_index", row.SourceIndex),
				zap.Error(err),
			)
			stats.Failed++
			continue
		}
		if doc == nil {
			i.log.Warn("document not found for statute reference",
				zap.Int("source_index", row.SourceIndex),
				zap.String("title", truncate(row.Title, 50)),
			)
			stats.Missing++
			continue
		}

		ref := &model.StatuteReference{
			DocumentID:   doc.ID,
			USCCitations: nullString(row.USCCitations),
			CFRCitations: nullString(row.CFRCitations),
			PublicLaws:   nullString(row.PublicLaws),
			Acts:         nullString(row.Acts),
			StateTitle:   nullString(row.StateTitle),
			StateSection: nullString(row.StateSection),
		}
		if err := i.documents.UpsertStatuteReference(ctx, ref); err != nil {
			i.log.Error("failed to upsert statute reference",
				zap.Int("document_id", doc.ID),
				zap.Error(err),
			)
			stats.Failed++
			continue
		}

		stats.Imported++
	}

	return stats, nil
}

// PrintSummary logs the migration statistics
func (i *Importer) PrintSummary(stats *MigrationStats) {
	i.log.Info("migration summary",
		zap.Int("files", stats.Files),
		zap.Int("files_failed", stats.FilesFailed),
		zap.Int("rows", stats.Total),
		zap.Int("imported", stats.Imported),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
	)
}

// PrintStatuteSummary logs the statute reference migration statistics
func (i *Importer) PrintStatuteSummary(stats *StatuteStats) {
	i.log.Info("statute reference summary",
		zap.Int("rows", stats.Total),
		zap.Int("imported", stats.Imported),
		zap.Int("missing", stats.Missing),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
	)
}

// nullString maps empty strings to SQL NULL
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
