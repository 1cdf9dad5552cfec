package service

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/jmorgan/regflag/internal/model"
	"go.uber.org/zap"
)

// fakeDocumentStore mimics the document table: unique on identity,
// immutable after insert, one statute reference per document.
type fakeDocumentStore struct {
	nextID   int
	docs     map[string]*model.RegulatoryDocument
	statutes map[int]*model.StatuteReference
}

func newFakeDocumentStore() *fakeDocumentStore {
	return &fakeDocumentStore{
		docs:     make(map[string]*model.RegulatoryDocument),
		statutes: make(map[int]*model.StatuteReference),
	}
}

func identityKey(state sql.NullString, sourceIndex int, docType string) string {
	return fmt.Sprintf("%v|%d|%s", state, sourceIndex, docType)
}

func (f *fakeDocumentStore) InsertOrGet(ctx context.Context, d *model.RegulatoryDocument) error {
	key := identityKey(d.State, d.SourceIndex, d.Type)
	if existing, ok := f.docs[key]; ok {
		d.ID = existing.ID
		return nil
	}
	f.nextID++
	d.ID = f.nextID
	stored := *d
	f.docs[key] = &stored
	return nil
}

func (f *fakeDocumentStore) GetByIdentity(ctx context.Context, state sql.NullString, sourceIndex int, docType string) (*model.RegulatoryDocument, error) {
	if d, ok := f.docs[identityKey(state, sourceIndex, docType)]; ok {
		found := *d
		return &found, nil
	}
	return nil, nil
}

func (f *fakeDocumentStore) UpsertStatuteReference(ctx context.Context, ref *model.StatuteReference) error {
	if existing, ok := f.statutes[ref.DocumentID]; ok {
		ref.ID = existing.ID
	} else {
		f.nextID++
		ref.ID = f.nextID
	}
	stored := *ref
	f.statutes[ref.DocumentID] = &stored
	return nil
}

// fakeAnalysisStore mimics the analyses and red_flags tables, including
// the severity check constraint and the demote-then-insert transaction.
type fakeAnalysisStore struct {
	nextID   int
	analyses []*model.Analysis
	flags    map[int][]model.RedFlag
}

func newFakeAnalysisStore() *fakeAnalysisStore {
	return &fakeAnalysisStore{flags: make(map[int][]model.RedFlag)}
}

func (f *fakeAnalysisStore) ImportAnalysis(ctx context.Context, a *model.Analysis, flags []model.RedFlag) error {
	for _, fl := range flags {
		if fl.Severity < 1 || fl.Severity > 10 {
			return fmt.Errorf("red_flags severity check constraint violated: %d", fl.Severity)
		}
	}

	for _, existing := range f.analyses {
		if existing.DocumentID == a.DocumentID {
			existing.IsCurrent = false
		}
	}

	f.nextID++
	a.ID = f.nextID
	a.IsCurrent = true
	stored := *a
	f.analyses = append(f.analyses, &stored)

	for i := range flags {
		flags[i].AnalysisID = a.ID
	}
	f.flags[a.ID] = append([]model.RedFlag(nil), flags...)
	return nil
}

func (f *fakeAnalysisStore) forDocument(documentID int) []*model.Analysis {
	var result []*model.Analysis
	for _, a := range f.analyses {
		if a.DocumentID == documentID {
			result = append(result, a)
		}
	}
	return result
}

func newTestImporter(dir string, docs *fakeDocumentStore, analyses *fakeAnalysisStore) *Importer {
	return NewImporter(
		NewCSVSource(dir),
		NewFlagParser(),
		docs,
		analyses,
		ImporterOptions{State: "NY", DocType: "regulation", ModelVersion: "test-model"},
		zap.NewNop(),
	)
}

func analysisRecord(sourceIndex, title, redFlags string) []string {
	return []string{sourceIndex, title, "https://example.gov/" + sourceIndex,
		"regulation_text", "Some regulation text.", "True", "False", "False",
		"MEDIUM", "A summary", redFlags}
}

func TestMigrate_ImportsRowWithFlags(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, filepath.Join(dir, "red_flag_analysis_1.csv"), [][]string{
		analysisHeader,
		analysisRecord("5", "Rule 5",
			`[{"category": "a", "severity": 3}, {"category": "b", "severity": 9}]`),
	})

	docs := newFakeDocumentStore()
	analyses := newFakeAnalysisStore()
	importer := newTestImporter(dir, docs, analyses)

	stats, err := importer.Migrate(context.Background())
	if err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if stats.Imported != 1 || stats.Failed != 0 || stats.Skipped != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	if len(docs.docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs.docs))
	}
	if len(analyses.analyses) != 1 {
		t.Fatalf("expected 1 analysis, got %d", len(analyses.analyses))
	}

	a := analyses.analyses[0]
	if !a.IsCurrent {
		t.Error("expected analysis to be current")
	}
	if a.NumFlags != 2 {
		t.Errorf("expected num_flags 2, got %d", a.NumFlags)
	}
	if !a.MaxSeverity.Valid || a.MaxSeverity.Int64 != 9 {
		t.Errorf("expected max_severity 9, got %+v", a.MaxSeverity)
	}
	if !a.ModelVersion.Valid || a.ModelVersion.String != "test-model" {
		t.Errorf("unexpected model version: %+v", a.ModelVersion)
	}
	if len(analyses.flags[a.ID]) != 2 {
		t.Errorf("expected 2 red flags, got %d", len(analyses.flags[a.ID]))
	}
}

func TestMigrate_ReimportDemotesPrevious(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "red_flag_analysis_1.csv")
	writeCSV(t, path, [][]string{
		analysisHeader,
		analysisRecord("5", "Rule 5",
			`[{"category": "a", "severity": 3}, {"category": "b", "severity": 9}]`),
	})

	docs := newFakeDocumentStore()
	analyses := newFakeAnalysisStore()
	importer := newTestImporter(dir, docs, analyses)

	if _, err := importer.Migrate(context.Background()); err != nil {
		t.Fatalf("first Migrate failed: %v", err)
	}

	// Same document, one more flag this time
	writeCSV(t, path, [][]string{
		analysisHeader,
		analysisRecord("5", "Rule 5",
			`[{"category": "a", "severity": 3}, {"category": "b", "severity": 9},
			  {"category": "c", "severity": 10}]`),
	})
	if _, err := importer.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}

	if len(docs.docs) != 1 {
		t.Fatalf("re-import duplicated the document: %d rows", len(docs.docs))
	}

	docAnalyses := analyses.forDocument(1)
	if len(docAnalyses) != 2 {
		t.Fatalf("expected 2 analyses, got %d", len(docAnalyses))
	}

	var current *model.Analysis
	currentCount := 0
	for _, a := range docAnalyses {
		if a.IsCurrent {
			current = a
			currentCount++
		}
	}
	if currentCount != 1 {
		t.Fatalf("expected exactly 1 current analysis, got %d", currentCount)
	}
	if current.NumFlags != 3 {
		t.Errorf("expected num_flags 3, got %d", current.NumFlags)
	}
	if !current.MaxSeverity.Valid || current.MaxSeverity.Int64 != 10 {
		t.Errorf("expected max_severity 10, got %+v", current.MaxSeverity)
	}
}

func TestMigrate_ZeroFlags(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, filepath.Join(dir, "red_flag_analysis_1.csv"), [][]string{
		analysisHeader,
		analysisRecord("8", "Quiet Rule", "[]"),
	})

	docs := newFakeDocumentStore()
	analyses := newFakeAnalysisStore()
	importer := newTestImporter(dir, docs, analyses)

	stats, err := importer.Migrate(context.Background())
	if err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if stats.Imported != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	a := analyses.analyses[0]
	if a.NumFlags != 0 {
		t.Errorf("expected num_flags 0, got %d", a.NumFlags)
	}
	if a.MaxSeverity.Valid {
		t.Errorf("expected NULL max_severity, got %+v", a.MaxSeverity)
	}
}

func TestMigrate_UnparseableFlagListSkipsRow(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, filepath.Join(dir, "red_flag_analysis_1.csv"), [][]string{
		analysisHeader,
		analysisRecord("1", "Broken Rule", "not json"),
		analysisRecord("2", "Fine Rule", `[{"category": "a", "severity": 4}]`),
	})

	docs := newFakeDocumentStore()
	analyses := newFakeAnalysisStore()
	importer := newTestImporter(dir, docs, analyses)

	stats, err := importer.Migrate(context.Background())
	if err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if stats.Skipped != 1 || stats.Imported != 1 || stats.Failed != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if len(analyses.analyses) != 1 {
		t.Fatalf("expected 1 analysis, got %d", len(analyses.analyses))
	}
}

func TestMigrate_SeverityOutOfRangeFailsRow(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, filepath.Join(dir, "red_flag_analysis_1.csv"), [][]string{
		analysisHeader,
		analysisRecord("1", "Too Severe", `[{"category": "a", "severity": 11}]`),
		analysisRecord("2", "Fine Rule", `[{"category": "b", "severity": 10}]`),
	})

	docs := newFakeDocumentStore()
	analyses := newFakeAnalysisStore()
	importer := newTestImporter(dir, docs, analyses)

	stats, err := importer.Migrate(context.Background())
	if err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if stats.Failed != 1 || stats.Imported != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	// The rejected row must not leave an analysis behind
	if len(analyses.analyses) != 1 {
		t.Fatalf("expected 1 analysis, got %d", len(analyses.analyses))
	}
	if analyses.analyses[0].NumFlags != 1 {
		t.Errorf("wrong analysis survived: %+v", analyses.analyses[0])
	}
}

func TestMigrateStatuteReferences_UpsertNoDuplicates(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, filepath.Join(dir, "red_flag_analysis_1.csv"), [][]string{
		analysisHeader,
		analysisRecord("5", "Rule 5", "[]"),
	})

	statuteHeader := []string{"source_index", "title", "usc_citations",
		"cfr_citations", "public_laws", "acts", "state_title", "state_section"}
	statutePath := filepath.Join(dir, "federal_statute_references.csv")
	writeCSV(t, statutePath, [][]string{
		statuteHeader,
		{"5", "Rule 5", "42 U.S.C. 1396", "", "", "", "", ""},
		{"99", "Unknown Rule", "10 U.S.C. 101", "", "", "", "", ""},
	})

	docs := newFakeDocumentStore()
	analyses := newFakeAnalysisStore()
	importer := newTestImporter(dir, docs, analyses)

	if _, err := importer.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	stats, err := importer.MigrateStatuteReferences(context.Background())
	if err != nil {
		t.Fatalf("MigrateStatuteReferences failed: %v", err)
	}
	if stats.Imported != 1 || stats.Missing != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if len(docs.statutes) != 1 {
		t.Fatalf("expected 1 statute reference, got %d", len(docs.statutes))
	}

	// Second import with new citations must update in place
	writeCSV(t, statutePath, [][]string{
		statuteHeader,
		{"5", "Rule 5", "42 U.S.C. 1397", "45 CFR 96", "", "", "", ""},
	})
	if _, err := importer.MigrateStatuteReferences(context.Background()); err != nil {
		t.Fatalf("second MigrateStatuteReferences failed: %v", err)
	}
	if len(docs.statutes) != 1 {
		t.Fatalf("re-import duplicated the statute reference: %d rows", len(docs.statutes))
	}

	ref := docs.statutes[1]
	if !ref.USCCitations.Valid || ref.USCCitations.String != "42 U.S.C. 1397" {
		t.Errorf("expected updated citations, got %+v", ref.USCCitations)
	}
	if !ref.CFRCitations.Valid || ref.CFRCitations.String != "45 CFR 96" {
		t.Errorf("expected updated CFR citations, got %+v", ref.CFRCitations)
	}
}
