package service

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/jmorgan/regflag/internal/model"
)

const (
	analysisPattern = "red_flag_analysis_*.csv"
	statuteFileName = "federal_statute_references.csv"
)

// RowError reports a row that could not be decoded. Malformed rows are
// skipped, not fatal, so they travel separately from hard errors.
type RowError struct {
	File string
	Row  int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("%s row %d: %v", e.File, e.Row, e.Err)
}

// CSVSource reads analyzer CSV exports from a directory
type CSVSource struct {
	dir string
}

// NewCSVSource creates a CSVSource rooted at dir
func NewCSVSource(dir string) *CSVSource {
	return &CSVSource{dir: dir}
}

// DiscoverAnalysisFiles returns the analysis export files in sorted order.
// The analyzer names its exports red_flag_analysis_<timestamp>.csv.
func (c *CSVSource) DiscoverAnalysisFiles() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(c.dir, analysisPattern))
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", c.dir, err)
	}
	sort.Strings(files)
	return files, nil
}

// StatuteFile returns the path of the statute reference export, or "" when
// no such file exists
func (c *CSVSource) StatuteFile() string {
	path := filepath.Join(c.dir, statuteFileName)
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// ReadAnalysisRows decodes an analysis export. Rows that cannot be decoded
// are returned as RowErrors alongside the good rows so the caller can
// report them and keep going.
func (c *CSVSource) ReadAnalysisRows(path string) ([]model.AnalysisRow, []*RowError, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}

	cols := columnIndex(header)
	required := []string{
		"source_index", "title", "url", "url_type", "content",
		"has_implementation_issues", "requires_technical_review",
		"has_reporting_requirement", "overall_complexity", "summary",
		"red_flags",
	}
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			return nil, nil, fmt.Errorf("%s: missing required column %q", path, name)
		}
	}

	var result []model.AnalysisRow
	var rowErrs []*RowError

	for rowNum := 1; ; rowNum++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			rowErrs = append(rowErrs, &RowError{File: path, Row: rowNum, Err: err})
			continue
		}

		row, err := decodeAnalysisRow(record, cols)
		if err != nil {
			rowErrs = append(rowErrs, &RowError{File: path, Row: rowNum, Err: err})
			continue
		}
		result = append(result, row)
	}

	return result, rowErrs, nil
}

// ReadStatuteRows decodes a statute reference export
func (c *CSVSource) ReadStatuteRows(path string) ([]model.StatuteRow, []*RowError, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}

	cols := columnIndex(header)
	if _, ok := cols["source_index"]; !ok {
		return nil, nil, fmt.Errorf("%s: missing required column %q", path, "source_index")
	}

	var result []model.StatuteRow
	var rowErrs []*RowError

	for rowNum := 1; ; rowNum++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			rowErrs = append(rowErrs, &RowError{File: path, Row: rowNum, Err: err})
			continue
		}

		sourceIndex, err := parseIndex(field(record, cols, "source_index"))
		if err != nil {
			rowErrs = append(rowErrs, &RowError{File: path, Row: rowNum, Err: err})
			continue
		}

		result = append(result, model.StatuteRow{
			SourceIndex:  sourceIndex,
			Title:        field(record, cols, "title"),
			USCCitations: field(record, cols, "usc_citations"),
			CFRCitations: field(record, cols, "cfr_citations"),
			PublicLaws:   field(record, cols, "public_laws"),
			Acts:         field(record, cols, "acts"),
			StateTitle:   field(record, cols, "state_title"),
			StateSection: field(record, cols, "state_section"),
		})
	}

	return result, rowErrs, nil
}

// decodeAnalysisRow converts one CSV record into a typed row
func decodeAnalysisRow(record []string, cols map[string]int) (model.AnalysisRow, error) {
	var row model.AnalysisRow

	sourceIndex, err := parseIndex(field(record, cols, "source_index"))
	if err != nil {
		return row, err
	}

	title := strings.TrimSpace(field(record, cols, "title"))
	if title == "" {
		return row, fmt.Errorf("missing title")
	}

	implIssues, err := parseBool(field(record, cols, "has_implementation_issues"))
	if err != nil {
		return row, fmt.Errorf("has_implementation_issues: %w", err)
	}
	techReview, err := parseBool(field(record, cols, "requires_technical_review"))
	if err != nil {
		return row, fmt.Errorf("requires_technical_review: %w", err)
	}
	reporting, err := parseBool(field(record, cols, "has_reporting_requirement"))
	if err != nil {
		return row, fmt.Errorf("has_reporting_requirement: %w", err)
	}

	row = model.AnalysisRow{
		SourceIndex:             sourceIndex,
		Title:                   title,
		URL:                     field(record, cols, "url"),
		URLType:                 field(record, cols, "url_type"),
		Content:                 field(record, cols, "content"),
		HasImplementationIssues: implIssues,
		RequiresTechnicalReview: techReview,
		HasReportingRequirement: reporting,
		OverallComplexity:       strings.ToUpper(strings.TrimSpace(field(record, cols, "overall_complexity"))),
		Summary:                 field(record, cols, "summary"),
		ModelVersion:            field(record, cols, "model_version"),
		RedFlagsJSON:            field(record, cols, "red_flags"),
	}

	return row, nil
}

// columnIndex maps header names to their positions
func columnIndex(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}
	return cols
}

// field returns a named column from a record, or "" if the column is absent
func field(record []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(record) {
		return ""
	}
	return record[i]
}

// parseIndex parses a source index. The exporter writes integer columns as
// floats once a NaN sneaks into the frame, so "5.0" is accepted as 5.
func parseIndex(s string) (int, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid source_index %q", s)
	}
	return int(f), nil
}

// parseBool parses the exporter's boolean forms. An empty cell means the
// analyzer reported nothing, which reads as false.
func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "t", "1", "yes":
		return true, nil
	case "false", "f", "0", "no", "":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}
