package service

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jmorgan/regflag/internal/model"
)

// FlagParser decodes the embedded red_flags column of an analysis row
type FlagParser struct{}

// NewFlagParser creates a new FlagParser
func NewFlagParser() *FlagParser {
	return &FlagParser{}
}

// Parse decodes a row's flag list. An empty or absent list yields no flags.
// Severity bounds are not checked here: the schema's CHECK constraint is
// the authority, and a violation fails the row's transaction as a whole.
func (p *FlagParser) Parse(raw string) ([]model.FlagRecord, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "[]" {
		return nil, nil
	}

	var flags []model.FlagRecord
	if err := json.Unmarshal([]byte(raw), &flags); err != nil {
		return nil, fmt.Errorf("failed to parse flag list: %w", err)
	}

	return flags, nil
}

// MaxSeverity returns the highest severity among the flags. ok is false
// when there are none, in which case the analysis stores NULL.
func MaxSeverity(flags []model.FlagRecord) (max int, ok bool) {
	if len(flags) == 0 {
		return 0, false
	}

	max = flags[0].Severity
	for _, f := range flags[1:] {
		if f.Severity > max {
			max = f.Severity
		}
	}
	return max, true
}
