// Package report assembles and writes the per-chapter processing report.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/lorebook/pkg/types"
)

// Build assembles the report for one run. Warnings are copied so later
// pipeline stages cannot mutate the report through the shared slice.
func Build(chapter int, details types.ReportDetails, warnings []string) types.Report {
	r := types.Report{
		RunID:   uuid.NewString(),
		Chapter: chapter,

		EntitiesAppeared:  len(details.EntitiesAppeared),
		EntitiesNew:       len(details.EntitiesNew),
		StateChanges:      len(details.StateChanges),
		RelationshipsNew:  len(details.RelationshipsNew),
		ScenesChunked:     len(details.Scenes),
		UncertainResolved: len(details.Adopted),

		Details:     details,
		ProcessedAt: time.Now().UTC(),
	}
	if len(warnings) > 0 {
		r.Warnings = append([]string(nil), warnings...)
	}
	return r
}

// Write persists the report as indented JSON at the given path.
func Write(path string, r types.Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("report: failed to marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("report: failed to write %s: %w", path, err)
	}
	return nil
}
