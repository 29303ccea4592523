package types

import "time"

// Report summarizes one chapter-processing run. A report is always produced,
// whether or not the run accumulated warnings; storage failures that abort
// the run are the only path that skips it.
type Report struct {
	RunID   string `json:"run_id"`
	Chapter int    `json:"chapter"`

	// Counts
	EntitiesAppeared  int `json:"entities_appeared"`
	EntitiesNew       int `json:"entities_new"`
	StateChanges      int `json:"state_changes"`
	RelationshipsNew  int `json:"relationships_new"`
	ScenesChunked     int `json:"scenes_chunked"`
	UncertainResolved int `json:"uncertain_resolved"`

	// Warnings collect every per-item degradation: mid-confidence adoptions,
	// manual-review deferrals, skipped duplicate registrations, state changes
	// against unknown IDs, and embedding failures.
	Warnings []string `json:"warnings"`

	Details     ReportDetails `json:"details"`
	ProcessedAt time.Time     `json:"processed_at"`
}

// ReportDetails carries the full proposal and resolution detail for audit.
type ReportDetails struct {
	EntitiesAppeared []Appearance          `json:"entities_appeared"`
	EntitiesNew      []NewEntityProposal   `json:"entities_new"`
	StateChanges     []StateChangeProposal `json:"state_changes"`
	RelationshipsNew []RelationshipProposal `json:"relationships_new"`
	Scenes           []Scene               `json:"scenes"`
	Uncertain        []UncertainMention    `json:"uncertain"`
	Adopted          []AdoptedMention      `json:"adopted"`
}
