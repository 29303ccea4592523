package types

// Proposal types carried from the extraction engine through resolution to the
// state-store merge. Proposals are plain values: recognizers produce them,
// the pipeline decides what becomes canonical.

// Appearance records that a known entity was observed in the chapter text.
type Appearance struct {
	EntityID   string   `json:"id"`
	EntityType string   `json:"type"`
	Mentions   []string `json:"mentions"`   // Distinct surface forms observed
	Confidence float64  `json:"confidence"` // Recognizer confidence in [0,1]
}

// NewEntityProposal proposes registering a previously unknown entity.
// SuggestedID must be derived deterministically from the name so that
// reprocessing or later chapters cannot mint colliding IDs.
type NewEntityProposal struct {
	SuggestedID string  `json:"suggested_id"`
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Tier        string  `json:"tier"`
	Description string  `json:"desc"`
	Confidence  float64 `json:"confidence,omitempty"`
}

// StateChangeProposal proposes mutating one field of an existing entity.
// The field namespace is open; Old is advisory (the store records the value
// it actually observed before the write).
type StateChangeProposal struct {
	EntityID string `json:"entity_id"`
	Field    string `json:"field"`
	Old      string `json:"old,omitempty"`
	New      string `json:"new"`
	Reason   string `json:"reason,omitempty"`
}

// RelationshipProposal proposes a directed edge between two entities.
type RelationshipProposal struct {
	FromID      string `json:"from"`
	ToID        string `json:"to"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// UncertainMention is a surface form whose entity binding is unresolved.
// It is consumed by the disambiguation resolver and never persisted.
type UncertainMention struct {
	Mention    string        `json:"mention"`
	Context    string        `json:"context,omitempty"`
	Candidates []AliasTarget `json:"candidates"` // Ranked, best first
	Confidence float64       `json:"confidence"` // In [0,1]
}

// AdoptedMention is a resolved binding produced by the resolver.
type AdoptedMention struct {
	Mention    string  `json:"mention"`
	AdoptedID  string  `json:"adopted"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}
