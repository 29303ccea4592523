package types

// Entity represents a tracked narrative entity: a character, location, or
// object with persistent identity across chapters.
//
// The ID is immutable once the entity is created. History is append-only;
// records are never rewritten. Field names in Current form an open namespace
// because state attributes vary by entity type (a character has a status, a
// location has an occupant, and so on).
type Entity struct {
	// Core identification fields
	ID            string   `json:"id"`             // Unique, stable across chapters
	CanonicalName string   `json:"canonical_name"` // Display name
	Aliases       []string `json:"aliases"`        // Alternative surface forms
	Type          string   `json:"type,omitempty"` // Entity type bucket (see EntityType constants)

	// Classification
	Tier        string `json:"tier"` // Narrative importance (see Tier constants)
	Description string `json:"desc"` // Free-text description

	// Current state: field → value, plus the bookkeeping key "last_chapter".
	Current map[string]any `json:"current"`

	// History is the append-only log of state mutations.
	History []StateRecord `json:"history"`

	// Provenance
	CreatedChapter  int    `json:"created_chapter"`
	FirstAppearance string `json:"first_appearance"` // Chapter file reference
}

// StateRecord captures one state-field mutation with chapter provenance.
type StateRecord struct {
	Chapter int    `json:"chapter"`
	Field   string `json:"field"`
	Old     string `json:"old"`
	New     string `json:"new"`
	Reason  string `json:"reason,omitempty"`
}

// Entity type buckets used by the state store. The namespace is open; these
// are the buckets the built-in recognizers produce.
const (
	TypeCharacter = "角色"
	TypeLocation  = "地点"
	TypeObject    = "物品"
)

// AliasTarget is one candidate binding for a surface form. A single alias may
// map to multiple targets; disambiguation happens downstream.
type AliasTarget struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// LastChapterKey is the bookkeeping key maintained inside Entity.Current that
// records the most recent chapter in which the entity's state changed.
const LastChapterKey = "last_chapter"
