package types

import "time"

// Relationship represents a directed edge between two entities, recorded with
// chapter provenance. Edges are append-only and carry no uniqueness
// constraint: reprocessing guards live in the pipeline, not here.
type Relationship struct {
	// Core identification fields
	ID     string `json:"id,omitempty"` // Unique identifier (format: rel:uuid)
	FromID string `json:"from"`         // Source entity ID
	ToID   string `json:"to"`           // Target entity ID
	Type   string `json:"type"`         // Edge label (e.g. "房东-租客", "师徒")

	// Context
	Description string    `json:"description,omitempty"`
	Chapter     int       `json:"chapter"` // Chapter that established the edge
	CreatedAt   time.Time `json:"created_at"`
}
