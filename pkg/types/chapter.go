package types

import "time"

// ChapterRecord is the per-chapter row projected into the relational index.
// Participants and scenes are denormalized for cheap chapter-level queries;
// the normalized rows live in the entity_appearances and scenes tables.
type ChapterRecord struct {
	Chapter   int       `json:"chapter"` // Primary key
	Title     string    `json:"title"`
	Location  string    `json:"location"` // Primary location of the chapter
	WordCount int       `json:"word_count"`
	Entities  []string  `json:"characters"` // Participating entity IDs
	Scenes    []string  `json:"scenes"`     // Scene summaries, in order
	CreatedAt time.Time `json:"created_at"`
}

// Scene is a chapter-scoped ordered segment: a contiguous text span sharing
// location and participants. Line boundaries are 1-based and inclusive.
type Scene struct {
	Index     int      `json:"index"` // 0-based position within the chapter
	StartLine int      `json:"start_line"`
	EndLine   int      `json:"end_line"`
	Location  string   `json:"location"`
	Summary   string   `json:"summary"`
	Entities  []string `json:"characters"` // Participating entity IDs
}
