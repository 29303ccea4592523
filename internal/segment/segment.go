// Package segment splits chapter text into scenes.
//
// The heuristic is location-driven: paragraphs are grouped into a scene
// until a paragraph mentions a different known location, at which point the
// running scene is closed and a new one opens. A chapter that never mentions
// a known location yields one scene spanning the whole text.
package segment

import (
	"sort"
	"strings"

	"github.com/scrypster/lorebook/pkg/types"
)

// Splitter carries the surface forms it segments against. Both maps go from
// a surface form (canonical name or alias) to the value recorded on the
// scene: the canonical location name, or the entity ID.
type Splitter struct {
	locations map[string]string
	entities  map[string]string
}

// NewSplitter builds a splitter over the given surface-form maps. Nil maps
// are accepted and treated as empty.
func NewSplitter(locations, entities map[string]string) *Splitter {
	if locations == nil {
		locations = map[string]string{}
	}
	if entities == nil {
		entities = map[string]string{}
	}
	return &Splitter{locations: locations, entities: entities}
}

// paragraph is a run of non-blank lines with its 1-based line range.
type paragraph struct {
	startLine int
	endLine   int
	text      string
}

// Split segments the chapter text. Empty or blank text yields no scenes.
// Line numbers on the returned scenes are 1-based and inclusive.
func (s *Splitter) Split(text string) []types.Scene {
	paragraphs := splitParagraphs(text)
	if len(paragraphs) == 0 {
		return nil
	}

	var scenes []types.Scene
	var open *types.Scene
	var openText strings.Builder

	closeScene := func() {
		if open == nil {
			return
		}
		open.Summary = firstSentence(openText.String())
		open.Entities = s.participants(openText.String())
		scenes = append(scenes, *open)
		open = nil
		openText.Reset()
	}

	for _, p := range paragraphs {
		location := s.firstLocation(p.text)

		switch {
		case open == nil:
			open = &types.Scene{Index: len(scenes), StartLine: p.startLine, EndLine: p.endLine, Location: location}
		case location != "" && open.Location != "" && location != open.Location:
			// A different known location starts a new scene.
			closeScene()
			open = &types.Scene{Index: len(scenes), StartLine: p.startLine, EndLine: p.endLine, Location: location}
		default:
			if open.Location == "" {
				open.Location = location
			}
			open.EndLine = p.endLine
		}
		openText.WriteString(p.text)
		openText.WriteString("\n")
	}
	closeScene()

	return scenes
}

// splitParagraphs groups consecutive non-blank lines, keeping line numbers.
func splitParagraphs(text string) []paragraph {
	lines := strings.Split(text, "\n")

	var paragraphs []paragraph
	var current *paragraph
	var body strings.Builder

	flush := func() {
		if current == nil {
			return
		}
		current.text = body.String()
		paragraphs = append(paragraphs, *current)
		current = nil
		body.Reset()
	}

	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		if current == nil {
			current = &paragraph{startLine: i + 1, endLine: i + 1}
		} else {
			current.endLine = i + 1
			body.WriteString("\n")
		}
		body.WriteString(line)
	}
	flush()

	return paragraphs
}

// firstLocation returns the location whose surface form occurs earliest in
// the paragraph, or "" when none occurs. Ties on position break on the
// longer surface form so that nested names resolve to the specific place.
func (s *Splitter) firstLocation(text string) string {
	best := -1
	bestLen := 0
	result := ""
	for surface, name := range s.locations {
		pos := strings.Index(text, surface)
		if pos < 0 {
			continue
		}
		if best == -1 || pos < best || (pos == best && len(surface) > bestLen) {
			best = pos
			bestLen = len(surface)
			result = name
		}
	}
	return result
}

// participants returns the sorted entity IDs whose surface forms occur in
// the scene text.
func (s *Splitter) participants(text string) []string {
	seen := map[string]bool{}
	for surface, id := range s.entities {
		if strings.Contains(text, surface) {
			seen[id] = true
		}
	}
	if len(seen) == 0 {
		return nil
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// sentence terminators for both CJK and Latin prose.
var sentenceEnds = []string{"。", "！", "？", ". ", "! ", "? "}

// firstSentence trims the scene text to its opening sentence for the
// summary column.
func firstSentence(text string) string {
	text = strings.TrimSpace(text)
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[:nl]
	}
	cut := len(text)
	for _, end := range sentenceEnds {
		if pos := strings.Index(text, end); pos >= 0 && pos+len(end) < cut {
			cut = pos + len(strings.TrimSpace(end))
		}
	}
	return strings.TrimSpace(text[:cut])
}
