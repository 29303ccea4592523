package extraction

import (
	"sort"
	"strings"
	"unicode"

	"github.com/coregx/ahocorasick"

	"github.com/scrypster/lorebook/pkg/types"
)

// Dictionary is an Aho-Corasick automaton built over every known surface
// form (canonical names, per-entity aliases, and alias-index entries). A
// single automaton serves as both dictionary lookup and O(n) text scanner,
// which matters for CJK text where whitespace tokenization does not apply.
type Dictionary struct {
	ac *ahocorasick.Automaton

	// patterns holds canonicalized surface forms in automaton order.
	patterns []string

	// display holds the original (pre-canonicalization) surface per pattern.
	display []string

	// targets holds the candidate set per pattern. Several entities may
	// share a surface form; those patterns become uncertain mentions.
	targets [][]types.AliasTarget

	index map[string]int
}

// NewDictionary compiles an automaton from the prior knowledge base.
func NewDictionary(prior Prior) (*Dictionary, error) {
	d := &Dictionary{index: make(map[string]int)}

	for bucket, entities := range prior.Entities {
		for id, e := range entities {
			target := types.AliasTarget{ID: id, Type: bucket}
			d.addPattern(e.CanonicalName, target)
			for _, alias := range e.Aliases {
				d.addPattern(alias, target)
			}
		}
	}
	for surface, candidates := range prior.AliasIndex {
		for _, target := range candidates {
			d.addPattern(surface, target)
		}
	}

	// LeftmostLongest prefers "静雅小区" over a shorter embedded pattern.
	ac, err := ahocorasick.NewBuilder().
		AddStrings(d.patterns).
		SetMatchKind(ahocorasick.LeftmostLongest).
		SetPrefilter(true).
		Build()
	if err != nil {
		return nil, err
	}
	d.ac = ac

	return d, nil
}

func (d *Dictionary) addPattern(surface string, target types.AliasTarget) {
	key := canonicalize(surface)
	if key == "" {
		return
	}

	idx, exists := d.index[key]
	if !exists {
		idx = len(d.patterns)
		d.index[key] = idx
		d.patterns = append(d.patterns, key)
		d.display = append(d.display, surface)
		d.targets = append(d.targets, nil)
	}

	for _, existing := range d.targets[idx] {
		if existing == target {
			return
		}
	}
	d.targets[idx] = append(d.targets[idx], target)
}

// Contains reports whether the surface form is a known pattern.
func (d *Dictionary) Contains(surface string) bool {
	_, ok := d.index[canonicalize(surface)]
	return ok
}

// scan returns the number of occurrences per pattern index.
func (d *Dictionary) scan(text string) map[int]int {
	if d.ac == nil || len(d.patterns) == 0 {
		return nil
	}

	haystack := []byte(canonicalize(text))
	counts := make(map[int]int)
	for _, m := range d.ac.FindAllOverlapping(haystack) {
		counts[m.PatternID]++
	}
	return counts
}

// DictionaryRecognizer detects appearances of known entities and flags
// ambiguous surface forms (one alias, several candidate entities) as
// uncertain mentions for the resolver.
type DictionaryRecognizer struct{}

// Name implements Recognizer.
func (DictionaryRecognizer) Name() string { return "dictionary" }

// appearanceConfidence is assigned to unambiguous dictionary hits. Exact
// surface matches of registered names leave little room for doubt.
const appearanceConfidence = 0.95

// Recognize implements Recognizer.
func (DictionaryRecognizer) Recognize(text string, prior Prior) Result {
	dict, err := NewDictionary(prior)
	if err != nil {
		// Extraction is best-effort: an uncompilable dictionary yields no
		// proposals rather than failing the run.
		return Result{}
	}

	counts := dict.scan(text)
	if len(counts) == 0 {
		return Result{}
	}

	// entityID → mention surfaces, kept sorted for deterministic output.
	mentions := make(map[types.AliasTarget][]string)
	var uncertain []types.UncertainMention

	indices := make([]int, 0, len(counts))
	for idx := range counts {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	for _, idx := range indices {
		candidates := dict.targets[idx]
		surface := dict.display[idx]

		if len(candidates) == 1 {
			target := candidates[0]
			mentions[target] = append(mentions[target], surface)
			continue
		}

		// Ambiguous one-to-many mapping: hand it to the resolver with a
		// confidence that shrinks as the candidate set grows.
		uncertain = append(uncertain, types.UncertainMention{
			Mention:    surface,
			Context:    snippetAround(text, surface),
			Candidates: candidates,
			Confidence: ambiguityConfidence(len(candidates)),
		})
	}

	result := Result{Uncertain: uncertain}

	targets := make([]types.AliasTarget, 0, len(mentions))
	for target := range mentions {
		targets = append(targets, target)
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i].ID < targets[j].ID })

	for _, target := range targets {
		result.Appeared = append(result.Appeared, types.Appearance{
			EntityID:   target.ID,
			EntityType: target.Type,
			Mentions:   mentions[target],
			Confidence: appearanceConfidence,
		})
	}

	return result
}

func ambiguityConfidence(candidates int) float64 {
	if candidates <= 0 {
		return 0
	}
	c := 1.0/float64(candidates) + 0.1
	if c > 0.9 {
		c = 0.9
	}
	return c
}

// snippetAround returns a short window of original text around the first
// occurrence of surface, for the mention's audit context.
func snippetAround(text, surface string) string {
	pos := strings.Index(text, surface)
	if pos < 0 {
		return ""
	}

	runes := []rune(text[:pos])
	start := len(runes) - 10
	if start < 0 {
		start = 0
	}
	prefix := string(runes[start:])

	rest := []rune(text[pos:])
	end := len([]rune(surface)) + 10
	if end > len(rest) {
		end = len(rest)
	}
	return strings.ReplaceAll(prefix+string(rest[:end]), "\n", " ")
}

// canonicalize folds text into the normalized form used for both pattern
// compilation and scanning: lowercase, letters/digits/joiners preserved,
// everything else collapsed to single spaces.
func canonicalize(s string) string {
	var out strings.Builder
	out.Grow(len(s))

	lastWasSpace := true
	for _, ch := range s {
		c := unicode.ToLower(ch)

		switch c {
		case '’', '‘':
			c = '\''
		case '–', '—':
			c = '-'
		}

		if unicode.IsLetter(c) || unicode.IsDigit(c) || isJoiner(c) {
			out.WriteRune(c)
			lastWasSpace = false
			continue
		}

		if !lastWasSpace {
			out.WriteByte(' ')
			lastWasSpace = true
		}
	}

	return strings.TrimRight(out.String(), " ")
}

// isJoiner reports punctuation that commonly appears inside names and is
// therefore preserved during canonicalization ("3号楼·602室", "O'Brien").
func isJoiner(r rune) bool {
	switch r {
	case '\'', '-', '·', '.', '_', '/', '#', '&':
		return true
	default:
		return false
	}
}
