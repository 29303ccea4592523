package extraction

import (
	"sort"
	"strings"

	"github.com/scrypster/lorebook/pkg/types"
)

// Engine applies a set of recognizers to chapter text and combines their
// output. Extraction is best-effort: empty or unreadable text produces empty
// proposal sets, never an error.
type Engine struct {
	recognizers []Recognizer
}

// NewEngine creates an engine over an explicit recognizer list.
func NewEngine(recognizers ...Recognizer) *Engine {
	return &Engine{recognizers: recognizers}
}

// DefaultEngine wires the built-in recognizer stack: dictionary scanning for
// known entities, declarative rules for work-specific vocabulary, and token
// discovery for recurring unregistered names.
func DefaultEngine(rules *RuleSet, promotionThreshold int, stopwordLang string) *Engine {
	return NewEngine(
		DictionaryRecognizer{},
		NewRuleRecognizer(rules),
		NewDiscoveryRecognizer(promotionThreshold, stopwordLang),
	)
}

// Extract runs every recognizer over the chapter text and returns the
// combined, deduplicated proposal sets.
func (e *Engine) Extract(text string, prior Prior) Result {
	if strings.TrimSpace(text) == "" {
		return Result{}
	}

	var combined Result
	for _, recognizer := range e.recognizers {
		combined.add(recognizer.Recognize(text, prior))
	}

	combined.Appeared = dedupeAppearances(combined.Appeared)
	combined.NewEntities = dedupeNewEntities(combined.NewEntities)
	return combined
}

// dedupeAppearances merges appearances of the same entity reported by
// several recognizers: mentions are unioned, the highest confidence wins.
func dedupeAppearances(appeared []types.Appearance) []types.Appearance {
	if len(appeared) <= 1 {
		return appeared
	}

	byID := make(map[string]*types.Appearance)
	order := make([]string, 0, len(appeared))

	for _, a := range appeared {
		existing, ok := byID[a.EntityID]
		if !ok {
			copied := a
			byID[a.EntityID] = &copied
			order = append(order, a.EntityID)
			continue
		}

		for _, mention := range a.Mentions {
			if !containsString(existing.Mentions, mention) {
				existing.Mentions = append(existing.Mentions, mention)
			}
		}
		if a.Confidence > existing.Confidence {
			existing.Confidence = a.Confidence
		}
	}

	sort.Strings(order)
	result := make([]types.Appearance, 0, len(order))
	for _, id := range order {
		result = append(result, *byID[id])
	}
	return result
}

// dedupeNewEntities keeps the first proposal per suggested ID.
func dedupeNewEntities(proposals []types.NewEntityProposal) []types.NewEntityProposal {
	if len(proposals) <= 1 {
		return proposals
	}

	seen := make(map[string]bool, len(proposals))
	result := proposals[:0]
	for _, p := range proposals {
		if seen[p.SuggestedID] {
			continue
		}
		seen[p.SuggestedID] = true
		result = append(result, p)
	}
	return result
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
