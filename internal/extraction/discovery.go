package extraction

import (
	"sort"
	"strings"
	"unicode"

	"github.com/orsinium-labs/stopwords"

	"github.com/scrypster/lorebook/pkg/types"
)

// DiscoveryRecognizer proposes entities the rule file has never heard of by
// watching for recurring capitalized tokens. A token is promoted once it has
// been seen PromotionThreshold times in a chapter without matching any known
// surface form or stopword.
//
// Token discovery only works for whitespace-scripted text; CJK works rely on
// the rule file and dictionary for introduction of new entities.
type DiscoveryRecognizer struct {
	threshold       int
	stopwordChecker *stopwords.Stopwords
	custom          map[string]bool
}

// NewDiscoveryRecognizer creates a discovery recognizer with the given
// promotion threshold and stopword language (e.g. "en").
func NewDiscoveryRecognizer(threshold int, lang string) *DiscoveryRecognizer {
	if threshold < 1 {
		threshold = 3
	}
	if lang == "" {
		lang = "en"
	}

	return &DiscoveryRecognizer{
		threshold:       threshold,
		stopwordChecker: stopwords.MustGet(lang),
		custom:          make(map[string]bool),
	}
}

// AddStopWord adds a custom ignored word.
func (d *DiscoveryRecognizer) AddStopWord(word string) {
	d.custom[strings.ToLower(word)] = true
}

// Name implements Recognizer.
func (d *DiscoveryRecognizer) Name() string { return "discovery" }

// Recognize implements Recognizer.
func (d *DiscoveryRecognizer) Recognize(text string, prior Prior) Result {
	counts := make(map[string]int)
	display := make(map[string]string)

	for _, token := range strings.Fields(text) {
		token = strings.Trim(token, ".,;:!?\"“”()[]{}")
		if !isCapitalized(token) {
			continue
		}

		key := strings.ToLower(token)
		if d.custom[key] || d.stopwordChecker.Contains(key) {
			continue
		}
		if prior.KnowsSurface(token) {
			continue
		}

		counts[key]++
		if _, ok := display[key]; !ok {
			display[key] = token
		}
	}

	keys := make([]string, 0, len(counts))
	for key, n := range counts {
		if n >= d.threshold {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	var result Result
	for _, key := range keys {
		name := display[key]
		result.NewEntities = append(result.NewEntities, types.NewEntityProposal{
			SuggestedID: SuggestID(name),
			Name:        name,
			Type:        types.TypeCharacter,
			Tier:        types.TierMinor,
			Description: "多次出现的未登记名称，自动发现",
			Confidence:  discoveryConfidence(counts[key], d.threshold),
		})
	}

	return result
}

func discoveryConfidence(count, threshold int) float64 {
	c := 0.5 + 0.1*float64(count-threshold)
	if c > 0.8 {
		c = 0.8
	}
	return c
}

func isCapitalized(s string) bool {
	for _, r := range s {
		return unicode.IsUpper(r)
	}
	return false
}
