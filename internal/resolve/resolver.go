// Package resolve converts uncertain mentions into confident entity bindings
// using a fixed confidence-threshold policy.
//
// The resolver is a pure function over its input: it never touches the state
// store and yields identical classifications for identical input. Policy, by
// confidence c:
//
//	c > 0.8        adopt the top candidate, no warning
//	0.5 < c <= 0.8 adopt the top candidate, record an audit warning
//	c <= 0.5       do not adopt, record a manual-review warning
//
// Both comparisons are strict: a mention at exactly 0.8 lands in the middle
// tier, a mention at exactly 0.5 in the bottom one.
package resolve

import (
	"errors"
	"fmt"

	"github.com/scrypster/lorebook/pkg/types"
)

// ErrNoCandidate indicates an uncertain mention arrived with an empty
// candidate list. The mention cannot be resolved; the run continues.
var ErrNoCandidate = errors.New("uncertain mention has no candidates")

// Confidence thresholds for the three-tier adoption policy.
const (
	AutoAdoptThreshold = 0.8
	ReviewThreshold    = 0.5
)

// ResolveMention classifies a single mention. It returns the adopted binding
// (zero-valued when nothing was adopted), a warning line for the report
// (empty when the adoption was silent), and ErrNoCandidate when the
// candidate list is empty.
func ResolveMention(m types.UncertainMention) (types.AdoptedMention, string, error) {
	if len(m.Candidates) == 0 {
		return types.AdoptedMention{}, "",
			fmt.Errorf("%w: %q", ErrNoCandidate, m.Mention)
	}

	top := m.Candidates[0]

	switch {
	case m.Confidence > AutoAdoptThreshold:
		return types.AdoptedMention{
			Mention:    m.Mention,
			AdoptedID:  top.ID,
			Confidence: m.Confidence,
			Reason:     "高置信度直接采用",
		}, "", nil

	case m.Confidence > ReviewThreshold:
		warning := fmt.Sprintf("中置信度匹配: %s → %s (confidence: %g)",
			m.Mention, top.ID, m.Confidence)
		return types.AdoptedMention{
			Mention:    m.Mention,
			AdoptedID:  top.ID,
			Confidence: m.Confidence,
			Reason:     "中置信度采用但记录警告",
		}, warning, nil

	default:
		return types.AdoptedMention{}, fmt.Sprintf("需人工确认: %s", m.Mention), nil
	}
}

// Resolve classifies a batch of mentions. Per-mention failures are not fatal
// to the batch: a mention with no candidates degrades to a warning and the
// remaining mentions are still processed.
func Resolve(mentions []types.UncertainMention) (adopted []types.AdoptedMention, warnings []string) {
	for _, m := range mentions {
		binding, warning, err := ResolveMention(m)
		if err != nil {
			warnings = append(warnings, err.Error())
			continue
		}
		if warning != "" {
			warnings = append(warnings, warning)
		}
		if binding.AdoptedID != "" {
			adopted = append(adopted, binding)
		}
	}
	return adopted, warnings
}
