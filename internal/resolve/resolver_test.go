package resolve

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/lorebook/pkg/types"
)

func mention(confidence float64, candidateIDs ...string) types.UncertainMention {
	m := types.UncertainMention{
		Mention:    "那位先生",
		Context:    "中年妇女对叶凡的称呼",
		Confidence: confidence,
	}
	for _, id := range candidateIDs {
		m.Candidates = append(m.Candidates, types.AliasTarget{ID: id, Type: types.TypeCharacter})
	}
	return m
}

func TestResolveHighConfidenceAdoptsSilently(t *testing.T) {
	adopted, warnings := Resolve([]types.UncertainMention{mention(0.85, "yefan")})

	require.Len(t, adopted, 1)
	assert.Equal(t, "yefan", adopted[0].AdoptedID)
	assert.Equal(t, 0.85, adopted[0].Confidence)
	assert.Empty(t, warnings)
}

func TestResolveMidConfidenceAdoptsWithWarning(t *testing.T) {
	adopted, warnings := Resolve([]types.UncertainMention{mention(0.7, "yefan")})

	require.Len(t, adopted, 1)
	assert.Equal(t, "yefan", adopted[0].AdoptedID)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "中置信度")
}

func TestResolveLowConfidenceDefersToReview(t *testing.T) {
	adopted, warnings := Resolve([]types.UncertainMention{mention(0.4, "yefan")})

	assert.Empty(t, adopted)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "需人工确认")
}

// The comparator is strictly greater-than: exactly 0.8 falls into the
// adopt-with-warning tier, not the silent tier; exactly 0.5 falls into the
// manual-review tier, not the adoption tier.
func TestResolveThresholdBoundaries(t *testing.T) {
	adopted, warnings := Resolve([]types.UncertainMention{mention(0.8, "yefan")})
	require.Len(t, adopted, 1, "0.8 must still adopt")
	require.Len(t, warnings, 1, "0.8 must carry a warning")
	assert.Contains(t, warnings[0], "中置信度")

	adopted, warnings = Resolve([]types.UncertainMention{mention(0.5, "yefan")})
	assert.Empty(t, adopted, "0.5 must not adopt")
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "需人工确认")
}

func TestResolveEmptyCandidatesFailsWithNoCandidate(t *testing.T) {
	_, _, err := ResolveMention(mention(0.9))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoCandidate))
}

// A no-candidate mention degrades to a warning without aborting the batch.
func TestResolveBatchSurvivesNoCandidateMention(t *testing.T) {
	adopted, warnings := Resolve([]types.UncertainMention{
		mention(0.9),
		mention(0.85, "yefan"),
	})

	require.Len(t, adopted, 1)
	assert.Equal(t, "yefan", adopted[0].AdoptedID)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], ErrNoCandidate.Error())
}

func TestResolveIsDeterministic(t *testing.T) {
	input := []types.UncertainMention{
		mention(0.85, "yefan", "guwanqing"),
		mention(0.6, "guwanqing"),
		mention(0.2, "yefan"),
	}

	firstAdopted, firstWarnings := Resolve(input)
	for i := 0; i < 10; i++ {
		adopted, warnings := Resolve(input)
		assert.Equal(t, firstAdopted, adopted)
		assert.Equal(t, strings.Join(firstWarnings, "\n"), strings.Join(warnings, "\n"))
	}
}
