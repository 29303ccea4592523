package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/lorebook/pkg/types"
)

func testDetails() types.ReportDetails {
	return types.ReportDetails{
		EntitiesAppeared: []types.Appearance{
			{EntityID: "yefan", EntityType: types.TypeCharacter, Mentions: []string{"叶凡"}, Confidence: 0.95},
			{EntityID: "guwanqing", EntityType: types.TypeCharacter, Mentions: []string{"顾晚晴"}, Confidence: 0.95},
		},
		EntitiesNew: []types.NewEntityProposal{
			{SuggestedID: "jingya_community", Name: "静雅小区", Type: types.TypeLocation, Tier: types.TierMajor},
		},
		StateChanges: []types.StateChangeProposal{
			{EntityID: "yefan", Field: "location", New: "静雅小区3号楼602室", Reason: "租房成功"},
		},
		Scenes: []types.Scene{
			{Index: 0, StartLine: 1, EndLine: 12, Location: "静雅小区"},
		},
		Adopted: []types.AdoptedMention{
			{Mention: "那位先生", AdoptedID: "yefan", Confidence: 0.85, Reason: "高置信度直接采用"},
		},
	}
}

func TestBuildCountsMatchDetails(t *testing.T) {
	r := Build(1, testDetails(), []string{"中置信度匹配: 那位先生 → yefan (confidence: 0.7)"})

	assert.NotEmpty(t, r.RunID)
	assert.Equal(t, 1, r.Chapter)
	assert.Equal(t, 2, r.EntitiesAppeared)
	assert.Equal(t, 1, r.EntitiesNew)
	assert.Equal(t, 1, r.StateChanges)
	assert.Equal(t, 0, r.RelationshipsNew)
	assert.Equal(t, 1, r.ScenesChunked)
	assert.Equal(t, 1, r.UncertainResolved)
	require.Len(t, r.Warnings, 1)
	assert.False(t, r.ProcessedAt.IsZero())
}

func TestBuildRunIDsAreUnique(t *testing.T) {
	first := Build(1, types.ReportDetails{}, nil)
	second := Build(1, types.ReportDetails{}, nil)
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestBuildCopiesWarnings(t *testing.T) {
	warnings := []string{"需人工确认: 老板"}
	r := Build(1, types.ReportDetails{}, warnings)

	warnings[0] = "mutated"
	assert.Equal(t, "需人工确认: 老板", r.Warnings[0])
}

func TestWriteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report_chapter_1.json")
	r := Build(1, testDetails(), nil)

	require.NoError(t, Write(path, r))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got types.Report
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, r.RunID, got.RunID)
	assert.Equal(t, 2, got.EntitiesAppeared)
	require.Len(t, got.Details.EntitiesAppeared, 2)
	assert.Equal(t, "yefan", got.Details.EntitiesAppeared[0].EntityID)
}
