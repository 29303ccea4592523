package segment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSplitter() *Splitter {
	return NewSplitter(
		map[string]string{
			"静雅小区": "静雅小区",
			"602室": "602室",
			"人才市场": "人才市场",
		},
		map[string]string{
			"叶凡":  "yefan",
			"顾晚晴": "guwanqing",
			"顾女士": "guwanqing",
		},
	)
}

func TestSplitOnLocationChange(t *testing.T) {
	text := "叶凡在人才市场转了一上午，一无所获。\n" +
		"他叹了口气，收起简历。\n" +
		"\n" +
		"下午叶凡走进静雅小区，顾晚晴正在楼下等他。\n" +
		"两人聊起了租房的事。"

	scenes := testSplitter().Split(text)
	require.Len(t, scenes, 2)

	first := scenes[0]
	assert.Equal(t, 0, first.Index)
	assert.Equal(t, "人才市场", first.Location)
	assert.Equal(t, 1, first.StartLine)
	assert.Equal(t, 2, first.EndLine)
	assert.Equal(t, []string{"yefan"}, first.Entities)
	assert.Equal(t, "叶凡在人才市场转了一上午，一无所获。", first.Summary)

	second := scenes[1]
	assert.Equal(t, 1, second.Index)
	assert.Equal(t, "静雅小区", second.Location)
	assert.Equal(t, 4, second.StartLine)
	assert.Equal(t, 5, second.EndLine)
	assert.Equal(t, []string{"guwanqing", "yefan"}, second.Entities)
}

// Without any known location the whole chapter is one scene.
func TestSplitWithoutLocationsIsOneScene(t *testing.T) {
	text := "叶凡醒了。\n\n顾女士敲了敲门。"

	scenes := NewSplitter(nil, map[string]string{"叶凡": "yefan", "顾女士": "guwanqing"}).Split(text)
	require.Len(t, scenes, 1)
	assert.Equal(t, "", scenes[0].Location)
	assert.Equal(t, 1, scenes[0].StartLine)
	assert.Equal(t, 3, scenes[0].EndLine)
	assert.Equal(t, []string{"guwanqing", "yefan"}, scenes[0].Entities)
}

// A paragraph repeating the running location does not close the scene.
func TestSplitSameLocationStaysOpen(t *testing.T) {
	text := "叶凡走进静雅小区。\n\n静雅小区的傍晚很安静。"

	scenes := testSplitter().Split(text)
	require.Len(t, scenes, 1)
	assert.Equal(t, "静雅小区", scenes[0].Location)
	assert.Equal(t, 3, scenes[0].EndLine)
}

// Paragraphs before the first located one belong to the first scene.
func TestSplitLeadingParagraphAdoptsFirstLocation(t *testing.T) {
	text := "清晨的雾还没散。\n\n叶凡走进人才市场。"

	scenes := testSplitter().Split(text)
	require.Len(t, scenes, 1)
	assert.Equal(t, "人才市场", scenes[0].Location)
	assert.Equal(t, 1, scenes[0].StartLine)
}

func TestSplitBlankTextYieldsNothing(t *testing.T) {
	assert.Empty(t, testSplitter().Split(""))
	assert.Empty(t, testSplitter().Split("  \n\n\t "))
}

func TestFirstSentence(t *testing.T) {
	assert.Equal(t, "叶凡醒了。", firstSentence("叶凡醒了。窗外下着雨。"))
	assert.Equal(t, "It rained.", firstSentence("It rained. He waited."))
	assert.Equal(t, "没有结尾的句子", firstSentence("没有结尾的句子"))
}
