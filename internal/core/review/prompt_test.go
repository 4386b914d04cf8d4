package review

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/repo-review/pkg/models"
)

func testResults(n int) []models.SearchResult {
	results := make([]models.SearchResult, n)
	for i := range results {
		results[i] = models.SearchResult{
			Repo:       "myrepo",
			Path:       fmt.Sprintf("internal/service%d.go", i+1),
			Content:    fmt.Sprintf("func Service%d() {}", i+1),
			Similarity: 1.0 - float64(i)*0.1,
		}
	}
	return results
}

func TestPromptBuilder_Build(t *testing.T) {
	builder, err := NewPromptBuilder(30000)
	require.NoError(t, err)

	prompt := builder.Build("myrepo", "check error handling", testResults(3))

	assert.Contains(t, prompt, "Repository: myrepo")
	assert.Contains(t, prompt, `"check error handling"`)
	// 検索結果は類似度順に番号付きヘッダで並ぶ
	assert.Contains(t, prompt, "--- FILE 1: internal/service1.go ---")
	assert.Contains(t, prompt, "--- FILE 2: internal/service2.go ---")
	assert.Contains(t, prompt, "--- FILE 3: internal/service3.go ---")
	assert.Contains(t, prompt, "func Service1() {}")
	// JSON形式の指示が含まれる
	assert.Contains(t, prompt, "ONLY valid JSON")

	idx1 := strings.Index(prompt, "FILE 1")
	idx2 := strings.Index(prompt, "FILE 2")
	assert.Less(t, idx1, idx2)
}

func TestPromptBuilder_Build_TruncatesLongPrompt(t *testing.T) {
	builder, err := NewPromptBuilder(2000)
	require.NoError(t, err)

	results := []models.SearchResult{{
		Repo:    "myrepo",
		Path:    "huge.go",
		Content: strings.Repeat("x", 10000),
	}}

	prompt := builder.Build("myrepo", "review", results)

	assert.True(t, strings.HasSuffix(prompt, TruncationMarker))
	assert.Len(t, prompt, 2000+len(TruncationMarker))
}

func TestPromptBuilder_Build_NoTruncationWithinLimit(t *testing.T) {
	builder, err := NewPromptBuilder(30000)
	require.NoError(t, err)

	prompt := builder.Build("myrepo", "review", testResults(1))

	assert.False(t, strings.Contains(prompt, TruncationMarker))
}

func TestPromptBuilder_EstimateTokens(t *testing.T) {
	builder, err := NewPromptBuilder(30000)
	require.NoError(t, err)

	tokens := builder.EstimateTokens("hello world")

	assert.Greater(t, tokens, 0)
	assert.Less(t, tokens, 10)
}
