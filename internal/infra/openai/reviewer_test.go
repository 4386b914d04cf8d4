package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/repo-review/pkg/models"
)

func TestParseReviewResponse(t *testing.T) {
	content := `{
		"summary": "Found two issues in the auth flow.",
		"issues": [
			{
				"severity": "HIGH",
				"file": "internal/auth/handler.go",
				"line": "42",
				"description": "Token is logged in plain text",
				"suggestion": "Redact the token before logging"
			}
		]
	}`

	result := ParseReviewResponse(content)

	assert.Equal(t, "Found two issues in the auth flow.", result.Summary)
	require.Len(t, result.Issues, 1)
	assert.Equal(t, models.SeverityHigh, result.Issues[0].Severity)
	assert.Equal(t, "internal/auth/handler.go", result.Issues[0].File)
}

func TestParseReviewResponse_StripsCodeFence(t *testing.T) {
	// モデルが指示に反してコードフェンスを付けても解析できる
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "jsonフェンス",
			content: "```json\n{\"summary\": \"OK\", \"issues\": []}\n```",
		},
		{
			name:    "無指定フェンス",
			content: "```\n{\"summary\": \"OK\", \"issues\": []}\n```",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ParseReviewResponse(tt.content)
			assert.Equal(t, "OK", result.Summary)
			assert.Empty(t, result.Issues)
		})
	}
}

func TestParseReviewResponse_DegradedFallback(t *testing.T) {
	// 解析不能な応答はエラーではなく縮退結果になる
	tests := []struct {
		name    string
		content string
	}{
		{name: "不正なJSON", content: "this is not json"},
		{name: "空文字列", content: ""},
		{name: "summary欠落", content: `{"issues": []}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ParseReviewResponse(tt.content)

			require.NotNil(t, result)
			assert.Contains(t, result.Summary, "Error parsing review response")
			require.Len(t, result.Issues, 1)
			assert.Equal(t, models.SeverityMedium, result.Issues[0].Severity)
			assert.Equal(t, "unknown", result.Issues[0].File)
		})
	}
}

func TestParseReviewResponse_NilIssuesBecomesEmptySlice(t *testing.T) {
	result := ParseReviewResponse(`{"summary": "Nothing to report."}`)

	assert.Equal(t, "Nothing to report.", result.Summary)
	assert.NotNil(t, result.Issues)
	assert.Empty(t, result.Issues)
}

func TestNewReviewer_RequiresAPIKey(t *testing.T) {
	_, err := NewReviewer("")

	assert.ErrorIs(t, err, ErrAPIKeyNotSet)
}
