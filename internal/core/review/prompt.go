package review

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/jinford/repo-review/pkg/models"
)

// TruncationMarker はプロンプト切り詰め時に末尾へ付加するマーカー
const TruncationMarker = "\n\n[Content truncated due to length...]"

// PromptBuilder は検索結果からレビューモデル向けのプロンプトを組み立てる
type PromptBuilder struct {
	encoder        *tiktoken.Tiktoken
	maxPromptChars int
}

// NewPromptBuilder は新しいPromptBuilderを作成する
// トークン数の見積もりには cl100k_base エンコーダを使用する
func NewPromptBuilder(maxPromptChars int) (*PromptBuilder, error) {
	encoder, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to get tiktoken encoder: %w", err)
	}

	return &PromptBuilder{
		encoder:        encoder,
		maxPromptChars: maxPromptChars,
	}, nil
}

// Build は検索結果を類似度の高い順に連結してプロンプトを生成する
// 文字数上限を超える場合は末尾から切り詰めてマーカーを付加する（失敗にはしない）
func (b *PromptBuilder) Build(repo, query string, results []models.SearchResult) string {
	var sections []string
	for i, result := range results {
		sections = append(sections, fmt.Sprintf("--- FILE %d: %s ---\n%s", i+1, result.Path, result.Content))
	}
	codeContext := strings.Join(sections, "\n\n")

	prompt := fmt.Sprintf(reviewPromptTemplate, repo, query, codeContext)
	return b.truncate(prompt)
}

// EstimateTokens はプロンプトのトークン数を見積もる
func (b *PromptBuilder) EstimateTokens(prompt string) int {
	return len(b.encoder.Encode(prompt, nil, nil))
}

func (b *PromptBuilder) truncate(prompt string) string {
	if b.maxPromptChars <= 0 || len(prompt) <= b.maxPromptChars {
		return prompt
	}
	return prompt[:b.maxPromptChars] + TruncationMarker
}

const reviewPromptTemplate = `You are a senior software engineer performing a professional code review.

Repository: %s

User request:
"%s"

Below are relevant code excerpts from the repository:

%s

Your task:
1. Analyze the code for issues, risks, and bad practices
2. Provide specific, actionable suggestions for improvement
3. Be concise and technical

IMPORTANT: You must respond with ONLY valid JSON in the following structure (no markdown, no code blocks, no extra text):

{
  "summary": "A brief 2-3 sentence overview of the code review findings",
  "issues": [
    {
      "severity": "HIGH|MEDIUM|LOW",
      "file": "exact file path from the code context",
      "line": "line number if identifiable (optional)",
      "description": "Clear description of the issue or concern",
      "suggestion": "Specific actionable recommendation to fix or improve"
    }
  ]
}

Rules:
- If no issues are found, return an empty issues array
- Severity levels: HIGH (security, critical bugs), MEDIUM (performance, maintainability), LOW (style, minor improvements)
- Always include file paths from the provided code context
- Keep descriptions concise but informative
- Provide concrete suggestions, not vague advice
`
