package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/jinford/repo-review/internal/core/review"
	"github.com/jinford/repo-review/pkg/models"
	"github.com/jinford/repo-review/pkg/retry"
)

const (
	// DefaultReviewModel はデフォルトで使用するOpenAIモデル
	DefaultReviewModel = "gpt-4o-mini"

	// DefaultReviewTimeout はAPI呼び出しのデフォルトタイムアウト
	DefaultReviewTimeout = 60 * time.Second

	// reviewSystemPrompt はレスポンス形式を固定するためのシステムプロンプト
	reviewSystemPrompt = "You are a senior software engineer performing a professional code review. " +
		"Always respond with valid JSON only, no markdown, no code blocks."
)

// ErrAPIKeyNotSet はAPIキーが設定されていない場合のエラー
var ErrAPIKeyNotSet = errors.New("OpenAI API key not set")

// Reviewer は OpenAI Chat Completions を使用した review.Reviewer 実装
type Reviewer struct {
	client      openai.Client
	model       string
	temperature float64
	maxTokens   int
	timeout     time.Duration
	policy      retry.Policy
}

type reviewerOptions struct {
	model       string
	temperature float64
	maxTokens   int
	timeout     time.Duration
	policy      retry.Policy
}

// ReviewerOption は Reviewer のオプション設定
type ReviewerOption func(*reviewerOptions)

// WithReviewModel はモデル名を上書きする
func WithReviewModel(model string) ReviewerOption {
	return func(o *reviewerOptions) {
		o.model = model
	}
}

// WithTemperature は生成温度を上書きする
func WithTemperature(temperature float64) ReviewerOption {
	return func(o *reviewerOptions) {
		o.temperature = temperature
	}
}

// WithMaxTokens は最大生成トークン数を上書きする
func WithMaxTokens(maxTokens int) ReviewerOption {
	return func(o *reviewerOptions) {
		o.maxTokens = maxTokens
	}
}

// WithReviewRetryPolicy はリトライポリシーを上書きする
func WithReviewRetryPolicy(policy retry.Policy) ReviewerOption {
	return func(o *reviewerOptions) {
		o.policy = policy
	}
}

// NewReviewer は新しい Reviewer を作成する
func NewReviewer(apiKey string, opts ...ReviewerOption) (*Reviewer, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	options := reviewerOptions{
		model:       DefaultReviewModel,
		temperature: 0.3,
		maxTokens:   2048,
		timeout:     DefaultReviewTimeout,
		policy:      retry.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Reviewer{
		client:      openai.NewClient(option.WithAPIKey(apiKey)),
		model:       options.model,
		temperature: options.temperature,
		maxTokens:   options.maxTokens,
		timeout:     options.timeout,
		policy:      options.policy,
	}, nil
}

var _ review.Reviewer = (*Reviewer)(nil)

// GenerateReview はプロンプトから構造化レビューを生成する
// モデル応答のJSON解析失敗はパイプライン失敗ではなく、
// 解析エラーを示す1件のIssueを持つ縮退結果として返す
func (r *Reviewer) GenerateReview(ctx context.Context, prompt string) (*models.ReviewResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var content string
	err := r.policy.Do(ctx, func() error {
		params := openai.ChatCompletionNewParams{
			Model: shared.ChatModel(r.model),
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.SystemMessage(reviewSystemPrompt),
				openai.UserMessage(prompt),
			},
			Temperature: openai.Float(r.temperature),
			MaxTokens:   openai.Int(int64(r.maxTokens)),
			ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
				OfJSONObject: &shared.ResponseFormatJSONObjectParam{
					Type: "json_object",
				},
			},
		}

		completion, err := r.client.Chat.Completions.New(ctx, params)
		if err != nil {
			if rle := asRateLimitError(err); rle != nil {
				return rle
			}
			return fmt.Errorf("OpenAI API call failed: %w", err)
		}
		if len(completion.Choices) == 0 {
			return fmt.Errorf("no completion choices returned")
		}

		content = completion.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return nil, err
	}

	return ParseReviewResponse(content), nil
}

// ParseReviewResponse はモデル応答をReviewResultへ解析する
// 解析に失敗した場合は縮退結果を返す
func ParseReviewResponse(content string) *models.ReviewResult {
	cleaned := stripCodeFence(content)

	var result models.ReviewResult
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil || result.Summary == "" {
		return parseErrorResult()
	}
	if result.Issues == nil {
		result.Issues = []models.Issue{}
	}
	return &result
}

// stripCodeFence はモデルが指示に反して付けたコードフェンスを除去する
func stripCodeFence(content string) string {
	cleaned := strings.TrimSpace(content)
	if strings.HasPrefix(cleaned, "```json") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
	} else if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```")
	}
	cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
	return strings.TrimSpace(cleaned)
}

func parseErrorResult() *models.ReviewResult {
	return &models.ReviewResult{
		Summary: "Error parsing review response. The AI review completed but the response format was invalid.",
		Issues: []models.Issue{{
			Severity:    models.SeverityMedium,
			File:        "unknown",
			Description: "Failed to parse structured review response",
			Suggestion:  "Please try again or check the AI service configuration",
		}},
	}
}
