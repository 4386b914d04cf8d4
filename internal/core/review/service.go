package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jinford/repo-review/pkg/models"
)

// ErrNoRelevantContent は検索結果が0件だった場合のエラー
// 正当な空結果の状態であり、パイプラインの失敗とは区別される
var ErrNoRelevantContent = errors.New("no relevant content found for query")

// DefaultTopK はレビュー用コンテキスト検索のデフォルト件数
// トークン上限のある生成呼び出しに渡すため、一般の検索より小さい
const DefaultTopK = 5

// QueryEmbedder はクエリテキストのEmbedding生成インターフェース
type QueryEmbedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// Searcher はベクトル類似検索のインターフェース
// repo が空文字列の場合はストア全体を検索する
type Searcher interface {
	Search(ctx context.Context, vector []float32, topK int, repo string) ([]models.SearchResult, error)
}

// Reviewer はプロンプトから構造化レビューを生成するインターフェース
type Reviewer interface {
	GenerateReview(ctx context.Context, prompt string) (*models.ReviewResult, error)
}

// ReviewService は検索とプロンプト組み立て、レビュー生成のユースケースを提供する
type ReviewService struct {
	embedder QueryEmbedder
	searcher Searcher
	reviewer Reviewer
	builder  *PromptBuilder
	logger   *slog.Logger
}

type reviewOptions struct {
	logger *slog.Logger
}

// ReviewOption は ReviewService のオプション設定
type ReviewOption func(*reviewOptions)

// WithReviewLogger は ReviewService にロガーを設定する
func WithReviewLogger(logger *slog.Logger) ReviewOption {
	return func(o *reviewOptions) {
		o.logger = logger
	}
}

// NewReviewService は新しいReviewServiceを作成する
func NewReviewService(embedder QueryEmbedder, searcher Searcher, reviewer Reviewer, builder *PromptBuilder, opts ...ReviewOption) *ReviewService {
	options := reviewOptions{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &ReviewService{
		embedder: embedder,
		searcher: searcher,
		reviewer: reviewer,
		builder:  builder,
		logger:   options.logger,
	}
}

// BuildContext はクエリに関連するチャンクを検索し、
// レビューモデルへ渡すサイズ制限付きプロンプトを組み立てる
// 関連チャンクが0件の場合は ErrNoRelevantContent を返す
func (s *ReviewService) BuildContext(ctx context.Context, query, repo string, topK int) (string, error) {
	if query == "" {
		return "", fmt.Errorf("query is required")
	}
	if repo == "" {
		return "", fmt.Errorf("repo identifier is required")
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	queryVector, err := s.embedder.EmbedOne(ctx, query)
	if err != nil {
		return "", fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := s.searcher.Search(ctx, queryVector, topK, repo)
	if err != nil {
		return "", fmt.Errorf("search failed: %w", err)
	}
	if len(results) == 0 {
		return "", ErrNoRelevantContent
	}

	prompt := s.builder.Build(repo, query, results)
	s.logger.Info("レビューコンテキストを構築",
		"repo", repo,
		"chunks", len(results),
		"promptChars", len(prompt),
		"estimatedTokens", s.builder.EstimateTokens(prompt),
	)
	return prompt, nil
}

// Review はクエリに基づいてコードレビューを実行する
func (s *ReviewService) Review(ctx context.Context, query, repo string, topK int) (*models.ReviewResult, error) {
	prompt, err := s.BuildContext(ctx, query, repo, topK)
	if err != nil {
		return nil, err
	}

	result, err := s.reviewer.GenerateReview(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate review: %w", err)
	}

	s.logger.Info("レビューが完了", "repo", repo, "issues", len(result.Issues))
	return result, nil
}
