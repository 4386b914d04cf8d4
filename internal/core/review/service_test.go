package review

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/repo-review/pkg/models"
)

// stubQueryEmbedder はテスト用の QueryEmbedder 実装
type stubQueryEmbedder struct {
	err error
}

func (s *stubQueryEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

// stubSearcher はテスト用の Searcher 実装
type stubSearcher struct {
	results []models.SearchResult
	err     error
	gotTopK int
	gotRepo string
}

func (s *stubSearcher) Search(ctx context.Context, vector []float32, topK int, repo string) ([]models.SearchResult, error) {
	s.gotTopK = topK
	s.gotRepo = repo
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

// stubReviewer はテスト用の Reviewer 実装
type stubReviewer struct {
	result    *models.ReviewResult
	err       error
	gotPrompt string
}

func (s *stubReviewer) GenerateReview(ctx context.Context, prompt string) (*models.ReviewResult, error) {
	s.gotPrompt = prompt
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func newTestService(t *testing.T, searcher *stubSearcher, reviewer *stubReviewer) *ReviewService {
	t.Helper()
	builder, err := NewPromptBuilder(30000)
	require.NoError(t, err)
	return NewReviewService(&stubQueryEmbedder{}, searcher, reviewer, builder)
}

func TestReviewService_BuildContext(t *testing.T) {
	searcher := &stubSearcher{results: testResults(2)}
	service := newTestService(t, searcher, &stubReviewer{})

	prompt, err := service.BuildContext(context.Background(), "check auth", "myrepo", 5)

	require.NoError(t, err)
	assert.Contains(t, prompt, "--- FILE 1: internal/service1.go ---")
	assert.Equal(t, 5, searcher.gotTopK)
	assert.Equal(t, "myrepo", searcher.gotRepo)
}

func TestReviewService_BuildContext_Validation(t *testing.T) {
	service := newTestService(t, &stubSearcher{results: testResults(1)}, &stubReviewer{})

	tests := []struct {
		name  string
		query string
		repo  string
	}{
		{name: "クエリなし", query: "", repo: "myrepo"},
		{name: "リポジトリなし", query: "check auth", repo: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.BuildContext(context.Background(), tt.query, tt.repo, 5)
			assert.Error(t, err)
		})
	}
}

func TestReviewService_BuildContext_DefaultTopK(t *testing.T) {
	searcher := &stubSearcher{results: testResults(1)}
	service := newTestService(t, searcher, &stubReviewer{})

	_, err := service.BuildContext(context.Background(), "check auth", "myrepo", 0)

	require.NoError(t, err)
	assert.Equal(t, DefaultTopK, searcher.gotTopK)
}

func TestReviewService_BuildContext_NoRelevantContent(t *testing.T) {
	// 検索結果0件は失敗ではなく専用のエラーで区別する
	searcher := &stubSearcher{results: nil}
	service := newTestService(t, searcher, &stubReviewer{})

	_, err := service.BuildContext(context.Background(), "check auth", "myrepo", 5)

	assert.ErrorIs(t, err, ErrNoRelevantContent)
}

func TestReviewService_Review(t *testing.T) {
	reviewer := &stubReviewer{result: &models.ReviewResult{
		Summary: "Looks good overall.",
		Issues: []models.Issue{{
			Severity:    models.SeverityLow,
			File:        "internal/service1.go",
			Description: "Minor style issue",
			Suggestion:  "Rename variable",
		}},
	}}
	service := newTestService(t, &stubSearcher{results: testResults(2)}, reviewer)

	result, err := service.Review(context.Background(), "check auth", "myrepo", 5)

	require.NoError(t, err)
	assert.Equal(t, "Looks good overall.", result.Summary)
	require.Len(t, result.Issues, 1)
	// レビュワーには組み立て済みプロンプトが渡る
	assert.Contains(t, reviewer.gotPrompt, "--- FILE 1:")
}

func TestReviewService_Review_GenerationFailure(t *testing.T) {
	reviewer := &stubReviewer{err: errors.New("model overloaded")}
	service := newTestService(t, &stubSearcher{results: testResults(1)}, reviewer)

	_, err := service.Review(context.Background(), "check auth", "myrepo", 5)

	assert.Error(t, err)
}
