package embed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/repo-review/pkg/models"
	"github.com/jinford/repo-review/pkg/retry"
)

// stubProvider はテスト用の Provider 実装
type stubProvider struct {
	healthErr    error
	embedErr     error
	shortBatch   bool // リクエストより1本少ないベクトルを返す
	failuresLeft int  // 指定回数だけ失敗してから成功する
	batches      [][]string
}

func (s *stubProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	s.batches = append(s.batches, texts)
	if s.failuresLeft > 0 {
		s.failuresLeft--
		return nil, &retry.RateLimitError{Err: errors.New("rate limited")}
	}
	if s.embedErr != nil {
		return nil, s.embedErr
	}
	n := len(texts)
	if s.shortBatch {
		n--
	}
	vectors := make([][]float32, n)
	for i := range vectors {
		vectors[i] = []float32{float32(i), 0.5}
	}
	return vectors, nil
}

func (s *stubProvider) Health(ctx context.Context) error {
	return s.healthErr
}

func testChunks(n int) []models.Chunk {
	chunks := make([]models.Chunk, n)
	for i := range chunks {
		chunks[i] = models.Chunk{
			Repo:    "myrepo",
			Path:    fmt.Sprintf("file%d.go", i),
			Content: fmt.Sprintf("content %d", i),
		}
	}
	return chunks
}

// fastPolicy は待機なしのリトライポリシーを返す
func fastPolicy(maxAttempts int) retry.Policy {
	return retry.Policy{
		MaxAttempts: maxAttempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    time.Millisecond,
		Retryable:   retry.IsRateLimit,
	}
}

func TestBatcher_Embed(t *testing.T) {
	provider := &stubProvider{}
	batcher := NewBatcher(provider, WithBatcherConfig(BatcherConfig{
		BatchSize:      2,
		MaxChunkLength: 10000,
	}))

	embedded, err := batcher.Embed(context.Background(), testChunks(5))

	require.NoError(t, err)
	require.Len(t, embedded, 5)
	// 2件ずつ3バッチに分割される
	assert.Len(t, provider.batches, 3)
	// 入力順が保たれる
	for i, ec := range embedded {
		assert.Equal(t, fmt.Sprintf("file%d.go", i), ec.Chunk.Path)
	}
}

func TestBatcher_Embed_EmptyInput(t *testing.T) {
	batcher := NewBatcher(&stubProvider{})

	_, err := batcher.Embed(context.Background(), nil)

	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestBatcher_Embed_ProviderUnavailable(t *testing.T) {
	// 死活確認に失敗した場合はバッチを1件も送らない
	provider := &stubProvider{healthErr: errors.New("connection refused")}
	batcher := NewBatcher(provider)

	_, err := batcher.Embed(context.Background(), testChunks(3))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Empty(t, provider.batches)
}

func TestBatcher_Embed_VectorCountMismatch(t *testing.T) {
	// ベクトル数の不一致は埋め合わせずハードエラーにする
	provider := &stubProvider{shortBatch: true}
	batcher := NewBatcher(provider)

	_, err := batcher.Embed(context.Background(), testChunks(5))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrVectorCountMismatch)
}

func TestBatcher_Embed_BatchFailureAbortsCall(t *testing.T) {
	provider := &stubProvider{embedErr: errors.New("boom")}
	batcher := NewBatcher(provider,
		WithBatcherConfig(BatcherConfig{BatchSize: 2, MaxChunkLength: 10000}),
		WithRetryPolicy(retry.Policy{MaxAttempts: 1, Retryable: retry.IsRateLimit}),
	)

	embedded, err := batcher.Embed(context.Background(), testChunks(5))

	require.Error(t, err)
	assert.Nil(t, embedded)
}

func TestBatcher_Embed_RetriesRateLimit(t *testing.T) {
	// レート制限エラーはリトライして成功する
	provider := &stubProvider{failuresLeft: 2}
	batcher := NewBatcher(provider, WithRetryPolicy(fastPolicy(3)))

	embedded, err := batcher.Embed(context.Background(), testChunks(2))

	require.NoError(t, err)
	assert.Len(t, embedded, 2)
	assert.Len(t, provider.batches, 3)
}

func TestBatcher_Embed_TruncatesLongChunks(t *testing.T) {
	provider := &stubProvider{}
	batcher := NewBatcher(provider, WithBatcherConfig(BatcherConfig{
		BatchSize:      50,
		MaxChunkLength: 10,
	}))

	chunks := []models.Chunk{{
		Repo:    "myrepo",
		Path:    "long.go",
		Content: strings.Repeat("x", 100),
	}}

	embedded, err := batcher.Embed(context.Background(), chunks)

	require.NoError(t, err)
	require.Len(t, provider.batches, 1)
	assert.Len(t, provider.batches[0][0], 10)
	assert.Len(t, embedded[0].Chunk.Content, 10)
}

func TestBatcher_EmbedOne(t *testing.T) {
	provider := &stubProvider{}
	batcher := NewBatcher(provider)

	vector, err := batcher.EmbedOne(context.Background(), "how does auth work")

	require.NoError(t, err)
	assert.NotEmpty(t, vector)
	require.Len(t, provider.batches, 1)
	assert.Equal(t, []string{"how does auth work"}, provider.batches[0])
}

func TestBatcher_EmbedOne_EmptyText(t *testing.T) {
	batcher := NewBatcher(&stubProvider{})

	_, err := batcher.EmbedOne(context.Background(), "")

	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestBatcher_Ping(t *testing.T) {
	tests := []struct {
		name      string
		healthErr error
		wantErr   bool
	}{
		{name: "正常", healthErr: nil, wantErr: false},
		{name: "利用不可", healthErr: errors.New("timeout"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batcher := NewBatcher(&stubProvider{healthErr: tt.healthErr})
			err := batcher.Ping(context.Background())
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrProviderUnavailable)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
