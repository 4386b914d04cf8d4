package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jinford/repo-review/pkg/models"
	"github.com/jinford/repo-review/pkg/retry"
)

var (
	// ErrProviderUnavailable はEmbeddingプロバイダが利用不可の場合のエラー
	ErrProviderUnavailable = errors.New("embedding provider unavailable")

	// ErrVectorCountMismatch はレスポンスのベクトル数がリクエストの
	// テキスト数と一致しない場合のエラー
	ErrVectorCountMismatch = errors.New("vector count does not match text count")

	// ErrEmptyInput は入力が空の場合のエラー
	ErrEmptyInput = errors.New("no texts provided for embedding")
)

// Provider はEmbedding生成の外部サービスを抽象化する
type Provider interface {
	// EmbedBatch は複数テキストのEmbeddingを順序を保って生成する
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Health はプロバイダの死活確認を行う
	Health(ctx context.Context) error
}

// BatcherConfig はバッチ処理の設定
type BatcherConfig struct {
	BatchSize      int           // 1リクエストあたりのテキスト数
	MaxChunkLength int           // 送信前のテキスト最大文字数（トランスポート境界での再適用）
	BatchDelay     time.Duration // バッチ間の待機時間（プロバイダのスループット制限対策）
}

// DefaultBatcherConfig はデフォルトのバッチ設定を返す
func DefaultBatcherConfig() BatcherConfig {
	return BatcherConfig{
		BatchSize:      50,
		MaxChunkLength: 10000,
		BatchDelay:     100 * time.Millisecond,
	}
}

// Batcher はチャンクをバッチ単位でEmbeddingへ変換する
// 1回の呼び出しは全バッチ成功か全体失敗のどちらか（部分結果は返さない）
type Batcher struct {
	provider Provider
	cfg      BatcherConfig
	policy   retry.Policy
	logger   *slog.Logger
}

type batcherOptions struct {
	cfg    BatcherConfig
	policy retry.Policy
	logger *slog.Logger
}

// BatcherOption は Batcher のオプション設定
type BatcherOption func(*batcherOptions)

// WithBatcherConfig はバッチ設定を上書きする
func WithBatcherConfig(cfg BatcherConfig) BatcherOption {
	return func(o *batcherOptions) {
		o.cfg = cfg
	}
}

// WithRetryPolicy はリトライポリシーを上書きする
func WithRetryPolicy(policy retry.Policy) BatcherOption {
	return func(o *batcherOptions) {
		o.policy = policy
	}
}

// WithBatcherLogger は Batcher にロガーを設定する
func WithBatcherLogger(logger *slog.Logger) BatcherOption {
	return func(o *batcherOptions) {
		o.logger = logger
	}
}

// NewBatcher は新しいBatcherを作成する
func NewBatcher(provider Provider, opts ...BatcherOption) *Batcher {
	options := batcherOptions{
		cfg:    DefaultBatcherConfig(),
		policy: retry.DefaultPolicy(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.cfg.BatchSize <= 0 {
		options.cfg.BatchSize = DefaultBatcherConfig().BatchSize
	}

	return &Batcher{
		provider: provider,
		cfg:      options.cfg,
		policy:   options.policy,
		logger:   options.logger,
	}
}

// Ping はプロバイダの死活確認を行う
// 利用不可の場合は ErrProviderUnavailable でラップしたエラーを返す
func (b *Batcher) Ping(ctx context.Context) error {
	if err := b.provider.Health(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	return nil
}

// Embed はチャンク列をEmbedding付きチャンクへ変換する
// 事前に死活確認を行い、利用不可であればチャンク単位で失敗させる
// のではなく呼び出し全体を即座に失敗させる
func (b *Batcher) Embed(ctx context.Context, chunks []models.Chunk) ([]models.EmbeddedChunk, error) {
	if len(chunks) == 0 {
		return nil, ErrEmptyInput
	}

	if err := b.Ping(ctx); err != nil {
		return nil, err
	}

	totalBatches := (len(chunks) + b.cfg.BatchSize - 1) / b.cfg.BatchSize
	b.logger.Info("Embedding生成を開始",
		"chunks", len(chunks),
		"batches", totalBatches,
		"batchSize", b.cfg.BatchSize,
	)

	results := make([]models.EmbeddedChunk, 0, len(chunks))
	for i := 0; i < len(chunks); i += b.cfg.BatchSize {
		end := i + b.cfg.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[i:end]
		batchNum := i/b.cfg.BatchSize + 1

		vectors, err := b.embedBatch(ctx, batch)
		if err != nil {
			// 1バッチの失敗は呼び出し全体の失敗
			// （失敗の分離はオーケストレータがファイル単位で行う）
			return nil, fmt.Errorf("batch %d/%d failed: %w", batchNum, totalBatches, err)
		}

		for j, vector := range vectors {
			chunk := batch[j]
			chunk.Content = b.truncate(chunk.Content)
			results = append(results, models.EmbeddedChunk{
				Vector: vector,
				Chunk:  chunk,
			})
		}

		// バッチ間の意図的なバックプレッシャ
		if end < len(chunks) && b.cfg.BatchDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(b.cfg.BatchDelay):
			}
		}
	}

	b.logger.Info("Embedding生成が完了", "embedded", len(results))
	return results, nil
}

// EmbedOne は単一テキストのEmbeddingを生成する
// クエリやレビュー質問のEmbedding生成に使用され、
// バッチ処理は行わないが切り詰めルールは共有する
func (b *Batcher) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}

	texts := []string{b.truncate(text)}
	var vectors [][]float32
	err := b.policy.Do(ctx, func() error {
		var embedErr error
		vectors, embedErr = b.provider.EmbedBatch(ctx, texts)
		return embedErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to embed text: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: got %d vectors for 1 text", ErrVectorCountMismatch, len(vectors))
	}

	return vectors[0], nil
}

// embedBatch は1バッチ分のEmbeddingを生成する
// ベクトル数の不一致は埋めたり推測したりせずハードエラーとする
func (b *Batcher) embedBatch(ctx context.Context, batch []models.Chunk) ([][]float32, error) {
	texts := make([]string, len(batch))
	for i, chunk := range batch {
		texts[i] = b.truncate(chunk.Content)
	}

	var vectors [][]float32
	err := b.policy.Do(ctx, func() error {
		var embedErr error
		vectors, embedErr = b.provider.EmbedBatch(ctx, texts)
		return embedErr
	})
	if err != nil {
		return nil, err
	}

	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts",
			ErrVectorCountMismatch, len(vectors), len(texts))
	}

	return vectors, nil
}

// truncate はトランスポート境界でのテキスト切り詰めを行う
// Segmenter側の上限とは独立した防御
func (b *Batcher) truncate(text string) string {
	if b.cfg.MaxChunkLength > 0 && len(text) > b.cfg.MaxChunkLength {
		return text[:b.cfg.MaxChunkLength]
	}
	return text
}
