package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jinford/repo-review/pkg/models"
)

// Embedder はチャンクのEmbedding生成インターフェース
type Embedder interface {
	// Embed はチャンク列をEmbedding付きチャンクへ変換する
	Embed(ctx context.Context, chunks []models.Chunk) ([]models.EmbeddedChunk, error)

	// Ping はEmbeddingプロバイダの死活確認を行う
	Ping(ctx context.Context) error
}

// VectorWriter はEmbedding付きチャンクの永続化インターフェース
type VectorWriter interface {
	// Store はチャンクを冪等に保存する
	// アイテム単位の失敗は結果に集約され、呼び出し自体は成功する
	Store(ctx context.Context, chunks []models.EmbeddedChunk) (*models.StoreResult, error)
}

// IngestStats はインジェスト実行の集計結果を表す
type IngestStats struct {
	FilesProcessed  int `json:"filesProcessed"`
	FilesFailed     int `json:"filesFailed"`
	ChunksProcessed int `json:"chunksProcessed"`
	VectorsStored   int `json:"vectorsStored"`
	VectorsSkipped  int `json:"vectorsSkipped"` // 重複により保存をスキップした件数
	VectorsFailed   int `json:"vectorsFailed"`
}

// IngestService はインジェストのユースケースを提供する
// ピークメモリを抑えるため、全ファイルのチャンクを一括処理せず
// 1ファイルずつ チャンク化→Embedding→保存→解放 を繰り返す
type IngestService struct {
	segmenter      *Segmenter
	embedder       Embedder
	writer         VectorWriter
	maxTotalChunks int
	logger         *slog.Logger
}

type ingestOptions struct {
	maxTotalChunks int
	logger         *slog.Logger
}

// IngestOption は IngestService のオプション設定
type IngestOption func(*ingestOptions)

// WithMaxTotalChunks は1回の実行で処理するチャンク数の上限を設定する
func WithMaxTotalChunks(max int) IngestOption {
	return func(o *ingestOptions) {
		o.maxTotalChunks = max
	}
}

// WithIngestLogger は IngestService にロガーを設定する
func WithIngestLogger(logger *slog.Logger) IngestOption {
	return func(o *ingestOptions) {
		o.logger = logger
	}
}

// DefaultMaxTotalChunks は1回のインジェストで処理するチャンク数のデフォルト上限
const DefaultMaxTotalChunks = 10000

// NewIngestService は新しいIngestServiceを作成する
func NewIngestService(segmenter *Segmenter, embedder Embedder, writer VectorWriter, opts ...IngestOption) *IngestService {
	options := ingestOptions{
		maxTotalChunks: DefaultMaxTotalChunks,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	return &IngestService{
		segmenter:      segmenter,
		embedder:       embedder,
		writer:         writer,
		maxTotalChunks: options.maxTotalChunks,
		logger:         options.logger,
	}
}

// Ingest はファイル列をチャンク化してベクトルストアへ取り込む
// ファイル単位の失敗は記録して処理を継続し、実行全体は失敗させない
// Embeddingプロバイダが開始前から利用不可の場合のみ即座に失敗する
func (s *IngestService) Ingest(ctx context.Context, repo string, files []models.SourceFile) (*IngestStats, error) {
	if repo == "" {
		return nil, fmt.Errorf("repo identifier is required")
	}

	// 事前の死活確認：全ファイルで同じ失敗を繰り返さずフェイルファストする
	if err := s.embedder.Ping(ctx); err != nil {
		return nil, fmt.Errorf("embedding dependency check failed: %w", err)
	}

	s.logger.Info("インジェストを開始", "repo", repo, "files", len(files))

	stats := &IngestStats{}
	for _, file := range files {
		// キャンセルはファイル粒度で確認する
		if err := ctx.Err(); err != nil {
			s.logger.Warn("インジェストがキャンセルされました",
				"repo", repo,
				"processedFiles", stats.FilesProcessed,
			)
			return stats, err
		}

		// グローバル予算を使い切ったら以降のファイルは受け付けない
		remaining := s.maxTotalChunks - stats.ChunksProcessed
		if remaining <= 0 {
			s.logger.Warn("チャンク数の上限に達したため残りのファイルをスキップします",
				"repo", repo,
				"maxTotalChunks", s.maxTotalChunks,
			)
			break
		}

		if err := s.ingestFile(ctx, repo, file, remaining, stats); err != nil {
			// ファイル単位の失敗は記録して続行
			s.logger.Error("ファイルの取り込みに失敗",
				"repo", repo,
				"path", file.Path,
				"error", err,
			)
			stats.FilesFailed++
		}
	}

	s.logger.Info("インジェストが完了",
		"repo", repo,
		"filesProcessed", stats.FilesProcessed,
		"filesFailed", stats.FilesFailed,
		"chunksProcessed", stats.ChunksProcessed,
		"vectorsStored", stats.VectorsStored,
		"vectorsSkipped", stats.VectorsSkipped,
		"vectorsFailed", stats.VectorsFailed,
	)
	return stats, nil
}

// ingestFile は1ファイル分の チャンク化→Embedding→保存 を実行する
func (s *IngestService) ingestFile(ctx context.Context, repo string, file models.SourceFile, budget int, stats *IngestStats) error {
	chunks := s.segmenter.Segment(file, repo)
	if len(chunks) == 0 {
		// テキスト化できない・空のファイルは致命的ではない
		s.logger.Debug("チャンクが生成されなかったためスキップ", "path", file.Path)
		return nil
	}

	// 残りのグローバル予算を超える分は切り捨てる
	if len(chunks) > budget {
		s.logger.Warn("グローバル予算に合わせてファイルのチャンクを切り詰めます",
			"path", file.Path,
			"chunks", len(chunks),
			"budget", budget,
		)
		chunks = chunks[:budget]
	}

	embedded, err := s.embedder.Embed(ctx, chunks)
	if err != nil {
		stats.VectorsFailed += len(chunks)
		return fmt.Errorf("failed to embed chunks for %s: %w", file.Path, err)
	}

	result, err := s.writer.Store(ctx, embedded)
	if err != nil {
		stats.VectorsFailed += len(embedded)
		return fmt.Errorf("failed to store vectors for %s: %w", file.Path, err)
	}

	stats.FilesProcessed++
	stats.ChunksProcessed += len(chunks)
	stats.VectorsStored += result.Stored
	stats.VectorsSkipped += result.Skipped
	stats.VectorsFailed += result.Failed
	return nil
}
