package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jinford/repo-review/internal/core/embed"
	"github.com/jinford/repo-review/internal/core/ingest"
	"github.com/jinford/repo-review/internal/core/review"
	"github.com/jinford/repo-review/internal/infra/embedhttp"
	gitprovider "github.com/jinford/repo-review/internal/infra/git"
	githubprovider "github.com/jinford/repo-review/internal/infra/github"
	openaiinfra "github.com/jinford/repo-review/internal/infra/openai"
	"github.com/jinford/repo-review/internal/infra/postgres"
	"github.com/jinford/repo-review/internal/platform/config"
	"github.com/jinford/repo-review/internal/platform/logger"
	"github.com/jinford/repo-review/pkg/db"
)

// AppContext はコマンド実行に必要な共通コンテキストを保持する
type AppContext struct {
	Config   *config.Config
	Database *db.DB
	Store    *postgres.Store
	Batcher  *embed.Batcher
	Logger   *slog.Logger
}

// NewAppContext は設定ファイルを読み込み、DBに接続して AppContext を作成する
func NewAppContext(ctx context.Context, envFile string) (*AppContext, error) {
	// 設定の読み込み（platform層を使用）
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("設定の読み込みに失敗: %w", err)
	}

	// ロガーの初期化（platform層を使用）
	appLogger := logger.New(logger.DefaultConfig())

	// DB接続はプロセスで一度だけ作成し、各コンポーネントへ参照で渡す
	database, err := db.New(ctx, db.ConnectionParams{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	store := postgres.NewStore(database.Pool, cfg.Embedding.Dimension,
		postgres.WithStoreLogger(appLogger),
	)
	if err := store.EnsureSchema(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("スキーマの初期化に失敗: %w", err)
	}

	provider, err := newEmbedProvider(cfg)
	if err != nil {
		database.Close()
		return nil, err
	}

	batcher := embed.NewBatcher(provider,
		embed.WithBatcherConfig(embed.BatcherConfig{
			BatchSize:      cfg.Embedding.BatchSize,
			MaxChunkLength: cfg.Limits.MaxChunkChars,
			BatchDelay:     embed.DefaultBatcherConfig().BatchDelay,
		}),
		embed.WithBatcherLogger(appLogger),
	)

	return &AppContext{
		Config:   cfg,
		Database: database,
		Store:    store,
		Batcher:  batcher,
		Logger:   appLogger,
	}, nil
}

// Close はAppContextが保持するリソースをクリーンアップする
func (ac *AppContext) Close() {
	if ac.Database != nil {
		ac.Database.Close()
	}
}

// newEmbedProvider は設定に応じたEmbeddingプロバイダを作成する
func newEmbedProvider(cfg *config.Config) (embed.Provider, error) {
	switch cfg.Embedding.Provider {
	case "http":
		return embedhttp.NewClient(cfg.Embedding.ServiceURL), nil
	case "openai":
		if cfg.Embedding.APIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for embedding provider %q", cfg.Embedding.Provider)
		}
		return openaiinfra.NewEmbedder(cfg.Embedding.APIKey,
			openaiinfra.WithEmbeddingModel(cfg.Embedding.Model),
			openaiinfra.WithEmbeddingDimension(cfg.Embedding.Dimension),
		), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Embedding.Provider)
	}
}

// newSourceProvider は設定に応じたソースプロバイダを作成する
func newSourceProvider(ac *AppContext) (ingest.SourceProvider, error) {
	cfg := ac.Config
	switch cfg.Source.Provider {
	case "git":
		client := gitprovider.NewClient(cfg.Source.GitHubToken)
		return gitprovider.NewProvider(client, cfg.Source.CloneDir,
			gitprovider.WithProviderLogger(ac.Logger),
		), nil
	case "github":
		return githubprovider.NewProvider(cfg.Source.GitHubToken,
			githubprovider.WithProviderLogger(ac.Logger),
		), nil
	default:
		return nil, fmt.Errorf("unknown source provider: %s", cfg.Source.Provider)
	}
}

// newIngestService はインジェストに必要なコンポーネントを組み立てる
func newIngestService(ac *AppContext) *ingest.IngestService {
	segmenter := ingest.NewSegmenter(ingest.SegmenterConfig{
		ChunkSize:        ac.Config.Limits.ChunkSize,
		OverlapSize:      ac.Config.Limits.OverlapSize,
		MaxFileSize:      ac.Config.Limits.MaxFileSize,
		MaxChunkChars:    ac.Config.Limits.MaxChunkChars,
		MaxLinesPerFile:  ac.Config.Limits.MaxLinesPerFile,
		MaxChunksPerFile: ac.Config.Limits.MaxChunksPerFile,
	})

	return ingest.NewIngestService(segmenter, ac.Batcher, ac.Store,
		ingest.WithMaxTotalChunks(ac.Config.Limits.MaxTotalChunks),
		ingest.WithIngestLogger(ac.Logger),
	)
}

// newReviewService はレビューに必要なコンポーネントを組み立てる
func newReviewService(ac *AppContext) (*review.ReviewService, error) {
	builder, err := review.NewPromptBuilder(ac.Config.Limits.MaxPromptChars)
	if err != nil {
		return nil, fmt.Errorf("プロンプトビルダーの初期化に失敗: %w", err)
	}

	reviewer, err := openaiinfra.NewReviewer(ac.Config.Review.APIKey,
		openaiinfra.WithReviewModel(ac.Config.Review.Model),
		openaiinfra.WithTemperature(ac.Config.Review.Temperature),
		openaiinfra.WithMaxTokens(ac.Config.Review.MaxTokens),
	)
	if err != nil {
		return nil, fmt.Errorf("レビュワーの初期化に失敗: %w", err)
	}

	return review.NewReviewService(ac.Batcher, ac.Store, reviewer, builder,
		review.WithReviewLogger(ac.Logger),
	), nil
}
