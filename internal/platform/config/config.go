package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// Database設定
	Database DatabaseConfig

	// Embedding生成設定
	Embedding EmbeddingConfig

	// レビュー生成用LLM設定
	Review ReviewConfig

	// ソース取得設定
	Source SourceConfig

	// パイプラインの上限値設定
	Limits Limits
}

// DatabaseConfig はデータベース接続設定
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// EmbeddingConfig はEmbedding生成の設定
// Provider が "http" の場合は社内のEmbeddingサービス、
// "openai" の場合は OpenAI API を使用する
type EmbeddingConfig struct {
	Provider   string // "http" or "openai"
	ServiceURL string // Embeddingサービスのベースurl（Provider=http時）
	APIKey     string // OpenAI APIキー（Provider=openai時）
	Model      string
	Dimension  int
	BatchSize  int
}

// ReviewConfig はレビュー生成用LLMの設定
type ReviewConfig struct {
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
}

// SourceConfig はソースリポジトリ取得の設定
type SourceConfig struct {
	Provider    string // "git" or "github"
	CloneDir    string
	GitHubToken string
}

// Limits はパイプライン全体のメモリ・サイズ上限を保持します
// 各コンポーネントに明示的に渡し、デプロイごとに上書き可能にする
type Limits struct {
	ChunkSize        int // チャンクあたりの行数
	OverlapSize      int // チャンク間のオーバーラップ行数
	MaxFileSize      int // ファイルあたりの最大文字数
	MaxChunkChars    int // チャンクあたりの最大文字数
	MaxLinesPerFile  int // ファイルあたりの最大行数
	MaxChunksPerFile int // ファイルあたりの最大チャンク数
	MaxTotalChunks   int // 1回のインジェストで処理する最大チャンク数
	MaxPromptChars   int // レビュープロンプトの最大文字数
}

// DefaultLimits はデフォルトの上限値を返します
func DefaultLimits() Limits {
	return Limits{
		ChunkSize:        30,
		OverlapSize:      5,
		MaxFileSize:      500000,
		MaxChunkChars:    10000,
		MaxLinesPerFile:  5000,
		MaxChunksPerFile: 200,
		MaxTotalChunks:   10000,
		MaxPromptChars:   30000,
	}
}

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "reporeview"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "reporeview"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Embedding: EmbeddingConfig{
			Provider:   getEnv("EMBEDDING_PROVIDER", "http"),
			ServiceURL: getEnv("EMBEDDING_SERVICE_URL", "http://localhost:8001"),
			APIKey:     getEnv("OPENAI_API_KEY", ""),
			Model:      getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
			Dimension:  getEnvAsInt("EMBEDDING_DIMENSION", 384),
			BatchSize:  getEnvAsInt("EMBEDDING_BATCH_SIZE", 50),
		},
		Review: ReviewConfig{
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			Model:       getEnv("REVIEW_LLM_MODEL", "gpt-4o-mini"),
			Temperature: getEnvAsFloat("REVIEW_LLM_TEMPERATURE", 0.3),
			MaxTokens:   getEnvAsInt("REVIEW_LLM_MAX_TOKENS", 2048),
		},
		Source: SourceConfig{
			Provider:    getEnv("SOURCE_PROVIDER", "git"),
			CloneDir:    getEnv("GIT_CLONE_DIR", "/var/lib/repo-review/repos"),
			GitHubToken: getEnv("GITHUB_TOKEN", ""),
		},
		Limits: loadLimits(),
	}

	return cfg, nil
}

// loadLimits は環境変数から上限値を読み込みます（未指定時はデフォルト値）
func loadLimits() Limits {
	def := DefaultLimits()
	return Limits{
		ChunkSize:        getEnvAsInt("CHUNK_SIZE", def.ChunkSize),
		OverlapSize:      getEnvAsInt("OVERLAP_SIZE", def.OverlapSize),
		MaxFileSize:      getEnvAsInt("MAX_FILE_SIZE", def.MaxFileSize),
		MaxChunkChars:    getEnvAsInt("MAX_CHUNK_CHARS", def.MaxChunkChars),
		MaxLinesPerFile:  getEnvAsInt("MAX_LINES_PER_FILE", def.MaxLinesPerFile),
		MaxChunksPerFile: getEnvAsInt("MAX_CHUNKS_PER_FILE", def.MaxChunksPerFile),
		MaxTotalChunks:   getEnvAsInt("MAX_TOTAL_CHUNKS", def.MaxTotalChunks),
		MaxPromptChars:   getEnvAsInt("MAX_PROMPT_CHARS", def.MaxPromptChars),
	}
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat は環境変数を浮動小数点数として取得します
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}
