package postgres

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/jinford/repo-review/internal/core/ingest"
	"github.com/jinford/repo-review/internal/core/review"
	"github.com/jinford/repo-review/pkg/models"
)

const (
	// DefaultStoreBatchSize は書き込みバッチのサイズ
	DefaultStoreBatchSize = 20

	// MinTopK / MaxTopK は検索件数の許容範囲
	MinTopK = 1
	MaxTopK = 100
)

// Store は code_chunks テーブルを使用したベクトルストア実装
// ingest.VectorWriter と review.Searcher を実装する
type Store struct {
	pool      *pgxpool.Pool
	dimension int
	batchSize int
	logger    *slog.Logger
}

type storeOptions struct {
	batchSize int
	logger    *slog.Logger
}

// StoreOption は Store のオプション設定
type StoreOption func(*storeOptions)

// WithStoreBatchSize は書き込みバッチサイズを上書きする
func WithStoreBatchSize(size int) StoreOption {
	return func(o *storeOptions) {
		o.batchSize = size
	}
}

// WithStoreLogger は Store にロガーを設定する
func WithStoreLogger(logger *slog.Logger) StoreOption {
	return func(o *storeOptions) {
		o.logger = logger
	}
}

// NewStore は既存の接続プールを使用して Store を作成する
// プールの所有権は呼び出し側にあり、クローズも呼び出し側の責務
func NewStore(pool *pgxpool.Pool, dimension int, opts ...StoreOption) *Store {
	options := storeOptions{
		batchSize: DefaultStoreBatchSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.batchSize <= 0 {
		options.batchSize = DefaultStoreBatchSize
	}

	return &Store{
		pool:      pool,
		dimension: dimension,
		batchSize: options.batchSize,
		logger:    options.logger,
	}
}

var (
	_ ingest.VectorWriter = (*Store)(nil)
	_ review.Searcher     = (*Store)(nil)
)

// EnsureSchema は拡張・テーブル・インデックスを作成する
// すべて冪等なステートメントのため複数回呼んでも安全
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS code_chunks (
			id UUID PRIMARY KEY,
			repo TEXT NOT NULL,
			path TEXT NOT NULL,
			content TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.dimension),
		`CREATE UNIQUE INDEX IF NOT EXISTS code_chunks_identity_idx
			ON code_chunks (repo, path, content_hash)`,
		`CREATE INDEX IF NOT EXISTS code_chunks_embedding_idx
			ON code_chunks USING hnsw (embedding vector_cosine_ops)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}

// Store はEmbedding付きチャンクを固定サイズのバッチで保存する
// バッチ内の各アイテムは独立して保存され、1件の失敗が他を妨げない
// （Embedding Batcherのバッチ全体失敗とは対照的な分離粒度）
func (s *Store) Store(ctx context.Context, chunks []models.EmbeddedChunk) (*models.StoreResult, error) {
	result := &models.StoreResult{}
	for i := 0; i < len(chunks); i += s.batchSize {
		end := i + s.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch, err := s.storeBatch(ctx, chunks[i:end])
		if err != nil {
			return nil, err
		}
		result.Merge(batch)
	}

	s.logger.Info("ベクトルを保存",
		"stored", result.Stored,
		"skipped", result.Skipped,
		"failed", result.Failed,
	)
	return result, nil
}

// storeBatch は1バッチ分を保存する
// キャンセルのみ呼び出し全体のエラーとし、個々の失敗は結果へ集約する
func (s *Store) storeBatch(ctx context.Context, batch []models.EmbeddedChunk) (*models.StoreResult, error) {
	result := &models.StoreResult{}
	for _, chunk := range batch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		stored, err := s.insertIfAbsent(ctx, chunk)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors,
				fmt.Sprintf("%s: %v", chunk.Chunk.Path, err))
			continue
		}
		if stored {
			result.Stored++
		} else {
			result.Skipped++
		}
	}
	return result, nil
}

// insertIfAbsent は (repo, path, content) が未保存の場合のみ挿入する
// 挿入前の存在確認により、同一ファイルの再インジェストをno-opにする
// （アイテムごとに1回余分なルックアップを払う明示的なトレードオフ）
func (s *Store) insertIfAbsent(ctx context.Context, chunk models.EmbeddedChunk) (bool, error) {
	hash := contentHash(chunk.Chunk.Content)

	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM code_chunks WHERE repo = $1 AND path = $2 AND content_hash = $3
		)`,
		chunk.Chunk.Repo, chunk.Chunk.Path, hash,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check for existing document: %w", err)
	}
	if exists {
		return false, nil
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO code_chunks (id, repo, path, content, content_hash, embedding)
		 VALUES ($1, $2, $3, $4, $5, $6::vector)
		 ON CONFLICT (repo, path, content_hash) DO NOTHING`,
		uuid.New(),
		chunk.Chunk.Repo,
		chunk.Chunk.Path,
		chunk.Chunk.Content,
		hash,
		pgvector.NewVector(chunk.Vector).String(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert document: %w", err)
	}
	return true, nil
}

// Search はクエリベクトルに近いチャンクをコサイン類似度の降順で返す
// repo が空文字列の場合はストア全体を検索する
func (s *Store) Search(ctx context.Context, vector []float32, topK int, repo string) ([]models.SearchResult, error) {
	if topK < MinTopK || topK > MaxTopK {
		return nil, fmt.Errorf("topK must be between %d and %d, got %d", MinTopK, MaxTopK, topK)
	}

	queryVector := pgvector.NewVector(vector).String()

	query := `SELECT repo, path, content, 1 - (embedding <=> $1::vector) AS similarity
		FROM code_chunks`
	args := []any{queryVector}
	if repo != "" {
		query += ` WHERE repo = $2`
		args = append(args, repo)
	}
	query += fmt.Sprintf(` ORDER BY embedding <=> $1::vector LIMIT %d`, topK)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search vectors: %w", err)
	}
	defer rows.Close()

	var results []models.SearchResult
	for rows.Next() {
		var r models.SearchResult
		if err := rows.Scan(&r.Repo, &r.Path, &r.Content, &r.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read search results: %w", err)
	}

	return results, nil
}

// contentHash はチャンク本文のSHA-256ハッシュを返す
// 重複判定キー (repo, path, content) の content 部分を固定長にする
func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
