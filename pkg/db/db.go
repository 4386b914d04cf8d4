package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB はデータベース接続プールを保持します
// プロセス起動時に一度だけ作成し、必要とするコンポーネントへ
// 参照で渡します（隠れたグローバル状態を作らない）
type DB struct {
	Pool *pgxpool.Pool
}

// ConnectionParams はデータベース接続パラメータ
type ConnectionParams struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// Validate は必須の接続パラメータが揃っているかを確認します
func (p ConnectionParams) Validate() error {
	if p.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if p.User == "" {
		return fmt.Errorf("database user is required")
	}
	if p.DBName == "" {
		return fmt.Errorf("database name is required")
	}
	return nil
}

// New は新しいデータベース接続を作成します
func New(ctx context.Context, params ConnectionParams) (*DB, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid connection params: %w", err)
	}

	connString := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		params.Host,
		params.Port,
		params.User,
		params.Password,
		params.DBName,
		params.SSLMode,
	)
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// 接続テスト
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close はデータベース接続を閉じます
func (db *DB) Close() {
	db.Pool.Close()
}
