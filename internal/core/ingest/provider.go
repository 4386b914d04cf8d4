package ingest

import (
	"context"

	"github.com/jinford/repo-review/pkg/models"
)

// SourceProvider はソースリポジトリからファイル一覧を取得するインターフェース
// 拡張子フィルタや巨大ファイルの除外はプロバイダ側の責務
type SourceProvider interface {
	// ListFiles はリポジトリ内の対象ファイル一覧を取得する
	ListFiles(ctx context.Context, repo string) ([]models.SourceFile, error)
}
