package commands

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"
)

// IngestAction はリポジトリをインジェストするコマンドのアクション
func IngestAction(ctx context.Context, cmd *cli.Command) error {
	repoURL := cmd.String("url")
	repo := cmd.String("repo")
	envFile := cmd.String("env")

	// 共通コンテキストの初期化
	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	// repo 省略時はURLをそのまま識別子として使う
	if repo == "" {
		repo = repoURL
	}

	slog.Info("インジェストを開始", "url", repoURL, "repo", repo)

	provider, err := newSourceProvider(appCtx)
	if err != nil {
		return err
	}

	files, err := provider.ListFiles(ctx, repoURL)
	if err != nil {
		slog.Error("ソースファイルの取得に失敗", "error", err)
		return err
	}

	service := newIngestService(appCtx)
	stats, err := service.Ingest(ctx, repo, files)
	if err != nil {
		slog.Error("インジェストに失敗", "error", err)
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(stats)
}
