package commands

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"
)

// SearchAction はベクトル類似検索を実行するコマンドのアクション
func SearchAction(ctx context.Context, cmd *cli.Command) error {
	query := cmd.String("query")
	repo := cmd.String("repo")
	topK := cmd.Int("top-k")
	envFile := cmd.String("env")

	// 共通コンテキストの初期化
	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	slog.Info("検索を開始", "query", query, "repo", repo, "topK", topK)

	vector, err := appCtx.Batcher.EmbedOne(ctx, query)
	if err != nil {
		slog.Error("クエリのEmbedding生成に失敗", "error", err)
		return err
	}

	results, err := appCtx.Store.Search(ctx, vector, topK, repo)
	if err != nil {
		slog.Error("検索に失敗", "error", err)
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(results)
}
