package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/jinford/repo-review/internal/core/review"
)

// ReviewAction はRAGコンテキスト付きコードレビューを実行するコマンドのアクション
func ReviewAction(ctx context.Context, cmd *cli.Command) error {
	query := cmd.String("query")
	repo := cmd.String("repo")
	topK := cmd.Int("top-k")
	promptOnly := cmd.Bool("prompt-only")
	envFile := cmd.String("env")

	// 共通コンテキストの初期化
	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	slog.Info("レビューを開始", "query", query, "repo", repo, "topK", topK)

	service, err := newReviewService(appCtx)
	if err != nil {
		return err
	}

	// プロンプトの確認のみ行い、LLM呼び出しはスキップする
	if promptOnly {
		prompt, err := service.BuildContext(ctx, query, repo, topK)
		if err != nil {
			return reportReviewError(err)
		}
		fmt.Fprintln(os.Stdout, prompt)
		return nil
	}

	result, err := service.Review(ctx, query, repo, topK)
	if err != nil {
		return reportReviewError(err)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

// reportReviewError はレビュー系エラーのログ出力を共通化する
// 関連チャンク0件はパイプライン失敗ではないため警告に留める
func reportReviewError(err error) error {
	if errors.Is(err, review.ErrNoRelevantContent) {
		slog.Warn("クエリに関連するチャンクが見つかりませんでした")
		return err
	}
	slog.Error("レビューに失敗", "error", err)
	return err
}
