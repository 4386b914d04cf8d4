package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jinford/repo-review/cmd/repo-review/commands"
	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 構造化ログの設定
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	app := &cli.Command{
		Name:  "repo-review",
		Usage: "リポジトリコードレビュー向け RAG パイプライン",
		Commands: []*cli.Command{
			{
				Name:  "ingest",
				Usage: "リポジトリをチャンク化してベクトルストアへ取り込む",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "env",
						Usage: "環境変数ファイルパス",
						Value: ".env",
					},
					&cli.StringFlag{
						Name:     "url",
						Usage:    "リポジトリURL（SOURCE_PROVIDER=github時は owner/repo 形式も可）",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "repo",
						Usage: "リポジトリ識別子（省略時はURLを使用）",
					},
				},
				Action: commands.IngestAction,
			},
			{
				Name:  "search",
				Usage: "ベクトル類似検索を実行",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "env",
						Usage: "環境変数ファイルパス",
						Value: ".env",
					},
					&cli.StringFlag{
						Name:     "query",
						Usage:    "検索クエリ",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "repo",
						Usage: "リポジトリ識別子（省略時は全リポジトリを検索）",
					},
					&cli.IntFlag{
						Name:  "top-k",
						Usage: "取得件数 (1-100)",
						Value: 10,
					},
				},
				Action: commands.SearchAction,
			},
			{
				Name:  "review",
				Usage: "RAGコンテキスト付きコードレビューを実行",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "env",
						Usage: "環境変数ファイルパス",
						Value: ".env",
					},
					&cli.StringFlag{
						Name:     "query",
						Usage:    "レビュー観点（例: セキュリティ上の問題を確認）",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "repo",
						Usage:    "リポジトリ識別子",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "top-k",
						Usage: "コンテキストに含めるチャンク数",
						Value: 5,
					},
					&cli.BoolFlag{
						Name:  "prompt-only",
						Usage: "LLMを呼び出さず組み立てたプロンプトのみ表示",
					},
				},
				Action: commands.ReviewAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
