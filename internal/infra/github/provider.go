package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"

	gh "github.com/google/go-github/v80/github"

	"github.com/jinford/repo-review/internal/core/ingest"
	"github.com/jinford/repo-review/pkg/models"
)

const (
	// MaxFiles はGitHub API経由で取得するファイル数の上限
	MaxFiles = 500

	// MaxBlobSize は取得対象とするファイルサイズの上限（バイト）
	MaxBlobSize = 1 << 20
)

// allowedExtensions はインジェスト対象とする拡張子
var allowedExtensions = []string{
	".go", ".ts", ".tsx", ".js", ".jsx", ".py",
	".md", ".json", ".yaml", ".yml",
}

// skippedDirs はツリー走査時に常に除外するディレクトリ
var skippedDirs = []string{
	".git", "node_modules", "vendor", "dist", "build",
	".next", "venv", ".venv", "__pycache__", "coverage",
}

// Provider は GitHub Contents API でファイルを取得する
// ローカルクローンを作らないため、クローン先の書き込み権限が不要
// ingest.SourceProvider を実装する
type Provider struct {
	client   *gh.Client
	maxFiles int
	logger   *slog.Logger
}

type providerOptions struct {
	maxFiles int
	logger   *slog.Logger
}

// ProviderOption は Provider のオプション設定
type ProviderOption func(*providerOptions)

// WithMaxFiles は取得ファイル数の上限を上書きする
func WithMaxFiles(maxFiles int) ProviderOption {
	return func(o *providerOptions) {
		o.maxFiles = maxFiles
	}
}

// WithProviderLogger は Provider にロガーを設定する
func WithProviderLogger(logger *slog.Logger) ProviderOption {
	return func(o *providerOptions) {
		o.logger = logger
	}
}

// NewProvider は新しい Provider を作成する
// token が空の場合は未認証クライアントとなる（パブリックリポジトリのみ）
func NewProvider(token string, opts ...ProviderOption) *Provider {
	options := providerOptions{
		maxFiles: MaxFiles,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.maxFiles <= 0 {
		options.maxFiles = MaxFiles
	}

	client := gh.NewClient(nil)
	if token != "" {
		client = client.WithAuthToken(token)
	}

	return &Provider{
		client:   client,
		maxFiles: options.maxFiles,
		logger:   options.logger,
	}
}

var _ ingest.SourceProvider = (*Provider)(nil)

// ListFiles はリポジトリのデフォルトブランチからソースファイルを取得する
// ツリーの列挙は1回のAPI呼び出しで行い、本文はファイルごとに取得する
func (p *Provider) ListFiles(ctx context.Context, repoURL string) ([]models.SourceFile, error) {
	owner, repo, err := ParseRepoURL(repoURL)
	if err != nil {
		return nil, err
	}

	repository, _, err := p.client.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return nil, fmt.Errorf("failed to get repository %s/%s: %w", owner, repo, err)
	}
	branch := repository.GetDefaultBranch()

	tree, _, err := p.client.Git.GetTree(ctx, owner, repo, branch, true)
	if err != nil {
		return nil, fmt.Errorf("failed to get repository tree: %w", err)
	}
	if tree.GetTruncated() {
		p.logger.Warn("リポジトリツリーが大きすぎるため一部のみ取得", "owner", owner, "repo", repo)
	}

	var files []models.SourceFile
	for _, entry := range tree.Entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(files) >= p.maxFiles {
			p.logger.Warn("ファイル数上限に到達", "maxFiles", p.maxFiles)
			break
		}

		if entry.GetType() != "blob" {
			continue
		}
		filePath := entry.GetPath()
		if inSkippedDir(filePath) || !hasAllowedExtension(filePath) {
			continue
		}
		if entry.GetSize() > MaxBlobSize {
			p.logger.Debug("サイズ上限超過のためスキップ", "path", filePath, "size", entry.GetSize())
			continue
		}

		content, err := p.fetchFile(ctx, owner, repo, filePath, branch)
		if err != nil {
			p.logger.Warn("ファイル取得に失敗、スキップ", "path", filePath, "error", err)
			continue
		}

		files = append(files, models.SourceFile{
			Path:    filePath,
			Content: content,
		})
	}

	p.logger.Info("ファイルを列挙", "owner", owner, "repo", repo, "files", len(files))
	return files, nil
}

func (p *Provider) fetchFile(ctx context.Context, owner, repo, filePath, ref string) ([]byte, error) {
	opts := &gh.RepositoryContentGetOptions{Ref: ref}
	fileContent, _, _, err := p.client.Repositories.GetContents(ctx, owner, repo, filePath, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get contents: %w", err)
	}
	if fileContent == nil {
		return nil, fmt.Errorf("path is a directory, not a file")
	}

	decoded, err := fileContent.GetContent()
	if err != nil {
		return nil, fmt.Errorf("failed to decode content: %w", err)
	}
	return []byte(decoded), nil
}

// ParseRepoURL は "owner/repo" 形式またはGitHub URLからオーナーとリポジトリ名を取り出す
func ParseRepoURL(repoURL string) (owner, repo string, err error) {
	trimmed := strings.TrimSuffix(strings.TrimSpace(repoURL), ".git")

	if strings.Contains(trimmed, "://") {
		u, err := url.Parse(trimmed)
		if err != nil {
			return "", "", fmt.Errorf("failed to parse repository URL: %w", err)
		}
		trimmed = strings.TrimPrefix(u.Path, "/")
	} else if after, ok := strings.CutPrefix(trimmed, "git@"); ok {
		if _, p, ok := strings.Cut(after, ":"); ok {
			trimmed = p
		}
	}

	parts := strings.Split(trimmed, "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository identifier: %s", repoURL)
	}
	return parts[0], parts[1], nil
}

func inSkippedDir(filePath string) bool {
	for _, part := range strings.Split(path.Dir(filePath), "/") {
		for _, skipped := range skippedDirs {
			if part == skipped {
				return true
			}
		}
	}
	return false
}

func hasAllowedExtension(filePath string) bool {
	ext := strings.ToLower(path.Ext(filePath))
	for _, allowed := range allowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}
