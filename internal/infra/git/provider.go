package git

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-enry/go-enry/v2"
	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/jinford/repo-review/internal/core/ingest"
	"github.com/jinford/repo-review/pkg/models"
)

// MaxSourceFileSize は読み込み対象とするファイルサイズの上限（バイト）
const MaxSourceFileSize = 1 << 20

// allowedExtensions はインジェスト対象とする拡張子
var allowedExtensions = []string{
	".go", ".ts", ".tsx", ".js", ".jsx", ".py",
	".md", ".json", ".yaml", ".yml",
}

// defaultIgnorePatterns は .gitignore の有無にかかわらず常に除外するパターン
var defaultIgnorePatterns = []string{
	".git/",
	"node_modules/",
	"vendor/",
	"dist/",
	"build/",
	".next/",
	"venv/",
	".venv/",
	"__pycache__/",
	"coverage/",
	"*.min.js",
	"*.lock",
	"package-lock.json",
}

// Provider はリポジトリをローカルにクローンしてファイルを列挙する
// ingest.SourceProvider を実装する
type Provider struct {
	client   *Client
	cloneDir string
	logger   *slog.Logger
}

type providerOptions struct {
	logger *slog.Logger
}

// ProviderOption は Provider のオプション設定
type ProviderOption func(*providerOptions)

// WithProviderLogger は Provider にロガーを設定する
func WithProviderLogger(logger *slog.Logger) ProviderOption {
	return func(o *providerOptions) {
		o.logger = logger
	}
}

// NewProvider は新しい Provider を作成する
func NewProvider(client *Client, cloneDir string, opts ...ProviderOption) *Provider {
	options := providerOptions{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Provider{
		client:   client,
		cloneDir: cloneDir,
		logger:   options.logger,
	}
}

var _ ingest.SourceProvider = (*Provider)(nil)

// ListFiles はリポジトリをクローン（既存なら更新）し、
// インジェスト対象のソースファイルを返す
func (p *Provider) ListFiles(ctx context.Context, repoURL string) ([]models.SourceFile, error) {
	dirName, err := p.client.URLToDirectoryName(repoURL)
	if err != nil {
		return nil, err
	}
	repoPath := filepath.Join(p.cloneDir, dirName)

	if err := os.MkdirAll(filepath.Dir(repoPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create clone directory: %w", err)
	}

	p.logger.Info("リポジトリを同期", "url", repoURL, "path", repoPath)
	if err := p.client.CloneOrPull(ctx, repoURL, repoPath, ""); err != nil {
		return nil, err
	}

	matcher := p.buildIgnoreMatcher(repoPath)

	var files []models.SourceFile
	err = filepath.WalkDir(repoPath, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(repoPath, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel != "." && matcher.MatchesPath(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}

		if matcher.MatchesPath(rel) {
			return nil
		}
		if !hasAllowedExtension(rel) {
			return nil
		}
		if enry.IsVendor(rel) || enry.IsGenerated(rel, nil) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() > MaxSourceFileSize {
			p.logger.Debug("サイズ上限超過のためスキップ", "path", rel, "size", info.Size())
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read file %s: %w", rel, err)
		}

		files = append(files, models.SourceFile{
			Path:    rel,
			Content: content,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk repository: %w", err)
	}

	p.logger.Info("ファイルを列挙", "url", repoURL, "files", len(files))
	return files, nil
}

// buildIgnoreMatcher はリポジトリの .gitignore / .reviewignore と
// デフォルトパターンを組み合わせたマッチャーを作成する
func (p *Provider) buildIgnoreMatcher(repoPath string) *gitignore.GitIgnore {
	patterns := make([]string, 0, len(defaultIgnorePatterns))
	patterns = append(patterns, defaultIgnorePatterns...)

	for _, name := range []string{".gitignore", ".reviewignore"} {
		path := filepath.Join(repoPath, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		lines, err := readIgnoreFile(path)
		if err != nil {
			p.logger.Warn("除外ファイルの読み込みに失敗、スキップ", "file", name, "error", err)
			continue
		}
		patterns = append(patterns, lines...)
	}

	return gitignore.CompileIgnoreLines(patterns...)
}

// readIgnoreFile は除外ファイルを行単位で読み込む
func readIgnoreFile(path string) ([]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var lines []string
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func hasAllowedExtension(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, allowed := range allowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}
