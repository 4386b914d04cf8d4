package ingest

import (
	"strings"
	"unicode/utf8"

	"github.com/go-enry/go-enry/v2"

	"github.com/jinford/repo-review/pkg/models"
)

// SegmenterConfig はチャンク分割の設定
type SegmenterConfig struct {
	ChunkSize        int // チャンクあたりの行数
	OverlapSize      int // チャンク間のオーバーラップ行数
	MaxFileSize      int // ファイルあたりの最大文字数
	MaxChunkChars    int // チャンクあたりの最大文字数
	MaxLinesPerFile  int // ファイルあたりの最大行数
	MaxChunksPerFile int // ファイルあたりの最大チャンク数
}

// DefaultSegmenterConfig はデフォルトのチャンク分割設定を返す
func DefaultSegmenterConfig() SegmenterConfig {
	return SegmenterConfig{
		ChunkSize:        30,
		OverlapSize:      5,
		MaxFileSize:      500000,
		MaxChunkChars:    10000,
		MaxLinesPerFile:  5000,
		MaxChunksPerFile: 200,
	}
}

// Segmenter はファイルを行ウィンドウ単位のチャンクへ分割する
// 純粋関数として動作し、I/Oを伴わない
type Segmenter struct {
	cfg SegmenterConfig
}

// NewSegmenter は新しいSegmenterを作成する
func NewSegmenter(cfg SegmenterConfig) *Segmenter {
	return &Segmenter{cfg: cfg}
}

// Segment はファイルをチャンクの列に分割する
// テキストとして扱えないファイルは0チャンクを返す（エラーにはしない）
func (s *Segmenter) Segment(file models.SourceFile, repo string) []models.Chunk {
	content, ok := s.normalize(file.Content)
	if !ok {
		return nil
	}

	content = s.truncateToLineLimit(content)

	lines := strings.Split(content, "\n")
	if len(lines) == 0 || (len(lines) == 1 && strings.TrimSpace(lines[0]) == "") {
		return nil
	}

	// 小さなファイルは1チャンクにまとめる（オーバーラップ管理が不要な一般的ケース）
	if len(lines) <= s.cfg.ChunkSize {
		return []models.Chunk{{
			Repo:    repo,
			Path:    file.Path,
			Content: s.truncateChunk(content),
		}}
	}

	// オーバーラップがウィンドウ以上の場合は前進を保証できないため
	// オーバーラップなしとして扱う
	overlap := s.cfg.OverlapSize
	if overlap >= s.cfg.ChunkSize {
		overlap = 0
	}

	var chunks []models.Chunk
	start := 0
	for start < len(lines) && len(chunks) < s.cfg.MaxChunksPerFile {
		end := start + s.cfg.ChunkSize
		if end > len(lines) {
			end = len(lines)
		}
		window := lines[start:end]

		// 空行のみのウィンドウはチャンク数にカウントせず捨てる
		if hasContent(window) {
			chunks = append(chunks, models.Chunk{
				Repo:    repo,
				Path:    file.Path,
				Content: s.truncateChunk(strings.Join(window, "\n")),
			})
		}

		// 最終行まで到達したら終了（末尾でのオーバーラップ再処理を防ぐ）
		if end == len(lines) {
			break
		}

		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}

	return chunks
}

// normalize はファイル内容をテキストへ正規化する
// バイナリや不正なUTF-8は変換不能として扱う
func (s *Segmenter) normalize(content []byte) (string, bool) {
	if len(content) == 0 {
		return "", false
	}
	if enry.IsBinary(content) {
		return "", false
	}
	if !utf8.Valid(content) {
		return "", false
	}

	text := string(content)
	if len(text) > s.cfg.MaxFileSize {
		text = text[:s.cfg.MaxFileSize]
	}
	return text, true
}

// truncateToLineLimit は行数上限を超える入力を上限行で切り詰める
// 行スライスを構築せず、改行の数え上げだけで切り詰め位置を決める
func (s *Segmenter) truncateToLineLimit(content string) string {
	newlines := 0
	for i := 0; i < len(content); i++ {
		if content[i] != '\n' {
			continue
		}
		newlines++
		if newlines == s.cfg.MaxLinesPerFile {
			return content[:i+1]
		}
	}
	return content
}

// truncateChunk はチャンク本文を最大文字数で切り詰める
// 行数制限後も巨大な1行が残るケースへの防御
func (s *Segmenter) truncateChunk(content string) string {
	if len(content) <= s.cfg.MaxChunkChars {
		return content
	}
	return content[:s.cfg.MaxChunkChars]
}

func hasContent(lines []string) bool {
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			return true
		}
	}
	return false
}
