package models

// SourceFile はソースプロバイダから取得された1ファイルを表します
type SourceFile struct {
	Path    string `json:"path"`
	Content []byte `json:"content"`
}

// Chunk はファイルを行ウィンドウで分割したチャンクを表します
// Segmenterが作成した後は変更されません
type Chunk struct {
	Repo    string `json:"repo"`
	Path    string `json:"path"`
	Content string `json:"content"`
}

// EmbeddedChunk はEmbeddingベクトルとチャンクメタデータの組を表します
// チャンクと1対1で対応し、ベクトルストアへ渡された後は
// ストアが所有者となります
type EmbeddedChunk struct {
	Vector []float32 `json:"vector"`
	Chunk  Chunk     `json:"metadata"`
}
