package models

// SearchResult はベクトル類似検索の結果を表します
type SearchResult struct {
	Repo       string  `json:"repo"`
	Path       string  `json:"path"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}
