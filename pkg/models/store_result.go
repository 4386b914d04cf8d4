package models

// StoreResult はベクトルストアへの書き込み結果を表します
// 個々のアイテムの失敗はErrorsに集約され、全体の失敗にはなりません
type StoreResult struct {
	Stored  int      `json:"stored"`
	Skipped int      `json:"skipped"` // 重複により挿入をスキップした件数
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

// Merge は別のStoreResultの件数を加算します
func (r *StoreResult) Merge(other *StoreResult) {
	if other == nil {
		return
	}
	r.Stored += other.Stored
	r.Skipped += other.Skipped
	r.Failed += other.Failed
	r.Errors = append(r.Errors, other.Errors...)
}
