package models

// IssueSeverity はレビュー指摘の深刻度を表します
type IssueSeverity string

const (
	SeverityHigh   IssueSeverity = "HIGH"
	SeverityMedium IssueSeverity = "MEDIUM"
	SeverityLow    IssueSeverity = "LOW"
)

// Issue はレビューで検出された1件の指摘を表します
type Issue struct {
	Severity    IssueSeverity `json:"severity"`
	File        string        `json:"file"`
	Line        string        `json:"line,omitempty"`
	Description string        `json:"description"`
	Suggestion  string        `json:"suggestion"`
}

// ReviewResult はレビューモデルが返す構造化された結果を表します
type ReviewResult struct {
	Summary string  `json:"summary"`
	Issues  []Issue `json:"issues"`
}
