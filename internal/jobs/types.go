// Package jobs は翻訳ジョブの登録・実行・進捗配信を提供します。
package jobs

import "time"

// Status はジョブの実行状態を表します。
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "done"
	StatusFailed    Status = "error"
)

// EventType は配信イベントの種別です。
type EventType string

const (
	EventProgress EventType = "progress"
	EventDone     EventType = "done"
	EventError    EventType = "error"
)

// ProgressEvent はクライアントへ配信する正規化済みの進捗イベントです。
type ProgressEvent struct {
	Type    EventType `json:"type"`
	Pct     int       `json:"pct"`
	Stage   string    `json:"stage"`
	Message string    `json:"message"`
	Detail  string    `json:"detail,omitempty"`
}

// ResultPayload は成功したジョブの結果です。
type ResultPayload struct {
	OK        bool   `json:"ok"`
	Filename  string `json:"filename"`
	PDFBase64 string `json:"pdf_base64"`
	Pages     int    `json:"pages,omitempty"`
}

// ErrorPayload は失敗したジョブの結果です。
type ErrorPayload struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

// ProgressInfo は最新の進捗です。
type ProgressInfo struct {
	Percent int    `json:"pct"`
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// Snapshot はジョブ状態の読み取り専用コピーです。
type Snapshot struct {
	JobID     string       `json:"jobId"`
	Status    Status       `json:"status"`
	Progress  ProgressInfo `json:"progress"`
	Error     string       `json:"error,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}
