package domain

import "time"

type TaskState string

const (
	TaskStateRunning   TaskState = "RUNNING"
	TaskStateSucceeded TaskState = "SUCCEEDED"
	TaskStateFailed    TaskState = "FAILED"
)

// Result summarizes one crawl of a shop's remote contracts.
type Result struct {
	Shop       string    `json:"shop"`
	Pages      int       `json:"pages"`
	Contracts  int       `json:"contracts"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// TaskStatus is a point-in-time view of a background crawl.
type TaskStatus struct {
	Result
	State TaskState `json:"state"`
	Error string    `json:"error,omitempty"`
}
