package models

import (
	"time"
)

// JobStatus enumerates the lifecycle states of a chat job.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further forward transition exists.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Rank orders statuses along the lifecycle; terminal states share a rank.
func (s JobStatus) Rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusProcessing:
		return 1
	case StatusCompleted, StatusFailed:
		return 2
	default:
		return -1
	}
}

// Job is one tracked chat-turn processing request.
type Job struct {
	ID          string     `json:"id"`
	Status      JobStatus  `json:"status"`
	UserMessage string     `json:"user_message"`
	SessionID   string     `json:"session_id"`
	Response    *string    `json:"response,omitempty"`
	Error       *string    `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ProcessingTime is completedAt-createdAt for terminal jobs, now-createdAt otherwise.
func (j Job) ProcessingTime(now time.Time) time.Duration {
	if j.CompletedAt != nil {
		return j.CompletedAt.Sub(j.CreatedAt)
	}
	return now.Sub(j.CreatedAt)
}

// View snapshots the job in the shape served by the status endpoint.
func (j Job) View(now time.Time) JobView {
	v := JobView{
		JobID:          j.ID,
		Status:         j.Status,
		UserMessage:    j.UserMessage,
		Response:       j.Response,
		Error:          j.Error,
		CreatedAt:      j.CreatedAt.UnixMilli(),
		ProcessingTime: now.UnixMilli() - j.CreatedAt.UnixMilli(),
	}
	// Served values satisfy processingTime == completedAt - createdAt.
	if j.CompletedAt != nil {
		ms := j.CompletedAt.UnixMilli()
		v.CompletedAt = &ms
		v.ProcessingTime = ms - v.CreatedAt
	}
	return v
}

// JobView is the read-only status snapshot. Timestamps are epoch milliseconds.
type JobView struct {
	JobID          string    `json:"jobId"`
	Status         JobStatus `json:"status"`
	UserMessage    string    `json:"userMessage"`
	Response       *string   `json:"response,omitempty"`
	Error          *string   `json:"error,omitempty"`
	CreatedAt      int64     `json:"createdAt"`
	CompletedAt    *int64    `json:"completedAt,omitempty"`
	ProcessingTime int64     `json:"processingTime"`
}

// StringPtr returns a pointer to v.
func StringPtr(v string) *string {
	return &v
}
