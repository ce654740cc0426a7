package models

import "time"

// CheckpointKey identifies the persisted workflow state of one thread.
type CheckpointKey struct {
	ThreadID string
	UserID   string
}

// Checkpoint is the persisted transcript of a thread.
type Checkpoint struct {
	ThreadID  string    `json:"thread_id"`
	UserID    string    `json:"user_id"`
	Messages  []Message `json:"messages"`
	Timestamp time.Time `json:"timestamp"`
}

// ThreadHistory is the paired view of a checkpoint used for display.
type ThreadHistory struct {
	Questions   []string   `json:"question"`
	Generations []string   `json:"generation"`
	Timestamp   *time.Time `json:"timestamp"`
}

// ThreadSummary is one entry of a user's thread list.
type ThreadSummary struct {
	ThreadID  string    `json:"thread_id"`
	Headline  string    `json:"headline"`
	Timestamp time.Time `json:"timestamp"`
}
