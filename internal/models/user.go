package models

import "time"

const (
	DefaultHeadline = "New Conversation"
	MaxHeadlineLen  = 255
)

// User is the unit of authorization; threads are scoped to it.
type User struct {
	ID           string    `json:"id" bson:"_id"`
	Email        string    `json:"email" bson:"email"`
	Username     string    `json:"username,omitempty" bson:"username,omitempty"`
	PasswordHash string    `json:"-" bson:"password_hash"`
	CreatedAt    time.Time `json:"created_at" bson:"created_at"`
	Threads      []Thread  `json:"threads,omitempty" bson:"threads"`
}

// DisplayName prefers the username and falls back to the email.
func (u *User) DisplayName() string {
	if u.Username != "" {
		return u.Username
	}
	return u.Email
}

// Thread is a named conversation owned by one user.
type Thread struct {
	ThreadID  string    `json:"thread_id" bson:"thread_id"`
	CreatedAt time.Time `json:"timestamp" bson:"created_at"`
	Headline  string    `json:"headline" bson:"headline"`
	Active    bool      `json:"active" bson:"active"`
}

// NewThread returns a thread record with the placeholder headline.
func NewThread(threadID string, now time.Time) Thread {
	return Thread{
		ThreadID:  threadID,
		CreatedAt: now.UTC(),
		Headline:  DefaultHeadline,
		Active:    true,
	}
}
