package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
	"unicode/utf8"

	"ragchat/internal/models"
)

var (
	// ErrNotFound reports a missing user, thread, checkpoint or token.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate reports a unique key violation.
	ErrDuplicate = errors.New("already exists")
)

// Checkpointer persists workflow state per (thread, user).
// Load returns nil, nil when no state exists.
type Checkpointer interface {
	Load(ctx context.Context, key models.CheckpointKey) (*models.Checkpoint, error)
	Save(ctx context.Context, key models.CheckpointKey, cp *models.Checkpoint) error
}

// Driver is a persistence backend for users, threads, checkpoints and session tokens.
type Driver interface {
	Checkpointer

	CreateUser(ctx context.Context, user *models.User) error
	UserByID(ctx context.Context, id string) (*models.User, error)
	// UserByLogin matches either the username or the email.
	UserByLogin(ctx context.Context, login string) (*models.User, error)

	// InsertThread adds the thread unless one with the same id exists.
	// It returns ErrNotFound when the user is missing.
	InsertThread(ctx context.Context, userID string, thread models.Thread) (bool, error)
	// ReplaceHeadline swaps the headline only while it still equals from.
	ReplaceHeadline(ctx context.Context, userID, threadID, from, to string) (bool, error)
	DeactivateThread(ctx context.Context, userID, threadID string) (bool, error)
	Threads(ctx context.Context, userID string) ([]models.Thread, error)

	SaveToken(ctx context.Context, token, userID string, createdAt, expiresAt time.Time) error
	LookupToken(ctx context.Context, token string) (string, time.Time, error)
	DeleteToken(ctx context.Context, token string) error
	DeleteUserTokens(ctx context.Context, userID string) error

	Close(ctx context.Context) error
}

// Store implements the thread operations on top of a Driver.
type Store struct {
	Driver
	now func() time.Time
}

// New wraps the driver.
func New(driver Driver) *Store {
	return &Store{Driver: driver, now: time.Now}
}

// EnsureThread registers threadID under the user when absent.
// It reports false when the user does not exist.
func (s *Store) EnsureThread(ctx context.Context, threadID, userID string) (bool, error) {
	if threadID == "" || userID == "" {
		return false, nil
	}
	if _, err := s.InsertThread(ctx, userID, models.NewThread(threadID, s.now())); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("ensure thread: %w", err)
	}
	return true, nil
}

// LoadHistory returns the paired questions and answers of the thread.
// A thread without a checkpoint yields empty sequences.
func (s *Store) LoadHistory(ctx context.Context, threadID, userID string) (models.ThreadHistory, error) {
	history := models.ThreadHistory{Questions: []string{}, Generations: []string{}}
	cp, err := s.Load(ctx, models.CheckpointKey{ThreadID: threadID, UserID: userID})
	if err != nil {
		return history, fmt.Errorf("load checkpoint: %w", err)
	}
	if cp == nil {
		return history, nil
	}
	history.Questions, history.Generations = PairMessages(cp.Messages)
	if !cp.Timestamp.IsZero() {
		ts := cp.Timestamp
		history.Timestamp = &ts
	}
	return history, nil
}

// SetHeadlineOnce replaces the placeholder headline. Later calls are no-ops.
func (s *Store) SetHeadlineOnce(ctx context.Context, threadID, userID, headline string) (bool, error) {
	updated, err := s.ReplaceHeadline(ctx, userID, threadID, models.DefaultHeadline, TruncateHeadline(headline))
	if err != nil {
		return false, fmt.Errorf("set headline: %w", err)
	}
	return updated, nil
}

// Deactivate soft-deletes the thread. It reports false when the thread is unknown.
func (s *Store) Deactivate(ctx context.Context, threadID, userID string) (bool, error) {
	ok, err := s.DeactivateThread(ctx, userID, threadID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("deactivate thread: %w", err)
	}
	return ok, nil
}

// ListActive returns the user's active threads, newest first.
func (s *Store) ListActive(ctx context.Context, userID string) ([]models.ThreadSummary, error) {
	threads, err := s.Threads(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	out := make([]models.ThreadSummary, 0, len(threads))
	for _, t := range threads {
		if !t.Active {
			continue
		}
		out = append(out, models.ThreadSummary{ThreadID: t.ThreadID, Headline: t.Headline, Timestamp: t.CreatedAt})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}

// PairMessages walks the transcript and keeps each user message that is
// directly followed by an assistant message. Anything else is skipped.
func PairMessages(msgs []models.Message) ([]string, []string) {
	questions := []string{}
	generations := []string{}
	for i := 0; i < len(msgs); {
		if i+1 < len(msgs) && msgs[i].Role == models.RoleUser && msgs[i+1].Role == models.RoleAssistant {
			questions = append(questions, msgs[i].Content.String())
			generations = append(generations, msgs[i+1].Content.String())
			i += 2
			continue
		}
		i++
	}
	return questions, generations
}

// TruncateHeadline caps the headline at MaxHeadlineLen runes, ending with "...".
func TruncateHeadline(headline string) string {
	if utf8.RuneCountInString(headline) <= models.MaxHeadlineLen {
		return headline
	}
	runes := []rune(headline)
	return string(runes[:models.MaxHeadlineLen-3]) + "..."
}
