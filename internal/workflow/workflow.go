// Package workflow runs one conversation turn: retrieval and answer generation
// on one branch, headline generation on the other, joined before the
// transcript is checkpointed.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ragchat/internal/models"
	"ragchat/internal/service/assistant"
	"ragchat/internal/store"
	"ragchat/internal/worker"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Retriever interface {
	Retrieve(ctx context.Context, query string) []string
}

type AnswerGenerator interface {
	Generate(ctx context.Context, query string, passages []string) string
}

type HeadlineGenerator interface {
	Headline(ctx context.Context, query string) (string, bool)
}

type Input struct {
	Query    string
	ThreadID string
	UserID   string
}

type Result struct {
	Query             string           `json:"query"`
	ThreadID          string           `json:"thread_id"`
	RetrievedDocs     []string         `json:"retrieved_docs"`
	Answer            string           `json:"answer"`
	Headline          string           `json:"headline"`
	HeadlineGenerated bool             `json:"-"`
	Messages          []models.Message `json:"messages"`
}

// Workflow holds the collaborators of a turn. All fields are required except Logger and Now.
type Workflow struct {
	Retriever   Retriever
	Answerer    AnswerGenerator
	Headliner   HeadlineGenerator
	Checkpoints store.Checkpointer
	Locker      worker.Locker
	Logger      *zap.Logger
	Now         func() time.Time
}

// Run executes one turn. Upstream failures degrade to fallback values;
// only lock and checkpoint errors are returned.
func (w *Workflow) Run(ctx context.Context, in Input) (*Result, error) {
	if in.ThreadID == "" || in.UserID == "" {
		return nil, errors.New("thread and user are required")
	}
	logger := w.logger().With(zap.String("thread_id", in.ThreadID), zap.String("user_id", in.UserID))

	unlock, err := w.Locker.Lock(ctx, worker.ThreadKey(in.ThreadID, in.UserID))
	if err != nil {
		return nil, fmt.Errorf("lock thread: %w", err)
	}
	defer unlock()

	key := models.CheckpointKey{ThreadID: in.ThreadID, UserID: in.UserID}
	prior, err := w.Checkpoints.Load(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	res := &Result{Query: in.Query, ThreadID: in.ThreadID}
	var g errgroup.Group
	g.Go(func() error {
		defer recoverBranch(logger, "answer", func() {
			res.Answer = assistant.ApologyAnswer
		})
		res.RetrievedDocs = w.Retriever.Retrieve(ctx, in.Query)
		res.Answer = w.Answerer.Generate(ctx, in.Query, res.RetrievedDocs)
		return nil
	})
	g.Go(func() error {
		defer recoverBranch(logger, "headline", func() {
			res.Headline, res.HeadlineGenerated = assistant.FallbackHeadline, false
		})
		res.Headline, res.HeadlineGenerated = w.Headliner.Headline(ctx, in.Query)
		return nil
	})
	_ = g.Wait()

	if res.RetrievedDocs == nil {
		res.RetrievedDocs = []string{}
	}

	var history []models.Message
	if prior != nil {
		history = prior.Messages
	}
	messages := make([]models.Message, 0, len(history)+2)
	messages = append(messages, history...)
	messages = append(messages,
		models.Message{Role: models.RoleUser, Content: models.TextContent(in.Query)},
		models.Message{Role: models.RoleAssistant, Content: models.TextContent(res.Answer)},
	)
	res.Messages = messages

	if err := w.Checkpoints.Save(ctx, key, &models.Checkpoint{
		ThreadID:  in.ThreadID,
		UserID:    in.UserID,
		Messages:  messages,
		Timestamp: w.now().UTC(),
	}); err != nil {
		return nil, fmt.Errorf("save checkpoint: %w", err)
	}
	logger.Info("turn completed",
		zap.Int("retrieved", len(res.RetrievedDocs)),
		zap.Bool("headline_generated", res.HeadlineGenerated),
		zap.Int("messages", len(messages)),
	)
	return res, nil
}

// recoverBranch converts a panic in one branch into its fallback value.
func recoverBranch(logger *zap.Logger, branch string, fallback func()) {
	if r := recover(); r != nil {
		logger.Error("workflow branch panicked", zap.String("branch", branch), zap.Any("panic", r), zap.Stack("stack"))
		fallback()
	}
}

func (w *Workflow) logger() *zap.Logger {
	if w.Logger == nil {
		return zap.NewNop()
	}
	return w.Logger
}

func (w *Workflow) now() time.Time {
	if w.Now == nil {
		return time.Now()
	}
	return w.Now()
}
