package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
)

// ApologyAnswer is returned whenever the model call fails.
const ApologyAnswer = "Sorry, I encountered an error while generating the answer."

const answerPrompt = `Based on the following context, please answer the question.

Context:
%s

Question: %s

Answer:`

// Answerer writes answers grounded on retrieved passages.
type Answerer struct {
	assistantService
}

func NewAnswerer(chatModel ChatModel, logger *zap.Logger) *Answerer {
	return &Answerer{assistantService: newAssistantService(chatModel, logger)}
}

// Generate answers query from passages. An empty passage list still goes to the model.
func (a *Answerer) Generate(ctx context.Context, query string, passages []string) string {
	answer, err := a.generate(ctx, query, passages)
	if err != nil {
		a.logger.Error("generate answer", zap.Error(err))
		return ApologyAnswer
	}
	return answer
}

func (a *Answerer) generate(ctx context.Context, query string, passages []string) (string, error) {
	if a.chatModel == nil {
		return "", errors.New("chat model not configured")
	}
	prompt := fmt.Sprintf(answerPrompt, strings.Join(passages, "\n\n"), query)
	resp, err := a.chatModel.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		return "", fmt.Errorf("generate answer failed: %w", err)
	}
	if resp == nil {
		return "", errors.New("empty model response")
	}
	return stripReasoning(resp.Content), nil
}
