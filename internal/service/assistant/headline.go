package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
)

// FallbackHeadline is used when no headline could be generated.
const FallbackHeadline = "Conversation"

const headlinePrompt = "You are a conversation headline generator. " +
	"Based on the user's question, generate a short headline for the conversation. " +
	"The headline must be at most 5 words and summarize the topic of the question. " +
	"Output only the headline; do not include quotes or any additional content."

const headlineCutset = " \t\r\n\"'`“”‘’"

// Headliner labels threads from their first question.
type Headliner struct {
	assistantService
}

func NewHeadliner(chatModel ChatModel, logger *zap.Logger) *Headliner {
	return &Headliner{assistantService: newAssistantService(chatModel, logger)}
}

// Headline returns the label and whether it came from the model.
func (h *Headliner) Headline(ctx context.Context, query string) (string, bool) {
	headline, err := h.generate(ctx, query)
	if err != nil {
		h.logger.Warn("generate headline", zap.Error(err))
		return FallbackHeadline, false
	}
	return headline, true
}

func (h *Headliner) generate(ctx context.Context, query string) (string, error) {
	if h.chatModel == nil {
		return "", errors.New("chat model not configured")
	}
	messages := []*schema.Message{
		schema.SystemMessage(headlinePrompt),
		schema.UserMessage(fmt.Sprintf("Question: %s", query)),
	}
	resp, err := h.chatModel.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("generate headline failed: %w", err)
	}
	if resp == nil {
		return "", errors.New("empty model response")
	}
	headline := strings.Trim(stripReasoning(resp.Content), headlineCutset)
	if headline == "" {
		return "", errors.New("model returned an empty headline")
	}
	return headline, nil
}
