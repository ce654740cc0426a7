package assistant

import (
	"context"
	"regexp"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
)

// ChatModel is the part of an eino chat model the generators use.
type ChatModel interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

var thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)

// stripReasoning removes <think>...</think> blocks some models emit before the answer.
func stripReasoning(text string) string {
	return strings.TrimSpace(thinkBlock.ReplaceAllString(text, ""))
}

type assistantService struct {
	chatModel ChatModel
	logger    *zap.Logger
}

func newAssistantService(chatModel ChatModel, logger *zap.Logger) assistantService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return assistantService{chatModel: chatModel, logger: logger}
}
