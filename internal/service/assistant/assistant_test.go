package assistant

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeModel struct {
	reply string
	err   error
	seen  []*schema.Message
}

func (f *fakeModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.seen = input
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func TestAnswerFillsTemplate(t *testing.T) {
	m := &fakeModel{reply: "LangChain is a framework."}
	a := NewAnswerer(m, nil)

	got := a.Generate(context.Background(), "What is LangChain?", []string{"doc one", "doc two"})
	assert.Equal(t, "LangChain is a framework.", got)
	require.Len(t, m.seen, 1)
	prompt := m.seen[0].Content
	assert.True(t, strings.HasPrefix(prompt, "Based on the following context, please answer the question."))
	assert.Contains(t, prompt, "Context:\ndoc one\n\ndoc two\n")
	assert.Contains(t, prompt, "Question: What is LangChain?")
	assert.True(t, strings.HasSuffix(prompt, "Answer:"))
}

func TestAnswerWithEmptyContextIsNotAnApology(t *testing.T) {
	a := NewAnswerer(&fakeModel{reply: "I don't know."}, nil)
	got := a.Generate(context.Background(), "What is LangChain?", nil)
	assert.NotEmpty(t, got)
	assert.NotEqual(t, ApologyAnswer, got)
}

func TestAnswerStripsReasoning(t *testing.T) {
	a := NewAnswerer(&fakeModel{reply: "<think>\nlet me see\n</think>\n\nFinal answer.<think>more</think>"}, nil)
	assert.Equal(t, "Final answer.", a.Generate(context.Background(), "q", nil))
}

func TestAnswerErrorReturnsApology(t *testing.T) {
	a := NewAnswerer(&fakeModel{err: errors.New("rate limited")}, nil)
	assert.Equal(t, ApologyAnswer, a.Generate(context.Background(), "q", []string{"ctx"}))

	assert.Equal(t, ApologyAnswer, NewAnswerer(nil, nil).Generate(context.Background(), "q", nil))
}

func TestHeadlineTrimsQuotes(t *testing.T) {
	m := &fakeModel{reply: "  \"LangChain Overview\"\n"}
	h := NewHeadliner(m, nil)
	got, ok := h.Headline(context.Background(), "What is LangChain?")
	assert.True(t, ok)
	assert.Equal(t, "LangChain Overview", got)
	require.Len(t, m.seen, 2)
	assert.Equal(t, schema.System, m.seen[0].Role)
	assert.Contains(t, m.seen[1].Content, "What is LangChain?")

	got, ok = NewHeadliner(&fakeModel{reply: "<think>hmm</think>“Vector Search”"}, nil).Headline(context.Background(), "q")
	assert.True(t, ok)
	assert.Equal(t, "Vector Search", got)
}

func TestHeadlineFallback(t *testing.T) {
	got, ok := NewHeadliner(&fakeModel{err: errors.New("down")}, nil).Headline(context.Background(), "q")
	assert.False(t, ok)
	assert.Equal(t, FallbackHeadline, got)

	got, ok = NewHeadliner(&fakeModel{reply: " '' "}, nil).Headline(context.Background(), "q")
	assert.False(t, ok)
	assert.Equal(t, FallbackHeadline, got)
}
