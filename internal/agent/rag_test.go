package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docmentor/docmentor/internal/config"
	"github.com/docmentor/docmentor/internal/domain"
	"github.com/docmentor/docmentor/internal/llm"
)

type stubRetriever struct {
	chunks []domain.RelatedChunk
	err    error
	topk   int
}

func (s *stubRetriever) SearchRelatedChunks(_ context.Context, _ string, topk int) ([]domain.RelatedChunk, error) {
	s.topk = topk
	return s.chunks, s.err
}

type stubChat struct {
	reply    string
	err      error
	received [][]llm.Message
}

func (s *stubChat) Chat(_ context.Context, messages []llm.Message) (string, error) {
	s.received = append(s.received, messages)
	return s.reply, s.err
}

func (s *stubChat) ChatStream(_ context.Context, messages []llm.Message, handler llm.StreamHandler) error {
	s.received = append(s.received, messages)
	if s.err != nil {
		return s.err
	}
	for _, word := range strings.SplitAfter(s.reply, " ") {
		if err := handler(word, false); err != nil {
			return err
		}
	}
	return handler("", true)
}

func (s *stubChat) CheckHealth(context.Context) error { return s.err }
func (s *stubChat) ChatModel() string                 { return "stub" }

var sampleChunks = []domain.RelatedChunk{
	{DocumentID: "guide.md", Position: 2, Text: "Run the installer.", Distance: 0.25},
}

func TestRAGAgent_AskQA(t *testing.T) {
	r := &stubRetriever{chunks: sampleChunks}
	c := &stubChat{reply: "Use the installer."}
	a, err := NewRAGAgent(r, c, config.GeneratorConfig{Mode: "qa"})
	require.NoError(t, err)

	answer, err := a.Ask(context.Background(), "How do I install?", 3)
	require.NoError(t, err)
	assert.Equal(t, "Use the installer.", answer.Text)
	assert.Equal(t, sampleChunks, answer.Sources)
	assert.Equal(t, 3, r.topk)

	require.Len(t, c.received, 1)
	msgs := c.received[0]
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Contains(t, msgs[1].Content, "Run the installer.")
	assert.Contains(t, msgs[1].Content, "Document: guide.md (chunk 2")

	// qa mode keeps no history
	assert.Empty(t, a.History())
}

func TestRAGAgent_ChatHistory(t *testing.T) {
	c := &stubChat{reply: "ok"}
	a, err := NewRAGAgent(&stubRetriever{}, c, config.GeneratorConfig{Mode: "chat", HistoryLimit: 4})
	require.NoError(t, err)
	assert.Equal(t, ModeChat, a.Mode())

	ctx := context.Background()
	for _, q := range []string{"one", "two", "three"} {
		_, err := a.Ask(ctx, q, 0)
		require.NoError(t, err)
	}

	history := a.History()
	require.Len(t, history, 4)
	assert.Equal(t, "two", history[0].Content)
	assert.Equal(t, "three", history[2].Content)

	// the third request carried the first two turns
	assert.Len(t, c.received[2], 1+4+1)
	assert.Contains(t, c.received[2][5].Content, "No relevant passages")

	a.ClearHistory()
	assert.Empty(t, a.History())
}

func TestRAGAgent_AskStream(t *testing.T) {
	c := &stubChat{reply: "streamed answer here"}
	a, err := NewRAGAgent(&stubRetriever{chunks: sampleChunks}, c, config.GeneratorConfig{Mode: "chat"})
	require.NoError(t, err)

	var sb strings.Builder
	sources, err := a.AskStream(context.Background(), "q", 0, func(content string, done bool) error {
		sb.WriteString(content)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "streamed answer here", sb.String())
	assert.Equal(t, sampleChunks, sources)
	assert.Equal(t, "streamed answer here", a.History()[1].Content)
}

func TestRAGAgent_Errors(t *testing.T) {
	_, err := NewRAGAgent(&stubRetriever{}, &stubChat{}, config.GeneratorConfig{Mode: "poem"})
	assert.Error(t, err)

	a, err := NewRAGAgent(&stubRetriever{err: domain.ErrDimensionMismatch}, &stubChat{}, config.GeneratorConfig{Mode: "chat"})
	require.NoError(t, err)
	_, err = a.Ask(context.Background(), "q", 0)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	_, err = a.Ask(context.Background(), "   ", 0)
	assert.Error(t, err)

	boom := errors.New("model offline")
	a, err = NewRAGAgent(&stubRetriever{}, &stubChat{err: boom}, config.GeneratorConfig{Mode: "chat"})
	require.NoError(t, err)
	_, err = a.Ask(context.Background(), "q", 0)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, a.History())
	assert.ErrorIs(t, a.CheckHealth(context.Background()), boom)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeQA, m)

	m, err = ParseMode("CHAT")
	require.NoError(t, err)
	assert.Equal(t, ModeChat, m)
}
