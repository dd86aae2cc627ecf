package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/docmentor/docmentor/internal/config"
	"github.com/docmentor/docmentor/internal/domain"
	"github.com/docmentor/docmentor/internal/llm"
)

// Mode selects how the agent treats conversation history
type Mode string

const (
	// ModeQA answers every question on its own
	ModeQA Mode = "qa"
	// ModeChat carries previous turns into the next question
	ModeChat Mode = "chat"
)

// ParseMode resolves a configured mode name, defaulting to ModeQA
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(s)) {
	case ModeQA, "":
		return ModeQA, nil
	case ModeChat:
		return ModeChat, nil
	default:
		return "", fmt.Errorf("unknown generator mode: %s", s)
	}
}

// Retriever finds the chunks related to a question
type Retriever interface {
	SearchRelatedChunks(ctx context.Context, query string, topk int) ([]domain.RelatedChunk, error)
}

// Answer is a generated reply together with the chunks it was grounded on
type Answer struct {
	Text    string                `json:"answer"`
	Sources []domain.RelatedChunk `json:"sources"`
}

// RAGAgent answers questions about the ingested documents
type RAGAgent struct {
	retriever    Retriever
	client       llm.ChatClient
	mode         Mode
	historyLimit int
	logger       *slog.Logger

	mu      sync.Mutex
	history []llm.Message
}

// Option configures a RAGAgent
type Option func(*RAGAgent)

// WithLogger sets the agent logger
func WithLogger(logger *slog.Logger) Option {
	return func(a *RAGAgent) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewRAGAgent creates a new RAG agent
func NewRAGAgent(retriever Retriever, client llm.ChatClient, cfg config.GeneratorConfig, opts ...Option) (*RAGAgent, error) {
	mode, err := ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}
	a := &RAGAgent{
		retriever:    retriever,
		client:       client,
		mode:         mode,
		historyLimit: cfg.HistoryLimit,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Ask answers a question using the topk most related chunks.
// A topk <= 0 uses the store default.
func (a *RAGAgent) Ask(ctx context.Context, question string, topk int) (*Answer, error) {
	sources, messages, err := a.prepare(ctx, question, topk)
	if err != nil {
		return nil, err
	}

	response, err := a.client.Chat(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	a.remember(question, response)
	return &Answer{Text: response, Sources: sources}, nil
}

// AskStream answers a question and streams the response through handler.
// The related chunks are returned once the stream completes.
func (a *RAGAgent) AskStream(ctx context.Context, question string, topk int, handler llm.StreamHandler) ([]domain.RelatedChunk, error) {
	sources, messages, err := a.prepare(ctx, question, topk)
	if err != nil {
		return nil, err
	}

	var fullResponse strings.Builder
	err = a.client.ChatStream(ctx, messages, func(content string, done bool) error {
		fullResponse.WriteString(content)
		return handler(content, done)
	})
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	a.remember(question, fullResponse.String())
	return sources, nil
}

func (a *RAGAgent) prepare(ctx context.Context, question string, topk int) ([]domain.RelatedChunk, []llm.Message, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, nil, fmt.Errorf("question must not be empty")
	}

	sources, err := a.retriever.SearchRelatedChunks(ctx, question, topk)
	if err != nil {
		return nil, nil, fmt.Errorf("retrieval failed: %w", err)
	}
	a.logger.Debug("retrieved context", "question", question, "chunks", len(sources), "mode", a.mode)

	messages := []llm.Message{{Role: "system", Content: systemPrompt}}
	if a.mode == ModeChat {
		a.mu.Lock()
		messages = append(messages, a.history...)
		a.mu.Unlock()
	}
	messages = append(messages, llm.Message{Role: "user", Content: buildPrompt(question, buildContext(sources))})
	return sources, messages, nil
}

// remember records a finished turn. History keeps the bare question
// rather than the prompt, so old context does not pile up.
func (a *RAGAgent) remember(question, response string) {
	if a.mode != ModeChat {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.history = append(a.history,
		llm.Message{Role: "user", Content: question},
		llm.Message{Role: "assistant", Content: response},
	)
	if a.historyLimit > 0 && len(a.history) > a.historyLimit {
		a.history = append([]llm.Message(nil), a.history[len(a.history)-a.historyLimit:]...)
	}
}

// buildContext builds the context string from retrieved chunks
func buildContext(chunks []domain.RelatedChunk) string {
	if len(chunks) == 0 {
		return "No relevant passages were found in the documents."
	}

	var sb strings.Builder
	sb.WriteString("Here are relevant passages from the documents:\n\n")
	for i, c := range chunks {
		fmt.Fprintf(&sb, "--- Passage %d ---\n", i+1)
		fmt.Fprintf(&sb, "Document: %s (chunk %d, distance %.4f)\n", c.DocumentID, c.Position, c.Distance)
		sb.WriteString(c.Text)
		sb.WriteString("\n\n")
	}
	return sb.String()
}

// buildPrompt builds the full prompt with context
func buildPrompt(question, context string) string {
	return fmt.Sprintf(`Based on the following context, please answer the question.

%s

Question: %s

Instructions:
1. Answer based on the provided passages
2. If the passages don't contain enough information, say so
3. Name the documents you relied on
4. Be concise but thorough`, context, question)
}

const systemPrompt = `You are DocMentor, an assistant that answers questions about a collection of documents.

Your responsibilities:
1. Answer questions using the provided passages
2. Quote or paraphrase the relevant parts
3. Admit when information is not available in the provided context

Be accurate, concise, and helpful.`

// History returns a copy of the remembered conversation
func (a *RAGAgent) History() []llm.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]llm.Message(nil), a.history...)
}

// ClearHistory clears the conversation history
func (a *RAGAgent) ClearHistory() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = nil
}

// Mode returns the agent mode
func (a *RAGAgent) Mode() Mode {
	return a.mode
}

// ChatModel returns the model used for generation
func (a *RAGAgent) ChatModel() string {
	return a.client.ChatModel()
}

// CheckHealth checks if the LLM is accessible
func (a *RAGAgent) CheckHealth(ctx context.Context) error {
	return a.client.CheckHealth(ctx)
}
