package llm

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/docmentor/docmentor/internal/config"
)

// Message represents a chat message
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// StreamHandler is a callback function for handling streamed responses
type StreamHandler func(content string, done bool) error

// ChatClient is implemented by every chat backend
type ChatClient interface {
	Chat(ctx context.Context, messages []Message) (string, error)
	ChatStream(ctx context.Context, messages []Message, handler StreamHandler) error
	CheckHealth(ctx context.Context) error
	ChatModel() string
}

// StatusError is returned when a model service answers with a non-2xx status.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Service, e.StatusCode, e.Body)
}

// Temporary reports whether retrying the request may succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

func statusError(service string, resp *http.Response) error {
	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &StatusError{Service: service, StatusCode: resp.StatusCode, Body: string(bodyBytes)}
}

// NewChatClient creates the chat backend selected by generator.provider
func NewChatClient(cfg *config.Config) (ChatClient, error) {
	switch cfg.Generator.Provider {
	case "ollama", "":
		return NewClient(cfg.Ollama).WithTemperature(cfg.Generator.Temperature), nil
	case "openai":
		client, err := NewOpenAIClient(cfg.OpenAI)
		if err != nil {
			return nil, err
		}
		return client.WithTemperature(cfg.Generator.Temperature), nil
	default:
		return nil, fmt.Errorf("unknown generator provider: %s", cfg.Generator.Provider)
	}
}
