package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/docmentor/docmentor/internal/config"
)

// OpenAIClient talks to OpenAI or any OpenAI-compatible endpoint
type OpenAIClient struct {
	client         *openai.Client
	chatModel      string
	embeddingModel string
	temperature    float32
}

// NewOpenAIClient creates a new OpenAI client
func NewOpenAIClient(cfg config.OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key not set (DOCMENTOR_OPENAI_API_KEY or OPENAI_API_KEY)")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}

	return &OpenAIClient{
		client:         openai.NewClientWithConfig(clientCfg),
		chatModel:      cfg.ChatModel,
		embeddingModel: cfg.EmbeddingModel,
	}, nil
}

// WithTemperature sets the sampling temperature sent with chat requests
func (c *OpenAIClient) WithTemperature(t float64) *OpenAIClient {
	c.temperature = float32(t)
	return c
}

func (c *OpenAIClient) chatRequest(messages []Message, stream bool) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		msgs[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return openai.ChatCompletionRequest{
		Model:       c.chatModel,
		Messages:    msgs,
		Temperature: c.temperature,
		Stream:      stream,
	}
}

// Chat sends a chat request and returns the response
func (c *OpenAIClient) Chat(ctx context.Context, messages []Message) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, c.chatRequest(messages, false))
	if err != nil {
		return "", wrapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// ChatStream sends a chat request and streams the response
func (c *OpenAIClient) ChatStream(ctx context.Context, messages []Message, handler StreamHandler) error {
	stream, err := c.client.CreateChatCompletionStream(ctx, c.chatRequest(messages, true))
	if err != nil {
		return wrapOpenAIError(err)
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return handler("", true)
		}
		if err != nil {
			return wrapOpenAIError(err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if err := handler(resp.Choices[0].Delta.Content, false); err != nil {
			return err
		}
	}
}

// EmbedBatch generates embeddings for multiple texts, in input order
func (c *OpenAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(c.embeddingModel),
		Input: texts,
	})
	if err != nil {
		return nil, wrapOpenAIError(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai returned %d embeddings for %d inputs", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("openai returned embedding index %d out of range", d.Index)
		}
		v := make([]float32, len(d.Embedding))
		for i := range d.Embedding {
			v[i] = float32(d.Embedding[i])
		}
		out[d.Index] = v
	}
	return out, nil
}

// CheckHealth verifies the API key and endpoint by listing models
func (c *OpenAIClient) CheckHealth(ctx context.Context) error {
	if _, err := c.client.ListModels(ctx); err != nil {
		return wrapOpenAIError(err)
	}
	return nil
}

// ChatModel returns the current chat model
func (c *OpenAIClient) ChatModel() string {
	return c.chatModel
}

// wrapOpenAIError converts HTTP failures into StatusError so callers can classify them.
func wrapOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &StatusError{Service: "openai", StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &StatusError{Service: "openai", StatusCode: reqErr.HTTPStatusCode, Body: reqErr.Error()}
	}
	return fmt.Errorf("openai request failed: %w", err)
}
