package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/docmentor/docmentor/internal/config"
)

// ChatRequest represents a request to the chat API
type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
	Options  *Options  `json:"options,omitempty"`
}

// Options represents model options
type Options struct {
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
	NumCtx      int     `json:"num_ctx,omitempty"`
}

// ChatResponse represents a response from the chat API
type ChatResponse struct {
	Model     string  `json:"model"`
	CreatedAt string  `json:"created_at"`
	Message   Message `json:"message"`
	Done      bool    `json:"done"`
}

// EmbedRequest represents a request to the batch embedding API
type EmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// EmbedResponse represents a batch embedding response
type EmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

// Client is an Ollama API client
type Client struct {
	host           string
	chatModel      string
	embeddingModel string
	options        *Options
	httpClient     *http.Client
}

// NewClient creates a new Ollama client
func NewClient(cfg config.OllamaConfig) *Client {
	return &Client{
		host:           cfg.Host,
		chatModel:      cfg.ChatModel,
		embeddingModel: cfg.EmbeddingModel,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
	}
}

// WithTemperature sets the sampling temperature sent with chat requests
func (c *Client) WithTemperature(t float64) *Client {
	c.options = &Options{Temperature: t}
	return c
}

// Chat sends a chat request and returns the response
func (c *Client) Chat(ctx context.Context, messages []Message) (string, error) {
	resp, err := c.postChat(ctx, messages, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var chatResp ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	return chatResp.Message.Content, nil
}

// ChatStream sends a chat request and streams the response
func (c *Client) ChatStream(ctx context.Context, messages []Message, handler StreamHandler) error {
	resp, err := c.postChat(ctx, messages, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		var chatResp ChatResponse
		if err := json.Unmarshal(scanner.Bytes(), &chatResp); err != nil {
			continue
		}

		if err := handler(chatResp.Message.Content, chatResp.Done); err != nil {
			return err
		}

		if chatResp.Done {
			break
		}
	}

	return scanner.Err()
}

func (c *Client) postChat(ctx context.Context, messages []Message, stream bool) (*http.Response, error) {
	req := ChatRequest{
		Model:    c.chatModel,
		Messages: messages,
		Stream:   stream,
		Options:  c.options,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, statusError("ollama", resp)
	}
	return resp, nil
}

// EmbedBatch generates embeddings for multiple texts in one request
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	body, err := json.Marshal(EmbedRequest{Model: c.embeddingModel, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("ollama", resp)
	}

	var embResp EmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return embResp.Embeddings, nil
}

// Embed generates the embedding for a single text
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) != 1 {
		return nil, fmt.Errorf("ollama returned %d embeddings for 1 input", len(embeddings))
	}
	return embeddings[0], nil
}

// CheckHealth checks if Ollama is running and accessible
func (c *Client) CheckHealth(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("ollama is not accessible at %s: %w", c.host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError("ollama", resp)
	}

	return nil
}

// ChatModel returns the current chat model
func (c *Client) ChatModel() string {
	return c.chatModel
}

// EmbeddingModel returns the current embedding model
func (c *Client) EmbeddingModel() string {
	return c.embeddingModel
}
