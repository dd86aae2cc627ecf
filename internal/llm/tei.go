package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/docmentor/docmentor/internal/config"
)

// TEIClient is a client for a HuggingFace Text Embeddings Inference server
type TEIClient struct {
	host       string
	httpClient *http.Client
}

// TEIEmbedRequest represents a request to the /embed route
type TEIEmbedRequest struct {
	Inputs    []string `json:"inputs"`
	Truncate  bool     `json:"truncate"`
	Normalize bool     `json:"normalize"`
}

// TEIInfo represents the /info response
type TEIInfo struct {
	ModelID          string `json:"model_id"`
	ModelDtype       string `json:"model_dtype"`
	MaxInputLength   int    `json:"max_input_length"`
	MaxClientBatch   int    `json:"max_client_batch_size"`
	Version          string `json:"version"`
	MaxBatchTokens   int    `json:"max_batch_tokens"`
	MaxConcurrentReq int    `json:"max_concurrent_requests"`
}

// NewTEIClient creates a new TEI client
func NewTEIClient(cfg config.TEIConfig) *TEIClient {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &TEIClient{
		host: cfg.Host,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// CheckHealth checks if the TEI server is ready
func (c *TEIClient) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("TEI service not accessible at %s: %w", c.host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError("tei", resp)
	}
	return nil
}

// Info returns the served model description
func (c *TEIClient) Info(ctx context.Context) (*TEIInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+"/info", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("tei", resp)
	}

	var info TEIInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &info, nil
}

// EmbedBatch generates embeddings for multiple texts
func (c *TEIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	body, err := json.Marshal(TEIEmbedRequest{Inputs: texts, Truncate: true, Normalize: true})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("tei", resp)
	}

	var embeddings [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&embeddings); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return embeddings, nil
}
