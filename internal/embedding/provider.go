package embedding

import (
	"context"
	"fmt"

	"github.com/docmentor/docmentor/internal/config"
	"github.com/docmentor/docmentor/internal/llm"
)

// Provider is the interface for embedding providers
type Provider interface {
	// EmbedBatch generates embeddings for multiple texts, in input order
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// CheckHealth checks if the provider is reachable
	CheckHealth(ctx context.Context) error

	// Name returns the provider name
	Name() string
}

// OllamaProvider wraps the Ollama client as an embedding provider
type OllamaProvider struct {
	client *llm.Client
}

// NewOllamaProvider creates a new Ollama embedding provider
func NewOllamaProvider(cfg config.OllamaConfig) *OllamaProvider {
	return &OllamaProvider{client: llm.NewClient(cfg)}
}

func (p *OllamaProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return p.client.EmbedBatch(ctx, texts)
}

func (p *OllamaProvider) CheckHealth(ctx context.Context) error {
	return p.client.CheckHealth(ctx)
}

func (p *OllamaProvider) Name() string {
	return "ollama"
}

// TEIProvider wraps a Text Embeddings Inference server
type TEIProvider struct {
	client *llm.TEIClient
}

// NewTEIProvider creates a new TEI embedding provider
func NewTEIProvider(cfg config.TEIConfig) *TEIProvider {
	return &TEIProvider{client: llm.NewTEIClient(cfg)}
}

func (p *TEIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return p.client.EmbedBatch(ctx, texts)
}

func (p *TEIProvider) CheckHealth(ctx context.Context) error {
	return p.client.CheckHealth(ctx)
}

func (p *TEIProvider) Name() string {
	return "tei"
}

// OpenAIProvider wraps an OpenAI-compatible embeddings endpoint
type OpenAIProvider struct {
	client *llm.OpenAIClient
}

// NewOpenAIProvider creates a new OpenAI embedding provider
func NewOpenAIProvider(cfg config.OpenAIConfig) (*OpenAIProvider, error) {
	client, err := llm.NewOpenAIClient(cfg)
	if err != nil {
		return nil, err
	}
	return &OpenAIProvider{client: client}, nil
}

func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return p.client.EmbedBatch(ctx, texts)
}

func (p *OpenAIProvider) CheckHealth(ctx context.Context) error {
	return p.client.CheckHealth(ctx)
}

func (p *OpenAIProvider) Name() string {
	return "openai"
}

// NewProvider creates an embedding provider based on configuration
func NewProvider(cfg *config.Config) (Provider, error) {
	switch cfg.Embedding.Provider {
	case "ollama", "":
		return NewOllamaProvider(cfg.Ollama), nil
	case "tei":
		return NewTEIProvider(cfg.TEI), nil
	case "openai":
		return NewOpenAIProvider(cfg.OpenAI)
	case "hash":
		return NewHashProvider(cfg.Retrieval.Dimension), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Embedding.Provider)
	}
}
