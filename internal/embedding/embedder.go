package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/docmentor/docmentor/internal/config"
	"github.com/docmentor/docmentor/internal/domain"
	"github.com/docmentor/docmentor/internal/llm"
)

const defaultBackoff = 200 * time.Millisecond

// Embedder turns chunk texts into vectors through a Provider, batching
// requests and retrying transient failures.
type Embedder struct {
	provider    Provider
	dimension   int
	batchSize   int
	concurrency int
	maxRetries  int
	backoff     time.Duration
	logger      *slog.Logger
}

// Option configures an Embedder
type Option func(*Embedder)

// WithLogger sets the logger used for retry diagnostics
func WithLogger(l *slog.Logger) Option {
	return func(e *Embedder) { e.logger = l }
}

// WithBackoff sets the base delay of the Fibonacci retry backoff
func WithBackoff(d time.Duration) Option {
	return func(e *Embedder) {
		if d > 0 {
			e.backoff = d
		}
	}
}

// NewEmbedder creates a new embedder. A dimension of zero disables the
// vector length check.
func NewEmbedder(provider Provider, cfg config.EmbeddingConfig, dimension int, opts ...Option) *Embedder {
	e := &Embedder{
		provider:    provider,
		dimension:   dimension,
		batchSize:   cfg.BatchSize,
		concurrency: cfg.Concurrency,
		maxRetries:  cfg.MaxRetries,
		backoff:     defaultBackoff,
		logger:      slog.Default(),
	}
	if e.batchSize <= 0 {
		e.batchSize = 16
	}
	if e.concurrency <= 0 {
		e.concurrency = 1
	}
	if e.maxRetries < 0 {
		e.maxRetries = 0
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Embed returns one vector per text, in input order
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		batch := texts[start:end]

		g.Go(func() error {
			vectors, err := e.embedBatch(gctx, batch)
			if err != nil {
				return err
			}
			if len(vectors) != len(batch) {
				return fmt.Errorf("%s returned %d embeddings for %d texts", e.provider.Name(), len(vectors), len(batch))
			}
			for i, v := range vectors {
				if e.dimension > 0 && len(v) != e.dimension {
					return fmt.Errorf("%w: %s returned vector of length %d for text %d, expected %d",
						domain.ErrDimensionMismatch, e.provider.Name(), len(v), start+i, e.dimension)
				}
				out[start+i] = v
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Embedder) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	var vectors [][]float32
	attempt := 0

	b := retry.WithMaxRetries(uint64(e.maxRetries), retry.NewFibonacci(e.backoff))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		var err error
		vectors, err = e.provider.EmbedBatch(ctx, batch)
		if err == nil {
			return nil
		}
		if retryable(err) {
			e.logger.Debug("embedding batch failed, retrying",
				"provider", e.provider.Name(), "attempt", attempt, "size", len(batch), "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("embed batch with %s: %w", e.provider.Name(), err)
	}
	return vectors, nil
}

// retryable reports whether err is worth another attempt: rate limiting,
// server errors and network failures qualify, cancellation never does.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *llm.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// CheckHealth checks the underlying provider
func (e *Embedder) CheckHealth(ctx context.Context) error {
	return e.provider.CheckHealth(ctx)
}

// Provider returns the provider name
func (e *Embedder) Provider() string {
	return e.provider.Name()
}

// Dimension returns the expected vector length, or zero when unchecked
func (e *Embedder) Dimension() int {
	return e.dimension
}
