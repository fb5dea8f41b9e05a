// Package embedding turns text into fixed-dimension vectors through a
// pluggable provider: a local inference server, an OpenAI-compatible API,
// or a deterministic mock for tests and offline use.
package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/mnemo-cli/mnemo/internal/core/config"
)

// Failure classes. Consumers react differently: transient failures are
// retried with backoff (index manager) or degraded around (recall engine);
// invalid input is surfaced immediately and never retried.
var (
	// ErrUnavailable is a transient provider failure (timeout, 5xx, refused
	// connection). Retryable.
	ErrUnavailable = errors.New("embedding provider unavailable")

	// ErrInvalidInput is a permanent failure for this input (e.g. empty
	// text). Never retried.
	ErrInvalidInput = errors.New("invalid embedding input")
)

// Provider generates embeddings. EmbedBatch is semantically equivalent to
// calling Embed per item: output order matches input order.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	ModelName() string
}

// New builds the configured provider. An empty provider name means
// embeddings are disabled; callers get (nil, nil) and degrade to
// lexical-only search.
func New(cfg config.EmbeddingConfig) (Provider, error) {
	switch cfg.Provider {
	case "", "disabled", "none":
		return nil, nil
	case "openai":
		return NewOpenAI(cfg)
	case "ollama":
		return NewOllama(cfg)
	case "mock":
		return NewMock(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}
