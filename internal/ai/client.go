package ai

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
)

// ErrRateLimited marks a provider quota or rate-limit rejection. Providers
// wrap it so callers can test with errors.Is.
var ErrRateLimited = errors.New("provider rate limited")

// Embedder computes similarity vectors of a fixed dimension.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dim() int
}

// Generator produces answer text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Name() string
}

// Provider is enumeration of supported AI providers
type Provider string

const (
	ProviderOpenAI   Provider = "openai"
	ProviderVertexAI Provider = "vertexai"
	ProviderGemini   Provider = "gemini"
	ProviderOllama   Provider = "ollama"
	ProviderStub     Provider = "stub"
)

// ClientConfig holds configuration for AI clients
type ClientConfig struct {
	APIKey      string
	EmbedModel  string
	ChatModel   string
	Dim         int
	ProjectID   string
	Provider    Provider
	Location    string
	BaseURL     string
	OllamaURL   string
	OllamaModel string
	OllamaEmbed string
}

// NewEmbedder creates the embedding client for config.Provider.
func NewEmbedder(ctx context.Context, config *ClientConfig) (Embedder, error) {
	if config == nil {
		return nil, errors.New("client config is required")
	}
	switch config.Provider {
	case ProviderOpenAI:
		return NewOpenAIClient(config), nil
	case ProviderVertexAI, ProviderGemini:
		return NewGenAIClient(ctx, config)
	case ProviderOllama:
		return NewOllamaClient(config), nil
	case ProviderStub:
		return NewStubClient(config.Dim), nil
	default:
		return nil, errors.New("unsupported provider: " + string(config.Provider))
	}
}

// NewGenerator creates the primary answer generator for config.Provider.
func NewGenerator(ctx context.Context, config *ClientConfig) (Generator, error) {
	if config == nil {
		return nil, errors.New("client config is required")
	}
	switch config.Provider {
	case ProviderOpenAI:
		return NewOpenAIClient(config), nil
	case ProviderVertexAI, ProviderGemini:
		return NewGenAIClient(ctx, config)
	case ProviderOllama:
		return NewOllamaClient(config), nil
	case ProviderStub:
		return NewStubClient(config.Dim), nil
	default:
		return nil, errors.New("unsupported provider: " + string(config.Provider))
	}
}

// StubClient is an offline Embedder and Generator. Embeddings are hashed
// bag-of-words vectors, so identical text maps to identical vectors.
type StubClient struct {
	dim int
}

// NewStubClient creates a new StubClient
func NewStubClient(dim int) *StubClient {
	if dim <= 0 {
		dim = 768
	}
	return &StubClient{dim: dim}
}

func (s *StubClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v := make([]float32, s.dim)
	for _, tok := range strings.FieldsFunc(strings.ToLower(text), isSeparator) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		v[h.Sum32()%uint32(s.dim)]++
	}
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		// cosine distance is undefined for the zero vector
		v[0] = 1
		return v, nil
	}
	n := float32(math.Sqrt(norm))
	for i := range v {
		v[i] /= n
	}
	return v, nil
}

func isSeparator(r rune) bool {
	return !(r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z')
}

func (s *StubClient) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return fmt.Sprintf("Answer:\nNo language model is configured; the %d-character prompt was not sent to a provider.", len(prompt)), nil
}

func (s *StubClient) Name() string { return string(ProviderStub) }

// Dim returns the embedding dimension
func (s *StubClient) Dim() int {
	return s.dim
}
