package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OllamaClient is the local provider. It has no quota, so it never returns
// ErrRateLimited.
type OllamaClient struct {
	baseURL    string
	model      string
	embedModel string
	dim        int
	http       *http.Client
}

func NewOllamaClient(config *ClientConfig) *OllamaClient {
	base := strings.TrimRight(config.OllamaURL, "/")
	if base == "" {
		base = "http://localhost:11434"
	}
	model := config.OllamaModel
	if model == "" {
		model = "qwen2.5-coder:7b-instruct"
	}
	embed := config.OllamaEmbed
	if embed == "" {
		embed = "nomic-embed-text"
	}
	dim := config.Dim
	if dim == 0 {
		dim = 768
	}
	return &OllamaClient{
		baseURL:    base,
		model:      model,
		embedModel: embed,
		dim:        dim,
		http:       &http.Client{Timeout: 120 * time.Second},
	}
}

func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	var out struct {
		Embedding []float32 `json:"embedding"`
	}
	err := c.post(ctx, "/api/embeddings", map[string]any{"model": c.embedModel, "prompt": text}, &out)
	if err != nil {
		return nil, fmt.Errorf("ollama embedding: %w", err)
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("ollama embedding: empty vector")
	}
	return out.Embedding, nil
}

func (c *OllamaClient) Generate(ctx context.Context, prompt string) (string, error) {
	var out struct {
		Response string `json:"response"`
	}
	err := c.post(ctx, "/api/generate", map[string]any{"model": c.model, "prompt": prompt, "stream": false}, &out)
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	return strings.TrimSpace(out.Response), nil
}

func (c *OllamaClient) Name() string { return string(ProviderOllama) }

func (c *OllamaClient) Dim() int { return c.dim }

func (c *OllamaClient) post(ctx context.Context, path string, payload, out any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 300))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
