package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// GenAIClient talks to Gemini either through the Gemini API (API key) or
// through Vertex AI (project and location).
type GenAIClient struct {
	config *ClientConfig
	client *genai.Client
}

// NewGenAIClient creates a new client for the Google Gemini API.
func NewGenAIClient(ctx context.Context, config *ClientConfig) (*GenAIClient, error) {
	if config == nil {
		return nil, errors.New("config cannot be nil")
	}

	cc := genai.ClientConfig{Backend: genai.BackendGeminiAPI}
	if config.Provider == ProviderVertexAI {
		cc.Backend = genai.BackendVertexAI
	}

	if config.EmbedModel == "" {
		if cc.Backend == genai.BackendVertexAI {
			config.EmbedModel = "text-embedding-005"
		} else {
			config.EmbedModel = "gemini-embedding-001"
		}
	}
	if config.ChatModel == "" {
		config.ChatModel = "gemini-2.0-flash"
	}
	if config.Dim == 0 {
		config.Dim = 768
	}
	if cc.Backend == genai.BackendVertexAI && config.Location == "" && strings.TrimSpace(config.APIKey) == "" {
		config.Location = "us-central1"
	}

	if strings.TrimSpace(config.APIKey) != "" {
		cc.APIKey = config.APIKey
	}
	if cc.Backend == genai.BackendVertexAI {
		if strings.TrimSpace(config.ProjectID) != "" {
			cc.Project = config.ProjectID
		}
		if strings.TrimSpace(config.Location) != "" {
			cc.Location = config.Location
		}
	}
	if config.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: config.BaseURL}
	}

	client, err := genai.NewClient(ctx, &cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GenAIClient{
		config: config,
		client: client,
	}, nil
}

// Embed implements the embedding functionality using the Gemini API
func (c *GenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	dim := int32(c.config.Dim)
	cfg := genai.EmbedContentConfig{
		TaskType:             "RETRIEVAL_DOCUMENT",
		OutputDimensionality: &dim,
	}

	res, err := c.client.Models.EmbedContent(ctx, c.config.EmbedModel, genai.Text(text), &cfg)
	if err != nil {
		return nil, wrapGenAIError("embedding failed", err)
	}
	if res == nil || len(res.Embeddings) == 0 || res.Embeddings[0] == nil {
		return nil, errors.New("no embedding returned")
	}
	return res.Embeddings[0].Values, nil
}

// Generate sends the prompt as a single user turn.
func (c *GenAIClient) Generate(ctx context.Context, prompt string) (string, error) {
	temp := float32(0.2)
	cfg := genai.GenerateContentConfig{Temperature: &temp}

	resp, err := c.client.Models.GenerateContent(ctx, c.config.ChatModel, genai.Text(prompt), &cfg)
	if err != nil {
		return "", wrapGenAIError("generation failed", err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", errors.New("no candidates returned")
	}
	return strings.TrimSpace(resp.Text()), nil
}

func (c *GenAIClient) Name() string { return string(c.config.Provider) }

func (c *GenAIClient) Dim() int {
	return c.config.Dim
}

func wrapGenAIError(op string, err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
		return fmt.Errorf("%s: %w: %s", op, ErrRateLimited, apiErr.Message)
	}
	return fmt.Errorf("%s: %w", op, err)
}
