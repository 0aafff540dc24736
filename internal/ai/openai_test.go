package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
)

// MockTransport implements http.RoundTripper for testing
type MockTransport struct {
	mu             sync.RWMutex
	statuses       map[string]int
	responseBodies map[string]string
	requests       []*http.Request
	payloads       []map[string]any
}

func NewMockTransport() *MockTransport {
	return &MockTransport{
		statuses:       make(map[string]int),
		responseBodies: make(map[string]string),
	}
}

func (m *MockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)
	if req.Body != nil {
		var p map[string]any
		_ = json.NewDecoder(req.Body).Decode(&p)
		m.payloads = append(m.payloads, p)
	}

	key := fmt.Sprintf("%s %s", req.Method, req.URL.String())
	if status, ok := m.statuses[key]; ok {
		return &http.Response{
			StatusCode: status,
			Status:     fmt.Sprintf("%d %s", status, http.StatusText(status)),
			Body:       io.NopCloser(strings.NewReader(m.responseBodies[key])),
			Header:     make(http.Header),
		}, nil
	}

	return &http.Response{
		StatusCode: 500,
		Status:     "500 Internal Server Error",
		Body:       io.NopCloser(strings.NewReader(`{"error": {"message": "Mock not configured"}}`)),
		Header:     make(http.Header),
	}, nil
}

func (m *MockTransport) AddResponse(method, url string, statusCode int, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := fmt.Sprintf("%s %s", method, url)
	m.statuses[key] = statusCode
	m.responseBodies[key] = body
}

func (m *MockTransport) GetRequests() []*http.Request {
	m.mu.RLock()
	defer m.mu.RUnlock()

	requests := make([]*http.Request, len(m.requests))
	copy(requests, m.requests)
	return requests
}

func createMockClient(transport *MockTransport, apiKey string) *OpenAIClient {
	client := NewOpenAIClient(&ClientConfig{
		APIKey:     apiKey,
		EmbedModel: "text-embedding-3-small",
		ChatModel:  "gpt-4o-mini",
		Dim:        512,
		ProjectID:  "test-project",
	})
	client.http = &http.Client{Transport: transport}
	return client
}

func TestNewOpenAIClient(t *testing.T) {
	tests := []struct {
		name          string
		config        *ClientConfig
		expectedEmbed string
		expectedChat  string
		expectedDim   int
		expectedBase  string
	}{
		{
			name:          "defaults",
			config:        &ClientConfig{APIKey: "k"},
			expectedEmbed: "text-embedding-3-small",
			expectedChat:  "gpt-4o-mini",
			expectedDim:   1536,
			expectedBase:  defaultOpenAIBaseURL,
		},
		{
			name:          "large model dimension",
			config:        &ClientConfig{APIKey: "k", EmbedModel: "text-embedding-3-large"},
			expectedEmbed: "text-embedding-3-large",
			expectedChat:  "gpt-4o-mini",
			expectedDim:   3072,
			expectedBase:  defaultOpenAIBaseURL,
		},
		{
			name:          "explicit values",
			config:        &ClientConfig{APIKey: "k", EmbedModel: "e", ChatModel: "c", Dim: 256, BaseURL: "http://proxy/v1/"},
			expectedEmbed: "e",
			expectedChat:  "c",
			expectedDim:   256,
			expectedBase:  "http://proxy/v1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewOpenAIClient(tt.config)
			if client.config.EmbedModel != tt.expectedEmbed {
				t.Errorf("Expected EmbedModel %q, got %q", tt.expectedEmbed, client.config.EmbedModel)
			}
			if client.config.ChatModel != tt.expectedChat {
				t.Errorf("Expected ChatModel %q, got %q", tt.expectedChat, client.config.ChatModel)
			}
			if client.Dim() != tt.expectedDim {
				t.Errorf("Expected Dim %d, got %d", tt.expectedDim, client.Dim())
			}
			if client.baseURL != tt.expectedBase {
				t.Errorf("Expected baseURL %q, got %q", tt.expectedBase, client.baseURL)
			}
		})
	}
}

func TestOpenAIClient_Embed(t *testing.T) {
	tests := []struct {
		name          string
		apiKey        string
		statusCode    int
		responseBody  string
		expectError   bool
		errorMsg      string
		wantRateLimit bool
		expectedLen   int
	}{
		{
			name:        "missing API key",
			expectError: true,
			errorMsg:    "PROVIDER_API_KEY unset",
		},
		{
			name:         "successful embedding",
			apiKey:       "test-key",
			statusCode:   200,
			responseBody: `{"data": [{"embedding": [0.1, 0.2, 0.3, 0.4, 0.5]}]}`,
			expectedLen:  5,
		},
		{
			name:         "bad request",
			apiKey:       "test-key",
			statusCode:   400,
			responseBody: `{"error": {"message": "Bad request"}}`,
			expectError:  true,
			errorMsg:     "Bad request",
		},
		{
			name:         "invalid JSON response",
			apiKey:       "test-key",
			statusCode:   200,
			responseBody: `invalid json`,
			expectError:  true,
		},
		{
			name:         "empty data array",
			apiKey:       "test-key",
			statusCode:   200,
			responseBody: `{"data": []}`,
			expectError:  true,
			errorMsg:     "no embedding",
		},
		{
			name:          "rate limit error",
			apiKey:        "test-key",
			statusCode:    429,
			responseBody:  `{"error": {"message": "Rate limit exceeded"}}`,
			expectError:   true,
			wantRateLimit: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := NewMockTransport()
			if tt.statusCode != 0 {
				transport.AddResponse("POST", "https://api.openai.com/v1/embeddings", tt.statusCode, tt.responseBody)
			}
			client := createMockClient(transport, tt.apiKey)

			embedding, err := client.Embed(context.Background(), "test text")
			if tt.expectError {
				if err == nil {
					t.Fatal("Expected error but got none")
				}
				if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error containing %q, got %q", tt.errorMsg, err.Error())
				}
				if errors.Is(err, ErrRateLimited) != tt.wantRateLimit {
					t.Errorf("errors.Is(err, ErrRateLimited) = %v, want %v", !tt.wantRateLimit, tt.wantRateLimit)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			if len(embedding) != tt.expectedLen {
				t.Errorf("Expected embedding length %d, got %d", tt.expectedLen, len(embedding))
			}

			requests := transport.GetRequests()
			if len(requests) != 1 {
				t.Fatalf("Expected 1 request, got %d", len(requests))
			}
			if got := requests[0].Header.Get("Authorization"); got != "Bearer "+tt.apiKey {
				t.Errorf("Unexpected Authorization header %q", got)
			}
			if dims, ok := transport.payloads[0]["dimensions"].(float64); !ok || int(dims) != 512 {
				t.Errorf("Expected dimensions 512 in payload, got %v", transport.payloads[0]["dimensions"])
			}
		})
	}
}

func TestOpenAIClient_Generate(t *testing.T) {
	transport := NewMockTransport()
	transport.AddResponse("POST", "https://api.openai.com/v1/chat/completions", 200,
		`{"choices": [{"message": {"content": "  Answer:\nit works  "}}]}`)
	client := createMockClient(transport, "test-key")

	got, err := client.Generate(context.Background(), "QUESTION:\nwhat?")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if got != "Answer:\nit works" {
		t.Errorf("Unexpected answer %q", got)
	}

	payload := transport.payloads[0]
	if payload["model"] != "gpt-4o-mini" {
		t.Errorf("Expected model gpt-4o-mini, got %v", payload["model"])
	}
	msgs, _ := payload["messages"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("Expected one message, got %v", payload["messages"])
	}
}

func TestOpenAIClient_GenerateRateLimited(t *testing.T) {
	transport := NewMockTransport()
	transport.AddResponse("POST", "https://api.openai.com/v1/chat/completions", 429,
		`{"error": {"message": "You exceeded your current quota"}}`)
	client := createMockClient(transport, "test-key")

	_, err := client.Generate(context.Background(), "prompt")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("Expected ErrRateLimited, got %v", err)
	}
	if !strings.Contains(err.Error(), "quota") {
		t.Errorf("Expected provider message to be kept, got %q", err.Error())
	}
}

func TestOpenAIClient_setHeaders(t *testing.T) {
	tests := []struct {
		name        string
		apiKey      string
		projectID   string
		wantProject string
	}{
		{"project key with project", "sk-proj-abc", "p1", "p1"},
		{"project key without project", "sk-proj-abc", "", ""},
		{"legacy key ignores project", "sk-abc", "p1", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewOpenAIClient(&ClientConfig{APIKey: tt.apiKey, ProjectID: tt.projectID})
			req, _ := http.NewRequest(http.MethodPost, "http://x", nil)
			c.setHeaders(req)
			if got := req.Header.Get("OpenAI-Project"); got != tt.wantProject {
				t.Errorf("Expected OpenAI-Project %q, got %q", tt.wantProject, got)
			}
			if req.Header.Get("Content-Type") != "application/json" {
				t.Error("Expected JSON content type")
			}
		})
	}
}

func TestOpenAIClient_CancelledContext(t *testing.T) {
	transport := NewMockTransport()
	client := createMockClient(transport, "test-key")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := client.Generate(ctx, "prompt"); err == nil {
		t.Error("Expected error for cancelled context")
	}
}
