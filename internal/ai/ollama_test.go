package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOllamaClient(t *testing.T) {
	var gotGenerate map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/embeddings":
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["model"] != "nomic-embed-text" {
				t.Errorf("Unexpected embed model %v", body["model"])
			}
			_, _ = w.Write([]byte(`{"embedding": [0.5, 0.25, 0.125]}`))
		case "/api/generate":
			_ = json.NewDecoder(r.Body).Decode(&gotGenerate)
			_, _ = w.Write([]byte(`{"response": " local answer \n", "done": true}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewOllamaClient(&ClientConfig{OllamaURL: srv.URL + "/", Dim: 3})
	if c.Name() != "ollama" {
		t.Errorf("Expected name ollama, got %q", c.Name())
	}

	vec, err := c.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vec) != 3 || vec[0] != 0.5 {
		t.Errorf("Unexpected vector %v", vec)
	}

	out, err := c.Generate(context.Background(), "prompt text")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if out != "local answer" {
		t.Errorf("Unexpected answer %q", out)
	}
	if gotGenerate["stream"] != false || gotGenerate["model"] != "qwen2.5-coder:7b-instruct" || gotGenerate["prompt"] != "prompt text" {
		t.Errorf("Unexpected generate payload %v", gotGenerate)
	}
}

func TestOllamaClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("busy"))
	}))
	defer srv.Close()

	c := NewOllamaClient(&ClientConfig{OllamaURL: srv.URL})
	_, err := c.Generate(context.Background(), "p")
	if err == nil {
		t.Fatal("Expected error")
	}
	if errors.Is(err, ErrRateLimited) {
		t.Error("local provider errors must not be reported as rate limits")
	}
}
