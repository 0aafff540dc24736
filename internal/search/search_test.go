package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/nikhileshsirohi/codebase-explainer/internal/ai"
	"github.com/nikhileshsirohi/codebase-explainer/pkg/models"
	"github.com/rs/zerolog"
)

func init() {
	zerolog.SetGlobalLevel(zerolog.Disabled)
}

// MockEmbedder implements ai.Embedder for testing
type MockEmbedder struct {
	EmbedFunc func(ctx context.Context, text string) ([]float32, error)
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.EmbedFunc != nil {
		return m.EmbedFunc(ctx, text)
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (m *MockEmbedder) Dim() int { return 3 }

// MockSearchStore implements store.SearchStore for testing
type MockSearchStore struct {
	VectorSearchFunc  func(ctx context.Context, repoID string, vec []float32, candidates, limit int) ([]models.RetrievedChunk, error)
	KeywordSearchFunc func(ctx context.Context, repoID, pattern string, limit int) ([]models.RetrievedChunk, error)

	Candidates, Limit int
	Pattern           string
	KeywordCalls      int
}

func (m *MockSearchStore) VectorSearch(ctx context.Context, repoID string, vec []float32, candidates, limit int) ([]models.RetrievedChunk, error) {
	m.Candidates, m.Limit = candidates, limit
	if m.VectorSearchFunc != nil {
		return m.VectorSearchFunc(ctx, repoID, vec, candidates, limit)
	}
	return nil, nil
}

func (m *MockSearchStore) KeywordSearch(ctx context.Context, repoID, pattern string, limit int) ([]models.RetrievedChunk, error) {
	m.KeywordCalls++
	m.Pattern = pattern
	if m.KeywordSearchFunc != nil {
		return m.KeywordSearchFunc(ctx, repoID, pattern, limit)
	}
	return nil, nil
}

var longText = strings.Repeat("func doSomething() { return nil } ", 5)

func chunk(p string, start int, score float64) models.RetrievedChunk {
	return models.RetrievedChunk{Path: p, StartLine: start, EndLine: start + 9, Text: longText, Score: score}
}

func TestClassifyIntent(t *testing.T) {
	tests := []struct {
		question string
		want     Intent
	}{
		{"Explain the ingestion flow", IntentRepoIngestion},
		{"Walk me through the pipeline", IntentRepoIngestion},
		{"What happens end-to-end when I ask a question?", IntentRepoIngestion},
		{"How is chat history stored?", IntentAPIFlow},
		{"Where is the session created", IntentAPIFlow},
		{"How do we fetch blobs from GitHub?", IntentGitHubFetch},
		{"Where are FILE CONTENTS downloaded", IntentGitHubFetch},
		{"What does the chunker do?", IntentGeneral},
		{"", IntentGeneral},
	}
	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			if got := ClassifyIntent(tt.question); got != tt.want {
				t.Errorf("ClassifyIntent(%q) = %s, want %s", tt.question, got, tt.want)
			}
			if ClassifyIntent(tt.question) != ClassifyIntent(tt.question) {
				t.Error("classification is not deterministic")
			}
		})
	}
}

func TestFetchLimits(t *testing.T) {
	tests := []struct {
		k    int
		flow bool
		want int
	}{
		{8, true, 80},
		{20, true, 160},
		{8, false, 40},
		{10, false, 50},
	}
	for _, tt := range tests {
		if got := FetchLimit(tt.k, tt.flow); got != tt.want {
			t.Errorf("FetchLimit(%d, %v) = %d, want %d", tt.k, tt.flow, got, tt.want)
		}
	}
	if Candidates(40) != 400 || Candidates(160) != 800 {
		t.Errorf("Candidates = %d, %d", Candidates(40), Candidates(160))
	}
}

func TestRetrievePipelineQuestionUsesFlowLimit(t *testing.T) {
	st := &MockSearchStore{}
	r := NewRetriever(&MockEmbedder{}, st)

	if _, err := r.Retrieve(context.Background(), "repo", "describe the pipeline", 8); err != nil {
		t.Fatal(err)
	}
	if st.Limit != 80 || st.Candidates != 400 {
		t.Errorf("limit = %d candidates = %d, want 80/400", st.Limit, st.Candidates)
	}

	if _, err := r.Retrieve(context.Background(), "repo", "what is Chunk", 8); err != nil {
		t.Fatal(err)
	}
	if st.Limit != 40 {
		t.Errorf("normal limit = %d, want 40", st.Limit)
	}
}

func TestRetrieveFiltersDedupesAndOrders(t *testing.T) {
	rows := []models.RetrievedChunk{
		chunk("docs/guide.md", 1, 0.99),
		chunk("README.md", 1, 0.98),
		chunk("LICENSE", 1, 0.97),
		chunk("config/settings.yaml", 1, 0.96),
		chunk("internal/a.go", 1, 0.95),
		chunk("internal/a.go", 1, 0.94),
		{Path: "internal/short.go", StartLine: 1, EndLine: 2, Text: "x := 1", Score: 0.93},
		chunk("internal/b.go", 20, 0.90),
	}
	st := &MockSearchStore{VectorSearchFunc: func(ctx context.Context, repoID string, vec []float32, candidates, limit int) ([]models.RetrievedChunk, error) {
		return rows, nil
	}}
	r := NewRetriever(&MockEmbedder{}, st)

	got, err := r.Retrieve(context.Background(), "repo", "what does chunker do", 5)
	if err != nil {
		t.Fatal(err)
	}
	var paths []string
	for _, c := range got {
		paths = append(paths, c.Path)
	}
	want := []string{"internal/a.go", "internal/b.go", "config/settings.yaml"}
	if fmt.Sprint(paths) != fmt.Sprint(want) {
		t.Errorf("paths = %v, want %v", paths, want)
	}
	if st.KeywordCalls != 0 {
		t.Errorf("keyword fallback ran for a general non-flow question")
	}
}

func TestRetrieveNormalModeStopsAtK(t *testing.T) {
	var rows []models.RetrievedChunk
	for i := 0; i < 30; i++ {
		rows = append(rows, chunk(fmt.Sprintf("pkg/f%02d.go", i), 1, 1-float64(i)/100))
	}
	st := &MockSearchStore{VectorSearchFunc: func(ctx context.Context, repoID string, vec []float32, candidates, limit int) ([]models.RetrievedChunk, error) {
		return rows, nil
	}}

	got, err := NewRetriever(&MockEmbedder{}, st).Retrieve(context.Background(), "repo", "where is X", 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 4 || got[0].Path != "pkg/f00.go" || got[3].Path != "pkg/f03.go" {
		t.Errorf("got %d results starting %v", len(got), got)
	}
}

func TestRetrieveIntentPathFilter(t *testing.T) {
	rows := []models.RetrievedChunk{
		chunk("internal/search/search.go", 1, 0.9),
		chunk("internal/ingest/controller.go", 1, 0.8),
		chunk("internal/indexer/indexer.go", 1, 0.7),
	}
	st := &MockSearchStore{VectorSearchFunc: func(ctx context.Context, repoID string, vec []float32, candidates, limit int) ([]models.RetrievedChunk, error) {
		return rows, nil
	}}

	got, err := NewRetriever(&MockEmbedder{}, st).Retrieve(context.Background(), "repo", "explain the ingest flow", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Path != "internal/ingest/controller.go" || got[1].Path != "internal/indexer/indexer.go" {
		t.Errorf("got %+v", got)
	}
}

func TestRetrieveKeywordFallback(t *testing.T) {
	st := &MockSearchStore{
		VectorSearchFunc: func(ctx context.Context, repoID string, vec []float32, candidates, limit int) ([]models.RetrievedChunk, error) {
			return []models.RetrievedChunk{chunk("internal/source/github.go", 1, 0.9)}, nil
		},
		KeywordSearchFunc: func(ctx context.Context, repoID, pattern string, limit int) ([]models.RetrievedChunk, error) {
			if limit != 50 {
				t.Errorf("keyword limit = %d", limit)
			}
			return []models.RetrievedChunk{
				chunk("internal/source/github.go", 1, 0.5),
				chunk("README.md", 1, 0.5),
				chunk("internal/source/local.go", 5, 0.5),
				chunk("internal/source/filter.go", 5, 0.5),
				chunk("internal/source/errors.go", 5, 0.5),
			}, nil
		},
	}

	got, err := NewRetriever(&MockEmbedder{}, st).Retrieve(context.Background(), "repo", "how do we download a blob", 3)
	if err != nil {
		t.Fatal(err)
	}
	if st.KeywordCalls != 1 {
		t.Fatalf("keyword calls = %d, want 1", st.KeywordCalls)
	}
	if !strings.Contains(st.Pattern, "github|blob") {
		t.Errorf("pattern = %q", st.Pattern)
	}
	if len(got) != 3 {
		t.Fatalf("got %d results, want 3", len(got))
	}
	if got[0].Score != 0.9 {
		t.Errorf("vector hit score = %v", got[0].Score)
	}
	for _, c := range got[1:] {
		if c.Score != 0 {
			t.Errorf("keyword hit %s has score %v, want 0", c.Path, c.Score)
		}
	}
	if got[1].Path != "internal/source/local.go" || got[2].Path != "internal/source/filter.go" {
		t.Errorf("fallback order = %s, %s", got[1].Path, got[2].Path)
	}
}

func TestRetrieveFlowFallbackOnlyWhenSparse(t *testing.T) {
	var rows []models.RetrievedChunk
	for i := 0; i < 12; i++ {
		rows = append(rows, chunk(fmt.Sprintf("internal/ingest/f%02d.go", i), 1, 0.9))
	}
	st := &MockSearchStore{VectorSearchFunc: func(ctx context.Context, repoID string, vec []float32, candidates, limit int) ([]models.RetrievedChunk, error) {
		return rows, nil
	}}

	got, err := NewRetriever(&MockEmbedder{}, st).Retrieve(context.Background(), "repo", "walk through the ingestion flow end to end", 8)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 8 {
		t.Errorf("got %d results, want 8", len(got))
	}
	if st.KeywordCalls != 0 {
		t.Errorf("fallback ran with sufficient coverage")
	}
}

func TestRetrieveResultsAreUniqueAndBounded(t *testing.T) {
	var rows []models.RetrievedChunk
	for i := 0; i < 50; i++ {
		rows = append(rows, chunk(fmt.Sprintf("internal/ingest/f%d.go", i%7), (i%3)*10, 0.5))
	}
	st := &MockSearchStore{
		VectorSearchFunc: func(ctx context.Context, repoID string, vec []float32, candidates, limit int) ([]models.RetrievedChunk, error) {
			return rows, nil
		},
		KeywordSearchFunc: func(ctx context.Context, repoID, pattern string, limit int) ([]models.RetrievedChunk, error) {
			return rows, nil
		},
	}
	r := NewRetriever(&MockEmbedder{}, st)
	for _, q := range []string{"pipeline steps", "fetch the github blob", "ingest flow", "anything"} {
		for _, k := range []int{1, 3, 8, 40} {
			got, err := r.Retrieve(context.Background(), "repo", q, k)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) > k {
				t.Errorf("%q k=%d: %d results", q, k, len(got))
			}
			seen := map[string]bool{}
			for _, c := range got {
				key := fmt.Sprintf("%s:%d-%d", c.Path, c.StartLine, c.EndLine)
				if seen[key] {
					t.Errorf("%q k=%d: duplicate %s", q, k, key)
				}
				seen[key] = true
			}
		}
	}
}

func TestRetrieveErrors(t *testing.T) {
	embedErr := &MockEmbedder{EmbedFunc: func(ctx context.Context, text string) ([]float32, error) {
		return nil, ai.ErrRateLimited
	}}
	if _, err := NewRetriever(embedErr, &MockSearchStore{}).Retrieve(context.Background(), "repo", "q", 3); !errors.Is(err, ai.ErrRateLimited) {
		t.Errorf("error = %v, want ErrRateLimited", err)
	}

	storeErr := &MockSearchStore{VectorSearchFunc: func(ctx context.Context, repoID string, vec []float32, candidates, limit int) ([]models.RetrievedChunk, error) {
		return nil, errors.New("db down")
	}}
	if _, err := NewRetriever(&MockEmbedder{}, storeErr).Retrieve(context.Background(), "repo", "q", 3); err == nil {
		t.Error("expected store error")
	}

	got, err := NewRetriever(&MockEmbedder{}, &MockSearchStore{}).Retrieve(context.Background(), "repo", "q", 0)
	if err != nil || got != nil {
		t.Errorf("k=0: %v, %v", got, err)
	}
}

func TestSearchRaw(t *testing.T) {
	st := &MockSearchStore{VectorSearchFunc: func(ctx context.Context, repoID string, vec []float32, candidates, limit int) ([]models.RetrievedChunk, error) {
		return []models.RetrievedChunk{chunk("README.md", 1, 0.9)}, nil
	}}
	got, err := NewRetriever(&MockEmbedder{}, st).Search(context.Background(), "repo", "readme", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || st.Candidates != 50 || st.Limit != 3 {
		t.Errorf("got %d results, candidates %d limit %d", len(got), st.Candidates, st.Limit)
	}
}

func TestKeywordPattern(t *testing.T) {
	if got := KeywordPattern([]string{"a.b", "", "c+"}); got != `a\.b|c\+` {
		t.Errorf("KeywordPattern = %q", got)
	}
}

func TestDedupe(t *testing.T) {
	in := []models.RetrievedChunk{chunk("a.go", 1, 0.9), chunk("a.go", 1, 0.1), chunk("a.go", 11, 0.5)}
	got := Dedupe(in)
	if len(got) != 2 || got[0].Score != 0.9 {
		t.Errorf("Dedupe = %+v", got)
	}
}
