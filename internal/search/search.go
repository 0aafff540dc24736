// Package search retrieves evidence chunks for a question by combining
// vector similarity with intent-aware filtering and a keyword fallback.
package search

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/nikhileshsirohi/codebase-explainer/internal/ai"
	"github.com/nikhileshsirohi/codebase-explainer/internal/store"
	"github.com/nikhileshsirohi/codebase-explainer/pkg/models"
	"github.com/rs/zerolog/log"
)

// keywordLimit caps the rows read by the keyword fallback.
const keywordLimit = 50

// Retriever answers retrieval queries for one deployment.
type Retriever struct {
	Embedder ai.Embedder
	Store    store.SearchStore
}

// NewRetriever creates a new retriever with the provided embedder and store
func NewRetriever(e ai.Embedder, s store.SearchStore) *Retriever {
	return &Retriever{Embedder: e, Store: s}
}

// FetchLimit is the number of vector matches read before filtering.
func FetchLimit(k int, flow bool) int {
	if flow {
		return max(k*8, 80)
	}
	return max(k*5, 40)
}

// Candidates is the HNSW candidate pool for a fetch limit.
func Candidates(limit int) int {
	return max(400, 5*limit)
}

// Retrieve returns at most k evidence chunks for question, unique by path
// and line range.
func (r *Retriever) Retrieve(ctx context.Context, repoID, question string, k int) ([]models.RetrievedChunk, error) {
	if k <= 0 {
		return nil, nil
	}
	vec, err := r.Embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	flow := IsFlowQuestion(question)
	intent := ClassifyIntent(question)
	prof := profileFor(intent)
	limit := FetchLimit(k, flow)

	rows, err := r.Store.VectorSearch(ctx, repoID, vec, Candidates(limit), limit)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return isCode(rows[i].Path) && !isCode(rows[j].Path)
	})

	seen := make(map[chunkKey]bool)
	var out []models.RetrievedChunk
	for _, row := range rows {
		if !prof.admits(row) {
			continue
		}
		row.Text = strings.TrimSpace(row.Text)
		key := keyOf(row)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, row)
		if !flow && len(out) >= k {
			break
		}
	}

	if (flow && len(out) < min(5, k)) || (intent == IntentGitHubFetch && len(out) < k) {
		extra, err := r.Store.KeywordSearch(ctx, repoID, KeywordPattern(prof.keywords), keywordLimit)
		if err != nil {
			return nil, err
		}
		added := 0
		for _, row := range extra {
			if len(out) >= k {
				break
			}
			row.Text = strings.TrimSpace(row.Text)
			if isNoise(row.Path) || utf8.RuneCountInString(row.Text) < prof.minText {
				continue
			}
			key := keyOf(row)
			if seen[key] {
				continue
			}
			seen[key] = true
			row.Score = 0
			out = append(out, row)
			added++
		}
		log.Debug().Str("repo_id", repoID).Int("added", added).Msg("keyword fallback")
	}

	if len(out) > k {
		out = out[:k]
	}
	log.Debug().Str("repo_id", repoID).Str("intent", string(intent)).Bool("flow", flow).
		Int("candidates", len(rows)).Int("results", len(out)).Msg("retrieval complete")
	return out, nil
}

// Search is the unfiltered similarity search behind the raw search endpoint.
func (r *Retriever) Search(ctx context.Context, repoID, query string, k int) ([]models.RetrievedChunk, error) {
	if k <= 0 {
		return nil, nil
	}
	vec, err := r.Embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return r.Store.VectorSearch(ctx, repoID, vec, max(50, k*10), k)
}

// KeywordPattern builds a case-insensitive alternation of literal words.
func KeywordPattern(words []string) string {
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		if w != "" {
			quoted = append(quoted, regexp.QuoteMeta(w))
		}
	}
	return strings.Join(quoted, "|")
}

type chunkKey struct {
	path       string
	start, end int
}

func keyOf(c models.RetrievedChunk) chunkKey {
	return chunkKey{path: c.Path, start: c.StartLine, end: c.EndLine}
}

// Dedupe drops repeated (path, start, end) chunks, keeping first occurrences.
func Dedupe(chunks []models.RetrievedChunk) []models.RetrievedChunk {
	seen := make(map[chunkKey]bool, len(chunks))
	out := make([]models.RetrievedChunk, 0, len(chunks))
	for _, c := range chunks {
		k := keyOf(c)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, c)
	}
	return out
}

func (p profile) admits(c models.RetrievedChunk) bool {
	lp := strings.ToLower(c.Path)
	if len(p.pathFilters) > 0 && !containsAny(lp, p.pathFilters) {
		return false
	}
	if isNoise(c.Path) {
		return false
	}
	return utf8.RuneCountInString(strings.TrimSpace(c.Text)) >= p.minText
}

var codeExts = map[string]bool{
	".py": true, ".go": true, ".js": true, ".jsx": true, ".ts": true, ".tsx": true,
	".java": true, ".kt": true, ".rb": true, ".rs": true, ".c": true, ".h": true,
	".cc": true, ".cpp": true, ".cs": true, ".php": true, ".swift": true, ".scala": true,
	".sh": true, ".sql": true,
}

func isCode(p string) bool {
	return codeExts[strings.ToLower(path.Ext(p))]
}

// isNoise reports documentation, license and ignore files.
func isNoise(p string) bool {
	lp := strings.ToLower(p)
	base := path.Base(lp)
	switch {
	case strings.HasSuffix(lp, ".md"),
		base == "readme.md",
		strings.HasPrefix(base, "license"),
		strings.HasSuffix(lp, ".gitignore"),
		strings.HasSuffix(lp, ".dockerignore"):
		return true
	}
	return false
}
