// Package answer turns retrieved evidence into a grounded answer using a
// primary generator with an optional local fallback.
package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nikhileshsirohi/codebase-explainer/internal/ai"
	"github.com/nikhileshsirohi/codebase-explainer/internal/search"
	"github.com/nikhileshsirohi/codebase-explainer/pkg/models"
	"github.com/rs/zerolog/log"
)

// Mode selects which generators may answer.
type Mode string

const (
	ModeAuto    Mode = "auto"
	ModePrimary Mode = "primary"
	ModeLocal   Mode = "local"
)

// ParseMode maps a configured provider name to a Mode. Unknown values
// select auto.
func ParseMode(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "primary", string(ai.ProviderGemini), string(ai.ProviderOpenAI), string(ai.ProviderVertexAI):
		return ModePrimary
	case "local", string(ai.ProviderOllama):
		return ModeLocal
	}
	return ModeAuto
}

// ErrNoGenerator is returned when the mode requires a generator that is
// not configured.
var ErrNoGenerator = errors.New("no answer generator configured")

// Retriever finds evidence chunks for a question.
type Retriever interface {
	Retrieve(ctx context.Context, repoID, question string, k int) ([]models.RetrievedChunk, error)
}

// Service answers questions about an indexed repository.
type Service struct {
	Retriever Retriever
	Primary   ai.Generator
	Local     ai.Generator
	Mode      Mode
}

// NewService creates a new answer service
func NewService(r Retriever, primary, local ai.Generator, mode Mode) *Service {
	return &Service{Retriever: r, Primary: primary, Local: local, Mode: mode}
}

// Answer retrieves up to k chunks and asks a generator to answer from them.
// Without evidence the NotFound reply is returned and no generator is called.
func (s *Service) Answer(ctx context.Context, repoID, question string, history []models.ChatMessage, k int) (models.Answer, error) {
	chunks, err := s.Retriever.Retrieve(ctx, repoID, question, k)
	if err != nil {
		return models.Answer{}, fmt.Errorf("retrieve: %w", err)
	}
	chunks = search.Dedupe(chunks)
	if len(chunks) > k {
		chunks = chunks[:k]
	}
	if len(chunks) == 0 {
		return models.Answer{Text: NotFound, Sources: []models.Citation{}}, nil
	}

	text, err := s.generate(ctx, BuildPrompt(question, chunks, history))
	if err != nil {
		return models.Answer{}, err
	}
	return models.Answer{Text: text, Sources: Citations(text, chunks)}, nil
}

// Citations lists chunks in prompt order, or nothing when text is the
// NotFound reply.
func Citations(text string, chunks []models.RetrievedChunk) []models.Citation {
	out := []models.Citation{}
	if strings.HasPrefix(strings.TrimSpace(text), NotFound) {
		return out
	}
	for i, c := range chunks {
		out = append(out, models.Citation{
			Index:     i + 1,
			Path:      c.Path,
			StartLine: c.StartLine,
			EndLine:   c.EndLine,
			Score:     c.Score,
		})
	}
	return out
}

func (s *Service) generate(ctx context.Context, prompt string) (string, error) {
	switch s.Mode {
	case ModeLocal:
		return call(ctx, s.Local, prompt)
	case ModePrimary:
		return call(ctx, s.Primary, prompt)
	}

	if s.Primary == nil {
		return call(ctx, s.Local, prompt)
	}
	text, err := call(ctx, s.Primary, prompt)
	if err == nil || !errors.Is(err, ai.ErrRateLimited) || s.Local == nil {
		return text, err
	}
	log.Warn().Err(err).Str("primary", s.Primary.Name()).Str("fallback", s.Local.Name()).
		Msg("primary generator rate limited, falling back")
	return call(ctx, s.Local, prompt)
}

func call(ctx context.Context, g ai.Generator, prompt string) (string, error) {
	if g == nil {
		return "", ErrNoGenerator
	}
	text, err := g.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("generate with %s: %w", g.Name(), err)
	}
	return text, nil
}
