package answer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nikhileshsirohi/codebase-explainer/internal/hints"
	"github.com/nikhileshsirohi/codebase-explainer/pkg/models"
)

// NotFound is the exact reply a model gives when the evidence does not
// answer the question.
const NotFound = "Not found in this repository."

const (
	maxPipelineHints = 20
	maxSymbolHints   = 12
	none             = "(none)"
)

// BuildPrompt renders the grounded prompt for question. Chunks are cited by
// their 1-based position.
func BuildPrompt(question string, chunks []models.RetrievedChunk, history []models.ChatMessage) string {
	var b strings.Builder

	b.WriteString("SYSTEM:\n")
	b.WriteString("You are a senior software engineer.\n")
	b.WriteString("Use ONLY the CODE CONTEXT. Do not guess.\n\n")
	b.WriteString("If the CODE CONTEXT does not contain enough information to answer, reply exactly:\n")
	b.WriteString(NotFound + "\n\n")

	b.WriteString("CHAT HISTORY:\n")
	b.WriteString(formatHistory(history) + "\n\n")

	b.WriteString("QUESTION:\n")
	b.WriteString(question + "\n\n")

	b.WriteString("EVIDENCE REFERENCES (verbatim excerpts from the repository):\n")
	b.WriteString(formatChunks(chunks) + "\n\n")

	b.WriteString("EVIDENCE CITATIONS (copy EXACTLY; do not invent):\n")
	b.WriteString(formatCitations(chunks) + "\n\n")

	pipeline, symbols := formatHints(chunks)
	b.WriteString("PIPELINE HINTS (use these to explain \"what calls what\"; do not invent names):\n")
	b.WriteString(pipeline + "\n\n")
	b.WriteString("SYMBOL HINTS (use these names if relevant; do not invent new names):\n")
	b.WriteString(symbols + "\n\n")

	b.WriteString(responseFormat)
	return b.String()
}

const responseFormat = `RESPONSE FORMAT (follow strictly):

If found:
Answer:
- 1-3 sentences.
- Include a 2-4 step flow (A -> B -> C) using names from PIPELINE HINTS / SYMBOL HINTS.

Evidence:
- Copy one or more lines from EVIDENCE CITATIONS exactly.

Next checks:
- 1-2 bullets referencing specific files or symbols.

If not found:
` + NotFound + `

Next checks:
- 1-3 bullets with concrete files, folders, or keywords to search.
`

func formatHistory(history []models.ChatMessage) string {
	if len(history) == 0 {
		return none
	}
	lines := make([]string, 0, len(history))
	for _, m := range history {
		lines = append(lines, strings.ToUpper(m.Role)+": "+m.Content)
	}
	return strings.Join(lines, "\n")
}

func location(c models.RetrievedChunk) string {
	return fmt.Sprintf("%s:%d-%d", c.Path, c.StartLine, c.EndLine)
}

func formatChunks(chunks []models.RetrievedChunk) string {
	if len(chunks) == 0 {
		return "(no relevant context found)"
	}
	blocks := make([]string, 0, len(chunks))
	for i, c := range chunks {
		blocks = append(blocks, fmt.Sprintf("[%d] %s\n```text\n%s\n```", i+1, location(c), c.Text))
	}
	return strings.Join(blocks, "\n\n")
}

func formatCitations(chunks []models.RetrievedChunk) string {
	if len(chunks) == 0 {
		return none
	}
	lines := make([]string, 0, len(chunks))
	for i, c := range chunks {
		lines = append(lines, fmt.Sprintf("[%d] %s", i+1, location(c)))
	}
	return strings.Join(lines, "\n")
}

// formatHints renders pipeline and symbol hint sections from the static
// hints of every chunk in a supported language.
func formatHints(chunks []models.RetrievedChunk) (string, string) {
	var links, syms []string
	seenLink := make(map[string]bool)
	seenSym := make(map[string]bool)

	for _, c := range chunks {
		if !hints.Supported(c.Path) {
			continue
		}
		res := hints.Extract(c.Path, c.Text)
		loc := location(c)
		for _, l := range res.Links {
			var line string
			if l.Kind == hints.KindCalls {
				line = fmt.Sprintf("- calls: `%s()` (seen in %s)", l.Name, loc)
			} else {
				line = fmt.Sprintf("- imports: `%s` (seen in %s)", l.Name, loc)
			}
			if !seenLink[line] {
				seenLink[line] = true
				links = append(links, line)
			}
		}
		for _, s := range res.Symbols {
			line := fmt.Sprintf("- %s: `%s` (from %s)", s.Kind, s.Name, loc)
			if !seenSym[line] {
				seenSym[line] = true
				syms = append(syms, line)
			}
		}
	}

	sort.SliceStable(links, func(i, j int) bool {
		return hints.Priority(links[i]) < hints.Priority(links[j])
	})
	return capped(links, maxPipelineHints), capped(syms, maxSymbolHints)
}

func capped(lines []string, n int) string {
	if len(lines) == 0 {
		return none
	}
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.Join(lines, "\n")
}
