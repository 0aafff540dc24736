// Package chunker splits file text into overlapping, size-bounded line ranges.
package chunker

import (
	"path"
	"strings"
	"unicode/utf8"
)

// MinChunkChars is the smallest trimmed chunk text that is kept.
const MinChunkChars = 80

// Span is one chunk of a file. Lines are 1-based and inclusive.
type Span struct {
	Text      string
	StartLine int
	EndLine   int
}

var nonCodePrefixes = []string{
	".github/", "docs/", "data/", "assets/", ".vscode/", ".idea/",
	"node_modules/", ".venv/", "venv/", "vendor/", ".git/",
}

var nonCodeFiles = map[string]bool{
	"readme.md": true, "license": true, "license.md": true, "changelog.md": true,
	"contributing.md": true, ".gitignore": true, ".dockerignore": true,
}

var nonCodeExts = map[string]bool{
	".md": true, ".rst": true, ".txt": true, ".png": true, ".jpg": true, ".jpeg": true,
	".gif": true, ".pdf": true, ".svg": true, ".toml": true, ".ini": true,
}

// SkipPath reports whether p is documentation, tooling, vendored or binary
// content that should never be chunked.
func SkipPath(p string) bool {
	lp := strings.TrimPrefix(strings.ToLower(strings.ReplaceAll(p, "\\", "/")), "./")
	for _, pre := range nonCodePrefixes {
		if strings.HasPrefix(lp, pre) {
			return true
		}
	}
	base := path.Base(lp)
	if nonCodeFiles[base] {
		return true
	}
	return nonCodeExts[path.Ext(base)]
}

// Chunk splits text into line ranges whose length, counting one separator
// per line, stays within maxChars. Consecutive chunks share up to
// overlapLines lines. A single line longer than maxChars becomes a chunk of
// its own. Chunks whose trimmed text is shorter than MinChunkChars are
// dropped.
func Chunk(text, p string, maxChars, overlapLines int) []Span {
	if SkipPath(p) {
		return nil
	}
	if overlapLines < 0 {
		overlapLines = 0
	}
	lines := splitLines(text)

	var out []Span
	i := 0
	for i < len(lines) {
		start := i
		chars := 0
		for i < len(lines) {
			n := utf8.RuneCountInString(lines[i]) + 1
			if chars+n > maxChars {
				break
			}
			chars += n
			i++
		}
		if i == start {
			i = start + 1
		}

		body := strings.TrimSpace(strings.Join(lines[start:i], "\n"))
		if utf8.RuneCountInString(body) >= MinChunkChars {
			out = append(out, Span{Text: body, StartLine: start + 1, EndLine: i})
		}
		if i >= len(lines) {
			break
		}

		next := i - overlapLines
		if next <= start {
			next = start + 1
		}
		i = next
	}
	return out
}

// splitLines breaks text on any newline convention. A trailing newline does
// not produce an empty final line.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.TrimSuffix(text, "\n")
	return strings.Split(text, "\n")
}
