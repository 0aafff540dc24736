package source

import (
	"bytes"
	"path"
	"strings"
)

const binarySniffBytes = 8000

var textExtensions = map[string]bool{
	".py": true, ".pyi": true, ".go": true, ".js": true, ".jsx": true, ".mjs": true, ".cjs": true,
	".ts": true, ".tsx": true, ".java": true, ".kt": true, ".kts": true, ".scala": true,
	".rb": true, ".php": true, ".rs": true, ".c": true, ".h": true, ".cc": true, ".cpp": true,
	".hpp": true, ".cs": true, ".swift": true, ".m": true, ".sh": true, ".bash": true, ".zsh": true,
	".ps1": true, ".sql": true, ".r": true, ".lua": true, ".pl": true, ".dart": true, ".ex": true,
	".exs": true, ".erl": true, ".hs": true, ".clj": true, ".vue": true, ".svelte": true,
	".html": true, ".css": true, ".scss": true, ".less": true, ".json": true, ".yaml": true,
	".yml": true, ".toml": true, ".ini": true, ".cfg": true, ".conf": true, ".xml": true,
	".md": true, ".rst": true, ".txt": true, ".proto": true, ".graphql": true, ".gradle": true,
	".tf": true, ".mod": true,
}

var textFilenames = map[string]bool{
	"dockerfile": true, "makefile": true, "procfile": true, "gemfile": true, "rakefile": true,
	"license": true, "readme": true, ".gitignore": true, ".dockerignore": true,
	".env.example": true, "go.sum": true,
}

// LikelyText reports whether p names a file that is probably source or text.
func LikelyText(p string) bool {
	base := strings.ToLower(path.Base(p))
	if textFilenames[base] {
		return true
	}
	return textExtensions[path.Ext(base)]
}

// Admit applies the pre-fetch admission rules. A non-positive maxBytes
// disables the size ceiling.
func Admit(p string, size, maxBytes int64) bool {
	if !LikelyText(p) {
		return false
	}
	return maxBytes <= 0 || size <= maxBytes
}

// IsBinary reports a null byte within the leading bytes of data.
func IsBinary(data []byte) bool {
	if len(data) > binarySniffBytes {
		data = data[:binarySniffBytes]
	}
	return bytes.IndexByte(data, 0) >= 0
}

// Decode converts raw bytes to text, replacing invalid UTF-8 sequences.
func Decode(data []byte) string {
	return strings.ToValidUTF8(string(data), "\uFFFD")
}
