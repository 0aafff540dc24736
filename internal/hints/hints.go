// Package hints extracts best-effort static hints from code snippets:
// defined symbols and the calls and imports a snippet makes. Snippets that
// cannot be parsed yield an empty Result.
package hints

import (
	"path"
	"strings"
)

// Symbol is a definition found in a snippet.
type Symbol struct {
	Kind string // function, class, type or method
	Name string
}

// Link is a call or import made by a snippet.
type Link struct {
	Kind string // calls or imports
	Name string
}

const (
	KindCalls   = "calls"
	KindImports = "imports"
)

// Result holds the hints of one snippet. The zero value means nothing was
// found or the snippet did not parse.
type Result struct {
	Symbols []Symbol
	Links   []Link
}

// Empty reports whether r carries no hints.
func (r Result) Empty() bool { return len(r.Symbols) == 0 && len(r.Links) == 0 }

type language int

const (
	langUnknown language = iota
	langPython
	langGo
	langJavaScript
	langTypeScript
)

func languageFor(p string) language {
	switch strings.ToLower(path.Ext(p)) {
	case ".py", ".pyi":
		return langPython
	case ".go":
		return langGo
	case ".js", ".jsx", ".mjs", ".cjs":
		return langJavaScript
	case ".ts", ".mts", ".cts":
		return langTypeScript
	}
	return langUnknown
}

// Supported reports whether Extract understands the language of p.
func Supported(p string) bool { return languageFor(p) != langUnknown }

var noiseCalls = map[string]bool{
	"len": true, "print": true, "str": true, "int": true, "float": true, "dict": true,
	"list": true, "set": true, "tuple": true, "max": true, "min": true, "sum": true,
	"sorted": true, "range": true, "enumerate": true, "zip": true, "get": true,
	"items": true, "keys": true, "values": true,
	"append": true, "make": true, "new": true, "cap": true, "panic": true, "println": true,
}

var noiseAttrs = map[string]bool{
	"append": true, "extend": true, "split": true, "strip": true, "lower": true,
	"upper": true, "join": true,
}

// Priority ranks a hint by topic: ingestion, embedding, chunking, search,
// then everything else. Lower is more relevant.
func Priority(s string) int {
	n := strings.ToLower(s)
	switch {
	case strings.Contains(n, "ingest"):
		return 0
	case strings.Contains(n, "embed"):
		return 1
	case strings.Contains(n, "chunk"):
		return 2
	case strings.Contains(n, "search"), strings.Contains(n, "retrieve"):
		return 3
	}
	return 9
}

// appendUnique appends v unless seen already holds it.
func appendUnique[T comparable](out []T, seen map[T]bool, v T) []T {
	if seen[v] {
		return out
	}
	seen[v] = true
	return append(out, v)
}
