//go:build cgo

package hints

import (
	"testing"
)

func hasSymbol(r Result, kind, name string) bool {
	for _, s := range r.Symbols {
		if s.Kind == kind && s.Name == name {
			return true
		}
	}
	return false
}

func hasLink(r Result, kind, name string) bool {
	for _, l := range r.Links {
		if l.Kind == kind && l.Name == name {
			return true
		}
	}
	return false
}

func TestExtractPython(t *testing.T) {
	src := `import os
from app.services import chunker

class Runner:
    def run(self, repo):
        files = list(repo.files)
        parts = chunker.chunk_file(files[0])
        name = repo.name.lower()
        print(name)
        return embed_texts(parts)
`
	r := Extract("app/runner.py", src)

	if !hasSymbol(r, "class", "Runner") {
		t.Errorf("missing class Runner: %+v", r.Symbols)
	}
	if !hasSymbol(r, "function", "run") {
		t.Errorf("missing function run: %+v", r.Symbols)
	}
	if !hasLink(r, KindImports, "os") || !hasLink(r, KindImports, "app.services.chunker") {
		t.Errorf("missing imports: %+v", r.Links)
	}
	if !hasLink(r, KindCalls, "chunk_file") || !hasLink(r, KindCalls, "embed_texts") {
		t.Errorf("missing calls: %+v", r.Links)
	}
	for _, noisy := range []string{"list", "print", "lower"} {
		if hasLink(r, KindCalls, noisy) {
			t.Errorf("noise call %q should be dropped", noisy)
		}
	}
	if r.Links[0].Kind != KindImports {
		t.Errorf("imports should precede calls, got %+v", r.Links[0])
	}
}

func TestExtractGo(t *testing.T) {
	src := `package ingest

import (
	"context"
	"fmt"
)

type Runner struct{}

func (r *Runner) Run(ctx context.Context) error {
	items := make([]string, 0)
	items = append(items, "x")
	return fmt.Errorf("run: %w", indexRepo(ctx, items))
}

func indexRepo(ctx context.Context, items []string) error { return nil }
`
	r := Extract("internal/ingest/run.go", src)

	if !hasSymbol(r, "type", "Runner") || !hasSymbol(r, "method", "Run") || !hasSymbol(r, "function", "indexRepo") {
		t.Errorf("unexpected symbols: %+v", r.Symbols)
	}
	if !hasLink(r, KindImports, "context") || !hasLink(r, KindImports, "fmt") {
		t.Errorf("missing imports: %+v", r.Links)
	}
	if !hasLink(r, KindCalls, "Errorf") || !hasLink(r, KindCalls, "indexRepo") {
		t.Errorf("missing calls: %+v", r.Links)
	}
	if hasLink(r, KindCalls, "make") || hasLink(r, KindCalls, "append") {
		t.Errorf("builtins should be dropped: %+v", r.Links)
	}
}

func TestExtractTypeScript(t *testing.T) {
	src := `import { embed } from "./ai";

interface Chunk { text: string }

export class Indexer {
  index(c: Chunk) {
    return embed(c.text).then(v => this.store.save(v));
  }
}
`
	r := Extract("src/indexer.ts", src)

	if !hasSymbol(r, "class", "Indexer") || !hasSymbol(r, "method", "index") || !hasSymbol(r, "type", "Chunk") {
		t.Errorf("unexpected symbols: %+v", r.Symbols)
	}
	if !hasLink(r, KindImports, "./ai") {
		t.Errorf("missing import: %+v", r.Links)
	}
	if !hasLink(r, KindCalls, "embed") || !hasLink(r, KindCalls, "save") {
		t.Errorf("missing calls: %+v", r.Links)
	}
}

func TestExtractEmpty(t *testing.T) {
	tests := []struct {
		name string
		path string
		text string
	}{
		{"unsupported language", "notes.txt", "def f(): pass"},
		{"syntax error", "broken.py", "def broken(:\n    return"},
		{"blank", "a.py", "   \n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if r := Extract(tt.path, tt.text); !r.Empty() {
				t.Errorf("expected empty result, got %+v", r)
			}
		})
	}
}
