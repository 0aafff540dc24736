// Package source lists repository trees and fetches file contents from a
// hosting API or a local checkout.
package source

import "context"

// Entry is one blob of a repository tree.
type Entry struct {
	Path string
	SHA  string
	Size int64
	URL  string
	Mode string
}

// Tree is the resolved file listing of a repository's default branch.
type Tree struct {
	DefaultBranch string
	CommitSHA     string
	Files         []Entry
}

// Fetcher resolves a repository tree and retrieves the raw bytes of its
// entries. Errors from Tree are fatal to an ingestion; errors from Content
// concern a single file.
type Fetcher interface {
	Tree(ctx context.Context, owner, repo string) (Tree, error)
	Content(ctx context.Context, owner, repo string, e Entry) ([]byte, error)
}
