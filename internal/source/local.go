package source

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/karrick/godirwalk"
	"github.com/rs/zerolog/log"
)

// FileSystemWalker defines the interface for walking directories
type FileSystemWalker interface {
	Walk(root string, options *godirwalk.Options) error
}

// FileReader defines the interface for reading files
type FileReader interface {
	ReadFile(filename string) ([]byte, error)
	Stat(filename string) (os.FileInfo, error)
}

// DefaultFileSystemWalker implements FileSystemWalker using godirwalk
type DefaultFileSystemWalker struct{}

func (d *DefaultFileSystemWalker) Walk(root string, options *godirwalk.Options) error {
	return godirwalk.Walk(root, options)
}

// DefaultFileReader implements FileReader using os
type DefaultFileReader struct{}

func (d *DefaultFileReader) ReadFile(filename string) ([]byte, error) {
	return os.ReadFile(filename)
}

func (d *DefaultFileReader) Stat(filename string) (os.FileInfo, error) {
	return os.Stat(filename)
}

// Local serves a checked-out directory through the Fetcher contract. The
// owner and repo arguments are ignored.
type Local struct {
	Root   string
	Branch string
	Walker FileSystemWalker
	Reader FileReader
}

func NewLocal(root string) *Local {
	return &Local{
		Root:   root,
		Branch: "local",
		Walker: &DefaultFileSystemWalker{},
		Reader: &DefaultFileReader{},
	}
}

var skippedDirs = map[string]bool{
	".git": true, "node_modules": true, ".venv": true, "venv": true,
	"__pycache__": true, ".idea": true, ".terraform": true,
}

func (l *Local) Tree(ctx context.Context, _, _ string) (Tree, error) {
	out := Tree{DefaultBranch: l.Branch}
	err := l.Walker.Walk(l.Root, &godirwalk.Options{
		Unsorted: false,
		Callback: func(p string, de *godirwalk.Dirent) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if de != nil && de.IsDir() {
				if skippedDirs[de.Name()] {
					return godirwalk.SkipThis
				}
				return nil
			}
			fi, err := l.Reader.Stat(p)
			if err != nil {
				log.Warn().Err(err).Str("path", p).Msg("failed to stat file")
				return nil
			}
			if fi.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(l.Root, p)
			if err != nil {
				rel = p
			}
			rel = filepath.ToSlash(rel)
			out.Files = append(out.Files, Entry{
				Path: rel,
				SHA:  pathID(rel, fi.Size(), fi.ModTime().UnixNano()),
				Size: fi.Size(),
				URL:  "file://" + filepath.ToSlash(p),
				Mode: fmt.Sprintf("%o", fi.Mode().Perm()),
			})
			return nil
		},
	})
	if err != nil {
		return Tree{}, &FetchError{Message: fmt.Sprintf("walk %s: %v", l.Root, err), Err: err}
	}
	return out, nil
}

func (l *Local) Content(_ context.Context, _, _ string, e Entry) ([]byte, error) {
	clean := filepath.Clean(filepath.FromSlash(e.Path))
	if filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return nil, fmt.Errorf("path %q escapes repository root", e.Path)
	}
	return l.Reader.ReadFile(filepath.Join(l.Root, clean))
}

// pathID stands in for a content SHA without reading the file during listing.
func pathID(rel string, size, mtime int64) string {
	h := sha1.Sum([]byte(fmt.Sprintf("%s#%d:%d", rel, size, mtime)))
	return hex.EncodeToString(h[:])
}
