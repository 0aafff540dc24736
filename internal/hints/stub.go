//go:build !cgo

package hints

// Extract needs tree-sitter, which requires cgo; without it every snippet
// yields an empty Result.
func Extract(p, text string) Result {
	return Result{}
}
