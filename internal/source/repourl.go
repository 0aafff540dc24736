package source

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	ProviderGitHub  = "github"
	ProviderUnknown = "unknown"
)

// Canonicalize normalizes a repository URL to https://host/owner/repo.
// A missing scheme is treated as https; trailing slashes and a .git suffix
// are removed and anything past the second path segment is dropped.
func Canonicalize(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("empty repository url")
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("parse repository url: %w", err)
	}
	host := strings.ToLower(u.Host)
	if host == "" {
		return "", fmt.Errorf("repository url %q has no host", raw)
	}

	p := strings.TrimRight(u.Path, "/")
	p = strings.TrimSuffix(p, ".git")
	var parts []string
	for _, seg := range strings.Split(p, "/") {
		if seg != "" {
			parts = append(parts, seg)
		}
	}
	if len(parts) > 2 {
		parts = parts[:2]
	}
	return "https://" + host + "/" + strings.Join(parts, "/"), nil
}

// DetectProvider tags a repository URL with its hosting provider.
func DetectProvider(repoURL string) string {
	c, err := Canonicalize(repoURL)
	if err != nil {
		return ProviderUnknown
	}
	u, err := url.Parse(c)
	if err != nil {
		return ProviderUnknown
	}
	switch u.Host {
	case "github.com", "www.github.com":
		return ProviderGitHub
	}
	return ProviderUnknown
}

// ParseOwnerRepo extracts owner and repository name from a canonical URL.
func ParseOwnerRepo(canonical string) (string, string, error) {
	u, err := url.Parse(canonical)
	if err != nil {
		return "", "", &FetchError{Message: fmt.Sprintf("malformed repository reference %q", canonical), Err: err}
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", &FetchError{Message: fmt.Sprintf("malformed repository reference %q", canonical)}
	}
	return parts[0], parts[1], nil
}
