package source

import (
	"errors"
	"testing"
)

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"https://github.com/Owner/Repo", "https://github.com/Owner/Repo", false},
		{"http://GitHub.com/owner/repo.git", "https://github.com/owner/repo", false},
		{"github.com/owner/repo/", "https://github.com/owner/repo", false},
		{"  https://github.com/owner/repo/tree/main/src  ", "https://github.com/owner/repo", false},
		{"https://gitlab.com/group/project", "https://gitlab.com/group/project", false},
		{"https://github.com/owner", "https://github.com/owner", false},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Canonicalize(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Canonicalize(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Canonicalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDetectProvider(t *testing.T) {
	tests := map[string]string{
		"https://github.com/o/r":     ProviderGitHub,
		"github.com/o/r":             ProviderGitHub,
		"https://gitlab.com/o/r":     ProviderUnknown,
		"https://example.com/github": ProviderUnknown,
	}
	for in, want := range tests {
		if got := DetectProvider(in); got != want {
			t.Errorf("DetectProvider(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseOwnerRepo(t *testing.T) {
	owner, repo, err := ParseOwnerRepo("https://github.com/octo/cat")
	if err != nil {
		t.Fatalf("ParseOwnerRepo failed: %v", err)
	}
	if owner != "octo" || repo != "cat" {
		t.Errorf("Expected octo/cat, got %s/%s", owner, repo)
	}

	_, _, err = ParseOwnerRepo("https://github.com/octo")
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("Expected FetchError for malformed reference, got %v", err)
	}
}
