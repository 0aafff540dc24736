package source

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v68/github"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// GitHub reads trees and blobs through the GitHub REST API.
type GitHub struct {
	client *github.Client
}

// NewGitHub builds a GitHub fetcher. token may be empty for anonymous access
// and baseURL may point at a GitHub Enterprise API root.
func NewGitHub(ctx context.Context, token, baseURL string) (*GitHub, error) {
	httpClient := &http.Client{Timeout: 30 * time.Second}
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, httpClient), ts)
	}
	client := github.NewClient(httpClient)
	client.UserAgent = "codebase-explainer"

	if baseURL != "" {
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("parse github api url: %w", err)
		}
		client.BaseURL = u
	}
	return &GitHub{client: client}, nil
}

// NewGitHubWithClient wraps an existing go-github client.
func NewGitHubWithClient(c *github.Client) *GitHub {
	return &GitHub{client: c}
}

func (g *GitHub) Tree(ctx context.Context, owner, repo string) (Tree, error) {
	r, _, err := g.client.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return Tree{}, classify(err, "get repository")
	}
	branch := r.GetDefaultBranch()

	ref, _, err := g.client.Git.GetRef(ctx, owner, repo, "heads/"+branch)
	if err != nil {
		return Tree{}, classify(err, "get ref")
	}
	commitSHA := ref.GetObject().GetSHA()

	commit, _, err := g.client.Git.GetCommit(ctx, owner, repo, commitSHA)
	if err != nil {
		return Tree{}, classify(err, "get commit")
	}

	gt, _, err := g.client.Git.GetTree(ctx, owner, repo, commit.GetTree().GetSHA(), true)
	if err != nil {
		return Tree{}, classify(err, "get tree")
	}
	if gt.GetTruncated() {
		log.Warn().Str("owner", owner).Str("repo", repo).Msg("github returned a truncated tree")
	}

	out := Tree{DefaultBranch: branch, CommitSHA: commitSHA}
	for _, e := range gt.Entries {
		if e.GetType() != "blob" {
			continue
		}
		out.Files = append(out.Files, Entry{
			Path: e.GetPath(),
			SHA:  e.GetSHA(),
			Size: int64(e.GetSize()),
			URL:  e.GetURL(),
			Mode: e.GetMode(),
		})
	}
	return out, nil
}

func (g *GitHub) Content(ctx context.Context, owner, repo string, e Entry) ([]byte, error) {
	blob, _, err := g.client.Git.GetBlob(ctx, owner, repo, e.SHA)
	if err != nil {
		return nil, classify(err, "get blob "+e.Path)
	}
	return decodeBlob(blob.GetContent(), blob.GetEncoding())
}

func decodeBlob(content, encoding string) ([]byte, error) {
	switch strings.ToLower(encoding) {
	case "base64":
		// GitHub wraps base64 payloads at 60 columns.
		clean := strings.NewReplacer("\n", "", "\r", "").Replace(content)
		b, err := base64.StdEncoding.DecodeString(clean)
		if err != nil {
			return nil, fmt.Errorf("decode base64 blob: %w", err)
		}
		return b, nil
	default:
		return []byte(content), nil
	}
}

// classify maps go-github errors onto FetchError and RateLimitError.
func classify(err error, op string) error {
	var rl *github.RateLimitError
	if errors.As(err, &rl) {
		status := http.StatusForbidden
		if rl.Response != nil {
			status = rl.Response.StatusCode
		}
		return &RateLimitError{
			Status:    status,
			Remaining: rl.Rate.Remaining,
			Reset:     rl.Rate.Reset.Time,
			Message:   op + ": " + rl.Message,
		}
	}

	var abuse *github.AbuseRateLimitError
	if errors.As(err, &abuse) {
		out := &RateLimitError{Status: http.StatusForbidden, Remaining: -1, Message: op + ": " + abuse.Message}
		if abuse.Response != nil {
			out = rateLimitFromHeaders(abuse.Response.StatusCode, abuse.Response.Header, out.Message)
		}
		if abuse.RetryAfter != nil && out.Reset.IsZero() {
			out.Reset = time.Now().Add(*abuse.RetryAfter).UTC()
		}
		return out
	}

	var er *github.ErrorResponse
	if errors.As(err, &er) && er.Response != nil {
		status := er.Response.StatusCode
		if status == http.StatusForbidden || status == http.StatusTooManyRequests {
			return rateLimitFromHeaders(status, er.Response.Header, op+": "+er.Message)
		}
		return &FetchError{Status: status, Message: op + ": " + er.Message, Err: err}
	}

	return &FetchError{Message: fmt.Sprintf("%s: %v", op, err), Err: err}
}
