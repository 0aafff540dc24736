package search

import "strings"

// Intent is a coarse category of question used to bias retrieval.
type Intent string

const (
	IntentRepoIngestion Intent = "repo_ingestion"
	IntentAPIFlow       Intent = "api_flow"
	IntentGitHubFetch   Intent = "github_fetch"
	IntentGeneral       Intent = "general"
)

var intentRules = []struct {
	intent Intent
	terms  []string
}{
	{IntentRepoIngestion, []string{"ingestion flow", "ingest flow", "repo ingestion", "end-to-end", "pipeline"}},
	{IntentAPIFlow, []string{"ask", "session", "chat", "conversation", "history"}},
	{IntentGitHubFetch, []string{"fetch", "github", "blob", "file contents", "download"}},
}

// ClassifyIntent returns the first intent whose vocabulary occurs in the
// question, or IntentGeneral.
func ClassifyIntent(question string) Intent {
	q := strings.ToLower(question)
	for _, r := range intentRules {
		if containsAny(q, r.terms) {
			return r.intent
		}
	}
	return IntentGeneral
}

var flowTerms = []string{"end-to-end", "end to end", "flow", "pipeline", "how does", "how is", "steps", "process"}

// IsFlowQuestion reports whether the question asks about a multi-step
// process, which widens the initial evidence pool.
func IsFlowQuestion(question string) bool {
	return containsAny(strings.ToLower(question), flowTerms)
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

// profile holds the retrieval bias of an intent.
type profile struct {
	pathFilters []string
	keywords    []string
	minText     int
}

func profileFor(i Intent) profile {
	switch i {
	case IntentRepoIngestion:
		return profile{
			pathFilters: []string{"ingest", "indexing", "indexer"},
			keywords:    []string{"ingest", "ingestion", "chunk", "embedding", "index"},
			minText:     80,
		}
	case IntentAPIFlow:
		return profile{
			pathFilters: []string{"chat", "session", "api/"},
			keywords:    []string{"chat", "session", "message", "history", "ask"},
			minText:     80,
		}
	case IntentGitHubFetch:
		return profile{
			pathFilters: []string{"ingest", "github", "fetch", "source"},
			keywords:    []string{"github", "blob", "file", "contents", "raw", "download"},
			minText:     40,
		}
	default:
		return profile{
			keywords: []string{"chunk", "embed", "search"},
			minText:  80,
		}
	}
}
