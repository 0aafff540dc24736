package models

import "time"

// JobStatus is the lifecycle state of an ingest job.
type JobStatus string

const (
	JobQueued  JobStatus = "queued"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// Terminal reports whether no further transitions are expected.
func (s JobStatus) Terminal() bool {
	return s == JobDone || s == JobFailed
}

type Repository struct {
	ID            string    `json:"repo_id"`
	RepoURL       string    `json:"repo_url"`
	CanonicalURL  string    `json:"canonical_repo_url"`
	Provider      string    `json:"provider"`
	DefaultBranch string    `json:"default_branch,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// JobStats holds the counters accumulated by one ingest job. Fields are
// pointers so partial updates can be merged key by key.
type JobStats struct {
	FilesIndexed   *int `json:"files_indexed,omitempty"`
	FilesFetched   *int `json:"files_fetched,omitempty"`
	FilesSkipped   *int `json:"files_skipped,omitempty"`
	FilesFailed    *int `json:"files_failed,omitempty"`
	ChunksProduced *int `json:"chunks_produced,omitempty"`
	ChunksEmbedded *int `json:"chunks_embedded,omitempty"`
}

// Merge overwrites the fields of s that are set in o.
func (s JobStats) Merge(o JobStats) JobStats {
	if o.FilesIndexed != nil {
		s.FilesIndexed = o.FilesIndexed
	}
	if o.FilesFetched != nil {
		s.FilesFetched = o.FilesFetched
	}
	if o.FilesSkipped != nil {
		s.FilesSkipped = o.FilesSkipped
	}
	if o.FilesFailed != nil {
		s.FilesFailed = o.FilesFailed
	}
	if o.ChunksProduced != nil {
		s.ChunksProduced = o.ChunksProduced
	}
	if o.ChunksEmbedded != nil {
		s.ChunksEmbedded = o.ChunksEmbedded
	}
	return s
}

// Count returns a pointer to n, for building JobStats literals.
func Count(n int) *int { return &n }

type IngestJob struct {
	ID          string    `json:"job_id"`
	RepoID      string    `json:"repo_id"`
	Status      JobStatus `json:"status"`
	Error       string    `json:"error,omitempty"`
	Stats       JobStats  `json:"stats"`
	RequestedBy string    `json:"requested_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// FileRecord is one blob entry of a repository tree, scoped to a job.
type FileRecord struct {
	RepoID string `json:"repo_id"`
	JobID  string `json:"job_id"`
	Path   string `json:"path"`
	SHA    string `json:"sha"`
	Size   int64  `json:"size"`
	URL    string `json:"url,omitempty"`
	Mode   string `json:"mode,omitempty"`
}

// FileContent is the decoded text of an admitted file, scoped to a job.
type FileContent struct {
	RepoID string `json:"repo_id"`
	JobID  string `json:"job_id"`
	Path   string `json:"path"`
	SHA    string `json:"sha"`
	Size   int64  `json:"size"`
	Text   string `json:"text"`
}

type Chunk struct {
	RepoID     string    `json:"repo_id"`
	JobID      string    `json:"job_id"`
	Path       string    `json:"path"`
	ChunkIndex int       `json:"chunk_index"`
	StartLine  int       `json:"start_line"`
	EndLine    int       `json:"end_line"`
	Text       string    `json:"text"`
	Embedding  []float32 `json:"-"`
	TextHash   string    `json:"text_hash"`
	CreatedAt  time.Time `json:"created_at"`
}

// RetrievedChunk is a chunk returned by search together with its score.
// Keyword fallback matches carry a score of 0.
type RetrievedChunk struct {
	Path      string  `json:"path"`
	StartLine int     `json:"start_line"`
	EndLine   int     `json:"end_line"`
	Text      string  `json:"text"`
	Score     float64 `json:"score"`
}

type Citation struct {
	Index     int     `json:"index"`
	Path      string  `json:"path"`
	StartLine int     `json:"start_line"`
	EndLine   int     `json:"end_line"`
	Score     float64 `json:"score"`
}

type Answer struct {
	Text    string     `json:"answer"`
	Sources []Citation `json:"sources"`
}

type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}
