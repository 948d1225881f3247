package pipeline

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/dgallion1/pagechunk/internal/page"
	"github.com/google/uuid"
)

// JobStatus represents the state of an ingestion job.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusWriting    JobStatus = "writing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusEmpty      JobStatus = "empty"
	StatusDupSkipped JobStatus = "duplicate_skipped"
)

// Job tracks the state of a single page ingestion.
type Job struct {
	mu sync.Mutex

	ID       string `json:"job_id"`
	PageID   string `json:"page_id"`
	Filename string `json:"filename"`
	Title    string `json:"title"`

	Status JobStatus `json:"status"`
	Phase  string    `json:"phase"`

	Progress Progress `json:"progress"`

	ContentHash string    `json:"content_hash,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Internal: not serialized.
	page     page.Page
	chunkIDs []string
	errors   []string
}

// Progress tracks processing progress.
type Progress struct {
	Blocks int      `json:"blocks"`
	Chunks int      `json:"chunks"`
	Tokens int      `json:"tokens"`
	Errors []string `json:"errors"`
}

// NewJob wraps a page for asynchronous ingestion. filename is the
// uploaded file name, if any.
func NewJob(p page.Page, filename string) *Job {
	now := time.Now()
	return &Job{
		ID:          uuid.NewString(),
		PageID:      p.ID,
		Filename:    filename,
		Title:       p.Title,
		Status:      StatusQueued,
		Phase:       "queued",
		ContentHash: ContentHashHex([]byte(p.HTML)),
		CreatedAt:   now,
		UpdatedAt:   now,
		page:        p,
	}
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

func (s *JobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Cleanup removes jobs not updated within the TTL.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		if now.Sub(job.updatedAt()) > s.ttl {
			delete(s.jobs, id)
		}
	}
}

func (j *Job) updatedAt() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.UpdatedAt
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.Progress.Errors = j.errors
	j.UpdatedAt = time.Now()
}

// SetResult records what processing produced.
func (j *Job) SetResult(res Result) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.Blocks = len(res.Blocks)
	j.Progress.Chunks = len(res.Chunks)
	j.Progress.Tokens = res.Tokens
	j.chunkIDs = make([]string, len(res.Chunks))
	for i, c := range res.Chunks {
		j.chunkIDs[i] = c.ChunkID
	}
	j.UpdatedAt = time.Now()
}

// Page returns the page submitted with the job.
func (j *Job) Page() page.Page {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.page
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID          string    `json:"job_id"`
	PageID      string    `json:"page_id"`
	Filename    string    `json:"filename,omitempty"`
	Title       string    `json:"title"`
	Status      JobStatus `json:"status"`
	Phase       string    `json:"phase"`
	Progress    Progress  `json:"progress"`
	ChunkIDs    []string  `json:"chunk_ids"`
	ContentHash string    `json:"content_hash,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := append([]string{}, j.Progress.Errors...)
	ids := append([]string{}, j.chunkIDs...)
	return JobSnapshot{
		ID:       j.ID,
		PageID:   j.PageID,
		Filename: j.Filename,
		Title:    j.Title,
		Status:   j.Status,
		Phase:    j.Phase,
		Progress: Progress{
			Blocks: j.Progress.Blocks,
			Chunks: j.Progress.Chunks,
			Tokens: j.Progress.Tokens,
			Errors: errs,
		},
		ChunkIDs:    ids,
		ContentHash: j.ContentHash,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}
