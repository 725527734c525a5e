// Package store keeps crawl session jobs in memory for the API server.
package store

import (
	"sync"
	"time"

	"github.com/use-agent/sitecheck/models"
)

// Job is one asynchronous crawl session. It is safe for concurrent use.
type Job struct {
	ID        string
	CreatedAt time.Time

	mu      sync.RWMutex
	status  string
	result  *models.SessionResult
	err     *models.ErrorDetail
	stop    func()
	pending bool // stop requested before the crawl was attached
	updated time.Time
}

// NewJob creates a job in the processing state.
func NewJob(id string) *Job {
	now := time.Now()
	return &Job{ID: id, CreatedAt: now, status: models.StatusProcessing, updated: now}
}

// Attach binds the live result and the function that halts the crawl. A
// stop requested before Attach is applied immediately.
func (j *Job) Attach(result *models.SessionResult, stop func()) {
	j.mu.Lock()
	j.result = result
	j.stop = stop
	pending := j.pending
	j.mu.Unlock()
	if pending {
		stop()
	}
}

// Complete moves the job to its terminal state from the final result.
func (j *Job) Complete(result *models.SessionResult) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.result = result
	j.status = models.StatusCompleted
	if result.Report().StopReason == models.StopStopped {
		j.status = models.StatusStopped
	}
	j.stop = nil
	j.updated = time.Now()
}

// Fail marks the job failed with err.
func (j *Job) Fail(err error) {
	se := models.CategorizeError(err, models.ErrCodeInternal, "session failed")
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = models.StatusFailed
	j.err = se.ToDetail()
	j.stop = nil
	j.updated = time.Now()
}

// Stop asks the crawl to halt and reports whether the job was still
// processing. A job still waiting to start records the request and never
// crawls.
func (j *Job) Stop() bool {
	j.mu.Lock()
	if j.status != models.StatusProcessing {
		j.mu.Unlock()
		return false
	}
	j.pending = true
	stop := j.stop
	j.mu.Unlock()
	if stop != nil {
		stop()
	}
	return true
}

// StopRequested reports whether Stop was called while the job was processing.
func (j *Job) StopRequested() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.pending
}

// Status returns the current status.
func (j *Job) Status() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status
}

// Done reports whether the job reached a terminal state.
func (j *Job) Done() bool {
	return j.Status() != models.StatusProcessing
}

// Result returns the live or final result, nil before the crawl started.
func (j *Job) Result() *models.SessionResult {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.result
}

// Snapshot builds the API view of the job.
func (j *Job) Snapshot() models.SessionStatusResponse {
	j.mu.RLock()
	defer j.mu.RUnlock()
	resp := models.SessionStatusResponse{ID: j.ID, Status: j.status, Error: j.err}
	if j.result != nil {
		resp.Report = j.result.Report()
	}
	return resp
}

func (j *Job) finishedBefore(cutoff time.Time) bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status != models.StatusProcessing && j.updated.Before(cutoff)
}

// Store is a bounded in-memory job table. Finished jobs older than the TTL
// are evicted by a background goroutine.
type Store struct {
	mu         sync.RWMutex
	jobs       map[string]*Job
	maxEntries int
	ttl        time.Duration

	done chan struct{}
	once sync.Once
}

// New creates a Store holding at most maxEntries jobs.
func New(maxEntries int, ttl time.Duration) *Store {
	s := &Store{
		jobs:       make(map[string]*Job),
		maxEntries: maxEntries,
		ttl:        ttl,
		done:       make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

// Put adds job. At capacity the oldest finished job is evicted; if every
// job is still running, Put refuses and returns false.
func (s *Store) Put(job *Job) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxEntries > 0 && len(s.jobs) >= s.maxEntries {
		var oldest *Job
		for _, j := range s.jobs {
			if !j.Done() {
				continue
			}
			if oldest == nil || j.CreatedAt.Before(oldest.CreatedAt) {
				oldest = j
			}
		}
		if oldest == nil {
			return false
		}
		delete(s.jobs, oldest.ID)
	}
	s.jobs[job.ID] = job
	return true
}

// Get returns the job with id.
func (s *Store) Get(id string) (*Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	return j, ok
}

// Len returns the number of stored jobs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// Active returns the number of jobs still processing.
func (s *Store) Active() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, j := range s.jobs {
		if !j.Done() {
			n++
		}
	}
	return n
}

// Evict removes finished jobs last updated before cutoff.
func (s *Store) Evict(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, j := range s.jobs {
		if j.finishedBefore(cutoff) {
			delete(s.jobs, id)
			n++
		}
	}
	return n
}

// Close stops the cleanup goroutine.
func (s *Store) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.Evict(time.Now().Add(-s.ttl))
		}
	}
}
