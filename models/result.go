package models

import (
	"sync"
	"time"
)

// CheckRecord is one named pass/fail outcome on a page.
type CheckRecord struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Message string `json:"message"`
}

// PageResult holds the check records of one visited page. Records are
// append-only and kept in execution order.
type PageResult struct {
	URL        string
	Title      string
	Depth      int
	Screenshot string
	checks     []CheckRecord
}

// NewPageResult creates an empty PageResult for url.
func NewPageResult(url string, depth int) *PageResult {
	return &PageResult{URL: url, Depth: depth}
}

// Add appends a check record.
func (p *PageResult) Add(name string, passed bool, message string) {
	p.checks = append(p.checks, CheckRecord{Name: name, Passed: passed, Message: message})
}

// Append appends already built records.
func (p *PageResult) Append(records ...CheckRecord) {
	p.checks = append(p.checks, records...)
}

// Checks returns a copy of the records in execution order.
func (p *PageResult) Checks() []CheckRecord {
	out := make([]CheckRecord, len(p.checks))
	copy(out, p.checks)
	return out
}

// Check returns the first record named name.
func (p *PageResult) Check(name string) (CheckRecord, bool) {
	for _, c := range p.checks {
		if c.Name == name {
			return c, true
		}
	}
	return CheckRecord{}, false
}

// Report returns the serialized form of p.
func (p *PageResult) Report() PageReport {
	return PageReport{
		URL:        p.URL,
		Title:      p.Title,
		Depth:      p.Depth,
		Screenshot: p.Screenshot,
		Passed:     p.PassedCount(),
		Failed:     p.FailedCount(),
		Checks:     p.Checks(),
	}
}

// PassedCount is the number of passing records.
func (p *PageResult) PassedCount() int {
	n := 0
	for _, c := range p.checks {
		if c.Passed {
			n++
		}
	}
	return n
}

// FailedCount is the number of failing records.
func (p *PageResult) FailedCount() int {
	return len(p.checks) - p.PassedCount()
}

// SessionResult accumulates PageResults keyed by URL. Totals are always
// computed from the stored pages. It is safe for concurrent use.
type SessionResult struct {
	Session *Session

	mu         sync.RWMutex
	pages      map[string]*PageResult
	order      []string
	finishedAt time.Time
	stopReason string
}

// NewSessionResult creates an empty result for session.
func NewSessionResult(session *Session) *SessionResult {
	return &SessionResult{
		Session: session,
		pages:   make(map[string]*PageResult),
	}
}

// Add records a finished page. A second result for the same URL is ignored.
func (r *SessionResult) Add(p *PageResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pages[p.URL]; ok {
		return
	}
	r.pages[p.URL] = p
	r.order = append(r.order, p.URL)
}

// Page returns the result for url.
func (r *SessionResult) Page(url string) (*PageResult, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pages[url]
	return p, ok
}

// Pages returns all page results in visit order.
func (r *SessionResult) Pages() []*PageResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*PageResult, 0, len(r.order))
	for _, u := range r.order {
		out = append(out, r.pages[u])
	}
	return out
}

// TotalPages is the number of visited pages.
func (r *SessionResult) TotalPages() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pages)
}

// TotalPassed sums passing records across all pages.
func (r *SessionResult) TotalPassed() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, p := range r.pages {
		n += p.PassedCount()
	}
	return n
}

// TotalFailed sums failing records across all pages.
func (r *SessionResult) TotalFailed() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, p := range r.pages {
		n += p.FailedCount()
	}
	return n
}

// Finish marks the result final. Only the first call has an effect.
func (r *SessionResult) Finish(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.finishedAt.IsZero() {
		return
	}
	r.finishedAt = time.Now().UTC()
	r.stopReason = reason
}

// Finished reports whether Finish has been called.
func (r *SessionResult) Finished() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return !r.finishedAt.IsZero()
}

// Report builds a point-in-time snapshot for renderers and API clients.
func (r *SessionResult) Report() *SessionReport {
	pages := r.Pages()

	r.mu.RLock()
	finishedAt := r.finishedAt
	reason := r.stopReason
	r.mu.RUnlock()

	rep := &SessionReport{
		Session:    *r.Session,
		StopReason: reason,
		Pages:      make([]PageReport, 0, len(pages)),
	}
	if !finishedAt.IsZero() {
		rep.FinishedAt = &finishedAt
	}
	for _, p := range pages {
		pr := p.Report()
		rep.TotalPassed += pr.Passed
		rep.TotalFailed += pr.Failed
		rep.Pages = append(rep.Pages, pr)
	}
	rep.TotalPages = len(rep.Pages)
	return rep
}
