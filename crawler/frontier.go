package crawler

import (
	"github.com/use-agent/sitecheck/models"
	"github.com/use-agent/sitecheck/urlutil"
)

// Frontier is a FIFO queue of URLs awaiting a visit. A URL is enqueued at
// most once per session, keyed by its canonical form.
type Frontier struct {
	queue []models.FrontierEntry
	seen  map[string]struct{}
}

func NewFrontier() *Frontier {
	return &Frontier{seen: make(map[string]struct{})}
}

// Push enqueues url at depth and reports whether it was new.
func (f *Frontier) Push(url string, depth int) bool {
	key := urlutil.CanonicalKey(url)
	if _, ok := f.seen[key]; ok {
		return false
	}
	f.seen[key] = struct{}{}
	f.queue = append(f.queue, models.FrontierEntry{URL: url, Depth: depth})
	return true
}

// Pop removes the oldest entry.
func (f *Frontier) Pop() (models.FrontierEntry, bool) {
	if len(f.queue) == 0 {
		return models.FrontierEntry{}, false
	}
	e := f.queue[0]
	f.queue[0] = models.FrontierEntry{}
	f.queue = f.queue[1:]
	return e, true
}

func (f *Frontier) Len() int { return len(f.queue) }
