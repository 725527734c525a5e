package prober

import (
	"sync"
	"time"
)

// HostMemory remembers hosts that answered HEAD with 405/501 so later probes
// go straight to GET. Entries expire after the configured TTL and are
// cleaned up periodically.
type HostMemory struct {
	store sync.Map // host (string) -> expiry (time.Time)
	ttl   time.Duration
	done  chan struct{}
	once  sync.Once
}

// NewHostMemory creates a HostMemory with the given TTL and starts a
// background goroutine that prunes expired entries.
func NewHostMemory(ttl time.Duration) *HostMemory {
	hm := &HostMemory{
		ttl:  ttl,
		done: make(chan struct{}),
	}
	go hm.cleanupLoop()
	return hm
}

// HeadRejected reports whether host is known to reject HEAD.
func (hm *HostMemory) HeadRejected(host string) bool {
	val, ok := hm.store.Load(host)
	if !ok {
		return false
	}
	if time.Now().After(val.(time.Time)) {
		hm.store.Delete(host)
		return false
	}
	return true
}

// RejectHead records that host does not support HEAD.
func (hm *HostMemory) RejectHead(host string) {
	hm.store.Store(host, time.Now().Add(hm.ttl))
}

// Stop terminates the background cleanup goroutine.
func (hm *HostMemory) Stop() {
	hm.once.Do(func() { close(hm.done) })
}

func (hm *HostMemory) cleanupLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-hm.done:
			return
		case <-ticker.C:
			now := time.Now()
			hm.store.Range(func(key, value any) bool {
				if now.After(value.(time.Time)) {
					hm.store.Delete(key)
				}
				return true
			})
		}
	}
}
