package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/use-agent/sitecheck/config"
	"github.com/use-agent/sitecheck/models"
)

// idleTTL is how long an unused identity keeps its bucket.
const idleTTL = time.Hour

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter holds one token bucket per caller identity (API key, else client
// IP). Idle buckets are evicted in the background until Close.
type Limiter struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	buckets map[string]*bucket

	done chan struct{}
	once sync.Once
}

// NewLimiter creates a Limiter from cfg. A non-positive rate disables
// limiting.
func NewLimiter(cfg config.RateLimitConfig) *Limiter {
	l := &Limiter{
		limit:   rate.Limit(cfg.RequestsPerSecond),
		burst:   cfg.Burst,
		buckets: make(map[string]*bucket),
		done:    make(chan struct{}),
	}
	go l.evictLoop()
	return l
}

// Allow consumes a token for identity.
func (l *Limiter) Allow(identity string) bool {
	if l.limit <= 0 {
		return true
	}
	l.mu.Lock()
	b, ok := l.buckets[identity]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[identity] = b
	}
	b.lastSeen = time.Now()
	l.mu.Unlock()
	return b.limiter.Allow()
}

// Handler returns the gin middleware.
func (l *Limiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := c.ClientIP()
		if key := c.GetString(apiKeyContextKey); key != "" {
			identity = "key:" + key
		}
		if !l.Allow(identity) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.ErrorResponse{
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeRateLimited,
					Message: "rate limit exceeded, please slow down",
				},
			})
			return
		}
		c.Next()
	}
}

// Close stops background eviction.
func (l *Limiter) Close() {
	l.once.Do(func() { close(l.done) })
}

func (l *Limiter) evictLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case now := <-ticker.C:
			cutoff := now.Add(-idleTTL)
			l.mu.Lock()
			for id, b := range l.buckets {
				if b.lastSeen.Before(cutoff) {
					delete(l.buckets, id)
				}
			}
			l.mu.Unlock()
		}
	}
}
