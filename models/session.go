package models

import (
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/use-agent/sitecheck/urlutil"
)

// Session identifies one crawl run. It is immutable once created.
type Session struct {
	ID         string    `json:"id"`
	BaseURL    string    `json:"base_url"`
	Domain     string    `json:"domain"`
	Scheme     string    `json:"scheme"`
	StartedAt  time.Time `json:"started_at"`
	DepthLimit int       `json:"depth_limit"`
	MaxPages   int       `json:"max_pages"`
}

// NewSession normalizes rawURL and validates the crawl budget. Any problem
// is reported as an ErrCodeInvalidConfig SiteError before crawling begins.
func NewSession(rawURL string, depthLimit, maxPages int) (*Session, error) {
	if depthLimit < 0 {
		return nil, NewSiteError(ErrCodeInvalidConfig,
			fmt.Sprintf("crawl depth must be >= 0, got %d", depthLimit), nil)
	}
	if maxPages < 1 {
		return nil, NewSiteError(ErrCodeInvalidConfig,
			fmt.Sprintf("max pages must be >= 1, got %d", maxPages), nil)
	}
	if rawURL == "" {
		return nil, NewSiteError(ErrCodeInvalidConfig, "base URL is empty", nil)
	}

	base := urlutil.Normalize(rawURL)
	u, err := url.Parse(base)
	if err != nil {
		return nil, NewSiteError(ErrCodeInvalidConfig, "malformed base URL", err)
	}
	if u.Host == "" {
		return nil, NewSiteError(ErrCodeInvalidConfig,
			fmt.Sprintf("base URL %q has no host", rawURL), nil)
	}

	return &Session{
		ID:         uuid.NewString(),
		BaseURL:    base,
		Domain:     u.Host,
		Scheme:     u.Scheme,
		StartedAt:  time.Now().UTC(),
		DepthLimit: depthLimit,
		MaxPages:   maxPages,
	}, nil
}

// FrontierEntry is a URL awaiting a visit, tagged with its discovery depth.
type FrontierEntry struct {
	URL   string
	Depth int
}

// Reasons a crawl ended.
const (
	StopCompleted = "completed"
	StopMaxPages  = "max_pages"
	StopStopped   = "stopped"
	StopCancelled = "cancelled"
)
