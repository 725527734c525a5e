package checks

import (
	"context"
	"fmt"
	"time"

	"github.com/use-agent/sitecheck/models"
)

// Reachability issues an independent HTTP request for the page URL. Any
// obtained status code passes; only a transport failure fails.
type Reachability struct {
	Timeout time.Duration
}

func (c *Reachability) Name() string { return NameHTTPStatus }

func (c *Reachability) Run(ctx context.Context, p *Page) ([]models.CheckRecord, error) {
	code, err := p.Prober.Probe(ctx, p.URL, c.Timeout)
	if err != nil {
		return []models.CheckRecord{fail(NameHTTPStatus, fmt.Sprintf("Request failed: %v", err))}, nil
	}
	return []models.CheckRecord{pass(NameHTTPStatus, fmt.Sprintf("HTTP %d", code))}, nil
}
