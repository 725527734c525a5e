package checks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/use-agent/sitecheck/discovery"
	"github.com/use-agent/sitecheck/models"
)

// BrokenLinks probes the page's in-domain links. At most MaxLinks are
// probed; a link is broken when its status is >= 400 or the probe fails.
type BrokenLinks struct {
	MaxLinks    int
	Concurrency int
	Timeout     time.Duration
}

type linkOutcome struct {
	url    string
	status int
	err    error
}

func (o linkOutcome) broken() bool {
	return o.err != nil || o.status >= 400
}

func (o linkOutcome) String() string {
	if o.err != nil {
		return fmt.Sprintf("%s (error: %v)", o.url, o.err)
	}
	return fmt.Sprintf("%s (%d)", o.url, o.status)
}

func (c *BrokenLinks) Name() string { return NameBrokenLinks }

func (c *BrokenLinks) Run(ctx context.Context, p *Page) ([]models.CheckRecord, error) {
	links := discovery.Discover(p.Markup, p.URL, p.Matcher)
	discovered := len(links)
	if c.MaxLinks > 0 && len(links) > c.MaxLinks {
		links = links[:c.MaxLinks]
	}
	outcomes := make([]linkOutcome, len(links))
	var g errgroup.Group
	if c.Concurrency > 0 {
		g.SetLimit(c.Concurrency)
	}
	for i, link := range links {
		g.Go(func() error {
			status, err := p.Prober.Probe(ctx, link, c.Timeout)
			outcomes[i] = linkOutcome{url: link, status: status, err: err}
			return nil
		})
	}
	_ = g.Wait()

	var broken []linkOutcome
	for _, o := range outcomes {
		if o.broken() {
			broken = append(broken, o)
		}
	}
	if len(broken) == 0 {
		return []models.CheckRecord{pass(NameBrokenLinks,
			fmt.Sprintf("No broken links found (checked %d of %d)", len(links), discovered))}, nil
	}

	sample := make([]string, 0, sampleSize)
	for _, o := range broken {
		if len(sample) == sampleSize {
			break
		}
		sample = append(sample, o.String())
	}
	msg := fmt.Sprintf("%d broken link(s) of %d checked: %s", len(broken), len(links), strings.Join(sample, ", "))
	return []models.CheckRecord{fail(NameBrokenLinks, msg)}, nil
}
