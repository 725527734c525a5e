// Package crawler drives a breadth-first crawl of one site, running the
// page-check battery on every visited page.
package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/use-agent/sitecheck/browser"
	"github.com/use-agent/sitecheck/checks"
	"github.com/use-agent/sitecheck/discovery"
	"github.com/use-agent/sitecheck/metrics"
	"github.com/use-agent/sitecheck/models"
	"github.com/use-agent/sitecheck/prober"
	"github.com/use-agent/sitecheck/urlutil"
)

// NamePageLoad is the record every page starts with.
const NamePageLoad = "page_load"

// Options configures a Scheduler.
type Options struct {
	PageLoadTimeout time.Duration

	// ScreenshotDir, when set, receives one PNG per loaded page.
	ScreenshotDir string

	// OnPage is called after each page is added to the result.
	OnPage func(*models.PageResult)

	Metrics *metrics.Metrics
}

// Scheduler owns the browser driver for the lifetime of one session. Run
// must be called exactly once.
type Scheduler struct {
	session *models.Session
	driver  browser.Driver
	prober  prober.Prober
	battery []checks.Check
	matcher urlutil.Matcher
	opts    Options
	result  *models.SessionResult

	stopped atomic.Bool
}

// New returns a Scheduler for session. The scheduler takes ownership of
// driver; Run closes it on return.
func New(session *models.Session, driver browser.Driver, p prober.Prober, battery []checks.Check, opts Options) *Scheduler {
	if opts.PageLoadTimeout <= 0 {
		opts.PageLoadTimeout = 20 * time.Second
	}
	return &Scheduler{
		session: session,
		driver:  driver,
		prober:  opts.Metrics.InstrumentProber(p),
		battery: battery,
		matcher: urlutil.NewMatcher(session.BaseURL),
		opts:    opts,
		result:  models.NewSessionResult(session),
	}
}

// Result returns the live result. It may be read while Run is in progress.
func (s *Scheduler) Result() *models.SessionResult {
	return s.result
}

// Stop halts scheduling. The page being checked still completes.
func (s *Scheduler) Stop() {
	s.stopped.Store(true)
}

// Run crawls from the session's base URL until the frontier is empty, the
// page cap is reached, Stop is called or ctx is done. It always returns a
// finished result.
func (s *Scheduler) Run(ctx context.Context) *models.SessionResult {
	defer func() {
		if err := s.driver.Close(); err != nil {
			slog.Warn("browser close failed", "session", s.session.ID, "error", err)
		}
	}()

	res := s.result
	frontier := NewFrontier()
	frontier.Push(s.session.BaseURL, 0)
	visited := make(map[string]struct{})

	slog.Info("crawl started",
		"session", s.session.ID,
		"url", s.session.BaseURL,
		"depth", s.session.DepthLimit,
		"maxPages", s.session.MaxPages,
	)

	reason := models.StopCompleted
	for {
		if s.stopped.Load() {
			reason = models.StopStopped
			break
		}
		if ctx.Err() != nil {
			reason = models.StopCancelled
			break
		}
		if frontier.Len() == 0 {
			break
		}
		if len(visited) >= s.session.MaxPages {
			reason = models.StopMaxPages
			break
		}

		entry, _ := frontier.Pop()
		key := urlutil.CanonicalKey(entry.URL)
		if _, ok := visited[key]; ok {
			continue
		}
		visited[key] = struct{}{}

		page, markup, loaded := s.visit(ctx, entry, len(visited))
		res.Add(page)
		s.opts.Metrics.ObservePage(page, loaded)
		if s.opts.OnPage != nil {
			s.opts.OnPage(page)
		}

		if loaded && entry.Depth < s.session.DepthLimit {
			for _, link := range discovery.Discover(markup, entry.URL, s.matcher) {
				if _, ok := visited[urlutil.CanonicalKey(link)]; ok {
					continue
				}
				frontier.Push(link, entry.Depth+1)
			}
		}
	}

	res.Finish(reason)
	slog.Info("crawl finished",
		"session", s.session.ID,
		"reason", reason,
		"pages", res.TotalPages(),
		"passed", res.TotalPassed(),
		"failed", res.TotalFailed(),
	)
	return res
}

// visit loads one page and runs the battery on it. A load failure yields a
// single failed page_load record and no further checks.
func (s *Scheduler) visit(ctx context.Context, entry models.FrontierEntry, seq int) (*models.PageResult, string, bool) {
	page := models.NewPageResult(entry.URL, entry.Depth)
	log := slog.With("url", entry.URL, "depth", entry.Depth)

	start := time.Now()
	markup, err := s.driver.Load(ctx, entry.URL, s.opts.PageLoadTimeout)
	if err != nil {
		log.Warn("page load failed", "error", err)
		page.Add(NamePageLoad, false, fmt.Sprintf("Failed to load page: %v", err))
		return page, "", false
	}
	page.Title = discovery.Title(markup)
	page.Add(NamePageLoad, true, fmt.Sprintf("Loaded in %s", time.Since(start).Round(time.Millisecond)))

	checks.RunAll(ctx, s.battery, &checks.Page{
		URL:     entry.URL,
		Markup:  markup,
		Driver:  s.driver,
		Prober:  s.prober,
		Matcher: s.matcher,
	}, page)

	if s.opts.ScreenshotDir != "" {
		path, err := s.screenshot(ctx, entry.URL, seq)
		if err != nil {
			log.Warn("screenshot failed", "error", err)
		} else {
			page.Screenshot = path
		}
	}

	log.Info("page checked", "passed", page.PassedCount(), "failed", page.FailedCount())
	return page, markup, true
}

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// screenshot writes the current viewport to ScreenshotDir/<seq>_<slug>.png.
func (s *Scheduler) screenshot(ctx context.Context, pageURL string, seq int) (string, error) {
	png, err := s.driver.Screenshot(ctx)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.opts.ScreenshotDir, 0o755); err != nil {
		return "", err
	}

	slug := strings.TrimPrefix(strings.TrimPrefix(pageURL, "https://"), "http://")
	slug = strings.Trim(unsafeFileChars.ReplaceAllString(slug, "_"), "_")
	if len(slug) > 80 {
		slug = slug[:80]
	}
	path := filepath.Join(s.opts.ScreenshotDir, fmt.Sprintf("%03d_%s.png", seq, slug))
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
