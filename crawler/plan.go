package crawler

import (
	"time"

	"github.com/use-agent/sitecheck/browser"
	"github.com/use-agent/sitecheck/checks"
	"github.com/use-agent/sitecheck/config"
	"github.com/use-agent/sitecheck/models"
	"github.com/use-agent/sitecheck/prober"
)

// LaunchFunc acquires the browser driver for one session.
type LaunchFunc func() (browser.Driver, error)

// RodLauncher launches a go-rod browser per session.
func RodLauncher(cfg config.BrowserConfig) LaunchFunc {
	return func() (browser.Driver, error) {
		r, err := browser.Launch(cfg)
		if err != nil {
			return nil, err
		}
		return r, nil
	}
}

// Plan is a validated session together with its resolved settings.
type Plan struct {
	Session *models.Session
	Checks  checks.Options
	Crawl   Options
}

// NewPlan applies request overrides on top of cfg. Every error is an
// ErrCodeInvalidConfig SiteError.
func NewPlan(cfg *config.Config, req models.SessionRequest) (*Plan, error) {
	depth := cfg.Crawl.Depth
	if req.CrawlDepth != nil {
		depth = *req.CrawlDepth
	}
	maxPages := cfg.Crawl.MaxPages
	if req.MaxPages > 0 {
		maxPages = req.MaxPages
	}

	session, err := models.NewSession(req.URL, depth, maxPages)
	if err != nil {
		return nil, err
	}

	crawlCfg := cfg.Crawl
	if req.PageLoadTimeout > 0 {
		crawlCfg.PageLoadTimeout = time.Duration(req.PageLoadTimeout) * time.Second
	}
	checksCfg := cfg.Checks
	if len(req.SafeClickBlacklist) > 0 {
		checksCfg.SafeClickBlacklist = req.SafeClickBlacklist
	}
	if len(req.FormInputPreset) > 0 {
		merged := make(map[string]string, len(checksCfg.FormInputPreset)+len(req.FormInputPreset))
		for k, v := range checksCfg.FormInputPreset {
			merged[k] = v
		}
		for k, v := range req.FormInputPreset {
			merged[k] = v
		}
		checksCfg.FormInputPreset = merged
	}
	checksCfg.FillForms = checksCfg.FillForms || req.FillForms

	opts, err := checks.OptionsFromConfig(checksCfg, crawlCfg)
	if err != nil {
		return nil, err
	}

	return &Plan{
		Session: session,
		Checks:  opts,
		Crawl: Options{
			PageLoadTimeout: crawlCfg.PageLoadTimeout,
			ScreenshotDir:   crawlCfg.ScreenshotDir,
		},
	}, nil
}

// Start acquires the driver and returns a scheduler ready to Run. A launch
// failure aborts the session.
func (p *Plan) Start(launch LaunchFunc, pr prober.Prober) (*Scheduler, error) {
	driver, err := launch()
	if err != nil {
		return nil, models.CategorizeError(err, models.ErrCodeBrowserCrash, "failed to acquire browser")
	}
	return New(p.Session, driver, pr, checks.Battery(p.Checks), p.Crawl), nil
}
