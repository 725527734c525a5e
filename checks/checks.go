// Package checks implements the per-page verification battery. Every check
// converts its own failures into failed records; the only error a check
// returns is a hard failure (an element that stayed stale through retries).
package checks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/use-agent/sitecheck/browser"
	"github.com/use-agent/sitecheck/config"
	"github.com/use-agent/sitecheck/models"
	"github.com/use-agent/sitecheck/prober"
	"github.com/use-agent/sitecheck/retry"
	"github.com/use-agent/sitecheck/urlutil"
)

// Record names.
const (
	NameHTTPStatus    = "http_status"
	NameConsoleErrors = "console_errors"
	NameBrokenLinks   = "broken_links"
	NameForms         = "forms_detected"
	NameFormFill      = "form_fill"
	NameSafeClick     = "safe_click"
	NameButtonClicks  = "button_clicks"
)

// defaultActionTimeout bounds a click or fill that rod would otherwise wait
// on forever, e.g. a disabled or covered button.
const defaultActionTimeout = 10 * time.Second

// Page is the currently loaded page a check runs against.
type Page struct {
	URL     string
	Markup  string
	Driver  browser.Driver
	Prober  prober.Prober
	Matcher urlutil.Matcher
}

// Check is one independent probe of a loaded page. Run returns the records
// to append; records from a run that returned an error are discarded.
type Check interface {
	Name() string
	Run(ctx context.Context, p *Page) ([]models.CheckRecord, error)
}

// Options tunes the battery.
type Options struct {
	ReachabilityTimeout time.Duration
	LinkProbeTimeout    time.Duration
	MaxLinksChecked     int
	ProbeConcurrency    int
	MaxClicks           int
	ActionTimeout       time.Duration
	ClickSettle         time.Duration
	ButtonSelector      string
	PageLoadTimeout     time.Duration
	Policy              ClickPolicy
	Preset              FormPreset
	FillForms           bool
	Retry               retry.Policy
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		ReachabilityTimeout: 10 * time.Second,
		LinkProbeTimeout:    8 * time.Second,
		MaxLinksChecked:     20,
		ProbeConcurrency:    5,
		MaxClicks:           3,
		ActionTimeout:       defaultActionTimeout,
		ClickSettle:         time.Second,
		ButtonSelector:      `button, [role="button"]`,
		PageLoadTimeout:     20 * time.Second,
		Policy:              MustBlacklistPolicy(config.DefaultBlacklist),
		Preset:              FormPreset(config.DefaultFormPreset),
		Retry:               StaleRetry(3, time.Second),
	}
}

// OptionsFromConfig builds Options from the checks and crawl configuration.
func OptionsFromConfig(cc config.ChecksConfig, crawl config.CrawlConfig) (Options, error) {
	policy, err := BlacklistPolicy(cc.SafeClickBlacklist)
	if err != nil {
		return Options{}, err
	}
	actionTimeout := cc.ActionTimeout
	if actionTimeout <= 0 {
		actionTimeout = defaultActionTimeout
	}
	return Options{
		ReachabilityTimeout: cc.ReachabilityTimeout,
		LinkProbeTimeout:    cc.LinkProbeTimeout,
		MaxLinksChecked:     cc.MaxLinksChecked,
		ProbeConcurrency:    cc.ProbeConcurrency,
		MaxClicks:           cc.MaxClicks,
		ActionTimeout:       actionTimeout,
		ClickSettle:         cc.ClickSettle,
		ButtonSelector:      cc.ButtonSelector,
		PageLoadTimeout:     crawl.PageLoadTimeout,
		Policy:              policy,
		Preset:              FormPreset(cc.FormInputPreset),
		FillForms:           cc.FillForms,
		Retry:               StaleRetry(cc.StaleAttempts, cc.StaleBackoff),
	}, nil
}

// StaleRetry retries only stale-element failures.
func StaleRetry(attempts int, backoff time.Duration) retry.Policy {
	return retry.Policy{Attempts: attempts, Backoff: backoff, Retryable: models.IsStale}
}

// Battery returns the checks in execution order: reachability, console
// errors, broken links, form detection, safe click probing. DOM-touching
// checks are wrapped in the stale-element retry policy.
func Battery(opts Options) []Check {
	return []Check{
		&Reachability{Timeout: opts.ReachabilityTimeout},
		&ConsoleErrors{},
		&BrokenLinks{
			MaxLinks:    opts.MaxLinksChecked,
			Concurrency: opts.ProbeConcurrency,
			Timeout:     opts.LinkProbeTimeout,
		},
		WithRetry(&Forms{
			Preset:        opts.Preset,
			Fill:          opts.FillForms,
			ActionTimeout: opts.ActionTimeout,
		}, opts.Retry),
		WithRetry(&SafeClick{
			Selector:      opts.ButtonSelector,
			Policy:        opts.Policy,
			MaxClicks:     opts.MaxClicks,
			Settle:        opts.ClickSettle,
			ActionTimeout: opts.ActionTimeout,
			LoadTimeout:   opts.PageLoadTimeout,
		}, opts.Retry),
	}
}

// WithRetry re-runs the whole body of c under policy.
func WithRetry(c Check, policy retry.Policy) Check {
	return &retrying{Check: c, policy: policy}
}

type retrying struct {
	Check
	policy retry.Policy
}

func (r *retrying) Run(ctx context.Context, p *Page) ([]models.CheckRecord, error) {
	var recs []models.CheckRecord
	err := retry.Do(ctx, r.policy, func(ctx context.Context) error {
		var runErr error
		recs, runErr = r.Check.Run(ctx, p)
		return runErr
	})
	if err != nil {
		return nil, err
	}
	return recs, nil
}

// RunAll runs checks sequentially and appends their records to res. A check
// that returns an error or panics becomes one failed record under its own
// name; the remaining checks still run.
func RunAll(ctx context.Context, battery []Check, p *Page, res *models.PageResult) {
	for _, c := range battery {
		recs, err := runOne(ctx, c, p)
		if err != nil {
			slog.Warn("check aborted", "check", c.Name(), "url", p.URL, "error", err)
			res.Add(c.Name(), false, fmt.Sprintf("Check aborted: %v", err))
			continue
		}
		res.Append(recs...)
	}
}

func runOne(ctx context.Context, c Check, p *Page) (recs []models.CheckRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			recs = nil
			err = fmt.Errorf("check %s panicked: %v", c.Name(), r)
		}
	}()
	return c.Run(ctx, p)
}

func pass(name, msg string) models.CheckRecord {
	return models.CheckRecord{Name: name, Passed: true, Message: msg}
}

func fail(name, msg string) models.CheckRecord {
	return models.CheckRecord{Name: name, Passed: false, Message: msg}
}

// actionCtx bounds one browser action. A zero timeout leaves ctx as is.
func actionCtx(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

// sleepCtx pauses for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
