package checks

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/use-agent/sitecheck/browser"
	"github.com/use-agent/sitecheck/models"
	"github.com/use-agent/sitecheck/urlutil"
)

// ClickPolicy reports whether an element with the given visible text may be
// clicked.
type ClickPolicy func(text string) bool

// BlacklistPolicy rejects any text matching one of patterns,
// case-insensitively. Empty text is eligible.
func BlacklistPolicy(patterns []string) (ClickPolicy, error) {
	res := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, models.NewSiteError(models.ErrCodeInvalidConfig,
				fmt.Sprintf("invalid safe-click pattern %q", p), err)
		}
		res = append(res, re)
	}
	return func(text string) bool {
		for _, re := range res {
			if re.MatchString(text) {
				return false
			}
		}
		return true
	}, nil
}

// MustBlacklistPolicy is BlacklistPolicy for patterns known to compile.
func MustBlacklistPolicy(patterns []string) ClickPolicy {
	p, err := BlacklistPolicy(patterns)
	if err != nil {
		panic(err)
	}
	return p
}

// SafeClick clicks up to MaxClicks eligible buttons, restoring the page
// after each click that navigated away. Elements are located again before
// every attempt so a mutated DOM never leaves the loop holding old handles.
type SafeClick struct {
	Selector      string
	Policy        ClickPolicy
	MaxClicks     int
	Settle        time.Duration
	ActionTimeout time.Duration
	LoadTimeout   time.Duration
}

func (c *SafeClick) Name() string { return NameSafeClick }

func (c *SafeClick) Run(ctx context.Context, p *Page) ([]models.CheckRecord, error) {
	d := p.Driver
	var recs []models.CheckRecord
	attempted, clicked, skipped := 0, 0, 0
	considered := make(map[string]bool)

	skip := func(msg string) {
		recs = append(recs, pass(fmt.Sprintf("button_skip_%d", skipped), msg))
		skipped++
	}

	for attempted < c.MaxClicks && ctx.Err() == nil {
		els, err := d.FindElements(ctx, c.Selector)
		if err != nil {
			if models.IsStale(err) {
				return nil, err
			}
			slog.Debug("button lookup failed", "url", p.URL, "error", err)
			break
		}

		var target browser.Element
		var text string
		seen := make(map[string]int)
		for i, el := range els {
			t, err := visibleText(el)
			if err != nil && models.IsStale(err) {
				return nil, err
			}
			key := candidateKey(i, t, err, seen)
			if considered[key] {
				continue
			}
			considered[key] = true
			switch {
			case err != nil:
				skip(fmt.Sprintf("Skipped unreadable button: %v", err))
			case c.Policy != nil && !c.Policy(t):
				skip(fmt.Sprintf("Skipped unsafe button: %q", t))
			default:
				target, text = el, t
			}
			if target != nil {
				break
			}
		}
		if target == nil {
			break
		}

		n := attempted
		attempted++
		name := fmt.Sprintf("button_click_%d", n)
		clickCtx, cancel := actionCtx(ctx, c.ActionTimeout)
		err = d.Click(clickCtx, target)
		cancel()
		if err != nil {
			if models.IsStale(err) {
				return nil, err
			}
			recs = append(recs, fail(name, fmt.Sprintf("Could not click %q: %v", text, err)))
			continue
		}
		sleepCtx(ctx, c.Settle)
		recs = append(recs, pass(name, fmt.Sprintf("Clicked button: %q", text)))
		clicked++

		if err := c.restore(ctx, d, p.URL); err != nil {
			recs = append(recs, fail(fmt.Sprintf("button_restore_%d", n),
				fmt.Sprintf("Could not return to %s after click: %v", p.URL, err)))
			break
		}
	}

	if clicked == 0 {
		recs = append(recs, pass(NameButtonClicks, "No safe clickable buttons found or none clicked"))
	}
	return recs, nil
}

// candidateKey identifies a button across lookups by its text and its
// occurrence among buttons with the same text, so buttons inserted or
// removed by a click do not shift which ones were already considered.
// Unreadable buttons fall back to their position. Two buttons with equal
// text swapping places are still indistinguishable.
func candidateKey(pos int, text string, readErr error, seen map[string]int) string {
	if readErr != nil {
		return "\x00" + strconv.Itoa(pos)
	}
	n := seen[text]
	seen[text] = n + 1
	return text + "\x00" + strconv.Itoa(n)
}

// restore returns the driver to pageURL if a click navigated away: first via
// history, then by reloading.
func (c *SafeClick) restore(ctx context.Context, d browser.Driver, pageURL string) error {
	if onPage(d.CurrentURL(ctx), pageURL) {
		return nil
	}
	backCtx, cancel := actionCtx(ctx, c.LoadTimeout)
	err := d.NavigateBack(backCtx)
	cancel()
	if err != nil {
		slog.Debug("navigate back failed, reloading", "url", pageURL, "error", err)
	}
	if onPage(d.CurrentURL(ctx), pageURL) {
		return nil
	}
	_, err = d.Load(ctx, pageURL, c.LoadTimeout)
	return err
}

// onPage treats an unreadable location as unchanged.
func onPage(current, pageURL string) bool {
	if current == "" {
		return true
	}
	return urlutil.CanonicalKey(current) == urlutil.CanonicalKey(pageURL)
}

func visibleText(el browser.Element) (string, error) {
	text, err := el.Text()
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text != "" {
		return text, nil
	}
	label, err := el.Attribute("aria-label")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(label), nil
}
