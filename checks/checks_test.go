package checks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/sitecheck/browser"
	"github.com/use-agent/sitecheck/browser/browsertest"
	"github.com/use-agent/sitecheck/models"
	"github.com/use-agent/sitecheck/prober"
	"github.com/use-agent/sitecheck/urlutil"
)

const base = "http://site.test/"

func okProber() prober.Prober {
	return prober.Func(func(context.Context, string, time.Duration) (int, error) { return 200, nil })
}

func loadPage(t *testing.T, d *browsertest.Driver, pr prober.Prober) *Page {
	t.Helper()
	markup, err := d.Load(context.Background(), base, time.Second)
	require.NoError(t, err)
	return &Page{URL: base, Markup: markup, Driver: d, Prober: pr, Matcher: urlutil.NewMatcher(base)}
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.ClickSettle = 0
	opts.Retry = StaleRetry(3, time.Millisecond)
	return opts
}

func names(recs []models.CheckRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Name
	}
	return out
}

func TestReachability(t *testing.T) {
	d := browsertest.New(map[string]string{base: "<html></html>"})

	p := loadPage(t, d, prober.Func(func(context.Context, string, time.Duration) (int, error) { return 503, nil }))
	recs, err := (&Reachability{Timeout: time.Second}).Run(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].Passed, "any status code counts as reachable")
	assert.Equal(t, "HTTP 503", recs[0].Message)

	p.Prober = prober.Func(func(context.Context, string, time.Duration) (int, error) {
		return 0, errors.New("connection refused")
	})
	recs, err = (&Reachability{Timeout: time.Second}).Run(context.Background(), p)
	require.NoError(t, err)
	assert.False(t, recs[0].Passed)
	assert.Contains(t, recs[0].Message, "connection refused")
}

func TestConsoleErrors(t *testing.T) {
	d := browsertest.New(map[string]string{base: "<html></html>"})
	p := loadPage(t, d, okProber())

	recs, err := (&ConsoleErrors{}).Run(context.Background(), p)
	require.NoError(t, err)
	assert.True(t, recs[0].Passed)

	d.Logs = map[string][]browser.LogEntry{base: {
		{Level: "WARNING", Message: "deprecated"},
		{Level: "SEVERE", Message: "Uncaught TypeError"},
		{Level: "error", Message: "failed to fetch"},
	}}
	recs, err = (&ConsoleErrors{}).Run(context.Background(), p)
	require.NoError(t, err)
	assert.False(t, recs[0].Passed)
	assert.Contains(t, recs[0].Message, "2 console error(s)")
	assert.Contains(t, recs[0].Message, "Uncaught TypeError")
	assert.NotContains(t, recs[0].Message, "deprecated")
}

func TestBrokenLinks_ProbesAtMostCap(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("<html><body>")
	for i := 0; i < 1000; i++ {
		fmt.Fprintf(&sb, `<a href="/p%04d">p</a>`, i)
	}
	sb.WriteString("</body></html>")

	d := browsertest.New(map[string]string{base: sb.String()})
	var probes, inFlight, peak atomic.Int32
	pr := prober.Func(func(context.Context, string, time.Duration) (int, error) {
		probes.Add(1)
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return 200, nil
	})
	p := loadPage(t, d, pr)

	recs, err := (&BrokenLinks{MaxLinks: 20, Concurrency: 5, Timeout: time.Second}).Run(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, int32(20), probes.Load())
	assert.LessOrEqual(t, peak.Load(), int32(5))
	assert.True(t, recs[0].Passed)
	assert.Contains(t, recs[0].Message, "checked 20 of 1000")
}

func TestBrokenLinks_ReportsFailures(t *testing.T) {
	markup := `<a href="/ok">ok</a><a href="/missing">m</a><a href="/down">d</a><a href="http://other.test/x">ext</a>`
	d := browsertest.New(map[string]string{base: markup})
	var externalProbed atomic.Bool
	pr := prober.Func(func(_ context.Context, u string, _ time.Duration) (int, error) {
		switch {
		case strings.Contains(u, "other.test"):
			externalProbed.Store(true)
			return 200, nil
		case strings.HasSuffix(u, "/missing"):
			return 404, nil
		case strings.HasSuffix(u, "/down"):
			return 0, models.NewSiteError(models.ErrCodeTransport, "dial failed", nil)
		}
		return 200, nil
	})
	p := loadPage(t, d, pr)

	recs, err := (&BrokenLinks{MaxLinks: 20, Concurrency: 2, Timeout: time.Second}).Run(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.False(t, recs[0].Passed)
	assert.Contains(t, recs[0].Message, "2 broken link(s) of 3 checked")
	assert.Contains(t, recs[0].Message, "http://site.test/missing (404)")
	assert.Contains(t, recs[0].Message, "http://site.test/down")
	assert.False(t, externalProbed.Load())
}

func TestBrokenLinks_NoLinks(t *testing.T) {
	d := browsertest.New(map[string]string{base: `<a href="mailto:x@y.z">mail</a>`})
	p := loadPage(t, d, okProber())
	recs, err := (&BrokenLinks{MaxLinks: 20, Concurrency: 5}).Run(context.Background(), p)
	require.NoError(t, err)
	assert.True(t, recs[0].Passed)
	assert.Equal(t, "No broken links found (checked 0 of 0)", recs[0].Message)
}

func TestForms(t *testing.T) {
	markup := `<form><input name="q" type="search"><input name="mail" type="email">
		<input name="tok" type="hidden"><textarea name="msg"></textarea></form><form></form>`
	d := browsertest.New(map[string]string{base: markup})
	p := loadPage(t, d, okProber())

	recs, err := (&Forms{Preset: FormPreset{"text": "hello", "email": "a@b.c"}}).Run(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, NameForms, recs[0].Name)
	assert.True(t, recs[0].Passed)
	assert.Equal(t, "2 form(s) found", recs[0].Message)
	assert.Empty(t, d.Filled, "detection alone never types")

	recs, err = (&Forms{Preset: FormPreset{"text": "hello", "email": "a@b.c"}, Fill: true}).Run(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, []string{NameForms, NameFormFill}, names(recs))
	assert.True(t, recs[1].Passed)
	assert.Equal(t, map[string]string{"q": "hello", "mail": "a@b.c", "msg": "hello"}, d.Filled)
}

func TestForms_NoForms(t *testing.T) {
	d := browsertest.New(map[string]string{base: `<p>plain</p>`})
	p := loadPage(t, d, okProber())
	recs, err := (&Forms{}).Run(context.Background(), p)
	require.NoError(t, err)
	assert.True(t, recs[0].Passed)
	assert.Equal(t, "No forms on page", recs[0].Message)
}

func TestBlacklistPolicy(t *testing.T) {
	policy, err := BlacklistPolicy([]string{"logout", "delete"})
	require.NoError(t, err)
	assert.False(t, policy("Logout Now"))
	assert.False(t, policy("DELETE account"))
	assert.True(t, policy("Show more"))
	assert.True(t, policy(""))

	_, err = BlacklistPolicy([]string{"("})
	assert.Equal(t, models.ErrCodeInvalidConfig, models.CodeOf(err))
}

func TestSafeClick_NeverClicksBlacklisted(t *testing.T) {
	markup := `<button>Logout Now</button><button>Show more</button><div role="button" aria-label="Expand"></div>`
	d := browsertest.New(map[string]string{base: markup})
	p := loadPage(t, d, okProber())

	sc := &SafeClick{Selector: `button, [role="button"]`, Policy: MustBlacklistPolicy([]string{"logout"}), MaxClicks: 3}
	recs, err := sc.Run(context.Background(), p)
	require.NoError(t, err)

	assert.NotContains(t, d.Clicked, "Logout Now")
	assert.Equal(t, 2, d.ClickCount())
	assert.Equal(t, []string{"button_skip_0", "button_click_0", "button_click_1"}, names(recs))
	for _, r := range recs {
		assert.True(t, r.Passed, r.Name)
	}
}

func TestSafeClick_CapsAttempts(t *testing.T) {
	markup := strings.Repeat(`<button>More</button>`, 10)
	d := browsertest.New(map[string]string{base: markup})
	p := loadPage(t, d, okProber())

	sc := &SafeClick{Selector: "button", Policy: MustBlacklistPolicy(nil), MaxClicks: 3}
	recs, err := sc.Run(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 3, d.ClickAttempts)
	assert.Len(t, recs, 3)
}

func TestSafeClick_RestoresAfterNavigation(t *testing.T) {
	d := browsertest.New(map[string]string{
		base:                    `<button data-navigate="http://site.test/next">Next</button><button>Stay</button>`,
		"http://site.test/next": `<p>next</p>`,
	})
	p := loadPage(t, d, okProber())

	sc := &SafeClick{Selector: "button", Policy: MustBlacklistPolicy(nil), MaxClicks: 3}
	recs, err := sc.Run(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, []string{"Next", "Stay"}, d.Clicked)
	assert.Equal(t, base, d.CurrentURL(context.Background()))
	assert.Equal(t, []string{"button_click_0", "button_click_1"}, names(recs))
}

func TestSafeClick_NoButtons(t *testing.T) {
	d := browsertest.New(map[string]string{base: `<p>nothing</p>`})
	p := loadPage(t, d, okProber())
	recs, err := (&SafeClick{Selector: "button", MaxClicks: 3}).Run(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, NameButtonClicks, recs[0].Name)
	assert.True(t, recs[0].Passed)
}

func TestSafeClick_ClickFailureIsRecorded(t *testing.T) {
	d := browsertest.New(map[string]string{base: `<button>One</button><button>Two</button>`})
	d.ClickErrs = []error{models.NewSiteError(models.ErrCodeBrowserCrash, "click failed", nil)}
	p := loadPage(t, d, okProber())

	recs, err := (&SafeClick{Selector: "button", MaxClicks: 3}).Run(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.False(t, recs[0].Passed)
	assert.True(t, recs[1].Passed)
}

func TestSafeClick_StuckClickTimesOut(t *testing.T) {
	d := browsertest.New(map[string]string{base: `<button disabled>Prev</button><button>Next</button>`})
	d.BlockClicks = true
	p := loadPage(t, d, okProber())

	sc := &SafeClick{Selector: "button", MaxClicks: 3, ActionTimeout: 20 * time.Millisecond}
	done := make(chan struct{})
	var recs []models.CheckRecord
	var err error
	go func() {
		defer close(done)
		recs, err = sc.Run(context.Background(), p)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("safe click did not return while clicks were stuck")
	}

	require.NoError(t, err)
	assert.Equal(t, 2, d.ClickAttempts)
	assert.Equal(t, []string{"button_click_0", "button_click_1", NameButtonClicks}, names(recs))
	assert.False(t, recs[0].Passed)
	assert.Contains(t, recs[0].Message, "Prev")
	assert.Contains(t, recs[0].Message, models.ErrCodeTimeout)
}

func TestSafeClick_InsertedButtonsDoNotShiftCandidates(t *testing.T) {
	d := browsertest.New(map[string]string{
		base: `<button>Alpha</button><button>Show more</button><button>Beta</button>`,
	})
	d.Mutations = map[string]string{
		"Show more": `<button>Alpha</button><button>Extra</button><button>Show more</button><button>Beta</button>`,
	}
	p := loadPage(t, d, okProber())

	sc := &SafeClick{Selector: "button", Policy: MustBlacklistPolicy(nil), MaxClicks: 3}
	recs, err := sc.Run(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha", "Show more", "Extra"}, d.Clicked)
	assert.Equal(t, []string{"button_click_0", "button_click_1", "button_click_2"}, names(recs))
}

func TestBattery_BoundsActions(t *testing.T) {
	opts := testOptions()
	opts.ActionTimeout = 20 * time.Millisecond
	for _, c := range Battery(opts) {
		r, ok := c.(*retrying)
		if !ok {
			continue
		}
		switch inner := r.Check.(type) {
		case *SafeClick:
			assert.Equal(t, opts.ActionTimeout, inner.ActionTimeout)
		case *Forms:
			assert.Equal(t, opts.ActionTimeout, inner.ActionTimeout)
		}
	}
}

func TestWithRetry_StaleTwiceThenPass(t *testing.T) {
	d := browsertest.New(map[string]string{base: `<button>Go</button>`})
	d.ClickErrs = []error{browsertest.ErrStale, browsertest.ErrStale}
	p := loadPage(t, d, okProber())

	c := WithRetry(&SafeClick{Selector: "button", MaxClicks: 3}, StaleRetry(3, time.Millisecond))
	recs, err := c.Run(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 3, d.ClickAttempts)
	require.Len(t, recs, 1)
	assert.Equal(t, "button_click_0", recs[0].Name)
	assert.True(t, recs[0].Passed)
}

func TestWithRetry_StaleExhausted(t *testing.T) {
	d := browsertest.New(map[string]string{base: `<form></form>`})
	d.FindErrs = []error{browsertest.ErrStale, browsertest.ErrStale, browsertest.ErrStale}
	p := loadPage(t, d, okProber())

	c := WithRetry(&Forms{}, StaleRetry(3, time.Millisecond))
	recs, err := c.Run(context.Background(), p)
	assert.Nil(t, recs)
	assert.True(t, models.IsStale(err))

	res := models.NewPageResult(base, 0)
	d.FindErrs = []error{browsertest.ErrStale, browsertest.ErrStale, browsertest.ErrStale}
	RunAll(context.Background(), []Check{c}, p, res)
	rec, ok := res.Check(NameForms)
	require.True(t, ok)
	assert.False(t, rec.Passed)
}

type panicky struct{}

func (panicky) Name() string { return "panicky" }
func (panicky) Run(context.Context, *Page) ([]models.CheckRecord, error) {
	panic("boom")
}

func TestRunAll_OrderAndIsolation(t *testing.T) {
	d := browsertest.New(map[string]string{base: `<form></form><a href="/a">a</a>`})
	p := loadPage(t, d, okProber())

	battery := append([]Check{panicky{}}, Battery(testOptions())...)
	res := models.NewPageResult(base, 0)
	RunAll(context.Background(), battery, p, res)

	assert.Equal(t, []string{"panicky", NameHTTPStatus, NameConsoleErrors, NameBrokenLinks, NameForms, NameButtonClicks},
		names(res.Checks()))
	rec, _ := res.Check("panicky")
	assert.False(t, rec.Passed)
	assert.Equal(t, 5, res.PassedCount())
}
