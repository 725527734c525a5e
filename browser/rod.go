package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/sitecheck/config"
	"github.com/use-agent/sitecheck/models"
	"github.com/ysmood/gson"
)

// maxConsoleEntries bounds the per-page console buffer.
const maxConsoleEntries = 500

// actionTimeout bounds element operations whose caller set no deadline.
// rod waits for a clicked element to become enabled and uncovered, which
// never happens for a disabled button.
const actionTimeout = 10 * time.Second

// bounded returns ctx unchanged if it already has a deadline.
func bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, actionTimeout)
}

// Rod is a Driver backed by one page of a dedicated Chromium process.
// It is not safe for concurrent navigation; one scheduler owns it.
type Rod struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page

	mu   sync.Mutex
	logs []LogEntry

	closeOnce sync.Once
}

// Launch starts a browser process, opens a single page and wires console
// capture. The caller must Close the returned driver on every exit path.
func Launch(cfg config.BrowserConfig) (*Rod, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox)

	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}
	if cfg.Proxy != "" {
		l = l.Proxy(cfg.Proxy)
	}

	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-gpu"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("no-first-run"))
	if cfg.WindowWidth > 0 && cfg.WindowHeight > 0 {
		l.Set(flags.Flag("window-size"), fmt.Sprintf("%d,%d", cfg.WindowWidth, cfg.WindowHeight))
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewSiteError(models.ErrCodeBrowserCrash, "failed to launch browser", err)
	}
	slog.Info("browser launched", "controlURL", controlURL)

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, models.NewSiteError(models.ErrCodeBrowserCrash, "failed to connect to browser", err)
	}

	var page *rod.Page
	if cfg.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		_ = b.Close()
		l.Kill()
		return nil, models.NewSiteError(models.ErrCodeBrowserCrash, "failed to open page", err)
	}

	r := &Rod{launcher: l, browser: b, page: page}
	r.setup(cfg)
	return r, nil
}

// setup applies viewport and headers and starts console capture. All steps
// are best-effort: a page without them still crawls.
func (r *Rod) setup(cfg config.BrowserConfig) {
	if cfg.WindowWidth > 0 && cfg.WindowHeight > 0 {
		if err := r.page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:  cfg.WindowWidth,
			Height: cfg.WindowHeight,
		}); err != nil {
			slog.Warn("failed to set viewport", "error", err)
		}
	}

	if len(cfg.ExtraHeaders) > 0 {
		if err := (proto.NetworkSetExtraHTTPHeaders{
			Headers: toHeadersMap(cfg.ExtraHeaders),
		}).Call(r.page); err != nil {
			slog.Warn("failed to set extra headers", "error", err)
		}
	}

	if err := (proto.RuntimeEnable{}).Call(r.page); err != nil {
		slog.Warn("runtime domain unavailable, console capture disabled", "error", err)
		return
	}
	if err := (proto.LogEnable{}).Call(r.page); err != nil {
		slog.Debug("log domain unavailable", "error", err)
	}

	go r.page.EachEvent(
		func(e *proto.RuntimeConsoleAPICalled) {
			r.record(consoleLevel(e.Type), consoleMessage(e.Args))
		},
		func(e *proto.RuntimeExceptionThrown) {
			if e.ExceptionDetails != nil {
				r.record("SEVERE", exceptionMessage(e.ExceptionDetails))
			}
		},
		func(e *proto.LogEntryAdded) {
			if e.Entry != nil {
				r.record(logEntryLevel(e.Entry.Level), e.Entry.Text)
			}
		},
	)()
}

func (r *Rod) record(level, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.logs) >= maxConsoleEntries {
		return
	}
	r.logs = append(r.logs, LogEntry{Level: level, Message: msg})
}

// Load navigates to url, waits for the load event and a stable DOM, and
// returns the rendered HTML.
func (r *Rod) Load(ctx context.Context, url string, timeout time.Duration) (string, error) {
	r.mu.Lock()
	r.logs = nil
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	p := r.page.Context(ctx)

	if err := p.Navigate(url); err != nil {
		return "", models.CategorizeError(err, models.ErrCodeNavigation, "navigation to "+url+" failed")
	}
	if err := p.WaitLoad(); err != nil {
		return "", models.CategorizeError(err, models.ErrCodeNavigation, "page load of "+url+" did not complete")
	}
	if err := p.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
		slog.Debug("WaitDOMStable did not converge, proceeding with current DOM", "url", url, "error", err)
	}

	markup, err := p.HTML()
	if err != nil {
		return "", models.CategorizeError(err, models.ErrCodeNavigation, "failed to extract page HTML")
	}
	return markup, nil
}

// CurrentURL returns the page location, or "" if it cannot be read.
func (r *Rod) CurrentURL(ctx context.Context) string {
	ctx, cancel := bounded(ctx)
	defer cancel()
	info, err := r.page.Context(ctx).Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// ConsoleLogs returns a copy of the entries captured since the last Load.
func (r *Rod) ConsoleLogs() []LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]LogEntry, len(r.logs))
	copy(out, r.logs)
	return out
}

// FindElements returns the elements currently matching selector without
// waiting for more to appear.
func (r *Rod) FindElements(ctx context.Context, selector string) ([]Element, error) {
	ctx, cancel := bounded(ctx)
	defer cancel()
	els, err := r.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, classify(err, "find "+selector)
	}
	out := make([]Element, len(els))
	for i, el := range els {
		out[i] = &rodElement{el: el}
	}
	return out, nil
}

// Click performs a left click on el.
func (r *Rod) Click(ctx context.Context, el Element) error {
	re, err := asRod(el)
	if err != nil {
		return err
	}
	ctx, cancel := bounded(ctx)
	defer cancel()
	if err := re.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1); err != nil {
		return classify(err, "click")
	}
	return nil
}

// Fill types value into el.
func (r *Rod) Fill(ctx context.Context, el Element, value string) error {
	re, err := asRod(el)
	if err != nil {
		return err
	}
	ctx, cancel := bounded(ctx)
	defer cancel()
	if err := re.el.Context(ctx).Input(value); err != nil {
		return classify(err, "fill")
	}
	return nil
}

// NavigateBack goes one step back in history and waits for the load event.
func (r *Rod) NavigateBack(ctx context.Context) error {
	p := r.page.Context(ctx)
	if err := p.NavigateBack(); err != nil {
		return models.CategorizeError(err, models.ErrCodeNavigation, "navigate back failed")
	}
	if err := p.WaitLoad(); err != nil {
		return models.CategorizeError(err, models.ErrCodeNavigation, "navigate back did not complete")
	}
	return nil
}

// Screenshot captures the viewport as PNG.
func (r *Rod) Screenshot(ctx context.Context) ([]byte, error) {
	return r.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
}

// Close closes the page and browser and kills the process. It is safe to
// call more than once.
func (r *Rod) Close() error {
	var err error
	r.closeOnce.Do(func() {
		if cerr := r.page.Close(); cerr != nil {
			slog.Debug("page close failed", "error", cerr)
		}
		err = r.browser.Close()
		r.launcher.Kill()
		r.launcher.Cleanup()
		slog.Info("browser closed")
	})
	return err
}

type rodElement struct {
	el *rod.Element
}

func (e *rodElement) Text() (string, error) {
	el, cancel := e.bounded()
	defer cancel()
	t, err := el.Text()
	if err != nil {
		return "", classify(err, "read text")
	}
	return t, nil
}

func (e *rodElement) Attribute(name string) (string, error) {
	el, cancel := e.bounded()
	defer cancel()
	v, err := el.Attribute(name)
	if err != nil {
		return "", classify(err, "read attribute "+name)
	}
	if v == nil {
		return "", nil
	}
	return *v, nil
}

// bounded returns a copy of the element whose calls time out after
// actionTimeout.
func (e *rodElement) bounded() (*rod.Element, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	return e.el.Context(ctx), cancel
}

func asRod(el Element) (*rodElement, error) {
	re, ok := el.(*rodElement)
	if !ok {
		return nil, fmt.Errorf("browser: element %T does not belong to a rod driver", el)
	}
	return re, nil
}

// stalePhrases are CDP messages that mean a node or its execution context
// no longer exists.
var stalePhrases = []string{
	"could not find node",
	"no node with given id",
	"node is detached",
	"could not find object",
	"cannot find object",
	"cannot find context",
	"execution context was destroyed",
	"not attached to an active page",
}

func isStaleError(err error) bool {
	msg := err.Error()
	var cdpErr *cdp.Error
	if errors.As(err, &cdpErr) {
		msg = cdpErr.Message
	}
	msg = strings.ToLower(msg)
	for _, p := range stalePhrases {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// classify maps element-operation errors onto the error taxonomy.
func classify(err error, op string) error {
	if isStaleError(err) {
		return models.NewSiteError(models.ErrCodeStaleElement, op+": element is stale", err)
	}
	return models.CategorizeError(err, models.ErrCodeBrowserCrash, op+" failed")
}

func consoleLevel(t proto.RuntimeConsoleAPICalledType) string {
	switch t {
	case proto.RuntimeConsoleAPICalledTypeError, proto.RuntimeConsoleAPICalledTypeAssert:
		return "ERROR"
	case proto.RuntimeConsoleAPICalledTypeWarning:
		return "WARNING"
	default:
		return strings.ToUpper(string(t))
	}
}

func logEntryLevel(l proto.LogLogEntryLevel) string {
	if l == proto.LogLogEntryLevelError {
		return "SEVERE"
	}
	return strings.ToUpper(string(l))
}

func consoleMessage(args []*proto.RuntimeRemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		if a == nil {
			continue
		}
		if a.Description != "" {
			parts = append(parts, a.Description)
			continue
		}
		parts = append(parts, a.Value.Str())
	}
	return strings.Join(parts, " ")
}

func exceptionMessage(d *proto.RuntimeExceptionDetails) string {
	if d.Exception != nil && d.Exception.Description != "" {
		return d.Exception.Description
	}
	return d.Text
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}
