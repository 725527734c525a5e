// Package browsertest provides an in-memory browser.Driver that serves
// canned markup, for tests of code that drives a browser.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/use-agent/sitecheck/browser"
	"github.com/use-agent/sitecheck/models"
)

// ErrStale is a stale-element error as the rod driver reports it.
var ErrStale = models.NewSiteError(models.ErrCodeStaleElement, "element is stale", errors.New("could not find node"))

// Driver serves Pages by URL. Clicking an element with a data-navigate
// attribute moves the page to that URL. Fields may be set before use and
// inspected afterwards; methods are safe for concurrent use.
type Driver struct {
	Pages map[string]string
	Logs  map[string][]browser.LogEntry

	// LoadErrs fails Load for the given URLs.
	LoadErrs map[string]error
	// ClickErrs are returned, in order, by successive Click calls.
	ClickErrs []error
	// FindErrs are returned, in order, by successive FindElements calls.
	FindErrs []error
	// BlockClicks makes Click wait until its context is done, like a rod
	// click on a disabled or covered element.
	BlockClicks bool
	// Mutations replaces the current page's markup when an element with
	// the given text is clicked.
	Mutations map[string]string

	mu      sync.Mutex
	current string
	history []string

	Loaded        []string
	Clicked       []string
	ClickAttempts int
	Filled        map[string]string
	Closed        bool
}

// New returns a Driver serving pages.
func New(pages map[string]string) *Driver {
	return &Driver{Pages: pages, Filled: map[string]string{}}
}

type element struct {
	sel *goquery.Selection
}

func (e *element) Text() (string, error) {
	return strings.TrimSpace(e.sel.Text()), nil
}

func (e *element) Attribute(name string) (string, error) {
	v, _ := e.sel.Attr(name)
	return v, nil
}

func (d *Driver) Load(ctx context.Context, url string, _ time.Duration) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Loaded = append(d.Loaded, url)
	if err := ctx.Err(); err != nil {
		return "", models.CategorizeError(err, models.ErrCodeNavigation, "load cancelled")
	}
	if err, ok := d.LoadErrs[url]; ok {
		return "", err
	}
	markup, ok := d.Pages[url]
	if !ok {
		return "", models.NewSiteError(models.ErrCodeNavigation, "no such page "+url, nil)
	}
	d.current = url
	d.history = append(d.history, url)
	return markup, nil
}

func (d *Driver) CurrentURL(context.Context) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

func (d *Driver) ConsoleLogs() []browser.LogEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]browser.LogEntry(nil), d.Logs[d.current]...)
}

func (d *Driver) FindElements(_ context.Context, selector string) ([]browser.Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.FindErrs) > 0 {
		err := d.FindErrs[0]
		d.FindErrs = d.FindErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(d.Pages[d.current]))
	if err != nil {
		return nil, err
	}
	var out []browser.Element
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		out = append(out, &element{sel: s})
	})
	return out, nil
}

func (d *Driver) Click(ctx context.Context, el browser.Element) error {
	e, ok := el.(*element)
	if !ok {
		return fmt.Errorf("browsertest: foreign element %T", el)
	}
	d.mu.Lock()
	d.ClickAttempts++
	if d.BlockClicks {
		d.mu.Unlock()
		<-ctx.Done()
		return models.CategorizeError(ctx.Err(), models.ErrCodeBrowserCrash, "click failed")
	}
	defer d.mu.Unlock()
	if len(d.ClickErrs) > 0 {
		err := d.ClickErrs[0]
		d.ClickErrs = d.ClickErrs[1:]
		if err != nil {
			return err
		}
	}
	text := strings.TrimSpace(e.sel.Text())
	d.Clicked = append(d.Clicked, text)
	if markup, ok := d.Mutations[text]; ok {
		d.Pages[d.current] = markup
	}
	if target, ok := e.sel.Attr("data-navigate"); ok {
		d.current = target
		d.history = append(d.history, target)
	}
	return nil
}

func (d *Driver) Fill(_ context.Context, el browser.Element, value string) error {
	e, ok := el.(*element)
	if !ok {
		return fmt.Errorf("browsertest: foreign element %T", el)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	name, _ := e.sel.Attr("name")
	d.Filled[name] = value
	return nil
}

func (d *Driver) NavigateBack(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.history) < 2 {
		return models.NewSiteError(models.ErrCodeNavigation, "no history", nil)
	}
	d.history = d.history[:len(d.history)-1]
	d.current = d.history[len(d.history)-1]
	return nil
}

func (d *Driver) Screenshot(context.Context) ([]byte, error) {
	return []byte("\x89PNG fake"), nil
}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Closed = true
	return nil
}

// ClickCount returns how many clicks succeeded.
func (d *Driver) ClickCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Clicked)
}
