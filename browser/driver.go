// Package browser defines the browser-driver collaborator used by the crawl
// scheduler and page checks, and its go-rod implementation.
package browser

import (
	"context"
	"time"
)

// LogEntry is one runtime console entry. Level is upper-cased
// ("SEVERE", "ERROR", "WARNING", "INFO", ...).
type LogEntry struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Element is a handle to a located DOM element. Handles may go stale when
// the page mutates; operations then fail with an ErrCodeStaleElement error.
type Element interface {
	// Text returns the element's visible text.
	Text() (string, error)
	// Attribute returns the attribute value, or "" when it is absent.
	Attribute(name string) (string, error)
}

// Driver controls one exclusively-owned browser page.
type Driver interface {
	// Load navigates to url and returns the rendered markup.
	Load(ctx context.Context, url string, timeout time.Duration) (string, error)

	// CurrentURL returns the page's current location, or "".
	CurrentURL(ctx context.Context) string

	// ConsoleLogs returns the console entries captured since the last Load.
	ConsoleLogs() []LogEntry

	FindElements(ctx context.Context, selector string) ([]Element, error)
	Click(ctx context.Context, el Element) error
	Fill(ctx context.Context, el Element, value string) error
	NavigateBack(ctx context.Context) error
	Screenshot(ctx context.Context) ([]byte, error)

	// Close releases the page and terminates the browser process.
	Close() error
}
