package checks

import (
	"context"
	"fmt"
	"strings"

	"github.com/use-agent/sitecheck/browser"
	"github.com/use-agent/sitecheck/models"
)

// sampleSize is how many offending items a failure message quotes.
const sampleSize = 3

// ConsoleErrors fails when the page logged entries at SEVERE or ERROR level.
type ConsoleErrors struct{}

func (c *ConsoleErrors) Name() string { return NameConsoleErrors }

func (c *ConsoleErrors) Run(_ context.Context, p *Page) ([]models.CheckRecord, error) {
	errs := SevereEntries(p.Driver.ConsoleLogs())
	if len(errs) == 0 {
		return []models.CheckRecord{pass(NameConsoleErrors, "No console errors")}, nil
	}

	sample := make([]string, 0, sampleSize)
	for _, e := range errs {
		if len(sample) == sampleSize {
			break
		}
		sample = append(sample, e.Message)
	}
	msg := fmt.Sprintf("%d console error(s): %s", len(errs), strings.Join(sample, "; "))
	return []models.CheckRecord{fail(NameConsoleErrors, msg)}, nil
}

// SevereEntries filters logs down to SEVERE and ERROR entries.
func SevereEntries(logs []browser.LogEntry) []browser.LogEntry {
	var out []browser.LogEntry
	for _, e := range logs {
		switch strings.ToUpper(e.Level) {
		case "SEVERE", "ERROR":
			out = append(out, e)
		}
	}
	return out
}
