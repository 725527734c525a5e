package checks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/use-agent/sitecheck/browser"
	"github.com/use-agent/sitecheck/models"
)

// FormPreset maps an input type ("text", "email", "tel", ...) to the value
// typed into inputs of that type.
type FormPreset map[string]string

// ValueFor returns the preset for inputType. Textareas use the "text" entry.
func (f FormPreset) ValueFor(inputType string) (string, bool) {
	t := strings.ToLower(strings.TrimSpace(inputType))
	switch t {
	case "", "textarea", "search":
		t = "text"
	case "phone", "telephone":
		t = "tel"
	}
	v, ok := f[t]
	return v, ok
}

// Forms counts the forms on the page. With Fill set it also types preset
// values into their inputs; it never submits.
type Forms struct {
	Preset        FormPreset
	Fill          bool
	ActionTimeout time.Duration
}

func (c *Forms) Name() string { return NameForms }

func (c *Forms) Run(ctx context.Context, p *Page) ([]models.CheckRecord, error) {
	forms, err := p.Driver.FindElements(ctx, "form")
	if err != nil {
		if models.IsStale(err) {
			return nil, err
		}
		forms = nil
	}

	if len(forms) == 0 {
		return []models.CheckRecord{pass(NameForms, "No forms on page")}, nil
	}
	recs := []models.CheckRecord{pass(NameForms, fmt.Sprintf("%d form(s) found", len(forms)))}
	if !c.Fill {
		return recs, nil
	}

	filled, failures, err := c.fill(ctx, p.Driver)
	if err != nil {
		return nil, err
	}
	switch {
	case len(failures) > 0:
		recs = append(recs, fail(NameFormFill, fmt.Sprintf("Filled %d input(s), %d failed: %s",
			filled, len(failures), strings.Join(failures, "; "))))
	default:
		recs = append(recs, pass(NameFormFill, fmt.Sprintf("Filled %d input(s) with preset values", filled)))
	}
	return recs, nil
}

// fill types preset values into form fields. A stale element aborts with an
// error so the whole check is retried; other failures are collected.
func (c *Forms) fill(ctx context.Context, d browser.Driver) (int, []string, error) {
	inputs, err := d.FindElements(ctx, "form input, form textarea")
	if err != nil {
		if models.IsStale(err) {
			return 0, nil, err
		}
		return 0, []string{err.Error()}, nil
	}

	filled := 0
	var failures []string
	for _, in := range inputs {
		typ, err := in.Attribute("type")
		if err != nil {
			if models.IsStale(err) {
				return 0, nil, err
			}
			continue
		}
		value, ok := c.Preset.ValueFor(typ)
		if !ok {
			continue
		}
		fillCtx, cancel := actionCtx(ctx, c.ActionTimeout)
		err = d.Fill(fillCtx, in, value)
		cancel()
		if err != nil {
			if models.IsStale(err) {
				return 0, nil, err
			}
			failures = append(failures, err.Error())
			continue
		}
		filled++
	}
	return filled, failures, nil
}
