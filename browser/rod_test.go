package browser

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"
	"github.com/use-agent/sitecheck/models"
)

func TestClassify_Stale(t *testing.T) {
	stale := []error{
		&cdp.Error{Code: -32000, Message: "Could not find node with given id"},
		fmt.Errorf("wrapped: %w", &cdp.Error{Code: -32000, Message: "Execution context was destroyed."}),
		errors.New("Node is detached from document"),
	}
	for _, err := range stale {
		got := classify(err, "click")
		assert.True(t, models.IsStale(got), "%v", err)
	}
}

func TestClassify_NotStale(t *testing.T) {
	got := classify(errors.New("element not interactable"), "click")
	assert.False(t, models.IsStale(got))
	assert.Equal(t, models.ErrCodeBrowserCrash, models.CodeOf(got))

	got = classify(context.DeadlineExceeded, "click")
	assert.Equal(t, models.ErrCodeTimeout, models.CodeOf(got))
}

func TestConsoleLevels(t *testing.T) {
	assert.Equal(t, "ERROR", consoleLevel(proto.RuntimeConsoleAPICalledTypeError))
	assert.Equal(t, "WARNING", consoleLevel(proto.RuntimeConsoleAPICalledTypeWarning))
	assert.Equal(t, "LOG", consoleLevel(proto.RuntimeConsoleAPICalledTypeLog))
	assert.Equal(t, "SEVERE", logEntryLevel(proto.LogLogEntryLevelError))
	assert.Equal(t, "INFO", logEntryLevel(proto.LogLogEntryLevelInfo))
}

func TestExceptionMessage(t *testing.T) {
	d := &proto.RuntimeExceptionDetails{Text: "Uncaught"}
	assert.Equal(t, "Uncaught", exceptionMessage(d))
	d.Exception = &proto.RuntimeRemoteObject{Description: "TypeError: x is undefined"}
	assert.Equal(t, "TypeError: x is undefined", exceptionMessage(d))
}

func TestToHeadersMap(t *testing.T) {
	m := toHeadersMap(map[string]string{"X-Test": "1"})
	assert.Equal(t, "1", m["X-Test"].Str())
}

func TestAsRod_ForeignElement(t *testing.T) {
	_, err := asRod(fakeElement{})
	assert.Error(t, err)
}

type fakeElement struct{}

func (fakeElement) Text() (string, error)            { return "", nil }
func (fakeElement) Attribute(string) (string, error) { return "", nil }

func TestBounded(t *testing.T) {
	ctx, cancel := bounded(context.Background())
	defer cancel()
	deadline, ok := ctx.Deadline()
	assert.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(actionTimeout), deadline, time.Second)

	parent, stop := context.WithTimeout(context.Background(), time.Minute)
	defer stop()
	ctx, cancel = bounded(parent)
	defer cancel()
	got, _ := ctx.Deadline()
	want, _ := parent.Deadline()
	assert.Equal(t, want, got, "an existing deadline is kept")
}
