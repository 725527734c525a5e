package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/sitecheck/models"
	"github.com/use-agent/sitecheck/prober"
)

func TestObservePage(t *testing.T) {
	m := New()

	ok := models.NewPageResult("http://a.test/", 0)
	ok.Add("page_load", true, "")
	ok.Add("broken_links", true, "")
	m.ObservePage(ok, true)

	bad := models.NewPageResult("http://a.test/x", 1)
	bad.Add("page_load", true, "")
	bad.Add("broken_links", false, "")
	m.ObservePage(bad, true)

	down := models.NewPageResult("http://a.test/y", 1)
	down.Add("page_load", false, "")
	m.ObservePage(down, false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.pagesTotal.WithLabelValues(OutcomePassed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pagesTotal.WithLabelValues(OutcomeFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pagesTotal.WithLabelValues(OutcomeLoadFailed)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.checksTotal.WithLabelValues("page_load", "pass")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.checksTotal.WithLabelValues("broken_links", "fail")))
}

func TestObservePage_IndexedNamesShareLabel(t *testing.T) {
	m := New()
	p := models.NewPageResult("http://a.test/", 0)
	for i := 0; i < 50; i++ {
		p.Add(fmt.Sprintf("button_skip_%d", i), true, "")
	}
	p.Add("button_click_0", true, "")
	p.Add("button_click_1", false, "")
	p.Add("button_restore_1", false, "")
	m.ObservePage(p, true)

	assert.Equal(t, 50.0, testutil.ToFloat64(m.checksTotal.WithLabelValues("button_skip", "pass")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.checksTotal.WithLabelValues("button_click", "fail")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.checksTotal.WithLabelValues("button_restore", "fail")))
	assert.Equal(t, 4, testutil.CollectAndCount(m.checksTotal, "sitecheck_checks_total"))
}

func TestCheckLabel(t *testing.T) {
	assert.Equal(t, "button_click", checkLabel("button_click_12"))
	assert.Equal(t, "http_status", checkLabel("http_status"))
	assert.Equal(t, "page_load", checkLabel("page_load"))
	assert.Equal(t, "odd_", checkLabel("odd_"))
}

func TestSessionsGauge(t *testing.T) {
	m := New()
	m.SessionStarted()
	m.SessionStarted()
	m.SessionFinished()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionsActive))
}

func TestInstrumentProber(t *testing.T) {
	m := New()
	p := m.InstrumentProber(prober.Func(func(_ context.Context, url string, _ time.Duration) (int, error) {
		if url == "bad" {
			return 0, errors.New("refused")
		}
		return 200, nil
	}))

	code, err := p.Probe(context.Background(), "good", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 200, code)
	_, err = p.Probe(context.Background(), "bad", time.Second)
	require.Error(t, err)

	assert.Equal(t, 2, testutil.CollectAndCount(m.probeDuration, "sitecheck_probe_duration_seconds"))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SessionStarted()
		m.SessionFinished()
		m.ObservePage(models.NewPageResult("u", 0), true)
	})
	inner := prober.Func(func(context.Context, string, time.Duration) (int, error) { return 204, nil })
	code, err := m.InstrumentProber(inner).Probe(context.Background(), "u", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 204, code)
}

func TestHandler(t *testing.T) {
	m := New()
	m.SessionStarted()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sitecheck_sessions_active 1")
}
