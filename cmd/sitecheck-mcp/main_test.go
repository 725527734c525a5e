package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/sitecheck/models"
)

func TestPollSession(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k", r.Header.Get("X-API-Key"))
		assert.Equal(t, "/api/v1/sessions/abc", r.URL.Path)
		status := models.StatusProcessing
		if polls.Add(1) >= 3 {
			status = models.StatusCompleted
		}
		_ = json.NewEncoder(w).Encode(models.SessionStatusResponse{ID: "abc", Status: status})
	}))
	defer srv.Close()

	got, err := pollSession(context.Background(), srv.Client(), srv.URL, "k", "abc", time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.Equal(t, int32(3), polls.Load())
}

func TestFormatStatus(t *testing.T) {
	out := formatStatus(&models.SessionStatusResponse{
		ID:     "abc",
		Status: models.StatusCompleted,
		Report: &models.SessionReport{
			Session:     models.Session{BaseURL: "http://example.com"},
			TotalPages:  2,
			TotalPassed: 9,
			TotalFailed: 1,
			Pages: []models.PageReport{
				{URL: "http://example.com", Failed: 1, Checks: []models.CheckRecord{
					{Name: "http_status", Passed: true, Message: "HTTP 200"},
					{Name: "broken_links", Passed: false, Message: "1 broken link(s)"},
				}},
				{URL: "http://example.com/ok", Checks: []models.CheckRecord{{Name: "page_load", Passed: true}}},
			},
		},
	})

	assert.Contains(t, out, "Session abc: completed")
	assert.Contains(t, out, "2 pages, 9 checks passed, 1 failed")
	assert.Contains(t, out, "FAIL broken_links: 1 broken link(s)")
	assert.NotContains(t, out, "http_status")
	assert.NotContains(t, out, "http://example.com/ok")
}
