package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeliver_Signed(t *testing.T) {
	var gotSig string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(SignatureHeader)
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewSender([]time.Duration{})
	err := s.Deliver(context.Background(), srv.URL, "s3cret", NewEvent(EventCompleted, "sess-1", map[string]int{"pages": 3}))
	require.NoError(t, err)

	assert.Equal(t, "sha256="+Sign("s3cret", gotBody), gotSig)
	var ev Event
	require.NoError(t, json.Unmarshal(gotBody, &ev))
	assert.Equal(t, EventCompleted, ev.Type)
	assert.Equal(t, "sess-1", ev.SessionID)
}

func TestDeliver_Unsigned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get(SignatureHeader))
	}))
	defer srv.Close()

	require.NoError(t, NewSender(nil).Deliver(context.Background(), srv.URL, "", NewEvent(EventPage, "x", nil)))
}

func TestDeliver_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewSender(nil).Deliver(context.Background(), srv.URL, "", NewEvent(EventFailed, "x", nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestDeliverAsync_Retries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewSender([]time.Duration{time.Millisecond, time.Millisecond, time.Millisecond})
	s.DeliverAsync(srv.URL, "", NewEvent(EventPage, "x", nil))
	s.Wait()
	assert.Equal(t, int32(3), calls.Load())
}
