// Package webhook delivers crawl session events to user endpoints.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Event types.
const (
	EventPage      = "session.page"
	EventCompleted = "session.completed"
	EventFailed    = "session.failed"
)

// SignatureHeader carries "sha256=<hex>" when a secret is configured.
const SignatureHeader = "X-Sitecheck-Signature"

// Event is the payload sent to webhook endpoints.
type Event struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data"`
}

// NewEvent stamps an event with the current time.
func NewEvent(typ, sessionID string, data any) *Event {
	return &Event{Type: typ, SessionID: sessionID, Timestamp: time.Now().Unix(), Data: data}
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Sender posts events. The zero value is not usable; use NewSender.
type Sender struct {
	client *http.Client
	delays []time.Duration
	wg     sync.WaitGroup
}

// NewSender returns a Sender that retries failed deliveries after each of
// delays. Nil delays mean 1s, 5s, 30s.
func NewSender(delays []time.Duration) *Sender {
	if delays == nil {
		delays = []time.Duration{time.Second, 5 * time.Second, 30 * time.Second}
	}
	return &Sender{
		client: &http.Client{Timeout: 10 * time.Second},
		delays: delays,
	}
}

// Deliver sends event synchronously. The body is signed when secret is
// non-empty.
func (s *Sender) Deliver(ctx context.Context, url, secret string, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Sitecheck-Webhook/1.0")
	if secret != "" {
		req.Header.Set(SignatureHeader, "sha256="+Sign(secret, body))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// DeliverAsync sends event in the background, retrying on failure.
func (s *Sender) DeliverAsync(url, secret string, event *Event) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		delays := append([]time.Duration{0}, s.delays...)
		for attempt, delay := range delays {
			if delay > 0 {
				time.Sleep(delay)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := s.Deliver(ctx, url, secret, event)
			cancel()
			if err == nil {
				slog.Info("webhook delivered",
					"url", url,
					"event", event.Type,
					"session", event.SessionID,
					"attempt", attempt+1,
				)
				return
			}
			slog.Warn("webhook delivery failed",
				"url", url,
				"event", event.Type,
				"session", event.SessionID,
				"attempt", attempt+1,
				"error", err,
			)
		}
		slog.Error("webhook delivery exhausted all retries",
			"url", url,
			"event", event.Type,
			"session", event.SessionID,
		)
	}()
}

// Wait blocks until all background deliveries have finished.
func (s *Sender) Wait() {
	s.wg.Wait()
}
