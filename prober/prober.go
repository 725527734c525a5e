// Package prober issues lightweight reachability requests.
package prober

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	tls "github.com/refraction-networking/utls"
	"github.com/use-agent/sitecheck/config"
	"github.com/use-agent/sitecheck/models"
	"golang.org/x/time/rate"
)

// Prober returns the HTTP status code of a URL, or a transport error.
type Prober interface {
	Probe(ctx context.Context, url string, timeout time.Duration) (int, error)
}

// maxDrain is how much of a GET body is read before the connection is released.
const maxDrain = 1 << 20

// chromeH1Spec is a Chrome-like TLS ClientHello with ALPN forced to http/1.1
// only. Computed once at init time and reused for every connection.
var chromeH1Spec tls.ClientHelloSpec

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		return
	}
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = spec
}

// HTTP probes with HEAD first and falls back to GET for hosts that reject
// HEAD. It is safe for concurrent use.
type HTTP struct {
	client    *http.Client
	userAgent string
	memory    *HostMemory

	rps      rate.Limit
	burst    int
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHTTP creates a prober with a Chrome TLS fingerprint. Call Close to stop
// its background cleanup.
func NewHTTP(cfg config.ProberConfig) *HTTP {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			dialer := &net.Dialer{Timeout: 10 * time.Second}
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			host, _, _ := net.SplitHostPort(addr)
			tlsConn := tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloCustom)
			if err := tlsConn.ApplyPreset(&chromeH1Spec); err != nil {
				conn.Close()
				return nil, fmt.Errorf("prober: apply tls spec: %w", err)
			}
			if err := tlsConn.HandshakeContext(ctx); err != nil {
				conn.Close()
				return nil, err
			}
			return tlsConn, nil
		},
		ForceAttemptHTTP2:   false,
		MaxIdleConnsPerHost: 10,
	}

	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	ttl := cfg.HostMemoryTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &HTTP{
		client: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		userAgent: cfg.UserAgent,
		memory:    NewHostMemory(ttl),
		rps:       rate.Limit(cfg.RequestsPerSecond),
		burst:     burst,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// Probe requests link and returns its final status code. Any status code,
// including 4xx/5xx, is a successful probe; only transport failures return
// an error (always an ErrCodeTransport SiteError).
func (h *HTTP) Probe(ctx context.Context, link string, timeout time.Duration) (int, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	host := hostOf(link)
	if err := h.wait(ctx, host); err != nil {
		return 0, models.NewSiteError(models.ErrCodeTransport, "rate limiter wait", err)
	}

	if h.memory.HeadRejected(host) {
		return h.do(ctx, http.MethodGet, link)
	}

	code, err := h.do(ctx, http.MethodHead, link)
	if err == nil && (code == http.StatusMethodNotAllowed || code == http.StatusNotImplemented) {
		h.memory.RejectHead(host)
		return h.do(ctx, http.MethodGet, link)
	}
	return code, err
}

func (h *HTTP) do(ctx context.Context, method, link string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, link, nil)
	if err != nil {
		return 0, models.NewSiteError(models.ErrCodeTransport, "build request", err)
	}
	if h.userAgent != "" {
		req.Header.Set("User-Agent", h.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,*/*;q=0.8")

	resp, err := h.client.Do(req)
	if err != nil {
		return 0, models.NewSiteError(models.ErrCodeTransport, method+" "+link, err)
	}
	defer resp.Body.Close()

	if method == http.MethodGet {
		_, _ = io.CopyN(io.Discard, resp.Body, maxDrain)
	}
	return resp.StatusCode, nil
}

// wait blocks on the per-host limiter when rate limiting is enabled.
func (h *HTTP) wait(ctx context.Context, host string) error {
	if h.rps <= 0 || host == "" {
		return nil
	}
	h.mu.Lock()
	l, ok := h.limiters[host]
	if !ok {
		l = rate.NewLimiter(h.rps, h.burst)
		h.limiters[host] = l
	}
	h.mu.Unlock()
	return l.Wait(ctx)
}

// Close stops background goroutines and releases idle connections.
func (h *HTTP) Close() {
	h.memory.Stop()
	h.client.CloseIdleConnections()
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}

// Func adapts an ordinary function to the Prober interface.
type Func func(ctx context.Context, rawURL string, timeout time.Duration) (int, error)

func (f Func) Probe(ctx context.Context, rawURL string, timeout time.Duration) (int, error) {
	return f(ctx, rawURL, timeout)
}
