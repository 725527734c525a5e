package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Browser   BrowserConfig   `yaml:"browser"`
	Crawl     CrawlConfig     `yaml:"crawl"`
	Checks    ChecksConfig    `yaml:"checks"`
	Prober    ProberConfig    `yaml:"prober"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Store     StoreConfig     `yaml:"store"`
	Report    ReportConfig    `yaml:"report"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig controls the HTTP API server.
type ServerConfig struct {
	Host string `yaml:"host"` // default: "0.0.0.0"
	Port int    `yaml:"port"` // default: 8080
	Mode string `yaml:"mode"` // "debug", "release", "test"; default: "release"

	// MaxSessions bounds how many crawls (each with its own browser) run at once.
	MaxSessions int `yaml:"max_sessions"` // default: 2
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool `yaml:"headless"` // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool `yaml:"no_sandbox"` // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string `yaml:"browser_bin"`

	// Proxy is the proxy URL for all browser traffic.
	Proxy string `yaml:"proxy"`

	// Stealth masks navigator.webdriver and similar automation tells.
	Stealth bool `yaml:"stealth"` // default: false

	WindowWidth  int `yaml:"window_width"`  // default: 1200
	WindowHeight int `yaml:"window_height"` // default: 900

	// ExtraHeaders are sent with every browser request.
	ExtraHeaders map[string]string `yaml:"extra_headers"`
}

// CrawlConfig controls the crawl budget.
type CrawlConfig struct {
	// Depth is the link-following depth (0 = only the start page).
	Depth int `yaml:"depth"` // default: 1

	// MaxPages is the hard cap on visited pages.
	MaxPages int `yaml:"max_pages"` // default: 30

	// PageLoadTimeout bounds a single navigation.
	PageLoadTimeout time.Duration `yaml:"page_load_timeout"` // default: 20s

	// ScreenshotDir enables per-page screenshots when non-empty.
	ScreenshotDir string `yaml:"screenshot_dir"`
}

// ChecksConfig controls the per-page check battery.
type ChecksConfig struct {
	ReachabilityTimeout time.Duration `yaml:"reachability_timeout"` // default: 10s
	LinkProbeTimeout    time.Duration `yaml:"link_probe_timeout"`   // default: 8s

	// MaxLinksChecked caps the broken-link probes per page.
	MaxLinksChecked int `yaml:"max_links_checked"` // default: 20

	// ProbeConcurrency bounds parallel link probes.
	ProbeConcurrency int `yaml:"probe_concurrency"` // default: 5

	// MaxClicks caps click attempts per page.
	MaxClicks int `yaml:"max_clicks"` // default: 3

	// ActionTimeout bounds each click, fill and element read.
	ActionTimeout time.Duration `yaml:"action_timeout"` // default: 10s

	// ClickSettle is the pause after a click for navigation/animation.
	ClickSettle time.Duration `yaml:"click_settle"` // default: 1s

	// ButtonSelector locates click candidates.
	ButtonSelector string `yaml:"button_selector"` // default: `button, [role="button"]`

	// SafeClickBlacklist holds case-insensitive regex patterns; matching
	// element text is never clicked.
	SafeClickBlacklist []string `yaml:"safe_click_blacklist"`

	// FormInputPreset maps input types to dummy values.
	FormInputPreset map[string]string `yaml:"form_input_preset"`

	// FillForms enables the best-effort form fill extension.
	FillForms bool `yaml:"fill_forms"` // default: false

	StaleAttempts int           `yaml:"stale_attempts"` // default: 3
	StaleBackoff  time.Duration `yaml:"stale_backoff"`  // default: 1s
}

// ProberConfig controls the HTTP reachability prober.
type ProberConfig struct {
	UserAgent string `yaml:"user_agent"`

	// RequestsPerSecond is the sustained per-host probe rate; 0 disables limiting.
	RequestsPerSecond float64 `yaml:"requests_per_second"` // default: 0
	Burst             int     `yaml:"burst"`               // default: 5

	// HostMemoryTTL is how long a host's HEAD rejection is remembered.
	HostMemoryTTL time.Duration `yaml:"host_memory_ttl"` // default: 1h
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	Enabled bool     `yaml:"enabled"` // default: true
	APIKeys []string `yaml:"api_keys"`
}

// RateLimitConfig controls per-key API rate limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"` // default: 2
	Burst             int     `yaml:"burst"`               // default: 5
}

// StoreConfig controls retention of API-launched sessions.
type StoreConfig struct {
	MaxEntries int           `yaml:"max_entries"` // default: 1000
	TTL        time.Duration `yaml:"ttl"`         // default: 1h
}

// ReportConfig controls where the CLI writes reports.
type ReportConfig struct {
	OutputDir string `yaml:"output_dir"` // default: "reports"
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // default: "info"
	Format string `yaml:"format"` // "json" or "text"; default: "json"
}

// DefaultBlacklist is the destructive-action text blacklist.
var DefaultBlacklist = []string{"delete", "remove", "logout", "signout", "pay", "purchase", "buy"}

// DefaultFormPreset is the dummy value table keyed by input type.
var DefaultFormPreset = map[string]string{
	"text":     "test",
	"email":    "test@example.com",
	"password": "P@ssw0rd123",
	"tel":      "9999999999",
	"url":      "https://example.com",
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        envOr("SITECHECK_HOST", "0.0.0.0"),
			Port:        envIntOr("SITECHECK_PORT", 8080),
			Mode:        envOr("SITECHECK_MODE", "release"),
			MaxSessions: envIntOr("SITECHECK_MAX_SESSIONS", 2),
		},
		Browser: BrowserConfig{
			Headless:     envBoolOr("SITECHECK_HEADLESS", true),
			NoSandbox:    envBoolOr("SITECHECK_NO_SANDBOX", false),
			BrowserBin:   os.Getenv("SITECHECK_BROWSER_BIN"),
			Proxy:        os.Getenv("SITECHECK_PROXY"),
			Stealth:      envBoolOr("SITECHECK_STEALTH", false),
			WindowWidth:  envIntOr("SITECHECK_WINDOW_WIDTH", 1200),
			WindowHeight: envIntOr("SITECHECK_WINDOW_HEIGHT", 900),
			ExtraHeaders: envMapOr("SITECHECK_EXTRA_HEADERS", nil),
		},
		Crawl: CrawlConfig{
			Depth:           envIntOr("SITECHECK_CRAWL_DEPTH", 1),
			MaxPages:        envIntOr("SITECHECK_MAX_PAGES", 30),
			PageLoadTimeout: envDurationOr("SITECHECK_PAGE_LOAD_TIMEOUT", 20*time.Second),
			ScreenshotDir:   os.Getenv("SITECHECK_SCREENSHOT_DIR"),
		},
		Checks: ChecksConfig{
			ReachabilityTimeout: envDurationOr("SITECHECK_REACHABILITY_TIMEOUT", 10*time.Second),
			LinkProbeTimeout:    envDurationOr("SITECHECK_LINK_PROBE_TIMEOUT", 8*time.Second),
			MaxLinksChecked:     envIntOr("SITECHECK_MAX_LINKS_CHECKED", 20),
			ProbeConcurrency:    envIntOr("SITECHECK_PROBE_CONCURRENCY", 5),
			MaxClicks:           envIntOr("SITECHECK_MAX_CLICKS", 3),
			ActionTimeout:       envDurationOr("SITECHECK_ACTION_TIMEOUT", 10*time.Second),
			ClickSettle:         envDurationOr("SITECHECK_CLICK_SETTLE", time.Second),
			ButtonSelector:      envOr("SITECHECK_BUTTON_SELECTOR", `button, [role="button"]`),
			SafeClickBlacklist:  envSliceOr("SITECHECK_SAFE_CLICK_BLACKLIST", DefaultBlacklist),
			FormInputPreset:     envMapOr("SITECHECK_FORM_PRESET", DefaultFormPreset),
			FillForms:           envBoolOr("SITECHECK_FILL_FORMS", false),
			StaleAttempts:       envIntOr("SITECHECK_STALE_ATTEMPTS", 3),
			StaleBackoff:        envDurationOr("SITECHECK_STALE_BACKOFF", time.Second),
		},
		Prober: ProberConfig{
			UserAgent:         envOr("SITECHECK_USER_AGENT", "sitecheck/0.1 (+automation tester)"),
			RequestsPerSecond: envFloatOr("SITECHECK_PROBE_RPS", 0),
			Burst:             envIntOr("SITECHECK_PROBE_BURST", 5),
			HostMemoryTTL:     envDurationOr("SITECHECK_HOST_MEMORY_TTL", time.Hour),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("SITECHECK_AUTH_ENABLED", true),
			APIKeys: envSliceOr("SITECHECK_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("SITECHECK_RATE_RPS", 2.0),
			Burst:             envIntOr("SITECHECK_RATE_BURST", 5),
		},
		Store: StoreConfig{
			MaxEntries: envIntOr("SITECHECK_STORE_MAX_ENTRIES", 1000),
			TTL:        envDurationOr("SITECHECK_STORE_TTL", time.Hour),
		},
		Report: ReportConfig{
			OutputDir: envOr("SITECHECK_REPORT_DIR", "reports"),
		},
		Log: LogConfig{
			Level:  envOr("SITECHECK_LOG_LEVEL", "info"),
			Format: envOr("SITECHECK_LOG_FORMAT", "json"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return append([]string(nil), fallback...)
}

// envMapOr parses "k1=v1,k2=v2".
func envMapOr(key string, fallback map[string]string) map[string]string {
	if v := os.Getenv(key); v != "" {
		result := make(map[string]string)
		for _, p := range strings.Split(v, ",") {
			k, val, ok := strings.Cut(p, "=")
			if !ok {
				continue
			}
			if k = strings.TrimSpace(k); k != "" {
				result[k] = strings.TrimSpace(val)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	if fallback == nil {
		return nil
	}
	out := make(map[string]string, len(fallback))
	for k, v := range fallback {
		out[k] = v
	}
	return out
}
