package config

import (
	"fmt"
	"os"
	"regexp"

	"github.com/andybalholm/cascadia"
	"github.com/use-agent/sitecheck/models"
	"gopkg.in/yaml.v3"
)

// LoadFile returns the env-derived configuration overlaid with the YAML file
// at path. Keys absent from the file keep their env/default values.
func LoadFile(path string) (*Config, error) {
	cfg := Load()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, models.NewSiteError(models.ErrCodeInvalidConfig, "failed to read config file", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, models.NewSiteError(models.ErrCodeInvalidConfig, "failed to parse config file", err)
	}
	return cfg, nil
}

// Validate rejects settings that would make a crawl meaningless.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return models.NewSiteError(models.ErrCodeInvalidConfig, fmt.Sprintf(format, args...), nil)
	}

	if c.Crawl.Depth < 0 {
		return invalid("crawl depth must be >= 0, got %d", c.Crawl.Depth)
	}
	if c.Crawl.MaxPages < 1 {
		return invalid("max pages must be >= 1, got %d", c.Crawl.MaxPages)
	}
	if c.Crawl.PageLoadTimeout <= 0 {
		return invalid("page load timeout must be positive")
	}
	if c.Checks.ReachabilityTimeout <= 0 || c.Checks.LinkProbeTimeout <= 0 {
		return invalid("probe timeouts must be positive")
	}
	if c.Checks.ActionTimeout <= 0 {
		return invalid("action timeout must be positive")
	}
	if c.Checks.MaxLinksChecked < 0 || c.Checks.MaxClicks < 0 {
		return invalid("check caps must be >= 0")
	}
	if c.Checks.ProbeConcurrency < 1 {
		return invalid("probe concurrency must be >= 1, got %d", c.Checks.ProbeConcurrency)
	}
	if _, err := cascadia.Compile(c.Checks.ButtonSelector); err != nil {
		return models.NewSiteError(models.ErrCodeInvalidConfig,
			fmt.Sprintf("invalid button selector %q", c.Checks.ButtonSelector), err)
	}
	for _, p := range c.Checks.SafeClickBlacklist {
		if _, err := regexp.Compile("(?i)" + p); err != nil {
			return models.NewSiteError(models.ErrCodeInvalidConfig,
				fmt.Sprintf("invalid blacklist pattern %q", p), err)
		}
	}
	return nil
}
