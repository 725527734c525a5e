package models

// SessionRequest is the payload for POST /api/v1/sessions.
type SessionRequest struct {
	// URL is the start page. A missing scheme defaults to http. Required.
	URL string `json:"url" binding:"required"`

	// CrawlDepth limits link-following depth from the start page.
	// 0 checks only the start page. Default: 1. Max: 10.
	CrawlDepth *int `json:"crawl_depth,omitempty" binding:"omitempty,min=0,max=10"`

	// MaxPages caps the number of visited pages.
	// Default: 30. Max: 500.
	MaxPages int `json:"max_pages,omitempty" binding:"omitempty,min=1,max=500"`

	// PageLoadTimeout is the navigation timeout in seconds.
	// Default: 20. Max: 120.
	PageLoadTimeout int `json:"page_load_timeout,omitempty" binding:"omitempty,min=1,max=120"`

	// SafeClickBlacklist replaces the default destructive-text patterns.
	SafeClickBlacklist []string `json:"safe_click_blacklist,omitempty"`

	// FormInputPreset overrides dummy values keyed by input type.
	FormInputPreset map[string]string `json:"form_input_preset,omitempty"`

	// FillForms enables the best-effort form fill extension.
	FillForms bool `json:"fill_forms,omitempty"`

	WebhookURL    string `json:"webhook_url,omitempty" binding:"omitempty,url"`
	WebhookSecret string `json:"webhook_secret,omitempty"`
}
