package external

import (
	"errors"
	"net/http"
	"net/url"
	"time"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultMaxAttempts = 3
	defaultPageSize    = 200
	// maxResponseSize limits the response body size to prevent memory exhaustion
	maxResponseSize = 10 * 1024 * 1024
)

// Config errors
var (
	ErrMissingBaseURL = errors.New("external: base url is required")
	ErrInvalidBaseURL = errors.New("external: base url must be an absolute http(s) url")
)

// ClientConfig holds the connection settings of one external system
type ClientConfig struct {
	// Name identifies the system in logs and errors (source, target)
	Name    string
	BaseURL string
	// APIKey is sent as a bearer token when set
	APIKey  string
	Timeout time.Duration
	// RateLimit is requests per second; zero disables limiting
	RateLimit      float64
	RateLimitBurst int
	// MaxAttempts per call including the first
	MaxAttempts int
	PageSize    int
	// InitialBackoff is the first wait between attempts
	InitialBackoff time.Duration
	// HTTPClient overrides the default client, mainly for tests
	HTTPClient *http.Client
}

// Validate checks the configuration
func (c *ClientConfig) Validate() error {
	if c.BaseURL == "" {
		return ErrMissingBaseURL
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidBaseURL
	}
	return nil
}

func (c *ClientConfig) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.PageSize <= 0 {
		c.PageSize = defaultPageSize
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 500 * time.Millisecond
	}
	if c.RateLimit > 0 && c.RateLimitBurst <= 0 {
		c.RateLimitBurst = max(1, int(c.RateLimit))
	}
}
