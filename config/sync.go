package config

import (
	"strings"
	"time"
)

// OfferSyncConfig configures the offer_sync handler's third-party API client.
type OfferSyncConfig struct {
	// BaseURL of the offer API. The handler is not registered when empty.
	BaseURL string `env:"OFFER_API_BASE_URL"`
	APIKey  string `env:"OFFER_API_KEY"`

	// TokenURL switches the client to the OAuth2 client-credentials grant. When set, APIKey is ignored.
	TokenURL     string   `env:"OFFER_API_TOKEN_URL"`
	ClientID     string   `env:"OFFER_API_CLIENT_ID"`
	ClientSecret string   `env:"OFFER_API_CLIENT_SECRET"`
	Scopes       []string `env:"OFFER_API_SCOPES"        envSeparator:","`

	// RequestsPerSecond and Burst bound the client's token bucket.
	RequestsPerSecond float64 `env:"OFFER_API_RPS"   envDefault:"5"`
	Burst             int     `env:"OFFER_API_BURST" envDefault:"5"`

	// Timeout applies to each HTTP request.
	Timeout time.Duration `env:"OFFER_API_TIMEOUT" envDefault:"30s"`

	// PageSize is requested per page; MaxPages bounds one job run.
	PageSize int `env:"OFFER_API_PAGE_SIZE" envDefault:"100"`
	MaxPages int `env:"OFFER_API_MAX_PAGES" envDefault:"500"`
}

// Sanitize applies guardrails to offer sync configuration values.
func (c *OfferSyncConfig) Sanitize() {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	c.APIKey = strings.TrimSpace(c.APIKey)
	c.TokenURL = strings.TrimSpace(c.TokenURL)
	c.ClientID = strings.TrimSpace(c.ClientID)
	scopes := c.Scopes[:0]
	for _, sc := range c.Scopes {
		if sc = strings.TrimSpace(sc); sc != "" {
			scopes = append(scopes, sc)
		}
	}
	c.Scopes = scopes
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 1
	}
	if c.Burst < 1 {
		c.Burst = 1
	}
	if c.Timeout < time.Second {
		c.Timeout = time.Second
	}
	if c.PageSize < 1 {
		c.PageSize = 1
	}
	if c.PageSize > 1000 {
		c.PageSize = 1000
	}
	if c.MaxPages < 1 {
		c.MaxPages = 1
	}
}

// Enabled reports whether the offer_sync handler can be registered.
func (c *OfferSyncConfig) Enabled() bool {
	return c.BaseURL != ""
}

// UsesClientCredentials reports whether requests are authorised with OAuth2 client credentials.
func (c *OfferSyncConfig) UsesClientCredentials() bool {
	return c.TokenURL != ""
}
