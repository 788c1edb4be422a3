package client

import (
	"log/slog"
	"net/http"

	"github.com/assaka/daino-sub010/backoff"
)

// Option configures a Client.
type Option func(*Client)

// WithToken sends token as a bearer credential, for deployments that put
// the API behind an authenticating proxy.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithRetry retries read-only requests up to maxRetries times, waiting
// according to strategy between attempts.
func WithRetry(maxRetries int, strategy backoff.Strategy) Option {
	return func(c *Client) {
		c.maxRetries = max(maxRetries, 0)
		if strategy != nil {
			c.backoff = strategy
		}
	}
}
