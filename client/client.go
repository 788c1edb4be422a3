// Package client talks to a remote dispatch engine over its HTTP API.
//
// Usage:
//
//	c := client.New("http://dispatch.internal:8080",
//	    client.WithRetry(3, backoff.Exponential(200*time.Millisecond, 2*time.Second)),
//	)
//
//	// Submit a job.
//	sub, err := c.Submit(ctx, client.SubmitRequest{Type: "email:notify", Payload: payload})
//
//	// Poll its status.
//	report, err := c.Status(ctx, sub.JobID)
//
// Read-only requests are retried on transport errors and 5xx responses.
// Mutating requests are sent once.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	dispatch "github.com/assaka/daino-sub010"
	"github.com/assaka/daino-sub010/backoff"
)

// Client is an HTTP client for the dispatch API. It is safe for
// concurrent use.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger

	maxRetries int
	backoff    backoff.Strategy
}

// New creates a Client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  slog.Default(),
		backoff: backoff.DefaultStrategy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Error is a non-2xx API response.
type Error struct {
	StatusCode int
	Message    string

	resource string
}

func (e *Error) Error() string {
	return fmt.Sprintf("dispatch/client: %d: %s", e.StatusCode, e.Message)
}

// Is maps response codes onto the engine's sentinel errors so callers can
// use errors.Is the same way against a local or remote engine.
func (e *Error) Is(target error) bool {
	switch e.StatusCode {
	case http.StatusNotFound:
		switch e.resource {
		case "job":
			return target == dispatch.ErrJobNotFound
		case "cron":
			return target == dispatch.ErrCronNotFound
		}
	case http.StatusConflict:
		switch target {
		case dispatch.ErrDuplicateCron:
			return e.resource == "cron"
		case dispatch.ErrInvalidState:
			return e.resource == "job"
		}
	}
	return false
}

type request struct {
	method   string
	path     string
	query    url.Values
	body     any
	resource string

	// accept lists extra statuses decoded into out instead of failing.
	accept []int
}

func (c *Client) do(ctx context.Context, req request, out any) (int, error) {
	var body []byte
	if req.body != nil {
		var err error
		if body, err = json.Marshal(req.body); err != nil {
			return 0, fmt.Errorf("dispatch/client: encode request: %w", err)
		}
	}

	attempts := 1
	if req.method == http.MethodGet {
		attempts += c.maxRetries
	}

	var lastErr error
	for attempt := range attempts {
		if attempt > 0 {
			delay := c.backoff.Delay(attempt)
			c.logger.Debug("retrying dispatch request",
				slog.String("path", req.path),
				slog.Int("attempt", attempt+1),
				slog.Duration("delay", delay),
			)
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(delay):
			}
		}

		status, err := c.once(ctx, req, body, out)
		if err == nil {
			return status, nil
		}
		lastErr = err

		var apiErr *Error
		if errors.As(err, &apiErr) && apiErr.StatusCode < 500 {
			return status, err
		}
		if ctx.Err() != nil {
			return status, err
		}
	}
	return 0, lastErr
}

func (c *Client) once(ctx context.Context, req request, body []byte, out any) (int, error) {
	u := c.baseURL + req.path
	if len(req.query) > 0 {
		u += "?" + req.query.Encode()
	}

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, u, rd)
	if err != nil {
		return 0, fmt.Errorf("dispatch/client: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("dispatch/client: %s %s: %w", req.method, req.path, err)
	}
	defer resp.Body.Close()

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	for _, s := range req.accept {
		ok = ok || resp.StatusCode == s
	}
	if !ok {
		var payload struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil || payload.Error == "" {
			payload.Error = http.StatusText(resp.StatusCode)
		}
		return resp.StatusCode, &Error{StatusCode: resp.StatusCode, Message: payload.Error, resource: req.resource}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("dispatch/client: decode %s: %w", req.path, err)
	}
	return resp.StatusCode, nil
}

// Ping checks that the server and its store are reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, request{method: http.MethodGet, path: "/healthz"}, nil)
	return err
}

func pageQuery(limit, offset int) url.Values {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if offset > 0 {
		q.Set("offset", fmt.Sprint(offset))
	}
	return q
}
