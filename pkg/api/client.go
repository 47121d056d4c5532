// Package api is the HTTP client for the diagnostics service REST API.
//
// Authentication failures (401, 403) come back as AUTH_FAILURE errors so a
// view can tell them apart from everything else. Idempotent requests are
// retried on 429 and 5xx with exponential backoff, except on clients made
// by WithoutRetries.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/grovetools/cryoview/config"
	"github.com/grovetools/cryoview/errors"
	"github.com/grovetools/cryoview/version"
)

// CorrelationHeader carries a per-request id, echoed in server logs.
const CorrelationHeader = "X-Correlation-Id"

// HTTPError is a non-success response.
type HTTPError struct {
	StatusCode int
	Method     string
	Path       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: http %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s: http %d", e.Method, e.Path, e.StatusCode)
}

// Client talks to the diagnostics service.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	logger     *logrus.Entry
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.httpClient = h } }

func WithRetries(n int) Option { return func(c *Client) { c.maxRetries = n } }

// WithBackoff sets the first retry delay and its cap.
func WithBackoff(base, max time.Duration) Option {
	return func(c *Client) {
		c.baseDelay = base
		c.maxDelay = max
	}
}

func WithLogger(l *logrus.Entry) Option { return func(c *Client) { c.logger = l } }

// NewClient creates a client for baseURL. An empty token sends no
// Authorization header.
func NewClient(baseURL, token string, opts ...Option) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = config.DefaultServerURL
	}
	c := &Client{
		baseURL:    baseURL,
		token:      strings.TrimSpace(token),
		maxRetries: config.DefaultMaxRetries,
		baseDelay:  100 * time.Millisecond,
		maxDelay:   2 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: config.DefaultTimeout}
	}
	if c.logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		c.logger = logrus.NewEntry(l)
	}
	return c
}

// FromConfig creates a client from the server section of the configuration.
func FromConfig(cfg config.ServerConfig, logger *logrus.Entry) *Client {
	return NewClient(cfg.URL, cfg.Token,
		WithHTTPClient(&http.Client{Timeout: config.Duration(cfg.Timeout, config.DefaultTimeout)}),
		WithRetries(cfg.MaxRetries),
		WithLogger(logger),
	)
}

// WithoutRetries returns a copy of c that never retries. Snapshot loads use
// it: a failed load surfaces to the user, who decides when to retry.
func (c *Client) WithoutRetries() *Client {
	cp := *c
	cp.maxRetries = 0
	return &cp
}

// BaseURL returns the service root.
func (c *Client) BaseURL() string { return c.baseURL }

// Token returns the bearer token.
func (c *Client) Token() string { return c.token }

// NotificationsURL is the websocket endpoint for push notifications.
func (c *Client) NotificationsURL() string {
	u := c.baseURL + NotificationsPath
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u
}

// Health reports whether the service answers.
func (c *Client) Health(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodGet, HealthPath, nil, nil)
}

func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

func (c *Client) doJSON(ctx context.Context, method, requestPath string, body, out interface{}) error {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	retries := 0
	if idempotent(method) {
		retries = c.maxRetries
	}

	for attempt := 0; ; attempt++ {
		var bodyReader io.Reader
		if bodyBytes != nil {
			bodyReader = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, bodyReader)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		correlation := uuid.NewString()
		req.Header.Set(CorrelationHeader, correlation)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", version.UserAgent())
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() == nil && attempt < retries {
				c.logger.WithFields(logrus.Fields{
					"method":  method,
					"path":    requestPath,
					"attempt": attempt + 1,
				}).WithError(err).Debug("Request failed, retrying")
				if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1, "")); waitErr != nil {
					return errors.TransientFetchFailure(waitErr)
				}
				continue
			}
			return errors.TransientFetchFailure(err)
		}
		payload, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return errors.TransientFetchFailure(readErr)
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			if out == nil || len(payload) == 0 {
				return nil
			}
			if err := json.Unmarshal(payload, out); err != nil {
				return fmt.Errorf("failed to decode %s %s response: %w", method, requestPath, err)
			}
			return nil
		}

		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		if retryable && attempt < retries {
			if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
				return errors.TransientFetchFailure(waitErr)
			}
			continue
		}

		var errPayload struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		_ = json.Unmarshal(payload, &errPayload)
		msg := errPayload.Message
		if msg == "" {
			msg = errPayload.Error
		}
		httpErr := &HTTPError{StatusCode: resp.StatusCode, Method: method, Path: requestPath, Message: msg}
		c.logger.WithFields(logrus.Fields{
			"method":      method,
			"path":        requestPath,
			"status":      resp.StatusCode,
			"correlation": correlation,
		}).Debug("Request rejected")

		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return errors.AuthFailure(httpErr)
		case http.StatusNotFound:
			return errors.Wrap(httpErr, errors.ErrCodeNotFound, httpErr.Error())
		}
		return errors.Wrap(httpErr, errors.ErrCodeBackendHTTP, httpErr.Error()).
			WithDetail("status", resp.StatusCode)
	}
}

func (c *Client) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	maxDelay := c.maxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	if retryAfter := parseRetryAfter(retryAfterHeader); retryAfter > 0 {
		if retryAfter > maxDelay {
			return maxDelay
		}
		return retryAfter
	}
	delay := c.baseDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	return delay
}

func parseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if ts, err := time.Parse(time.RFC1123, header); err == nil {
		if delta := time.Until(ts); delta > 0 {
			return delta
		}
	}
	return 0
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func escape(segment string) string {
	return url.PathEscape(segment)
}
