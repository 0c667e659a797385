package controlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"reelmill/internal/config"
	"reelmill/internal/services"
)

const (
	// HeaderPassword carries the shared daemon secret.
	HeaderPassword = "X-Daemon-Password"
	// HeaderDaemonID carries the caller's daemon identity.
	HeaderDaemonID = "X-Daemon-Id"
	// HeaderRequestID carries a per-request correlation id.
	HeaderRequestID = "X-Request-Id"

	defaultHTTPTimeout    = 30 * time.Second
	defaultRetryBaseDelay = 500 * time.Millisecond
	defaultRetryMaxDelay  = 8 * time.Second
	defaultRetryAttempts  = 3
)

// Config captures the settings required to talk to the control plane.
type Config struct {
	BaseURL        string
	Password       string
	DaemonID       string
	TimeoutSeconds int
	RetryAttempts  int
}

// ConfigFrom extracts client settings from the daemon configuration.
func ConfigFrom(cfg *config.Config) Config {
	if cfg == nil {
		return Config{}
	}
	return Config{
		BaseURL:        cfg.ControlPlane.BaseURL,
		Password:       cfg.ControlPlane.Password,
		DaemonID:       cfg.Daemon.ID,
		TimeoutSeconds: cfg.ControlPlane.TimeoutSeconds,
		RetryAttempts:  cfg.ControlPlane.RetryAttempts,
	}
}

// Client is a typed HTTP client for the control-plane API.
type Client struct {
	cfg        Config
	httpClient *http.Client

	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	sleeper          func(time.Duration)
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryBackoff overrides the retry backoff delays.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.retryBaseDelay = baseDelay
		c.retryMaxDelay = maxDelay
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// New constructs a client.
func New(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	attempts := cfg.RetryAttempts
	if attempts <= 0 {
		attempts = defaultRetryAttempts
	}
	client := &Client{
		cfg: Config{
			BaseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			Password:       cfg.Password,
			DaemonID:       strings.TrimSpace(cfg.DaemonID),
			TimeoutSeconds: cfg.TimeoutSeconds,
			RetryAttempts:  attempts,
		},
		httpClient:       &http.Client{Timeout: timeout},
		retryMaxAttempts: attempts,
		retryBaseDelay:   defaultRetryBaseDelay,
		retryMaxDelay:    defaultRetryMaxDelay,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// DaemonID returns the identity sent with every request.
func (c *Client) DaemonID() string {
	return c.cfg.DaemonID
}

// StatusError reports a non-2xx response.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Code       string
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("control plane %s %s: http %d: %s", e.Method, e.Path, e.StatusCode, strings.TrimSpace(e.Body))
}

type request struct {
	method string
	path   string
	query  url.Values
	body   any
	// raw overrides body with a prebuilt payload (multipart uploads).
	raw         func() (io.Reader, string, error)
	bearer      string
	retry       bool
	operation   string
	allowStatus []int
}

// do executes req and decodes the JSON response into out when non-nil.
func (c *Client) do(ctx context.Context, req request, out any) error {
	attempts := 1
	if req.retry {
		attempts = c.retryMaxAttempts
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := c.doOnce(ctx, req, out)
		if err == nil {
			return nil
		}
		lastErr = err
		delay, retry := c.retryDelay(ctx, err, attempt, attempts)
		if !retry {
			break
		}
		if err := c.sleep(ctx, delay); err != nil {
			return err
		}
	}
	return classify(req.operation, lastErr)
}

func (c *Client) doOnce(ctx context.Context, req request, out any) error {
	endpoint := c.cfg.BaseURL + req.path
	if len(req.query) > 0 {
		endpoint += "?" + req.query.Encode()
	}

	var body io.Reader
	contentType := ""
	switch {
	case req.raw != nil:
		reader, ct, err := req.raw()
		if err != nil {
			return fmt.Errorf("build request body: %w", err)
		}
		body, contentType = reader, ct
	case req.body != nil:
		encoded, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		body, contentType = bytes.NewReader(encoded), "application/json"
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, endpoint, body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(HeaderPassword, c.cfg.Password)
	httpReq.Header.Set(HeaderDaemonID, c.cfg.DaemonID)
	if req.bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.bearer)
	}
	requestID, ok := services.RequestIDFromContext(ctx)
	if !ok {
		requestID = uuid.NewString()
	}
	httpReq.Header.Set(HeaderRequestID, requestID)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("control plane %s %s: %w", req.method, req.path, err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("control plane %s %s: read body: %w", req.method, req.path, err)
	}

	if resp.StatusCode >= http.StatusMultipleChoices && !containsStatus(req.allowStatus, resp.StatusCode) {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		message, code := errorBody(payload)
		return &StatusError{
			Method:     req.method,
			Path:       req.path,
			StatusCode: resp.StatusCode,
			Code:       code,
			Body:       message,
			RetryAfter: retryAfter,
		}
	}
	if out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("control plane %s %s: decode response: %w", req.method, req.path, err)
	}
	return nil
}

// classify tags err with the services marker matching its cause.
func classify(operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusForbidden && statusErr.Code == CodeAuth:
			return services.Wrap(services.ErrConfiguration, "control_plane", operation, "credentials rejected", err)
		case statusErr.StatusCode == http.StatusForbidden || statusErr.StatusCode == http.StatusConflict:
			return services.Wrap(services.ErrConflict, "control_plane", operation, "", err)
		case statusErr.StatusCode == http.StatusNotFound:
			return services.Wrap(services.ErrNotFound, "control_plane", operation, "", err)
		case statusErr.StatusCode == http.StatusUnauthorized:
			return services.Wrap(services.ErrConfiguration, "control_plane", operation, "credentials rejected", err)
		case statusErr.StatusCode == http.StatusBadRequest || statusErr.StatusCode == http.StatusUnprocessableEntity:
			return services.Wrap(services.ErrValidation, "control_plane", operation, "", err)
		}
	}
	return services.Wrap(services.ErrTransient, "control_plane", operation, "", err)
}

func (c *Client) retryDelay(ctx context.Context, err error, attempt, maxAttempts int) (time.Duration, bool) {
	if attempt >= maxAttempts || err == nil || ctx.Err() != nil {
		return 0, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusRequestTimeout,
			statusErr.StatusCode == http.StatusTooManyRequests,
			statusErr.StatusCode >= http.StatusInternalServerError:
			if statusErr.RetryAfter > 0 {
				return c.capDelay(statusErr.RetryAfter), true
			}
			return c.backoffDelay(attempt), true
		default:
			return 0, false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return c.backoffDelay(attempt), true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return c.backoffDelay(attempt), true
	}
	return 0, false
}

func (c *Client) backoffDelay(attempt int) time.Duration {
	if c.retryBaseDelay <= 0 {
		return 0
	}
	// attempt 1 -> base, attempt 2 -> base*2, attempt 3 -> base*4, ...
	delay := c.retryBaseDelay
	for i := 1; i < attempt; i++ {
		if delay > c.retryMaxDelay/2 {
			delay = c.retryMaxDelay
			break
		}
		delay *= 2
	}
	return c.capDelay(delay)
}

func (c *Client) capDelay(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	if c.retryMaxDelay > 0 && delay > c.retryMaxDelay {
		return c.retryMaxDelay
	}
	return delay
}

func (c *Client) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if c.sleeper != nil {
		c.sleeper(delay)
		return ctx.Err()
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

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		if delay := time.Until(when); delay > 0 {
			return delay, true
		}
	}
	return 0, false
}

func errorBody(payload []byte) (string, string) {
	var body ErrorResponse
	if err := json.Unmarshal(payload, &body); err == nil && body.Error != "" {
		return body.Error, body.Code
	}
	return services.TruncateReason(strings.TrimSpace(string(payload)), 200), ""
}

func containsStatus(list []int, code int) bool {
	for _, candidate := range list {
		if candidate == code {
			return true
		}
	}
	return false
}

func projectPath(projectID string, suffix ...string) string {
	parts := append([]string{"/projects", url.PathEscape(projectID)}, suffix...)
	return strings.Join(parts, "/")
}

func jobPath(jobID string, suffix ...string) string {
	parts := append([]string{"/jobs", url.PathEscape(jobID)}, suffix...)
	return strings.Join(parts, "/")
}
