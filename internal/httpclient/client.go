// Package httpclient is the JSON transport shared by the identity, catalog,
// document and orchestrator clients.
//
// Every response is classified into a domain error code so callers never
// inspect HTTP status codes themselves:
//
//	no token, 401, 403      -> unauthorized
//	404                     -> not_found
//	other 4xx               -> rejected
//	5xx, transport failure  -> unavailable
//
// GET requests are retried with exponential backoff; writes never are.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/botica/internal/domain"
	"github.com/dukerupert/botica/internal/telemetry"
	"github.com/sethvargo/go-retry"
)

const (
	defaultTimeout = 15 * time.Second
	retryBase      = 200 * time.Millisecond
	maxErrorBody   = 4 << 10
)

// Options configures a Client.
type Options struct {
	Timeout     time.Duration
	ReadRetries uint64
	Transport   http.RoundTripper
	Metrics     *telemetry.CheckoutMetrics
	Logger      *slog.Logger
}

// Client talks to one remote service.
type Client struct {
	service     string
	baseURL     string
	http        *http.Client
	readRetries uint64
	retryBase   time.Duration
	metrics     *telemetry.CheckoutMetrics
	logger      *slog.Logger
}

// New creates a client for service rooted at baseURL.
func New(service, baseURL string, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Transport == nil {
		opts.Transport = &telemetry.HTTPTransport{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		service:     service,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		http:        &http.Client{Timeout: opts.Timeout, Transport: opts.Transport},
		readRetries: opts.ReadRetries,
		retryBase:   retryBase,
		metrics:     opts.Metrics,
		logger:      opts.Logger.With(slog.String("upstream", service)),
	}
}

// Service returns the service name used in logs and metrics.
func (c *Client) Service() string {
	return c.service
}

// Request describes one call.
type Request struct {
	// Op names the operation for errors, logs and metrics (e.g. "recetas.upload").
	Op     string
	Method string
	Path   string

	// Token is sent as a bearer credential. When Auth is set and Token is
	// empty the call fails with unauthorized without touching the network.
	Token string
	Auth  bool

	// JSON is marshalled as the request body. Body and ContentType are used
	// instead when set (multipart uploads).
	JSON        interface{}
	Body        io.Reader
	ContentType string

	Header http.Header

	// NoRetry makes a GET a single attempt. Callers with their own attempt
	// budget (the validation poller) set it.
	NoRetry bool
}

// StatusError carries a non-2xx response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("status %d", e.StatusCode)
	}
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Message)
}

// StatusCode returns the HTTP status of err, or 0 when err is not a response error.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// Do performs r and decodes a successful JSON response into out (which may be nil).
func (c *Client) Do(ctx context.Context, r Request, out interface{}) error {
	if r.Auth && r.Token == "" {
		return domain.WithOp(domain.ErrNotAuthenticated, r.Op)
	}

	var payload []byte
	if r.JSON != nil && r.Body == nil {
		b, err := json.Marshal(r.JSON)
		if err != nil {
			return domain.Internal(err, r.Op, "failed to encode request")
		}
		payload = b
	}

	start := time.Now()
	var err error
	if r.Method == http.MethodGet && !r.NoRetry && c.readRetries > 0 {
		backoff := retry.WithMaxRetries(c.readRetries, retry.NewExponential(c.retryBase))
		err = retry.Do(ctx, backoff, func(ctx context.Context) error {
			err := c.once(ctx, r, payload, out)
			if domain.Retryable(err) {
				c.logger.Debug("retrying read", slog.String("op", r.Op), slog.String("error", err.Error()))
				return retry.RetryableError(err)
			}
			return err
		})
	} else {
		err = c.once(ctx, r, payload, out)
	}
	c.metrics.Upstream(c.service, r.Op, err, time.Since(start).Seconds())

	if err != nil {
		level := slog.LevelInfo
		if domain.IsCode(err, domain.EUNAVAILABLE) || domain.IsCode(err, domain.EINTERNAL) {
			level = slog.LevelWarn
		}
		c.logger.Log(ctx, level, "upstream call failed",
			slog.String("op", r.Op),
			slog.String("code", domain.ErrorCode(err)),
			slog.String("error", err.Error()),
		)
	}
	return err
}

func (c *Client) once(ctx context.Context, r Request, payload []byte, out interface{}) error {
	body := r.Body
	contentType := r.ContentType
	if payload != nil {
		body = bytes.NewReader(payload)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, c.baseURL+r.Path, body)
	if err != nil {
		return domain.Internal(err, r.Op, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if r.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.Token)
	}
	if reqID := domain.RequestIDFromContext(ctx); reqID != "" {
		req.Header.Set("X-Request-ID", reqID)
	}
	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return domain.WrapError(ctx.Err(), domain.EUNAVAILABLE, r.Op, "Request was cancelled")
		}
		return domain.Unavailable(err, r.Op, c.unavailableMessage())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return c.classify(r.Op, resp.StatusCode, raw)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Unavailable(err, r.Op, c.unavailableMessage())
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return domain.Internal(err, r.Op, "unexpected response from "+c.service)
	}
	return nil
}

func (c *Client) classify(op string, status int, raw []byte) error {
	se := &StatusError{StatusCode: status, Message: remoteMessage(raw)}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return domain.WrapError(se, domain.EUNAUTHORIZED, op, domain.ErrNotAuthenticated.Message)
	case status == http.StatusNotFound:
		return domain.WrapError(se, domain.ENOTFOUND, op, firstNonEmpty(se.Message, "Resource not found"))
	case status >= 500:
		return domain.Unavailable(se, op, c.unavailableMessage())
	default:
		return domain.WrapError(se, domain.EREJECTED, op, firstNonEmpty(se.Message, "The request was rejected by "+c.service))
	}
}

func (c *Client) unavailableMessage() string {
	return fmt.Sprintf("The %s service is unavailable. Please try again.", c.service)
}

// remoteMessage extracts a human-readable message from an error body.
// The services answer with "mensaje", "message" or "error".
func remoteMessage(raw []byte) string {
	var body struct {
		Mensaje string          `json:"mensaje"`
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	if body.Mensaje != "" {
		return body.Mensaje
	}
	if body.Message != "" {
		return body.Message
	}
	var s string
	if json.Unmarshal(body.Error, &s) == nil {
		return s
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
