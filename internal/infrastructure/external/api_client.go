// Package external implements the REST clients of the source and target
// systems of record.
package external

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
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/erp/syncengine/internal/domain/integration"
	"github.com/erp/syncengine/internal/infrastructure/telemetry"
)

// StatusError is a non-2xx response from an external system
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *StatusError) retryable() bool {
	return e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= 500
}

// apiClient is the JSON transport shared by the source and target clients.
// Every call waits on the rate limiter, retries transient failures with
// exponential backoff and returns a classified *integration.SyncError.
type apiClient struct {
	cfg        ClientConfig
	baseURL    *url.URL
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

func newAPIClient(cfg ClientConfig, logger *zap.Logger) (*apiClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	base, _ := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	c := &apiClient{
		cfg:        cfg,
		baseURL:    base,
		httpClient: httpClient,
		logger:     logger.With(zap.String("system", cfg.Name)),
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)
	}
	return c, nil
}

// do sends one logical call. headers are sent on every attempt.
func (c *apiClient) do(ctx context.Context, method, path string, query url.Values, in, out any, headers map[string]string) error {
	ctx, span := telemetry.StartSpan(ctx, "external."+c.cfg.Name,
		telemetry.WithAttribute("http.method", method),
		telemetry.WithAttribute("http.route", path),
		telemetry.WithSpanKind(trace.SpanKindClient),
	)
	defer span.End()

	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return integration.NewValidationError(fmt.Sprintf("%s: encode request: %v", c.cfg.Name, err))
		}
	}

	target := c.baseURL.JoinPath(path)
	if len(query) > 0 {
		target.RawQuery = query.Encode()
	}

	attempt := 0
	operation := func() error {
		attempt++
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}
		err := c.send(ctx, method, target.String(), body, out, headers)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		var se *StatusError
		if errors.As(err, &se) && !se.retryable() {
			return backoff.Permanent(err)
		}
		var de *decodeError
		if errors.As(err, &de) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.cfg.InitialBackoff
	policy.MaxElapsedTime = 0
	retryPolicy := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.cfg.MaxAttempts-1)), ctx)

	err := backoff.RetryNotify(operation, retryPolicy, func(err error, wait time.Duration) {
		c.logger.Warn("External call failed, retrying",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
	})
	if err == nil {
		return nil
	}
	telemetry.RecordError(span, err)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return c.classify(err)
}

type decodeError struct{ err error }

func (e *decodeError) Error() string { return "decode response: " + e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

func (c *apiClient) send(ctx context.Context, method, target string, body []byte, out any, headers map[string]string) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &decodeError{err: err}
	}
	return nil
}

// classify maps the final error of a call onto the sync error taxonomy.
// Unknown failures stay retryable.
func (c *apiClient) classify(err error) *integration.SyncError {
	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == http.StatusUnauthorized || se.StatusCode == http.StatusForbidden:
			return integration.NewFatalConnectivityError(c.cfg.Name+" rejected the credentials", err)
		case se.retryable():
			return integration.NewTransientError(c.cfg.Name+" request failed", err)
		default:
			return &integration.SyncError{
				Kind:    integration.KindValidation,
				Code:    integration.CodeValidation,
				Message: c.cfg.Name + " rejected the request",
				Err:     err,
			}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return integration.NewTransientError(c.cfg.Name+" request timed out", err)
	}
	var urlErr *url.Error
	var opErr *net.OpError
	if errors.As(err, &opErr) || errors.As(err, &urlErr) {
		return integration.NewFatalConnectivityError(c.cfg.Name+" is unreachable", err)
	}
	return integration.NewTransientError(c.cfg.Name+" request failed", err)
}
