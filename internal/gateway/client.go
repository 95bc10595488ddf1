package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/appmarket/orders-client/internal/observability"

	"go.uber.org/zap"
)

// ErrNonPositiveAmount rejects a top-up before any network call is made.
var ErrNonPositiveAmount = errors.New("top-up amount must be positive")

// APIError is a non-2xx backend response. Transport and backend failures are
// surfaced to the initiating caller and never retried here.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("backend returned %d", e.Status)
}

type errorResponse struct {
	Error string `json:"error"`
}

// httpClient is the shared JSON transport for both backend domains.
type httpClient struct {
	base    string
	client  *http.Client
	logger  *zap.Logger
	metrics observability.Metrics
}

func newHTTPClient(base string, timeout time.Duration, logger *zap.Logger, metrics observability.Metrics) *httpClient {
	if metrics == nil {
		metrics = observability.Noop{}
	}
	return &httpClient{
		base:    base,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
		metrics: metrics,
	}
}

// doJSON issues one request and decodes the 2xx response body into out when
// out is non-nil. A non-2xx response decodes the backend's {error} body into
// an *APIError.
func (c *httpClient) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	res, err := c.client.Do(req)
	durMs := float64(time.Since(start).Microseconds()) / 1000.0
	if err != nil {
		c.metrics.ObserveRequest(method, path, 0, durMs)
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	c.metrics.ObserveRequest(method, path, res.StatusCode, durMs)

	if res.StatusCode < 200 || res.StatusCode > 299 {
		apiErr := &APIError{Status: res.StatusCode}
		var eres errorResponse
		if err := json.NewDecoder(res.Body).Decode(&eres); err == nil {
			apiErr.Message = eres.Error
		}
		c.logger.Warn("backend request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", res.StatusCode),
			zap.String("message", apiErr.Message),
		)
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		c.logger.Error("bad json in backend response",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
