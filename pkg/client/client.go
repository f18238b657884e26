// Package client provides the HTTP client for the backing data source,
// with bearer credential injection, error classification and metrics.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for backing-source calls.
var (
	upstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hr_gateway_upstream_requests_total",
		Help: "Total backing-source requests by resource and status",
	}, []string{"resource", "status"})

	upstreamRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hr_gateway_upstream_request_duration_seconds",
		Help:    "Backing-source request duration in seconds by resource",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"resource"})

	upstreamErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hr_gateway_upstream_errors_total",
		Help: "Total backing-source errors by class",
	}, []string{"class"})
)

// ErrorClass represents a classification of backing-source failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors other than 429.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents transport errors and timeouts.
	ErrorClassNetwork ErrorClass = "network"
)

// Call is one fully translated backing-source request.
type Call struct {
	// Resource labels metrics and logs; it is not sent.
	Resource string

	Method string
	URL    string

	// Body is forwarded verbatim as JSON when non-nil.
	Body []byte
}

// Response is a fully read backing-source response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Client performs authenticated calls against the backing data source.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// APIKey is sent as a bearer token and never logged.
	APIKey string

	// Timeout bounds a single call, including reading the body.
	Timeout time.Duration

	// UserAgent is optional.
	UserAgent string
}

// DefaultConfig returns a configuration with a 30s per-call timeout.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:    apiKey,
		Timeout:   30 * time.Second,
		UserAgent: "hr-gateway/1.0",
	}
}

// New creates a new backing-source client. An empty APIKey is allowed: the
// gateway rejects calls before they reach the client when credentials are absent.
func New(cfg Config) (*Client, error) {
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout must be >= 0 (got %s)", cfg.Timeout)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		config: cfg,
		logger: log.With().Str("component", "upstream-client").Logger(),
	}, nil
}

// Do executes call exactly once. Non-2xx responses are returned, not converted
// to errors; only transport failures produce an error.
func (c *Client) Do(ctx context.Context, call Call) (*Response, error) {
	var body io.Reader
	if call.Body != nil {
		body = bytes.NewReader(call.Body)
	}

	req, err := http.NewRequestWithContext(ctx, call.Method, call.URL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("Accept", "application/json")
	if call.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	startTime := time.Now()
	defer func() {
		upstreamRequestDuration.WithLabelValues(call.Resource).Observe(time.Since(startTime).Seconds())
	}()

	c.logger.Debug().
		Str("resource", call.Resource).
		Str("method", call.Method).
		Str("url", req.URL.Redacted()).
		Msg("Executing upstream request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		class := classifyError(nil, err)
		upstreamErrorsTotal.WithLabelValues(string(class)).Inc()
		upstreamRequestsTotal.WithLabelValues(call.Resource, "network_error").Inc()
		c.logger.Error().Err(err).Str("resource", call.Resource).Msg("Upstream request failed")
		return nil, fmt.Errorf("%s %s: %w", call.Method, call.Resource, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		upstreamErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, fmt.Errorf("read %s response body: %w", call.Resource, err)
	}

	upstreamRequestsTotal.WithLabelValues(call.Resource, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode >= 400 {
		class := classifyError(resp, nil)
		upstreamErrorsTotal.WithLabelValues(string(class)).Inc()
		c.logger.Warn().
			Str("resource", call.Resource).
			Str("method", call.Method).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Upstream request error")
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       data,
	}, nil
}

// classifyError categorizes an outcome for observability.
func classifyError(resp *http.Response, err error) ErrorClass {
	if err != nil {
		return ErrorClassNetwork
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return ErrorClassClient
	case resp.StatusCode >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
