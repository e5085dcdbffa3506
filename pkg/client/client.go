// Package client provides the HTTP transport to the document service with
// rate limiting, response caching, retries and error classification.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/cadseq/pkg/cache"
	"github.com/Sternrassler/cadseq/pkg/logging"
	"github.com/Sternrassler/cadseq/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	apiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cadseq_api_requests_total",
		Help: "Total API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	apiRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cadseq_api_request_duration_seconds",
		Help:    "API request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	apiErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cadseq_api_errors_total",
		Help: "Total API errors by class",
	}, []string{"class"})
)

// DefaultBaseURL is the public document service stack.
const DefaultBaseURL = "https://cad.onshape.com"

// maxErrorBody bounds how much of an error response is kept in APIError.
const maxErrorBody = 4 << 10

// Client is the document-service transport. One Client is built per
// process and passed to every component that talks to the service.
type Client struct {
	httpClient  *http.Client
	baseURL     *url.URL
	rateLimiter *ratelimit.Tracker
	cache       *cache.Manager
	retry       RetryConfig
	config      Config
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the service stack, e.g. "https://cad.onshape.com".
	BaseURL string

	// API key pair sent as basic auth. Both empty means anonymous access
	// (public documents only).
	AccessKey string
	SecretKey string

	// UserAgent header (REQUIRED)
	UserAgent string

	// Redis enables the response cache and shared back-off state. Optional.
	Redis *redis.Client

	// Rate limiting: steady requests per second and burst size.
	RateLimit float64
	Burst     int

	// Retry
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// Timeout per HTTP request.
	Timeout time.Duration

	// Caching
	CacheTTL         time.Duration // freshness when the response sets none
	CacheStaleWindow time.Duration // how long stale entries are kept for revalidation
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(redis *redis.Client, userAgent string) Config {
	return Config{
		BaseURL:          DefaultBaseURL,
		UserAgent:        userAgent,
		Redis:            redis,
		RateLimit:        2,
		Burst:            4,
		MaxRetries:       3,
		InitialBackoff:   1 * time.Second,
		MaxBackoff:       30 * time.Second,
		Timeout:          30 * time.Second,
		CacheTTL:         cache.DefaultTTL,
		CacheStaleWindow: cache.DefaultStaleWindow,
	}
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}

	if (cfg.AccessKey == "") != (cfg.SecretKey == "") {
		return nil, fmt.Errorf("access key and secret key must be set together")
	}

	if cfg.RateLimit < 0 {
		return nil, fmt.Errorf("rate_limit must be >= 0 (got %v)", cfg.RateLimit)
	}

	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max_retries must be >= 0 (got %d)", cfg.MaxRetries)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	logger := logging.NewLogger(logging.ComponentClient)

	retry := DefaultRetryConfig()
	retry.MaxAttempts = cfg.MaxRetries + 1
	if cfg.InitialBackoff > 0 {
		retry.InitialBackoff = cfg.InitialBackoff
	}
	if cfg.MaxBackoff > 0 {
		retry.MaxBackoff = cfg.MaxBackoff
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:     base,
		rateLimiter: ratelimit.NewTracker(cfg.Redis, cfg.RateLimit, cfg.Burst, logger),
		retry:       retry,
		config:      cfg,
		logger:      logger,
	}

	if cfg.Redis != nil {
		c.cache = cache.NewManager(cfg.Redis, cfg.CacheStaleWindow)
	}

	return c, nil
}

// Request builds and sends a request to path relative to the base URL.
// body may be nil, []byte, string, io.Reader or any JSON-encodable value.
func (c *Client) Request(ctx context.Context, method, path string, params url.Values, body any, headers http.Header) (*http.Response, error) {
	u := *c.baseURL
	u.Path = u.Path + "/" + strings.TrimLeft(path, "/")
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}

	reader, contentType, err := encodeBody(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for name, values := range headers {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}

	return c.Do(req)
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	return c.Request(ctx, http.MethodGet, path, params, nil, nil)
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any) (*http.Response, error) {
	return c.Request(ctx, http.MethodPost, path, nil, body, nil)
}

func encodeBody(body any) (io.Reader, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case []byte:
		return bytes.NewReader(b), "", nil
	case string:
		return strings.NewReader(b), "", nil
	case *bytes.Reader:
		return b, "", nil
	case *strings.Reader:
		return b, "", nil
	case *bytes.Buffer:
		return b, "", nil
	case io.Reader:
		// Not rewindable: read once so retries can resend it.
		data, err := io.ReadAll(b)
		if err != nil {
			return nil, "", fmt.Errorf("read request body: %w", err)
		}
		return bytes.NewReader(data), "", nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, "", fmt.Errorf("encode request body: %w", err)
		}
		return bytes.NewReader(data), "application/json", nil
	}
}

// Do performs an HTTP request with rate limiting, caching, retries and
// error classification. 4xx responses other than 429 are returned to the
// caller unchanged; exhausted retries return an error wrapping *APIError.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	endpoint := EndpointLabel(req.URL.Path)

	startTime := time.Now()
	defer func() {
		apiRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	// Step 1: Cache lookup (GET only)
	var (
		cacheKey  cache.Key
		cached    *cache.Entry
		cacheable = c.cache != nil && req.Method == http.MethodGet
	)
	if cacheable {
		cacheKey = cache.Key{
			Endpoint: req.URL.Path,
			Query:    req.URL.Query(),
			Account:  c.config.AccessKey,
		}

		entry, err := c.cache.Get(ctx, cacheKey)
		switch {
		case err == nil:
			cached = entry
		case !errors.Is(err, cache.ErrCacheMiss):
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Cache get error")
		}

		if cached != nil && !cached.IsExpired() {
			c.logger.Debug().Str("endpoint", endpoint).Msg("Serving fresh response from cache")
			apiRequestsTotal.WithLabelValues(endpoint, "cache").Inc()
			return cache.EntryToResponse(cached, req), nil
		}

		if cache.ShouldMakeConditionalRequest(cached) {
			cache.AddConditionalHeaders(req, cached)
			cache.ConditionalRequestsSent.Inc()
			c.logger.Debug().
				Str("endpoint", endpoint).
				Str("etag", cached.ETag).
				Msg("Making conditional request")
		}
	}

	// Step 2: Headers and credentials
	req.Header.Set("User-Agent", c.config.UserAgent)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if c.config.AccessKey != "" {
		req.SetBasicAuth(c.config.AccessKey, c.config.SecretKey)
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", req.Method).
		Msg("Executing API request")

	// Step 3: Execute with retry
	var resp *http.Response
	err := retryWithBackoff(ctx, c.retry, c.logger, func(attempt int) (ErrorClass, error) {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return "", err
		}

		if attempt > 1 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return "", fmt.Errorf("rewind request body: %w", err)
			}
			req.Body = body
		}

		r, err := c.httpClient.Do(req)
		if err != nil {
			apiErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			apiRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			if ctx.Err() != nil {
				return "", err
			}
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
			return ErrorClassNetwork, &APIError{
				ErrorClass: ErrorClassNetwork,
				Message:    "request failed",
				Err:        err,
			}
		}

		if err := c.rateLimiter.UpdateFromResponse(ctx, r.StatusCode, r.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update rate limit state")
		}

		apiRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(r.StatusCode)).Inc()

		if r.StatusCode < 400 {
			resp = r
			return "", nil
		}

		errClass := classifyStatus(r.StatusCode)
		apiErrorsTotal.WithLabelValues(string(errClass)).Inc()
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", r.StatusCode).
			Str("error_class", string(errClass)).
			Msg("API request error")

		if !shouldRetry(errClass) {
			resp = r
			return "", nil
		}

		apiErr := &APIError{
			StatusCode: r.StatusCode,
			ErrorClass: errClass,
			Message:    readErrorBody(r),
		}
		return errClass, apiErr
	})
	if err != nil {
		return nil, err
	}

	// Step 4: 304 Not Modified - serve the revalidated entry
	if resp.StatusCode == http.StatusNotModified && cached != nil {
		resp.Body.Close()
		cache.NotModifiedResponses.Inc()
		c.logger.Debug().Str("endpoint", endpoint).Msg("304 Not Modified - using cache")

		probe := &cache.Entry{}
		if fresh, err := cache.ResponseToEntry(&http.Response{Header: resp.Header, Body: http.NoBody}, c.config.CacheTTL); err == nil {
			probe = fresh
		}
		if err := c.cache.Refresh(ctx, cacheKey, cached, probe.Expires); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to refresh cache entry")
		}
		return cache.EntryToResponse(cached, req), nil
	}

	// Step 5: Store successful GET responses
	if cacheable && resp.StatusCode == http.StatusOK {
		entry, err := cache.ResponseToEntry(resp, c.config.CacheTTL)
		switch {
		case errors.Is(err, cache.ErrNotCacheable):
		case err != nil:
			c.logger.Warn().Err(err).Msg("Failed to create cache entry")
		default:
			if err := c.cache.Set(ctx, cacheKey, entry); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to cache response")
			} else {
				c.logger.Debug().
					Str("endpoint", endpoint).
					Dur("ttl", entry.TTL()).
					Msg("Cached response")
			}
		}
	}

	return resp, nil
}

// readErrorBody drains and closes an error response, keeping a prefix of
// the body as the error message.
func readErrorBody(resp *http.Response) string {
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(data))
	if msg == "" {
		msg = resp.Status
	}
	return msg
}

// DecodeJSON decodes a JSON response body into v and closes the body.
// Responses with status >= 400 become *APIError.
func DecodeJSON(resp *http.Response, v any) error {
	if resp == nil {
		return fmt.Errorf("nil response")
	}
	if resp.StatusCode >= 400 {
		return &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: classifyStatus(resp.StatusCode),
			Message:    readErrorBody(resp),
		}
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

var idSegment = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)

// EndpointLabel replaces 24-hex-digit identifiers in a path with "{id}" so
// metric labels stay bounded.
func EndpointLabel(path string) string {
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if idSegment.MatchString(p) {
			parts[i] = "{id}"
		}
	}
	return strings.Join(parts, "/")
}

// BaseURL returns the configured service base URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// GetCache returns the cache manager, or nil when caching is disabled.
func (c *Client) GetCache() *cache.Manager {
	return c.cache
}
