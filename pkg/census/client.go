// Package census provides the Census API HTTP client with response caching,
// daily quota gating, retry logic and typed decoding of the popproj dataset.
package census

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/censtats/popproj-connector/pkg/cache"
	"github.com/censtats/popproj-connector/pkg/quota"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for Census client operations.
var (
	censusRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "census_requests_total",
		Help: "Total Census API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	censusRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "census_request_duration_seconds",
		Help:    "Census API request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"endpoint"})

	censusErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "census_errors_total",
		Help: "Total Census API errors by class",
	}, []string{"class"})
)

// DefaultBaseURL is the public Census API host.
const DefaultBaseURL = "https://api.census.gov"

// DefaultDataset is the 2017 population projections dataset path.
const DefaultDataset = "/data/2017/popproj/pop"

// getFields is the fixed field list requested from the popproj dataset.
const getFields = "POP,YEAR,RACE,SEX,AGE"

// geoFilter requests all US-level rows.
const geoFilter = "us:*"

// Client is the Census API client.
type Client struct {
	httpClient *http.Client
	redis      *redis.Client
	quota      *quota.Tracker
	cache      *cache.Manager
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// Redis client for response caching and quota state
	Redis *redis.Client

	// BaseURL of the Census API (default: https://api.census.gov)
	BaseURL string

	// Dataset path (default: /data/2017/popproj/pop)
	Dataset string

	// APIKey is the Census API key appended to every request
	APIKey string

	// UserAgent header sent with every request
	UserAgent string

	// DailyQuota is the request budget per UTC day (Census enforces 500/day)
	DailyQuota int

	// CacheTTL is the fallback cache TTL when the response has no expires header
	CacheTTL time.Duration

	// HTTPTimeout bounds each individual request
	HTTPTimeout time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(redisClient *redis.Client, apiKey string) Config {
	return Config{
		Redis:       redisClient,
		BaseURL:     DefaultBaseURL,
		Dataset:     DefaultDataset,
		APIKey:      apiKey,
		UserAgent:   "popproj-connector/0.1.0",
		DailyQuota:  quota.DefaultDailyLimit,
		CacheTTL:    cache.DefaultTTL,
		HTTPTimeout: 30 * time.Second,
	}
}

// New creates a new Census API client.
func New(cfg Config) (*Client, error) {
	if cfg.Redis == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Dataset == "" {
		cfg.Dataset = DefaultDataset
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.DailyQuota <= 0 {
		cfg.DailyQuota = quota.DefaultDailyLimit
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}

	logger := log.With().Str("component", "census-client").Logger()

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
		redis:  cfg.Redis,
		quota:  quota.NewTracker(cfg.Redis, cfg.DailyQuota, logger),
		cache:  cache.NewManager(cfg.Redis),
		config: cfg,
		logger: logger,
	}, nil
}

// Do performs an HTTP request with quota gating, caching, and error handling.
// This is the core request method that orchestrates all client features.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	endpoint := req.URL.Path

	startTime := time.Now()
	defer func() {
		censusRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	// Step 1: Check daily quota
	allowed, err := c.quota.Allow(ctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("Quota check failed")
		return nil, fmt.Errorf("quota check: %w", err)
	}
	if !allowed {
		c.logger.Warn().
			Str("endpoint", endpoint).
			Msg("Request blocked by daily quota")
		censusRequestsTotal.WithLabelValues(endpoint, "quota_blocked").Inc()
		return nil, ErrQuotaExceeded
	}

	// Step 2: Check cache
	cacheKey := cache.Key{
		Endpoint:    endpoint,
		QueryParams: req.URL.Query(),
	}

	cachedEntry, err := c.cache.Get(ctx, cacheKey)
	if err != nil && err != cache.ErrCacheMiss {
		c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Cache get error")
	}

	// Fresh cache entry: serve it without touching the API at all.
	if cachedEntry != nil && !cachedEntry.IsExpired() && !cache.ShouldMakeConditionalRequest(cachedEntry) {
		c.logger.Debug().
			Str("endpoint", endpoint).
			Msg("Serving response from cache")
		censusRequestsTotal.WithLabelValues(endpoint, "cache_hit").Inc()
		return cache.EntryToResponse(cachedEntry), nil
	}

	// Step 3: Make conditional request if the cached entry supports it
	if cachedEntry != nil && cache.ShouldMakeConditionalRequest(cachedEntry) {
		cache.AddConditionalHeaders(req, cachedEntry)
		cache.ConditionalRequestsSent.Inc()
		c.logger.Debug().
			Str("endpoint", endpoint).
			Str("etag", cachedEntry.ETag).
			Msg("Making conditional request")
	}

	// Step 4: Set request headers
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	// Step 5: Execute HTTP request with retry logic
	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", req.Method).
		Msg("Executing Census API request")

	var resp *http.Response
	var errClass ErrorClass

	retryErr := retryWithBackoff(ctx, func() error {
		var reqErr error
		resp, reqErr = c.httpClient.Do(req)

		// Every outbound attempt counts against the daily quota.
		if recErr := c.quota.Record(ctx); recErr != nil {
			c.logger.Warn().Err(recErr).Msg("Failed to record quota usage")
		}

		// Handle network errors
		if reqErr != nil {
			c.logger.Error().Err(reqErr).Str("endpoint", endpoint).Msg("HTTP request failed")
			errClass = classifyError(nil, reqErr)
			censusErrorsTotal.WithLabelValues(string(errClass)).Inc()
			censusRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			return reqErr
		}

		// Handle 304 Not Modified (not an error, return success)
		if resp.StatusCode == http.StatusNotModified {
			return nil
		}

		// Handle HTTP errors
		if resp.StatusCode >= 400 {
			errClass = classifyError(resp, nil)
			censusErrorsTotal.WithLabelValues(string(errClass)).Inc()
			censusRequestsTotal.WithLabelValues(endpoint, fmt.Sprintf("%d", resp.StatusCode)).Inc()

			c.logger.Warn().
				Str("endpoint", endpoint).
				Int("status", resp.StatusCode).
				Str("error_class", string(errClass)).
				Msg("Census API request error")

			apiErr := &APIError{
				StatusCode: resp.StatusCode,
				ErrorClass: errClass,
				Message:    resp.Status,
			}
			resp.Body.Close()
			return apiErr
		}

		// Success
		censusRequestsTotal.WithLabelValues(endpoint, fmt.Sprintf("%d", resp.StatusCode)).Inc()
		return nil
	}, func(err error) ErrorClass {
		return errClass
	})

	if retryErr != nil {
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		return nil, retryErr
	}

	// Step 6: Handle 304 Not Modified
	if resp.StatusCode == http.StatusNotModified {
		c.logger.Debug().Str("endpoint", endpoint).Msg("304 Not Modified - using cache")
		censusRequestsTotal.WithLabelValues(endpoint, "304").Inc()
		cache.NotModifiedResponses.Inc()

		// Update cache TTL from new expires header
		if expiresStr := resp.Header.Get("Expires"); expiresStr != "" {
			if newExpires, err := http.ParseTime(expiresStr); err == nil {
				if err := c.cache.UpdateTTL(ctx, cacheKey, newExpires); err != nil {
					c.logger.Warn().Err(err).Msg("Failed to update cache TTL")
				}
			}
		}

		resp.Body.Close()
		return cache.EntryToResponse(cachedEntry), nil
	}

	// Step 7: Update cache on success
	if resp.StatusCode == http.StatusOK {
		entry, err := cache.ResponseToEntry(resp, c.config.CacheTTL)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Failed to create cache entry")
		} else if entry.TTL() > 0 {
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

// classifyError categorizes an error for observability and retry handling.
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

// BuildURL composes the dataset request URL with the fixed field list, the
// US-level geography filter, the API key, and any extra demographic filter
// parameters.
func (c *Client) BuildURL(filter url.Values) string {
	q := url.Values{}
	q.Set("get", getFields)
	q.Set("for", geoFilter)
	q.Set("key", c.config.APIKey)

	for name, values := range filter {
		for _, v := range values {
			q.Add(name, v)
		}
	}

	return c.config.BaseURL + c.config.Dataset + "?" + q.Encode()
}

// Get performs a GET request against the configured dataset.
// filter may be nil for an unfiltered fetch.
func (c *Client) Get(ctx context.Context, filter url.Values) (*http.Response, error) {
	fullURL := c.BuildURL(filter)

	c.logger.Debug().Str("url", redactKey(fullURL, c.config.APIKey)).Msg("Requesting URL")

	req, err := http.NewRequestWithContext(ctx, "GET", fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	return c.Do(req)
}

// FetchProjections fetches the dataset, parses the array-of-arrays payload
// and decodes it into normalized projection records.
func (c *Client) FetchProjections(ctx context.Context, filter url.Values) ([]Projection, error) {
	resp, err := c.Get(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: classifyError(resp, nil),
			Message:    resp.Status,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	table, err := ParseTable(body)
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Int("rows", len(table.Rows)).
		Msg("Received census data rows")

	return table.DecodeProjections()
}

// Close closes the client and releases resources.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// GetCache returns the cache manager (for testing).
func (c *Client) GetCache() *cache.Manager {
	return c.cache
}

// redactKey masks the API key in a URL for logging.
func redactKey(u, key string) string {
	if key == "" {
		return u
	}
	parsed, err := url.Parse(u)
	if err != nil {
		return u
	}
	q := parsed.Query()
	if q.Get("key") != "" {
		q.Set("key", "REDACTED")
		parsed.RawQuery = q.Encode()
	}
	return parsed.String()
}
