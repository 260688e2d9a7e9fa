package census

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/censtats/popproj-connector/internal/testutil"
	"github.com/redis/go-redis/v9"
)

// setupTestRedis creates a test Redis client.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

// newTestClient builds a client pointed at the mock Census server.
func newTestClient(t *testing.T, redisClient *redis.Client, mock *testutil.MockCensus) *Client {
	t.Helper()

	cfg := DefaultConfig(redisClient, "test-api-key")
	cfg.BaseURL = mock.URL()
	client, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestNew_Validation(t *testing.T) {
	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer redisClient.Close()

	tests := []struct {
		name        string
		config      Config
		expectError bool
		errorMsg    string
	}{
		{
			name:        "valid config",
			config:      DefaultConfig(redisClient, "test-key"),
			expectError: false,
		},
		{
			name: "nil redis",
			config: Config{
				APIKey:    "test-key",
				UserAgent: "test/1.0",
			},
			expectError: true,
			errorMsg:    "redis client is required",
		},
		{
			name: "missing api key",
			config: Config{
				Redis:     redisClient,
				UserAgent: "test/1.0",
			},
			expectError: true,
			errorMsg:    "api key is required",
		},
		{
			name: "missing user agent",
			config: Config{
				Redis:  redisClient,
				APIKey: "test-key",
			},
			expectError: true,
			errorMsg:    "user-agent is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.config)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got nil")
					return
				}
				if tt.errorMsg != "" && err.Error() != tt.errorMsg {
					t.Errorf("Error message = %q, want %q", err.Error(), tt.errorMsg)
				}
			} else {
				if err != nil {
					t.Errorf("Unexpected error: %v", err)
					return
				}
				if client == nil {
					t.Error("Client is nil")
				}
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer redisClient.Close()

	cfg := DefaultConfig(redisClient, "test-key")

	if cfg.BaseURL != DefaultBaseURL {
		t.Errorf("BaseURL = %q, want %q", cfg.BaseURL, DefaultBaseURL)
	}
	if cfg.Dataset != DefaultDataset {
		t.Errorf("Dataset = %q, want %q", cfg.Dataset, DefaultDataset)
	}
	if cfg.APIKey != "test-key" {
		t.Errorf("APIKey = %q, want test-key", cfg.APIKey)
	}
	if cfg.DailyQuota <= 0 {
		t.Errorf("DailyQuota = %d, should be > 0", cfg.DailyQuota)
	}
	if cfg.HTTPTimeout <= 0 {
		t.Errorf("HTTPTimeout = %v, should be > 0", cfg.HTTPTimeout)
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		err        error
		expected   ErrorClass
	}{
		{"network error", 0, errors.New("connection refused"), ErrorClassNetwork},
		{"client error 400", 400, nil, ErrorClassClient},
		{"client error 404", 404, nil, ErrorClassClient},
		{"rate limit 429", 429, nil, ErrorClassRateLimit},
		{"server error 500", 500, nil, ErrorClassServer},
		{"server error 503", 503, nil, ErrorClassServer},
		{"success 200", 200, nil, ErrorClass("")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp *http.Response
			if tt.err == nil {
				resp = &http.Response{StatusCode: tt.statusCode}
			}
			result := classifyError(resp, tt.err)
			if result != tt.expected {
				t.Errorf("classifyError() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestBuildURL(t *testing.T) {
	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer redisClient.Close()

	cfg := DefaultConfig(redisClient, "secret-key")
	client, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	t.Run("unfiltered", func(t *testing.T) {
		u := client.BuildURL(nil)

		parsed, err := url.Parse(u)
		if err != nil {
			t.Fatalf("BuildURL produced invalid URL: %v", err)
		}
		if parsed.Path != DefaultDataset {
			t.Errorf("path = %q, want %q", parsed.Path, DefaultDataset)
		}

		q := parsed.Query()
		if q.Get("get") != "POP,YEAR,RACE,SEX,AGE" {
			t.Errorf("get = %q, want fixed field list", q.Get("get"))
		}
		if q.Get("for") != "us:*" {
			t.Errorf("for = %q, want us:*", q.Get("for"))
		}
		if q.Get("key") != "secret-key" {
			t.Errorf("key = %q, want secret-key", q.Get("key"))
		}
	})

	t.Run("with demographic filter", func(t *testing.T) {
		filter := url.Values{"RACE": []string{"2"}, "SEX": []string{"1"}}
		u := client.BuildURL(filter)

		parsed, _ := url.Parse(u)
		q := parsed.Query()
		if q.Get("RACE") != "2" {
			t.Errorf("RACE = %q, want 2", q.Get("RACE"))
		}
		if q.Get("SEX") != "1" {
			t.Errorf("SEX = %q, want 1", q.Get("SEX"))
		}
	})
}

func TestFetchProjections(t *testing.T) {
	redisClient := setupTestRedis(t)

	mock := testutil.NewMockCensus()
	defer mock.Close()

	client := newTestClient(t, redisClient, mock)

	projections, err := client.FetchProjections(context.Background(), nil)
	if err != nil {
		t.Fatalf("FetchProjections failed: %v", err)
	}

	// Default mock payload: 3 data rows after the header.
	if len(projections) != 3 {
		t.Errorf("projection count = %d, want 3", len(projections))
	}

	if projections[1].Race != "Black" {
		t.Errorf("Race = %q, want Black", projections[1].Race)
	}

	// The API key must reach the server.
	if got := mock.GetLastQuery().Get("key"); got != "test-api-key" {
		t.Errorf("key param = %q, want test-api-key", got)
	}
}

func TestFetchProjections_ClientErrorNotRetried(t *testing.T) {
	redisClient := setupTestRedis(t)

	mock := testutil.NewMockCensus()
	defer mock.Close()
	mock.SetResponse(DefaultDataset, testutil.MockResponse{
		StatusCode: 404,
		Body:       "error: unknown dataset",
	})

	client := newTestClient(t, redisClient, mock)

	_, err := client.FetchProjections(context.Background(), nil)
	if err == nil {
		t.Fatal("FetchProjections should fail for 404")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want APIError", err)
	}
	if apiErr.ErrorClass != ErrorClassClient {
		t.Errorf("ErrorClass = %q, want client", apiErr.ErrorClass)
	}

	if mock.GetRequestCount() != 1 {
		t.Errorf("requests = %d, want 1 (no retry for 4xx)", mock.GetRequestCount())
	}
}

func TestFetchProjections_RetriesServerError(t *testing.T) {
	redisClient := setupTestRedis(t)

	mock := testutil.NewMockCensus()
	defer mock.Close()

	// Fail twice, then succeed.
	attempts := 0
	mock.SetHandler(DefaultDataset, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json;charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(testutil.PopProjBody(testutil.DefaultRows())))
	})

	client := newTestClient(t, redisClient, mock)

	projections, err := client.FetchProjections(context.Background(), nil)
	if err != nil {
		t.Fatalf("FetchProjections failed: %v", err)
	}
	if len(projections) != 3 {
		t.Errorf("projection count = %d, want 3", len(projections))
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3 (2 retries)", attempts)
	}
}

func TestFetchProjections_MalformedBody(t *testing.T) {
	redisClient := setupTestRedis(t)

	mock := testutil.NewMockCensus()
	defer mock.Close()
	mock.SetResponse(DefaultDataset, testutil.NewMalformedResponse())

	client := newTestClient(t, redisClient, mock)

	_, err := client.FetchProjections(context.Background(), nil)
	if err == nil {
		t.Fatal("FetchProjections should fail for malformed body")
	}
	if !strings.Contains(err.Error(), "unmarshal") {
		t.Errorf("error = %v, want unmarshal failure", err)
	}
}

func TestDo_QuotaBlock(t *testing.T) {
	redisClient := setupTestRedis(t)

	mock := testutil.NewMockCensus()
	defer mock.Close()

	cfg := DefaultConfig(redisClient, "test-api-key")
	cfg.BaseURL = mock.URL()
	cfg.DailyQuota = 5
	client, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	// Exhaust today's budget.
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := client.quota.Record(ctx); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	_, err = client.FetchProjections(ctx, nil)
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Errorf("error = %v, want ErrQuotaExceeded", err)
	}
	if mock.GetRequestCount() != 0 {
		t.Errorf("requests = %d, want 0 (blocked before the wire)", mock.GetRequestCount())
	}
}

func TestDo_ServesFreshResponseFromCache(t *testing.T) {
	redisClient := setupTestRedis(t)

	mock := testutil.NewMockCensus()
	defer mock.Close()
	// No ETag: the entry has no validators, so a fresh entry is served
	// straight from cache without touching the API.
	mock.SetResponse(DefaultDataset, testutil.MockResponse{
		StatusCode: 200,
		Body:       testutil.PopProjBody(testutil.DefaultRows()),
		Headers: map[string]string{
			"Content-Type": "application/json;charset=utf-8",
			"Expires":      time.Now().Add(5 * time.Minute).UTC().Format(http.TimeFormat),
		},
	})

	client := newTestClient(t, redisClient, mock)
	ctx := context.Background()

	if _, err := client.FetchProjections(ctx, nil); err != nil {
		t.Fatalf("first fetch failed: %v", err)
	}
	if _, err := client.FetchProjections(ctx, nil); err != nil {
		t.Fatalf("second fetch failed: %v", err)
	}

	if mock.GetRequestCount() != 1 {
		t.Errorf("requests = %d, want 1 (second served from cache)", mock.GetRequestCount())
	}
}

func TestDo_ConditionalRequestOn304(t *testing.T) {
	redisClient := setupTestRedis(t)

	mock := testutil.NewMockCensus()
	defer mock.Close()

	etag := `"popproj-v1"`
	body := testutil.PopProjBody(testutil.DefaultRows())
	mock.SetHandler(DefaultDataset, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("Content-Type", "application/json;charset=utf-8")
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(body))
	})

	client := newTestClient(t, redisClient, mock)
	ctx := context.Background()

	first, err := client.FetchProjections(ctx, nil)
	if err != nil {
		t.Fatalf("first fetch failed: %v", err)
	}

	second, err := client.FetchProjections(ctx, nil)
	if err != nil {
		t.Fatalf("second fetch failed: %v", err)
	}

	if len(first) != len(second) {
		t.Errorf("revalidated fetch returned %d records, want %d", len(second), len(first))
	}
	if mock.ConditionalCount == 0 {
		t.Error("expected a conditional request with If-None-Match")
	}
}

func TestRedactKey(t *testing.T) {
	u := "https://api.census.gov/data/2017/popproj/pop?get=POP&key=super-secret"
	got := redactKey(u, "super-secret")
	if strings.Contains(got, "super-secret") {
		t.Errorf("redactKey left the key visible: %q", got)
	}
	if !strings.Contains(got, "REDACTED") {
		t.Errorf("redactKey output = %q, want REDACTED marker", got)
	}
}
