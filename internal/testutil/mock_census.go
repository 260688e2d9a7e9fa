// Package testutil provides testing utilities for the popproj connector.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock Census API endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockCensus is a configurable mock Census API server for testing.
type MockCensus struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	RequestCount     int
	ConditionalCount int
	LastQuery        url.Values
}

// NewMockCensus creates a new mock Census API server.
func NewMockCensus() *MockCensus {
	mock := &MockCensus{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastQuery = r.URL.Query()
		if r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "" {
			mock.ConditionalCount++
		}
		mock.mu.Unlock()

		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockCensus) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockCensus) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockCensus) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.ConditionalCount = 0
	m.LastQuery = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockCensus) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockCensus) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}

		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockCensus) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetLastQuery returns the query parameters of the most recent request.
func (m *MockCensus) GetLastQuery() url.Values {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastQuery
}

// defaultHandler answers with a small well-formed popproj payload.
func (m *MockCensus) defaultHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json;charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(PopProjBody(DefaultRows())))
}

// DefaultRows returns a small set of realistic popproj data rows.
// Column order matches PopProjBody: POP, YEAR, RACE, SEX, AGE, us.
func DefaultRows() [][]string {
	return [][]string{
		{"1983961", "1", "1", "1", "0", "1"},
		{"386361", "1", "2", "1", "0", "1"},
		{"45762", "1", "3", "2", "35", "1"},
	}
}

// PopProjBody builds a Census array-of-arrays JSON payload with the standard
// popproj header row followed by the given data rows.
func PopProjBody(rows [][]string) string {
	payload := [][]string{{"POP", "YEAR", "RACE", "SEX", "AGE", "us"}}
	payload = append(payload, rows...)
	data, _ := json.Marshal(payload)
	return string(data)
}

// NewPopProjResponse creates a 200 OK response carrying the given data rows.
func NewPopProjResponse(rows [][]string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       PopProjBody(rows),
		Headers: map[string]string{
			"Content-Type": "application/json;charset=utf-8",
		},
	}
}

// NewCacheableResponse creates a 200 OK response with ETag and Expires
// headers so the client caches and revalidates it.
func NewCacheableResponse(rows [][]string, etag string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       PopProjBody(rows),
		Headers: map[string]string{
			"Content-Type": "application/json;charset=utf-8",
			"ETag":         etag,
			"Expires":      time.Now().Add(5 * time.Minute).Format(http.TimeFormat),
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "Rate limit exceeded"}`,
		Headers: map[string]string{
			"Content-Type": "application/json;charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json;charset=utf-8",
		},
	}
}

// NewMalformedResponse creates a 200 OK response with a body that is not a
// valid array-of-arrays payload.
func NewMalformedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"not": "an array of arrays"}`,
		Headers: map[string]string{
			"Content-Type": "application/json;charset=utf-8",
		},
	}
}
