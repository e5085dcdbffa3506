// Package testutil provides a configurable fake of the document service
// for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// RecordedRequest is a request observed by the mock.
type RecordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   []byte
	Header http.Header
}

// MockService is a configurable mock of the document service.
type MockService struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
	requests []RecordedRequest
}

// NewMockService starts a new mock server.
func NewMockService() *MockService {
	mock := &MockService{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body.Close()
		r.Body = io.NopCloser(strings.NewReader(string(body)))

		mock.mu.Lock()
		mock.requests = append(mock.requests, RecordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Body:   body,
			Header: r.Header.Clone(),
		})
		handler, exists := mock.handlers[r.Method+" "+r.URL.Path]
		if !exists {
			handler, exists = mock.handlers[r.URL.Path]
		}
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, `{"message":"no handler for %s %s"}`, r.Method, r.URL.Path)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockService) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockService) Close() {
	m.server.Close()
}

// Reset clears recorded requests.
func (m *MockService) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
}

// SetHandler sets a handler for a path, optionally prefixed by a method
// ("POST /api/documents/search").
func (m *MockService) SetHandler(pattern string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[pattern] = handler
}

// SetResponse configures a fixed response for a pattern.
func (m *MockService) SetResponse(pattern string, resp MockResponse) {
	m.SetHandler(pattern, func(w http.ResponseWriter, r *http.Request) {
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

// SetSequence serves the given responses in order; the last one repeats.
func (m *MockService) SetSequence(pattern string, responses ...MockResponse) {
	var (
		mu   sync.Mutex
		next int
	)
	m.SetHandler(pattern, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		resp := responses[next]
		if next < len(responses)-1 {
			next++
		}
		mu.Unlock()

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetJSON serves v as a 200 JSON response.
func (m *MockService) SetJSON(pattern string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	m.SetResponse(pattern, NewJSONResponse(string(data)))
}

// Requests returns a copy of the recorded requests.
func (m *MockService) Requests() []RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]RecordedRequest(nil), m.requests...)
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockService) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// CountPath returns the number of requests made to path.
func (m *MockService) CountPath(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, r := range m.requests {
		if r.Path == path {
			n++
		}
	}
	return n
}

// FeaturesPath returns the feature-list path of an element.
func FeaturesPath(did, wid, eid string) string {
	return fmt.Sprintf("/api/partstudios/d/%s/w/%s/e/%s/features", did, wid, eid)
}

// BoundingBoxPath returns the bounding-box path of an element.
func BoundingBoxPath(did, wid, eid string) string {
	return fmt.Sprintf("/api/partstudios/d/%s/w/%s/e/%s/boundingboxes", did, wid, eid)
}

// Feature is a minimal feature entry for FeatureListJSON.
type Feature struct {
	ID         string
	Type       string
	Name       string
	Suppressed bool
}

// FeatureListJSON renders a feature-list payload.
func FeatureListJSON(features ...Feature) string {
	type message struct {
		FeatureType string `json:"featureType"`
		FeatureID   string `json:"featureId"`
		Name        string `json:"name"`
		Suppressed  bool   `json:"suppressed"`
		Parameters  []any  `json:"parameters"`
	}
	type entry struct {
		Type     int     `json:"type"`
		TypeName string  `json:"typeName"`
		Message  message `json:"message"`
	}

	list := struct {
		Features []entry `json:"features"`
	}{Features: []entry{}}
	for _, f := range features {
		list.Features = append(list.Features, entry{
			Type:     134,
			TypeName: "BTMFeature",
			Message: message{
				FeatureType: f.Type,
				FeatureID:   f.ID,
				Name:        f.Name,
				Suppressed:  f.Suppressed,
				Parameters:  []any{},
			},
		})
	}

	data, _ := json.Marshal(list)
	return string(data)
}

// BoundingBoxJSON renders a bounding-box payload.
func BoundingBoxJSON(lowX, lowY, lowZ, highX, highY, highZ float64) string {
	return fmt.Sprintf(`{"lowX":%g,"lowY":%g,"lowZ":%g,"highX":%g,"highY":%g,"highZ":%g}`,
		lowX, lowY, lowZ, highX, highY, highZ)
}

// NewJSONResponse creates a standard 200 OK JSON response.
func NewJSONResponse(data string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       data,
		Headers: map[string]string{
			"Content-Type":           "application/json;charset=UTF-8",
			"X-Rate-Limit-Remaining": "100",
		},
	}
}

// NewCacheableResponse creates a 200 OK response with an ETag and max-age.
func NewCacheableResponse(data, etag string, maxAge time.Duration) MockResponse {
	resp := NewJSONResponse(data)
	resp.Headers["ETag"] = etag
	resp.Headers["Cache-Control"] = fmt.Sprintf("private, max-age=%d", int(maxAge.Seconds()))
	return resp
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse(retryAfter string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"message":"Too many requests"}`,
		Headers: map[string]string{
			"Content-Type":           "application/json",
			"Retry-After":            retryAfter,
			"X-Rate-Limit-Remaining": "0",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"message":"Internal server error"}`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// NewForbiddenResponse creates a 403 response, as returned for private documents.
func NewForbiddenResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusForbidden,
		Body:       `{"message":"Forbidden"}`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// NewConditionalHandler creates a handler that answers 304 when the
// request's If-None-Match matches etag.
func NewConditionalHandler(etag, data string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")

		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}

		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(data))
	}
}
