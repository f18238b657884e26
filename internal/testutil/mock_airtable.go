// Package testutil provides a mock backing data source for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
)

// RecordedRequest is one call received by the mock.
type RecordedRequest struct {
	Method   string
	Path     string
	RawQuery string
	Header   http.Header
	Body     []byte
}

// MockAirtable is a configurable mock of the backing data source.
// Tables are served as cursor-linked pages under "/{base}/{table}".
type MockAirtable struct {
	server *httptest.Server
	mu     sync.RWMutex

	handlers map[string]http.HandlerFunc
	pages    map[string][][]json.RawMessage
	failures map[string]failure

	requests []RecordedRequest
}

type failure struct {
	page   int
	status int
	body   string
}

// NewMockAirtable starts a mock server.
func NewMockAirtable() *MockAirtable {
	mock := &MockAirtable{
		handlers: make(map[string]http.HandlerFunc),
		pages:    make(map[string][][]json.RawMessage),
		failures: make(map[string]failure),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		mock.mu.Lock()
		mock.requests = append(mock.requests, RecordedRequest{
			Method:   r.Method,
			Path:     r.URL.Path,
			RawQuery: r.URL.RawQuery,
			Header:   r.Header.Clone(),
			Body:     body,
		})
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockAirtable) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockAirtable) Close() {
	m.server.Close()
}

// Reset clears recorded requests.
func (m *MockAirtable) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
}

// SetHandler sets a custom handler for an exact decoded path.
func (m *MockAirtable) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetPages serves records for a decoded table path (e.g. "/app1/Leave Requests")
// split into the given pages.
func (m *MockAirtable) SetPages(path string, pages ...[]json.RawMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[path] = pages
}

// FailPage makes the given 1-based page of path answer with status and body.
func (m *MockAirtable) FailPage(path string, page, status int, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[path] = failure{page: page, status: status, body: body}
}

// Requests returns a copy of the recorded requests.
func (m *MockAirtable) Requests() []RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]RecordedRequest(nil), m.requests...)
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockAirtable) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// Records builds n records with ids "{prefix}{i}".
func Records(prefix string, n int) []json.RawMessage {
	out := make([]json.RawMessage, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, json.RawMessage(fmt.Sprintf(`{"id":"%s%d","fields":{}}`, prefix, i)))
	}
	return out
}

// defaultHandler serves configured pages using "page-N" cursors.
func (m *MockAirtable) defaultHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	m.mu.RLock()
	pages, ok := m.pages[r.URL.Path]
	fail, failing := m.failures[r.URL.Path]
	m.mu.RUnlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"NOT_FOUND"}`))
		return
	}

	index := 0
	if offset := r.URL.Query().Get("offset"); offset != "" {
		n, err := strconv.Atoi(strings.TrimPrefix(offset, "page-"))
		if err != nil || !strings.HasPrefix(offset, "page-") || n < 0 || n >= len(pages) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"error":{"type":"LIST_RECORDS_ITERATOR_NOT_AVAILABLE"}}`))
			return
		}
		index = n
	}

	if failing && fail.page == index+1 {
		w.WriteHeader(fail.status)
		_, _ = w.Write([]byte(fail.body))
		return
	}

	resp := struct {
		Records []json.RawMessage `json:"records"`
		Offset  string            `json:"offset,omitempty"`
	}{Records: []json.RawMessage{}}
	if index < len(pages) {
		resp.Records = append(resp.Records, pages[index]...)
	}
	if index+1 < len(pages) {
		resp.Offset = fmt.Sprintf("page-%d", index+1)
	}

	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}
