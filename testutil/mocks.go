// Package testutil provides test doubles for the Discord REST API.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"sync"
	"testing"
)

var apiPrefix = regexp.MustCompile(`^/api/v\d+`)

// MockDiscordServer creates a test server that mocks Discord REST responses.
// Handlers are keyed by path with the /api/vN prefix removed, e.g.
// "/channels/123/messages".
type MockDiscordServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc

	mu       sync.Mutex
	requests []*http.Request
}

// NewMockDiscordServer creates a new mock Discord API server
func NewMockDiscordServer(t *testing.T) *MockDiscordServer {
	t.Helper()
	m := &MockDiscordServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.requests = append(m.requests, r.Clone(r.Context()))
		m.mu.Unlock()
		key := apiPrefix.ReplaceAllString(r.URL.Path, "")
		if handler, ok := m.Handlers[key]; ok {
			handler(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message": "Unknown Channel", "code": 10003}`))
	}))
	t.Cleanup(m.Close)
	return m
}

// Requests returns the requests received so far.
func (m *MockDiscordServer) Requests() []*http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*http.Request(nil), m.requests...)
}

// HTTPClient returns a client that sends every request, whatever its host,
// to the mock server.
func (m *MockDiscordServer) HTTPClient() *http.Client {
	target, _ := url.Parse(m.URL)
	return &http.Client{Transport: rewriteTransport{target: target, next: http.DefaultTransport}}
}

type rewriteTransport struct {
	target *url.URL
	next   http.RoundTripper
}

func (rt rewriteTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.URL.Scheme = rt.target.Scheme
	r.URL.Host = rt.target.Host
	r.Host = rt.target.Host
	return rt.next.RoundTrip(r)
}

// MockJSON adds a handler responding with body encoded as JSON.
func (m *MockDiscordServer) MockJSON(path string, body interface{}) {
	m.Handlers[path] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body) //nolint:errcheck // test mock response
	}
}

// MockChannel adds a handler for /channels/{id}.
func (m *MockDiscordServer) MockChannel(id, name, guildID string, channelType int) {
	m.MockJSON("/channels/"+id, map[string]interface{}{
		"id":       id,
		"name":     name,
		"guild_id": guildID,
		"type":     channelType,
	})
}

// MockGuild adds a handler for /guilds/{id}.
func (m *MockDiscordServer) MockGuild(id, name string) {
	m.MockJSON("/guilds/"+id, map[string]interface{}{"id": id, "name": name})
}

// MockStatus adds a handler answering path with status and a Discord error body.
func (m *MockDiscordServer) MockStatus(path string, status int) {
	m.Handlers[path] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"message": "Missing Access", "code": 50001}`))
	}
}
