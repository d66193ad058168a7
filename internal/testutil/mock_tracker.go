// Package testutil provides testing utilities for the issuedeck packages.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// TrackerIssue is the wire shape the mock tracker serves for one issue.
type TrackerIssue struct {
	Key      string
	Summary  string
	Type     string
	Status   string
	Resolved bool
}

// MockResponse defines the behavior for a canned endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockTracker is a configurable mock issue tracker for testing. It serves
// paginated /search responses over a per-project issue set and supports
// canned responses and custom handlers for any path.
type MockTracker struct {
	server   *httptest.Server
	mu       sync.RWMutex
	projects map[string][]TrackerIssue
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	RequestCount  int
	SearchOffsets []int
	LastAuth      string
}

// NewMockTracker creates a new mock tracker server.
func NewMockTracker() *MockTracker {
	mock := &MockTracker{
		projects: make(map[string][]TrackerIssue),
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastAuth = r.Header.Get("Authorization")
		mock.mu.Unlock()

		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		if r.URL.Path == "/search" {
			mock.searchHandler(w, r)
			return
		}

		if key, ok := strings.CutPrefix(r.URL.Path, "/issue/"); ok && !strings.Contains(key, "/") {
			mock.issueHandler(w, key)
			return
		}

		http.NotFound(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockTracker) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockTracker) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockTracker) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.SearchOffsets = nil
	m.LastAuth = ""
}

// SetProject installs the issue set served for a project key.
func (m *MockTracker) SetProject(projectKey string, issues []TrackerIssue) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[projectKey] = issues
}

// GenerateIssues builds n sequentially keyed issues for a project.
func GenerateIssues(projectKey string, n int) []TrackerIssue {
	issues := make([]TrackerIssue, n)
	for i := range issues {
		issues[i] = TrackerIssue{
			Key:     fmt.Sprintf("%s-%d", projectKey, i+1),
			Summary: fmt.Sprintf("Issue number %d", i+1),
			Type:    "Task",
			Status:  "Open",
		}
	}
	return issues
}

// SetHandler sets a custom handler for a specific path.
func (m *MockTracker) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a canned response for a path.
func (m *MockTracker) SetResponse(path string, resp MockResponse) {
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
func (m *MockTracker) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetSearchOffsets returns the startAt offsets of paginated search requests
// in arrival order.
func (m *MockTracker) GetSearchOffsets() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]int(nil), m.SearchOffsets...)
}

var projectJQL = regexp.MustCompile(`^project=(\S+)$`)
var keysJQL = regexp.MustCompile(`^key in \((.+)\)$`)

// searchHandler serves paginated search results over the configured issues.
func (m *MockTracker) searchHandler(w http.ResponseWriter, r *http.Request) {
	jql := r.URL.Query().Get("jql")
	startAt, _ := strconv.Atoi(r.URL.Query().Get("startAt"))
	maxResults := 50
	if s := r.URL.Query().Get("maxResults"); s != "" {
		maxResults, _ = strconv.Atoi(s)
	}

	var matched []TrackerIssue
	switch {
	case projectJQL.MatchString(jql):
		projectKey := projectJQL.FindStringSubmatch(jql)[1]
		m.mu.Lock()
		issues, ok := m.projects[projectKey]
		m.SearchOffsets = append(m.SearchOffsets, startAt)
		m.mu.Unlock()
		if !ok {
			writeError(w, http.StatusBadRequest, "project does not exist")
			return
		}
		matched = issues
	case keysJQL.MatchString(jql):
		wanted := strings.Split(keysJQL.FindStringSubmatch(jql)[1], ",")
		m.mu.RLock()
		all := make(map[string]TrackerIssue)
		for _, issues := range m.projects {
			for _, issue := range issues {
				all[issue.Key] = issue
			}
		}
		m.mu.RUnlock()
		for _, key := range wanted {
			issue, ok := all[strings.TrimSpace(key)]
			if !ok {
				// The tracker rejects bulk lookups containing deleted keys.
				writeError(w, http.StatusBadRequest, "issue does not exist")
				return
			}
			matched = append(matched, issue)
		}
	default:
		matched = nil
	}

	total := len(matched)
	if startAt > total {
		startAt = total
	}
	end := startAt + maxResults
	if end > total {
		end = total
	}

	page := make([]map[string]any, 0, end-startAt)
	for _, issue := range matched[startAt:end] {
		page = append(page, wireIssue(issue))
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	json.NewEncoder(w).Encode(map[string]any{
		"total":  total,
		"issues": page,
	})
}

// issueHandler serves a single issue from the configured project data, 404
// when the key is unknown to any project.
func (m *MockTracker) issueHandler(w http.ResponseWriter, key string) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, issues := range m.projects {
		for _, issue := range issues {
			if issue.Key == key {
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				json.NewEncoder(w).Encode(wireIssue(issue))
				return
			}
		}
	}
	writeError(w, http.StatusNotFound, "issue does not exist")
}

// wireIssue renders an issue in the tracker's wire shape.
func wireIssue(issue TrackerIssue) map[string]any {
	var resolution any
	if issue.Resolved {
		resolution = map[string]string{"name": "Done"}
	}
	return map[string]any{
		"key": issue.Key,
		"fields": map[string]any{
			"summary":     issue.Summary,
			"description": "",
			"issuetype":   map[string]string{"name": issue.Type},
			"status":      map[string]string{"name": issue.Status},
			"resolution":  resolution,
		},
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"errorMessages": [%q]}`, msg)
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse(retryAfter int) MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "rate limit exceeded"}`,
		Headers: map[string]string{
			"Retry-After":  strconv.Itoa(retryAfter),
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "internal server error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}
