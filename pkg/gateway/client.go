// Package gateway provides the REST client for the remote issue tracker,
// with basic auth, rate limit gating, retries and error classification.
// It is the only package that touches the tracker's wire schema; everything
// it returns is normalized.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/issuedeck/issuedeck/pkg/logging"
	"github.com/issuedeck/issuedeck/pkg/ratelimit"
)

// Prometheus metrics for tracker requests.
var (
	trackerRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "issuedeck_tracker_requests_total",
		Help: "Total tracker requests by endpoint and status",
	}, []string{"endpoint", "status"})

	trackerRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "issuedeck_tracker_request_duration_seconds",
		Help:    "Tracker request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	trackerErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "issuedeck_tracker_errors_total",
		Help: "Total tracker errors by class",
	}, []string{"class"})
)

// issueFields is the field set requested for normalized issue records.
const issueFields = "summary,description,issuetype,status,resolution"

// Client is the tracker REST client.
type Client struct {
	httpClient *http.Client
	config     Config
	guard      *ratelimit.Guard
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the tracker REST endpoint, e.g. https://jira.example.com/rest/api/2
	BaseURL string

	// Username and Password for basic auth.
	Username string
	Password string

	// Timeout per HTTP request.
	Timeout time.Duration

	// Retry controls backoff for transient failures.
	Retry RetryConfig
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL, username, password string) Config {
	return Config{
		BaseURL:  baseURL,
		Username: username,
		Password: password,
		Timeout:  30 * time.Second,
		Retry:    DefaultRetryConfig(),
	}
}

// New creates a tracker client. The guard may be nil, in which case no
// shared rate limit gating is applied.
func New(cfg Config, guard *ratelimit.Guard) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.Username == "" {
		return nil, fmt.Errorf("username is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		config: cfg,
		guard:  guard,
		logger: logging.NewLogger("gateway"),
	}, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// do performs one tracker request with rate limit gating, retries and error
// classification, decoding a successful JSON response into out.
func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, body, out any) error {
	startTime := time.Now()
	defer func() {
		trackerRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	if c.guard != nil {
		allowed, err := c.guard.ShouldAllow(ctx)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Rate limit check failed, proceeding")
		} else if !allowed {
			trackerRequestsTotal.WithLabelValues(endpoint, "rate_limited").Inc()
			return ErrRateLimited
		}
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
	}

	var lastClass ErrorClass
	attempt := func() error {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}

		reqURL := strings.TrimRight(c.config.BaseURL, "/") + endpoint
		if len(query) > 0 {
			reqURL += "?" + query.Encode()
		}

		req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.SetBasicAuth(c.config.Username, c.config.Password)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastClass = ErrorClassNetwork
			trackerErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			trackerRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			return &APIError{ErrorClass: ErrorClassNetwork, Message: "request failed", Err: err}
		}
		defer resp.Body.Close()

		if c.guard != nil {
			if err := c.guard.UpdateFromResponse(ctx, resp); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to update rate limit guard")
			}
		}

		trackerRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

		if resp.StatusCode >= 400 {
			lastClass = classifyStatus(resp.StatusCode)
			trackerErrorsTotal.WithLabelValues(string(lastClass)).Inc()
			c.logger.Warn().
				Str("endpoint", endpoint).
				Int("status", resp.StatusCode).
				Str("error_class", string(lastClass)).
				Msg("Tracker request error")
			return &APIError{
				StatusCode: resp.StatusCode,
				ErrorClass: lastClass,
				Message:    resp.Status,
			}
		}

		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			lastClass = ErrorClassServer
			return &APIError{
				StatusCode: resp.StatusCode,
				ErrorClass: ErrorClassServer,
				Message:    "decode response",
				Err:        err,
			}
		}
		return nil
	}

	return retryWithBackoff(ctx, c.config.Retry, attempt, func(error) ErrorClass {
		return lastClass
	})
}

// Total retrieves the current total issue count for a project via a
// zero-result search.
func (c *Client) Total(ctx context.Context, projectKey string) (int, error) {
	query := url.Values{
		"jql":        []string{"project=" + projectKey},
		"maxResults": []string{"0"},
	}

	var resp wireSearchResponse
	if err := c.do(ctx, http.MethodGet, "/search", query, nil, &resp); err != nil {
		return 0, fmt.Errorf("fetch total for %s: %w", projectKey, err)
	}
	return resp.Total, nil
}

// SearchPage fetches one page of a project's issues starting at the given
// offset. Safe to call concurrently for disjoint offsets and idempotent per
// offset; the tracker orders results deterministically for a fixed JQL.
func (c *Client) SearchPage(ctx context.Context, projectKey string, startAt, maxResults int) ([]Issue, error) {
	query := url.Values{
		"jql":        []string{"project=" + projectKey},
		"fields":     []string{issueFields},
		"startAt":    []string{strconv.Itoa(startAt)},
		"maxResults": []string{strconv.Itoa(maxResults)},
	}

	var resp wireSearchResponse
	if err := c.do(ctx, http.MethodGet, "/search", query, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetch page at %d: %w", startAt, err)
	}
	return normalizeIssues(resp.Issues), nil
}

// Search retrieves issues matching a free-text query plus exact-match
// criteria (e.g. assignee, resolution). Criteria are ANDed in sorted field
// order so the generated JQL is deterministic.
func (c *Client) Search(ctx context.Context, text string, criteria map[string]string) ([]Issue, error) {
	var clauses []string
	if text != "" {
		clauses = append(clauses, fmt.Sprintf("text ~ %q", text))
	}

	fields := make([]string, 0, len(criteria))
	for field := range criteria {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		clauses = append(clauses, field+"="+criteria[field])
	}

	query := url.Values{
		"jql":    []string{strings.Join(clauses, " AND ")},
		"fields": []string{issueFields},
	}

	var resp wireSearchResponse
	if err := c.do(ctx, http.MethodGet, "/search", query, nil, &resp); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return normalizeIssues(resp.Issues), nil
}

// Issue retrieves a single issue. Returns nil without error when the issue
// does not exist.
func (c *Client) Issue(ctx context.Context, issueKey string) (*Issue, error) {
	query := url.Values{"fields": []string{issueFields}}

	var wire wireIssue
	err := c.do(ctx, http.MethodGet, "/issue/"+issueKey, query, nil, &wire)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch issue %s: %w", issueKey, err)
	}

	issue := wire.normalize()
	return &issue, nil
}

// Issues retrieves a set of issues in one bulk search. The tracker rejects
// the whole query with a 400 when any key no longer exists, so on that
// answer each key is probed individually and the search is retried with the
// surviving subset.
func (c *Client) Issues(ctx context.Context, issueKeys []string) ([]Issue, error) {
	return c.issues(ctx, issueKeys, false)
}

func (c *Client) issues(ctx context.Context, issueKeys []string, retrying bool) ([]Issue, error) {
	if len(issueKeys) == 0 {
		return nil, nil
	}

	query := url.Values{
		"jql":    []string{"key in (" + strings.Join(issueKeys, ",") + ")"},
		"fields": []string{issueFields},
	}

	var resp wireSearchResponse
	err := c.do(ctx, http.MethodGet, "/search", query, nil, &resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusBadRequest && !retrying {
			valid, probeErr := c.probeKeys(ctx, issueKeys)
			if probeErr != nil {
				return nil, probeErr
			}
			return c.issues(ctx, valid, true)
		}
		return nil, fmt.Errorf("fetch issues: %w", err)
	}
	return normalizeIssues(resp.Issues), nil
}

// probeKeys checks each key individually and returns the ones that exist.
func (c *Client) probeKeys(ctx context.Context, issueKeys []string) ([]string, error) {
	valid := make([]string, 0, len(issueKeys))
	for _, key := range issueKeys {
		issue, err := c.Issue(ctx, key)
		if err != nil {
			return nil, err
		}
		if issue != nil {
			valid = append(valid, key)
		}
	}

	c.logger.Debug().
		Int("asked", len(issueKeys)).
		Int("valid", len(valid)).
		Msg("Probed issue keys after bulk search rejection")

	return valid, nil
}

// Projects retrieves all projects.
func (c *Client) Projects(ctx context.Context) ([]Project, error) {
	var wire []wireProject
	if err := c.do(ctx, http.MethodGet, "/project", nil, nil, &wire); err != nil {
		return nil, fmt.Errorf("fetch projects: %w", err)
	}

	projects := make([]Project, len(wire))
	for i, w := range wire {
		projects[i] = w.normalize()
	}
	return projects, nil
}

// Project retrieves one project with its creatable issue types. Returns nil
// without error when the project does not exist.
func (c *Client) Project(ctx context.Context, projectKey string) (*Project, error) {
	var wire wireProject
	err := c.do(ctx, http.MethodGet, "/project/"+projectKey, nil, nil, &wire)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch project %s: %w", projectKey, err)
	}

	project := wire.normalize()
	return &project, nil
}

// AssignableUsers retrieves users assignable to an issue, filtered by a name
// fragment. A failed fetch is an error, distinct from a successful empty
// result.
func (c *Client) AssignableUsers(ctx context.Context, issueKey, fragment string) ([]User, error) {
	query := url.Values{
		"issueKey": []string{issueKey},
		"username": []string{fragment},
	}

	var wire []wireUser
	if err := c.do(ctx, http.MethodGet, "/user/assignable/search", query, nil, &wire); err != nil {
		return nil, fmt.Errorf("fetch assignable users for %s: %w", issueKey, err)
	}

	users := make([]User, len(wire))
	for i, w := range wire {
		users[i] = User{Name: w.Name, DisplayName: w.DisplayName}
	}
	return users, nil
}

// Comments retrieves an issue's comments, newest first. A failed fetch is an
// error, distinct from a successful empty result.
func (c *Client) Comments(ctx context.Context, issueKey string) ([]Comment, error) {
	var wire wireCommentsResponse
	if err := c.do(ctx, http.MethodGet, "/issue/"+issueKey+"/comment", nil, nil, &wire); err != nil {
		return nil, fmt.Errorf("fetch comments for %s: %w", issueKey, err)
	}

	comments := make([]Comment, len(wire.Comments))
	for i, w := range wire.Comments {
		comments[i] = Comment{
			Body:              w.Body,
			Author:            w.Author.Name,
			AuthorDisplayName: w.Author.DisplayName,
			Created:           parseCommentTime(w.Created),
		}
	}

	// Older tracker versions cannot order comments server-side.
	sort.SliceStable(comments, func(i, j int) bool {
		return comments[i].Created.After(comments[j].Created)
	})
	return comments, nil
}

// CreateIssue creates an issue and returns its key.
func (c *Client) CreateIssue(ctx context.Context, projectID, typeID, summary, description string) (string, error) {
	body := map[string]any{
		"fields": map[string]any{
			"project":     map[string]string{"id": projectID},
			"issuetype":   map[string]string{"id": typeID},
			"summary":     summary,
			"description": description,
		},
	}

	var resp struct {
		Key string `json:"key"`
	}
	if err := c.do(ctx, http.MethodPost, "/issue", nil, body, &resp); err != nil {
		return "", fmt.Errorf("create issue: %w", err)
	}
	return resp.Key, nil
}

// AddComment adds a comment to an issue.
func (c *Client) AddComment(ctx context.Context, issueKey, body string) error {
	payload := map[string]string{"body": body}
	if err := c.do(ctx, http.MethodPost, "/issue/"+issueKey+"/comment", nil, payload, nil); err != nil {
		return fmt.Errorf("add comment to %s: %w", issueKey, err)
	}
	return nil
}

// parseCommentTime decodes the tracker's timestamp format, falling back to
// RFC3339. A zero time is returned for unparseable values.
func parseCommentTime(s string) time.Time {
	for _, layout := range []string{"2006-01-02T15:04:05.000-0700", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
