package canvas

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"time"
)

const maxResponseBodySize = 1 << 20 // 1MB

// connection pooling limits to prevent resource exhaustion when polling many courses
const (
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 10
	defaultIdleConnTimeout     = 60 * time.Second

	defaultTimeout = 10 * time.Second
	defaultPerPage = 50
)

// ErrUnauthorized indicates the Canvas API rejected the access token.
var ErrUnauthorized = errors.New("canvas: unauthorized")

// APIError is a non-2xx response from the Canvas API.
type APIError struct {
	// StatusCode is the HTTP status code returned.
	StatusCode int

	// URL is the request URL that failed.
	URL string

	// Body is the (truncated) response body, kept for debugging.
	Body string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("canvas: %s returned %d", e.URL, e.StatusCode)
}

// Course is a Canvas course as returned by GET /api/v1/courses.
type Course struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`

	// CourseCode is the short code, e.g. "CS101".
	CourseCode string `json:"course_code"`
}

// Assignment is a Canvas assignment as returned by
// GET /api/v1/courses/{id}/assignments.
type Assignment struct {
	ID       int64  `json:"id"`
	CourseID int64  `json:"course_id"`
	Name     string `json:"name"`

	// DueAt is nil when the assignment has no due date.
	DueAt *time.Time `json:"due_at"`

	PointsPossible float64 `json:"points_possible"`

	// HTMLURL links to the assignment page, included in reminder messages.
	HTMLURL string `json:"html_url"`
}

// Client is an HTTP client for the Canvas LMS REST API.
//
// Client uses per-request timeouts via context rather than a global timeout,
// and limits response bodies to 1MB. It follows the Link header for
// paginated list endpoints.
type Client struct {
	baseURL    string
	token      string
	timeout    time.Duration
	perPage    int
	httpClient *http.Client
}

// NewClient creates a Canvas API [Client].
//
// baseURL is the root of the Canvas instance (e.g. "https://canvas.example.edu")
// and token is a Canvas API access token sent as a bearer credential.
// If timeout is zero, a 10 second per-request timeout is used.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		timeout: timeout,
		perPage: defaultPerPage,
		httpClient: &http.Client{
			// no default timeout - we use per-request timeouts via context
			Transport: &http.Transport{
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				MaxConnsPerHost:     defaultMaxConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		},
	}
}

// ListCourses returns the courses the token's user is enrolled in.
func (c *Client) ListCourses(ctx context.Context) ([]Course, error) {
	var courses []Course

	u := fmt.Sprintf("%s/api/v1/courses?enrollment_state=active&per_page=%d", c.baseURL, c.perPage)
	for u != "" {
		var page []Course
		next, err := c.getPage(ctx, u, &page)
		if err != nil {
			return nil, fmt.Errorf("list courses: %w", err)
		}
		courses = append(courses, page...)
		u = next
	}

	return courses, nil
}

// ListAssignments returns all assignments for a course, following pagination.
func (c *Client) ListAssignments(ctx context.Context, courseID int64) ([]Assignment, error) {
	var assignments []Assignment

	u := fmt.Sprintf("%s/api/v1/courses/%d/assignments?per_page=%d", c.baseURL, courseID, c.perPage)
	for u != "" {
		var page []Assignment
		next, err := c.getPage(ctx, u, &page)
		if err != nil {
			return nil, fmt.Errorf("list assignments for course %d: %w", courseID, err)
		}
		assignments = append(assignments, page...)
		u = next
	}

	return assignments, nil
}

// getPage fetches one page of a list endpoint, decodes it into out, and
// returns the URL of the next page ("" when this was the last page).
func (c *Client) getPage(ctx context.Context, rawURL string, out any) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return "", ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		const maxErrBody = 256
		b := string(body)
		if len(b) > maxErrBody {
			b = b[:maxErrBody]
		}
		return "", &APIError{StatusCode: resp.StatusCode, URL: rawURL, Body: b}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	return nextPageURL(resp.Header.Get("Link")), nil
}

// linkNextRe matches the rel="next" entry of a Canvas Link header.
var linkNextRe = regexp.MustCompile(`<([^>]+)>;\s*rel="next"`)

// nextPageURL extracts the rel="next" URL from a Link header, or "".
func nextPageURL(link string) string {
	m := linkNextRe.FindStringSubmatch(link)
	if m == nil {
		return ""
	}
	if _, err := url.Parse(m[1]); err != nil {
		return ""
	}
	return m[1]
}

// Close closes all idle connections in the client's connection pool.
//
// Safe to call multiple times. After Close, the client remains usable but
// new connections will be established as needed.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}
