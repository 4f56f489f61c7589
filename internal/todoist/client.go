// Package todoist is a small REST client for the Todoist unified API,
// covering only the read and delete paths the webhook rules need plus the
// outbound notification post and the OAuth code exchange.
package todoist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the Todoist unified API root.
	DefaultBaseURL = "https://api.todoist.com/api/v1"

	// DefaultOAuthTokenURL is where authorization codes are exchanged.
	DefaultOAuthTokenURL = "https://todoist.com/oauth/access_token"

	defaultRequestTimeout = 10 * time.Second
	maxResponseBodyBytes  = 4 << 20
)

// HTTPDoer is the minimal HTTP client surface the Todoist client needs.
// *http.Client satisfies it; tests substitute fakes.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Due is the due-date object attached to a task. Date is "2006-01-02";
// Datetime, when present, is RFC 3339 (commonly with a trailing Z).
type Due struct {
	Date        string `json:"date,omitempty"`
	Datetime    string `json:"datetime,omitempty"`
	String      string `json:"string,omitempty"`
	Timezone    string `json:"timezone,omitempty"`
	IsRecurring bool   `json:"is_recurring"`
}

// Task is the subset of a Todoist task the rules read.
type Task struct {
	ID          string   `json:"id"`
	Content     string   `json:"content"`
	Description string   `json:"description,omitempty"`
	ProjectID   string   `json:"project_id,omitempty"`
	ParentID    *string  `json:"parent_id,omitempty"`
	Labels      []string `json:"labels,omitempty"`
	URL         string   `json:"url,omitempty"`
	Due         *Due     `json:"due,omitempty"`
}

// Comment is a note attached to a task.
type Comment struct {
	ID      string `json:"id"`
	TaskID  string `json:"task_id,omitempty"`
	Content string `json:"content"`
}

// OAuthToken is the result of an authorization-code exchange.
type OAuthToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
	Scope       string `json:"scope,omitempty"`
}

// APIError reports a non-2xx response from the Todoist API.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("todoist: %s %s: unexpected status %d", e.Method, e.Path, e.StatusCode)
}

// ClientConfig configures a Client. Only Token is required.
type ClientConfig struct {
	Token         string
	BaseURL       string        // defaults to DefaultBaseURL
	OAuthTokenURL string        // defaults to DefaultOAuthTokenURL
	Timeout       time.Duration // defaults to 10s; used when HTTPClient is nil
	HTTPClient    HTTPDoer      // defaults to &http.Client{Timeout: Timeout}
}

// Client calls the Todoist API with bearer authentication.
type Client struct {
	token    string
	baseURL  string
	oauthURL string
	http     HTTPDoer
}

// NewClient builds a Client from cfg, filling in defaults for everything
// except the token.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	oauthURL := strings.TrimSpace(cfg.OAuthTokenURL)
	if oauthURL == "" {
		oauthURL = DefaultOAuthTokenURL
	}
	return &Client{
		token:    strings.TrimSpace(cfg.Token),
		baseURL:  baseURL,
		oauthURL: oauthURL,
		http:     httpClient,
	}
}

// GetTask fetches a single task by id.
func (c *Client) GetTask(ctx context.Context, taskID string) (*Task, error) {
	body, err := c.get(ctx, "/tasks/"+url.PathEscape(taskID), nil)
	if err != nil {
		return nil, err
	}
	var t Task
	if err := json.Unmarshal(body, &t); err != nil {
		return nil, fmt.Errorf("todoist: decode task: %w", err)
	}
	return &t, nil
}

// ListCommentsForTask returns the comments attached to taskID. The endpoint
// returns either a bare array or a {"results": [...]} page envelope
// depending on API revision; both are accepted. Only the first page is
// read.
func (c *Client) ListCommentsForTask(ctx context.Context, taskID string) ([]Comment, error) {
	body, err := c.get(ctx, "/comments", url.Values{"task_id": {taskID}})
	if err != nil {
		return nil, err
	}

	var bare []Comment
	if err := json.Unmarshal(body, &bare); err == nil {
		return bare, nil
	}
	var env struct {
		Results []Comment `json:"results"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("todoist: decode comments: %w", err)
	}
	return env.Results, nil
}

// ListActiveTasksForProject returns the active tasks in projectID,
// tolerating both response envelopes. Only the first page is read.
func (c *Client) ListActiveTasksForProject(ctx context.Context, projectID string) ([]Task, error) {
	body, err := c.get(ctx, "/tasks", url.Values{"project_id": {projectID}})
	if err != nil {
		return nil, err
	}
	return decodeTaskList(body)
}

// ListAllActiveTasks returns every active task visible to the token.
// Only the first page is read.
func (c *Client) ListAllActiveTasks(ctx context.Context) ([]Task, error) {
	body, err := c.get(ctx, "/tasks", nil)
	if err != nil {
		return nil, err
	}
	return decodeTaskList(body)
}

// DeleteComment removes a comment. Todoist answers 204 (and some proxies
// 200); both count as success.
func (c *Client) DeleteComment(ctx context.Context, commentID string) error {
	return c.delete(ctx, "/comments/"+url.PathEscape(commentID))
}

// DeleteTask removes a task and, server-side, its descendants.
func (c *Client) DeleteTask(ctx context.Context, taskID string) error {
	return c.delete(ctx, "/tasks/"+url.PathEscape(taskID))
}

// PostWebhook delivers payload as JSON to endpoint, optionally with a
// bearer token. It returns the response status code; err is non-nil only
// for build/transport failures, never for a non-2xx status. Callers decide
// what a given status means.
func (c *Client) PostWebhook(ctx context.Context, endpoint string, payload any, bearerToken string) (int, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("todoist: encode webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(buf))
	if err != nil {
		return 0, fmt.Errorf("todoist: build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+bearerToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("todoist: webhook post failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBodyBytes))
	return resp.StatusCode, nil
}

// ExchangeOAuthCode trades an authorization code for an access token at the
// configured OAuth endpoint.
func (c *Client) ExchangeOAuthCode(ctx context.Context, code, clientID, clientSecret, redirectURI string) (*OAuthToken, error) {
	values := url.Values{}
	values.Set("client_id", clientID)
	values.Set("client_secret", clientSecret)
	values.Set("code", code)
	if redirectURI != "" {
		values.Set("redirect_uri", redirectURI)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.oauthURL, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, fmt.Errorf("todoist: build oauth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("todoist: oauth exchange failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("todoist: read oauth response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Method: http.MethodPost, Path: "/oauth/access_token"}
	}

	var tok OAuthToken
	if err := json.Unmarshal(body, &tok); err != nil {
		return nil, fmt.Errorf("todoist: decode oauth response: %w", err)
	}
	if strings.TrimSpace(tok.AccessToken) == "" {
		return nil, fmt.Errorf("todoist: oauth response missing access token")
	}
	return &tok, nil
}

// ---- internals ----

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("todoist: build request: %w", err)
	}
	c.auth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("todoist: GET %s failed: %w", path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("todoist: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Method: http.MethodGet, Path: path}
	}
	return body, nil
}

func (c *Client) delete(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("todoist: build request: %w", err)
	}
	c.auth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("todoist: DELETE %s failed: %w", path, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBodyBytes))
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return &APIError{StatusCode: resp.StatusCode, Method: http.MethodDelete, Path: path}
	}
	return nil
}

func (c *Client) auth(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
}

func decodeTaskList(body []byte) ([]Task, error) {
	var bare []Task
	if err := json.Unmarshal(body, &bare); err == nil {
		return bare, nil
	}
	var env struct {
		Results []Task `json:"results"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("todoist: decode tasks: %w", err)
	}
	return env.Results, nil
}
