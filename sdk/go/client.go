package crewdesksdk

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

// Client is a minimal Crewdesk HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// User represents the API user model.
type User struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	Role       string `json:"role,omitempty"`
	Hierarchy  *int   `json:"hierarchy,omitempty"`
	Division   string `json:"division,omitempty"`
	Department string `json:"department,omitempty"`
	CreatedAt  string `json:"created_at"`
}

// Project represents the API project model.
type Project struct {
	ID          string `json:"id"`
	CreatorID   string `json:"creator_id"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// Task represents the API task model. ProjectID is empty for personal tasks.
type Task struct {
	ID          string   `json:"id"`
	ProjectID   *string  `json:"project_id,omitempty"`
	ParentID    *string  `json:"parent_id,omitempty"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Status      string   `json:"status"`
	CreatedBy   string   `json:"created_by"`
	AssignedTo  []string `json:"assigned_to"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
}

// Membership represents a project membership entry.
type Membership struct {
	ProjectID string `json:"project_id"`
	UserID    string `json:"user_id"`
	AddedBy   string `json:"added_by"`
	CreatedAt string `json:"created_at"`
}

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// Scope describes what the caller may enumerate.
type Scope struct {
	Kind               string `json:"kind"`
	SubjectID          string `json:"subject_id,omitempty"`
	IncludeMemberships bool   `json:"include_memberships,omitempty"`
	Division           string `json:"division,omitempty"`
	HierarchyBelow     int    `json:"hierarchy_below,omitempty"`
}

// WhoAmI describes the authenticated caller.
type WhoAmI struct {
	UserID    string `json:"user_id"`
	Tier      string `json:"tier"`
	Hierarchy int    `json:"hierarchy"`
	Division  string `json:"division,omitempty"`
	Source    string `json:"source"`
}

// APIError wraps non-2xx responses. Reason carries the authorization
// denial code on 403s when the server provides one.
type APIError struct {
	StatusCode int
	Body       string
	Reason     string
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("api error: status=%d reason=%s", e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedProjects wraps project listings with a cursor.
type PaginatedProjects struct {
	Items      []Project `json:"items"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

// PaginatedTasks wraps task listings with a cursor.
type PaginatedTasks struct {
	Items      []Task `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// Me returns the authenticated caller's resolved identity.
func (c *Client) Me(ctx context.Context) (WhoAmI, error) {
	var resp WhoAmI
	err := c.do(ctx, http.MethodGet, "v0/me", nil, &resp)
	return resp, err
}

// GetUser fetches a user by id.
func (c *Client) GetUser(ctx context.Context, id string) (User, error) {
	var resp User
	err := c.do(ctx, http.MethodGet, "v0/users/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// CreateProject creates a project.
func (c *Client) CreateProject(ctx context.Context, name, description string) (Project, error) {
	body := map[string]any{"name": name}
	if description != "" {
		body["description"] = description
	}
	var resp Project
	err := c.do(ctx, http.MethodPost, "v0/projects", body, &resp)
	return resp, err
}

// GetProject fetches a project by id.
func (c *Client) GetProject(ctx context.Context, id string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodGet, "v0/projects/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// Projects returns a page of projects visible to the caller.
func (c *Client) Projects(ctx context.Context, limit int, cursor string) (PaginatedProjects, error) {
	var resp PaginatedProjects
	err := c.do(ctx, http.MethodGet, listEndpoint("v0/projects", "", limit, cursor), nil, &resp)
	return resp, err
}

// ArchiveProject archives a project.
func (c *Client) ArchiveProject(ctx context.Context, id string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPost, "v0/projects/"+url.PathEscape(id)+"/archive", nil, &resp)
	return resp, err
}

// AddMember adds a user to a project.
func (c *Client) AddMember(ctx context.Context, projectID, userID string) (Membership, error) {
	var resp Membership
	endpoint := "v0/projects/" + url.PathEscape(projectID) + "/members"
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"user_id": userID}, &resp)
	return resp, err
}

// Members lists a project's members.
func (c *Client) Members(ctx context.Context, projectID string) ([]Membership, error) {
	var resp []Membership
	endpoint := "v0/projects/" + url.PathEscape(projectID) + "/members"
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// CreateTask creates a task in a project, or a personal task when
// projectID is empty.
func (c *Client) CreateTask(ctx context.Context, projectID, title string) (Task, error) {
	body := map[string]any{"title": title}
	if projectID != "" {
		body["project_id"] = projectID
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, "v0/tasks", body, &resp)
	return resp, err
}

// GetTask fetches a task by id.
func (c *Client) GetTask(ctx context.Context, id string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, "v0/tasks/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// Tasks returns a page of tasks visible to the caller, optionally
// filtered to one project.
func (c *Client) Tasks(ctx context.Context, projectID string, limit int, cursor string) (PaginatedTasks, error) {
	var resp PaginatedTasks
	err := c.do(ctx, http.MethodGet, listEndpoint("v0/tasks", projectID, limit, cursor), nil, &resp)
	return resp, err
}

// AssignTask replaces a task's assignees.
func (c *Client) AssignTask(ctx context.Context, taskID string, userIDs []string) (Task, error) {
	var resp Task
	endpoint := "v0/tasks/" + url.PathEscape(taskID) + "/assignees"
	err := c.do(ctx, http.MethodPut, endpoint, map[string]any{"assigned_to": userIDs}, &resp)
	return resp, err
}

// Check evaluates a named authorization action without mutating anything.
func (c *Client) Check(ctx context.Context, action, projectID, taskID, userID string) (Decision, error) {
	q := url.Values{}
	q.Set("action", action)
	if projectID != "" {
		q.Set("project_id", projectID)
	}
	if taskID != "" {
		q.Set("task_id", taskID)
	}
	if userID != "" {
		q.Set("user_id", userID)
	}
	var resp Decision
	err := c.do(ctx, http.MethodGet, "v0/authz/check?"+q.Encode(), nil, &resp)
	return resp, err
}

// Scope returns the caller's visibility scope descriptor.
func (c *Client) Scope(ctx context.Context) (Scope, error) {
	var resp Scope
	err := c.do(ctx, http.MethodGet, "v0/authz/scope", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b), Reason: denialReason(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func denialReason(body []byte) string {
	var envelope struct {
		Error struct {
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	if reason, ok := envelope.Error.Details["reason"].(string); ok {
		return reason
	}
	return ""
}

func listEndpoint(base, projectID string, limit int, cursor string) string {
	q := url.Values{}
	if projectID != "" {
		q.Set("project_id", projectID)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if len(q) == 0 {
		return base
	}
	return base + "?" + q.Encode()
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
