// Package store is the HTTP client for the BPD Central remote store. It owns
// the bidirectional mapping between the store's snake_case records and the
// canonical camelCase entities.
package store

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bpdcentral/internal/domain"
)

// Client is a minimal store HTTP client. HTTPClient is fixed at construction
// and must not be swapped while requests are in flight.
type Client struct {
	BaseURL    string
	AnonKey    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, anonKey string) *Client {
	timeout := 10 * time.Second
	return &Client{
		BaseURL:    baseURL,
		AnonKey:    anonKey,
		Timeout:    timeout,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// taskRecord is the wire shape of a task row.
type taskRecord struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Description    string   `json:"description,omitempty"`
	Program        string   `json:"program,omitempty"`
	AssignedTo     string   `json:"assigned_to,omitempty"`
	AssignedToID   string   `json:"assigned_to_id,omitempty"`
	Priority       string   `json:"priority,omitempty"`
	StartDate      string   `json:"start_date,omitempty"`
	PlannedEndDate string   `json:"planned_end_date,omitempty"`
	ActualEndDate  string   `json:"actual_end_date,omitempty"`
	Status         string   `json:"status,omitempty"`
	Progress       int      `json:"progress"`
	DependentTasks []string `json:"dependent_tasks,omitempty"`
	UpdatedAt      string   `json:"updated_at,omitempty"`
	UpdatedBy      string   `json:"updated_by,omitempty"`
}

type programRecord struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Color       string `json:"color,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
	CreatedBy   string `json:"created_by,omitempty"`
}

type userRecord struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	Role       string `json:"role,omitempty"`
	Department string `json:"department,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("store error: status=%d body=%s", e.StatusCode, e.Body)
}

func taskFromRecord(rec taskRecord) domain.Task {
	t := domain.Task{
		ID:             rec.ID,
		Name:           rec.Name,
		Description:    rec.Description,
		Program:        rec.Program,
		AssignedTo:     rec.AssignedTo,
		AssignedToID:   rec.AssignedToID,
		Priority:       rec.Priority,
		StartDate:      rec.StartDate,
		PlannedEndDate: rec.PlannedEndDate,
		ActualEndDate:  rec.ActualEndDate,
		Status:         rec.Status,
		Progress:       rec.Progress,
		DependentTasks: rec.DependentTasks,
		UpdatedAt:      rec.UpdatedAt,
		UpdatedBy:      rec.UpdatedBy,
	}
	if t.StartDate == "" {
		t.StartDate = time.Now().UTC().Format("2006-01-02")
	}
	// Notes are never transported; readers always see an empty list.
	t.Notes = []domain.Note{}
	if t.DependentTasks == nil {
		t.DependentTasks = []string{}
	}
	return t
}

func taskToRecord(t domain.Task) taskRecord {
	return taskRecord{
		ID:             t.ID,
		Name:           t.Name,
		Description:    t.Description,
		Program:        t.Program,
		AssignedTo:     t.AssignedTo,
		AssignedToID:   t.AssignedToID,
		Priority:       t.Priority,
		StartDate:      t.StartDate,
		PlannedEndDate: t.PlannedEndDate,
		ActualEndDate:  t.ActualEndDate,
		Status:         t.Status,
		Progress:       t.Progress,
		DependentTasks: t.DependentTasks,
		UpdatedAt:      t.UpdatedAt,
		UpdatedBy:      t.UpdatedBy,
	}
}

// TaskPatchFields maps a canonical patch to snake_case update fields.
func TaskPatchFields(p domain.TaskPatch) map[string]any {
	out := map[string]any{}
	setField(out, "name", p.Name)
	setField(out, "description", p.Description)
	setField(out, "program", p.Program)
	setField(out, "assigned_to", p.AssignedTo)
	setField(out, "assigned_to_id", p.AssignedToID)
	setField(out, "priority", p.Priority)
	setField(out, "start_date", p.StartDate)
	setField(out, "planned_end_date", p.PlannedEndDate)
	setField(out, "actual_end_date", p.ActualEndDate)
	setField(out, "status", p.Status)
	if p.Progress != nil {
		out["progress"] = *p.Progress
	}
	return out
}

// ProgramPatchFields maps a canonical program patch to snake_case fields.
func ProgramPatchFields(p domain.ProgramPatch) map[string]any {
	out := map[string]any{}
	setField(out, "name", p.Name)
	setField(out, "description", p.Description)
	setField(out, "color", p.Color)
	return out
}

// UserPatchFields maps a canonical user patch to snake_case fields.
func UserPatchFields(p domain.UserPatch) map[string]any {
	out := map[string]any{}
	setField(out, "name", p.Name)
	setField(out, "email", p.Email)
	setField(out, "role", p.Role)
	setField(out, "department", p.Department)
	return out
}

func setField(fields map[string]any, col string, v *string) {
	if v != nil {
		fields[col] = *v
	}
}

// Probe performs the trivial read used to validate credentials.
func (c *Client) Probe(ctx context.Context) error {
	var resp struct {
		Items []programRecord `json:"items"`
	}
	return c.do(ctx, http.MethodGet, "programs", nil, &resp)
}

// ListTasks returns all tasks, most recently updated first.
func (c *Client) ListTasks(ctx context.Context) ([]domain.Task, error) {
	var resp struct {
		Items []taskRecord `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "tasks", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]domain.Task, 0, len(resp.Items))
	for _, rec := range resp.Items {
		out = append(out, taskFromRecord(rec))
	}
	return out, nil
}

// ListPrograms returns all grant programs.
func (c *Client) ListPrograms(ctx context.Context) ([]domain.Program, error) {
	var resp struct {
		Items []programRecord `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "programs", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]domain.Program, 0, len(resp.Items))
	for _, rec := range resp.Items {
		out = append(out, domain.Program(rec))
	}
	return out, nil
}

// ListUsers returns all team members.
func (c *Client) ListUsers(ctx context.Context) ([]domain.User, error) {
	var resp struct {
		Items []userRecord `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "users", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]domain.User, 0, len(resp.Items))
	for _, rec := range resp.Items {
		out = append(out, domain.User(rec))
	}
	return out, nil
}

// InsertTask inserts a full task row.
func (c *Client) InsertTask(ctx context.Context, t domain.Task) error {
	return c.do(ctx, http.MethodPost, "tasks", taskToRecord(t), nil)
}

// UpdateTask applies a snake_case field map to a task row.
func (c *Client) UpdateTask(ctx context.Context, id string, fields map[string]any) error {
	return c.do(ctx, http.MethodPatch, "tasks/"+url.PathEscape(id), fields, nil)
}

// DeleteTask removes a task row.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "tasks/"+url.PathEscape(id), nil, nil)
}

// InsertProgram inserts a full program row.
func (c *Client) InsertProgram(ctx context.Context, p domain.Program) error {
	return c.do(ctx, http.MethodPost, "programs", programRecord(p), nil)
}

// UpdateProgram applies a snake_case field map to a program row.
func (c *Client) UpdateProgram(ctx context.Context, id string, fields map[string]any) error {
	return c.do(ctx, http.MethodPatch, "programs/"+url.PathEscape(id), fields, nil)
}

// DeleteProgram removes a program row.
func (c *Client) DeleteProgram(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "programs/"+url.PathEscape(id), nil, nil)
}

// InsertUser inserts a full user row.
func (c *Client) InsertUser(ctx context.Context, u domain.User) error {
	return c.do(ctx, http.MethodPost, "users", userRecord(u), nil)
}

// UpdateUser applies a snake_case field map to a user row.
func (c *Client) UpdateUser(ctx context.Context, id string, fields map[string]any) error {
	return c.do(ctx, http.MethodPatch, "users/"+url.PathEscape(id), fields, nil)
}

// DeleteUser removes a user row.
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "users/"+url.PathEscape(id), nil, nil)
}

// Events returns recent change-log entries.
func (c *Client) Events(ctx context.Context, limit int) ([]domain.Event, error) {
	endpoint := "events"
	if limit > 0 {
		endpoint = fmt.Sprintf("events?limit=%d", limit)
	}
	var resp struct {
		Items []struct {
			ID         int64  `json:"id"`
			TS         string `json:"ts"`
			Type       string `json:"type"`
			EntityKind string `json:"entity_kind"`
			EntityID   string `json:"entity_id"`
			Actor      string `json:"actor"`
			Payload    string `json:"payload_json"`
		} `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]domain.Event, 0, len(resp.Items))
	for _, rec := range resp.Items {
		out = append(out, domain.Event{
			ID:         rec.ID,
			TS:         rec.TS,
			Type:       rec.Type,
			EntityKind: rec.EntityKind,
			EntityID:   rec.EntityID,
			Actor:      rec.Actor,
			Payload:    rec.Payload,
		})
	}
	return out, nil
}

// Changes opens the realtime stream and delivers one signal per change
// notification. The channel closes when the stream ends or ctx is canceled.
// Events carry no detail; receivers must refetch in full.
func (c *Client) Changes(ctx context.Context) (<-chan struct{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base()+"/changes", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	c.authorize(req)

	// No client timeout here: the stream is expected to stay open.
	resp, err := (&http.Client{}).Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}

	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)
		defer resp.Body.Close()
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line != "event: change" {
				continue
			}
			select {
			case ch <- struct{}{}:
			default:
				// A pending signal already forces a full refetch.
			}
		}
	}()
	return ch, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: c.Timeout}
	}
	u := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, u, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.AnonKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.AnonKey)
		req.Header.Set("apikey", c.AnonKey)
	}
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if !strings.HasSuffix(base, "/v0") {
		base += "/v0"
	}
	return base
}
