package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"bpdcentral/internal/db"
	"bpdcentral/internal/migrate"
)

const testSecret = "store-test-secret"

type testServer struct {
	URL    string
	Key    string
	client *http.Client
}

func (s *testServer) Client() *http.Client { return s.client }

func (s *testServer) auth() map[string]string {
	return map[string]string{"Authorization": "Bearer " + s.Key}
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	handler, err := New(Config{DB: conn, BasePath: "/v0", Auth: AuthConfig{JWTSecret: testSecret}})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	key, err := SignAnonKey(testSecret, RoleAnon)
	if err != nil {
		t.Fatalf("sign key: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Key:    key,
		client: &http.Client{},
	}
	t.Cleanup(func() {
		srv.Shutdown(context.Background())
		ln.Close()
		conn.Close()
	})
	return testSrv
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

type taskBody struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	Progress  int    `json:"progress"`
	UpdatedAt string `json:"updated_at"`
	UpdatedBy string `json:"updated_by"`
}

func TestTaskRoundTrip(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", map[string]any{
		"id":         "t-1",
		"name":       "File quarterly report",
		"status":     "IN_PROGRESS",
		"progress":   45,
		"updated_at": "2026-01-02T10:00:00Z",
		"updated_by": "Glen",
	}, srv.auth())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("insert status %d: %s", res.StatusCode, string(data))
	}
	var created taskBody
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal insert: %v", err)
	}
	if created.UpdatedBy != "Glen" || created.Status != "IN_PROGRESS" {
		t.Fatalf("unexpected created row: %+v", created)
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/tasks/t-1", map[string]any{
		"status":     "COMPLETED",
		"progress":   100,
		"updated_at": "2026-01-03T10:00:00Z",
	}, srv.auth())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("patch status %d: %s", res.StatusCode, string(data))
	}
	var patched taskBody
	if err := json.Unmarshal(data, &patched); err != nil {
		t.Fatalf("unmarshal patch: %v", err)
	}
	if patched.Status != "COMPLETED" || patched.Progress != 100 {
		t.Fatalf("patch not applied: %+v", patched)
	}
	if patched.Name != "File quarterly report" {
		t.Fatalf("untouched field changed: %+v", patched)
	}

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/tasks/t-1", nil, srv.auth())
	if res.StatusCode >= 300 {
		t.Fatalf("delete status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/tasks/t-1", map[string]any{"name": "gone"}, srv.auth())
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d: %s", res.StatusCode, string(data))
	}
}

func TestTaskListOrdering(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	for _, row := range []map[string]any{
		{"id": "t-old", "name": "Old", "updated_at": "2026-01-01T00:00:00Z"},
		{"id": "t-new", "name": "New", "updated_at": "2026-01-02T00:00:00Z"},
	} {
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", row, srv.auth())
		if res.StatusCode != http.StatusOK {
			t.Fatalf("insert %v: %d %s", row["id"], res.StatusCode, string(data))
		}
	}

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks", nil, srv.auth())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	var list struct {
		Items []taskBody `json:"items"`
	}
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(list.Items) != 2 || list.Items[0].ID != "t-new" {
		t.Fatalf("expected t-new first, got %+v", list.Items)
	}
}

func TestInsertDefaults(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", map[string]any{
		"id":   "t-min",
		"name": "Minimal",
	}, srv.auth())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("insert status %d: %s", res.StatusCode, string(data))
	}
	var created taskBody
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if created.Status != "OPEN" {
		t.Fatalf("expected default status OPEN, got %q", created.Status)
	}
	if created.UpdatedAt == "" {
		t.Fatalf("expected stamped updated_at")
	}

	// Missing fields hit the handler's own envelope, not schema validation.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", map[string]any{"id": "t-noname"}, srv.auth())
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing name, got %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", map[string]any{"name": "No id"}, srv.auth())
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing id, got %d: %s", res.StatusCode, string(data))
	}
}

func TestDuplicateInsertConflicts(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	body := map[string]any{"id": "t-dup", "name": "First"}
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", body, srv.auth())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("first insert: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", body, srv.auth())
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate, got %d: %s", res.StatusCode, string(data))
	}
}

func TestAccessKeyRequired(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", res.StatusCode)
	}

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks", nil, map[string]string{
		"Authorization": "Bearer not-a-key",
	})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad key, got %d", res.StatusCode)
	}

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks", nil, map[string]string{
		"apikey": srv.Key,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected apikey header to authenticate, got %d", res.StatusCode)
	}

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health should not require a key, got %d", res.StatusCode)
	}
}

func TestMutationsAppendEvents(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", map[string]any{"id": "t-evt", "name": "Evented", "updated_by": "Melia"}, srv.auth())
	doJSON(t, client, http.MethodPatch, srv.URL+"/v0/tasks/t-evt", map[string]any{"progress": 10, "updated_by": "Melia"}, srv.auth())
	doJSON(t, client, http.MethodDelete, srv.URL+"/v0/tasks/t-evt", nil, srv.auth())

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/events", nil, srv.auth())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", res.StatusCode, string(data))
	}
	var list struct {
		Items []struct {
			Type  string `json:"type"`
			Actor string `json:"actor"`
		} `json:"items"`
	}
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	seen := map[string]bool{}
	for _, e := range list.Items {
		seen[e.Type] = true
	}
	for _, want := range []string{"task.inserted", "task.updated", "task.deleted"} {
		if !seen[want] {
			t.Fatalf("missing event %s in %+v", want, list.Items)
		}
	}
	// Newest first: the delete should lead.
	if list.Items[0].Type != "task.deleted" {
		t.Fatalf("expected task.deleted first, got %s", list.Items[0].Type)
	}
}

func TestProgramAndUserRoundTrip(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/programs", map[string]any{
		"id": "p-1", "name": "BEAD", "color": "indigo", "created_by": "u-admin",
	}, srv.auth())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("insert program: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/programs/p-1", map[string]any{"color": "emerald"}, srv.auth())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("patch program: %d %s", res.StatusCode, string(data))
	}
	var p struct {
		Color     string `json:"color"`
		CreatedAt string `json:"created_at"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("unmarshal program: %v", err)
	}
	if p.Color != "emerald" || p.CreatedAt == "" {
		t.Fatalf("unexpected program row: %+v", p)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/users", map[string]any{
		"id": "u-1", "name": "Glen", "role": "Manager",
	}, srv.auth())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("insert user: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/users/u-1", nil, srv.auth())
	if res.StatusCode >= 300 {
		t.Fatalf("delete user: %d %s", res.StatusCode, string(data))
	}
	res, _ = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/users/u-1", nil, srv.auth())
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 deleting twice, got %d", res.StatusCode)
	}
}

func TestChangeStream(t *testing.T) {
	oldPoll := changePollInterval
	changePollInterval = 50 * time.Millisecond
	defer func() { changePollInterval = oldPoll }()

	srv := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v0/changes", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+srv.Key)
	res, err := (&http.Client{}).Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("stream status %d", res.StatusCode)
	}

	scanner := bufio.NewScanner(res.Body)
	sawConnected := false
	for scanner.Scan() {
		line := scanner.Text()
		if line == "event: connected" {
			sawConnected = true
			// Baseline is captured right after the hello; give it a beat
			// before writing so the poll sees a fresh event.
			time.Sleep(200 * time.Millisecond)
			doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/tasks", map[string]any{
				"id": "t-stream", "name": "Stream me",
			}, srv.auth())
			continue
		}
		if line == "event: change" {
			return
		}
	}
	if !sawConnected {
		t.Fatalf("never saw connected event: %v", scanner.Err())
	}
	t.Fatalf("stream ended before change event: %v", scanner.Err())
}
