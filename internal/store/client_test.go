package store

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"bpdcentral/internal/domain"
)

func TestListTasksMapping(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v0/tasks" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer key-1" || r.Header.Get("apikey") != "key-1" {
			t.Errorf("auth headers not set: %v", r.Header)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{
					"id": "t-1", "name": "Wire mapping", "assigned_to": "Glen",
					"assigned_to_id": "u-glen", "planned_end_date": "2026-02-01",
					"status": "IN_PROGRESS", "progress": 45,
					"updated_at": "2026-01-02T10:00:00Z", "updated_by": "Glen",
				},
			},
		})
	}))
	defer ts.Close()

	client := New(ts.URL, "key-1")
	tasks, err := client.ListTasks(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	got := tasks[0]
	if got.AssignedToID != "u-glen" || got.PlannedEndDate != "2026-02-01" || got.UpdatedBy != "Glen" {
		t.Fatalf("snake_case fields not mapped: %+v", got)
	}
	// Fields the wire never carries still come back usable.
	if got.Notes == nil || got.DependentTasks == nil {
		t.Fatalf("expected non-nil collections: %+v", got)
	}
	if got.StartDate == "" {
		t.Fatalf("expected defaulted start date")
	}
}

func TestInsertTaskWireShape(t *testing.T) {
	var received map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	client := New(ts.URL, "key-1")
	err := client.InsertTask(context.Background(), domain.Task{
		ID: "t-9", Name: "Wire out", AssignedToID: "u-melia",
		PlannedEndDate: "2026-03-01", Status: domain.StatusOpen,
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if received["assigned_to_id"] != "u-melia" || received["planned_end_date"] != "2026-03-01" {
		t.Fatalf("expected snake_case on the wire, got %v", received)
	}
	if _, ok := received["assignedToId"]; ok {
		t.Fatalf("camelCase leaked onto the wire: %v", received)
	}
	if _, ok := received["notes"]; ok {
		t.Fatalf("notes are not transported: %v", received)
	}
}

func TestAPIErrorSurfacesStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"code":"not_found","message":"task not found"}}`))
	}))
	defer ts.Close()

	client := New(ts.URL, "key-1")
	err := client.DeleteTask(context.Background(), "t-missing")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", apiErr.StatusCode)
	}
}

func TestPatchFieldMapping(t *testing.T) {
	name := "Renamed"
	progress := 75
	fields := TaskPatchFields(domain.TaskPatch{Name: &name, Progress: &progress})
	if len(fields) != 2 || fields["name"] != "Renamed" || fields["progress"] != 75 {
		t.Fatalf("unexpected fields: %v", fields)
	}
	// Nil pointers stay out of the patch entirely.
	if _, ok := fields["status"]; ok {
		t.Fatalf("nil field leaked: %v", fields)
	}

	dept := "Operations"
	uf := UserPatchFields(domain.UserPatch{Department: &dept})
	if len(uf) != 1 || uf["department"] != "Operations" {
		t.Fatalf("unexpected user fields: %v", uf)
	}
}

func TestNewClientIsReadyForConcurrentUse(t *testing.T) {
	c := New("https://store.example", "k")
	if c.HTTPClient == nil {
		t.Fatalf("expected http client set at construction")
	}
	if c.HTTPClient.Timeout != c.Timeout {
		t.Fatalf("timeout mismatch: %v != %v", c.HTTPClient.Timeout, c.Timeout)
	}
}

func TestBaseURLNormalization(t *testing.T) {
	c := New("https://store.example/", "k")
	if got := c.base(); got != "https://store.example/v0" {
		t.Fatalf("trailing slash not handled: %q", got)
	}
	c = New("https://store.example/v0", "k")
	if got := c.base(); got != "https://store.example/v0" {
		t.Fatalf("existing version path duplicated: %q", got)
	}
}
