// Package server exposes the BPD Central remote store: flat row CRUD over
// three tables plus a change-notification stream. It carries no application
// rules; clients own id assignment and audit stamping.
package server

import (
	"context"
	"database/sql"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"bpdcentral/internal/events"
	"bpdcentral/internal/repo"
)

// Config for the HTTP store handler.
type Config struct {
	DB       *sql.DB
	BasePath string
	Auth     AuthConfig
	Now      func() time.Time
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"task not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

type srv struct {
	db     *sql.DB
	repo   repo.Repo
	events events.Writer
	now    func() time.Time
}

func (s srv) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// mutate runs fn and an event-log append in one transaction.
func (s srv) mutate(ctx context.Context, evtType, entityKind, entityID, actor string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	if err := s.events.Append(ctx, tx, evtType, entityKind, entityID, actor, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// New returns an HTTP handler exposing the store API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("BPD Central Store", "1.0.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	s := srv{
		db:     cfg.DB,
		repo:   repo.Repo{DB: cfg.DB},
		events: events.Writer{DB: cfg.DB, Now: cfg.Now},
		now:    cfg.Now,
	}

	registerHealth(group)
	registerTasks(group, s)
	registerPrograms(group, s)
	registerUsers(group, s)
	registerEvents(group, s)
	router.Get(basePath+"/changes", handleChanges(s.repo))

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if err == repo.ErrNotFound {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "unique") || strings.Contains(lowered, "constraint"):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "required") || strings.Contains(lowered, "not updatable"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerTasks(api huma.API, s srv) {
	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks, most recently updated first",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body taskList `json:"body"`
	}, error) {
		tasks, err := s.repo.ListTasks(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		out := taskList{Items: []TaskResponse{}}
		for _, t := range tasks {
			out.Items = append(out.Items, taskResponse(t))
		}
		return &struct {
			Body taskList `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "insert-task",
		Method:      http.MethodPost,
		Path:        "/tasks",
		Summary:     "Insert a task row",
		Errors:      []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body TaskRecordRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		if input.Body.ID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "id is required", nil)
		}
		if input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		t := taskFromRequest(input.Body)
		if t.Status == "" {
			t.Status = "OPEN"
		}
		if t.UpdatedAt == "" {
			t.UpdatedAt = s.clock().UTC().Format(time.RFC3339)
		}
		err := s.mutate(ctx, "task.inserted", "task", t.ID, t.UpdatedBy, func(tx *sql.Tx) error {
			return s.repo.InsertTaskTx(ctx, tx, t)
		})
		if err != nil {
			return nil, handleError(err)
		}
		stored, err := s.repo.GetTask(ctx, t.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(stored)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{id}",
		Summary:     "Partially update a task row",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string           `path:"id"`
		Body TaskPatchRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		fields := input.Body.fields()
		actor := ""
		if input.Body.UpdatedBy != nil {
			actor = *input.Body.UpdatedBy
		}
		err := s.mutate(ctx, "task.updated", "task", input.ID, actor, func(tx *sql.Tx) error {
			return s.repo.UpdateTaskTx(ctx, tx, input.ID, fields)
		})
		if err != nil {
			return nil, handleError(err)
		}
		stored, err := s.repo.GetTask(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(stored)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-task",
		Method:      http.MethodDelete,
		Path:        "/tasks/{id}",
		Summary:     "Delete a task row",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		err := s.mutate(ctx, "task.deleted", "task", input.ID, "", func(tx *sql.Tx) error {
			return s.repo.DeleteTaskTx(ctx, tx, input.ID)
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerPrograms(api huma.API, s srv) {
	huma.Register(api, huma.Operation{
		OperationID: "list-programs",
		Method:      http.MethodGet,
		Path:        "/programs",
		Summary:     "List grant programs",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body programList `json:"body"`
	}, error) {
		programs, err := s.repo.ListPrograms(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		out := programList{Items: []ProgramResponse{}}
		for _, p := range programs {
			out.Items = append(out.Items, programResponse(p))
		}
		return &struct {
			Body programList `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "insert-program",
		Method:      http.MethodPost,
		Path:        "/programs",
		Summary:     "Insert a program row",
		Errors:      []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body ProgramRecordRequest `json:"body"`
	}) (*struct {
		Body ProgramResponse `json:"body"`
	}, error) {
		if input.Body.ID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "id is required", nil)
		}
		if input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		p := programFromRequest(input.Body)
		if p.CreatedAt == "" {
			p.CreatedAt = s.clock().UTC().Format(time.RFC3339)
		}
		err := s.mutate(ctx, "program.inserted", "program", p.ID, p.CreatedBy, func(tx *sql.Tx) error {
			return s.repo.InsertProgramTx(ctx, tx, p)
		})
		if err != nil {
			return nil, handleError(err)
		}
		stored, err := s.repo.GetProgram(ctx, p.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProgramResponse `json:"body"`
		}{Body: programResponse(stored)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-program",
		Method:      http.MethodPatch,
		Path:        "/programs/{id}",
		Summary:     "Partially update a program row",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string              `path:"id"`
		Body ProgramPatchRequest `json:"body"`
	}) (*struct {
		Body ProgramResponse `json:"body"`
	}, error) {
		err := s.mutate(ctx, "program.updated", "program", input.ID, "", func(tx *sql.Tx) error {
			return s.repo.UpdateProgramTx(ctx, tx, input.ID, input.Body.fields())
		})
		if err != nil {
			return nil, handleError(err)
		}
		stored, err := s.repo.GetProgram(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProgramResponse `json:"body"`
		}{Body: programResponse(stored)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-program",
		Method:      http.MethodDelete,
		Path:        "/programs/{id}",
		Summary:     "Delete a program row",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		err := s.mutate(ctx, "program.deleted", "program", input.ID, "", func(tx *sql.Tx) error {
			return s.repo.DeleteProgramTx(ctx, tx, input.ID)
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerUsers(api huma.API, s srv) {
	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/users",
		Summary:     "List team members",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body userList `json:"body"`
	}, error) {
		users, err := s.repo.ListUsers(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		out := userList{Items: []UserResponse{}}
		for _, u := range users {
			out.Items = append(out.Items, userResponse(u))
		}
		return &struct {
			Body userList `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "insert-user",
		Method:      http.MethodPost,
		Path:        "/users",
		Summary:     "Insert a user row",
		Errors:      []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body UserRecordRequest `json:"body"`
	}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		if input.Body.ID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "id is required", nil)
		}
		if input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		u := userFromRequest(input.Body)
		err := s.mutate(ctx, "user.inserted", "user", u.ID, "", func(tx *sql.Tx) error {
			return s.repo.InsertUserTx(ctx, tx, u)
		})
		if err != nil {
			return nil, handleError(err)
		}
		stored, err := s.repo.GetUser(ctx, u.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: userResponse(stored)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-user",
		Method:      http.MethodPatch,
		Path:        "/users/{id}",
		Summary:     "Partially update a user row",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string           `path:"id"`
		Body UserPatchRequest `json:"body"`
	}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		err := s.mutate(ctx, "user.updated", "user", input.ID, "", func(tx *sql.Tx) error {
			return s.repo.UpdateUserTx(ctx, tx, input.ID, input.Body.fields())
		})
		if err != nil {
			return nil, handleError(err)
		}
		stored, err := s.repo.GetUser(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: userResponse(stored)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-user",
		Method:      http.MethodDelete,
		Path:        "/users/{id}",
		Summary:     "Delete a user row",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		err := s.mutate(ctx, "user.deleted", "user", input.ID, "", func(tx *sql.Tx) error {
			return s.repo.DeleteUserTx(ctx, tx, input.ID)
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerEvents(api huma.API, s srv) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Recent change-log entries",
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" default:"20" minimum:"1" maximum:"500"`
	}) (*struct {
		Body eventList `json:"body"`
	}, error) {
		evts, err := s.repo.LatestEvents(ctx, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		out := eventList{Items: []EventResponse{}}
		for _, e := range evts {
			out.Items = append(out.Items, eventResponse(e))
		}
		return &struct {
			Body eventList `json:"body"`
		}{Body: out}, nil
	})
}
