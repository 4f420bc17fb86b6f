package server

import (
	"bpdcentral/internal/domain"
)

// The store boundary speaks snake_case; these DTOs are the wire shape of the
// canonical entities.

// Request payloads

// Record requests leave id and name optional at the schema level; the
// handlers answer missing values with their own bad_request envelope.

type TaskRecordRequest struct {
	ID             string   `json:"id,omitempty"`
	Name           string   `json:"name,omitempty"`
	Description    string   `json:"description,omitempty"`
	Program        string   `json:"program,omitempty"`
	AssignedTo     string   `json:"assigned_to,omitempty"`
	AssignedToID   string   `json:"assigned_to_id,omitempty"`
	Priority       string   `json:"priority,omitempty"`
	StartDate      string   `json:"start_date,omitempty"`
	PlannedEndDate string   `json:"planned_end_date,omitempty"`
	ActualEndDate  string   `json:"actual_end_date,omitempty"`
	Status         string   `json:"status,omitempty"`
	Progress       int      `json:"progress,omitempty" minimum:"0" maximum:"100"`
	DependentTasks []string `json:"dependent_tasks,omitempty"`
	UpdatedAt      string   `json:"updated_at,omitempty" format:"date-time"`
	UpdatedBy      string   `json:"updated_by,omitempty"`
}

type TaskPatchRequest struct {
	Name           *string `json:"name,omitempty"`
	Description    *string `json:"description,omitempty"`
	Program        *string `json:"program,omitempty"`
	AssignedTo     *string `json:"assigned_to,omitempty"`
	AssignedToID   *string `json:"assigned_to_id,omitempty"`
	Priority       *string `json:"priority,omitempty"`
	StartDate      *string `json:"start_date,omitempty"`
	PlannedEndDate *string `json:"planned_end_date,omitempty"`
	ActualEndDate  *string `json:"actual_end_date,omitempty"`
	Status         *string `json:"status,omitempty" enum:"OPEN,IN_PROGRESS,COMPLETED,ON_HOLD"`
	Progress       *int    `json:"progress,omitempty" minimum:"0" maximum:"100"`
	UpdatedAt      *string `json:"updated_at,omitempty" format:"date-time"`
	UpdatedBy      *string `json:"updated_by,omitempty"`
}

func (p TaskPatchRequest) fields() map[string]any {
	out := map[string]any{}
	setString(out, "name", p.Name)
	setString(out, "description", p.Description)
	setString(out, "program", p.Program)
	setString(out, "assigned_to", p.AssignedTo)
	setString(out, "assigned_to_id", p.AssignedToID)
	setString(out, "priority", p.Priority)
	setString(out, "start_date", p.StartDate)
	setString(out, "planned_end_date", p.PlannedEndDate)
	setString(out, "actual_end_date", p.ActualEndDate)
	setString(out, "status", p.Status)
	setString(out, "updated_at", p.UpdatedAt)
	setString(out, "updated_by", p.UpdatedBy)
	if p.Progress != nil {
		out["progress"] = *p.Progress
	}
	return out
}

type ProgramRecordRequest struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Color       string `json:"color,omitempty"`
	CreatedAt   string `json:"created_at,omitempty" format:"date-time"`
	CreatedBy   string `json:"created_by,omitempty"`
}

type ProgramPatchRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Color       *string `json:"color,omitempty"`
}

func (p ProgramPatchRequest) fields() map[string]any {
	out := map[string]any{}
	setString(out, "name", p.Name)
	setString(out, "description", p.Description)
	setString(out, "color", p.Color)
	return out
}

type UserRecordRequest struct {
	ID         string `json:"id,omitempty"`
	Name       string `json:"name,omitempty"`
	Email      string `json:"email,omitempty"`
	Role       string `json:"role,omitempty"`
	Department string `json:"department,omitempty"`
}

type UserPatchRequest struct {
	Name       *string `json:"name,omitempty"`
	Email      *string `json:"email,omitempty"`
	Role       *string `json:"role,omitempty"`
	Department *string `json:"department,omitempty"`
}

func (p UserPatchRequest) fields() map[string]any {
	out := map[string]any{}
	setString(out, "name", p.Name)
	setString(out, "email", p.Email)
	setString(out, "role", p.Role)
	setString(out, "department", p.Department)
	return out
}

// Response payloads

type TaskResponse struct {
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
	Status         string   `json:"status"`
	Progress       int      `json:"progress"`
	DependentTasks []string `json:"dependent_tasks,omitempty"`
	UpdatedAt      string   `json:"updated_at" format:"date-time"`
	UpdatedBy      string   `json:"updated_by,omitempty"`
}

type ProgramResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Color       string `json:"color,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
	CreatedBy   string `json:"created_by,omitempty"`
}

type UserResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	Role       string `json:"role,omitempty"`
	Department string `json:"department,omitempty"`
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Actor      string `json:"actor,omitempty"`
	Payload    string `json:"payload_json"`
}

type taskList struct {
	Items []TaskResponse `json:"items"`
}

type programList struct {
	Items []ProgramResponse `json:"items"`
}

type userList struct {
	Items []UserResponse `json:"items"`
}

type eventList struct {
	Items []EventResponse `json:"items"`
}

// Conversion helpers

func taskResponse(t domain.Task) TaskResponse {
	return TaskResponse{
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

func taskFromRequest(req TaskRecordRequest) domain.Task {
	return domain.Task{
		ID:             req.ID,
		Name:           req.Name,
		Description:    req.Description,
		Program:        req.Program,
		AssignedTo:     req.AssignedTo,
		AssignedToID:   req.AssignedToID,
		Priority:       req.Priority,
		StartDate:      req.StartDate,
		PlannedEndDate: req.PlannedEndDate,
		ActualEndDate:  req.ActualEndDate,
		Status:         req.Status,
		Progress:       req.Progress,
		DependentTasks: req.DependentTasks,
		UpdatedAt:      req.UpdatedAt,
		UpdatedBy:      req.UpdatedBy,
	}
}

func programResponse(p domain.Program) ProgramResponse {
	return ProgramResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Color:       p.Color,
		CreatedAt:   p.CreatedAt,
		CreatedBy:   p.CreatedBy,
	}
}

func programFromRequest(req ProgramRecordRequest) domain.Program {
	return domain.Program(req)
}

func userResponse(u domain.User) UserResponse {
	return UserResponse(u)
}

func userFromRequest(req UserRecordRequest) domain.User {
	return domain.User(req)
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		Actor:      e.Actor,
		Payload:    e.Payload,
	}
}

func setString(fields map[string]any, col string, v *string) {
	if v != nil {
		fields[col] = *v
	}
}
