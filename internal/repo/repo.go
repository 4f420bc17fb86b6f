package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"bpdcentral/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// --- tasks ---

const taskColumns = `id,name,COALESCE(description,''),COALESCE(program,''),COALESCE(assigned_to,''),COALESCE(assigned_to_id,''),COALESCE(priority,''),COALESCE(start_date,''),COALESCE(planned_end_date,''),COALESCE(actual_end_date,''),status,progress,dependent_tasks_json,updated_at,COALESCE(updated_by,'')`

func scanTask(scan func(dest ...any) error) (domain.Task, error) {
	var t domain.Task
	var deps sql.NullString
	err := scan(&t.ID, &t.Name, &t.Description, &t.Program, &t.AssignedTo, &t.AssignedToID,
		&t.Priority, &t.StartDate, &t.PlannedEndDate, &t.ActualEndDate, &t.Status, &t.Progress,
		&deps, &t.UpdatedAt, &t.UpdatedBy)
	if err != nil {
		return t, err
	}
	if deps.Valid && deps.String != "" {
		_ = json.Unmarshal([]byte(deps.String), &t.DependentTasks)
	}
	// Notes are not persisted; the collection is always empty at read time.
	return t, nil
}

// ListTasks returns all tasks, most recently updated first.
func (r Repo) ListTasks(ctx context.Context) ([]domain.Task, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY updated_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id)
	t, err := scanTask(row.Scan)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

func (r Repo) InsertTaskTx(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	deps, err := json.Marshal(t.DependentTasks)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO tasks(id,name,description,program,assigned_to,assigned_to_id,priority,start_date,planned_end_date,actual_end_date,status,progress,dependent_tasks_json,updated_at,updated_by)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Name, nullable(t.Description), nullable(t.Program), nullable(t.AssignedTo), nullable(t.AssignedToID),
		nullable(t.Priority), nullable(t.StartDate), nullable(t.PlannedEndDate), nullable(t.ActualEndDate),
		t.Status, t.Progress, string(deps), t.UpdatedAt, nullable(t.UpdatedBy))
	return err
}

// taskUpdateColumns whitelists the snake_case fields a partial task update may set.
var taskUpdateColumns = map[string]bool{
	"name": true, "description": true, "program": true,
	"assigned_to": true, "assigned_to_id": true, "priority": true,
	"start_date": true, "planned_end_date": true, "actual_end_date": true,
	"status": true, "progress": true, "updated_at": true, "updated_by": true,
}

func (r Repo) UpdateTaskTx(ctx context.Context, tx *sql.Tx, id string, fields map[string]any) error {
	return partialUpdate(ctx, tx, "tasks", id, fields, taskUpdateColumns)
}

func (r Repo) DeleteTaskTx(ctx context.Context, tx *sql.Tx, id string) error {
	return deleteRow(ctx, tx, "tasks", id)
}

// --- programs ---

const programColumns = `id,name,COALESCE(description,''),COALESCE(color,''),created_at,COALESCE(created_by,'')`

func (r Repo) ListPrograms(ctx context.Context) ([]domain.Program, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+programColumns+` FROM programs ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Program
	for rows.Next() {
		var p domain.Program
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Color, &p.CreatedAt, &p.CreatedBy); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) GetProgram(ctx context.Context, id string) (domain.Program, error) {
	var p domain.Program
	err := r.DB.QueryRowContext(ctx, `SELECT `+programColumns+` FROM programs WHERE id=?`, id).
		Scan(&p.ID, &p.Name, &p.Description, &p.Color, &p.CreatedAt, &p.CreatedBy)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

func (r Repo) InsertProgramTx(ctx context.Context, tx *sql.Tx, p domain.Program) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO programs(id,name,description,color,created_at,created_by) VALUES (?,?,?,?,?,?)`,
		p.ID, p.Name, nullable(p.Description), nullable(p.Color), p.CreatedAt, nullable(p.CreatedBy))
	return err
}

var programUpdateColumns = map[string]bool{"name": true, "description": true, "color": true}

func (r Repo) UpdateProgramTx(ctx context.Context, tx *sql.Tx, id string, fields map[string]any) error {
	return partialUpdate(ctx, tx, "programs", id, fields, programUpdateColumns)
}

func (r Repo) DeleteProgramTx(ctx context.Context, tx *sql.Tx, id string) error {
	return deleteRow(ctx, tx, "programs", id)
}

// --- users ---

const userColumns = `id,name,COALESCE(email,''),COALESCE(role,''),COALESCE(department,'')`

func (r Repo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.Department); err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	err := r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id).
		Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.Department)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	return u, err
}

func (r Repo) InsertUserTx(ctx context.Context, tx *sql.Tx, u domain.User) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO users(id,name,email,role,department) VALUES (?,?,?,?,?)`,
		u.ID, u.Name, nullable(u.Email), nullable(u.Role), nullable(u.Department))
	return err
}

var userUpdateColumns = map[string]bool{"name": true, "email": true, "role": true, "department": true}

func (r Repo) UpdateUserTx(ctx context.Context, tx *sql.Tx, id string, fields map[string]any) error {
	return partialUpdate(ctx, tx, "users", id, fields, userUpdateColumns)
}

func (r Repo) DeleteUserTx(ctx context.Context, tx *sql.Tx, id string) error {
	return deleteRow(ctx, tx, "users", id)
}

// --- events ---

func (r Repo) LatestEvents(ctx context.Context, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),COALESCE(actor,''),payload_json FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.Actor, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// MaxEventID returns the highest change-log id, 0 when the log is empty.
func (r Repo) MaxEventID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	if err := r.DB.QueryRowContext(ctx, `SELECT MAX(id) FROM events`).Scan(&id); err != nil {
		return 0, err
	}
	return id.Int64, nil
}

// EventsSince returns change-log rows with id greater than the given id, oldest first.
func (r Repo) EventsSince(ctx context.Context, sinceID int64) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),COALESCE(actor,''),payload_json FROM events WHERE id > ? ORDER BY id ASC`, sinceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.Actor, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// --- helpers ---

func partialUpdate(ctx context.Context, tx *sql.Tx, table, id string, fields map[string]any, allowed map[string]bool) error {
	var (
		cols []string
		args []any
	)
	for col, v := range fields {
		if !allowed[col] {
			return fmt.Errorf("column %s not updatable on %s", col, table)
		}
		cols = append(cols, col+"=?")
		args = append(args, v)
	}
	if len(cols) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET %s WHERE id=?`, table, strings.Join(cols, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func deleteRow(ctx context.Context, tx *sql.Tx, table, id string) error {
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id=?`, table), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
