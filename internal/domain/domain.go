package domain

// Task statuses, persisted verbatim by the store.
const (
	StatusOpen       = "OPEN"
	StatusInProgress = "IN_PROGRESS"
	StatusCompleted  = "COMPLETED"
	StatusOnHold     = "ON_HOLD"
)

// Task priorities.
const (
	PriorityLow      = "Low"
	PriorityMedium   = "Medium"
	PriorityHigh     = "High"
	PriorityCritical = "Critical"
)

// TaskStatuses lists the valid statuses in board column order.
func TaskStatuses() []string {
	return []string{StatusOpen, StatusInProgress, StatusCompleted, StatusOnHold}
}

// ProgressForStatus is the board convention applied when a task moves between
// columns: OPEN resets progress, COMPLETED fills it, everything else lands in
// the middle. Nothing re-checks the pairing after a partial update.
func ProgressForStatus(status string) int {
	switch status {
	case StatusOpen:
		return 0
	case StatusCompleted:
		return 100
	default:
		return 50
	}
}

type Note struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	Author    string `json:"author"`
	AuthorID  string `json:"authorId"`
	Timestamp string `json:"timestamp"`
}

// Task is a unit of team work. Program is a soft reference by program NAME,
// and AssignedTo/AssignedToID denormalize the assignee; renaming a program or
// a user leaves historical tasks untouched.
type Task struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	DependentTasks []string `json:"dependentTasks"`
	Notes          []Note   `json:"notes"`
	Program        string   `json:"program"`
	AssignedTo     string   `json:"assignedTo"`
	AssignedToID   string   `json:"assignedToId"`
	Priority       string   `json:"priority"`
	StartDate      string   `json:"startDate"`
	PlannedEndDate string   `json:"plannedEndDate"`
	ActualEndDate  string   `json:"actualEndDate"`
	Status         string   `json:"status"`
	Progress       int      `json:"progress"`
	UpdatedAt      string   `json:"updatedAt"`
	UpdatedBy      string   `json:"updatedBy"`
}

type Program struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Color       string `json:"color"`
	CreatedAt   string `json:"createdAt"`
	CreatedBy   string `json:"createdBy"`
}

type User struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	Department string `json:"department"`
}

// AppState is the full synchronized snapshot. CurrentUser is a weak reference
// into Users, re-resolved on every rebuild.
type AppState struct {
	Tasks       []Task    `json:"tasks"`
	Programs    []Program `json:"programs"`
	Users       []User    `json:"users"`
	CurrentUser *User     `json:"currentUser,omitempty"`
}

// Copy returns a new envelope with fresh top-level slices. Entities are
// copied by value; slices nested inside a Task still share backing arrays.
func (s AppState) Copy() AppState {
	out := AppState{
		Tasks:    make([]Task, len(s.Tasks)),
		Programs: make([]Program, len(s.Programs)),
		Users:    make([]User, len(s.Users)),
	}
	copy(out.Tasks, s.Tasks)
	copy(out.Programs, s.Programs)
	copy(out.Users, s.Users)
	if s.CurrentUser != nil {
		u := *s.CurrentUser
		out.CurrentUser = &u
	}
	return out
}

// FindUser returns the user with the given id, or nil.
func (s AppState) FindUser(id string) *User {
	for i := range s.Users {
		if s.Users[i].ID == id {
			return &s.Users[i]
		}
	}
	return nil
}

// TaskPatch is a partial task update; nil fields are left unchanged.
type TaskPatch struct {
	Name           *string `json:"name,omitempty"`
	Description    *string `json:"description,omitempty"`
	Program        *string `json:"program,omitempty"`
	AssignedTo     *string `json:"assignedTo,omitempty"`
	AssignedToID   *string `json:"assignedToId,omitempty"`
	Priority       *string `json:"priority,omitempty"`
	StartDate      *string `json:"startDate,omitempty"`
	PlannedEndDate *string `json:"plannedEndDate,omitempty"`
	ActualEndDate  *string `json:"actualEndDate,omitempty"`
	Status         *string `json:"status,omitempty"`
	Progress       *int    `json:"progress,omitempty"`
}

type ProgramPatch struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Color       *string `json:"color,omitempty"`
}

type UserPatch struct {
	Name       *string `json:"name,omitempty"`
	Email      *string `json:"email,omitempty"`
	Role       *string `json:"role,omitempty"`
	Department *string `json:"department,omitempty"`
}
