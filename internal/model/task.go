package model

import "time"

// Task priorities.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

const (
	DefaultReminderMinutes = 10
	MaxReminderMinutes     = 1440
)

// Task represents a user task in the database.
type Task struct {
	ID              int64
	UserID          int64
	Title           string
	Description     string
	Priority        string
	StartDate       time.Time
	StartTime       string
	Deadline        time.Time
	ReminderMinutes int
	SetTime         int
	Completed       bool
	ReminderSent    bool
	OverdueNotified bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ReminderAt is the instant from which a reminder may be sent.
func (t *Task) ReminderAt() time.Time {
	minutes := t.ReminderMinutes
	if minutes <= 0 {
		minutes = DefaultReminderMinutes
	}
	return t.Deadline.Add(-time.Duration(minutes) * time.Minute)
}

// TaskWithOwner pairs a task with its owner's contact details. OwnerEmail is
// empty when the owning user no longer exists.
type TaskWithOwner struct {
	Task
	OwnerName  string
	OwnerEmail string
}

// OwnerExists reports whether the join found the owning user.
func (t *TaskWithOwner) OwnerExists() bool {
	return t.OwnerEmail != ""
}

// CreateTaskRequest represents a task creation request.
type CreateTaskRequest struct {
	Title           string     `json:"title" validate:"required,max=200"`
	Description     string     `json:"description" validate:"max=2000"`
	Priority        string     `json:"priority" validate:"omitempty,oneof=low medium high"`
	StartDate       string     `json:"start_date" validate:"required,datetime=2006-01-02"`
	StartTime       string     `json:"start_time" validate:"required,hhmm"`
	Deadline        *time.Time `json:"deadline" validate:"required"`
	ReminderMinutes *int       `json:"reminder_minutes" validate:"omitempty,min=1,max=1440"`
	SetTime         int        `json:"set_time" validate:"required,gt=0"`
	Completed       bool       `json:"completed"`
}

// UpdateTaskRequest is a partial update; nil fields are left untouched.
type UpdateTaskRequest struct {
	Title           *string    `json:"title" validate:"omitempty,min=1,max=200"`
	Description     *string    `json:"description" validate:"omitempty,max=2000"`
	Priority        *string    `json:"priority" validate:"omitempty,oneof=low medium high"`
	StartDate       *string    `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	StartTime       *string    `json:"start_time" validate:"omitempty,hhmm"`
	Deadline        *time.Time `json:"deadline"`
	ReminderMinutes *int       `json:"reminder_minutes" validate:"omitempty,min=1,max=1440"`
	SetTime         *int       `json:"set_time" validate:"omitempty,gt=0"`
	Completed       *bool      `json:"completed"`
}

// TaskListQuery describes filtering, sorting and pagination for listing tasks.
type TaskListQuery struct {
	Priority  string `json:"priority" validate:"omitempty,oneof=low medium high"`
	Completed *bool  `json:"completed"`
	SortBy    string `json:"sort_by" validate:"omitempty,oneof=created_at deadline priority title start_date"`
	Order     string `json:"order" validate:"omitempty,oneof=asc desc"`
	Page      int    `json:"page" validate:"min=0,max=1000000"`
	Limit     int    `json:"limit" validate:"min=0,max=100"`
}

// TaskResponse represents a task in API responses.
type TaskResponse struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Priority        string    `json:"priority"`
	StartDate       string    `json:"start_date"`
	StartTime       string    `json:"start_time"`
	Deadline        time.Time `json:"deadline"`
	ReminderMinutes int       `json:"reminder_minutes"`
	SetTime         int       `json:"set_time"`
	Completed       bool      `json:"completed"`
	ReminderSent    bool      `json:"reminder_sent"`
	OverdueNotified bool      `json:"overdue_notified"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TaskListResponse is a page of tasks.
type TaskListResponse struct {
	Tasks       []TaskResponse `json:"tasks"`
	Total       int64          `json:"total"`
	TotalPages  int            `json:"total_pages"`
	CurrentPage int            `json:"current_page"`
}

// NewTaskResponse converts a stored task into its API representation.
func NewTaskResponse(t *Task) TaskResponse {
	return TaskResponse{
		ID:              t.ID,
		Title:           t.Title,
		Description:     t.Description,
		Priority:        t.Priority,
		StartDate:       t.StartDate.Format("2006-01-02"),
		StartTime:       t.StartTime,
		Deadline:        t.Deadline,
		ReminderMinutes: t.ReminderMinutes,
		SetTime:         t.SetTime,
		Completed:       t.Completed,
		ReminderSent:    t.ReminderSent,
		OverdueNotified: t.OverdueNotified,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
}
