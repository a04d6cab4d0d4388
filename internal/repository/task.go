package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/taskflow/taskflow-go/internal/model"
)

var ErrTaskNotFound = errors.New("task not found")

const taskColumns = `t.id, t.user_id, t.title, t.description, t.priority, t.start_date, t.start_time,
	t.deadline, t.reminder_minutes, t.set_time, t.completed, t.reminder_sent, t.overdue_notified,
	t.created_at, t.updated_at`

// sortColumns whitelists the ORDER BY expressions a caller may request.
var sortColumns = map[string]string{
	"created_at": "t.created_at",
	"deadline":   "t.deadline",
	"priority":   "FIELD(t.priority, 'low', 'medium', 'high')",
	"title":      "t.title",
	"start_date": "t.start_date",
}

// TaskFilter is a normalized list request for one user.
type TaskFilter struct {
	UserID    int64
	Priority  string
	Completed *bool
	SortBy    string
	Desc      bool
	Limit     int
	Offset    int
}

// TaskRepository handles task persistence operations.
type TaskRepository struct {
	db *sql.DB
}

// NewTaskRepository creates a new TaskRepository.
func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Create inserts a new task and sets the generated ID on the task struct.
func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	query := `INSERT INTO tasks (user_id, title, description, priority, start_date, start_time,
		deadline, reminder_minutes, set_time, completed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		task.UserID, task.Title, task.Description, task.Priority, task.StartDate, task.StartTime,
		task.Deadline, task.ReminderMinutes, task.SetTime, task.Completed,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}

	task.ID = id
	return nil
}

// GetByID retrieves a task owned by userID.
func (r *TaskRepository) GetByID(ctx context.Context, id, userID int64) (*model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks t WHERE t.id = ? AND t.user_id = ?`

	task := &model.Task{}
	err := r.db.QueryRowContext(ctx, query, id, userID).Scan(taskDest(task)...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}

	return task, nil
}

// List returns one page of tasks matching f and the total number of matches.
func (r *TaskRepository) List(ctx context.Context, f TaskFilter) ([]model.Task, int64, error) {
	where := []string{"t.user_id = ?"}
	args := []any{f.UserID}
	if f.Priority != "" {
		where = append(where, "t.priority = ?")
		args = append(args, f.Priority)
	}
	if f.Completed != nil {
		where = append(where, "t.completed = ?")
		args = append(args, *f.Completed)
	}
	clause := strings.Join(where, " AND ")

	var total int64
	countQuery := `SELECT COUNT(*) FROM tasks t WHERE ` + clause
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tasks: %w", err)
	}

	orderBy, ok := sortColumns[f.SortBy]
	if !ok {
		orderBy = sortColumns["created_at"]
	}
	direction := "ASC"
	if f.Desc {
		direction = "DESC"
	}

	query := fmt.Sprintf(`SELECT %s FROM tasks t WHERE %s ORDER BY %s %s, t.id %s LIMIT ? OFFSET ?`,
		taskColumns, clause, orderBy, direction, direction)

	rows, err := r.db.QueryContext(ctx, query, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []model.Task{}
	for rows.Next() {
		var t model.Task
		if err := rows.Scan(taskDest(&t)...); err != nil {
			return nil, 0, err
		}
		tasks = append(tasks, t)
	}

	return tasks, total, rows.Err()
}

// Update persists the editable fields of task. Completion and notification
// flags are written by their own conditional updates.
func (r *TaskRepository) Update(ctx context.Context, task *model.Task) error {
	query := `UPDATE tasks SET title = ?, description = ?, priority = ?, start_date = ?, start_time = ?,
		deadline = ?, reminder_minutes = ?, set_time = ?
		WHERE id = ? AND user_id = ?`

	_, err := r.db.ExecContext(ctx, query,
		task.Title, task.Description, task.Priority, task.StartDate, task.StartTime,
		task.Deadline, task.ReminderMinutes, task.SetTime, task.ID, task.UserID,
	)
	return err
}

// SetCompleted flips the completed flag and reports whether this call changed
// it. Only one of several concurrent callers observes the transition.
func (r *TaskRepository) SetCompleted(ctx context.Context, id, userID int64, completed bool) (bool, error) {
	query := `UPDATE tasks SET completed = ? WHERE id = ? AND user_id = ? AND completed = ?`
	return execChanged(ctx, r.db, query, completed, id, userID, !completed)
}

// Delete removes a task owned by userID.
func (r *TaskRepository) Delete(ctx context.Context, id, userID int64) error {
	changed, err := execChanged(ctx, r.db, `DELETE FROM tasks WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return err
	}
	if !changed {
		return ErrTaskNotFound
	}
	return nil
}

// ListReminderCandidates returns open tasks whose reminder is still unsent,
// whose deadline is after now and whose reminder window has opened, joined to
// their owner. Tasks whose owner no longer exists come back with an empty
// OwnerEmail.
func (r *TaskRepository) ListReminderCandidates(ctx context.Context, now time.Time) ([]model.TaskWithOwner, error) {
	query := `SELECT ` + taskColumns + `, COALESCE(u.name, ''), COALESCE(u.email, '')
		FROM tasks t LEFT JOIN users u ON u.id = t.user_id
		WHERE t.completed = FALSE AND t.reminder_sent = FALSE AND t.deadline > ?
		AND t.deadline <= ? + INTERVAL t.reminder_minutes MINUTE
		ORDER BY t.deadline ASC`
	return r.listWithOwner(ctx, query, now, now)
}

// ListOverdueCandidates returns open tasks past their deadline that have not
// been reported overdue yet.
func (r *TaskRepository) ListOverdueCandidates(ctx context.Context, now time.Time) ([]model.TaskWithOwner, error) {
	query := `SELECT ` + taskColumns + `, COALESCE(u.name, ''), COALESCE(u.email, '')
		FROM tasks t LEFT JOIN users u ON u.id = t.user_id
		WHERE t.completed = FALSE AND t.overdue_notified = FALSE AND t.deadline < ?
		ORDER BY t.deadline ASC`
	return r.listWithOwner(ctx, query, now)
}

// MarkReminderSent sets reminder_sent once. It reports false when another
// sweep already set it.
func (r *TaskRepository) MarkReminderSent(ctx context.Context, id int64) (bool, error) {
	return execChanged(ctx, r.db, `UPDATE tasks SET reminder_sent = TRUE WHERE id = ? AND reminder_sent = FALSE`, id)
}

// MarkOverdueNotified sets overdue_notified once.
func (r *TaskRepository) MarkOverdueNotified(ctx context.Context, id int64) (bool, error) {
	return execChanged(ctx, r.db, `UPDATE tasks SET overdue_notified = TRUE WHERE id = ? AND overdue_notified = FALSE`, id)
}

func (r *TaskRepository) listWithOwner(ctx context.Context, query string, args ...any) ([]model.TaskWithOwner, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []model.TaskWithOwner
	for rows.Next() {
		var t model.TaskWithOwner
		dest := append(taskDest(&t.Task), &t.OwnerName, &t.OwnerEmail)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}

	return tasks, rows.Err()
}

func taskDest(t *model.Task) []any {
	return []any{
		&t.ID, &t.UserID, &t.Title, &t.Description, &t.Priority, &t.StartDate, &t.StartTime,
		&t.Deadline, &t.ReminderMinutes, &t.SetTime, &t.Completed, &t.ReminderSent, &t.OverdueNotified,
		&t.CreatedAt, &t.UpdatedAt,
	}
}
