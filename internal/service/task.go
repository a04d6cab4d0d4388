package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/taskflow/taskflow-go/internal/mail"
	"github.com/taskflow/taskflow-go/internal/model"
	"github.com/taskflow/taskflow-go/internal/repository"
	"github.com/taskflow/taskflow-go/internal/validate"
)

const (
	dateLayout = "2006-01-02"

	defaultPageLimit = 10
)

// TaskService implements per-user task CRUD.
type TaskService struct {
	tasks     TaskStore
	users     UserLookup
	mailer    MailQueue
	validator *validate.Validator
	logger    *slog.Logger
}

// NewTaskService creates a new TaskService.
func NewTaskService(tasks TaskStore, users UserLookup, mailer MailQueue, v *validate.Validator, logger *slog.Logger) *TaskService {
	return &TaskService{
		tasks:     tasks,
		users:     users,
		mailer:    mailer,
		validator: v,
		logger:    logger,
	}
}

// Create stores a new task for userID. Notification flags always start false.
func (s *TaskService) Create(ctx context.Context, userID int64, req model.CreateTaskRequest) (model.TaskResponse, error) {
	req.Title = strings.TrimSpace(req.Title)
	if err := s.validator.Struct(req); err != nil {
		return model.TaskResponse{}, err
	}

	startDate, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		return model.TaskResponse{}, validate.Fail("start_date", "must be a date formatted as YYYY-MM-DD")
	}

	task := &model.Task{
		UserID:          userID,
		Title:           req.Title,
		Description:     strings.TrimSpace(req.Description),
		Priority:        req.Priority,
		StartDate:       startDate,
		StartTime:       req.StartTime,
		Deadline:        req.Deadline.UTC(),
		ReminderMinutes: model.DefaultReminderMinutes,
		SetTime:         req.SetTime,
		Completed:       req.Completed,
	}
	if task.Priority == "" {
		task.Priority = model.PriorityMedium
	}
	if req.ReminderMinutes != nil {
		task.ReminderMinutes = *req.ReminderMinutes
	}

	if err := s.tasks.Create(ctx, task); err != nil {
		return model.TaskResponse{}, fmt.Errorf("create task: %w", err)
	}

	created, err := s.tasks.GetByID(ctx, task.ID, userID)
	if err != nil {
		return model.TaskResponse{}, mapTaskErr(err)
	}
	return model.NewTaskResponse(created), nil
}

// Get returns one task owned by userID.
func (s *TaskService) Get(ctx context.Context, userID, id int64) (model.TaskResponse, error) {
	task, err := s.tasks.GetByID(ctx, id, userID)
	if err != nil {
		return model.TaskResponse{}, mapTaskErr(err)
	}
	return model.NewTaskResponse(task), nil
}

// List returns a filtered, sorted page of userID's tasks.
func (s *TaskService) List(ctx context.Context, userID int64, q model.TaskListQuery) (model.TaskListResponse, error) {
	if err := s.validator.Struct(q); err != nil {
		return model.TaskListResponse{}, err
	}

	page := q.Page
	if page < 1 {
		page = 1
	}
	limit := q.Limit
	if limit < 1 {
		limit = defaultPageLimit
	}
	sortBy := q.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}

	tasks, total, err := s.tasks.List(ctx, repository.TaskFilter{
		UserID:    userID,
		Priority:  q.Priority,
		Completed: q.Completed,
		SortBy:    sortBy,
		Desc:      q.Order != "asc",
		Limit:     limit,
		Offset:    (page - 1) * limit,
	})
	if err != nil {
		return model.TaskListResponse{}, err
	}

	resp := model.TaskListResponse{
		Tasks:       make([]model.TaskResponse, 0, len(tasks)),
		Total:       total,
		TotalPages:  int((total + int64(limit) - 1) / int64(limit)),
		CurrentPage: page,
	}
	for i := range tasks {
		resp.Tasks = append(resp.Tasks, model.NewTaskResponse(&tasks[i]))
	}
	return resp, nil
}

// Update applies a partial update. Marking an open task completed sends one
// congratulation email; repeating the update sends nothing.
func (s *TaskService) Update(ctx context.Context, userID, id int64, req model.UpdateTaskRequest) (model.TaskResponse, error) {
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		req.Title = &title
	}
	if err := s.validator.Struct(req); err != nil {
		return model.TaskResponse{}, err
	}

	task, err := s.tasks.GetByID(ctx, id, userID)
	if err != nil {
		return model.TaskResponse{}, mapTaskErr(err)
	}

	changed, err := applyUpdate(task, req)
	if err != nil {
		return model.TaskResponse{}, err
	}
	if changed {
		if err := s.tasks.Update(ctx, task); err != nil {
			return model.TaskResponse{}, fmt.Errorf("update task: %w", err)
		}
	}

	if req.Completed != nil {
		flipped, err := s.tasks.SetCompleted(ctx, id, userID, *req.Completed)
		if err != nil {
			return model.TaskResponse{}, fmt.Errorf("set completed: %w", err)
		}
		if flipped && *req.Completed {
			s.notifyCompletion(ctx, task)
		}
	}

	updated, err := s.tasks.GetByID(ctx, id, userID)
	if err != nil {
		return model.TaskResponse{}, mapTaskErr(err)
	}
	return model.NewTaskResponse(updated), nil
}

// Delete removes a task owned by userID.
func (s *TaskService) Delete(ctx context.Context, userID, id int64) error {
	return mapTaskErr(s.tasks.Delete(ctx, id, userID))
}

func (s *TaskService) notifyCompletion(ctx context.Context, task *model.Task) {
	owner, err := s.users.GetByID(ctx, task.UserID)
	if err != nil {
		s.logger.Warn("completion email skipped, owner lookup failed",
			slog.Int64("task_id", task.ID),
			slog.String("error", err.Error()))
		return
	}
	if owner.Email == "" {
		return
	}
	if !s.mailer.Enqueue(mail.Completion(owner.Email, task)) {
		s.logger.Warn("completion email not queued", slog.Int64("task_id", task.ID))
	}
}

// applyUpdate copies the set fields of req onto task and reports whether any
// column other than completed changed.
func applyUpdate(task *model.Task, req model.UpdateTaskRequest) (bool, error) {
	changed := false

	if req.Title != nil {
		task.Title = *req.Title
		changed = true
	}
	if req.Description != nil {
		task.Description = strings.TrimSpace(*req.Description)
		changed = true
	}
	if req.Priority != nil {
		task.Priority = *req.Priority
		changed = true
	}
	if req.StartDate != nil {
		d, err := time.Parse(dateLayout, *req.StartDate)
		if err != nil {
			return false, validate.Fail("start_date", "must be a date formatted as YYYY-MM-DD")
		}
		task.StartDate = d
		changed = true
	}
	if req.StartTime != nil {
		task.StartTime = *req.StartTime
		changed = true
	}
	if req.Deadline != nil {
		task.Deadline = req.Deadline.UTC()
		changed = true
	}
	if req.ReminderMinutes != nil {
		task.ReminderMinutes = *req.ReminderMinutes
		changed = true
	}
	if req.SetTime != nil {
		task.SetTime = *req.SetTime
		changed = true
	}

	return changed, nil
}
