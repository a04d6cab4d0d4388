package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/taskflow/taskflow-go/internal/mail"
	"github.com/taskflow/taskflow-go/internal/model"
	"github.com/taskflow/taskflow-go/internal/repository"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore is an in-memory UserStore and TaskStore sharing one set of rows,
// so account deletion can cascade the way the SQL transaction does.
type memStore struct {
	mu       sync.Mutex
	users    map[int64]*model.User
	tasks    map[int64]*model.Task
	nextUser int64
	nextTask int64
}

func newMemStore() *memStore {
	return &memStore{users: map[int64]*model.User{}, tasks: map[int64]*model.Task{}}
}

func (s *memStore) Create(ctx context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == user.Email {
			return repository.ErrDuplicateEmail
		}
	}
	s.nextUser++
	user.ID = s.nextUser
	user.CreatedAt = time.Now()
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *memStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (s *memStore) GetByID(ctx context.Context, id int64) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memStore) withUser(id int64, fn func(u *model.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	fn(u)
	return nil
}

func (s *memStore) UpdateSignup(ctx context.Context, id int64, name, hash string) error {
	return s.withUser(id, func(u *model.User) { u.Name = name; u.PasswordHash = hash })
}

func (s *memStore) SetOTP(ctx context.Context, id int64, code string, expiresAt time.Time) error {
	return s.withUser(id, func(u *model.User) { u.OTPCode = &code; u.OTPExpiresAt = &expiresAt })
}

func (s *memStore) ClearOTP(ctx context.Context, id int64) error {
	return s.withUser(id, func(u *model.User) { u.OTPCode = nil; u.OTPExpiresAt = nil })
}

func (s *memStore) MarkVerified(ctx context.Context, id int64) error {
	return s.withUser(id, func(u *model.User) { u.IsVerified = true; u.OTPCode = nil; u.OTPExpiresAt = nil })
}

func (s *memStore) UpdatePassword(ctx context.Context, id int64, hash string) error {
	return s.withUser(id, func(u *model.User) { u.PasswordHash = hash; u.OTPCode = nil; u.OTPExpiresAt = nil })
}

func (s *memStore) UpdateProfile(ctx context.Context, user *model.User) error {
	return s.withUser(user.ID, func(u *model.User) { u.Name = user.Name; u.ProfilePicture = user.ProfilePicture })
}

func (s *memStore) DeleteWithTasks(ctx context.Context, id int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return 0, repository.ErrUserNotFound
	}
	var n int64
	for tid, t := range s.tasks {
		if t.UserID == id {
			delete(s.tasks, tid)
			n++
		}
	}
	delete(s.users, id)
	return n, nil
}

// taskView adapts memStore to TaskStore; Create/GetByID collide with the
// user methods otherwise.
type taskView struct{ *memStore }

func (v taskView) Create(ctx context.Context, task *model.Task) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.nextTask++
	task.ID = v.nextTask
	task.CreatedAt = time.Now()
	task.UpdatedAt = task.CreatedAt
	cp := *task
	v.tasks[task.ID] = &cp
	return nil
}

func (v taskView) GetByID(ctx context.Context, id, userID int64) (*model.Task, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	t, ok := v.tasks[id]
	if !ok || t.UserID != userID {
		return nil, repository.ErrTaskNotFound
	}
	cp := *t
	return &cp, nil
}

func (v taskView) List(ctx context.Context, f repository.TaskFilter) ([]model.Task, int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var all []model.Task
	for _, t := range v.tasks {
		if t.UserID != f.UserID {
			continue
		}
		if f.Priority != "" && t.Priority != f.Priority {
			continue
		}
		if f.Completed != nil && t.Completed != *f.Completed {
			continue
		}
		all = append(all, *t)
	}
	sort.Slice(all, func(i, j int) bool {
		if f.Desc {
			return all[i].ID > all[j].ID
		}
		return all[i].ID < all[j].ID
	})
	total := int64(len(all))
	if f.Offset >= len(all) {
		return []model.Task{}, total, nil
	}
	end := f.Offset + f.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[f.Offset:end], total, nil
}

func (v taskView) Update(ctx context.Context, task *model.Task) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	t, ok := v.tasks[task.ID]
	if !ok || t.UserID != task.UserID {
		return nil
	}
	completed, reminder, overdue := t.Completed, t.ReminderSent, t.OverdueNotified
	*t = *task
	t.Completed, t.ReminderSent, t.OverdueNotified = completed, reminder, overdue
	return nil
}

func (v taskView) SetCompleted(ctx context.Context, id, userID int64, completed bool) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	t, ok := v.tasks[id]
	if !ok || t.UserID != userID || t.Completed == completed {
		return false, nil
	}
	t.Completed = completed
	return true, nil
}

func (v taskView) Delete(ctx context.Context, id, userID int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	t, ok := v.tasks[id]
	if !ok || t.UserID != userID {
		return repository.ErrTaskNotFound
	}
	delete(v.tasks, id)
	return nil
}

type fakeMailQueue struct {
	mu     sync.Mutex
	msgs   []mail.Message
	reject bool
}

func (q *fakeMailQueue) Enqueue(msg mail.Message) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.reject {
		return false
	}
	q.msgs = append(q.msgs, msg)
	return true
}

func (q *fakeMailQueue) byCategory(c mail.Category) []mail.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []mail.Message
	for _, m := range q.msgs {
		if m.Category == c {
			out = append(out, m)
		}
	}
	return out
}

// fakeCooldown allows each key once.
type fakeCooldown struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (c *fakeCooldown) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seen == nil {
		c.seen = map[string]bool{}
	}
	if c.seen[key] {
		return false, nil
	}
	c.seen[key] = true
	return true, nil
}
