// Package scheduler periodically scans open tasks and emails their owners a
// reminder shortly before the deadline and a notice once it has passed.
//
// Each task gets at most one reminder and one overdue email. The flag is set
// only after the email went out, so a failed send is retried on the next
// sweep.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/taskflow/taskflow-go/internal/lock"
	"github.com/taskflow/taskflow-go/internal/mail"
	"github.com/taskflow/taskflow-go/internal/metrics"
	"github.com/taskflow/taskflow-go/internal/model"
)

const (
	lockName = "notification-sweep"

	defaultInterval    = time.Minute
	defaultConcurrency = 4
	defaultSendTimeout = 15 * time.Second

	markTimeout = 5 * time.Second
)

// Store is the task persistence the scheduler needs.
// repository.TaskRepository implements it.
type Store interface {
	ListReminderCandidates(ctx context.Context, now time.Time) ([]model.TaskWithOwner, error)
	ListOverdueCandidates(ctx context.Context, now time.Time) ([]model.TaskWithOwner, error)
	MarkReminderSent(ctx context.Context, id int64) (bool, error)
	MarkOverdueNotified(ctx context.Context, id int64) (bool, error)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithInterval sets the time between sweeps.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithConcurrency bounds the sends in flight within one scan.
func WithConcurrency(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithSendTimeout bounds a single email delivery.
func WithSendTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.sendTimeout = d
		}
	}
}

// Scheduler runs notification sweeps on a fixed interval.
type Scheduler struct {
	store  Store
	sender mail.Sender
	locker lock.Locker
	logger *slog.Logger

	now         func() time.Time
	interval    time.Duration
	concurrency int
	sendTimeout time.Duration

	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// SweepResult summarises one sweep.
type SweepResult struct {
	Reminders int
	Overdue   int
	Failed    int
	Skipped   int
	// Deferred counts tasks left for the next sweep because this one ran
	// out of time.
	Deferred int
}

// New creates a Scheduler. Call Start to begin ticking.
func New(store Store, sender mail.Sender, locker lock.Locker, logger *slog.Logger, opts ...Option) *Scheduler {
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	s := &Scheduler{
		store:       store,
		sender:      sender,
		locker:      locker,
		logger:      logger,
		now:         time.Now,
		interval:    defaultInterval,
		concurrency: defaultConcurrency,
		sendTimeout: defaultSendTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs one sweep immediately and then one per interval until ctx is
// cancelled or Stop is called. Calling Start twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	s.logger.Info("notification scheduler started",
		slog.String("interval", s.interval.String()),
		slog.Int("concurrency", s.concurrency))

	go s.loop(ctx, s.done)
}

// Stop cancels the loop and waits for an in-flight sweep to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return
	}

	cancel()
	<-done
	s.logger.Info("notification scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	s.Sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs the reminder scan and then the overdue scan once. It returns
// immediately when a sweep is already running in this process or another
// replica holds the sweep lock.
func (s *Scheduler) Sweep(ctx context.Context) SweepResult {
	if !s.running.CompareAndSwap(false, true) {
		metrics.SweepsSkipped.WithLabelValues("overlap").Inc()
		s.logger.Debug("sweep skipped, previous sweep still running")
		return SweepResult{}
	}
	defer s.running.Store(false)

	release, ok, err := s.locker.TryLock(ctx, lockName, s.lockTTL())
	if err != nil {
		metrics.SweepsSkipped.WithLabelValues("lock_error").Inc()
		s.logger.Error("sweep skipped, lock unavailable", slog.String("error", err.Error()))
		return SweepResult{}
	}
	if !ok {
		metrics.SweepsSkipped.WithLabelValues("locked").Inc()
		s.logger.Debug("sweep skipped, lock held elsewhere")
		return SweepResult{}
	}
	defer release()

	start := time.Now()
	now := s.now()

	// No send starts after cutoff, so the sweep ends within lockTTL.
	cutoff := now.Add(s.interval)

	var res SweepResult
	s.scanReminders(ctx, now, cutoff, &res)
	s.scanOverdue(ctx, now, cutoff, &res)

	metrics.SweepsTotal.Inc()
	metrics.SweepDuration.Observe(time.Since(start).Seconds())

	if res.Reminders+res.Overdue+res.Failed+res.Deferred > 0 {
		s.logger.Info("sweep finished",
			slog.Int("reminders", res.Reminders),
			slog.Int("overdue", res.Overdue),
			slog.Int("failed", res.Failed),
			slog.Int("skipped", res.Skipped),
			slog.Int("deferred", res.Deferred),
			slog.Duration("duration", time.Since(start)))
	}
	return res
}

// lockTTL covers the longest sweep: sends start until the cutoff one interval
// in, and the last one may take sendTimeout plus markTimeout to finish.
func (s *Scheduler) lockTTL() time.Duration {
	return s.interval + s.sendTimeout + markTimeout
}

func (s *Scheduler) scanReminders(ctx context.Context, now, cutoff time.Time, res *SweepResult) {
	tasks, err := s.store.ListReminderCandidates(ctx, now)
	if err != nil {
		s.logger.Error("reminder scan failed", slog.String("error", err.Error()))
		return
	}

	// The query already applies the window; this guards other Store
	// implementations.
	due := tasks[:0]
	for _, t := range tasks {
		if !now.Before(t.ReminderAt()) {
			due = append(due, t)
		}
	}

	s.notifyAll(ctx, due, cutoff, mail.Reminder, s.store.MarkReminderSent, res, &res.Reminders)
}

func (s *Scheduler) scanOverdue(ctx context.Context, now, cutoff time.Time, res *SweepResult) {
	tasks, err := s.store.ListOverdueCandidates(ctx, now)
	if err != nil {
		s.logger.Error("overdue scan failed", slog.String("error", err.Error()))
		return
	}

	s.notifyAll(ctx, tasks, cutoff, mail.Overdue, s.store.MarkOverdueNotified, res, &res.Overdue)
}

func (s *Scheduler) notifyAll(
	ctx context.Context,
	tasks []model.TaskWithOwner,
	cutoff time.Time,
	build func(model.TaskWithOwner) mail.Message,
	mark func(context.Context, int64) (bool, error),
	res *SweepResult,
	sent *int,
) {
	var mu sync.Mutex
	count := func(p *int) {
		mu.Lock()
		*p++
		mu.Unlock()
	}

	var g errgroup.Group
	g.SetLimit(s.concurrency)

	for _, t := range tasks {
		if ctx.Err() != nil {
			break
		}
		if !t.OwnerExists() {
			s.logger.Warn("notification skipped, task owner missing",
				slog.Int64("task_id", t.ID),
				slog.Int64("user_id", t.UserID))
			count(&res.Skipped)
			continue
		}

		g.Go(func() error {
			if s.now().After(cutoff) {
				count(&res.Deferred)
				return nil
			}
			if err := s.notify(ctx, t, build(t), mark); err != nil {
				count(&res.Failed)
				return nil
			}
			count(sent)
			return nil
		})
	}

	_ = g.Wait()
}

// notify sends msg and then sets the task's flag. The flag stays unset when
// the send fails.
func (s *Scheduler) notify(ctx context.Context, t model.TaskWithOwner, msg mail.Message, mark func(context.Context, int64) (bool, error)) error {
	category := string(msg.Category)

	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	err := s.sender.Send(sendCtx, msg)
	cancel()
	if err != nil {
		metrics.NotificationsFailed.WithLabelValues(category).Inc()
		s.logger.Error("notification email failed",
			slog.String("category", category),
			slog.Int64("task_id", t.ID),
			slog.String("error", err.Error()))
		return err
	}
	metrics.NotificationsSent.WithLabelValues(category).Inc()

	markCtx, cancel := context.WithTimeout(ctx, markTimeout)
	changed, err := mark(markCtx, t.ID)
	cancel()
	if err != nil {
		s.logger.Error("notification flag not saved",
			slog.String("category", category),
			slog.Int64("task_id", t.ID),
			slog.String("error", err.Error()))
		return err
	}
	if !changed {
		s.logger.Debug("notification flag already set", slog.Int64("task_id", t.ID))
	}

	s.logger.Info("notification sent",
		slog.String("category", category),
		slog.Int64("task_id", t.ID),
		slog.Int64("user_id", t.UserID))
	return nil
}
