package mail

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/taskflow/taskflow-go/internal/metrics"
)

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	Workers     int
	QueueSize   int
	MaxAttempts int
	SendTimeout time.Duration
	// Backoff is multiplied by the attempt number between retries.
	Backoff time.Duration
}

// Dispatcher delivers fire-and-forget mail on a fixed worker pool so request
// handlers never wait on SMTP. Each message is tried up to MaxAttempts times.
type Dispatcher struct {
	sender Sender
	logger *slog.Logger
	opts   DispatcherOptions

	jobs   chan Message
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool

	stats dispatcherStats
}

type dispatcherStats struct {
	enqueued atomic.Int64
	sent     atomic.Int64
	failed   atomic.Int64
	dropped  atomic.Int64
	retries  atomic.Int64
	panics   atomic.Int64
}

// DispatcherStats is a snapshot of dispatcher counters.
type DispatcherStats struct {
	Enqueued int64
	Sent     int64
	Failed   int64
	Dropped  int64
	Retries  int64
	Panics   int64
}

// NewDispatcher creates a Dispatcher. Call Start before enqueueing.
func NewDispatcher(sender Sender, logger *slog.Logger, opts DispatcherOptions) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 15 * time.Second
	}
	if opts.Backoff < 0 {
		opts.Backoff = 0
	}

	return &Dispatcher{
		sender: sender,
		logger: logger,
		opts:   opts,
		jobs:   make(chan Message, opts.QueueSize),
	}
}

// Start launches the worker pool. Workers exit when ctx is cancelled or after
// Shutdown has drained the queue.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.opts.Workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}
}

// Enqueue schedules msg for delivery without blocking. It returns false and
// drops the message when the queue is full or closed.
func (d *Dispatcher) Enqueue(msg Message) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.drop(msg, "queue closed")
		return false
	}

	select {
	case d.jobs <- msg:
		d.stats.enqueued.Add(1)
		metrics.MailQueueDepth.Set(float64(len(d.jobs)))
		return true
	default:
		d.drop(msg, "queue full")
		return false
	}
}

// Shutdown stops accepting mail and waits up to timeout for queued messages
// to be delivered.
func (d *Dispatcher) Shutdown(timeout time.Duration) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return fmt.Errorf("dispatcher already closed")
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("mail dispatcher drained")
		return nil
	case <-time.After(timeout):
		d.logger.Error("mail dispatcher shutdown timeout", slog.Int("pending", len(d.jobs)))
		return fmt.Errorf("shutdown timeout after %s", timeout)
	}
}

// Stats returns a snapshot of the dispatcher counters.
func (d *Dispatcher) Stats() DispatcherStats {
	return DispatcherStats{
		Enqueued: d.stats.enqueued.Load(),
		Sent:     d.stats.sent.Load(),
		Failed:   d.stats.failed.Load(),
		Dropped:  d.stats.dropped.Load(),
		Retries:  d.stats.retries.Load(),
		Panics:   d.stats.panics.Load(),
	}
}

func (d *Dispatcher) drop(msg Message, reason string) {
	d.stats.dropped.Add(1)
	metrics.MailDropped.WithLabelValues(string(msg.Category)).Inc()
	d.logger.Warn("email dropped",
		slog.String("reason", reason),
		slog.String("to", msg.To),
		slog.String("category", string(msg.Category)))
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-d.jobs:
			if !ok {
				return
			}
			metrics.MailQueueDepth.Set(float64(len(d.jobs)))
			d.deliver(ctx, msg, id)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, msg Message, workerID int) {
	defer func() {
		if r := recover(); r != nil {
			d.stats.panics.Add(1)
			d.logger.Error("mail delivery panic recovered",
				slog.Int("worker_id", workerID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	var err error
	for attempt := 1; attempt <= d.opts.MaxAttempts; attempt++ {
		if attempt > 1 {
			d.stats.retries.Add(1)
			if !wait(ctx, time.Duration(attempt-1)*d.opts.Backoff) {
				err = ctx.Err()
				break
			}
		}

		sendCtx, cancel := context.WithTimeout(ctx, d.opts.SendTimeout)
		err = d.sender.Send(sendCtx, msg)
		cancel()
		if err == nil {
			d.stats.sent.Add(1)
			metrics.NotificationsSent.WithLabelValues(string(msg.Category)).Inc()
			return
		}

		d.logger.Warn("email send attempt failed",
			slog.Int("attempt", attempt),
			slog.String("to", msg.To),
			slog.String("category", string(msg.Category)),
			slog.String("error", err.Error()))
	}

	d.stats.failed.Add(1)
	metrics.NotificationsFailed.WithLabelValues(string(msg.Category)).Inc()
	d.logger.Error("email delivery failed",
		slog.String("to", msg.To),
		slog.String("category", string(msg.Category)),
		slog.String("error", err.Error()))
}

// wait sleeps for d and reports false if ctx ends first.
func wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
