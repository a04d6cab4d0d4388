package mail

import (
	"context"
	"bytes"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/taskflow/taskflow-go/internal/config"
	"github.com/taskflow/taskflow-go/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// flakySender fails the first failures calls, then succeeds.
type flakySender struct {
	mu       sync.Mutex
	failures int
	calls    int
	sent     []Message
	panicMsg string
}

func (s *flakySender) Send(ctx context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	if s.calls <= s.failures {
		return errors.New("smtp: 421 service not available")
	}
	s.sent = append(s.sent, msg)
	return nil
}

func newTestDispatcher(sender Sender, attempts, queue int) *Dispatcher {
	return NewDispatcher(sender, discardLogger(), DispatcherOptions{
		Workers:     1,
		QueueSize:   queue,
		MaxAttempts: attempts,
		SendTimeout: time.Second,
		Backoff:     time.Millisecond,
	})
}

func TestDispatcherRetriesUntilSuccess(t *testing.T) {
	sender := &flakySender{failures: 2}
	d := newTestDispatcher(sender, 3, 4)
	d.Start(context.Background())

	if !d.Enqueue(Message{To: "a@b.com", Subject: "hi", Category: CategoryOTP}) {
		t.Fatal("Enqueue() returned false")
	}
	if err := d.Shutdown(time.Second); err != nil {
		t.Fatalf("Shutdown() unexpected error: %v", err)
	}

	stats := d.Stats()
	if stats.Sent != 1 || stats.Retries != 2 || stats.Failed != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if len(sender.sent) != 1 || sender.sent[0].To != "a@b.com" {
		t.Errorf("unexpected deliveries: %+v", sender.sent)
	}
}

func TestDispatcherGivesUpAfterMaxAttempts(t *testing.T) {
	sender := &flakySender{failures: 10}
	d := newTestDispatcher(sender, 3, 4)
	d.Start(context.Background())

	d.Enqueue(Message{To: "a@b.com", Category: CategoryCompletion})
	if err := d.Shutdown(time.Second); err != nil {
		t.Fatalf("Shutdown() unexpected error: %v", err)
	}

	if sender.calls != 3 {
		t.Errorf("calls = %d, want 3", sender.calls)
	}
	if stats := d.Stats(); stats.Failed != 1 || stats.Sent != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	d := newTestDispatcher(&flakySender{}, 1, 1)

	if !d.Enqueue(Message{To: "first@b.com"}) {
		t.Fatal("first Enqueue() should succeed")
	}
	if d.Enqueue(Message{To: "second@b.com"}) {
		t.Fatal("second Enqueue() should be dropped")
	}
	if stats := d.Stats(); stats.Dropped != 1 || stats.Enqueued != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestDispatcherRejectsAfterShutdown(t *testing.T) {
	d := newTestDispatcher(&flakySender{}, 1, 2)
	d.Start(context.Background())

	if err := d.Shutdown(time.Second); err != nil {
		t.Fatalf("Shutdown() unexpected error: %v", err)
	}
	if d.Enqueue(Message{To: "late@b.com"}) {
		t.Error("Enqueue() after Shutdown should fail")
	}
	if err := d.Shutdown(time.Second); err == nil {
		t.Error("second Shutdown() should report already closed")
	}
}

func TestDispatcherRecoversPanic(t *testing.T) {
	d := newTestDispatcher(&flakySender{panicMsg: "boom"}, 1, 2)
	d.Start(context.Background())

	d.Enqueue(Message{To: "a@b.com"})
	d.Enqueue(Message{To: "b@b.com"})
	if err := d.Shutdown(time.Second); err != nil {
		t.Fatalf("Shutdown() unexpected error: %v", err)
	}
	if stats := d.Stats(); stats.Panics != 2 {
		t.Errorf("Panics = %d, want 2", stats.Panics)
	}
}

func TestSMTPSenderBuildsMessage(t *testing.T) {
	s := NewSMTPSender(config.MailConfig{SMTPHost: "smtp.example.com", SMTPPort: 587, From: "noreply@taskflow.dev"}, discardLogger())

	var got *gomail.Message
	s.deliver = func(m *gomail.Message) error {
		got = m
		return nil
	}

	err := s.Send(context.Background(), Message{To: "a@b.com", Subject: "Hello", Body: "text", Category: CategoryReminder})
	if err != nil {
		t.Fatalf("Send() unexpected error: %v", err)
	}

	headers := map[string]string{
		"From":                "noreply@taskflow.dev",
		"To":                  "a@b.com",
		"Subject":             "Hello",
		"X-TaskFlow-Category": "reminder",
	}
	for k, want := range headers {
		if v := got.GetHeader(k); len(v) != 1 || v[0] != want {
			t.Errorf("header %s = %v, want %q", k, v, want)
		}
	}
}

func TestSMTPSenderHonorsContext(t *testing.T) {
	s := NewSMTPSender(config.MailConfig{}, discardLogger())
	release := make(chan struct{})
	defer close(release)
	s.deliver = func(m *gomail.Message) error {
		<-release
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := s.Send(ctx, Message{To: "a@b.com"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Send() error = %v, want deadline exceeded", err)
	}
}

func TestSMTPSenderEmptyRecipient(t *testing.T) {
	s := NewSMTPSender(config.MailConfig{}, discardLogger())
	if err := s.Send(context.Background(), Message{To: "  "}); !errors.Is(err, ErrEmptyRecipient) {
		t.Errorf("Send() error = %v, want ErrEmptyRecipient", err)
	}
}

func TestLogSender(t *testing.T) {
	s := NewLogSender(discardLogger())
	if err := s.Send(context.Background(), Message{To: "a@b.com"}); err != nil {
		t.Errorf("Send() unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Send(ctx, Message{To: "a@b.com"}); !errors.Is(err, context.Canceled) {
		t.Errorf("Send() with cancelled ctx error = %v", err)
	}
}

func TestLogSenderKeepsCodesOutOfLogs(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSender(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	otp := VerificationCode("a@b.com", "482913", 5*time.Minute)
	if err := s.Send(context.Background(), otp); err != nil {
		t.Fatalf("Send() unexpected error: %v", err)
	}
	if strings.Contains(buf.String(), "482913") {
		t.Errorf("otp code logged: %s", buf.String())
	}

	buf.Reset()
	if err := s.Send(context.Background(), Message{To: "a@b.com", Body: "reminder body", Category: CategoryReminder}); err != nil {
		t.Fatalf("Send() unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "reminder body") {
		t.Errorf("non-otp body missing at debug level: %s", buf.String())
	}
}

func TestMessageBuilders(t *testing.T) {
	deadline := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	task := model.TaskWithOwner{Task: model.Task{Title: "Report", Deadline: deadline}, OwnerEmail: "a@b.com"}

	tests := []struct {
		name     string
		msg      Message
		category Category
		subject  string
		body     string
	}{
		{name: "verification", msg: VerificationCode("a@b.com", "123456", 5*time.Minute), category: CategoryOTP, subject: "verification", body: "123456"},
		{name: "reset", msg: PasswordResetCode("a@b.com", "654321", 2*time.Minute), category: CategoryOTP, subject: "reset", body: "2 minutes"},
		{name: "reminder", msg: Reminder(task), category: CategoryReminder, subject: `"Report" is due soon`, body: "01 Mar 2026 12:00"},
		{name: "overdue", msg: Overdue(task), category: CategoryOverdue, subject: "Overdue", body: "still incomplete"},
		{name: "completion", msg: Completion("a@b.com", &task.Task), category: CategoryCompletion, subject: "Congratulations", body: "Great job"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.msg.To != "a@b.com" {
				t.Errorf("To = %q", tt.msg.To)
			}
			if tt.msg.Category != tt.category {
				t.Errorf("Category = %q, want %q", tt.msg.Category, tt.category)
			}
			if !strings.Contains(tt.msg.Subject, tt.subject) {
				t.Errorf("Subject %q does not contain %q", tt.msg.Subject, tt.subject)
			}
			if !strings.Contains(tt.msg.Body, tt.body) {
				t.Errorf("Body %q does not contain %q", tt.msg.Body, tt.body)
			}
		})
	}
}
