package mail

import (
	"fmt"
	"time"

	"github.com/taskflow/taskflow-go/internal/model"
)

const timeLayout = "Mon, 02 Jan 2006 15:04 MST"

// VerificationCode is the signup and resend email.
func VerificationCode(to, code string, ttl time.Duration) Message {
	return Message{
		To:       to,
		Subject:  "Your TaskFlow verification code",
		Body:     fmt.Sprintf("Your verification code is: %s\n\nIt expires in %s.", code, humanDuration(ttl)),
		Category: CategoryOTP,
	}
}

// PasswordResetCode is the forgot-password email.
func PasswordResetCode(to, code string, ttl time.Duration) Message {
	return Message{
		To:      to,
		Subject: "Your TaskFlow password reset code",
		Body: fmt.Sprintf("Your password reset code is: %s\n\nIt expires in %s. "+
			"If you did not request a reset you can ignore this email.", code, humanDuration(ttl)),
		Category: CategoryOTP,
	}
}

// Reminder tells the owner a task is due soon.
func Reminder(t model.TaskWithOwner) Message {
	return Message{
		To:      t.OwnerEmail,
		Subject: fmt.Sprintf("Reminder: Task %q is due soon", t.Title),
		Body: fmt.Sprintf("Your task %q is due at %s. Please complete it before the deadline.",
			t.Title, t.Deadline.UTC().Format(timeLayout)),
		Category: CategoryReminder,
	}
}

// Overdue tells the owner a task's deadline has passed.
func Overdue(t model.TaskWithOwner) Message {
	return Message{
		To:      t.OwnerEmail,
		Subject: fmt.Sprintf("Task Overdue: %q deadline has passed", t.Title),
		Body: fmt.Sprintf("Your task %q was due on %s and is still incomplete. Please review it.",
			t.Title, t.Deadline.UTC().Format(timeLayout)),
		Category: CategoryOverdue,
	}
}

// Completion congratulates the owner on finishing a task.
func Completion(to string, t *model.Task) Message {
	return Message{
		To:      to,
		Subject: fmt.Sprintf("Congratulations! Task %q completed", t.Title),
		Body: fmt.Sprintf("Great job! You have successfully completed your task %q. Keep up the excellent work!",
			t.Title),
		Category: CategoryCompletion,
	}
}

func humanDuration(d time.Duration) string {
	if d%time.Minute == 0 {
		m := int(d / time.Minute)
		if m == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", m)
	}
	return d.String()
}
