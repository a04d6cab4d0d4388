package model

import (
	"testing"
	"time"
)

func TestTaskReminderAt(t *testing.T) {
	deadline := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		minutes int
		want    time.Time
	}{
		{name: "ten minutes", minutes: 10, want: deadline.Add(-10 * time.Minute)},
		{name: "one day", minutes: 1440, want: deadline.Add(-24 * time.Hour)},
		{name: "zero falls back to default", minutes: 0, want: deadline.Add(-DefaultReminderMinutes * time.Minute)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := Task{Deadline: deadline, ReminderMinutes: tt.minutes}
			if got := task.ReminderAt(); !got.Equal(tt.want) {
				t.Errorf("ReminderAt() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTaskWithOwnerExists(t *testing.T) {
	orphan := TaskWithOwner{Task: Task{ID: 1}}
	if orphan.OwnerExists() {
		t.Error("task without owner email should report missing owner")
	}

	owned := TaskWithOwner{Task: Task{ID: 2}, OwnerEmail: "a@b.com"}
	if !owned.OwnerExists() {
		t.Error("task with owner email should report owner present")
	}
}

func TestNewTaskResponseFormatsStartDate(t *testing.T) {
	task := Task{
		ID:        7,
		StartDate: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
		StartTime: "09:30",
	}

	resp := NewTaskResponse(&task)
	if resp.StartDate != "2026-01-02" {
		t.Errorf("StartDate = %q, want %q", resp.StartDate, "2026-01-02")
	}
	if resp.ID != 7 || resp.StartTime != "09:30" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestUserHasOTP(t *testing.T) {
	empty := ""
	code := "123456"

	if (&User{}).HasOTP() {
		t.Error("nil code should not count as pending")
	}
	if (&User{OTPCode: &empty}).HasOTP() {
		t.Error("empty code should not count as pending")
	}
	if !(&User{OTPCode: &code}).HasOTP() {
		t.Error("stored code should count as pending")
	}
}
