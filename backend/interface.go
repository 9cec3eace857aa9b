package backend

import (
	"context"
	"fmt"
	"time"
)

// ISOLayout is the wire format for expiry dates: UTC, second precision, "Z" suffix.
const ISOLayout = "2006-01-02T15:04:05Z07:00"

// Seed values used when a task is created without input.
const (
	SeedTitle       = "title"
	SeedDescription = "my description"
)

// Task represents a todo item as exchanged with the tasks API
type Task struct {
	ID          int    `json:"id,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description"`
	IsChecked   bool   `json:"isChecked"`
	ExpiryDate  string `json:"expiryDate" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

// SeedTask returns the placeholder task POSTed by a bare create.
func SeedTask(now time.Time) Task {
	return Task{
		Title:       SeedTitle,
		Description: SeedDescription,
		IsChecked:   false,
		ExpiryDate:  FormatISO(now),
	}
}

// TaskAPI defines the REST operations the store depends on
type TaskAPI interface {
	GetTasks(ctx context.Context) ([]Task, error)
	SearchTasks(ctx context.Context, query string) ([]Task, error)
	CreateTask(ctx context.Context, task Task) (*Task, error)
	UpdateTask(ctx context.Context, id int, task Task) (*Task, error)
	DeleteTask(ctx context.Context, id int) (bool, error)
	UpdateTasksOrders(ctx context.Context, tasks []Task) ([]Task, error)
}

// FormatISO formats t as a UTC ISO-8601 timestamp without fractional seconds.
func FormatISO(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(ISOLayout)
}

// acceptedLayouts are tried in order by ParseExpiry.
var acceptedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseExpiry parses an expiry date in any of the accepted layouts.
// Layouts without a zone are interpreted in local time.
func ParseExpiry(s string) (time.Time, error) {
	for _, layout := range acceptedLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &ValidationError{Field: "expiryDate", Value: s, Reason: "not a recognised date"}
}

// NormalizeExpiry rewrites s as a UTC ISO timestamp. Empty input stays empty.
func NormalizeExpiry(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	t, err := ParseExpiry(s)
	if err != nil {
		return "", err
	}
	return FormatISO(t), nil
}

// IsOverdue reports whether the task's expiry day is strictly before the day of now,
// both taken in now's location. Tasks without a parseable expiry are never overdue.
func (t Task) IsOverdue(now time.Time) bool {
	if t.ExpiryDate == "" {
		return false
	}
	exp, err := ParseExpiry(t.ExpiryDate)
	if err != nil {
		return false
	}
	return startOfDay(exp.In(now.Location())).Before(startOfDay(now))
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// String renders a short one-line description used in logs.
func (t Task) String() string {
	return fmt.Sprintf("#%d %q", t.ID, t.Title)
}

// IndexOf returns the index of the first task with the given id, or -1.
func IndexOf(tasks []Task, id int) int {
	for i, t := range tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}
