package backend

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestSeedTask(t *testing.T) {
	now := time.Date(2026, 5, 4, 12, 30, 45, 999, time.FixedZone("X", 2*3600))
	seed := SeedTask(now)

	if seed.ID != 0 {
		t.Errorf("seed ID = %d, want 0", seed.ID)
	}
	if seed.Title != "title" || seed.Description != "my description" {
		t.Errorf("unexpected seed text: %+v", seed)
	}
	if seed.IsChecked {
		t.Error("seed should not be checked")
	}
	if seed.ExpiryDate != "2026-05-04T10:30:45Z" {
		t.Errorf("seed expiry = %s, want 2026-05-04T10:30:45Z", seed.ExpiryDate)
	}
	if err := seed.Validate(); err != nil {
		t.Errorf("seed should validate: %v", err)
	}
}

func TestIsOverdue(t *testing.T) {
	loc := time.UTC
	now := time.Date(2026, 5, 4, 9, 0, 0, 0, loc)

	tests := []struct {
		name   string
		expiry string
		want   bool
	}{
		{"yesterday", "2026-05-03T23:59:59Z", true},
		{"start of today", "2026-05-04T00:00:00Z", false},
		{"later today", "2026-05-04T18:00:00Z", false},
		{"tomorrow", "2026-05-05T00:00:00Z", false},
		{"last year", "2025-05-04T12:00:00Z", true},
		{"empty", "", false},
		{"garbage", "not-a-date", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := Task{ID: 1, ExpiryDate: tt.expiry}
			if got := task.IsOverdue(now); got != tt.want {
				t.Errorf("IsOverdue(%s) = %v, want %v", tt.expiry, got, tt.want)
			}
		})
	}
}

func TestNormalizeExpiry(t *testing.T) {
	got, err := NormalizeExpiry("2026-01-15T09:30:00.123+02:00")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "2026-01-15T07:30:00Z" {
		t.Errorf("NormalizeExpiry() = %s, want 2026-01-15T07:30:00Z", got)
	}

	if got, err := NormalizeExpiry(""); err != nil || got != "" {
		t.Errorf("empty input should stay empty, got %q, %v", got, err)
	}

	_, err = NormalizeExpiry("15/01/2026")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Field != "expiryDate" {
		t.Errorf("Field = %s, want expiryDate", verr.Field)
	}
}

func TestValidateRejectsNonISOExpiry(t *testing.T) {
	task := Task{Title: "t", ExpiryDate: "2026-01-15"}
	if err := task.Validate(); err == nil {
		t.Error("date without time and zone should fail validation")
	}

	task.ExpiryDate = ""
	if err := task.Validate(); err != nil {
		t.Errorf("empty expiry should pass validation: %v", err)
	}
}

func TestIndexOf(t *testing.T) {
	tasks := []Task{{ID: 1}, {ID: 2}, {ID: 2}, {ID: 3}}

	if got := IndexOf(tasks, 2); got != 1 {
		t.Errorf("IndexOf(2) = %d, want first match 1", got)
	}
	if got := IndexOf(tasks, 9); got != -1 {
		t.Errorf("IndexOf(9) = %d, want -1", got)
	}
	if got := IndexOf(nil, 1); got != -1 {
		t.Errorf("IndexOf on nil = %d, want -1", got)
	}
}

func TestNotFoundError(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &NotFoundError{ID: 12})

	if !errors.Is(err, ErrNotFound) {
		t.Error("NotFoundError should match ErrNotFound")
	}
	if err.Error() != "wrapped: could not find task with id of 12" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestServerErrorIsUnauthorized(t *testing.T) {
	if !(&ServerError{StatusCode: 401}).IsUnauthorized() {
		t.Error("401 should be unauthorized")
	}
	if (&ServerError{StatusCode: 500}).IsUnauthorized() {
		t.Error("500 should not be unauthorized")
	}
}
