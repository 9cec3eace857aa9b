package utils

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestPromptYesNoWithReader(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"yes", "y\n", true},
		{"full yes", "YES\n", true},
		{"no", "n\n", false},
		{"invalid then yes", "maybe\ny\n", true},
		{"eof", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			got := PromptYesNoWithReader("Delete task?", strings.NewReader(tt.input), &out)
			if got != tt.want {
				t.Errorf("PromptYesNoWithReader() = %v, want %v", got, tt.want)
			}
			if !strings.Contains(out.String(), "Delete task? (y/n): ") {
				t.Errorf("prompt not written, got: %q", out.String())
			}
		})
	}
}

func TestReadLineWithReader(t *testing.T) {
	var out bytes.Buffer
	line, err := ReadLineWithReader("Token: ", strings.NewReader("  abc.def  \nrest\n"), &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if line != "abc.def" {
		t.Errorf("line = %q, want abc.def", line)
	}
	if out.String() != "Token: " {
		t.Errorf("prompt = %q", out.String())
	}

	if _, err := ReadLineWithReader("", strings.NewReader(""), &out); !errors.Is(err, ErrNoInput) {
		t.Errorf("expected ErrNoInput, got %v", err)
	}
}
