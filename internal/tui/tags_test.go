package tui

import (
	"testing"

	"taskdesk/backend"
)

func TestTagsIn(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"", nil},
		{"no tags here", nil},
		{"#Home errands", []string{"home"}},
		{"buy milk #home #shop #home", []string{"home", "shop"}},
		{"email me at a#b", nil},
		{"line one\n#multi-word_tag", []string{"multi-word_tag"}},
	}

	for _, tt := range tests {
		got := tagsIn(tt.text)
		if len(got) != len(tt.want) {
			t.Errorf("tagsIn(%q) = %v, want %v", tt.text, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("tagsIn(%q) = %v, want %v", tt.text, got, tt.want)
				break
			}
		}
	}
}

func TestToggleTag(t *testing.T) {
	tests := []struct {
		text string
		tag  string
		want string
	}{
		{"", "home", "#home"},
		{"errands", "home", "errands #home"},
		{"errands ", "home", "errands #home"},
		{"errands #home", "home", "errands"},
		{"#home errands", "home", "errands"},
		{"a #home b", "home", "a b"},
		{"a #HOME b #home", "home", "a b"},
		{"a #homework", "home", "a #homework #home"},
		{"a #home, b", "home", "a , b"},
	}

	for _, tt := range tests {
		if got := toggleTag(tt.text, tt.tag); got != tt.want {
			t.Errorf("toggleTag(%q, %q) = %q, want %q", tt.text, tt.tag, got, tt.want)
		}
	}
}

func TestNormalizeTag(t *testing.T) {
	tests := map[string]string{
		"#Work":    "work",
		"  home ":  "home",
		"long tag": "long-tag",
		"#":        "",
		"":         "",
	}
	for in, want := range tests {
		if got := normalizeTag(in); got != want {
			t.Errorf("normalizeTag(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAllTagsSortedAcrossTasks(t *testing.T) {
	tasks := []backend.Task{
		{ID: 1, Description: "#work #urgent"},
		{ID: 2, Description: "#home #work"},
		{ID: 3},
	}
	got := allTags(tasks)
	want := []string{"home", "urgent", "work"}
	if len(got) != len(want) {
		t.Fatalf("allTags() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("allTags() = %v, want %v", got, want)
		}
	}
}

func TestRectContains(t *testing.T) {
	r := rect{x: 10, y: 5, w: 20, h: 4}
	if !r.contains(10, 5) || !r.contains(29, 8) {
		t.Error("expected corners inside")
	}
	if r.contains(30, 5) || r.contains(10, 9) || r.contains(0, 0) {
		t.Error("expected points outside")
	}
}

func TestOverlay(t *testing.T) {
	bg := "aaaaaaaa\nbbbbbbbb\ncccccccc"
	got := overlay(bg, "XX\nYY", 3, 1)

	want := "aaaaaaaa\nbbb\x1b[0mXX\x1b[0mbbb\nccc\x1b[0mYY\x1b[0mccc"
	if got != want {
		t.Errorf("overlay() = %q, want %q", got, want)
	}
}

func TestOverlayClipsBelowBackground(t *testing.T) {
	got := overlay("ab", "X\nY", 5, 0)

	want := "ab   \x1b[0mX\x1b[0m"
	if got != want {
		t.Errorf("overlay() = %q, want %q", got, want)
	}
}
