package tts

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestPrepareText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"Plain", "Hello there.", "Hello there."},
		{"Speaker label", "Guide: Welcome to the square.", "Welcome to the square."},
		{"Label with role", "Anna (historian): Built in 1820.", "Built in 1820."},
		{"Whitespace", "  Too   many\tspaces  ", "Too many spaces"},
		{"Empty", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PrepareText(tt.in); got != tt.want {
				t.Errorf("PrepareText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestPrepareText_Cap(t *testing.T) {
	long := strings.Repeat("é", MaxTextLength+100)
	got := PrepareText(long)
	if n := utf8.RuneCountInString(got); n != MaxTextLength {
		t.Errorf("rune count = %d, want %d", n, MaxTextLength)
	}
}
