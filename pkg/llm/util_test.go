package llm

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWordWrap(t *testing.T) {
	tests := []struct {
		name  string
		input string
		width int
		want  string
	}{
		{"No wrap needed", "Hello World", 20, "Hello World"},
		{"Simple wrap", "Hello World", 5, "Hello\nWorld"},
		{"Long word preserved", "Hello Superextralongword World", 10, "Hello\nSuperextralongword\nWorld"},
		{"Zero width", "a b", 0, "a b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WordWrap(tt.input, tt.width); got != tt.want {
				t.Errorf("WordWrap() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTruncateLines(t *testing.T) {
	in := "Short\n\nThis line is far too long\n  こんにちは  "
	want := "Short\nThis line ...\nこんにちは"
	if got := TruncateLines(in, 10); got != want {
		t.Errorf("TruncateLines() = %q, want %q", got, want)
	}
	if TruncateLines("", 5) != "" {
		t.Error("empty input should stay empty")
	}
}

func TestLogExchange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "llm.log")
	LogExchange(path, "gemini", "answer", "Question?", "Answer.", nil)
	LogExchange(path, "openrouter", "answer", "Question?", "", errors.New("status 503"))
	LogExchange("", "x", "y", "z", "w", nil)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	s := string(data)
	if !strings.Contains(s, "[GEMINI] PROMPT: answer") || !strings.Contains(s, "[OPENROUTER] ERROR: answer - status 503") {
		t.Errorf("unexpected log content:\n%s", s)
	}
}
