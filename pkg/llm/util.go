package llm

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// WordWrap wraps text at the specified width.
func WordWrap(text string, width int) string {
	if width <= 0 {
		return text
	}

	var result strings.Builder
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if i > 0 {
			result.WriteString("\n")
		}

		words := strings.Fields(line)
		if len(words) == 0 {
			continue
		}

		currentLineLength := 0
		for j, word := range words {
			if j > 0 {
				if currentLineLength+len(word)+1 > width {
					result.WriteString("\n")
					currentLineLength = 0
				} else {
					result.WriteString(" ")
					currentLineLength++
				}
			}
			result.WriteString(word)
			currentLineLength += len(word)
		}
	}

	return result.String()
}

// TruncateLines shortens every line to maxLen runes and drops blank lines.
// Used to keep stop scripts from flooding the prompt log.
func TruncateLines(text string, maxLen int) string {
	if text == "" {
		return ""
	}
	var out []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if runes := []rune(trimmed); len(runes) > maxLen {
			trimmed = string(runes[:maxLen]) + "..."
		}
		out = append(out, trimmed)
	}
	return strings.Join(out, "\n")
}

// LogExchange appends a prompt/response pair to the LLM log. An empty path
// disables logging.
func LogExchange(path, provider, name, prompt, response string, err error) {
	if path == "" {
		return
	}
	if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
		return
	}
	f, fErr := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if fErr != nil {
		return
	}
	defer f.Close()

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	var entry string
	if err != nil {
		entry = fmt.Sprintf("[%s][%s] ERROR: %s - %v\n%s\n",
			timestamp, strings.ToUpper(provider), name, err, strings.Repeat("-", 80))
	} else {
		entry = fmt.Sprintf("[%s][%s] PROMPT: %s\nPROMPT_TEXT:\n%s\n\nRESPONSE:\n%s\n%s\n",
			timestamp, strings.ToUpper(provider), name, TruncateLines(prompt, 80), WordWrap(response, 80), strings.Repeat("-", 80))
	}
	_, _ = f.WriteString(entry)
}
