package prompts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"odysseywalk/pkg/model"
)

func TestManager_BuiltinQA(t *testing.T) {
	m, err := NewManager("")
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	out, err := m.Render(QASystem, QAData{
		POIName:    "Panthéon",
		Script:     "A neoclassical mausoleum.",
		Facts:      []string{"Built 1758-1790", "Foucault's pendulum"},
		Lang:       model.LangFR,
		VoiceStyle: model.StyleFriendly,
	})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	for _, want := range []string{
		"You are a friendly tour guide. Answer in 2-3 short sentences.",
		"Language: French",
		"Context about this stop (Panthéon):\nA neoclassical mausoleum.",
		"Facts: Built 1758-1790; Foucault's pendulum",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestManager_Style(t *testing.T) {
	m, err := NewManager("")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		style model.VoiceStyle
		want  string
		not   bool
	}{
		{"Historian", model.StyleHistorian, "careful historian", false},
		{"Funny", model.StyleFunny, "playful", false},
		{"Friendly has no extra", model.StyleFriendly, "historian", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := m.Render(QASystem, QAData{Script: "x", VoiceStyle: tt.style, Lang: model.LangEN})
			if err != nil {
				t.Fatal(err)
			}
			if strings.Contains(out, tt.want) == tt.not {
				t.Errorf("style %s: contains(%q) = %v\n%s", tt.style, tt.want, !tt.not, out)
			}
			if strings.Contains(out, "Facts:") {
				t.Error("no facts line expected without facts")
			}
		})
	}
}

func TestManager_Override(t *testing.T) {
	tmpDir := t.TempDir()
	if err := writeFile(filepath.Join(tmpDir, "common", "extra.tmpl"), `{{define "hello"}}Hello {{.POIName}}{{end}}`); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(tmpDir, "qa", "system.tmpl"), `{{template "hello" .}}! {{language .Lang}}`); err != nil {
		t.Fatal(err)
	}

	m, err := NewManager(tmpDir)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	out, err := m.Render(QASystem, QAData{POIName: "Cluny", Lang: model.LangEN})
	if err != nil {
		t.Fatal(err)
	}
	if out != "Hello Cluny! English" {
		t.Errorf("got %q", out)
	}

	// Built-ins not overridden remain available.
	if _, err := m.Render(Transcribe, QAData{Lang: model.LangEN}); err != nil {
		t.Errorf("transcribe template missing: %v", err)
	}
}

func TestManager_MissingDir(t *testing.T) {
	if _, err := NewManager(filepath.Join(t.TempDir(), "nope")); err != nil {
		t.Errorf("missing override dir should be ignored: %v", err)
	}
}

func TestManager_BadTemplate(t *testing.T) {
	tmpDir := t.TempDir()
	if err := writeFile(filepath.Join(tmpDir, "qa", "system.tmpl"), `{{.Broken`); err != nil {
		t.Fatal(err)
	}
	if _, err := NewManager(tmpDir); err == nil {
		t.Error("expected parse error")
	}
}

func writeFile(path, content string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
