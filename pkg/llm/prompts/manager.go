package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
	"text/template"

	"odysseywalk/pkg/model"
)

//go:embed templates
var embedded embed.FS

const (
	// QASystem is the system prompt for answering questions at a stop.
	QASystem = "qa/system.tmpl"
	// Transcribe instructs a multimodal model to transcribe a question.
	Transcribe = "qa/transcribe.tmpl"
)

// Manager handles loading and rendering of prompt templates.
type Manager struct {
	root *template.Template
}

// QAData feeds the QA templates.
type QAData struct {
	POIName    string
	Script     string
	Facts      []string
	Lang       model.Lang
	VoiceStyle model.VoiceStyle
}

// NewManager loads the built-in templates, then any *.tmpl files under dir
// which replace built-ins of the same name. An empty dir uses built-ins only.
func NewManager(dir string) (*Manager, error) {
	m := &Manager{}
	m.root = template.New("root").Funcs(template.FuncMap{
		"style":    m.styleFunc,
		"language": func(l model.Lang) string { return l.LanguageName() },
		"join":     strings.Join,
	})

	sub, err := fs.Sub(embedded, "templates")
	if err != nil {
		return nil, err
	}
	if err := m.load(sub); err != nil {
		return nil, fmt.Errorf("loading built-in templates: %w", err)
	}

	if dir != "" {
		if _, err := os.Stat(dir); err == nil {
			if err := m.load(os.DirFS(dir)); err != nil {
				return nil, fmt.Errorf("loading templates from %s: %w", dir, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	return m, nil
}

// load parses common/ definitions first so named templates can use them.
func (m *Manager) load(fsys fs.FS) error {
	var names []string
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, ".tmpl") {
			return nil
		}
		if strings.HasPrefix(p, "common/") {
			return m.parse(fsys, p, "")
		}
		names = append(names, p)
		return nil
	})
	if err != nil {
		return err
	}
	for _, p := range names {
		if err := m.parse(fsys, p, p); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) parse(fsys fs.FS, p, name string) error {
	content, err := fs.ReadFile(fsys, p)
	if err != nil {
		return err
	}
	t := m.root
	if name != "" {
		t = m.root.New(path.Clean(name))
	}
	if _, err := t.Parse(string(content)); err != nil {
		return fmt.Errorf("parsing %s: %w", p, err)
	}
	return nil
}

// Render executes the named template with the provided data.
func (m *Manager) Render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := m.root.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// styleFunc renders style/<name>.tmpl, or nothing when no such template exists.
func (m *Manager) styleFunc(style model.VoiceStyle, data any) (string, error) {
	if style == "" {
		return "", nil
	}
	t := m.root.Lookup("style/" + strings.ToLower(string(style)) + ".tmpl")
	if t == nil {
		return "", nil
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
