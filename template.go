package courier

import (
	"errors"
	"fmt"
	htmltemplate "html/template"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	texttemplate "text/template"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Template part suffixes. A message template "welcome" consists of
// "welcome.subject", "welcome.html" and "welcome.text"; any of them may be
// missing.
const (
	PartSubject = ".subject"
	PartHTML    = ".html"
	PartText    = ".text"
)

// TemplateConfig contains template engine configuration.
type TemplateConfig struct {
	// Enabled indicates whether template functionality is enabled.
	Enabled bool

	// Directory is loaded when the engine is created.
	Directory string

	// Extensions are stripped from file names to form template names.
	Extensions []string

	// AllowUnsafeFunctions enables functions that bypass HTML escaping.
	AllowUnsafeFunctions bool
}

// DefaultTemplateConfig returns the default template configuration.
func DefaultTemplateConfig() TemplateConfig {
	return TemplateConfig{
		Extensions: []string{".tmpl", ".gotmpl"},
	}
}

// RenderedMessage is the output of a message template.
type RenderedMessage struct {
	Subject string
	HTML    string
	Text    string
}

// TemplateEngine renders subject, HTML and text templates.
// All methods are safe for concurrent use.
type TemplateEngine struct {
	config TemplateConfig
	html   map[string]*htmltemplate.Template
	text   map[string]*texttemplate.Template
	mu     sync.RWMutex
}

// NewTemplateEngine creates a template engine and loads config.Directory.
func NewTemplateEngine(config TemplateConfig) (*TemplateEngine, error) {
	if len(config.Extensions) == 0 {
		config.Extensions = DefaultTemplateConfig().Extensions
	}
	engine := &TemplateEngine{
		config: config,
		html:   make(map[string]*htmltemplate.Template),
		text:   make(map[string]*texttemplate.Template),
	}

	if config.Directory != "" {
		if err := engine.LoadDir(config.Directory); err != nil {
			return nil, fmt.Errorf("failed to load templates from directory: %w", err)
		}
	}

	return engine, nil
}

// Register parses content under name. Names ending in ".html" are parsed as
// HTML templates with contextual escaping, all others as text.
func (te *TemplateEngine) Register(name, content string) error {
	te.mu.Lock()
	defer te.mu.Unlock()

	if strings.HasSuffix(name, PartHTML) {
		tmpl, err := htmltemplate.New(name).Funcs(htmltemplate.FuncMap(te.funcs(true))).Parse(content)
		if err != nil {
			return NewTemplateError(name, "parse", "failed to parse HTML template", err)
		}
		te.html[name] = tmpl
		delete(te.text, name)
		return nil
	}

	tmpl, err := texttemplate.New(name).Funcs(texttemplate.FuncMap(te.funcs(false))).Parse(content)
	if err != nil {
		return NewTemplateError(name, "parse", "failed to parse text template", err)
	}
	te.text[name] = tmpl
	delete(te.html, name)
	return nil
}

// Render executes a single template.
func (te *TemplateEngine) Render(name string, data any) (string, error) {
	te.mu.RLock()
	defer te.mu.RUnlock()

	var buf strings.Builder
	if tmpl, ok := te.html[name]; ok {
		if err := tmpl.Execute(&buf, data); err != nil {
			return "", NewTemplateError(name, "render", "failed to execute HTML template", err)
		}
		return buf.String(), nil
	}
	if tmpl, ok := te.text[name]; ok {
		if err := tmpl.Execute(&buf, data); err != nil {
			return "", NewTemplateError(name, "render", "failed to execute text template", err)
		}
		return buf.String(), nil
	}
	return "", fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
}

// RenderMessage renders the subject, HTML and text parts of name. At least
// one body part must exist.
func (te *TemplateEngine) RenderMessage(name string, data any) (*RenderedMessage, error) {
	var (
		msg RenderedMessage
		err error
	)
	parts := []struct {
		suffix string
		out    *string
	}{
		{PartSubject, &msg.Subject},
		{PartHTML, &msg.HTML},
		{PartText, &msg.Text},
	}
	for _, p := range parts {
		*p.out, err = te.Render(name+p.suffix, data)
		if err != nil && !errors.Is(err, ErrTemplateNotFound) {
			return nil, err
		}
	}
	if msg.HTML == "" && msg.Text == "" {
		return nil, fmt.Errorf("%w: %s has no body part", ErrTemplateNotFound, name)
	}
	msg.Subject = strings.TrimSpace(msg.Subject)
	return &msg, nil
}

// LoadDir registers every file under dir whose extension is configured.
// Nested directories become dotted prefixes: "auth/welcome.html.tmpl" is
// registered as "auth.welcome.html".
func (te *TemplateEngine) LoadDir(dir string) error {
	root := filepath.Clean(dir)

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		ext := filepath.Ext(path)
		if !slices.Contains(te.config.Extensions, ext) {
			return nil
		}

		rel, err := filepath.Rel(root, filepath.Clean(path))
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return fmt.Errorf("template path %s escapes %s", path, root)
		}

		content, err := os.ReadFile(filepath.Join(root, rel)) // #nosec G304 -- confined to root above
		if err != nil {
			return fmt.Errorf("failed to read template file %s: %w", path, err)
		}

		name := strings.ReplaceAll(strings.TrimSuffix(rel, ext), string(filepath.Separator), ".")
		if err := te.Register(name, string(content)); err != nil {
			return fmt.Errorf("failed to register template %s: %w", name, err)
		}
		return nil
	})
}

// Names lists the registered template names.
func (te *TemplateEngine) Names() []string {
	te.mu.RLock()
	defer te.mu.RUnlock()

	names := make([]string, 0, len(te.html)+len(te.text))
	for name := range te.html {
		names = append(names, name)
	}
	for name := range te.text {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (te *TemplateEngine) funcs(html bool) map[string]any {
	titleCaser := cases.Title(language.English)
	funcs := map[string]any{
		"upper":     strings.ToUpper,
		"lower":     strings.ToLower,
		"title":     titleCaser.String,
		"trim":      strings.TrimSpace,
		"join":      strings.Join,
		"split":     strings.Split,
		"replace":   strings.ReplaceAll,
		"contains":  strings.Contains,
		"hasPrefix": strings.HasPrefix,
		"hasSuffix": strings.HasSuffix,
		"now":       time.Now,
		"formatTime": func(format string, t time.Time) string {
			return t.Format(format)
		},
		"add": func(a, b int) int { return a + b },
		"sub": func(a, b int) int { return a - b },
		"default": func(def, value any) any {
			if value == nil || value == "" {
				return def
			}
			return value
		},
	}

	if html && te.config.AllowUnsafeFunctions {
		funcs["unsafeHTML"] = func(s string) htmltemplate.HTML {
			return htmltemplate.HTML(s) // #nosec G203 -- opt-in only
		}
		funcs["unsafeURL"] = func(s string) htmltemplate.URL {
			return htmltemplate.URL(s) // #nosec G203 -- opt-in only
		}
	}

	return funcs
}
