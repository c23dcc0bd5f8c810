package prompt

import (
	"bytes"
	"embed"
	"fmt"
	"path"
	"strings"
	"sync"
	"text/template"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// TemplateName is a file under templates/.
type TemplateName string

const (
	TemplateGuardedSystem TemplateName = "guarded_system.tmpl"
	TemplateGuardedUser   TemplateName = "guarded_user.tmpl"
)

// PromptBuilder renders the embedded prompt templates. Every chat turn that reaches
// the LLM renders both guarded templates, so each file is parsed on first use and the
// parsed template is reused afterwards. Safe for concurrent use.
type PromptBuilder struct {
	mu        sync.RWMutex
	templates map[TemplateName]*template.Template
}

var (
	defaultBuilderOnce sync.Once
	defaultBuilder     *PromptBuilder
)

func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{
		templates: make(map[TemplateName]*template.Template),
	}
}

// DefaultPromptBuilder returns the process-wide builder used by BuildGuarded.
func DefaultPromptBuilder() *PromptBuilder {
	defaultBuilderOnce.Do(func() {
		defaultBuilder = NewPromptBuilder()
	})
	return defaultBuilder
}

// Render executes an embedded template. Trailing newlines of the file are dropped.
// Templates run with missingkey=error, so a prompt never goes out with a blank field.
func (pb *PromptBuilder) Render(name TemplateName, data any) (string, error) {
	tmpl, err := pb.getTemplate(name)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", name, err)
	}

	return strings.TrimRight(buf.String(), "\n"), nil
}

// getTemplate returns the cached template for name, parsing it from the embedded FS
// on the first call. When two callers race on a cold entry, the first stored parse wins
// so every caller sees the same *template.Template.
func (pb *PromptBuilder) getTemplate(name TemplateName) (*template.Template, error) {
	pb.mu.RLock()
	tmpl, ok := pb.templates[name]
	pb.mu.RUnlock()
	if ok {
		return tmpl, nil
	}

	content, err := templateFS.ReadFile(path.Join("templates", string(name)))
	if err != nil {
		return nil, fmt.Errorf("load prompt template %s: %w", name, err)
	}

	parsed, err := template.New(string(name)).Option("missingkey=error").Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("parse prompt template %s: %w", name, err)
	}

	pb.mu.Lock()
	defer pb.mu.Unlock()
	if tmpl, ok := pb.templates[name]; ok {
		return tmpl, nil
	}
	pb.templates[name] = parsed
	return parsed, nil
}
