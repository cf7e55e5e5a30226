package llm

import (
	"embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// embeds all .yaml files in the templates folder into Go program at compile time
//
//go:embed templates/*.yaml
var templateFS embed.FS

// PromptTemplate is one YAML prompt file.
type PromptTemplate struct {
	System     string            `yaml:"system"`
	BasePrompt string            `yaml:"base_prompt"`
	Modes      map[string]string `yaml:"modes"`
}

// Prompts holds the loaded templates by file name.
type Prompts struct {
	templates map[string]PromptTemplate
}

// LoadPrompts parses the embedded templates.
func LoadPrompts() (*Prompts, error) {
	entries, err := templateFS.ReadDir("templates")
	if err != nil {
		return nil, fmt.Errorf("failed to read templates directory: %w", err)
	}
	p := &Prompts{templates: make(map[string]PromptTemplate)}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		data, err := templateFS.ReadFile("templates/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read template file %s: %w", entry.Name(), err)
		}
		var tmpl PromptTemplate
		if err := yaml.Unmarshal(data, &tmpl); err != nil {
			return nil, fmt.Errorf("failed to parse template file %s: %w", entry.Name(), err)
		}
		p.templates[strings.TrimSuffix(entry.Name(), ".yaml")] = tmpl
	}
	return p, nil
}

// Build returns the system instructions and the filled-in user prompt for
// a template. Extra modes are appended after the base prompt in order.
func (p *Prompts) Build(name string, vars map[string]string, modes ...string) (string, string, error) {
	tmpl, ok := p.templates[name]
	if !ok {
		return "", "", fmt.Errorf("template not found: %s", name)
	}
	var b strings.Builder
	b.WriteString(tmpl.BasePrompt)
	for _, m := range modes {
		text, ok := tmpl.Modes[m]
		if !ok {
			return "", "", fmt.Errorf("mode '%s' not found for template '%s'", m, name)
		}
		b.WriteString("\n")
		b.WriteString(text)
	}
	// Plain replacement: candidate text is inserted verbatim, never executed.
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{{."+k+"}}", v)
	}
	return strings.TrimSpace(tmpl.System), strings.NewReplacer(pairs...).Replace(b.String()), nil
}
