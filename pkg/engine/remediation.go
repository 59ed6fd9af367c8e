package engine

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed templates/*.yaml
var builtinTemplates embed.FS

// RemediationTemplate holds the explanation and fix text for one finding kind.
type RemediationTemplate struct {
	ID        string   `yaml:"id"`
	Issue     string   `yaml:"issue"`
	Why       string   `yaml:"why"`
	Fix       string   `yaml:"fix"`
	Standard  string   `yaml:"standard"`
	Variables []string `yaml:"variables"`
}

type templateFile struct {
	Templates []RemediationTemplate `yaml:"templates"`
}

// RemediationEngine manages remediation templates
type RemediationEngine struct {
	Templates map[string]RemediationTemplate
}

// NewRemediationEngine creates an empty remediation engine
func NewRemediationEngine() *RemediationEngine {
	return &RemediationEngine{
		Templates: make(map[string]RemediationTemplate),
	}
}

// DefaultRemediation returns an engine loaded with the built-in catalogue.
func DefaultRemediation() *RemediationEngine {
	e := NewRemediationEngine()
	if err := e.loadFS(builtinTemplates, "templates"); err != nil {
		// the embedded catalogue is part of the build
		panic(err)
	}
	return e
}

// LoadTemplates reads YAML templates from a directory. Templates with an ID
// already present replace the existing entry.
func (e *RemediationEngine) LoadTemplates(dir string) error {
	return e.loadFS(os.DirFS(dir), ".")
}

func (e *RemediationEngine) loadFS(fsys fs.FS, dir string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		data, err := fs.ReadFile(fsys, filepath.ToSlash(filepath.Join(dir, entry.Name())))
		if err != nil {
			return err
		}

		var tf templateFile
		if err := yaml.Unmarshal(data, &tf); err != nil {
			return fmt.Errorf("failed to parse %s: %w", entry.Name(), err)
		}
		for _, t := range tf.Templates {
			if t.ID == "" {
				return fmt.Errorf("template without id in %s", entry.Name())
			}
			e.Templates[t.ID] = t
		}
	}
	return nil
}

// ListTemplates returns the available template IDs with their issue text.
func (e *RemediationEngine) ListTemplates() []string {
	list := make([]string, 0, len(e.Templates))
	for _, t := range e.Templates {
		list = append(list, fmt.Sprintf("%s: %s", t.ID, t.Issue))
	}
	sort.Strings(list)
	return list
}

// Render fills the why and fix text of a template with vars.
func (e *RemediationEngine) Render(id string, vars map[string]string) (string, string, error) {
	tmpl, ok := e.Templates[id]
	if !ok {
		return "", "", fmt.Errorf("template not found: %s", id)
	}

	for _, requiredVar := range tmpl.Variables {
		if _, exists := vars[requiredVar]; !exists {
			return "", "", fmt.Errorf("missing required variable: %s", requiredVar)
		}
	}

	why, err := renderString("why", tmpl.Why, vars)
	if err != nil {
		return "", "", err
	}
	fix, err := renderString("fix", tmpl.Fix, vars)
	if err != nil {
		return "", "", err
	}
	return why, fix, nil
}

// Plan renders a readable fix plan for a finding.
func (e *RemediationEngine) Plan(f RiskFinding) string {
	var sb strings.Builder
	sb.WriteString("[FIX PLAN]\n")
	sb.WriteString(fmt.Sprintf("Issue: %s\n", f.Title))
	sb.WriteString(fmt.Sprintf("Severity: %s (score %.1f)\n", f.Severity, f.RiskScore))
	if t, ok := e.Templates[f.template]; ok && t.Standard != "" {
		sb.WriteString(fmt.Sprintf("Standard: %s\n", t.Standard))
	}
	sb.WriteString(fmt.Sprintf("Evidence: %s\n", strings.Join(f.Evidence, "; ")))
	if len(f.RelatedCVEs) > 0 {
		sb.WriteString(fmt.Sprintf("CVEs: %s\n", strings.Join(f.RelatedCVEs, ", ")))
	}
	if f.Why != "" {
		sb.WriteString(fmt.Sprintf("\nWhy it matters:\n%s\n", f.Why))
	}
	sb.WriteString(fmt.Sprintf("\nSuggested Fix:\n%s\n", f.Fix))
	return sb.String()
}

func renderString(name, tmplStr string, vars map[string]string) (string, error) {
	if tmplStr == "" {
		return "", nil
	}
	t, err := template.New(name).Option("missingkey=zero").Parse(tmplStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("failed to execute template %s: %w", name, err)
	}
	return strings.Join(strings.Fields(buf.String()), " "), nil
}
