// Package prompts renders the instruction sent into an assistant
// session when a project enters a workflow stage. Built-in templates
// can be overridden per stage from a YAML file.
package prompts

import (
	"bytes"
	"fmt"
	"os"
	"text/template"

	"gopkg.in/yaml.v3"
)

// Data is what a stage template can reference.
type Data struct {
	Project     string // project name, also the directory name
	Dir         string // absolute project directory
	Description string // free-form text from the user, idea stage only
	RepoURL     string // remote repository URL, development stage only
}

var defaults = map[string]string{
	"idea": `Based on the following idea, write a project proposal to {{.Dir}}/idea.md.

Idea: {{.Description}}

Cover the problem being solved, the target users, the core functionality, and what a first usable version looks like.`,

	"requirements": `Read {{.Dir}}/idea.md and write a requirements document to {{.Dir}}/requirements.md.

Use this structure:

1. Introduction: a clear summary of the feature.
2. Requirements: a hierarchical numbered list where each requirement has
   - User Story: "As a [role], I want [feature], so that [benefit]"
   - Acceptance Criteria in EARS form:
     - WHEN [event] THEN [system] SHALL [response]
     - IF [precondition] THEN [system] SHALL [response]

Consider edge cases, user experience, technical constraints, and success criteria.`,

	"design": `Read {{.Dir}}/requirements.md and write a design document to {{.Dir}}/design.md.

Include these sections:

1. Overview: the system architecture at a glance.
2. Architecture: overall structure, major components and how they relate, data flow.
3. Components and Interfaces: detailed design per component, interface definitions, API contracts.
4. Data Models: data structures and storage schema where applicable.
5. Error Handling and Testing Strategy.`,

	"tasks": `Read {{.Dir}}/design.md and write an implementation task list to {{.Dir}}/tasks.md.

Rules for the list:

1. Convert the design into a series of coding tasks.
2. Prefer test-driven development.
3. Progress incrementally, avoiding large jumps in complexity.
4. Each task builds on the previous ones and nothing is left orphaned.
5. End with integration work.

Format: a numbered checkbox list at most two levels deep, each task with a clear goal and a reference to the requirement it implements (_Requirements: X.X_). Include coding tasks only; exclude user testing, deployment, and performance measurement.`,

	"development": `Follow the task list in tasks.md and start building v0.
{{- if .RepoURL}}

The workspace is connected to {{.RepoURL}}. Push your commits there.
{{- end}}

Work through the tasks in order, checking each box as it completes. While developing:

1. Practice test-driven development.
2. Commit at a sensible granularity.
3. Handle errors properly.
4. Keep the code readable.

Start with the first task.`,
}

// Library holds one parsed template per stage.
type Library struct {
	templates map[string]*template.Template
}

// Default returns the built-in templates.
func Default() (*Library, error) {
	return build(defaults)
}

// Load returns the built-in templates with per-stage overrides read
// from a YAML file mapping stage name to template text.
func Load(path string) (*Library, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt overrides: %w", err)
	}
	overrides := map[string]string{}
	if err := yaml.Unmarshal(raw, &overrides); err != nil {
		return nil, fmt.Errorf("failed to parse prompt overrides: %w", err)
	}

	merged := make(map[string]string, len(defaults))
	for stage, text := range defaults {
		merged[stage] = text
	}
	for stage, text := range overrides {
		if _, ok := defaults[stage]; !ok {
			return nil, fmt.Errorf("unknown stage %q in prompt overrides", stage)
		}
		merged[stage] = text
	}
	return build(merged)
}

func build(texts map[string]string) (*Library, error) {
	lib := &Library{templates: make(map[string]*template.Template, len(texts))}
	for stage, text := range texts {
		tmpl, err := template.New(stage).Parse(text)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s template: %w", stage, err)
		}
		lib.templates[stage] = tmpl
	}
	return lib, nil
}

// Render produces the prompt for a stage.
func (l *Library) Render(stage string, data Data) (string, error) {
	tmpl, ok := l.templates[stage]
	if !ok {
		return "", fmt.Errorf("no prompt for stage %q", stage)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s prompt: %w", stage, err)
	}
	return buf.String(), nil
}
