// Package workflow drives projects through the staged delivery
// pipeline: idea, requirements, design, tasks, development. Each stage
// lives in its own numbered channel and advancing a project commits its
// work, opens a thread in the next channel, and briefs the assistant
// session there.
package workflow

import (
	"fmt"
	"strings"
)

// Stage is one step of the delivery pipeline.
type Stage string

const (
	StageIdea         Stage = "idea"
	StageRequirements Stage = "requirements"
	StageDesign       Stage = "design"
	StageTasks        Stage = "tasks"
	StageDevelopment  Stage = "development"
)

// order is the fixed pipeline; Stages() exposes a copy.
var order = []Stage{StageIdea, StageRequirements, StageDesign, StageTasks, StageDevelopment}

// Stages returns the pipeline in order.
func Stages() []Stage {
	out := make([]Stage, len(order))
	copy(out, order)
	return out
}

// ParseStage validates a stage name.
func ParseStage(s string) (Stage, error) {
	for _, st := range order {
		if string(st) == strings.ToLower(strings.TrimSpace(s)) {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown stage %q", s)
}

// Channel returns the channel name a stage lives in, e.g. "2-requirements".
func (s Stage) Channel() string {
	for i, st := range order {
		if st == s {
			return fmt.Sprintf("%d-%s", i+1, st)
		}
	}
	return string(s)
}

// StageFromChannel maps a channel name like "3-design" back to its stage.
func StageFromChannel(name string) (Stage, bool) {
	for _, st := range order {
		if name == st.Channel() {
			return st, true
		}
	}
	return "", false
}

// Next returns the following stage, or false at the end of the pipeline.
func (s Stage) Next() (Stage, bool) {
	for i, st := range order {
		if st == s && i+1 < len(order) {
			return order[i+1], true
		}
	}
	return "", false
}

// Document returns the artifact a stage produces in the project
// directory. Development produces code, not a single document.
func (s Stage) Document() string {
	if s == StageDevelopment {
		return ""
	}
	return string(s) + ".md"
}
