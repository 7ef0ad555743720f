package session

import "sync"

// WorkflowManager holds the session's selected Workflow and a read-only
// cursor into its current stage. The workflow itself never mutates once
// selected (spec.md §3); only the cursor advances as the Plan phase
// progresses through steps.
type WorkflowManager struct {
	mu       sync.Mutex
	selected *Workflow
	cursor   []int // path of step indices, supports nested sub-steps
}

// NewWorkflowManager constructs an empty manager with no workflow selected.
func NewWorkflowManager() *WorkflowManager {
	return &WorkflowManager{}
}

// Select fixes the session's workflow for the remainder of the run.
func (m *WorkflowManager) Select(wf *Workflow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selected = wf
	m.cursor = nil
}

// Selected returns the chosen workflow, if any.
func (m *WorkflowManager) Selected() (*Workflow, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selected, m.selected != nil
}

// CurrentStep resolves the step at the current cursor path, walking nested
// sub-steps. Returns false if no workflow is selected or the cursor is out
// of range.
func (m *WorkflowManager) CurrentStep() (WorkflowStep, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.selected == nil {
		return WorkflowStep{}, false
	}
	steps := m.selected.Steps
	var step WorkflowStep
	for _, idx := range m.cursor {
		if idx < 0 || idx >= len(steps) {
			return WorkflowStep{}, false
		}
		step = steps[idx]
		steps = step.SubSteps
	}
	if len(m.cursor) == 0 {
		return WorkflowStep{}, false
	}
	return step, true
}

// Advance moves the cursor to the next step at the current nesting depth,
// descending into sub-steps first when present. Returns false once the
// workflow is exhausted.
func (m *WorkflowManager) Advance() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.selected == nil {
		return false
	}
	if len(m.cursor) == 0 {
		if len(m.selected.Steps) == 0 {
			return false
		}
		m.cursor = []int{0}
		return true
	}
	// Try descending into the current step's sub-steps first.
	if step, ok := m.stepAt(m.cursor); ok && len(step.SubSteps) > 0 {
		m.cursor = append(m.cursor, 0)
		return true
	}
	// Otherwise advance the deepest index, popping exhausted levels.
	for depth := len(m.cursor) - 1; depth >= 0; depth-- {
		siblings := m.siblingsAt(m.cursor[:depth])
		if m.cursor[depth]+1 < len(siblings) {
			m.cursor = m.cursor[:depth+1]
			m.cursor[depth]++
			return true
		}
	}
	return false
}

func (m *WorkflowManager) stepAt(path []int) (WorkflowStep, bool) {
	steps := m.selected.Steps
	var step WorkflowStep
	for _, idx := range path {
		if idx < 0 || idx >= len(steps) {
			return WorkflowStep{}, false
		}
		step = steps[idx]
		steps = step.SubSteps
	}
	return step, len(path) > 0
}

func (m *WorkflowManager) siblingsAt(path []int) []WorkflowStep {
	steps := m.selected.Steps
	for _, idx := range path {
		if idx < 0 || idx >= len(steps) {
			return nil
		}
		steps = steps[idx].SubSteps
	}
	return steps
}
