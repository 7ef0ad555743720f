package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/agentrt/core/toolerrors"
)

// TaskManager owns one session's decomposition tree (spec.md §3, §4.2).
type TaskManager struct {
	mu       sync.Mutex
	tasks    map[string]*Task
	order    []string
}

// NewTaskManager constructs an empty task tree.
func NewTaskManager() *TaskManager {
	return &TaskManager{tasks: make(map[string]*Task)}
}

// Create registers a new task, optionally as a child of parentID.
func (m *TaskManager) Create(task *Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tasks[task.TaskID]; exists {
		return toolerrors.New(toolerrors.BadRequest, fmt.Sprintf("task %q already exists", task.TaskID))
	}
	if task.Status == "" {
		task.Status = TaskPending
	}
	if task.ParentID != "" {
		parent, ok := m.tasks[task.ParentID]
		if !ok {
			return toolerrors.New(toolerrors.BadRequest, fmt.Sprintf("task %q: unknown parent %q", task.TaskID, task.ParentID))
		}
		parent.Children = append(parent.Children, task.TaskID)
	}
	m.tasks[task.TaskID] = task
	m.order = append(m.order, task.TaskID)
	return nil
}

// UpdateStatus transitions taskID to status, stamping StartTime/EndTime,
// and propagates completion up the parent chain per the task tree
// invariant: a parent becomes completed only when every child is completed
// or skipped.
func (m *TaskManager) UpdateStatus(taskID string, status TaskStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[taskID]
	if !ok {
		return toolerrors.New(toolerrors.BadRequest, fmt.Sprintf("unknown task %q", taskID))
	}
	now := time.Now()
	switch status {
	case TaskRunning:
		if task.StartTime.IsZero() {
			task.StartTime = now
		}
	case TaskCompleted, TaskFailed, TaskSkipped:
		if task.EndTime.IsZero() {
			task.EndTime = now
		}
	}
	task.Status = status
	m.propagateParentCompletion(task.ParentID)
	return nil
}

func (m *TaskManager) propagateParentCompletion(parentID string) {
	if parentID == "" {
		return
	}
	parent, ok := m.tasks[parentID]
	if !ok {
		return
	}
	allDone := true
	for _, childID := range parent.Children {
		child, ok := m.tasks[childID]
		if !ok {
			continue
		}
		if child.Status != TaskCompleted && child.Status != TaskSkipped {
			allDone = false
			break
		}
	}
	if allDone && len(parent.Children) > 0 && parent.Status != TaskCompleted {
		parent.Status = TaskCompleted
		if parent.EndTime.IsZero() {
			parent.EndTime = time.Now()
		}
		m.propagateParentCompletion(parent.ParentID)
	}
}

// SetSummary attaches an ExecutionSummary to taskID.
func (m *TaskManager) SetSummary(taskID string, summary ExecutionSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[taskID]
	if !ok {
		return toolerrors.New(toolerrors.BadRequest, fmt.Sprintf("unknown task %q", taskID))
	}
	task.Summary = &summary
	return nil
}

// All returns every task in creation order.
func (m *TaskManager) All() []*Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Task, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.tasks[id])
	}
	return out
}

// Get returns the task with the given id, if present.
func (m *TaskManager) Get(taskID string) (*Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	return t, ok
}

// AnyIncomplete reports whether any task is not yet completed, failed, or
// skipped — used by the Controller's multi-agent loop break condition.
func (m *TaskManager) AnyIncomplete() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.order {
		t := m.tasks[id]
		if t.Status != TaskCompleted && t.Status != TaskFailed && t.Status != TaskSkipped {
			return true
		}
	}
	return false
}
