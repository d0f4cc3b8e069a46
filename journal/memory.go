package journal

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentflow/agentflow/agent"
)

// MemoryStore is an in-memory Store implementation. It is the store
// engine.New uses when none is given, and the one the tests use.
//
// All records are deep-copied on the way in and out, so callers can never
// observe or cause mutation of stored state.
type MemoryStore struct {
	mu         sync.RWMutex
	executions map[string]*WorkflowExecution
	tasks      map[string]*TaskExecution
	workflows  map[string]*Workflow
	now        func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		executions: make(map[string]*WorkflowExecution),
		tasks:      make(map[string]*TaskExecution),
		workflows:  make(map[string]*Workflow),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// BeginWorkflow creates the execution record at status running.
func (m *MemoryStore) BeginWorkflow(ctx context.Context, executionID, workflowID string, input map[string]any) (*WorkflowExecution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	exec := &WorkflowExecution{
		ID:         executionID,
		WorkflowID: workflowID,
		Status:     WorkflowRunning,
		InputData:  copyJSONMap(input),
		StartedAt:  now,
		CreatedAt:  now,
	}
	m.executions[executionID] = exec
	return copyExecution(exec), nil
}

// EndWorkflow closes the execution. First terminal state wins; duplicate
// or conflicting terminal writes are no-ops.
func (m *MemoryStore) EndWorkflow(ctx context.Context, executionID string, status WorkflowStatus, output map[string]any, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	exec, ok := m.executions[executionID]
	if !ok {
		return ErrNotFound
	}
	if exec.Status.Terminal() {
		return nil
	}
	now := m.now()
	exec.Status = status
	exec.OutputData = copyJSONMap(output)
	exec.ErrorMessage = errMsg
	exec.CompletedAt = &now
	return nil
}

// BeginTask creates a task record at status running and returns its ID.
func (m *MemoryStore) BeginTask(ctx context.Context, workflowExecutionID, taskName, agentID string, input map[string]any) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.executions[workflowExecutionID]; !ok {
		return "", ErrNotFound
	}
	now := m.now()
	task := &TaskExecution{
		ID:                  uuid.NewString(),
		WorkflowExecutionID: workflowExecutionID,
		AgentID:             agentID,
		TaskName:            taskName,
		Status:              TaskRunning,
		InputData:           copyJSONMap(input),
		StartedAt:           now,
		CreatedAt:           now,
	}
	m.tasks[task.ID] = task
	return task.ID, nil
}

// EndTask closes a task record. Idempotent under repeated terminal writes.
func (m *MemoryStore) EndTask(ctx context.Context, taskExecutionID string, status TaskStatus, output map[string]any, errMsg string, executionTimeMs int64, cost agent.Cost) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[taskExecutionID]
	if !ok {
		return ErrNotFound
	}
	if task.Status.Terminal() {
		return nil
	}
	now := m.now()
	task.Status = status
	task.OutputData = copyJSONMap(output)
	task.ErrorMessage = errMsg
	task.ExecutionTimeMs = executionTimeMs
	task.CostEstimate = cost
	task.CompletedAt = &now
	return nil
}

// GetWorkflow returns a copy of the execution record.
func (m *MemoryStore) GetWorkflow(ctx context.Context, executionID string) (*WorkflowExecution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	exec, ok := m.executions[executionID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyExecution(exec), nil
}

// ListTasks returns copies of the execution's task records in creation
// order (ties broken by ID for a stable result).
func (m *MemoryStore) ListTasks(ctx context.Context, executionID string) ([]*TaskExecution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*TaskExecution
	for _, task := range m.tasks {
		if task.WorkflowExecutionID == executionID {
			out = append(out, copyTask(task))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// SaveWorkflow upserts a workflow definition record.
func (m *MemoryStore) SaveWorkflow(ctx context.Context, w *Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *w
	if stored.Status == "" {
		stored.Status = "draft"
	}
	stored.DAGDefinition = append([]byte(nil), w.DAGDefinition...)
	now := m.now()
	if existing, ok := m.workflows[w.ID]; ok {
		stored.CreatedAt = existing.CreatedAt
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	m.workflows[w.ID] = &stored
	return nil
}

// GetWorkflowDefinition returns a copy of a stored workflow.
func (m *MemoryStore) GetWorkflowDefinition(ctx context.Context, workflowID string) (*Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.workflows[workflowID]
	if !ok {
		return nil, ErrNotFound
	}
	out := *w
	out.DAGDefinition = append([]byte(nil), w.DAGDefinition...)
	return &out, nil
}

// DeleteExecution removes an execution and all of its task records.
func (m *MemoryStore) DeleteExecution(ctx context.Context, executionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.executions, executionID)
	for id, task := range m.tasks {
		if task.WorkflowExecutionID == executionID {
			delete(m.tasks, id)
		}
	}
	return nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error {
	return nil
}

func copyExecution(e *WorkflowExecution) *WorkflowExecution {
	out := *e
	out.InputData = copyJSONMap(e.InputData)
	out.OutputData = copyJSONMap(e.OutputData)
	if e.CompletedAt != nil {
		t := *e.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

func copyTask(t *TaskExecution) *TaskExecution {
	out := *t
	out.InputData = copyJSONMap(t.InputData)
	out.OutputData = copyJSONMap(t.OutputData)
	if t.CompletedAt != nil {
		ts := *t.CompletedAt
		out.CompletedAt = &ts
	}
	return &out
}

// copyJSONMap deep-copies the JSON-shaped subset of a map (nested maps and
// slices). Scalar values are shared, which is safe: the engine never
// mutates values inside published maps.
func copyJSONMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyJSONValue(v)
	}
	return out
}

func copyJSONValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return copyJSONMap(val)
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = copyJSONValue(inner)
		}
		return out
	default:
		return v
	}
}
