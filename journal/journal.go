// Package journal persists workflow and task execution records for status
// queries, cancellation, and audit. The journal is an append-mostly log of
// terminal state: the in-memory DAG remains the source of truth while a run
// is active.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/agentflow/agentflow/agent"
)

// ErrNotFound is returned when a requested execution or task ID does not
// exist.
var ErrNotFound = errors.New("journal: not found")

// WorkflowStatus is the lifecycle state of a WorkflowExecution. An
// execution is created running and transitions to exactly one terminal
// state (completed, failed, or cancelled).
type WorkflowStatus string

const (
	WorkflowPending   WorkflowStatus = "pending"
	WorkflowRunning   WorkflowStatus = "running"
	WorkflowCompleted WorkflowStatus = "completed"
	WorkflowFailed    WorkflowStatus = "failed"
	WorkflowCancelled WorkflowStatus = "cancelled"
)

// Terminal reports whether the status is one of the three end states.
func (s WorkflowStatus) Terminal() bool {
	return s == WorkflowCompleted || s == WorkflowFailed || s == WorkflowCancelled
}

// TaskStatus is the lifecycle state of a TaskExecution.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskSkipped   TaskStatus = "skipped"
)

// Terminal reports whether the status is an end state.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskSkipped
}

// WorkflowExecution is one run of a workflow. Created when the engine
// accepts the run; closed exactly once when the run terminates.
type WorkflowExecution struct {
	ID           string         `json:"id"`
	WorkflowID   string         `json:"workflow_id"`
	Status       WorkflowStatus `json:"status"`
	InputData    map[string]any `json:"input_data,omitempty"`
	OutputData   map[string]any `json:"output_data,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	StartedAt    time.Time      `json:"started_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// TaskExecution is one node attempt-group within a workflow execution
// (one record per node, not per retry). Created at status running when the
// executor begins the node; closed when the node's retry loop terminates.
type TaskExecution struct {
	ID                  string         `json:"id"`
	WorkflowExecutionID string         `json:"workflow_execution_id"`
	AgentID             string         `json:"agent_id,omitempty"`
	TaskName            string         `json:"task_name"`
	Status              TaskStatus     `json:"status"`
	InputData           map[string]any `json:"input_data,omitempty"`
	OutputData          map[string]any `json:"output_data,omitempty"`
	ErrorMessage        string         `json:"error_message,omitempty"`
	ExecutionTimeMs     int64          `json:"execution_time_ms"`
	CostEstimate        agent.Cost     `json:"cost_estimate_micros"`
	StartedAt           time.Time      `json:"started_at"`
	CompletedAt         *time.Time     `json:"completed_at,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
}

// Workflow is the stored definition a run is launched from. The engine
// itself only needs a workflow_id string; this record exists so the
// journal's relational shape (Workflow -> WorkflowExecution ->
// TaskExecution) is queryable end to end.
type Workflow struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	DAGDefinition json.RawMessage `json:"dag_definition"`
	Status        string          `json:"status"` // draft, active, archived
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Store is the persistence port for the execution journal.
//
// Write operations are append-style: Begin* creates a record in the
// running state, End* closes it. Terminal writes are idempotent under the
// same (id, status) pair, and the first terminal state wins: a later End*
// with a conflicting status leaves the record unchanged and returns nil.
//
// Implementations must be safe for concurrent use; parallel nodes in the
// same level call BeginTask/EndTask concurrently.
type Store interface {
	// BeginWorkflow creates the WorkflowExecution record for a newly
	// accepted run, status running, StartedAt set.
	BeginWorkflow(ctx context.Context, executionID, workflowID string, input map[string]any) (*WorkflowExecution, error)

	// EndWorkflow closes the execution with a terminal status, its
	// extracted output data, and an optional error message.
	EndWorkflow(ctx context.Context, executionID string, status WorkflowStatus, output map[string]any, errMsg string) error

	// BeginTask creates a TaskExecution record at status running and
	// returns its generated ID.
	BeginTask(ctx context.Context, workflowExecutionID, taskName, agentID string, input map[string]any) (string, error)

	// EndTask closes a task record with its terminal status and
	// diagnostics.
	EndTask(ctx context.Context, taskExecutionID string, status TaskStatus, output map[string]any, errMsg string, executionTimeMs int64, cost agent.Cost) error

	// GetWorkflow returns the execution record, or ErrNotFound.
	GetWorkflow(ctx context.Context, executionID string) (*WorkflowExecution, error)

	// ListTasks returns all task records for an execution, ordered by
	// creation time.
	ListTasks(ctx context.Context, executionID string) ([]*TaskExecution, error)

	// SaveWorkflow upserts a workflow definition record.
	SaveWorkflow(ctx context.Context, w *Workflow) error

	// GetWorkflowDefinition returns a stored workflow, or ErrNotFound.
	GetWorkflowDefinition(ctx context.Context, workflowID string) (*Workflow, error)

	// DeleteExecution removes an execution and, cascading, its task
	// records. Deleting an unknown ID is a no-op.
	DeleteExecution(ctx context.Context, executionID string) error

	// Close releases any underlying resources.
	Close() error
}
