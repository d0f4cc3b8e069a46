// Package engine implements the DAG scheduling engine: it validates a
// workflow definition, runs its nodes level by level with per-node
// timeouts and bounded retries, propagates values through a write-once
// execution context, and journals every workflow and task execution.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/agentflow/agentflow/agent"
	"github.com/agentflow/agentflow/dag"
	"github.com/agentflow/agentflow/emit"
	"github.com/agentflow/agentflow/execctx"
	"github.com/agentflow/agentflow/journal"
)

// ErrExecutionExists is returned when a run is started under an
// execution_id that is already active. One execution instance exists per
// execution_id; concurrent duplicates are rejected.
var ErrExecutionExists = errors.New("engine: execution already running")

// Engine runs workflow DAGs. A single Engine value can run many workflow
// executions concurrently, each tracked by an internally synchronised
// run-handle map keyed by execution_id. There is no process-wide state:
// construct one Engine per registry/journal pairing.
type Engine struct {
	registry   *agent.Registry
	store      journal.Store
	emitter    emit.Emitter
	metrics    *Metrics
	agentInfos map[string]agent.Info

	maxConcurrent int
	now           func() time.Time

	mu   sync.Mutex
	runs map[string]*run
}

// run is the handle for one active execution. It owns the DAG instance,
// the execution context, and the cancellation signal for in-flight nodes.
type run struct {
	executionID string
	workflowID  string
	d           *dag.WorkflowDAG
	ectx        *execctx.Context
	cancel      context.CancelFunc
	cancelled   atomic.Bool
	done        chan struct{}
}

// New constructs an Engine over an agent registry and a journal store.
// A nil store gets an in-memory journal.
func New(registry *agent.Registry, store journal.Store, opts ...Option) *Engine {
	if store == nil {
		store = journal.NewMemoryStore()
	}
	e := &Engine{
		registry: registry,
		store:    store,
		emitter:  emit.NewNullEmitter(),
		now:      func() time.Time { return time.Now().UTC() },
		runs:     make(map[string]*run),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExecuteWorkflow validates dagDefinition and launches a run of it.
//
// Validation failures are returned synchronously as *dag.ValidationError
// with no journal record created. On success the call returns as soon as
// the WorkflowExecution journal record exists and the run goroutine is
// launched; it does not wait for the run to finish. ctx bounds only the
// synchronous work here; the run itself is cancelled via CancelWorkflow.
func (e *Engine) ExecuteWorkflow(ctx context.Context, workflowID string, dagDefinition []byte, input map[string]any, userID string) (string, error) {
	d, err := dag.Parse(dagDefinition)
	if err != nil {
		return "", err
	}

	executionID := uuid.NewString()
	startTime := e.now()

	runCtx, cancel := context.WithCancel(context.Background())
	r := &run{
		executionID: executionID,
		workflowID:  workflowID,
		d:           d,
		ectx:        execctx.New(workflowID, executionID, startTime.Format(time.RFC3339Nano), input),
		cancel:      cancel,
		done:        make(chan struct{}),
	}

	e.mu.Lock()
	if _, exists := e.runs[executionID]; exists {
		e.mu.Unlock()
		cancel()
		return "", ErrExecutionExists
	}
	e.runs[executionID] = r
	e.mu.Unlock()

	if _, err := e.store.BeginWorkflow(ctx, executionID, workflowID, input); err != nil {
		e.removeRun(executionID)
		cancel()
		return "", fmt.Errorf("journal begin workflow: %w", err)
	}

	go e.runWorkflow(runCtx, r)

	return executionID, nil
}

// Wait blocks until the given execution reaches a terminal state, or
// until ctx is done. It returns true when the execution is terminal,
// false on ctx expiry or an unknown id.
func (e *Engine) Wait(ctx context.Context, executionID string) bool {
	e.mu.Lock()
	r, ok := e.runs[executionID]
	e.mu.Unlock()
	if !ok {
		// Not active: terminal already, or never started.
		exec, err := e.store.GetWorkflow(ctx, executionID)
		return err == nil && exec.Status.Terminal()
	}
	select {
	case <-r.done:
		return true
	case <-ctx.Done():
		return false
	}
}

// CancelWorkflow signals an active execution to terminate. In-flight
// agent invocations observe the cancellation through their contexts;
// subsequent levels are not launched. Returns false when the execution is
// not active (unknown or already terminal).
func (e *Engine) CancelWorkflow(executionID string) bool {
	e.mu.Lock()
	r, ok := e.runs[executionID]
	e.mu.Unlock()
	if !ok {
		return false
	}
	r.cancelled.Store(true)
	r.cancel()
	return true
}

// GetExecutionStatus returns the journal record for an execution:
// status, error_message, output_data, and timestamps. Returns
// journal.ErrNotFound for an unknown id.
func (e *Engine) GetExecutionStatus(ctx context.Context, executionID string) (*journal.WorkflowExecution, error) {
	return e.store.GetWorkflow(ctx, executionID)
}

// ListTasks returns per-task diagnostics for an execution.
func (e *Engine) ListTasks(ctx context.Context, executionID string) ([]*journal.TaskExecution, error) {
	return e.store.ListTasks(ctx, executionID)
}

// ListAvailableAgents returns the registered agent types with their
// descriptions and capabilities, where known.
func (e *Engine) ListAvailableAgents() map[string]agent.Info {
	out := make(map[string]agent.Info)
	for _, name := range e.registry.List() {
		if info, ok := e.agentInfos[name]; ok {
			info.AgentType = name
			out[name] = info
			continue
		}
		out[name] = agent.Info{AgentType: name}
	}
	return out
}

func (e *Engine) removeRun(executionID string) {
	e.mu.Lock()
	delete(e.runs, executionID)
	e.mu.Unlock()
}
