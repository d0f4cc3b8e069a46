package engine

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/agentflow/agentflow/agent"
	"github.com/agentflow/agentflow/dag"
	"github.com/agentflow/agentflow/emit"
	"github.com/agentflow/agentflow/execctx"
	"github.com/agentflow/agentflow/journal"
)

// executeNode runs one node to a terminal state: skip evaluation, input
// preparation, agent lookup, validation, then the timeout-bounded retry
// loop. The total attempts for a node are max_retries + 1; retries are
// immediate. Exactly one TaskExecution record is opened and closed per
// node, regardless of retries.
func (e *Engine) executeNode(ctx context.Context, r *run, n *dag.Node, levelIdx int) {
	e.metrics.NodeStarted()
	defer e.metrics.NodeFinished()

	start := e.now()
	taskID, journalErr := e.store.BeginTask(ctx, r.executionID, n.Name, n.AgentType, n.InputData)
	if journalErr != nil {
		// Journal unavailability must not change scheduling semantics;
		// the node still runs, with an empty task id disabling EndTask.
		taskID = ""
	}

	if e.shouldSkip(r, n) {
		n.SetState(dag.StatusSkipped, 0, nil, "")
		e.endTask(taskID, journal.TaskSkipped, nil, "", 0, 0)
		e.metrics.RecordNodeLatency(n.ID, e.now().Sub(start), "skipped")
		e.emitter.Emit(emit.Event{
			ExecutionID: r.executionID,
			Level:       levelIdx,
			NodeID:      n.ID,
			Msg:         "node_skipped",
		})
		return
	}

	prepared := execctx.PrepareInput(r.ectx, n.InputData, n.Dependencies)

	boundAgent, ok := e.registry.Get(n.AgentType, n.AgentConfig)
	if !ok {
		e.failNode(r, n, taskID, levelIdx, start, 0, &NodeError{
			Kind:    UnknownAgentType,
			NodeID:  n.ID,
			Message: fmt.Sprintf("agent type %q is not registered", n.AgentType),
		})
		return
	}

	if !boundAgent.ValidateInput(prepared) {
		e.failNode(r, n, taskID, levelIdx, start, 0, &NodeError{
			Kind:    InvalidAgentInput,
			NodeID:  n.ID,
			Message: "agent rejected input",
		})
		return
	}

	cost := boundAgent.EstimateCost(prepared)
	timeout := time.Duration(n.TimeoutSeconds) * time.Second

	var lastErr *NodeError
	attempt := 0
	for {
		n.SetState(dag.StatusRunning, attempt, nil, "")
		e.emitter.Emit(emit.Event{
			ExecutionID: r.executionID,
			Level:       levelIdx,
			NodeID:      n.ID,
			Msg:         "node_start",
			Meta:        map[string]any{"attempt": attempt},
		})

		result, nerr := e.invokeAgent(ctx, boundAgent, n, prepared, r.ectx.Snapshot(), timeout)
		if nerr == nil {
			if result.CostEstimate != 0 {
				cost = result.CostEstimate
			}
			e.completeNode(r, n, taskID, levelIdx, attempt, result, start, cost)
			return
		}

		lastErr = nerr
		if !nerr.Retryable() || attempt >= n.MaxRetries {
			break
		}
		attempt++
		e.metrics.IncrementRetries(n.ID, retryReason(nerr.Kind))
		e.emitter.Emit(emit.Event{
			ExecutionID: r.executionID,
			Level:       levelIdx,
			NodeID:      n.ID,
			Msg:         "node_retry",
			Meta:        map[string]any{"attempt": attempt, "reason": string(nerr.Kind)},
		})
	}

	e.failNode(r, n, taskID, levelIdx, start, attempt, lastErr)
}

// shouldSkip evaluates the node's skip_if condition against the current
// context. Absent conditions never skip; a missing context key never
// skips.
func (e *Engine) shouldSkip(r *run, n *dag.Node) bool {
	c := n.Conditions
	if c == nil || c.Type != "skip_if" {
		return false
	}
	value, ok := r.ectx.Get(c.ContextKey)
	if !ok {
		return false
	}
	return conditionEqual(value, c.Value)
}

// conditionEqual compares a context value against a condition value.
// Numbers compare by value regardless of int/float representation, since
// condition values arrive JSON-decoded as float64 while context values
// may be native Go ints.
func conditionEqual(a, b any) bool {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// invokeAgent runs one attempt under the node's timeout. The agent runs
// in its own goroutine so a non-cooperative agent cannot stall the
// scheduler past the deadline; a panicking agent is contained and
// reported as an AgentFailure.
func (e *Engine) invokeAgent(ctx context.Context, boundAgent agent.Agent, n *dag.Node, input, snapshot map[string]any, timeout time.Duration) (agent.Result, *NodeError) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resultCh := make(chan agent.Result, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				resultCh <- agent.Result{
					Success:      false,
					ErrorMessage: fmt.Sprintf("agent panic: %v", rec),
				}
			}
		}()
		resultCh <- boundAgent.Run(attemptCtx, input, snapshot)
	}()

	select {
	case result := <-resultCh:
		if ctx.Err() != nil {
			return result, &NodeError{Kind: NodeCancelled, NodeID: n.ID, Message: "workflow cancelled"}
		}
		if result.Success {
			return result, nil
		}
		msg := result.ErrorMessage
		if msg == "" {
			msg = "agent execution failed"
		}
		return result, &NodeError{Kind: AgentFailure, NodeID: n.ID, Message: msg}
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return agent.Result{}, &NodeError{Kind: NodeCancelled, NodeID: n.ID, Message: "workflow cancelled"}
		}
		return agent.Result{}, &NodeError{
			Kind:    AgentTimeout,
			NodeID:  n.ID,
			Message: fmt.Sprintf("timed out after %d seconds", n.TimeoutSeconds),
		}
	}
}

// completeNode publishes the node's outputs to the context as one
// indivisible write, then records the terminal state.
func (e *Engine) completeNode(r *run, n *dag.Node, taskID string, levelIdx, attempt int, result agent.Result, start time.Time, cost agent.Cost) {
	if err := r.ectx.SetNodeOutput(n.ID, result.Data, result.Metadata); err != nil {
		e.failNode(r, n, taskID, levelIdx, start, attempt, &NodeError{
			Kind:    AgentFailure,
			NodeID:  n.ID,
			Message: "context publish rejected: " + err.Error(),
		})
		return
	}
	n.SetState(dag.StatusCompleted, attempt, result.Data, "")
	elapsed := e.now().Sub(start)

	e.endTask(taskID, journal.TaskCompleted, result.Data, "", elapsed.Milliseconds(), cost)
	e.metrics.RecordNodeLatency(n.ID, elapsed, "completed")
	e.emitter.Emit(emit.Event{
		ExecutionID: r.executionID,
		Level:       levelIdx,
		NodeID:      n.ID,
		Msg:         "node_end",
		Meta: map[string]any{
			"status":      "completed",
			"attempt":     attempt,
			"duration_ms": elapsed.Milliseconds(),
		},
	})
}

// failNode records a node's terminal failure without aborting the
// workflow; the failure policy is applied at workflow termination.
func (e *Engine) failNode(r *run, n *dag.Node, taskID string, levelIdx int, start time.Time, retryCount int, nerr *NodeError) {
	elapsed := e.now().Sub(start)
	n.SetState(dag.StatusFailed, retryCount, nil, nerr.Error())

	e.endTask(taskID, journal.TaskFailed, nil, nerr.Error(), elapsed.Milliseconds(), 0)
	e.metrics.RecordNodeLatency(n.ID, elapsed, "failed")
	e.emitter.Emit(emit.Event{
		ExecutionID: r.executionID,
		Level:       levelIdx,
		NodeID:      n.ID,
		Msg:         "node_end",
		Meta: map[string]any{
			"status":      "failed",
			"error":       nerr.Error(),
			"kind":        string(nerr.Kind),
			"duration_ms": elapsed.Milliseconds(),
		},
	})
}

// endTask closes the node's journal record. Journal writes use a bounded
// background context so an already-cancelled run context cannot lose the
// terminal record.
func (e *Engine) endTask(taskID string, status journal.TaskStatus, output map[string]any, errMsg string, elapsedMs int64, cost agent.Cost) {
	if taskID == "" {
		return
	}
	journalCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = e.store.EndTask(journalCtx, taskID, status, output, errMsg, elapsedMs, cost)
}

func retryReason(kind Kind) string {
	if kind == AgentTimeout {
		return "timeout"
	}
	return "failure"
}
