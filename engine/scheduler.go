package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentflow/agentflow/dag"
	"github.com/agentflow/agentflow/emit"
	"github.com/agentflow/agentflow/journal"
)

// runWorkflow drives one execution to a terminal state. It executes the
// DAG's topological levels in order, launching each level's eligible
// nodes concurrently and waiting for the whole level before advancing, so
// a completed node's outputs are always visible to the next level.
func (e *Engine) runWorkflow(ctx context.Context, r *run) {
	defer close(r.done)
	defer e.removeRun(r.executionID)

	e.emitter.Emit(emit.Event{
		ExecutionID: r.executionID,
		Level:       -1,
		Msg:         "workflow_start",
		Meta:        map[string]any{"workflow_id": r.workflowID, "nodes": len(r.d.Nodes)},
	})

	var schedulerErr error
	func() {
		defer func() {
			// A panic in the scheduler itself fails the workflow and
			// cancels in-flight nodes; node-level panics are already
			// contained by the executor.
			if rec := recover(); rec != nil {
				schedulerErr = fmt.Errorf("scheduler panic: %v", rec)
				r.cancel()
			}
		}()
		e.runLevels(ctx, r)
	}()

	status, errMsg := e.finalStatus(r, schedulerErr)
	output := r.ectx.OutputData()

	// The run context may already be cancelled; journal writes use a
	// fresh bounded context so the terminal record is still persisted.
	journalCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = e.store.EndWorkflow(journalCtx, r.executionID, status, output, errMsg)

	e.metrics.WorkflowFinished(string(status))
	e.emitter.Emit(emit.Event{
		ExecutionID: r.executionID,
		Level:       -1,
		Msg:         "workflow_end",
		Meta:        workflowEndMeta(status, errMsg),
	})
	_ = e.emitter.Flush(journalCtx)
}

// runLevels executes each level in order, stopping early on cancellation.
func (e *Engine) runLevels(ctx context.Context, r *run) {
	for levelIdx, level := range r.d.Levels() {
		if ctx.Err() != nil || r.cancelled.Load() {
			return
		}

		eligible := e.collectEligible(r, level)
		if len(eligible) == 0 {
			continue
		}

		e.metrics.SetQueueDepth(len(eligible))
		e.emitter.Emit(emit.Event{
			ExecutionID: r.executionID,
			Level:       levelIdx,
			Msg:         "level_start",
			Meta:        map[string]any{"nodes": len(eligible)},
		})

		e.runLevel(ctx, r, levelIdx, eligible)

		e.metrics.SetQueueDepth(0)
		e.emitter.Emit(emit.Event{
			ExecutionID: r.executionID,
			Level:       levelIdx,
			Msg:         "level_end",
		})
	}
}

// collectEligible returns the level's nodes that are still PENDING and
// whose dependencies all reached COMPLETED or SKIPPED. A node downstream
// of a FAILED dependency stays PENDING and is never launched. SKIPPED
// counts as satisfied, so skipping a node does not strand its dependents.
func (e *Engine) collectEligible(r *run, level []string) []*dag.Node {
	var eligible []*dag.Node
	for _, id := range level {
		n := r.d.Nodes[id]
		status, _, _, _ := n.Snapshot()
		if status != dag.StatusPending {
			continue
		}
		if !e.dependenciesSatisfied(r, n) {
			continue
		}
		eligible = append(eligible, n)
	}
	return eligible
}

func (e *Engine) dependenciesSatisfied(r *run, n *dag.Node) bool {
	for _, dep := range n.Dependencies {
		depStatus, _, _, _ := r.d.Nodes[dep].Snapshot()
		if depStatus != dag.StatusCompleted && depStatus != dag.StatusSkipped {
			return false
		}
	}
	return true
}

// runLevel launches the eligible nodes concurrently and waits for all of
// them. maxConcurrent, when set, bounds how many run at once via a
// semaphore; the level still completes as a whole before returning.
func (e *Engine) runLevel(ctx context.Context, r *run, levelIdx int, nodes []*dag.Node) {
	var sem chan struct{}
	if e.maxConcurrent > 0 {
		sem = make(chan struct{}, e.maxConcurrent)
	}

	var wg sync.WaitGroup
	for _, n := range nodes {
		wg.Add(1)
		go func(n *dag.Node) {
			defer wg.Done()
			if sem != nil {
				sem <- struct{}{}
				defer func() { <-sem }()
			}
			e.executeNode(ctx, r, n, levelIdx)
		}(n)
	}
	wg.Wait()
}

// finalStatus applies the failure policy: a scheduler panic fails the
// workflow, otherwise cancelled beats node outcomes, then the workflow
// fails iff some FAILED node is not marked optional.
func (e *Engine) finalStatus(r *run, schedulerErr error) (journal.WorkflowStatus, string) {
	if schedulerErr != nil {
		return journal.WorkflowFailed, schedulerErr.Error()
	}
	if r.cancelled.Load() {
		return journal.WorkflowCancelled, (&NodeError{Kind: WorkflowCancelled, Message: "workflow cancelled"}).Error()
	}

	var firstFailure string
	for _, n := range r.d.Nodes {
		status, _, _, errMsg := n.Snapshot()
		if status != dag.StatusFailed {
			continue
		}
		if n.Conditions != nil && n.Conditions.Optional {
			continue
		}
		if firstFailure == "" {
			firstFailure = fmt.Sprintf("node %s failed: %s", n.ID, errMsg)
		}
	}
	if firstFailure != "" {
		return journal.WorkflowFailed, firstFailure
	}
	return journal.WorkflowCompleted, ""
}

func workflowEndMeta(status journal.WorkflowStatus, errMsg string) map[string]any {
	meta := map[string]any{"status": string(status)}
	if errMsg != "" {
		meta["error"] = errMsg
	}
	return meta
}
