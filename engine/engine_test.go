package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agentflow/agentflow/agent"
	"github.com/agentflow/agentflow/dag"
	"github.com/agentflow/agentflow/journal"
)

// funcAgent adapts plain functions to the Agent contract for tests.
type funcAgent struct {
	validate func(input map[string]any) bool
	cost     agent.Cost
	run      func(ctx context.Context, input, execCtx map[string]any) agent.Result
}

func (a funcAgent) ValidateInput(input map[string]any) bool {
	if a.validate == nil {
		return true
	}
	return a.validate(input)
}

func (a funcAgent) EstimateCost(input map[string]any) agent.Cost { return a.cost }

func (a funcAgent) Run(ctx context.Context, input, execCtx map[string]any) agent.Result {
	return a.run(ctx, input, execCtx)
}

func staticFactory(a agent.Agent) agent.Factory {
	return func(config map[string]any) (agent.Agent, error) { return a, nil }
}

func echoAgent() agent.Agent {
	return funcAgent{run: func(ctx context.Context, input, execCtx map[string]any) agent.Result {
		return agent.Result{Success: true, Data: map[string]any{"echo": input}}
	}}
}

// inputRecorder captures the resolved input each node's agent received.
type inputRecorder struct {
	mu     sync.Mutex
	inputs map[string]map[string]any
}

func newInputRecorder() *inputRecorder {
	return &inputRecorder{inputs: make(map[string]map[string]any)}
}

func (rec *inputRecorder) agent() agent.Agent {
	return funcAgent{run: func(ctx context.Context, input, execCtx map[string]any) agent.Result {
		if id, ok := input["self"].(string); ok {
			rec.mu.Lock()
			rec.inputs[id] = input
			rec.mu.Unlock()
		}
		return agent.Result{Success: true, Data: map[string]any{"echo": input}}
	}}
}

func (rec *inputRecorder) get(id string) map[string]any {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.inputs[id]
}

func newTestEngine(t *testing.T, factories map[string]agent.Factory, opts ...Option) (*Engine, *journal.MemoryStore) {
	t.Helper()
	store := journal.NewMemoryStore()
	e := New(agent.NewRegistry(factories), store, opts...)
	return e, store
}

func runToTerminal(t *testing.T, e *Engine, def string, input map[string]any) (string, *journal.WorkflowExecution) {
	t.Helper()
	execID, err := e.ExecuteWorkflow(context.Background(), "wf-test", []byte(def), input, "")
	if err != nil {
		t.Fatalf("ExecuteWorkflow: %v", err)
	}
	waitCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if !e.Wait(waitCtx, execID) {
		t.Fatalf("execution %s did not terminate", execID)
	}
	exec, err := e.GetExecutionStatus(context.Background(), execID)
	if err != nil {
		t.Fatalf("GetExecutionStatus: %v", err)
	}
	return execID, exec
}

func TestLinearChain(t *testing.T) {
	def := `{"nodes": [
		{"id": "A", "name": "A", "agent_type": "echo"},
		{"id": "B", "name": "B", "agent_type": "echo", "dependencies": ["A"]},
		{"id": "C", "name": "C", "agent_type": "echo", "dependencies": ["B"]}
	]}`

	d, err := dag.Parse([]byte(def))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	levels := d.Levels()
	want := [][]string{{"A"}, {"B"}, {"C"}}
	if len(levels) != 3 {
		t.Fatalf("levels = %v, want %v", levels, want)
	}
	for i := range want {
		if len(levels[i]) != 1 || levels[i][0] != want[i][0] {
			t.Fatalf("levels = %v, want %v", levels, want)
		}
	}

	e, _ := newTestEngine(t, map[string]agent.Factory{"echo": staticFactory(echoAgent())})
	execID, exec := runToTerminal(t, e, def, map[string]any{"x": 1})

	if exec.Status != journal.WorkflowCompleted {
		t.Fatalf("status = %v, want completed (%s)", exec.Status, exec.ErrorMessage)
	}
	for _, key := range []string{"node_A_output", "node_B_output", "node_C_output"} {
		if _, ok := exec.OutputData[key]; !ok {
			t.Errorf("output_data missing %s: %v", key, exec.OutputData)
		}
	}

	tasks, err := e.ListTasks(context.Background(), execID)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("expected 3 task records, got %d", len(tasks))
	}
	for _, task := range tasks {
		if task.Status != journal.TaskCompleted {
			t.Errorf("task %s status = %v", task.TaskName, task.Status)
		}
	}
}

func TestDiamondDependencyInjection(t *testing.T) {
	def := `{"nodes": [
		{"id": "A", "name": "A", "agent_type": "rec", "input_data": {"self": "A"}},
		{"id": "B", "name": "B", "agent_type": "rec", "input_data": {"self": "B"}, "dependencies": ["A"]},
		{"id": "C", "name": "C", "agent_type": "rec", "input_data": {"self": "C"}, "dependencies": ["A"]},
		{"id": "D", "name": "D", "agent_type": "rec", "input_data": {"self": "D"}, "dependencies": ["B", "C"]}
	]}`

	d, err := dag.Parse([]byte(def))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	levels := d.Levels()
	if len(levels) != 3 || len(levels[0]) != 1 || len(levels[1]) != 2 || len(levels[2]) != 1 {
		t.Fatalf("levels = %v, want [[A],[B,C],[D]]", levels)
	}

	rec := newInputRecorder()
	e, _ := newTestEngine(t, map[string]agent.Factory{"rec": staticFactory(rec.agent())})
	_, exec := runToTerminal(t, e, def, nil)

	if exec.Status != journal.WorkflowCompleted {
		t.Fatalf("status = %v (%s)", exec.Status, exec.ErrorMessage)
	}

	dInput := rec.get("D")
	if dInput == nil {
		t.Fatal("node D never ran")
	}
	if _, ok := dInput["dependency_B"]; !ok {
		t.Errorf("D input missing dependency_B: %v", dInput)
	}
	if _, ok := dInput["dependency_C"]; !ok {
		t.Errorf("D input missing dependency_C: %v", dInput)
	}
	// B saw A's published output, proving A terminated before level 1 read
	// the context.
	bInput := rec.get("B")
	if _, ok := bInput["dependency_A"]; !ok {
		t.Errorf("B input missing dependency_A: %v", bInput)
	}
}

// countingStore verifies that validation failures create no journal rows.
type countingStore struct {
	journal.Store
	begins atomic.Int64
}

func (c *countingStore) BeginWorkflow(ctx context.Context, executionID, workflowID string, input map[string]any) (*journal.WorkflowExecution, error) {
	c.begins.Add(1)
	return c.Store.BeginWorkflow(ctx, executionID, workflowID, input)
}

func TestSelfLoopRejectedSynchronously(t *testing.T) {
	store := &countingStore{Store: journal.NewMemoryStore()}
	e := New(agent.NewRegistry(map[string]agent.Factory{"echo": staticFactory(echoAgent())}), store)

	def := `{"nodes": [{"id": "A", "name": "A", "agent_type": "echo", "dependencies": ["A"]}]}`
	_, err := e.ExecuteWorkflow(context.Background(), "wf", []byte(def), nil, "")

	var verr *dag.ValidationError
	if !errors.As(err, &verr) || verr.Kind != dag.SelfLoop {
		t.Fatalf("err = %v, want SelfLoop validation error", err)
	}
	if store.begins.Load() != 0 {
		t.Error("journal record created for rejected DAG")
	}
}

func TestCycleRejectedSynchronously(t *testing.T) {
	e, _ := newTestEngine(t, map[string]agent.Factory{"echo": staticFactory(echoAgent())})
	def := `{"nodes": [
		{"id": "A", "name": "A", "agent_type": "echo", "dependencies": ["B"]},
		{"id": "B", "name": "B", "agent_type": "echo", "dependencies": ["A"]}
	]}`
	_, err := e.ExecuteWorkflow(context.Background(), "wf", []byte(def), nil, "")

	var verr *dag.ValidationError
	if !errors.As(err, &verr) || verr.Kind != dag.CyclicDAG {
		t.Fatalf("err = %v, want CyclicDAG validation error", err)
	}
}

func TestTimeoutRetriesThenFails(t *testing.T) {
	var attempts atomic.Int64
	slow := funcAgent{run: func(ctx context.Context, input, execCtx map[string]any) agent.Result {
		attempts.Add(1)
		<-ctx.Done()
		return agent.Result{Success: false, ErrorMessage: "interrupted"}
	}}

	def := `{"nodes": [
		{"id": "slow", "name": "Slow", "agent_type": "slow", "timeout_seconds": 1, "max_retries": 2},
		{"id": "down", "name": "Down", "agent_type": "slow", "dependencies": ["slow"]}
	]}`

	e, _ := newTestEngine(t, map[string]agent.Factory{"slow": staticFactory(slow)})
	execID, exec := runToTerminal(t, e, def, nil)

	if exec.Status != journal.WorkflowFailed {
		t.Fatalf("status = %v, want failed", exec.Status)
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want max_retries+1 = 3", got)
	}

	tasks, err := e.ListTasks(context.Background(), execID)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	// Downstream never launched: one task record only.
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task record, got %d", len(tasks))
	}
	if tasks[0].Status != journal.TaskFailed {
		t.Errorf("task status = %v", tasks[0].Status)
	}
	if !strings.Contains(tasks[0].ErrorMessage, string(AgentTimeout)) {
		t.Errorf("error %q does not carry AgentTimeout kind", tasks[0].ErrorMessage)
	}
}

func TestRetrySucceedsWithinBudget(t *testing.T) {
	var attempts atomic.Int64
	flaky := funcAgent{run: func(ctx context.Context, input, execCtx map[string]any) agent.Result {
		if attempts.Add(1) < 3 {
			return agent.Result{Success: false, ErrorMessage: "transient"}
		}
		return agent.Result{Success: true, Data: map[string]any{"ok": true}}
	}}

	def := `{"nodes": [{"id": "flaky", "name": "Flaky", "agent_type": "flaky", "max_retries": 3}]}`
	e, _ := newTestEngine(t, map[string]agent.Factory{"flaky": staticFactory(flaky)})
	_, exec := runToTerminal(t, e, def, nil)

	if exec.Status != journal.WorkflowCompleted {
		t.Fatalf("status = %v (%s)", exec.Status, exec.ErrorMessage)
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestOptionalFailureCompletesWorkflow(t *testing.T) {
	failing := funcAgent{run: func(ctx context.Context, input, execCtx map[string]any) agent.Result {
		return agent.Result{Success: false, ErrorMessage: "no luck"}
	}}

	def := `{"nodes": [
		{"id": "A", "name": "A", "agent_type": "fail", "max_retries": 0,
		 "conditions": {"optional": true}},
		{"id": "B", "name": "B", "agent_type": "echo"}
	]}`

	e, _ := newTestEngine(t, map[string]agent.Factory{
		"fail": staticFactory(failing),
		"echo": staticFactory(echoAgent()),
	})
	_, exec := runToTerminal(t, e, def, nil)

	if exec.Status != journal.WorkflowCompleted {
		t.Fatalf("status = %v, want completed (optional failure)", exec.Status)
	}
	if _, ok := exec.OutputData["node_B_output"]; !ok {
		t.Errorf("output_data missing node_B_output: %v", exec.OutputData)
	}
	if _, ok := exec.OutputData["node_A_output"]; ok {
		t.Errorf("failed node A leaked output: %v", exec.OutputData)
	}
}

func TestNonOptionalFailureFailsWorkflow(t *testing.T) {
	failing := funcAgent{run: func(ctx context.Context, input, execCtx map[string]any) agent.Result {
		return agent.Result{Success: false, ErrorMessage: "no luck"}
	}}
	def := `{"nodes": [{"id": "A", "name": "A", "agent_type": "fail", "max_retries": 0}]}`

	e, _ := newTestEngine(t, map[string]agent.Factory{"fail": staticFactory(failing)})
	_, exec := runToTerminal(t, e, def, nil)

	if exec.Status != journal.WorkflowFailed {
		t.Fatalf("status = %v, want failed", exec.Status)
	}
	if !strings.Contains(exec.ErrorMessage, "node A failed") {
		t.Errorf("error_message = %q", exec.ErrorMessage)
	}
}

func TestTemplateResolutionAcrossNodes(t *testing.T) {
	producer := funcAgent{run: func(ctx context.Context, input, execCtx map[string]any) agent.Result {
		return agent.Result{Success: true, Data: map[string]any{"value": 42}}
	}}
	rec := newInputRecorder()

	def := `{"nodes": [
		{"id": "A", "name": "A", "agent_type": "producer"},
		{"id": "B", "name": "B", "agent_type": "rec", "dependencies": ["A"],
		 "input_data": {"self": "B", "prompt": "got ${dependency_A}"}}
	]}`

	e, _ := newTestEngine(t, map[string]agent.Factory{
		"producer": staticFactory(producer),
		"rec":      staticFactory(rec.agent()),
	})
	_, exec := runToTerminal(t, e, def, nil)

	if exec.Status != journal.WorkflowCompleted {
		t.Fatalf("status = %v (%s)", exec.Status, exec.ErrorMessage)
	}
	bInput := rec.get("B")
	prompt, _ := bInput["prompt"].(string)
	if !strings.HasPrefix(prompt, "got ") || !strings.Contains(prompt, "42") {
		t.Errorf("prompt = %q, want string form of A's output after \"got \"", prompt)
	}
}

func TestCancellation(t *testing.T) {
	started := make(chan struct{})
	blocking := funcAgent{run: func(ctx context.Context, input, execCtx map[string]any) agent.Result {
		close(started)
		<-ctx.Done()
		return agent.Result{Success: false, ErrorMessage: "interrupted"}
	}}

	def := `{"nodes": [
		{"id": "long", "name": "Long", "agent_type": "block", "timeout_seconds": 60, "max_retries": 0},
		{"id": "next", "name": "Next", "agent_type": "block", "dependencies": ["long"]}
	]}`

	e, _ := newTestEngine(t, map[string]agent.Factory{"block": staticFactory(blocking)})
	execID, err := e.ExecuteWorkflow(context.Background(), "wf", []byte(def), nil, "")
	if err != nil {
		t.Fatalf("ExecuteWorkflow: %v", err)
	}

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("level-0 node never started")
	}
	if !e.CancelWorkflow(execID) {
		t.Fatal("CancelWorkflow returned false for active run")
	}

	waitCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if !e.Wait(waitCtx, execID) {
		t.Fatal("cancelled execution did not terminate")
	}

	exec, err := e.GetExecutionStatus(context.Background(), execID)
	if err != nil {
		t.Fatalf("GetExecutionStatus: %v", err)
	}
	if exec.Status != journal.WorkflowCancelled {
		t.Fatalf("status = %v, want cancelled", exec.Status)
	}

	tasks, err := e.ListTasks(context.Background(), execID)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected only the in-flight task recorded, got %d", len(tasks))
	}
	if !strings.Contains(tasks[0].ErrorMessage, string(NodeCancelled)) {
		t.Errorf("task error %q does not carry NodeCancelled", tasks[0].ErrorMessage)
	}

	// Cancelling again after termination reports not-active.
	if e.CancelWorkflow(execID) {
		t.Error("CancelWorkflow returned true for terminal run")
	}
}

func TestUnknownAgentTypeFailsNodeWithoutRetry(t *testing.T) {
	def := `{"nodes": [{"id": "A", "name": "A", "agent_type": "nope", "max_retries": 5}]}`
	e, _ := newTestEngine(t, map[string]agent.Factory{"echo": staticFactory(echoAgent())})
	execID, exec := runToTerminal(t, e, def, nil)

	if exec.Status != journal.WorkflowFailed {
		t.Fatalf("status = %v, want failed", exec.Status)
	}
	tasks, _ := e.ListTasks(context.Background(), execID)
	if len(tasks) != 1 || !strings.Contains(tasks[0].ErrorMessage, string(UnknownAgentType)) {
		t.Errorf("tasks = %+v, want single UnknownAgentType failure", tasks)
	}
}

func TestInvalidInputFailsNodeWithoutRetry(t *testing.T) {
	var attempts atomic.Int64
	picky := funcAgent{
		validate: func(input map[string]any) bool { return false },
		run: func(ctx context.Context, input, execCtx map[string]any) agent.Result {
			attempts.Add(1)
			return agent.Result{Success: true}
		},
	}
	def := `{"nodes": [{"id": "A", "name": "A", "agent_type": "picky", "max_retries": 5}]}`
	e, _ := newTestEngine(t, map[string]agent.Factory{"picky": staticFactory(picky)})
	execID, exec := runToTerminal(t, e, def, nil)

	if exec.Status != journal.WorkflowFailed {
		t.Fatalf("status = %v, want failed", exec.Status)
	}
	if attempts.Load() != 0 {
		t.Errorf("run called %d times after validation failure", attempts.Load())
	}
	tasks, _ := e.ListTasks(context.Background(), execID)
	if len(tasks) != 1 || !strings.Contains(tasks[0].ErrorMessage, string(InvalidAgentInput)) {
		t.Errorf("tasks = %+v, want single InvalidAgentInput failure", tasks)
	}
}

func TestListAvailableAgents(t *testing.T) {
	e, _ := newTestEngine(t,
		map[string]agent.Factory{"echo": staticFactory(echoAgent())},
		WithAgentInfos(map[string]agent.Info{
			"echo": {Description: "returns its input", Capabilities: []string{"test"}},
		}))

	infos := e.ListAvailableAgents()
	if len(infos) != 1 {
		t.Fatalf("expected 1 agent, got %d", len(infos))
	}
	info := infos["echo"]
	if info.AgentType != "echo" || info.Description != "returns its input" {
		t.Errorf("info = %+v", info)
	}
}

func TestGetExecutionStatusUnknown(t *testing.T) {
	e, _ := newTestEngine(t, map[string]agent.Factory{"echo": staticFactory(echoAgent())})
	_, err := e.GetExecutionStatus(context.Background(), "missing")
	if !errors.Is(err, journal.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
