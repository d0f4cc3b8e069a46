package dag

import "sync"

// Status is the execution state of a node within a single run.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusSkipped   Status = "SKIPPED"
)

// DefaultMaxRetries and DefaultTimeoutSeconds are applied when a node
// omits the corresponding field.
const (
	DefaultMaxRetries     = 3
	DefaultTimeoutSeconds = 300
)

// Conditions is an optional skip predicate attached to a node. A node is
// skipped when context[ContextKey] == Value. Optional marks the node's
// failure as non-critical for the workflow's overall failure policy.
type Conditions struct {
	Type       string `json:"type,omitempty"`
	ContextKey string `json:"context_key,omitempty"`
	Value      any    `json:"value,omitempty"`
	Optional   bool   `json:"optional,omitempty"`
}

// Node is one unit of work in a WorkflowDAG. The configuration fields are
// immutable after construction; Status/RetryCount/Result/ErrorMessage are
// mutated by exactly one goroutine (the executor assigned to this node)
// during a run.
type Node struct {
	ID             string
	Name           string
	AgentType      string
	AgentConfig    map[string]any
	InputData      map[string]any
	Dependencies   []string
	Conditions     *Conditions
	MaxRetries     int
	TimeoutSeconds int

	mu           sync.Mutex
	Status       Status
	RetryCount   int
	Result       map[string]any
	ErrorMessage string
}

// SetState atomically updates the node's mutable execution fields. The
// executor is the only caller; it is serialized per-node by construction
// (one executor goroutine per node per attempt), so the mutex here guards
// against concurrent reads from status-reporting code, not concurrent
// writers.
func (n *Node) SetState(status Status, retryCount int, result map[string]any, errMsg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Status = status
	n.RetryCount = retryCount
	n.Result = result
	n.ErrorMessage = errMsg
}

// Snapshot returns a copy of the node's current mutable state for safe
// concurrent reading (e.g. from a status query while the run is active).
func (n *Node) Snapshot() (status Status, retryCount int, result map[string]any, errMsg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.Status, n.RetryCount, n.Result, n.ErrorMessage
}

// NodeSpec is the immutable, JSON-serializable configuration of a node,
// used by ToDict/FromDict round-tripping. It deliberately excludes the
// mutable execution fields (status, retry_count, result, error_message),
// mirroring the canonical DAG JSON definition format.
type NodeSpec struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	AgentType      string         `json:"agent_type"`
	AgentConfig    map[string]any `json:"agent_config,omitempty"`
	InputData      map[string]any `json:"input_data,omitempty"`
	Dependencies   []string       `json:"dependencies,omitempty"`
	Conditions     *Conditions    `json:"conditions,omitempty"`
	MaxRetries     int            `json:"max_retries"`
	TimeoutSeconds int            `json:"timeout_seconds"`
}

// WorkflowDAG is a validated, acyclic graph of nodes keyed by ID. Once
// returned by Parse, it is guaranteed acyclic with no dangling dependencies,
// no self-loops, and no duplicate IDs.
type WorkflowDAG struct {
	Nodes   map[string]*Node
	order   []string   // declaration order, used for deterministic ToDict output
	levels  [][]string // topological levels, computed once at Parse time
}

// ToDict renders the DAG back to the canonical JSON DAG definition, in the
// original declaration order, with defaults made explicit.
func (d *WorkflowDAG) ToDict() map[string]any {
	specs := make([]NodeSpec, 0, len(d.order))
	for _, id := range d.order {
		n := d.Nodes[id]
		specs = append(specs, NodeSpec{
			ID:             n.ID,
			Name:           n.Name,
			AgentType:      n.AgentType,
			AgentConfig:    n.AgentConfig,
			InputData:      n.InputData,
			Dependencies:   n.Dependencies,
			Conditions:     n.Conditions,
			MaxRetries:     n.MaxRetries,
			TimeoutSeconds: n.TimeoutSeconds,
		})
	}
	return map[string]any{"nodes": specs}
}

// Levels returns the execution plan: level 0 holds nodes with no
// dependencies, level k+1 holds nodes whose dependencies are all satisfied
// by levels 0..k. Computed once during Parse via Kahn's algorithm.
func (d *WorkflowDAG) Levels() [][]string {
	return d.levels
}
