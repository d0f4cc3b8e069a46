package engine

import "fmt"

// Kind classifies an executor or scheduler failure. Validation failures
// are reported separately as *dag.ValidationError before a run starts.
type Kind string

const (
	// UnknownAgentType means the node's agent_type is not in the registry.
	// Not retried.
	UnknownAgentType Kind = "UnknownAgentType"
	// InvalidAgentInput means the agent rejected the prepared input via
	// ValidateInput. Not retried.
	InvalidAgentInput Kind = "InvalidAgentInput"
	// AgentTimeout means one attempt exceeded the node's timeout_seconds.
	// Retried up to max_retries.
	AgentTimeout Kind = "AgentTimeout"
	// AgentFailure means the agent returned success=false or panicked.
	// Retried up to max_retries.
	AgentFailure Kind = "AgentFailure"
	// NodeCancelled means the node was interrupted by workflow
	// cancellation. Not retried.
	NodeCancelled Kind = "NodeCancelled"
	// WorkflowCancelled marks the workflow-level terminal error under
	// external cancellation.
	WorkflowCancelled Kind = "WorkflowCancelled"
)

// NodeError is the failure of one node within a run. Callers branch on
// Kind with errors.As; Error renders a readable message.
type NodeError struct {
	Kind    Kind
	NodeID  string
	Message string
}

func (e *NodeError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("%s: node %s: %s", e.Kind, e.NodeID, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Retryable reports whether the engine's retry loop may re-attempt after
// this failure.
func (e *NodeError) Retryable() bool {
	return e.Kind == AgentTimeout || e.Kind == AgentFailure
}
