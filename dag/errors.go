// Package dag provides the workflow DAG data model and validator.
package dag

// Kind identifies a distinct DAG validation failure. Each check in Validate
// produces a distinct Kind so callers can branch on the failure class.
type Kind string

const (
	// MalformedDAG indicates the top-level JSON value is not an object.
	MalformedDAG Kind = "MalformedDAG"
	// EmptyDAG indicates the "nodes" field is missing, not a list, or empty.
	EmptyDAG Kind = "EmptyDAG"
	// MissingField indicates a node is missing id, name, or agent_type.
	MissingField Kind = "MissingField"
	// DuplicateNodeID indicates two nodes share the same id.
	DuplicateNodeID Kind = "DuplicateNodeID"
	// DanglingDependency indicates a node depends on an id that doesn't exist.
	DanglingDependency Kind = "DanglingDependency"
	// SelfLoop indicates a node lists itself as a dependency.
	SelfLoop Kind = "SelfLoop"
	// CyclicDAG indicates the dependency graph contains a cycle.
	CyclicDAG Kind = "CyclicDAG"
)

// ValidationError reports a single DAG validation failure with its Kind.
//
// Kind is stable across releases; Message is for humans and may change.
type ValidationError struct {
	Kind    Kind
	Message string
	NodeID  string
}

func (e *ValidationError) Error() string {
	if e.NodeID != "" {
		return string(e.Kind) + ": " + e.Message + " (node " + e.NodeID + ")"
	}
	return string(e.Kind) + ": " + e.Message
}
