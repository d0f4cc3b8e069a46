package dag

import (
	"encoding/json"
	"testing"
)

func TestParseLinearChain(t *testing.T) {
	raw := []byte(`{
		"nodes": [
			{"id": "a", "name": "A", "agent_type": "echo"},
			{"id": "b", "name": "B", "agent_type": "echo", "dependencies": ["a"]},
			{"id": "c", "name": "C", "agent_type": "echo", "dependencies": ["b"]}
		]
	}`)

	d, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	levels := d.Levels()
	if len(levels) != 3 {
		t.Fatalf("expected 3 levels, got %d: %v", len(levels), levels)
	}
	if levels[0][0] != "a" || levels[1][0] != "b" || levels[2][0] != "c" {
		t.Fatalf("unexpected level ordering: %v", levels)
	}
	if d.Nodes["a"].MaxRetries != DefaultMaxRetries {
		t.Fatalf("expected default max_retries, got %d", d.Nodes["a"].MaxRetries)
	}
}

func TestParseDiamond(t *testing.T) {
	raw := []byte(`{
		"nodes": [
			{"id": "a", "name": "A", "agent_type": "echo"},
			{"id": "b", "name": "B", "agent_type": "echo", "dependencies": ["a"]},
			{"id": "c", "name": "C", "agent_type": "echo", "dependencies": ["a"]},
			{"id": "d", "name": "D", "agent_type": "echo", "dependencies": ["b", "c"]}
		]
	}`)

	d, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	levels := d.Levels()
	if len(levels) != 3 {
		t.Fatalf("expected 3 levels, got %d: %v", len(levels), levels)
	}
	if len(levels[1]) != 2 {
		t.Fatalf("expected 2 nodes in level 1, got %v", levels[1])
	}
}

func TestParseSelfLoopRejected(t *testing.T) {
	raw := []byte(`{"nodes": [{"id": "a", "name": "A", "agent_type": "echo", "dependencies": ["a"]}]}`)

	_, err := Parse(raw)
	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T (%v)", err, err)
	}
	if ve.Kind != SelfLoop {
		t.Fatalf("expected SelfLoop, got %s", ve.Kind)
	}
}

func TestParseCycleRejected(t *testing.T) {
	raw := []byte(`{
		"nodes": [
			{"id": "a", "name": "A", "agent_type": "echo", "dependencies": ["c"]},
			{"id": "b", "name": "B", "agent_type": "echo", "dependencies": ["a"]},
			{"id": "c", "name": "C", "agent_type": "echo", "dependencies": ["b"]}
		]
	}`)

	_, err := Parse(raw)
	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T (%v)", err, err)
	}
	if ve.Kind != CyclicDAG {
		t.Fatalf("expected CyclicDAG, got %s", ve.Kind)
	}
}

func TestParseDanglingDependency(t *testing.T) {
	raw := []byte(`{"nodes": [{"id": "a", "name": "A", "agent_type": "echo", "dependencies": ["missing"]}]}`)

	_, err := Parse(raw)
	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T (%v)", err, err)
	}
	if ve.Kind != DanglingDependency {
		t.Fatalf("expected DanglingDependency, got %s", ve.Kind)
	}
}

func TestParseDuplicateNodeID(t *testing.T) {
	raw := []byte(`{
		"nodes": [
			{"id": "a", "name": "A", "agent_type": "echo"},
			{"id": "a", "name": "A2", "agent_type": "echo"}
		]
	}`)

	_, err := Parse(raw)
	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T (%v)", err, err)
	}
	if ve.Kind != DuplicateNodeID {
		t.Fatalf("expected DuplicateNodeID, got %s", ve.Kind)
	}
}

func TestParseMissingField(t *testing.T) {
	raw := []byte(`{"nodes": [{"id": "a", "agent_type": "echo"}]}`)

	_, err := Parse(raw)
	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T (%v)", err, err)
	}
	if ve.Kind != MissingField {
		t.Fatalf("expected MissingField, got %s", ve.Kind)
	}
}

func TestParseEmptyDAG(t *testing.T) {
	_, err := Parse([]byte(`{"nodes": []}`))
	ve, ok := err.(*ValidationError)
	if !ok || ve.Kind != EmptyDAG {
		t.Fatalf("expected EmptyDAG, got %v", err)
	}

	_, err = Parse([]byte(`{}`))
	ve, ok = err.(*ValidationError)
	if !ok || ve.Kind != EmptyDAG {
		t.Fatalf("expected EmptyDAG for missing nodes key, got %v", err)
	}
}

func TestParseMalformedDAG(t *testing.T) {
	_, err := Parse([]byte(`["not", "an", "object"]`))
	ve, ok := err.(*ValidationError)
	if !ok || ve.Kind != MalformedDAG {
		t.Fatalf("expected MalformedDAG, got %v", err)
	}
}

func TestToDictRoundTrip(t *testing.T) {
	raw := []byte(`{"nodes": [{"id": "a", "name": "A", "agent_type": "echo"}]}`)
	d, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	dict := d.ToDict()
	encoded, err := json.Marshal(dict)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	d2, err := Parse(encoded)
	if err != nil {
		t.Fatalf("round-trip parse failed: %v", err)
	}
	if d2.Nodes["a"].MaxRetries != DefaultMaxRetries {
		t.Fatalf("expected explicit default max_retries to survive round-trip, got %d", d2.Nodes["a"].MaxRetries)
	}
	if d2.Nodes["a"].TimeoutSeconds != DefaultTimeoutSeconds {
		t.Fatalf("expected explicit default timeout_seconds to survive round-trip, got %d", d2.Nodes["a"].TimeoutSeconds)
	}
}

func TestConditionsOptionalParsed(t *testing.T) {
	raw := []byte(`{
		"nodes": [
			{"id": "a", "name": "A", "agent_type": "echo",
			 "conditions": {"type": "skip_if", "context_key": "node_a_output", "value": "skip", "optional": true}}
		]
	}`)

	d, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c := d.Nodes["a"].Conditions
	if c == nil {
		t.Fatal("expected conditions to be parsed")
	}
	if !c.Optional {
		t.Fatal("expected optional=true")
	}
	if c.Type != "skip_if" || c.ContextKey != "node_a_output" {
		t.Fatalf("unexpected conditions: %+v", c)
	}
}
