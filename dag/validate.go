package dag

import (
	"encoding/json"
	"fmt"
)

// Parse decodes and validates a workflow DAG definition. It performs the
// seven checks below, in order, returning the first *ValidationError
// encountered. On success it also computes the topological levels used by
// the scheduler, via the same Kahn's-algorithm pass that detects cycles.
func Parse(raw []byte) (*WorkflowDAG, error) {
	var top map[string]any
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, &ValidationError{Kind: MalformedDAG, Message: "dag definition is not a JSON object: " + err.Error()}
	}

	rawNodes, ok := top["nodes"]
	if !ok {
		return nil, &ValidationError{Kind: EmptyDAG, Message: "missing \"nodes\" field"}
	}
	nodeList, ok := rawNodes.([]any)
	if !ok || len(nodeList) == 0 {
		return nil, &ValidationError{Kind: EmptyDAG, Message: "\"nodes\" must be a non-empty list"}
	}

	d := &WorkflowDAG{Nodes: make(map[string]*Node, len(nodeList))}

	parsed := make([]*Node, 0, len(nodeList))
	for _, raw := range nodeList {
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, &ValidationError{Kind: MissingField, Message: "node entry is not an object"}
		}
		n, verr := parseNode(m)
		if verr != nil {
			return nil, verr
		}
		parsed = append(parsed, n)
	}

	for _, n := range parsed {
		if _, exists := d.Nodes[n.ID]; exists {
			return nil, &ValidationError{Kind: DuplicateNodeID, Message: "duplicate node id", NodeID: n.ID}
		}
		d.Nodes[n.ID] = n
		d.order = append(d.order, n.ID)
	}

	for _, id := range d.order {
		for _, dep := range d.Nodes[id].Dependencies {
			if _, exists := d.Nodes[dep]; !exists {
				return nil, &ValidationError{Kind: DanglingDependency, Message: fmt.Sprintf("dependency %q does not exist", dep), NodeID: id}
			}
		}
	}

	for _, id := range d.order {
		for _, dep := range d.Nodes[id].Dependencies {
			if dep == id {
				return nil, &ValidationError{Kind: SelfLoop, Message: "node depends on itself", NodeID: id}
			}
		}
	}

	levels, err := kahnLevels(d)
	if err != nil {
		return nil, err
	}
	d.levels = levels

	return d, nil
}

func parseNode(m map[string]any) (*Node, *ValidationError) {
	id, _ := m["id"].(string)
	name, _ := m["name"].(string)
	agentType, _ := m["agent_type"].(string)

	if id == "" {
		return nil, &ValidationError{Kind: MissingField, Message: "node missing required field \"id\""}
	}
	if name == "" {
		return nil, &ValidationError{Kind: MissingField, Message: "node missing required field \"name\"", NodeID: id}
	}
	if agentType == "" {
		return nil, &ValidationError{Kind: MissingField, Message: "node missing required field \"agent_type\"", NodeID: id}
	}

	n := &Node{
		ID:             id,
		Name:           name,
		AgentType:      agentType,
		MaxRetries:     DefaultMaxRetries,
		TimeoutSeconds: DefaultTimeoutSeconds,
		Status:         StatusPending,
	}

	if cfg, ok := m["agent_config"].(map[string]any); ok {
		n.AgentConfig = cfg
	}
	if input, ok := m["input_data"].(map[string]any); ok {
		n.InputData = input
	}
	if deps, ok := m["dependencies"].([]any); ok {
		for _, dep := range deps {
			if s, ok := dep.(string); ok {
				n.Dependencies = append(n.Dependencies, s)
			}
		}
	}
	if cond, ok := m["conditions"].(map[string]any); ok {
		c := &Conditions{}
		if t, ok := cond["type"].(string); ok {
			c.Type = t
		}
		if ck, ok := cond["context_key"].(string); ok {
			c.ContextKey = ck
		}
		if v, ok := cond["value"]; ok {
			c.Value = v
		}
		if opt, ok := cond["optional"].(bool); ok {
			c.Optional = opt
		}
		n.Conditions = c
	}
	if mr, ok := m["max_retries"].(float64); ok {
		n.MaxRetries = int(mr)
	}
	if ts, ok := m["timeout_seconds"].(float64); ok {
		n.TimeoutSeconds = int(ts)
	}

	return n, nil
}

// kahnLevels runs Kahn's algorithm once: it both detects cycles (a
// WorkflowDAG is cyclic iff the algorithm cannot consume all nodes) and
// produces the level assignment used as the execution plan, where level k
// holds every node whose dependencies are fully contained in levels 0..k-1.
func kahnLevels(d *WorkflowDAG) ([][]string, *ValidationError) {
	indegree := make(map[string]int, len(d.Nodes))
	dependents := make(map[string][]string, len(d.Nodes))
	for id, n := range d.Nodes {
		indegree[id] = len(n.Dependencies)
		for _, dep := range n.Dependencies {
			dependents[dep] = append(dependents[dep], id)
		}
	}

	var levels [][]string
	remaining := len(d.Nodes)
	frontier := make([]string, 0)
	for _, id := range d.order {
		if indegree[id] == 0 {
			frontier = append(frontier, id)
		}
	}

	for len(frontier) > 0 {
		levels = append(levels, frontier)
		remaining -= len(frontier)
		var next []string
		for _, id := range frontier {
			for _, dependent := range dependents[id] {
				indegree[dependent]--
				if indegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		frontier = next
	}

	if remaining > 0 {
		return nil, &ValidationError{Kind: CyclicDAG, Message: "dependency graph contains a cycle"}
	}
	return levels, nil
}
