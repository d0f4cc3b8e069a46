// Package agent defines the capability contract every workflow agent
// implements, and the registry the scheduler uses to resolve agent_type to
// a bound instance.
package agent

import "context"

// Cost is a fixed-point cost estimate expressed in integer micro-units
// (1 unit == 1,000,000 micro-units), so agent cost estimates compare and
// sum exactly instead of accumulating float64 error.
type Cost int64

// NewCostFromUnits converts a whole/fractional unit amount (e.g. USD) with
// up to six decimal places of precision into a Cost.
func NewCostFromUnits(units float64) Cost {
	return Cost(units * 1_000_000)
}

// Units returns the cost as a floating-point unit amount, for display only.
func (c Cost) Units() float64 {
	return float64(c) / 1_000_000
}

// Result is the outcome of one agent invocation.
type Result struct {
	Success         bool
	Data            map[string]any
	ErrorMessage    string
	ExecutionTimeMs int64
	CostEstimate    Cost
	Metadata        map[string]any
}

// Agent is the capability contract every node's agent_type resolves to.
// ValidateInput and EstimateCost are pure and side-effect-free; Run may
// perform I/O and must be responsive to ctx cancellation. Run must not
// mutate context (it is read-only context access for templated lookups the
// agent itself needs; the executor owns all context writes).
type Agent interface {
	ValidateInput(input map[string]any) bool
	EstimateCost(input map[string]any) Cost
	Run(ctx context.Context, input map[string]any, context map[string]any) Result
}

// Factory constructs a bound Agent instance from a node's agent_config.
type Factory func(config map[string]any) (Agent, error)

// Registry is a fixed, name->constructor lookup built at engine
// construction time. Runtime mutation after construction is unsupported,
// per the external-interfaces contract.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry builds a Registry from the given agent_type->Factory map.
func NewRegistry(factories map[string]Factory) *Registry {
	r := &Registry{factories: make(map[string]Factory, len(factories))}
	for name, f := range factories {
		r.factories[name] = f
	}
	return r
}

// Get resolves agent_type to a bound Agent instance, or (nil, false) if the
// type is unknown or its factory returns an error for the given config.
func (r *Registry) Get(agentType string, config map[string]any) (Agent, bool) {
	f, ok := r.factories[agentType]
	if !ok {
		return nil, false
	}
	a, err := f(config)
	if err != nil {
		return nil, false
	}
	return a, true
}

// Info describes a registered agent type for ListAvailableAgents.
type Info struct {
	AgentType    string
	Description  string
	Capabilities []string
}

// List returns the registered agent_type names. Order is unspecified.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}
