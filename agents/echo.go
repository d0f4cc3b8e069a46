// Package agents provides concrete Agent implementations that the registry
// dispatches to at runtime: the core (agent.Agent, agent.Registry) only
// depends on the interface, these are its real tenants.
package agents

import (
	"context"

	"github.com/agentflow/agentflow/agent"
)

// EchoAgent is a deterministic agent used by tests and the linear/diamond
// example scenarios: it returns its input verbatim under the "echo" key.
type EchoAgent struct{}

// NewEchoFactory returns an agent.Factory for EchoAgent. Config is ignored.
func NewEchoFactory() agent.Factory {
	return func(config map[string]any) (agent.Agent, error) {
		return EchoAgent{}, nil
	}
}

func (EchoAgent) ValidateInput(input map[string]any) bool { return true }

func (EchoAgent) EstimateCost(input map[string]any) agent.Cost { return 0 }

func (EchoAgent) Run(ctx context.Context, input map[string]any, execCtx map[string]any) agent.Result {
	return agent.Result{
		Success: true,
		Data:    map[string]any{"echo": input},
	}
}
