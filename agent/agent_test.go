package agent

import (
	"context"
	"testing"
)

type stubAgent struct{}

func (stubAgent) ValidateInput(input map[string]any) bool { return true }
func (stubAgent) EstimateCost(input map[string]any) Cost   { return NewCostFromUnits(0.01) }
func (stubAgent) Run(ctx context.Context, input, ctxMap map[string]any) Result {
	return Result{Success: true, Data: map[string]any{"echo": input}}
}

func TestRegistryGetKnownType(t *testing.T) {
	r := NewRegistry(map[string]Factory{
		"stub": func(config map[string]any) (Agent, error) { return stubAgent{}, nil },
	})

	a, ok := r.Get("stub", nil)
	if !ok {
		t.Fatal("expected stub agent to resolve")
	}
	res := a.Run(context.Background(), map[string]any{"x": 1}, nil)
	if !res.Success {
		t.Fatal("expected success")
	}
}

func TestRegistryGetUnknownType(t *testing.T) {
	r := NewRegistry(nil)
	_, ok := r.Get("does_not_exist", nil)
	if ok {
		t.Fatal("expected unknown agent_type to miss")
	}
}

func TestCostRoundTrip(t *testing.T) {
	c := NewCostFromUnits(1.5)
	if c.Units() != 1.5 {
		t.Fatalf("expected 1.5, got %v", c.Units())
	}
}
