package engine

import (
	"time"

	"github.com/agentflow/agentflow/agent"
	"github.com/agentflow/agentflow/emit"
)

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithEmitter sets the observability sink for scheduler and executor
// events. Default is emit.NewNullEmitter().
func WithEmitter(emitter emit.Emitter) Option {
	return func(e *Engine) {
		if emitter != nil {
			e.emitter = emitter
		}
	}
}

// WithMetrics attaches Prometheus metrics collection. Default is no
// metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(e *Engine) {
		e.metrics = metrics
	}
}

// WithMaxConcurrentNodes caps how many nodes of one level run at once.
// Zero (the default) means unbounded: every node in a level is launched
// together.
func WithMaxConcurrentNodes(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxConcurrent = n
		}
	}
}

// WithClock overrides the engine's time source. Used by tests that assert
// on journal timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithAgentInfos supplies descriptions and capability lists surfaced by
// ListAvailableAgents. Types absent from the map still appear with their
// name only.
func WithAgentInfos(infos map[string]agent.Info) Option {
	return func(e *Engine) {
		e.agentInfos = infos
	}
}
