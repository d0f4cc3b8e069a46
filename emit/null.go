package emit

import "context"

// NullEmitter implements Emitter by discarding all events. Use it when
// observability output is unwanted, e.g. in benchmarks or quiet CLI runs.
type NullEmitter struct{}

// NewNullEmitter returns an Emitter that drops everything. Safe for
// concurrent use; zero overhead.
func NewNullEmitter() *NullEmitter {
	return &NullEmitter{}
}

// Emit discards the event.
func (n *NullEmitter) Emit(event Event) {}

// EmitBatch discards all events.
func (n *NullEmitter) EmitBatch(ctx context.Context, events []Event) error {
	return nil
}

// Flush is a no-op.
func (n *NullEmitter) Flush(ctx context.Context) error {
	return nil
}
