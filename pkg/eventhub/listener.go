package eventhub

import (
	"context"

	"github.com/randalmurphal/eventhub/pkg/eventhub/event"
	"github.com/randalmurphal/eventhub/pkg/eventhub/variant"
)

// Listener reacts to events. A module's listeners run one at a time, in
// registration order; listeners of different modules may run concurrently.
// A returned error is logged and does not affect other listeners.
type Listener interface {
	Hear(ctx context.Context, ev *event.Event) error
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, ev *event.Event) error

// Hear implements Listener.
func (f ListenerFunc) Hear(ctx context.Context, ev *event.Event) error {
	return f(ctx, ev)
}

// ListenerLifecycle is implemented by listeners that want to know when they
// become active and when they are retired. Both run on the hub goroutine.
type ListenerLifecycle interface {
	OnRegistered()
	OnUnregistered()
}

// Processor rewrites events before listeners see them. Processors run one at
// a time on the hub goroutine in registration order. Returning nil or the
// input keeps the event unchanged; returning another event replaces it.
type Processor interface {
	Process(ctx context.Context, ev *event.Event) (*event.Event, error)
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, ev *event.Event) (*event.Event, error)

// Process implements Processor.
func (f ProcessorFunc) Process(ctx context.Context, ev *event.Event) (*event.Event, error) {
	return f(ctx, ev)
}

// Dispatcher emits events of one type and source on behalf of a module.
// It stops working once the module is unregistered.
type Dispatcher struct {
	handle *Handle
	typ    event.Type
	source event.Source
}

// Type returns the type of events built by Emit.
func (d *Dispatcher) Type() event.Type { return d.typ }

// Source returns the source of events built by Emit.
func (d *Dispatcher) Source() event.Source { return d.source }

// Dispatch sends a prepared event.
func (d *Dispatcher) Dispatch(ev *event.Event) error {
	return d.handle.Dispatch(ev)
}

// Emit builds an event with the dispatcher's type and source and sends it.
// It returns the event so callers can read its number.
func (d *Dispatcher) Emit(name string, data *variant.EventData) (*event.Event, error) {
	ev := event.NewBuilder(name, d.typ, d.source).SetData(data).Build()
	if err := d.handle.Dispatch(ev); err != nil {
		return nil, err
	}
	return ev, nil
}
