package eventhub

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/randalmurphal/eventhub/pkg/eventhub/event"
	"github.com/randalmurphal/eventhub/pkg/eventhub/sharedstate"
)

// Handle is a module's connection to the hub. It is passed to
// Module.OnRegistered and stops working once the module is unregistered:
// every method then returns ErrModuleNotRegistered (or ErrHubDisposed once the
// hub is disposing). A nil *Handle behaves like a detached one.
//
// Registration methods are asynchronous. They take effect on the hub goroutine
// before any event dispatched after the call is delivered.
type Handle struct {
	hub   *Hub
	entry *moduleEntry
}

var _ StateReader = (*Handle)(nil)

func (h *Handle) check() error {
	if h == nil || h.hub == nil || h.entry == nil {
		return ErrModuleNotRegistered
	}
	if h.hub.isDisposing() {
		return ErrHubDisposed
	}
	if !h.entry.live() {
		return fmt.Errorf("%w: %s", ErrModuleNotRegistered, h.entry.name)
	}
	return nil
}

// Name returns the module name.
func (h *Handle) Name() string {
	if h == nil || h.entry == nil {
		return ""
	}
	return h.entry.name
}

// State returns the module's registration state.
func (h *Handle) State() ModuleState {
	if h == nil || h.entry == nil {
		return StateUnregistered
	}
	return h.entry.State()
}

// Logger returns the hub logger scoped to this module.
func (h *Handle) Logger() *slog.Logger {
	if h == nil || h.entry == nil || h.entry.logger == nil {
		return slog.Default()
	}
	return h.entry.logger
}

// Platform returns the host's platform services, or nil for a nil handle.
func (h *Handle) Platform() PlatformServices {
	if h == nil || h.hub == nil {
		return nil
	}
	return h.hub.platform
}

// RegisterListener makes l the module's listener for typ and source. A
// listener previously registered for the same pair is retired first. Either
// argument may be a wildcard.
func (h *Handle) RegisterListener(typ event.Type, source event.Source, l Listener) error {
	if err := h.check(); err != nil {
		return err
	}
	if l == nil {
		return ErrNilCallback
	}
	key := listenerKey{typ: typ, source: source}
	e := h.entry
	return h.hub.enqueue("register listener "+e.name, func() {
		h.hub.addListener(e, key, l)
	})
}

// RegisterWildcardListener makes l the module's listener for every event.
func (h *Handle) RegisterWildcardListener(l Listener) error {
	return h.RegisterListener(event.TypeWildcard, event.SourceWildcard, l)
}

// UnregisterListener retires the module's listener for typ and source.
func (h *Handle) UnregisterListener(typ event.Type, source event.Source) error {
	if err := h.check(); err != nil {
		return err
	}
	key := listenerKey{typ: typ, source: source}
	e := h.entry
	return h.hub.enqueue("unregister listener "+e.name, func() {
		h.hub.removeListener(e, key)
	})
}

// UnregisterWildcardListener retires the module's wildcard listener.
func (h *Handle) UnregisterWildcardListener() error {
	return h.UnregisterListener(event.TypeWildcard, event.SourceWildcard)
}

// RegisterProcessor adds p after every processor registered so far.
func (h *Handle) RegisterProcessor(p Processor) error {
	if err := h.check(); err != nil {
		return err
	}
	if p == nil {
		return ErrNilCallback
	}
	e := h.entry
	return h.hub.enqueue("register processor "+e.name, func() {
		h.hub.addProcessor(e, p)
	})
}

// CreateDispatcher returns a Dispatcher for events of typ and source.
func (h *Handle) CreateDispatcher(typ event.Type, source event.Source) *Dispatcher {
	return &Dispatcher{handle: h, typ: typ, source: source}
}

// RegisterOneTimeListener calls fn once, with this module's listeners, for
// the first event whose pair id is pairID, or for the first event matching
// typ and source when pairID is empty.
//
// Example:
//
//	req := event.NewBuilder("get", event.TypeIdentity, event.SourceRequestIdentity).
//		ExpectResponse().
//		Build()
//	h.RegisterOneTimeListener(event.TypeIdentity, event.SourceResponseIdentity, req.ResponsePairID(), onResponse)
//	h.Dispatch(req)
func (h *Handle) RegisterOneTimeListener(typ event.Type, source event.Source, pairID string, fn func(*event.Event)) error {
	if err := h.check(); err != nil {
		return err
	}
	return h.hub.registerOneTime(h.entry, typ, source, pairID, fn)
}

// Dispatch sends ev on behalf of the module.
func (h *Handle) Dispatch(ev *event.Event) error {
	if err := h.check(); err != nil {
		return err
	}
	return h.hub.Dispatch(ev)
}

// CreateSharedState adds the module's state at version.
func (h *Handle) CreateSharedState(version int32, v sharedstate.Value) error {
	e, err := h.stateEntry()
	if err != nil {
		return err
	}
	return h.hub.createState(e, version, v)
}

// UpdateSharedState resolves the module's pending state at version.
func (h *Handle) UpdateSharedState(version int32, d sharedstate.Delta) error {
	e, err := h.stateEntry()
	if err != nil {
		return err
	}
	return h.hub.updateState(e, version, d)
}

// CreateOrUpdateSharedState creates or resolves the module's state at version.
func (h *Handle) CreateOrUpdateSharedState(version int32, d sharedstate.Delta) error {
	e, err := h.stateEntry()
	if err != nil {
		return err
	}
	return h.hub.createOrUpdateState(e, version, d)
}

// PublishSharedState writes the module's state for the next event.
func (h *Handle) PublishSharedState(d sharedstate.Delta) (int32, error) {
	e, err := h.stateEntry()
	if err != nil {
		return 0, err
	}
	return h.hub.publishState(e, d)
}

// ClearSharedStates removes every version of the module's state.
func (h *Handle) ClearSharedStates() error {
	e, err := h.stateEntry()
	if err != nil {
		return err
	}
	h.hub.clearStates(e)
	return nil
}

func (h *Handle) stateEntry() (*moduleEntry, error) {
	if err := h.check(); err != nil {
		return nil, err
	}
	return h.hub.entryWriter(h.entry)
}

// SharedState reads state name as of ev. Reads keep working while the module
// is being unregistered.
func (h *Handle) SharedState(name string, ev *event.Event) (sharedstate.Value, error) {
	if h == nil || h.hub == nil || h.entry == nil {
		return sharedstate.Invalid, ErrModuleNotRegistered
	}
	return h.hub.SharedEventState(name, ev, h.entry.module)
}

// HasSharedState reports whether name has any concrete or pending entry.
func (h *Handle) HasSharedState(name string) bool {
	if h == nil || h.hub == nil {
		return false
	}
	return h.hub.HasSharedEventState(name)
}

// taskOptions configures AddTask.
type taskOptions struct {
	required bool
}

// TaskOption configures a module task.
type TaskOption func(*taskOptions)

// RequiredForUnregistration keeps the task queued when the module is
// unregistered. It runs after OnUnregistered.
func RequiredForUnregistration() TaskOption {
	return func(o *taskOptions) {
		o.required = true
	}
}

// AddTask runs fn in the background. A module's tasks run one at a time in
// submission order, apart from the listener workers, so fn may block waiting
// for an event. The context is cancelled when the hub is disposed. Errors
// and panics are logged. It reports whether the task was queued.
func (h *Handle) AddTask(name string, fn func(ctx context.Context) error, opts ...TaskOption) bool {
	if h.check() != nil || fn == nil {
		return false
	}
	var o taskOptions
	for _, opt := range opts {
		opt(&o)
	}

	hub, e := h.hub, h.entry
	ok := e.tasks.Add(name,
		func() error { return fn(hub.ctx) },
		func(err error) { hub.callbackFailed(e, "task "+name, err) },
		o.required,
	)
	if !ok {
		hub.metrics.RecordTaskRejected(hub.ctx, e.name)
	}
	return ok
}

// RegisterRule adds r to the module's rules.
func (h *Handle) RegisterRule(r Rule) error {
	if err := h.check(); err != nil {
		return err
	}
	e := h.entry
	return h.hub.enqueue("register rule "+e.name, func() {
		h.hub.addRule(e, r)
	})
}

// UnregisterAllRules removes every rule of the module.
func (h *Handle) UnregisterAllRules() error {
	if err := h.check(); err != nil {
		return err
	}
	e := h.entry
	return h.hub.enqueue("unregister rules "+e.name, func() {
		e.rules = nil
	})
}

// Unregister detaches the module from the hub.
func (h *Handle) Unregister() error {
	if err := h.check(); err != nil {
		return err
	}
	return h.hub.unregister(h.entry)
}
