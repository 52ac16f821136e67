package eventhub

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/randalmurphal/eventhub/pkg/eventhub/event"
	"github.com/randalmurphal/eventhub/pkg/eventhub/observability"
	"github.com/randalmurphal/eventhub/pkg/eventhub/sharedstate"
	"github.com/randalmurphal/eventhub/pkg/eventhub/variant"
)

const (
	// HubStateName is the shared state the hub publishes about itself:
	// {"version": <sdk version>, "extensions": {<module>: {"version": <v>}}}.
	HubStateName = "eventhub"

	// StateChangeEventName names the hub/sharedstate event dispatched after a
	// shared state gains a non-pending value or is cleared.
	StateChangeEventName = "Shared state change"

	// StateOwnerKey holds the state name in a state change event.
	StateOwnerKey = "stateowner"
)

// CreateSharedState adds m's state at version. Versions must increase.
func (h *Hub) CreateSharedState(m Module, version int32, v sharedstate.Value) error {
	e, err := h.stateWriter(m)
	if err != nil {
		return err
	}
	return h.createState(e, version, v)
}

func (h *Hub) createState(e *moduleEntry, version int32, v sharedstate.Value) error {
	return h.writeState(e, "create", func() (int32, error) {
		return version, h.states.Create(e.stateName, version, v)
	})
}

// UpdateSharedState resolves m's pending state at version. The delta may be
// a value or SameAsNext/SameAsPrev.
func (h *Hub) UpdateSharedState(m Module, version int32, d sharedstate.Delta) error {
	e, err := h.stateWriter(m)
	if err != nil {
		return err
	}
	return h.updateState(e, version, d)
}

func (h *Hub) updateState(e *moduleEntry, version int32, d sharedstate.Delta) error {
	return h.writeState(e, "update", func() (int32, error) {
		return version, h.states.Update(e.stateName, version, d)
	})
}

// CreateOrUpdateSharedState updates m's state at version if it exists and
// creates it otherwise.
func (h *Hub) CreateOrUpdateSharedState(m Module, version int32, d sharedstate.Delta) error {
	e, err := h.stateWriter(m)
	if err != nil {
		return err
	}
	return h.createOrUpdateState(e, version, d)
}

func (h *Hub) createOrUpdateState(e *moduleEntry, version int32, d sharedstate.Delta) error {
	return h.writeState(e, "create_or_update", func() (int32, error) {
		return version, h.states.CreateOrUpdate(e.stateName, version, d)
	})
}

// PublishSharedState writes m's state at the number the next dispatched event
// will get, so it is visible from that event on. It returns the version used.
func (h *Hub) PublishSharedState(m Module, d sharedstate.Delta) (int32, error) {
	e, err := h.stateWriter(m)
	if err != nil {
		return 0, err
	}
	return h.publishState(e, d)
}

func (h *Hub) publishState(e *moduleEntry, d sharedstate.Delta) (int32, error) {
	var version int32
	err := h.writeState(e, "publish", func() (int32, error) {
		h.mu.Lock()
		defer h.mu.Unlock()
		version = h.seq.Peek()
		return version, h.states.CreateOrUpdate(e.stateName, version, d)
	})
	return version, err
}

// ClearSharedStates removes every version of m's state.
func (h *Hub) ClearSharedStates(m Module) error {
	e, err := h.stateWriter(m)
	if err != nil {
		return err
	}
	h.clearStates(e)
	return nil
}

func (h *Hub) clearStates(e *moduleEntry) {
	if h.states.Clear(e.stateName) {
		h.stateChanged(e.stateName)
	}
}

// SharedEventState returns state name as of ev: the latest entry whose
// version is at most ev's number. SharedStateOldest and SharedStateNewest
// select the first and last entry; an event that was never dispatched reads
// the last entry. caller is only used for logging and may be nil.
func (h *Hub) SharedEventState(name string, ev *event.Event, caller Module) (sharedstate.Value, error) {
	if ev == nil {
		return sharedstate.Invalid, ErrNilEvent
	}
	if name == "" {
		return sharedstate.Invalid, sharedstate.ErrNoStateName
	}
	if h.isDisposing() {
		return sharedstate.Invalid, ErrHubDisposed
	}

	var v sharedstate.Value
	switch {
	case ev == event.SharedStateOldest:
		v = h.states.Oldest(name)
	case ev == event.SharedStateNewest, ev.Number() == event.Unnumbered:
		v = h.states.Newest(name)
	default:
		v = h.states.Get(name, ev.Number())
	}

	if caller != nil {
		h.logger.Debug("shared state read",
			slog.String("state", name),
			slog.Int("event_number", int(ev.Number())),
			slog.String("caller", caller.Name()),
			slog.String("value", v.String()),
		)
	}
	return v, nil
}

// HasSharedEventState reports whether name has any concrete or pending entry.
func (h *Hub) HasSharedEventState(name string) bool {
	return h.states.Has(name)
}

// SharedStateData implements tokens.StateReader.
func (h *Hub) SharedStateData(name string, ev *event.Event) (*variant.EventData, bool) {
	v, err := h.SharedEventState(name, ev, nil)
	if err != nil || !v.IsData() {
		return nil, false
	}
	return v.Data(), true
}

// stateWriter returns the entry m writes through. m must be the registered
// instance, not just a module with the same name.
func (h *Hub) stateWriter(m Module) (*moduleEntry, error) {
	if m == nil {
		return nil, ErrNilModule
	}
	if h.isDisposing() {
		return nil, ErrHubDisposed
	}
	e, ok := h.modules.Get(m.Name())
	if !ok || !sameModule(e.module, m) {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotRegistered, m.Name())
	}
	return h.entryWriter(e)
}

func (h *Hub) entryWriter(e *moduleEntry) (*moduleEntry, error) {
	if h.isDisposing() {
		return nil, ErrHubDisposed
	}
	if !e.live() {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotRegistered, e.name)
	}
	if e.stateName == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoSharedStateName, e.name)
	}
	return e, nil
}

func sameModule(a, b Module) bool {
	t := reflect.TypeOf(a)
	if t != reflect.TypeOf(b) || !t.Comparable() {
		return false
	}
	return a == b
}

func (h *Hub) writeState(e *moduleEntry, op string, write func() (int32, error)) error {
	version, err := write()
	h.metrics.RecordSharedStateWrite(h.ctx, e.stateName, op, err)
	if err != nil {
		observability.LogSharedStateError(e.logger, op, e.stateName, version, err)
		return err
	}

	v := h.states.Get(e.stateName, version)
	observability.LogSharedStateWrite(e.logger, op, e.stateName, version, v.String())
	if !v.IsPending() {
		h.stateChanged(e.stateName)
	}
	return nil
}

// stateChanged tells listeners that name has a new value.
func (h *Hub) stateChanged(name string) {
	ev := event.NewBuilder(StateChangeEventName, event.TypeHub, event.SourceSharedState).
		SetData(variant.NewEventData().PutString(StateOwnerKey, name)).
		Build()
	if err := h.Dispatch(ev); err != nil && !errors.Is(err, ErrHubDisposed) {
		observability.LogRejected(h.logger, "dispatch state change", err)
	}
}

// publishHubState runs on the hub goroutine. Its version is never below the
// previous one even when several (un)registrations happen between events.
func (h *Hub) publishHubState() {
	extensions := make(map[string]variant.Variant)
	h.modules.Range(func(name string, e *moduleEntry) bool {
		if e.attached && e.State() == StateRegistered {
			extensions[name] = variant.Map(map[string]variant.Variant{
				"version": variant.String(e.version),
			})
		}
		return true
	})
	data := variant.NewEventData().
		PutString("version", h.cfg.SDKVersion).
		PutMap("extensions", extensions)

	h.mu.Lock()
	if h.disposing {
		h.mu.Unlock()
		return
	}
	version := h.seq.Peek()
	if versions := h.states.Versions(HubStateName); len(versions) > 0 && versions[len(versions)-1] >= version {
		version = versions[len(versions)-1] + 1
	}
	err := h.states.Create(HubStateName, version, sharedstate.Data(data))
	h.mu.Unlock()

	if err != nil {
		observability.LogSharedStateError(h.logger, "create", HubStateName, version, err)
		return
	}
	h.stateChanged(HubStateName)
}
