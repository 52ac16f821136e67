package eventhub

import (
	"log/slog"
	"sync/atomic"

	"github.com/randalmurphal/eventhub/pkg/eventhub/event"
	"github.com/randalmurphal/eventhub/pkg/eventhub/executor"
	"github.com/randalmurphal/eventhub/pkg/eventhub/registry"
)

// Module is a named participant of the hub.
//
// OnRegistered runs once on the hub goroutine before any of the module's
// listeners or processors are active. The Handle it receives is how the module
// talks to the hub from then on. Returning an error aborts the registration.
//
// OnUnregistered runs once on the hub goroutine after the module's listeners
// were told they are unregistered.
type Module interface {
	// Name identifies the module. It must be unique within a hub.
	Name() string

	// SharedStateName is the name the module publishes state under, or "".
	SharedStateName() string

	OnRegistered(h *Handle) error
	OnUnregistered()
}

// Versioned is implemented by modules that report a version in the hub's
// shared state.
type Versioned interface {
	Version() string
}

// ModuleState is the registration state of a module.
type ModuleState int32

// Module states, in lifecycle order.
const (
	StateRegistering ModuleState = iota
	StateRegistered
	StateUnregistering
	StateUnregistered
)

// String implements fmt.Stringer.
func (s ModuleState) String() string {
	switch s {
	case StateRegistering:
		return "registering"
	case StateRegistered:
		return "registered"
	case StateUnregistering:
		return "unregistering"
	case StateUnregistered:
		return "unregistered"
	default:
		return "unknown"
	}
}

// listenerKey identifies the single live listener a module may have per
// (type, source) pair.
type listenerKey struct {
	typ    event.Type
	source event.Source
}

type listenerEntry struct {
	key      listenerKey
	listener Listener
}

// moduleEntry is the hub's record of one module. The listeners registry and
// rules are only touched on the hub goroutine.
type moduleEntry struct {
	module    Module
	name      string
	stateName string
	version   string
	logger    *slog.Logger
	handle    *Handle
	tasks     *executor.SerialQueue

	state atomic.Int32

	listeners *registry.Registry[listenerKey, *listenerEntry]
	rules     []Rule

	// attached is set once OnRegistered returned successfully.
	attached bool
}

func (e *moduleEntry) State() ModuleState {
	return ModuleState(e.state.Load())
}

// live reports whether the module accepts new registrations.
func (e *moduleEntry) live() bool {
	s := e.State()
	return s == StateRegistering || s == StateRegistered
}

func (e *moduleEntry) matchingListeners(ev *event.Event) []Listener {
	var out []Listener
	e.listeners.Range(func(k listenerKey, le *listenerEntry) bool {
		if k.typ.Matches(ev.Type()) && k.source.Matches(ev.Source()) {
			out = append(out, le.listener)
		}
		return true
	})
	return out
}

func moduleVersion(m Module) string {
	if v, ok := m.(Versioned); ok {
		return v.Version()
	}
	return ""
}
