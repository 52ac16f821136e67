package eventhub

import (
	"context"
	"log/slog"
	"strings"

	hberrors "github.com/randalmurphal/eventhub/pkg/eventhub/errors"
	"github.com/randalmurphal/eventhub/pkg/eventhub/event"
	"github.com/randalmurphal/eventhub/pkg/eventhub/executor"
	"github.com/randalmurphal/eventhub/pkg/eventhub/sharedstate"
	"github.com/randalmurphal/eventhub/pkg/eventhub/variant"
)

// ExternalModule is a module implemented outside the hub's own code, such as a
// plugin or a script. It talks to the hub through ExternalServices, using
// strings for types, sources and JSON for state. Its shared state name is its
// module name.
type ExternalModule interface {
	Name() string
	Version() string

	// OnRegister runs once on the hub goroutine. An error aborts registration.
	OnRegister(services ExternalServices) error

	// OnUnregister runs once on the hub goroutine.
	OnUnregister()

	// OnUnexpectedError receives failures of the module's listeners.
	OnUnexpectedError(err error)
}

// ExternalServices is the hub as an ExternalModule sees it.
type ExternalServices interface {
	// RegisterListener listens for events of the named type and source.
	RegisterListener(eventType, eventSource string, l Listener) error

	// RegisterWildcardListener listens for every event.
	RegisterWildcardListener(l Listener) error

	// DispatchEvent sends ev.
	DispatchEvent(ev *event.Event) error

	// SetSharedEventState writes the module's state as a JSON object at ev's
	// number, or for the next event when ev is nil. An empty string writes a
	// pending state.
	SetSharedEventState(state string, ev *event.Event) error

	// ClearSharedEventStates removes every version of the module's state.
	ClearSharedEventStates() error

	// SharedEventState returns state name as of ev as JSON. Pending and
	// invalid states yield "".
	SharedEventState(name string, ev *event.Event) (string, error)

	// UnregisterModule detaches the module.
	UnregisterModule() error

	// Logger returns the module logger.
	Logger() *slog.Logger
}

// RegisterExternalModule attaches ext asynchronously with the same ordering
// guarantees as RegisterModule.
func (h *Hub) RegisterExternalModule(ext ExternalModule) error {
	if ext == nil {
		return ErrNilModule
	}
	return h.RegisterModule(&externalModule{ext: ext})
}

// externalModule adapts an ExternalModule to Module.
type externalModule struct {
	ext    ExternalModule
	handle *Handle
}

var (
	_ Module           = (*externalModule)(nil)
	_ Versioned        = (*externalModule)(nil)
	_ ExternalServices = (*externalModule)(nil)
)

func (m *externalModule) Name() string            { return m.ext.Name() }
func (m *externalModule) SharedStateName() string { return m.ext.Name() }
func (m *externalModule) Version() string         { return m.ext.Version() }

func (m *externalModule) OnRegistered(h *Handle) error {
	m.handle = h
	return m.ext.OnRegister(m)
}

func (m *externalModule) OnUnregistered() {
	m.ext.OnUnregister()
}

func (m *externalModule) RegisterListener(eventType, eventSource string, l Listener) error {
	if l == nil {
		return ErrNilCallback
	}
	return m.handle.RegisterListener(event.TypeOf(eventType), event.SourceOf(eventSource), m.guard(l))
}

func (m *externalModule) RegisterWildcardListener(l Listener) error {
	if l == nil {
		return ErrNilCallback
	}
	return m.handle.RegisterWildcardListener(m.guard(l))
}

func (m *externalModule) DispatchEvent(ev *event.Event) error {
	return m.handle.Dispatch(ev)
}

func (m *externalModule) SetSharedEventState(state string, ev *event.Event) error {
	value := sharedstate.Pending
	if strings.TrimSpace(state) != "" {
		data, err := variant.ParseJSON(state)
		if err != nil {
			return err
		}
		value = sharedstate.Data(data)
	}

	if ev == nil {
		_, err := m.handle.PublishSharedState(sharedstate.Set(value))
		return err
	}
	if ev.Number() == event.Unnumbered {
		return hberrors.InvalidArgument("event %q was never dispatched", ev.Name())
	}
	return m.handle.CreateOrUpdateSharedState(ev.Number(), sharedstate.Set(value))
}

func (m *externalModule) ClearSharedEventStates() error {
	return m.handle.ClearSharedStates()
}

func (m *externalModule) SharedEventState(name string, ev *event.Event) (string, error) {
	v, err := m.handle.SharedState(name, ev)
	if err != nil || !v.IsData() {
		return "", err
	}
	return v.Data().JSON(), nil
}

func (m *externalModule) UnregisterModule() error {
	return m.handle.Unregister()
}

func (m *externalModule) Logger() *slog.Logger {
	return m.handle.Logger()
}

// guard reports listener failures to the module as well as to the hub.
func (m *externalModule) guard(l Listener) Listener {
	return ListenerFunc(func(ctx context.Context, ev *event.Event) error {
		err := executor.Run("listener "+m.ext.Name(), func() error {
			return l.Hear(ctx, ev)
		})
		if err != nil {
			if hookErr := executor.Run("OnUnexpectedError "+m.ext.Name(), func() error {
				m.ext.OnUnexpectedError(err)
				return nil
			}); hookErr != nil {
				m.handle.Logger().Error("OnUnexpectedError failed", slog.String("error", hookErr.Error()))
			}
		}
		return err
	})
}
