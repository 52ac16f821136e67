package eventhub

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/eventhub/pkg/eventhub/config"
	"github.com/randalmurphal/eventhub/pkg/eventhub/event"
)

// Test helpers shared by the hub tests.

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestHub creates a hub that is disposed when the test ends.
func newTestHub(t *testing.T, opts ...Option) *Hub {
	t.Helper()
	opts = append([]Option{WithLogger(discardLogger())}, opts...)
	hub, err := New("test", nil, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { hub.DisposeWithin(waitFor) })
	return hub
}

// testConfig returns the default config with short waits.
func testConfig() config.HubConfig {
	cfg := config.DefaultHubConfig
	cfg.DisposeTimeout = waitFor
	cfg.UnregisterWait = waitFor
	return cfg
}

// testModule is a configurable Module.
type testModule struct {
	name      string
	stateName string
	version   string

	register   func(h *Handle) error
	unregister func()

	mu     sync.Mutex
	handle *Handle
	calls  []string
}

func (m *testModule) Name() string            { return m.name }
func (m *testModule) SharedStateName() string { return m.stateName }
func (m *testModule) Version() string         { return m.version }

func (m *testModule) OnRegistered(h *Handle) error {
	m.mu.Lock()
	m.handle = h
	m.calls = append(m.calls, "OnRegistered")
	m.mu.Unlock()
	if m.register != nil {
		return m.register(h)
	}
	return nil
}

func (m *testModule) OnUnregistered() {
	m.mu.Lock()
	m.calls = append(m.calls, "OnUnregistered")
	m.mu.Unlock()
	if m.unregister != nil {
		m.unregister()
	}
}

func (m *testModule) Handle() *Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handle
}

func (m *testModule) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// collector is a Listener that records what it hears.
type collector struct {
	mu     sync.Mutex
	events []*event.Event
}

func (c *collector) Hear(_ context.Context, ev *event.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *collector) Events() []*event.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*event.Event(nil), c.events...)
}

func (c *collector) Names() []string {
	var names []string
	for _, ev := range c.Events() {
		names = append(names, ev.Name())
	}
	return names
}

func (c *collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

// Named returns the first recorded event called name.
func (c *collector) Named(name string) *event.Event {
	for _, ev := range c.Events() {
		if ev.Name() == name {
			return ev
		}
	}
	return nil
}

// listeningModule returns a module whose listener for typ and source is c.
func listeningModule(name string, typ event.Type, source event.Source, c *collector) *testModule {
	return &testModule{
		name: name,
		register: func(h *Handle) error {
			return h.RegisterListener(typ, source, c)
		},
	}
}

// registerAndWait registers m and waits until it is attached.
func registerAndWait(t *testing.T, hub *Hub, m Module) {
	t.Helper()
	require.NoError(t, hub.RegisterModule(m))
	waitRegistered(t, hub, m.Name())
}

func waitRegistered(t *testing.T, hub *Hub, name string) {
	t.Helper()
	require.Eventually(t, func() bool {
		s, ok := hub.ModuleState(name)
		return ok && s == StateRegistered
	}, waitFor, tick, "module %s never registered", name)
}

func waitGone(t *testing.T, hub *Hub, name string) {
	t.Helper()
	require.Eventually(t, func() bool {
		_, ok := hub.ModuleState(name)
		return !ok
	}, waitFor, tick, "module %s never went away", name)
}

// customEvent builds an unnumbered custom/none event.
func customEvent(name string) *event.Event {
	return event.NewBuilder(name, event.TypeCustom, event.SourceNone).Build()
}

// flush dispatches a marker that c (a wildcard or custom/none listener)
// must hear, so everything dispatched before it has been delivered.
func flush(t *testing.T, hub *Hub, c *collector) {
	t.Helper()
	marker := customEvent("flush-" + event.NewPairID())
	require.NoError(t, hub.Dispatch(marker))
	require.Eventually(t, func() bool {
		return c.Named(marker.Name()) != nil
	}, waitFor, tick, "marker never delivered")
}

// lifecycleListener records its lifecycle callbacks into a shared log.
type lifecycleListener struct {
	collector
	name string
	log  *callLog
}

func (l *lifecycleListener) OnRegistered()   { l.log.add(l.name + ".OnRegistered") }
func (l *lifecycleListener) OnUnregistered() { l.log.add(l.name + ".OnUnregistered") }

func (l *lifecycleListener) Hear(ctx context.Context, ev *event.Event) error {
	l.log.add(l.name + ".Hear")
	return l.collector.Hear(ctx, ev)
}

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (c *callLog) add(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, s)
}

func (c *callLog) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}
