package eventhub

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/eventhub/pkg/eventhub/config"
	"github.com/randalmurphal/eventhub/pkg/eventhub/event"
	"github.com/randalmurphal/eventhub/pkg/eventhub/executor"
	"github.com/randalmurphal/eventhub/pkg/eventhub/observability"
	"github.com/randalmurphal/eventhub/pkg/eventhub/registry"
	"github.com/randalmurphal/eventhub/pkg/eventhub/sharedstate"
	"github.com/randalmurphal/eventhub/pkg/eventhub/tokens"
)

// BootedEventName is the name of the event FinishModulesRegistration dispatches.
const BootedEventName = "EventHub Booted"

// Hub is the event hub. Create one with New and release it with Dispose.
type Hub struct {
	name     string
	id       string
	cfg      config.HubConfig
	logger   *slog.Logger
	platform PlatformServices
	exec     executor.TaskExecutor
	taskExec *executor.Detached
	metrics  observability.MetricsRecorder
	spans    observability.SpanManager
	tokens   *tokens.Parser

	ownsExec    bool
	ownsStorage bool

	// ctx is cancelled when disposal begins.
	ctx    context.Context
	cancel context.CancelFunc

	seq    event.Sequencer
	states *sharedstate.Store

	modules *registry.Registry[string, *moduleEntry]

	mu            sync.Mutex
	cond          *sync.Cond
	events        []*event.Event
	callbacks     []callback
	disposing     bool
	bootRequested bool
	dropped       int

	booted   atomic.Bool
	disposed chan struct{}

	// Only touched on the hub goroutine.
	processors   []processorEntry
	oneTime      []*oneTimeListener
	consequences map[string]struct{}
}

type callback struct {
	name string
	fn   func()
}

type processorEntry struct {
	entry     *moduleEntry
	processor Processor
}

// New creates a hub and starts its goroutine. A nil platform gets the default
// platform services with in-memory local storage.
//
// Example:
//
//	hub, err := eventhub.New("main", nil, eventhub.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer hub.Dispose()
func New(name string, platform PlatformServices, opts ...Option) (*Hub, error) {
	o := defaultHubOptions()
	for _, opt := range opts {
		opt(&o)
	}

	cfg := o.cfg
	if name != "" {
		cfg.Name = name
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := o.logger
	if logger == nil && platform != nil {
		logger = platform.Logger()
	}
	if logger == nil {
		logger = slog.Default()
	}

	h := &Hub{
		name:         cfg.Name,
		id:           uuid.New().String(),
		cfg:          cfg,
		logger:       logger,
		platform:     platform,
		exec:         o.exec,
		metrics:      o.metrics,
		spans:        o.spans,
		states:       sharedstate.NewStore(),
		modules:      registry.New[string, *moduleEntry](),
		disposed:     make(chan struct{}),
		consequences: make(map[string]struct{}),
	}
	h.cond = sync.NewCond(&h.mu)
	h.ctx, h.cancel = context.WithCancel(context.Background())

	if h.platform == nil {
		h.platform = NewPlatform(logger, nil)
		h.ownsStorage = true
	}
	if h.exec == nil {
		pool, err := executor.NewPool(cfg.Workers, cfg.Name, executor.WithLogger(logger))
		if err != nil {
			h.cancel()
			return nil, err
		}
		h.exec = pool
		h.ownsExec = true
	}
	h.taskExec = executor.NewDetached(cfg.Name+" tasks", logger)
	if h.metrics == nil {
		if cfg.Metrics {
			h.metrics = observability.NewMetricsRecorder()
		} else {
			h.metrics = observability.NoopMetrics{}
		}
	}
	if h.spans == nil {
		if cfg.Tracing {
			h.spans = observability.NewSpanManager()
		} else {
			h.spans = observability.NoopSpanManager{}
		}
	}
	h.tokens = tokens.NewParser(
		tokens.WithStateReader(h),
		tokens.WithSDKVersion(cfg.SDKVersion),
	)

	go h.run()
	observability.LogHubStarted(logger, h.name, h.id, cfg.Workers)
	return h, nil
}

// Name returns the hub name.
func (h *Hub) Name() string { return h.name }

// ID returns the unique id of this hub instance.
func (h *Hub) ID() string { return h.id }

// Config returns the effective configuration.
func (h *Hub) Config() config.HubConfig { return h.cfg }

// Logger returns the hub logger.
func (h *Hub) Logger() *slog.Logger { return h.logger }

// Platform returns the platform services passed to modules.
func (h *Hub) Platform() PlatformServices { return h.platform }

// IsBooted reports whether FinishModulesRegistration has been processed.
func (h *Hub) IsBooted() bool { return h.booted.Load() }

// RegisterModule attaches m asynchronously. m.OnRegistered runs on the hub
// goroutine before any event queued after this call is processed.
func (h *Hub) RegisterModule(m Module) error {
	if m == nil {
		return ErrNilModule
	}
	name := m.Name()
	if name == "" {
		return ErrEmptyModuleName
	}
	if m.SharedStateName() == HubStateName {
		return fmt.Errorf("%w: %s", ErrReservedStateName, HubStateName)
	}
	if h.isDisposing() {
		return ErrHubDisposed
	}

	e := h.newEntry(m)
	if !h.modules.Register(name, e) {
		return fmt.Errorf("%w: %s", ErrModuleAlreadyRegistered, name)
	}
	if err := h.enqueue("register "+name, func() { h.attach(e) }); err != nil {
		h.modules.Delete(name)
		return err
	}
	return nil
}

// Register constructs a zero-value T and registers it.
//
// Example:
//
//	cfg, err := eventhub.Register[ConfigurationModule](hub)
func Register[T any, PT interface {
	*T
	Module
}](h *Hub) (PT, error) {
	m := PT(new(T))
	if err := h.RegisterModule(m); err != nil {
		return nil, err
	}
	return m, nil
}

// UnregisterModule detaches the named module asynchronously. Queued tasks of
// the module that are not required for unregistration are dropped.
func (h *Hub) UnregisterModule(name string) error {
	e, ok := h.modules.Get(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrModuleNotRegistered, name)
	}
	return h.unregister(e)
}

// IsRegisteredModule reports whether a module with name is registering or
// registered.
func (h *Hub) IsRegisteredModule(name string) bool {
	e, ok := h.modules.Get(name)
	return ok && e.live()
}

// ModuleState returns the state of the named module.
func (h *Hub) ModuleState(name string) (ModuleState, bool) {
	e, ok := h.modules.Get(name)
	if !ok {
		return StateUnregistered, false
	}
	return e.State(), true
}

// Modules returns the names of all known modules in registration order.
func (h *Hub) Modules() []string {
	return h.modules.Keys()
}

// FinishModulesRegistration marks initial registration as complete: the hub
// publishes its own shared state and dispatches a hub/booted event.
func (h *Hub) FinishModulesRegistration() error {
	h.mu.Lock()
	if h.disposing {
		h.mu.Unlock()
		return ErrHubDisposed
	}
	if h.bootRequested {
		h.mu.Unlock()
		return ErrAlreadyBooted
	}
	h.bootRequested = true
	h.mu.Unlock()

	return h.enqueue("boot", h.boot)
}

// Dispatch numbers ev and queues it. It returns before ev is processed.
func (h *Hub) Dispatch(ev *event.Event) error {
	if ev == nil {
		return ErrNilEvent
	}
	if ev.IsSentinel() {
		return fmt.Errorf("%w: sentinel %q", ErrEventDispatched, ev.Name())
	}

	h.mu.Lock()
	if h.disposing {
		h.mu.Unlock()
		return ErrHubDisposed
	}
	number, ok := h.seq.Assign(ev)
	if !ok {
		h.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrEventDispatched, ev)
	}
	h.events = append(h.events, ev)
	h.cond.Signal()
	h.mu.Unlock()

	h.metrics.RecordDispatch(h.ctx, ev.Type().String(), ev.Source().String())
	observability.LogEventQueued(h.logger, number, ev.Name(), ev.Type().String(), ev.Source().String())
	return nil
}

// RegisterOneTimeListener calls fn once for the first event matching pairID,
// or, when pairID is empty, for the first event matching typ and source. fn
// runs with the listeners of module. If the hub is disposed first, fn never
// runs.
func (h *Hub) RegisterOneTimeListener(module string, typ event.Type, source event.Source, pairID string, fn func(*event.Event)) error {
	e, ok := h.modules.Get(module)
	if !ok || !e.live() {
		return fmt.Errorf("%w: %s", ErrModuleNotRegistered, module)
	}
	return h.registerOneTime(e, typ, source, pairID, fn)
}

// Dispose disposes the hub, waiting up to the configured DisposeTimeout.
func (h *Hub) Dispose() bool {
	return h.DisposeWithin(h.cfg.DisposeTimeout)
}

// DisposeWithin stops accepting work, drops queued events, lets the event in
// progress finish, unregisters every module in reverse registration order and
// stops the hub goroutine. It waits up to wait and reports whether disposal
// completed. DisposeWithin(0) never blocks. Calling it again is safe.
func (h *Hub) DisposeWithin(wait time.Duration) bool {
	h.mu.Lock()
	if !h.disposing {
		h.disposing = true
		h.dropped = len(h.events)
		h.events = nil
		h.cond.Broadcast()
		h.cancel()
	}
	h.mu.Unlock()

	if wait <= 0 {
		select {
		case <-h.disposed:
			return true
		default:
			return false
		}
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-h.disposed:
		return true
	case <-timer.C:
		return false
	}
}

// Disposed is closed once disposal has completed.
func (h *Hub) Disposed() <-chan struct{} {
	return h.disposed
}

func (h *Hub) isDisposing() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.disposing
}

func (h *Hub) enqueue(name string, fn func()) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.disposing {
		return ErrHubDisposed
	}
	h.callbacks = append(h.callbacks, callback{name: name, fn: fn})
	h.cond.Signal()
	return nil
}

func (h *Hub) newEntry(m Module) *moduleEntry {
	name := m.Name()
	logger := observability.EnrichLogger(h.logger, h.name, name)
	e := &moduleEntry{
		module:    m,
		name:      name,
		stateName: m.SharedStateName(),
		version:   moduleVersion(m),
		logger:    logger,
		tasks:     executor.NewSerialQueue(h.taskExec, name),
		listeners: registry.New[listenerKey, *listenerEntry](),
	}
	e.state.Store(int32(StateRegistering))
	e.handle = &Handle{hub: h, entry: e}
	return e
}

// attach runs on the hub goroutine.
func (h *Hub) attach(e *moduleEntry) {
	if e.State() != StateRegistering {
		return
	}
	err := executor.Run("OnRegistered "+e.name, func() error {
		return e.module.OnRegistered(e.handle)
	})
	if err != nil {
		h.callbackFailed(e, "OnRegistered", err)
		h.teardown(e, 0)
		return
	}

	e.attached = true
	e.state.CompareAndSwap(int32(StateRegistering), int32(StateRegistered))
	observability.LogModuleRegistered(e.logger, e.name, e.stateName)
	if h.booted.Load() {
		h.publishHubState()
	}
}

func (h *Hub) unregister(e *moduleEntry) error {
	if h.isDisposing() {
		return ErrHubDisposed
	}
	for {
		s := e.State()
		if s != StateRegistering && s != StateRegistered {
			return fmt.Errorf("%w: %s is %s", ErrModuleNotRegistered, e.name, s)
		}
		if e.state.CompareAndSwap(int32(s), int32(StateUnregistering)) {
			break
		}
	}

	e.tasks.Close()
	cancelled := e.tasks.CancelPending()
	e.tasks.Pause()
	return h.enqueue("unregister "+e.name, func() {
		h.teardown(e, cancelled)
		if h.booted.Load() {
			h.publishHubState()
		}
	})
}

// teardown runs on the hub goroutine. It waits for the module's running task,
// retires its listeners, calls OnUnregistered and drops everything the module
// owns. Required tasks run after OnUnregistered, on the module's queue.
func (h *Hub) teardown(e *moduleEntry, cancelled int) {
	if e.State() == StateUnregistered {
		return
	}
	e.state.Store(int32(StateUnregistering))
	e.tasks.Close()
	cancelled += e.tasks.CancelPending()
	if !waitClosed(e.tasks.Pause(), h.cfg.UnregisterWait) {
		e.logger.Warn("module task still running at unregistration",
			slog.Duration("waited", h.cfg.UnregisterWait),
		)
	}

	e.listeners.Range(func(k listenerKey, le *listenerEntry) bool {
		h.retireListener(e, le)
		return true
	})
	e.listeners = registry.New[listenerKey, *listenerEntry]()

	if e.attached {
		if err := executor.Run("OnUnregistered "+e.name, func() error {
			e.module.OnUnregistered()
			return nil
		}); err != nil {
			h.callbackFailed(e, "OnUnregistered", err)
		}
	}

	kept := h.processors[:0]
	for _, p := range h.processors {
		if p.entry != e {
			kept = append(kept, p)
		}
	}
	h.processors = kept
	e.rules = nil
	h.dropOneTime(e)

	if e.stateName != "" && h.states.Clear(e.stateName) {
		h.stateChanged(e.stateName)
	}

	e.state.Store(int32(StateUnregistered))
	if current, ok := h.modules.Get(e.name); ok && current == e {
		h.modules.Delete(e.name)
	}
	observability.LogModuleUnregistered(e.logger, e.name, cancelled)

	if required := e.tasks.Len(); required > 0 && !e.tasks.Resume() {
		e.logger.Warn("required tasks dropped", slog.Int("tasks", required))
	}
}

func waitClosed(ch <-chan struct{}, timeout time.Duration) bool {
	select {
	case <-ch:
		return true
	default:
	}
	if timeout <= 0 {
		return false
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
		return true
	case <-timer.C:
		return false
	}
}

func (h *Hub) boot() {
	h.booted.Store(true)
	h.publishHubState()

	ev := event.NewBuilder(BootedEventName, event.TypeHub, event.SourceBooted).Build()
	if err := h.Dispatch(ev); err != nil {
		observability.LogRejected(h.logger, "dispatch booted event", err)
	}
	observability.LogHubBooted(h.logger, h.name, h.modules.Len())
}

// shutdown runs on the hub goroutine after the loop stops.
func (h *Hub) shutdown() {
	modules := h.modules.Values()
	for i := len(modules) - 1; i >= 0; i-- {
		h.teardown(modules[i], 0)
	}

	if h.ownsExec {
		h.exec.Dispose(h.cfg.UnregisterWait)
	}
	if !h.taskExec.Dispose(h.cfg.UnregisterWait) {
		h.logger.Warn("module tasks still running at disposal", slog.Duration("waited", h.cfg.UnregisterWait))
	}
	if h.ownsStorage {
		if err := h.platform.LocalStorage().Close(); err != nil {
			h.logger.Warn("close local storage", slog.String("error", err.Error()))
		}
	}

	h.mu.Lock()
	dropped := h.dropped
	h.mu.Unlock()
	observability.LogHubDisposed(h.logger, h.name, true, dropped)
	close(h.disposed)
}

func (h *Hub) callbackFailed(e *moduleEntry, callback string, err error) {
	observability.LogCallbackError(e.logger, e.name, callback, err)
	h.metrics.RecordCallbackError(h.ctx, e.name, callback)
}
