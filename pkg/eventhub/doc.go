/*
Package eventhub is an in-process publish/subscribe hub with versioned shared
state.

# Overview

Modules register with a Hub and receive a Handle. Through it they register
listeners, processors and rules, dispatch events, run background tasks and
publish shared state that other modules read "as of" a given event.

One hub goroutine does all scheduling. It alternates between two queues:

 1. Callbacks: module attach/detach and listener, processor and rule
    registration. All queued callbacks run, in order, before the next event.
 2. Events: one event at a time. Processors run first, serially, in
    registration order, and may replace the event. Rules are evaluated next.
    Then each module with matching listeners gets one executor task that runs
    its listeners in registration order; tasks of different modules run in
    parallel. The next event starts only after every task has returned.

Every dispatched event gets a number from the hub's sequencer. Numbers
increase in dispatch order and double as shared-state versions.

# Basic Usage

	type Config struct{ h *eventhub.Handle }

	func (c *Config) Name() string            { return "config" }
	func (c *Config) SharedStateName() string { return "configuration" }
	func (c *Config) OnUnregistered()         {}

	func (c *Config) OnRegistered(h *eventhub.Handle) error {
	    c.h = h
	    return h.RegisterListener(event.TypeConfiguration, event.SourceRequestContent,
	        eventhub.ListenerFunc(c.hear))
	}

	func (c *Config) hear(ctx context.Context, ev *event.Event) error {
	    return c.h.CreateSharedState(ev.Number(), sharedstate.Data(ev.Data()))
	}

	hub, err := eventhub.New("main", nil)
	if err != nil {
	    log.Fatal(err)
	}
	defer hub.Dispose()

	hub.RegisterModule(&Config{})
	hub.FinishModulesRegistration()

# Shared State

A state is a history of (version, value) entries. A value is data, Pending
("coming soon") or Invalid ("deliberately absent"). Reading state as of event
E returns the latest entry with version <= E's number, or Invalid. A pending
entry can later be resolved with UpdateSharedState, either to a value or to
SameAsPrev/SameAsNext, which link it to its neighbour instead of storing a
copy.

After a write leaves a non-pending value, and after a state is cleared, the
hub dispatches a hub/sharedstate event whose data holds the state name under
"stateowner".

# Request and Response

One-time listeners give request/response over the bus. The requester builds
its event with ExpectResponse and listens for the response pair id; the
responder builds its reply with event.NewResponseBuilder.

# Errors

Invalid arguments are reported synchronously. Errors and panics in module
callbacks are logged with the module's logger and never stop the hub. After
Dispose begins, every operation returns ErrHubDisposed.

# Observability

Structured logging uses log/slog. OpenTelemetry metrics and tracing are
enabled with HubConfig.Metrics and HubConfig.Tracing, or injected with
WithMetrics and WithSpanManager.
*/
package eventhub
