package eventhub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	hberrors "github.com/randalmurphal/eventhub/pkg/eventhub/errors"
	"github.com/randalmurphal/eventhub/pkg/eventhub/event"
	"github.com/randalmurphal/eventhub/pkg/eventhub/variant"
)

// TestNew_Defaults tests a hub built with no options.
func TestNew_Defaults(t *testing.T) {
	hub := newTestHub(t)

	assert.Equal(t, "test", hub.Name())
	assert.NotEmpty(t, hub.ID())
	assert.NotNil(t, hub.Platform())
	assert.NotNil(t, hub.Logger())
	assert.False(t, hub.IsBooted())
	assert.Equal(t, 4, hub.Config().Workers)
	assert.Empty(t, hub.Modules())
}

// TestNew_InvalidConfig tests that configuration is validated.
func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Workers = 0

	_, err := New("bad", nil, WithConfig(cfg), WithLogger(discardLogger()))
	require.Error(t, err)
}

// TestDispatch_OrderAcrossGoroutines tests that numbers follow dispatch order
// and listeners hear events in number order.
func TestDispatch_OrderAcrossGoroutines(t *testing.T) {
	hub := newTestHub(t)
	c := &collector{}
	registerAndWait(t, hub, listeningModule("sink", event.TypeCustom, event.SourceWildcard, c))

	const producers, perProducer = 4, 50
	numbers := make([][]int32, producers)
	var wg sync.WaitGroup
	for p := range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perProducer {
				ev := event.NewBuilder(fmt.Sprintf("p%d-%d", p, i), event.TypeCustom, event.SourceNone).Build()
				if assert.NoError(t, hub.Dispatch(ev)) {
					numbers[p] = append(numbers[p], ev.Number())
				}
			}
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		return c.Len() == producers*perProducer
	}, waitFor, tick)

	for p := range producers {
		assert.IsIncreasing(t, numbers[p])
	}
	heard := c.Events()
	for i := 1; i < len(heard); i++ {
		assert.Less(t, heard[i-1].Number(), heard[i].Number())
	}
}

// TestDispatch_Rejections tests the arguments Dispatch refuses.
func TestDispatch_Rejections(t *testing.T) {
	hub := newTestHub(t)

	assert.ErrorIs(t, hub.Dispatch(nil), ErrNilEvent)
	assert.ErrorIs(t, hub.Dispatch(event.SharedStateNewest), ErrEventDispatched)

	ev := customEvent("once")
	require.NoError(t, hub.Dispatch(ev))
	number := ev.Number()
	assert.ErrorIs(t, hub.Dispatch(ev), ErrEventDispatched)
	assert.Equal(t, number, ev.Number(), "a rejected dispatch keeps the number")

	require.True(t, hub.DisposeWithin(waitFor))
	assert.ErrorIs(t, hub.Dispatch(customEvent("late")), ErrHubDisposed)
}

// TestRegisterModule_Validation tests the modules RegisterModule refuses.
func TestRegisterModule_Validation(t *testing.T) {
	hub := newTestHub(t)

	assert.ErrorIs(t, hub.RegisterModule(nil), ErrNilModule)
	assert.ErrorIs(t, hub.RegisterExternalModule(nil), ErrNilModule)
	assert.ErrorIs(t, hub.RegisterModule(&testModule{}), ErrEmptyModuleName)
	assert.ErrorIs(t, hub.RegisterModule(&testModule{name: "thief", stateName: HubStateName}), ErrReservedStateName)

	require.NoError(t, hub.RegisterModule(&testModule{name: "dup"}))
	err := hub.RegisterModule(&testModule{name: "dup"})
	assert.ErrorIs(t, err, ErrModuleAlreadyRegistered)
	assert.True(t, hberrors.HasCode(err, hberrors.CodeModuleDuplicate))
}

// TestRegisterModule_ReadyForNextEvent tests that a module registered before
// a dispatch hears that event.
func TestRegisterModule_ReadyForNextEvent(t *testing.T) {
	hub := newTestHub(t)
	c := &collector{}

	require.NoError(t, hub.RegisterModule(listeningModule("early", event.TypeCustom, event.SourceNone, c)))
	require.NoError(t, hub.Dispatch(customEvent("first")))

	require.Eventually(t, func() bool { return c.Len() == 1 }, waitFor, tick)
	assert.Equal(t, []string{"first"}, c.Names())
	assert.True(t, hub.IsRegisteredModule("early"))
	assert.Equal(t, []string{"early"}, hub.Modules())
}

// TestRegisterModule_OnRegisteredFailure tests that a failing OnRegistered
// aborts the registration without OnUnregistered.
func TestRegisterModule_OnRegisteredFailure(t *testing.T) {
	tests := []struct {
		name     string
		register func(h *Handle) error
	}{
		{name: "error", register: func(*Handle) error { return errors.New("refused") }},
		{name: "panic", register: func(*Handle) error { panic("refused") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub := newTestHub(t)
			m := &testModule{name: "failing", register: tt.register}

			require.NoError(t, hub.RegisterModule(m))
			waitGone(t, hub, "failing")

			assert.Equal(t, []string{"OnRegistered"}, m.Calls())
			assert.False(t, hub.IsRegisteredModule("failing"))
			assert.ErrorIs(t, m.Handle().Dispatch(customEvent("x")), ErrModuleNotRegistered)
		})
	}
}

// TestRegister_Generic tests registration by type.
func TestRegister_Generic(t *testing.T) {
	hub := newTestHub(t)

	m, err := Register[genericModule](hub)
	require.NoError(t, err)
	require.NotNil(t, m)
	waitRegistered(t, hub, "generic")
	assert.True(t, m.registered.Load())
}

type genericModule struct {
	registered atomic.Bool
}

func (*genericModule) Name() string            { return "generic" }
func (*genericModule) SharedStateName() string { return "" }
func (*genericModule) OnUnregistered()         {}

func (m *genericModule) OnRegistered(*Handle) error {
	m.registered.Store(true)
	return nil
}

// TestUnregisterModule tests detaching a module.
func TestUnregisterModule(t *testing.T) {
	hub := newTestHub(t)
	c := &collector{}
	sink := &collector{}
	m := &testModule{
		name:      "leaving",
		stateName: "leaving",
		register: func(h *Handle) error {
			return h.RegisterListener(event.TypeCustom, event.SourceNone, c)
		},
	}
	registerAndWait(t, hub, m)
	registerAndWait(t, hub, listeningModule("sink", event.TypeCustom, event.SourceNone, sink))

	_, err := m.Handle().PublishSharedState(setData("k", "v"))
	require.NoError(t, err)
	assert.True(t, hub.HasSharedEventState("leaving"))

	require.NoError(t, hub.UnregisterModule("leaving"))
	waitGone(t, hub, "leaving")

	assert.Equal(t, []string{"OnRegistered", "OnUnregistered"}, m.Calls())
	assert.False(t, hub.HasSharedEventState("leaving"), "state is cleared")
	assert.ErrorIs(t, hub.UnregisterModule("leaving"), ErrModuleNotRegistered)
	assert.ErrorIs(t, m.Handle().Dispatch(customEvent("x")), ErrModuleNotRegistered)
	assert.Equal(t, StateUnregistered, m.Handle().State())

	flush(t, hub, sink)
	assert.Zero(t, c.Len(), "no events after unregistration")
}

// TestListenerReplacement tests that a listener replacing another for the same
// type and source is announced only after the old one is retired.
func TestListenerReplacement(t *testing.T) {
	hub := newTestHub(t)
	log := &callLog{}
	a := &lifecycleListener{name: "A", log: log}
	b := &lifecycleListener{name: "B", log: log}

	m := &testModule{
		name: "replacer",
		register: func(h *Handle) error {
			return h.RegisterListener(event.TypeCustom, event.SourceNone, a)
		},
	}
	registerAndWait(t, hub, m)
	require.NoError(t, m.Handle().RegisterListener(event.TypeCustom, event.SourceNone, b))
	require.NoError(t, hub.Dispatch(customEvent("after")))

	require.Eventually(t, func() bool { return b.Len() == 1 }, waitFor, tick)
	assert.Equal(t, []string{"A.OnRegistered", "A.OnUnregistered", "B.OnRegistered", "B.Hear"}, log.Calls())
	assert.Zero(t, a.Len())

	require.NoError(t, hub.UnregisterModule("replacer"))
	waitGone(t, hub, "replacer")
	assert.Equal(t, "B.OnUnregistered", log.Calls()[len(log.Calls())-1])
}

// TestUnregisterListener tests retiring a wildcard listener.
func TestUnregisterListener(t *testing.T) {
	hub := newTestHub(t)
	c := &collector{}
	sink := &collector{}
	m := &testModule{
		name: "wild",
		register: func(h *Handle) error {
			return h.RegisterWildcardListener(c)
		},
	}
	registerAndWait(t, hub, m)
	registerAndWait(t, hub, listeningModule("sink", event.TypeCustom, event.SourceNone, sink))

	flush(t, hub, sink)
	heard := c.Len()
	assert.Positive(t, heard)

	require.NoError(t, m.Handle().UnregisterWildcardListener())
	flush(t, hub, sink)
	assert.Equal(t, heard, c.Len())
}

// TestCallbackFailuresAreContained tests that failing listeners and processors
// do not affect other modules or later events.
func TestCallbackFailuresAreContained(t *testing.T) {
	hub := newTestHub(t)
	good := &collector{}
	bad := &testModule{
		name: "bad",
		register: func(h *Handle) error {
			if err := h.RegisterListener(event.TypeCustom, event.SourceNone, ListenerFunc(func(context.Context, *event.Event) error {
				panic("listener exploded")
			})); err != nil {
				return err
			}
			if err := h.RegisterWildcardListener(ListenerFunc(func(context.Context, *event.Event) error {
				return errors.New("listener failed")
			})); err != nil {
				return err
			}
			return h.RegisterProcessor(ProcessorFunc(func(context.Context, *event.Event) (*event.Event, error) {
				panic("processor exploded")
			}))
		},
	}
	registerAndWait(t, hub, bad)
	registerAndWait(t, hub, listeningModule("good", event.TypeCustom, event.SourceNone, good))

	for i := range 3 {
		require.NoError(t, hub.Dispatch(customEvent(fmt.Sprintf("e%d", i))))
	}
	require.Eventually(t, func() bool { return good.Len() == 3 }, waitFor, tick)
	assert.Equal(t, []string{"e0", "e1", "e2"}, good.Names())
	assert.True(t, hub.IsRegisteredModule("bad"))
}

// TestFanOut_ModulesRunConcurrently tests that listeners of different modules
// run in parallel while the hub waits for all of them.
func TestFanOut_ModulesRunConcurrently(t *testing.T) {
	hub := newTestHub(t)
	bStarted := make(chan struct{})
	var sawB atomic.Bool
	after := &collector{}

	a := &testModule{
		name: "a",
		register: func(h *Handle) error {
			return h.RegisterListener(event.TypeCustom, event.SourceRequestContent, ListenerFunc(func(context.Context, *event.Event) error {
				select {
				case <-bStarted:
					sawB.Store(true)
				case <-time.After(waitFor):
				}
				return nil
			}))
		},
	}
	b := &testModule{
		name: "b",
		register: func(h *Handle) error {
			return h.RegisterListener(event.TypeCustom, event.SourceRequestContent, ListenerFunc(func(context.Context, *event.Event) error {
				close(bStarted)
				return nil
			}))
		},
	}
	registerAndWait(t, hub, a)
	registerAndWait(t, hub, b)
	registerAndWait(t, hub, listeningModule("after", event.TypeCustom, event.SourceNone, after))

	require.NoError(t, hub.Dispatch(event.NewBuilder("together", event.TypeCustom, event.SourceRequestContent).Build()))
	flush(t, hub, after)
	assert.True(t, sawB.Load(), "listeners of a and b overlapped")
}

// TestListeners_SequentialWithinModule tests that one module's listeners run
// in registration order for an event.
func TestListeners_SequentialWithinModule(t *testing.T) {
	hub := newTestHub(t)
	log := &callLog{}
	m := &testModule{
		name: "ordered",
		register: func(h *Handle) error {
			if err := h.RegisterListener(event.TypeCustom, event.SourceNone, ListenerFunc(func(context.Context, *event.Event) error {
				time.Sleep(10 * time.Millisecond)
				log.add("specific")
				return nil
			})); err != nil {
				return err
			}
			return h.RegisterWildcardListener(ListenerFunc(func(context.Context, *event.Event) error {
				log.add("wildcard")
				return nil
			}))
		},
	}
	registerAndWait(t, hub, m)
	require.NoError(t, hub.Dispatch(customEvent("one")))

	require.Eventually(t, func() bool { return len(log.Calls()) == 2 }, waitFor, tick)
	assert.Equal(t, []string{"specific", "wildcard"}, log.Calls())
}

// TestProcessors tests event replacement by processors.
func TestProcessors(t *testing.T) {
	hub := newTestHub(t)
	c := &collector{}
	var stale *event.Event

	stamp := func(suffix string) ProcessorFunc {
		return func(_ context.Context, ev *event.Event) (*event.Event, error) {
			if ev.Type() != event.TypeCustom {
				return nil, nil
			}
			data := ev.Data()
			data.PutString("trail", data.String("trail", "")+suffix)
			return ev.WithData(data), nil
		}
	}
	first := &testModule{name: "first", register: func(h *Handle) error { return h.RegisterProcessor(stamp("a")) }}
	failing := &testModule{name: "failing", register: func(h *Handle) error {
		return h.RegisterProcessor(ProcessorFunc(func(context.Context, *event.Event) (*event.Event, error) {
			return nil, errors.New("cannot process")
		}))
	}}
	rogue := &testModule{name: "rogue", register: func(h *Handle) error {
		return h.RegisterProcessor(ProcessorFunc(func(_ context.Context, ev *event.Event) (*event.Event, error) {
			if stale != nil && ev.Name() == "processed" {
				return stale, nil
			}
			return ev, nil
		}))
	}}
	second := &testModule{name: "second", register: func(h *Handle) error { return h.RegisterProcessor(stamp("b")) }}

	registerAndWait(t, hub, first)
	registerAndWait(t, hub, failing)
	registerAndWait(t, hub, rogue)
	registerAndWait(t, hub, second)
	registerAndWait(t, hub, listeningModule("sink", event.TypeCustom, event.SourceNone, c))

	stale = customEvent("stale")
	require.NoError(t, hub.Dispatch(stale))
	original := customEvent("processed")
	require.NoError(t, hub.Dispatch(original))

	require.Eventually(t, func() bool { return c.Named("processed") != nil }, waitFor, tick)
	got := c.Named("processed")
	assert.Equal(t, "ab", got.Data().String("trail", ""))
	assert.Equal(t, original.Number(), got.Number(), "replacement keeps the number")
	assert.NotEqual(t, original.ID(), got.ID())
}

// TestFinishModulesRegistration tests the booted event and the hub state.
func TestFinishModulesRegistration(t *testing.T) {
	hub := newTestHub(t)
	c := &collector{}
	registerAndWait(t, hub, &testModule{name: "ext", version: "2.1.0"})
	registerAndWait(t, hub, listeningModule("sink", event.TypeWildcard, event.SourceWildcard, c))

	require.NoError(t, hub.FinishModulesRegistration())
	assert.ErrorIs(t, hub.FinishModulesRegistration(), ErrAlreadyBooted)

	require.Eventually(t, func() bool { return c.Named(BootedEventName) != nil }, waitFor, tick)
	booted := c.Named(BootedEventName)
	assert.Equal(t, event.TypeHub, booted.Type())
	assert.Equal(t, event.SourceBooted, booted.Source())
	assert.True(t, hub.IsBooted())

	v, err := hub.SharedEventState(HubStateName, booted, nil)
	require.NoError(t, err)
	require.True(t, v.IsData())
	assert.Equal(t, hub.Config().SDKVersion, v.Data().String("version", ""))
	assert.Equal(t, "2.1.0", extensionVersion(t, v.Data(), "ext"))
	assert.Equal(t, "", extensionVersion(t, v.Data(), "sink"))

	change := c.Named(StateChangeEventName)
	require.NotNil(t, change)
	assert.Equal(t, HubStateName, change.Data().String(StateOwnerKey, ""))
	assert.Less(t, change.Number(), booted.Number())
}

// TestHubState_TracksRegistrations tests that the hub state follows modules
// registered and unregistered after boot.
func TestHubState_TracksRegistrations(t *testing.T) {
	hub := newTestHub(t)
	require.NoError(t, hub.FinishModulesRegistration())
	require.Eventually(t, hub.IsBooted, waitFor, tick)

	registerAndWait(t, hub, &testModule{name: "late", version: "3.0.0"})
	require.Eventually(t, func() bool {
		return hasExtension(hub, "late")
	}, waitFor, tick)

	require.NoError(t, hub.UnregisterModule("late"))
	require.Eventually(t, func() bool {
		return !hasExtension(hub, "late")
	}, waitFor, tick)
}

func hasExtension(hub *Hub, name string) bool {
	v, err := hub.SharedEventState(HubStateName, event.SharedStateNewest, nil)
	if err != nil || !v.IsData() {
		return false
	}
	_, ok := v.Data().Map("extensions")[name]
	return ok
}

func extensionVersion(t *testing.T, data *variant.EventData, name string) string {
	t.Helper()
	ext, ok := data.Map("extensions")[name]
	require.True(t, ok, "extension %s missing", name)
	m, ok := ext.AsMap()
	require.True(t, ok)
	return m["version"].Text()
}

// TestDispose tests that disposal unregisters modules in reverse order and
// rejects later calls.
func TestDispose(t *testing.T) {
	hub := newTestHub(t, WithConfig(testConfig()))
	log := &callLog{}
	c := &collector{}
	for _, name := range []string{"a", "b", "c"} {
		registerAndWait(t, hub, &testModule{name: name, unregister: func() { log.add(name) }})
	}
	registerAndWait(t, hub, listeningModule("sink", event.TypeCustom, event.SourceNone, c))
	flush(t, hub, c)
	heard := c.Len()

	require.True(t, hub.Dispose())
	assert.Equal(t, []string{"c", "b", "a"}, log.Calls())

	select {
	case <-hub.Disposed():
	default:
		t.Fatal("Disposed is not closed")
	}
	assert.ErrorIs(t, hub.Dispatch(customEvent("late")), ErrHubDisposed)
	assert.ErrorIs(t, hub.RegisterModule(&testModule{name: "late"}), ErrHubDisposed)
	assert.ErrorIs(t, hub.FinishModulesRegistration(), ErrHubDisposed)
	assert.False(t, hub.IsRegisteredModule("a"))
	assert.True(t, hub.Dispose(), "second dispose")
	assert.Equal(t, heard, c.Len())
}

// TestDispose_DropsQueuedEvents tests that the event in progress completes and
// queued events are dropped.
func TestDispose_DropsQueuedEvents(t *testing.T) {
	hub := newTestHub(t, WithConfig(testConfig()))
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	c := &collector{}

	m := &testModule{
		name: "slow",
		register: func(h *Handle) error {
			return h.RegisterListener(event.TypeCustom, event.SourceNone, ListenerFunc(func(ctx context.Context, ev *event.Event) error {
				once.Do(func() { close(started) })
				select {
				case <-release:
				case <-time.After(waitFor):
				}
				return c.Hear(ctx, ev)
			}))
		},
	}
	registerAndWait(t, hub, m)

	require.NoError(t, hub.Dispatch(customEvent("in-progress")))
	select {
	case <-started:
	case <-time.After(waitFor):
		t.Fatal("listener never started")
	}
	for i := range 5 {
		require.NoError(t, hub.Dispatch(customEvent(fmt.Sprintf("queued-%d", i))))
	}

	assert.False(t, hub.DisposeWithin(0), "disposal cannot finish while a listener runs")
	close(release)

	require.Eventually(t, func() bool { return hub.DisposeWithin(0) }, waitFor, tick)
	assert.Equal(t, []string{"in-progress"}, c.Names())
	assert.Equal(t, []string{"OnRegistered", "OnUnregistered"}, m.Calls())
}

// TestTasks_RunInOrder tests that a module's tasks run one at a time.
func TestTasks_RunInOrder(t *testing.T) {
	hub := newTestHub(t)
	m := &testModule{name: "tasks"}
	registerAndWait(t, hub, m)

	var (
		mu      sync.Mutex
		order   []int
		running atomic.Int32
		overlap atomic.Bool
	)
	for i := range 5 {
		ok := m.Handle().AddTask(fmt.Sprintf("task-%d", i), func(ctx context.Context) error {
			if running.Add(1) > 1 {
				overlap.Store(true)
			}
			defer running.Add(-1)
			assert.NotNil(t, ctx)
			time.Sleep(2 * time.Millisecond)
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		})
		require.True(t, ok)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 5
	}, waitFor, tick)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
	assert.False(t, overlap.Load())
	assert.False(t, m.Handle().AddTask("nil", nil))
}

// TestTasks_Unregistration tests that unregistration drops optional queued
// tasks, waits for the running one and runs required ones after
// OnUnregistered.
func TestTasks_Unregistration(t *testing.T) {
	hub := newTestHub(t, WithConfig(testConfig()))
	log := &callLog{}
	m := &testModule{name: "worker", unregister: func() { log.add("OnUnregistered") }}
	registerAndWait(t, hub, m)
	h := m.Handle()

	started := make(chan struct{})
	release := make(chan struct{})
	require.True(t, h.AddTask("first", func(context.Context) error {
		close(started)
		<-release
		log.add("first")
		return nil
	}))
	require.True(t, h.AddTask("optional", func(context.Context) error {
		log.add("optional")
		return nil
	}))
	require.True(t, h.AddTask("required", func(context.Context) error {
		log.add("required")
		return nil
	}, RequiredForUnregistration()))

	select {
	case <-started:
	case <-time.After(waitFor):
		t.Fatal("first task never started")
	}
	require.NoError(t, hub.UnregisterModule("worker"))
	assert.False(t, h.AddTask("late", func(context.Context) error { return nil }))
	close(release)

	waitGone(t, hub, "worker")
	require.Eventually(t, func() bool { return len(log.Calls()) == 3 }, waitFor, tick)
	assert.Equal(t, []string{"first", "OnUnregistered", "required"}, log.Calls())
}

// TestTasks_LongRequiredTaskDoesNotStallEvents tests that a required task
// still running after unregistration does not hold up other modules' events.
func TestTasks_LongRequiredTaskDoesNotStallEvents(t *testing.T) {
	hub := newTestHub(t, WithConfig(testConfig()))
	sink := &collector{}
	registerAndWait(t, hub, listeningModule("sink", event.TypeCustom, event.SourceNone, sink))
	m := &testModule{name: "flusher"}
	registerAndWait(t, hub, m)

	release := make(chan struct{})
	defer close(release)
	gate := make(chan struct{})
	require.True(t, m.Handle().AddTask("gate", func(context.Context) error {
		<-gate
		return nil
	}))
	require.True(t, m.Handle().AddTask("flush", func(context.Context) error {
		<-release
		return nil
	}, RequiredForUnregistration()))

	require.NoError(t, hub.UnregisterModule("flusher"))
	close(gate)
	waitGone(t, hub, "flusher")

	require.NoError(t, hub.Dispatch(customEvent("after")))
	require.Eventually(t, func() bool { return sink.Named("after") != nil }, time.Second, tick)
}

// TestTasks_WaitForResponsesDoNotStallDelivery tests that module tasks
// blocked on one-time responses leave the listener workers free to deliver
// those responses.
func TestTasks_WaitForResponsesDoNotStallDelivery(t *testing.T) {
	for _, workers := range []int{1, 4} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			cfg := testConfig()
			cfg.Workers = workers
			hub := newTestHub(t, WithConfig(cfg))

			registerAndWait(t, hub, &testModule{
				name: "responder",
				register: func(h *Handle) error {
					return h.RegisterListener(event.TypeIdentity, event.SourceRequestIdentity, ListenerFunc(func(_ context.Context, req *event.Event) error {
						return h.Dispatch(event.NewResponseBuilder(req, "answer", event.TypeIdentity, event.SourceResponseIdentity).Build())
					}))
				},
			})

			requesters := make([]*testModule, workers)
			for i := range requesters {
				requesters[i] = &testModule{name: fmt.Sprintf("requester-%d", i)}
				registerAndWait(t, hub, requesters[i])
			}

			gate := make(chan struct{})
			var answered atomic.Int32
			var done sync.WaitGroup
			for _, m := range requesters {
				h := m.Handle()
				done.Add(1)
				require.True(t, h.AddTask("ask", func(context.Context) error {
					defer done.Done()
					<-gate
					req := event.NewBuilder("question", event.TypeIdentity, event.SourceRequestIdentity).
						ExpectResponse().
						Build()
					got := make(chan struct{}, 1)
					if err := h.RegisterOneTimeListener(event.TypeIdentity, event.SourceResponseIdentity, req.ResponsePairID(),
						func(*event.Event) { got <- struct{}{} }); err != nil {
						return err
					}
					if err := h.Dispatch(req); err != nil {
						return err
					}
					select {
					case <-got:
						answered.Add(1)
					case <-time.After(time.Second):
					}
					return nil
				}))
			}

			close(gate)
			done.Wait()
			assert.Equal(t, int32(workers), answered.Load())
		})
	}
}

// TestOneTimeListener_FiresOnce tests that a pair id listener fires for the
// first matching event only.
func TestOneTimeListener_FiresOnce(t *testing.T) {
	hub := newTestHub(t)
	sink := &collector{}
	m := &testModule{name: "waiter"}
	registerAndWait(t, hub, m)
	registerAndWait(t, hub, listeningModule("sink", event.TypeCustom, event.SourceNone, sink))

	pairID := event.NewPairID()
	var calls []string
	var mu sync.Mutex
	require.NoError(t, m.Handle().RegisterOneTimeListener(event.TypeWildcard, event.SourceWildcard, pairID, func(ev *event.Event) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, ev.Name())
	}))

	for _, name := range []string{"unpaired", "first", "second"} {
		b := event.NewBuilder(name, event.TypeCustom, event.SourceNone)
		if name != "unpaired" {
			b.SetPairID(pairID)
		}
		require.NoError(t, hub.Dispatch(b.Build()))
	}
	flush(t, hub, sink)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first"}, calls)
}

// TestOneTimeListener_TypeAndSource tests matching without a pair id.
func TestOneTimeListener_TypeAndSource(t *testing.T) {
	hub := newTestHub(t)
	sink := &collector{}
	registerAndWait(t, hub, &testModule{name: "waiter"})
	registerAndWait(t, hub, listeningModule("sink", event.TypeCustom, event.SourceNone, sink))

	fired := make(chan *event.Event, 4)
	require.NoError(t, hub.RegisterOneTimeListener("waiter", event.TypeCustom, event.SourceRequestContent, "", func(ev *event.Event) {
		fired <- ev
	}))
	assert.ErrorIs(t, hub.RegisterOneTimeListener("nobody", event.TypeCustom, event.SourceNone, "", func(*event.Event) {}), ErrModuleNotRegistered)
	assert.ErrorIs(t, hub.RegisterOneTimeListener("waiter", event.TypeCustom, event.SourceNone, "", nil), ErrNilCallback)

	require.NoError(t, hub.Dispatch(customEvent("other source")))
	require.NoError(t, hub.Dispatch(event.NewBuilder("match", event.TypeCustom, event.SourceRequestContent).Build()))
	require.NoError(t, hub.Dispatch(event.NewBuilder("again", event.TypeCustom, event.SourceRequestContent).Build()))
	flush(t, hub, sink)

	require.Len(t, fired, 1)
	assert.Equal(t, "match", (<-fired).Name())
}

// TestOneTimeListener_DroppedOnDispose tests that a pending one-time listener
// never fires once the hub is disposed.
func TestOneTimeListener_DroppedOnDispose(t *testing.T) {
	hub := newTestHub(t)
	m := &testModule{name: "waiter"}
	registerAndWait(t, hub, m)

	var fired atomic.Bool
	require.NoError(t, m.Handle().RegisterOneTimeListener(event.TypeWildcard, event.SourceWildcard, event.NewPairID(), func(*event.Event) {
		fired.Store(true)
	}))
	require.True(t, hub.DisposeWithin(waitFor))
	assert.False(t, fired.Load())
}

// TestRequestResponse tests pairing a response to its request.
func TestRequestResponse(t *testing.T) {
	hub := newTestHub(t)

	responder := &testModule{
		name: "identity",
		register: func(h *Handle) error {
			return h.RegisterListener(event.TypeIdentity, event.SourceRequestIdentity, ListenerFunc(func(_ context.Context, req *event.Event) error {
				resp := event.NewResponseBuilder(req, "identity response", event.TypeIdentity, event.SourceResponseIdentity).
					SetData(variant.NewEventData().PutString("ecid", "1234")).
					Build()
				return h.Dispatch(resp)
			}))
		},
	}
	requester := &testModule{name: "requester"}
	registerAndWait(t, hub, responder)
	registerAndWait(t, hub, requester)

	req := event.NewBuilder("get identity", event.TypeIdentity, event.SourceRequestIdentity).
		ExpectResponse().
		Build()
	responses := make(chan *event.Event, 1)
	h := requester.Handle()
	require.NoError(t, h.RegisterOneTimeListener(event.TypeIdentity, event.SourceResponseIdentity, req.ResponsePairID(), func(ev *event.Event) {
		responses <- ev
	}))
	require.NoError(t, h.Dispatch(req))

	select {
	case resp := <-responses:
		assert.Equal(t, "1234", resp.Data().String("ecid", ""))
		assert.Greater(t, resp.Number(), req.Number())
	case <-time.After(waitFor):
		t.Fatal("no response")
	}
}

// TestDispatcher tests emitting through a module dispatcher.
func TestDispatcher(t *testing.T) {
	hub := newTestHub(t)
	c := &collector{}
	m := &testModule{name: "emitter"}
	registerAndWait(t, hub, m)
	registerAndWait(t, hub, listeningModule("sink", event.TypeAnalytics, event.SourceRequestContent, c))

	d := m.Handle().CreateDispatcher(event.TypeAnalytics, event.SourceRequestContent)
	assert.Equal(t, event.TypeAnalytics, d.Type())
	assert.Equal(t, event.SourceRequestContent, d.Source())

	ev, err := d.Emit("track", variant.NewEventData().PutString("action", "click"))
	require.NoError(t, err)
	assert.Positive(t, ev.Number())

	require.Eventually(t, func() bool { return c.Len() == 1 }, waitFor, tick)
	assert.Equal(t, "click", c.Events()[0].Data().String("action", ""))

	require.NoError(t, hub.UnregisterModule("emitter"))
	waitGone(t, hub, "emitter")
	_, err = d.Emit("late", nil)
	assert.ErrorIs(t, err, ErrModuleNotRegistered)
}

// TestHandle_Detached tests a nil handle and one whose module is gone.
func TestHandle_Detached(t *testing.T) {
	var h *Handle
	assert.Equal(t, "", h.Name())
	assert.Equal(t, StateUnregistered, h.State())
	assert.NotNil(t, h.Logger())
	assert.Nil(t, h.Platform())
	assert.ErrorIs(t, h.Dispatch(customEvent("x")), ErrModuleNotRegistered)
	assert.ErrorIs(t, h.RegisterWildcardListener(&collector{}), ErrModuleNotRegistered)
	assert.False(t, h.AddTask("x", func(context.Context) error { return nil }))
	assert.False(t, h.HasSharedState("x"))
	_, err := h.SharedState("x", event.SharedStateNewest)
	assert.ErrorIs(t, err, ErrModuleNotRegistered)

	hub := newTestHub(t)
	m := &testModule{name: "gone"}
	registerAndWait(t, hub, m)
	live := m.Handle()
	assert.Equal(t, "gone", live.Name())
	assert.Same(t, hub.Platform(), live.Platform())
	assert.ErrorIs(t, live.RegisterListener(event.TypeCustom, event.SourceNone, nil), ErrNilCallback)
	assert.ErrorIs(t, live.RegisterProcessor(nil), ErrNilCallback)

	require.NoError(t, live.Unregister())
	waitGone(t, hub, "gone")
	assert.ErrorIs(t, live.Unregister(), ErrModuleNotRegistered)
	assert.ErrorIs(t, live.RegisterRule(Rule{Name: "r"}), ErrModuleNotRegistered)

	require.True(t, hub.DisposeWithin(waitFor))
	assert.ErrorIs(t, live.Dispatch(customEvent("x")), ErrHubDisposed)
}

// TestModuleState_String tests the state names.
func TestModuleState_String(t *testing.T) {
	assert.Equal(t, "registering", StateRegistering.String())
	assert.Equal(t, "registered", StateRegistered.String())
	assert.Equal(t, "unregistering", StateUnregistering.String())
	assert.Equal(t, "unregistered", StateUnregistered.String())
	assert.Equal(t, "unknown", ModuleState(42).String())
}
