package eventhub

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/randalmurphal/eventhub/pkg/eventhub/event"
	"github.com/randalmurphal/eventhub/pkg/eventhub/executor"
	"github.com/randalmurphal/eventhub/pkg/eventhub/observability"
)

// run is the hub goroutine. Every queued callback is executed before the next
// event is taken, and an event is fully delivered before the next one starts.
func (h *Hub) run() {
	for {
		cb, ev, ok := h.next()
		if !ok {
			break
		}
		if ev == nil {
			if err := executor.Run(cb.name, func() error {
				cb.fn()
				return nil
			}); err != nil {
				observability.LogRejected(h.logger, cb.name, err)
			}
			continue
		}
		h.processEvent(ev)
	}
	h.shutdown()
}

func (h *Hub) next() (callback, *event.Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for !h.disposing && len(h.callbacks) == 0 && len(h.events) == 0 {
		h.cond.Wait()
	}
	if h.disposing {
		return callback{}, nil, false
	}
	if len(h.callbacks) > 0 {
		cb := h.callbacks[0]
		h.callbacks[0] = callback{}
		h.callbacks = h.callbacks[1:]
		return cb, nil, true
	}
	ev := h.events[0]
	h.events[0] = nil
	h.events = h.events[1:]
	return callback{}, ev, true
}

// moduleWork is what one module does for one event.
type moduleWork struct {
	entry     *moduleEntry
	listeners []Listener
	oneTime   []*oneTimeListener
}

func (h *Hub) processEvent(ev *event.Event) {
	start := time.Now()
	ctx, span := h.spans.StartEventSpan(h.ctx, h.name, ev.Number(), ev.Name(), ev.Type().String(), ev.Source().String())

	fromRule := h.takeConsequence(ev)
	ev = h.runProcessors(ctx, ev)
	if !fromRule {
		h.evaluateRules(ctx, ev)
	}

	work := h.collect(ev)
	delivered := h.fanOut(ctx, ev, work)

	h.spans.EndSpanWithError(span, nil)
	duration := time.Since(start)
	h.metrics.RecordEventProcessed(ctx, ev.Type().String(), delivered, duration)
	observability.LogEventProcessed(h.logger, ev.Number(), delivered, float64(duration.Microseconds())/1000)
}

func (h *Hub) runProcessors(ctx context.Context, ev *event.Event) *event.Event {
	for _, p := range h.processors {
		if p.entry.State() != StateRegistered {
			continue
		}

		current := ev
		var out *event.Event
		err := executor.Run("processor "+p.entry.name, func() error {
			var err error
			out, err = p.processor.Process(ctx, current)
			return err
		})
		if err != nil {
			h.callbackFailed(p.entry, "Process", err)
			continue
		}
		if out == nil || out == current {
			continue
		}
		if out.IsSentinel() || (out.Number() != event.Unnumbered && out.Number() != current.Number()) {
			p.entry.logger.Warn("processor returned an event that cannot replace the current one",
				slog.Int("event_number", int(current.Number())),
				slog.Int("returned_number", int(out.Number())),
			)
			continue
		}
		h.seq.Carry(current, out)
		ev = out
	}
	return ev
}

// collect gathers the matching listeners of every registered module, in
// module registration order. Matching one-time listeners are removed.
func (h *Hub) collect(ev *event.Event) []moduleWork {
	var work []moduleWork
	index := make(map[*moduleEntry]int)

	h.modules.Range(func(_ string, e *moduleEntry) bool {
		if !e.attached || e.State() != StateRegistered {
			return true
		}
		if ls := e.matchingListeners(ev); len(ls) > 0 {
			index[e] = len(work)
			work = append(work, moduleWork{entry: e, listeners: ls})
		}
		return true
	})

	if len(h.oneTime) == 0 {
		return work
	}
	kept := h.oneTime[:0]
	for _, o := range h.oneTime {
		if !o.matches(ev) {
			kept = append(kept, o)
			continue
		}
		if o.entry.State() != StateRegistered {
			continue
		}
		i, ok := index[o.entry]
		if !ok {
			i = len(work)
			index[o.entry] = i
			work = append(work, moduleWork{entry: o.entry})
		}
		work[i].oneTime = append(work[i].oneTime, o)
	}
	for i := len(kept); i < len(h.oneTime); i++ {
		h.oneTime[i] = nil
	}
	h.oneTime = kept
	return work
}

// fanOut runs each module's listeners as one executor task and waits for all
// of them. It returns the number of callbacks invoked.
func (h *Hub) fanOut(ctx context.Context, ev *event.Event, work []moduleWork) int {
	var (
		wg    sync.WaitGroup
		total int
	)
	for _, w := range work {
		total += len(w.listeners) + len(w.oneTime)
		wg.Add(1)
		task := func() error {
			defer wg.Done()
			h.deliver(ctx, ev, w)
			return nil
		}
		if !h.exec.AddTask(task, nil, "listeners "+w.entry.name) {
			h.metrics.RecordTaskRejected(ctx, w.entry.name)
			_ = task()
		}
	}
	wg.Wait()
	return total
}

func (h *Hub) deliver(ctx context.Context, ev *event.Event, w moduleWork) {
	ctx, span := h.spans.StartModuleSpan(ctx, w.entry.name, len(w.listeners)+len(w.oneTime))
	var firstErr error

	for _, l := range w.listeners {
		err := executor.Run("listener "+w.entry.name, func() error {
			return l.Hear(ctx, ev)
		})
		if err != nil {
			h.callbackFailed(w.entry, "Hear", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	for _, o := range w.oneTime {
		err := executor.Run("one-time listener "+w.entry.name, func() error {
			o.fn(ev)
			return nil
		})
		if err != nil {
			h.callbackFailed(w.entry, "one-time listener", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	h.spans.EndSpanWithError(span, firstErr)
}

// addListener runs on the hub goroutine. A listener already registered for
// the same key is retired before the new one is announced.
func (h *Hub) addListener(e *moduleEntry, key listenerKey, l Listener) {
	if !e.live() {
		return
	}
	if old, ok := e.listeners.Get(key); ok {
		e.listeners.Delete(key)
		h.retireListener(e, old)
	}
	e.listeners.Register(key, &listenerEntry{key: key, listener: l})
	if lc, ok := l.(ListenerLifecycle); ok {
		if err := executor.Run("listener OnRegistered "+e.name, func() error {
			lc.OnRegistered()
			return nil
		}); err != nil {
			h.callbackFailed(e, "listener OnRegistered", err)
		}
	}
}

// removeListener runs on the hub goroutine.
func (h *Hub) removeListener(e *moduleEntry, key listenerKey) {
	if old, ok := e.listeners.Get(key); ok {
		e.listeners.Delete(key)
		h.retireListener(e, old)
	}
}

func (h *Hub) retireListener(e *moduleEntry, le *listenerEntry) {
	lc, ok := le.listener.(ListenerLifecycle)
	if !ok {
		return
	}
	if err := executor.Run("listener OnUnregistered "+e.name, func() error {
		lc.OnUnregistered()
		return nil
	}); err != nil {
		h.callbackFailed(e, "listener OnUnregistered", err)
	}
}

// addProcessor runs on the hub goroutine.
func (h *Hub) addProcessor(e *moduleEntry, p Processor) {
	if !e.live() {
		return
	}
	h.processors = append(h.processors, processorEntry{entry: e, processor: p})
}
