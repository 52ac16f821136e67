package eventhub

import (
	"context"

	"github.com/randalmurphal/eventhub/pkg/eventhub/event"
	"github.com/randalmurphal/eventhub/pkg/eventhub/executor"
	"github.com/randalmurphal/eventhub/pkg/eventhub/observability"
	"github.com/randalmurphal/eventhub/pkg/eventhub/sharedstate"
)

// StateReader reads shared state as of an event. Handle implements it.
type StateReader interface {
	SharedState(name string, ev *event.Event) (sharedstate.Value, error)
}

// Rule dispatches its consequences whenever Condition holds for an event.
//
// Rules are evaluated on the hub goroutine after processors and before
// listeners. Consequence payloads may contain {%key%} tokens, which are
// expanded against the triggering event (see package tokens). Events
// dispatched as consequences are not evaluated against rules again.
type Rule struct {
	Name string

	// Condition decides whether the rule fires. Nil always fires.
	Condition func(ev *event.Event, state StateReader) bool

	// Consequences are templates; each firing dispatches a fresh copy.
	Consequences []*event.Event
}

// addRule runs on the hub goroutine.
func (h *Hub) addRule(e *moduleEntry, r Rule) {
	if !e.live() {
		return
	}
	e.rules = append(e.rules, r)
}

// takeConsequence reports whether ev was dispatched by a rule, forgetting it.
func (h *Hub) takeConsequence(ev *event.Event) bool {
	if _, ok := h.consequences[ev.ID()]; ok {
		delete(h.consequences, ev.ID())
		return true
	}
	return false
}

func (h *Hub) evaluateRules(ctx context.Context, ev *event.Event) {
	h.modules.Range(func(_ string, e *moduleEntry) bool {
		if e.State() != StateRegistered {
			return true
		}
		for _, r := range e.rules {
			matched := false
			err := executor.Run("rule "+r.Name, func() error {
				matched = r.Condition == nil || r.Condition(ev, e.handle)
				return nil
			})
			if err != nil {
				h.callbackFailed(e, "rule "+r.Name, err)
				continue
			}
			if matched {
				h.fire(ctx, e, r, ev)
			}
		}
		return true
	})
}

func (h *Hub) fire(ctx context.Context, e *moduleEntry, r Rule, trigger *event.Event) {
	for _, c := range r.Consequences {
		if c == nil {
			continue
		}
		out := c.WithData(h.tokens.ExpandData(c.Data(), trigger))
		h.consequences[out.ID()] = struct{}{}
		if err := h.Dispatch(out); err != nil {
			delete(h.consequences, out.ID())
			observability.LogRejected(e.logger, "dispatch consequence of rule "+r.Name, err)
			continue
		}
		h.spans.AddSpanEvent(ctx, "rule fired")
	}
}
