package eventhub

import (
	"github.com/randalmurphal/eventhub/pkg/eventhub/event"
)

// oneTimeListener fires for the first matching event and is then removed.
type oneTimeListener struct {
	entry  *moduleEntry
	typ    event.Type
	source event.Source
	pairID string
	fn     func(*event.Event)
}

// matches compares pair ids when one was given, and type and source otherwise.
func (o *oneTimeListener) matches(ev *event.Event) bool {
	if o.pairID != "" {
		return ev.PairID() == o.pairID
	}
	return o.typ.Matches(ev.Type()) && o.source.Matches(ev.Source())
}

func (h *Hub) registerOneTime(e *moduleEntry, typ event.Type, source event.Source, pairID string, fn func(*event.Event)) error {
	if fn == nil {
		return ErrNilCallback
	}
	o := &oneTimeListener{entry: e, typ: typ, source: source, pairID: pairID, fn: fn}
	return h.enqueue("register one-time listener "+e.name, func() {
		if e.live() {
			h.oneTime = append(h.oneTime, o)
		}
	})
}

// dropOneTime runs on the hub goroutine.
func (h *Hub) dropOneTime(e *moduleEntry) {
	kept := h.oneTime[:0]
	for _, o := range h.oneTime {
		if o.entry != e {
			kept = append(kept, o)
		}
	}
	for i := len(kept); i < len(h.oneTime); i++ {
		h.oneTime[i] = nil
	}
	h.oneTime = kept
}
