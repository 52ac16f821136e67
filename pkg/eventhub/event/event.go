// Package event defines the immutable envelope that flows through the hub.
//
// Events are built once with a Builder and never change afterwards, with one
// exception: the hub's Sequencer stamps the event number when the event is
// dispatched. Pairing ids connect a request to its response:
//
//	req := event.NewBuilder("get id", event.TypeIdentity, event.SourceRequestIdentity).
//		ExpectResponse().
//		Build()
//	// responder:
//	resp := event.NewResponseBuilder(req, "id", event.TypeIdentity, event.SourceResponseIdentity).
//		SetData(data).
//		Build()
//	// resp.PairID() == req.ResponsePairID()
package event

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/eventhub/pkg/eventhub/variant"
)

// Unnumbered is the event number of an event that has not been dispatched.
const Unnumbered int32 = 0

// Event is an immutable message. Use a Builder to create one.
type Event struct {
	id             string
	name           string
	typ            Type
	source         Source
	data           *variant.EventData
	pairID         string
	responsePairID string
	timestamp      time.Time
	number         atomic.Int32
	sentinel       bool
}

// ID returns the event's unique identity. Copies get a new identity.
func (e *Event) ID() string { return e.id }

// Name returns the human-readable event name.
func (e *Event) Name() string { return e.name }

// Type returns the event type.
func (e *Event) Type() Type { return e.typ }

// Source returns the event source.
func (e *Event) Source() Source { return e.source }

// Data returns a copy of the payload. Events without a payload return empty data.
func (e *Event) Data() *variant.EventData { return e.data.Copy() }

// HasData reports whether the event carries a non-empty payload.
func (e *Event) HasData() bool { return e.data.Len() > 0 }

// PairID identifies this event for one-time listener matching.
func (e *Event) PairID() string { return e.pairID }

// ResponsePairID is the pair id a response to this event should carry.
func (e *Event) ResponsePairID() string { return e.responsePairID }

// Timestamp returns when the event was built.
func (e *Event) Timestamp() time.Time { return e.timestamp }

// TimestampMillis returns the timestamp in unix milliseconds.
func (e *Event) TimestampMillis() int64 { return e.timestamp.UnixMilli() }

// Number returns the hub-assigned sequence number, or Unnumbered.
func (e *Event) Number() int32 { return e.number.Load() }

// IsSentinel reports whether e is SharedStateOldest or SharedStateNewest.
func (e *Event) IsSentinel() bool { return e.sentinel }

// Copy returns an unnumbered event with a new identity and the same name,
// type, source, pairing ids, timestamp and a deep copy of the data.
func (e *Event) Copy() *Event {
	return e.derive(e.data.Copy())
}

// WithData returns an unnumbered copy of e carrying data instead of e's payload.
// Processors use it to rewrite an event in flight.
func (e *Event) WithData(data *variant.EventData) *Event {
	return e.derive(data.Copy())
}

// String implements fmt.Stringer.
func (e *Event) String() string {
	return fmt.Sprintf("Event{#%d %q type=%s source=%s pair=%q}", e.Number(), e.name, e.typ, e.source, e.pairID)
}

func (e *Event) derive(data *variant.EventData) *Event {
	return &Event{
		id:             uuid.New().String(),
		name:           e.name,
		typ:            e.typ,
		source:         e.source,
		data:           data,
		pairID:         e.pairID,
		responsePairID: e.responsePairID,
		timestamp:      e.timestamp,
	}
}

// Sentinel events for shared-state lookups that ignore versions.
var (
	// SharedStateOldest resolves to the first stored version of a state.
	SharedStateOldest = newSentinel("shared state oldest", 0)

	// SharedStateNewest resolves to the last stored version of a state.
	SharedStateNewest = newSentinel("shared state newest", math.MaxInt32)
)

func newSentinel(name string, number int32) *Event {
	e := &Event{
		id:        name,
		name:      name,
		typ:       TypeHub,
		source:    SourceSharedState,
		data:      variant.NewEventData(),
		timestamp: time.Unix(0, 0),
		sentinel:  true,
	}
	e.number.Store(number)
	return e
}

// NewPairID returns a fresh pairing id.
func NewPairID() string {
	return uuid.New().String()
}
