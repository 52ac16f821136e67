package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/eventhub/pkg/eventhub/variant"
)

// Builder assembles an Event. Each Build call returns an independent event.
type Builder struct {
	name           string
	typ            Type
	source         Source
	data           *variant.EventData
	pairID         string
	responsePairID string
	timestamp      time.Time
	now            func() time.Time
}

// NewBuilder starts an event with the given name, type and source.
func NewBuilder(name string, typ Type, source Source) *Builder {
	return &Builder{name: name, typ: typ, source: source, now: time.Now}
}

// NewResponseBuilder starts a response to request: the response's pair id is
// the request's response pair id, so a one-time listener registered for that
// id receives it.
func NewResponseBuilder(request *Event, name string, typ Type, source Source) *Builder {
	b := NewBuilder(name, typ, source)
	if request != nil {
		b.pairID = request.ResponsePairID()
	}
	return b
}

// SetData sets the payload. The builder keeps a copy.
func (b *Builder) SetData(data *variant.EventData) *Builder {
	b.data = data.Copy()
	return b
}

// SetPairID sets the event's own pair id.
func (b *Builder) SetPairID(id string) *Builder {
	b.pairID = id
	return b
}

// SetResponsePairID sets the pair id responders should use.
func (b *Builder) SetResponsePairID(id string) *Builder {
	b.responsePairID = id
	return b
}

// ExpectResponse assigns a fresh response pair id.
func (b *Builder) ExpectResponse() *Builder {
	b.responsePairID = uuid.New().String()
	return b
}

// SetTimestamp overrides the build time.
func (b *Builder) SetTimestamp(ts time.Time) *Builder {
	b.timestamp = ts
	return b
}

// SetClock sets the clock used when no timestamp is given.
func (b *Builder) SetClock(now func() time.Time) *Builder {
	if now != nil {
		b.now = now
	}
	return b
}

// Build returns a new unnumbered event.
func (b *Builder) Build() *Event {
	ts := b.timestamp
	if ts.IsZero() {
		ts = b.now()
	}
	return &Event{
		id:             uuid.New().String(),
		name:           b.name,
		typ:            b.typ,
		source:         b.source,
		data:           b.data.Copy(),
		pairID:         b.pairID,
		responsePairID: b.responsePairID,
		timestamp:      ts,
	}
}
