// Package sharedstate stores versioned, named state published by hub modules.
//
// Each state name has a history of entries ordered by version, where a version
// is the number of the event at which the entry became effective. Readers ask
// for the state "as of" a version and get the latest entry at or before it:
//
//	store.Create("configuration", 1, sharedstate.Data(cfg))
//	store.Get("configuration", 2)   // cfg, carried forward
//	store.Get("configuration", 0)   // Invalid, nothing that early
//
// Stored values are Data, Pending or Invalid. Updates of a pending entry take
// a Delta, which can also say "same as the previous entry" or "same as
// whatever comes next" so unchanged state is not duplicated.
package sharedstate

import (
	"fmt"

	"github.com/randalmurphal/eventhub/pkg/eventhub/variant"
)

type valueKind int

const (
	kindInvalid valueKind = iota
	kindPending
	kindData
)

// Value is a resolved shared state: concrete data, Pending or Invalid.
// The zero Value is Invalid.
type Value struct {
	kind valueKind
	data *variant.EventData
}

// Pending means a value is coming but is not known yet.
var Pending = Value{kind: kindPending}

// Invalid means the module has no valid state at this version.
var Invalid = Value{kind: kindInvalid}

// Data wraps a copy of d as a concrete value. Nil data is stored as empty data.
func Data(d *variant.EventData) Value {
	return Value{kind: kindData, data: d.Copy()}
}

// IsData reports whether v holds concrete data.
func (v Value) IsData() bool { return v.kind == kindData }

// IsPending reports whether v is Pending.
func (v Value) IsPending() bool { return v.kind == kindPending }

// IsInvalid reports whether v is Invalid.
func (v Value) IsInvalid() bool { return v.kind == kindInvalid }

// Data returns a copy of the concrete data, or nil for Pending and Invalid.
func (v Value) Data() *variant.EventData {
	if v.kind != kindData {
		return nil
	}
	return v.data.Copy()
}

// Equal reports whether two values have the same kind and equal data.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	return v.kind != kindData || v.data.Equal(other.data)
}

// String implements fmt.Stringer.
func (v Value) String() string {
	switch v.kind {
	case kindPending:
		return "PENDING"
	case kindData:
		return v.data.JSON()
	default:
		return "INVALID"
	}
}

type deltaKind int

const (
	deltaValue deltaKind = iota
	deltaSameAsNext
	deltaSameAsPrev
)

// Delta is the argument of an update: a Value, SameAsNext or SameAsPrev.
type Delta struct {
	kind  deltaKind
	value Value
}

// Set returns a delta that stores v.
func Set(v Value) Delta {
	return Delta{kind: deltaValue, value: v}
}

// SameAsNext makes an entry resolve to the entry after it. Until a later
// entry exists, the entry reads as Pending.
var SameAsNext = Delta{kind: deltaSameAsNext}

// SameAsPrev makes an entry take the value of the entry before it, or Invalid
// if it is the first.
var SameAsPrev = Delta{kind: deltaSameAsPrev}

// IsLink reports whether d is SameAsNext or SameAsPrev.
func (d Delta) IsLink() bool { return d.kind != deltaValue }

// Value returns the stored value of a Set delta.
func (d Delta) Value() (Value, bool) {
	return d.value, d.kind == deltaValue
}

// String implements fmt.Stringer.
func (d Delta) String() string {
	switch d.kind {
	case deltaSameAsNext:
		return "NEXT"
	case deltaSameAsPrev:
		return "PREV"
	default:
		return fmt.Sprint(d.value)
	}
}
