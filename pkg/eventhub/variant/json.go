package variant

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// MarshalJSON encodes v as plain JSON.
func (v Variant) MarshalJSON() ([]byte, error) {
	if v.kind == KindDouble && (math.IsNaN(v.f) || math.IsInf(v.f, 0)) {
		return nil, fmt.Errorf("variant: %v is not representable in JSON", v.f)
	}
	return json.Marshal(v.ToAny())
}

// UnmarshalJSON decodes JSON into v. Integers become int32 when they fit and
// int64 otherwise; other numbers become doubles.
func (v *Variant) UnmarshalJSON(raw []byte) error {
	decoded, err := decodeJSON(raw)
	if err != nil {
		return err
	}
	converted, err := FromAny(decoded)
	if err != nil {
		return err
	}
	*v = converted
	return nil
}

// MarshalJSON encodes d as a JSON object. Nil encodes as {}.
func (d *EventData) MarshalJSON() ([]byte, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	return Map(d.entries).MarshalJSON()
}

// UnmarshalJSON decodes a JSON object into d.
func (d *EventData) UnmarshalJSON(raw []byte) error {
	var v Variant
	if err := v.UnmarshalJSON(raw); err != nil {
		return err
	}
	switch v.kind {
	case KindMap:
		d.entries = v.m
	case KindNull:
		d.entries = make(map[string]Variant)
	default:
		return fmt.Errorf("variant: event data must be a JSON object, got %s", v.kind)
	}
	return nil
}

// ParseJSON decodes a JSON object string into EventData.
func ParseJSON(s string) (*EventData, error) {
	d := NewEventData()
	if err := d.UnmarshalJSON([]byte(s)); err != nil {
		return nil, err
	}
	return d, nil
}

// JSON returns d encoded as a string, or "{}" if it cannot be encoded.
func (d *EventData) JSON() string {
	raw, err := d.MarshalJSON()
	if err != nil {
		return "{}"
	}
	return string(raw)
}

func decodeJSON(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("variant: decode json: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("variant: trailing data after json value")
	}
	return out, nil
}
