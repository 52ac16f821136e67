package tokens

import (
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/eventhub/pkg/eventhub/event"
	"github.com/randalmurphal/eventhub/pkg/eventhub/variant"
)

// tokenPattern matches {%key%} and {%urlenc(key)%}.
var tokenPattern = regexp.MustCompile(`\{%\s*(urlenc\(\s*)?([a-zA-Z0-9_~./\-]+)(\s*\))?\s*%\}`)

const statePrefix = "~state."

// StateReader resolves shared state for ~state tokens.
type StateReader interface {
	// SharedStateData returns the concrete data of state name as of ev, or
	// false if the state is pending, invalid or unknown.
	SharedStateData(name string, ev *event.Event) (*variant.EventData, bool)
}

// Parser expands tokens. Safe for concurrent use after construction.
type Parser struct {
	missingAction MissingAction
	state         StateReader
	sdkVersion    string
	cacheBust     func() string
	loc           *time.Location
}

// NewParser creates a Parser.
func NewParser(opts ...Option) *Parser {
	p := &Parser{
		missingAction: MissingEmpty,
		cacheBust:     func() string { return uuid.New().String() },
		loc:           time.UTC,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Expand replaces every token in s with its value for ev.
func (p *Parser) Expand(s string, ev *event.Event) string {
	if s == "" || !strings.Contains(s, "{%") {
		return s
	}

	var flat map[string]variant.Variant
	return tokenPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := tokenPattern.FindStringSubmatch(match)
		encode := groups[1] != ""
		if encode != (groups[3] != "") {
			// Unbalanced urlenc( ... ).
			return p.missing(match)
		}

		key := groups[2]
		var (
			value string
			ok    bool
		)
		if strings.HasPrefix(key, "~") {
			value, ok = p.special(key, ev)
		} else {
			if flat == nil {
				flat = eventData(ev).Flatten()
			}
			var v variant.Variant
			if v, ok = flat[key]; ok {
				value = v.Text()
			}
		}
		if !ok {
			return p.missing(match)
		}
		if encode {
			return url.QueryEscape(value)
		}
		return value
	})
}

// ExpandData returns a copy of data with tokens in every string value
// expanded, including strings nested in maps and vectors.
func (p *Parser) ExpandData(data *variant.EventData, ev *event.Event) *variant.EventData {
	out := variant.NewEventData()
	for _, k := range data.Keys() {
		v, _ := data.Get(k)
		out.Put(k, p.expandValue(v, ev))
	}
	return out
}

func (p *Parser) expandValue(v variant.Variant, ev *event.Event) variant.Variant {
	switch v.Kind() {
	case variant.KindString:
		s, _ := v.AsString()
		return variant.String(p.Expand(s, ev))
	case variant.KindMap:
		m, _ := v.AsMap()
		for k, item := range m {
			m[k] = p.expandValue(item, ev)
		}
		return variant.Map(m)
	case variant.KindVector:
		items, _ := v.AsVector()
		for i, item := range items {
			items[i] = p.expandValue(item, ev)
		}
		return variant.Vector(items...)
	default:
		return v
	}
}

func (p *Parser) special(key string, ev *event.Event) (string, bool) {
	switch key {
	case "~type":
		return eventType(ev), ev != nil
	case "~source":
		return eventSource(ev), ev != nil
	case "~timestampu":
		return strconv.FormatInt(eventTime(ev).Unix(), 10), true
	case "~timestampz":
		return eventTime(ev).In(p.loc).Format(time.RFC3339), true
	case "~sdkver":
		return p.sdkVersion, p.sdkVersion != ""
	case "~cachebust":
		return p.cacheBust(), true
	case "~all_url":
		return allURL(eventData(ev)), true
	case "~all_json":
		return eventData(ev).JSON(), true
	}

	if strings.HasPrefix(key, statePrefix) {
		return p.stateValue(strings.TrimPrefix(key, statePrefix), ev)
	}
	return "", false
}

// stateValue resolves "<state name>/<dotted key>".
func (p *Parser) stateValue(ref string, ev *event.Event) (string, bool) {
	if p.state == nil || ev == nil {
		return "", false
	}
	name, path, found := strings.Cut(ref, "/")
	if !found || name == "" || path == "" {
		return "", false
	}
	data, ok := p.state.SharedStateData(name, ev)
	if !ok {
		return "", false
	}
	v, ok := data.Lookup(path)
	if !ok {
		return "", false
	}
	return v.Text(), true
}

func (p *Parser) missing(match string) string {
	if p.missingAction == MissingKeep {
		return match
	}
	return ""
}

// allURL renders flattened data as a query string sorted by key. Nulls and
// containers are skipped.
func allURL(data *variant.EventData) string {
	flat := data.Flatten()
	keys := make([]string, 0, len(flat))
	for k, v := range flat {
		switch v.Kind() {
		case variant.KindNull, variant.KindMap, variant.KindVector:
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(flat[k].Text()))
	}
	return b.String()
}

func eventData(ev *event.Event) *variant.EventData {
	if ev == nil {
		return variant.NewEventData()
	}
	return ev.Data()
}

func eventType(ev *event.Event) string {
	if ev == nil {
		return ""
	}
	return ev.Type().String()
}

func eventSource(ev *event.Event) string {
	if ev == nil {
		return ""
	}
	return ev.Source().String()
}

func eventTime(ev *event.Event) time.Time {
	if ev == nil {
		return time.Now()
	}
	return ev.Timestamp()
}
