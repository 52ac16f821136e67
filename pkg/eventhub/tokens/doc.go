// Package tokens expands {%key%} placeholders against an event.
//
// Rule consequences carry templated strings that are filled in from the event
// that triggered the rule:
//
//	p := tokens.NewParser(tokens.WithSDKVersion("1.0.0"))
//	url := p.Expand("https://example.com/t?u={%urlenc(user.name)%}&t={%~timestampu%}", ev)
//
// # Keys
//
// Plain keys are looked up in the event data, with nested maps addressed by
// dotted paths ("user.name"). Keys starting with "~" are computed:
//
//	~type          event type
//	~source        event source
//	~timestampu    event time, unix seconds
//	~timestampz    event time, RFC 3339 in UTC
//	~sdkver        SDK version from WithSDKVersion
//	~cachebust     a random value, new on every expansion
//	~all_url       all flattened event data as a URL query string
//	~all_json      all event data as JSON
//	~state.N/K     key K of shared state N as of the event
//
// Wrapping a key in urlenc(...) URL-encodes the value. Unknown keys expand to
// the empty string unless WithMissingAction(MissingKeep) is set.
package tokens
