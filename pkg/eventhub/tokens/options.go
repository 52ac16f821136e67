package tokens

import "time"

// MissingAction specifies how to handle keys with no value.
type MissingAction int

const (
	// MissingEmpty replaces the token with an empty string. This is the default.
	MissingEmpty MissingAction = iota

	// MissingKeep leaves the token as-is.
	MissingKeep
)

// Option configures a Parser.
type Option func(*Parser)

// WithMissingAction sets how unknown keys are handled.
func WithMissingAction(action MissingAction) Option {
	return func(p *Parser) {
		p.missingAction = action
	}
}

// WithStateReader lets ~state tokens read shared state.
func WithStateReader(r StateReader) Option {
	return func(p *Parser) {
		p.state = r
	}
}

// WithSDKVersion sets the value of ~sdkver.
func WithSDKVersion(version string) Option {
	return func(p *Parser) {
		p.sdkVersion = version
	}
}

// WithCacheBuster replaces the ~cachebust generator. Tests use it for
// deterministic output.
func WithCacheBuster(fn func() string) Option {
	return func(p *Parser) {
		if fn != nil {
			p.cacheBust = fn
		}
	}
}

// WithLocation sets the time zone of ~timestampz. Default: UTC.
func WithLocation(loc *time.Location) Option {
	return func(p *Parser) {
		if loc != nil {
			p.loc = loc
		}
	}
}
