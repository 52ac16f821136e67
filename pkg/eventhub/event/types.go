package event

import "strings"

// Type classifies what an event is about. Types compare by value; TypeOf
// normalises arbitrary names so unknown types can be created on demand.
type Type string

// Source classifies why an event was sent.
type Source string

// Built-in event types.
const (
	TypeAcquisition     Type = "acquisition"
	TypeAnalytics       Type = "analytics"
	TypeAudienceManager Type = "audiencemanager"
	TypeConfiguration   Type = "configuration"
	TypeCustom          Type = "custom"
	TypeHub             Type = "hub"
	TypeIdentity        Type = "identity"
	TypeLifecycle       Type = "lifecycle"
	TypeLocation        Type = "location"
	TypePII             Type = "pii"
	TypePlaces          Type = "places"
	TypeRulesEngine     Type = "rulesengine"
	TypeSignal          Type = "signal"
	TypeSystem          Type = "system"
	TypeTarget          Type = "target"
	TypeUserProfile     Type = "userprofile"

	// TypeWildcard matches every type when used in a listener registration.
	TypeWildcard Type = "*"
)

// Built-in event sources.
const (
	SourceNone             Source = "none"
	SourceOS               Source = "os"
	SourceRequestContent   Source = "requestcontent"
	SourceRequestIdentity  Source = "requestidentity"
	SourceRequestProfile   Source = "requestprofile"
	SourceRequestReset     Source = "requestreset"
	SourceResponseContent  Source = "responsecontent"
	SourceResponseIdentity Source = "responseidentity"
	SourceResponseProfile  Source = "responseprofile"
	SourceSharedState      Source = "sharedstate"
	SourceBooted           Source = "booted"

	// SourceWildcard matches every source when used in a listener registration.
	SourceWildcard Source = "*"
)

// TypeOf returns the Type for name, creating it if it is not built in.
// Names are case-insensitive and surrounding space is ignored.
func TypeOf(name string) Type {
	return Type(normalise(name))
}

// SourceOf returns the Source for name, creating it if it is not built in.
func SourceOf(name string) Source {
	return Source(normalise(name))
}

// String returns the type name.
func (t Type) String() string { return string(t) }

// String returns the source name.
func (s Source) String() string { return string(s) }

// Matches reports whether a listener registered for t accepts events of type other.
func (t Type) Matches(other Type) bool {
	return t == TypeWildcard || t == other
}

// Matches reports whether a listener registered for s accepts events from other.
func (s Source) Matches(other Source) bool {
	return s == SourceWildcard || s == other
}

func normalise(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
