package benchmarks

import (
	"testing"

	"github.com/randalmurphal/eventhub/pkg/eventhub/event"
	"github.com/randalmurphal/eventhub/pkg/eventhub/sharedstate"
	"github.com/randalmurphal/eventhub/pkg/eventhub/tokens"
	"github.com/randalmurphal/eventhub/pkg/eventhub/variant"
)

// BenchmarkStoreGet_100 reads from a 100-version history.
func BenchmarkStoreGet_100(b *testing.B) {
	benchmarkStoreGet(b, 100)
}

// BenchmarkStoreGet_10000 reads from a 10000-version history.
func BenchmarkStoreGet_10000(b *testing.B) {
	benchmarkStoreGet(b, 10000)
}

// BenchmarkStoreCreate appends versions to one state.
func BenchmarkStoreCreate(b *testing.B) {
	s := sharedstate.NewStore()
	v := sharedstate.Data(variant.NewEventData().PutString("k", "v"))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := s.Create("bench", sharedstate.Version(i+1), v); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkStoreResolveLinks resolves a pending entry linked to its
// predecessor.
func BenchmarkStoreResolveLinks(b *testing.B) {
	v := sharedstate.Data(variant.NewEventData().PutString("k", "v"))
	for i := 0; i < b.N; i++ {
		s := sharedstate.NewStore()
		_ = s.Create("bench", 1, v)
		_ = s.Create("bench", 2, sharedstate.Pending)
		_ = s.Update("bench", 2, sharedstate.SameAsPrev)
		_ = s.Get("bench", 2)
	}
}

// BenchmarkTokens_Expand expands a templated URL.
func BenchmarkTokens_Expand(b *testing.B) {
	p := tokens.NewParser(tokens.WithSDKVersion("1.0.0"))
	ev := event.NewBuilder("track", event.TypeAnalytics, event.SourceRequestContent).
		SetData(variant.NewEventData().
			PutString("action", "tap").
			PutMap("user", map[string]variant.Variant{"name": variant.String("a b")})).
		Build()
	const tmpl = "https://example.com/t?a={%action%}&u={%urlenc(user.name)%}&t={%~timestampu%}&v={%~sdkver%}"
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = p.Expand(tmpl, ev)
	}
}

// Helper functions

func benchmarkStoreGet(b *testing.B, versions int) {
	s := sharedstate.NewStore()
	for i := 1; i <= versions; i++ {
		v := sharedstate.Data(variant.NewEventData().PutInt32("i", int32(i)))
		if err := s.Create("bench", sharedstate.Version(i*2), v); err != nil {
			b.Fatal(err)
		}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = s.Get("bench", sharedstate.Version(i%(versions*2)+1))
	}
}
