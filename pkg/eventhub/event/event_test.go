package event_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/eventhub/pkg/eventhub/event"
	"github.com/randalmurphal/eventhub/pkg/eventhub/variant"
)

func TestBuilder_Build(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	data := variant.NewEventData().PutString("k", "v")

	e := event.NewBuilder("launch", event.TypeLifecycle, event.SourceRequestContent).
		SetData(data).
		SetPairID("p1").
		SetResponsePairID("r1").
		SetTimestamp(ts).
		Build()

	assert.Equal(t, "launch", e.Name())
	assert.Equal(t, event.TypeLifecycle, e.Type())
	assert.Equal(t, event.SourceRequestContent, e.Source())
	assert.Equal(t, "p1", e.PairID())
	assert.Equal(t, "r1", e.ResponsePairID())
	assert.Equal(t, ts, e.Timestamp())
	assert.Equal(t, ts.UnixMilli(), e.TimestampMillis())
	assert.Equal(t, event.Unnumbered, e.Number())
	assert.NotEmpty(t, e.ID())
	assert.True(t, e.HasData())

	data.PutString("k", "mutated after build")
	assert.Equal(t, "v", e.Data().String("k", ""))
}

func TestBuilder_BuildTwiceGivesIndependentEvents(t *testing.T) {
	b := event.NewBuilder("x", event.TypeCustom, event.SourceNone)
	a, c := b.Build(), b.Build()

	assert.NotEqual(t, a.ID(), c.ID())
}

func TestBuilder_Clock(t *testing.T) {
	fixed := time.Unix(100, 0)
	e := event.NewBuilder("x", event.TypeCustom, event.SourceNone).
		SetClock(func() time.Time { return fixed }).
		Build()
	assert.Equal(t, fixed, e.Timestamp())
}

func TestEvent_DataIsCopied(t *testing.T) {
	e := event.NewBuilder("x", event.TypeCustom, event.SourceNone).
		SetData(variant.NewEventData().PutInt32("n", 1)).
		Build()

	d := e.Data()
	d.PutInt32("n", 2)
	assert.Equal(t, int32(1), e.Data().Int32("n", 0))
}

func TestEvent_Copy(t *testing.T) {
	var seq event.Sequencer
	original := event.NewBuilder("x", event.TypeCustom, event.SourceNone).
		SetPairID("p").
		SetData(variant.NewEventData().PutString("a", "b")).
		Build()
	seq.Assign(original)

	cp := original.Copy()
	assert.NotEqual(t, original.ID(), cp.ID())
	assert.Equal(t, original.Name(), cp.Name())
	assert.Equal(t, original.Type(), cp.Type())
	assert.Equal(t, original.Source(), cp.Source())
	assert.Equal(t, "p", cp.PairID())
	assert.True(t, original.Data().Equal(cp.Data()))
	assert.Equal(t, event.Unnumbered, cp.Number())
}

func TestEvent_WithData(t *testing.T) {
	e := event.NewBuilder("x", event.TypeCustom, event.SourceNone).Build()
	rewritten := e.WithData(variant.NewEventData().PutBool("expanded", true))

	assert.False(t, e.HasData())
	assert.True(t, rewritten.Data().Bool("expanded", false))
}

func TestResponseBuilder(t *testing.T) {
	req := event.NewBuilder("get", event.TypeIdentity, event.SourceRequestIdentity).ExpectResponse().Build()
	require.NotEmpty(t, req.ResponsePairID())
	assert.Empty(t, req.PairID())

	resp := event.NewResponseBuilder(req, "got", event.TypeIdentity, event.SourceResponseIdentity).Build()
	assert.Equal(t, req.ResponsePairID(), resp.PairID())

	orphan := event.NewResponseBuilder(nil, "got", event.TypeIdentity, event.SourceResponseIdentity).Build()
	assert.Empty(t, orphan.PairID())
}

func TestTypeAndSourceOf(t *testing.T) {
	assert.Equal(t, event.TypeHub, event.TypeOf(" HUB "))
	assert.Equal(t, event.SourceBooted, event.SourceOf("Booted"))
	assert.Equal(t, event.Type("com.example.custom"), event.TypeOf("com.example.Custom"))

	assert.True(t, event.TypeWildcard.Matches(event.TypeAnalytics))
	assert.True(t, event.TypeAnalytics.Matches(event.TypeAnalytics))
	assert.False(t, event.TypeAnalytics.Matches(event.TypeHub))
	assert.True(t, event.SourceWildcard.Matches(event.SourceOS))
	assert.False(t, event.SourceOS.Matches(event.SourceNone))
}

func TestSentinels(t *testing.T) {
	assert.True(t, event.SharedStateOldest.IsSentinel())
	assert.True(t, event.SharedStateNewest.IsSentinel())

	var seq event.Sequencer
	_, ok := seq.Assign(event.SharedStateNewest)
	assert.False(t, ok)
}

func TestSequencer_AssignOnce(t *testing.T) {
	var seq event.Sequencer
	e := event.NewBuilder("x", event.TypeCustom, event.SourceNone).Build()

	assert.Equal(t, int32(1), seq.Peek())
	n, ok := seq.Assign(e)
	require.True(t, ok)
	assert.Equal(t, int32(1), n)
	assert.Equal(t, int32(1), e.Number())

	n, ok = seq.Assign(e)
	assert.False(t, ok)
	assert.Equal(t, int32(1), n)
	assert.Equal(t, int32(1), seq.Last())
	assert.Equal(t, int32(2), seq.Peek())

	_, ok = seq.Assign(nil)
	assert.False(t, ok)
}

func TestSequencer_Carry(t *testing.T) {
	var seq event.Sequencer
	original := event.NewBuilder("x", event.TypeCustom, event.SourceNone).Build()
	seq.Assign(original)

	replacement := original.Copy()
	assert.Equal(t, original.Number(), seq.Carry(original, replacement))

	other := event.NewBuilder("y", event.TypeCustom, event.SourceNone).Build()
	seq.Assign(other)
	assert.Equal(t, other.Number(), seq.Carry(original, other), "numbered events are not restamped")
}

func TestSequencer_ConcurrentAssignIsUnique(t *testing.T) {
	var seq event.Sequencer
	const n = 200
	numbers := make(chan int32, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e := event.NewBuilder("x", event.TypeCustom, event.SourceNone).Build()
			num, _ := seq.Assign(e)
			numbers <- num
		}()
	}
	wg.Wait()
	close(numbers)

	seen := make(map[int32]bool)
	for num := range numbers {
		assert.False(t, seen[num], "duplicate number %d", num)
		seen[num] = true
	}
	assert.Len(t, seen, n)
	assert.Equal(t, int32(n), seq.Last())
}
