package event

import (
	"math"
	"sync"
)

// Sequencer is the single authority for event numbers within one hub.
// Numbers start at 1 and increase by one per assignment.
type Sequencer struct {
	mu   sync.Mutex
	last int32
}

// Assign stamps e with the next number. It returns false, leaving e untouched,
// if e is nil, a sentinel, already numbered, or the sequence is exhausted.
func (s *Sequencer) Assign(e *Event) (int32, bool) {
	if e == nil || e.sentinel {
		return Unnumbered, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.number.Load() != Unnumbered || s.last == math.MaxInt32-1 {
		return e.number.Load(), false
	}
	s.last++
	e.number.Store(s.last)
	return s.last, true
}

// Carry stamps an unnumbered replacement with the number of the event it
// replaces. It returns the replacement's number.
func (s *Sequencer) Carry(from, to *Event) int32 {
	if from == nil || to == nil || to.sentinel {
		return Unnumbered
	}
	to.number.CompareAndSwap(Unnumbered, from.number.Load())
	return to.number.Load()
}

// Peek returns the number the next Assign will use.
func (s *Sequencer) Peek() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last + 1
}

// Last returns the most recently assigned number, or Unnumbered.
func (s *Sequencer) Last() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
