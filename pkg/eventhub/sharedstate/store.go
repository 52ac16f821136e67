package sharedstate

import (
	"fmt"
	"sort"
	"sync"

	hberrors "github.com/randalmurphal/eventhub/pkg/eventhub/errors"
)

// Version is the event number at which a state entry became effective.
type Version = int32

// Errors returned by Store.
var (
	ErrNoStateName       = hberrors.New(hberrors.CodeInvalidArgument+".state_name", "shared state name is empty")
	ErrNegativeVersion   = hberrors.New(hberrors.CodeInvalidArgument+".version", "shared state version is negative")
	ErrVersionExists     = hberrors.New(hberrors.CodeSharedStateVersion+".exists", "shared state version already exists")
	ErrVersionOutOfOrder = hberrors.New(hberrors.CodeSharedStateVersion+".out_of_order", "shared state version is older than the latest")
	ErrVersionNotFound   = hberrors.New(hberrors.CodeSharedStateNotFound, "shared state version not found")
	ErrNotPending        = hberrors.New(hberrors.CodeSharedStateNotPending, "shared state version is not pending")
	ErrLinkOnCreate      = hberrors.New(hberrors.CodeSharedStateDelta, "NEXT and PREV can only update an existing version")
)

type entry struct {
	version Version
	value   Value

	// followNext entries resolve to the entry after them.
	followNext bool
}

type history struct {
	entries []entry
}

// Store holds the version history of every named state. Safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	histories map[string]*history
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{histories: make(map[string]*history)}
}

// Create adds an entry at version. Versions must be created in increasing order.
func (s *Store) Create(name string, version Version, v Value) error {
	if err := validate(name, version); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(name, version, v)
}

// Update replaces the pending entry at version.
func (s *Store) Update(name string, version Version, d Delta) error {
	if err := validate(name, version); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(name, version, d)
}

// CreateOrUpdate updates the entry at version if it exists, else creates it.
// Creating with SameAsNext or SameAsPrev is an error.
func (s *Store) CreateOrUpdate(name string, version Version, d Delta) error {
	if err := validate(name, version); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if h := s.histories[name]; h != nil {
		if _, ok := h.find(version); ok {
			return s.updateLocked(name, version, d)
		}
	}
	v, ok := d.Value()
	if !ok {
		return fmt.Errorf("%w: %s@%d", ErrLinkOnCreate, name, version)
	}
	return s.createLocked(name, version, v)
}

// Get returns the state as of version: the latest entry at or before it,
// or Invalid if there is none.
func (s *Store) Get(name string, version Version) Value {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h := s.histories[name]
	if h == nil {
		return Invalid
	}
	i := sort.Search(len(h.entries), func(i int) bool { return h.entries[i].version > version }) - 1
	if i < 0 {
		return Invalid
	}
	return h.resolve(i)
}

// Oldest returns the first entry regardless of version.
func (s *Store) Oldest(name string) Value {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h := s.histories[name]
	if h == nil || len(h.entries) == 0 {
		return Invalid
	}
	return h.resolve(0)
}

// Newest returns the last entry regardless of version.
func (s *Store) Newest(name string) Value {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h := s.histories[name]
	if h == nil || len(h.entries) == 0 {
		return Invalid
	}
	return h.resolve(len(h.entries) - 1)
}

// Has reports whether any entry of name is concrete or pending.
func (s *Store) Has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h := s.histories[name]
	if h == nil {
		return false
	}
	for i := range h.entries {
		if !h.resolve(i).IsInvalid() {
			return true
		}
	}
	return false
}

// Clear removes every entry of name. It reports whether anything was removed.
func (s *Store) Clear(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.histories[name]
	delete(s.histories, name)
	return ok
}

// Names returns the state names with at least one entry, sorted.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.histories))
	for name := range s.histories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Versions returns the stored versions of name in increasing order.
func (s *Store) Versions(name string) []Version {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h := s.histories[name]
	if h == nil {
		return nil
	}
	out := make([]Version, len(h.entries))
	for i, e := range h.entries {
		out[i] = e.version
	}
	return out
}

func (s *Store) createLocked(name string, version Version, v Value) error {
	h := s.histories[name]
	if h == nil {
		h = &history{}
		s.histories[name] = h
	}
	if n := len(h.entries); n > 0 {
		last := h.entries[n-1].version
		if last == version {
			return fmt.Errorf("%w: %s@%d", ErrVersionExists, name, version)
		}
		if last > version {
			return fmt.Errorf("%w: %s@%d, latest is %d", ErrVersionOutOfOrder, name, version, last)
		}
	}
	h.entries = append(h.entries, entry{version: version, value: v})
	return nil
}

func (s *Store) updateLocked(name string, version Version, d Delta) error {
	h := s.histories[name]
	if h == nil {
		return fmt.Errorf("%w: %s@%d", ErrVersionNotFound, name, version)
	}
	i, ok := h.find(version)
	if !ok {
		return fmt.Errorf("%w: %s@%d", ErrVersionNotFound, name, version)
	}
	target := &h.entries[i]
	if target.followNext || !target.value.IsPending() {
		return fmt.Errorf("%w: %s@%d is %s", ErrNotPending, name, version, h.resolve(i))
	}

	switch d.kind {
	case deltaSameAsNext:
		target.followNext = true
	case deltaSameAsPrev:
		if i == 0 {
			target.value = Invalid
		} else {
			target.value = h.resolve(i - 1)
		}
	default:
		target.value = d.value
	}
	return nil
}

func validate(name string, version Version) error {
	if name == "" {
		return ErrNoStateName
	}
	if version < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeVersion, version)
	}
	return nil
}

func (h *history) find(version Version) (int, bool) {
	i := sort.Search(len(h.entries), func(i int) bool { return h.entries[i].version >= version })
	return i, i < len(h.entries) && h.entries[i].version == version
}

// resolve follows SameAsNext links forward from entry i.
func (h *history) resolve(i int) Value {
	for ; i < len(h.entries); i++ {
		if !h.entries[i].followNext {
			return h.entries[i].value
		}
	}
	return Pending
}
