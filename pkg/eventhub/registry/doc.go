// Package registry provides a generic thread-safe registry that remembers
// insertion order.
//
// The hub keeps its modules here: registration order decides the order in
// which processors run and in which modules are torn down.
//
// # Basic Usage
//
//	r := registry.New[string, *Entry]()
//	if !r.Register("configuration", entry) {
//	    // already registered
//	}
//	for _, e := range r.Values() {
//	    // oldest registration first
//	}
//
// # Snapshots
//
// Keys, Values and Range work on a snapshot taken under a read lock, so
// callbacks may register or delete entries without deadlocking.
package registry
