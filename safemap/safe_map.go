// Package safemap provides a generic map guarded by a single mutex. Besides
// plain loads and stores it offers check-and-set operations that run as one
// critical section, and versioned snapshots that reflect a single point in
// time.
package safemap

import "sync"

// SafeMap is a concurrent map that is safe for use by multiple goroutines.
// Every mutation bumps a version counter inside the same critical section, so
// a snapshot and its version always agree.
//
// SafeMap must not be copied after first use.
type SafeMap[K comparable, V any] struct {
	mu      sync.RWMutex
	m       map[K]V
	version uint64
}

// NewSafeMap returns an empty SafeMap ready for use.
//
// Returns:
//   - A pointer to a new SafeMap[K, V]
func NewSafeMap[K comparable, V any]() *SafeMap[K, V] {
	return &SafeMap[K, V]{m: make(map[K]V)}
}

// Store sets the value for key k, overwriting any existing value.
//
// Parameters:
//   - k: The key to store
//   - v: The value to associate with k
func (m *SafeMap[K, V]) Store(k K, v V) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.m[k] = v
	m.version++
}

// Load returns the value for key k and whether it was present.
//
// Parameters:
//   - k: The key to look up
//
// Returns:
//   - The value associated with k, or the zero value of V if not found
//   - true if the key was present, false otherwise
func (m *SafeMap[K, V]) Load(k K) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.m[k]
	return v, ok
}

// LoadOrStore returns the existing value for k if present. Otherwise it stores
// v. The check and the store happen atomically.
//
// Parameters:
//   - k: The key to look up or store
//   - v: The value to store when k is absent
//
// Returns:
//   - The value now associated with k
//   - true if the value was already present, false if v was stored
func (m *SafeMap[K, V]) LoadOrStore(k K, v V) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.m[k]; ok {
		return existing, true
	}

	m.m[k] = v
	m.version++
	return v, false
}

// Delete removes the entry for key k. Deleting a missing key is a no-op and
// does not change the version.
//
// Parameters:
//   - k: The key to delete
func (m *SafeMap[K, V]) Delete(k K) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.m[k]; ok {
		delete(m.m, k)
		m.version++
	}
}

// DeleteFunc removes the entry for k only if fn approves its current value.
// fn runs while the map is locked and must not call back into the map.
//
// Parameters:
//   - k: The key to delete
//   - fn: Predicate called with the current value of k
//
// Returns:
//   - true if the entry existed and was removed
func (m *SafeMap[K, V]) DeleteFunc(k K, fn func(v V) bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.m[k]
	if !ok || !fn(v) {
		return false
	}

	delete(m.m, k)
	m.version++
	return true
}

// Has reports whether key k is present in the map.
func (m *SafeMap[K, V]) Has(k K) bool {
	_, ok := m.Load(k)
	return ok
}

// Len returns the number of entries in the map.
func (m *SafeMap[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.m)
}

// Version returns the mutation counter.
func (m *SafeMap[K, V]) Version() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.version
}

// Snapshot returns a copy of the map together with the version it was taken
// at.
//
// Returns:
//   - A new map holding every entry
//   - The version matching that content
func (m *SafeMap[K, V]) Snapshot() (map[K]V, uint64) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[K]V, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}

	return out, m.version
}

// Range calls f for each entry of a snapshot of the map. f may modify the map;
// such changes are not seen by the ongoing iteration. Iteration stops when f
// returns false.
//
// Parameters:
//   - f: Function called for each entry; return false to stop iteration
func (m *SafeMap[K, V]) Range(f func(k K, v V) bool) {
	snapshot, _ := m.Snapshot()
	for k, v := range snapshot {
		if !f(k, v) {
			return
		}
	}
}
