// Package registry maps nicknames to the session currently owning them.
//
// A nickname is owned by at most one session at a time. Claims and releases
// are atomic check-and-set operations so two connections racing for the same
// nickname can never both win, and a session can only release a name it still
// owns.
package registry

import (
	"crypto/rand"
	"sort"
	"strconv"

	"github.com/cyberinferno/hashchat/safemap"
)

// Registry is the shared nickname table. S is the session handle type; it
// must be comparable so a release can check ownership by identity.
type Registry[S comparable] struct {
	id       string
	sessions *safemap.SafeMap[string, S]
}

// Entry is one registered nickname and its session.
type Entry[S comparable] struct {
	Nick    string
	Session S
}

// Snapshot is a point-in-time copy of the registry.
type Snapshot[S comparable] struct {
	// Entries sorted by nickname.
	Entries []Entry[S]
	// Generation of the registry when the snapshot was taken.
	Generation uint64
}

// Nicknames returns the sorted nicknames of the snapshot.
func (s Snapshot[S]) Nicknames() []string {
	names := make([]string, len(s.Entries))
	for i, e := range s.Entries {
		names[i] = e.Nick
	}

	return names
}

// New returns an empty Registry with a random instance id.
func New[S comparable]() *Registry[S] {
	return &Registry[S]{
		id:       rand.Text(),
		sessions: safemap.NewSafeMap[string, S](),
	}
}

// ID returns the instance id. Two registries never share one, even across
// process restarts.
func (r *Registry[S]) ID() string {
	return r.id
}

// TryClaim registers session under nick if nobody holds it.
//
// Parameters:
//   - nick: The nickname to claim
//   - session: The claiming session
//
// Returns:
//   - true if the claim succeeded, false if nick is held by any session
//     (including session itself)
func (r *Registry[S]) TryClaim(nick string, session S) bool {
	_, loaded := r.sessions.LoadOrStore(nick, session)
	return !loaded
}

// Release removes nick only when it is still owned by session. Releasing a
// name owned by someone else, or not registered at all, is a no-op.
//
// Returns:
//   - true if the entry was removed
func (r *Registry[S]) Release(nick string, session S) bool {
	return r.sessions.DeleteFunc(nick, func(owner S) bool {
		return owner == session
	})
}

// IsRegistered reports whether nick is currently held.
func (r *Registry[S]) IsRegistered(nick string) bool {
	return r.sessions.Has(nick)
}

// Lookup returns the session holding nick.
func (r *Registry[S]) Lookup(nick string) (S, bool) {
	return r.sessions.Load(nick)
}

// Len returns the number of registered nicknames.
func (r *Registry[S]) Len() int {
	return r.sessions.Len()
}

// Generation returns a counter bumped by every successful claim or release.
// Equal generations imply equal content.
func (r *Registry[S]) Generation() uint64 {
	return r.sessions.Version()
}

// Revision identifies the registry content globally: the instance id plus the
// generation. Caches shared between processes key on it.
func (r *Registry[S]) Revision() string {
	return r.id + "." + strconv.FormatUint(r.Generation(), 10)
}

// Snapshot returns every entry sorted by nickname together with the
// generation the copy reflects.
func (r *Registry[S]) Snapshot() Snapshot[S] {
	m, gen := r.sessions.Snapshot()

	entries := make([]Entry[S], 0, len(m))
	for nick, s := range m {
		entries = append(entries, Entry[S]{Nick: nick, Session: s})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Nick < entries[j].Nick
	})

	return Snapshot[S]{Entries: entries, Generation: gen}
}
