// Package presence tracks which users currently hold live connections.
package presence

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// ChangeFunc receives the post-mutation online snapshot and every live
// handle. It runs with the registry lock held and must not block.
type ChangeFunc[H comparable] func(online []uuid.UUID, handles []H)

// Registry maps a user to the set of connection handles they hold.
// A user with no handles has no entry.
type Registry[H comparable] struct {
	mu       sync.Mutex
	users    map[uuid.UUID]map[H]struct{}
	owners   map[H]uuid.UUID
	onChange ChangeFunc[H]
}

func NewRegistry[H comparable](onChange ChangeFunc[H]) *Registry[H] {
	return &Registry[H]{
		users:    make(map[uuid.UUID]map[H]struct{}),
		owners:   make(map[H]uuid.UUID),
		onChange: onChange,
	}
}

// Register adds handle to userID's set. Registering a handle that is
// already known changes nothing and does not notify.
func (r *Registry[H]) Register(userID uuid.UUID, handle H) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.owners[handle]; ok {
		return
	}
	set, ok := r.users[userID]
	if !ok {
		set = make(map[H]struct{})
		r.users[userID] = set
	}
	set[handle] = struct{}{}
	r.owners[handle] = userID

	r.notifyLocked()
}

// Unregister removes handle and drops its user once no handles remain.
// It reports whether anything was removed.
func (r *Registry[H]) Unregister(handle H) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.owners[handle]
	if !ok {
		return false
	}
	delete(r.owners, handle)
	if set, ok := r.users[userID]; ok {
		delete(set, handle)
		if len(set) == 0 {
			delete(r.users, userID)
		}
	}

	r.notifyLocked()
	return true
}

func (r *Registry[H]) IsOnline(userID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.users[userID]
	return ok
}

// ConnectionsOf returns userID's handles in no particular order.
func (r *Registry[H]) ConnectionsOf(userID uuid.UUID) []H {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo.Keys(r.users[userID])
}

// Snapshot returns the online users sorted by their string form.
func (r *Registry[H]) Snapshot() []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// All returns every live handle.
func (r *Registry[H]) All() []H {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo.Keys(r.owners)
}

// Notify invokes the change callback with the current state without
// mutating anything.
func (r *Registry[H]) Notify() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifyLocked()
}

func (r *Registry[H]) snapshotLocked() []uuid.UUID {
	online := lo.Keys(r.users)
	sort.Slice(online, func(i, j int) bool {
		return online[i].String() < online[j].String()
	})
	return online
}

func (r *Registry[H]) notifyLocked() {
	if r.onChange == nil {
		return
	}
	r.onChange(r.snapshotLocked(), lo.Keys(r.owners))
}
