package cuckoo

import "sync"

// victimSlot is the single-element cache that absorbs the one orphaned
// fingerprint an eviction cascade can fail to place. At most one victim
// may exist at any time (spec.md §3, §4.3): Put refuses outright rather
// than creating a second one.
//
// victimSlot is a plain value type owned directly by Filter — the original
// Java engine this design is descended from models it as an inner class
// holding a reference back to the outer filter purely so its helper
// methods could reach the filter's hasher; in Go that dependency is just
// a method on Filter (Filter.tryReinsertVictim reaches the bucket locker
// and table through its receiver), so the victim itself carries no
// back-reference.
type victimSlot struct {
	mu       sync.RWMutex
	i1, i2   uint64
	tag      uint64
	occupied bool
}

// tryWriteIfClear acquires the write lock only if the victim is currently
// empty, returning true with the lock held on success. This (and its
// write-if-set counterpart) lets callers avoid holding the write lock just
// to inspect a boolean that rarely changes: they read-check first and only
// escalate to the write lock, then re-verify, when the cheap check looks
// promising.
func (v *victimSlot) tryWriteIfClear() bool {
	v.mu.RLock()
	clear := !v.occupied
	v.mu.RUnlock()
	if !clear {
		return false
	}
	v.mu.Lock()
	if v.occupied {
		v.mu.Unlock()
		return false
	}
	return true
}

// tryWriteIfSet is the symmetric helper: it escalates to the write lock
// only if the victim currently holds an orphan.
func (v *victimSlot) tryWriteIfSet() bool {
	v.mu.RLock()
	set := v.occupied
	v.mu.RUnlock()
	if !set {
		return false
	}
	v.mu.Lock()
	if !v.occupied {
		v.mu.Unlock()
		return false
	}
	return true
}

// set and clear assume the caller already holds the write lock.
func (v *victimSlot) set(i1, i2, tag uint64) {
	v.i1, v.i2, v.tag, v.occupied = i1, i2, tag, true
}

func (v *victimSlot) clearLocked() {
	v.i1, v.i2, v.tag, v.occupied = 0, 0, 0, false
}

// snapshot takes a read-locked copy of the victim's current state.
func (v *victimSlot) snapshot() (i1, i2, tag uint64, occupied bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.i1, v.i2, v.tag, v.occupied
}
