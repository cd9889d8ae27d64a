package cuckoo

import (
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// Filter is a thread-safe, serializable cuckoo filter. Use Builder to
// construct one; the zero value is not usable.
//
// Filter exclusively owns its bit table, its segment locks, its victim
// slot, and its item counter — nothing is shared across Filter instances,
// so Copy always produces a fully independent filter.
type Filter struct {
	calc                *IndexTagCalc
	table               *BitTable
	locker              *segmentedBucketLocker
	victim              victimSlot
	count               int64 // atomic; see GetCount for its consistency caveat
	hasherID            AlgorithmID
	expectedConcurrency int
}

// Put inserts item into the filter. It returns true iff the item is now
// considered stored — including when it merely extended the duplicate
// count of an item already present. It returns false only when both
// candidate buckets are full and a victim already exists: the filter
// refuses to create a second one (spec.md §4.3's at-most-once-victim
// rule), which callers should treat as an ordinary, expected "filter this
// saturated" signal rather than an error.
func (f *Filter) Put(item []byte) bool {
	i1, tag := f.calc.Generate(item)
	i2 := f.calc.AltIndex(i1, tag)
	if f.calc.AltIndex(i2, tag) != i1 {
		assertionFailure("altIndex is not an involution for bucket %d, tag %d", i1, tag)
	}

	f.locker.lockBucketsWrite(i1, i2)
	placed := f.table.InsertToBucket(i1, tag) || f.table.InsertToBucket(i2, tag)
	f.locker.unlockBucketsWrite(i1, i2)
	if placed {
		atomic.AddInt64(&f.count, 1)
		return true
	}

	if !f.victim.tryWriteIfClear() {
		return false
	}
	f.victim.set(i1, i2, tag)
	f.runEvictionCascade()
	f.victim.mu.Unlock()

	atomic.AddInt64(&f.count, 1)
	return true
}

// runEvictionCascade performs the random-walk kick loop described in
// spec.md §4.3. The caller must hold the victim's write lock on entry and
// release it on return; the victim always ends the call either cleared
// (the cascade found a home for every displaced tag) or still occupied
// (the cascade ran out of attempts, leaving one orphan behind — the item
// being inserted is still logically present, just parked in the victim).
func (f *Filter) runEvictionCascade() {
	for attempt := 0; attempt < InsertAttempts; attempt++ {
		cur, curTag := f.victim.i2, f.victim.tag

		f.locker.lockSingleWrite(cur)
		rng := borrowFastRand()
		oldTag := f.table.SwapRandomTagInBucket(cur, curTag, rng)
		returnFastRand(rng)
		f.locker.unlockSingleWrite(cur)

		alt := f.calc.AltIndex(cur, oldTag)

		f.locker.lockSingleWrite(alt)
		inserted := f.table.InsertToBucket(alt, oldTag)
		f.locker.unlockSingleWrite(alt)

		if inserted {
			f.victim.clearLocked()
			return
		}
		f.victim.set(cur, alt, oldTag)
	}
}

// MightContain reports whether item may have been inserted. False means
// definitely absent; true means "possibly present" (it may be a false
// positive, at a rate governed by the filter's tagBits).
func (f *Filter) MightContain(item []byte) bool {
	i1, tag := f.calc.Generate(item)
	i2 := f.calc.AltIndex(i1, tag)

	f.locker.lockBucketsRead(i1, i2)
	found := f.table.FindTag(i1, i2, tag)
	f.locker.unlockBucketsRead(i1, i2)
	if found {
		return true
	}

	vi1, vi2, vtag, occupied := f.victim.snapshot()
	return occupied && vtag == tag && (i1 == vi1 || i1 == vi2)
}

// Delete removes one matching fingerprint for item, if present. Deleting
// an item that was never inserted can legitimately succeed (at a rate
// near the false-positive probability) by removing an identical
// fingerprint that belongs to a different item; this is documented,
// expected false-delete behavior, not a bug.
func (f *Filter) Delete(item []byte) bool {
	i1, tag := f.calc.Generate(item)
	i2 := f.calc.AltIndex(i1, tag)

	f.locker.lockBucketsWrite(i1, i2)
	deleted := f.table.DeleteFromBucket(i1, tag)
	if !deleted {
		deleted = f.table.DeleteFromBucket(i2, tag)
	}
	f.locker.unlockBucketsWrite(i1, i2)

	if deleted {
		atomic.AddInt64(&f.count, -1)
		f.tryReinsertVictim()
		return true
	}

	if !f.victim.tryWriteIfSet() {
		return false
	}
	defer f.victim.mu.Unlock()

	if f.victim.tag == tag && (i1 == f.victim.i1 || i1 == f.victim.i2) {
		f.victim.clearLocked()
		atomic.AddInt64(&f.count, -1)
		return true
	}
	return false
}

// tryReinsertVictim makes a best-effort attempt to move the current victim
// (if any) back into the table, freeing the victim slot for future
// cascades. It is called after every successful Delete, per spec.md §4.3.
// Lock order: victim first, then its two candidate buckets — the same
// global order the Put eviction cascade uses, so the two never deadlock
// against each other.
func (f *Filter) tryReinsertVictim() {
	if !f.victim.tryWriteIfSet() {
		return
	}
	defer f.victim.mu.Unlock()

	i1, i2, tag := f.victim.i1, f.victim.i2, f.victim.tag
	f.locker.lockBucketsWrite(i1, i2)
	reinserted := f.table.InsertToBucket(i1, tag) || f.table.InsertToBucket(i2, tag)
	f.locker.unlockBucketsWrite(i1, i2)

	if reinserted {
		f.victim.clearLocked()
	}
}

// ApproximateCount returns an upper bound (never a true undercount) on how
// many times item is currently stored: the number of matching slots across
// its two candidate buckets, plus one more if the victim also matches.
// The result is always in [0, 2*BucketSize+1].
func (f *Filter) ApproximateCount(item []byte) int {
	i1, tag := f.calc.Generate(item)
	i2 := f.calc.AltIndex(i1, tag)

	f.locker.lockBucketsRead(i1, i2)
	count := f.table.CountTag(i1, i2, tag)
	f.locker.unlockBucketsRead(i1, i2)

	vi1, vi2, vtag, occupied := f.victim.snapshot()
	if occupied && vtag == tag && (i1 == vi1 || i1 == vi2) {
		count++
	}
	return count
}

// GetCount returns the number of items currently considered stored. Under
// concurrent mutation this is best-effort: the delete-then-reinsert-victim
// path is not linearizable with a concurrent Put observing count (spec.md
// §9), so a reader racing a writer may see a transient value that neither
// the pre- nor post-mutation state would produce. It is accurate at any
// point where no mutation is in flight.
func (f *Filter) GetCount() int64 {
	return atomic.LoadInt64(&f.count)
}

// GetLoadFactor returns count / (BucketSize * numBuckets); it may exceed
// 1.0 transiently while a victim is occupied.
func (f *Filter) GetLoadFactor() float64 {
	return float64(f.GetCount()) / float64(f.GetActualCapacity())
}

// GetActualCapacity returns BucketSize * numBuckets.
func (f *Filter) GetActualCapacity() uint64 {
	return BucketSize * f.calc.NumBuckets()
}

// GetStorageSize returns the bit-array length, in bits, of the underlying
// table (excluding the victim slot and bookkeeping fields).
func (f *Filter) GetStorageSize() uint64 {
	return f.table.StorageBits()
}

// NumBuckets returns the fixed bucket count.
func (f *Filter) NumBuckets() uint64 { return f.calc.NumBuckets() }

// TagBits returns the fingerprint width, in bits.
func (f *Filter) TagBits() uint { return f.calc.TagBits() }

// AlgorithmID returns the hash algorithm this filter was built with.
func (f *Filter) AlgorithmID() AlgorithmID { return f.hasherID }

// Copy returns a deep, independent copy of f. Like Equals, it takes a
// consistent whole-table snapshot by locking every segment and the
// victim, so it is O(table size) and blocks all writers for its duration.
func (f *Filter) Copy() *Filter {
	f.victim.mu.RLock()
	defer f.victim.mu.RUnlock()
	f.locker.lockAllRead()
	defer f.locker.unlockAllRead()
	vi1, vi2, vtag, occupied := f.victim.i1, f.victim.i2, f.victim.tag, f.victim.occupied

	calcCopy := *f.calc
	cp := &Filter{
		calc:                &calcCopy,
		table:                f.table.clone(),
		locker:               newSegmentedBucketLocker(f.expectedConcurrency),
		hasherID:             f.hasherID,
		expectedConcurrency:  f.expectedConcurrency,
		count:                atomic.LoadInt64(&f.count),
	}
	if occupied {
		cp.victim.set(vi1, vi2, vtag)
	}
	return cp
}

// Equals reports whether f and other have structurally identical state:
// same configuration, same table contents, same victim. Both filters are
// locked (the victim, then all segments) for the comparison's duration,
// in ascending memory-address order of their locker arrays so that two
// goroutines calling a.Equals(b) and b.Equals(a) concurrently cannot
// deadlock against each other.
func (f *Filter) Equals(other *Filter) bool {
	if f == other {
		return true
	}
	if other == nil {
		return false
	}

	first, second := f, other
	if segmentedLockerAddr(f.locker) > segmentedLockerAddr(other.locker) {
		first, second = other, f
	}

	first.victim.mu.RLock()
	defer first.victim.mu.RUnlock()
	first.locker.lockAllRead()
	defer first.locker.unlockAllRead()
	second.victim.mu.RLock()
	defer second.victim.mu.RUnlock()
	second.locker.lockAllRead()
	defer second.locker.unlockAllRead()

	if f.calc.NumBuckets() != other.calc.NumBuckets() ||
		f.calc.TagBits() != other.calc.TagBits() ||
		f.hasherID != other.hasherID ||
		atomic.LoadInt64(&f.count) != atomic.LoadInt64(&other.count) {
		return false
	}

	fi1, fi2, ftag, focc := f.victim.i1, f.victim.i2, f.victim.tag, f.victim.occupied
	oi1, oi2, otag, oocc := other.victim.i1, other.victim.i2, other.victim.tag, other.victim.occupied
	if focc != oocc || (focc && (fi1 != oi1 || fi2 != oi2 || ftag != otag)) {
		return false
	}

	for i := range f.table.words {
		if f.table.words[i] != other.table.words[i] {
			return false
		}
	}
	return true
}

// Hash returns a structural hash consistent with Equals: two equal
// filters always hash equal. Like Equals, it locks the whole table and
// the victim for a consistent snapshot.
func (f *Filter) Hash() uint64 {
	f.victim.mu.RLock()
	defer f.victim.mu.RUnlock()
	f.locker.lockAllRead()
	defer f.locker.unlockAllRead()

	h := xxhash.New()
	var scratch [8]byte
	putUint64(scratch[:], f.calc.NumBuckets())
	h.Write(scratch[:]) //nolint:errcheck
	putUint64(scratch[:], uint64(f.calc.TagBits()))
	h.Write(scratch[:]) //nolint:errcheck
	h.Write([]byte{byte(f.hasherID)}) //nolint:errcheck

	for _, w := range f.table.words {
		putUint64(scratch[:], w)
		h.Write(scratch[:]) //nolint:errcheck
	}

	vi1, vi2, vtag, occ := f.victim.i1, f.victim.i2, f.victim.tag, f.victim.occupied
	if occ {
		putUint64(scratch[:], vi1)
		h.Write(scratch[:]) //nolint:errcheck
		putUint64(scratch[:], vi2)
		h.Write(scratch[:]) //nolint:errcheck
		putUint64(scratch[:], vtag)
		h.Write(scratch[:]) //nolint:errcheck
	}

	return h.Sum64()
}
