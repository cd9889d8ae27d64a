package cuckoo

import (
	"reflect"
	"sync"
)

// segmentedLockerAddr gives a stable, comparable address for a locker's
// backing array, used only to pick a total order between two distinct
// Filter instances in Equals so it can lock both without risking an
// AB-BA deadlock against a concurrent reverse comparison.
func segmentedLockerAddr(l *segmentedBucketLocker) uintptr {
	return reflect.ValueOf(l.segments).Pointer()
}

// segmentedBucketLocker is an array of S = 2*expectedConcurrency read-write
// locks; bucket b is protected by segment b mod S. Every multi-bucket
// acquisition locks the numerically lower segment index first, which is
// the deadlock-freedom obligation spec.md §5 places on implementers: as
// long as every caller in the package obeys it (and the victim lock is
// always taken before any segment lock when both are needed), no cycle can
// form.
type segmentedBucketLocker struct {
	segments []sync.RWMutex
	mask     uint64 // len(segments)-1; len(segments) is a power of two
}

func newSegmentedBucketLocker(expectedConcurrency int) *segmentedBucketLocker {
	n := 2 * expectedConcurrency
	return &segmentedBucketLocker{
		segments: make([]sync.RWMutex, n),
		mask:     uint64(n - 1),
	}
}

func (l *segmentedBucketLocker) segmentOf(bucket uint64) uint64 {
	return bucket & l.mask
}

func (l *segmentedBucketLocker) lockBucketsWrite(b1, b2 uint64) {
	s1, s2 := l.segmentOf(b1), l.segmentOf(b2)
	if s1 == s2 {
		l.segments[s1].Lock()
		return
	}
	if s1 > s2 {
		s1, s2 = s2, s1
	}
	l.segments[s1].Lock()
	l.segments[s2].Lock()
}

func (l *segmentedBucketLocker) unlockBucketsWrite(b1, b2 uint64) {
	s1, s2 := l.segmentOf(b1), l.segmentOf(b2)
	if s1 == s2 {
		l.segments[s1].Unlock()
		return
	}
	l.segments[s1].Unlock()
	l.segments[s2].Unlock()
}

func (l *segmentedBucketLocker) lockBucketsRead(b1, b2 uint64) {
	s1, s2 := l.segmentOf(b1), l.segmentOf(b2)
	if s1 == s2 {
		l.segments[s1].RLock()
		return
	}
	if s1 > s2 {
		s1, s2 = s2, s1
	}
	l.segments[s1].RLock()
	l.segments[s2].RLock()
}

func (l *segmentedBucketLocker) unlockBucketsRead(b1, b2 uint64) {
	s1, s2 := l.segmentOf(b1), l.segmentOf(b2)
	if s1 == s2 {
		l.segments[s1].RUnlock()
		return
	}
	l.segments[s1].RUnlock()
	l.segments[s2].RUnlock()
}

func (l *segmentedBucketLocker) lockSingleWrite(b uint64) {
	l.segments[l.segmentOf(b)].Lock()
}

func (l *segmentedBucketLocker) unlockSingleWrite(b uint64) {
	l.segments[l.segmentOf(b)].Unlock()
}

func (l *segmentedBucketLocker) lockSingleRead(b uint64) {
	l.segments[l.segmentOf(b)].RLock()
}

func (l *segmentedBucketLocker) unlockSingleRead(b uint64) {
	l.segments[l.segmentOf(b)].RUnlock()
}

// lockAllWrite/unlockAllWrite and lockAllRead/unlockAllRead acquire/release
// every segment in ascending index order. The read pair is what the
// operations documented to take a consistent whole-table snapshot (Equals,
// Copy, Hash, Snapshot) use: it is O(segment count) and blocks every writer
// for its duration.
func (l *segmentedBucketLocker) lockAllWrite() {
	for i := range l.segments {
		l.segments[i].Lock()
	}
}

func (l *segmentedBucketLocker) unlockAllWrite() {
	for i := range l.segments {
		l.segments[i].Unlock()
	}
}

func (l *segmentedBucketLocker) lockAllRead() {
	for i := range l.segments {
		l.segments[i].RLock()
	}
}

func (l *segmentedBucketLocker) unlockAllRead() {
	for i := range l.segments {
		l.segments[i].RUnlock()
	}
}
