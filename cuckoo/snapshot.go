package cuckoo

import (
	"bytes"
	"encoding/gob"
	"io"
)

// snapshotState is the serialized form spec.md §6 names: everything
// needed to fully reconstruct a Filter, and nothing else — in particular
// no lock state. A deserialized filter rebuilds its segment locks from
// ExpectedConcurrency rather than persisting them, since locks aren't
// meaningful state outside the process that holds them.
type snapshotState struct {
	AlgorithmID         AlgorithmID
	Salt1, Salt2        uint64
	NumBuckets          uint64
	TagBits             uint
	ExpectedConcurrency int
	Words               []uint64
	Count               int64
	VictimOccupied      bool
	VictimI1, VictimI2  uint64
	VictimTag           uint64
}

// Snapshot writes a complete, self-describing encoding of f to w. It takes
// the same whole-table, whole-victim lock as Equals/Copy while it copies
// the state, and is therefore O(table size) and blocks writers meanwhile.
func (f *Filter) Snapshot(w io.Writer) error {
	f.victim.mu.RLock()
	f.locker.lockAllRead()
	words := make([]uint64, len(f.table.words))
	copy(words, f.table.words)
	numBuckets := f.calc.NumBuckets()
	tagBits := f.calc.TagBits()
	salt1, salt2 := f.calc.salt1, f.calc.salt2
	vi1, vi2, vtag, occupied := f.victim.i1, f.victim.i2, f.victim.tag, f.victim.occupied
	count := f.GetCount()
	f.locker.unlockAllRead()
	f.victim.mu.RUnlock()

	state := snapshotState{
		AlgorithmID:         f.hasherID,
		Salt1:               salt1,
		Salt2:               salt2,
		NumBuckets:          numBuckets,
		TagBits:             tagBits,
		ExpectedConcurrency: f.expectedConcurrency,
		Words:               words,
		Count:               count,
		VictimOccupied:      occupied,
		VictimI1:            vi1,
		VictimI2:            vi2,
		VictimTag:           vtag,
	}
	return gob.NewEncoder(w).Encode(&state)
}

// Load reconstructs a Filter from bytes written by Snapshot. The returned
// filter rebuilds its segment locks from the persisted
// ExpectedConcurrency and is immediately usable; it answers every query
// the original filter would, given the same persisted salts and table
// contents.
func Load(r io.Reader) (*Filter, error) {
	var state snapshotState
	if err := gob.NewDecoder(r).Decode(&state); err != nil {
		return nil, err
	}

	hasher, err := NewHasher(state.AlgorithmID)
	if err != nil {
		return nil, err
	}
	calc, err := newIndexTagCalc(hasher, state.NumBuckets, state.TagBits, state.Salt1, state.Salt2)
	if err != nil {
		return nil, err
	}

	table := &BitTable{
		words:      state.Words,
		tagBits:    state.TagBits,
		tagMask:    maskBits(state.TagBits),
		numBuckets: state.NumBuckets,
	}

	f := &Filter{
		calc:                calc,
		table:                table,
		locker:               newSegmentedBucketLocker(state.ExpectedConcurrency),
		hasherID:             state.AlgorithmID,
		expectedConcurrency:  state.ExpectedConcurrency,
		count:                state.Count,
	}
	if state.VictimOccupied {
		f.victim.set(state.VictimI1, state.VictimI2, state.VictimTag)
	}
	return f, nil
}

// Marshal is a convenience wrapper around Snapshot that returns the
// encoded bytes directly.
func (f *Filter) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	if err := f.Snapshot(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal is a convenience wrapper around Load for in-memory bytes.
func Unmarshal(data []byte) (*Filter, error) {
	return Load(bytes.NewReader(data))
}
