package cuckoo

// BucketSize is the fixed number of fingerprint slots per bucket.
const BucketSize = 4

// InsertAttempts bounds the eviction (kick) cascade run by Put once both
// candidate buckets for an item are full.
const InsertAttempts = 500

// targetLoadFactor is the load factor the table geometry is sized against.
const targetLoadFactor = 0.955

// altIndexConstant is the MurmurHash3 x64 finalizer constant used to turn a
// bucket index into its cuckoo partner; see IndexTagCalc.AltIndex.
const altIndexConstant uint64 = 0xc4ceb9fe1a85ec53

// maxZeroTagRehashAttempts bounds the salted-rehash loop IndexTagCalc.Generate
// runs when the first hash produces a zero (reserved "empty slot") tag.
// Exceeding it means the Hasher is broken, not that the table is full.
const maxZeroTagRehashAttempts = 100

// defaultExpectedConcurrency is used by Builder when the caller does not
// specify one.
const defaultExpectedConcurrency = 16

// minTagBits and maxTagBits bound the derived fingerprint width.
const (
	minTagBits = 5
	maxTagBits = 48
)
