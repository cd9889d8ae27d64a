// Package cuckoo implements a thread-safe, serializable cuckoo filter: a
// probabilistic approximate-membership structure that supports insertion,
// deletion and approximate counting in addition to membership queries,
// under true concurrent access from many goroutines.
//
// The table is bit-packed, fixed at construction (no resizing), and
// protected by an array of segment-level read-write locks so unrelated
// buckets can be mutated in parallel. A single victim slot absorbs the
// one orphaned fingerprint an eviction cascade can leave behind, which is
// what keeps the filter's no-false-negative guarantee even when buckets
// saturate.
package cuckoo
