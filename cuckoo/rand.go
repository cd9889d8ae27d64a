package cuckoo

import (
	"sync"
	"time"
)

// fastRand is a cheap xorshift generator, adapted from the single-threaded
// fastrand used by the original d-ary bucketized cuckoo hash: every
// SwapRandomTagInBucket call needs a uniform pick over {0, ..., BucketSize-1}
// and nothing more, so a full math/rand.Rand (with its locking or large
// state) would be wasted work on the hot path.
type fastRand struct {
	x uint32
}

func newFastRand() *fastRand {
	seed := uint32(0x49f6428a) ^ uint32(time.Now().UnixNano())
	if seed == 0 {
		seed = 1
	}
	return &fastRand{x: seed}
}

func (r *fastRand) next() uint32 {
	x := r.x
	x ^= x << 13
	x ^= x >> 17
	x ^= x << 5
	r.x = x
	return x
}

// intn returns a uniform value in [0, n).
func (r *fastRand) intn(n int) int {
	return int(r.next()) % n
}

// fastRandPool hands out fastRand instances without requiring real
// goroutine-local storage: each SwapRandomTagInBucket call borrows one for
// the duration of the call, so concurrent evictions never share generator
// state (and never contend on a shared lock the way a single package-level
// math/rand.Rand would).
var fastRandPool = sync.Pool{
	New: func() interface{} { return newFastRand() },
}

func borrowFastRand() *fastRand {
	return fastRandPool.Get().(*fastRand)
}

func returnFastRand(r *fastRand) {
	fastRandPool.Put(r)
}
