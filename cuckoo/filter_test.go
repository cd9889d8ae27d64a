package cuckoo

import (
	"encoding/binary"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func itemFor(i uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], i)
	return b[:]
}

// Scenario 1: no false negatives across a bulk insert.
func TestNoFalseNegatives(t *testing.T) {
	f, err := NewBuilder(130000).WithFalsePositiveRate(0.01).WithAlgorithm(Murmur3_32).Build()
	require.NoError(t, err)

	const n = 100000
	for i := uint64(0); i < n; i++ {
		require.True(t, f.Put(itemFor(i)), "put %d should succeed", i)
	}
	for i := uint64(0); i < n; i++ {
		require.True(t, f.MightContain(itemFor(i)), "missing item %d (false negative)", i)
	}
}

// Scenario 2: the duplicate ceiling — the same item can be inserted at
// most 2*BucketSize+1 = 9 times.
func TestDuplicateCeiling(t *testing.T) {
	f, err := NewBuilder(130000).WithFalsePositiveRate(0.01).Build()
	require.NoError(t, err)

	item := itemFor(42)
	for i := 0; i < 9; i++ {
		require.Truef(t, f.Put(item), "insertion %d of 9 should succeed", i+1)
	}
	require.False(t, f.Put(item), "10th insertion must fail")
	require.Equal(t, 9, f.ApproximateCount(item))

	for i := 0; i < 9; i++ {
		require.True(t, f.Delete(item))
	}
	require.Equal(t, 0, f.ApproximateCount(item))
	require.False(t, f.MightContain(item))
}

func TestDeleteFromEmptyFilterReturnsFalse(t *testing.T) {
	f, err := NewBuilder(1000).Build()
	require.NoError(t, err)

	require.False(t, f.Delete(itemFor(1)))
	require.Equal(t, int64(0), f.GetCount())
}

func TestPutMightContainDelete(t *testing.T) {
	f, err := NewBuilder(1000).Build()
	require.NoError(t, err)

	item := []byte("hello-cuckoo")
	require.False(t, f.MightContain(item))
	require.True(t, f.Put(item))
	require.True(t, f.MightContain(item))
	require.True(t, f.Delete(item))
	require.False(t, f.MightContain(item))
}

func TestLoadFactorSustainsHighFillBeforeFirstFailure(t *testing.T) {
	const maxKeys = 200000
	f, err := NewBuilder(maxKeys).WithFalsePositiveRate(0.01).Build()
	require.NoError(t, err)

	inserted := uint64(0)
	for i := uint64(0); ; i++ {
		if !f.Put(itemFor(i)) {
			break
		}
		inserted++
		if inserted > f.GetActualCapacity() {
			t.Fatal("filter accepted more items than its capacity without a single failure")
		}
	}
	require.Greater(t, f.GetLoadFactor(), 0.90)
}

// Scenario 6: false-delete rate bound.
func TestFalseDeleteRateBound(t *testing.T) {
	f, err := NewBuilder(150000).WithFalsePositiveRate(0.01).Build()
	require.NoError(t, err)

	const inserted = 100000
	for i := uint64(0); i < inserted; i++ {
		require.True(t, f.Put(itemFor(i)))
	}

	falseDeletes := 0
	const probes = 10000
	for i := uint64(inserted); i < inserted+probes; i++ {
		if f.Delete(itemFor(i)) {
			falseDeletes++
		}
	}

	rate := float64(falseDeletes) / float64(probes)
	require.Lessf(t, rate, 0.02, "false-delete rate %v exceeds 2%%", rate)
}

func TestConcurrentSaturation(t *testing.T) {
	const maxKeys = 200000
	const concurrency = 16
	f, err := NewBuilder(maxKeys).WithExpectedConcurrency(concurrency).Build()
	require.NoError(t, err)

	perGoroutine := uint64(maxKeys) * 8 / 10 / concurrency
	var wg sync.WaitGroup
	successes := make([]int64, concurrency)

	for g := 0; g < concurrency; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			base := uint64(g) * perGoroutine
			var ok int64
			for i := uint64(0); i < perGoroutine; i++ {
				if f.Put(itemFor(base + i)) {
					ok++
				}
			}
			successes[g] = ok
		}(g)
	}
	wg.Wait()

	var total int64
	for _, s := range successes {
		total += s
	}
	require.Equal(t, total, f.GetCount())

	for g := 0; g < concurrency; g++ {
		base := uint64(g) * perGoroutine
		for i := uint64(0); i < perGoroutine; i++ {
			require.True(t, f.MightContain(itemFor(base+i)))
		}
	}
}

func TestApproximateCountNeverUndercounts(t *testing.T) {
	f, err := NewBuilder(1000).Build()
	require.NoError(t, err)

	item := itemFor(7)
	trueCount := 0
	for i := 0; i < 9; i++ {
		if f.Put(item) {
			trueCount++
		}
		approx := f.ApproximateCount(item)
		require.GreaterOrEqual(t, approx, trueCount)
		require.LessOrEqual(t, approx, 9)
	}
}

func TestCountInvariantMatchesNonZeroSlotsPlusVictim(t *testing.T) {
	f, err := NewBuilder(2000).Build()
	require.NoError(t, err)

	for i := uint64(0); i < 1500; i++ {
		f.Put(itemFor(i))
	}

	_, _, _, occupied := f.victim.snapshot()
	expected := f.table.NonZeroSlots()
	if occupied {
		expected++
	}
	require.Equal(t, int64(expected), f.GetCount())
}

func TestCopyIsIndependent(t *testing.T) {
	f, err := NewBuilder(1000).Build()
	require.NoError(t, err)
	require.True(t, f.Put(itemFor(1)))

	cp := f.Copy()
	require.True(t, cp.MightContain(itemFor(1)))
	require.True(t, f.Equals(cp))

	require.True(t, f.Put(itemFor(2)))
	require.False(t, cp.MightContain(itemFor(2)), "copy must not observe later mutations to the original")
	require.False(t, f.Equals(cp))
}

func TestEqualsIsReflexiveAndDetectsDifference(t *testing.T) {
	a, err := NewBuilder(1000).Build()
	require.NoError(t, err)
	b, err := NewBuilder(1000).Build()
	require.NoError(t, err)

	require.True(t, a.Equals(a))
	require.True(t, a.Equals(b)) // both empty, same geometry

	a.Put(itemFor(1))
	require.False(t, a.Equals(b))
}

func TestSnapshotRoundTrip(t *testing.T) {
	f, err := NewBuilder(50000).WithFalsePositiveRate(0.01).Build()
	require.NoError(t, err)

	const n = 30000
	for i := uint64(0); i < n; i++ {
		f.Put(itemFor(i))
	}

	data, err := f.Marshal()
	require.NoError(t, err)

	restored, err := Unmarshal(data)
	require.NoError(t, err)

	require.True(t, f.Equals(restored))
	for i := uint64(0); i < n; i++ {
		require.Equal(t, f.MightContain(itemFor(i)), restored.MightContain(itemFor(i)))
	}
}

func TestBuilderProducesUsableFilterAcrossFppRange(t *testing.T) {
	for _, fpp := range []float64{0.001, 0.01, 0.05, 0.08} {
		t.Run(fmt.Sprintf("fpp=%v", fpp), func(t *testing.T) {
			f, err := NewBuilder(10000).WithFalsePositiveRate(fpp).Build()
			require.NoError(t, err)
			require.True(t, f.Put([]byte("x")))
			require.True(t, f.MightContain([]byte("x")))
		})
	}
}
