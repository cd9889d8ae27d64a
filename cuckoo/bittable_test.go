package cuckoo

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBitTableInsertFindDelete(t *testing.T) {
	table := newBitTable(16, 12)

	require.True(t, table.InsertToBucket(3, 42))
	require.True(t, table.FindTag(3, 9, 42))
	require.False(t, table.FindTag(3, 9, 7))

	require.True(t, table.DeleteFromBucket(3, 42))
	require.False(t, table.FindTag(3, 9, 42))
	require.False(t, table.DeleteFromBucket(3, 42))
}

func TestBitTableBucketFillsAndRejects(t *testing.T) {
	table := newBitTable(4, 10)

	for i, tag := range []uint64{1, 2, 3, 4} {
		require.Truef(t, table.InsertToBucket(0, tag), "slot %d should have room", i)
	}
	require.False(t, table.InsertToBucket(0, 5), "bucket should be full")
	require.Equal(t, 1, table.CountTag(0, 1, 2))
}

func TestBitTableCountTagAcrossTwoBuckets(t *testing.T) {
	table := newBitTable(8, 12)
	require.True(t, table.InsertToBucket(1, 99))
	require.True(t, table.InsertToBucket(2, 99))
	require.True(t, table.InsertToBucket(2, 99))
	require.Equal(t, 3, table.CountTag(1, 2, 99))
	require.Equal(t, 0, table.CountTag(1, 2, 100))
}

func TestBitTablePackingAtWideTagBits(t *testing.T) {
	// tagBits=48 forces slot boundaries to straddle 64-bit words for half
	// of the slot positions; this exercises readBits/writeBits' two-word path.
	table := newBitTable(4, 48)
	const tag = uint64(0xABCDEF123456) // fits in 48 bits, non-zero

	for b := uint64(0); b < 4; b++ {
		for p := 0; p < BucketSize; p++ {
			require.True(t, table.InsertToBucket(b, tag+uint64(p)))
		}
	}
	for b := uint64(0); b < 4; b++ {
		for p := 0; p < BucketSize; p++ {
			require.Equal(t, tag+uint64(p), table.ReadTag(b, p))
		}
	}
}

func TestBitTableCloneIsIndependent(t *testing.T) {
	table := newBitTable(8, 12)
	require.True(t, table.InsertToBucket(0, 5))

	clone := table.clone()
	require.True(t, clone.FindTag(0, 0, 5))

	require.True(t, table.DeleteFromBucket(0, 5))
	require.False(t, table.FindTag(0, 0, 5))
	require.True(t, clone.FindTag(0, 0, 5), "clone must not observe mutations to the original")
}

func TestBitTableNonZeroSlots(t *testing.T) {
	table := newBitTable(4, 12)
	require.Equal(t, uint64(0), table.NonZeroSlots())
	table.InsertToBucket(0, 1)
	table.InsertToBucket(2, 2)
	table.InsertToBucket(2, 3)
	require.Equal(t, uint64(3), table.NonZeroSlots())
}
