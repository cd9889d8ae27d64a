package cuckoo

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAltIndexInvolution(t *testing.T) {
	hasher, err := NewHasher(Murmur3_32)
	require.NoError(t, err)

	calc, err := newIndexTagCalc(hasher, 2048, 14, 0xdeadbeef, 0xfeedface)
	require.NoError(t, err)

	var item [8]byte
	for i := uint64(0); i < 10000; i++ {
		binary.LittleEndian.PutUint64(item[:], i)
		b, tag := calc.Generate(item[:])
		require.NotZero(t, tag)

		alt := calc.AltIndex(b, tag)
		back := calc.AltIndex(alt, tag)
		require.Equal(t, b, back, "altIndex must be its own inverse for tag %d", tag)
	}
}

func TestNewIndexTagCalcRejectsNonPowerOfTwoBuckets(t *testing.T) {
	hasher, err := NewHasher(XXHash64)
	require.NoError(t, err)

	_, err = newIndexTagCalc(hasher, 100, 12, 1, 2)
	require.Error(t, err)
}

func TestNewIndexTagCalcRejectsTooNarrowHash(t *testing.T) {
	hasher, err := NewHasher(Murmur3_32)
	require.NoError(t, err)

	// indexBitsUsed(32) + tagBits(16) > 32
	_, err = newIndexTagCalc(hasher, 1<<32, 16, 1, 2)
	require.Error(t, err)
}

func TestGenerateRetainsFirstBucketIndexAcrossRehash(t *testing.T) {
	hasher, err := NewHasher(XXHash64)
	require.NoError(t, err)
	calc, err := newIndexTagCalc(hasher, 1024, 12, 1, 2)
	require.NoError(t, err)

	for i := uint64(0); i < 5000; i++ {
		var item [8]byte
		binary.LittleEndian.PutUint64(item[:], i)
		b, tag := calc.Generate(item[:])
		require.NotZero(t, tag)
		require.Less(t, b, calc.NumBuckets())

		firstIndex, _ := calc.derive(hasher.Hash(item[:], 1, 2, 0))
		require.Equal(t, firstIndex, b)
	}
}
