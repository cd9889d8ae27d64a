package cuckoo

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/dchest/siphash"
	"github.com/spaolacci/murmur3"
)

// AlgorithmID names a Hasher implementation. The numeric values are part of
// a filter's serialized form and must stay stable across versions.
type AlgorithmID uint8

const (
	Murmur3_32 AlgorithmID = iota
	Murmur3_128
	SHA256
	SipHash24
	XXHash64
)

func (a AlgorithmID) String() string {
	switch a {
	case Murmur3_32:
		return "murmur3_32"
	case Murmur3_128:
		return "murmur3_128"
	case SHA256:
		return "sha256"
	case SipHash24:
		return "siphash24"
	case XXHash64:
		return "xxhash64"
	default:
		return "unknown"
	}
}

// HashCode is the result of one salted Hasher call. Width reports the bit
// width the algorithm natively produces (32, 64, or >=128). Primary and
// Secondary hold up to two independent 64-bit words: for 32- and 64-bit
// hashes, Primary alone carries the combined tag+index material (see
// IndexTagCalc.derive); for >=128-bit hashes, Primary is the first 8-byte
// segment (tag) and Secondary the next 8-byte segment (index), per
// IndexTagCalc's disjoint-segment rule.
type HashCode struct {
	Width     int
	Primary   uint64
	Secondary uint64
}

// Hasher maps an item, together with a filter's two persisted salts and an
// integer rehash counter, to a HashCode. Implementations must be pure
// functions of their inputs: IndexTagCalc.Generate calls a Hasher more than
// once per item while resolving a zero tag, and a deserialized filter must
// reproduce byte-identical hash codes from its persisted salts.
type Hasher interface {
	ID() AlgorithmID
	Width() int
	Hash(item []byte, salt1, salt2 uint64, rehash uint64) HashCode
}

// NewHasher constructs the Hasher for a stable algorithm identifier.
func NewHasher(id AlgorithmID) (Hasher, error) {
	switch id {
	case Murmur3_32:
		return murmur3_32Hasher{}, nil
	case Murmur3_128:
		return murmur3_128Hasher{}, nil
	case SHA256:
		return sha256Hasher{}, nil
	case SipHash24:
		return sipHash24Hasher{}, nil
	case XXHash64:
		return xxHash64Hasher{}, nil
	default:
		return nil, configErrorf("hashAlgorithm", "unknown algorithm id %d", id)
	}
}

// salted folds a filter's two persisted salts and the zero-tag rehash
// counter into the bytes actually handed to the underlying hash primitive.
// The SHA256 and XXHash64 hashers use it; the Murmur3 and SipHash24 hashers
// fold the salts and counter into their native seeds or keys instead.
func salted(item []byte, salt1, salt2, rehash uint64) []byte {
	buf := make([]byte, 24+len(item))
	binary.LittleEndian.PutUint64(buf[0:8], salt1)
	binary.LittleEndian.PutUint64(buf[8:16], salt2)
	binary.LittleEndian.PutUint64(buf[16:24], rehash)
	copy(buf[24:], item)
	return buf
}

type murmur3_32Hasher struct{}

func (murmur3_32Hasher) ID() AlgorithmID { return Murmur3_32 }
func (murmur3_32Hasher) Width() int      { return 32 }

func (murmur3_32Hasher) Hash(item []byte, salt1, salt2, rehash uint64) HashCode {
	seed := uint32(salt1) ^ uint32(salt1>>32) ^ uint32(salt2) ^ uint32(salt2>>32) ^ uint32(rehash)
	h := murmur3.New32WithSeed(seed)
	h.Write(item) //nolint:errcheck // hash.Hash.Write never errors
	return HashCode{Width: 32, Primary: uint64(h.Sum32())}
}

type murmur3_128Hasher struct{}

func (murmur3_128Hasher) ID() AlgorithmID { return Murmur3_128 }
func (murmur3_128Hasher) Width() int      { return 128 }

func (murmur3_128Hasher) Hash(item []byte, salt1, salt2, rehash uint64) HashCode {
	seed1 := uint32(salt1) ^ uint32(rehash)
	seed2 := uint32(salt2) ^ uint32(rehash>>32)
	h := murmur3.New128WithSeed(seed1, seed2)
	h.Write(item) //nolint:errcheck
	p, s := h.Sum128()
	return HashCode{Width: 128, Primary: p, Secondary: s}
}

type sha256Hasher struct{}

func (sha256Hasher) ID() AlgorithmID { return SHA256 }
func (sha256Hasher) Width() int      { return 256 }

func (sha256Hasher) Hash(item []byte, salt1, salt2, rehash uint64) HashCode {
	sum := sha256.Sum256(salted(item, salt1, salt2, rehash))
	return HashCode{
		Width:     256,
		Primary:   binary.LittleEndian.Uint64(sum[0:8]),
		Secondary: binary.LittleEndian.Uint64(sum[8:16]),
	}
}

type sipHash24Hasher struct{}

func (sipHash24Hasher) ID() AlgorithmID { return SipHash24 }
func (sipHash24Hasher) Width() int      { return 64 }

func (sipHash24Hasher) Hash(item []byte, salt1, salt2, rehash uint64) HashCode {
	var prefix [8]byte
	binary.LittleEndian.PutUint64(prefix[:], rehash)
	msg := make([]byte, 0, 8+len(item))
	msg = append(msg, prefix[:]...)
	msg = append(msg, item...)
	h := siphash.Hash(salt1, salt2, msg)
	return HashCode{Width: 64, Primary: h}
}

type xxHash64Hasher struct{}

func (xxHash64Hasher) ID() AlgorithmID { return XXHash64 }
func (xxHash64Hasher) Width() int      { return 64 }

func (xxHash64Hasher) Hash(item []byte, salt1, salt2, rehash uint64) HashCode {
	h := xxhash.Sum64(salted(item, salt1, salt2, rehash))
	return HashCode{Width: 64, Primary: h}
}
