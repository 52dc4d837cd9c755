package cohort

import (
	"fmt"
	"unicode/utf16"

	"github.com/spaolacci/murmur3"
)

// Buckets is the resolution of the partitioning: identities map to one of
// Buckets slots before being normalized into [0, 1).
const Buckets = 10000

// Hasher maps a caller identity onto a bucket in [0, Buckets).
//
// salt is the experiment id. Strategies may ignore it, in which case a caller
// lands in the same bucket for every experiment.
type Hasher interface {
	Bucket(identity, salt string) int
	Name() string
}

// RollingHasher is the polynomial rolling hash h = h*31 + c over the UTF-16
// code units of the identity, in 32-bit signed arithmetic. It is unsalted.
//
// Every persisted-free assignment depends on this exact function; changing
// it re-buckets callers who have not been assigned yet.
type RollingHasher struct{}

// Name returns the strategy name.
func (RollingHasher) Name() string { return "rolling" }

// Bucket returns |hash(identity)| mod Buckets.
func (RollingHasher) Bucket(identity, _ string) int {
	return int(absMod(Hash32(identity), Buckets))
}

// Hash32 returns the raw 32-bit rolling hash of s.
func Hash32(s string) int32 {
	var h int32
	for _, unit := range utf16.Encode([]rune(s)) {
		h = h*31 + int32(unit)
	}
	return h
}

// absMod widens before negating so math.MinInt32 has an absolute value.
func absMod(h int32, m int64) int64 {
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return v % m
}

// Murmur3Hasher buckets identity:salt with 32-bit Murmur3. Salting by
// experiment makes a caller's buckets independent across experiments.
type Murmur3Hasher struct{}

// Name returns the strategy name.
func (Murmur3Hasher) Name() string { return "murmur3" }

// Bucket returns murmur3(identity:salt) mod Buckets.
func (Murmur3Hasher) Bucket(identity, salt string) int {
	return int(murmur3.Sum32([]byte(identity+":"+salt)) % Buckets)
}

// NewHasher resolves a strategy name ("rolling" or "murmur3").
func NewHasher(strategy string) (Hasher, error) {
	switch strategy {
	case "", "rolling":
		return RollingHasher{}, nil
	case "murmur3":
		return Murmur3Hasher{}, nil
	default:
		return nil, fmt.Errorf("unknown hash strategy %q", strategy)
	}
}
