// bucketing.go -- bumped k-perfect hash used to split a large key set
// into fixed-size buckets before per-bucket splitting-tree search.
//
// (c) Sudhi Herle 2018
//
// License GPLv2
//
// If you need a commercial license for this work, please contact
// the author.
//
// This software does not come with any express or implied
// warranty; it is provided "as is". No claim  is made to its
// suitability for any purpose.

package consensus

import (
	"math"
	"sort"

	"github.com/hillbig/rsdic"
)

// overloadFactor oversubscribes layer 0's bucket space, per the
// ancestor design's OVERLOAD_FACTOR: hashing into fewer buckets than
// 'nbuckets' concentrates more competition into layer 0, so its
// bumped keys aren't simply everything that would have landed in the
// last few buckets anyway.
const overloadFactor = 0.97

// hashedKey pairs a key with the mixed hash value used to place it in
// the current layer. Layer 1 rehashes the previous layer's mhc (not
// the raw key) to get a decorrelated bucket/priority pair, matching
// BumpedKPerfectHashFunction.h's "hash.mhc = remix(hash.mhc)" rehash.
type hashedKey struct {
	key uint64
	mhc uint64
}

// layerCandidate is one key competing for a slot in its hashed
// bucket, along with the priority that decides who wins when a
// bucket is over-full.
type layerCandidate struct {
	key      uint64
	mhc      uint64
	bucket   uint64
	priority uint32
}

// bucketingPHF assigns each of N keys to one of nbuckets buckets of
// (at most) k slots each, so that every bucket can subsequently be
// handed to a consensusEngine as a fixed-size splitting-tree problem.
// Keys are given two chances to land in a bucket -- an oversubscribed
// layer 0, then a layer 1 rehash over whatever layer 0 bumped, into
// the buckets layer 0 didn't use -- before whatever survives both
// layers is placed in a fallback table.
type bucketingPHF struct {
	k        int
	nbuckets uint64
	n        uint64

	thresholdBits    uint
	thresholdMapping []uint32
	threshold        *intVector // per-bucket, width == thresholdBits
	live             []uint32   // per-bucket accepted-key count, <= k

	fallback map[uint64]uint64 // key -> absolute final index
	free     *rsdic.RSDic      // marks unfilled slots in [0, nbuckets*k)
}

// thresholdBitsFor mirrors THRESHOLD_BITS in the ancestor design:
// enough bits to address a bucket's rank distribution while staying
// far smaller than a full 32-bit priority.
func thresholdBitsFor(k int) uint {
	b := intLog2(k) - 1
	if b < 1 {
		b = 1
	}
	return uint(b)
}

// buildThresholdMapping constructs the compaction table: index 0 maps
// to "accept nothing", the last index maps to "accept everything",
// and the remaining indices are spread across the high end of the
// priority space, where the acceptance cutoff actually lives once a
// bucket is over-full.
func buildThresholdMapping(bits uint) []uint32 {
	rangeSize := uint32(1) << bits
	m := make([]uint32, rangeSize)
	if rangeSize == 1 {
		m[0] = math.MaxUint32
		return m
	}
	m[0] = 0
	last := rangeSize - 1
	m[last] = math.MaxUint32
	if rangeSize == 2 {
		return m
	}
	m[1] = math.MaxUint32 / 3
	if rangeSize == 3 {
		return m
	}

	lo := uint32(math.MaxUint32 - math.MaxUint32/10)
	slots := int(last) - 2 // indices 2 .. last-1
	for j := 0; j < slots; j++ {
		idx := uint32(2 + j)
		if slots == 1 {
			m[idx] = lo
			continue
		}
		frac := float64(j) / float64(slots-1)
		m[idx] = lo + uint32(frac*float64(math.MaxUint32-lo))
	}
	return m
}

// compactUpper returns the smallest mapping index whose mapped value
// is >= v; used to pick an acceptance cutoff that never excludes a
// key that must be kept.
func compactUpper(mapping []uint32, v uint32) uint {
	i := sort.Search(len(mapping), func(i int) bool { return mapping[i] >= v })
	if i == len(mapping) {
		i = len(mapping) - 1
	}
	return uint(i)
}

// layer0BucketCount returns how many of 'nbuckets' buckets layer 0
// hashes into, per overloadFactor. The remaining nbuckets-layer0Count
// buckets are reserved for layer 1's rehash of whatever layer 0
// bumps. Depends only on nbuckets, so construction and query recompute
// it identically without needing to store it.
func layer0BucketCount(nbuckets uint64) uint64 {
	n := uint64(math.Ceil(overloadFactor * float64(nbuckets)))
	if n < 1 {
		n = 1
	}
	if n > nbuckets {
		n = nbuckets
	}
	return n
}

// buildBucketingPHF assigns 'keys' (already verified duplicate-free)
// into buckets of exactly 'k' slots. It returns the structure and,
// separately, the list of accepted keys per bucket in priority order
// -- exactly the input a consensusEngine needs to build that bucket's
// splitting tree.
func buildBucketingPHF(keys []uint64, k int) (*bucketingPHF, [][]uint64, error) {
	n := uint64(len(keys))
	nbuckets := n / uint64(k)
	if nbuckets == 0 {
		nbuckets = 1
	}

	tbits := thresholdBitsFor(k)
	mapping := buildThresholdMapping(tbits)

	bphf := &bucketingPHF{
		k:                k,
		nbuckets:         nbuckets,
		n:                n,
		thresholdBits:    tbits,
		thresholdMapping: mapping,
		threshold:        newIntVector(nbuckets, tbits),
		live:             make([]uint32, nbuckets),
		fallback:         make(map[uint64]uint64),
	}

	buckets := make([][]uint64, nbuckets)
	freeBits := make([]bool, nbuckets*uint64(k))

	layer0Count := layer0BucketCount(nbuckets)
	layer1Count := nbuckets - layer0Count

	layer0 := make([]hashedKey, len(keys))
	for i, key := range keys {
		layer0[i] = hashedKey{key: key, mhc: remix(key)}
	}

	bumped := flushLayer(layer0, 0, layer0Count, k, mapping, tbits, buckets, bphf, freeBits)

	if layer1Count > 0 && len(bumped) > 0 {
		layer1 := make([]hashedKey, len(bumped))
		for i, h := range bumped {
			layer1[i] = hashedKey{key: h.key, mhc: remix(h.mhc)}
		}
		bumped = flushLayer(layer1, layer0Count, layer1Count, k, mapping, tbits, buckets, bphf, freeBits)
	}

	bphf.free = rsdic.New()
	for _, bit := range freeBits {
		bphf.free.PushBack(bit)
	}

	// Whatever survived both layers goes to the fallback table: free
	// slots first (so the on-disk shape stays dense), then the tail
	// past [0, nbuckets*k).
	bucketable := nbuckets * uint64(k)
	nextFree := uint64(0)
	freeTotal := bphf.free.Rank(bucketable, true)
	tail := bucketable
	for _, h := range bumped {
		if nextFree < freeTotal {
			pos := selectFree(bphf.free, nextFree)
			bphf.fallback[h.key] = pos
			nextFree++
		} else {
			bphf.fallback[h.key] = tail
			tail++
		}
	}

	return bphf, buckets, nil
}

// flushLayer hashes 'items' into the 'count' buckets starting at
// 'base', accepting up to k per bucket by priority and bumping the
// rest, exactly as a single-layer bumped hash would over that bucket
// range. It records acceptance into 'buckets'/'bphf'/'freeBits' at the
// bucket's absolute (global) index, and returns everything this layer
// bumped for the next layer (or the fallback table) to handle.
func flushLayer(items []hashedKey, base, count uint64, k int, mapping []uint32, tbits uint,
	buckets [][]uint64, bphf *bucketingPHF, freeBits []bool) []hashedKey {

	if count == 0 {
		return items
	}

	cands := make([]layerCandidate, len(items))
	for i, h := range items {
		b := base + uint64(fastrange32(uint32(h.mhc), uint32(count)))
		cands[i] = layerCandidate{key: h.key, mhc: h.mhc, bucket: b, priority: uint32(h.mhc >> 32)}
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].bucket != cands[j].bucket {
			return cands[i].bucket < cands[j].bucket
		}
		return cands[i].priority < cands[j].priority
	})

	touched := make([]bool, count)
	var bumped []hashedKey

	i := 0
	for i < len(cands) {
		b := cands[i].bucket
		j := i
		for j < len(cands) && cands[j].bucket == b {
			j++
		}
		group := cands[i:j]
		touched[b-base] = true

		var accepted []layerCandidate
		if len(group) <= k {
			accepted = group
			bphf.threshold.Set(b, uint64(tbits2max(tbits)))
		} else {
			kth := group[k-1].priority
			kth1 := group[k].priority
			idx := compactUpper(mapping, kth)
			if mapping[idx] >= kth1 && idx > 0 {
				idx--
			}
			cutoff := mapping[idx]
			for _, c := range group {
				if c.priority <= cutoff && len(accepted) < k {
					accepted = append(accepted, c)
				} else {
					bumped = append(bumped, hashedKey{key: c.key, mhc: c.mhc})
				}
			}
			bphf.threshold.Set(b, uint64(idx))
		}

		keysOnly := make([]uint64, len(accepted))
		for x, c := range accepted {
			keysOnly[x] = c.key
		}
		buckets[b] = keysOnly
		bphf.live[b] = uint32(len(accepted))

		for slot := len(accepted); slot < k; slot++ {
			freeBits[b*uint64(k)+uint64(slot)] = true
		}

		i = j
	}

	// Buckets in this layer's range that drew zero candidates never
	// entered the loop above; mark all k of their slots free.
	for b := uint64(0); b < count; b++ {
		if touched[b] {
			continue
		}
		abs := base + b
		bphf.threshold.Set(abs, uint64(tbits2max(tbits)))
		for slot := 0; slot < k; slot++ {
			freeBits[abs*uint64(k)+uint64(slot)] = true
		}
	}

	return bumped
}

// tbits2max returns the largest representable threshold index for a
// 'bits'-wide field, i.e. the "accept everything" sentinel.
func tbits2max(bits uint) uint64 {
	return uint64(1)<<bits - 1
}

// selectFree returns the absolute bit position of the (rank)'th free
// slot (0-indexed) in the free-position bitvector, by binary search
// over rsdic's rank function -- rsdic exposes Rank but not Select
// directly for this vector construction, so the search does the
// inversion explicitly.
func selectFree(bv *rsdic.RSDic, rank uint64) uint64 {
	lo, hi := uint64(0), bv.Num()
	for lo < hi {
		mid := lo + (hi-lo)/2
		if bv.Rank(mid+1, true) > rank {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

// bucketFor reports which bucket a key was hashed into and whether it
// was accepted there (as opposed to routed to the fallback table). It
// replays the same two-layer search buildBucketingPHF performed: try
// layer 0 first, and only if that bucket's threshold rejects the key,
// rehash into layer 1's bucket range.
func (b *bucketingPHF) bucketFor(key uint64) (bucket uint64, accepted bool) {
	mhc := remix(key)
	layer0Count := layer0BucketCount(b.nbuckets)

	bk := uint64(fastrange32(uint32(mhc), uint32(layer0Count)))
	priority := uint32(mhc >> 32)
	if priority <= b.thresholdMapping[b.threshold.Get(bk)] {
		return bk, true
	}

	layer1Count := b.nbuckets - layer0Count
	if layer1Count == 0 {
		return bk, false
	}

	mhc = remix(mhc)
	bk1 := layer0Count + uint64(fastrange32(uint32(mhc), uint32(layer1Count)))
	priority = uint32(mhc >> 32)
	return bk1, priority <= b.thresholdMapping[b.threshold.Get(bk1)]
}

// liveCount returns the number of accepted keys in 'bucket', i.e. the
// size of the consensusEngine problem for that bucket.
func (b *bucketingPHF) liveCount(bucket uint64) int {
	return int(b.live[bucket])
}

// lookupFallback resolves a key that bucketFor reported as not
// accepted.
func (b *bucketingPHF) lookupFallback(key uint64) (uint64, bool) {
	idx, ok := b.fallback[key]
	return idx, ok
}

// fallbackLen returns the number of keys stored in the fallback table.
func (b *bucketingPHF) fallbackLen() int { return len(b.fallback) }
