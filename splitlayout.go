// splitlayout.go -- pure, deterministic (level, index) -> bit-offset
// mapping for the Consensus splitting tree.
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

import "math"

// optimalBitsForSplit[i] is B(2^i) = log2(2^m / C(m, m/2)), the
// information-theoretic minimum number of bits needed to record which
// of the C(m, m/2) equal splits of m keys was chosen, for m = 2^i.
// Index 0 is an unused placeholder; only indices 1..20 are ever
// queried, bounding bucket sizes at 2^20 keys.
var optimalBitsForSplit = [21]float64{
	0, 1.00000000000000, 1.41503749927884, 1.87071698305503,
	2.34827556689194, 2.83701728740494, 3.33138336299656, 3.82856579982622,
	4.32715694302912, 4.82645250522622, 5.32610028514914, 5.82592417496365,
	6.32583611985253, 6.82579209229467, 7.32577007851546, 7.82575907162581,
	8.32575356818099, 8.82575081645857, 9.32574944059737, 9.82574875266676,
	10.3257484087015,
}

// microBitsPerBit is the fixed-point scale used for all layout
// arithmetic: one "bit" of layout position equals 2^20 micro-bits.
// Keeping split widths in this integer unit avoids the floating-point
// rounding drift that a fresh recomputation of the same quantity
// could otherwise introduce between construction and query.
const microBitsPerBit = 1 << 20

// intLog2 returns floor(log2(x)) for x >= 1.
func intLog2(x int) int {
	n := 0
	for (1 << uint(n+1)) <= x {
		n++
	}
	return n
}

// splitLayout is the pure mapping described in spec.md's SplitLayout:
// for a bucket of 'k' keys and overhead 'epsilon', it determines how
// many bits each splitting-tree node's seed window occupies and where
// that window starts, for every (level, index) pair. It holds no
// mutable state after construction and is shared by every bucket that
// uses the same (k, epsilon) pair.
type splitLayout struct {
	k       int
	epsilon float64
	levels  int // L = log2(k)

	// microBitsForSplit[level] is the (fractional, but fixed-point)
	// number of micro-bits a single split at 'level' costs.
	microBitsForSplit []uint64

	// levelBase[level] is the cumulative micro-bits consumed by every
	// full level before 'level'; levelBase[levels] is the total.
	levelBase []uint64

	// treeBits is the total number of bits a bucket's splitting tree
	// occupies in the bit store.
	treeBits uint64
}

// newSplitLayout computes the layout tables for (k, epsilon). k must
// be a power of two >= 2; epsilon must be > 0.
func newSplitLayout(k int, epsilon float64) (*splitLayout, error) {
	if k < 2 || (k&(k-1)) != 0 {
		return nil, ErrBadK
	}
	if epsilon <= 0 {
		return nil, ErrBadEpsilon
	}

	levels := intLog2(k)
	if levels > 20 {
		return nil, ErrBadK
	}

	microBits := make([]uint64, levels)
	for level := 0; level < levels; level++ {
		logSize := levels - level
		size := float64(uint64(1) << uint(logSize))
		bits := optimalBitsForSplit[logSize] + epsilon/3.4*math.Pow(size, 0.75)
		microBits[level] = uint64(math.Ceil(microBitsPerBit * bits))
	}

	base := make([]uint64, levels+1)
	var acc uint64
	for level := 0; level < levels; level++ {
		base[level] = acc
		acc += microBits[level] * (uint64(1) << uint(level))
	}
	base[levels] = acc

	return &splitLayout{
		k:                 k,
		epsilon:           epsilon,
		levels:            levels,
		microBitsForSplit: microBits,
		levelBase:         base,
		treeBits:          acc / microBitsPerBit,
	}, nil
}

// tasks returns the number of splitting tasks at 'level': 2^level.
func (s *splitLayout) tasks(level int) uint64 {
	return uint64(1) << uint(level)
}

// splitSize returns the number of keys a task at 'level' owns:
// 2^(L-level).
func (s *splitLayout) splitSize(level int) uint64 {
	return uint64(1) << uint(s.levels-level)
}

// seedStart returns the bit offset (within one bucket's tree region)
// at which task (level, index)'s seed window begins.
func (s *splitLayout) seedStart(level int, index uint64) uint64 {
	if level == s.levels {
		return s.levelBase[level] / microBitsPerBit
	}
	return (s.levelBase[level] + s.microBitsForSplit[level]*index) / microBitsPerBit
}

// seedEnd returns the bit offset one past task (level, index)'s seed
// window; it equals the next task's seedStart, wrapping to the first
// task of the next level at a level boundary.
func (s *splitLayout) seedEnd(level int, index uint64) uint64 {
	if index+1 < s.tasks(level) {
		return s.seedStart(level, index+1)
	}
	return s.seedStart(level+1, 0)
}

// seedWidth returns the number of bits in task (level, index)'s window.
func (s *splitLayout) seedWidth(level int, index uint64) uint64 {
	return s.seedEnd(level, index) - s.seedStart(level, index)
}
