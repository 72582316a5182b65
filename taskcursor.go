// taskcursor.go -- ordered walk over a bucket's splitting tasks
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

// rootSeedBits is the width of the scratch word every bucket reserves
// immediately before its own splitting tree. construct() writes a
// fresh candidate there on every root-seed retry; the tree's own first
// task inherits it as context the same way any two adjacent tasks'
// 64-bit windows already overlap and bleed into each other.
const rootSeedBits = 64

// taskCursor walks one bucket's splitting tasks in level-major,
// index-minor order: level 0's single task, then level 1's two tasks,
// and so on down to the leaves. The same cursor runs forward during
// the search (advancing on success) and backward during backtracking
// (retreating on exhaustion), and is also used, repositioned with
// setLevel at each level, to descend during a query.
//
// A cursor is scoped to one bucket: 'bucket' selects which bucket's
// region of the shared bit store it addresses. Each bucket owns
// rootSeedBits+layout.treeBits bits: its own root-seed scratch word,
// followed by its splitting tree.
type taskCursor struct {
	layout *splitLayout
	bucket uint64

	level int
	index uint64
}

// newTaskCursor returns a cursor positioned at the root task (level 0,
// index 0) of 'bucket'.
func newTaskCursor(layout *splitLayout, bucket uint64) *taskCursor {
	return &taskCursor{layout: layout, bucket: bucket}
}

// treeBase returns the bit position at which this bucket's tree region
// begins -- equivalently, the exclusive right edge of its root-seed
// scratch word, since that word occupies the rootSeedBits immediately
// before it.
func (c *taskCursor) treeBase() uint64 {
	return c.bucket*(rootSeedBits+c.layout.treeBits) + rootSeedBits
}

// rootSeedPos returns the bit position construct() writes a fresh
// root-seed candidate to on each retry: the exclusive right edge of
// this bucket's own scratch word, i.e. exactly treeBase().
func (c *taskCursor) rootSeedPos() uint64 {
	return c.treeBase()
}

// currentLevel returns the cursor's current level.
func (c *taskCursor) currentLevel() int { return c.level }

// currentIndex returns the cursor's current index within its level.
func (c *taskCursor) currentIndex() uint64 { return c.index }

// taskSize returns the number of keys the current task owns.
func (c *taskCursor) taskSize() uint64 { return c.layout.splitSize(c.level) }

// seedStart, seedEnd and seedWidth report the current task's window
// in the shared bit store, offset for this cursor's bucket.
func (c *taskCursor) seedStart() uint64 {
	return c.treeBase() + c.layout.seedStart(c.level, c.index)
}

func (c *taskCursor) seedEnd() uint64 {
	return c.treeBase() + c.layout.seedEnd(c.level, c.index)
}

func (c *taskCursor) seedWidth() uint64 {
	return c.layout.seedWidth(c.level, c.index)
}

// seedMask returns a mask covering exactly seedWidth() low bits.
func (c *taskCursor) seedMask() uint64 {
	w := c.seedWidth()
	if w >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << w) - 1
}

// isFirst reports whether the cursor is at the very first task
// (level 0, index 0) of its bucket.
func (c *taskCursor) isFirst() bool {
	return c.level == 0 && c.index == 0
}

// isEnd reports whether the cursor has advanced past the last leaf
// task, i.e. the whole tree for this bucket is complete.
func (c *taskCursor) isEnd() bool {
	return c.level >= c.layout.levels
}

// next advances the cursor to the following task in level-major,
// index-minor order. Calling next() at isEnd() is a programmer error.
func (c *taskCursor) next() {
	c.index++
	if c.index == c.layout.tasks(c.level) {
		c.index = 0
		c.level++
	}
}

// previous retreats the cursor to the preceding task. Calling
// previous() at (level 0, index 0) is a programmer error.
func (c *taskCursor) previous() {
	if c.index == 0 {
		c.level--
		c.index = c.layout.tasks(c.level) - 1
		return
	}
	c.index--
}

// setLevel repositions the cursor at task 'index' of 'level'. Used
// when a query already knows which task a child is and needs to jump
// there directly.
func (c *taskCursor) setLevel(level int, index uint64) {
	c.level = level
	c.index = index
}

// startSeedTable holds per-level additive constants used by the
// levelwise construction order to decorrelate the seed search at
// different levels that would otherwise search the same seed sequence
// in lock-step. Values are arbitrary well-mixed 64-bit constants; only
// their being distinct and reproducible matters.
var startSeedTable = [19]uint64{
	0x106393c187cae21a, 0x6453cec3f7376937, 0x643c718b92117543,
	0x8508c9a4b1c6a4b3, 0x2653d76a17c2a04d, 0x1751064fdc7f8b6c,
	0xf80c62fbcc46cbe1, 0x1f6fa9c25de9adcd, 0x71f0470dfe27c98d,
	0x92d5b0e6b6cffe0d, 0x3e94efc0b0f8d1b6, 0x646b02b7b31f9a8f,
	0xa4a5b8f5b0e0f2f7, 0x5c7be31f6f7b1c5f, 0x9e0c6b1a2e5f0d7a,
	0xb1f2a3c4d5e6f708, 0xc3d4e5f607182930, 0xd5e6f708192a3b4c,
	0xe7f8091a2b3c4d5e,
}

// levelwiseStartSeed returns the decorrelation constant for a given
// level, extending startSeedTable with a deterministic derivation for
// levels beyond the table (buckets larger than 2^19 keys).
func levelwiseStartSeed(level int) uint64 {
	if level < len(startSeedTable) {
		return startSeedTable[level]
	}
	return remix(uint64(level) + 0xc0ffee)
}

// levelwiseCursor walks every task at a single level across ALL
// buckets at once, in index-minor order: bucket 0's tasks at this
// level, then bucket 1's, and so on. The levelwise construction order
// (engine_levelwise.go) uses one of these per level, backed by its own
// bit store, instead of the per-bucket tree region taskCursor uses.
type levelwiseCursor struct {
	layout   *splitLayout
	level    int
	nbuckets uint64

	// taskIdx counts tasks at this level across every bucket:
	// taskIdx = bucket*tasks(level) + indexWithinBucket.
	taskIdx uint64
}

// newLevelwiseCursor returns a cursor over every task at 'level',
// across 'nbuckets' buckets, positioned at the first task.
func newLevelwiseCursor(layout *splitLayout, level int, nbuckets uint64) *levelwiseCursor {
	return &levelwiseCursor{layout: layout, level: level, nbuckets: nbuckets}
}

func (c *levelwiseCursor) bucket() uint64 {
	return c.taskIdx / c.layout.tasks(c.level)
}

func (c *levelwiseCursor) indexInBucket() uint64 {
	return c.taskIdx % c.layout.tasks(c.level)
}

// seedStart, seedEnd, seedWidth address this level's dedicated bit
// store, where each level starts its own layout at bit 0 (no
// contribution from other levels, unlike taskCursor's per-bucket
// tree region).
func (c *levelwiseCursor) seedStart() uint64 {
	return c.layout.microBitsForSplit[c.level] * c.taskIdx / microBitsPerBit
}

func (c *levelwiseCursor) seedEnd() uint64 {
	return c.layout.microBitsForSplit[c.level] * (c.taskIdx + 1) / microBitsPerBit
}

func (c *levelwiseCursor) seedWidth() uint64 {
	return c.seedEnd() - c.seedStart()
}

func (c *levelwiseCursor) seedMask() uint64 {
	w := c.seedWidth()
	if w >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << w) - 1
}

func (c *levelwiseCursor) isFirst() bool { return c.taskIdx == 0 }

func (c *levelwiseCursor) isEnd() bool {
	return c.taskIdx >= c.nbuckets*c.layout.tasks(c.level)
}

func (c *levelwiseCursor) next() { c.taskIdx++ }

func (c *levelwiseCursor) previous() { c.taskIdx-- }
