// engine_levelwise.go -- level-major construction order across all
// buckets at once, trading per-bucket locality for a shared,
// decorrelated seed search at each level.
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

// maxLevelRootSeedRetries mirrors maxRootSeedRetries, but scoped to a
// single level's search instead of a single bucket's tree: spec.md's
// levelwise variant restarts the whole level, not the whole structure,
// when backtracking runs out of tasks.
const maxLevelRootSeedRetries = uint64(1) << 63

// levelwiseEngine builds the same splitting trees consensusEngine
// does, but processes an entire level across every bucket before
// moving to the next level, using one bit store per level instead of
// one region per bucket. This mirrors the "related levelwise cursor"
// construction order: it can be friendlier to a cache-limited search
// when buckets are numerous and small, at the cost of needing all
// buckets' key lists live in memory simultaneously.
type levelwiseEngine struct {
	layout   *splitLayout
	nbuckets uint64

	// perLevel[level] holds the seeds for every bucket's task at that
	// level, packed by levelwiseCursor addressing.
	perLevel []*bitStore

	// retrySeed[level] is the number of times this level's search had
	// to restart with a bumped decorrelation constant before
	// succeeding (see searchLevel). Almost always 0; kept per level
	// (O(log k) entries, not O(nbuckets)) so query can reconstruct the
	// exact bias construction settled on.
	retrySeed []uint64
}

// newLevelwiseEngine allocates one bit store per level, wide enough
// to hold every bucket's tasks at that level.
func newLevelwiseEngine(layout *splitLayout, nbuckets uint64) *levelwiseEngine {
	e := &levelwiseEngine{
		layout:    layout,
		nbuckets:  nbuckets,
		perLevel:  make([]*bitStore, layout.levels),
		retrySeed: make([]uint64, layout.levels),
	}
	for level := 0; level < layout.levels; level++ {
		bits := layout.microBitsForSplit[level] * nbuckets * layout.tasks(level) / microBitsPerBit
		e.perLevel[level] = newBitStore(rootSeedBits + bits)
	}
	return e
}

// construct builds every bucket's tree, level by level. buckets[b] is
// the accepted key list for bucket b (length <= layout.k).
func (e *levelwiseEngine) construct(buckets [][]uint64) error {
	// cur[taskIdx] holds, for every (bucket, index) pair at the
	// current level in levelwiseCursor order, the keys currently
	// assigned there. Level 0 starts from each bucket's full accepted
	// list.
	cur := make([][]uint64, e.nbuckets)
	copy(cur, buckets)

	for level := 0; level < e.layout.levels; level++ {
		next, err := e.searchLevel(level, cur, buckets)
		if err != nil {
			return err
		}
		cur = next
	}
	return nil
}

// searchLevel runs spec.md's levelwise search for one level: an
// iterative walk across every task at 'level' (bucket-major,
// index-minor, per levelwiseCursor), backtracking across task and
// bucket boundaries on exhaustion exactly as consensusEngine.search
// does within a single bucket. Crossing out of the level's very first
// task means this attempt is dead; the decorrelation bias for the
// level is bumped and the whole level is searched afresh, up to
// maxLevelRootSeedRetries times.
func (e *levelwiseEngine) searchLevel(level int, cur [][]uint64, buckets [][]uint64) ([][]uint64, error) {
	layout := e.layout
	tasksPerBucket := layout.tasks(level)
	totalTasks := e.nbuckets * tasksPerBucket
	store := e.perLevel[level]

	taskKeys := make([][]uint64, totalTasks)
	targets := make([]int, totalTasks)
	for taskIdx := uint64(0); taskIdx < totalTasks; taskIdx++ {
		b := taskIdx / tasksPerBucket
		t := taskIdx % tasksPerBucket
		live := len(buckets[b])
		lo := t * layout.splitSize(level)
		mid := lo + layout.splitSize(level)/2
		taskKeys[taskIdx] = cur[taskIdx]
		targets[taskIdx] = liveInRange(uint64(live), lo, mid)
	}

	for retry := uint64(0); retry < maxLevelRootSeedRetries; retry++ {
		bias := levelwiseStartSeed(level) + retry
		next := make([][]uint64, e.nbuckets*layout.tasks(level+1))

		c := newLevelwiseCursor(layout, level, e.nbuckets)
		ok := true
		for !c.isEnd() {
			taskIdx := c.taskIdx
			keys := taskKeys[taskIdx]
			target := targets[taskIdx]

			pEnd := rootSeedBits + c.seedEnd()
			width := c.seedWidth()
			mask := c.seedMask()
			seed := store.readAt(pEnd)
			maxSeed := seed | mask

			found := false
			for {
				if goesLeftCount(keys, bias+seed) == target {
					found = true
					break
				}
				if seed == maxSeed {
					break
				}
				seed++
			}

			if found {
				store.writeTo(pEnd, seed)
				left, right := splitByPredicate(keys, bias+seed)
				next[taskIdx*2] = left
				next[taskIdx*2+1] = right
				c.next()
				continue
			}

			store.setField(pEnd, width, 0)
			for {
				if c.isFirst() {
					ok = false
					break
				}
				c.previous()
				pEnd = rootSeedBits + c.seedEnd()
				width = c.seedWidth()
				mask = c.seedMask()
				seed = store.readAt(pEnd)
				if seed&mask != mask {
					break
				}
				store.setField(pEnd, width, 0)
			}
			if !ok {
				break
			}
			store.writeTo(pEnd, seed+1)
		}

		if ok {
			e.retrySeed[level] = retry
			return next, nil
		}
	}
	return nil, ErrConstructionFailed
}

// query descends bucket b's tree, level by level, through the
// per-level bit stores.
func (e *levelwiseEngine) query(bucket uint64, key uint64) uint64 {
	index := uint64(0)
	for level := 0; level < e.layout.levels; level++ {
		tasksHere := e.layout.tasks(level)
		taskIdx := bucket*tasksHere + index
		c := &levelwiseCursor{layout: e.layout, level: level, nbuckets: e.nbuckets, taskIdx: taskIdx}
		pEnd := rootSeedBits + c.seedEnd()
		seed := e.perLevel[level].readAt(pEnd)
		bias := levelwiseStartSeed(level) + e.retrySeed[level]
		if goesLeft(key, bias+seed) {
			index = index * 2
		} else {
			index = index*2 + 1
		}
	}
	return index
}
