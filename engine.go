// engine.go -- per-bucket splitting-tree seed search and query
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

// maxRootSeedRetries bounds construct's outer retry loop at spec.md's
// stated ceiling. A handful of retries suffice for any realistic
// bucket; the bound exists only so a genuinely unconstructible input
// terminates instead of spinning forever.
const maxRootSeedRetries = uint64(1) << 63

// consensusEngine builds and queries the splitting-tree seeds for a
// single bucket's accepted key set. Seeds are written into 'store', in
// the region reserved for 'bucket' by 'layout'; live may be smaller
// than layout's k when the bucket's bumped-hash acceptance left some
// of its k slots unfilled -- those trailing slots are simply never
// targeted by the search (see liveInRange).
type consensusEngine struct {
	layout *splitLayout
	store  *bitStore
	bucket uint64
	live   int
}

// liveInRange counts how many of the first 'live' slots of a
// bucket's [0, k) address space fall inside [lo, hi).
func liveInRange(live uint64, lo, hi uint64) int {
	end := hi
	if end > live {
		end = live
	}
	if end < lo {
		end = lo
	}
	return int(end - lo)
}

// goesLeftCount reports how many of 'keys' satisfy goesLeft under 'seed'.
func goesLeftCount(keys []uint64, seed uint64) int {
	n := 0
	for _, k := range keys {
		if goesLeft(k, seed) {
			n++
		}
	}
	return n
}

// construct searches for a complete assignment of per-node seeds that
// routes every key in 'keys' to a distinct leaf in [0, live). Per
// spec.md's root-seed mechanism: each attempt writes a fresh candidate
// into this bucket's own leading scratch word (see taskCursor's
// rootSeedPos), then runs the full splitting-tree search; if that
// search backtracks all the way out of the very first task, this
// attempt is dead and the next root seed is tried.
func (e *consensusEngine) construct(keys []uint64) error {
	if e.live == 0 {
		return nil
	}
	cur := newTaskCursor(e.layout, e.bucket)
	pos := cur.rootSeedPos()
	for rootSeed := uint64(0); rootSeed < maxRootSeedRetries; rootSeed++ {
		e.store.writeTo(pos, rootSeed)
		if e.search(keys) {
			return nil
		}
	}
	return ErrConstructionFailed
}

// search runs one full attempt at this bucket's splitting tree, using
// whatever the bucket's root-seed scratch word currently holds as the
// context the very first task inherits. It implements spec.md §4.4's
// search algorithm directly: an iterative cursor walk, backtracking
// across task boundaries on exhaustion, returning false only when
// backtracking runs out of tasks to retreat into (cursor.isFirst()).
func (e *consensusEngine) search(keys []uint64) bool {
	layout := e.layout

	// frontier[level][index] holds the key list task (level, index)
	// owns. Sibling tasks at a level never depend on each other, only
	// on their parent's already-fixed partition, so retreating into an
	// earlier task at the same level never invalidates frontier[level]
	// -- only frontier[level+1:], which is naturally rebuilt as the
	// search moves forward again.
	frontier := make([][][]uint64, layout.levels+1)
	frontier[0] = [][]uint64{keys}

	cur := newTaskCursor(e.layout, e.bucket)
	for !cur.isEnd() {
		level, index := cur.currentLevel(), cur.currentIndex()
		taskKeys := frontier[level][index]

		lo := index * cur.taskSize()
		mid := lo + cur.taskSize()/2
		target := liveInRange(uint64(e.live), lo, mid)

		pEnd := cur.seedEnd()
		width := cur.seedWidth()
		mask := cur.seedMask()
		seed := e.store.readAt(pEnd)
		maxSeed := seed | mask

		found := false
		for {
			if goesLeftCount(taskKeys, seed) == target {
				found = true
				break
			}
			if seed == maxSeed {
				break
			}
			seed++
		}

		if found {
			e.store.writeTo(pEnd, seed)
			left, right := splitByPredicate(taskKeys, seed)
			setChildren(frontier, level, index, left, right)
			cur.next()
			continue
		}

		// Backtrack: zero this task's own window, then walk back
		// until a previous task still has an untried candidate.
		e.store.setField(pEnd, width, 0)
		for {
			if cur.isFirst() {
				return false
			}
			cur.previous()
			pEnd = cur.seedEnd()
			width = cur.seedWidth()
			mask = cur.seedMask()
			seed = e.store.readAt(pEnd)
			if seed&mask != mask {
				break
			}
			e.store.setField(pEnd, width, 0)
		}
		e.store.writeTo(pEnd, seed+1)
	}
	return true
}

// setChildren records task (level, index)'s partition as the key lists
// its two children in frontier[level+1] own, allocating that level's
// slice on first use.
func setChildren(frontier [][][]uint64, level int, index uint64, left, right []uint64) {
	if frontier[level+1] == nil {
		frontier[level+1] = make([][]uint64, uint64(1)<<uint(level+1))
	}
	frontier[level+1][2*index] = left
	frontier[level+1][2*index+1] = right
}

// splitByPredicate partitions keys by goesLeft under 'seed', without
// disturbing relative order within each half.
func splitByPredicate(keys []uint64, seed uint64) (left, right []uint64) {
	left = make([]uint64, 0, len(keys))
	right = make([]uint64, 0, len(keys))
	for _, k := range keys {
		if goesLeft(k, seed) {
			left = append(left, k)
		} else {
			right = append(right, k)
		}
	}
	return left, right
}

// query descends the completed splitting tree for 'key', returning
// its index in [0, k) for this bucket. The caller must only invoke
// query for keys it knows this bucket accepted; querying any other
// key returns a meaningless leaf. Seeds are read raw (not masked to
// their own field width), matching construct: a task's stored window
// carries both its own decided bits and the neighboring context they
// were chosen against, and goesLeft is evaluated against that whole
// window exactly as construct evaluated it.
func (e *consensusEngine) query(key uint64) uint64 {
	cur := newTaskCursor(e.layout, e.bucket)
	level, index := 0, uint64(0)
	for level < e.layout.levels {
		cur.setLevel(level, index)
		pEnd := cur.seedEnd()
		seed := e.store.readAt(pEnd)
		if goesLeft(key, seed) {
			index = index * 2
		} else {
			index = index*2 + 1
		}
		level++
	}
	return index
}
