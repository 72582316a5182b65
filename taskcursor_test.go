// taskcursor_test.go
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

import "testing"

func TestTaskCursorWalksEveryTaskOnce(t *testing.T) {
	assert := newAsserter(t)

	layout, err := newSplitLayout(64, 0.1)
	assert(err == nil, "newSplitLayout: %v", err)

	c := newTaskCursor(layout, 3)
	assert(c.isFirst(), "cursor should start at the first task")

	seen := make(map[[2]int]bool)
	count := 0
	for !c.isEnd() {
		key := [2]int{c.currentLevel(), int(c.currentIndex())}
		assert(!seen[key], "task (%d,%d) visited twice", key[0], key[1])
		seen[key] = true
		assert(c.seedEnd() >= c.seedStart(), "seedEnd before seedStart at %v", key)
		assert(c.taskSize() > 0, "zero task size at %v", key)
		count++
		c.next()
	}

	want := 0
	for level := 0; level < layout.levels; level++ {
		want += int(layout.tasks(level))
	}
	assert(count == want, "visited %d tasks, want %d", count, want)
}

func TestTaskCursorNextPreviousInverse(t *testing.T) {
	assert := newAsserter(t)

	layout, err := newSplitLayout(16, 0.1)
	assert(err == nil, "newSplitLayout: %v", err)

	c := newTaskCursor(layout, 0)
	for i := 0; i < 5; i++ {
		c.next()
	}
	level, index := c.currentLevel(), c.currentIndex()
	c.previous()
	c.next()
	assert(c.currentLevel() == level && c.currentIndex() == index,
		"next/previous not inverse: got (%d,%d), want (%d,%d)",
		c.currentLevel(), c.currentIndex(), level, index)
}

func TestLevelwiseCursorAddressingDisjoint(t *testing.T) {
	assert := newAsserter(t)

	layout, err := newSplitLayout(8, 0.1)
	assert(err == nil, "newSplitLayout: %v", err)

	nbuckets := uint64(6)
	for level := 0; level < layout.levels; level++ {
		c := newLevelwiseCursor(layout, level, nbuckets)
		prevEnd := uint64(0)
		for !c.isEnd() {
			assert(c.seedStart() >= prevEnd, "level %d: task overlaps previous at bucket %d idx %d",
				level, c.bucket(), c.indexInBucket())
			prevEnd = c.seedEnd()
			c.next()
		}
	}
}
