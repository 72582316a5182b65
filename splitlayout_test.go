// splitlayout_test.go
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

func TestSplitLayoutBoundaryInvariant(t *testing.T) {
	assert := newAsserter(t)

	for _, k := range []int{2, 4, 16, 256, 1024} {
		layout, err := newSplitLayout(k, 0.05)
		assert(err == nil, "newSplitLayout(%d): %v", k, err)

		for level := 0; level < layout.levels; level++ {
			tasks := layout.tasks(level)
			for idx := uint64(0); idx+1 < tasks; idx++ {
				assert(layout.seedEnd(level, idx) == layout.seedStart(level, idx+1),
					"k=%d level=%d idx=%d: seedEnd != next seedStart", k, level, idx)
			}
			last := tasks - 1
			assert(layout.seedEnd(level, last) == layout.seedStart(level+1, 0),
				"k=%d level=%d: level boundary mismatch", k, level)
		}
		assert(layout.seedStart(layout.levels, 0) == layout.treeBits,
			"k=%d: treeBits mismatch: %d != %d", k, layout.seedStart(layout.levels, 0), layout.treeBits)
	}
}

func TestSplitLayoutPositiveWidths(t *testing.T) {
	assert := newAsserter(t)

	layout, err := newSplitLayout(64, 0.1)
	assert(err == nil, "newSplitLayout: %v", err)

	for level := 0; level < layout.levels; level++ {
		tasks := layout.tasks(level)
		for idx := uint64(0); idx < tasks; idx++ {
			w := layout.seedWidth(level, idx)
			assert(w >= 1, "level=%d idx=%d: width %d < 1", level, idx, w)
		}
	}
}

func TestSplitLayoutRejectsBadK(t *testing.T) {
	assert := newAsserter(t)

	_, err := newSplitLayout(3, 0.1)
	assert(err == ErrBadK, "k=3: expected ErrBadK, got %v", err)

	_, err = newSplitLayout(16, 0)
	assert(err == ErrBadEpsilon, "epsilon=0: expected ErrBadEpsilon, got %v", err)
}
