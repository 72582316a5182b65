// mphf_test.go -- end to end construction/query scenarios
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
	"testing"

	fasthash "github.com/opencoff/go-fasthash"
)

func genKeys(n int, seed uint64) []uint64 {
	keys := make([]uint64, n)
	for i := range keys {
		keys[i] = remix(uint64(i)+1+seed*0x100000001b3)
	}
	return keys
}

func checkBijection(t *testing.T, m *MPHF, keys []uint64) {
	assert := newAsserter(t)
	seen := make([]bool, m.Len())
	for _, key := range keys {
		idx := m.Query(key)
		assert(idx < m.Len(), "index %d out of range [0,%d)", idx, m.Len())
		assert(!seen[idx], "index %d assigned twice", idx)
		seen[idx] = true
	}
	for i, ok := range seen {
		assert(ok, "index %d never assigned", i)
	}
}

func TestMPHFSmallExact(t *testing.T) {
	assert := newAsserter(t)
	keys := genKeys(64, 1)
	m, err := Build(keys, 8, 0.1)
	assert(err == nil, "Build: %v", err)
	checkBijection(t, m, keys)
}

func TestMPHFNotMultipleOfK(t *testing.T) {
	assert := newAsserter(t)
	keys := genKeys(1000, 2)
	m, err := Build(keys, 16, 0.08)
	assert(err == nil, "Build: %v", err)
	checkBijection(t, m, keys)
}

func TestMPHFDeterministicAcrossBuilds(t *testing.T) {
	assert := newAsserter(t)
	keys := genKeys(300, 3)

	m1, err := Build(keys, 16, 0.1)
	assert(err == nil, "Build 1: %v", err)
	m2, err := Build(keys, 16, 0.1)
	assert(err == nil, "Build 2: %v", err)

	for _, key := range keys {
		assert(m1.Query(key) == m2.Query(key), "query differs for key %#x", key)
	}
}

func TestMPHFRejectsDuplicates(t *testing.T) {
	assert := newAsserter(t)
	keys := []uint64{1, 2, 3, 2}
	_, err := Build(keys, 2, 0.1)
	assert(err == ErrDuplicateKey, "expected ErrDuplicateKey, got %v", err)
}

func TestMPHFRejectsEmpty(t *testing.T) {
	assert := newAsserter(t)
	_, err := Build(nil, 8, 0.1)
	assert(err == ErrNoKeys, "expected ErrNoKeys, got %v", err)
}

func TestMPHFLevelwiseMatchesQueries(t *testing.T) {
	assert := newAsserter(t)
	keys := genKeys(500, 5)

	m, err := BuildLevelwise(keys, 16, 0.1)
	assert(err == nil, "BuildLevelwise: %v", err)
	checkBijection(t, m, keys)

	_, err = m.MarshalBinary(nil)
	assert(err == ErrNotMarshalable, "expected ErrNotMarshalable, got %v", err)
}

func TestMPHFQueryBytes(t *testing.T) {
	assert := newAsserter(t)

	keys := make([]uint64, len(keyw))
	for i, w := range keyw {
		keys[i] = fasthash.Hash64(0, []byte(w))
	}
	m, err := Build(keys, 4, 0.15)
	assert(err == nil, "Build: %v", err)

	for _, w := range keyw {
		idx := m.QueryBytes([]byte(w))
		assert(idx < m.Len(), "QueryBytes(%q) = %d out of range", w, idx)
	}
}
