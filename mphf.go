// mphf.go -- the public minimal perfect hash function facade
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
	"fmt"

	fasthash "github.com/opencoff/go-fasthash"
)

// MPHF is a minimal perfect hash function over a fixed set of 64-bit
// keys, built once by Build and queried any number of times
// concurrently thereafter. Query and QueryBytes never allocate and
// never block.
type MPHF struct {
	n       uint64
	k       int
	epsilon float64

	layout *splitLayout
	bphf   *bucketingPHF
	store  *bitStore

	// lw is non-nil for an MPHF built by BuildLevelwise, in which case
	// store above is unused and Query is dispatched to lw.query
	// instead.
	lw *levelwiseEngine
}

// Build constructs an MPHF over 'keys'. k is the per-bucket size used
// by the bumped-hash bucketing step (a power of two >= 2; the example
// CLI defaults to 8), and epsilon is the fractional bit overhead
// budget the splitting-tree search is allowed to spend per key beyond
// the information-theoretic minimum.
func Build(keys []uint64, k int, epsilon float64) (*MPHF, error) {
	if len(keys) == 0 {
		return nil, ErrNoKeys
	}
	if err := checkDuplicates(keys); err != nil {
		return nil, err
	}

	layout, err := newSplitLayout(k, epsilon)
	if err != nil {
		return nil, err
	}

	bphf, buckets, err := buildBucketingPHF(keys, k)
	if err != nil {
		return nil, err
	}

	store := newBitStore(bphf.nbuckets * (rootSeedBits + layout.treeBits))

	for b := uint64(0); b < bphf.nbuckets; b++ {
		eng := &consensusEngine{layout: layout, store: store, bucket: b, live: len(buckets[b])}
		if err := eng.construct(buckets[b]); err != nil {
			return nil, fmt.Errorf("consensus: bucket %d: %w", b, err)
		}
	}

	return &MPHF{
		n:       uint64(len(keys)),
		k:       k,
		epsilon: epsilon,
		layout:  layout,
		bphf:    bphf,
		store:   store,
	}, nil
}

// BuildLevelwise constructs an MPHF exactly like Build, but drives the
// splitting-tree search one level at a time across every bucket
// instead of one bucket at a time (see engine_levelwise.go). Choose
// this over Build when the key set buckets into many small trees and
// the level-major access pattern suits the cache better; the resulting
// MPHF answers Query identically but cannot be marshaled.
func BuildLevelwise(keys []uint64, k int, epsilon float64) (*MPHF, error) {
	if len(keys) == 0 {
		return nil, ErrNoKeys
	}
	if err := checkDuplicates(keys); err != nil {
		return nil, err
	}

	layout, err := newSplitLayout(k, epsilon)
	if err != nil {
		return nil, err
	}

	bphf, buckets, err := buildBucketingPHF(keys, k)
	if err != nil {
		return nil, err
	}

	eng := newLevelwiseEngine(layout, bphf.nbuckets)
	if err := eng.construct(buckets); err != nil {
		return nil, fmt.Errorf("consensus: levelwise construction: %w", err)
	}

	return &MPHF{
		n:       uint64(len(keys)),
		k:       k,
		epsilon: epsilon,
		layout:  layout,
		bphf:    bphf,
		lw:      eng,
	}, nil
}

// checkDuplicates reports ErrDuplicateKey if any key appears twice.
func checkDuplicates(keys []uint64) error {
	seen := make(map[uint64]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			return ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}
	return nil
}

// Len returns the number of keys the MPHF was built over.
func (m *MPHF) Len() uint64 { return m.n }

// Query returns key's unique index in [0, Len()). The result is only
// meaningful for keys that were present in the set passed to Build;
// querying an absent key returns some value in [0, Len()) but that
// value carries no guarantee.
func (m *MPHF) Query(key uint64) uint64 {
	bucket, accepted := m.bphf.bucketFor(key)
	if accepted {
		if m.lw != nil {
			return bucket*uint64(m.k) + m.lw.query(bucket, key)
		}
		eng := &consensusEngine{
			layout: m.layout,
			store:  m.store,
			bucket: bucket,
			live:   m.bphf.liveCount(bucket),
		}
		return bucket*uint64(m.k) + eng.query(key)
	}
	if idx, ok := m.bphf.lookupFallback(key); ok {
		return idx
	}
	return 0
}

// QueryBytes hashes an arbitrary byte-string key down to a 64-bit
// value with fasthash.Hash64 (seed 0), then queries it exactly as
// Query would. This lets a single MPHF built
// over uint64 keys also serve byte-string lookups (e.g. the record
// keys DBWriter stores) without a second construction pass.
func (m *MPHF) QueryBytes(key []byte) uint64 {
	return m.Query(fasthash.Hash64(0, key))
}

// Bits returns the total size, in bits, of the structures Query
// depends on: the shared splitting-tree store(s) (plus 64 bits per
// level of retry state for a levelwise build), the per-bucket
// threshold table, and 64 bits per fallback entry. The fallback map's
// Go runtime overhead is not counted.
func (m *MPHF) Bits() int {
	var total uint64
	if m.lw != nil {
		for _, s := range m.lw.perLevel {
			total += s.bitSize()
		}
		total += uint64(len(m.lw.retrySeed)) * 64
	} else {
		total = m.store.bitSize()
	}
	total += m.bphf.nbuckets * uint64(m.bphf.thresholdBits)
	total += uint64(m.bphf.fallbackLen()) * 64
	return int(total)
}
