// bucketing_test.go
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

func TestBucketingConservation(t *testing.T) {
	assert := newAsserter(t)

	k := 8
	n := 500
	keys := make([]uint64, n)
	for i := range keys {
		keys[i] = uint64(i+1) * 0x2545f4914f6cdd1d
	}

	bphf, buckets, err := buildBucketingPHF(keys, k)
	assert(err == nil, "buildBucketingPHF: %v", err)

	filled := 0
	for _, b := range buckets {
		filled += len(b)
	}
	total := filled + bphf.fallbackLen()
	assert(total == n, "conservation: filled(%d)+fallback(%d) = %d, want %d", filled, bphf.fallbackLen(), total, n)
}

func TestBucketingEveryKeyResolves(t *testing.T) {
	assert := newAsserter(t)

	k := 16
	n := 900
	keys := make([]uint64, n)
	for i := range keys {
		keys[i] = uint64(i+1) * 0x9e3779b97f4a7c15
	}

	bphf, buckets, err := buildBucketingPHF(keys, k)
	assert(err == nil, "buildBucketingPHF: %v", err)

	accIndex := make(map[uint64]uint64, n)
	for _, key := range keys {
		bucket, accepted := bphf.bucketFor(key)
		if accepted {
			// key must actually be present in that bucket's list.
			found := false
			for _, bk := range buckets[bucket] {
				if bk == key {
					found = true
					break
				}
			}
			assert(found, "key %#x: bucketFor says accepted in bucket %d but not present there", key, bucket)
			accIndex[key] = bucket
			continue
		}
		_, ok := bphf.lookupFallback(key)
		assert(ok, "key %#x: neither accepted nor in fallback", key)
	}
}

func TestThresholdMappingMonotonic(t *testing.T) {
	assert := newAsserter(t)

	mapping := buildThresholdMapping(6)
	for i := 1; i < len(mapping); i++ {
		assert(mapping[i] >= mapping[i-1], "mapping not monotonic at %d: %d < %d", i, mapping[i], mapping[i-1])
	}
	assert(mapping[0] == 0, "mapping[0] should be 0")
	assert(mapping[len(mapping)-1] == ^uint32(0), "mapping[last] should be max uint32")
}
