// doc.go - top level documentation
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

// Package consensus implements a minimal perfect hash function (MPHF)
// over a static set of 64-bit keys using the "Consensus" construction:
// the search for splitting seeds and their storage are fused, so a
// successful seed at a node of the splitting tree is encoded purely by
// its position in a fractional-bit-width layout. There is no separate
// seed dictionary.
//
// Large key sets are first partitioned into equal-size buckets of 'k'
// keys each by a bumped k-perfect hash (bucketingPHF); each bucket is
// then solved independently by a consensusEngine that writes its seeds
// into a shared, unaligned bit store.
//
// The primary entry point is Build, which returns an *MPHF. Once
// built, Query and QueryBytes are total, allocation-free and safe for
// concurrent use by multiple goroutines.
//
// A higher-level DBWriter/DBReader pair (db.go) layers a persistent,
// mmap-friendly constant database on top of MPHF, in the same spirit
// as this package's ancestor github.com/opencoff/go-mph.
package consensus
