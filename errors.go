// errors.go - public errors exposed by consensus
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
	"errors"
	"fmt"
)

func errShortWrite(who string, n int) error {
	return fmt.Errorf("%s: incomplete write; exp 8, saw %d", who, n)
}

var (
	// ErrBadK is returned when k is not a power of two, or is too small
	// to hold a splitting tree (k must be >= 2).
	ErrBadK = errors.New("consensus: k must be a power of two >= 2")

	// ErrBadEpsilon is returned when the overhead epsilon is <= 0.
	ErrBadEpsilon = errors.New("consensus: epsilon must be > 0")

	// ErrNoKeys is returned when Build is called with an empty key set.
	ErrNoKeys = errors.New("consensus: no keys given")

	// ErrDuplicateKey is returned when two input keys hash to the same
	// 64-bit image; Consensus assumes distinct keys at the 64-bit level.
	ErrDuplicateKey = errors.New("consensus: duplicate 64-bit key")

	// ErrConstructionFailed is the "should never happen" terminal error:
	// 2^63 root seeds were exhausted without a successful splitting tree.
	ErrConstructionFailed = errors.New("consensus: exhausted root seed space; can't construct MPHF")

	// ErrFrozen is returned when attempting to add new records to an
	// already frozen DBWriter, or to freeze one twice.
	ErrFrozen = errors.New("consensus: DB already frozen")

	// ErrValueTooLarge is returned if a DBWriter value-length is larger
	// than 2^32-1 bytes.
	ErrValueTooLarge = errors.New("consensus: value is larger than 2^32-1 bytes")

	// ErrExists is returned if a duplicate key is added to a DBWriter.
	ErrExists = errors.New("consensus: key exists in DB")

	// ErrNoKey is returned when a key cannot be found in a DBReader.
	ErrNoKey = errors.New("consensus: no such key")

	// ErrTooSmall is returned when there isn't enough data to unmarshal
	// a header or table.
	ErrTooSmall = errors.New("consensus: not enough data to unmarshal")

	// ErrNotMarshalable is returned by MarshalBinary when the MPHF was
	// built by BuildLevelwise: its per-level bit stores aren't laid out
	// in a format marshal.go's header understands.
	ErrNotMarshalable = errors.New("consensus: this MPHF variant can't be marshaled")
)
