// intvector.go -- packed, fixed-width unsigned integer array
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
	"encoding/binary"
	"fmt"
	"io"
)

// intVector is a densely packed array of n values, each 'width' bits
// wide (1 <= width <= 64), backed by a []uint64. It plays the same
// role here that u8Seeder/u16Seeder/u32Seeder play in the ancestor
// bbhash/chd implementation -- a compact seed/threshold table -- but
// generalized to an arbitrary bit width instead of one fixed per byte
// size, since bucketing thresholds need exactly THRESHOLD_BITS bits.
type intVector struct {
	width uint
	n     uint64
	mask  uint64
	v     []uint64
}

// newIntVector allocates a packed array of 'n' values, each 'width'
// bits wide, all initialized to zero.
func newIntVector(n uint64, width uint) *intVector {
	if width == 0 || width > 64 {
		panic("intvector: width out of range")
	}
	totalBits := n * uint64(width)
	words := (totalBits + 63) / 64
	mask := uint64(1)<<width - 1
	if width == 64 {
		mask = ^uint64(0)
	}
	return &intVector{
		width: width,
		n:     n,
		mask:  mask,
		v:     make([]uint64, words),
	}
}

// Len returns the number of elements.
func (iv *intVector) Len() uint64 { return iv.n }

// Get returns the value at index i.
func (iv *intVector) Get(i uint64) uint64 {
	bitPos := i * uint64(iv.width)
	wIdx := bitPos / 64
	shift := bitPos % 64

	lo := iv.v[wIdx] >> shift
	if shift+uint64(iv.width) <= 64 {
		return lo & iv.mask
	}
	hi := iv.v[wIdx+1] << (64 - shift)
	return (lo | hi) & iv.mask
}

// Set stores 'val' (only the low 'width' bits are used) at index i.
func (iv *intVector) Set(i uint64, val uint64) {
	val &= iv.mask
	bitPos := i * uint64(iv.width)
	wIdx := bitPos / 64
	shift := bitPos % 64

	iv.v[wIdx] = (iv.v[wIdx] &^ (iv.mask << shift)) | (val << shift)
	if shift+uint64(iv.width) > 64 {
		spill := 64 - shift
		iv.v[wIdx+1] = (iv.v[wIdx+1] &^ (iv.mask >> spill)) | (val >> spill)
	}
}

// marshalBinary writes width, count and payload as little-endian data.
func (iv *intVector) marshalBinary(w io.Writer) (int, error) {
	var hdr [24]byte
	binary.LittleEndian.PutUint64(hdr[0:8], uint64(iv.width))
	binary.LittleEndian.PutUint64(hdr[8:16], iv.n)
	binary.LittleEndian.PutUint64(hdr[16:24], uint64(len(iv.v)))

	n, err := writeAll(w, hdr[:])
	if err != nil {
		return 0, err
	}
	m, err := writeAll(w, u64sToByteSlice(iv.v))
	return n + m, err
}

// unmarshalIntVector reads a vector previously written by
// marshalBinary. Returns the vector, bytes consumed, and an error.
func unmarshalIntVector(buf []byte) (*intVector, uint64, error) {
	if len(buf) < 24 {
		return nil, 0, ErrTooSmall
	}
	width := binary.LittleEndian.Uint64(buf[0:8])
	n := binary.LittleEndian.Uint64(buf[8:16])
	words := binary.LittleEndian.Uint64(buf[16:24])
	if width == 0 || width > 64 {
		return nil, 0, fmt.Errorf("intvector: invalid width %d", width)
	}

	need := 24 + words*8
	if uint64(len(buf)) < need {
		return nil, 0, ErrTooSmall
	}

	mask := uint64(1)<<width - 1
	if width == 64 {
		mask = ^uint64(0)
	}
	v := bsToUint64Slice(buf[24:need])
	iv := &intVector{
		width: uint(width),
		n:     n,
		mask:  mask,
		v:     append([]uint64(nil), v...),
	}
	return iv, need, nil
}
