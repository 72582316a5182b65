// endian.go -- portable byte-slice <-> integer-slice conversions
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

import "encoding/binary"

// All on-disk and marshalled tables are little-endian, regardless of
// host byte order; these helpers decode/encode explicitly rather than
// reinterpret-casting the backing memory, so they work identically on
// big and little endian hosts.

func toLEUint16(v uint16) uint16 {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	return binary.LittleEndian.Uint16(b[:])
}

func toLEUint32(v uint32) uint32 {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return binary.LittleEndian.Uint32(b[:])
}

func toLEUint64(v uint64) uint64 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return binary.LittleEndian.Uint64(b[:])
}

func toBEUint16(v uint16) uint16 {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	return binary.BigEndian.Uint16(b[:])
}

func toBEUint32(v uint32) uint32 {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return binary.BigEndian.Uint32(b[:])
}

func toBEUint64(v uint64) uint64 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return binary.BigEndian.Uint64(b[:])
}

// u64sToByteSlice encodes a []uint64 as little-endian bytes.
func u64sToByteSlice(v []uint64) []byte {
	b := make([]byte, len(v)*8)
	for i, x := range v {
		binary.LittleEndian.PutUint64(b[i*8:], x)
	}
	return b
}

// bsToUint64Slice decodes little-endian bytes into a []uint64. len(b)
// must be a multiple of 8.
func bsToUint64Slice(b []byte) []uint64 {
	v := make([]uint64, len(b)/8)
	for i := range v {
		v[i] = binary.LittleEndian.Uint64(b[i*8:])
	}
	return v
}

// u32sToByteSlice encodes a []uint32 as little-endian bytes.
func u32sToByteSlice(v []uint32) []byte {
	b := make([]byte, len(v)*4)
	for i, x := range v {
		binary.LittleEndian.PutUint32(b[i*4:], x)
	}
	return b
}

// bsToUint32Slice decodes little-endian bytes into a []uint32. len(b)
// must be a multiple of 4.
func bsToUint32Slice(b []byte) []uint32 {
	v := make([]uint32, len(b)/4)
	for i := range v {
		v[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return v
}

func toLittleEndianUint64(v uint64) uint64 { return v }
func toLittleEndianUint32(v uint32) uint32 { return v }
