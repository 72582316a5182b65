// marshal.go -- Marshal/Unmarshal for the MPHF facade
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
	"math"
)

const mphfVersion = 1

// MarshalBinary encodes the MPHF into a binary form suitable for
// durable storage or mmap. A subsequent call to Unmarshal reconstructs
// an equivalent, independently queryable instance.
//
// Layout:
//
//	header: version byte, 7 bytes reserved, n, k, epsilon (float64
//	bits), nbuckets, fallback entry count -- 48 bytes total
//	body:   threshold intVector, live[] (uint32 each), the
//	        splitting-tree bit store, then fallback entries as
//	        (key, index) uint64 pairs
func (m *MPHF) MarshalBinary(w io.Writer) (int, error) {
	if m.lw != nil {
		return 0, ErrNotMarshalable
	}

	le := binary.LittleEndian

	var hdr [48]byte
	hdr[0] = mphfVersion
	le.PutUint64(hdr[8:16], m.n)
	le.PutUint64(hdr[16:24], uint64(m.k))
	le.PutUint64(hdr[24:32], math.Float64bits(m.epsilon))
	le.PutUint64(hdr[32:40], m.bphf.nbuckets)
	le.PutUint64(hdr[40:48], uint64(len(m.bphf.fallback)))

	wr := newErrWriter(w)
	total, _ := wr.Write(hdr[:])

	n, _ := m.bphf.threshold.marshalBinary(wr)
	total += n

	var lenBuf [8]byte
	le.PutUint64(lenBuf[:], uint64(len(m.bphf.live)))
	n, _ = wr.Write(lenBuf[:])
	total += n
	n, _ = wr.Write(u32sToByteSlice(m.bphf.live))
	total += n

	n, _ = m.store.marshalBinary(wr)
	total += n

	for key, idx := range m.bphf.fallback {
		var pair [16]byte
		le.PutUint64(pair[0:8], key)
		le.PutUint64(pair[8:16], idx)
		n, _ = wr.Write(pair[:])
		total += n
	}

	return total, wr.Error()
}

// Unmarshal reconstructs an MPHF previously written by MarshalBinary.
// Every table is copied out of buf, so the returned MPHF does not
// reference buf and buf may be released (e.g. unmapped) afterwards.
func Unmarshal(buf []byte) (*MPHF, error) {
	if len(buf) < 48 {
		return nil, ErrTooSmall
	}
	le := binary.LittleEndian

	ver := buf[0]
	if ver != mphfVersion {
		return nil, fmt.Errorf("consensus: unsupported MPHF version %d", ver)
	}

	n := le.Uint64(buf[8:16])
	k := int(le.Uint64(buf[16:24]))
	epsilon := math.Float64frombits(le.Uint64(buf[24:32]))
	nbuckets := le.Uint64(buf[32:40])
	fallbackCount := le.Uint64(buf[40:48])

	layout, err := newSplitLayout(k, epsilon)
	if err != nil {
		return nil, err
	}

	buf = buf[48:]
	threshold, consumed, err := unmarshalIntVector(buf)
	if err != nil {
		return nil, err
	}
	buf = buf[consumed:]

	if uint64(len(buf)) < 8 {
		return nil, ErrTooSmall
	}
	liveLen := le.Uint64(buf[:8])
	buf = buf[8:]
	if uint64(len(buf)) < liveLen*4 {
		return nil, ErrTooSmall
	}
	live := bsToUint32Slice(buf[:liveLen*4])
	buf = buf[liveLen*4:]

	store, consumed, err := unmarshalBitStore(buf)
	if err != nil {
		return nil, err
	}
	buf = buf[consumed:]

	if uint64(len(buf)) < fallbackCount*16 {
		return nil, ErrTooSmall
	}
	fallback := make(map[uint64]uint64, fallbackCount)
	for i := uint64(0); i < fallbackCount; i++ {
		off := i * 16
		key := le.Uint64(buf[off : off+8])
		idx := le.Uint64(buf[off+8 : off+16])
		fallback[key] = idx
	}

	tbits := thresholdBitsFor(k)
	bphf := &bucketingPHF{
		k:                k,
		nbuckets:         nbuckets,
		n:                n,
		thresholdBits:    tbits,
		thresholdMapping: buildThresholdMapping(tbits),
		threshold:        threshold,
		live:             live,
		fallback:         fallback,
	}

	return &MPHF{
		n:       n,
		k:       k,
		epsilon: epsilon,
		layout:  layout,
		bphf:    bphf,
		store:   store,
	}, nil
}
