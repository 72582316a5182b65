// bitstore_test.go -- unaligned read/write round-trip tests
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
	"bytes"
	"testing"
)

func TestBitStoreAlignedRoundTrip(t *testing.T) {
	assert := newAsserter(t)

	b := newBitStore(256)
	b.writeTo(64, 0xdeadbeefcafef00d)
	b.writeTo(128, 0x0102030405060708)

	assert(b.readAt(64) == 0xdeadbeefcafef00d, "word0 mismatch")
	assert(b.readAt(128) == 0x0102030405060708, "word1 mismatch")
}

func TestBitStoreStraddleRoundTrip(t *testing.T) {
	assert := newAsserter(t)

	b := newBitStore(256)
	for p := uint64(65); p < 192; p++ {
		val := uint64(0x1111111111111111) * (p % 13)
		b.writeTo(p, val)
		got := b.readAt(p)
		assert(got == val, "readAt(%d): exp %#x, saw %#x", p, val, got)
	}
}

func TestBitStoreFieldPacking(t *testing.T) {
	assert := newAsserter(t)

	b := newBitStore(256)
	// Pack three adjacent narrow fields sharing one 64-bit window and
	// confirm each survives the others being written.
	b.setField(70, 3, 5) // bits [67,70)
	b.setField(75, 4, 9) // bits [71,75)
	b.setField(64, 64, 0)

	assert(b.getField(70, 3) == 5, "field1 clobbered")
	assert(b.getField(75, 4) == 9, "field2 clobbered")
}

func TestBitStoreMarshalRoundTrip(t *testing.T) {
	assert := newAsserter(t)

	b := newBitStore(320)
	for p := uint64(64); p <= 320; p += 17 {
		b.writeTo(p, p*0x9e3779b97f4a7c15)
	}

	var buf bytes.Buffer
	_, err := b.marshalBinary(&buf)
	assert(err == nil, "marshal: %v", err)

	got, n, err := unmarshalBitStore(buf.Bytes())
	assert(err == nil, "unmarshal: %v", err)
	assert(n == uint64(buf.Len()), "consumed %d, want %d", n, buf.Len())
	assert(len(got.v) == len(b.v), "word count %d != %d", len(got.v), len(b.v))
	for i := range b.v {
		assert(got.v[i] == b.v[i], "word %d mismatch: %#x != %#x", i, got.v[i], b.v[i])
	}
}

func TestBitStoreOutOfRangePanics(t *testing.T) {
	b := newBitStore(128)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on out-of-range readAt")
		}
	}()
	b.readAt(63)
}
