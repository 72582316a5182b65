// db_test.go
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
	"path/filepath"
	"testing"
)

func TestDBWriterReaderRoundTrip(t *testing.T) {
	assert := newAsserter(t)

	dir := t.TempDir()
	fn := filepath.Join(dir, "test.db")

	w, err := NewDBWriter(fn, 8, 0.1)
	assert(err == nil, "NewDBWriter: %v", err)

	keys := genKeys(200, 11)
	vals := make(map[uint64][]byte, len(keys))
	for _, k := range keys {
		v := []byte(fmt.Sprintf("value-%d", k))
		vals[k] = v
		assert(w.Add(k, v) == nil, "Add(%#x)", k)
	}

	assert(w.Freeze() == nil, "Freeze")

	rd, err := NewDBReader(fn, 32)
	assert(err == nil, "NewDBReader: %v", err)
	defer rd.Close()

	assert(rd.Len() == len(keys), "Len: %d != %d", rd.Len(), len(keys))

	for _, k := range keys {
		got, ok := rd.Lookup(k)
		assert(ok, "Lookup(%#x): not found", k)
		assert(string(got) == string(vals[k]), "Lookup(%#x): got %q, want %q", k, got, vals[k])
	}
}

func TestDBWriterKeysOnly(t *testing.T) {
	assert := newAsserter(t)

	dir := t.TempDir()
	fn := filepath.Join(dir, "keysonly.db")

	w, err := NewDBWriter(fn, 4, 0.1)
	assert(err == nil, "NewDBWriter: %v", err)

	keys := genKeys(40, 21)
	for _, k := range keys {
		assert(w.Add(k, nil) == nil, "Add(%#x)", k)
	}
	assert(w.Freeze() == nil, "Freeze")

	rd, err := NewDBReader(fn, 8)
	assert(err == nil, "NewDBReader: %v", err)
	defer rd.Close()

	for _, k := range keys {
		_, ok := rd.Lookup(k)
		assert(ok, "Lookup(%#x): not found", k)
	}
}
