// db.go -- constant DB built on top of the Consensus MPHF
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
	"crypto/sha512"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dchest/siphash"
	"github.com/dustin/go-humanize"
	"github.com/hashicorp/golang-lru/arc/v2"
	"github.com/opencoff/go-mmap"
)

// The on-disk DB has the same general structure as the ancestor
// go-mph constant DB:
//
//   - 64 byte file header, big-endian multibyte ints:
//     magic [4]byte, flags uint32, salt [16]byte, nkeys uint64,
//     offtbl uint64 (page-aligned file offset of the offset table)
//   - contiguous key/value records, each: siphash-2-4 checksum
//     (8 bytes, big-endian) followed by the value bytes
//   - the offset table: little-endian (key uint64, file-offset
//     uint64) pairs, one per key, followed by a little-endian
//     uint32 value-length per key (omitted entirely for a
//     keys-only DB)
//   - the marshalled MPHF
//   - a 32 byte SHA512-256 trailer over the header, offset table
//     and MPHF
const (
	dbKeysOnly = 1 << iota

	dbMagic = "MPHK"
)

type dbWriterState int

const (
	dbAborted dbWriterState = -1
	dbOpen    dbWriterState = 0
	dbFrozen  dbWriterState = 1
)

type dbRecord struct {
	off  uint64
	vlen uint32
}

// DBWriter accumulates key/value pairs in memory and, on Freeze,
// builds a Consensus MPHF over the keys and writes a page-aligned,
// checksummed constant database to disk.
type DBWriter struct {
	fd *os.File

	k       int
	epsilon float64

	keymap map[uint64]*dbRecord
	salt   []byte

	off     uint64
	valSize uint64

	fntmp string
	fn    string
	state dbWriterState
}

// NewDBWriter prepares file 'fn' to hold a constant DB. k and epsilon
// are passed through to Build when Freeze constructs the MPHF.
func NewDBWriter(fn string, k int, epsilon float64) (*DBWriter, error) {
	tmp := fmt.Sprintf("%s.tmp.%d", fn, rand32())
	fd, err := os.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return nil, err
	}

	w := &DBWriter{
		fd:      fd,
		k:       k,
		epsilon: epsilon,
		keymap:  make(map[uint64]*dbRecord),
		salt:    randbytes(16),
		off:     64,
		fn:      fn,
		fntmp:   tmp,
	}

	var z [64]byte
	if _, err := writeAll(fd, z[:]); err != nil {
		return nil, err
	}
	return w, nil
}

// Len returns the number of distinct keys added so far.
func (w *DBWriter) Len() int { return len(w.keymap) }

// Filename returns the destination path this writer will produce.
func (w *DBWriter) Filename() string { return w.fn }

// Add adds a single key/value pair. Duplicate keys are rejected.
func (w *DBWriter) Add(key uint64, val []byte) error {
	if w.state != dbOpen {
		return ErrFrozen
	}
	_, err := w.addRecord(key, val)
	return err
}

// AddKeyVals adds matched key/value pairs; only min(len(keys),
// len(vals)) pairs are considered. Returns the number actually added.
func (w *DBWriter) AddKeyVals(keys []uint64, vals [][]byte) (int, error) {
	if w.state != dbOpen {
		return 0, ErrFrozen
	}
	n := len(keys)
	if len(vals) < n {
		n = len(vals)
	}
	added := 0
	for i := 0; i < n; i++ {
		if ok, err := w.addRecord(keys[i], vals[i]); err != nil {
			return added, err
		} else if ok {
			added++
		}
	}
	return added, nil
}

// Abort discards the in-progress DB and removes its temp file.
func (w *DBWriter) Abort() error {
	if w.state != dbOpen {
		return ErrFrozen
	}
	return w.abort()
}

func (w *DBWriter) abort() error {
	if err := os.Remove(w.fd.Name()); err != nil {
		return err
	}
	if err := w.fd.Close(); err != nil {
		return err
	}
	w.state = dbAborted
	return nil
}

func (w *DBWriter) addRecord(key uint64, val []byte) (bool, error) {
	if uint64(len(val)) > uint64(1<<32)-1 {
		return false, ErrValueTooLarge
	}
	if _, ok := w.keymap[key]; ok {
		return false, ErrExists
	}

	r := &dbRecord{off: w.off, vlen: uint32(len(val))}
	w.keymap[key] = r

	if len(val) > 0 {
		if err := w.writeRecord(val, r.off); err != nil {
			return false, err
		}
		w.valSize += uint64(len(val))
	}
	return true, nil
}

func (w *DBWriter) writeRecord(val []byte, off uint64) error {
	var o, c [8]byte
	be := binary.BigEndian
	be.PutUint64(o[:], off)

	h := siphash.New(w.salt)
	h.Write(o[:])
	h.Write(val)
	be.PutUint64(c[:], h.Sum64())

	if _, err := writeAll(w.fd, c[:]); err != nil {
		return err
	}
	if _, err := writeAll(w.fd, val); err != nil {
		return err
	}
	w.off += uint64(len(val)) + 8
	return nil
}

// Freeze builds the Consensus MPHF over the accumulated keys, writes
// the complete DB and closes it. The writer is unusable afterwards.
func (w *DBWriter) Freeze() (err error) {
	defer func(e *error) {
		if *e != nil {
			w.abort()
		}
	}(&err)

	if w.state != dbOpen {
		return ErrFrozen
	}

	keys := make([]uint64, 0, len(w.keymap))
	for k := range w.keymap {
		keys = append(keys, k)
	}

	mp, err := Build(keys, w.k, w.epsilon)
	if err != nil {
		return err
	}

	h := sha512.New512_256()
	tee := io.MultiWriter(w.fd, h)

	pgsz := uint64(os.Getpagesize())
	pgszM1 := pgsz - 1
	offtbl := (w.off + pgszM1) &^ pgszM1
	if offtbl > w.off {
		if _, err = writeAll(w.fd, make([]byte, offtbl-w.off)); err != nil {
			return err
		}
		w.off = offtbl
	}

	var ehdr [64]byte
	be := binary.BigEndian
	copy(ehdr[:4], dbMagic)

	i := 4
	if w.valSize == 0 {
		be.PutUint32(ehdr[i:i+4], uint32(dbKeysOnly))
	}
	i += 4
	i += copy(ehdr[i:], w.salt)
	be.PutUint64(ehdr[i:i+8], mp.Len())
	i += 8
	be.PutUint64(ehdr[i:i+8], offtbl)

	h.Write(ehdr[:])

	if err = w.marshalOffsets(tee, mp); err != nil {
		return err
	}

	pad := (w.off + 7) &^ 7
	if pad > w.off {
		if _, err = writeAll(tee, make([]byte, pad-w.off)); err != nil {
			return err
		}
		w.off = pad
	}

	nw, err := mp.MarshalBinary(tee)
	if err != nil {
		return err
	}
	w.off += uint64(nw)

	cksum := h.Sum(nil)
	if _, err = writeAll(w.fd, cksum); err != nil {
		return err
	}

	if _, err = w.fd.Seek(0, 0); err != nil {
		return err
	}
	if _, err = writeAll(w.fd, ehdr[:]); err != nil {
		return err
	}
	if err = w.fd.Sync(); err != nil {
		return err
	}
	if err = w.fd.Close(); err != nil {
		return err
	}
	if err = os.Rename(w.fntmp, w.fn); err != nil {
		return err
	}
	w.state = dbFrozen
	return nil
}

func (w *DBWriter) marshalOffsets(tee io.Writer, mp *MPHF) error {
	if w.valSize == 0 {
		return w.marshalKeys(tee, mp)
	}

	n := mp.Len()
	offset := make([]uint64, 2*n)
	vlen := make([]uint32, n)

	for k, r := range w.keymap {
		i := mp.Query(k)
		if i >= n {
			return fmt.Errorf("consensus: db: can't place key %x", k)
		}
		vlen[i] = r.vlen
		j := i * 2
		offset[j] = k
		offset[j+1] = r.off
	}

	if _, err := writeAll(tee, u64sToByteSlice(offset)); err != nil {
		return err
	}
	if _, err := writeAll(tee, u32sToByteSlice(vlen)); err != nil {
		return err
	}
	w.off += n * (8 + 8 + 4)
	return nil
}

func (w *DBWriter) marshalKeys(tee io.Writer, mp *MPHF) error {
	n := mp.Len()
	offset := make([]uint64, n)
	for k := range w.keymap {
		i := mp.Query(k)
		offset[i] = k
	}
	if _, err := writeAll(tee, u64sToByteSlice(offset)); err != nil {
		return err
	}
	w.off += n * 8
	return nil
}

// DBReader is the read-side, mmap-backed counterpart to DBWriter.
type DBReader struct {
	mph *MPHF

	cache *arc.ARCCache[uint64, []byte]

	flags uint32

	offset []uint64
	vlen   []uint32

	nkeys  uint64
	salt   []byte
	offtbl uint64

	mm *mmap.Mapping
	fd *os.File
	fn string
}

// NewDBReader opens a previously frozen DB and prepares it for
// querying. Up to 'cache' recently looked-up records are kept in
// memory (default 128 when cache <= 0).
func NewDBReader(fn string, cache int) (rd *DBReader, err error) {
	fd, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	if cache <= 0 {
		cache = 128
	}

	rd = &DBReader{salt: make([]byte, 16), fd: fd, fn: fn}

	st, err := fd.Stat()
	if err != nil {
		return nil, fmt.Errorf("%s: can't stat: %w", fn, err)
	}
	if st.Size() < 64+32 {
		return nil, fmt.Errorf("%s: file too small or corrupted", fn)
	}

	var hdrb [64]byte
	if _, err = io.ReadFull(fd, hdrb[:]); err != nil {
		return nil, fmt.Errorf("%s: can't read header: %w", fn, err)
	}

	offtbl, err := rd.decodeHeader(hdrb[:], st.Size())
	if err != nil {
		return nil, err
	}
	if err = rd.verifyChecksum(hdrb[:], offtbl, st.Size()); err != nil {
		return nil, err
	}

	tblsz := rd.nkeys * (8 + 8 + 4)
	if rd.flags&dbKeysOnly > 0 {
		tblsz = rd.nkeys * 8
	}
	if uint64(st.Size()) < 64+32+tblsz {
		return nil, fmt.Errorf("%s: corrupt header1", fn)
	}

	rd.cache, err = arc.NewARC[uint64, []byte](cache)
	if err != nil {
		return nil, err
	}

	mmapsz := st.Size() - int64(offtbl) - 32
	mm := mmap.New(fd)
	mapping, err := mm.Map(mmapsz, int64(offtbl), mmap.PROT_READ, mmap.F_READAHEAD)
	if err != nil {
		return nil, fmt.Errorf("%s: can't mmap %d bytes at off %d: %w", fn, mmapsz, offtbl, err)
	}

	offsz := rd.nkeys * (8 + 8)
	vlensz := rd.nkeys * 4
	if rd.flags&dbKeysOnly > 0 {
		offsz = rd.nkeys * 8
		vlensz = 0
	}

	bs := mapping.Bytes()
	rd.mm = mapping
	rd.offset = bsToUint64Slice(bs[:offsz])
	if vlensz > 0 {
		rd.vlen = bsToUint32Slice(bs[offsz : offsz+vlensz])
	}

	mph, err := Unmarshal(bs[offsz+vlensz:])
	if err != nil {
		return nil, fmt.Errorf("%s: can't unmarshal MPHF: %w", fn, err)
	}
	rd.mph = mph
	return rd, nil
}

// Len returns the size of the MPHF's key space.
func (rd *DBReader) Len() int { return int(rd.nkeys) }

// Close releases the mmap and file handle backing this reader.
func (rd *DBReader) Close() {
	rd.mm.Unmap()
	rd.fd.Close()
	rd.cache.Purge()
	rd.salt = nil
	rd.mph = nil
	rd.fd = nil
	rd.fn = ""
}

// Lookup returns key's value, or (nil, false) if key isn't present.
func (rd *DBReader) Lookup(key uint64) ([]byte, bool) {
	v, err := rd.Find(key)
	if err != nil {
		return nil, false
	}
	return v, true
}

// Find returns key's value, or an error identifying why the lookup
// failed (unknown key, I/O failure, or a corrupted record checksum).
func (rd *DBReader) Find(key uint64) ([]byte, error) {
	if v, ok := rd.cache.Get(key); ok {
		return v, nil
	}

	i := rd.mph.Query(key)
	if i >= rd.nkeys {
		return nil, ErrNoKey
	}

	if rd.flags&dbKeysOnly > 0 {
		if rd.offset[i] != key {
			return nil, ErrNoKey
		}
		rd.cache.Add(key, nil)
		return nil, nil
	}

	j := i * 2
	if rd.offset[j] != key {
		return nil, ErrNoKey
	}

	val, err := rd.decodeRecord(rd.offset[j+1], rd.vlen[i])
	if err != nil {
		return nil, err
	}
	rd.cache.Add(key, val)
	return val, nil
}

// IterFunc calls fp on every record in the DB. Iteration stops at the
// first error fp returns, which is then propagated to the caller.
func (rd *DBReader) IterFunc(fp func(k uint64, v []byte) error) error {
	if rd.flags&dbKeysOnly > 0 {
		for i := uint64(0); i < rd.nkeys; i++ {
			if err := fp(rd.offset[i], nil); err != nil {
				return err
			}
		}
		return nil
	}
	for i := uint64(0); i < rd.nkeys; i++ {
		j := i * 2
		k := rd.offset[j]
		val, err := rd.decodeRecord(rd.offset[j+1], rd.vlen[i])
		if err != nil {
			return fmt.Errorf("iter: key %x: read-record: %w", k, err)
		}
		if err := fp(k, val); err != nil {
			return err
		}
	}
	return nil
}

// DumpMeta writes a human-readable description of the DB to w.
func (rd *DBReader) DumpMeta(w io.Writer) {
	fmt.Fprintf(w, "%s", rd.Desc())
	if rd.flags&dbKeysOnly > 0 {
		for i := uint64(0); i < rd.nkeys; i++ {
			fmt.Fprintf(w, "  %3d: %x\n", i, rd.offset[i])
		}
		return
	}
	for i := uint64(0); i < rd.nkeys; i++ {
		j := i * 2
		fmt.Fprintf(w, "  %3d: %#x, %d bytes at %#x\n", i, rd.offset[j], rd.vlen[i], rd.offset[j+1])
	}
}

// Desc returns a one-paragraph human description of the DB.
func (rd *DBReader) Desc() string {
	var s strings.Builder
	kind := "<KEYS+VALS>"
	if rd.flags&dbKeysOnly > 0 {
		kind = "<KEYS>"
	}
	bits := uint64(rd.mph.Bits())
	perKey := bits / 8 / max(rd.nkeys, 1)
	fmt.Fprintf(&s, "consensus DB: %s %s keys, hash-salt %#x, offtbl at %#x, %s (%s/key)\n",
		kind, humanize.Comma(int64(rd.nkeys)), rd.salt, rd.offtbl,
		humanize.Bytes(bits/8), humanize.Bytes(perKey))
	return s.String()
}

func (rd *DBReader) decodeRecord(off uint64, vlen uint32) ([]byte, error) {
	data := make([]byte, vlen+8)
	if _, err := rd.fd.ReadAt(data, int64(off)); err != nil {
		return nil, err
	}

	be := binary.BigEndian
	csum := be.Uint64(data[:8])

	var o [8]byte
	be.PutUint64(o[:], off)

	h := siphash.New(rd.salt)
	h.Write(o[:])
	h.Write(data[8:])
	exp := h.Sum64()

	if csum != exp {
		return nil, fmt.Errorf("%s: corrupted record at off %d (exp %#x, saw %#x)", rd.fn, off, exp, csum)
	}
	return data[8:], nil
}

func (rd *DBReader) verifyChecksum(hdrb []byte, offtbl uint64, sz int64) error {
	h := sha512.New512_256()
	h.Write(hdrb)

	remsz := sz - int64(offtbl) - 32
	if _, err := rd.fd.Seek(int64(offtbl), 0); err != nil {
		return err
	}

	nw, err := io.CopyN(h, rd.fd, remsz)
	if err != nil {
		return fmt.Errorf("%s: metadata i/o error: %w", rd.fn, err)
	}
	if nw != remsz {
		return fmt.Errorf("%s: partial read while verifying checksum, exp %d, saw %d", rd.fn, remsz, nw)
	}

	var expsum [32]byte
	if _, err := rd.fd.Seek(sz-32, 0); err != nil {
		return err
	}
	if _, err := io.ReadFull(rd.fd, expsum[:]); err != nil {
		return fmt.Errorf("%s: checksum i/o error: %w", rd.fn, err)
	}

	csum := h.Sum(nil)
	if subtle.ConstantTimeCompare(csum, expsum[:]) != 1 {
		return fmt.Errorf("%s: checksum failure; exp %#x, saw %#x", rd.fn, expsum, csum)
	}
	if _, err := rd.fd.Seek(int64(offtbl), 0); err != nil {
		return err
	}
	return nil
}

func (rd *DBReader) decodeHeader(b []byte, sz int64) (uint64, error) {
	magic := string(b[:4])
	if magic != dbMagic {
		return 0, fmt.Errorf("%s: bad file magic <%s>", rd.fn, magic)
	}

	be := binary.BigEndian
	i := 4
	rd.flags = be.Uint32(b[i : i+4])
	i += 4
	rd.salt = append([]byte(nil), b[i:i+16]...)
	i += 16
	rd.nkeys = be.Uint64(b[i : i+8])
	i += 8
	rd.offtbl = be.Uint64(b[i : i+8])

	if rd.offtbl < 64 || rd.offtbl >= uint64(sz-32) {
		return 0, fmt.Errorf("%s: corrupt header0", rd.fn)
	}
	return rd.offtbl, nil
}
