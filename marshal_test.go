// marshal_test.go
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

func TestMPHFMarshalRoundTrip(t *testing.T) {
	assert := newAsserter(t)

	keys := genKeys(400, 7)
	m, err := Build(keys, 16, 0.1)
	assert(err == nil, "Build: %v", err)

	var buf bytes.Buffer
	_, err = m.MarshalBinary(&buf)
	assert(err == nil, "MarshalBinary: %v", err)

	m2, err := Unmarshal(buf.Bytes())
	assert(err == nil, "Unmarshal: %v", err)
	assert(m2.Len() == m.Len(), "Len mismatch: %d != %d", m2.Len(), m.Len())

	for _, key := range keys {
		assert(m.Query(key) == m2.Query(key), "query differs for key %#x after round trip", key)
	}
}
