package zipscan

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fileSpec struct {
	name   string
	method uint16
	data   []byte
	crc    uint32
}

// buildZip lays out local headers, the central directory and the EOCD
// the way a writer with no data descriptors would.
func buildZip(comment string, files ...fileSpec) []byte {
	var out []byte
	u16 := func(v uint16) {
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], v)
		out = append(out, b[:]...)
	}
	u32 := func(v uint32) {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], v)
		out = append(out, b[:]...)
	}

	localOffsets := make([]uint32, len(files))
	for i, f := range files {
		localOffsets[i] = uint32(len(out))
		u32(sigLocal)
		u16(20)       // version needed
		u16(0)        // flags
		u16(f.method) // method
		u16(0x6000)   // mod time
		u16(0x5A21)   // mod date
		u32(f.crc)
		u32(uint32(len(f.data)))
		u32(uint32(len(f.data)))
		u16(uint16(len(f.name)))
		u16(0)
		out = append(out, f.name...)
		out = append(out, f.data...)
	}

	cdStart := uint32(len(out))
	for i, f := range files {
		u32(sigCentral)
		u16(20) // version made by
		u16(20) // version needed
		u16(0)  // flags
		u16(f.method)
		u16(0x6000)
		u16(0x5A21)
		u32(f.crc)
		u32(uint32(len(f.data)))
		u32(uint32(len(f.data)))
		u16(uint16(len(f.name)))
		u16(0) // extra
		u16(0) // comment
		u16(0) // disk
		u16(0) // internal attrs
		u32(0) // external attrs
		u32(localOffsets[i])
		out = append(out, f.name...)
	}
	cdSize := uint32(len(out)) - cdStart

	u32(sigEOCD)
	u16(0)
	u16(0)
	u16(uint16(len(files)))
	u16(uint16(len(files)))
	u32(cdSize)
	u32(cdStart)
	u16(uint16(len(comment)))
	out = append(out, comment...)
	return out
}

func TestEmptyArchiveIs22Bytes(t *testing.T) {
	data := buildZip("")
	require.Len(t, data, 22)

	f := Parse(data)
	require.NotNil(t, f)
	assert.Empty(t, f.Issues)
	assert.Empty(t, f.Entries)
	assert.Equal(t, uint16(0), f.DeclaredCount)
	assert.Equal(t, int64(0), f.EOCDOffset)
}

func TestParseRejectsNonArchives(t *testing.T) {
	assert.Nil(t, Parse(nil))
	assert.Nil(t, Parse([]byte("PK\x03\x04 local header but no directory")))
	assert.Nil(t, Parse(make([]byte, 100)))
}

func TestParseWellFormedRoundTrip(t *testing.T) {
	data := buildZip("archive comment",
		fileSpec{name: "readme.txt", method: 0, data: []byte("hello"), crc: 0x3610A686},
		fileSpec{name: "dir/blob.bin", method: 8, data: []byte{1, 2, 3}, crc: 0x55BC801D},
	)
	f := Parse(data)
	require.NotNil(t, f)
	assert.Empty(t, f.Issues)
	assert.Equal(t, "archive comment", f.Comment)
	assert.Equal(t, uint16(2), f.DeclaredCount)
	assert.False(t, f.ZIP64)
	assert.Equal(t, int64(0), f.PrependedBytes)

	require.Len(t, f.Entries, 2)
	assert.Equal(t, "readme.txt", f.Entries[0].Name)
	assert.Equal(t, "store", f.Entries[0].MethodName)
	assert.Equal(t, uint32(5), f.Entries[0].UncompressedSize)
	assert.Equal(t, uint32(0x3610A686), f.Entries[0].CRC32)
	assert.Equal(t, "dir/blob.bin", f.Entries[1].Name)
	assert.Equal(t, "deflate", f.Entries[1].MethodName)
}

func TestPrependedDataDetected(t *testing.T) {
	stub := []byte("#!/bin/sh\nexec unzip $0\n")
	data := append(stub, buildZip("", fileSpec{name: "a", data: []byte("x")})...)

	f := Parse(data)
	require.NotNil(t, f)
	assert.Equal(t, int64(len(stub)), f.PrependedBytes)
	// Entry offsets are relative to the archive start, so the local
	// header cross-check must still succeed after the shift.
	assert.Empty(t, f.Issues)
	require.Len(t, f.Entries, 1)
	assert.Equal(t, "a", f.Entries[0].Name)
}

func TestEntryCountMismatch(t *testing.T) {
	data := buildZip("", fileSpec{name: "a", data: []byte("x")})
	// Claim three entries.
	binary.LittleEndian.PutUint16(data[len(data)-12:], 3)
	binary.LittleEndian.PutUint16(data[len(data)-14:], 3)

	f := Parse(data)
	require.NotNil(t, f)
	assert.Contains(t, strings.Join(f.Issues, "\n"), "declares 3 entries")
	assert.Len(t, f.Entries, 1)
}

func TestLocalHeaderMismatch(t *testing.T) {
	data := buildZip("", fileSpec{name: "a", data: []byte("x")})
	data[0] = 'X' // corrupt the local signature

	f := Parse(data)
	require.NotNil(t, f)
	assert.Contains(t, strings.Join(f.Issues, "\n"), "no local file header")
}

func TestZip64LocatorFlagged(t *testing.T) {
	// A fake locator record directly before the EOCD.
	locator := make([]byte, 20)
	binary.LittleEndian.PutUint32(locator, sigZIP64L)
	empty := buildZip("")
	data := append(locator, empty...)

	f := Parse(data)
	require.NotNil(t, f)
	assert.True(t, f.ZIP64)
	assert.Contains(t, strings.Join(f.Issues, "\n"), "ZIP64")
}

func TestTruncationNeverPanics(t *testing.T) {
	full := buildZip("c", fileSpec{name: "a.txt", data: []byte("payload")})
	for k := 0; k <= len(full); k++ {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Fatalf("panic at truncation length %d: %v", k, r)
				}
			}()
			Parse(full[:k])
		}()
	}
}

func TestParseIdempotent(t *testing.T) {
	data := buildZip("", fileSpec{name: "a", data: []byte("x")})
	assert.Equal(t, Parse(data), Parse(data))
}
