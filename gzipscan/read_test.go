package gzipscan

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildGzip(t *testing.T) []byte {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	zw.Name = "notes.txt"
	zw.Comment = "scratch file"
	zw.ModTime = time.Unix(1700000000, 0)
	_, err := zw.Write([]byte("the quick brown fox"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestParseRejectsOtherFormats(t *testing.T) {
	assert.Nil(t, Parse(nil))
	assert.Nil(t, Parse([]byte{0x1F, 0x8B}))
	assert.Nil(t, Parse([]byte("BZh91AY&SY....")))
}

func TestParseRealWriterOutput(t *testing.T) {
	f := Parse(buildGzip(t))
	require.NotNil(t, f)
	assert.Empty(t, f.Issues)

	assert.Equal(t, "notes.txt", f.Name)
	assert.Equal(t, "scratch file", f.Comment)
	assert.Equal(t, uint32(1700000000), f.ModTime)
	assert.True(t, f.HasTrailer)
	assert.Equal(t, uint32(len("the quick brown fox")), f.ISize)
	assert.Greater(t, f.DeflateOffset, int64(10))
}

func TestBareHeaderNoOptionalFields(t *testing.T) {
	data := []byte{0x1F, 0x8B, 0x08, 0x00, 0, 0, 0, 0, 0x00, 0x03}
	data = append(data, []byte{0x03, 0x00}...) // empty deflate stream
	trailer := make([]byte, 8)
	binary.LittleEndian.PutUint32(trailer[4:], 0)
	data = append(data, trailer...)

	f := Parse(data)
	require.NotNil(t, f)
	assert.Empty(t, f.Issues)
	assert.Equal(t, int64(10), f.DeflateOffset)
	assert.Equal(t, "Unix", f.OSName)
	assert.Empty(t, f.Name)
	assert.True(t, f.HasTrailer)
	assert.Equal(t, uint32(0), f.ISize)
}

func TestNonDeflateMethodFlagged(t *testing.T) {
	data := buildGzip(t)
	data[2] = 0x07

	f := Parse(data)
	require.NotNil(t, f)
	assert.Contains(t, strings.Join(f.Issues, "\n"), "not deflate")
}

func TestTruncatedName(t *testing.T) {
	data := []byte{0x1F, 0x8B, 0x08, flagName, 0, 0, 0, 0, 0, 3}
	data = append(data, "unfinish"...) // no NUL, no body

	f := Parse(data)
	require.NotNil(t, f)
	assert.Contains(t, strings.Join(f.Issues, "\n"), "truncated")
	assert.Equal(t, int64(-1), f.DeflateOffset)
}

func TestTruncationNeverPanics(t *testing.T) {
	full := buildGzip(t)
	for k := 0; k <= len(full); k++ {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Fatalf("panic at truncation length %d: %v", k, r)
				}
			}()
			f := Parse(full[:k])
			if k >= 3 {
				assert.NotNil(t, f)
			}
		}()
	}
}

func TestParseIdempotent(t *testing.T) {
	data := buildGzip(t)
	assert.Equal(t, Parse(data), Parse(data))
}
