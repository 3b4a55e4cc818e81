package probe

import (
	"bytes"
	"compress/gzip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binspect/elfscan"
	"binspect/zipscan"
)

func TestIdentifyByMagic(t *testing.T) {
	elf := make([]byte, 64)
	copy(elf, "\x7fELF")
	elf[4], elf[5], elf[6] = 2, 1, 1

	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	zw.Write([]byte("x"))
	zw.Close()

	emptyZip := make([]byte, 22)
	emptyZip[0], emptyZip[1], emptyZip[2], emptyZip[3] = 'P', 'K', 0x05, 0x06

	cases := []struct {
		name   string
		data   []byte
		format string
	}{
		{"elf", elf, "elf"},
		{"flac", []byte("fLaC"), "flac"},
		{"riff", []byte("RIFF\x04\x00\x00\x00WAVE"), "riff"},
		{"gif", append([]byte("GIF89a"), make([]byte, 7)...), "gif"},
		{"gzip", gz.Bytes(), "gzip"},
		{"zip", emptyZip, "zip"},
		{"unknown", []byte("plain text, nothing to see"), Unknown},
		{"empty", nil, Unknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Identify(tc.data)
			assert.Equal(t, tc.format, got.Format)
			if tc.format == Unknown {
				assert.Nil(t, got.Value)
			} else {
				assert.NotNil(t, got.Value)
			}
		})
	}
}

func TestIdentifyReturnsTypedResult(t *testing.T) {
	elf := make([]byte, 64)
	copy(elf, "\x7fELF")
	elf[4], elf[5], elf[6] = 2, 1, 1

	got := Identify(elf)
	require.Equal(t, "elf", got.Format)
	f, ok := got.Value.(*elfscan.File)
	require.True(t, ok)
	assert.True(t, f.Is64Bit)
}

// A PE with an embedded ZIP near its tail must be identified as PE,
// not ZIP: the EOCD scan runs last.
func TestZipScanRunsLast(t *testing.T) {
	emptyZip := make([]byte, 22)
	emptyZip[0], emptyZip[1], emptyZip[2], emptyZip[3] = 'P', 'K', 0x05, 0x06

	elf := make([]byte, 64)
	copy(elf, "\x7fELF")
	elf[4], elf[5], elf[6] = 2, 1, 1
	data := append(elf, emptyZip...)

	got := Identify(data)
	assert.Equal(t, "elf", got.Format)

	// Alone, the same trailer is a ZIP.
	alone := Identify(emptyZip)
	require.Equal(t, "zip", alone.Format)
	_, ok := alone.Value.(*zipscan.File)
	assert.True(t, ok)
}
