package flacscan

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func block(btype uint8, last bool, payload []byte) []byte {
	head := btype
	if last {
		head |= 0x80
	}
	out := []byte{head, byte(len(payload) >> 16), byte(len(payload) >> 8), byte(len(payload))}
	return append(out, payload...)
}

func streamInfoPayload() []byte {
	p := make([]byte, 34)
	binary.BigEndian.PutUint16(p[0:], 4096)  // min block size
	binary.BigEndian.PutUint16(p[2:], 4096)  // max block size
	p[4], p[5], p[6] = 0, 0x00, 0x10         // min frame size 16
	p[7], p[8], p[9] = 0, 0xFF, 0xFF         // max frame size
	packed := uint64(44100)<<44 | uint64(1)<<41 | uint64(15)<<36 | 88200
	binary.BigEndian.PutUint64(p[10:], packed)
	for i := 18; i < 34; i++ {
		p[i] = byte(i)
	}
	return p
}

func vorbisPayload() []byte {
	var p []byte
	u32 := func(v uint32) {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], v)
		p = append(p, b[:]...)
	}
	str := func(s string) {
		u32(uint32(len(s)))
		p = append(p, s...)
	}
	str("reference libFLAC 1.4.3")
	u32(2)
	str("TITLE=demo track")
	str("artist=nobody")
	return p
}

func buildFLAC() []byte {
	data := []byte("fLaC")
	data = append(data, block(0, false, streamInfoPayload())...)
	data = append(data, block(3, false, make([]byte, 36))...) // two seek points
	data = append(data, block(4, false, vorbisPayload())...)
	data = append(data, block(1, true, make([]byte, 8))...) // PADDING, last
	return append(data, 0xFF, 0xF8, 0x69, 0x18)             // frame sync stand-in
}

func TestParseRejectsOtherFormats(t *testing.T) {
	assert.Nil(t, Parse(nil))
	assert.Nil(t, Parse([]byte("OggS....")))
	assert.Nil(t, Parse([]byte("fLa")))
}

func TestParseWellFormedRoundTrip(t *testing.T) {
	f := Parse(buildFLAC())
	require.NotNil(t, f)
	assert.Empty(t, f.Issues)

	require.Len(t, f.Blocks, 4)
	assert.Equal(t, "STREAMINFO", f.Blocks[0].TypeName)
	assert.Equal(t, "SEEKTABLE", f.Blocks[1].TypeName)
	assert.Equal(t, "VORBIS_COMMENT", f.Blocks[2].TypeName)
	assert.Equal(t, "PADDING", f.Blocks[3].TypeName)
	assert.True(t, f.Blocks[3].Last)

	require.NotNil(t, f.StreamInfo)
	assert.Equal(t, uint16(4096), f.StreamInfo.MinBlockSize)
	assert.Equal(t, uint32(16), f.StreamInfo.MinFrameSize)
	assert.Equal(t, uint32(44100), f.StreamInfo.SampleRate)
	assert.Equal(t, uint8(2), f.StreamInfo.Channels)
	assert.Equal(t, uint8(16), f.StreamInfo.BitsPerSample)
	assert.Equal(t, uint64(88200), f.StreamInfo.TotalSamples)
	assert.Len(t, f.StreamInfo.MD5, 32)

	assert.Equal(t, 2, f.SeekPoints)
	assert.Equal(t, "reference libFLAC 1.4.3", f.Vendor)
	assert.Equal(t, "demo track", f.Comments["TITLE"])
	assert.Equal(t, "nobody", f.Comments["ARTIST"])

	// Frame data begins right after the last block.
	assert.Equal(t, int64(len(buildFLAC())-4), f.FrameDataOffset)
}

func TestZeroLengthBlockWithoutLastFlagStops(t *testing.T) {
	data := []byte("fLaC")
	data = append(data, block(0, false, streamInfoPayload())...)
	data = append(data, block(1, false, nil)...) // zero length, not last
	data = append(data, block(4, false, vorbisPayload())...)

	f := Parse(data)
	require.NotNil(t, f)
	assert.Contains(t, strings.Join(f.Issues, "\n"), "zero-length metadata block")
	// The walk stopped at the zero-length block.
	require.Len(t, f.Blocks, 2)
	assert.Empty(t, f.Vendor)
	assert.Equal(t, int64(-1), f.FrameDataOffset)
}

func TestUnterminatedChain(t *testing.T) {
	data := []byte("fLaC")
	data = append(data, block(0, false, streamInfoPayload())...)

	f := Parse(data)
	require.NotNil(t, f)
	assert.Contains(t, strings.Join(f.Issues, "\n"), "unterminated")
	assert.Equal(t, int64(-1), f.FrameDataOffset)
}

func TestFirstBlockNotStreamInfo(t *testing.T) {
	data := []byte("fLaC")
	data = append(data, block(1, true, make([]byte, 4))...)

	f := Parse(data)
	require.NotNil(t, f)
	assert.Contains(t, strings.Join(f.Issues, "\n"), "expected STREAMINFO")
	assert.Nil(t, f.StreamInfo)
}

func TestPictureBlock(t *testing.T) {
	var p []byte
	u32 := func(v uint32) {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], v)
		p = append(p, b[:]...)
	}
	u32(3) // front cover
	u32(9)
	p = append(p, "image/png"...)
	u32(5)
	p = append(p, "cover"...)
	u32(640)
	u32(480)

	data := []byte("fLaC")
	data = append(data, block(0, false, streamInfoPayload())...)
	data = append(data, block(6, true, p)...)

	f := Parse(data)
	require.NotNil(t, f)
	require.Len(t, f.Pictures, 1)
	pic := f.Pictures[0]
	assert.Equal(t, uint32(3), pic.Type)
	assert.Equal(t, "image/png", pic.MIME)
	assert.Equal(t, "cover", pic.Description)
	assert.Equal(t, uint32(640), pic.Width)
	assert.Equal(t, uint32(480), pic.Height)
}

func TestTruncationNeverPanics(t *testing.T) {
	full := buildFLAC()
	for k := 0; k <= len(full); k++ {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Fatalf("panic at truncation length %d: %v", k, r)
				}
			}()
			f := Parse(full[:k])
			if k >= 4 {
				assert.NotNil(t, f)
			}
		}()
	}
}

func TestParseIdempotent(t *testing.T) {
	data := buildFLAC()
	assert.Equal(t, Parse(data), Parse(data))
}
