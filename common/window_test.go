package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowReads(t *testing.T) {
	w := NewWindow([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09})

	v8, ok := w.U8(0)
	require.True(t, ok)
	assert.Equal(t, uint8(0x01), v8)

	v16, ok := w.U16LE(0)
	require.True(t, ok)
	assert.Equal(t, uint16(0x0201), v16)

	v16be, ok := w.U16BE(0)
	require.True(t, ok)
	assert.Equal(t, uint16(0x0102), v16be)

	v32, ok := w.U32LE(1)
	require.True(t, ok)
	assert.Equal(t, uint32(0x05040302), v32)

	v64, ok := w.U64BE(1)
	require.True(t, ok)
	assert.Equal(t, uint64(0x0203040506070809), v64)

	v24, ok := w.U24BE(0)
	require.True(t, ok)
	assert.Equal(t, uint32(0x010203), v24)
}

func TestWindowShortReadsFail(t *testing.T) {
	w := NewWindow([]byte{0x01, 0x02, 0x03})

	_, ok := w.U32LE(0)
	assert.False(t, ok)

	_, ok = w.U16LE(2)
	assert.False(t, ok)

	_, ok = w.U8(3)
	assert.False(t, ok)

	_, ok = w.Bytes(0, 4)
	assert.False(t, ok)

	// Reads at the exact boundary still work.
	_, ok = w.U8(2)
	assert.True(t, ok)
}

func TestWindowNegativeWidthPanics(t *testing.T) {
	w := NewWindow([]byte{1, 2, 3})
	assert.Panics(t, func() { w.Bytes(0, -1) })
	assert.Panics(t, func() { w.Bytes(-1, 1) })
}

func TestWindowSliceKeepsAbsoluteOffsets(t *testing.T) {
	w := NewWindow(make([]byte, 100))

	child, ok := w.Slice(10, 50)
	require.True(t, ok)
	assert.Equal(t, int64(10), child.Start())
	assert.Equal(t, int64(50), child.Size())

	grandchild, ok := child.Slice(5, 10)
	require.True(t, ok)
	assert.Equal(t, int64(15), grandchild.Start())

	_, ok = child.Slice(45, 6)
	assert.False(t, ok)

	tail, ok := child.Tail(40)
	require.True(t, ok)
	assert.Equal(t, int64(10), tail.Size())
}

func TestWindowStrings(t *testing.T) {
	w := NewWindow([]byte{'.', 't', 'e', 'x', 't', 0, 0, 0, 'a', 'b', 'c'})

	s, ok := w.FixedString(0, 8)
	require.True(t, ok)
	assert.Equal(t, ".text", s)

	s, ok = w.CString(0, 64)
	require.True(t, ok)
	assert.Equal(t, ".text", s)

	// Unterminated string runs to the window end.
	s, ok = w.CString(8, 64)
	require.True(t, ok)
	assert.Equal(t, "abc", s)
}

func TestDecodeGUID(t *testing.T) {
	// ASF header object GUID 75B22630-668E-11CF-A6D9-00AA0062CE6C
	// in its on-disk byte order.
	raw := []byte{
		0x30, 0x26, 0xb2, 0x75, 0x8e, 0x66, 0xcf, 0x11,
		0xa6, 0xd9, 0x00, 0xaa, 0x00, 0x62, 0xce, 0x6c,
	}
	assert.Equal(t, "75b22630-668e-11cf-a6d9-00aa0062ce6c", DecodeGUID(raw))

	w := NewWindow(raw)
	g, ok := w.GUID(0)
	require.True(t, ok)
	assert.Equal(t, "75b22630-668e-11cf-a6d9-00aa0062ce6c", g)
}

func TestAddOffsets(t *testing.T) {
	v, ok := AddOffsets(10, 20)
	require.True(t, ok)
	assert.Equal(t, int64(30), v)

	_, ok = AddOffsets(1<<62, 1<<62)
	assert.False(t, ok)

	_, ok = AddOffsets(-1, 5)
	assert.False(t, ok)
}

func TestToIndex(t *testing.T) {
	v, ok := ToIndex(42)
	require.True(t, ok)
	assert.Equal(t, int64(42), v)

	_, ok = ToIndex(1 << 63)
	assert.False(t, ok)
}

func TestIssuesCap(t *testing.T) {
	var sink Issues
	for i := 0; i < MaxIssues+50; i++ {
		sink.Addf("issue %d", i)
	}
	assert.Equal(t, MaxIssues, sink.Len())
	assert.Equal(t, "issue 0", sink.List()[0])

	var empty Issues
	assert.NotNil(t, empty.List())
	assert.Empty(t, empty.List())
}
