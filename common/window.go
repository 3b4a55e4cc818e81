package common

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Window is an immutable, bounds-checked view over a byte buffer.
// All read offsets are relative to the window start; every accessor
// reports failure through its bool return instead of panicking, so a
// truncated or hostile file can never cause an out-of-range read.
// Panics are reserved for programmer errors (negative offset/width).
type Window struct {
	buf   []byte
	start int64
	size  int64
}

// NewWindow wraps an entire buffer as a window starting at file offset 0.
func NewWindow(buf []byte) Window {
	return Window{buf: buf, start: 0, size: int64(len(buf))}
}

// Size returns the number of bytes visible through the window.
func (w Window) Size() int64 {
	return w.size
}

// Start returns the absolute file offset of the window start.
// Coverage regions are recorded in absolute offsets.
func (w Window) Start() int64 {
	return w.start
}

// FileSize returns the size of the backing buffer.
func (w Window) FileSize() int64 {
	return int64(len(w.buf))
}

func (w Window) check(off, n int64) bool {
	if off < 0 || n < 0 {
		panic(fmt.Sprintf("negative read: offset %d, width %d", off, n))
	}
	if off > w.size || n > w.size-off {
		return false
	}
	abs := w.start + off
	return abs >= 0 && abs+n <= int64(len(w.buf))
}

// Slice returns a child window of n bytes starting at offset off.
// The child keeps absolute file offsets, so nested parsers can still
// attribute coverage correctly.
func (w Window) Slice(off, n int64) (Window, bool) {
	if !w.check(off, n) {
		return Window{}, false
	}
	return Window{buf: w.buf, start: w.start + off, size: n}, true
}

// Tail returns the window from off to the window end.
func (w Window) Tail(off int64) (Window, bool) {
	if off < 0 {
		panic(fmt.Sprintf("negative offset %d", off))
	}
	if off > w.size {
		return Window{}, false
	}
	return w.Slice(off, w.size-off)
}

// Bytes returns a read-only slice of n bytes at off. The slice aliases
// the backing buffer; callers must not modify it.
func (w Window) Bytes(off, n int64) ([]byte, bool) {
	if !w.check(off, n) {
		return nil, false
	}
	abs := w.start + off
	return w.buf[abs : abs+n : abs+n], true
}

func (w Window) U8(off int64) (uint8, bool) {
	b, ok := w.Bytes(off, 1)
	if !ok {
		return 0, false
	}
	return b[0], true
}

func (w Window) U16LE(off int64) (uint16, bool) {
	b, ok := w.Bytes(off, 2)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint16(b), true
}

func (w Window) U16BE(off int64) (uint16, bool) {
	b, ok := w.Bytes(off, 2)
	if !ok {
		return 0, false
	}
	return binary.BigEndian.Uint16(b), true
}

func (w Window) U32LE(off int64) (uint32, bool) {
	b, ok := w.Bytes(off, 4)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint32(b), true
}

func (w Window) U32BE(off int64) (uint32, bool) {
	b, ok := w.Bytes(off, 4)
	if !ok {
		return 0, false
	}
	return binary.BigEndian.Uint32(b), true
}

func (w Window) U64LE(off int64) (uint64, bool) {
	b, ok := w.Bytes(off, 8)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint64(b), true
}

func (w Window) U64BE(off int64) (uint64, bool) {
	b, ok := w.Bytes(off, 8)
	if !ok {
		return 0, false
	}
	return binary.BigEndian.Uint64(b), true
}

// U24BE reads a 3-byte big-endian integer (FLAC block lengths).
func (w Window) U24BE(off int64) (uint32, bool) {
	b, ok := w.Bytes(off, 3)
	if !ok {
		return 0, false
	}
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2]), true
}

// FixedString reads n bytes and trims trailing NULs, the layout used by
// PE section names and RIFF/MP4 four-byte tags alike.
func (w Window) FixedString(off, n int64) (string, bool) {
	b, ok := w.Bytes(off, n)
	if !ok {
		return "", false
	}
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	return string(b[:end]), true
}

// CString reads a NUL-terminated string of at most max bytes. A string
// running to the window end without a terminator is returned as-is.
func (w Window) CString(off, max int64) (string, bool) {
	if off < 0 || max < 0 {
		panic(fmt.Sprintf("negative read: offset %d, max %d", off, max))
	}
	if off >= w.size {
		return "", false
	}
	n := min(max, w.size-off)
	b, ok := w.Bytes(off, n)
	if !ok {
		return "", false
	}
	for i, c := range b {
		if c == 0 {
			return string(b[:i]), true
		}
	}
	return string(b), true
}

// GUID reads a 16-byte GUID in the mixed-endian Microsoft layout.
func (w Window) GUID(off int64) (string, bool) {
	b, ok := w.Bytes(off, 16)
	if !ok {
		return "", false
	}
	return DecodeGUID(b), true
}

// AddOffsets adds two non-negative offsets, failing instead of wrapping.
// All size/offset sums that come from file content go through here (or
// its unsigned twin) before being used as a cursor or index.
func AddOffsets(a, b int64) (int64, bool) {
	if a < 0 || b < 0 {
		return 0, false
	}
	if a > math.MaxInt64-b {
		return 0, false
	}
	return a + b, true
}

// ToIndex narrows an unsigned 64-bit value from file content to an
// int64 index. Values above the int64 range cannot index any real
// buffer and are reported as unrepresentable rather than wrapped.
func ToIndex(v uint64) (int64, bool) {
	if v > math.MaxInt64 {
		return 0, false
	}
	return int64(v), true
}
