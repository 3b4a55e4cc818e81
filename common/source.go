package common

import (
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
)

// Source is the only capability the parsers need from backing storage:
// a finite, randomly sliceable byte range. No write, no append.
type Source interface {
	Size() int64
	ReadRange(offset, length int64) ([]byte, error)
}

// BytesSource serves an in-memory buffer.
type BytesSource struct {
	data []byte
}

// NewBytesSource wraps a byte slice.
func NewBytesSource(data []byte) *BytesSource {
	return &BytesSource{data: data}
}

func (s *BytesSource) Size() int64 {
	return int64(len(s.data))
}

func (s *BytesSource) ReadRange(offset, length int64) ([]byte, error) {
	if offset < 0 || length < 0 || offset > s.Size() || length > s.Size()-offset {
		return nil, fmt.Errorf("read beyond source limits: offset %d, length %d, size %d",
			offset, length, s.Size())
	}
	return s.data[offset : offset+length], nil
}

// Window exposes the whole source as a parse window.
func (s *BytesSource) Window() Window {
	return NewWindow(s.data)
}

// MmapSource maps a file read-only so large inputs are paged in on
// demand instead of copied up front.
type MmapSource struct {
	file *os.File
	m    mmap.MMap
}

// OpenMmap maps path read-only. Empty files cannot be mapped; callers
// should fall back to NewBytesSource for them.
func OpenMmap(path string) (*MmapSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	m, err := mmap.Map(file, mmap.RDONLY, 0)
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to mmap %s: %w", path, err)
	}
	return &MmapSource{file: file, m: m}, nil
}

func (s *MmapSource) Size() int64 {
	return int64(len(s.m))
}

func (s *MmapSource) ReadRange(offset, length int64) ([]byte, error) {
	if offset < 0 || length < 0 || offset > s.Size() || length > s.Size()-offset {
		return nil, fmt.Errorf("read beyond source limits: offset %d, length %d, size %d",
			offset, length, s.Size())
	}
	return s.m[offset : offset+length], nil
}

// Window exposes the mapped file as a parse window. The window is only
// valid until Close.
func (s *MmapSource) Window() Window {
	return NewWindow(s.m)
}

// Close unmaps the file and closes the descriptor.
func (s *MmapSource) Close() error {
	var firstErr error
	if s.m != nil {
		if err := s.m.Unmap(); err != nil {
			firstErr = fmt.Errorf("failed to unmap: %w", err)
		}
		s.m = nil
	}
	if s.file != nil {
		if err := s.file.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close file: %w", err)
		}
		s.file = nil
	}
	return firstErr
}
