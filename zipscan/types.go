package zipscan

import "binspect/common"

// File is the decoded view of a ZIP archive, anchored at the end of
// central directory record found by the tail scan.
type File struct {
	EOCDOffset     int64
	DeclaredCount  uint16
	CDOffset       uint32
	CDSize         uint32
	Comment        string
	PrependedBytes int64
	ZIP64          bool

	Entries []Entry

	Issues   []string
	Coverage []common.Region
}

// Entry is one central directory record.
type Entry struct {
	Name              string
	Flags             uint16
	Method            uint16
	MethodName        string
	ModTime           uint16
	ModDate           uint16
	CRC32             uint32
	CompressedSize    uint32
	UncompressedSize  uint32
	LocalHeaderOffset uint32
}

const (
	sigEOCD    = 0x06054B50
	sigZIP64L  = 0x07064B50
	sigCentral = 0x02014B50
	sigLocal   = 0x04034B50

	eocdFixedLen   = 22
	eocdScanWindow = 64*1024 + eocdFixedLen

	maxEntries    = 65535
	maxNameLength = 4096
)

func methodName(m uint16) string {
	switch m {
	case 0:
		return "store"
	case 8:
		return "deflate"
	case 9:
		return "deflate64"
	case 12:
		return "bzip2"
	case 14:
		return "lzma"
	case 93:
		return "zstd"
	case 99:
		return "aes"
	default:
		return ""
	}
}
