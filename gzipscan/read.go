package gzipscan

import (
	"binspect/common"
)

// File is the decoded gzip member header and trailer. The deflate
// stream itself is located, never inflated.
type File struct {
	ModTime    uint32
	ExtraFlags uint8
	OS         uint8
	OSName     string

	Name       string
	Comment    string
	ExtraLen   uint16
	HeaderCRC  bool
	TextHinted bool

	DeflateOffset int64
	CRC32         uint32
	ISize         uint32
	HasTrailer    bool

	Issues   []string
	Coverage []common.Region
}

const (
	flagText    = 0x01
	flagHCRC    = 0x02
	flagExtra   = 0x04
	flagName    = 0x08
	flagComment = 0x10

	maxStringLen = 4096
)

func osName(os uint8) string {
	switch os {
	case 0:
		return "FAT"
	case 3:
		return "Unix"
	case 7:
		return "Macintosh"
	case 11:
		return "NTFS"
	case 255:
		return "unknown"
	default:
		return ""
	}
}

// Parse decodes a gzip member from data, returning nil unless the
// two-byte magic and the deflate method byte are present.
func Parse(data []byte) *File {
	w := common.NewWindow(data)
	sig, ok := w.Bytes(0, 3)
	if !ok || sig[0] != 0x1F || sig[1] != 0x8B {
		return nil
	}

	var issues common.Issues
	var coverage common.Coverage
	r := &File{DeflateOffset: -1}

	if sig[2] != 0x08 {
		issues.Addf("compression method %d is not deflate", sig[2])
	}
	flags, ok := w.U8(3)
	if !ok {
		issues.Add("header ends before the flag byte")
		r.Issues = issues.List()
		return r
	}
	r.TextHinted = flags&flagText != 0
	if flags&0xE0 != 0 {
		issues.Addf("reserved flag bits 0x%02X set", flags&0xE0)
	}
	r.ModTime, _ = w.U32LE(4)
	r.ExtraFlags, _ = w.U8(8)
	r.OS, _ = w.U8(9)
	r.OSName = osName(r.OS)

	off := int64(10)
	truncated := func(what string) *File {
		issues.Addf("header truncated inside the %s field", what)
		r.Issues = issues.List()
		r.Coverage = coverage.Regions()
		return r
	}

	if flags&flagExtra != 0 {
		xlen, ok := w.U16LE(off)
		if !ok {
			return truncated("FEXTRA length")
		}
		r.ExtraLen = xlen
		off += 2 + int64(xlen)
		if off > w.Size() {
			return truncated("FEXTRA data")
		}
	}
	if flags&flagName != 0 {
		name, ok := w.CString(off, maxStringLen)
		if !ok {
			return truncated("FNAME")
		}
		r.Name = name
		off += int64(len(name)) + 1
		if off > w.Size() {
			return truncated("FNAME")
		}
	}
	if flags&flagComment != 0 {
		comment, ok := w.CString(off, maxStringLen)
		if !ok {
			return truncated("FCOMMENT")
		}
		r.Comment = comment
		off += int64(len(comment)) + 1
		if off > w.Size() {
			return truncated("FCOMMENT")
		}
	}
	if flags&flagHCRC != 0 {
		if _, ok := w.U16LE(off); !ok {
			return truncated("FHCRC")
		}
		r.HeaderCRC = true
		off += 2
	}

	r.DeflateOffset = off
	coverage.Add("member header", 0, off)

	// The trailer carries the CRC and the uncompressed size modulo
	// 2^32, readable whenever any compressed body exists.
	if w.Size() >= off+8 {
		r.CRC32, _ = w.U32LE(w.Size() - 8)
		r.ISize, _ = w.U32LE(w.Size() - 4)
		r.HasTrailer = true
		coverage.Add("deflate stream", off, w.Size()-8-off)
		coverage.Add("trailer", w.Size()-8, 8)
	} else {
		issues.Add("no room for the CRC32/ISIZE trailer after the header")
	}

	r.Issues = issues.List()
	r.Coverage = coverage.Regions()
	return r
}
