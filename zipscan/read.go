package zipscan

import (
	"fmt"

	"binspect/common"
)

type parser struct {
	win      common.Window
	issues   common.Issues
	coverage common.Coverage
	result   *File
}

// Parse decodes a ZIP archive from data. ZIP has no leading magic, so
// recognition is the backward scan for the end-of-central-directory
// record over the final 64 KiB; Parse returns nil when no record is
// found anywhere in that window.
func Parse(data []byte) *File {
	w := common.NewWindow(data)
	eocd := findEOCD(w)
	if eocd < 0 {
		return nil
	}

	p := &parser{win: w, result: &File{EOCDOffset: eocd}}
	p.parseEOCD(eocd)
	p.parseCentralDirectory()
	p.result.Issues = p.issues.List()
	p.result.Coverage = p.coverage.Regions()
	return p.result
}

// findEOCD scans backward for the EOCD signature. The record is 22
// bytes plus a comment of at most 64 KiB, so nothing earlier in the
// file can hold it.
func findEOCD(w common.Window) int64 {
	lo := w.Size() - eocdScanWindow
	if lo < 0 {
		lo = 0
	}
	for off := w.Size() - eocdFixedLen; off >= lo; off-- {
		if sig, ok := w.U32LE(off); ok && sig == sigEOCD {
			return off
		}
	}
	return -1
}

func (p *parser) parseEOCD(off int64) {
	r := p.result
	diskNum, _ := p.win.U16LE(off + 4)
	cdDisk, _ := p.win.U16LE(off + 6)
	r.DeclaredCount, _ = p.win.U16LE(off + 10)
	r.CDSize, _ = p.win.U32LE(off + 12)
	r.CDOffset, _ = p.win.U32LE(off + 16)
	commentLen, _ := p.win.U16LE(off + 20)

	if diskNum != 0 || cdDisk != 0 {
		p.issues.Add("multi-disk archive, only the final disk is visible")
	}
	if comment, ok := p.win.FixedString(off+22, int64(commentLen)); ok {
		r.Comment = comment
	} else if commentLen > 0 {
		p.issues.Addf("archive comment declared %d bytes but file ends early", commentLen)
	}

	// ZIP64 locator sits immediately before the EOCD when present.
	if off >= 20 {
		if sig, ok := p.win.U32LE(off - 20); ok && sig == sigZIP64L {
			r.ZIP64 = true
			p.issues.Add("ZIP64 end of central directory locator present, 64-bit fields not decoded")
		}
	}

	// Self-extracting archives and other prepended data shift the
	// central directory from its declared offset.
	declaredEnd, ok := common.AddOffsets(int64(r.CDOffset), int64(r.CDSize))
	if !ok || declaredEnd > off {
		p.issues.Add("central directory size and offset are inconsistent with the EOCD position")
		return
	}
	r.PrependedBytes = off - declaredEnd
	if r.PrependedBytes > 0 {
		p.coverage.Add("prepended data", 0, r.PrependedBytes)
	}
}

func (p *parser) parseCentralDirectory() {
	r := p.result
	if r.CDSize == 0 {
		if r.DeclaredCount != 0 {
			p.issues.Addf("EOCD declares %d entries but a zero-size central directory", r.DeclaredCount)
		}
		return
	}
	start, ok := common.AddOffsets(int64(r.CDOffset), r.PrependedBytes)
	if !ok {
		return
	}
	cd, sliceOK := p.win.Slice(start, int64(r.CDSize))
	if !sliceOK {
		p.issues.Add("central directory runs past end of file")
		return
	}
	p.coverage.Add("central directory", start, int64(r.CDSize))

	cfg := common.WalkConfig{MaxItems: maxEntries, MinHeaderSize: 46, Label: "central directory entry"}
	common.Walk(cd, decodeCentralEntry, cfg, &p.issues, func(h common.ElementHeader, payload common.Window) bool {
		r.Entries = append(r.Entries, p.readEntry(cd, h))
		return true
	})

	if len(r.Entries) != int(r.DeclaredCount) {
		p.issues.Addf("EOCD declares %d entries, central directory holds %d", r.DeclaredCount, len(r.Entries))
	}
	if len(r.Entries) > 0 {
		p.crossCheckLocal(r.Entries[0])
	}
}

// decodeCentralEntry treats one 46-byte fixed header plus its three
// variable-length trailers as a walker element.
func decodeCentralEntry(w common.Window, off int64) (common.ElementHeader, bool) {
	sig, ok := w.U32LE(off)
	if !ok || sig != sigCentral {
		return common.ElementHeader{}, false
	}
	nameLen, _ := w.U16LE(off + 28)
	extraLen, _ := w.U16LE(off + 30)
	commentLen, _ := w.U16LE(off + 32)
	return common.ElementHeader{
		Tag:          "PK\x01\x02",
		DeclaredSize: int64(nameLen) + int64(extraLen) + int64(commentLen),
		HeaderLen:    46,
		DataStart:    off + 46,
	}, true
}

func (p *parser) readEntry(cd common.Window, h common.ElementHeader) Entry {
	base := h.DataStart - h.HeaderLen
	var e Entry
	e.Flags, _ = cd.U16LE(base + 8)
	e.Method, _ = cd.U16LE(base + 10)
	e.MethodName = methodName(e.Method)
	if e.MethodName == "" {
		e.MethodName = fmt.Sprintf("unknown(%d)", e.Method)
	}
	e.ModTime, _ = cd.U16LE(base + 12)
	e.ModDate, _ = cd.U16LE(base + 14)
	e.CRC32, _ = cd.U32LE(base + 16)
	e.CompressedSize, _ = cd.U32LE(base + 20)
	e.UncompressedSize, _ = cd.U32LE(base + 24)
	e.LocalHeaderOffset, _ = cd.U32LE(base + 42)

	nameLen, _ := cd.U16LE(base + 28)
	if int64(nameLen) > maxNameLength {
		p.issues.Addf("entry name of %d bytes exceeds the cap, truncated", nameLen)
		nameLen = maxNameLength
	}
	e.Name, _ = cd.FixedString(h.DataStart, int64(nameLen))
	return e
}

// crossCheckLocal verifies the first entry's local header, the cheap
// smoke test that the archive body matches its directory.
func (p *parser) crossCheckLocal(e Entry) {
	off, ok := common.AddOffsets(int64(e.LocalHeaderOffset), p.result.PrependedBytes)
	if !ok {
		return
	}
	sig, readOK := p.win.U32LE(off)
	if !readOK || sig != sigLocal {
		p.issues.Addf("entry %q: no local file header at declared offset %d", e.Name, e.LocalHeaderOffset)
		return
	}
	method, _ := p.win.U16LE(off + 8)
	if method != e.Method {
		p.issues.Addf("entry %q: local header method %d disagrees with central directory %d",
			e.Name, method, e.Method)
	}
}
