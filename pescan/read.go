package pescan

import (
	"fmt"
	"strings"

	"binspect/common"
)

// parser threads the per-parse state: the file window, the issue sink,
// the coverage list and the RVA map. One parser per Parse call; nothing
// here is shared across files.
type parser struct {
	win      common.Window
	issues   common.Issues
	coverage common.Coverage
	addrMap  *common.AddressMap
	result   *File
}

// Parse decodes a PE image from data. It returns nil when the bytes do
// not carry the MZ/PE signatures (not this format); for any recognized
// input it always returns a structurally complete result, recording
// malformations as issues instead of failing.
func Parse(data []byte) *File {
	w := common.NewWindow(data)

	// Rejection happens only here, at the magic check.
	if b, ok := w.Bytes(0, 2); !ok || b[0] != 'M' || b[1] != 'Z' {
		return nil
	}
	peOffset, ok := w.U32LE(60)
	if !ok {
		return nil
	}
	peOff, ok := common.ToIndex(uint64(peOffset))
	if !ok {
		return nil
	}
	if sig, ok := w.Bytes(peOff, 4); !ok || string(sig) != "PE\x00\x00" {
		return nil
	}

	p := &parser{
		win:     w,
		addrMap: common.NewAddressMap(uint64(w.Size())),
		result: &File{
			DOSHeader: &DOSHeader{PEOffset: peOffset},
		},
	}
	p.coverage.Add("dos header", 0, 64)

	p.parseHeaders(peOff)
	p.parseSections(peOff)
	p.buildAddressMap()
	p.parseDirectories()
	p.analyze()

	p.result.Digests = common.HashBytes(data)
	p.result.Coverage = p.coverage.Regions()
	p.result.Issues = p.issues.List()
	return p.result
}

func (p *parser) parseHeaders(peOff int64) {
	w := p.win

	fh := &FileHeader{}
	var ok bool
	if fh.Machine, ok = w.U16LE(peOff + 4); !ok {
		p.issues.Add("COFF file header extends beyond file")
		return
	}
	fh.NumberOfSections, _ = w.U16LE(peOff + 6)
	fh.TimeDateStamp, _ = w.U32LE(peOff + 8)
	fh.PointerToSymbolTable, _ = w.U32LE(peOff + 12)
	fh.NumberOfSymbols, _ = w.U32LE(peOff + 16)
	fh.SizeOfOptionalHeader, _ = w.U16LE(peOff + 20)
	fh.Characteristics, _ = w.U16LE(peOff + 22)
	fh.MachineName = machineName(fh.Machine)
	if fh.MachineName == "" {
		fh.MachineName = fmt.Sprintf("unknown(0x%x)", fh.Machine)
		p.issues.Addf("unrecognized machine type 0x%x", fh.Machine)
	}
	p.result.FileHeader = fh
	p.coverage.Add("coff header", peOff, 24)

	optOff := peOff + 24
	magic, ok := w.U16LE(optOff)
	if !ok || fh.SizeOfOptionalHeader < 2 {
		p.issues.Add("optional header missing or truncated")
		return
	}

	oh := &OptionalHeader{Magic: magic}
	switch magic {
	case 0x10b:
		oh.AddressOfEntryPoint, _ = w.U32LE(optOff + 16)
		base32, _ := w.U32LE(optOff + 28)
		oh.ImageBase = uint64(base32)
		oh.SectionAlignment, _ = w.U32LE(optOff + 32)
		oh.FileAlignment, _ = w.U32LE(optOff + 36)
		oh.SizeOfImage, _ = w.U32LE(optOff + 56)
		oh.SizeOfHeaders, _ = w.U32LE(optOff + 60)
		oh.CheckSum, _ = w.U32LE(optOff + 64)
		oh.Subsystem, _ = w.U16LE(optOff + 68)
		oh.DllCharacteristics, _ = w.U16LE(optOff + 70)
		oh.NumberOfRvaAndSizes, _ = w.U32LE(optOff + 92)
		p.parseDirectoryTable(optOff+96, oh)
	case 0x20b:
		p.result.Is64Bit = true
		oh.AddressOfEntryPoint, _ = w.U32LE(optOff + 16)
		oh.ImageBase, _ = w.U64LE(optOff + 24)
		oh.SectionAlignment, _ = w.U32LE(optOff + 32)
		oh.FileAlignment, _ = w.U32LE(optOff + 36)
		oh.SizeOfImage, _ = w.U32LE(optOff + 56)
		oh.SizeOfHeaders, _ = w.U32LE(optOff + 60)
		oh.CheckSum, _ = w.U32LE(optOff + 64)
		oh.Subsystem, _ = w.U16LE(optOff + 68)
		oh.DllCharacteristics, _ = w.U16LE(optOff + 70)
		oh.NumberOfRvaAndSizes, _ = w.U32LE(optOff + 108)
		p.parseDirectoryTable(optOff+112, oh)
	default:
		p.issues.Addf("unsupported optional header magic 0x%x", magic)
	}
	p.result.OptionalHeader = oh
	p.coverage.Add("optional header", optOff, int64(fh.SizeOfOptionalHeader))
}

func (p *parser) parseDirectoryTable(tableOff int64, oh *OptionalHeader) {
	count := oh.NumberOfRvaAndSizes
	if count > 16 {
		p.issues.Addf("NumberOfRvaAndSizes %d exceeds 16, clamped", count)
		count = 16
	}
	for i := int64(0); i < int64(count); i++ {
		rva, ok1 := p.win.U32LE(tableOff + i*8)
		size, ok2 := p.win.U32LE(tableOff + i*8 + 4)
		if !ok1 || !ok2 {
			p.issues.Addf("data directory table truncated at entry %d", i)
			break
		}
		p.result.Directories = append(p.result.Directories, Directory{
			Index:          int(i),
			Name:           directoryNames[i],
			VirtualAddress: rva,
			Size:           size,
		})
	}
}

func (p *parser) directory(index int) (Directory, bool) {
	for _, d := range p.result.Directories {
		if d.Index == index && d.VirtualAddress != 0 && d.Size != 0 {
			return d, true
		}
	}
	return Directory{}, false
}

func (p *parser) parseSections(peOff int64) {
	fh := p.result.FileHeader
	if fh == nil {
		return
	}
	count := int(fh.NumberOfSections)
	if count > maxSections {
		p.issues.Addf("NumberOfSections %d exceeds %d, clamped", count, maxSections)
		count = maxSections
	}
	tableOff := peOff + 24 + int64(fh.SizeOfOptionalHeader)

	for i := 0; i < count; i++ {
		off := tableOff + int64(i)*40
		nameBytes, ok := p.win.Bytes(off, 8)
		if !ok {
			p.issues.Addf("section header %d extends beyond file", i)
			break
		}
		s := Section{Index: i, Name: p.sanitizeSectionName(nameBytes, i)}
		s.VirtualSize, _ = p.win.U32LE(off + 8)
		s.VirtualAddress, _ = p.win.U32LE(off + 12)
		s.SizeOfRawData, _ = p.win.U32LE(off + 16)
		s.PointerToRawData, _ = p.win.U32LE(off + 20)
		s.Characteristics, _ = p.win.U32LE(off + 36)
		s.IsExecutable = s.Characteristics&0x20000000 != 0
		s.IsReadable = s.Characteristics&0x40000000 != 0
		s.IsWritable = s.Characteristics&0x80000000 != 0
		p.fillSectionHashes(&s)
		p.result.Sections = append(p.result.Sections, s)
	}
	if len(p.result.Sections) > 0 {
		p.coverage.Add("section table", tableOff, int64(len(p.result.Sections))*40)
	}
}

// buildAddressMap turns the section table into the RVA translator.
// Zero-virtual-size entries cannot be translation targets and are left
// out; the two zero-field combinations get their own diagnostics.
func (p *parser) buildAddressMap() {
	p.result.rvaMap = p.addrMap
	for _, s := range p.result.Sections {
		switch {
		case s.VirtualAddress == 0 && s.VirtualSize > 0:
			p.issues.Addf("section %s has a non-zero size but RVA is 0", s.Name)
			continue
		case s.VirtualAddress != 0 && s.VirtualSize == 0:
			p.issues.Addf("section %s has an RVA but its virtual size is 0", s.Name)
			continue
		case s.VirtualAddress == 0 && s.VirtualSize == 0:
			continue
		}
		p.addrMap.Add(common.AddressRange{
			Label:         s.Name,
			LogicalStart:  uint64(s.VirtualAddress),
			LogicalLength: uint64(s.VirtualSize),
			PhysicalStart: uint64(s.PointerToRawData),
		})
	}
}

// windowAtRVA translates an RVA and returns a window of at most length
// bytes at the mapped file position.
func (p *parser) windowAtRVA(rva, length uint32) (common.Window, bool) {
	phys, avail, ok := p.addrMap.TranslateRange(uint64(rva), uint64(length))
	if !ok {
		return common.Window{}, false
	}
	physOff, ok := common.ToIndex(phys)
	if !ok {
		return common.Window{}, false
	}
	n, ok := common.ToIndex(avail)
	if !ok {
		return common.Window{}, false
	}
	return p.win.Slice(physOff, n)
}

// stringAtRVA reads a NUL-terminated ASCII string at an RVA.
func (p *parser) stringAtRVA(rva uint32, max int64) (string, bool) {
	phys, ok := p.addrMap.Translate(uint64(rva))
	if !ok {
		return "", false
	}
	physOff, ok := common.ToIndex(phys)
	if !ok {
		return "", false
	}
	return p.win.CString(physOff, max)
}

func (p *parser) fillSectionHashes(s *Section) {
	off, okOff := common.ToIndex(uint64(s.PointerToRawData))
	size, okSize := common.ToIndex(uint64(s.SizeOfRawData))
	if !okOff || !okSize || size == 0 {
		return
	}
	data, ok := p.win.Bytes(off, size)
	if !ok {
		p.issues.Addf("section %s raw data extends beyond file", s.Name)
		return
	}
	d := common.HashBytes(data)
	s.MD5Hash = d.MD5
	s.SHA1Hash = d.SHA1
	s.SHA256Hash = d.SHA256
	s.Entropy = common.CalculateEntropy(data)
	p.coverage.Add("section "+s.Name, off, size)
}

// sanitizeSectionName keeps corrupted names printable so reports and
// issue strings stay readable.
func (p *parser) sanitizeSectionName(nameBytes []byte, index int) string {
	name := strings.TrimRight(string(nameBytes), "\x00")
	for _, r := range name {
		if r < 32 || r > 126 {
			return fmt.Sprintf("<mangled_%d>", index)
		}
	}
	if name == "" {
		return fmt.Sprintf("<unnamed_%d>", index)
	}
	return name
}

// analyze computes header/section extents and flags trailing overlay
// data that belongs to no declared structure.
func (p *parser) analyze() {
	end := p.coverage.End()
	if sec := p.result.Authenticode; sec != nil {
		if e, ok := common.AddOffsets(sec.FileOffset, sec.Length); ok && e > end {
			end = e
		}
	}
	if end > 0 && end < p.win.Size() {
		p.result.HasOverlay = true
		p.result.OverlayOffset = end
		p.result.OverlaySize = p.win.Size() - end
	}
}
