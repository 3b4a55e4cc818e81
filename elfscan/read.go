package elfscan

import (
	"fmt"

	"binspect/common"
)

// parser owns the per-parse state, including the endianness-aware
// field readers selected from the ident bytes.
type parser struct {
	win      common.Window
	issues   common.Issues
	coverage common.Coverage
	addrMap  *common.AddressMap
	result   *File
}

// Parse decodes an ELF object from data. It returns nil when the
// \x7fELF magic is absent; any recognized input produces a complete
// (possibly sparse) result with malformations noted as issues.
func Parse(data []byte) *File {
	w := common.NewWindow(data)
	if b, ok := w.Bytes(0, 4); !ok || string(b) != "\x7fELF" {
		return nil
	}

	p := &parser{
		win:     w,
		addrMap: common.NewAddressMap(uint64(w.Size())),
		result:  &File{},
	}

	class, _ := w.U8(4)
	encoding, _ := w.U8(5)
	p.result.OSABI, _ = w.U8(7)

	switch class {
	case 1:
	case 2:
		p.result.Is64Bit = true
	default:
		p.issues.Addf("invalid ELF class %d", class)
		p.finish()
		return p.result
	}
	switch encoding {
	case 1:
	case 2:
		p.result.BigEndian = true
	default:
		p.issues.Addf("invalid ELF data encoding %d", encoding)
		p.finish()
		return p.result
	}

	p.parseHeader()
	p.parseSegments()
	p.parseSections()
	p.parseInterp()
	p.parseDynamic()
	p.analyze()
	p.finish()
	return p.result
}

func (p *parser) finish() {
	p.result.Digests = common.HashBytes(mustBytes(p.win))
	p.result.Coverage = p.coverage.Regions()
	p.result.Issues = p.issues.List()
	p.result.vaddrMap = p.addrMap
}

func mustBytes(w common.Window) []byte {
	b, _ := w.Bytes(0, w.Size())
	return b
}

func (p *parser) u16(off int64) (uint16, bool) {
	if p.result.BigEndian {
		return p.win.U16BE(off)
	}
	return p.win.U16LE(off)
}

func (p *parser) u32(off int64) (uint32, bool) {
	if p.result.BigEndian {
		return p.win.U32BE(off)
	}
	return p.win.U32LE(off)
}

func (p *parser) u64(off int64) (uint64, bool) {
	if p.result.BigEndian {
		return p.win.U64BE(off)
	}
	return p.win.U64LE(off)
}

// word reads the natural word size for the file class, widening 32-bit
// values so all downstream arithmetic is uniformly 64-bit.
func (p *parser) word(off int64) (uint64, bool) {
	if p.result.Is64Bit {
		return p.u64(off)
	}
	v, ok := p.u32(off)
	return uint64(v), ok
}

// header field offsets that differ between the two classes
type layout struct {
	ehSize      int64
	phoffAt     int64
	shoffAt     int64
	phentMin    int64
	shentMin    int64
	phEntsizeAt int64
	phNumAt     int64
	shEntsizeAt int64
	shNumAt     int64
	shStrNdxAt  int64
}

func (p *parser) layout() layout {
	if p.result.Is64Bit {
		return layout{
			ehSize: 64, phoffAt: 32, shoffAt: 40, phentMin: 56, shentMin: 64,
			phEntsizeAt: 54, phNumAt: 56, shEntsizeAt: 58, shNumAt: 60, shStrNdxAt: 62,
		}
	}
	return layout{
		ehSize: 52, phoffAt: 28, shoffAt: 32, phentMin: 32, shentMin: 40,
		phEntsizeAt: 42, phNumAt: 44, shEntsizeAt: 46, shNumAt: 48, shStrNdxAt: 50,
	}
}

func (p *parser) parseHeader() {
	r := p.result
	var ok bool
	if r.Type, ok = p.u16(16); !ok {
		p.issues.Add("ELF header extends beyond file")
		return
	}
	r.Machine, _ = p.u16(18)
	r.EntryPoint, _ = p.word(24)
	lay := p.layout()
	r.ProgramCount, _ = p.u16(lay.phNumAt)
	r.SectionCount, _ = p.u16(lay.shNumAt)

	r.TypeName = typeName(r.Type)
	if r.TypeName == "" {
		r.TypeName = fmt.Sprintf("unknown(0x%x)", r.Type)
		p.issues.Addf("unrecognized ELF type 0x%x", r.Type)
	}
	r.MachineName = machineName(r.Machine)
	if r.MachineName == "" {
		r.MachineName = fmt.Sprintf("unknown(0x%x)", r.Machine)
	}
	p.coverage.Add("elf header", 0, lay.ehSize)
}

func (p *parser) parseSegments() {
	lay := p.layout()
	phoff, ok1 := p.word(lay.phoffAt)
	entSize, ok2 := p.u16(lay.phEntsizeAt)
	count := int(p.result.ProgramCount)
	if !ok1 || !ok2 || phoff == 0 || count == 0 {
		return
	}
	if count > maxSegments {
		p.issues.Addf("program header count %d exceeds %d, clamped", count, maxSegments)
		count = maxSegments
	}
	stride := int64(entSize)
	if stride < lay.phentMin {
		p.issues.Addf("program header entry size %d below minimum %d, using minimum", entSize, lay.phentMin)
		stride = lay.phentMin
	}
	base, ok := common.ToIndex(phoff)
	if !ok {
		p.issues.Add("program header table offset is unrepresentable")
		return
	}

	for i := 0; i < count; i++ {
		off, ok := common.AddOffsets(base, int64(i)*stride)
		if !ok {
			break
		}
		seg, ok := p.readSegment(off, i)
		if !ok {
			p.issues.Addf("program header %d extends beyond file", i)
			break
		}
		p.result.Segments = append(p.result.Segments, seg)
		if seg.Loadable && seg.FileSize > 0 {
			p.addrMap.Add(common.AddressRange{
				Label:         fmt.Sprintf("segment %d", i),
				LogicalStart:  seg.Vaddr,
				LogicalLength: seg.FileSize,
				PhysicalStart: seg.Offset,
			})
		}
	}
	if n := len(p.result.Segments); n > 0 {
		p.coverage.Add("program header table", base, int64(n)*stride)
	}
}

func (p *parser) readSegment(off int64, index int) (Segment, bool) {
	seg := Segment{Index: index}
	var ok bool
	if seg.Type, ok = p.u32(off); !ok {
		return seg, false
	}
	if p.result.Is64Bit {
		seg.Flags, _ = p.u32(off + 4)
		seg.Offset, _ = p.u64(off + 8)
		seg.Vaddr, _ = p.u64(off + 16)
		seg.FileSize, _ = p.u64(off + 32)
		seg.MemSize, _ = p.u64(off + 40)
		if seg.Align, ok = p.u64(off + 48); !ok {
			return seg, false
		}
	} else {
		off32 := func(at int64) uint64 { v, _ := p.u32(at); return uint64(v) }
		seg.Offset = off32(off + 4)
		seg.Vaddr = off32(off + 8)
		seg.FileSize = off32(off + 16)
		seg.MemSize = off32(off + 20)
		seg.Flags, _ = p.u32(off + 24)
		var align uint32
		if align, ok = p.u32(off + 28); !ok {
			return seg, false
		}
		seg.Align = uint64(align)
	}
	seg.TypeName = segmentTypeName(seg.Type)
	if seg.TypeName == "" {
		seg.TypeName = fmt.Sprintf("unknown(0x%x)", seg.Type)
	}
	seg.Loadable = seg.Type == ptLoad
	return seg, true
}

func (p *parser) parseSections() {
	lay := p.layout()
	shoff, ok1 := p.word(lay.shoffAt)
	entSize, ok2 := p.u16(lay.shEntsizeAt)
	strndx, _ := p.u16(lay.shStrNdxAt)
	count := int(p.result.SectionCount)
	if !ok1 || !ok2 || shoff == 0 || count == 0 {
		return
	}
	if count > maxSections {
		p.issues.Addf("section header count %d exceeds %d, clamped", count, maxSections)
		count = maxSections
	}
	stride := int64(entSize)
	if stride < lay.shentMin {
		p.issues.Addf("section header entry size %d below minimum %d, using minimum", entSize, lay.shentMin)
		stride = lay.shentMin
	}
	base, ok := common.ToIndex(shoff)
	if !ok {
		p.issues.Add("section header table offset is unrepresentable")
		return
	}

	type rawSection struct {
		nameOff uint32
		sec     Section
	}
	var raw []rawSection
	for i := 0; i < count; i++ {
		off, ok := common.AddOffsets(base, int64(i)*stride)
		if !ok {
			break
		}
		nameOff, okName := p.u32(off)
		if !okName {
			p.issues.Addf("section header %d extends beyond file", i)
			break
		}
		sec := Section{Index: i}
		sec.Type, _ = p.u32(off + 4)
		if p.result.Is64Bit {
			sec.Flags, _ = p.u64(off + 8)
			sec.Addr, _ = p.u64(off + 16)
			sec.Offset, _ = p.u64(off + 24)
			sec.Size, _ = p.u64(off + 32)
		} else {
			f32, _ := p.u32(off + 8)
			sec.Flags = uint64(f32)
			a32, _ := p.u32(off + 12)
			sec.Addr = uint64(a32)
			o32, _ := p.u32(off + 16)
			sec.Offset = uint64(o32)
			s32, _ := p.u32(off + 20)
			sec.Size = uint64(s32)
		}
		raw = append(raw, rawSection{nameOff: nameOff, sec: sec})
	}

	// Resolve names through the section header string table.
	var strtab common.Window
	haveStrtab := false
	if int(strndx) < len(raw) {
		sh := raw[strndx].sec
		offIdx, okOff := common.ToIndex(sh.Offset)
		szIdx, okSz := common.ToIndex(sh.Size)
		if okOff && okSz {
			if wnd, ok := p.win.Slice(offIdx, szIdx); ok {
				strtab = wnd
				haveStrtab = true
			} else {
				p.issues.Add("section name string table extends beyond file")
			}
		}
	} else if strndx != 0 {
		p.issues.Addf("section name table index %d out of range", strndx)
	}

	for _, r := range raw {
		sec := r.sec
		if haveStrtab {
			if name, ok := strtab.CString(int64(r.nameOff), 256); ok {
				sec.Name = name
			}
		}
		p.fillSectionEntropy(&sec)
		p.result.Sections = append(p.result.Sections, sec)
	}
	if n := len(raw); n > 0 {
		p.coverage.Add("section header table", base, int64(n)*stride)
	}
}

const shtNobits = 8

func (p *parser) fillSectionEntropy(sec *Section) {
	if sec.Size == 0 || sec.Type == shtNobits {
		return
	}
	off, okOff := common.ToIndex(sec.Offset)
	size, okSize := common.ToIndex(sec.Size)
	if !okOff || !okSize {
		return
	}
	data, ok := p.win.Bytes(off, size)
	if !ok {
		p.issues.Addf("section %s data extends beyond file", sec.Name)
		return
	}
	sec.Entropy = common.CalculateEntropy(data)
	label := sec.Name
	if label == "" {
		label = fmt.Sprintf("section %d", sec.Index)
	} else {
		label = "section " + label
	}
	p.coverage.Add(label, off, size)
}

func (p *parser) parseInterp() {
	for _, seg := range p.result.Segments {
		if seg.Type != ptInterp || seg.FileSize == 0 {
			continue
		}
		off, ok := common.ToIndex(seg.Offset)
		if !ok {
			return
		}
		n, ok := common.ToIndex(seg.FileSize)
		if !ok {
			return
		}
		if interp, ok := p.win.CString(off, min(n, 4096)); ok {
			p.result.Interp = interp
		} else {
			p.issues.Add("PT_INTERP segment extends beyond file")
		}
		return
	}
}

// analyze flags data past the last declared structure, the ELF
// equivalent of a PE overlay.
func (p *parser) analyze() {
	end := p.coverage.End()
	for _, seg := range p.result.Segments {
		segEnd := seg.Offset + seg.FileSize
		if segEnd < seg.Offset {
			continue
		}
		if e, ok := common.ToIndex(segEnd); ok && e > end && e <= p.win.Size() {
			end = e
		}
	}
	if end > 0 && end < p.win.Size() {
		p.result.HasOverlay = true
		p.result.OverlayOffset = end
		p.result.OverlaySize = p.win.Size() - end
	}
}
