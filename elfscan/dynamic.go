package elfscan

import "binspect/common"

// parseDynamic walks the PT_DYNAMIC table: fixed-stride (tag, value)
// pairs terminated by DT_NULL. String-valued tags are resolved through
// DT_STRTAB, whose address must first be translated from a virtual
// address to a file offset via the PT_LOAD map.
func (p *parser) parseDynamic() {
	var dynSeg *Segment
	for i := range p.result.Segments {
		if p.result.Segments[i].Type == ptDynamic {
			dynSeg = &p.result.Segments[i]
			break
		}
	}
	if dynSeg == nil {
		return
	}
	off, okOff := common.ToIndex(dynSeg.Offset)
	size, okSize := common.ToIndex(dynSeg.FileSize)
	if !okOff || !okSize {
		p.issues.Add("PT_DYNAMIC location is unrepresentable")
		return
	}
	dw, ok := p.win.Slice(off, size)
	if !ok {
		p.issues.Add("PT_DYNAMIC segment extends beyond file")
		return
	}

	stride := int64(8)
	if p.result.Is64Bit {
		stride = 16
	}
	wordAt := func(at int64) (uint64, bool) {
		if p.result.Is64Bit {
			if p.result.BigEndian {
				return dw.U64BE(at)
			}
			return dw.U64LE(at)
		}
		var v uint32
		var ok bool
		if p.result.BigEndian {
			v, ok = dw.U32BE(at)
		} else {
			v, ok = dw.U32LE(at)
		}
		return uint64(v), ok
	}

	info := &DynamicInfo{}
	var neededOffsets []uint64
	var sonameOff, rpathOff, runpathOff uint64
	var haveSoname, haveRpath, haveRunpath bool
	var strtabAddr, strtabSize, symtabAddr, symEntSize uint64
	terminated := false

	for i := 0; i < maxDynamicTags; i++ {
		base := int64(i) * stride
		tag, ok1 := wordAt(base)
		value, ok2 := wordAt(base + stride/2)
		if !ok1 || !ok2 {
			p.issues.Add("dynamic table truncated before DT_NULL")
			break
		}
		name := dynTagNames[tag]
		info.Tags = append(info.Tags, DynTag{Tag: tag, Name: name, Value: value})

		switch tag {
		case dtNull:
			terminated = true
		case dtNeeded:
			neededOffsets = append(neededOffsets, value)
		case dtStrTab:
			strtabAddr = value
		case dtStrSz:
			strtabSize = value
		case dtSymTab:
			symtabAddr = value
		case dtSymEnt:
			symEntSize = value
		case dtSOName:
			sonameOff, haveSoname = value, true
		case dtRPath:
			rpathOff, haveRpath = value, true
		case dtRunPath:
			runpathOff, haveRunpath = value, true
		}
		if terminated {
			break
		}
	}
	if !terminated && len(info.Tags) == maxDynamicTags {
		p.issues.Addf("dynamic tag walk stopped: more than %d entries without DT_NULL", maxDynamicTags)
	}

	strtab, haveStrtab := p.dynamicStrtab(strtabAddr, strtabSize)
	lookup := func(strOff uint64) string {
		if !haveStrtab {
			return ""
		}
		idx, ok := common.ToIndex(strOff)
		if !ok {
			return ""
		}
		s, _ := strtab.CString(idx, 4096)
		return s
	}

	for _, strOff := range neededOffsets {
		if name := lookup(strOff); name != "" {
			info.Needed = append(info.Needed, name)
		} else if haveStrtab {
			p.issues.Addf("DT_NEEDED string offset 0x%x not found in string table", strOff)
		}
	}
	if haveSoname {
		info.SOName = lookup(sonameOff)
	}
	if haveRpath {
		info.RPath = lookup(rpathOff)
	}
	if haveRunpath {
		info.RunPath = lookup(runpathOff)
	}

	// No authoritative dynamic symbol count exists in the dynamic
	// table; infer it from the usual strtab-follows-symtab layout and
	// say so. Deliberately best-effort.
	if symtabAddr != 0 && strtabAddr > symtabAddr && symEntSize > 0 {
		info.InferredSymbolCount = (strtabAddr - symtabAddr) / symEntSize
		p.issues.Add("dynamic symbol count inferred from DT_STRTAB - DT_SYMTAB, may be imprecise")
	}

	if strtabAddr != 0 && !haveStrtab {
		p.issues.Addf("DT_STRTAB address 0x%x is not mapped by any PT_LOAD segment", strtabAddr)
	}
	p.result.Dynamic = info
}

func (p *parser) dynamicStrtab(addr, size uint64) (common.Window, bool) {
	if addr == 0 {
		return common.Window{}, false
	}
	phys, avail, ok := p.addrMap.TranslateRange(addr, size)
	if !ok {
		return common.Window{}, false
	}
	off, okOff := common.ToIndex(phys)
	n, okN := common.ToIndex(avail)
	if !okOff || !okN {
		return common.Window{}, false
	}
	if size == 0 {
		// DT_STRSZ missing; expose the rest of the file and rely on
		// NUL termination plus per-read caps.
		w, ok := p.win.Tail(off)
		return w, ok
	}
	w, ok := p.win.Slice(off, n)
	return w, ok
}
