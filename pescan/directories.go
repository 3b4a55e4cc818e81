package pescan

import (
	"unicode/utf16"

	"binspect/common"
)

func (p *parser) parseDirectories() {
	p.parseImports()
	p.parseExports()
	p.parseResources()
	p.parseDebug()
	p.parseSecurity()
}

// parseImports walks the import descriptor table: 20-byte descriptors
// terminated by an all-zero entry, each naming a DLL and pointing at a
// thunk array of name/ordinal references.
func (p *parser) parseImports() {
	dir, ok := p.directory(dirImport)
	if !ok {
		return
	}
	descWin, ok := p.windowAtRVA(dir.VirtualAddress, dir.Size)
	if !ok {
		p.issues.Addf("import directory RVA 0x%x is unmapped", dir.VirtualAddress)
		return
	}

	for i := 0; i < maxImportDescs; i++ {
		off := int64(i) * 20
		origThunk, ok1 := descWin.U32LE(off)
		nameRVA, ok2 := descWin.U32LE(off + 12)
		firstThunk, ok3 := descWin.U32LE(off + 16)
		if !ok1 || !ok2 || !ok3 {
			p.issues.Add("import descriptor table truncated")
			return
		}
		if origThunk == 0 && nameRVA == 0 && firstThunk == 0 {
			return // terminator
		}

		imp := Import{}
		if name, ok := p.stringAtRVA(nameRVA, 256); ok {
			imp.Library = name
		} else {
			p.issues.Addf("import descriptor %d: library name RVA 0x%x is unmapped", i, nameRVA)
		}

		thunkRVA := origThunk
		if thunkRVA == 0 {
			thunkRVA = firstThunk
		}
		p.parseThunks(thunkRVA, &imp)
		p.result.Imports = append(p.result.Imports, imp)
	}
	p.issues.Addf("import descriptor walk stopped: more than %d descriptors", maxImportDescs)
}

func (p *parser) parseThunks(thunkRVA uint32, imp *Import) {
	phys, ok := p.addrMap.Translate(uint64(thunkRVA))
	if !ok {
		p.issues.Addf("import thunk RVA 0x%x is unmapped for %s", thunkRVA, imp.Library)
		return
	}
	base, ok := common.ToIndex(phys)
	if !ok {
		return
	}

	stride := int64(4)
	if p.result.Is64Bit {
		stride = 8
	}
	for i := 0; i < maxThunksPerLibrary; i++ {
		off := base + int64(i)*stride
		var value uint64
		var byOrdinal bool
		if p.result.Is64Bit {
			v, ok := p.win.U64LE(off)
			if !ok {
				p.issues.Addf("import thunks for %s extend beyond file", imp.Library)
				return
			}
			value = v
			byOrdinal = v&(1<<63) != 0
		} else {
			v, ok := p.win.U32LE(off)
			if !ok {
				p.issues.Addf("import thunks for %s extend beyond file", imp.Library)
				return
			}
			value = uint64(v)
			byOrdinal = v&(1<<31) != 0
		}
		if value == 0 {
			return // terminator
		}
		if byOrdinal {
			imp.Ordinals = append(imp.Ordinals, uint16(value&0xffff))
			continue
		}
		// Hint/name entry: 2-byte hint then the NUL-terminated name.
		if name, ok := p.stringAtRVA(uint32(value)+2, 512); ok && name != "" {
			imp.Functions = append(imp.Functions, name)
		}
	}
	p.issues.Addf("import thunk walk for %s stopped: more than %d entries", imp.Library, maxThunksPerLibrary)
}

// parseExports decodes the export directory: DLL name, ordinal base
// and the parallel name/ordinal arrays.
func (p *parser) parseExports() {
	dir, ok := p.directory(dirExport)
	if !ok {
		return
	}
	ew, ok := p.windowAtRVA(dir.VirtualAddress, dir.Size)
	if !ok {
		p.issues.Addf("export directory RVA 0x%x is unmapped", dir.VirtualAddress)
		return
	}

	nameRVA, ok1 := ew.U32LE(12)
	ordinalBase, ok2 := ew.U32LE(16)
	numFuncs, ok3 := ew.U32LE(20)
	numNames, ok4 := ew.U32LE(24)
	funcsRVA, ok5 := ew.U32LE(28)
	namesRVA, ok6 := ew.U32LE(32)
	ordsRVA, ok7 := ew.U32LE(36)
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 || !ok6 || !ok7 {
		p.issues.Add("export directory truncated")
		return
	}

	et := &ExportTable{
		OrdinalBase:       ordinalBase,
		NumberOfFunctions: numFuncs,
		NumberOfNames:     numNames,
	}
	if name, ok := p.stringAtRVA(nameRVA, 256); ok {
		et.DLLName = name
	}

	count := numNames
	if count > maxExportNames {
		p.issues.Addf("export name count %d exceeds %d, clamped", count, maxExportNames)
		count = maxExportNames
	}
	for i := uint32(0); i < count; i++ {
		entryNameRVA, ok := p.u32AtRVA(namesRVA + i*4)
		if !ok {
			p.issues.Add("export name pointer table extends beyond mapped sections")
			break
		}
		ordIndex, ok := p.u16AtRVA(ordsRVA + i*2)
		if !ok {
			p.issues.Add("export ordinal table extends beyond mapped sections")
			break
		}
		entry := ExportEntry{Ordinal: ordinalBase + uint32(ordIndex)}
		if name, ok := p.stringAtRVA(entryNameRVA, 512); ok {
			entry.Name = name
		}
		if uint32(ordIndex) < numFuncs {
			if rva, ok := p.u32AtRVA(funcsRVA + uint32(ordIndex)*4); ok {
				entry.RVA = rva
			}
		}
		et.Entries = append(et.Entries, entry)
	}
	p.result.Exports = et
}

func (p *parser) u32AtRVA(rva uint32) (uint32, bool) {
	phys, ok := p.addrMap.Translate(uint64(rva))
	if !ok {
		return 0, false
	}
	off, ok := common.ToIndex(phys)
	if !ok {
		return 0, false
	}
	return p.win.U32LE(off)
}

func (p *parser) u16AtRVA(rva uint32) (uint16, bool) {
	phys, ok := p.addrMap.Translate(uint64(rva))
	if !ok {
		return 0, false
	}
	off, ok := common.ToIndex(phys)
	if !ok {
		return 0, false
	}
	return p.win.U16LE(off)
}

// parseResources walks the resource directory tree. All offsets inside
// the tree are relative to the resource directory start; depth and node
// caps bound adversarial self-referencing trees.
func (p *parser) parseResources() {
	dir, ok := p.directory(dirResource)
	if !ok {
		return
	}
	rw, ok := p.windowAtRVA(dir.VirtualAddress, dir.Size)
	if !ok {
		p.issues.Addf("resource directory RVA 0x%x is unmapped", dir.VirtualAddress)
		return
	}
	nodeBudget := maxResourceNodes
	p.result.Resources = p.parseResourceDir(rw, 0, 0, &nodeBudget)
}

func (p *parser) parseResourceDir(rw common.Window, off int64, depth int, budget *int) *ResourceNode {
	if depth > maxResourceDepth {
		p.issues.Add("resource tree depth limit reached")
		return nil
	}
	if *budget <= 0 {
		return nil
	}
	*budget--

	numNamed, ok1 := rw.U16LE(off + 12)
	numID, ok2 := rw.U16LE(off + 14)
	if !ok1 || !ok2 {
		p.issues.Add("resource directory header extends beyond resource data")
		return nil
	}
	node := &ResourceNode{IsDirectory: true}

	total := int64(numNamed) + int64(numID)
	for i := int64(0); i < total; i++ {
		entryOff := off + 16 + i*8
		nameOrID, ok1 := rw.U32LE(entryOff)
		dataOff, ok2 := rw.U32LE(entryOff + 4)
		if !ok1 || !ok2 {
			p.issues.Add("resource directory entries extend beyond resource data")
			break
		}

		var child *ResourceNode
		if dataOff&0x80000000 != 0 {
			child = p.parseResourceDir(rw, int64(dataOff&0x7fffffff), depth+1, budget)
		} else {
			child = p.parseResourceData(rw, int64(dataOff))
		}
		if child == nil {
			continue
		}
		if nameOrID&0x80000000 != 0 {
			child.Name = readResourceName(rw, int64(nameOrID&0x7fffffff))
		} else {
			child.ID = nameOrID
		}
		node.Children = append(node.Children, child)
	}
	return node
}

func (p *parser) parseResourceData(rw common.Window, off int64) *ResourceNode {
	dataRVA, ok1 := rw.U32LE(off)
	size, ok2 := rw.U32LE(off + 4)
	codePage, ok3 := rw.U32LE(off + 8)
	if !ok1 || !ok2 || !ok3 {
		p.issues.Add("resource data entry extends beyond resource data")
		return nil
	}
	return &ResourceNode{DataRVA: dataRVA, DataSize: size, CodePage: codePage}
}

// readResourceName decodes a length-prefixed UTF-16LE resource name.
func readResourceName(rw common.Window, off int64) string {
	n, ok := rw.U16LE(off)
	if !ok || n == 0 || n > 256 {
		return ""
	}
	units := make([]uint16, 0, n)
	for i := int64(0); i < int64(n); i++ {
		u, ok := rw.U16LE(off + 2 + i*2)
		if !ok {
			break
		}
		units = append(units, u)
	}
	return string(utf16.Decode(units))
}

// parseDebug scans the debug directory for a CodeView RSDS record and
// extracts the PDB path, GUID and age.
func (p *parser) parseDebug() {
	dir, ok := p.directory(dirDebug)
	if !ok {
		return
	}
	dw, ok := p.windowAtRVA(dir.VirtualAddress, dir.Size)
	if !ok {
		p.issues.Addf("debug directory RVA 0x%x is unmapped", dir.VirtualAddress)
		return
	}

	count := int64(dir.Size) / 28
	if count > maxDebugEntries {
		p.issues.Addf("debug directory entry count %d exceeds %d, clamped", count, maxDebugEntries)
		count = maxDebugEntries
	}
	for i := int64(0); i < count; i++ {
		entryOff := i * 28
		debugType, ok := dw.U32LE(entryOff + 12)
		if !ok {
			p.issues.Add("debug directory truncated")
			return
		}
		if debugType != 2 { // IMAGE_DEBUG_TYPE_CODEVIEW
			continue
		}
		size, _ := dw.U32LE(entryOff + 16)
		rawPtr, _ := dw.U32LE(entryOff + 24)
		p.parseCodeView(rawPtr, size)
		return
	}
}

func (p *parser) parseCodeView(fileOffset, size uint32) {
	off, ok := common.ToIndex(uint64(fileOffset))
	if !ok {
		return
	}
	n, ok := common.ToIndex(uint64(size))
	if !ok || n < 24 {
		return
	}
	cv, ok := p.win.Slice(off, min(n, 1024))
	if !ok {
		p.issues.Add("CodeView record extends beyond file")
		return
	}
	if sig, ok := cv.Bytes(0, 4); !ok || string(sig) != "RSDS" {
		return
	}
	guid, _ := cv.GUID(4)
	age, _ := cv.U32LE(20)
	path, _ := cv.CString(24, 512)
	p.result.Debug = &DebugInfo{PDBPath: path, GUID: guid, Age: age}
}
