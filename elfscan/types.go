package elfscan

import "binspect/common"

// File is the parsed result for one ELF object. Fields mirror what a
// readelf-style inspection needs; every sub-structure is optional.
type File struct {
	Is64Bit      bool
	BigEndian    bool
	OSABI        uint8
	Type         uint16
	TypeName     string
	Machine      uint16
	MachineName  string
	EntryPoint   uint64
	ProgramCount uint16
	SectionCount uint16

	Segments []Segment
	Sections []Section
	Interp   string
	Dynamic  *DynamicInfo

	HasOverlay    bool
	OverlayOffset int64
	OverlaySize   int64

	Digests  common.Digests
	Coverage []common.Region
	Issues   []string

	vaddrMap *common.AddressMap
}

// TranslateVaddr maps a virtual address to a physical file offset via
// the PT_LOAD segments, first-match-wins.
func (f *File) TranslateVaddr(vaddr uint64) (int64, bool) {
	if f.vaddrMap == nil {
		return 0, false
	}
	phys, ok := f.vaddrMap.Translate(vaddr)
	if !ok {
		return 0, false
	}
	off, ok := common.ToIndex(phys)
	if !ok {
		return 0, false
	}
	return off, true
}

type Segment struct {
	Index    int
	Type     uint32
	TypeName string
	Flags    uint32
	Offset   uint64
	Vaddr    uint64
	FileSize uint64
	MemSize  uint64
	Align    uint64
	Loadable bool
}

type Section struct {
	Index   int
	Name    string
	Type    uint32
	Flags   uint64
	Addr    uint64
	Offset  uint64
	Size    uint64
	Entropy float64
}

// DynamicInfo summarizes the PT_DYNAMIC table. InferredSymbolCount is
// a best-effort heuristic (string table start minus symbol table start
// over entry size) and is always accompanied by an issue marking it
// imprecise.
type DynamicInfo struct {
	Needed              []string
	SOName              string
	RPath               string
	RunPath             string
	Tags                []DynTag
	InferredSymbolCount uint64
}

type DynTag struct {
	Tag   uint64
	Name  string
	Value uint64
}

// Dynamic table tags the decoder understands by name; anything else is
// carried with its raw tag number.
const (
	dtNull    = 0
	dtNeeded  = 1
	dtStrTab  = 5
	dtSymTab  = 6
	dtStrSz   = 10
	dtSymEnt  = 11
	dtSOName  = 14
	dtRPath   = 15
	dtRunPath = 29
)

const (
	ptLoad    = 1
	ptDynamic = 2
	ptInterp  = 3
)

const (
	maxSegments    = 128
	maxSections    = 256
	maxDynamicTags = 512
)

var dynTagNames = map[uint64]string{
	dtNull:    "DT_NULL",
	dtNeeded:  "DT_NEEDED",
	2:         "DT_PLTRELSZ",
	3:         "DT_PLTGOT",
	4:         "DT_HASH",
	dtStrTab:  "DT_STRTAB",
	dtSymTab:  "DT_SYMTAB",
	7:         "DT_RELA",
	8:         "DT_RELASZ",
	9:         "DT_RELAENT",
	dtStrSz:   "DT_STRSZ",
	dtSymEnt:  "DT_SYMENT",
	12:        "DT_INIT",
	13:        "DT_FINI",
	dtSOName:  "DT_SONAME",
	dtRPath:   "DT_RPATH",
	16:        "DT_SYMBOLIC",
	17:        "DT_REL",
	18:        "DT_RELSZ",
	19:        "DT_RELENT",
	20:        "DT_PLTREL",
	21:        "DT_DEBUG",
	22:        "DT_TEXTREL",
	23:        "DT_JMPREL",
	24:        "DT_BIND_NOW",
	25:        "DT_INIT_ARRAY",
	26:        "DT_FINI_ARRAY",
	27:        "DT_INIT_ARRAYSZ",
	28:        "DT_FINI_ARRAYSZ",
	dtRunPath: "DT_RUNPATH",
	30:        "DT_FLAGS",
}

func segmentTypeName(t uint32) string {
	switch t {
	case 0:
		return "PT_NULL"
	case ptLoad:
		return "PT_LOAD"
	case ptDynamic:
		return "PT_DYNAMIC"
	case ptInterp:
		return "PT_INTERP"
	case 4:
		return "PT_NOTE"
	case 6:
		return "PT_PHDR"
	case 7:
		return "PT_TLS"
	case 0x6474e550:
		return "PT_GNU_EH_FRAME"
	case 0x6474e551:
		return "PT_GNU_STACK"
	case 0x6474e552:
		return "PT_GNU_RELRO"
	default:
		return ""
	}
}

func typeName(t uint16) string {
	switch t {
	case 1:
		return "relocatable"
	case 2:
		return "executable"
	case 3:
		return "shared object"
	case 4:
		return "core"
	default:
		return ""
	}
}

func machineName(m uint16) string {
	switch m {
	case 3:
		return "i386"
	case 40:
		return "arm"
	case 62:
		return "amd64"
	case 183:
		return "arm64"
	case 243:
		return "riscv"
	default:
		return ""
	}
}
