package pescan

import "binspect/common"

// File is the parsed result for one PE image. Every sub-structure is
// optional: a truncated or corrupted file yields whatever could be
// decoded plus the issue list, never an error.
type File struct {
	Is64Bit        bool
	DOSHeader      *DOSHeader
	FileHeader     *FileHeader
	OptionalHeader *OptionalHeader
	Directories    []Directory
	Sections       []Section
	Imports        []Import
	Exports        *ExportTable
	Resources      *ResourceNode
	Debug          *DebugInfo
	Authenticode   *Authenticode

	HasOverlay    bool
	OverlayOffset int64
	OverlaySize   int64

	Digests  common.Digests
	Coverage []common.Region
	Issues   []string

	rvaMap *common.AddressMap
}

// TranslateRVA maps a relative virtual address to a physical file
// offset through the section table, first-match-wins. The second
// return is false for addresses no section covers or translations that
// would land outside the file.
func (f *File) TranslateRVA(rva uint32) (int64, bool) {
	if f.rvaMap == nil {
		return 0, false
	}
	phys, ok := f.rvaMap.Translate(uint64(rva))
	if !ok {
		return 0, false
	}
	off, ok := common.ToIndex(phys)
	if !ok {
		return 0, false
	}
	return off, true
}

type DOSHeader struct {
	PEOffset uint32
}

type FileHeader struct {
	Machine              uint16
	MachineName          string
	NumberOfSections     uint16
	TimeDateStamp        uint32
	PointerToSymbolTable uint32
	NumberOfSymbols      uint32
	SizeOfOptionalHeader uint16
	Characteristics      uint16
}

type OptionalHeader struct {
	Magic               uint16
	AddressOfEntryPoint uint32
	ImageBase           uint64
	SectionAlignment    uint32
	FileAlignment       uint32
	SizeOfImage         uint32
	SizeOfHeaders       uint32
	CheckSum            uint32
	Subsystem           uint16
	DllCharacteristics  uint16
	NumberOfRvaAndSizes uint32
}

type Directory struct {
	Index          int
	Name           string
	VirtualAddress uint32
	Size           uint32
}

type Section struct {
	Name             string
	Index            int
	VirtualAddress   uint32
	VirtualSize      uint32
	PointerToRawData uint32
	SizeOfRawData    uint32
	Characteristics  uint32
	IsExecutable     bool
	IsReadable       bool
	IsWritable       bool
	Entropy          float64
	MD5Hash          string
	SHA1Hash         string
	SHA256Hash       string
}

type Import struct {
	Library   string
	Functions []string
	Ordinals  []uint16 // imports by ordinal, no name available
}

type ExportTable struct {
	DLLName           string
	OrdinalBase       uint32
	NumberOfFunctions uint32
	NumberOfNames     uint32
	Entries           []ExportEntry
}

type ExportEntry struct {
	Name    string
	Ordinal uint32
	RVA     uint32
}

// ResourceNode is one node of the resource directory tree. Directory
// nodes carry children; leaf nodes carry the data entry location.
type ResourceNode struct {
	Name        string
	ID          uint32
	IsDirectory bool
	Children    []*ResourceNode
	DataRVA     uint32
	DataSize    uint32
	CodePage    uint32
}

type DebugInfo struct {
	PDBPath string
	GUID    string
	Age     uint32
}

// Authenticode describes the security directory contents. The PKCS#7
// blob is decoded for signer identity only; nothing is validated.
type Authenticode struct {
	FileOffset       int64
	Length           int64
	CertificateType  uint16
	Revision         uint16
	SignerSubject    string
	SignerIssuer     string
	CertificateCount int
	Certificates     []CertificateInfo
	ParseError       string
}

type CertificateInfo struct {
	Subject      string
	Issuer       string
	SerialNumber string
	NotBefore    string
	NotAfter     string
}

// Data directory indices, per the PE optional header layout.
const (
	dirExport   = 0
	dirImport   = 1
	dirResource = 2
	dirSecurity = 4
	dirDebug    = 6
)

var directoryNames = [16]string{
	"EXPORT", "IMPORT", "RESOURCE", "EXCEPTION", "SECURITY", "BASERELOC",
	"DEBUG", "ARCHITECTURE", "GLOBALPTR", "TLS", "LOAD_CONFIG",
	"BOUND_IMPORT", "IAT", "DELAY_IMPORT", "COM_DESCRIPTOR", "RESERVED",
}

// Walk and table bounds. Legitimate files sit far below these; they
// exist to bound work on crafted input.
const (
	maxSections         = 96
	maxImportDescs      = 256
	maxThunksPerLibrary = 4096
	maxExportNames      = 4096
	maxResourceDepth    = 8
	maxResourceNodes    = 1024
	maxDebugEntries     = 32
)

func machineName(machine uint16) string {
	switch machine {
	case 0x014c:
		return "i386"
	case 0x8664:
		return "amd64"
	case 0x01c0:
		return "arm"
	case 0xaa64:
		return "arm64"
	default:
		return ""
	}
}
