package pescan

import "encoding/binary"

// peFixture assembles a synthetic PE32+ image byte by byte so tests
// control every field that the parser is expected to reproduce.
type peFixture struct {
	data []byte
}

type sectionSpec struct {
	name            string
	virtualAddress  uint32
	virtualSize     uint32
	rawOffset       uint32
	rawSize         uint32
	characteristics uint32
}

const (
	fixturePEOffset  = 0x80
	fixtureOptSize   = 240 // standard PE32+ optional header incl. 16 directories
	fixtureMachine   = 0x8664
	fixtureSubsystem = 3
)

func newPEFixture(fileSize int, sections []sectionSpec) *peFixture {
	f := &peFixture{data: make([]byte, fileSize)}
	f.data[0] = 'M'
	f.data[1] = 'Z'
	f.putU32(0x3c, fixturePEOffset)

	copy(f.data[fixturePEOffset:], "PE\x00\x00")
	coff := fixturePEOffset + 4
	f.putU16(coff, fixtureMachine)
	f.putU16(coff+2, uint16(len(sections)))
	f.putU32(coff+4, 0x5f000000) // timestamp
	f.putU16(coff+16, fixtureOptSize)
	f.putU16(coff+18, 0x0022) // characteristics

	opt := fixturePEOffset + 24
	f.putU16(opt, 0x20b)
	f.putU32(opt+16, 0x1000)                 // entry point
	f.putU64(opt+24, 0x140000000)            // image base
	f.putU32(opt+32, 0x1000)                 // section alignment
	f.putU32(opt+36, 0x200)                  // file alignment
	f.putU32(opt+56, 0x3000)                 // size of image
	f.putU32(opt+60, 0x400)                  // size of headers
	f.putU16(opt+68, fixtureSubsystem)       // subsystem
	f.putU32(opt+108, 16)                    // NumberOfRvaAndSizes
	secTable := fixturePEOffset + 24 + fixtureOptSize
	for i, s := range sections {
		off := secTable + i*40
		copy(f.data[off:off+8], s.name)
		f.putU32(off+8, s.virtualSize)
		f.putU32(off+12, s.virtualAddress)
		f.putU32(off+16, s.rawSize)
		f.putU32(off+20, s.rawOffset)
		f.putU32(off+36, s.characteristics)
	}
	return f
}

func (f *peFixture) putU16(off int, v uint16) {
	binary.LittleEndian.PutUint16(f.data[off:], v)
}

func (f *peFixture) putU32(off int, v uint32) {
	binary.LittleEndian.PutUint32(f.data[off:], v)
}

func (f *peFixture) putU64(off int, v uint64) {
	binary.LittleEndian.PutUint64(f.data[off:], v)
}

// setDirectory fills one data directory slot (PE32+ layout).
func (f *peFixture) setDirectory(index int, rva, size uint32) {
	off := fixturePEOffset + 24 + 112 + index*8
	f.putU32(off, rva)
	f.putU32(off+4, size)
}

func (f *peFixture) bytes() []byte {
	return f.data
}

// defaultText returns the single .text section used by most tests:
// RVA 0x1000, raw data at 0x400, 0x200 bytes.
func defaultText() sectionSpec {
	return sectionSpec{
		name:            ".text",
		virtualAddress:  0x1000,
		virtualSize:     0x200,
		rawOffset:       0x400,
		rawSize:         0x200,
		characteristics: 0x60000020,
	}
}

// buildImportFixture lays an import descriptor table for one DLL with
// one named function inside the .text section.
func buildImportFixture() []byte {
	f := newPEFixture(0x600, []sectionSpec{defaultText()})

	// Layout inside .text (file 0x400.., RVA 0x1000..):
	//   0x400 descriptor table: one entry + terminator (40 bytes)
	//   0x430 thunk array: one 64-bit entry + terminator
	//   0x440 hint/name: hint + "GetProcAddress"
	//   0x460 DLL name "kernel32.dll"
	f.setDirectory(dirImport, 0x1000, 40)

	f.putU32(0x400, 0x1030)    // OriginalFirstThunk
	f.putU32(0x400+12, 0x1060) // Name RVA
	f.putU32(0x400+16, 0x1030) // FirstThunk

	f.putU64(0x430, 0x1040) // thunk -> hint/name at RVA 0x1040
	copy(f.data[0x442:], "GetProcAddress\x00")
	copy(f.data[0x460:], "kernel32.dll\x00")
	return f.bytes()
}

// buildExportFixture lays an export directory with two named exports.
func buildExportFixture() []byte {
	f := newPEFixture(0x600, []sectionSpec{defaultText()})

	// Layout inside .text:
	//   0x400 export directory (40 bytes)
	//   0x430 AddressOfFunctions: 2 entries
	//   0x440 AddressOfNames: 2 entries
	//   0x450 AddressOfNameOrdinals: 2 entries
	//   0x460 "mylib.dll", 0x470 "alpha", 0x478 "beta"
	f.setDirectory(dirExport, 0x1000, 0x100)

	f.putU32(0x400+12, 0x1060) // name RVA
	f.putU32(0x400+16, 1)      // ordinal base
	f.putU32(0x400+20, 2)      // NumberOfFunctions
	f.putU32(0x400+24, 2)      // NumberOfNames
	f.putU32(0x400+28, 0x1030) // AddressOfFunctions
	f.putU32(0x400+32, 0x1040) // AddressOfNames
	f.putU32(0x400+36, 0x1050) // AddressOfNameOrdinals

	f.putU32(0x430, 0x1111)
	f.putU32(0x434, 0x2222)
	f.putU32(0x440, 0x1070) // -> "alpha"
	f.putU32(0x444, 0x1078) // -> "beta"
	f.putU16(0x450, 0)
	f.putU16(0x452, 1)
	copy(f.data[0x460:], "mylib.dll\x00")
	copy(f.data[0x470:], "alpha\x00")
	copy(f.data[0x478:], "beta\x00")
	return f.bytes()
}
