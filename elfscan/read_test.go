package elfscan

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	fixtureSize    = 0x400
	fixtureBase    = 0x400000
	fixtureInterp  = "/lib64/ld-linux-x86-64.so.2"
	dynOffset      = 0x280
	strtabOffset   = 0x300
	interpOffset   = 0x200
	symtabVaddr    = fixtureBase + 0x240
	strtabVaddr    = fixtureBase + strtabOffset
	expectedSymCnt = (strtabVaddr - symtabVaddr) / 24
)

// buildELF64 assembles a little-endian ELF64 shared object with three
// program headers (PT_LOAD over the whole file, PT_INTERP, PT_DYNAMIC)
// and a dynamic table referencing a string table.
func buildELF64() []byte {
	d := make([]byte, fixtureSize)
	u16 := func(off int, v uint16) { binary.LittleEndian.PutUint16(d[off:], v) }
	u32 := func(off int, v uint32) { binary.LittleEndian.PutUint32(d[off:], v) }
	u64 := func(off int, v uint64) { binary.LittleEndian.PutUint64(d[off:], v) }

	copy(d, "\x7fELF")
	d[4] = 2 // ELFCLASS64
	d[5] = 1 // little-endian
	d[6] = 1 // EV_CURRENT

	u16(16, 3)  // ET_DYN
	u16(18, 62) // EM_X86_64
	u32(20, 1)
	u64(24, fixtureBase+0x100) // entry
	u64(32, 0x40)              // phoff
	u16(52, 64)                // ehsize
	u16(54, 56)                // phentsize
	u16(56, 3)                 // phnum

	phdr := func(i int, ptype, flags uint32, off, vaddr, filesz uint64) {
		base := 0x40 + i*56
		u32(base, ptype)
		u32(base+4, flags)
		u64(base+8, off)
		u64(base+16, vaddr)
		u64(base+24, vaddr)    // paddr
		u64(base+32, filesz)   // filesz
		u64(base+40, filesz)   // memsz
		u64(base+48, 0x1000)   // align
	}
	phdr(0, 1, 5, 0, fixtureBase, fixtureSize)                                 // PT_LOAD
	phdr(1, 3, 4, interpOffset, fixtureBase+interpOffset, uint64(len(fixtureInterp)+1)) // PT_INTERP
	phdr(2, 2, 6, dynOffset, fixtureBase+dynOffset, 7*16)                      // PT_DYNAMIC

	copy(d[interpOffset:], fixtureInterp)

	dyn := func(i int, tag, value uint64) {
		u64(dynOffset+i*16, tag)
		u64(dynOffset+i*16+8, value)
	}
	dyn(0, 1, 1)             // DT_NEEDED -> "libc.so.6"
	dyn(1, 5, strtabVaddr)   // DT_STRTAB
	dyn(2, 10, 0x40)         // DT_STRSZ
	dyn(3, 6, symtabVaddr)   // DT_SYMTAB
	dyn(4, 11, 24)           // DT_SYMENT
	dyn(5, 14, 11)           // DT_SONAME -> "libdemo.so"
	dyn(6, 0, 0)             // DT_NULL

	copy(d[strtabOffset:], "\x00libc.so.6\x00libdemo.so\x00")
	return d
}

func TestParseRejectsOtherFormats(t *testing.T) {
	assert.Nil(t, Parse(nil))
	assert.Nil(t, Parse([]byte("MZ not an elf")))
	assert.Nil(t, Parse([]byte("\x7fEL")))
}

func TestParseWellFormed(t *testing.T) {
	f := Parse(buildELF64())
	require.NotNil(t, f)

	assert.True(t, f.Is64Bit)
	assert.False(t, f.BigEndian)
	assert.Equal(t, "shared object", f.TypeName)
	assert.Equal(t, "amd64", f.MachineName)
	assert.Equal(t, uint64(fixtureBase+0x100), f.EntryPoint)
	assert.Equal(t, uint16(3), f.ProgramCount)

	require.Len(t, f.Segments, 3)
	assert.Equal(t, "PT_LOAD", f.Segments[0].TypeName)
	assert.True(t, f.Segments[0].Loadable)
	assert.Equal(t, "PT_INTERP", f.Segments[1].TypeName)
	assert.Equal(t, "PT_DYNAMIC", f.Segments[2].TypeName)

	assert.Equal(t, fixtureInterp, f.Interp)
	assert.False(t, f.HasOverlay)
}

func TestVaddrTranslation(t *testing.T) {
	f := Parse(buildELF64())
	require.NotNil(t, f)

	off, ok := f.TranslateVaddr(fixtureBase + 0x123)
	require.True(t, ok)
	assert.Equal(t, int64(0x123), off)

	_, ok = f.TranslateVaddr(0x500000)
	assert.False(t, ok)

	_, ok = f.TranslateVaddr(0)
	assert.False(t, ok)
}

func TestDynamicTable(t *testing.T) {
	f := Parse(buildELF64())
	require.NotNil(t, f)
	require.NotNil(t, f.Dynamic)

	assert.Equal(t, []string{"libc.so.6"}, f.Dynamic.Needed)
	assert.Equal(t, "libdemo.so", f.Dynamic.SOName)
	require.Len(t, f.Dynamic.Tags, 7)
	assert.Equal(t, "DT_NEEDED", f.Dynamic.Tags[0].Name)
	assert.Equal(t, "DT_NULL", f.Dynamic.Tags[6].Name)

	// The symbol count is a heuristic and must be flagged as such.
	assert.Equal(t, uint64(expectedSymCnt), f.Dynamic.InferredSymbolCount)
	joined := strings.Join(f.Issues, "\n")
	assert.Contains(t, joined, "imprecise")
}

func TestUnterminatedDynamicTable(t *testing.T) {
	d := buildELF64()
	// Overwrite DT_NULL with another DT_NEEDED; the walk must stop at
	// the segment boundary with an issue, not run away.
	binary.LittleEndian.PutUint64(d[dynOffset+6*16:], 1)
	binary.LittleEndian.PutUint64(d[dynOffset+6*16+8:], 1)

	f := Parse(d)
	require.NotNil(t, f)
	require.NotNil(t, f.Dynamic)
	joined := strings.Join(f.Issues, "\n")
	assert.Contains(t, joined, "truncated before DT_NULL")
}

func TestTruncationNeverPanics(t *testing.T) {
	full := buildELF64()
	for k := 0; k < len(full); k += 7 {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Fatalf("panic at truncation length %d: %v", k, r)
				}
			}()
			f := Parse(full[:k])
			if k >= 4 {
				assert.NotNil(t, f)
			}
		}()
	}
}

func TestELF32BigEndianHeader(t *testing.T) {
	d := make([]byte, 52)
	copy(d, "\x7fELF")
	d[4] = 1 // ELFCLASS32
	d[5] = 2 // big-endian
	binary.BigEndian.PutUint16(d[16:], 2)  // ET_EXEC
	binary.BigEndian.PutUint16(d[18:], 40) // EM_ARM
	binary.BigEndian.PutUint32(d[24:], 0x8000)

	f := Parse(d)
	require.NotNil(t, f)
	assert.False(t, f.Is64Bit)
	assert.True(t, f.BigEndian)
	assert.Equal(t, "executable", f.TypeName)
	assert.Equal(t, "arm", f.MachineName)
	assert.Equal(t, uint64(0x8000), f.EntryPoint)
}

func TestInvalidClassIsIssueNotRejection(t *testing.T) {
	d := make([]byte, 64)
	copy(d, "\x7fELF")
	d[4] = 9 // invalid class

	f := Parse(d)
	require.NotNil(t, f)
	assert.NotEmpty(t, f.Issues)
	assert.Contains(t, strings.Join(f.Issues, "\n"), "invalid ELF class")
}

func TestParseIdempotent(t *testing.T) {
	data := buildELF64()
	assert.Equal(t, Parse(data), Parse(data))
}
