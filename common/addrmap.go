package common

import "math"

// AddressRange maps one logical address range (an RVA range for PE, a
// vaddr range for ELF) to its physical position in the file.
type AddressRange struct {
	Label         string
	LogicalStart  uint64
	LogicalLength uint64
	PhysicalStart uint64
}

// AddressMap translates logical addresses to physical file offsets by
// scanning ranges in insertion order. Malformed files may carry
// overlapping ranges; translation is first-match-wins, matching what
// readelf/dumpbin-style tools report, not smallest-containing-range.
type AddressMap struct {
	ranges   []AddressRange
	fileSize uint64
}

// NewAddressMap creates a map that rejects any translation landing at
// or past fileSize.
func NewAddressMap(fileSize uint64) *AddressMap {
	return &AddressMap{fileSize: fileSize}
}

// Add appends a range. Zero-length ranges cannot be a translation
// target and are ignored; the caller records the format-specific issue.
func (m *AddressMap) Add(r AddressRange) {
	if r.LogicalLength == 0 {
		return
	}
	m.ranges = append(m.ranges, r)
}

// Len returns the number of usable ranges.
func (m *AddressMap) Len() int {
	return len(m.ranges)
}

// Ranges returns the ranges in insertion order.
func (m *AddressMap) Ranges() []AddressRange {
	return m.ranges
}

// Translate maps a logical address to a physical file offset. It fails
// closed: no containing range, arithmetic overflow, or a computed
// offset outside the file all report unmapped. Callers still re-check
// bounds before dereferencing, since a crafted header can place a
// mapped range partially past end of file.
func (m *AddressMap) Translate(addr uint64) (uint64, bool) {
	for _, r := range m.ranges {
		if addr < r.LogicalStart {
			continue
		}
		delta := addr - r.LogicalStart
		if delta >= r.LogicalLength {
			continue
		}
		if r.PhysicalStart > math.MaxUint64-delta {
			return 0, false
		}
		phys := r.PhysicalStart + delta
		if phys >= m.fileSize {
			return 0, false
		}
		return phys, true
	}
	return 0, false
}

// TranslateRange maps addr and additionally checks that length bytes
// starting there stay inside the file. Returns the physical offset and
// the number of bytes actually available (possibly smaller).
func (m *AddressMap) TranslateRange(addr, length uint64) (uint64, uint64, bool) {
	phys, ok := m.Translate(addr)
	if !ok {
		return 0, 0, false
	}
	avail := m.fileSize - phys
	if length > avail {
		return phys, avail, true
	}
	return phys, length, true
}
