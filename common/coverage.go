package common

// Region is a byte range of the source file attributed to a known
// parsed structure.
type Region struct {
	Label  string
	Offset int64
	Length int64
}

// Coverage accumulates attributed regions across one parse. It is
// append-only; overlay and unparsed-tail detection compare the covered
// high-water mark against the file size.
type Coverage struct {
	regions []Region
}

// Add records a region. Empty or negative ranges are dropped.
func (c *Coverage) Add(label string, offset, length int64) {
	if offset < 0 || length <= 0 {
		return
	}
	c.regions = append(c.regions, Region{Label: label, Offset: offset, Length: length})
}

// Regions returns the recorded regions in insertion order.
func (c *Coverage) Regions() []Region {
	return c.regions
}

// End returns the highest covered offset, the natural start of any
// overlay data appended after the known structures.
func (c *Coverage) End() int64 {
	var end int64
	for _, r := range c.regions {
		if e, ok := AddOffsets(r.Offset, r.Length); ok && e > end {
			end = e
		}
	}
	return end
}
