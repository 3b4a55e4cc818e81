package mp4scan

import (
	"binspect/common"
)

// File is the decoded box structure of an ISO base media file (MP4,
// MOV, M4A).
type File struct {
	MajorBrand       string
	MinorVersion     uint32
	CompatibleBrands []string

	Timescale       uint32
	Duration        uint64
	DurationSeconds float64

	Boxes []Box

	Issues   []string
	Coverage []common.Region
}

// Box is one box with its decoded children for container types.
type Box struct {
	Type     string
	Offset   int64
	Size     int64
	Children []Box
}

const (
	maxBoxesPerLevel = 512
	maxDepth         = 8
	maxBrands        = 32
)

// containers are the box types descended into.
var containers = map[string]bool{
	"moov": true,
	"trak": true,
	"mdia": true,
	"minf": true,
	"stbl": true,
	"udta": true,
	"edts": true,
	"dinf": true,
}

type parser struct {
	win      common.Window
	issues   common.Issues
	coverage common.Coverage
	result   *File
}

// Parse decodes an MP4 box tree from data. Recognition requires an
// ftyp box opening the file; bare QuickTime files without one are not
// claimed.
func Parse(data []byte) *File {
	w := common.NewWindow(data)
	tag, ok := w.Bytes(4, 4)
	if !ok || string(tag) != "ftyp" {
		return nil
	}

	p := &parser{win: w, result: &File{}}
	p.result.Boxes = p.walkBoxes(w, maxDepth)
	p.result.Issues = p.issues.List()
	p.result.Coverage = p.coverage.Regions()
	return p.result
}

// decodeBox reads one box header: u32 big-endian size and type, with
// size 1 extending to a u64 largesize and size 0 running to the end
// of the enclosing box.
func decodeBox(w common.Window, off int64) (common.ElementHeader, bool) {
	size32, ok := w.U32BE(off)
	if !ok {
		return common.ElementHeader{}, false
	}
	btype, ok := w.Bytes(off+4, 4)
	if !ok {
		return common.ElementHeader{}, false
	}
	headerLen := int64(8)
	var total int64
	switch size32 {
	case 0:
		total = w.Size() - off
	case 1:
		large, ok := w.U64BE(off + 8)
		if !ok || large > 1<<62 {
			return common.ElementHeader{}, false
		}
		headerLen = 16
		total = int64(large)
	default:
		total = int64(size32)
	}
	if total < headerLen {
		return common.ElementHeader{}, false
	}
	return common.ElementHeader{
		Tag:          string(btype),
		DeclaredSize: total - headerLen,
		HeaderLen:    headerLen,
		DataStart:    off + headerLen,
	}, true
}

func (p *parser) walkBoxes(w common.Window, depth int) []Box {
	if depth <= 0 {
		p.issues.Addf("box nesting deeper than %d, not descended", maxDepth)
		return nil
	}
	var boxes []Box
	cfg := common.WalkConfig{MaxItems: maxBoxesPerLevel, MinHeaderSize: 8, Label: "box"}
	common.Walk(w, decodeBox, cfg, &p.issues, func(h common.ElementHeader, payload common.Window) bool {
		b := Box{
			Type:   h.Tag,
			Offset: payload.Start() - h.HeaderLen,
			Size:   h.HeaderLen + payload.Size(),
		}
		switch {
		case h.Tag == "ftyp":
			p.parseFtyp(payload)
		case h.Tag == "mvhd":
			p.parseMvhd(payload)
		case containers[h.Tag]:
			b.Children = p.walkBoxes(payload, depth-1)
		}
		boxes = append(boxes, b)
		return true
	})
	return boxes
}

func (p *parser) parseFtyp(w common.Window) {
	r := p.result
	major, ok := w.Bytes(0, 4)
	if !ok {
		p.issues.Add("ftyp box too short")
		return
	}
	r.MajorBrand = string(major)
	r.MinorVersion, _ = w.U32BE(4)
	for off := int64(8); off+4 <= w.Size() && len(r.CompatibleBrands) < maxBrands; off += 4 {
		if b, ok := w.Bytes(off, 4); ok {
			r.CompatibleBrands = append(r.CompatibleBrands, string(b))
		}
	}
}

// parseMvhd reads the movie header; version 1 widens timescale's
// neighbors to 64 bits.
func (p *parser) parseMvhd(w common.Window) {
	version, ok := w.U8(0)
	if !ok {
		p.issues.Add("mvhd box too short")
		return
	}
	r := p.result
	switch version {
	case 0:
		r.Timescale, _ = w.U32BE(12)
		d, _ := w.U32BE(16)
		r.Duration = uint64(d)
	case 1:
		r.Timescale, _ = w.U32BE(20)
		r.Duration, _ = w.U64BE(24)
	default:
		p.issues.Addf("mvhd version %d not understood", version)
		return
	}
	if r.Timescale > 0 {
		r.DurationSeconds = float64(r.Duration) / float64(r.Timescale)
	}
}
