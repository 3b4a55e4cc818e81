package gifscan

import (
	"strings"

	"binspect/common"
)

// File is the decoded structure of a GIF image stream.
type File struct {
	Version              string
	Width                uint16
	Height               uint16
	GlobalColorTable     bool
	GlobalColorTableSize int
	BackgroundColorIndex uint8

	Images          []Image
	Comments        []string
	AppExtensions   []string
	LoopCount       int
	GraphicControls int
	HasTrailer      bool

	Issues   []string
	Coverage []common.Region
}

// Image is one image descriptor, pixel data skipped.
type Image struct {
	Left       uint16
	Top        uint16
	Width      uint16
	Height     uint16
	LocalTable bool
	Interlaced bool
}

const (
	blockImage     = 0x2C
	blockExtension = 0x21
	blockTrailer   = 0x3B

	extPlainText      = 0x01
	extGraphicControl = 0xF9
	extComment        = 0xFE
	extApplication    = 0xFF

	maxBlocks      = 4096
	maxCommentSize = 4096
)

type parser struct {
	win      common.Window
	issues   common.Issues
	coverage common.Coverage
	result   *File
}

// Parse decodes a GIF from data, returning nil unless the GIF87a or
// GIF89a signature is present.
func Parse(data []byte) *File {
	w := common.NewWindow(data)
	sig, ok := w.Bytes(0, 6)
	if !ok {
		return nil
	}
	version := string(sig)
	if version != "GIF87a" && version != "GIF89a" {
		return nil
	}

	p := &parser{win: w, result: &File{Version: version[3:], LoopCount: -1}}
	p.parse()
	p.result.Issues = p.issues.List()
	p.result.Coverage = p.coverage.Regions()
	return p.result
}

func (p *parser) parse() {
	r := p.result
	r.Width, _ = p.win.U16LE(6)
	r.Height, _ = p.win.U16LE(8)
	packed, ok := p.win.U8(10)
	if !ok {
		p.issues.Add("logical screen descriptor extends beyond file")
		return
	}
	r.BackgroundColorIndex, _ = p.win.U8(11)

	bodyStart := int64(13)
	if packed&0x80 != 0 {
		r.GlobalColorTable = true
		r.GlobalColorTableSize = 2 << (packed & 0x07)
		bodyStart += 3 * int64(r.GlobalColorTableSize)
	}
	p.coverage.Add("screen descriptor", 0, min(bodyStart, p.win.Size()))

	body, ok := p.win.Tail(min(bodyStart, p.win.Size()))
	if !ok || bodyStart > p.win.Size() {
		p.issues.Add("global color table extends beyond file")
		return
	}

	cfg := common.WalkConfig{MaxItems: maxBlocks, MinHeaderSize: 1, Label: "GIF block"}
	end := common.Walk(body, decodeBlock, cfg, &p.issues, func(h common.ElementHeader, payload common.Window) bool {
		switch uint8(h.ID >> 8) {
		case blockTrailer:
			r.HasTrailer = true
			return false
		case blockImage:
			p.readImage(body, h)
		case blockExtension:
			p.readExtension(uint8(h.ID), payload)
		}
		return true
	})

	if !r.HasTrailer {
		if b, ok := body.U8(end); ok {
			p.issues.Addf("unrecognized block type 0x%02X at offset %d", b, bodyStart+end)
		} else {
			p.issues.Add("image stream ends without the 0x3B trailer")
		}
	} else if tail := body.Size() - end; tail > 0 {
		p.coverage.Add("data after trailer", bodyStart+end, tail)
	}
}

// decodeBlock sizes one block by walking its data sub-block chain, so
// the generic walker can advance over variable-length image data.
// The block type rides in the high byte of ID, the extension label in
// the low byte.
func decodeBlock(w common.Window, off int64) (common.ElementHeader, bool) {
	blockType, ok := w.U8(off)
	if !ok {
		return common.ElementHeader{}, false
	}
	switch blockType {
	case blockTrailer:
		return common.ElementHeader{
			ID:        uint64(blockTrailer) << 8,
			HeaderLen: 1,
			DataStart: off + 1,
		}, true
	case blockImage:
		packed, ok := w.U8(off + 9)
		if !ok {
			return common.ElementHeader{}, false
		}
		skip := int64(1) // LZW minimum code size byte
		if packed&0x80 != 0 {
			skip += 3 * (2 << (packed & 0x07))
		}
		chain, ok := subBlockChainLen(w, off+10+skip)
		if !ok {
			return common.ElementHeader{}, false
		}
		return common.ElementHeader{
			ID:           uint64(blockImage) << 8,
			DeclaredSize: skip + chain,
			HeaderLen:    10,
			DataStart:    off + 10,
		}, true
	case blockExtension:
		label, ok := w.U8(off + 1)
		if !ok {
			return common.ElementHeader{}, false
		}
		chain, ok := subBlockChainLen(w, off+2)
		if !ok {
			return common.ElementHeader{}, false
		}
		return common.ElementHeader{
			ID:           uint64(blockExtension)<<8 | uint64(label),
			DeclaredSize: chain,
			HeaderLen:    2,
			DataStart:    off + 2,
		}, true
	default:
		return common.ElementHeader{}, false
	}
}

// subBlockChainLen measures a chain of length-prefixed sub-blocks up
// to and including its zero terminator.
func subBlockChainLen(w common.Window, off int64) (int64, bool) {
	total := int64(0)
	for {
		n, ok := w.U8(off + total)
		if !ok {
			return 0, false
		}
		total += 1 + int64(n)
		if n == 0 {
			return total, true
		}
	}
}

func (p *parser) readImage(w common.Window, h common.ElementHeader) {
	base := h.DataStart - h.HeaderLen
	var img Image
	img.Left, _ = w.U16LE(base + 1)
	img.Top, _ = w.U16LE(base + 3)
	img.Width, _ = w.U16LE(base + 5)
	img.Height, _ = w.U16LE(base + 7)
	packed, _ := w.U8(base + 9)
	img.LocalTable = packed&0x80 != 0
	img.Interlaced = packed&0x40 != 0
	p.result.Images = append(p.result.Images, img)
}

func (p *parser) readExtension(label uint8, payload common.Window) {
	switch label {
	case extGraphicControl:
		p.result.GraphicControls++
	case extComment:
		if text := joinSubBlocks(payload); text != "" {
			p.result.Comments = append(p.result.Comments, text)
		}
	case extApplication:
		ident, ok := payload.U8(0)
		if !ok || ident < 11 {
			p.issues.Add("application extension identifier shorter than 11 bytes")
			return
		}
		name, _ := payload.FixedString(1, 11)
		p.result.AppExtensions = append(p.result.AppExtensions, name)
		if strings.HasPrefix(name, "NETSCAPE") {
			// Loop count lives in the first data sub-block: id byte
			// 0x01 then a little-endian u16.
			if sub, ok := payload.U8(1 + int64(ident)); ok && sub >= 3 {
				if id, ok := payload.U8(2 + int64(ident)); ok && id == 1 {
					if count, ok := payload.U16LE(3 + int64(ident)); ok {
						p.result.LoopCount = int(count)
					}
				}
			}
		}
	}
}

// joinSubBlocks concatenates a data sub-block chain into text.
func joinSubBlocks(w common.Window) string {
	var sb strings.Builder
	off := int64(0)
	for sb.Len() < maxCommentSize {
		n, ok := w.U8(off)
		if !ok || n == 0 {
			break
		}
		b, ok := w.Bytes(off+1, int64(n))
		if !ok {
			break
		}
		sb.Write(b)
		off += 1 + int64(n)
	}
	return sb.String()
}
