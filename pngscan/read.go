package pngscan

import (
	"hash/crc32"

	"binspect/common"
)

// File is the decoded chunk structure of a PNG image.
type File struct {
	Header *ImageHeader
	Chunks []Chunk
	Texts  map[string]string

	HasIEND bool

	Issues   []string
	Coverage []common.Region
}

// ImageHeader mirrors the IHDR fields.
type ImageHeader struct {
	Width       uint32
	Height      uint32
	BitDepth    uint8
	ColorType   uint8
	Compression uint8
	Filter      uint8
	Interlace   uint8
}

// Chunk is one chunk in stream order.
type Chunk struct {
	Type     string
	Offset   int64
	Length   uint32
	CRCValid bool
}

const (
	maxChunks   = 4096
	maxTexts    = 64
	maxTextSize = 4096
)

var signature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}

type parser struct {
	win      common.Window
	issues   common.Issues
	coverage common.Coverage
	result   *File
}

// Parse decodes a PNG from data, returning nil unless the eight-byte
// signature is present.
func Parse(data []byte) *File {
	w := common.NewWindow(data)
	sig, ok := w.Bytes(0, 8)
	if !ok || string(sig) != string(signature) {
		return nil
	}

	p := &parser{win: w, result: &File{Texts: map[string]string{}}}
	p.walkChunks()
	p.result.Issues = p.issues.List()
	p.result.Coverage = p.coverage.Regions()
	return p.result
}

// decodeChunk reads one chunk header: u32 big-endian data length and a
// four-character type. DeclaredSize includes the trailing CRC so the
// cursor lands on the next chunk.
func decodeChunk(w common.Window, off int64) (common.ElementHeader, bool) {
	length, ok := w.U32BE(off)
	if !ok {
		return common.ElementHeader{}, false
	}
	ctype, ok := w.Bytes(off+4, 4)
	if !ok {
		return common.ElementHeader{}, false
	}
	return common.ElementHeader{
		Tag:          string(ctype),
		DeclaredSize: int64(length) + 4,
		HeaderLen:    8,
		DataStart:    off + 8,
	}, true
}

func (p *parser) walkChunks() {
	body, ok := p.win.Tail(8)
	if !ok {
		return
	}
	r := p.result
	cfg := common.WalkConfig{MaxItems: maxChunks, MinHeaderSize: 8, Label: "PNG chunk"}
	end := common.Walk(body, decodeChunk, cfg, &p.issues, func(h common.ElementHeader, payload common.Window) bool {
		dataLen := h.DeclaredSize - 4
		if dataLen > payload.Size() {
			dataLen = payload.Size()
		}
		data, _ := payload.Slice(0, dataLen)

		c := Chunk{Type: h.Tag, Offset: payload.Start() - h.HeaderLen, Length: uint32(dataLen)}
		c.CRCValid = p.checkCRC(body, h, data)
		r.Chunks = append(r.Chunks, c)

		if len(r.Chunks) == 1 && h.Tag != "IHDR" {
			p.issues.Addf("first chunk is %q, expected IHDR", h.Tag)
		}
		switch h.Tag {
		case "IHDR":
			p.readHeader(data)
		case "tEXt":
			p.readText(data)
		case "IEND":
			r.HasIEND = true
			return false
		}
		return true
	})

	if !r.HasIEND {
		p.issues.Add("stream ends without an IEND chunk")
	}
	p.coverage.Add("chunks", 8, end)
	if tail := body.Size() - end; tail > 0 && r.HasIEND {
		p.coverage.Add("data after IEND", 8+end, tail)
	}
}

// checkCRC validates the chunk CRC over type and data. A chunk whose
// CRC field was truncated away counts as invalid.
func (p *parser) checkCRC(body common.Window, h common.ElementHeader, data common.Window) bool {
	stored, ok := body.U32BE(h.DataStart + data.Size())
	if !ok {
		return false
	}
	raw, ok := data.Bytes(0, data.Size())
	if !ok {
		return false
	}
	crc := crc32.NewIEEE()
	crc.Write([]byte(h.Tag))
	crc.Write(raw)
	if crc.Sum32() != stored {
		p.issues.Addf("%s chunk at offset %d has a bad CRC", h.Tag, h.DataStart-h.HeaderLen+8)
		return false
	}
	return true
}

func (p *parser) readHeader(w common.Window) {
	if w.Size() < 13 {
		p.issues.Addf("IHDR chunk too short (%d bytes)", w.Size())
		return
	}
	h := &ImageHeader{}
	h.Width, _ = w.U32BE(0)
	h.Height, _ = w.U32BE(4)
	h.BitDepth, _ = w.U8(8)
	h.ColorType, _ = w.U8(9)
	h.Compression, _ = w.U8(10)
	h.Filter, _ = w.U8(11)
	h.Interlace, _ = w.U8(12)
	p.result.Header = h
}

// readText splits a tEXt payload at its NUL separator.
func (p *parser) readText(w common.Window) {
	if len(p.result.Texts) >= maxTexts {
		return
	}
	key, ok := w.CString(0, 80)
	if !ok || key == "" {
		p.issues.Add("tEXt chunk has no keyword")
		return
	}
	valueOff := int64(len(key)) + 1
	if valueOff > w.Size() {
		p.result.Texts[key] = ""
		return
	}
	value, _ := w.FixedString(valueOff, min(w.Size()-valueOff, maxTextSize))
	p.result.Texts[key] = value
}
