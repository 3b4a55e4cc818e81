package riffscan

import (
	"binspect/common"
)

type parser struct {
	win      common.Window
	issues   common.Issues
	coverage common.Coverage
	result   *File
}

// Parse decodes a RIFF container from data. It returns nil unless the
// four-byte RIFF magic is present. Big-endian RIFX files are
// recognized but not walked.
func Parse(data []byte) *File {
	w := common.NewWindow(data)
	magic, ok := w.Bytes(0, 4)
	if !ok {
		return nil
	}
	switch string(magic) {
	case "RIFF":
	case "RIFX":
		p := &parser{win: w, result: &File{}}
		p.issues.Add("big-endian RIFX container, chunk walk not attempted")
		return p.finish()
	default:
		return nil
	}

	p := &parser{win: w, result: &File{Tags: map[string]string{}}}
	p.result.DeclaredSize, _ = w.U32LE(4)
	p.result.FormType, _ = p.chunkTag(8)

	// Declared size counts from offset 8 and includes the form type.
	bodyEnd, okAdd := common.AddOffsets(8, int64(p.result.DeclaredSize))
	if !okAdd || int64(p.result.DeclaredSize) < 4 {
		p.issues.Add("RIFF declared size is invalid")
		bodyEnd = w.Size()
	}
	if bodyEnd > w.Size() {
		p.issues.Addf("RIFF declared size runs past end of file (%d > %d)", bodyEnd, w.Size())
		bodyEnd = w.Size()
	} else if tail := w.Size() - bodyEnd; tail > 0 {
		p.result.HasOverlay = true
		p.result.OverlaySize = tail
		p.coverage.Add("trailing data", bodyEnd, tail)
	}

	if bodyEnd > 12 {
		body, _ := w.Slice(12, bodyEnd-12)
		p.result.Chunks = p.parseChunks(body, maxListDepth, p.result.FormType)
		p.coverage.Add("chunk data", 12, bodyEnd-12)
	}
	return p.finish()
}

func (p *parser) finish() *File {
	p.result.Issues = p.issues.List()
	p.result.Coverage = p.coverage.Regions()
	return p.result
}

// chunkTag reads a raw four-character code without NUL trimming.
func (p *parser) chunkTag(off int64) (string, bool) {
	b, ok := p.win.Bytes(off, 4)
	if !ok {
		return "", false
	}
	return string(b), true
}

// decodeChunk is the DecodeHeaderFunc for RIFF: a four-character code
// and a little-endian u32 size, with odd sizes padded to word
// alignment. DeclaredSize carries the padded size so the cursor lands
// on the next chunk; the real size is re-read by the emitter.
func decodeChunk(w common.Window, off int64) (common.ElementHeader, bool) {
	tag, ok := w.Bytes(off, 4)
	if !ok {
		return common.ElementHeader{}, false
	}
	size, ok := w.U32LE(off + 4)
	if !ok {
		return common.ElementHeader{}, false
	}
	padded := int64(size)
	if size&1 == 1 {
		padded++
	}
	return common.ElementHeader{
		Tag:          string(tag),
		DeclaredSize: padded,
		HeaderLen:    8,
		DataStart:    off + 8,
	}, true
}

func (p *parser) parseChunks(w common.Window, depth int, parentForm string) []Chunk {
	if depth <= 0 {
		p.issues.Addf("LIST nesting deeper than %d, not descended", maxListDepth)
		return nil
	}
	var chunks []Chunk
	cfg := common.WalkConfig{MaxItems: maxChunks, MinHeaderSize: 8, Label: "RIFF chunk"}
	common.Walk(w, decodeChunk, cfg, &p.issues, func(h common.ElementHeader, payload common.Window) bool {
		realSize, _ := w.U32LE(h.DataStart - 4)
		dataLen := int64(realSize)
		if dataLen > payload.Size() {
			dataLen = payload.Size()
		}
		data, _ := payload.Slice(0, dataLen)

		c := Chunk{ID: h.Tag, Offset: payload.Start() - h.HeaderLen, Size: realSize}
		switch h.Tag {
		case "LIST":
			if form, ok := data.Bytes(0, 4); ok {
				c.ListType = string(form)
				rest, _ := data.Slice(4, data.Size()-4)
				c.Children = p.parseChunks(rest, depth-1, c.ListType)
			}
		case "fmt ":
			if parentForm == "WAVE" {
				p.parseWaveFormat(data)
			}
		case "avih":
			p.parseAVIHeader(data)
		case "VP8X":
			if parentForm == "WEBP" {
				p.parseVP8X(data)
			}
		default:
			if parentForm == "INFO" && len(p.result.Tags) < maxInfoTags {
				if v, ok := data.CString(0, data.Size()); ok {
					p.result.Tags[h.Tag] = v
				}
			}
		}
		chunks = append(chunks, c)
		return true
	})
	return chunks
}

func (p *parser) parseWaveFormat(w common.Window) {
	if w.Size() < 16 {
		p.issues.Addf("fmt chunk too short (%d bytes)", w.Size())
		return
	}
	f := &WaveFormat{}
	f.AudioFormat, _ = w.U16LE(0)
	f.Channels, _ = w.U16LE(2)
	f.SampleRate, _ = w.U32LE(4)
	f.ByteRate, _ = w.U32LE(8)
	f.BlockAlign, _ = w.U16LE(12)
	f.BitsPerSample, _ = w.U16LE(14)
	p.result.Wave = f
}

func (p *parser) parseAVIHeader(w common.Window) {
	if w.Size() < 40 {
		p.issues.Addf("avih chunk too short (%d bytes)", w.Size())
		return
	}
	h := &AVIHeader{}
	h.MicroSecPerFrame, _ = w.U32LE(0)
	h.TotalFrames, _ = w.U32LE(16)
	h.Streams, _ = w.U32LE(24)
	h.Width, _ = w.U32LE(32)
	h.Height, _ = w.U32LE(36)
	p.result.AVI = h
}

// parseVP8X decodes the WebP extended-features chunk: a flag byte,
// three reserved bytes, then 24-bit little-endian canvas dimensions
// stored minus one.
func (p *parser) parseVP8X(w common.Window) {
	if w.Size() < 10 {
		p.issues.Addf("VP8X chunk too short (%d bytes)", w.Size())
		return
	}
	f := &WebPFeatures{}
	f.Flags, _ = w.U8(0)
	f.HasAlpha = f.Flags&0x10 != 0
	f.HasAnimation = f.Flags&0x02 != 0
	f.CanvasWidth = u24le(w, 4) + 1
	f.CanvasHeight = u24le(w, 7) + 1
	p.result.WebP = f
}

func u24le(w common.Window, off int64) uint32 {
	b, ok := w.Bytes(off, 3)
	if !ok {
		return 0
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
}
