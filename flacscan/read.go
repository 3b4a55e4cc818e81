package flacscan

import (
	"encoding/hex"
	"strings"

	"binspect/common"
)

type parser struct {
	win      common.Window
	issues   common.Issues
	coverage common.Coverage
	result   *File
}

// Parse decodes FLAC metadata from data, returning nil unless the
// fLaC magic is present.
func Parse(data []byte) *File {
	w := common.NewWindow(data)
	if b, ok := w.Bytes(0, 4); !ok || string(b) != "fLaC" {
		return nil
	}

	p := &parser{win: w, result: &File{
		Comments:        map[string]string{},
		FrameDataOffset: -1,
	}}
	p.walkBlocks()
	p.result.Issues = p.issues.List()
	p.result.Coverage = p.coverage.Regions()
	return p.result
}

// decodeBlock reads one metadata block header: a flag-and-type byte
// (bit 7 is the last-block flag) and a 24-bit big-endian length. The
// raw first byte rides in ID so the emitter can see the flag.
func decodeBlock(w common.Window, off int64) (common.ElementHeader, bool) {
	head, ok := w.U8(off)
	if !ok {
		return common.ElementHeader{}, false
	}
	length, ok := w.U24BE(off + 1)
	if !ok {
		return common.ElementHeader{}, false
	}
	return common.ElementHeader{
		ID:           uint64(head),
		DeclaredSize: int64(length),
		HeaderLen:    4,
		DataStart:    off + 4,
	}, true
}

func (p *parser) walkBlocks() {
	body, ok := p.win.Tail(4)
	if !ok {
		return
	}
	terminated := false
	stopped := false
	cfg := common.WalkConfig{MaxItems: maxBlocks, MinHeaderSize: 4, Label: "metadata block"}
	end := common.Walk(body, decodeBlock, cfg, &p.issues, func(h common.ElementHeader, payload common.Window) bool {
		last := h.ID&0x80 != 0
		blockType := uint8(h.ID & 0x7F)
		b := Block{
			Type:     blockType,
			TypeName: blockTypeName(blockType),
			Offset:   payload.Start() - h.HeaderLen,
			Length:   uint32(h.DeclaredSize),
			Last:     last,
		}
		p.result.Blocks = append(p.result.Blocks, b)

		if len(p.result.Blocks) == 1 && blockType != 0 {
			p.issues.Addf("first metadata block is %s, expected STREAMINFO", b.TypeName)
		}
		switch blockType {
		case 0:
			p.parseStreamInfo(payload)
		case 3:
			p.parseSeekTable(payload)
		case 4:
			p.parseVorbisComment(payload)
		case 6:
			p.parsePicture(payload)
		case 127:
			p.issues.Addf("invalid metadata block type at offset %d", b.Offset)
		}

		if last {
			terminated = true
			return false
		}
		if h.DeclaredSize == 0 {
			p.issues.Addf("zero-length metadata block without last flag at offset %d, walk stopped", b.Offset)
			stopped = true
			return false
		}
		return true
	})
	if terminated {
		p.result.FrameDataOffset = 4 + end
		p.coverage.Add("metadata blocks", 4, end)
		if p.result.FrameDataOffset < p.win.Size() {
			p.coverage.Add("frame data", p.result.FrameDataOffset, p.win.Size()-p.result.FrameDataOffset)
		}
	} else if !stopped && len(p.result.Blocks) > 0 {
		p.issues.Add("metadata block chain unterminated, no last-block flag before end of file")
	}
}

func (p *parser) parseStreamInfo(w common.Window) {
	if w.Size() < 34 {
		p.issues.Addf("STREAMINFO block too short (%d bytes)", w.Size())
		return
	}
	si := &StreamInfo{}
	si.MinBlockSize, _ = w.U16BE(0)
	si.MaxBlockSize, _ = w.U16BE(2)
	si.MinFrameSize, _ = w.U24BE(4)
	si.MaxFrameSize, _ = w.U24BE(7)

	// 64 packed bits: 20-bit sample rate, 3-bit channels-1, 5-bit
	// bits-per-sample-1, 36-bit total sample count.
	packed, _ := w.U64BE(10)
	si.SampleRate = uint32(packed >> 44)
	si.Channels = uint8((packed>>41)&0x7) + 1
	si.BitsPerSample = uint8((packed>>36)&0x1F) + 1
	si.TotalSamples = packed & (1<<36 - 1)

	if md5, ok := w.Bytes(18, 16); ok {
		si.MD5 = hex.EncodeToString(md5)
	}
	p.result.StreamInfo = si
}

func (p *parser) parseSeekTable(w common.Window) {
	const seekPointSize = 18
	if w.Size()%seekPointSize != 0 {
		p.issues.Addf("SEEKTABLE length %d is not a multiple of %d", w.Size(), seekPointSize)
	}
	p.result.SeekPoints = int(w.Size() / seekPointSize)
}

// parseVorbisComment decodes the little-endian length-prefixed vendor
// string and KEY=value pairs.
func (p *parser) parseVorbisComment(w common.Window) {
	vendorLen, ok := w.U32LE(0)
	if !ok {
		p.issues.Add("VORBIS_COMMENT block too short for vendor length")
		return
	}
	off := int64(4)
	vendor, ok := w.FixedString(off, int64(vendorLen))
	if !ok {
		p.issues.Add("VORBIS_COMMENT vendor string truncated")
		return
	}
	p.result.Vendor = vendor
	off += int64(vendorLen)

	count, ok := w.U32LE(off)
	if !ok {
		p.issues.Add("VORBIS_COMMENT truncated before comment count")
		return
	}
	off += 4
	for i := uint32(0); i < count; i++ {
		if i >= maxComments {
			p.issues.Addf("VORBIS_COMMENT walk stopped: more than %d comments", maxComments)
			return
		}
		clen, ok := w.U32LE(off)
		if !ok {
			p.issues.Addf("VORBIS_COMMENT truncated at comment %d", i)
			return
		}
		off += 4
		raw, ok := w.FixedString(off, int64(clen))
		if !ok {
			p.issues.Addf("VORBIS_COMMENT comment %d runs past block end", i)
			return
		}
		off += int64(clen)
		if key, value, found := strings.Cut(raw, "="); found {
			p.result.Comments[strings.ToUpper(key)] = value
		} else {
			p.issues.Addf("VORBIS_COMMENT comment %d has no separator", i)
		}
	}
}

// parsePicture decodes the big-endian METADATA_BLOCK_PICTURE layout up
// to the dimensions; the image payload itself is skipped.
func (p *parser) parsePicture(w common.Window) {
	if len(p.result.Pictures) >= maxPictures {
		return
	}
	picType, ok := w.U32BE(0)
	if !ok {
		p.issues.Add("PICTURE block too short")
		return
	}
	mimeLen, _ := w.U32BE(4)
	off := int64(8)
	mime, ok := w.FixedString(off, int64(mimeLen))
	if !ok {
		p.issues.Add("PICTURE MIME string truncated")
		return
	}
	off += int64(mimeLen)
	descLen, ok := w.U32BE(off)
	if !ok {
		p.issues.Add("PICTURE truncated before description")
		return
	}
	off += 4
	desc, ok := w.FixedString(off, int64(descLen))
	if !ok {
		p.issues.Add("PICTURE description truncated")
		return
	}
	off += int64(descLen)
	width, _ := w.U32BE(off)
	height, _ := w.U32BE(off + 4)
	p.result.Pictures = append(p.result.Pictures, Picture{
		Type:        picType,
		MIME:        mime,
		Description: desc,
		Width:       width,
		Height:      height,
	})
}
