package ebmlscan

import (
	"math"

	"binspect/common"
)

type parser struct {
	win      common.Window
	issues   common.Issues
	coverage common.Coverage
	result   *File
}

// Parse decodes an EBML document from data. It returns nil when the
// EBML magic is absent; malformed documents produce a partial result
// with issues recorded.
func Parse(data []byte) *File {
	w := common.NewWindow(data)
	if b, ok := w.Bytes(0, 4); !ok || b[0] != 0x1A || b[1] != 0x45 || b[2] != 0xDF || b[3] != 0xA3 {
		return nil
	}

	p := &parser{win: w, result: &File{SegmentOffset: -1}}
	p.walkTopLevel()
	p.result.Issues = p.issues.List()
	p.result.Coverage = p.coverage.Regions()
	return p.result
}

// decodeVint reads an EBML variable-length integer. Element IDs keep
// the length-marker bit in their value; sizes strip it. allOnes marks
// a size whose value bits are all set, the "unknown size" sentinel.
func decodeVint(w common.Window, off int64, keepMarker bool) (value uint64, length int64, allOnes bool, ok bool) {
	first, ok := w.U8(off)
	if !ok || first == 0 {
		return 0, 0, false, false
	}
	length = 1
	for mask := uint8(0x80); first&mask == 0; mask >>= 1 {
		length++
	}
	raw, ok := w.Bytes(off, length)
	if !ok {
		return 0, 0, false, false
	}
	for _, b := range raw {
		value = value<<8 | uint64(b)
	}
	if keepMarker {
		return value, length, false, true
	}
	marker := uint64(1) << uint(7*length)
	value &^= marker
	return value, length, value == marker-1, true
}

// decodeElement is the DecodeHeaderFunc for EBML: a vint ID (at most
// four bytes) followed by a vint size.
func decodeElement(w common.Window, off int64) (common.ElementHeader, bool) {
	id, idLen, _, ok := decodeVint(w, off, true)
	if !ok || idLen > 4 {
		return common.ElementHeader{}, false
	}
	size, szLen, unknown, ok := decodeVint(w, off+idLen, false)
	if !ok {
		return common.ElementHeader{}, false
	}
	return common.ElementHeader{
		ID:           id,
		DeclaredSize: int64(size),
		HeaderLen:    idLen + szLen,
		DataStart:    off + idLen + szLen,
		SizeUnknown:  unknown,
	}, true
}

func (p *parser) walkTopLevel() {
	cfg := common.WalkConfig{MaxItems: maxTopLevel, MinHeaderSize: 2, Label: "EBML element"}
	common.Walk(p.win, decodeElement, cfg, &p.issues, func(h common.ElementHeader, payload common.Window) bool {
		switch h.ID {
		case idEBML:
			p.coverage.Add("EBML header", payload.Start()-h.HeaderLen, h.HeaderLen+payload.Size())
			p.parseHeader(payload)
		case idSegment:
			p.result.SegmentOffset = payload.Start() - h.HeaderLen
			p.result.SegmentUnknownSize = h.SizeUnknown
			p.coverage.Add("Segment", p.result.SegmentOffset, h.HeaderLen+payload.Size())
			p.parseSegment(payload)
		}
		if h.SizeUnknown && h.ID != idSegment {
			p.issues.Addf("EBML element 0x%X has unknown size outside a Segment", h.ID)
			return false
		}
		return true
	})
}

// unknownSize flags an unknown-size element anywhere below the
// Segment, where only the Segment itself may omit its size.
func (p *parser) unknownSize(h common.ElementHeader) bool {
	if !h.SizeUnknown {
		return false
	}
	p.issues.Addf("element 0x%X has unknown size, walk stopped", h.ID)
	return true
}

func (p *parser) parseHeader(w common.Window) {
	cfg := common.WalkConfig{MaxItems: maxChildren, MinHeaderSize: 2, Label: "EBML header child"}
	common.Walk(w, decodeElement, cfg, &p.issues, func(h common.ElementHeader, payload common.Window) bool {
		switch h.ID {
		case idEBMLVersion:
			p.result.EBMLVersion = elementUint(payload)
		case idEBMLReadVersion:
			p.result.ReadVersion = elementUint(payload)
		case idMaxIDLength:
			p.result.MaxIDLength = elementUint(payload)
		case idMaxSizeLength:
			p.result.MaxSizeLength = elementUint(payload)
		case idDocType:
			p.result.DocType = elementString(payload)
		case idDocTypeVersion:
			p.result.DocTypeVersion = elementUint(payload)
		}
		return !p.unknownSize(h)
	})
}

func (p *parser) parseSegment(w common.Window) {
	cfg := common.WalkConfig{MaxItems: maxSegmentChildren, MinHeaderSize: 2, Label: "Segment child"}
	common.Walk(w, decodeElement, cfg, &p.issues, func(h common.ElementHeader, payload common.Window) bool {
		if h.SizeUnknown {
			p.issues.Addf("Segment child 0x%X has unknown size, walk stopped", h.ID)
			return false
		}
		switch h.ID {
		case idInfo:
			p.parseInfo(payload)
		case idTracks:
			p.parseTracks(payload)
		case idSeekHead:
			p.result.SeekEntries += p.countChildren(payload, idSeek, "SeekHead child")
		case idCues:
			p.result.CuePoints += p.countChildren(payload, idCuePoint, "Cues child")
		case idCluster:
			// Located only; frame data is out of scope.
			p.result.Clusters++
		}
		return true
	})
}

func (p *parser) parseInfo(w common.Window) {
	info := &SegmentInfo{}
	cfg := common.WalkConfig{MaxItems: maxChildren, MinHeaderSize: 2, Label: "Info child"}
	common.Walk(w, decodeElement, cfg, &p.issues, func(h common.ElementHeader, payload common.Window) bool {
		switch h.ID {
		case idTimestampScale:
			info.TimestampScale = elementUint(payload)
		case idDuration:
			info.Duration = elementFloat(payload)
		case idTitle:
			info.Title = elementString(payload)
		case idMuxingApp:
			info.MuxingApp = elementString(payload)
		case idWritingApp:
			info.WritingApp = elementString(payload)
		}
		return !p.unknownSize(h)
	})
	p.result.Info = info
}

func (p *parser) parseTracks(w common.Window) {
	cfg := common.WalkConfig{MaxItems: maxTracks, MinHeaderSize: 2, Label: "track entry"}
	common.Walk(w, decodeElement, cfg, &p.issues, func(h common.ElementHeader, payload common.Window) bool {
		if h.ID == idTrackEntry && !h.SizeUnknown {
			p.result.Tracks = append(p.result.Tracks, p.parseTrackEntry(payload))
		}
		return !p.unknownSize(h)
	})
}

func (p *parser) parseTrackEntry(w common.Window) Track {
	var t Track
	cfg := common.WalkConfig{MaxItems: maxChildren, MinHeaderSize: 2, Label: "track child"}
	common.Walk(w, decodeElement, cfg, &p.issues, func(h common.ElementHeader, payload common.Window) bool {
		switch h.ID {
		case idTrackNumber:
			t.Number = elementUint(payload)
		case idTrackUID:
			t.UID = elementUint(payload)
		case idTrackType:
			t.Type = elementUint(payload)
			t.TypeName = trackTypeName(t.Type)
		case idCodecID:
			t.CodecID = elementString(payload)
		case idTrackName:
			t.Name = elementString(payload)
		case idLanguage:
			t.Language = elementString(payload)
		case idVideo:
			t.Video = p.parseVideo(payload)
		case idAudio:
			t.Audio = p.parseAudio(payload)
		}
		return !p.unknownSize(h)
	})
	return t
}

func (p *parser) parseVideo(w common.Window) *VideoTrack {
	v := &VideoTrack{}
	cfg := common.WalkConfig{MaxItems: maxChildren, MinHeaderSize: 2, Label: "video child"}
	common.Walk(w, decodeElement, cfg, &p.issues, func(h common.ElementHeader, payload common.Window) bool {
		switch h.ID {
		case idPixelWidth:
			v.PixelWidth = elementUint(payload)
		case idPixelHeight:
			v.PixelHeight = elementUint(payload)
		}
		return !p.unknownSize(h)
	})
	return v
}

func (p *parser) parseAudio(w common.Window) *AudioTrack {
	a := &AudioTrack{}
	cfg := common.WalkConfig{MaxItems: maxChildren, MinHeaderSize: 2, Label: "audio child"}
	common.Walk(w, decodeElement, cfg, &p.issues, func(h common.ElementHeader, payload common.Window) bool {
		switch h.ID {
		case idSampleFreq:
			a.SamplingFrequency = elementFloat(payload)
		case idChannels:
			a.Channels = elementUint(payload)
		}
		return !p.unknownSize(h)
	})
	return a
}

func (p *parser) countChildren(w common.Window, id uint64, label string) int {
	n := 0
	cfg := common.WalkConfig{MaxItems: maxChildren, MinHeaderSize: 2, Label: label}
	common.Walk(w, decodeElement, cfg, &p.issues, func(h common.ElementHeader, payload common.Window) bool {
		if h.ID == id {
			n++
		}
		return !p.unknownSize(h)
	})
	return n
}

// elementUint reads a big-endian unsigned element payload of up to
// eight bytes. Empty payloads decode to zero per the EBML default.
func elementUint(w common.Window) uint64 {
	size := w.Size()
	if size > 8 {
		size = 8
	}
	raw, ok := w.Bytes(0, size)
	if !ok {
		return 0
	}
	var v uint64
	for _, b := range raw {
		v = v<<8 | uint64(b)
	}
	return v
}

// elementFloat accepts the two float widths EBML allows.
func elementFloat(w common.Window) float64 {
	switch w.Size() {
	case 4:
		v, _ := w.U32BE(0)
		return float64(math.Float32frombits(v))
	case 8:
		v, _ := w.U64BE(0)
		return math.Float64frombits(v)
	default:
		return 0
	}
}

func elementString(w common.Window) string {
	raw, ok := w.Bytes(0, w.Size())
	if !ok {
		return ""
	}
	end := len(raw)
	for end > 0 && raw[end-1] == 0 {
		end--
	}
	return string(raw[:end])
}
