package asfscan

import (
	"binspect/common"
)

// File is the decoded object structure of an ASF (WMA/WMV) container.
type File struct {
	HeaderObjectCount uint32
	Objects           []Object
	FileProps         *FileProperties
	Streams           []StreamProperties

	Issues   []string
	Coverage []common.Region
}

// Object is one ASF object located in the file, children included for
// the header object.
type Object struct {
	GUID   string
	Name   string
	Offset int64
	Size   uint64
}

// FileProperties is the decoded file properties object.
type FileProperties struct {
	FileSize        uint64
	CreationTime    uint64 // 100ns intervals since 1601-01-01
	PacketCount     uint64
	PlayDuration    uint64 // 100ns units
	Preroll         uint64 // milliseconds
	Broadcast       bool
	Seekable        bool
	MinPacketSize   uint32
	MaxPacketSize   uint32
	MaxBitrate      uint32
	DurationSeconds float64
}

// StreamProperties is one stream properties object.
type StreamProperties struct {
	StreamNumber uint16
	StreamType   string // "audio", "video" or the raw GUID
	Encrypted    bool
	TimeOffset   uint64
}

const (
	guidHeader      = "75b22630-668e-11cf-a6d9-00aa0062ce6c"
	guidData        = "75b22636-668e-11cf-a6d9-00aa0062ce6c"
	guidFileProps   = "8cabdca1-a947-11cf-8ee4-00c00c205365"
	guidStreamProps = "b7dc0791-a9b7-11cf-8ee6-00c00c205365"
	guidHeaderExt   = "5fbf03b5-a92e-11cf-8ee3-00c00c205365"
	guidCodecList   = "86d15240-311d-11d0-a3a4-00a0c90348f6"
	guidContentDesc = "75b22633-668e-11cf-a6d9-00aa0062ce6c"
	guidExtContent  = "d2d0a440-e307-11d2-97f0-00a0c95ea850"
	guidSimpleIndex = "33000890-e5b1-11cf-89f4-00a0c90349cb"

	guidAudioStream = "f8699e40-5b4d-11cf-a8fd-00805f5c442b"
	guidVideoStream = "bc19efc0-5b4d-11cf-a8fd-00805f5c442b"

	objectHeaderLen = 24
	maxObjects      = 256
)

var guidNames = map[string]string{
	guidHeader:      "Header",
	guidData:        "Data",
	guidFileProps:   "File Properties",
	guidStreamProps: "Stream Properties",
	guidHeaderExt:   "Header Extension",
	guidCodecList:   "Codec List",
	guidContentDesc: "Content Description",
	guidExtContent:  "Extended Content Description",
	guidSimpleIndex: "Simple Index",
}

type parser struct {
	win      common.Window
	issues   common.Issues
	coverage common.Coverage
	result   *File
}

// Parse decodes an ASF container from data, returning nil unless the
// header object GUID opens the file.
func Parse(data []byte) *File {
	w := common.NewWindow(data)
	sig, ok := w.Bytes(0, 16)
	if !ok || common.DecodeGUID(sig) != guidHeader {
		return nil
	}

	p := &parser{win: w, result: &File{}}
	p.parseHeaderObject()
	p.walkTopLevel()
	p.result.Issues = p.issues.List()
	p.result.Coverage = p.coverage.Regions()
	return p.result
}

// decodeObject is the DecodeHeaderFunc for ASF: a 16-byte GUID and a
// little-endian u64 size that includes the 24-byte object header.
func decodeObject(w common.Window, off int64) (common.ElementHeader, bool) {
	raw, ok := w.Bytes(off, 16)
	if !ok {
		return common.ElementHeader{}, false
	}
	size, ok := w.U64LE(off + 16)
	if !ok || size < objectHeaderLen || size > 1<<62 {
		return common.ElementHeader{}, false
	}
	return common.ElementHeader{
		Tag:          common.DecodeGUID(raw),
		DeclaredSize: int64(size) - objectHeaderLen,
		HeaderLen:    objectHeaderLen,
		DataStart:    off + objectHeaderLen,
	}, true
}

func (p *parser) parseHeaderObject() {
	headerSize, _ := p.win.U64LE(16)
	p.result.HeaderObjectCount, _ = p.win.U32LE(24)

	// Children start after the count and two reserved bytes.
	bodyStart := int64(30)
	bodyLen := int64(headerSize) - bodyStart
	if headerSize < uint64(bodyStart) || bodyLen < 0 {
		p.issues.Add("header object size smaller than its fixed fields")
		return
	}
	if avail := p.win.Size() - bodyStart; bodyLen > avail {
		p.issues.Add("header object size runs past end of file")
		bodyLen = avail
	}
	if bodyLen <= 0 {
		return
	}
	body, ok := p.win.Slice(bodyStart, bodyLen)
	if !ok {
		return
	}
	p.coverage.Add("header object", 0, bodyStart+bodyLen)

	count := 0
	cfg := common.WalkConfig{MaxItems: maxObjects, MinHeaderSize: objectHeaderLen, Label: "header child object"}
	common.Walk(body, decodeObject, cfg, &p.issues, func(h common.ElementHeader, payload common.Window) bool {
		count++
		p.recordObject(h, payload)
		switch h.Tag {
		case guidFileProps:
			p.parseFileProperties(payload)
		case guidStreamProps:
			p.parseStreamProperties(payload)
		}
		return true
	})
	if uint32(count) != p.result.HeaderObjectCount {
		p.issues.Addf("header object declares %d children, found %d", p.result.HeaderObjectCount, count)
	}
}

// walkTopLevel picks up the Data object and any indices after the
// header object.
func (p *parser) walkTopLevel() {
	headerSize, _ := p.win.U64LE(16)
	start := int64(headerSize)
	if start <= 0 || start >= p.win.Size() {
		return
	}
	rest, ok := p.win.Tail(start)
	if !ok {
		return
	}
	cfg := common.WalkConfig{MaxItems: maxObjects, MinHeaderSize: objectHeaderLen, Label: "top-level object"}
	common.Walk(rest, decodeObject, cfg, &p.issues, func(h common.ElementHeader, payload common.Window) bool {
		p.recordObject(h, payload)
		return true
	})
}

func (p *parser) recordObject(h common.ElementHeader, payload common.Window) {
	name := guidNames[h.Tag]
	if name == "" {
		name = "Unknown"
	}
	p.result.Objects = append(p.result.Objects, Object{
		GUID:   h.Tag,
		Name:   name,
		Offset: payload.Start() - h.HeaderLen,
		Size:   uint64(h.DeclaredSize) + objectHeaderLen,
	})
}

func (p *parser) parseFileProperties(w common.Window) {
	if w.Size() < 80 {
		p.issues.Addf("file properties object too short (%d bytes)", w.Size())
		return
	}
	fp := &FileProperties{}
	// The leading file ID GUID is skipped.
	fp.FileSize, _ = w.U64LE(16)
	fp.CreationTime, _ = w.U64LE(24)
	fp.PacketCount, _ = w.U64LE(32)
	fp.PlayDuration, _ = w.U64LE(40)
	fp.Preroll, _ = w.U64LE(56)
	flags, _ := w.U32LE(64)
	fp.Broadcast = flags&0x01 != 0
	fp.Seekable = flags&0x02 != 0
	fp.MinPacketSize, _ = w.U32LE(68)
	fp.MaxPacketSize, _ = w.U32LE(72)
	fp.MaxBitrate, _ = w.U32LE(76)

	// Play duration includes the preroll, both in their native units.
	if fp.PlayDuration/10000 > fp.Preroll {
		fp.DurationSeconds = float64(fp.PlayDuration/10000-fp.Preroll) / 1000
	}
	p.result.FileProps = fp
}

func (p *parser) parseStreamProperties(w common.Window) {
	raw, ok := w.Bytes(0, 16)
	if !ok {
		p.issues.Add("stream properties object too short")
		return
	}
	sp := StreamProperties{}
	switch common.DecodeGUID(raw) {
	case guidAudioStream:
		sp.StreamType = "audio"
	case guidVideoStream:
		sp.StreamType = "video"
	default:
		sp.StreamType = common.DecodeGUID(raw)
	}
	sp.TimeOffset, _ = w.U64LE(32)
	flags, _ := w.U16LE(48)
	sp.StreamNumber = flags & 0x7F
	sp.Encrypted = flags&0x8000 != 0
	p.result.Streams = append(p.result.Streams, sp)
}
