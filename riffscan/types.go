package riffscan

import "binspect/common"

// File is the decoded view of a RIFF container (WAVE, AVI, WebP).
type File struct {
	FormType     string
	DeclaredSize uint32
	Chunks       []Chunk
	Tags         map[string]string

	Wave *WaveFormat
	AVI  *AVIHeader
	WebP *WebPFeatures

	HasOverlay  bool
	OverlaySize int64

	Issues   []string
	Coverage []common.Region
}

// Chunk is one chunk in file order. LIST chunks carry their form type
// and decoded children.
type Chunk struct {
	ID       string
	Offset   int64
	Size     uint32
	ListType string
	Children []Chunk
}

// WaveFormat mirrors the classic WAVEFORMATEX prefix from "fmt ".
type WaveFormat struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
}

// AVIHeader mirrors the avih main header fields worth surfacing.
type AVIHeader struct {
	MicroSecPerFrame uint32
	TotalFrames      uint32
	Streams          uint32
	Width            uint32
	Height           uint32
}

// WebPFeatures comes from the VP8X extended-features chunk.
type WebPFeatures struct {
	Flags        uint8
	HasAlpha     bool
	HasAnimation bool
	CanvasWidth  uint32
	CanvasHeight uint32
}

const (
	maxChunks    = 1024
	maxListDepth = 4
	maxInfoTags  = 64
)
