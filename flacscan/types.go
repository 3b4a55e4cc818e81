package flacscan

import "binspect/common"

// File is the decoded metadata view of a FLAC stream. Frame data is
// located, never decoded.
type File struct {
	StreamInfo *StreamInfo
	Vendor     string
	Comments   map[string]string
	SeekPoints int
	Pictures   []Picture
	Blocks     []Block

	// FrameDataOffset is where audio frames begin, -1 when the block
	// chain never terminated inside the file.
	FrameDataOffset int64

	Issues   []string
	Coverage []common.Region
}

type Block struct {
	Type     uint8
	TypeName string
	Offset   int64
	Length   uint32
	Last     bool
}

// StreamInfo is the mandatory first metadata block.
type StreamInfo struct {
	MinBlockSize  uint16
	MaxBlockSize  uint16
	MinFrameSize  uint32
	MaxFrameSize  uint32
	SampleRate    uint32
	Channels      uint8
	BitsPerSample uint8
	TotalSamples  uint64
	MD5           string
}

type Picture struct {
	Type        uint32
	MIME        string
	Description string
	Width       uint32
	Height      uint32
}

const (
	maxBlocks   = 128
	maxComments = 256
	maxPictures = 16
)

func blockTypeName(t uint8) string {
	switch t {
	case 0:
		return "STREAMINFO"
	case 1:
		return "PADDING"
	case 2:
		return "APPLICATION"
	case 3:
		return "SEEKTABLE"
	case 4:
		return "VORBIS_COMMENT"
	case 5:
		return "CUESHEET"
	case 6:
		return "PICTURE"
	case 127:
		return "INVALID"
	default:
		return "RESERVED"
	}
}
