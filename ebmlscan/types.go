package ebmlscan

import "binspect/common"

// File is the decoded view of an EBML document (WebM/Matroska).
type File struct {
	EBMLVersion    uint64
	ReadVersion    uint64
	MaxIDLength    uint64
	MaxSizeLength  uint64
	DocType        string
	DocTypeVersion uint64

	SegmentOffset      int64
	SegmentUnknownSize bool

	Info        *SegmentInfo
	Tracks      []Track
	SeekEntries int
	CuePoints   int
	Clusters    int

	Issues   []string
	Coverage []common.Region
}

// SegmentInfo carries the Segment\Info children.
type SegmentInfo struct {
	TimestampScale uint64
	Duration       float64
	Title          string
	MuxingApp      string
	WritingApp     string
}

type Track struct {
	Number   uint64
	UID      uint64
	Type     uint64
	TypeName string
	CodecID  string
	Name     string
	Language string
	Video    *VideoTrack
	Audio    *AudioTrack
}

type VideoTrack struct {
	PixelWidth  uint64
	PixelHeight uint64
}

type AudioTrack struct {
	SamplingFrequency float64
	Channels          uint64
}

// Matroska element IDs, marker bit included.
const (
	idEBML            = 0x1A45DFA3
	idEBMLVersion     = 0x4286
	idEBMLReadVersion = 0x42F7
	idMaxIDLength     = 0x42F2
	idMaxSizeLength   = 0x42F3
	idDocType         = 0x4282
	idDocTypeVersion  = 0x4287

	idSegment  = 0x18538067
	idSeekHead = 0x114D9B74
	idSeek     = 0x4DBB
	idInfo     = 0x1549A966
	idTracks   = 0x1654AE6B
	idCues     = 0x1C53BB6B
	idCuePoint = 0xBB
	idCluster  = 0x1F43B675

	idTimestampScale = 0x2AD7B1
	idDuration       = 0x4489
	idTitle          = 0x7BA9
	idMuxingApp      = 0x4D80
	idWritingApp     = 0x5741

	idTrackEntry  = 0xAE
	idTrackNumber = 0xD7
	idTrackUID    = 0x73C5
	idTrackType   = 0x83
	idCodecID     = 0x86
	idTrackName   = 0x536E
	idLanguage    = 0x22B59C
	idVideo       = 0xE0
	idAudio       = 0xE1
	idPixelWidth  = 0xB0
	idPixelHeight = 0xBA
	idSampleFreq  = 0xB5
	idChannels    = 0x9F
)

const (
	maxDepth           = 8
	maxTopLevel        = 64
	maxSegmentChildren = 4096
	maxChildren        = 512
	maxTracks          = 64
)

func trackTypeName(t uint64) string {
	switch t {
	case 1:
		return "video"
	case 2:
		return "audio"
	case 3:
		return "complex"
	case 16:
		return "logo"
	case 17:
		return "subtitle"
	case 18:
		return "buttons"
	case 32:
		return "control"
	case 33:
		return "metadata"
	default:
		return ""
	}
}
