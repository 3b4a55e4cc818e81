package common

import "fmt"

// DecodeGUID formats 16 bytes in the mixed-endian Microsoft GUID
// layout: the first three fields are little-endian, the remaining
// eight bytes are a big-endian byte sequence. Output is lowercase
// hyphenated hex in 8-4-4-4-12 groups, the form used by ASF object
// tables and LNK CLSIDs.
func DecodeGUID(b []byte) string {
	if len(b) < 16 {
		return ""
	}
	return fmt.Sprintf("%08x-%04x-%04x-%02x%02x-%02x%02x%02x%02x%02x%02x",
		uint32(b[0])|uint32(b[1])<<8|uint32(b[2])<<16|uint32(b[3])<<24,
		uint16(b[4])|uint16(b[5])<<8,
		uint16(b[6])|uint16(b[7])<<8,
		b[8], b[9], b[10], b[11], b[12], b[13], b[14], b[15])
}
