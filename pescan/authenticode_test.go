package pescan

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The security directory holds a WIN_CERTIFICATE at a plain file
// offset. A malformed PKCS#7 body must surface as an issue plus a
// partially filled Authenticode record, never as a failure.
func TestSecurityDirectoryMalformedBlob(t *testing.T) {
	f := newPEFixture(0x640, []sectionSpec{defaultText()})
	const certOff = 0x600
	const certLen = 0x40
	f.setDirectory(dirSecurity, certOff, certLen)
	f.putU32(certOff, certLen) // dwLength
	f.putU16(certOff+4, 0x200) // revision
	f.putU16(certOff+6, 2)     // WIN_CERT_TYPE_PKCS_SIGNED_DATA
	copy(f.data[certOff+8:], "definitely not DER")

	parsed := Parse(f.bytes())
	require.NotNil(t, parsed)
	require.NotNil(t, parsed.Authenticode)
	assert.Equal(t, int64(certOff), parsed.Authenticode.FileOffset)
	assert.Equal(t, uint16(2), parsed.Authenticode.CertificateType)
	assert.NotEmpty(t, parsed.Authenticode.ParseError)
	assert.Zero(t, parsed.Authenticode.CertificateCount)

	found := false
	for _, issue := range parsed.Issues {
		if strings.Contains(issue, "PKCS#7") {
			found = true
		}
	}
	assert.True(t, found, "expected a PKCS#7 parse issue, got %v", parsed.Issues)

	// The certificate area counts toward coverage, so no overlay here.
	assert.False(t, parsed.HasOverlay)
}

func TestSecurityDirectoryTruncatedHeader(t *testing.T) {
	f := newPEFixture(0x610, []sectionSpec{defaultText()})
	f.setDirectory(dirSecurity, 0x608, 0x40) // runs past the 0x610-byte file

	parsed := Parse(f.bytes())
	require.NotNil(t, parsed)
	assert.NotEmpty(t, parsed.Issues)
}
