package pescan

import (
	"crypto/x509"
	"time"

	"github.com/secDre4mer/pkcs7"

	"binspect/common"
)

// parseSecurity reads the security data directory. Unlike every other
// directory its VirtualAddress is a plain file offset, not an RVA: the
// certificate table lives outside any section.
func (p *parser) parseSecurity() {
	dir, ok := p.directory(dirSecurity)
	if !ok {
		return
	}
	off, okOff := common.ToIndex(uint64(dir.VirtualAddress))
	n, okLen := common.ToIndex(uint64(dir.Size))
	if !okOff || !okLen {
		return
	}
	sw, ok := p.win.Slice(off, n)
	if !ok {
		p.issues.Addf("security directory at offset 0x%x extends beyond file", dir.VirtualAddress)
		// Clamp to whatever is present; the WIN_CERTIFICATE header may
		// still be readable.
		sw, ok = p.win.Tail(min(off, p.win.Size()))
		if !ok || sw.Size() == 0 {
			return
		}
	}

	// WIN_CERTIFICATE: dwLength, wRevision, wCertificateType, bCertificate.
	length, ok1 := sw.U32LE(0)
	revision, ok2 := sw.U16LE(4)
	certType, ok3 := sw.U16LE(6)
	if !ok1 || !ok2 || !ok3 {
		p.issues.Add("WIN_CERTIFICATE header truncated")
		return
	}

	auth := &Authenticode{
		FileOffset:      off,
		Length:          n,
		Revision:        revision,
		CertificateType: certType,
	}
	p.result.Authenticode = auth
	p.coverage.Add("security directory", off, sw.Size())

	if certType != 2 { // WIN_CERT_TYPE_PKCS_SIGNED_DATA
		p.issues.Addf("unexpected certificate type %d in security directory", certType)
		return
	}
	if int64(length) < 8 || int64(length) > sw.Size() {
		p.issues.Addf("WIN_CERTIFICATE length %d is inconsistent with directory size %d", length, sw.Size())
	}
	blobLen := min(int64(length), sw.Size())
	if blobLen <= 8 {
		return
	}
	blob, ok := sw.Bytes(8, blobLen-8)
	if !ok {
		return
	}

	signed, err := pkcs7.Parse(blob)
	if err != nil {
		auth.ParseError = err.Error()
		p.issues.Addf("PKCS#7 blob did not parse: %v", err)
		return
	}
	auth.CertificateCount = len(signed.Certificates)
	for _, cert := range signed.Certificates {
		auth.Certificates = append(auth.Certificates, certificateInfo(cert))
	}
	if signer := signed.GetOnlySigner(); signer != nil {
		auth.SignerSubject = signer.Subject.String()
		auth.SignerIssuer = signer.Issuer.String()
	} else if len(signed.Certificates) > 0 {
		// Multiple signer infos; fall back to the leaf certificate.
		auth.SignerSubject = signed.Certificates[0].Subject.String()
		auth.SignerIssuer = signed.Certificates[0].Issuer.String()
	}
}

func certificateInfo(cert *x509.Certificate) CertificateInfo {
	return CertificateInfo{
		Subject:      cert.Subject.String(),
		Issuer:       cert.Issuer.String(),
		SerialNumber: cert.SerialNumber.Text(16),
		NotBefore:    cert.NotBefore.UTC().Format(time.RFC3339),
		NotAfter:     cert.NotAfter.UTC().Format(time.RFC3339),
	}
}
