package common

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"fmt"
	"math"

	"github.com/glaslos/ssdeep"
)

// Digests carries the standard hash set computed for a file or region.
type Digests struct {
	MD5    string
	SHA1   string
	SHA256 string
	SSDEEP string
}

// HashBytes computes MD5/SHA1/SHA256 for a byte range. The ssdeep
// fuzzy hash needs a minimum input length; when it cannot be computed
// the field is left empty rather than failing the digest set.
func HashBytes(data []byte) Digests {
	md5Sum := md5.Sum(data)
	sha1Sum := sha1.Sum(data)
	sha256Sum := sha256.Sum256(data)
	d := Digests{
		MD5:    fmt.Sprintf("%x", md5Sum),
		SHA1:   fmt.Sprintf("%x", sha1Sum),
		SHA256: fmt.Sprintf("%x", sha256Sum),
	}
	if fuzzy, err := ssdeep.FuzzyBytes(data); err == nil {
		d.SSDEEP = fuzzy
	}
	return d
}

// CalculateEntropy returns the Shannon entropy of data in bits per
// byte. Values above ~7.0 usually mean compressed or encrypted
// content.
func CalculateEntropy(data []byte) float64 {
	if len(data) == 0 {
		return 0.0
	}
	freq := make([]int, 256)
	for _, b := range data {
		freq[b]++
	}
	entropy := 0.0
	length := float64(len(data))
	for _, count := range freq {
		if count > 0 {
			p := float64(count) / length
			entropy -= p * math.Log2(p)
		}
	}
	return entropy
}
