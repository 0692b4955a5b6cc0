package blobtransport

import (
	"io"

	"github.com/oci-dial/dregistry/internal/digest"
	"github.com/oci-dial/dregistry/internal/errkind"
)

// VerifyingStream wraps a blob response body, hashing bytes as they are
// read and checking the accumulated digest and byte count once the
// underlying body reports io.EOF. A short read that never reaches EOF
// (caller abandons the stream) is never verified — callers that need a
// guarantee must read to completion.
type VerifyingStream struct {
	body io.ReadCloser

	hasher    *digest.Hasher
	digestRef digest.Ref

	haveLength    bool
	contentLength int64
	read          int64

	verified bool
	verifyErr error
}

func (v *VerifyingStream) Read(p []byte) (int, error) {
	n, err := v.body.Read(p)
	if n > 0 {
		if v.hasher != nil {
			if _, herr := v.hasher.Write(p[:n]); herr != nil {
				return n, herr
			}
		}
		v.read += int64(n)
	}
	if err == io.EOF {
		if verr := v.verify(); verr != nil {
			return n, verr
		}
	}
	return n, err
}

// Close closes the underlying body. It does not itself verify; a caller
// that closes early (without reading to EOF) gets no digest guarantee.
func (v *VerifyingStream) Close() error {
	return v.body.Close()
}

func (v *VerifyingStream) verify() error {
	if v.verified {
		return v.verifyErr
	}
	v.verified = true

	if v.haveLength && v.read != v.contentLength {
		v.verifyErr = errkind.Downloadf("short read: got %d bytes, Content-Length declared %d", v.read, v.contentLength)
		return v.verifyErr
	}
	if v.hasher != nil {
		if got := v.hasher.FinalHex(); got != v.digestRef.ExpectedHex {
			v.verifyErr = errkind.BadDigestf("digest mismatch: expected %s, computed %s:%s", v.digestRef.Raw, v.digestRef.Algorithm, got)
			return v.verifyErr
		}
	}
	return nil
}
