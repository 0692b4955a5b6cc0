// Package digest wraps the OCI content-digest type with the algorithm
// validation and hashing the manifest verifier and blob transport both need.
package digest

import (
	"fmt"

	godigest "github.com/opencontainers/go-digest"

	"github.com/oci-dial/dregistry/internal/errkind"
)

// Ref is a parsed "<algorithm>:<hex>" content digest.
type Ref struct {
	Algorithm   string
	ExpectedHex string
	Raw         string
}

// Parse splits raw on its first ':' into algorithm and hex and confirms the
// algorithm is registered and available on this platform.
func Parse(raw string) (Ref, error) {
	d, err := godigest.Parse(raw)
	if err != nil {
		return Ref{}, errkind.BadDigestf("parsing digest %q: %s", raw, err)
	}
	return Ref{
		Algorithm:   string(d.Algorithm()),
		ExpectedHex: d.Hex(),
		Raw:         raw,
	}, nil
}

// Hasher incrementally computes a digest for one algorithm.
type Hasher struct {
	algo godigest.Algorithm
	h    godigest.Digester
}

// NewHasher returns a Hasher for algorithm, or a BadDigest error if the
// algorithm has no registered hash implementation.
func NewHasher(algorithm string) (*Hasher, error) {
	algo := godigest.Algorithm(algorithm)
	if !algo.Available() {
		return nil, errkind.BadDigestf("unsupported digest algorithm %q", algorithm)
	}
	return &Hasher{algo: algo, h: algo.Digester()}, nil
}

// Write feeds more bytes into the running hash.
func (h *Hasher) Write(p []byte) (int, error) {
	return h.h.Hash().Write(p)
}

// FinalHex returns the lowercase hex digest of everything written so far.
func (h *Hasher) FinalHex() string {
	return h.h.Digest().Hex()
}

// VerifyBytes hashes data under ref's algorithm and confirms the result
// matches ref's expected hex digest.
func VerifyBytes(ref Ref, data []byte) error {
	h, err := NewHasher(ref.Algorithm)
	if err != nil {
		return err
	}
	if _, err := h.Write(data); err != nil {
		return fmt.Errorf("hashing payload: %w", err)
	}
	if got := h.FinalHex(); got != ref.ExpectedHex {
		return errkind.BadDigestf("digest mismatch: expected %s, computed %s:%s", ref.Raw, ref.Algorithm, got)
	}
	return nil
}
