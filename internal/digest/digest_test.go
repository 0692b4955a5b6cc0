package digest

import (
	"crypto/sha256"
	"fmt"
	"testing"

	"gotest.tools/v3/assert"
)

func TestParse(t *testing.T) {
	sum := sha256.Sum256([]byte("hello"))
	raw := fmt.Sprintf("sha256:%x", sum)

	ref, err := Parse(raw)
	assert.NilError(t, err)
	assert.Equal(t, ref.Algorithm, "sha256")
	assert.Equal(t, ref.ExpectedHex, fmt.Sprintf("%x", sum))
	assert.Equal(t, ref.Raw, raw)
}

func TestParseMalformed(t *testing.T) {
	for _, raw := range []string{"", "nocolon", "sha256:nothex!!", "madeupalgo:abcd"} {
		_, err := Parse(raw)
		assert.ErrorContains(t, err, "")
	}
}

func TestVerifyBytes(t *testing.T) {
	data := []byte("the quick brown fox")
	sum := sha256.Sum256(data)
	ref, err := Parse(fmt.Sprintf("sha256:%x", sum))
	assert.NilError(t, err)

	assert.NilError(t, VerifyBytes(ref, data))
	assert.ErrorContains(t, VerifyBytes(ref, []byte("tampered")), "digest mismatch")
}

func TestHasherIncremental(t *testing.T) {
	h, err := NewHasher("sha256")
	assert.NilError(t, err)

	_, _ = h.Write([]byte("the quick "))
	_, _ = h.Write([]byte("brown fox"))

	sum := sha256.Sum256([]byte("the quick brown fox"))
	assert.Equal(t, h.FinalHex(), fmt.Sprintf("%x", sum))
}

func TestNewHasherUnsupported(t *testing.T) {
	_, err := NewHasher("md4")
	assert.ErrorContains(t, err, "unsupported digest algorithm")
}
