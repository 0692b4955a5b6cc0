package jws

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/halimath/jose/jwk"
	halimathjws "github.com/halimath/jose/jws"
	"gotest.tools/v3/assert"
)

// buildSignedManifest assembles a manifest body the way a registry serves
// one: the signed payload (everything before "signatures") followed by the
// signatures array, with the protected header recording exactly where to
// cut.
func buildSignedManifest(t *testing.T, priv *ecdsa.PrivateKey) []byte {
	t.Helper()

	payloadHead := `{"name":"library/busybox","tag":"latest","schemaVersion":1`
	tail := "}"
	payload := payloadHead + tail

	protectedJSON, err := json.Marshal(struct {
		FormatLength int    `json:"formatLength"`
		FormatTail   string `json:"formatTail"`
	}{
		FormatLength: len(payloadHead),
		FormatTail:   base64.RawURLEncoding.EncodeToString([]byte(tail)),
	})
	assert.NilError(t, err)
	protectedEncoded := base64.RawURLEncoding.EncodeToString(protectedJSON)

	payloadEncoded := base64.RawURLEncoding.EncodeToString([]byte(payload))

	signer, err := halimathjws.ES256Signer(priv)
	assert.NilError(t, err)
	sig, err := signer.Sign([]byte(protectedEncoded + "." + payloadEncoded))
	assert.NilError(t, err)

	jwkBytes, err := jwk.MarshalKey(&jwk.ECDSAPublicKey{PublicKey: &priv.PublicKey})
	assert.NilError(t, err)

	sigEntry := ManifestSignature{
		Header: SignatureHeader{
			Alg: "ES256",
			JWK: jwkBytes,
		},
		Signature: base64.RawURLEncoding.EncodeToString(sig),
		Protected: protectedEncoded,
	}
	sigsJSON, err := json.Marshal([]ManifestSignature{sigEntry})
	assert.NilError(t, err)

	body := payloadHead + `,"signatures":` + string(sigsJSON) + "}"
	return []byte(body)
}

func parseSignatures(t *testing.T, body []byte) []ManifestSignature {
	t.Helper()
	var m struct {
		Signatures []ManifestSignature `json:"signatures"`
	}
	assert.NilError(t, json.Unmarshal(body, &m))
	return m.Signatures
}

func TestReconstructAndVerify(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	assert.NilError(t, err)

	body := buildSignedManifest(t, priv)
	sigs := parseSignatures(t, body)

	rec, err := Reconstruct(sigs, body)
	assert.NilError(t, err)
	assert.Equal(t, string(rec.Payload), `{"name":"library/busybox","tag":"latest","schemaVersion":1}`)

	assert.NilError(t, Verify(rec))
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	assert.NilError(t, err)

	body := buildSignedManifest(t, priv)
	sigs := parseSignatures(t, body)

	rec, err := Reconstruct(sigs, body)
	assert.NilError(t, err)

	rec.Payload[10] = 'X'
	assert.ErrorContains(t, Verify(rec), "signature verification failed")
}

func TestVerifyRejectsNoneAlgorithm(t *testing.T) {
	rec := &Reconstructed{
		Payload: []byte(`{}`),
		Signatures: []Signature{
			{Alg: "none", Protected: "e30", Signature: ""},
		},
	}
	assert.ErrorContains(t, Verify(rec), "forbidden")
}

func TestVerifyRejectsChain(t *testing.T) {
	rec := &Reconstructed{
		Payload: []byte(`{}`),
		Signatures: []Signature{
			{Alg: "RS256", Chain: []string{"deadbeef"}},
		},
	}
	assert.ErrorContains(t, Verify(rec), "x5c")
}

func TestReconstructDisagreeingFormatLength(t *testing.T) {
	mk := func(length int) ManifestSignature {
		protectedJSON, _ := json.Marshal(struct {
			FormatLength int    `json:"formatLength"`
			FormatTail   string `json:"formatTail"`
		}{FormatLength: length, FormatTail: base64.RawURLEncoding.EncodeToString([]byte("}"))})
		return ManifestSignature{
			Header:    SignatureHeader{Alg: "ES256"},
			Protected: base64.RawURLEncoding.EncodeToString(protectedJSON),
			Signature: "",
		}
	}

	sigs := []ManifestSignature{mk(10), mk(11)}
	_, err := Reconstruct(sigs, []byte(`{"0123456789":0}`))
	assert.ErrorContains(t, err, "disagree")
}
