package jws

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/halimath/jose/jwk"

	"github.com/oci-dial/dregistry/internal/errkind"
)

// okpKey is the OKP (Ed25519) case, handled by hand because halimath/jose's
// jwk package only decodes EC and RSA keys.
type okpKey struct {
	Public ed25519.PublicKey
}

// Reconstruct splices rawBody back into the bytes that were originally
// signed, using the "formatLength"/"formatTail" values every signature's
// protected header carries, and decodes each signature's embedded JWK.
func Reconstruct(sigs []ManifestSignature, rawBody []byte) (*Reconstructed, error) {
	if len(sigs) == 0 {
		return nil, errkind.InvalidContentf("manifest has no signatures")
	}

	var formatLength int
	var formatTail []byte
	out := make([]Signature, len(sigs))

	for i, sig := range sigs {
		raw, err := decodeB64URL(sig.Protected)
		if err != nil {
			return nil, errkind.InvalidContentf("signature %d: decoding protected header: %s", i, err)
		}

		var ph protectedHeader
		if err := json.Unmarshal(raw, &ph); err != nil {
			return nil, errkind.InvalidContentf("signature %d: parsing protected header: %s", i, err)
		}
		if ph.FormatLength <= 0 {
			return nil, errkind.InvalidContentf("signature %d: missing or invalid formatLength", i)
		}

		tail, err := decodeB64URL(ph.FormatTail)
		if err != nil {
			return nil, errkind.InvalidContentf("signature %d: decoding formatTail: %s", i, err)
		}

		if i == 0 {
			formatLength = ph.FormatLength
			formatTail = tail
		} else if ph.FormatLength != formatLength || !bytes.Equal(tail, formatTail) {
			return nil, errkind.InvalidContentf("signature %d: formatLength/formatTail disagree with signature 0", i)
		}

		var key any
		if len(sig.Header.JWK) > 0 {
			key, err = decodeJWK(sig.Header.JWK)
			if err != nil {
				return nil, errkind.InvalidContentf("signature %d: decoding jwk: %s", i, err)
			}
		}

		out[i] = Signature{
			Alg:       sig.Header.Alg,
			Chain:     sig.Header.Chain,
			Key:       key,
			Protected: sig.Protected,
			Signature: sig.Signature,
		}
	}

	if formatLength > len(rawBody) {
		return nil, errkind.InvalidContentf("formatLength %d exceeds manifest body length %d", formatLength, len(rawBody))
	}

	payload := make([]byte, 0, formatLength+len(formatTail))
	payload = append(payload, rawBody[:formatLength]...)
	payload = append(payload, formatTail...)

	return &Reconstructed{Payload: payload, Signatures: out}, nil
}

// decodeJWK converts raw JWK JSON into either a halimath/jose jwk.Key (EC,
// RSA) or an okpKey (Ed25519, which halimath/jose's jwk package does not
// support).
func decodeJWK(raw json.RawMessage) (any, error) {
	var kt struct {
		Kty string `json:"kty"`
	}
	if err := json.Unmarshal(raw, &kt); err != nil {
		return nil, err
	}

	if kt.Kty != "OKP" {
		return jwk.UnmarshalKey(raw)
	}

	var okp struct {
		Crv string `json:"crv"`
		X   string `json:"x"`
	}
	if err := json.Unmarshal(raw, &okp); err != nil {
		return nil, err
	}
	if okp.Crv != "Ed25519" {
		return nil, fmt.Errorf("unsupported OKP curve %q", okp.Crv)
	}

	xb, err := decodeB64URL(okp.X)
	if err != nil {
		return nil, fmt.Errorf("decoding OKP x: %w", err)
	}
	if len(xb) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid Ed25519 public key length %d", len(xb))
	}

	return okpKey{Public: ed25519.PublicKey(xb)}, nil
}

// decodeB64URL decodes a base64url string, accepting both the unpadded
// form RFC 7515 mandates and padded input some registries still emit.
func decodeB64URL(s string) ([]byte, error) {
	if b, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.URLEncoding.DecodeString(s)
}
