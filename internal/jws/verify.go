package jws

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/halimath/jose/jwk"
	"github.com/halimath/jose/jws"

	"github.com/oci-dial/dregistry/internal/errkind"
)

// deniedAlgs is the fixed deny-list: an unsecured "none" signature must
// never be accepted, whatever case it is spelled in.
var deniedAlgs = map[string]bool{"none": true, "None": true, "NONE": true}

// Verify checks every signature in r against its embedded key. The manifest
// is rejected unless every signature verifies.
func Verify(r *Reconstructed) error {
	payloadEncoded := base64.RawURLEncoding.EncodeToString(r.Payload)

	for i, sig := range r.Signatures {
		if deniedAlgs[strings.ToLower(sig.Alg)] {
			return errkind.ManifestVerificationf("signature %d: algorithm %q is forbidden", i, sig.Alg)
		}
		if len(sig.Chain) > 0 {
			return errkind.Internalf("signature %d: x5c certificate-chain verification is not implemented", i)
		}
		if sig.Key == nil {
			return errkind.InvalidContentf("signature %d: no jwk present", i)
		}

		verifier, err := verifierFor(sig.Alg, sig.Key)
		if err != nil {
			return errkind.InvalidContentf("signature %d: %s", i, err)
		}

		sigBytes, err := decodeB64URL(sig.Signature)
		if err != nil {
			return errkind.InvalidContentf("signature %d: decoding signature: %s", i, err)
		}

		signingInput := []byte(sig.Protected + "." + payloadEncoded)
		if err := verifier.Verify(jws.SignatureAlgorithm(sig.Alg), signingInput, sigBytes); err != nil {
			return errkind.ManifestVerificationf("signature %d: %s", i, err)
		}
	}

	return nil
}

func verifierFor(alg string, key any) (jws.Verifier, error) {
	switch k := key.(type) {
	case *jwk.ECDSAPublicKey:
		switch jws.SignatureAlgorithm(alg) {
		case jws.ALG_ES256:
			return jws.ES256Verifier(k.PublicKey)
		case jws.ALG_ES384:
			return jws.ES384Verifier(k.PublicKey)
		case jws.ALG_ES512:
			return jws.ES512Verifier(k.PublicKey)
		default:
			return nil, fmt.Errorf("unsupported EC signature algorithm %q", alg)
		}
	case *jwk.RSAPublicKey:
		return jws.RSVerifier(jws.SignatureAlgorithm(alg), k.PublicKey)
	case okpKey:
		return ed25519Verifier{pub: k.Public}, nil
	default:
		return nil, fmt.Errorf("unsupported key type %T", key)
	}
}

// ed25519Verifier implements jws.Verifier for the EdDSA/OKP case
// halimath/jose's jwk package doesn't cover.
type ed25519Verifier struct {
	pub ed25519.PublicKey
}

func (e ed25519Verifier) Verify(alg jws.SignatureAlgorithm, data, signature []byte) error {
	if alg != "EdDSA" {
		return fmt.Errorf("unsupported OKP signature algorithm %q", alg)
	}
	if !ed25519.Verify(e.pub, data, signature) {
		return jws.ErrInvalidSignature
	}
	return nil
}
