// Package jws reconstructs the byte-exact signing payload of a schema v1
// manifest and verifies each embedded JSON Web Signature against its
// embedded JSON Web Key.
//
// Registries serve the full manifest JSON including the "signatures" array,
// but the payload that was actually signed predates that array's insertion.
// Each signature's "protected" header encodes exactly where to cut the raw
// response body and what suffix to splice on; re-serializing the decoded
// JSON instead would reorder keys and normalize whitespace, invalidating
// every signature.
package jws

import "encoding/json"

// ManifestSignature is one entry of a schema v1 manifest's "signatures"
// array.
type ManifestSignature struct {
	Header    SignatureHeader `json:"header"`
	Signature string          `json:"signature"`
	Protected string          `json:"protected"`
}

// SignatureHeader is the unprotected "header" object carried alongside a
// manifest signature.
type SignatureHeader struct {
	Alg   string          `json:"alg"`
	JWK   json.RawMessage `json:"jwk,omitempty"`
	Chain []string        `json:"chain,omitempty"`
}

// protectedHeader is the base64url-encoded JSON object embedded in
// ManifestSignature.Protected.
type protectedHeader struct {
	FormatLength int    `json:"formatLength"`
	FormatTail   string `json:"formatTail"`
	Time         string `json:"time,omitempty"`
}

// Reconstructed is the recovered signing payload plus one verifiable
// Signature per manifest signature entry.
type Reconstructed struct {
	Payload    []byte
	Signatures []Signature
}

// Signature pairs one manifest signature's compact-form inputs with its
// decoded key, ready for Verify.
type Signature struct {
	Alg       string
	Chain     []string
	Key       any // *jwk.ECDSAPublicKey, *jwk.RSAPublicKey, okpKey, or nil
	Protected string
	Signature string
}
