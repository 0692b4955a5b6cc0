// Package dregistry is a client for the Docker Registry HTTP API v2
// (schema v1 manifests): it authenticates against heterogeneous registry
// implementations, retrieves tag lists and manifests with cryptographic
// signature verification, and streams blobs through redirect chains while
// verifying content digests.
package dregistry

import "github.com/oci-dial/dregistry/internal/jws"

// Scheme is the URL scheme an Index's registry speaks.
type Scheme string

const (
	SchemeHTTPS Scheme = "https"
	SchemeHTTP  Scheme = "http"
)

// DefaultRegistryURL is the fixed base URL used for the official Docker Hub
// index, regardless of which name variant (docker.io, index.docker.io, ...)
// a caller resolved it from.
const DefaultRegistryURL = "https://registry-1.docker.io"

// Index identifies a logical registry endpoint, distinct from the URL it
// resolves to. Index-name parsing itself (turning a user-typed string like
// "docker.io" or "localhost:5000" into an Index) is an external concern;
// this package only consumes the parsed result.
type Index struct {
	// Name is the registry hostname, e.g. "docker.io", "quay.io",
	// "localhost:5000".
	Name string
	// Official marks the Docker Hub index; when true, BaseURL resolution
	// ignores Name and Scheme entirely and uses DefaultRegistryURL.
	Official bool
	// Scheme is the URL scheme to use when Official is false.
	Scheme Scheme
}

// Repository binds an Index to a specific image path within it.
type Repository struct {
	Index Index
	// RemoteName is the repository path as the registry expects it, e.g.
	// "library/busybox". Official-index single-segment names are expected
	// to already carry the "library/" prefix; this package does not add it.
	RemoteName string
	// LocalName is a caller-facing display name (e.g. what a user typed);
	// it is never sent over the wire.
	LocalName string
}

// TagList is the decoded body of GET /v2/<name>/tags/list.
type TagList struct {
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

// Manifest is a decoded, verified schema v1 image manifest.
type Manifest struct {
	SchemaVersion int                    `json:"schemaVersion"`
	Name          string                 `json:"name"`
	Tag           string                 `json:"tag"`
	Architecture  string                 `json:"architecture"`
	FSLayers      []FSLayer              `json:"fsLayers"`
	History       []History              `json:"history"`
	Signatures    []jws.ManifestSignature `json:"signatures"`
}

// FSLayer is one entry of a Manifest's fsLayers array.
type FSLayer struct {
	BlobSum string `json:"blobSum"`
}

// History is one entry of a Manifest's history array: an opaque,
// schema-v1-specific JSON blob describing one image layer's build step.
type History struct {
	V1Compatibility string `json:"v1Compatibility"`
}
