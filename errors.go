package dregistry

import "github.com/oci-dial/dregistry/internal/errkind"

// Sentinel errors every operation may return, classified for errors.Is.
// Wrap them with fmt.Errorf("...: %w", ErrX) to match; internal packages
// already do this when they build the concrete error.
var (
	ErrUnauthorized         = errkind.Unauthorized
	ErrBadDigest            = errkind.BadDigest
	ErrInvalidContent       = errkind.InvalidContent
	ErrManifestVerification = errkind.ManifestVerification
	ErrDownload             = errkind.Download
	ErrInternal             = errkind.Internal
)
