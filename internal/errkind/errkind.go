// Package errkind defines the error-kind taxonomy shared by every internal
// package and re-exported by the root dregistry package. It lives here,
// rather than in the root package, so internal packages can classify their
// own errors without importing back up into dregistry.
package errkind

import (
	"errors"
	"fmt"

	"github.com/containerd/errdefs"
)

var (
	Unauthorized         = errors.New("unauthorized")
	BadDigest            = errors.New("bad digest")
	InvalidContent       = errors.New("invalid manifest content")
	ManifestVerification = errors.New("manifest signature verification failed")
	Download             = errors.New("blob download failed")
	Internal             = errors.New("not implemented")
)

// Unauthorizedf builds an errdefs-classified error wrapping Unauthorized.
func Unauthorizedf(format string, a ...any) error {
	return errdefs.Unauthorized(wrapf(Unauthorized, format, a...))
}

// BadDigestf builds an errdefs-classified error wrapping BadDigest.
func BadDigestf(format string, a ...any) error {
	return errdefs.InvalidArgument(wrapf(BadDigest, format, a...))
}

// InvalidContentf builds an errdefs-classified error wrapping InvalidContent.
func InvalidContentf(format string, a ...any) error {
	return errdefs.InvalidArgument(wrapf(InvalidContent, format, a...))
}

// ManifestVerificationf builds an errdefs-classified error wrapping
// ManifestVerification.
func ManifestVerificationf(format string, a ...any) error {
	return errdefs.InvalidArgument(wrapf(ManifestVerification, format, a...))
}

// Downloadf builds an errdefs-classified error wrapping Download.
func Downloadf(format string, a ...any) error {
	return errdefs.FailedPrecondition(wrapf(Download, format, a...))
}

// Internalf builds an errdefs-classified error wrapping Internal, used for
// documented-but-unimplemented paths (x5c chain validation) and for
// operations on a closed Client.
func Internalf(format string, a ...any) error {
	return errdefs.NotImplemented(wrapf(Internal, format, a...))
}

func wrapf(sentinel error, format string, a ...any) error {
	args := make([]any, 0, len(a)+1)
	args = append(args, a...)
	args = append(args, sentinel)
	return fmt.Errorf(format+": %w", args...)
}
