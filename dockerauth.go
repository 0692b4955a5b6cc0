package dregistry

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/docker/docker/api/types/registry"

	"github.com/oci-dial/dregistry/internal/authcoord"
)

// DockerAuthHeader renders this Client's resolved credentials as the
// base64url-encoded JSON string docker/docker's own engine API expects in
// image.PullOptions.RegistryAuth, for callers that drive both this package
// and the Docker Engine API against the same repository. Login must have
// already succeeded (or been run via an operation) or this returns an
// error; AuthKind None renders an empty, anonymous AuthConfig rather than
// an error.
func (c *Client) DockerAuthHeader() (string, error) {
	c.mu.Lock()
	info := c.authInfo
	c.mu.Unlock()

	if info == nil {
		return "", fmt.Errorf("dregistry: not logged in yet")
	}

	auth := registry.AuthConfig{ServerAddress: c.repo.Index.Name}
	switch info.Kind {
	case authcoord.AuthBasic:
		auth.Username = info.Username
		auth.Password = info.Password
	case authcoord.AuthBearer:
		auth.IdentityToken = info.Token
	case authcoord.AuthNone:
		// anonymous: empty AuthConfig, still valid JSON for RegistryAuth
	}

	encoded, err := json.Marshal(auth)
	if err != nil {
		return "", fmt.Errorf("encoding docker auth config: %w", err)
	}

	return base64.URLEncoding.EncodeToString(encoded), nil
}
