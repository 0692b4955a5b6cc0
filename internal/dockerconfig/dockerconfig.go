// Package dockerconfig discovers registry credentials from
// ~/.docker/config.json (or $DOCKER_CONFIG/config.json), the way the
// docker CLI itself resolves credentials for a registry host.
package dockerconfig

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

type dockerConfig struct {
	Auths map[string]authEntry `json:"auths"`
}

type authEntry struct {
	Auth string `json:"auth"`
}

// Lookup reads the docker CLI config file and returns username/password
// for host, or ok=false if none is configured. Explicit credentials passed
// to a client constructor always take priority over this; it exists purely
// as a convenience for the common case of reusing a `docker login` session.
func Lookup(host string) (username, password string, ok bool) {
	data, err := os.ReadFile(configPath())
	if err != nil {
		return "", "", false
	}

	var cfg dockerConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return "", "", false
	}

	for _, key := range keysFor(host) {
		entry, found := cfg.Auths[key]
		if !found || entry.Auth == "" {
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(entry.Auth)
		if err != nil {
			continue
		}
		parts := strings.SplitN(string(decoded), ":", 2)
		if len(parts) == 2 {
			return parts[0], parts[1], true
		}
	}

	return "", "", false
}

func configPath() string {
	if dir := os.Getenv("DOCKER_CONFIG"); dir != "" {
		return filepath.Join(dir, "config.json")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".docker", "config.json")
	}
	return filepath.Join(".docker", "config.json")
}

// keysFor returns the set of keys to try when looking up credentials for a
// registry hostname, covering Docker Hub's many historical aliases.
func keysFor(host string) []string {
	keys := []string{
		host,
		"https://" + host,
		"https://" + host + "/v1/",
		"https://" + host + "/v2/",
	}

	if host == "registry-1.docker.io" {
		keys = append(keys,
			"docker.io",
			"https://docker.io",
			"index.docker.io",
			"https://index.docker.io",
			"https://index.docker.io/v1/",
			"https://index.docker.io/v2/",
		)
	}

	return keys
}
