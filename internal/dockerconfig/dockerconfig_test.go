package dockerconfig

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, entries map[string]string) string {
	t.Helper()
	dir := t.TempDir()

	auths := map[string]authEntry{}
	for host, userpass := range entries {
		auths[host] = authEntry{Auth: base64.StdEncoding.EncodeToString([]byte(userpass))}
	}

	data, err := json.Marshal(dockerConfig{Auths: auths})
	if err != nil {
		t.Fatalf("marshaling config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.json"), data, 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return dir
}

func TestLookupExactHost(t *testing.T) {
	dir := writeConfig(t, map[string]string{"ghcr.io": "alice:secret"})
	t.Setenv("DOCKER_CONFIG", dir)

	user, pass, ok := Lookup("ghcr.io")
	if !ok || user != "alice" || pass != "secret" {
		t.Errorf("Lookup = %q %q %v", user, pass, ok)
	}
}

func TestLookupDockerHubAlias(t *testing.T) {
	dir := writeConfig(t, map[string]string{"https://index.docker.io/v1/": "bob:hunter2"})
	t.Setenv("DOCKER_CONFIG", dir)

	user, pass, ok := Lookup("registry-1.docker.io")
	if !ok || user != "bob" || pass != "hunter2" {
		t.Errorf("Lookup = %q %q %v", user, pass, ok)
	}
}

func TestLookupMissing(t *testing.T) {
	dir := writeConfig(t, map[string]string{"ghcr.io": "alice:secret"})
	t.Setenv("DOCKER_CONFIG", dir)

	_, _, ok := Lookup("quay.io")
	if ok {
		t.Error("expected no credentials for quay.io")
	}
}

func TestLookupNoConfigFile(t *testing.T) {
	t.Setenv("DOCKER_CONFIG", t.TempDir())

	_, _, ok := Lookup("ghcr.io")
	if ok {
		t.Error("expected ok=false when config.json is absent")
	}
}
