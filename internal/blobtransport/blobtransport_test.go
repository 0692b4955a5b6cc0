package blobtransport

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/oci-dial/dregistry/internal/digest"
)

func newTestTransport() *Transport {
	return New(func(insecure bool) (*http.Client, error) {
		return &http.Client{CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}}, nil
	})
}

func TestHeadOrGetFollowsRedirectAndStripsAuth(t *testing.T) {
	const blobBody = "hello blob"

	var sawAuthOnStorage bool
	storage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			sawAuthOnStorage = true
		}
		w.Write([]byte(blobBody))
	}))
	defer storage.Close()

	registry := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			t.Errorf("expected Authorization header on first hop")
		}
		http.Redirect(w, r, storage.URL+"/blob", http.StatusFound)
	}))
	defer registry.Close()

	tr := newTestTransport()
	res, err := tr.HeadOrGet(t.Context(), http.MethodGet, registry.URL, "/v2/x/blobs/sha256:abc", http.Header{
		"Authorization": []string{"Bearer tok"},
	})
	if err != nil {
		t.Fatalf("HeadOrGet: %v", err)
	}
	if len(res.Chain) != 2 {
		t.Fatalf("chain length = %d, want 2", len(res.Chain))
	}
	defer res.Chain[len(res.Chain)-1].Body.Close()

	body, _ := io.ReadAll(res.Chain[len(res.Chain)-1].Body)
	if string(body) != blobBody {
		t.Errorf("body = %q", body)
	}
	if sawAuthOnStorage {
		t.Error("Authorization header must not be forwarded to redirect target")
	}
}

func TestHeadOrGetMaxRedirectsExceeded(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, srv.URL+"/loop", http.StatusFound)
	}))
	defer srv.Close()

	tr := newTestTransport()
	_, err := tr.HeadOrGet(t.Context(), http.MethodGet, srv.URL, "/loop", nil)
	if err == nil {
		t.Fatal("expected error for redirect loop")
	}
}

func TestOpenBlobStreamVerifiesDigest(t *testing.T) {
	const blobBody = "hello blob"

	ref, err := digest.Parse(sha256Of(blobBody))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Docker-Content-Digest", sha256Of(blobBody))
		w.Write([]byte(blobBody))
	}))
	defer srv.Close()

	tr := newTestTransport()
	stream, chain, _, err := tr.OpenBlobStream(t.Context(), srv.URL, "/v2/x/blobs/"+sha256Of(blobBody), nil, ref)
	if err != nil {
		t.Fatalf("OpenBlobStream: %v", err)
	}
	defer stream.Close()
	if len(chain) != 1 {
		t.Fatalf("chain length = %d, want 1", len(chain))
	}

	body, err := io.ReadAll(stream)
	if err != nil {
		t.Fatalf("reading stream: %v", err)
	}
	if string(body) != blobBody {
		t.Errorf("body = %q", body)
	}
}

func TestOpenBlobStreamRejectsDigestMismatch(t *testing.T) {
	const blobBody = "hello blob"
	ref, _ := digest.Parse(sha256Of("different content"))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Docker-Content-Digest", sha256Of("different content"))
		w.Write([]byte(blobBody))
	}))
	defer srv.Close()

	tr := newTestTransport()
	stream, _, _, err := tr.OpenBlobStream(t.Context(), srv.URL, "/v2/x/blobs/x", nil, ref)
	if err != nil {
		t.Fatalf("OpenBlobStream: %v", err)
	}
	defer stream.Close()

	if _, err := io.ReadAll(stream); err == nil {
		t.Fatal("expected digest mismatch error")
	}
}

func sha256Of(s string) string {
	h, _ := digest.NewHasher("sha256")
	h.Write([]byte(s))
	return "sha256:" + h.FinalHex()
}
