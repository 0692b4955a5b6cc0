// Package blobtransport issues HEAD/GET requests for content-addressed
// blobs, follows a bounded number of redirects while collecting the
// response chain, and streams the final body while verifying its digest
// and length.
package blobtransport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	units "github.com/docker/go-units"

	"github.com/oci-dial/dregistry/internal/digest"
	"github.com/oci-dial/dregistry/internal/errkind"
)

// MaxRedirects bounds the number of 302/307 hops followed per request; a
// ResponseChain therefore never exceeds MaxRedirects+1 entries.
const MaxRedirects = 3

// Response is one entry of a ResponseChain.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// Chain is the ordered sequence of responses collected while following
// redirects; every entry before the last is a followed 302/307, and the last
// entry is the first response with any other status.
type Chain []Response

// ClientFactory builds a fresh *http.Client for one hop. Each redirect hop
// gets its own client because the target is typically a different origin
// (an object store with pre-signed URLs) that must never see the registry's
// Authorization header.
type ClientFactory func(insecure bool) (*http.Client, error)

// Transport issues blob HEAD/GET requests with bounded redirect-following.
type Transport struct {
	newClient    ClientFactory
	maxRedirects int
	insecure     bool
	logger       *slog.Logger
}

// New returns a Transport that builds request clients via factory, bounding
// redirect-following at MaxRedirects hops and logging through slog.Default().
func New(factory ClientFactory) *Transport {
	return &Transport{newClient: factory, maxRedirects: MaxRedirects, logger: slog.Default()}
}

// WithMaxRedirects overrides the default redirect bound.
func (t *Transport) WithMaxRedirects(n int) *Transport {
	if n > 0 {
		t.maxRedirects = n
	}
	return t
}

// WithInsecure sets whether every client this Transport creates (the
// initial request and every redirect-hop client) skips TLS certificate
// verification.
func (t *Transport) WithInsecure(insecure bool) *Transport {
	t.insecure = insecure
	return t
}

// WithLogger overrides the logger used for blob-transport log lines.
func (t *Transport) WithLogger(logger *slog.Logger) *Transport {
	if logger != nil {
		t.logger = logger
	}
	return t
}

// Result is the outcome of one HeadOrGet call: the response chain plus
// every *http.Client created along the way, for the caller to track and
// eventually close.
type Result struct {
	Chain   Chain
	Clients []*http.Client
}

// HeadOrGet issues method against baseURL+path with header, following up to
// the Transport's redirect bound (MaxRedirects unless overridden) of 302/307
// redirects. The Authorization header is never
// forwarded past the first hop.
func (t *Transport) HeadOrGet(ctx context.Context, method, baseURL, path string, header http.Header) (*Result, error) {
	client, err := t.newClient(t.insecure)
	if err != nil {
		return nil, fmt.Errorf("building request client: %w", err)
	}
	clients := []*http.Client{client}

	target := baseURL + path
	redirs := 0
	var chain Chain

	for {
		req, err := http.NewRequestWithContext(ctx, method, target, http.NoBody)
		if err != nil {
			return nil, fmt.Errorf("building %s request: %w", method, err)
		}
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, errkind.Downloadf("%s %s: %s", method, target, err)
		}

		chain = append(chain, Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: resp.Body})

		if resp.StatusCode != http.StatusFound && resp.StatusCode != http.StatusTemporaryRedirect {
			return &Result{Chain: chain, Clients: clients}, nil
		}

		resp.Body.Close()
		if redirs >= t.maxRedirects {
			return nil, errkind.Downloadf("maximum number of redirects (%d) fetching %s", t.maxRedirects, path)
		}

		loc := resp.Header.Get("Location")
		next, err := url.Parse(loc)
		if err != nil {
			return nil, errkind.Downloadf("parsing redirect Location %q: %s", loc, err)
		}
		if !next.IsAbs() {
			base, err := url.Parse(target)
			if err != nil {
				return nil, errkind.Downloadf("parsing current URL %q: %s", target, err)
			}
			next = base.ResolveReference(next)
		}

		target = next.String()
		redirs++
		header = http.Header{} // strip Authorization before following the redirect

		client, err = t.newClient(t.insecure)
		if err != nil {
			return nil, fmt.Errorf("building redirect-hop client: %w", err)
		}
		clients = append(clients, client)
	}
}

// HeadBlob issues a HEAD for digest and returns the response chain. HEAD
// responses carry no useful body; every entry's body is closed before
// returning.
func (t *Transport) HeadBlob(ctx context.Context, baseURL, path string, header http.Header) (Chain, []*http.Client, error) {
	res, err := t.HeadOrGet(ctx, http.MethodHead, baseURL, path, header)
	if err != nil {
		return nil, nil, err
	}
	for _, r := range res.Chain {
		if r.Body != nil {
			r.Body.Close()
		}
	}
	return res.Chain, res.Clients, nil
}

// OpenBlobStream issues a GET for want and returns a VerifyingStream
// wrapping the final response's body, plus the response chain. The stream
// must be read to completion (or closed) by the caller; verification
// happens as bytes are read and at EOF.
func (t *Transport) OpenBlobStream(ctx context.Context, baseURL, path string, header http.Header, want digest.Ref) (*VerifyingStream, Chain, []*http.Client, error) {
	res, err := t.HeadOrGet(ctx, http.MethodGet, baseURL, path, header)
	if err != nil {
		return nil, nil, nil, err
	}

	first := res.Chain[0]
	last := res.Chain[len(res.Chain)-1]

	vs := &VerifyingStream{body: last.Body}

	// Redirect targets (object stores) usually strip custom headers, so
	// the digest is read from the first response in the chain.
	if dh := first.Header.Get("Docker-Content-Digest"); dh != "" {
		ref, err := digest.Parse(dh)
		if err != nil {
			last.Body.Close()
			return nil, nil, nil, err
		}
		if ref.Raw != want.Raw {
			last.Body.Close()
			return nil, nil, nil, errkind.BadDigestf("Docker-Content-Digest %s does not match requested digest %s", ref.Raw, want.Raw)
		}
		h, err := digest.NewHasher(ref.Algorithm)
		if err != nil {
			last.Body.Close()
			return nil, nil, nil, err
		}
		vs.hasher = h
		vs.digestRef = ref
	}

	if cl := last.Header.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
			vs.contentLength = n
			vs.haveLength = true
		}
	}

	if vs.haveLength {
		t.logger.Debug("streaming blob", "digest", want.Raw, "size", units.HumanSize(float64(vs.contentLength)))
	}

	return vs, res.Chain, res.Clients, nil
}
