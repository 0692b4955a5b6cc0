package dregistry

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/oci-dial/dregistry/internal/authcoord"
	"github.com/oci-dial/dregistry/internal/blobtransport"
	"github.com/oci-dial/dregistry/internal/config"
	"github.com/oci-dial/dregistry/internal/digest"
	"github.com/oci-dial/dregistry/internal/dockerconfig"
	"github.com/oci-dial/dregistry/internal/errkind"
	"github.com/oci-dial/dregistry/internal/jws"
	"github.com/oci-dial/dregistry/internal/transport"
)

// Client binds a Repository and performs authenticated registry
// operations against it. Create one with NewClient; release its owned HTTP
// clients with Close when done.
type Client struct {
	repo    Repository
	baseURL string

	insecure     bool
	userAgent    string
	httpTimeout  time.Duration
	maxRedirects int
	username     string
	password     string
	logger       *slog.Logger

	mu         sync.Mutex
	httpClient *http.Client
	authInfo   *authcoord.AuthInfo
	authHeader string
	closed     bool
	owned      []*http.Client

	coord *authcoord.Coordinator
	blobs *blobtransport.Transport
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithInsecure disables TLS certificate verification and permits plain-HTTP
// auth realms.
func WithInsecure(insecure bool) Option {
	return func(c *Client) { c.insecure = insecure }
}

// WithUserAgent overrides the default User-Agent sent on every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithHTTPTimeout bounds every request this Client issues.
func WithHTTPTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpTimeout = d }
}

// WithMaxRedirects bounds the number of redirects followed when fetching a
// blob.
func WithMaxRedirects(n int) Option {
	return func(c *Client) { c.maxRedirects = n }
}

// WithCredentials sets explicit basic-auth credentials, taking priority
// over anything discovered via the local docker config.
func WithCredentials(username, password string) Option {
	return func(c *Client) { c.username, c.password = username, password }
}

// WithLogger overrides the logger this Client (and its blob transport) emits
// through. Without it, a Client logs through a slog.TextHandler filtered at
// internal/config's DREGISTRY_LOG_LEVEL.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient builds a Client for repo. Defaults are seeded from
// internal/config.Load(); options override them. When no explicit
// credentials are supplied, the local docker config file is consulted for
// the repository's index host.
func NewClient(repo Repository, opts ...Option) (*Client, error) {
	cfg := config.Load()

	c := &Client{
		repo:         repo,
		insecure:     cfg.Insecure,
		userAgent:    cfg.UserAgent,
		httpTimeout:  cfg.HTTPTimeout,
		maxRedirects: cfg.MaxRedirects,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	}

	if c.username == "" {
		if u, p, ok := dockerconfig.Lookup(repo.Index.Name); ok {
			c.username, c.password = u, p
		}
	}

	c.baseURL = resolveBaseURL(repo.Index)

	httpClient, err := transport.New(c.insecure, c.userAgent, c.httpTimeout, true)
	if err != nil {
		return nil, fmt.Errorf("building registry HTTP client: %w", err)
	}
	c.httpClient = httpClient
	c.owned = append(c.owned, httpClient)
	c.coord = authcoord.New(httpClient)

	c.blobs = blobtransport.New(func(insecure bool) (*http.Client, error) {
		hc, err := transport.New(insecure, c.userAgent, c.httpTimeout, false)
		if err != nil {
			return nil, err
		}
		c.trackClient(hc)
		return hc, nil
	}).WithMaxRedirects(c.maxRedirects).WithInsecure(c.insecure).WithLogger(c.logger)

	return c, nil
}

// resolveBaseURL resolves an Index to its registry base URL: the official
// index always resolves to DefaultRegistryURL regardless of its Name;
// otherwise localhost indexes without an explicit scheme default to http,
// and every other index uses its configured Scheme.
func resolveBaseURL(idx Index) string {
	if idx.Official {
		return DefaultRegistryURL
	}

	scheme := idx.Scheme
	if scheme == "" {
		if isLocalhost(idx.Name) {
			scheme = SchemeHTTP
		} else {
			scheme = SchemeHTTPS
		}
	}

	return string(scheme) + "://" + idx.Name
}

func isLocalhost(host string) bool {
	h := host
	if i := strings.IndexByte(h, ':'); i >= 0 {
		h = h[:i]
	}
	return h == "localhost" || h == "127.0.0.1"
}

// encodeRemoteName path-encodes a repository remote name segment-by-segment,
// preserving the '/' separators.
func encodeRemoteName(name string) string {
	segments := strings.Split(name, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

func (c *Client) trackClient(hc *http.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.owned = append(c.owned, hc)
}

// Close releases every HTTP client this Client created, including those
// created for blob redirect hops.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for _, hc := range c.owned {
		hc.CloseIdleConnections()
	}
	return nil
}

func (c *Client) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errkind.Internalf("client is closed")
	}
	return nil
}

// Ping probes the registry's /v2/ endpoint and returns the raw result
// without interpreting its status code; 200 means authenticated (or
// anonymous) access, 401 means auth is required, 404 means the registry
// does not speak v2.
func (c *Client) Ping(ctx context.Context) (*authcoord.PingResult, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return c.coord.Ping(ctx, c.baseURL, c.repo.Index.Name)
}

// SupportsV2 reports whether the registry speaks the v2 protocol: the ping
// status must be 200 or 401 and the Docker-Distribution-Api-Version header
// must carry the token "registry/2.0".
func (c *Client) SupportsV2(ctx context.Context) (bool, error) {
	res, err := c.Ping(ctx)
	if err != nil {
		return false, err
	}
	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusUnauthorized {
		return false, nil
	}
	for _, tok := range strings.Fields(strings.ReplaceAll(res.Header.Get("Docker-Distribution-Api-Version"), ",", " ")) {
		if tok == "registry/2.0" {
			return true, nil
		}
	}
	return false, nil
}

// Login runs the authentication state machine if it has not already
// succeeded, caching the result and rebuilding the Authorization header.
// It is a no-op once a login has already completed.
func (c *Client) Login(ctx context.Context) error {
	if err := c.checkOpen(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.authInfo != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	info, err := c.coord.Login(ctx, authcoord.LoginParams{
		BaseURL:  c.baseURL,
		Host:     c.repo.Index.Name,
		Username: c.username,
		Password: c.password,
		Scope:    "repository:" + c.repo.RemoteName + ":pull",
		Insecure: c.insecure,
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.authInfo = &info
	c.authHeader = authHeaderFor(info)
	c.mu.Unlock()

	c.logger.Debug("logged in", "registry", c.repo.Index.Name, "repository", c.repo.RemoteName)
	return nil
}

func authHeaderFor(info authcoord.AuthInfo) string {
	switch info.Kind {
	case authcoord.AuthBearer:
		return "Bearer " + info.Token
	case authcoord.AuthBasic:
		return "Basic " + basicAuth(info.Username, info.Password)
	default:
		return ""
	}
}

func basicAuth(username, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
}

func (c *Client) authorizationHeader() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authHeader
}

// ListTags logs in if necessary and lists every tag of the bound
// repository.
func (c *Client) ListTags(ctx context.Context) (TagList, error) {
	var tags TagList
	path := "/v2/" + encodeRemoteName(c.repo.RemoteName) + "/tags/list"
	_, err := c.getJSON(ctx, path, &tags, "")
	return tags, err
}

// getJSON performs an authenticated GET against path, decoding a JSON body
// into out. A 404 response with a non-JSON content type has its body
// replaced with fallback (or "not found") to avoid bubbling an HTML error
// page into the error message.
func (c *Client) getJSON(ctx context.Context, path string, out any, fallback string) (*http.Response, error) {
	if err := c.Login(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", path, err)
	}
	if h := c.authorizationHeader(); h != "" {
		req.Header.Set("Authorization", h)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errkind.Downloadf("GET %s: %s", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body for %s: %w", path, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		msg := fallback
		if msg == "" {
			msg = "not found"
		}
		if !strings.Contains(resp.Header.Get("Content-Type"), "json") {
			return resp, errkind.Downloadf("%s", msg)
		}
		return resp, errkind.Downloadf("%s: %s", msg, strings.TrimSpace(string(body)))
	}

	if resp.StatusCode != http.StatusOK {
		return resp, errkind.Downloadf("GET %s returned status %d", path, resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return resp, fmt.Errorf("decoding response body for %s: %w", path, err)
		}
	}

	return resp, nil
}

// GetManifest fetches and fully verifies the schema v1 manifest identified
// by ref (a tag or a "<algo>:<hex>" digest). It enforces the schema
// invariants, reconstructs the signed payload, checks it against the
// Docker-Content-Digest response header, and verifies every embedded
// signature before returning.
func (c *Client) GetManifest(ctx context.Context, ref string) (*Manifest, error) {
	if err := c.Login(ctx); err != nil {
		return nil, err
	}

	path := "/v2/" + encodeRemoteName(c.repo.RemoteName) + "/manifests/" + url.PathEscape(ref)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("building manifest request: %w", err)
	}
	if h := c.authorizationHeader(); h != "" {
		req.Header.Set("Authorization", h)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errkind.Downloadf("GET %s: %s", path, err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading manifest body: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		if !strings.Contains(resp.Header.Get("Content-Type"), "json") {
			return nil, errkind.Downloadf("not found")
		}
		return nil, errkind.Downloadf("not found: %s", strings.TrimSpace(string(rawBody)))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errkind.Downloadf("GET %s returned status %d", path, resp.StatusCode)
	}

	var m Manifest
	if err := json.Unmarshal(rawBody, &m); err != nil {
		return nil, errkind.InvalidContentf("decoding manifest: %s", err)
	}

	if err := validateManifestShape(&m); err != nil {
		return nil, err
	}

	rec, err := jws.Reconstruct(m.Signatures, rawBody)
	if err != nil {
		return nil, err
	}

	if dcd := resp.Header.Get("Docker-Content-Digest"); dcd != "" {
		dref, err := digest.Parse(dcd)
		if err != nil {
			return nil, err
		}
		if err := digest.VerifyBytes(dref, rec.Payload); err != nil {
			return nil, err
		}
	}

	if err := jws.Verify(rec); err != nil {
		return nil, err
	}

	return &m, nil
}

func validateManifestShape(m *Manifest) error {
	if m.SchemaVersion != 1 {
		return errkind.InvalidContentf("unsupported schemaVersion %d", m.SchemaVersion)
	}
	if len(m.FSLayers) != len(m.History) {
		return errkind.InvalidContentf("fsLayers length %d does not match history length %d", len(m.FSLayers), len(m.History))
	}
	if len(m.FSLayers) < 1 {
		return errkind.InvalidContentf("manifest has no fsLayers")
	}
	return nil
}

// HeadBlob issues a HEAD request for want, following redirects, and returns
// the collected response chain.
func (c *Client) HeadBlob(ctx context.Context, want digest.Ref) (blobtransport.Chain, error) {
	if err := c.Login(ctx); err != nil {
		return nil, err
	}

	path := "/v2/" + encodeRemoteName(c.repo.RemoteName) + "/blobs/" + url.PathEscape(want.Raw)
	header := http.Header{}
	if h := c.authorizationHeader(); h != "" {
		header.Set("Authorization", h)
	}

	chain, _, err := c.blobs.HeadBlob(ctx, c.baseURL, path, header)
	return chain, err
}

// OpenBlobStream issues a GET request for want, following redirects, and
// returns a stream that verifies the accumulated byte count and digest as
// it is read to completion.
func (c *Client) OpenBlobStream(ctx context.Context, want digest.Ref) (*blobtransport.VerifyingStream, blobtransport.Chain, error) {
	if err := c.Login(ctx); err != nil {
		return nil, nil, err
	}

	path := "/v2/" + encodeRemoteName(c.repo.RemoteName) + "/blobs/" + url.PathEscape(want.Raw)
	header := http.Header{}
	if h := c.authorizationHeader(); h != "" {
		header.Set("Authorization", h)
	}

	stream, chain, _, err := c.blobs.OpenBlobStream(ctx, c.baseURL, path, header, want)
	return stream, chain, err
}
