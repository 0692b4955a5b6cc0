// Package authcoord implements the ping-then-login authentication state
// machine: resolve the auth scheme from a ping's challenge header, dispatch
// to basic or bearer handling, and return the resulting credentials.
package authcoord

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/oci-dial/dregistry/internal/challenge"
	"github.com/oci-dial/dregistry/internal/errkind"
	"github.com/oci-dial/dregistry/internal/token"
)

// AuthKind tags which variant an AuthInfo holds.
type AuthKind int

const (
	AuthNone AuthKind = iota
	AuthBasic
	AuthBearer
)

// AuthInfo is the resolved outcome of a login: only the fields belonging to
// Kind are populated (Username and Password for AuthBasic, Token for
// AuthBearer, none for AuthNone).
type AuthInfo struct {
	Kind     AuthKind
	Username string
	Password string
	Token    string
}

// PingResult is the raw outcome of a GET /v2/ ping, before the login state
// machine interprets it.
type PingResult struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Coordinator performs ping and login against one registry base URL.
type Coordinator struct {
	client *http.Client
}

// New returns a Coordinator that issues requests through client.
func New(client *http.Client) *Coordinator {
	return &Coordinator{client: client}
}

// Ping issues GET <baseURL>/v2/ with no retry and returns the raw result.
// It never raises on a 401 or 404 — callers (Login, and RegistryClient)
// interpret the status code themselves.
func (c *Coordinator) Ping(ctx context.Context, baseURL, host string) (*PingResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/v2/", http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("building ping request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pinging %s: %w", host, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading ping response from %s: %w", host, err)
	}

	applyQuirks(host, resp.StatusCode, resp.Header)

	return &PingResult{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// LoginParams configures one login attempt.
type LoginParams struct {
	BaseURL  string
	Host     string
	Username string
	Password string
	// Scope is the token scope requested when the registry challenges with
	// Bearer and does not supply its own scope parameter.
	Scope string
	// Insecure permits a bearer challenge's realm to default to plain HTTP
	// when it has no explicit scheme.
	Insecure bool
	// PingResult/PingErr let a caller who already pinged (e.g. a facade
	// that pinged to decide whether login is even necessary) hand the
	// outcome straight to state S2/S3 instead of pinging again.
	PingResult *PingResult
	PingErr    error
}

// Login runs the ping-then-authenticate state machine: ping (unless a
// result was already supplied), interpret the challenge, and dispatch to
// basic or bearer handling. The ping it issues itself carries no
// credentials, and a Basic challenge is never answered with them.
func (c *Coordinator) Login(ctx context.Context, p LoginParams) (AuthInfo, error) {
	res := p.PingResult
	pingErr := p.PingErr

	if res == nil {
		var err error
		res, err = c.Ping(ctx, p.BaseURL, p.Host)
		if err != nil {
			return AuthInfo{}, err
		}
	}

	switch res.StatusCode {
	case http.StatusOK:
		// The (anonymous) ping was accepted; nothing more to negotiate.
		// Configured credentials, if any, are returned as Basic auth info
		// so later requests carry them.
		if p.Username != "" {
			return AuthInfo{Kind: AuthBasic, Username: p.Username, Password: p.Password}, nil
		}
		return AuthInfo{Kind: AuthNone}, nil

	case http.StatusUnauthorized:
		wa := res.Header.Get("Www-Authenticate")
		if wa == "" {
			return AuthInfo{}, errkind.Unauthorizedf("401 from %s with no WWW-Authenticate header", p.Host)
		}

		ch, err := challenge.Parse(wa)
		if err != nil {
			return AuthInfo{}, errkind.Unauthorizedf("parsing challenge from %s: %s", p.Host, err)
		}

		switch strings.ToLower(ch.Scheme) {
		case "basic":
			// The ping carried no credentials, and the configured
			// username/password are not retried against a Basic
			// challenge: a supplied ping error is re-raised, otherwise
			// the login fails as Unauthorized.
			if pingErr != nil {
				return AuthInfo{}, pingErr
			}
			return AuthInfo{}, errkind.Unauthorizedf("basic auth rejected by %s", p.Host)

		case "bearer":
			return c.loginBearer(ctx, p, ch)

		default:
			return AuthInfo{}, errkind.Unauthorizedf("unsupported auth scheme %q from %s", ch.Scheme, p.Host)
		}

	default:
		if pingErr != nil {
			return AuthInfo{}, pingErr
		}
		return AuthInfo{}, fmt.Errorf("ping %s returned unexpected status %d", p.Host, res.StatusCode)
	}
}

func (c *Coordinator) loginBearer(ctx context.Context, p LoginParams, ch challenge.Challenge) (AuthInfo, error) {
	realm := ch.Params["realm"]
	if realm == "" {
		return AuthInfo{}, errkind.Unauthorizedf("bearer challenge from %s missing realm", p.Host)
	}

	var scopes []string
	if s := ch.Params["scope"]; s != "" {
		scopes = []string{s}
	} else if p.Scope != "" {
		scopes = []string{p.Scope}
	}

	tok, err := token.Fetch(ctx, c.client, token.Params{
		Realm:    realm,
		Service:  ch.Params["service"],
		Scopes:   scopes,
		Username: p.Username,
		Password: p.Password,
		Insecure: p.Insecure,
	})
	if err != nil {
		return AuthInfo{}, err
	}

	return AuthInfo{Kind: AuthBearer, Token: tok}, nil
}
