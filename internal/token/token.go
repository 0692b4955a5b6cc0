// Package token exchanges a WWW-Authenticate Bearer challenge for a bearer
// token from the realm it names.
package token

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/oci-dial/dregistry/internal/errkind"
)

// Params configures one token-fetch request.
type Params struct {
	Realm    string
	Service  string
	Scopes   []string
	Username string
	Password string
	Insecure bool
}

// response is the JSON body token endpoints return. Some registries use
// "token", others the OAuth2-flavored "access_token"; both are accepted.
type response struct {
	Token       string `json:"token"`
	AccessToken string `json:"access_token"`
}

// Fetch performs the GET against the auth realm and returns the bearer
// token string.
func Fetch(ctx context.Context, client *http.Client, p Params) (string, error) {
	realm := p.Realm
	if u, err := url.Parse(realm); err != nil || u.Scheme == "" {
		scheme := "https"
		if p.Insecure {
			scheme = "http"
		}
		realm = scheme + "://" + realm
	}

	u, err := url.Parse(realm)
	if err != nil {
		return "", errkind.Unauthorizedf("parsing auth realm %q: %s", p.Realm, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", errkind.Unauthorizedf("auth realm %q has unsupported scheme %q", p.Realm, u.Scheme)
	}

	q := u.Query()
	if p.Service != "" {
		q.Set("service", p.Service)
	}
	for _, scope := range p.Scopes {
		q.Add("scope", scope)
	}
	if p.Username != "" {
		q.Set("account", p.Username)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return "", errkind.Unauthorizedf("building token request: %s", err)
	}
	if p.Username != "" && p.Password != "" {
		req.SetBasicAuth(p.Username, p.Password)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", errkind.Unauthorizedf("requesting token from %s: %s", u.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errkind.Unauthorizedf("token endpoint %s returned status %d", u.Host, resp.StatusCode)
	}

	var tr response
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", errkind.Unauthorizedf("decoding token response from %s: %s", u.Host, err)
	}

	tok := tr.Token
	if tok == "" {
		tok = tr.AccessToken
	}
	if tok == "" {
		return "", errkind.Unauthorizedf("token endpoint %s returned no token", u.Host)
	}

	return tok, nil
}
