// Package transport builds the *http.Client used for every registry and
// auth-realm request this module makes, the way docker/docker's own API
// client builds its transport: a TLS configuration from
// docker/go-connections/tlsconfig, instrumented with otelhttp.
package transport

import (
	"net/http"
	"time"

	"github.com/docker/go-connections/tlsconfig"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// New builds an *http.Client. When followRedirects is false, the client
// surfaces 3xx responses to the caller instead of following them itself —
// blobtransport needs to inspect each hop and drop the Authorization header
// by hand. Every request through the client, pings included, gets the
// caller-configured timeout; the client never retries.
func New(insecure bool, userAgent string, timeout time.Duration, followRedirects bool) (*http.Client, error) {
	tlsConfig, err := tlsconfig.Client(tlsconfig.Options{
		InsecureSkipVerify: insecure,
	})
	if err != nil {
		return nil, err
	}

	base := &http.Transport{TLSClientConfig: tlsConfig}
	rt := otelhttp.NewTransport(base)

	client := &http.Client{
		Transport: &userAgentRoundTripper{rt: rt, userAgent: userAgent},
		Timeout:   timeout,
	}
	if !followRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return client, nil
}

// userAgentRoundTripper stamps every outgoing request with a default
// User-Agent unless the caller already set one.
type userAgentRoundTripper struct {
	rt        http.RoundTripper
	userAgent string
}

func (u *userAgentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if u.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", u.userAgent)
	}
	return u.rt.RoundTrip(req)
}
