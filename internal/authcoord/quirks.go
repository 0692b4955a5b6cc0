package authcoord

import "net/http"

// quirk is one known-registry compatibility workaround applied to a ping
// response before the login state machine inspects it.
type quirk struct {
	host string
	fix  func(statusCode int, header http.Header)
}

// quirks is a closed table of documented per-registry fixups. Today it has
// exactly one entry; the mechanism is deliberately left open to more without
// being populated beyond what is documented.
var quirks = []quirk{
	{
		// quay.io answers an anonymous ping with a bare 401 and no
		// WWW-Authenticate header, unlike every other registry this
		// client talks to.
		host: "quay.io",
		fix: func(statusCode int, header http.Header) {
			if statusCode == http.StatusUnauthorized && header.Get("Www-Authenticate") == "" {
				header.Set("Www-Authenticate", `Bearer realm="https://quay.io/v2/auth",service="quay.io"`)
			}
		},
	},
}

func applyQuirks(host string, statusCode int, header http.Header) {
	for _, q := range quirks {
		if q.host == host {
			q.fix(statusCode, header)
		}
	}
}
