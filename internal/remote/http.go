package remote

import (
	"net"
	"net/http"
	"time"
)

const (
	// clientTimeout is the total request timeout.
	clientTimeout = 30 * time.Second
	// dialTimeout is the connection timeout.
	dialTimeout = 10 * time.Second
	// tlsHandshakeTimeout is the TLS negotiation timeout.
	tlsHandshakeTimeout = 10 * time.Second
	// responseHeaderTimeout is time to wait for response headers.
	responseHeaderTimeout = 15 * time.Second
)

// newHTTPClient creates an HTTP client configured for calls to the
// hosted data service. It has explicit timeouts at every stage so a
// stuck connection surfaces as an error instead of hanging a mutation.
func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: clientTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   dialTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   tlsHandshakeTimeout,
			ResponseHeaderTimeout: responseHeaderTimeout,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}
