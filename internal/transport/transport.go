// Package transport provides the browser-fingerprint HTTP transport used
// for pay-page scrapes and warm-up requests.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
)

// Commerce sites behind CDNs fingerprint the TLS ClientHello (JA3) and
// serve bot challenges or stripped pages to Go's standard TLS client.
// Gateway plugins on those sites only emit their redirect URL for what
// looks like a real browser visit, so the pay-page scrape would come back
// empty through a vanilla transport.
//
// This transport presents Chrome's TLS fingerprint via uTLS:
//
//  1. dial with HelloChrome_Auto for Chrome's ClientHello
//  2. let ALPN negotiate naturally (h2, http/1.1)
//  3. route h2-negotiated connections through http2.Transport framing

// NewBrowserTransport creates an http.RoundTripper that presents Chrome's
// TLS fingerprint. Supports both HTTP/2 and HTTP/1.1 based on ALPN
// negotiation. Request headers still need to be browser-shaped; this only
// covers the TLS layer.
func NewBrowserTransport(timeout time.Duration) http.RoundTripper {
	dialer := &net.Dialer{Timeout: timeout}

	h2Transport := &http2.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			return dialBrowserTLS(ctx, dialer, network, addr)
		},
	}

	// HTTP/1.1 fallback with the same TLS dial
	h1Transport := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialBrowserTLS(ctx, dialer, network, addr)
		},
		ForceAttemptHTTP2: false,
	}

	return &browserTransport{
		h2: h2Transport,
		h1: h1Transport,
	}
}

// browserTransport wraps HTTP/2 and HTTP/1.1 transports sharing the
// Chrome TLS fingerprint.
type browserTransport struct {
	h2 *http2.Transport
	h1 *http.Transport
}

// RoundTrip implements http.RoundTripper. Tries HTTP/2 first and falls
// back to HTTP/1.1 for servers that never negotiated h2.
func (t *browserTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.h2.RoundTrip(req)
	if err == nil {
		return resp, nil
	}
	return t.h1.RoundTrip(req)
}

// dialBrowserTLS establishes a TLS connection with Chrome's fingerprint.
func dialBrowserTLS(ctx context.Context, dialer *net.Dialer, network, addr string) (net.Conn, error) {
	// Extract hostname for SNI
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	// Chrome fingerprint with default ALPN (h2, http/1.1)
	tlsConfig := &utls.Config{
		ServerName: host,
	}
	tlsConn := utls.UClient(conn, tlsConfig, utls.HelloChrome_Auto)

	if err := tlsConn.Handshake(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tls handshake: %w", err)
	}

	return tlsConn, nil
}
