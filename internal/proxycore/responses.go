package proxycore

import "fmt"

// Well-known response packets, bytes-exact per spec.md §6.

// TunnelEstablished is queued to the client immediately after a CONNECT
// dial succeeds, before any TLS interception handshake begins.
const TunnelEstablished = "HTTP/1.1 200 Connection established\r\n\r\n"

// BadGateway is sent when the upstream TCP connect fails.
func BadGateway(version string) []byte {
	return []byte(fmt.Sprintf(
		"HTTP/1.1 502 Bad Gateway\r\nProxy-agent: %s\r\nConnection: close\r\nContent-Length: 11\r\n\r\nBad Gateway",
		version,
	))
}

// ProxyAuthRequired is sent when the configured auth_code does not match
// the request's Proxy-Authorization header.
func ProxyAuthRequired(version string) []byte {
	return []byte(fmt.Sprintf(
		"HTTP/1.1 407 Proxy Authentication Required\r\nProxy-agent: %s\r\nProxy-Authenticate: Basic\r\nConnection: close\r\nContent-Length: 29\r\n\r\nProxy Authentication Required",
		version,
	))
}

// NotFound is the 404 response the web core plugin sends when no route or
// static file matches.
func NotFound(version string) []byte {
	return []byte(fmt.Sprintf(
		"HTTP/1.1 404 Not Found\r\nServer: %s\r\nConnection: close\r\nContent-Length: 9\r\n\r\nNot Found",
		version,
	))
}

// NotImplemented is sent when a WebSocket upgrade precondition fails.
func NotImplemented(version string) []byte {
	return []byte(fmt.Sprintf(
		"HTTP/1.1 501 Not Implemented\r\nServer: %s\r\nConnection: close\r\nContent-Length: 15\r\n\r\nNot Implemented",
		version,
	))
}
