package httpmsg

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// URL is the split form of a request-line target: either an absolute-form
// URI ("GET http://host:port/path HTTP/1.1", the form a forward proxy
// receives for plain HTTP) or a CONNECT authority ("host:port").
type URL struct {
	Scheme string // empty for CONNECT
	Host   string
	Port   string
	Path   string // includes leading "/"; empty for CONNECT
}

// String reconstructs the original request-line target.
func (u *URL) String() string {
	if u.Scheme == "" {
		return net.JoinHostPort(u.Host, u.Port)
	}
	hostport := net.JoinHostPort(u.Host, u.Port)
	if (u.Scheme == "http" && u.Port == "80") || (u.Scheme == "https" && u.Port == "443") {
		hostport = u.Host
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	return fmt.Sprintf("%s://%s%s", u.Scheme, hostport, path)
}

// parseConnectAuthority splits a CONNECT target of the form "host:port".
// Per RFC 7231 the target has no scheme or path; a missing port is treated
// as a malformed request rather than defaulted, since CONNECT is only ever
// used to tunnel to a specific TLS/other port.
func parseConnectAuthority(target string) (*URL, error) {
	host, port, err := net.SplitHostPort(target)
	if err != nil {
		return nil, fmt.Errorf("httpmsg: invalid CONNECT authority %q: %w", target, err)
	}
	return &URL{Host: host, Port: port}, nil
}

// parseAbsoluteURL splits an absolute-form request target
// ("http://host[:port][/path]") as sent by browsers to forward proxies for
// plain (non-CONNECT) requests.
func parseAbsoluteURL(target string) (*URL, error) {
	schemeSep := strings.Index(target, "://")
	if schemeSep == -1 {
		return nil, fmt.Errorf("httpmsg: request target %q is not absolute-form", target)
	}
	scheme := target[:schemeSep]
	rest := target[schemeSep+3:]

	path := "/"
	if slash := strings.IndexByte(rest, '/'); slash != -1 {
		path = rest[slash:]
		rest = rest[:slash]
	}

	host := rest
	port := defaultPortFor(scheme)
	if h, p, err := net.SplitHostPort(rest); err == nil {
		host, port = h, p
	}

	return &URL{Scheme: scheme, Host: host, Port: port, Path: path}, nil
}

// defaultPortFor is the port assumed when an absolute-form target names no
// port. spec.md §4.1 states this unconditionally ("port defaults to 80 when
// absent"), with no scheme-based exception, matching the original's literal
// `self.url.port if self.url.port else 80`.
func defaultPortFor(scheme string) string {
	return "80"
}

// portOrDefault parses a numeric port string, falling back to def on empty
// or malformed input rather than failing the whole parse: an unparsable
// port still leaves the proxy able to report a clear dial error downstream.
func portOrDefault(s, def string) string {
	if s == "" {
		return def
	}
	if _, err := strconv.Atoi(s); err != nil {
		return def
	}
	return s
}
