package httpmsg

import (
	"strings"
	"testing"
)

func TestBuildRequestRoundTrip(t *testing.T) {
	m := NewRequest()
	raw := []byte("GET http://example.com/path HTTP/1.1\r\nHost: example.com\r\nX-Custom: v\r\n\r\n")
	if err := m.Feed(raw); err != nil {
		t.Fatalf("Feed: %v", err)
	}

	out := BuildRequest(m, nil, false, 0)
	outStr := string(out)
	if !strings.HasPrefix(outStr, "GET http://example.com/path HTTP/1.1\r\n") {
		t.Fatalf("unexpected request line in: %q", outStr)
	}
	if !strings.Contains(outStr, "Host: example.com\r\n") {
		t.Fatalf("missing Host header in: %q", outStr)
	}
	if !strings.HasSuffix(outStr, "\r\n\r\n") {
		t.Fatalf("missing trailing blank line in: %q", outStr)
	}
}

func TestBuildRequestHonorsDisableHeaders(t *testing.T) {
	m := NewRequest()
	raw := []byte("GET / HTTP/1.1\r\nHost: h\r\nProxy-Authorization: secret\r\n\r\n")
	if err := m.Feed(raw); err != nil {
		t.Fatalf("Feed: %v", err)
	}

	disabled := NewDisableHeaders([]string{"Proxy-Authorization"})
	out := string(BuildRequest(m, disabled, false, 0))
	if strings.Contains(out, "Proxy-Authorization") {
		t.Fatalf("disabled header leaked into output: %q", out)
	}
}

func TestBuildResponseRechunksBody(t *testing.T) {
	m := NewResponse()
	raw := []byte("HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhello")
	if err := m.Feed(raw); err != nil {
		t.Fatalf("Feed: %v", err)
	}

	out := string(BuildResponse(m, nil, true, 2))
	if !strings.Contains(out, "Transfer-Encoding: chunked\r\n") {
		t.Fatalf("expected chunked encoding header in: %q", out)
	}
	if strings.Contains(out, "Content-Length") {
		t.Fatalf("Content-Length should have been dropped when rechunking: %q", out)
	}
	if !strings.HasSuffix(out, "0\r\n\r\n") {
		t.Fatalf("expected terminal chunk in: %q", out)
	}
}
