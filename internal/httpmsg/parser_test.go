package httpmsg

import (
	"bytes"
	"testing"
)

func TestFeedWholeRequestAtOnce(t *testing.T) {
	m := NewRequest()
	raw := []byte("GET http://example.com/path HTTP/1.1\r\nHost: example.com\r\n\r\n")
	if err := m.Feed(raw); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if m.State() != StateComplete {
		t.Fatalf("State() = %s, want complete", m.State())
	}
	if m.Method != "GET" || m.Version != "HTTP/1.1" {
		t.Fatalf("got method=%q version=%q", m.Method, m.Version)
	}
	if m.URL == nil || m.URL.Host != "example.com" || m.URL.Path != "/path" {
		t.Fatalf("got URL=%+v", m.URL)
	}
	host, _ := m.Headers.Get("Host")
	if host != "example.com" {
		t.Fatalf("Host header = %q", host)
	}
}

func TestFeedOneByteAtATimeMatchesWholeFeed(t *testing.T) {
	raw := []byte("POST /submit HTTP/1.1\r\nHost: h\r\nContent-Length: 5\r\n\r\nhello")

	whole := NewRequest()
	if err := whole.Feed(raw); err != nil {
		t.Fatalf("whole Feed: %v", err)
	}

	piecewise := NewRequest()
	for i := 0; i < len(raw); i++ {
		if err := piecewise.Feed(raw[i : i+1]); err != nil {
			t.Fatalf("piecewise Feed at byte %d: %v", i, err)
		}
	}

	if whole.State() != StateComplete || piecewise.State() != StateComplete {
		t.Fatalf("states: whole=%s piecewise=%s", whole.State(), piecewise.State())
	}
	if !bytes.Equal(whole.Body, piecewise.Body) {
		t.Fatalf("body mismatch: whole=%q piecewise=%q", whole.Body, piecewise.Body)
	}
	if whole.Method != piecewise.Method || whole.RawURL != piecewise.RawURL {
		t.Fatal("start line mismatch between whole and piecewise feed")
	}
}

func TestFeedChunkedRequestBody(t *testing.T) {
	raw := []byte("POST /upload HTTP/1.1\r\nHost: h\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"5\r\nhello\r\n6\r\n world\r\n0\r\n\r\n")
	m := NewRequest()
	if err := m.Feed(raw); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if m.State() != StateComplete {
		t.Fatalf("State() = %s, want complete", m.State())
	}
	if string(m.Body) != "hello world" {
		t.Fatalf("Body = %q, want %q", m.Body, "hello world")
	}
}

func TestFeedConnectRequest(t *testing.T) {
	m := NewRequest()
	raw := []byte("CONNECT example.com:443 HTTP/1.1\r\nHost: example.com:443\r\n\r\n")
	if err := m.Feed(raw); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if m.State() != StateComplete {
		t.Fatalf("State() = %s, want complete", m.State())
	}
	if m.URL == nil || m.URL.Host != "example.com" || m.URL.Port != "443" {
		t.Fatalf("got URL=%+v", m.URL)
	}
}

func TestFeedResponseWithContentLength(t *testing.T) {
	m := NewResponse()
	raw := []byte("HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nhi")
	if err := m.Feed(raw); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if m.State() != StateComplete {
		t.Fatalf("State() = %s, want complete", m.State())
	}
	if string(m.Body) != "hi" {
		t.Fatalf("Body = %q", m.Body)
	}
}

func TestFeedBodylessStatusIgnoresContentLength(t *testing.T) {
	m := NewResponse()
	raw := []byte("HTTP/1.1 204 No Content\r\nContent-Length: 5\r\n\r\n")
	if err := m.Feed(raw); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if m.State() != StateComplete {
		t.Fatalf("State() = %s, want complete", m.State())
	}
}

func TestFeedGetRequestHasNoBody(t *testing.T) {
	m := NewRequest()
	raw := []byte("GET / HTTP/1.1\r\nHost: h\r\n\r\n")
	if err := m.Feed(raw); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if m.State() != StateComplete {
		t.Fatalf("State() = %s, want complete", m.State())
	}
	if len(m.Body) != 0 {
		t.Fatalf("Body = %q, want empty", m.Body)
	}
}

func TestCloseCompletesConnectionFramedResponse(t *testing.T) {
	m := NewResponse()
	raw := []byte("HTTP/1.1 200 OK\r\n\r\nsome trailing bytes")
	if err := m.Feed(raw); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if m.State() == StateComplete {
		t.Fatal("should not be complete before Close without Content-Length")
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if m.State() != StateComplete {
		t.Fatalf("State() after Close = %s, want complete", m.State())
	}
}

func TestFeedHeaderlessResponseCompletesWithoutClose(t *testing.T) {
	m := NewResponse()
	raw := []byte("HTTP/1.1 200 Connection established\r\n\r\n")
	if err := m.Feed(raw); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if m.State() != StateComplete {
		t.Fatalf("State() = %s, want complete", m.State())
	}
}

func TestFeedGetRequestWithStrayContentLengthIgnoresIt(t *testing.T) {
	m := NewRequest()
	raw := []byte("GET / HTTP/1.1\r\nHost: h\r\nContent-Length: 5\r\n\r\n")
	if err := m.Feed(raw); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if m.State() != StateComplete {
		t.Fatalf("State() = %s, want complete", m.State())
	}
	if len(m.Body) != 0 {
		t.Fatalf("Body = %q, want empty (Content-Length ignored on non-POST)", m.Body)
	}
}

func TestCloseOnTruncatedMessageIsAnError(t *testing.T) {
	m := NewRequest()
	if err := m.Feed([]byte("GET / HTTP/1.1\r\nHost: h")); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if err := m.Close(); err == nil {
		t.Fatal("expected error closing a message still mid-headers")
	}
}
