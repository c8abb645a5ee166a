package proxycore

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/lucidwire/govy/internal/config"
	"github.com/lucidwire/govy/internal/devtools"
	"github.com/lucidwire/govy/internal/httpmsg"
	"github.com/lucidwire/govy/internal/netconn"
	"github.com/lucidwire/govy/internal/plugin"
)

func newClientPair(t *testing.T) (*netconn.Conn, net.Conn) {
	t.Helper()
	a, b := net.Pipe()
	return netconn.New(a, netconn.TagClient), b
}

func TestOnRequestCompleteRejectsMissingAuth(t *testing.T) {
	cfg := config.Default()
	cfg.AuthCode = "secret"
	client, peer := newClientPair(t)
	defer peer.Close()

	c := New(cfg, zap.NewNop(), nil, nil, nil, client, nil)
	req := httpmsg.NewRequest()
	if err := req.Feed([]byte("GET http://example.com/ HTTP/1.1\r\nHost: example.com\r\n\r\n")); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	c.SetRequest(req)

	action, err := c.OnRequestComplete(context.Background())
	if err != ErrProxyAuthFailed {
		t.Fatalf("err = %v, want ErrProxyAuthFailed", err)
	}
	if action != plugin.ActionTeardown {
		t.Fatalf("action = %v, want ActionTeardown", action)
	}
	if c.client.Closed() {
		t.Fatal("client should not be closed yet, only queued a response")
	}
}

func TestOnRequestCompleteConnectDialFailure(t *testing.T) {
	cfg := config.Default()
	client, peer := newClientPair(t)
	defer peer.Close()

	c := New(cfg, zap.NewNop(), nil, nil, nil, client, nil)
	req := httpmsg.NewRequest()
	if err := req.Feed([]byte("CONNECT 127.0.0.1:1 HTTP/1.1\r\nHost: 127.0.0.1:1\r\n\r\n")); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	c.SetRequest(req)

	action, err := c.OnRequestComplete(context.Background())
	if err != ErrUpstreamConnectFailed {
		t.Fatalf("err = %v, want ErrUpstreamConnectFailed", err)
	}
	if action != plugin.ActionTeardown {
		t.Fatalf("action = %v, want ActionTeardown", action)
	}
}

func TestHandlePlainRequestRechunksChunkedBody(t *testing.T) {
	upstream, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer upstream.Close()

	received := make(chan []byte, 1)
	go func() {
		conn, err := upstream.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 4096)
		n, _ := conn.Read(buf)
		received <- buf[:n]
	}()

	cfg := config.Default()
	client, peer := newClientPair(t)
	defer peer.Close()

	c := New(cfg, zap.NewNop(), nil, nil, nil, client, nil)
	addr := upstream.Addr().(*net.TCPAddr)
	reqLine := "POST http://" + addr.String() + "/upload HTTP/1.1\r\n" +
		"Host: " + addr.String() + "\r\n" +
		"Transfer-Encoding: chunked\r\n\r\n" +
		"5\r\nhello\r\n0\r\n\r\n"
	req := httpmsg.NewRequest()
	if err := req.Feed([]byte(reqLine)); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	c.SetRequest(req)

	if _, err := c.OnRequestComplete(context.Background()); err != nil {
		t.Fatalf("OnRequestComplete: %v", err)
	}
	if err := c.server.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	select {
	case out := <-received:
		if !bytes.Contains(out, []byte("Transfer-Encoding: chunked")) {
			t.Fatalf("forwarded request dropped Transfer-Encoding header: %q", out)
		}
		if !bytes.Contains(out, []byte("5\r\nhello\r\n0\r\n\r\n")) {
			t.Fatalf("forwarded body was not re-chunked: %q", out)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for upstream to receive the forwarded request")
	}
}

func TestOnClientConnectionCloseTransitionsToDone(t *testing.T) {
	cfg := config.Default()
	client, peer := newClientPair(t)
	defer peer.Close()

	c := New(cfg, zap.NewNop(), nil, nil, nil, client, nil)
	c.OnClientConnectionClose()
	if c.State() != StateDone {
		t.Fatalf("state = %v, want done", c.State())
	}
}

func TestOnClientConnectionClosePublishesDevtoolsEvent(t *testing.T) {
	cfg := config.Default()
	client, peer := newClientPair(t)
	defer peer.Close()

	bus := devtools.New(4, zap.NewNop())
	c := New(cfg, zap.NewNop(), nil, nil, bus, client, nil)
	c.OnClientConnectionClose()

	select {
	case ev := <-bus.Subscribe():
		if ev.Kind != "connection_closed" {
			t.Fatalf("Kind = %q, want connection_closed", ev.Kind)
		}
		if ev.ConnID == "" {
			t.Fatal("ConnID should be populated from this Core's generated ID")
		}
	default:
		t.Fatal("expected a devtools event to have been published")
	}
}
