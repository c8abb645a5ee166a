package webcore

import (
	"context"
	"net"
	"testing"

	"go.uber.org/zap"

	"github.com/lucidwire/govy/internal/config"
	"github.com/lucidwire/govy/internal/httpmsg"
	"github.com/lucidwire/govy/internal/netconn"
	"github.com/lucidwire/govy/internal/plugin"
	"github.com/lucidwire/govy/internal/wsframe"
)

type fakeWeb struct {
	name   string
	routes []plugin.Route
	hits   int
}

func (f *fakeWeb) Name() string            { return f.name }
func (f *fakeWeb) Routes() []plugin.Route  { return f.routes }
func (f *fakeWeb) HandleRequest(req *httpmsg.Message, client *netconn.Conn) {
	f.hits++
	client.Queue([]byte("HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n"))
}
func (f *fakeWeb) OnWebSocketOpen(client *netconn.Conn)                             {}
func (f *fakeWeb) OnWebSocketMessage(frame *wsframe.Frame, client *netconn.Conn)    {}
func (f *fakeWeb) OnWebSocketClose()                                                {}

func TestRouterResolvesRegisteredRoute(t *testing.T) {
	w := &fakeWeb{name: "hello", routes: []plugin.Route{{Protocol: "HTTP", Path: "/hello"}}}
	r := NewRouter([]plugin.Web{w})
	got, ok := r.Resolve("HTTP", "/hello")
	if !ok || got.Name() != "hello" {
		t.Fatalf("Resolve did not find registered route")
	}
	if _, ok := r.Resolve("HTTP", "/missing"); ok {
		t.Fatal("Resolve found a route that was never registered")
	}
}

func TestOnRequestCompleteDispatchesRoute(t *testing.T) {
	cfg := config.Default()
	a, b := net.Pipe()
	defer b.Close()
	client := netconn.New(a, netconn.TagClient)

	w := &fakeWeb{name: "hello", routes: []plugin.Route{{Protocol: "HTTP", Path: "/hello"}}}
	router := NewRouter([]plugin.Web{w})
	c := New(cfg, zap.NewNop(), nil, nil, router, client)

	req := httpmsg.NewRequest()
	if err := req.Feed([]byte("GET /hello HTTP/1.1\r\nHost: local\r\n\r\n")); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	c.SetRequest(req)

	action, err := c.OnRequestComplete(context.Background())
	if err != nil {
		t.Fatalf("OnRequestComplete: %v", err)
	}
	if action != plugin.ActionContinue {
		t.Fatalf("action = %v, want ActionContinue", action)
	}
	if w.hits != 1 {
		t.Fatalf("hits = %d, want 1", w.hits)
	}
}

func TestOnRequestCompleteResolvesHTTPSRouteWhenTLSToClientEnabled(t *testing.T) {
	cfg := config.Default()
	cfg.TLS.CertFile = "cert.pem"
	cfg.TLS.KeyFile = "key.pem"
	a, b := net.Pipe()
	defer b.Close()
	client := netconn.New(a, netconn.TagClient)

	w := &fakeWeb{name: "secure", routes: []plugin.Route{{Protocol: "HTTPS", Path: "/hello"}}}
	router := NewRouter([]plugin.Web{w})
	c := New(cfg, zap.NewNop(), nil, nil, router, client)

	req := httpmsg.NewRequest()
	if err := req.Feed([]byte("GET /hello HTTP/1.1\r\nHost: local\r\n\r\n")); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	c.SetRequest(req)

	action, err := c.OnRequestComplete(context.Background())
	if err != nil {
		t.Fatalf("OnRequestComplete: %v", err)
	}
	if action != plugin.ActionContinue {
		t.Fatalf("action = %v, want ActionContinue", action)
	}
	if w.hits != 1 {
		t.Fatalf("hits = %d, want 1 (HTTPS route should resolve when TLS-to-client is configured)", w.hits)
	}
}

func TestOnRequestCompleteFallsBackTo404(t *testing.T) {
	cfg := config.Default()
	a, b := net.Pipe()
	defer b.Close()
	client := netconn.New(a, netconn.TagClient)

	router := NewRouter(nil)
	c := New(cfg, zap.NewNop(), nil, nil, router, client)

	req := httpmsg.NewRequest()
	if err := req.Feed([]byte("GET /nope HTTP/1.1\r\nHost: local\r\n\r\n")); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	c.SetRequest(req)

	action, err := c.OnRequestComplete(context.Background())
	if err != nil {
		t.Fatalf("OnRequestComplete: %v", err)
	}
	if action != plugin.ActionTeardown {
		t.Fatalf("action = %v, want ActionTeardown", action)
	}
}
