// Package plugin defines the three polymorphic protocol-handler families
// from spec.md §4.4 and the explicit factory registries that replace
// dynamic class-lookup-by-name (spec.md §9's "Plugin polymorphism" design
// note): a builder receives a list of factory functions per family and
// instantiates one of each, per connection.
package plugin

import (
	"context"

	"go.uber.org/zap"

	"github.com/lucidwire/govy/internal/httpmsg"
	"github.com/lucidwire/govy/internal/netconn"
	"github.com/lucidwire/govy/internal/wsframe"
)

// Action is what a core plugin's on_request_complete callback asks the
// handler to do next.
type Action uint8

const (
	// ActionContinue keeps the connection in its current mode.
	ActionContinue Action = iota
	// ActionTunnel switches the connection to opaque byte relay.
	ActionTunnel
	// ActionTeardown tears the connection down immediately.
	ActionTeardown
)

// Descriptors is the set of connections a core plugin reports through
// GetDescriptors as wanting reads or writes. internal/handler does not
// consult it; its Step drives every plugin through ReadFromDescriptors and
// WriteToDescriptors directly.
type Descriptors struct {
	Readable []*netconn.Conn
	Writable []*netconn.Conn
}

// Core is the per-connection core plugin family (one instance per accepted
// connection, invoked by the per-connection handler). The proxy core
// plugin and web core plugin both implement this interface.
type Core interface {
	// Name is the stable string key other plugins can look this instance
	// up by within the same connection.
	Name() string

	GetDescriptors() Descriptors
	ReadFromDescriptors(ctx context.Context) error
	WriteToDescriptors(ctx context.Context) error

	// OnClientData runs before the request parser sees raw, returning the
	// (possibly transformed) bytes to feed it, or nil to suppress parsing
	// for this chunk.
	OnClientData(raw []byte) []byte

	// OnRequestComplete runs once the client's request parser reaches
	// httpmsg.StateComplete.
	OnRequestComplete(ctx context.Context) (Action, error)

	// OnResponseChunk is the per-chunk hook for outbound client bytes,
	// where returning nil means drop the chunk. internal/handler does not
	// call it: plugins queue client bytes directly on the shared
	// netconn.Conn, so no chunk passes through this hook.
	OnResponseChunk(chunk []byte) []byte

	OnClientConnectionClose()
}

// CoreFactory builds one Core plugin instance for a new connection. logger
// is already scoped to this connection (see internal/handler.New), so
// factories should pass it straight through rather than closing over the
// process-wide logger.
type CoreFactory func(client *netconn.Conn, reg *Registry, logger *zap.Logger) Core

// Proxy is the proxy sub-plugin family, instantiated by the proxy core
// plugin (spec.md §4.4, §4.5).
type Proxy interface {
	Name() string

	// BeforeUpstreamConnection may rewrite or veto (return nil) the
	// request before a TCP connection to the upstream is attempted.
	BeforeUpstreamConnection(req *httpmsg.Message) *httpmsg.Message

	// HandleClientRequest may rewrite or veto (return nil) the request
	// before it is forwarded upstream; returning nil means the plugin has
	// already queued its own response to the client.
	HandleClientRequest(req *httpmsg.Message) *httpmsg.Message

	// HandleUpstreamChunk runs left to right across plugins, each seeing
	// the previous plugin's output.
	HandleUpstreamChunk(chunk []byte) []byte

	OnUpstreamConnectionClose()
}

// ProxyFactory builds one Proxy sub-plugin instance per proxy core plugin.
type ProxyFactory func(reg *Registry) Proxy

// Route pairs the protocol a web sub-plugin wants to serve with the local
// path it serves it on (spec.md §4.6).
type Route struct {
	Protocol string // "HTTP", "HTTPS", or "WebSocket"
	Path     string
}

// Web is the web sub-plugin family, instantiated by the web core plugin.
type Web interface {
	Name() string
	Routes() []Route

	HandleRequest(req *httpmsg.Message, client *netconn.Conn)

	OnWebSocketOpen(client *netconn.Conn)
	OnWebSocketMessage(frame *wsframe.Frame, client *netconn.Conn)
	OnWebSocketClose()
}

// WebFactory builds one Web sub-plugin instance per web core plugin.
type WebFactory func(reg *Registry) Web

// Registry holds the named factory functions configured per family and is
// what Builder consults to instantiate plugins for a new connection. It
// also serves as the cross-plugin lookup-by-name facility spec.md §4.4
// describes, populated with live instances as a connection's plugins are
// built.
type Registry struct {
	coreFactories  map[string]CoreFactory
	proxyFactories map[string]ProxyFactory
	webFactories   map[string]WebFactory

	cores  map[string]Core
	proxys map[string]Proxy
	webs   map[string]Web
}

// NewRegistry returns an empty registry ready for factory registration.
func NewRegistry() *Registry {
	return &Registry{
		coreFactories:  make(map[string]CoreFactory),
		proxyFactories: make(map[string]ProxyFactory),
		webFactories:   make(map[string]WebFactory),
		cores:          make(map[string]Core),
		proxys:         make(map[string]Proxy),
		webs:           make(map[string]Web),
	}
}

// Scope returns a new Registry sharing the parent's factory maps (settled
// at startup, read-only thereafter, safe to share across goroutines) but
// with its own empty instance maps. The handler calls this once per
// accepted connection so that BuildCores/BuildProxies/BuildWebs — and the
// cross-plugin Lookup* calls a connection's plugins make on each other —
// operate on that connection's own instances instead of racing on a
// single shared map across concurrently handled connections.
func (r *Registry) Scope() *Registry {
	return &Registry{
		coreFactories:  r.coreFactories,
		proxyFactories: r.proxyFactories,
		webFactories:   r.webFactories,
		cores:          make(map[string]Core),
		proxys:         make(map[string]Proxy),
		webs:           make(map[string]Web),
	}
}

func (r *Registry) RegisterCore(name string, f CoreFactory)   { r.coreFactories[name] = f }
func (r *Registry) RegisterProxy(name string, f ProxyFactory) { r.proxyFactories[name] = f }
func (r *Registry) RegisterWeb(name string, f WebFactory)     { r.webFactories[name] = f }

// BuildCores instantiates one Core plugin per name in order, recording
// each under its Name() for later lookup. logger is the connection-scoped
// child logger the handler built for this connection.
func (r *Registry) BuildCores(names []string, client *netconn.Conn, logger *zap.Logger) []Core {
	out := make([]Core, 0, len(names))
	for _, n := range names {
		factory, ok := r.coreFactories[n]
		if !ok {
			continue
		}
		c := factory(client, r, logger)
		r.cores[c.Name()] = c
		out = append(out, c)
	}
	return out
}

// BuildProxies instantiates one Proxy sub-plugin per name in order.
func (r *Registry) BuildProxies(names []string) []Proxy {
	out := make([]Proxy, 0, len(names))
	for _, n := range names {
		factory, ok := r.proxyFactories[n]
		if !ok {
			continue
		}
		p := factory(r)
		r.proxys[p.Name()] = p
		out = append(out, p)
	}
	return out
}

// BuildWebs instantiates one Web sub-plugin per name in order.
func (r *Registry) BuildWebs(names []string) []Web {
	out := make([]Web, 0, len(names))
	for _, n := range names {
		factory, ok := r.webFactories[n]
		if !ok {
			continue
		}
		w := factory(r)
		r.webs[w.Name()] = w
		out = append(out, w)
	}
	return out
}

// LookupCore, LookupProxy, LookupWeb let one plugin find another live
// instance within the same connection by its stable name key.
func (r *Registry) LookupCore(name string) (Core, bool)   { c, ok := r.cores[name]; return c, ok }
func (r *Registry) LookupProxy(name string) (Proxy, bool) { p, ok := r.proxys[name]; return p, ok }
func (r *Registry) LookupWeb(name string) (Web, bool)     { w, ok := r.webs[name]; return w, ok }
