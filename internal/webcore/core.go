// Package webcore implements the web core plugin of spec.md §4.6: local
// HTTP(S)/WebSocket serving for requests that do not name an upstream host,
// dispatched through a two-level route table to Web sub-plugins, with a
// built-in static file server and devtools event-stream route.
package webcore

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/lucidwire/govy/internal/config"
	"github.com/lucidwire/govy/internal/devtools"
	"github.com/lucidwire/govy/internal/httpmsg"
	"github.com/lucidwire/govy/internal/metrics"
	"github.com/lucidwire/govy/internal/netconn"
	"github.com/lucidwire/govy/internal/plugin"
	"github.com/lucidwire/govy/internal/proxycore"
	"github.com/lucidwire/govy/internal/wsframe"
)

// Core is the web core plugin: one instance per accepted connection,
// inert for any request that names an upstream host (the proxy core
// plugin's territory) and otherwise resolving the request through router.
type Core struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics
	bus     *devtools.Bus
	router  *Router

	client *netconn.Conn
	req    *httpmsg.Message

	isWebSocket bool
	wsPlugin    plugin.Web
	wsFrameBuf  []byte

	devtoolsMode bool
	devtoolsSub  <-chan devtools.Event
}

// New constructs a web core plugin bound to client. bus may be nil when
// devtools is disabled.
func New(cfg *config.Config, logger *zap.Logger, m *metrics.Metrics, bus *devtools.Bus, router *Router, client *netconn.Conn) *Core {
	return &Core{cfg: cfg, logger: logger, metrics: m, bus: bus, router: router, client: client}
}

func (c *Core) Name() string { return "webcore" }

func (c *Core) GetDescriptors() plugin.Descriptors {
	d := plugin.Descriptors{Readable: []*netconn.Conn{c.client}}
	if c.client.HasPending() {
		d.Writable = append(d.Writable, c.client)
	}
	return d
}

func (c *Core) ReadFromDescriptors(ctx context.Context) error { return nil }

// WriteToDescriptors flushes pending client bytes and, in devtools mode,
// drains any queued bus events into outbound text frames first: this is
// the only point in the poll cycle the web core plugin runs without being
// driven by fresh client bytes, so it doubles as the devtools push tick.
func (c *Core) WriteToDescriptors(ctx context.Context) error {
	if c.devtoolsMode && c.devtoolsSub != nil {
		for {
			select {
			case ev := <-c.devtoolsSub:
				payload, err := json.Marshal(ev)
				if err != nil {
					continue
				}
				if err := c.client.Queue(wsframe.WriteServerText(payload)); err != nil {
					return err
				}
			default:
				goto flush
			}
		}
	}
flush:
	return c.client.Flush()
}

// OnClientData feeds raw bytes either into the WebSocket frame decoder
// (post-upgrade) or passes them through unchanged for the handler's HTTP
// request parser.
func (c *Core) OnClientData(raw []byte) []byte {
	if !c.isWebSocket {
		return raw
	}
	c.wsFrameBuf = append(c.wsFrameBuf, raw...)
	for {
		frame, n, err := wsframe.Parse(c.wsFrameBuf)
		if err != nil || frame == nil {
			break
		}
		c.wsFrameBuf = c.wsFrameBuf[n:]
		if frame.Opcode == wsframe.OpcodeClose {
			c.client.Queue(wsframe.WriteServerClose(wsframe.CloseNormalClosure, ""))
			break
		}
		if frame.Opcode == wsframe.OpcodePing {
			c.client.Queue(wsframe.WriteServerPong(frame.Payload))
			continue
		}
		if c.wsPlugin != nil {
			c.wsPlugin.OnWebSocketMessage(frame, c.client)
		}
	}
	return nil
}

// SetRequest installs the Message the handler's parser just completed.
func (c *Core) SetRequest(req *httpmsg.Message) { c.req = req }

// IsLocalRequest reports whether req names no upstream host, the
// precondition under which the web core plugin (rather than the proxy
// core plugin) should act on it.
func IsLocalRequest(req *httpmsg.Message) bool {
	return req == nil || req.URL == nil || req.URL.Host == ""
}

// OnRequestComplete dispatches per spec.md §4.6: devtools route, then
// WebSocket upgrade, then a registered HTTP/HTTPS route, then the static
// file server, then 404.
func (c *Core) OnRequestComplete(ctx context.Context) (plugin.Action, error) {
	if c.req == nil {
		return plugin.ActionTeardown, proxycore.ErrConnectionUninitialized
	}
	if !c.isWebSocket && !IsLocalRequest(c.req) {
		// Absolute-form request naming an upstream host: the proxy core
		// plugin's connection, not ours.
		return plugin.ActionContinue, nil
	}
	path := ""
	if c.req.URL != nil {
		path = c.req.URL.Path
	}

	if c.cfg.EnableDevtools && path == c.cfg.DevtoolsWSPath {
		return c.handleDevtoolsUpgrade()
	}

	if wsframe.IsUpgradeRequest(c.req.Method, c.req.Headers) {
		return c.handleWebSocketUpgrade(path)
	}

	protocol := "HTTP"
	if c.cfg.TLS.ToClientEnabled() {
		protocol = "HTTPS"
	}
	if w, ok := c.router.Resolve(protocol, path); ok {
		w.HandleRequest(c.req, c.client)
		c.req = httpmsg.NewRequest()
		return plugin.ActionContinue, nil
	}

	if c.cfg.EnableStaticServer {
		if err := serveStatic(c.cfg, path, c.client); err != nil {
			return plugin.ActionTeardown, err
		}
		return plugin.ActionTeardown, nil
	}

	c.client.Queue(proxycore.NotFound(c.cfg.Version))
	return plugin.ActionTeardown, nil
}

func (c *Core) handleDevtoolsUpgrade() (plugin.Action, error) {
	if !wsframe.IsUpgradeRequest(c.req.Method, c.req.Headers) {
		c.client.Queue(proxycore.NotImplemented(c.cfg.Version))
		return plugin.ActionTeardown, nil
	}
	key, _ := c.req.Headers.Get("Sec-WebSocket-Key")
	if err := c.client.Queue(wsframe.BuildHandshakeResponse(key, "")); err != nil {
		return plugin.ActionTeardown, err
	}
	c.isWebSocket = true
	c.devtoolsMode = true
	if c.bus != nil {
		c.devtoolsSub = c.bus.Subscribe()
	}
	if c.metrics != nil {
		c.metrics.WebSocketUpgrades.Inc()
	}
	return plugin.ActionContinue, nil
}

func (c *Core) handleWebSocketUpgrade(path string) (plugin.Action, error) {
	w, ok := c.router.Resolve("WebSocket", path)
	if !ok {
		c.client.Queue(proxycore.NotFound(c.cfg.Version))
		return plugin.ActionTeardown, nil
	}
	key, _ := c.req.Headers.Get("Sec-WebSocket-Key")
	if key == "" {
		c.client.Queue(proxycore.NotImplemented(c.cfg.Version))
		return plugin.ActionTeardown, nil
	}
	if err := c.client.Queue(wsframe.BuildHandshakeResponse(key, "")); err != nil {
		return plugin.ActionTeardown, err
	}
	c.isWebSocket = true
	c.wsPlugin = w
	if c.metrics != nil {
		c.metrics.WebSocketUpgrades.Inc()
	}
	w.OnWebSocketOpen(c.client)
	return plugin.ActionContinue, nil
}

// OnResponseChunk is a no-op passthrough: the web core plugin builds its
// own complete responses rather than relaying upstream chunks.
func (c *Core) OnResponseChunk(chunk []byte) []byte { return chunk }

func (c *Core) OnClientConnectionClose() {
	if c.isWebSocket && c.wsPlugin != nil {
		c.wsPlugin.OnWebSocketClose()
	}
}
