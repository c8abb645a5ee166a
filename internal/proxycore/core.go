package proxycore

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lucidwire/govy/internal/config"
	"github.com/lucidwire/govy/internal/devtools"
	"github.com/lucidwire/govy/internal/httpmsg"
	"github.com/lucidwire/govy/internal/metrics"
	"github.com/lucidwire/govy/internal/netconn"
	"github.com/lucidwire/govy/internal/plugin"
	"github.com/lucidwire/govy/internal/tlsca"
)

// Core is the proxy core plugin: one instance per accepted connection,
// driving the PARSING → CONNECTED → (TUNNEL | INTERCEPTED) → DONE state
// machine of spec.md §4.5.
type Core struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics
	minter  *tlsca.Minter
	bus     *devtools.Bus

	// connID tags every devtools event this instance publishes so a
	// dashboard can correlate request/response/tunnel events belonging to
	// the same accepted connection (spec.md §5's devtools event bus is
	// shared across all connections in the process).
	connID string

	client  *netconn.Conn
	server  *netconn.Conn
	proxies []plugin.Proxy

	state   State
	req     *httpmsg.Message // current client request
	resp    *httpmsg.Message // current upstream response parser (nil in tunnel/intercepted)
	connectHost string
}

// New constructs a Core bound to client, with minter optionally nil when
// TLS interception material is not configured and bus optionally nil when
// devtools is disabled (Publish is a no-op on a nil *devtools.Bus).
func New(cfg *config.Config, logger *zap.Logger, m *metrics.Metrics, minter *tlsca.Minter, bus *devtools.Bus, client *netconn.Conn, proxies []plugin.Proxy) *Core {
	return &Core{
		cfg: cfg, logger: logger, metrics: m, minter: minter, bus: bus,
		connID: uuid.New().String(),
		client: client, proxies: proxies, state: StateParsing,
	}
}

// publish emits a devtools event tagged with this connection's ID, a no-op
// when devtools is disabled.
func (c *Core) publish(kind string, payload any) {
	if c.bus == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	c.bus.Publish(devtools.Event{Timestamp: time.Now(), ConnID: c.connID, Kind: kind, Payload: raw})
}

// Name is the stable lookup key for this plugin family instance.
func (c *Core) Name() string { return "proxycore" }

// State exposes the current state machine position, read by the handler
// and by tests.
func (c *Core) State() State { return c.state }

func (c *Core) GetDescriptors() plugin.Descriptors {
	d := plugin.Descriptors{Readable: []*netconn.Conn{c.client}}
	if c.client.HasPending() {
		d.Writable = append(d.Writable, c.client)
	}
	if c.server != nil {
		d.Readable = append(d.Readable, c.server)
		if c.server.HasPending() {
			d.Writable = append(d.Writable, c.server)
		}
	}
	return d
}

// ReadFromDescriptors handles the server-leg half of relaying: in
// TUNNEL/INTERCEPTED mode bytes are copied verbatim to the client; in
// CONNECTED (plain proxy) mode bytes feed the upstream response parser and
// completed responses are forwarded, supporting pipelined follow-ups
// (spec.md §4.5 "Upstream reads").
func (c *Core) ReadFromDescriptors(ctx context.Context) error {
	if c.server == nil {
		return nil
	}
	buf := make([]byte, c.cfg.ServerRecvBufSize)
	n, err := c.server.Recv(buf)
	if n == 0 {
		return err
	}
	chunk := buf[:n]
	for _, p := range c.proxies {
		chunk = p.HandleUpstreamChunk(chunk)
		if chunk == nil {
			break
		}
	}
	if chunk == nil {
		return nil
	}

	if c.state == StateTunnel || c.state == StateIntercepted {
		return c.client.Queue(chunk)
	}

	if c.resp == nil {
		c.resp = httpmsg.NewResponse()
	}
	if err := c.resp.Feed(chunk); err != nil {
		return err
	}
	if c.resp.Complete() {
		rechunk := c.resp.IsChunkedEncoded()
		out := httpmsg.BuildResponse(c.resp, nil, rechunk, c.cfg.ServerRecvBufSize)
		if err := c.client.Queue(out); err != nil {
			return err
		}
		c.resp = httpmsg.NewResponse() // ready for a pipelined follow-up
	}
	return nil
}

func (c *Core) WriteToDescriptors(ctx context.Context) error {
	if err := c.client.Flush(); err != nil {
		return err
	}
	if c.server != nil {
		return c.server.Flush()
	}
	return nil
}

// OnClientData is consulted before the handler's request parser sees raw
// bytes. In tunnel mode client bytes are relayed straight to the server
// leg and suppressed from parsing; in every other state, intercepted mode
// included, they go on to the request parser unchanged.
func (c *Core) OnClientData(raw []byte) []byte {
	if c.state == StateTunnel {
		if c.server != nil {
			_ = c.server.Queue(raw)
		}
		return nil
	}
	return raw
}

// OnRequestComplete implements spec.md §4.5's transition table.
func (c *Core) OnRequestComplete(ctx context.Context) (plugin.Action, error) {
	if c.req == nil {
		return plugin.ActionTeardown, ErrConnectionUninitialized
	}

	if c.state != StateTunnel && c.state != StateIntercepted && !c.IsProxyRequest() {
		// Origin-form request with no upstream host named: this is the web
		// core plugin's connection, not ours.
		return plugin.ActionContinue, nil
	}

	if err := c.authenticate(); err != nil {
		c.client.Queue(ProxyAuthRequired(c.cfg.Version))
		return plugin.ActionTeardown, err
	}

	for _, p := range c.proxies {
		rewritten := p.BeforeUpstreamConnection(c.req)
		if rewritten == nil {
			return plugin.ActionTeardown, nil
		}
		c.req = rewritten
	}

	if c.req.Method == "CONNECT" {
		return c.handleConnect(ctx)
	}
	return c.handlePlainRequest(ctx)
}

func (c *Core) authenticate() error {
	if c.cfg.AuthCode == "" {
		return nil
	}
	got, ok := c.req.Headers.Get("Proxy-Authorization")
	if !ok || got != c.cfg.AuthCode {
		return ErrProxyAuthFailed
	}
	return nil
}

func (c *Core) handleConnect(ctx context.Context) (plugin.Action, error) {
	if c.req.URL == nil || c.req.URL.Host == "" {
		return plugin.ActionTeardown, ErrProtocolViolation
	}
	host, port := c.req.URL.Host, c.req.URL.Port
	c.connectHost = host

	raw, err := net.Dial("tcp", net.JoinHostPort(host, port))
	if err != nil {
		c.client.Queue(BadGateway(c.cfg.Version))
		return plugin.ActionTeardown, ErrUpstreamConnectFailed
	}
	_ = netconn.Apply(raw, netconn.DefaultTuneConfig())
	c.server = netconn.New(raw, netconn.TagServer)
	c.state = StateConnected
	if c.metrics != nil {
		c.metrics.TunnelsOpened.Inc()
	}
	c.publish("tunnel_opened", map[string]string{"host": host, "port": port})

	if err := c.client.Queue([]byte(TunnelEstablished)); err != nil {
		return plugin.ActionTeardown, err
	}
	if err := c.client.Flush(); err != nil {
		return plugin.ActionTeardown, err
	}

	if c.cfg.TLS.Complete() && c.minter != nil {
		return c.intercept(host)
	}

	c.state = StateTunnel
	return plugin.ActionTunnel, nil
}

// intercept performs the two TLS handshakes of spec.md §4.5 step 3: a
// client-mode handshake to upstream with SNI=host, then a server-mode
// handshake to the browser client using a freshly minted or cached leaf
// for host.
func (c *Core) intercept(host string) (plugin.Action, error) {
	upstreamTLS := tls.Client(c.server.Raw(), tlsca.UpstreamTLSConfig(host))
	if err := upstreamTLS.HandshakeContext(context.Background()); err != nil {
		return plugin.ActionTeardown, err
	}
	c.server.SetRaw(upstreamTLS)

	leaf, err := c.minter.Leaf(host)
	if err != nil {
		return plugin.ActionTeardown, err
	}
	if c.metrics != nil {
		c.metrics.CertsMinted.Inc()
	}

	clientTLS := tls.Server(c.client.Raw(), tlsca.ClientFacingTLSConfig(leaf))
	if err := clientTLS.HandshakeContext(context.Background()); err != nil {
		return plugin.ActionTeardown, err
	}
	c.client.SetRaw(clientTLS)

	c.state = StateIntercepted
	c.req = nil // next bytes off the decrypted stream start a fresh request
	c.publish("tls_intercepted", map[string]string{"host": host})
	return plugin.ActionContinue, nil
}

// handlePlainRequest rewrites headers per spec.md §4.5 step 4 and forwards
// the request to the upstream connection, dialing it first if this is the
// first request on this core instance.
func (c *Core) handlePlainRequest(ctx context.Context) (plugin.Action, error) {
	for _, p := range c.proxies {
		rewritten := p.HandleClientRequest(c.req)
		if rewritten == nil {
			return plugin.ActionContinue, nil
		}
		c.req = rewritten
	}

	if c.server == nil {
		host, port := c.req.URL.Host, c.req.URL.Port
		if port == "" {
			port = "80"
		}
		raw, err := net.Dial("tcp", net.JoinHostPort(host, port))
		if err != nil {
			c.client.Queue(BadGateway(c.cfg.Version))
			return plugin.ActionTeardown, ErrUpstreamConnectFailed
		}
		_ = netconn.Apply(raw, netconn.DefaultTuneConfig())
		c.server = netconn.New(raw, netconn.TagServer)
		c.state = StateConnected
	}

	c.req.Headers.Del("Proxy-Authorization")
	c.req.Headers.Del("Proxy-Connection")
	for _, h := range c.cfg.DisableHeaders {
		c.req.Headers.Del(h)
	}
	c.req.Headers.Set("Via", "1.1 "+c.cfg.Version)

	rechunk := c.req.IsChunkedEncoded()
	out := httpmsg.BuildRequest(c.req, nil, rechunk, c.cfg.ServerRecvBufSize)
	if err := c.server.Queue(out); err != nil {
		return plugin.ActionTeardown, err
	}
	if c.metrics != nil {
		c.metrics.RequestsTotal.WithLabelValues(c.req.Method).Inc()
	}
	c.publish("request_forwarded", map[string]string{
		"method": c.req.Method, "host": c.req.URL.Host, "path": c.req.URL.Path,
	})
	c.req = httpmsg.NewRequest()
	return plugin.ActionContinue, nil
}

// OnResponseChunk runs registered proxy sub-plugins' upstream-chunk hook
// is already applied in ReadFromDescriptors; this hook exists on the Core
// plugin interface for response bytes queued directly to the client
// (e.g. error packets), where no further transform is needed.
func (c *Core) OnResponseChunk(chunk []byte) []byte { return chunk }

func (c *Core) OnClientConnectionClose() {
	for _, p := range c.proxies {
		p.OnUpstreamConnectionClose()
	}
	if c.server != nil {
		tx, rx := c.server.Stats()
		c.logger.Info("proxycore: upstream connection closed", zap.String("host", c.connectHost),
			zap.Uint64("bytes_sent", tx), zap.Uint64("bytes_received", rx))
		c.server.Close()
	}
	c.publish("connection_closed", map[string]string{"host": c.connectHost})
	c.state = StateDone
}

// SetRequest installs the Message the handler's parser just completed;
// called by internal/handler once per completed client request.
func (c *Core) SetRequest(req *httpmsg.Message) { c.req = req }

// IsProxyRequest reports whether the most recently completed request names
// an upstream host, the precondition spec.md §4.6 step 1 uses to decide
// the web core plugin should stay inert.
func (c *Core) IsProxyRequest() bool {
	return c.req != nil && c.req.URL != nil && c.req.URL.Host != "" && strings.ToUpper(c.req.Method) != ""
}
