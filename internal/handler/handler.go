// Package handler implements the per-connection event loop of spec.md
// §4.7: let each core plugin flush and read its own connections, read from
// the client, feed a shared request parser, and dispatch completed
// requests to every core plugin — once per Step. No readiness set is
// built: plugins' GetDescriptors are not consulted, and every Step calls
// each plugin's WriteToDescriptors/ReadFromDescriptors unconditionally.
// The same type runs under a blocking per-connection goroutine
// (threaded workers) or under the cooperative worker's 1s ticker
// (threadless mode, see internal/acceptor.ConnStep).
package handler

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lucidwire/govy/internal/config"
	"github.com/lucidwire/govy/internal/httpmsg"
	"github.com/lucidwire/govy/internal/netconn"
	"github.com/lucidwire/govy/internal/plugin"
)

// requestReceiver is implemented by every core plugin that wants the
// handler's shared request parser installed before OnRequestComplete runs.
// Kept out of plugin.Core itself so that interface stays minimal for
// plugins with no interest in the parsed request.
type requestReceiver interface {
	SetRequest(*httpmsg.Message)
}

// Handler drives one accepted connection end to end. It satisfies
// acceptor.ConnStep so the cooperative worker can step it directly.
type Handler struct {
	id     string
	cfg    *config.Config
	logger *zap.Logger

	client *netconn.Conn
	cores  []plugin.Core

	req          *httpmsg.Message
	lastActivity time.Time
	done         bool
}

// New builds a handler for an already-accepted connection, wrapping raw as
// the client leg and instantiating cores from reg per cfg.Plugins.Core.
// Each handler gets its own ID (matching packetd's pubsub queue IDs,
// internal/pubsub/pubsub.go's uuid.New().String()) and every log line it
// emits, directly or via a core plugin, is scoped to that ID so operators
// can grep one connection's activity out of a busy worker's log stream.
func New(cfg *config.Config, logger *zap.Logger, raw net.Conn, reg *plugin.Registry) *Handler {
	id := uuid.New().String()
	connLogger := logger.With(zap.String("conn", id))
	if err := netconn.Apply(raw, netconn.DefaultTuneConfig()); err != nil {
		connLogger.Debug("handler: socket tuning failed", zap.Error(err))
	}
	client := netconn.New(raw, netconn.TagClient)
	conn := reg.Scope()
	cores := conn.BuildCores(cfg.Plugins.Core, client, connLogger)
	return &Handler{
		id: id, cfg: cfg, logger: connLogger, client: client, cores: cores,
		req: httpmsg.NewRequest(), lastActivity: time.Now(),
	}
}

// ID is this handler's connection ID, used in logging and by tests.
func (h *Handler) ID() string { return h.id }

// Step runs one iteration: flush pending output, pull server-leg bytes via
// each plugin's ReadFromDescriptors, attempt one client read bounded by
// ctx's deadline, feed the shared parser, and dispatch a completed request.
// It returns done=true once the connection has been torn down.
func (h *Handler) Step(ctx context.Context) (bool, error) {
	if h.done {
		return true, nil
	}

	for _, c := range h.cores {
		if err := c.WriteToDescriptors(ctx); err != nil {
			h.teardown()
			return true, err
		}
		if err := c.ReadFromDescriptors(ctx); err != nil {
			h.teardown()
			return true, err
		}
	}

	if dl, ok := ctx.Deadline(); ok {
		_ = h.client.Raw().SetReadDeadline(dl)
	}
	buf := make([]byte, h.cfg.ClientRecvBufSize)
	n, err := h.client.Recv(buf)
	if n > 0 {
		h.lastActivity = time.Now()
		if ferr := h.onClientBytes(ctx, buf[:n]); ferr != nil {
			h.teardown()
			return true, ferr
		}
	}
	if err != nil {
		switch {
		case isTimeout(err):
			// No data ready this tick; not fatal.
		case errors.Is(err, io.EOF), errors.Is(err, netconn.ErrClosed):
			h.teardown()
			return true, nil
		default:
			h.teardown()
			return true, err
		}
	}

	if time.Since(h.lastActivity) > h.cfg.Timeout {
		h.teardown()
		return true, nil
	}
	return false, nil
}

func (h *Handler) onClientBytes(ctx context.Context, raw []byte) error {
	for _, c := range h.cores {
		raw = c.OnClientData(raw)
		if raw == nil {
			return nil
		}
	}

	if h.req == nil {
		h.req = httpmsg.NewRequest()
	}
	if err := h.req.Feed(raw); err != nil {
		return err
	}
	if !h.req.Complete() {
		return nil
	}

	for _, c := range h.cores {
		if rr, ok := c.(requestReceiver); ok {
			rr.SetRequest(h.req)
		}
	}
	for _, c := range h.cores {
		action, err := c.OnRequestComplete(ctx)
		if err != nil {
			return err
		}
		if action == plugin.ActionTeardown {
			h.teardown()
			return nil
		}
	}
	h.req = httpmsg.NewRequest()
	return nil
}

// Close implements acceptor.ConnStep; Step already tears down on EOF/error,
// so Close only needs to cover forced removal (timeout at the worker
// level) without double-closing.
func (h *Handler) Close() { h.teardown() }

func (h *Handler) teardown() {
	if h.done {
		return
	}
	h.done = true
	for _, c := range h.cores {
		c.OnClientConnectionClose()
	}
	_ = h.client.ShutdownWrite()
	_ = h.client.Close()
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
