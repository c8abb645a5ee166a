package acceptor

import (
	"context"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lucidwire/govy/internal/config"
)

// ConnStep is implemented by whatever owns a single accepted connection's
// state (internal/handler.Handler); the cooperative worker only needs to
// drive one step and ask whether the connection is done.
type ConnStep interface {
	// Step runs one bounded unit of work (spec.md §4.7's per-iteration
	// handler loop) under ctx's deadline. A returned error or true done
	// means the connection should be removed and torn down.
	Step(ctx context.Context) (done bool, err error)
	Close()
}

// CooperativeWorker multiplexes many connections on a single goroutine's
// poll loop without per-connection OS threads (spec.md §4.8 "Cooperative
// worker", §5 Tier 2). Submit enqueues a freshly accepted *net.TCPConn;
// NewHandler turns it into a ConnStep.
type CooperativeWorker struct {
	cfg    *config.Config
	logger *zap.Logger

	incoming chan *net.TCPConn

	NewHandler func(conn *net.TCPConn) ConnStep

	mu       sync.Mutex
	handlers map[*net.TCPConn]ConnStep
}

// NewCooperativeWorker constructs an idle cooperative worker; call Run to
// start its poll loop and Submit to hand it connections.
func NewCooperativeWorker(cfg *config.Config, logger *zap.Logger) *CooperativeWorker {
	return &CooperativeWorker{
		cfg:      cfg,
		logger:   logger,
		incoming: make(chan *net.TCPConn, 128),
		handlers: make(map[*net.TCPConn]ConnStep),
	}
}

// Submit hands a freshly accepted connection to the cooperative worker,
// the in-process equivalent of spec.md's "pass the accepted FD ... to the
// cooperative worker" handoff (see worker.go's dispatchToCooperative).
func (c *CooperativeWorker) Submit(conn *net.TCPConn) {
	c.incoming <- conn
}

// Run is the cooperative worker's event loop: newly submitted connections
// are added as they arrive, and each tick steps every live handler with a
// deadline of cfg.Timeout, removing any that finish or fail (spec.md §4.8, §5
// "never blocks ... for more than the configured timeout").
func (c *CooperativeWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.closeAll()
			return
		case conn := <-c.incoming:
			c.addConn(conn)
		case <-ticker.C:
			c.stepAll(ctx)
		}
	}
}

func (c *CooperativeWorker) addConn(conn *net.TCPConn) {
	if c.NewHandler == nil {
		conn.Close()
		return
	}
	c.mu.Lock()
	c.handlers[conn] = c.NewHandler(conn)
	c.mu.Unlock()
}

func (c *CooperativeWorker) stepAll(ctx context.Context) {
	c.mu.Lock()
	snapshot := make(map[*net.TCPConn]ConnStep, len(c.handlers))
	for k, v := range c.handlers {
		snapshot[k] = v
	}
	c.mu.Unlock()

	for conn, h := range snapshot {
		stepCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		done, err := h.Step(stepCtx)
		cancel()

		if done || err != nil {
			if err != nil {
				c.logger.Debug("cooperative worker: handler step failed", zap.Error(err))
			}
			h.Close()
			c.mu.Lock()
			delete(c.handlers, conn)
			c.mu.Unlock()
		}
	}
}

func (c *CooperativeWorker) closeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for conn, h := range c.handlers {
		h.Close()
		delete(c.handlers, conn)
	}
}

// Len reports the number of connections currently owned, used by tests and
// metrics to confirm torn-down connections free their slot (spec.md §8
// "leaves the worker able to accept a new one").
func (c *CooperativeWorker) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers)
}
