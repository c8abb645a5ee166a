package acceptor

import (
	"context"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/lucidwire/govy/internal/config"
)

// HandlerFactory builds a per-connection handler for a freshly accepted
// socket; acceptor stays agnostic of internal/handler to avoid an import
// cycle (handler depends on plugin/proxycore/webcore, none of which need
// to know about process topology).
type HandlerFactory func(conn net.Conn, addr net.Addr)

// Worker owns one reconstructed listening socket and either spawns a
// thread (goroutine) per accepted connection or hands the connection off
// to a cooperative worker running in the same process over a Go channel,
// per spec.md §4.8 "Worker (acceptor)".
type Worker struct {
	cfg     *config.Config
	logger  *zap.Logger
	ln      *net.TCPListener
	control *Fdx

	acceptMu sync.Mutex // serializes accept() to avoid the thundering herd

	handlerFactory HandlerFactory
	connStepFactory func(conn *net.TCPConn) ConnStep
	cooperative    *CooperativeWorker
}

// NewWorker constructs a Worker around an already-reconstructed listener.
func NewWorker(cfg *config.Config, logger *zap.Logger, ln *net.TCPListener, control *Fdx) *Worker {
	return &Worker{cfg: cfg, logger: logger, ln: ln, control: control}
}

// SetHandlerFactory wires the callback used in threaded mode to drive an
// accepted connection; threadless mode instead hands the fd to a
// CooperativeWorker which owns its own factory.
func (w *Worker) SetHandlerFactory(f HandlerFactory) { w.handlerFactory = f }

// SetConnStepFactory wires the callback threadless mode uses to turn a
// freshly accepted connection into a ConnStep the cooperative worker can
// drive; unused in threaded mode.
func (w *Worker) SetConnStepFactory(f func(conn *net.TCPConn) ConnStep) { w.connStepFactory = f }

// Run accepts connections until ctx is cancelled. In threaded mode each
// accepted connection gets its own goroutine running handlerFactory; in
// threadless mode the accepted connection is submitted to a
// CooperativeWorker in this same process over a Go channel; no descriptor
// passing is involved. Cancelling ctx closes the listener so a blocked
// Accept returns.
func (w *Worker) Run(ctx context.Context) error {
	if w.cfg.Threadless {
		w.cooperative = NewCooperativeWorker(w.cfg, w.logger)
		w.cooperative.NewHandler = w.connStepFactory
		go w.cooperative.Run(ctx)
	}

	go func() {
		<-ctx.Done()
		w.ln.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		conn, err := w.acceptOne()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Warn("acceptor: accept failed", zap.Error(err))
			continue
		}

		if w.cfg.Threadless {
			w.dispatchToCooperative(conn)
			continue
		}
		go w.handlerFactory(conn, conn.RemoteAddr())
	}
}

// acceptOne holds a per-process mutex around Accept. The lock does not
// reach across processes: every worker process accepts on its own copy of
// the shared listening socket, and accept() calls in different workers are
// not serialized against each other.
func (w *Worker) acceptOne() (net.Conn, error) {
	w.acceptMu.Lock()
	defer w.acceptMu.Unlock()
	return w.ln.Accept()
}

// dispatchToCooperative passes the accepted connection to the cooperative
// worker sibling over an in-process channel (this worker and its
// cooperative sibling share one OS process in the Go port — see
// DESIGN.md's note on collapsing spec.md's two-process worker/cooperative
// split); the cooperative worker then owns the connection.
func (w *Worker) dispatchToCooperative(conn net.Conn) {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		conn.Close()
		return
	}
	w.cooperative.Submit(tcpConn)
}
