package acceptor

import (
	"context"
	"net"
	"os"
	"os/exec"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/lucidwire/govy/internal/config"
	"github.com/lucidwire/govy/internal/netconn"
)

// controlSocketFd is the inherited-at-exec file descriptor number every worker
// process's control socket arrives on (fd 0, 1, 2 are stdio; ExtraFiles
// start at 3).
const controlSocketFd = 3

// Pool is the parent process: it binds the single listening socket, then
// re-execs itself N times as worker processes, handing each a duplicate
// listening-socket descriptor over a dedicated control socket (spec.md
// §4.8 "Parent"). Go has no fork(); re-exec with an inherited ExtraFiles
// socketpair end plays the role spec.md's fork does, and the listening
// socket itself crosses process boundaries via Fdx/SCM_RIGHTS exactly as
// spec.md requires, not merely via ExtraFiles inheritance.
type Pool struct {
	cfg      *config.Config
	logger   *zap.Logger
	listener *net.TCPListener

	mu      sync.Mutex
	workers []*workerHandle
}

type workerHandle struct {
	cmd     *exec.Cmd
	control *Fdx
}

// NewPool binds the configured listen address with SO_REUSEADDR (the Go
// net package sets this by default for TCP listeners). cfg.Backlog is not
// applied: the listen backlog is the Go runtime's default (the kernel's
// somaxconn on Linux).
func NewPool(cfg *config.Config, logger *zap.Logger) (*Pool, error) {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(context.Background(), "tcp", net.JoinHostPort(cfg.Hostname, itoa(cfg.Port)))
	if err != nil {
		return nil, errors.Wrap(err, "acceptor: binding listener")
	}
	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		ln.Close()
		return nil, errors.New("acceptor: expected a TCP listener")
	}
	if err := netconn.ApplyListener(tcpLn, netconn.DefaultTuneConfig()); err != nil {
		logger.Debug("acceptor: listener tuning failed", zap.Error(err))
	}
	return &Pool{cfg: cfg, logger: logger, listener: tcpLn}, nil
}

// Spawn re-execs the current binary cfg.NumWorkers times with the
// GOVY_WORKER_MODE environment variable set, each instance receiving the
// listening socket over its own control socket.
func (p *Pool) Spawn(selfPath string, extraArgs []string) error {
	listenerFile, err := p.listener.File()
	if err != nil {
		return errors.Wrap(err, "acceptor: duplicating listener fd")
	}
	defer listenerFile.Close()

	for i := 0; i < p.cfg.NumWorkers; i++ {
		parentSock, childSock, err := socketpair()
		if err != nil {
			return errors.Wrap(err, "acceptor: creating control socketpair")
		}

		cmd := exec.Command(selfPath, extraArgs...)
		cmd.Env = append(os.Environ(), "GOVY_WORKER_MODE=1")
		cmd.ExtraFiles = []*os.File{childSock}
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Start(); err != nil {
			childSock.Close()
			parentSock.Close()
			return errors.Wrapf(err, "acceptor: starting worker %d", i)
		}
		childSock.Close()

		unixConn, err := net.FileConn(parentSock)
		parentSock.Close()
		if err != nil {
			return errors.Wrap(err, "acceptor: wrapping control socket")
		}
		control := NewFdx(unixConn.(*net.UnixConn))

		if err := control.SendFd(TagListener, int(listenerFile.Fd())); err != nil {
			return errors.Wrapf(err, "acceptor: sending listener to worker %d", i)
		}

		p.mu.Lock()
		p.workers = append(p.workers, &workerHandle{cmd: cmd, control: control})
		p.mu.Unlock()

		p.logger.Info("acceptor: worker started", zap.Int("index", i), zap.Int("pid", cmd.Process.Pid))
	}
	return nil
}

// Wait blocks until every worker process has exited, aggregating failures
// from all of them rather than reporting only the first, since a shutdown
// that kills several workers at once (e.g. a bad config pushed mid-run)
// should surface every worker's exit error, not just whichever happened to
// be waited on first.
func (p *Pool) Wait() error {
	p.mu.Lock()
	workers := append([]*workerHandle(nil), p.workers...)
	p.mu.Unlock()

	var errs error
	for _, w := range workers {
		if err := w.cmd.Wait(); err != nil {
			errs = multierror.Append(errs, errors.Wrapf(err, "worker pid %d", w.cmd.Process.Pid))
		}
	}
	return errs
}

// Shutdown signals every worker to stop accepting new connections by
// closing its control socket and sending it an interrupt; per spec.md §5
// "Cancellation/timeouts", acceptors stop accepting and workers finish
// their current step before exiting.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, w := range p.workers {
		_ = w.control.Close()
		if w.cmd.Process != nil {
			_ = w.cmd.Process.Signal(os.Interrupt)
		}
	}
}

// RunAsWorker is the entry point a re-exec'd process calls when
// GOVY_WORKER_MODE=1 is set: it receives the listening socket over the
// inherited control-socket fd and constructs a Worker.
func RunAsWorker(cfg *config.Config, logger *zap.Logger) (*Worker, error) {
	controlFile := os.NewFile(uintptr(controlSocketFd), "govy-control")
	controlConn, err := net.FileConn(controlFile)
	if err != nil {
		return nil, errors.Wrap(err, "acceptor: wrapping inherited control socket")
	}
	control := NewFdx(controlConn.(*net.UnixConn))

	tag, file, err := control.RecvFd()
	if err != nil {
		return nil, errors.Wrap(err, "acceptor: receiving listener fd")
	}
	if tag != TagListener {
		return nil, errors.Errorf("acceptor: expected listener tag, got %d", tag)
	}

	ln, err := net.FileListener(file)
	if err != nil {
		return nil, errors.Wrap(err, "acceptor: reconstructing listener")
	}
	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		return nil, errors.New("acceptor: inherited listener is not TCP")
	}

	return NewWorker(cfg, logger, tcpLn, control), nil
}
