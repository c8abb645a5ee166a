// Package netconn provides the buffered TCP connection abstraction shared
// by both legs of the proxy, plus the cross-platform socket tuning applied
// right after accept()/dial(). Platform-specific options live in
// tuning_linux.go / tuning_darwin.go / tuning_other.go.
package netconn

import (
	"net"
	"syscall"
)

// TuneConfig carries the socket options applied to freshly accepted or
// dialed connections. Zero values mean "leave the system default".
type TuneConfig struct {
	NoDelay     bool
	KeepAlive   bool
	QuickAck    bool
	DeferAccept bool
	RecvBuffer  int
	SendBuffer  int
}

// DefaultTuneConfig mirrors what a forward proxy wants on every leg: low
// latency (no Nagle) plus keepalive so half-open peers eventually get reaped.
func DefaultTuneConfig() *TuneConfig {
	return &TuneConfig{
		NoDelay:   true,
		KeepAlive: true,
		QuickAck:  true,
	}
}

// Apply tunes a connection's socket options. conn must wrap a *net.TCPConn;
// anything else (e.g. a plain io pipe used in tests) is a silent no-op.
func Apply(conn net.Conn, cfg *TuneConfig) error {
	if cfg == nil {
		cfg = DefaultTuneConfig()
	}
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	rawConn, err := tcpConn.SyscallConn()
	if err != nil {
		return err
	}

	var lastErr error
	err = rawConn.Control(func(fd uintptr) {
		if cfg.NoDelay {
			if e := syscall.SetsockoptInt(int(fd), syscall.IPPROTO_TCP, syscall.TCP_NODELAY, 1); e != nil {
				lastErr = e
				return
			}
		}
		if cfg.KeepAlive {
			_ = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_KEEPALIVE, 1)
		}
		if cfg.RecvBuffer > 0 {
			_ = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_RCVBUF, cfg.RecvBuffer)
		}
		if cfg.SendBuffer > 0 {
			_ = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_SNDBUF, cfg.SendBuffer)
		}
		applyPlatformOptions(int(fd), cfg)
	})
	if err != nil {
		return err
	}
	return lastErr
}

// ApplyListener tunes options that must be set on the listening socket
// itself, after the acceptor pool binds it (SO_REUSEADDR is set at bind
// time, see acceptor.NewPool).
func ApplyListener(listener net.Listener, cfg *TuneConfig) error {
	if cfg == nil {
		cfg = DefaultTuneConfig()
	}
	tcpListener, ok := listener.(*net.TCPListener)
	if !ok {
		return nil
	}
	file, err := tcpListener.File()
	if err != nil {
		return err
	}
	defer file.Close()
	return applyListenerOptions(int(file.Fd()), cfg)
}
