//go:build darwin
// +build darwin

package netconn

import (
	"syscall"
)

const (
	tcpKeepAliveDarwin = 0x10
	soNoSigpipe        = 0x1022
)

// applyPlatformOptions applies Darwin-specific socket options. Called from
// Apply() in tuning.go.
func applyPlatformOptions(fd int, cfg *TuneConfig) {
	// Darwin raises SIGPIPE on write to a closed socket instead of just
	// returning EPIPE; disable it so a broken upstream pipe surfaces as a
	// normal write error the proxy state machine can tear down on.
	_ = syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, soNoSigpipe, 1)
	if cfg.KeepAlive {
		_ = syscall.SetsockoptInt(fd, syscall.IPPROTO_TCP, tcpKeepAliveDarwin, 60)
	}
}

// applyListenerOptions is a no-op on Darwin: there is no TCP_DEFER_ACCEPT
// equivalent, and TCP_FASTOPEN requires a different accept-queue handshake
// than the deferred variant used on Linux.
func applyListenerOptions(fd int, cfg *TuneConfig) error { return nil }

// SetQuickAck is a no-op on Darwin; there is no TCP_QUICKACK equivalent.
func SetQuickAck(fd int) error { return nil }
