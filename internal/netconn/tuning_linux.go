//go:build linux
// +build linux

package netconn

import (
	"syscall"
)

// Linux-specific socket option numbers not always exposed by the syscall
// package on older Go toolchains.
const (
	tcpQuickAck    = 12
	tcpDeferAccept = 9
	tcpFastOpen    = 23
	tcpUserTimeout = 18
	tcpKeepIdle    = 4
	tcpKeepIntvl   = 5
	tcpKeepCnt     = 6
)

// applyPlatformOptions applies Linux-specific socket options. Called from
// Apply() in tuning.go.
func applyPlatformOptions(fd int, cfg *TuneConfig) {
	if cfg.QuickAck {
		// Cleared by the kernel after each ACK; nothing re-arms it after
		// later reads (SetQuickAck does that, but has no caller).
		_ = syscall.SetsockoptInt(fd, syscall.IPPROTO_TCP, tcpQuickAck, 1)
	}
	_ = syscall.SetsockoptInt(fd, syscall.IPPROTO_TCP, tcpUserTimeout, 10000)
	if cfg.KeepAlive {
		_ = syscall.SetsockoptInt(fd, syscall.IPPROTO_TCP, tcpKeepIdle, 60)
		_ = syscall.SetsockoptInt(fd, syscall.IPPROTO_TCP, tcpKeepIntvl, 10)
		_ = syscall.SetsockoptInt(fd, syscall.IPPROTO_TCP, tcpKeepCnt, 3)
	}
}

// applyListenerOptions applies Linux-specific listener options. Called from
// ApplyListener() in tuning.go.
func applyListenerOptions(fd int, cfg *TuneConfig) error {
	var lastErr error
	if cfg.DeferAccept {
		if err := syscall.SetsockoptInt(fd, syscall.IPPROTO_TCP, tcpDeferAccept, 5); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// SetQuickAck re-arms TCP_QUICKACK; the option is cleared by the kernel
// after every ACK, so callers that want persistent quick-ack behavior must
// call this again after each read.
func SetQuickAck(fd int) error {
	return syscall.SetsockoptInt(fd, syscall.IPPROTO_TCP, tcpQuickAck, 1)
}
