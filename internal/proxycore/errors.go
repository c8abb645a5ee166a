package proxycore

import "errors"

// Error kinds from spec.md §7, modeled as sentinel values rather than a
// type hierarchy: the propagation policy only ever branches on kind, never
// needs a payload beyond what's already on the Message/response.
var (
	ErrProtocolViolation    = errors.New("proxycore: protocol violation")
	ErrRequestRejected      = errors.New("proxycore: request rejected by plugin")
	ErrUpstreamConnectFailed = errors.New("proxycore: upstream connect failed")
	ErrProxyAuthFailed      = errors.New("proxycore: proxy auth failed")
	ErrConnectionUninitialized = errors.New("proxycore: connection uninitialized")
	ErrPeerClosed           = errors.New("proxycore: peer closed")
)
