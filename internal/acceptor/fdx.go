// Package acceptor implements the multi-process listen-socket-sharing and
// accept-dispatch half of spec.md §4.8: the parent binds and listens,
// starts N worker processes by re-executing its own binary, and hands each a duplicate of the listening socket's file
// descriptor over a Unix-domain control socket using SCM_RIGHTS.
package acceptor

import (
	"encoding/binary"
	"net"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Fdx is a minimal single-descriptor-at-a-time file-descriptor exchange
// over a connected *net.UnixConn, grounded in orbstack-swift-nio's
// scon/agent/fdx.go. Unlike that fuller implementation (which pipelines
// many concurrent sends with sequence numbers), govy only ever needs to
// exchange the listening socket once per worker at startup (accepted
// sockets never cross it, threadless mode included) — so Fdx trades the
// pending/queued maps for simple synchronous SendFd/RecvFd calls.
type Fdx struct {
	conn *net.UnixConn
}

// NewFdx wraps an already-connected Unix-domain socket pair endpoint.
func NewFdx(conn *net.UnixConn) *Fdx { return &Fdx{conn: conn} }

// Close closes the underlying control socket.
func (f *Fdx) Close() error { return f.conn.Close() }

// SendFd transmits fd (plus an 8-byte little-endian tag the receiver can
// use to distinguish message types) via SCM_RIGHTS.
func (f *Fdx) SendFd(tag uint64, fd int) error {
	msg := make([]byte, 8)
	binary.LittleEndian.PutUint64(msg, tag)
	oob := unix.UnixRights(fd)

	n, oobn, err := f.conn.WriteMsgUnix(msg, oob, nil)
	if err != nil {
		return errors.Wrap(err, "acceptor: WriteMsgUnix")
	}
	if n != len(msg) || oobn != len(oob) {
		return errors.New("acceptor: short write passing fd")
	}
	return nil
}

// RecvFd blocks for one incoming descriptor, returning its tag and an
// *os.File wrapping the received fd.
func (f *Fdx) RecvFd() (tag uint64, file *os.File, err error) {
	msg := make([]byte, 8)
	oob := make([]byte, unix.CmsgSpace(4))

	n, oobn, _, _, err := f.conn.ReadMsgUnix(msg, oob)
	if err != nil {
		return 0, nil, errors.Wrap(err, "acceptor: ReadMsgUnix")
	}
	if n != len(msg) {
		return 0, nil, errors.New("acceptor: short read receiving fd tag")
	}
	if oobn < unix.CmsgSpace(4) {
		return 0, nil, errors.New("acceptor: short oob read receiving fd")
	}

	scms, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return 0, nil, errors.Wrap(err, "acceptor: ParseSocketControlMessage")
	}
	if len(scms) != 1 {
		return 0, nil, errors.New("acceptor: expected exactly one control message")
	}
	fds, err := unix.ParseUnixRights(&scms[0])
	if err != nil {
		return 0, nil, errors.Wrap(err, "acceptor: ParseUnixRights")
	}
	if len(fds) != 1 {
		return 0, nil, errors.New("acceptor: expected exactly one fd")
	}

	tag = binary.LittleEndian.Uint64(msg)
	return tag, os.NewFile(uintptr(fds[0]), "govy-fdx"), nil
}

// Message tags exchanged over an Fdx channel.
const (
	TagListener uint64 = iota + 1
	TagAcceptedConn
)
