package acceptor

import (
	"os"
	"strconv"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// socketpair creates a connected pair of Unix-domain sockets for use as a
// control channel between the parent and a soon-to-be-exec'd worker
// process, the duplex IPC channel spec.md §4.8 calls for.
func socketpair() (parent, child *os.File, err error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, nil, errors.Wrap(err, "acceptor: socketpair")
	}
	return os.NewFile(uintptr(fds[0]), "govy-control-parent"),
		os.NewFile(uintptr(fds[1]), "govy-control-child"),
		nil
}

func itoa(n int) string { return strconv.Itoa(n) }
