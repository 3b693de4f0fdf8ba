//go:build linux

package bluetooth

import (
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// fdReleaseDelay is how long the daemon-facing end of a socket pair is kept
// open after being handed to the bus. The reply carrying it is only written
// once the method call returns.
var fdReleaseDelay = time.Second

// newSocketPair creates a connected SOCK_SEQPACKET pair. The local end is
// used by this process, the remote end is passed to bluetoothd.
func newSocketPair() (*net.UnixConn, *os.File, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, nil, os.NewSyscallError("socketpair", err)
	}
	localFile := os.NewFile(uintptr(fds[0]), "gatt-local")
	remote := os.NewFile(uintptr(fds[1]), "gatt-remote")

	// FileConn duplicates the descriptor.
	conn, err := net.FileConn(localFile)
	localFile.Close()
	if err != nil {
		remote.Close()
		return nil, nil, err
	}
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		conn.Close()
		remote.Close()
		return nil, nil, fmt.Errorf("bluetooth: unexpected socket type %T", conn)
	}
	return unixConn, remote, nil
}

// releaseAfterReply closes f once the reply referencing it has been sent.
func releaseAfterReply(f *os.File) {
	time.AfterFunc(fdReleaseDelay, func() {
		f.Close()
	})
}
