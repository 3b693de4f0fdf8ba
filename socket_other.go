//go:build !linux

package bluetooth

import (
	"errors"
	"net"
	"os"
)

var errSocketPairUnsupported = errors.New("bluetooth: IO mode requires Linux")

func newSocketPair() (*net.UnixConn, *os.File, error) {
	return nil, nil, errSocketPairUnsupported
}

func releaseAfterReply(f *os.File) {
	f.Close()
}
