package bluetooth

import (
	"errors"
	"net"
	"os"
	"sync"
	"time"
)

var errRequestAnswered = errors.New("bluetooth: write request already answered")

// acquireReply is the answer to an AcquireWrite call.
type acquireReply struct {
	remote *os.File
	reject Reject
}

// WriteIORequest is a request of a remote device to start writing to a
// characteristic through a stream. Exactly one of Accept or Reject should be
// called. bluetoothd waits for the answer.
type WriteIORequest struct {
	mtu  uint16
	link LinkType

	reply chan acquireReply
	once  sync.Once
}

func newWriteIORequest(req acquireRequest) *WriteIORequest {
	return &WriteIORequest{
		mtu:   req.MTU,
		link:  req.Link,
		reply: make(chan acquireReply, 1),
	}
}

// MTU returns the maximum size of a single write.
func (r *WriteIORequest) MTU() uint16 {
	return r.mtu
}

// Link returns the transport the request arrived on.
func (r *WriteIORequest) Link() LinkType {
	return r.link
}

// Accept creates the stream and hands its other end to bluetoothd.
func (r *WriteIORequest) Accept() (*CharacteristicReader, error) {
	local, remote, err := newSocketPair()
	if err != nil {
		r.Reject(RejectFailed)
		return nil, err
	}
	answered := false
	r.once.Do(func() {
		r.reply <- acquireReply{remote: remote}
		answered = true
	})
	if !answered {
		local.Close()
		remote.Close()
		return nil, errRequestAnswered
	}
	return &CharacteristicReader{conn: local, mtu: r.mtu, link: r.link}, nil
}

// Reject refuses the request with the given reason.
func (r *WriteIORequest) Reject(reason Reject) {
	r.once.Do(func() {
		r.reply <- acquireReply{reject: reason}
	})
}

// abandon answers the request on behalf of an unpublished characteristic. It
// returns false if the consumer answered first.
func (r *WriteIORequest) abandon() bool {
	abandoned := false
	r.once.Do(func() {
		abandoned = true
	})
	return abandoned
}

// CharacteristicReader receives values written by a remote device to a
// characteristic using WriteIO. Every Read returns one written value.
type CharacteristicReader struct {
	conn *net.UnixConn
	mtu  uint16
	link LinkType
}

// MTU returns the maximum size of a single value.
func (r *CharacteristicReader) MTU() uint16 {
	return r.mtu
}

// Link returns the transport of the remote device.
func (r *CharacteristicReader) Link() LinkType {
	return r.link
}

// Read reads one value into p. Values longer than p are truncated. io.EOF is
// returned once the remote device stops writing.
func (r *CharacteristicReader) Read(p []byte) (int, error) {
	return r.conn.Read(p)
}

// ReadValue reads the next value.
func (r *CharacteristicReader) ReadValue() ([]byte, error) {
	buf := make([]byte, r.mtu)
	n, err := r.conn.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (r *CharacteristicReader) SetReadDeadline(t time.Time) error {
	return r.conn.SetReadDeadline(t)
}

func (r *CharacteristicReader) Close() error {
	return r.conn.Close()
}

// CharacteristicWriter sends notifications of a characteristic using NotifyIO.
// Every Write sends one notification of at most MTU bytes.
type CharacteristicWriter struct {
	conn *net.UnixConn
	mtu  uint16
	link LinkType
}

func (w *CharacteristicWriter) MTU() uint16 {
	return w.mtu
}

func (w *CharacteristicWriter) Link() LinkType {
	return w.link
}

// Write sends p as a single notification. bluetoothd closes the stream when
// the remote device unsubscribes, after which Write fails.
func (w *CharacteristicWriter) Write(p []byte) (int, error) {
	return w.conn.Write(p)
}

func (w *CharacteristicWriter) SetWriteDeadline(t time.Time) error {
	return w.conn.SetWriteDeadline(t)
}

func (w *CharacteristicWriter) Close() error {
	return w.conn.Close()
}
