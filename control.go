package bluetooth

import (
	"context"
	"fmt"
	"sync"
)

// characteristicLink is shared between a registered characteristic and the
// CharacteristicControl of its owner. The IO channels are nil unless the
// control was created with NewCharacteristicControl.
type characteristicLink struct {
	cell handleCell

	writeRequests chan *WriteIORequest
	notifyWriters chan *CharacteristicWriter

	closed    chan struct{}
	closeOnce sync.Once
}

func newCharacteristicLink(io bool) *characteristicLink {
	l := &characteristicLink{closed: make(chan struct{})}
	if io {
		l.writeRequests = make(chan *WriteIORequest)
		// At most one notification session is negotiated at a time.
		l.notifyWriters = make(chan *CharacteristicWriter, 1)
	}
	return l
}

// close marks the characteristic as unpublished. Waiting consumers and
// pending acquire calls are released, and a notification stream nobody
// picked up is closed.
func (l *characteristicLink) close() {
	l.closeOnce.Do(func() {
		close(l.closed)
	})
	l.drain()
}

// drain closes a queued notification stream. It reports whether there was
// one.
func (l *characteristicLink) drain() bool {
	select {
	case w := <-l.notifyWriters:
		w.Close()
		return true
	default:
		return false
	}
}

func (l *characteristicLink) isClosed() bool {
	select {
	case <-l.closed:
		return true
	default:
		return false
	}
}

// CharacteristicControl observes a characteristic once it has been registered
// and receives the IO streams of characteristics using WriteIO or NotifyIO.
type CharacteristicControl struct {
	link *characteristicLink
}

// Handle returns the handle assigned to the characteristic. It returns
// ErrNotRegistered if no handle has been assigned yet.
func (c *CharacteristicControl) Handle() (uint16, error) {
	return c.link.cell.current()
}

// WriteRequest waits for the next request of a remote device to start writing
// to a characteristic using WriteIO. The request must be accepted or
// rejected.
//
// It returns ErrNotRegistered once the characteristic has been unpublished.
func (c *CharacteristicControl) WriteRequest(ctx context.Context) (*WriteIORequest, error) {
	select {
	case req := <-c.link.writeRequests:
		return req, nil
	case <-c.link.closed:
		return nil, ErrNotRegistered
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Notifier waits for the next notification session of a characteristic using
// NotifyIO and returns the stream to write notifications to.
//
// bluetoothd acknowledges the session to the remote device before it is
// announced here, so there is no way to refuse it.
func (c *CharacteristicControl) Notifier(ctx context.Context) (*CharacteristicWriter, error) {
	select {
	case w := <-c.link.notifyWriters:
		return w, nil
	case <-c.link.closed:
		return nil, ErrNotRegistered
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *CharacteristicControl) String() string {
	return fmt.Sprintf("CharacteristicControl{handle: %d}", c.link.cell.value())
}

// CharacteristicControlHandle is stored in a Characteristic to connect it to
// the CharacteristicControl it was created with. The zero value is not
// connected to anything, which disables WriteIO and NotifyIO.
type CharacteristicControlHandle struct {
	link *characteristicLink
}

// NewCharacteristicControl creates a CharacteristicControl and the handle to
// store in the Characteristic it should control.
func NewCharacteristicControl() (*CharacteristicControl, CharacteristicControlHandle) {
	link := newCharacteristicLink(true)
	return &CharacteristicControl{link: link}, CharacteristicControlHandle{link: link}
}

// live reports whether the handle is connected to a control that has not been
// closed by releasing an application.
func (h CharacteristicControlHandle) live() bool {
	return h.link != nil && !h.link.isClosed()
}

func (h CharacteristicControlHandle) characteristicLink() *characteristicLink {
	if h.link == nil {
		return newCharacteristicLink(false)
	}
	return h.link
}
