package bluetooth

import (
	"context"
	"errors"
	"sync"

	"github.com/godbus/dbus/v5"
)

const propertiesChangedSignal = "org.freedesktop.DBus.Properties.PropertiesChanged"

// notifySession is the state of one StartNotify..StopNotify period.
type notifySession struct {
	stopped  chan struct{}
	stopOnce sync.Once

	// confirm carries confirmations of indications. It is nil when the
	// session does not wait for confirmations.
	confirm chan struct{}
}

func newNotifySession(confirming bool) *notifySession {
	s := &notifySession{stopped: make(chan struct{})}
	if confirming {
		s.confirm = make(chan struct{}, 1)
	}
	return s
}

func (s *notifySession) stop() {
	s.stopOnce.Do(func() {
		close(s.stopped)
	})
}

// confirmed hands over a confirmation without blocking. Extra confirmations
// are dropped.
func (s *notifySession) confirmed() {
	if s.confirm == nil {
		return
	}
	select {
	case s.confirm <- struct{}{}:
	default:
	}
}

// Notifier sends notifications or indications of a characteristic value to
// the subscribed remote device. It is passed to a NotifyFunc and is valid until
// the session stops.
type Notifier struct {
	conn    Conn
	path    dbus.ObjectPath
	session *notifySession

	mu sync.Mutex
}

// Confirming reports whether each value sent waits for a confirmation from the
// remote device, that is whether indications are used.
func (n *Notifier) Confirming() bool {
	return n.session.confirm != nil
}

// IsStopped reports whether the notification session has stopped.
func (n *Notifier) IsStopped() bool {
	select {
	case <-n.session.stopped:
		return true
	default:
		return false
	}
}

// Stopped returns a channel that is closed when the notification session
// stops.
func (n *Notifier) Stopped() <-chan struct{} {
	return n.session.stopped
}

// Notify sends value to the remote device. When indications are used it waits
// until the remote device confirms the value, the session stops or ctx is
// done.
func (n *Notifier) Notify(ctx context.Context, value []byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.IsStopped() {
		return ErrNotificationSessionStopped
	}

	// Drop confirmations that arrived for earlier values.
	if n.session.confirm != nil {
		select {
		case <-n.session.confirm:
		default:
		}
	}

	changed := map[string]dbus.Variant{"Value": dbus.MakeVariant(value)}
	err := n.conn.Emit(n.path, propertiesChangedSignal, gattCharacteristicInterface, changed, []string{})
	if err != nil {
		if errors.Is(err, dbus.ErrClosed) {
			return ErrConnectionLost
		}
		return err
	}

	if n.session.confirm == nil {
		return nil
	}
	select {
	case <-n.session.confirm:
		return nil
	case <-n.session.stopped:
		return ErrIndicationUnconfirmed
	case <-ctx.Done():
		return ctx.Err()
	}
}
