package bluetooth

import (
	"context"
	"errors"
	"sync"
)

// MaxValueLength is the longest attribute value allowed by the ATT protocol.
const MaxValueLength = 512

// Value is an attribute value shared between the local process and remote
// devices. Its ReadFunc, WriteFunc and NotifyFunc can be plugged into a
// Characteristic or Descriptor.
type Value struct {
	mu        sync.RWMutex
	data      []byte
	notifiers map[*Notifier]struct{}
}

// NewValue returns a Value holding a copy of initial.
func NewValue(initial []byte) *Value {
	return &Value{
		data:      append([]byte(nil), initial...),
		notifiers: make(map[*Notifier]struct{}),
	}
}

// Get returns a copy of the current value.
func (v *Value) Get() []byte {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]byte(nil), v.data...)
}

// Set replaces the value and sends it to every subscribed remote device. It
// returns once all notifications have been sent and, for indications,
// confirmed.
func (v *Value) Set(ctx context.Context, data []byte) error {
	if len(data) > MaxValueLength {
		return RejectInvalidValueLength
	}
	v.mu.Lock()
	v.data = append(v.data[:0:0], data...)
	notifiers := make([]*Notifier, 0, len(v.notifiers))
	for n := range v.notifiers {
		notifiers = append(notifiers, n)
	}
	v.mu.Unlock()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, n := range notifiers {
		wg.Add(1)
		go func(n *Notifier) {
			defer wg.Done()
			err := n.Notify(ctx, data)
			if err == nil || errors.Is(err, ErrNotificationSessionStopped) {
				return
			}
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}(n)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// ReadFunc serves remote reads from the value.
func (v *Value) ReadFunc() ReadFunc {
	return func(req ReadRequest) ([]byte, error) {
		v.mu.RLock()
		defer v.mu.RUnlock()
		if int(req.Offset) > len(v.data) {
			return nil, RejectInvalidOffset
		}
		return append([]byte(nil), v.data[req.Offset:]...), nil
	}
}

// WriteFunc stores remote writes in the value. Writes at an offset replace the
// tail of the value starting at that offset.
func (v *Value) WriteFunc() WriteFunc {
	return func(value []byte, req WriteRequest) error {
		v.mu.Lock()
		defer v.mu.Unlock()
		if int(req.Offset) > len(v.data) {
			return RejectInvalidOffset
		}
		if int(req.Offset)+len(value) > MaxValueLength {
			return RejectInvalidValueLength
		}
		if req.PrepareAuthorize {
			return nil
		}
		data := make([]byte, 0, int(req.Offset)+len(value))
		data = append(data, v.data[:req.Offset]...)
		v.data = append(data, value...)
		return nil
	}
}

// NotifyFunc subscribes each notification session to changes made with Set.
func (v *Value) NotifyFunc() NotifyFunc {
	return func(n *Notifier) {
		v.mu.Lock()
		v.notifiers[n] = struct{}{}
		v.mu.Unlock()

		<-n.Stopped()

		v.mu.Lock()
		delete(v.notifiers, n)
		v.mu.Unlock()
	}
}

// Subscribers returns the number of active notification sessions.
func (v *Value) Subscribers() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.notifiers)
}
