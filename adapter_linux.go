//go:build linux

// Some documentation for the BlueZ D-Bus interface:
// https://git.kernel.org/pub/scm/bluetooth/bluez.git/tree/doc

package bluetooth

import (
	"context"
	"errors"

	"github.com/godbus/dbus/v5"
	"github.com/muka/go-bluetooth/api"
	"github.com/muka/go-bluetooth/bluez"
	"github.com/muka/go-bluetooth/bluez/profile/adapter"
)

var errAdapterNotEnabled = errors.New("bluetooth: adapter not enabled")

// Adapter is a local Bluetooth adapter managed by bluetoothd. GATT
// applications are registered with the adapter they are added to.
type Adapter struct {
	adapter *adapter.Adapter1
	id      string
	server  *Server
	options []Option

	ctx         context.Context             // context for our event watcher, canceled on power off event
	cancel      context.CancelFunc          // cancel function to halt our event watcher context
	propchanged chan *bluez.PropertyChanged // channel that adapter property changes will show up on

	stateChangeHandler func(newState AdapterState)
}

// DefaultAdapter is the default adapter on the system. On Linux, it is the
// first adapter available.
//
// Make sure to call Enable() before using it to initialize the adapter.
var DefaultAdapter = &Adapter{
	stateChangeHandler: func(newState AdapterState) {},
}

// Configure sets the options of the Server created by Enable. It has no
// effect once the adapter is enabled.
func (a *Adapter) Configure(opts ...Option) {
	a.options = append(a.options, opts...)
}

// Enable connects to bluetoothd over the system bus. It must be called before
// any application is added.
func (a *Adapter) Enable() (err error) {
	if a.id != "" {
		return nil
	}
	a.adapter, err = api.GetDefaultAdapter()
	if err != nil {
		return err
	}
	id, err := a.adapter.GetAdapterID()
	if err != nil {
		return err
	}
	conn, err := dbus.SystemBus()
	if err != nil {
		return err
	}
	a.server = NewServer(conn, a.options...)
	a.ctx, a.cancel = context.WithCancel(context.Background())
	if err := a.watchForStateChange(); err != nil {
		a.cancel()
		return err
	}
	a.id = id
	return nil
}

// ID returns the name of the adapter, such as hci0.
func (a *Adapter) ID() string {
	return a.id
}

// Path returns the object path of the adapter.
func (a *Adapter) Path() dbus.ObjectPath {
	return dbus.ObjectPath("/org/bluez/" + a.id)
}

// Server returns the Server publishing the applications of this adapter, or
// nil if the adapter is not enabled.
func (a *Adapter) Server() *Server {
	return a.server
}

// SetStateChangeHandler sets a handler function to be called whenever the adaptor's
// state changes.
func (a *Adapter) SetStateChangeHandler(c func(newState AdapterState)) {
	a.stateChangeHandler = c
}

// State returns the current state of the adapter.
func (a *Adapter) State() AdapterState {
	if a.adapter == nil {
		return AdapterStateUnknown
	}

	powered, err := a.adapter.GetPowered()
	if err != nil {
		return AdapterStateUnknown
	}
	if powered {
		return AdapterStatePoweredOn
	}
	return AdapterStatePoweredOff
}

// watchForStateChange reports changes of the Powered property of the adapter
// to the state change handler.
func (a *Adapter) watchForStateChange() error {
	var err error
	a.propchanged, err = a.adapter.WatchProperties()
	if err != nil {
		return err
	}

	go func() {
		for {
			select {
			case changed := <-a.propchanged:
				// nil is received once the watch is removed
				if changed == nil {
					a.cancel()
					return
				}
				if changed.Name != "Powered" {
					continue
				}
				if powered, _ := changed.Value.(bool); powered {
					a.stateChangeHandler(AdapterStatePoweredOn)
				} else {
					a.stateChangeHandler(AdapterStatePoweredOff)
				}
			case <-a.ctx.Done():
				return
			}
		}
	}()

	return nil
}
