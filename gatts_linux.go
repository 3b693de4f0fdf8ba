//go:build linux

package bluetooth

import (
	"github.com/muka/go-bluetooth/bluez/profile/gatt"
)

// manager returns the org.bluez.GattManager1 proxy of the adapter.
func (a *Adapter) manager() (Manager, error) {
	if a.server == nil {
		return nil, errAdapterNotEnabled
	}
	mgr, err := gatt.NewGattManager1(a.Path())
	if err != nil {
		return nil, err
	}
	return mgr, nil
}

// AddApplication publishes app and registers it with the adapter. It stays
// registered until the returned handle is released.
func (a *Adapter) AddApplication(app Application) (*ApplicationHandle, error) {
	mgr, err := a.manager()
	if err != nil {
		return nil, err
	}
	return a.server.Register(mgr, app)
}

// AddService registers an application consisting of a single service.
func (a *Adapter) AddService(s Service) (*ApplicationHandle, error) {
	return a.AddApplication(Application{Services: []Service{s}})
}

// AddProfile registers a GATT profile with the adapter.
func (a *Adapter) AddProfile(p Profile) (*ApplicationHandle, error) {
	mgr, err := a.manager()
	if err != nil {
		return nil, err
	}
	return a.server.RegisterProfile(mgr, p)
}
