package bluetooth

import (
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/prop"
	"github.com/sirupsen/logrus"
)

// Profile asks bluetoothd to connect to remote devices offering any of the
// listed service UUIDs.
type Profile struct {
	UUIDs []UUID
}

// registeredProfile implements org.bluez.GattProfile1.
type registeredProfile struct {
	log   logrus.FieldLogger
	path  dbus.ObjectPath
	uuids []string
}

func (p *registeredProfile) objectPath() dbus.ObjectPath { return p.path }
func (p *registeredProfile) iface() string               { return gattProfileInterface }
func (p *registeredProfile) writable() []string          { return nil }

func (p *registeredProfile) properties() map[string]dbus.Variant {
	return map[string]dbus.Variant{
		"UUIDs": dbus.MakeVariant(p.uuids),
	}
}

func (p *registeredProfile) setProperty(name string, value dbus.Variant) *dbus.Error {
	return prop.ErrReadOnly
}

// Release is called by bluetoothd when it drops the profile.
func (p *registeredProfile) Release() *dbus.Error {
	p.log.Debug("profile released by bluetoothd")
	return nil
}

// RegisterProfile publishes profile and registers it with bluetoothd through
// mgr.
func (s *Server) RegisterProfile(mgr Manager, profile Profile) (*ApplicationHandle, error) {
	root := newRoot(s.profilePrefix)
	log := s.log.WithField("profile", root)

	uuids := make([]string, len(profile.UUIDs))
	for i, u := range profile.UUIDs {
		uuids[i] = u.String()
	}
	obj := &registeredProfile{log: log, path: root, uuids: uuids}
	if err := s.tree.publish(root, []busObject{obj}); err != nil {
		return nil, fmt.Errorf("bluetooth: could not publish profile: %w", err)
	}
	return s.register(mgr, root, log, func() {})
}
