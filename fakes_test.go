package bluetooth

import (
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"
)

type exportKey struct {
	path  dbus.ObjectPath
	iface string
}

type signal struct {
	path   dbus.ObjectPath
	name   string
	values []interface{}
}

// fakeConn records exported objects and emitted signals.
type fakeConn struct {
	mu         sync.Mutex
	exports    map[exportKey]interface{}
	failExport string
	emitErr    error

	signals chan signal
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		exports: make(map[exportKey]interface{}),
		signals: make(chan signal, 64),
	}
}

func (c *fakeConn) Export(v interface{}, path dbus.ObjectPath, iface string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := exportKey{path, iface}
	if v == nil {
		delete(c.exports, key)
		return nil
	}
	if iface == c.failExport {
		return errors.New("export refused")
	}
	c.exports[key] = v
	return nil
}

func (c *fakeConn) Emit(path dbus.ObjectPath, name string, values ...interface{}) error {
	c.mu.Lock()
	err := c.emitErr
	c.mu.Unlock()
	if err != nil {
		return err
	}
	c.signals <- signal{path: path, name: name, values: values}
	return nil
}

func (c *fakeConn) object(path dbus.ObjectPath, iface string) interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exports[exportKey{path, iface}]
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.exports)
}

func (c *fakeConn) characteristic(t *testing.T, path dbus.ObjectPath) *registeredCharacteristic {
	t.Helper()
	char, ok := c.object(path, gattCharacteristicInterface).(*registeredCharacteristic)
	if !ok {
		t.Fatalf("no characteristic exported at %s", path)
	}
	return char
}

func (c *fakeConn) properties(t *testing.T, path dbus.ObjectPath) *objectProperties {
	t.Helper()
	props, ok := c.object(path, propertiesInterface).(*objectProperties)
	if !ok {
		t.Fatalf("no properties exported at %s", path)
	}
	return props
}

// fakeManager stands in for org.bluez.GattManager1.
type fakeManager struct {
	mu            sync.Mutex
	registered    []dbus.ObjectPath
	unregistered  []dbus.ObjectPath
	registerErr   error
	unregisterErr error
}

func (m *fakeManager) RegisterApplication(application dbus.ObjectPath, options map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.registerErr != nil {
		return m.registerErr
	}
	m.registered = append(m.registered, application)
	return nil
}

func (m *fakeManager) UnregisterApplication(application dbus.ObjectPath) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unregistered = append(m.unregistered, application)
	return m.unregisterErr
}

func (m *fakeManager) unregisteredPaths() []dbus.ObjectPath {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]dbus.ObjectPath(nil), m.unregistered...)
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestServer(conn Conn) *Server {
	return NewServer(conn, WithLogger(quietLogger()), WithApplicationPrefix("/test/app"), WithProfilePrefix("/test/profile"))
}

// options builds a request options dictionary from key/value pairs.
func options(kv ...interface{}) map[string]dbus.Variant {
	m := make(map[string]dbus.Variant)
	for i := 0; i < len(kv); i += 2 {
		m[kv[i].(string)] = dbus.MakeVariant(kv[i+1])
	}
	return m
}

// register publishes a single-service application and returns the handle and
// the path of the service.
func register(t *testing.T, conn *fakeConn, chars ...Characteristic) (*ApplicationHandle, dbus.ObjectPath) {
	t.Helper()
	srv := newTestServer(conn)
	h, err := srv.Register(&fakeManager{}, Application{Services: []Service{{
		UUID:            ServiceUUIDHeartRate,
		Primary:         true,
		Characteristics: chars,
	}}})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	t.Cleanup(h.Release)
	return h, h.Path() + "/service0"
}
