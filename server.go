package bluetooth

import (
	"encoding/hex"
	"fmt"
	"runtime"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Default path prefixes under which applications and profiles are published.
const (
	DefaultApplicationPrefix dbus.ObjectPath = "/io/localgatt/application"
	DefaultProfilePrefix     dbus.ObjectPath = "/io/localgatt/profile"
)

// Manager registers published applications with bluetoothd. It is implemented
// by the org.bluez.GattManager1 proxy of an adapter.
type Manager interface {
	RegisterApplication(application dbus.ObjectPath, options map[string]interface{}) error
	UnregisterApplication(application dbus.ObjectPath) error
}

// Server publishes GATT applications and profiles on a D-Bus connection.
type Server struct {
	conn          Conn
	tree          *objectTree
	log           logrus.FieldLogger
	appPrefix     dbus.ObjectPath
	profilePrefix dbus.ObjectPath
}

// Option configures a Server.
type Option func(s *Server)

// WithLogger sets the logger used for requests and lifecycle events. The
// default is the logrus standard logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Server) {
		s.log = log
	}
}

// WithApplicationPrefix sets the path under which applications are published.
func WithApplicationPrefix(prefix dbus.ObjectPath) Option {
	return func(s *Server) {
		s.appPrefix = prefix
	}
}

// WithProfilePrefix sets the path under which profiles are published.
func WithProfilePrefix(prefix dbus.ObjectPath) Option {
	return func(s *Server) {
		s.profilePrefix = prefix
	}
}

// NewServer returns a Server publishing objects on conn, usually the system
// bus.
func NewServer(conn Conn, opts ...Option) *Server {
	s := &Server{
		conn:          conn,
		tree:          newObjectTree(conn),
		log:           logrus.StandardLogger(),
		appPrefix:     DefaultApplicationPrefix,
		profilePrefix: DefaultProfilePrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// newRoot returns a fresh path below prefix.
func newRoot(prefix dbus.ObjectPath) dbus.ObjectPath {
	id := uuid.New()
	return dbus.ObjectPath(fmt.Sprintf("%s/%s", prefix, hex.EncodeToString(id[:])))
}

// Register publishes app and registers it with bluetoothd through mgr. The
// application stays published until the returned handle is released.
func (s *Server) Register(mgr Manager, app Application) (*ApplicationHandle, error) {
	root := newRoot(s.appPrefix)
	log := s.log.WithField("application", root)

	objs := buildApplication(s.conn, log, root, &app)
	if err := s.tree.publish(root, objs.objects); err != nil {
		objs.close()
		return nil, fmt.Errorf("bluetooth: could not publish application: %w", err)
	}
	return s.register(mgr, root, log, objs.close)
}

// register hands a published root to bluetoothd and returns its handle.
func (s *Server) register(mgr Manager, root dbus.ObjectPath, log logrus.FieldLogger, cleanup func()) (*ApplicationHandle, error) {
	log.Debug("registering")
	if err := mgr.RegisterApplication(root, map[string]interface{}{}); err != nil {
		cleanup()
		if rmErr := s.tree.remove(root); rmErr != nil {
			log.WithError(rmErr).Warn("could not unpublish")
		}
		return nil, fmt.Errorf("bluetooth: could not register %s: %w", root, err)
	}
	log.Info("registered")

	t := &teardown{
		done: make(chan struct{}),
		run: func() {
			if err := mgr.UnregisterApplication(root); err != nil {
				log.WithError(err).Warn("could not unregister")
			}
			cleanup()
			if err := s.tree.remove(root); err != nil {
				log.WithError(err).Warn("could not unpublish")
			}
			log.Info("unregistered")
		},
	}
	h := &ApplicationHandle{path: root, t: t}
	runtime.SetFinalizer(h, func(h *ApplicationHandle) {
		h.t.start()
	})
	return h, nil
}

type teardown struct {
	once sync.Once
	done chan struct{}
	run  func()
}

// start runs the teardown in the background, at most once.
func (t *teardown) start() {
	t.once.Do(func() {
		go func() {
			defer close(t.done)
			t.run()
		}()
	})
}

// ApplicationHandle keeps an application or profile registered. If it is
// garbage collected without being released, the object is unregistered then.
type ApplicationHandle struct {
	path dbus.ObjectPath
	t    *teardown
}

// Path returns the root path the object was published at.
func (h *ApplicationHandle) Path() dbus.ObjectPath {
	return h.path
}

// Release unregisters and unpublishes the object and waits until this is done.
// It may be called more than once.
func (h *ApplicationHandle) Release() {
	runtime.SetFinalizer(h, nil)
	h.t.start()
	<-h.t.done
}

// Done returns a channel that is closed once the object has been unpublished.
func (h *ApplicationHandle) Done() <-chan struct{} {
	return h.t.done
}

func (h *ApplicationHandle) String() string {
	return fmt.Sprintf("ApplicationHandle{%s}", h.path)
}
