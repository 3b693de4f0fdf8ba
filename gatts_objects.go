package bluetooth

import (
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"
)

// registeredService is a Service published on the bus.
type registeredService struct {
	path    dbus.ObjectPath
	uuid    UUID
	primary bool
	cell    *handleCell
}

func (s *registeredService) objectPath() dbus.ObjectPath { return s.path }
func (s *registeredService) iface() string               { return gattServiceInterface }
func (s *registeredService) writable() []string          { return []string{"Handle"} }

func (s *registeredService) properties() map[string]dbus.Variant {
	return map[string]dbus.Variant{
		"UUID":    dbus.MakeVariant(s.uuid.String()),
		"Primary": dbus.MakeVariant(s.primary),
		"Handle":  dbus.MakeVariant(s.cell.value()),
	}
}

func (s *registeredService) setProperty(name string, value dbus.Variant) *dbus.Error {
	return setHandle(s.cell, name, value)
}

// registeredCharacteristic is a Characteristic published on the bus. Its
// exported methods implement org.bluez.GattCharacteristic1.
type registeredCharacteristic struct {
	conn Conn
	log  logrus.FieldLogger
	path dbus.ObjectPath

	uuid   UUID
	flags  []string
	read   *CharacteristicRead
	write  *CharacteristicWrite
	notify *CharacteristicNotify
	link   *characteristicLink

	// ioWrite and ioNotify are set when the IO capability has a control to
	// deliver streams to.
	ioWrite  bool
	ioNotify bool

	mu      sync.Mutex
	session *notifySession
	closed  bool
}

func (c *registeredCharacteristic) objectPath() dbus.ObjectPath { return c.path }
func (c *registeredCharacteristic) iface() string               { return gattCharacteristicInterface }
func (c *registeredCharacteristic) writable() []string          { return []string{"Handle"} }

func (c *registeredCharacteristic) properties() map[string]dbus.Variant {
	props := map[string]dbus.Variant{
		"UUID":    dbus.MakeVariant(c.uuid.String()),
		"Service": dbus.MakeVariant(parentPath(c.path)),
		"Flags":   dbus.MakeVariant(c.flags),
		"Handle":  dbus.MakeVariant(c.link.cell.value()),
	}
	if c.ioWrite {
		props["WriteAcquired"] = dbus.MakeVariant(false)
	}
	if c.ioNotify {
		props["NotifyAcquired"] = dbus.MakeVariant(false)
	}
	return props
}

func (c *registeredCharacteristic) setProperty(name string, value dbus.Variant) *dbus.Error {
	return setHandle(&c.link.cell, name, value)
}

// rejected logs a failed request and converts err into its reply.
func (c *registeredCharacteristic) rejected(op string, err error) *dbus.Error {
	dErr := toDBusError(err)
	c.log.WithFields(logrus.Fields{"op": op, "reply": dErr.Name}).WithError(err).Debug("request rejected")
	return dErr
}

func (c *registeredCharacteristic) ReadValue(options map[string]dbus.Variant) ([]byte, *dbus.Error) {
	req, err := parseReadRequest(options, true)
	if err != nil {
		return nil, c.rejected("ReadValue", err)
	}
	if c.read == nil || c.read.Func == nil {
		return nil, c.rejected("ReadValue", RejectNotSupported)
	}
	c.log.WithFields(logrus.Fields{"offset": req.Offset, "mtu": req.MTU, "device": req.Device}).Debug("read")
	value, err := c.read.Func(req)
	if err != nil {
		return nil, c.rejected("ReadValue", err)
	}
	return value, nil
}

func (c *registeredCharacteristic) WriteValue(value []byte, options map[string]dbus.Variant) *dbus.Error {
	req, err := parseWriteRequest(options, true)
	if err != nil {
		return c.rejected("WriteValue", err)
	}
	var fn WriteFunc
	if c.write != nil {
		fn, _ = c.write.Method.(WriteFunc)
	}
	if fn == nil {
		return c.rejected("WriteValue", RejectNotSupported)
	}
	c.log.WithFields(logrus.Fields{"offset": req.Offset, "type": req.Type, "len": len(value)}).Debug("write")
	if err := fn(value, req); err != nil {
		return c.rejected("WriteValue", err)
	}
	return nil
}

func (c *registeredCharacteristic) notifyFunc() NotifyFunc {
	if c.notify == nil {
		return nil
	}
	fn, _ := c.notify.Method.(NotifyFunc)
	return fn
}

func (c *registeredCharacteristic) StartNotify() *dbus.Error {
	fn := c.notifyFunc()
	if fn == nil {
		return c.rejected("StartNotify", RejectNotSupported)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return c.rejected("StartNotify", RejectFailed)
	}
	if c.session != nil {
		c.mu.Unlock()
		return c.rejected("StartNotify", RejectInProgress)
	}
	session := newNotifySession(c.notify.Indicate && !c.notify.Notify)
	c.session = session
	c.mu.Unlock()

	c.log.WithField("confirming", session.confirm != nil).Debug("notification session started")
	go fn(&Notifier{conn: c.conn, path: c.path, session: session})
	return nil
}

func (c *registeredCharacteristic) StopNotify() *dbus.Error {
	if c.notifyFunc() == nil {
		return c.rejected("StopNotify", RejectNotSupported)
	}
	c.mu.Lock()
	session := c.session
	c.session = nil
	c.mu.Unlock()

	if session != nil {
		session.stop()
		c.log.Debug("notification session stopped")
	}
	return nil
}

func (c *registeredCharacteristic) Confirm() *dbus.Error {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()

	if session != nil {
		session.confirmed()
	}
	return nil
}

func (c *registeredCharacteristic) AcquireWrite(options map[string]dbus.Variant) (dbus.UnixFD, uint16, *dbus.Error) {
	req, err := parseAcquireRequest(options)
	if err != nil {
		return 0, 0, c.rejected("AcquireWrite", err)
	}
	if !c.ioWrite {
		return 0, 0, c.rejected("AcquireWrite", RejectNotSupported)
	}

	wr := newWriteIORequest(req)
	select {
	case c.link.writeRequests <- wr:
	case <-c.link.closed:
		return 0, 0, c.rejected("AcquireWrite", RejectFailed)
	}

	var reply acquireReply
	select {
	case reply = <-wr.reply:
	case <-c.link.closed:
		if wr.abandon() {
			return 0, 0, c.rejected("AcquireWrite", RejectFailed)
		}
		reply = <-wr.reply
	}
	if reply.remote == nil {
		return 0, 0, c.rejected("AcquireWrite", reply.reject)
	}
	fd := dbus.UnixFD(reply.remote.Fd())
	releaseAfterReply(reply.remote)
	c.log.WithField("mtu", req.MTU).Debug("write stream acquired")
	return fd, req.MTU, nil
}

func (c *registeredCharacteristic) AcquireNotify(options map[string]dbus.Variant) (dbus.UnixFD, uint16, *dbus.Error) {
	req, err := parseAcquireRequest(options)
	if err != nil {
		return 0, 0, c.rejected("AcquireNotify", err)
	}
	if !c.ioNotify {
		return 0, 0, c.rejected("AcquireNotify", RejectNotSupported)
	}

	local, remote, err := newSocketPair()
	if err != nil {
		return 0, 0, c.rejected("AcquireNotify", err)
	}
	writer := &CharacteristicWriter{conn: local, mtu: req.MTU, link: req.Link}
	select {
	case c.link.notifyWriters <- writer:
		if c.link.isClosed() && c.link.drain() {
			remote.Close()
			return 0, 0, c.rejected("AcquireNotify", RejectFailed)
		}
	case <-c.link.closed:
		local.Close()
		remote.Close()
		return 0, 0, c.rejected("AcquireNotify", RejectFailed)
	}
	fd := dbus.UnixFD(remote.Fd())
	releaseAfterReply(remote)
	c.log.WithField("mtu", req.MTU).Debug("notify stream acquired")
	return fd, req.MTU, nil
}

// close ends the notification session and releases consumers of the control.
func (c *registeredCharacteristic) close() {
	c.mu.Lock()
	c.closed = true
	session := c.session
	c.session = nil
	c.mu.Unlock()

	if session != nil {
		session.stop()
	}
	c.link.close()
}

// registeredDescriptor is a Descriptor published on the bus.
type registeredDescriptor struct {
	log  logrus.FieldLogger
	path dbus.ObjectPath

	uuid  UUID
	flags []string
	read  *DescriptorRead
	write *DescriptorWrite
	cell  *handleCell
}

func (d *registeredDescriptor) objectPath() dbus.ObjectPath { return d.path }
func (d *registeredDescriptor) iface() string               { return gattDescriptorInterface }
func (d *registeredDescriptor) writable() []string          { return []string{"Handle"} }

func (d *registeredDescriptor) properties() map[string]dbus.Variant {
	return map[string]dbus.Variant{
		"UUID":           dbus.MakeVariant(d.uuid.String()),
		"Characteristic": dbus.MakeVariant(parentPath(d.path)),
		"Flags":          dbus.MakeVariant(d.flags),
		"Handle":         dbus.MakeVariant(d.cell.value()),
	}
}

func (d *registeredDescriptor) setProperty(name string, value dbus.Variant) *dbus.Error {
	return setHandle(d.cell, name, value)
}

func (d *registeredDescriptor) rejected(op string, err error) *dbus.Error {
	dErr := toDBusError(err)
	d.log.WithFields(logrus.Fields{"op": op, "reply": dErr.Name}).WithError(err).Debug("request rejected")
	return dErr
}

func (d *registeredDescriptor) ReadValue(options map[string]dbus.Variant) ([]byte, *dbus.Error) {
	req, err := parseReadRequest(options, false)
	if err != nil {
		return nil, d.rejected("ReadValue", err)
	}
	if d.read == nil || d.read.Func == nil {
		return nil, d.rejected("ReadValue", RejectNotSupported)
	}
	value, err := d.read.Func(req)
	if err != nil {
		return nil, d.rejected("ReadValue", err)
	}
	return value, nil
}

func (d *registeredDescriptor) WriteValue(value []byte, options map[string]dbus.Variant) *dbus.Error {
	req, err := parseWriteRequest(options, false)
	if err != nil {
		return d.rejected("WriteValue", err)
	}
	if d.write == nil || d.write.Func == nil {
		return d.rejected("WriteValue", RejectNotSupported)
	}
	if err := d.write.Func(value, req); err != nil {
		return d.rejected("WriteValue", err)
	}
	return nil
}

// applicationObjects is the published form of an Application.
type applicationObjects struct {
	objects         []busObject
	characteristics []*registeredCharacteristic
	cells           []*handleCell
}

// close resets the handles and ends every characteristic's activity.
func (a *applicationObjects) close() {
	for _, c := range a.characteristics {
		c.close()
	}
	for _, cell := range a.cells {
		cell.set(0)
	}
}

// buildApplication lays out app below root: services at root/serviceN,
// characteristics at service/charN and descriptors at char/descN.
func buildApplication(conn Conn, log logrus.FieldLogger, root dbus.ObjectPath, app *Application) *applicationObjects {
	objs := &applicationObjects{}
	for i := range app.Services {
		s := &app.Services[i]
		servicePath := dbus.ObjectPath(fmt.Sprintf("%s/service%d", root, i))
		service := &registeredService{
			path:    servicePath,
			uuid:    s.UUID,
			primary: s.Primary,
			cell:    s.Control.handleCell(),
		}
		if s.Handle != 0 {
			service.cell.set(s.Handle)
		}
		objs.objects = append(objs.objects, service)
		objs.cells = append(objs.cells, service.cell)

		for j := range s.Characteristics {
			c := &s.Characteristics[j]
			charPath := dbus.ObjectPath(fmt.Sprintf("%s/char%d", servicePath, j))
			char := &registeredCharacteristic{
				conn:     conn,
				log:      log.WithField("path", charPath),
				path:     charPath,
				uuid:     c.UUID,
				flags:    characteristicFlags(c),
				read:     c.Read,
				write:    c.Write,
				notify:   c.Notify,
				link:     c.Control.characteristicLink(),
				ioWrite:  c.ioWrite(),
				ioNotify: c.ioNotify(),
			}
			if c.Handle != 0 {
				char.link.cell.set(c.Handle)
			}
			objs.objects = append(objs.objects, char)
			objs.characteristics = append(objs.characteristics, char)
			objs.cells = append(objs.cells, &char.link.cell)

			for k := range c.Descriptors {
				d := &c.Descriptors[k]
				descPath := dbus.ObjectPath(fmt.Sprintf("%s/desc%d", charPath, k))
				desc := &registeredDescriptor{
					log:   log.WithField("path", descPath),
					path:  descPath,
					uuid:  d.UUID,
					flags: descriptorFlags(d),
					read:  d.Read,
					write: d.Write,
					cell:  d.Control.handleCell(),
				}
				if d.Handle != 0 {
					desc.cell.set(d.Handle)
				}
				objs.objects = append(objs.objects, desc)
				objs.cells = append(objs.cells, desc.cell)
			}
		}
	}
	return objs
}
