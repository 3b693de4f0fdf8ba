package bluetooth

// Application is a tree of services published together and registered with
// bluetoothd in one call.
type Application struct {
	Services []Service
}

// Service is a GATT service to be published as part of an Application.
type Service struct {
	UUID

	// Handle requested for the service. Zero lets bluetoothd assign one.
	Handle uint16

	// Primary marks the service as a primary service.
	Primary bool

	Characteristics []Characteristic

	// Control observes the handle assigned to the service.
	Control ServiceControlHandle
}

// ReadFunc handles a remote read and returns the value to send back. A
// returned Reject is sent to the remote device, any other error is reported
// as RejectFailed.
type ReadFunc func(req ReadRequest) ([]byte, error)

// WriteFunc handles a remote write. A returned Reject is sent to the remote
// device, any other error is reported as RejectFailed.
type WriteFunc func(value []byte, req WriteRequest) error

// NotifyFunc is started in its own goroutine every time a remote device
// subscribes to notifications or indications. It should send values through
// the Notifier until the session is stopped.
type NotifyFunc func(n *Notifier)

// Characteristic is a GATT characteristic within a Service.
type Characteristic struct {
	UUID

	// Handle requested for the characteristic. Zero lets bluetoothd assign one.
	Handle uint16

	Broadcast           bool
	WritableAuxiliaries bool
	Authorize           bool

	// Read, Write and Notify describe the supported operations. A nil field
	// disables the operation.
	Read   *CharacteristicRead
	Write  *CharacteristicWrite
	Notify *CharacteristicNotify

	Descriptors []Descriptor

	// Control observes the characteristic and receives its IO streams. It must
	// come from NewCharacteristicControl for WriteIO or NotifyIO to work.
	Control CharacteristicControlHandle
}

// CharacteristicRead describes how a characteristic can be read.
type CharacteristicRead struct {
	Read                     bool
	EncryptRead              bool
	EncryptAuthenticatedRead bool
	SecureRead               bool

	// Func is called for every remote read. Reads are refused with
	// RejectNotSupported if it is nil.
	Func ReadFunc
}

// WriteMethod is either a WriteFunc or WriteIO.
type WriteMethod interface {
	writeMethod()
}

func (WriteFunc) writeMethod() {}

// WriteIO delivers written values through a CharacteristicReader obtained from
// CharacteristicControl.WriteRequest. Each remote device that starts writing
// gets its own stream.
type WriteIO struct{}

func (WriteIO) writeMethod() {}

// CharacteristicWrite describes how a characteristic can be written.
type CharacteristicWrite struct {
	Write                     bool
	WriteWithoutResponse      bool
	ReliableWrite             bool
	AuthenticatedSignedWrites bool
	EncryptWrite              bool
	EncryptAuthenticatedWrite bool
	SecureWrite               bool

	// Method receives the written values. Writes are refused with
	// RejectNotSupported if it is nil.
	Method WriteMethod
}

// NotifyMethod is either a NotifyFunc or NotifyIO.
type NotifyMethod interface {
	notifyMethod()
}

func (NotifyFunc) notifyMethod() {}

// NotifyIO sends notifications written to a CharacteristicWriter obtained from
// CharacteristicControl.Notifier.
type NotifyIO struct{}

func (NotifyIO) notifyMethod() {}

// CharacteristicNotify describes how a characteristic notifies its value.
type CharacteristicNotify struct {
	// Notify enables notifications, which are not confirmed.
	Notify bool
	// Indicate enables indications. They are only confirmed when Notify is
	// not set at the same time.
	Indicate bool

	Method NotifyMethod
}

// Descriptor is a GATT descriptor of a Characteristic.
type Descriptor struct {
	UUID

	// Handle requested for the descriptor. Zero lets bluetoothd assign one.
	Handle uint16

	Authorize bool

	Read  *DescriptorRead
	Write *DescriptorWrite

	Control DescriptorControlHandle
}

// DescriptorRead describes how a descriptor can be read.
type DescriptorRead struct {
	Read                     bool
	EncryptRead              bool
	EncryptAuthenticatedRead bool
	SecureRead               bool

	Func ReadFunc
}

// DescriptorWrite describes how a descriptor can be written.
type DescriptorWrite struct {
	Write                     bool
	EncryptWrite              bool
	EncryptAuthenticatedWrite bool
	SecureWrite               bool

	Func WriteFunc
}

// ioWrite reports whether the characteristic is written through WriteIO and
// has a live control to deliver the streams to. A control whose
// characteristic was unpublished cannot be used again.
func (c *Characteristic) ioWrite() bool {
	if c.Write == nil || !c.Control.live() {
		return false
	}
	return isWriteIO(c.Write.Method)
}

// ioNotify is like ioWrite for NotifyIO.
func (c *Characteristic) ioNotify() bool {
	if c.Notify == nil || !c.Control.live() {
		return false
	}
	return isNotifyIO(c.Notify.Method)
}
