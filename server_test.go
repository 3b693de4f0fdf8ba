package bluetooth

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testApplication() Application {
	return Application{Services: []Service{
		{
			UUID:    ServiceUUIDHeartRate,
			Primary: true,
			Characteristics: []Characteristic{
				{UUID: CharacteristicUUIDHeartRateMeasurement},
				{
					UUID: CharacteristicUUIDBodySensorLocation,
					Descriptors: []Descriptor{
						{UUID: DescriptorUUIDCharacteristicUserDescription},
					},
				},
			},
		},
		{UUID: ServiceUUIDBattery},
	}}
}

func TestRegisterLayout(t *testing.T) {
	conn := newFakeConn()
	mgr := &fakeManager{}
	srv := newTestServer(conn)

	h, err := srv.Register(mgr, testApplication())
	require.NoError(t, err)
	defer h.Release()

	root := h.Path()
	assert.True(t, strings.HasPrefix(string(root), "/test/app/"), "root %s", root)
	assert.Len(t, strings.TrimPrefix(string(root), "/test/app/"), 32)
	assert.Equal(t, []dbus.ObjectPath{root}, mgr.registered)

	assert.NotNil(t, conn.object(root, objectManagerInterface))
	assert.NotNil(t, conn.object(root, introspectInterface))
	for path, iface := range map[dbus.ObjectPath]string{
		root + "/service0":             gattServiceInterface,
		root + "/service0/char0":       gattCharacteristicInterface,
		root + "/service0/char1":       gattCharacteristicInterface,
		root + "/service0/char1/desc0": gattDescriptorInterface,
		root + "/service1":             gattServiceInterface,
	} {
		assert.NotNil(t, conn.object(path, iface), "%s at %s", iface, path)
		assert.NotNil(t, conn.object(path, propertiesInterface), "properties at %s", path)
		assert.NotNil(t, conn.object(path, introspectInterface), "introspection at %s", path)
	}
	// 2 interfaces at the root, 3 at every attribute.
	assert.Equal(t, 2+5*3, conn.count())
}

func TestGetManagedObjects(t *testing.T) {
	conn := newFakeConn()
	srv := newTestServer(conn)
	h, err := srv.Register(&fakeManager{}, testApplication())
	require.NoError(t, err)
	defer h.Release()

	root := h.Path()
	om := conn.object(root, objectManagerInterface).(*objectManager)
	objects, dErr := om.GetManagedObjects()
	require.Nil(t, dErr)
	require.Len(t, objects, 5)

	service := objects[root+"/service0"][gattServiceInterface]
	assert.Equal(t, "0000180d-0000-1000-8000-00805f9b34fb", service["UUID"].Value())
	assert.Equal(t, true, service["Primary"].Value())
	assert.Equal(t, uint16(0), service["Handle"].Value())

	char := objects[root+"/service0/char1"][gattCharacteristicInterface]
	assert.Equal(t, root+"/service0", char["Service"].Value())
	assert.Equal(t, []string{}, char["Flags"].Value())

	desc := objects[root+"/service0/char1/desc0"][gattDescriptorInterface]
	assert.Equal(t, root+"/service0/char1", desc["Characteristic"].Value())
	assert.Equal(t, "00002901-0000-1000-8000-00805f9b34fb", desc["UUID"].Value())
}

func TestRelease(t *testing.T) {
	conn := newFakeConn()
	mgr := &fakeManager{}
	srv := newTestServer(conn)
	h, err := srv.Register(mgr, testApplication())
	require.NoError(t, err)

	h.Release()
	select {
	case <-h.Done():
	default:
		t.Fatal("Done not closed after Release")
	}
	assert.Equal(t, []dbus.ObjectPath{h.Path()}, mgr.unregisteredPaths())
	assert.Equal(t, 0, conn.count())

	// Releasing again does nothing.
	h.Release()
	assert.Len(t, mgr.unregisteredPaths(), 1)
}

func TestReleaseUnregisterFailure(t *testing.T) {
	conn := newFakeConn()
	mgr := &fakeManager{unregisterErr: errors.New("bluetoothd went away")}
	srv := newTestServer(conn)
	h, err := srv.Register(mgr, testApplication())
	require.NoError(t, err)

	h.Release()
	assert.Equal(t, 0, conn.count())
}

func TestRegisterFailure(t *testing.T) {
	conn := newFakeConn()
	mgr := &fakeManager{registerErr: errors.New("rejected")}
	srv := newTestServer(conn)

	ctrl, handle := NewServiceControl()
	app := testApplication()
	app.Services[0].Control = handle
	app.Services[0].Handle = 0x10

	h, err := srv.Register(mgr, app)
	require.Error(t, err)
	assert.Nil(t, h)
	assert.Equal(t, 0, conn.count())
	_, err = ctrl.Handle()
	assert.ErrorIs(t, err, ErrNotRegistered)
}

func TestRegisterExportFailure(t *testing.T) {
	conn := newFakeConn()
	conn.failExport = gattDescriptorInterface
	mgr := &fakeManager{}
	srv := newTestServer(conn)

	_, err := srv.Register(mgr, testApplication())
	require.Error(t, err)
	assert.Equal(t, 0, conn.count())
	assert.Empty(t, mgr.registered)
}

func TestServiceHandle(t *testing.T) {
	conn := newFakeConn()
	srv := newTestServer(conn)

	preset, presetHandle := NewServiceControl()
	assigned, assignedHandle := NewServiceControl()
	_, err := preset.Handle()
	assert.ErrorIs(t, err, ErrNotRegistered)

	h, err := srv.Register(&fakeManager{}, Application{Services: []Service{
		{UUID: ServiceUUIDHeartRate, Handle: 0x20, Control: presetHandle},
		{UUID: ServiceUUIDBattery, Control: assignedHandle},
	}})
	require.NoError(t, err)

	handle, err := preset.Handle()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x20), handle)

	_, err = assigned.Handle()
	assert.ErrorIs(t, err, ErrNotRegistered)
	props := conn.properties(t, h.Path()+"/service1")
	require.Nil(t, props.Set(gattServiceInterface, "Handle", dbus.MakeVariant(uint16(0x30))))
	handle, err = assigned.Handle()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x30), handle)

	v, dErr := props.Get(gattServiceInterface, "Handle")
	require.Nil(t, dErr)
	assert.Equal(t, uint16(0x30), v.Value())

	h.Release()
	_, err = assigned.Handle()
	assert.ErrorIs(t, err, ErrNotRegistered)
}

func TestCharacteristicAndDescriptorHandle(t *testing.T) {
	conn := newFakeConn()
	charCtrl, charHandle := NewCharacteristicControl()
	descCtrl, descHandle := NewDescriptorControl()
	_, service := register(t, conn, Characteristic{
		UUID:    CharacteristicUUIDHeartRateMeasurement,
		Control: charHandle,
		Descriptors: []Descriptor{
			{UUID: DescriptorUUIDCharacteristicUserDescription, Handle: 0x42, Control: descHandle},
		},
	})

	handle, err := descCtrl.Handle()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x42), handle)

	props := conn.properties(t, service+"/char0")
	require.Nil(t, props.Set(gattCharacteristicInterface, "Handle", dbus.MakeVariant(uint16(0x41))))
	handle, err = charCtrl.Handle()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x41), handle)
	assert.Equal(t, "CharacteristicControl{handle: 65}", charCtrl.String())
}

func TestPropertiesErrors(t *testing.T) {
	conn := newFakeConn()
	_, service := register(t, conn, Characteristic{UUID: CharacteristicUUIDBatteryLevel})
	props := conn.properties(t, service+"/char0")

	_, dErr := props.Get(gattServiceInterface, "UUID")
	assert.Equal(t, prop.ErrIfaceNotFound, dErr)
	_, dErr = props.Get(gattCharacteristicInterface, "Missing")
	assert.Equal(t, prop.ErrPropNotFound, dErr)
	assert.Equal(t, prop.ErrReadOnly, props.Set(gattCharacteristicInterface, "UUID", dbus.MakeVariant("x")))
	assert.Equal(t, prop.ErrInvalidArg, props.Set(gattCharacteristicInterface, "Handle", dbus.MakeVariant("x")))

	all, dErr := props.GetAll(gattCharacteristicInterface)
	require.Nil(t, dErr)
	assert.Equal(t, "00002a19-0000-1000-8000-00805f9b34fb", all["UUID"].Value())
}

func TestReadValue(t *testing.T) {
	conn := newFakeConn()
	var got ReadRequest
	_, service := register(t, conn, Characteristic{
		UUID: CharacteristicUUIDBatteryLevel,
		Read: &CharacteristicRead{
			Read: true,
			Func: func(req ReadRequest) ([]byte, error) {
				got = req
				return []byte{87}, nil
			},
		},
	})
	char := conn.characteristic(t, service+"/char0")

	value, dErr := char.ReadValue(options("offset", uint16(1), "mtu", uint16(23), "link", "LE", "device", dbus.ObjectPath("/org/bluez/hci0/dev_00")))
	require.Nil(t, dErr)
	assert.Equal(t, []byte{87}, value)
	assert.Equal(t, ReadRequest{Offset: 1, MTU: 23, Link: LinkLE, Device: "/org/bluez/hci0/dev_00"}, got)
}

func TestRequestsWithoutHandler(t *testing.T) {
	conn := newFakeConn()
	_, service := register(t, conn, Characteristic{
		UUID:   CharacteristicUUIDBatteryLevel,
		Read:   &CharacteristicRead{Read: true},
		Write:  &CharacteristicWrite{Write: true},
		Notify: &CharacteristicNotify{Notify: true},
	})
	char := conn.characteristic(t, service+"/char0")

	_, dErr := char.ReadValue(options("mtu", uint16(23)))
	require.NotNil(t, dErr)
	assert.Equal(t, "org.bluez.Error.NotSupported", dErr.Name)

	dErr = char.WriteValue([]byte{1}, options("mtu", uint16(23)))
	require.NotNil(t, dErr)
	assert.Equal(t, "org.bluez.Error.NotSupported", dErr.Name)

	dErr = char.StartNotify()
	require.NotNil(t, dErr)
	assert.Equal(t, "org.bluez.Error.NotSupported", dErr.Name)

	_, _, dErr = char.AcquireWrite(options("mtu", uint16(23)))
	require.NotNil(t, dErr)
	assert.Equal(t, "org.bluez.Error.NotSupported", dErr.Name)
}

func TestRequestDecodeError(t *testing.T) {
	conn := newFakeConn()
	called := false
	_, service := register(t, conn, Characteristic{
		UUID: CharacteristicUUIDBatteryLevel,
		Read: &CharacteristicRead{Read: true, Func: func(ReadRequest) ([]byte, error) {
			called = true
			return nil, nil
		}},
		Write: &CharacteristicWrite{Write: true, Method: WriteFunc(func([]byte, WriteRequest) error {
			called = true
			return nil
		})},
	})
	char := conn.characteristic(t, service+"/char0")

	_, dErr := char.ReadValue(options())
	require.NotNil(t, dErr)
	assert.Equal(t, "org.freedesktop.DBus.Error.InvalidArgs", dErr.Name)

	dErr = char.WriteValue(nil, options("mtu", uint16(23), "type", "bogus"))
	require.NotNil(t, dErr)
	assert.Equal(t, "org.freedesktop.DBus.Error.InvalidArgs", dErr.Name)

	dErr = char.WriteValue(nil, options("mtu", "23"))
	require.NotNil(t, dErr)
	assert.Equal(t, "org.freedesktop.DBus.Error.InvalidArgs", dErr.Name)
	assert.False(t, called)
}

func TestHandlerRejects(t *testing.T) {
	for _, tc := range []struct {
		err  error
		name string
	}{
		{RejectInvalidOffset, "org.bluez.Error.InvalidOffset"},
		{fmt.Errorf("checking length: %w", RejectInvalidValueLength), "org.bluez.Error.InvalidValueLength"},
		{RejectNotAuthorized, "org.bluez.Error.NotAuthorized"},
		{RejectInProgress, "org.bluez.Error.InProgress"},
		{errors.New("disk full"), "org.bluez.Error.Failed"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			conn := newFakeConn()
			_, service := register(t, conn, Characteristic{
				UUID: CharacteristicUUIDBatteryLevel,
				Write: &CharacteristicWrite{Write: true, Method: WriteFunc(func([]byte, WriteRequest) error {
					return tc.err
				})},
				Descriptors: []Descriptor{{
					UUID: DescriptorUUIDCharacteristicUserDescription,
					Read: &DescriptorRead{Read: true, Func: func(ReadRequest) ([]byte, error) {
						return nil, tc.err
					}},
				}},
			})
			char := conn.characteristic(t, service+"/char0")
			dErr := char.WriteValue([]byte{1}, options("mtu", uint16(23)))
			require.NotNil(t, dErr)
			assert.Equal(t, tc.name, dErr.Name)

			desc := conn.object(service+"/char0/desc0", gattDescriptorInterface).(*registeredDescriptor)
			_, dErr = desc.ReadValue(options("offset", uint16(0)))
			require.NotNil(t, dErr)
			assert.Equal(t, tc.name, dErr.Name)
		})
	}
}

func TestWriteValue(t *testing.T) {
	conn := newFakeConn()
	writes := make(chan WriteRequest, 1)
	var written []byte
	_, service := register(t, conn, Characteristic{
		UUID: CharacteristicUUIDHeartRateControlPoint,
		Write: &CharacteristicWrite{Write: true, Method: WriteFunc(func(value []byte, req WriteRequest) error {
			written = value
			writes <- req
			return nil
		})},
	})
	char := conn.characteristic(t, service+"/char0")

	dErr := char.WriteValue([]byte{1, 2}, options("mtu", uint16(185), "type", "request", "prepare-authorize", true, "link", "BR/EDR"))
	require.Nil(t, dErr)
	assert.Equal(t, WriteRequest{MTU: 185, Type: WriteTypeRequest, Link: LinkBREDR, PrepareAuthorize: true}, <-writes)
	assert.Equal(t, []byte{1, 2}, written)
}

func TestDescriptorWithoutMTU(t *testing.T) {
	conn := newFakeConn()
	value := NewValue([]byte("Heart Rate"))
	_, service := register(t, conn, Characteristic{
		UUID: CharacteristicUUIDHeartRateMeasurement,
		Descriptors: []Descriptor{{
			UUID:  DescriptorUUIDCharacteristicUserDescription,
			Read:  &DescriptorRead{Read: true, Func: value.ReadFunc()},
			Write: &DescriptorWrite{Write: true, Func: value.WriteFunc()},
		}},
	})
	desc := conn.object(service+"/char0/desc0", gattDescriptorInterface).(*registeredDescriptor)

	got, dErr := desc.ReadValue(options("offset", uint16(6)))
	require.Nil(t, dErr)
	assert.Equal(t, []byte("Rate"), got)

	require.Nil(t, desc.WriteValue([]byte("Pulse"), options()))
	assert.Equal(t, []byte("Pulse"), value.Get())
	assert.Equal(t, []string{"read", "write"}, desc.properties()["Flags"].Value())
}

func TestIOCollapsesWithoutControl(t *testing.T) {
	conn := newFakeConn()
	_, service := register(t, conn, Characteristic{
		UUID:   CharacteristicUUIDUARTRX,
		Write:  &CharacteristicWrite{Write: true, WriteWithoutResponse: true, Method: WriteIO{}},
		Notify: &CharacteristicNotify{Notify: true, Method: NotifyIO{}},
	})
	char := conn.characteristic(t, service+"/char0")

	props := char.properties()
	assert.NotContains(t, props, "WriteAcquired")
	assert.NotContains(t, props, "NotifyAcquired")
	assert.Equal(t, []string{}, props["Flags"].Value())

	_, _, dErr := char.AcquireWrite(options("mtu", uint16(23)))
	require.NotNil(t, dErr)
	assert.Equal(t, "org.bluez.Error.NotSupported", dErr.Name)
	_, _, dErr = char.AcquireNotify(options("mtu", uint16(23)))
	require.NotNil(t, dErr)
	assert.Equal(t, "org.bluez.Error.NotSupported", dErr.Name)
}

func TestIOProperties(t *testing.T) {
	conn := newFakeConn()
	_, handle := NewCharacteristicControl()
	_, service := register(t, conn, Characteristic{
		UUID:    CharacteristicUUIDUARTRX,
		Write:   &CharacteristicWrite{Write: true, WriteWithoutResponse: true, Method: WriteIO{}},
		Notify:  &CharacteristicNotify{Notify: true, Method: NotifyIO{}},
		Control: handle,
	})
	char := conn.characteristic(t, service+"/char0")

	props := char.properties()
	assert.Equal(t, false, props["WriteAcquired"].Value())
	assert.Equal(t, false, props["NotifyAcquired"].Value())
	assert.Equal(t, []string{"write", "write-without-response", "notify"}, props["Flags"].Value())

	dErr := char.WriteValue([]byte{1}, options("mtu", uint16(23)))
	require.NotNil(t, dErr)
	assert.Equal(t, "org.bluez.Error.NotSupported", dErr.Name)
}

func TestIntrospection(t *testing.T) {
	conn := newFakeConn()
	h, service := register(t, conn, Characteristic{UUID: CharacteristicUUIDBatteryLevel})

	data, dErr := conn.object(service+"/char0", introspectInterface).(introspect.Introspectable).Introspect()
	require.Nil(t, dErr)
	for _, want := range []string{
		`<interface name="org.bluez.GattCharacteristic1">`,
		`<method name="AcquireWrite">`,
		`<method name="StartNotify">`,
		`<property name="Handle" type="q" access="readwrite">`,
		`<property name="UUID" type="s" access="read">`,
		`<interface name="org.freedesktop.DBus.Properties">`,
	} {
		assert.Contains(t, data, want)
	}

	data, dErr = conn.object(h.Path(), introspectInterface).(introspect.Introspectable).Introspect()
	require.Nil(t, dErr)
	assert.Contains(t, data, `<method name="GetManagedObjects">`)
	assert.Contains(t, data, `<node name="service0">`)
}

func TestFinalizerReleases(t *testing.T) {
	conn := newFakeConn()
	mgr := &fakeManager{}
	srv := newTestServer(conn)
	func() {
		_, err := srv.Register(mgr, testApplication())
		require.NoError(t, err)
	}()

	require.Eventually(t, func() bool {
		runtime.GC()
		return conn.count() == 0
	}, 5*time.Second, 10*time.Millisecond)
	assert.Len(t, mgr.unregisteredPaths(), 1)
}

func TestReadFixedValue(t *testing.T) {
	conn := newFakeConn()
	srv := newTestServer(conn)
	h, err := srv.Register(&fakeManager{}, Application{Services: []Service{{
		UUID:    ServiceUUIDHeartRate,
		Primary: true,
		Characteristics: []Characteristic{{
			UUID: CharacteristicUUIDBodySensorLocation,
			Read: &CharacteristicRead{Read: true, Func: func(ReadRequest) ([]byte, error) {
				return []byte{0x01, 0x02}, nil
			}},
		}},
	}}})
	require.NoError(t, err)
	defer h.Release()

	char := conn.characteristic(t, h.Path()+"/service0/char0")
	value, dErr := char.ReadValue(options("mtu", uint16(23)))
	require.Nil(t, dErr)
	assert.Equal(t, []byte{0x01, 0x02}, value)

	dErr = char.WriteValue([]byte{0x03}, options("mtu", uint16(23)))
	require.NotNil(t, dErr)
	assert.Equal(t, "org.bluez.Error.NotSupported", dErr.Name)
}
