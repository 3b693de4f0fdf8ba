package bluetooth

import (
	"github.com/godbus/dbus/v5"
)

// LinkType is the transport a request arrived on. The zero value means the
// link type was not reported.
type LinkType uint8

const (
	LinkUnknown LinkType = iota
	LinkBREDR
	LinkLE
)

func parseLinkType(s string) LinkType {
	switch s {
	case "BR/EDR":
		return LinkBREDR
	case "LE":
		return LinkLE
	default:
		return LinkUnknown
	}
}

func (l LinkType) String() string {
	switch l {
	case LinkBREDR:
		return "BR/EDR"
	case LinkLE:
		return "LE"
	default:
		return "unknown"
	}
}

// WriteType is the ATT operation used to write a value.
type WriteType uint8

const (
	// WriteTypeCommand is a Write Command (write without response).
	WriteTypeCommand WriteType = iota
	// WriteTypeRequest is a Write Request.
	WriteTypeRequest
	// WriteTypeReliable is part of a Reliable Write procedure.
	WriteTypeReliable
)

func parseWriteType(s string) (WriteType, bool) {
	switch s {
	case "command":
		return WriteTypeCommand, true
	case "request":
		return WriteTypeRequest, true
	case "reliable":
		return WriteTypeReliable, true
	default:
		return 0, false
	}
}

func (t WriteType) String() string {
	switch t {
	case WriteTypeRequest:
		return "request"
	case WriteTypeReliable:
		return "reliable"
	default:
		return "command"
	}
}

// ReadRequest describes a remote read of a characteristic or descriptor.
type ReadRequest struct {
	// Offset into the value at which the read starts.
	Offset uint16
	// MTU exchanged with the remote device. Zero for descriptors on BlueZ
	// versions that do not report it.
	MTU uint16
	// Link the request arrived on.
	Link LinkType
	// Device is the object path of the remote device, if reported.
	Device dbus.ObjectPath
}

// WriteRequest describes a remote write of a characteristic or descriptor.
type WriteRequest struct {
	// Offset into the value at which the write starts.
	Offset uint16
	// Type of the write operation.
	Type WriteType
	// MTU exchanged with the remote device.
	MTU uint16
	// Link the request arrived on.
	Link LinkType
	// Device is the object path of the remote device, if reported.
	Device dbus.ObjectPath
	// PrepareAuthorize is set when bluetoothd asks for authorization of a
	// prepared write. The value must not be stored in that case.
	PrepareAuthorize bool
}

// acquireRequest holds the options of AcquireWrite and AcquireNotify.
type acquireRequest struct {
	MTU  uint16
	Link LinkType
}

// option looks up key in options. A missing key is not an error, a value of
// the wrong type is.
func option[T any](options map[string]dbus.Variant, key string) (T, bool, error) {
	var zero T
	variant, found := options[key]
	if !found {
		return zero, false, nil
	}
	value, ok := variant.Value().(T)
	if !ok {
		return zero, false, &OptionError{Key: key}
	}
	return value, true, nil
}

// requiredOption is like option but fails if the key is missing.
func requiredOption[T any](options map[string]dbus.Variant, key string) (T, error) {
	value, found, err := option[T](options, key)
	if err != nil {
		return value, err
	}
	if !found {
		return value, &OptionError{Key: key}
	}
	return value, nil
}

// parseCommon decodes the keys shared by every request type.
func parseCommon(options map[string]dbus.Variant, requireMTU bool) (offset, mtu uint16, link LinkType, device dbus.ObjectPath, err error) {
	if offset, _, err = option[uint16](options, "offset"); err != nil {
		return
	}
	if requireMTU {
		mtu, err = requiredOption[uint16](options, "mtu")
	} else {
		mtu, _, err = option[uint16](options, "mtu")
	}
	if err != nil {
		return
	}
	linkName, _, err := option[string](options, "link")
	if err != nil {
		return
	}
	link = parseLinkType(linkName)
	device, _, err = option[dbus.ObjectPath](options, "device")
	return
}

func parseReadRequest(options map[string]dbus.Variant, requireMTU bool) (ReadRequest, error) {
	offset, mtu, link, device, err := parseCommon(options, requireMTU)
	if err != nil {
		return ReadRequest{}, err
	}
	return ReadRequest{Offset: offset, MTU: mtu, Link: link, Device: device}, nil
}

func parseWriteRequest(options map[string]dbus.Variant, requireMTU bool) (WriteRequest, error) {
	offset, mtu, link, device, err := parseCommon(options, requireMTU)
	if err != nil {
		return WriteRequest{}, err
	}
	req := WriteRequest{Offset: offset, MTU: mtu, Link: link, Device: device}
	typeName, found, err := option[string](options, "type")
	if err != nil {
		return WriteRequest{}, err
	}
	if found {
		t, ok := parseWriteType(typeName)
		if !ok {
			return WriteRequest{}, &OptionError{Key: "type"}
		}
		req.Type = t
	}
	if req.PrepareAuthorize, _, err = option[bool](options, "prepare-authorize"); err != nil {
		return WriteRequest{}, err
	}
	return req, nil
}

func parseAcquireRequest(options map[string]dbus.Variant) (acquireRequest, error) {
	mtu, err := requiredOption[uint16](options, "mtu")
	if err != nil {
		return acquireRequest{}, err
	}
	linkName, _, err := option[string](options, "link")
	if err != nil {
		return acquireRequest{}, err
	}
	return acquireRequest{MTU: mtu, Link: parseLinkType(linkName)}, nil
}
