package bluetooth

import (
	"errors"

	"github.com/godbus/dbus/v5"
)

// Errors returned to the local process. They never reach the remote device.
var (
	ErrNotRegistered              = errors.New("bluetooth: not registered")
	ErrConnectionLost             = errors.New("bluetooth: D-Bus connection lost")
	ErrNotificationSessionStopped = errors.New("bluetooth: notification session stopped")
	ErrIndicationUnconfirmed      = errors.New("bluetooth: indication was not confirmed")
)

// bluezErrorPrefix is prepended to the name of a Reject to form the D-Bus
// error name that bluetoothd maps onto an ATT error code.
const bluezErrorPrefix = "org.bluez.Error."

// Reject is the reason given to a remote device when one of its requests is
// refused. Handlers return it (possibly wrapped) as their error. Any other
// error is reported as RejectFailed.
type Reject uint8

const (
	RejectFailed Reject = iota
	RejectInProgress
	RejectInvalidOffset
	RejectInvalidValueLength
	RejectNotPermitted
	RejectNotAuthorized
	RejectNotSupported
)

var rejectNames = [...]string{
	RejectFailed:             "Failed",
	RejectInProgress:         "InProgress",
	RejectInvalidOffset:      "InvalidOffset",
	RejectInvalidValueLength: "InvalidValueLength",
	RejectNotPermitted:       "NotPermitted",
	RejectNotAuthorized:      "NotAuthorized",
	RejectNotSupported:       "NotSupported",
}

var rejectMessages = [...]string{
	RejectFailed:             "request failed",
	RejectInProgress:         "request already in progress",
	RejectInvalidOffset:      "invalid offset",
	RejectInvalidValueLength: "invalid value length",
	RejectNotPermitted:       "request not permitted",
	RejectNotAuthorized:      "request not authorized",
	RejectNotSupported:       "request not supported",
}

// Name returns the BlueZ error name of the reject reason, such as
// "InvalidOffset".
func (r Reject) Name() string {
	if int(r) < len(rejectNames) {
		return rejectNames[r]
	}
	return rejectNames[RejectFailed]
}

func (r Reject) Error() string {
	if int(r) < len(rejectMessages) {
		return "bluetooth: " + rejectMessages[r]
	}
	return "bluetooth: " + rejectMessages[RejectFailed]
}

// dbusError converts the reject reason into the error sent to bluetoothd.
func (r Reject) dbusError() *dbus.Error {
	return dbus.NewError(bluezErrorPrefix+r.Name(), []interface{}{r.Error()})
}

// rejectOf extracts the reject reason from a handler error.
func rejectOf(err error) Reject {
	var r Reject
	if errors.As(err, &r) {
		return r
	}
	return RejectFailed
}

// toDBusError converts an error raised while serving a request into the reply
// sent to bluetoothd.
func toDBusError(err error) *dbus.Error {
	var optErr *OptionError
	if errors.As(err, &optErr) {
		return optErr.dbusError()
	}
	return rejectOf(err).dbusError()
}

// OptionError is returned when the options dictionary of an incoming request
// lacks a required entry or carries a value of the wrong type.
type OptionError struct {
	Key string
}

func (e *OptionError) Error() string {
	return "bluetooth: invalid or missing option " + e.Key
}

// dbusError reports the malformed option as an invalid argument.
func (e *OptionError) dbusError() *dbus.Error {
	return dbus.NewError("org.freedesktop.DBus.Error.InvalidArgs", []interface{}{e.Error()})
}
