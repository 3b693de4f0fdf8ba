// Package bluetooth publishes local GATT services to BlueZ over D-Bus.
//
// An Application is a tree of services, characteristics and descriptors.
// Registering it exports every attribute as a D-Bus object, hands the tree to
// the adapter's GATT manager and dispatches the read, write and notification
// requests that bluetoothd sends back to user supplied handlers. Writes and
// notifications can alternatively be streamed through a socket pair instead
// of individual D-Bus calls (see WriteIO and NotifyIO).
//
// Some documentation for the BlueZ D-Bus interfaces:
// https://git.kernel.org/pub/scm/bluetooth/bluez.git/tree/doc/gatt-api.txt
package bluetooth // import "github.com/localgatt/bluetooth"
