package bluetooth

// This file implements 16-bit and 128-bit UUIDs as defined in the Bluetooth
// specification.

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// UUID is a single UUID as used in the Bluetooth stack. It is represented as a
// [4]uint32 instead of a [16]byte for efficiency.
type UUID [4]uint32

var errInvalidUUID = errors.New("bluetooth: failed to parse UUID")

// Is16Bit returns whether this UUID is a 16-bit BLE UUID.
func (u UUID) Is16Bit() bool {
	return u.Is32Bit() && u[3] == uint32(uint16(u[3]))
}

// Is32Bit returns whether this UUID is a 32-bit BLE UUID.
func (u UUID) Is32Bit() bool {
	return u[0] == 0x5F9B34FB && u[1] == 0x80000080 && u[2] == 0x00001000
}

// ParseUUID parses the given UUID, which must be in
// 00001234-0000-1000-8000-00805f9b34fb format. If it cannot be parsed, an
// error is returned.
func ParseUUID(s string) (UUID, error) {
	if len(s) != 36 {
		return UUID{}, errInvalidUUID
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return UUID{}, errInvalidUUID
	}
	return NewUUID(parsed), nil
}

// NewUUID converts a RFC 4122 UUID into a Bluetooth UUID.
func NewUUID(u uuid.UUID) UUID {
	return UUID{
		binary.BigEndian.Uint32(u[12:16]),
		binary.BigEndian.Uint32(u[8:12]),
		binary.BigEndian.Uint32(u[4:8]),
		binary.BigEndian.Uint32(u[0:4]),
	}
}

// String returns a human-readable version of this UUID, such as
// 00001234-0000-1000-8000-00805f9b34fb.
func (u UUID) String() string {
	return fmt.Sprintf("%08x-%04x-%04x-%04x-%04x%08x",
		u[3], u[2]>>16, u[2]&0xffff, u[1]>>16, u[1]&0xffff, u[0])
}
