package bluetooth

// New16BitUUID returns a new 128-bit UUID based on a 16-bit UUID.
//
// Note: only use registered UUIDs. See
// https://www.bluetooth.com/specifications/gatt/services/ for a list.
func New16BitUUID(shortUUID uint16) UUID {
	// https://stackoverflow.com/questions/36212020/how-can-i-convert-a-bluetooth-16-bit-service-uuid-into-a-128-bit-uuid
	var uuid UUID
	uuid[0] = 0x5F9B34FB
	uuid[1] = 0x80000080
	uuid[2] = 0x00001000
	uuid[3] = uint32(shortUUID)
	return uuid
}

// Services and characteristics used by the examples.
var (
	ServiceUUIDHeartRate = New16BitUUID(0x180D)
	ServiceUUIDBattery   = New16BitUUID(0x180F)

	CharacteristicUUIDHeartRateMeasurement  = New16BitUUID(0x2A37)
	CharacteristicUUIDBodySensorLocation    = New16BitUUID(0x2A38)
	CharacteristicUUIDHeartRateControlPoint = New16BitUUID(0x2A39)
	CharacteristicUUIDBatteryLevel          = New16BitUUID(0x2A19)

	DescriptorUUIDCharacteristicUserDescription = New16BitUUID(0x2901)

	// Nordic UART Service, which is not a registered 16-bit UUID.
	ServiceUUIDNordicUART    = UUID{0x24DCCA9E, 0xE0A9E50E, 0xB5A3F393, 0x6E400001}
	CharacteristicUUIDUARTRX = UUID{0x24DCCA9E, 0xE0A9E50E, 0xB5A3F393, 0x6E400002}
	CharacteristicUUIDUARTTX = UUID{0x24DCCA9E, 0xE0A9E50E, 0xB5A3F393, 0x6E400003}
)
