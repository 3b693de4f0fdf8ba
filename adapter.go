package bluetooth

// AdapterState is the power state of a Bluetooth adapter.
type AdapterState int

const (
	AdapterStateUnknown AdapterState = iota
	AdapterStatePoweredOff
	AdapterStatePoweredOn
)

func (s AdapterState) String() string {
	switch s {
	case AdapterStatePoweredOff:
		return "PoweredOff"
	case AdapterStatePoweredOn:
		return "PoweredOn"
	default:
		return "Unknown"
	}
}
