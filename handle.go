package bluetooth

import (
	"fmt"
	"sync"
)

// handleCell holds the attribute handle assigned by bluetoothd. It has a single
// writer, the registered attribute, and any number of readers. Only the last
// value is kept.
type handleCell struct {
	mu     sync.RWMutex
	handle uint16
}

// set publishes a new handle. Zero means no handle is assigned.
func (c *handleCell) set(handle uint16) {
	c.mu.Lock()
	c.handle = handle
	c.mu.Unlock()
}

func (c *handleCell) current() (uint16, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.handle == 0 {
		return 0, ErrNotRegistered
	}
	return c.handle, nil
}

// value returns the current handle or zero.
func (c *handleCell) value() uint16 {
	handle, _ := c.current()
	return handle
}

// ServiceControl observes a service once it has been registered.
type ServiceControl struct {
	cell *handleCell
}

// Handle returns the handle assigned to the service. It returns
// ErrNotRegistered if no handle has been assigned yet.
func (c *ServiceControl) Handle() (uint16, error) {
	return c.cell.current()
}

func (c *ServiceControl) String() string {
	return fmt.Sprintf("ServiceControl{handle: %d}", c.cell.value())
}

// ServiceControlHandle is stored in a Service to connect it to the
// ServiceControl it was created with. The zero value is not connected to
// anything.
type ServiceControlHandle struct {
	cell *handleCell
}

// NewServiceControl creates a ServiceControl and the handle to store in the
// Service it should observe.
func NewServiceControl() (*ServiceControl, ServiceControlHandle) {
	cell := new(handleCell)
	return &ServiceControl{cell: cell}, ServiceControlHandle{cell: cell}
}

// handleCell returns the cell to publish handles to.
func (h ServiceControlHandle) handleCell() *handleCell {
	if h.cell == nil {
		return new(handleCell)
	}
	return h.cell
}

// DescriptorControl observes a descriptor once it has been registered.
type DescriptorControl struct {
	cell *handleCell
}

// Handle returns the handle assigned to the descriptor. It returns
// ErrNotRegistered if no handle has been assigned yet.
func (c *DescriptorControl) Handle() (uint16, error) {
	return c.cell.current()
}

func (c *DescriptorControl) String() string {
	return fmt.Sprintf("DescriptorControl{handle: %d}", c.cell.value())
}

// DescriptorControlHandle is stored in a Descriptor to connect it to the
// DescriptorControl it was created with.
type DescriptorControlHandle struct {
	cell *handleCell
}

// NewDescriptorControl creates a DescriptorControl and the handle to store in
// the Descriptor it should observe.
func NewDescriptorControl() (*DescriptorControl, DescriptorControlHandle) {
	cell := new(handleCell)
	return &DescriptorControl{cell: cell}, DescriptorControlHandle{cell: cell}
}

func (h DescriptorControlHandle) handleCell() *handleCell {
	if h.cell == nil {
		return new(handleCell)
	}
	return h.cell
}
