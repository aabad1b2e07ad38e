// Package iodev routes port I/O to the devices that claim it.
package iodev

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bobuhiro11/gopcibus/device"
)

var errPortOverlap = errors.New("io port range already claimed")

// Bus dispatches In/Out to registered devices by port range. Ports with
// no device fall through to a FloatingDevice.
type Bus struct {
	mu       sync.RWMutex
	devices  []device.IODevice
	floating *FloatingDevice
}

func NewBus() *Bus {
	return &Bus{floating: &FloatingDevice{Port: 0, Psize: 0x10000}}
}

func (b *Bus) Register(d device.IODevice) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, o := range b.devices {
		if d.IOPort() < o.IOPort()+o.Size() && o.IOPort() < d.IOPort()+d.Size() {
			return fmt.Errorf("port %#x-%#x: %w", d.IOPort(), d.IOPort()+d.Size()-1, errPortOverlap)
		}
	}

	b.devices = append(b.devices, d)

	return nil
}

func (b *Bus) lookup(port uint64) device.IODevice {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, d := range b.devices {
		if device.Claims(d, port) {
			return d
		}
	}

	return b.floating
}

func (b *Bus) In(port uint64, data []byte) error {
	return b.lookup(port).Read(port, data)
}

func (b *Bus) Out(port uint64, data []byte) error {
	return b.lookup(port).Write(port, data)
}
