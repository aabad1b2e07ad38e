package pci

import (
	"fmt"
	"sync"
)

// Configuration Space Access Mechanism #1
const (
	ConfigAddressPort = 0xcf8
	ConfigDataPort    = 0xcfc

	configSpaceSize = 0x100
)

// PortIO is a port-mapped I/O space.
type PortIO interface {
	In(port uint64, data []byte) error
	Out(port uint64, data []byte) error
}

// ConfigAddress is the value written to the 0xCF8 address register.
type ConfigAddress uint32

func NewConfigAddress(addr Address, offset uint16) ConfigAddress {
	return ConfigAddress(1<<31 |
		uint32(addr.Bus)<<16 |
		uint32(addr.Device&0x1f)<<11 |
		uint32(addr.Function&0x7)<<8 |
		uint32(offset)&0xfc)
}

func (a ConfigAddress) RegisterOffset() uint32 {
	return uint32(a) & 0xfc
}

func (a ConfigAddress) FunctionNumber() uint32 {
	return (uint32(a) >> 8) & 0x7
}

func (a ConfigAddress) DeviceNumber() uint32 {
	return (uint32(a) >> 11) & 0x1f
}

func (a ConfigAddress) BusNumber() uint32 {
	return (uint32(a) >> 16) & 0xff
}

func (a ConfigAddress) IsEnable() bool {
	return uint32(a)>>31 == 1
}

func (a ConfigAddress) Address() Address {
	return Address{
		Bus:      uint8(a.BusNumber()),
		Device:   uint8(a.DeviceNumber()),
		Function: uint8(a.FunctionNumber()),
	}
}

// Mechanism1 reaches configuration space through the 0xCF8/0xCFC port
// pair. The address/data sequence is serialized.
type Mechanism1 struct {
	mu    sync.Mutex
	ports PortIO
}

func NewMechanism1(ports PortIO) *Mechanism1 {
	return &Mechanism1{ports: ports}
}

func (m *Mechanism1) ReadConfig(addr Address, offset uint16, data []byte) error {
	return m.access(addr, offset, data, m.ports.In)
}

func (m *Mechanism1) WriteConfig(addr Address, offset uint16, data []byte) error {
	return m.access(addr, offset, data, m.ports.Out)
}

func (m *Mechanism1) access(addr Address, offset uint16, data []byte,
	op func(port uint64, data []byte) error,
) error {
	if err := checkWidth(data); err != nil {
		return err
	}

	if !addr.Valid() {
		return fmt.Errorf("%v: %w", addr, ErrInvalidAddress)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return chunks(offset, len(data), configSpaceSize, func(off uint16, lo, hi int) error {
		ca := NumToBytes(uint32(NewConfigAddress(addr, off)))
		if err := m.ports.Out(ConfigAddressPort, ca); err != nil {
			return fmt.Errorf("select %v+%#x: %w", addr, off, err)
		}

		// see pci_conf1_read in linux/arch/x86/pci/direct.c
		return op(ConfigDataPort+uint64(off&3), data[lo:hi])
	})
}
