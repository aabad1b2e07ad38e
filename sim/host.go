package sim

import (
	"fmt"
	"sync"

	"github.com/bobuhiro11/gopcibus/device"
	"github.com/bobuhiro11/gopcibus/pci"
)

// HostBridge decodes Configuration Space Access Mechanism #1 on behalf of
// a Segment: 0xCF8 latches the address, 0xCFC-0xCFF move the data.
type HostBridge struct {
	mu   sync.Mutex
	addr pci.ConfigAddress
	seg  *Segment
}

func NewHostBridge(seg *Segment) *HostBridge {
	return &HostBridge{seg: seg}
}

// Devices returns the two port devices to register on an I/O bus.
func (h *HostBridge) Devices() []device.IODevice {
	return []device.IODevice{&addressPort{h}, &dataPort{h}}
}

type addressPort struct{ h *HostBridge }

func (p *addressPort) IOPort() uint64 { return pci.ConfigAddressPort }
func (p *addressPort) Size() uint64   { return 4 }

func (p *addressPort) Read(port uint64, values []byte) error {
	if len(values) != 4 {
		return device.ErrDataLenInvalid
	}

	p.h.mu.Lock()
	defer p.h.mu.Unlock()

	copy(values, pci.NumToBytes(uint32(p.h.addr)))

	return nil
}

func (p *addressPort) Write(port uint64, values []byte) error {
	if len(values) != 4 {
		return device.ErrDataLenInvalid
	}

	p.h.mu.Lock()
	defer p.h.mu.Unlock()

	p.h.addr = pci.ConfigAddress(pci.BytesToNum(values))

	return nil
}

type dataPort struct{ h *HostBridge }

func (p *dataPort) IOPort() uint64 { return pci.ConfigDataPort }
func (p *dataPort) Size() uint64   { return 4 }

// offset can be obtained from many source as below:
//
//	(address from IO port 0xcf8) & 0xfc + (IO port address for Data) - 0xCFC
func (p *dataPort) target(port uint64, n int) (pci.Address, uint16, bool, error) {
	p.h.mu.Lock()
	a := p.h.addr
	p.h.mu.Unlock()

	lane := port - pci.ConfigDataPort
	if lane+uint64(n) > 4 {
		return pci.Address{}, 0, false, fmt.Errorf("port %#x width %d: %w", port, n, device.ErrDataLenInvalid)
	}

	return a.Address(), uint16(a.RegisterOffset() + uint32(lane)), a.IsEnable(), nil
}

func (p *dataPort) Read(port uint64, values []byte) error {
	addr, off, enabled, err := p.target(port, len(values))
	if err != nil {
		return err
	}

	if !enabled {
		for i := range values {
			values[i] = 0xff
		}

		return nil
	}

	return p.h.seg.ReadConfig(addr, off, values)
}

func (p *dataPort) Write(port uint64, values []byte) error {
	addr, off, enabled, err := p.target(port, len(values))
	if err != nil || !enabled {
		return err
	}

	return p.h.seg.WriteConfig(addr, off, values)
}
