package pcibus

import (
	"fmt"

	"github.com/bobuhiro11/gopcibus/pci"
)

// newDevice builds the record for a function that answered the probe:
// identity, header kind, decode capabilities and sized BARs. In full
// mode the function is disabled first, and bridge windows are closed
// once their capabilities are known.
func (e *Enumerator) newDevice(addr pci.Address, h Header) (*Device, error) {
	dev := &Device{
		Address: addr,
		Identity: Identity{
			VendorID:   h.VendorID(),
			DeviceID:   h.DeviceID(),
			RevisionID: h.RevisionID(),
		},
		Class:         h.Class(),
		Subclass:      h.Subclass(),
		HeaderType:    h.HeaderType(),
		MultiFunction: h.MultiFunction(),
	}

	var barCount int

	switch dev.HeaderType {
	case pci.HeaderTypeNormal:
		dev.Kind = KindDevice
		barCount = pci.DeviceBARCount
	case pci.HeaderTypeBridge:
		dev.Kind = KindBridge
		barCount = pci.BridgeBARCount
	case pci.HeaderTypeCardBus:
		dev.Kind = KindCardBus
		barCount = pci.CardBusBARCount
	default:
		return nil, fmt.Errorf("%v header type %#x: %w", addr, dev.HeaderType, ErrUnsupportedHeader)
	}

	if dev.Kind == KindDevice {
		if err := e.readSubsystem(dev); err != nil {
			return nil, err
		}
	}

	if e.opts.Mode == ModeFull {
		if err := e.disable(dev); err != nil {
			return nil, fmt.Errorf("disable %v: %w", addr, err)
		}
	}

	switch dev.Kind {
	case KindBridge:
		if err := e.detectBridgeDecodes(dev); err != nil {
			return nil, fmt.Errorf("detect decodes of %v: %w", addr, err)
		}
	case KindCardBus:
		dev.Decodes = DecodeMem32 | DecodePMem32 | DecodeIO32
	}

	dev.Bars = make([]Bar, barCount)

	offset := uint16(pci.BAR0Offset)
	for i := 0; i < barCount && offset < pci.BAR0Offset+uint16(barCount)*4; i++ {
		next, err := e.ParseBar(dev, offset, i)
		if err != nil {
			return nil, fmt.Errorf("size BAR %#02x of %v: %w", offset, addr, err)
		}

		offset = next
	}

	if e.opts.Incompatible != nil {
		if ov := e.opts.Incompatible.Lookup(dev.Identity); len(ov) > 0 {
			e.log.Debug("applying BAR overrides", "dev", addr, "count", len(ov))
			ApplyOverrides(dev, ov)
		}
	}

	return dev, nil
}

func (e *Enumerator) readSubsystem(dev *Device) error {
	var err error

	if dev.SubsystemVendorID, err = pci.Read16(e.cfg, dev.Address, pci.SubVendorIDOffset); err != nil {
		return err
	}

	dev.SubsystemID, err = pci.Read16(e.cfg, dev.Address, pci.SubsystemIDOffset)

	return err
}

// disable clears the decode and bus master bits and, for bridges, the
// bridge control register.
func (e *Enumerator) disable(dev *Device) error {
	cmd, err := pci.Read16(e.cfg, dev.Address, pci.CommandOffset)
	if err != nil {
		return err
	}

	if err := pci.Write16(e.cfg, dev.Address, pci.CommandOffset, cmd&^pci.CommandOwnedBits); err != nil {
		return err
	}

	if dev.IsBridge() {
		return pci.Write16(e.cfg, dev.Address, pci.BridgeControlOffset, 0)
	}

	return nil
}

// detectBridgeDecodes finds out which window types a PCI-PCI bridge
// forwards. The I/O and prefetchable windows are optional; writing ones
// and reading back tells whether they are implemented, and the low
// nibble whether they are 32/64 bits wide.
func (e *Enumerator) detectBridgeDecodes(dev *Device) error {
	dev.Decodes = DecodeMem32
	dev.BridgeIOAlignment = e.opts.BridgeIOAlignment

	io, err := e.probeRegister16(dev.Address, pci.IOBaseOffset)
	if err != nil {
		return err
	}

	if io != 0 {
		dev.Decodes |= DecodeIO16
		if io&0x0f == 0x01 {
			dev.Decodes |= DecodeIO32
		}
	}

	pmem, err := e.probeRegister32(dev.Address, pci.PrefetchBaseOffset)
	if err != nil {
		return err
	}

	if pmem != 0 {
		dev.Decodes |= DecodePMem32
		if pmem&0x0f == 0x01 {
			dev.Decodes |= DecodePMem64
		}
	}

	if e.opts.Mode == ModeFull {
		return e.closeBridgeWindows(dev)
	}

	return nil
}

func (e *Enumerator) probeRegister16(addr pci.Address, offset uint16) (uint16, error) {
	e.lock.Lock()
	defer e.lock.Unlock()

	orig, err := pci.Read16(e.cfg, addr, offset)
	if err != nil {
		return 0, err
	}

	if err := pci.Write16(e.cfg, addr, offset, 0xffff); err != nil {
		return 0, err
	}

	v, err := pci.Read16(e.cfg, addr, offset)
	if werr := pci.Write16(e.cfg, addr, offset, orig); err == nil {
		err = werr
	}

	return v, err
}

func (e *Enumerator) probeRegister32(addr pci.Address, offset uint16) (uint32, error) {
	e.lock.Lock()
	defer e.lock.Unlock()

	orig, err := pci.Read32(e.cfg, addr, offset)
	if err != nil {
		return 0, err
	}

	if err := pci.Write32(e.cfg, addr, offset, 0xffffffff); err != nil {
		return 0, err
	}

	v, err := pci.Read32(e.cfg, addr, offset)
	if werr := pci.Write32(e.cfg, addr, offset, orig); err == nil {
		err = werr
	}

	return v, err
}

// closeBridgeWindows programs every window with base above limit so
// the bridge forwards nothing until resources are assigned.
func (e *Enumerator) closeBridgeWindows(dev *Device) error {
	writes := []struct {
		offset uint16
		width  int
		value  uint32
	}{
		{pci.IOBaseOffset, 1, 0xff},
		{pci.IOLimitOffset, 1, 0x00},
		{pci.MemoryBaseOffset, 2, 0xffff},
		{pci.MemoryLimitOffset, 2, 0x0000},
		{pci.PrefetchBaseOffset, 2, 0xffff},
		{pci.PrefetchLimitOffset, 2, 0x0000},
		{pci.PrefetchBaseUpper32, 4, 0xffffffff},
		{pci.PrefetchLimitUpper32, 4, 0x00000000},
		{pci.IOBaseUpper16Offset, 2, 0xffff},
		{pci.IOLimitUpper16Offset, 2, 0x0000},
	}

	for _, w := range writes {
		var err error

		switch w.width {
		case 1:
			err = pci.Write8(e.cfg, dev.Address, w.offset, uint8(w.value))
		case 2:
			err = pci.Write16(e.cfg, dev.Address, w.offset, uint16(w.value))
		default:
			err = pci.Write32(e.cfg, dev.Address, w.offset, w.value)
		}

		if err != nil {
			return fmt.Errorf("close window register %#02x: %w", w.offset, err)
		}
	}

	return nil
}
