package pcibus

import (
	"math/bits"

	"github.com/bobuhiro11/gopcibus/pci"
)

const (
	ioBarMask  = 0xfffffffc
	memBarMask = 0xfffffff0
)

// barExisted writes all ones to the register, reads back the size mask
// and restores the original value. The register is meaningless between
// the first write and the restore, so the sequence runs under the probe
// lock. A read-back of zero means nothing is implemented there.
func (e *Enumerator) barExisted(addr pci.Address, offset uint16) (value, original uint32, ok bool, err error) {
	e.lock.Lock()
	defer e.lock.Unlock()

	if original, err = pci.Read32(e.cfg, addr, offset); err != nil {
		return 0, 0, false, err
	}

	if err = pci.Write32(e.cfg, addr, offset, 0xffffffff); err != nil {
		return 0, 0, false, err
	}

	value, err = pci.Read32(e.cfg, addr, offset)

	if rerr := pci.Write32(e.cfg, addr, offset, original); err == nil {
		err = rerr
	}

	if err != nil {
		return 0, 0, false, err
	}

	return value, original, value != 0, nil
}

// ParseBar sizes the BAR at offset into dev.Bars[barIndex] and returns
// the offset of the next BAR register. A 64-bit BAR consumes two
// registers. Anything that decodes to a zero length is left absent.
func (e *Enumerator) ParseBar(dev *Device, offset uint16, barIndex int) (uint16, error) {
	bar := &dev.Bars[barIndex]
	*bar = Bar{Offset: offset}

	value, original, ok, err := e.barExisted(dev.Address, offset)
	if err != nil {
		return offset, err
	}

	// Some devices don't fully comply to PCI spec 2.2, so scan all BARs.
	if !ok {
		return offset + 4, nil
	}

	if value&0x1 != 0 {
		size := ^(value & ioBarMask) + 1

		if value&0xffff0000 != 0 {
			bar.Type = BarIO32
			bar.Length = uint64(size)
		} else {
			bar.Type = BarIO16
			bar.Length = uint64(size & 0xffff)
		}

		bar.BaseAddress = uint64(original & ioBarMask)
	} else {
		bar.Prefetchable = value&0x8 != 0
		bar.BaseAddress = uint64(original & memBarMask)

		switch value & 0x7 {
		case 0x0:
			bar.Type = BarMem32
			if bar.Prefetchable {
				bar.Type = BarPMem32
			}

			bar.Length = uint64(^(value & memBarMask) + 1)
		case 0x4:
			bar.Type = BarMem64
			if bar.Prefetchable {
				bar.Type = BarPMem64
			}

			bar.Wide = true

			return e.parseUpperBar(dev, bar, value&memBarMask, offset+4)
		default:
			bar.Type = BarUnknown
		}
	}

	finishBar(bar)

	return offset + 4, nil
}

// parseUpperBar sizes the high dword of a 64-bit BAR and combines it
// with the masked low dword.
func (e *Enumerator) parseUpperBar(dev *Device, bar *Bar, low uint32, offset uint16) (uint16, error) {
	value, original, ok, err := e.barExisted(dev.Address, offset)
	if err != nil {
		return offset, err
	}

	if !ok && low == 0 {
		bar.Type = BarUnknown
		finishBar(bar)

		return offset + 4, nil
	}

	if value == 0 {
		value = 0xffffffff
	} else {
		// unimplemented upper address bits read back as zero
		value |= 0xffffffff << (bits.Len32(value) - 1)
	}

	bar.BaseAddress |= uint64(original) << 32
	bar.Length = ^(uint64(value)<<32 | uint64(low)) + 1
	finishBar(bar)

	return offset + 4, nil
}

func finishBar(bar *Bar) {
	if bar.Type == BarUnknown || bar.Length == 0 {
		bar.Type = BarUnknown
		bar.BaseAddress = 0
		bar.Length = 0
		bar.Alignment = 0

		return
	}

	bar.Alignment = bar.Length - 1
}
