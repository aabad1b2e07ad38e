package pcibus

import (
	"fmt"
	"math"

	"github.com/bobuhiro11/gopcibus/pci"
)

// ProgramResource writes base plus each node's offset into the BARs and
// bridge windows below pool, depth-first. Padding and empty windows are
// never written.
func (e *Enumerator) ProgramResource(base uint64, pool *Resource) error {
	for _, n := range pool.Children {
		addr := base + n.Offset

		switch {
		case n.Usage == UsagePadding:
			continue
		case n.IsBar():
			if err := e.programBar(addr, n); err != nil {
				return err
			}
		default:
			if n.Length == 0 {
				continue
			}

			if err := e.ProgramResource(addr, n); err != nil {
				return err
			}

			if err := e.programWindow(addr, n); err != nil {
				return fmt.Errorf("window of %v: %w", n.Dev.Address, err)
			}
		}
	}

	return nil
}

func (e *Enumerator) programBar(addr uint64, n *Resource) error {
	dev := n.Dev
	bar := &dev.Bars[n.Bar]
	last := addr + n.Length - 1

	if (!bar.Wide && last > math.MaxUint32) || (bar.Type == BarIO16 && last > math.MaxUint16) {
		return fmt.Errorf("%v BAR %#02x at %#x: %w", dev.Address, bar.Offset, addr, ErrAddressOverflow)
	}

	if err := pci.Write32(e.cfg, dev.Address, bar.Offset, uint32(addr)); err != nil {
		return fmt.Errorf("%v BAR %#02x: %w", dev.Address, bar.Offset, err)
	}

	if bar.Wide {
		if err := pci.Write32(e.cfg, dev.Address, bar.Offset+4, uint32(addr>>32)); err != nil {
			return fmt.Errorf("%v BAR %#02x: %w", dev.Address, bar.Offset+4, err)
		}
	}

	bar.BaseAddress = addr
	dev.Allocated = true

	e.log.Debug("programmed", "dev", dev.Address, "bar", fmt.Sprintf("%#02x", bar.Offset), "type", bar.Type, "base", hex(addr))

	return nil
}

func (e *Enumerator) programWindow(addr uint64, n *Resource) error {
	last := addr + n.Length - 1

	e.log.Debug("window", "dev", n.Dev.Address, "type", n.Type, "base", hex(addr), "limit", hex(last))

	switch n.Dev.Kind {
	case KindBridge:
		return e.programBridgeWindow(n.Dev, n.Bar, addr, last)
	case KindCardBus:
		return e.programCardBusWindow(n.Dev, n.Bar, addr, last)
	default:
		return nil
	}
}

type regWrite struct {
	offset uint16
	width  int
	value  uint64
}

func (e *Enumerator) writeAll(addr pci.Address, writes []regWrite) error {
	for _, w := range writes {
		var err error

		switch w.width {
		case 1:
			err = pci.Write8(e.cfg, addr, w.offset, uint8(w.value))
		case 2:
			err = pci.Write16(e.cfg, addr, w.offset, uint16(w.value))
		default:
			err = pci.Write32(e.cfg, addr, w.offset, uint32(w.value))
		}

		if err != nil {
			return fmt.Errorf("register %#02x: %w", w.offset, err)
		}
	}

	return nil
}

func (e *Enumerator) programBridgeWindow(dev *Device, tag int, base, limit uint64) error {
	switch tag {
	case TagIORange:
		if limit > math.MaxUint16 && !dev.Decodes.Has(DecodeIO32) {
			return ErrAddressOverflow
		}

		return e.writeAll(dev.Address, []regWrite{
			{pci.IOBaseOffset, 1, base >> 8},
			{pci.IOLimitOffset, 1, limit >> 8},
			{pci.IOBaseUpper16Offset, 2, base >> 16},
			{pci.IOLimitUpper16Offset, 2, limit >> 16},
		})
	case TagMem32Range, TagMem64Range:
		if limit > math.MaxUint32 {
			return ErrAddressOverflow
		}

		return e.writeAll(dev.Address, []regWrite{
			{pci.MemoryBaseOffset, 2, base >> 16},
			{pci.MemoryLimitOffset, 2, limit >> 16},
		})
	case TagPMem32Range, TagPMem64Range:
		if limit > math.MaxUint32 && !dev.Decodes.Has(DecodePMem64) {
			return ErrAddressOverflow
		}

		return e.writeAll(dev.Address, []regWrite{
			{pci.PrefetchBaseOffset, 2, base >> 16},
			{pci.PrefetchLimitOffset, 2, limit >> 16},
			{pci.PrefetchBaseUpper32, 4, base >> 32},
			{pci.PrefetchLimitUpper32, 4, limit >> 32},
		})
	default:
		return nil
	}
}

// programCardBusWindow uses memory window 0 for Mem32, window 1 in
// prefetch mode for PMem32, and I/O window 0.
func (e *Enumerator) programCardBusWindow(dev *Device, tag int, base, limit uint64) error {
	if limit > math.MaxUint32 {
		return ErrAddressOverflow
	}

	switch tag {
	case TagIORange:
		return e.writeAll(dev.Address, []regWrite{
			{pci.CardBusIOBase0, 4, base},
			{pci.CardBusIOLimit0, 4, limit},
		})
	case TagMem32Range, TagMem64Range:
		return e.writeAll(dev.Address, []regWrite{
			{pci.CardBusMemoryBase0, 4, base},
			{pci.CardBusMemoryLimit0, 4, limit},
		})
	case TagPMem32Range, TagPMem64Range:
		ctl, err := pci.Read16(e.cfg, dev.Address, pci.CardBusBridgeControl)
		if err != nil {
			return err
		}

		return e.writeAll(dev.Address, []regWrite{
			{pci.CardBusMemoryBase1, 4, base},
			{pci.CardBusMemoryLimit1, 4, limit},
			{pci.CardBusBridgeControl, 2, uint64(ctl) | pci.CardBusPrefetch1},
		})
	default:
		return nil
	}
}
