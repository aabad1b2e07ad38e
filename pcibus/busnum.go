package pcibus

import (
	"fmt"

	"github.com/bobuhiro11/gopcibus/pci"
)

// AssignBusNumbers numbers every bridge below root depth-first, in the
// order CollectDevices will find them. Each bridge is opened to the full
// range while its subtree is numbered, then closed down to the highest
// bus found behind it.
func (e *Enumerator) AssignBusNumbers(root *Device) error {
	last := root.SecondaryBus

	if err := e.numberBus(root.SecondaryBus, &last); err != nil {
		return err
	}

	root.SubordinateBus = last
	e.log.Info("buses numbered", "root", root.SecondaryBus, "subordinate", last)

	return nil
}

func (e *Enumerator) numberBus(bus uint8, last *uint8) error {
	for d := uint8(0); d <= pci.MaxDevice; d++ {
		for f := uint8(0); f <= pci.MaxFunction; f++ {
			addr := pci.Address{Bus: bus, Device: d, Function: f}

			h, ok, err := e.ProbeFunction(addr)
			if err != nil {
				return fmt.Errorf("probe %v: %w", addr, err)
			}

			if !ok {
				if f == 0 {
					break
				}

				continue
			}

			if t := h.HeaderType(); t == pci.HeaderTypeBridge || t == pci.HeaderTypeCardBus {
				if err := e.numberBridge(addr, bus, last); err != nil {
					return err
				}
			}

			if f == 0 && !h.MultiFunction() {
				break
			}
		}
	}

	return nil
}

func (e *Enumerator) numberBridge(addr pci.Address, bus uint8, last *uint8) error {
	if *last == pci.MaxBus {
		return fmt.Errorf("bridge %v: %w", addr, ErrOutOfBusNumbers)
	}

	*last++
	secondary := *last

	for _, w := range []struct {
		offset uint16
		value  uint8
	}{
		{pci.PrimaryBusOffset, bus},
		{pci.SecondaryBusOffset, secondary},
		{pci.SubordinateBusOffset, pci.MaxBus},
	} {
		if err := pci.Write8(e.cfg, addr, w.offset, w.value); err != nil {
			return fmt.Errorf("bridge %v bus register %#02x: %w", addr, w.offset, err)
		}
	}

	if err := e.numberBus(secondary, last); err != nil {
		return err
	}

	e.log.Debug("bridge numbered", "dev", addr, "secondary", secondary, "subordinate", *last)

	return pci.Write8(e.cfg, addr, pci.SubordinateBusOffset, *last)
}
