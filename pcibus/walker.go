package pcibus

import (
	"fmt"

	"github.com/bobuhiro11/gopcibus/pci"
)

// CollectDevices scans bus depth-first and hangs every function found
// on parent. Bridges are followed through their secondary bus number
// before the next function slot is probed. A function that cannot be
// built is logged and skipped; a bridge whose secondary bus number
// cannot be read aborts the scan of bus.
func (e *Enumerator) CollectDevices(parent *Device, bus uint8) error {
	for d := uint8(0); d <= pci.MaxDevice; d++ {
		for f := uint8(0); f <= pci.MaxFunction; f++ {
			addr := pci.Address{Bus: bus, Device: d, Function: f}

			h, ok, err := e.ProbeFunction(addr)
			if err != nil {
				e.log.Warn("probe failed", "addr", addr, "err", err)

				continue
			}

			if !ok {
				if f == 0 {
					break
				}

				continue
			}

			dev, err := e.newDevice(addr, h)
			if err != nil {
				e.log.Warn("function skipped", "addr", addr, "err", err)
			} else if err := e.attach(parent, dev, bus); err != nil {
				return err
			}

			if f == 0 && !h.MultiFunction() {
				break
			}
		}
	}

	return nil
}

func (e *Enumerator) attach(parent, dev *Device, bus uint8) error {
	e.log.Debug("found", "dev", dev, "bars", len(dev.Bars))

	if !dev.IsBridge() {
		parent.Children = append(parent.Children, dev)

		return nil
	}

	if err := e.readBusNumbers(dev); err != nil {
		return fmt.Errorf("%v: %w: %w", dev.Address, ErrSecondaryBus, err)
	}

	parent.Children = append(parent.Children, dev)

	if dev.SecondaryBus == 0 || dev.SecondaryBus <= bus {
		e.log.Debug("bridge not configured", "dev", dev.Address, "secondary", dev.SecondaryBus)

		return nil
	}

	if err := e.CollectDevices(dev, dev.SecondaryBus); err != nil {
		e.log.Error("scan below bridge incomplete", "dev", dev.Address, "err", err)
	}

	return nil
}

func (e *Enumerator) readBusNumbers(dev *Device) error {
	var err error

	if dev.SecondaryBus, err = pci.Read8(e.cfg, dev.Address, pci.SecondaryBusOffset); err != nil {
		return err
	}

	if dev.PrimaryBus, err = pci.Read8(e.cfg, dev.Address, pci.PrimaryBusOffset); err != nil {
		return err
	}

	dev.SubordinateBus, err = pci.Read8(e.cfg, dev.Address, pci.SubordinateBusOffset)

	return err
}
