package pcibus

import (
	"fmt"

	"github.com/bobuhiro11/gopcibus/pci"
)

// Identity is what the incompatible-device table is keyed by.
type Identity struct {
	VendorID          uint16
	DeviceID          uint16
	RevisionID        uint8
	SubsystemVendorID uint16
	SubsystemID       uint16
}

// Bar is one decoded Base Address Register.
type Bar struct {
	// Offset of the (low) register in configuration space.
	Offset       uint16
	Type         BarType
	BaseAddress  uint64
	Length       uint64
	Alignment    uint64
	Prefetchable bool
	// Wide is set for a 64-bit register pair. It survives degradation
	// so the upper dword is still written.
	Wide bool
	// Fixed is set when an override pinned the type.
	Fixed bool
}

// Present reports whether the BAR requests any resource.
func (b Bar) Present() bool {
	return b.Type != BarUnknown && b.Length != 0
}

func (b Bar) String() string {
	if !b.Present() {
		return fmt.Sprintf("%#02x: [absent]", b.Offset)
	}

	return fmt.Sprintf("%#02x: %s at %#x, size %#x", b.Offset, b.Type, b.BaseAddress, b.Length)
}

// Device is one PCI function, or the root bridge the walk starts from.
type Device struct {
	Address pci.Address
	Identity
	Class         uint8
	Subclass      uint8
	HeaderType    uint8
	MultiFunction bool
	Kind          Kind

	Bars []Bar

	// Bridges only.
	Decodes           Decode
	BridgeIOAlignment uint64
	PrimaryBus        uint8
	SecondaryBus      uint8
	SubordinateBus    uint8
	Padding           []PaddingDescriptor

	Children  []*Device
	Allocated bool
}

// NewRootBridge returns the record the walk hangs discovered devices on.
// Root bridges always forward I/O, Mem32 and PMem32.
func NewRootBridge(bus uint8, decodes Decode) *Device {
	return &Device{
		Address:           pci.Address{Bus: bus},
		Kind:              KindRootBridge,
		Decodes:           decodes | DecodeIO16 | DecodeIO32 | DecodeMem32 | DecodePMem32,
		BridgeIOAlignment: pci.BridgeIOGranularity - 1,
		PrimaryBus:        bus,
		SecondaryBus:      bus,
		SubordinateBus:    bus,
	}
}

func (d *Device) IsRoot() bool {
	return d.Kind == KindRootBridge
}

// IsBridge reports PCI-PCI and CardBus bridges, not the root bridge.
func (d *Device) IsBridge() bool {
	return d.Kind == KindBridge || d.Kind == KindCardBus
}

func (d *Device) String() string {
	if d.IsRoot() {
		return fmt.Sprintf("root bridge (bus %02x)", d.SecondaryBus)
	}

	return fmt.Sprintf("%v [%04x:%04x] %s", d.Address, d.VendorID, d.DeviceID, d.Kind)
}

// Walk visits d and every descendant depth-first, parents first.
func (d *Device) Walk(fn func(dev *Device, depth int)) {
	d.walk(fn, 0)
}

func (d *Device) walk(fn func(dev *Device, depth int), depth int) {
	fn(d, depth)

	for _, c := range d.Children {
		c.walk(fn, depth+1)
	}
}

// Find returns the descendant at addr.
func (d *Device) Find(addr pci.Address) *Device {
	var found *Device

	d.Walk(func(dev *Device, _ int) {
		if found == nil && !dev.IsRoot() && dev.Address == addr {
			found = dev
		}
	})

	return found
}

func (d *Device) removeChild(c *Device) {
	for i, o := range d.Children {
		if o == c {
			d.Children = append(d.Children[:i], d.Children[i+1:]...)

			return
		}
	}
}
