package sim_test

import (
	"errors"
	"testing"

	"github.com/bobuhiro11/gopcibus/iodev"
	"github.com/bobuhiro11/gopcibus/pci"
	"github.com/bobuhiro11/gopcibus/sim"
)

var nic = sim.FunctionSpec{
	Address:  pci.Address{Device: 3},
	VendorID: 0x8086,
	DeviceID: 0x100e,
	Class:    0x02,
	BARs: []sim.BARSpec{
		{Kind: sim.BARMem32, Size: 0x1000, Prefetchable: true},
		{Kind: sim.BARIO16, Size: 0x20},
		{Kind: sim.BARMem64, Size: 8 << 30, Prefetchable: true},
	},
}

func newSegment(t *testing.T, specs ...sim.FunctionSpec) *sim.Segment {
	t.Helper()

	seg, err := sim.New(specs...)
	if err != nil {
		t.Fatal(err)
	}

	return seg
}

// sizeBar writes all ones to the register and returns what reads back.
func sizeBar(t *testing.T, seg *sim.Segment, addr pci.Address, offset uint16) uint32 {
	t.Helper()

	if err := pci.Write32(seg, addr, offset, 0xffffffff); err != nil {
		t.Fatal(err)
	}

	return seg.Dword(addr, offset)
}

func TestBarSizing(t *testing.T) {
	t.Parallel()

	seg := newSegment(t, nic)
	addr := nic.Address

	for _, tt := range []struct {
		offset   uint16
		expected uint32
	}{
		{0x10, 0xfffff008},
		{0x14, 0x0000ffe1},
		{0x18, 0x0000000c},
		{0x1c, 0xfffffffe},
		{0x20, 0},
	} {
		if actual := sizeBar(t, seg, addr, tt.offset); actual != tt.expected {
			t.Errorf("BAR at %#x: expected: %#x, actual: %#x", tt.offset, tt.expected, actual)
		}
	}
}

func TestEmptySlot(t *testing.T) {
	t.Parallel()

	seg := newSegment(t, nic)

	v, err := pci.Read16(seg, pci.Address{Device: 4}, pci.VendorIDOffset)
	if err != nil {
		t.Fatal(err)
	}

	if v != pci.InvalidVendorID {
		t.Fatalf("expected: %#x, actual: %#x", pci.InvalidVendorID, v)
	}

	if seg.Probes(pci.Address{Device: 4}) != 1 || seg.TotalProbes() != 1 {
		t.Fatalf("probes: %d of %d", seg.Probes(pci.Address{Device: 4}), seg.TotalProbes())
	}
}

func TestBridgeRegisters(t *testing.T) {
	t.Parallel()

	ppb := sim.FunctionSpec{
		Address:        pci.Address{Device: 1},
		HeaderType:     pci.HeaderTypeBridge,
		Class:          pci.ClassBridge,
		Subclass:       pci.SubclassPCIBridge,
		IOWindow:       true,
		IO32:           true,
		PrefetchWindow: true,
	}

	seg := newSegment(t, ppb)
	addr := ppb.Address

	if err := pci.Write8(seg, addr, pci.IOBaseOffset, 0xff); err != nil {
		t.Fatal(err)
	}

	if v, _ := pci.Read8(seg, addr, pci.IOBaseOffset); v != 0xf1 {
		t.Errorf("io base: expected: %#x, actual: %#x", 0xf1, v)
	}

	if err := pci.Write16(seg, addr, pci.PrefetchBaseOffset, 0xffff); err != nil {
		t.Fatal(err)
	}

	if v, _ := pci.Read16(seg, addr, pci.PrefetchBaseOffset); v != 0xfff0 {
		t.Errorf("prefetch base: expected: %#x, actual: %#x", 0xfff0, v)
	}

	if err := pci.Write8(seg, addr, pci.SecondaryBusOffset, 5); err != nil {
		t.Fatal(err)
	}

	if v, _ := pci.Read8(seg, addr, pci.SecondaryBusOffset); v != 5 {
		t.Errorf("secondary bus: expected 5, actual %d", v)
	}
}

func TestFailReads(t *testing.T) {
	t.Parallel()

	seg := newSegment(t, nic)
	seg.FailReads(nic.Address, pci.DeviceIDOffset)

	if _, err := pci.Read16(seg, nic.Address, pci.VendorIDOffset); err != nil {
		t.Fatal(err)
	}

	if _, err := pci.Read32(seg, nic.Address, pci.VendorIDOffset); !errors.Is(err, sim.ErrInjected) {
		t.Fatalf("expected ErrInjected, actual %v", err)
	}
}

func TestSpecErrors(t *testing.T) {
	t.Parallel()

	for _, spec := range []sim.FunctionSpec{
		{Address: pci.Address{Device: 32}},
		{BARs: []sim.BARSpec{{Kind: sim.BARMem32, Size: 0x3000}}},
		{BARs: []sim.BARSpec{{Kind: sim.BARNone}, {}, {}, {}, {}, {Kind: sim.BARMem64, Size: 0x1000}}},
		{HeaderType: pci.HeaderTypeBridge, BARs: make([]sim.BARSpec, 3)},
	} {
		if _, err := sim.New(spec); err == nil {
			t.Errorf("%+v accepted", spec)
		}
	}

	if _, err := sim.New(nic, nic); err == nil {
		t.Error("duplicate address accepted")
	}
}

func TestHostBridge(t *testing.T) {
	t.Parallel()

	seg := newSegment(t, nic)
	bus := iodev.NewBus()

	for _, d := range sim.NewHostBridge(seg).Devices() {
		if err := bus.Register(d); err != nil {
			t.Fatal(err)
		}
	}

	m := pci.NewMechanism1(bus)

	id, err := pci.Read32(m, nic.Address, pci.VendorIDOffset)
	if err != nil {
		t.Fatal(err)
	}

	if id != 0x100e8086 {
		t.Fatalf("expected: %#x, actual: %#x", 0x100e8086, id)
	}

	// with the enable bit clear the data port floats
	if err := bus.Out(pci.ConfigAddressPort, []byte{0, 0x18, 0, 0}); err != nil {
		t.Fatal(err)
	}

	data := make([]byte, 4)
	if err := bus.In(pci.ConfigDataPort, data); err != nil {
		t.Fatal(err)
	}

	if pci.BytesToNum(data) != 0xffffffff {
		t.Fatalf("disabled read returned %#x", pci.BytesToNum(data))
	}

	if err := bus.In(pci.ConfigDataPort+2, make([]byte, 4)); err == nil {
		t.Fatal("access across the data port accepted")
	}
}

func TestECAMWindow(t *testing.T) {
	t.Parallel()

	spec := nic
	spec.Address = pci.Address{Bus: 2, Device: 3, Function: 1}

	seg := newSegment(t, spec)
	e := pci.NewECAM(seg.ECAMWindow())

	id, err := pci.Read16(e, spec.Address, pci.DeviceIDOffset)
	if err != nil {
		t.Fatal(err)
	}

	if id != 0x100e {
		t.Fatalf("expected: %#x, actual: %#x", 0x100e, id)
	}

	if err := pci.Write32(e, spec.Address, pci.BAR0Offset, 0xfebf0000); err != nil {
		t.Fatal(err)
	}

	if v := seg.Dword(spec.Address, pci.BAR0Offset); v != 0xfebf0008 {
		t.Fatalf("BAR0: expected: %#x, actual: %#x", 0xfebf0008, v)
	}
}
