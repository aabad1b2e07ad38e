package pci_test

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/bobuhiro11/gopcibus/pci"
)

type portOp struct {
	out  bool
	port uint64
	data []byte
}

// ports records every access and answers In with 0xaa bytes.
type ports struct {
	ops []portOp
}

func (p *ports) In(port uint64, data []byte) error {
	for i := range data {
		data[i] = 0xaa
	}

	p.ops = append(p.ops, portOp{port: port, data: append([]byte(nil), data...)})

	return nil
}

func (p *ports) Out(port uint64, data []byte) error {
	p.ops = append(p.ops, portOp{out: true, port: port, data: append([]byte(nil), data...)})

	return nil
}

func TestConfigAddress(t *testing.T) {
	t.Parallel()

	addr := pci.Address{Bus: 1, Device: 2, Function: 3}
	ca := pci.NewConfigAddress(addr, 0x13)

	if uint32(ca) != 0x80011310 {
		t.Fatalf("expected: %#x, actual: %#x", 0x80011310, uint32(ca))
	}

	if !ca.IsEnable() || ca.Address() != addr || ca.RegisterOffset() != 0x10 {
		t.Fatalf("decoded %v offset %#x enable %v", ca.Address(), ca.RegisterOffset(), ca.IsEnable())
	}
}

func TestMechanism1Read(t *testing.T) {
	t.Parallel()

	p := &ports{}
	m := pci.NewMechanism1(p)
	addr := pci.Address{Bus: 1, Device: 2, Function: 3}

	v, err := pci.Read32(m, addr, 0x10)
	if err != nil {
		t.Fatal(err)
	}

	if v != 0xaaaaaaaa {
		t.Fatalf("expected: %#x, actual: %#x", 0xaaaaaaaa, v)
	}

	if len(p.ops) != 2 || !p.ops[0].out || p.ops[0].port != pci.ConfigAddressPort ||
		binary.LittleEndian.Uint32(p.ops[0].data) != 0x80011310 ||
		p.ops[1].out || p.ops[1].port != pci.ConfigDataPort {
		t.Fatalf("unexpected port sequence %+v", p.ops)
	}
}

// TestMechanism1Split tests that an unaligned dword becomes two words on
// the right data ports.
func TestMechanism1Split(t *testing.T) {
	t.Parallel()

	p := &ports{}
	m := pci.NewMechanism1(p)

	if err := m.WriteConfig(pci.Address{}, 0x02, []byte{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}

	expected := []struct {
		port uint64
		n    int
	}{
		{pci.ConfigAddressPort, 4},
		{pci.ConfigDataPort + 2, 2},
		{pci.ConfigAddressPort, 4},
		{pci.ConfigDataPort, 2},
	}

	if len(p.ops) != len(expected) {
		t.Fatalf("expected %d port accesses, actual %+v", len(expected), p.ops)
	}

	for i, e := range expected {
		if p.ops[i].port != e.port || len(p.ops[i].data) != e.n {
			t.Errorf("access %d: expected %#x/%d, actual %#x/%d", i, e.port, e.n, p.ops[i].port, len(p.ops[i].data))
		}
	}

	if binary.LittleEndian.Uint32(p.ops[2].data) != 0x80000004 {
		t.Errorf("second chunk selected %#x", binary.LittleEndian.Uint32(p.ops[2].data))
	}
}

func TestMechanism1Errors(t *testing.T) {
	t.Parallel()

	m := pci.NewMechanism1(&ports{})

	if err := m.ReadConfig(pci.Address{}, 0xfe, make([]byte, 4)); !errors.Is(err, pci.ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, actual %v", err)
	}

	if err := m.ReadConfig(pci.Address{Device: 32}, 0, make([]byte, 4)); !errors.Is(err, pci.ErrInvalidAddress) {
		t.Errorf("expected ErrInvalidAddress, actual %v", err)
	}

	if err := m.ReadConfig(pci.Address{}, 0, nil); !errors.Is(err, pci.ErrInvalidWidth) {
		t.Errorf("expected ErrInvalidWidth, actual %v", err)
	}
}

type memWindow []byte

func (w memWindow) ReadAt(p []byte, off int64) (int, error) {
	return copy(p, w[off:]), nil
}

func (w memWindow) WriteAt(p []byte, off int64) (int, error) {
	return copy(w[off:], p), nil
}

func TestECAM(t *testing.T) {
	t.Parallel()

	w := make(memWindow, 2<<20)
	e := pci.NewECAM(w)
	addr := pci.Address{Bus: 1, Device: 2, Function: 3}

	if off := pci.ECAMOffset(addr, 0x104); off != 0x113104 {
		t.Fatalf("expected: %#x, actual: %#x", 0x113104, off)
	}

	if err := pci.Write32(e, addr, 0x104, 0xdeadbeef); err != nil {
		t.Fatal(err)
	}

	if v := binary.LittleEndian.Uint32(w[0x113104:]); v != 0xdeadbeef {
		t.Fatalf("window holds %#x", v)
	}

	v, err := pci.Read16(e, addr, 0x106)
	if err != nil {
		t.Fatal(err)
	}

	if v != 0xdead {
		t.Fatalf("expected: %#x, actual: %#x", 0xdead, v)
	}

	if err := e.ReadConfig(addr, 0xffe, make([]byte, 4)); !errors.Is(err, pci.ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, actual %v", err)
	}
}

func TestParseAddress(t *testing.T) {
	t.Parallel()

	a, err := pci.ParseAddress("1c:1f.7")
	if err != nil {
		t.Fatal(err)
	}

	if a != (pci.Address{Bus: 0x1c, Device: 0x1f, Function: 7}) {
		t.Fatalf("parsed %+v", a)
	}

	for _, s := range []string{"", "0:1f.0", "00:20.0", "00:1f.8", "00:1f", "00:1f.0x"} {
		if _, err := pci.ParseAddress(s); !errors.Is(err, pci.ErrInvalidAddress) {
			t.Errorf("%q: expected ErrInvalidAddress, actual %v", s, err)
		}
	}
}
