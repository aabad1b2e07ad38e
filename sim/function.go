package sim

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/bobuhiro11/gopcibus/pci"
)

// BARKind is how an emulated BAR decodes.
type BARKind int

const (
	BARNone BARKind = iota
	BARIO16
	BARIO32
	BARMem32
	BARMem64
)

// BARSpec describes one emulated BAR. Size must be a power of two.
type BARSpec struct {
	Kind         BARKind
	Size         uint64
	Prefetchable bool
	// Base is the value the BAR holds at reset.
	Base uint64
}

// FunctionSpec describes one emulated PCI function.
type FunctionSpec struct {
	Address           pci.Address
	VendorID          uint16
	DeviceID          uint16
	RevisionID        uint8
	Class             uint8
	Subclass          uint8
	HeaderType        uint8
	MultiFunction     bool
	SubsystemVendorID uint16
	SubsystemID       uint16
	BARs              []BARSpec

	// Bridge only.
	PrimaryBus     uint8
	SecondaryBus   uint8
	SubordinateBus uint8
	IOWindow       bool
	IO32           bool
	PrefetchWindow bool
	Prefetch64     bool
}

// type 0 header image, serialized with binary.Write.
type deviceHeader struct {
	VendorID                uint16
	DeviceID                uint16
	Command                 uint16
	Status                  uint16
	RevisionID              uint8
	ClassCode               [3]uint8
	CacheLineSize           uint8
	LatencyTimer            uint8
	HeaderType              uint8
	BIST                    uint8
	BaseAddressRegister     [6]uint32
	CardbusCISPointer       uint32
	SubsystemVendorID       uint16
	SubsystemID             uint16
	ExpansionROMBaseAddress uint32
	CapabilitiesPointer     uint8
	Reserved                [7]uint8
	InterruptLine           uint8
	InterruptPin            uint8
	MinGnt                  uint8
	MaxLat                  uint8
}

// type 1 header image.
type bridgeHeader struct {
	VendorID            uint16
	DeviceID            uint16
	Command             uint16
	Status              uint16
	RevisionID          uint8
	ClassCode           [3]uint8
	CacheLineSize       uint8
	LatencyTimer        uint8
	HeaderType          uint8
	BIST                uint8
	BaseAddressRegister [2]uint32
	PrimaryBus          uint8
	SecondaryBus        uint8
	SubordinateBus      uint8
	SecondaryLatency    uint8
	IOBase              uint8
	IOLimit             uint8
	SecondaryStatus     uint16
	MemoryBase          uint16
	MemoryLimit         uint16
	PrefetchBase        uint16
	PrefetchLimit       uint16
	PrefetchBaseUpper   uint32
	PrefetchLimitUpper  uint32
	IOBaseUpper         uint16
	IOLimitUpper        uint16
	CapabilitiesPointer uint8
	Reserved            [3]uint8
	ExpansionROMBase    uint32
	InterruptLine       uint8
	InterruptPin        uint8
	BridgeControl       uint16
}

func encode(h interface{}) ([]byte, error) {
	buf := new(bytes.Buffer)

	if err := binary.Write(buf, binary.LittleEndian, h); err != nil {
		return []byte{}, err
	}

	return buf.Bytes(), nil
}

// function is the live configuration space of one emulated function.
// wmask holds the writable bits of every byte.
type function struct {
	addr  pci.Address
	cfg   [pci.HeaderSize * 4]byte
	wmask [pci.HeaderSize * 4]byte
}

func newFunction(s FunctionSpec) (*function, error) {
	f := &function{addr: s.Address}

	var (
		img []byte
		err error
	)

	ht := s.HeaderType & pci.HeaderTypeMask
	if s.MultiFunction {
		ht |= pci.HeaderMultiFunction
	}

	class := [3]uint8{0, s.Subclass, s.Class}
	maxBARs := pci.DeviceBARCount

	switch s.HeaderType & pci.HeaderTypeMask {
	case pci.HeaderTypeNormal:
		img, err = encode(&deviceHeader{
			VendorID:          s.VendorID,
			DeviceID:          s.DeviceID,
			RevisionID:        s.RevisionID,
			ClassCode:         class,
			HeaderType:        ht,
			SubsystemVendorID: s.SubsystemVendorID,
			SubsystemID:       s.SubsystemID,
		})
	case pci.HeaderTypeBridge:
		maxBARs = pci.BridgeBARCount
		img, err = encode(&bridgeHeader{
			VendorID:       s.VendorID,
			DeviceID:       s.DeviceID,
			RevisionID:     s.RevisionID,
			ClassCode:      class,
			HeaderType:     ht,
			PrimaryBus:     s.PrimaryBus,
			SecondaryBus:   s.SecondaryBus,
			SubordinateBus: s.SubordinateBus,
		})
	case pci.HeaderTypeCardBus:
		maxBARs = pci.CardBusBARCount
		img, err = encode(&deviceHeader{
			VendorID:   s.VendorID,
			DeviceID:   s.DeviceID,
			RevisionID: s.RevisionID,
			ClassCode:  class,
			HeaderType: ht,
		})
	default:
		img, err = encode(&deviceHeader{
			VendorID:   s.VendorID,
			DeviceID:   s.DeviceID,
			ClassCode:  class,
			HeaderType: ht,
		})
		maxBARs = 0
	}

	if err != nil {
		return nil, err
	}

	copy(f.cfg[:], img)

	// command, bridge control and interrupt line are ordinary RW registers
	f.setMask(pci.CommandOffset, 0xff, 0x07)
	f.setMask(pci.InterruptLineOffset, 0xff)

	if len(s.BARs) > maxBARs {
		return nil, fmt.Errorf("%v: %d BARs for header type %d: %w",
			s.Address, len(s.BARs), s.HeaderType&pci.HeaderTypeMask, errSpecInvalid)
	}

	if err := f.installBARs(s.BARs, maxBARs); err != nil {
		return nil, err
	}

	switch s.HeaderType & pci.HeaderTypeMask {
	case pci.HeaderTypeBridge:
		f.installBridge(s)
	case pci.HeaderTypeCardBus:
		f.installCardBus(s)
	}

	return f, nil
}

func (f *function) setMask(offset int, mask ...byte) {
	copy(f.wmask[offset:], mask)
}

func (f *function) put32(offset int, v uint32) {
	binary.LittleEndian.PutUint32(f.cfg[offset:], v)
}

func (f *function) put16(offset int, v uint16) {
	binary.LittleEndian.PutUint16(f.cfg[offset:], v)
}

func (f *function) installBARs(bars []BARSpec, maxBARs int) error {
	slot := 0

	for _, b := range bars {
		if slot >= maxBARs {
			return fmt.Errorf("%v: 64-bit BAR in last slot: %w", f.addr, errSpecInvalid)
		}

		off := pci.BAR0Offset + 4*slot

		if b.Kind != BARNone && (b.Size == 0 || b.Size&(b.Size-1) != 0) {
			return fmt.Errorf("%v: BAR%d size %#x is not a power of two: %w",
				f.addr, slot, b.Size, errSpecInvalid)
		}

		switch b.Kind {
		case BARNone:
		case BARIO16, BARIO32:
			mask := pci.SizeToBits(b.Size) &^ 0x3
			if b.Kind == BARIO16 {
				mask &= 0xffff
			}

			f.put32(off, uint32(b.Base)&mask|0x1)
			binary.LittleEndian.PutUint32(f.wmask[off:], mask)
		case BARMem32:
			attr := uint32(0)
			if b.Prefetchable {
				attr |= 0x8
			}

			mask := pci.SizeToBits(b.Size) &^ 0xf
			f.put32(off, uint32(b.Base)&mask|attr)
			binary.LittleEndian.PutUint32(f.wmask[off:], mask)
		case BARMem64:
			if slot+1 >= maxBARs {
				return fmt.Errorf("%v: 64-bit BAR in last slot: %w", f.addr, errSpecInvalid)
			}

			attr := uint32(0x4)
			if b.Prefetchable {
				attr |= 0x8
			}

			lo := uint32(0)
			if b.Size <= 1<<31 {
				lo = pci.SizeToBits(b.Size) &^ 0xf
			}

			hi := ^uint32((b.Size - 1) >> 32)

			f.put32(off, uint32(b.Base)&lo|attr)
			f.put32(off+4, uint32(b.Base>>32)&hi)
			binary.LittleEndian.PutUint32(f.wmask[off:], lo)
			binary.LittleEndian.PutUint32(f.wmask[off+4:], hi)
			slot++
		}

		slot++
	}

	return nil
}

func (f *function) installBridge(s FunctionSpec) {
	// bus number registers and secondary latency timer
	f.setMask(pci.PrimaryBusOffset, 0xff, 0xff, 0xff, 0xff)

	if s.IOWindow {
		decode := byte(0)
		if s.IO32 {
			decode = 0x1
			f.setMask(pci.IOBaseUpper16Offset, 0xff, 0xff, 0xff, 0xff)
		}

		f.cfg[pci.IOBaseOffset] = decode
		f.cfg[pci.IOLimitOffset] = decode
		f.setMask(pci.IOBaseOffset, 0xf0, 0xf0)
	}

	f.setMask(pci.MemoryBaseOffset, 0xf0, 0xff, 0xf0, 0xff)

	if s.PrefetchWindow {
		decode := uint16(0)
		if s.Prefetch64 {
			decode = 0x1
			f.setMask(pci.PrefetchBaseUpper32, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)
		}

		f.put16(pci.PrefetchBaseOffset, decode)
		f.put16(pci.PrefetchLimitOffset, decode)
		f.setMask(pci.PrefetchBaseOffset, 0xf0, 0xff, 0xf0, 0xff)
	}

	f.setMask(pci.BridgeControlOffset, 0xff, 0x0f)
}

func (f *function) installCardBus(s FunctionSpec) {
	f.cfg[pci.PrimaryBusOffset] = s.PrimaryBus
	f.cfg[pci.CardBusSecondaryBusOffset] = s.SecondaryBus
	f.cfg[pci.CardBusSubordinateBusOffset] = s.SubordinateBus
	f.setMask(pci.PrimaryBusOffset, 0xff, 0xff, 0xff, 0xff)

	for _, off := range []int{pci.CardBusMemoryBase0, pci.CardBusMemoryLimit0,
		pci.CardBusMemoryBase1, pci.CardBusMemoryLimit1} {
		binary.LittleEndian.PutUint32(f.wmask[off:], 0xfffff000)
	}

	for _, off := range []int{pci.CardBusIOBase0, pci.CardBusIOLimit0,
		pci.CardBusIOBase1, pci.CardBusIOLimit1} {
		binary.LittleEndian.PutUint32(f.wmask[off:], 0xfffffffc)
	}

	f.setMask(pci.CardBusBridgeControl, 0xff, 0x07)
}

func (f *function) read(offset int, data []byte) {
	copy(data, f.cfg[offset:])
}

func (f *function) write(offset int, data []byte) {
	for i, v := range data {
		m := f.wmask[offset+i]
		f.cfg[offset+i] = f.cfg[offset+i]&^m | v&m
	}
}
