// Package pci holds the configuration-space vocabulary shared by the bus
// enumerator and the emulated segment: register offsets, function
// addresses, the access primitive and its two physical mechanisms.
//
// refs
// https://wiki.osdev.org/PCI
// http://www2.comp.ufscar.br/~helio/boot-int/pci.html
package pci

import (
	"encoding/binary"
	"fmt"
	"strings"
)

const (
	MaxBus      = 0xff
	MaxDevice   = 31
	MaxFunction = 7

	// InvalidVendorID is what an empty slot returns for its Vendor ID.
	InvalidVendorID = 0xffff
)

// Offsets common to every header type.
const (
	VendorIDOffset      = 0x00
	DeviceIDOffset      = 0x02
	CommandOffset       = 0x04
	StatusOffset        = 0x06
	RevisionIDOffset    = 0x08
	ClassCodeOffset     = 0x09
	HeaderTypeOffset    = 0x0e
	BAR0Offset          = 0x10
	SubVendorIDOffset   = 0x2c
	SubsystemIDOffset   = 0x2e
	InterruptLineOffset = 0x3c

	HeaderSize = 0x40
)

// Type 1 (PCI-to-PCI bridge) header.
const (
	PrimaryBusOffset     = 0x18
	SecondaryBusOffset   = 0x19
	SubordinateBusOffset = 0x1a
	IOBaseOffset         = 0x1c
	IOLimitOffset        = 0x1d
	MemoryBaseOffset     = 0x20
	MemoryLimitOffset    = 0x22
	PrefetchBaseOffset   = 0x24
	PrefetchLimitOffset  = 0x26
	PrefetchBaseUpper32  = 0x28
	PrefetchLimitUpper32 = 0x2c
	IOBaseUpper16Offset  = 0x30
	IOLimitUpper16Offset = 0x32
	BridgeControlOffset  = 0x3e

	DeviceBARCount  = 6
	BridgeBARCount  = 2
	CardBusBARCount = 1

	BridgeIOGranularity     = 0x1000
	BridgeMemoryGranularity = 0x100000
)

// Type 2 (CardBus bridge) header.
const (
	CardBusSecondaryBusOffset   = 0x19
	CardBusSubordinateBusOffset = 0x1a
	CardBusMemoryBase0          = 0x1c
	CardBusMemoryLimit0         = 0x20
	CardBusMemoryBase1          = 0x24
	CardBusMemoryLimit1         = 0x28
	CardBusIOBase0              = 0x2c
	CardBusIOLimit0             = 0x30
	CardBusIOBase1              = 0x34
	CardBusIOLimit1             = 0x38
	CardBusBridgeControl        = 0x3e

	// Bridge control bits 8 and 9 select prefetching for memory window 0/1.
	CardBusPrefetch1 = 1 << 9
)

// Command register bits.
const (
	CommandIO        = 1 << 0
	CommandMemory    = 1 << 1
	CommandBusMaster = 1 << 2
	CommandOwnedBits = CommandIO | CommandMemory | CommandBusMaster
)

// Header types, low seven bits of HeaderTypeOffset.
const (
	HeaderTypeNormal  = 0x00
	HeaderTypeBridge  = 0x01
	HeaderTypeCardBus = 0x02

	HeaderTypeMask      = 0x7f
	HeaderMultiFunction = 0x80
)

// Class codes used to name what the walker finds.
const (
	ClassBridge        = 0x06
	SubclassHostBridge = 0x00
	SubclassPCIBridge  = 0x04
	SubclassCardBus    = 0x07
	ClassDisplay       = 0x03
)

// Address is a bus/device/function triple.
type Address struct {
	Bus      uint8
	Device   uint8
	Function uint8
}

func (a Address) String() string {
	return fmt.Sprintf("%02x:%02x.%x", a.Bus, a.Device, a.Function)
}

// Valid reports whether the address fits in the 5-bit device and 3-bit
// function fields.
func (a Address) Valid() bool {
	return a.Device <= MaxDevice && a.Function <= MaxFunction
}

// ParseAddress parses the bb:dd.f form String produces, in hex.
func ParseAddress(s string) (Address, error) {
	var bus, dev, fn uint8

	if n, err := fmt.Sscanf(s, "%x:%x.%x", &bus, &dev, &fn); err != nil || n != 3 {
		return Address{}, fmt.Errorf("%q: %w", s, ErrInvalidAddress)
	}

	a := Address{Bus: bus, Device: dev, Function: fn}
	if !a.Valid() || a.String() != strings.ToLower(s) {
		return Address{}, fmt.Errorf("%q: %w", s, ErrInvalidAddress)
	}

	return a, nil
}

// SizeToBits returns what a BAR of the given power-of-two size reads
// back after all-ones has been written to it, without the attribute bits.
func SizeToBits(size uint64) uint32 {
	if size == 0 {
		return 0
	}

	return ^uint32(size - 1)
}

// BytesToNum decodes a little-endian value of up to 8 bytes.
func BytesToNum(bytes []byte) uint64 {
	res := uint64(0)

	for i := len(bytes) - 1; i >= 0; i-- {
		res <<= 8
		res |= uint64(bytes[i])
	}

	return res
}

// NumToBytes encodes an unsigned integer little-endian using its own width.
func NumToBytes(x interface{}) []byte {
	switch v := x.(type) {
	case uint8:
		return []byte{v}
	case uint16:
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, v)

		return b
	case uint32:
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, v)

		return b
	case uint64:
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, v)

		return b
	}

	return []byte{}
}
