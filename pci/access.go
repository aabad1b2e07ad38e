package pci

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidWidth   = errors.New("config access width must be 1, 2 or 4 bytes")
	ErrInvalidAddress = errors.New("invalid pci address")
	ErrOutOfRange     = errors.New("config offset out of range")
)

// ConfigAccess reads and writes configuration space of one function.
// len(data) is the access width times the count; implementations split
// it into naturally aligned accesses.
type ConfigAccess interface {
	ReadConfig(addr Address, offset uint16, data []byte) error
	WriteConfig(addr Address, offset uint16, data []byte) error
}

func Read8(ca ConfigAccess, addr Address, offset uint16) (uint8, error) {
	b := make([]byte, 1)
	if err := ca.ReadConfig(addr, offset, b); err != nil {
		return 0, err
	}

	return b[0], nil
}

func Read16(ca ConfigAccess, addr Address, offset uint16) (uint16, error) {
	b := make([]byte, 2)
	if err := ca.ReadConfig(addr, offset, b); err != nil {
		return 0, err
	}

	return uint16(BytesToNum(b)), nil
}

func Read32(ca ConfigAccess, addr Address, offset uint16) (uint32, error) {
	b := make([]byte, 4)
	if err := ca.ReadConfig(addr, offset, b); err != nil {
		return 0, err
	}

	return uint32(BytesToNum(b)), nil
}

func Write8(ca ConfigAccess, addr Address, offset uint16, v uint8) error {
	return ca.WriteConfig(addr, offset, NumToBytes(v))
}

func Write16(ca ConfigAccess, addr Address, offset uint16, v uint16) error {
	return ca.WriteConfig(addr, offset, NumToBytes(v))
}

func Write32(ca ConfigAccess, addr Address, offset uint16, v uint32) error {
	return ca.WriteConfig(addr, offset, NumToBytes(v))
}

// chunks splits an access into pieces that never cross a dword and have
// a natural width at their offset.
func chunks(offset uint16, n int, limit uint16, fn func(off uint16, lo, hi int) error) error {
	if int(offset)+n > int(limit) {
		return fmt.Errorf("offset %#x len %d: %w", offset, n, ErrOutOfRange)
	}

	for i := 0; i < n; {
		off := offset + uint16(i)

		var w int

		switch {
		case off&3 == 0 && n-i >= 4:
			w = 4
		case off&1 == 0 && n-i >= 2:
			w = 2
		default:
			w = 1
		}

		if err := fn(off, i, i+w); err != nil {
			return err
		}

		i += w
	}

	return nil
}

func checkWidth(data []byte) error {
	if len(data) == 0 {
		return ErrInvalidWidth
	}

	return nil
}
