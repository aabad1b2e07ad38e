package pci

import (
	"fmt"
	"io"
)

const extendedConfigSpaceSize = 0x1000

// Window is a memory-mapped region such as the ECAM aperture.
type Window interface {
	io.ReaderAt
	io.WriterAt
}

// ECAM is the PCI Express enhanced configuration access mechanism: each
// function owns 4 KiB at bus<<20 | device<<15 | function<<12.
type ECAM struct {
	window Window
}

func NewECAM(w Window) *ECAM {
	return &ECAM{window: w}
}

// ECAMOffset returns where the register lives inside the aperture.
func ECAMOffset(addr Address, offset uint16) int64 {
	return int64(addr.Bus)<<20 |
		int64(addr.Device&0x1f)<<15 |
		int64(addr.Function&0x7)<<12 |
		int64(offset&0xfff)
}

func (e *ECAM) ReadConfig(addr Address, offset uint16, data []byte) error {
	return e.access(addr, offset, data, e.window.ReadAt)
}

func (e *ECAM) WriteConfig(addr Address, offset uint16, data []byte) error {
	return e.access(addr, offset, data, e.window.WriteAt)
}

func (e *ECAM) access(addr Address, offset uint16, data []byte,
	op func(p []byte, off int64) (int, error),
) error {
	if err := checkWidth(data); err != nil {
		return err
	}

	if !addr.Valid() {
		return fmt.Errorf("%v: %w", addr, ErrInvalidAddress)
	}

	return chunks(offset, len(data), extendedConfigSpaceSize, func(off uint16, lo, hi int) error {
		n, err := op(data[lo:hi], ECAMOffset(addr, off))
		if err != nil {
			return err
		}

		if n != hi-lo {
			return io.ErrShortWrite
		}

		return nil
	})
}
