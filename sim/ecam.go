package sim

import (
	"github.com/bobuhiro11/gopcibus/pci"
)

// ECAMWindow exposes the segment as a 256 MiB memory-mapped aperture for
// pci.ECAM.
type ECAMWindow struct {
	seg *Segment
}

func (s *Segment) ECAMWindow() *ECAMWindow {
	return &ECAMWindow{seg: s}
}

func decodeECAM(off int64) (pci.Address, uint16) {
	return pci.Address{
		Bus:      uint8(off >> 20),
		Device:   uint8(off>>15) & 0x1f,
		Function: uint8(off>>12) & 0x7,
	}, uint16(off & 0xfff)
}

func (w *ECAMWindow) ReadAt(p []byte, off int64) (int, error) {
	addr, reg := decodeECAM(off)
	if err := w.seg.ReadConfig(addr, reg, p); err != nil {
		return 0, err
	}

	return len(p), nil
}

func (w *ECAMWindow) WriteAt(p []byte, off int64) (int, error) {
	addr, reg := decodeECAM(off)
	if err := w.seg.WriteConfig(addr, reg, p); err != nil {
		return 0, err
	}

	return len(p), nil
}
