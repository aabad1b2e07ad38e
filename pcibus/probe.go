package pcibus

import (
	"encoding/binary"

	"github.com/bobuhiro11/gopcibus/pci"
)

// probeHeaderLen covers Vendor ID through BIST: identity, class and
// header type, the same for every header layout.
const probeHeaderLen = 0x10

// Header is the raw start of a function's configuration header.
type Header []byte

func (h Header) VendorID() uint16    { return binary.LittleEndian.Uint16(h[pci.VendorIDOffset:]) }
func (h Header) DeviceID() uint16    { return binary.LittleEndian.Uint16(h[pci.DeviceIDOffset:]) }
func (h Header) Command() uint16     { return binary.LittleEndian.Uint16(h[pci.CommandOffset:]) }
func (h Header) RevisionID() uint8   { return h[pci.RevisionIDOffset] }
func (h Header) Subclass() uint8     { return h[pci.ClassCodeOffset+1] }
func (h Header) Class() uint8        { return h[pci.ClassCodeOffset+2] }
func (h Header) HeaderType() uint8   { return h[pci.HeaderTypeOffset] & pci.HeaderTypeMask }
func (h Header) MultiFunction() bool { return h[pci.HeaderTypeOffset]&pci.HeaderMultiFunction != 0 }

// ProbeFunction reads the header of addr. A Vendor ID of all ones means
// nothing answers there, which is reported as absent rather than as an
// error. Read failures are returned as they are.
func (e *Enumerator) ProbeFunction(addr pci.Address) (Header, bool, error) {
	h := make(Header, probeHeaderLen)

	if err := e.cfg.ReadConfig(addr, pci.VendorIDOffset, h); err != nil {
		return nil, false, err
	}

	if h.VendorID() == pci.InvalidVendorID {
		return nil, false, nil
	}

	return h, true, nil
}
