package device

import "errors"

var ErrDataLenInvalid = errors.New("invalid data size on port")

// IODevice describes the interface a IO-Port device must implement regardless of the
// bus it is attached to.
type IODevice interface {
	Read(uint64, []byte) error
	Write(uint64, []byte) error
	IOPort() uint64
	Size() uint64
}

// Claims reports whether port falls inside the device's range.
func Claims(d IODevice, port uint64) bool {
	return port >= d.IOPort() && port < d.IOPort()+d.Size()
}
