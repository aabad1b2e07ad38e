package iodev

// FloatingDevice answers ports nobody decodes: reads return all ones as
// an unterminated ISA bus does, writes are dropped.
type FloatingDevice struct {
	Port  uint64
	Psize uint64
}

func (n *FloatingDevice) Read(port uint64, data []byte) error {
	for i := range data {
		data[i] = 0xff
	}

	return nil
}

func (n *FloatingDevice) Write(port uint64, data []byte) error {
	return nil
}

func (n *FloatingDevice) IOPort() uint64 {
	return n.Port
}

func (n *FloatingDevice) Size() uint64 {
	return n.Psize
}
