package config

// DefaultConfig returns a full enumeration of a small demo topology with
// the usual x86 windows: legacy-free I/O above 0x1000, 32-bit memory
// below the 4 GiB hole, and 64-bit memory from 512 GiB.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:          "info",
		Mode:              "full",
		LegacyIO:          "none",
		BridgeIOAlignment: 0xfff,
		Root: Root{
			Decodes: []string{"mem64", "pmem64"},
			Windows: []Window{
				{Type: "io16", Base: 0x1000, Limit: 0xffff},
				{Type: "mem32", Base: 0x80000000, Limit: 0xdfffffff},
				{Type: "mem64", Base: 0x8000000000, Limit: 0xffffffffff},
			},
		},
		Topology: DefaultTopology(),
	}
}

// DefaultTopology is a host bridge, a display adapter, a multi-function
// chipset device and a PCI-PCI bridge with a NIC and an NVMe controller
// behind it. Bus numbers are left for the enumerator to assign.
func DefaultTopology() []Function {
	return []Function{
		{Address: "00:00.0", VendorID: 0x8086, DeviceID: 0x29c0, Class: 0x06, Subclass: 0x00},
		{
			Address: "00:01.0", VendorID: 0x1234, DeviceID: 0x1111, Class: 0x03,
			BARs: []BAR{
				{Kind: "mem32", Size: 16 << 20, Prefetchable: true},
				{Kind: "none"},
				{Kind: "mem32", Size: 4 << 10},
			},
		},
		{
			Address: "00:1f.0", VendorID: 0x8086, DeviceID: 0x2918, Class: 0x06, Subclass: 0x01,
			MultiFunction: true,
		},
		{
			Address: "00:1f.2", VendorID: 0x8086, DeviceID: 0x2922, Class: 0x01, Subclass: 0x06,
			BARs: []BAR{
				{Kind: "io16", Size: 0x8},
				{Kind: "io16", Size: 0x4},
				{Kind: "io16", Size: 0x8},
				{Kind: "io16", Size: 0x4},
				{Kind: "io16", Size: 0x20},
				{Kind: "mem32", Size: 4 << 10},
			},
		},
		{
			Address: "00:1c.0", VendorID: 0x1b36, DeviceID: 0x000c, Class: 0x06, Subclass: 0x04,
			Header: "bridge", IOWindow: true, PrefetchWindow: true, Prefetch64: true,
		},
		{
			Address: "01:00.0", VendorID: 0x8086, DeviceID: 0x10d3, Class: 0x02,
			BARs: []BAR{
				{Kind: "mem32", Size: 128 << 10},
				{Kind: "mem32", Size: 512 << 10},
				{Kind: "io16", Size: 0x20},
				{Kind: "mem32", Size: 16 << 10},
			},
		},
		{
			Address: "01:01.0", VendorID: 0x1b36, DeviceID: 0x0010, Class: 0x01, Subclass: 0x08,
			BARs: []BAR{{Kind: "mem64", Size: 16 << 10, Prefetchable: true}},
		},
	}
}
