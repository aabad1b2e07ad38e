// Package config describes an enumeration run in YAML: how the
// enumerator behaves, which system address windows the root bridge owns,
// the device quirk and padding tables, and the emulated topology to run
// against.
package config

// Config is the root of the YAML document.
type Config struct {
	LogLevel          string `yaml:"log_level"`
	NoColor           bool   `yaml:"no_color"`
	Mode              string `yaml:"mode"`
	LegacyIO          string `yaml:"legacy_io"`
	BridgeIOAlignment Size   `yaml:"bridge_io_alignment"`
	MaxResources      int    `yaml:"max_resources"`

	Root         Root           `yaml:"root"`
	Incompatible []Incompatible `yaml:"incompatible"`
	Padding      []Padding      `yaml:"padding"`
	Topology     []Function     `yaml:"topology"`
}

// Root is the root bridge the walk starts at.
type Root struct {
	Bus uint8 `yaml:"bus"`
	// Decodes adds to io16, io32, mem32 and pmem32, which every root
	// bridge forwards.
	Decodes []string `yaml:"decodes"`
	Windows []Window `yaml:"windows"`
}

// Window is a range of system address space granted to the root bridge.
type Window struct {
	Type  string `yaml:"type"`
	Base  Size   `yaml:"base"`
	Limit Size   `yaml:"limit"`
}

// Incompatible matches a device and patches its BARs. Omitted identity
// fields match everything.
type Incompatible struct {
	VendorID          *uint16    `yaml:"vendor"`
	DeviceID          *uint16    `yaml:"device"`
	RevisionID        *uint8     `yaml:"revision"`
	SubsystemVendorID *uint16    `yaml:"subsystem_vendor"`
	SubsystemID       *uint16    `yaml:"subsystem"`
	Overrides         []Override `yaml:"overrides"`
}

type Override struct {
	// Bar is a BAR index or "all".
	Bar   string `yaml:"bar"`
	Class string `yaml:"class"`
	// Align is keep, even, squad, dquad or an alignment mask.
	Align       string `yaml:"align"`
	Length      Size   `yaml:"length"`
	Granularity int    `yaml:"granularity"`
}

// Padding reserves extra aperture below a bridge, or below the root
// bridge when Bridge is "root".
type Padding struct {
	Bridge    string            `yaml:"bridge"`
	Resources []PaddingResource `yaml:"resources"`
}

type PaddingResource struct {
	Type   string `yaml:"type"`
	Length Size   `yaml:"length"`
	// Alignment defaults to Length-1.
	Alignment Size `yaml:"alignment"`
}

// Function is one emulated PCI function.
type Function struct {
	Address         string `yaml:"address"`
	VendorID        uint16 `yaml:"vendor"`
	DeviceID        uint16 `yaml:"device"`
	RevisionID      uint8  `yaml:"revision"`
	Class           uint8  `yaml:"class"`
	Subclass        uint8  `yaml:"subclass"`
	Header          string `yaml:"header"`
	MultiFunction   bool   `yaml:"multifunction"`
	SubsystemVendor uint16 `yaml:"subsystem_vendor"`
	Subsystem       uint16 `yaml:"subsystem"`
	BARs            []BAR  `yaml:"bars"`

	PrimaryBus     uint8 `yaml:"primary_bus"`
	SecondaryBus   uint8 `yaml:"secondary_bus"`
	SubordinateBus uint8 `yaml:"subordinate_bus"`
	IOWindow       bool  `yaml:"io_window"`
	IO32           bool  `yaml:"io32"`
	PrefetchWindow bool  `yaml:"prefetch_window"`
	Prefetch64     bool  `yaml:"prefetch64"`
}

type BAR struct {
	// Kind is none, io16, io32, mem32 or mem64.
	Kind         string `yaml:"kind"`
	Size         Size   `yaml:"size"`
	Prefetchable bool   `yaml:"prefetchable"`
	Base         Size   `yaml:"base"`
}
