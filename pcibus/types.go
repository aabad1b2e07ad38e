package pcibus

import (
	"fmt"
	"strings"
)

// BarType is the resource type a BAR or a resource pool carries.
type BarType int

const (
	BarUnknown BarType = iota
	BarIO16
	BarIO32
	BarMem32
	BarPMem32
	BarMem64
	BarPMem64
)

func (t BarType) String() string {
	switch t {
	case BarUnknown:
		return "unknown"
	case BarIO16:
		return "io16"
	case BarIO32:
		return "io32"
	case BarMem32:
		return "mem32"
	case BarPMem32:
		return "pmem32"
	case BarMem64:
		return "mem64"
	case BarPMem64:
		return "pmem64"
	default:
		return fmt.Sprintf("BarType(%d)", int(t))
	}
}

func (t BarType) IsIO() bool {
	return t == BarIO16 || t == BarIO32
}

func (t BarType) IsMemory() bool {
	return t >= BarMem32 && t <= BarPMem64
}

// ParseBarType is the inverse of String.
func ParseBarType(s string) (BarType, error) {
	for t := BarIO16; t <= BarPMem64; t++ {
		if t.String() == s {
			return t, nil
		}
	}

	if s == "io" {
		return BarIO16, nil
	}

	return BarUnknown, fmt.Errorf("%q: %w", s, ErrUnknownBarType)
}

// Decode is the set of resource types a bridge forwards to its secondary
// side.
type Decode uint32

const (
	DecodeIO16 Decode = 1 << iota
	DecodeIO32
	DecodeMem32
	DecodePMem32
	DecodeMem64
	DecodePMem64
	DecodePMemMemCombine
)

func (d Decode) Has(f Decode) bool {
	return d&f == f
}

var decodeNames = []struct {
	d    Decode
	name string
}{
	{DecodeIO16, "io16"},
	{DecodeIO32, "io32"},
	{DecodeMem32, "mem32"},
	{DecodePMem32, "pmem32"},
	{DecodeMem64, "mem64"},
	{DecodePMem64, "pmem64"},
	{DecodePMemMemCombine, "combine"},
}

func (d Decode) String() string {
	var names []string

	for _, n := range decodeNames {
		if d.Has(n.d) {
			names = append(names, n.name)
		}
	}

	return strings.Join(names, "|")
}

// ParseDecode accepts the names String joins.
func ParseDecode(s string) (Decode, error) {
	for _, n := range decodeNames {
		if n.name == s {
			return n.d, nil
		}
	}

	return 0, fmt.Errorf("%q: %w", s, ErrUnknownDecode)
}

// Kind classifies a device node.
type Kind int

const (
	KindRootBridge Kind = iota
	KindDevice
	KindBridge
	KindCardBus
)

func (k Kind) String() string {
	switch k {
	case KindRootBridge:
		return "root"
	case KindDevice:
		return "device"
	case KindBridge:
		return "ppb"
	case KindCardBus:
		return "cardbus"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Mode selects between the first pass after reset and a later rescan.
type Mode int

const (
	// ModeRescan trusts bus numbers and leaves command registers alone.
	ModeRescan Mode = iota
	// ModeFull assigns bus numbers, turns decoding off before sizing
	// BARs and quiesces bridge windows.
	ModeFull
)

func (m Mode) String() string {
	if m == ModeFull {
		return "full"
	}

	return "rescan"
}

// ParseMode accepts "full" and "rescan".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "full":
		return ModeFull, nil
	case "rescan", "":
		return ModeRescan, nil
	}

	return ModeRescan, fmt.Errorf("%q: %w", s, ErrUnknownMode)
}

// LegacyIO selects which 10-bit aliased legacy I/O ranges device
// apertures must avoid.
type LegacyIO int

const (
	LegacyNone LegacyIO = iota
	LegacyISA
	LegacyVGA
)

func (l LegacyIO) String() string {
	switch l {
	case LegacyISA:
		return "isa"
	case LegacyVGA:
		return "vga"
	default:
		return "none"
	}
}

func ParseLegacyIO(s string) (LegacyIO, error) {
	switch s {
	case "none", "":
		return LegacyNone, nil
	case "isa":
		return LegacyISA, nil
	case "vga":
		return LegacyVGA, nil
	}

	return LegacyNone, fmt.Errorf("%q: %w", s, ErrUnknownLegacyIO)
}

// Usage tells typical BAR-backed requests apart from padding.
type Usage int

const (
	UsageTypical Usage = iota
	UsagePadding
)

func (u Usage) String() string {
	if u == UsagePadding {
		return "padding"
	}

	return "typical"
}
