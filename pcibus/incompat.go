package pcibus

// BarAll makes a BarOverride apply to every BAR of its class.
const BarAll = -1

// Any matches every value of an OverrideEntry identity field.
const Any = 0xffff

type ResourceClass int

const (
	ClassMemory ResourceClass = iota
	ClassIO
)

// AlignPolicy says how an override changes a BAR's alignment.
type AlignPolicy int

const (
	AlignKeep AlignPolicy = iota
	AlignEven
	AlignSquad
	AlignDQuad
	AlignExplicit
)

// BarOverride patches the decoded BARs of a device known to misreport
// its requirements.
type BarOverride struct {
	Bar   int
	Class ResourceClass
	Align AlignPolicy
	// Alignment is used with AlignExplicit.
	Alignment uint64
	// Length replaces the decoded length unless zero.
	Length uint64
	// Granularity 32 forces a 64-bit BAR below 4 GiB; 64 pins it.
	Granularity int
}

// IncompatibleDevices looks up the overrides of a device.
type IncompatibleDevices interface {
	Lookup(id Identity) []BarOverride
}

type OverrideEntry struct {
	// Identity fields set to Any (or 0xff for the revision) match all.
	Identity
	Overrides []BarOverride
}

// OverrideTable is a static IncompatibleDevices. Every matching entry
// contributes, in table order.
type OverrideTable []OverrideEntry

func (t OverrideTable) Lookup(id Identity) []BarOverride {
	var out []BarOverride

	for _, e := range t {
		if e.matches(id) {
			out = append(out, e.Overrides...)
		}
	}

	return out
}

func (e OverrideEntry) matches(id Identity) bool {
	m16 := func(want, got uint16) bool { return want == Any || want == got }

	return m16(e.VendorID, id.VendorID) &&
		m16(e.DeviceID, id.DeviceID) &&
		(e.RevisionID == 0xff || e.RevisionID == id.RevisionID) &&
		m16(e.SubsystemVendorID, id.SubsystemVendorID) &&
		m16(e.SubsystemID, id.SubsystemID)
}

// ApplyOverrides patches dev.Bars in place. Absent BARs are never
// touched.
func ApplyOverrides(dev *Device, overrides []BarOverride) {
	for _, o := range overrides {
		for i := range dev.Bars {
			b := &dev.Bars[i]
			if !b.Present() || (o.Bar != BarAll && o.Bar != i) {
				continue
			}

			if (o.Class == ClassIO) != b.Type.IsIO() {
				continue
			}

			applyOverride(b, o)
		}
	}
}

func applyOverride(b *Bar, o BarOverride) {
	if o.Length != 0 {
		b.Length = o.Length
		b.Alignment = o.Length - 1
	}

	switch o.Align {
	case AlignEven:
		b.Alignment = SetNewAlign(b.Alignment, 2)
	case AlignSquad:
		b.Alignment = SetNewAlign(b.Alignment, 4)
	case AlignDQuad:
		b.Alignment = SetNewAlign(b.Alignment, 8)
	case AlignExplicit:
		b.Alignment = o.Alignment
	}

	if b.Type != BarMem64 && b.Type != BarPMem64 {
		return
	}

	switch o.Granularity {
	case 32:
		if b.Type == BarMem64 {
			b.Type = BarMem32
		} else {
			b.Type = BarPMem32
		}

		b.Fixed = true
	case 64:
		b.Fixed = true
	}
}

// SetNewAlign rounds the significant hex digits of alignment+1 up to a
// multiple of factor, so 0xfff becomes 0x1fff with factor 2.
func SetNewAlign(alignment, factor uint64) uint64 {
	a := alignment + 1
	if a == 0 || factor == 0 {
		return alignment
	}

	shift := 0
	for a&0xf == 0 {
		a >>= 4
		shift += 4
	}

	if a%factor != 0 {
		a += factor - a%factor
	}

	return a<<shift - 1
}
