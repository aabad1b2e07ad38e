package pcibus

import "github.com/bobuhiro11/gopcibus/pci"

// PaddingDescriptor asks for aperture beyond what the BARs below a
// bridge need, typically hot-plug headroom.
type PaddingDescriptor struct {
	Type      BarType
	Length    uint64
	Alignment uint64
}

// PaddingProvider is the platform hook consulted once per bridge.
type PaddingProvider interface {
	ResourcePadding(bridge *Device) []PaddingDescriptor
}

// PaddingTable is a static PaddingProvider.
type PaddingTable struct {
	Root    []PaddingDescriptor
	Bridges map[pci.Address][]PaddingDescriptor
}

func (t *PaddingTable) ResourcePadding(bridge *Device) []PaddingDescriptor {
	if bridge.IsRoot() {
		return t.Root
	}

	return t.Bridges[bridge.Address]
}

// applyPadding adds the bridge's descriptors as padding nodes of its own
// pools. Zero-length and unknown-typed descriptors are ignored.
func (e *Enumerator) applyPadding(bridge *Device, pools *Pools) error {
	for _, d := range bridge.Padding {
		pool := pools.Of(d.Type)
		if pool == nil || d.Length == 0 {
			continue
		}

		n := &Resource{
			Dev:       bridge,
			Bar:       rangeTag(d.Type),
			Type:      d.Type,
			Length:    d.Length,
			Alignment: d.Alignment,
			Usage:     UsagePadding,
		}

		if err := e.track(n); err != nil {
			return err
		}

		pool.Insert(n)
	}

	return nil
}
