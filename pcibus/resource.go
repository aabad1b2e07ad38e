package pcibus

import "fmt"

// Bar values of resource nodes that do not describe a device BAR.
const (
	TagIORange = -1 - iota
	TagMem32Range
	TagPMem32Range
	TagMem64Range
	TagPMem64Range
)

func rangeTag(t BarType) int {
	switch t {
	case BarIO16, BarIO32:
		return TagIORange
	case BarMem32:
		return TagMem32Range
	case BarPMem32:
		return TagPMem32Range
	case BarMem64:
		return TagMem64Range
	case BarPMem64:
		return TagPMem64Range
	default:
		return TagIORange
	}
}

// Resource is one request inside a pool: a device BAR, a bridge window
// aggregating a subtree, or padding. Pools themselves are Resources
// whose Children are kept ordered by Insert.
type Resource struct {
	Dev  *Device
	Bar  int
	Type BarType

	Length    uint64
	Alignment uint64
	// Offset is relative to the base of the parent pool, set by
	// CalculateResourceAperture.
	Offset uint64
	Usage  Usage

	Children []*Resource
}

func newBarResource(dev *Device, idx int) *Resource {
	b := dev.Bars[idx]

	return &Resource{
		Dev:       dev,
		Bar:       idx,
		Type:      b.Type,
		Length:    b.Length,
		Alignment: b.Alignment,
	}
}

func newRangeResource(dev *Device, t BarType, alignment uint64) *Resource {
	return &Resource{
		Dev:       dev,
		Bar:       rangeTag(t),
		Type:      t,
		Alignment: alignment,
	}
}

// IsBar reports whether r stands for a device BAR.
func (r *Resource) IsBar() bool {
	return r.Bar >= 0
}

// IsWindow reports whether r is a bridge window aggregating a subtree.
func (r *Resource) IsWindow() bool {
	return !r.IsBar() && r.Usage == UsageTypical
}

// Requested reports whether anything ended up in r.
func (r *Resource) Requested() bool {
	return len(r.Children) > 0 || r.Length > 0
}

func (r *Resource) String() string {
	what := "window"

	switch {
	case r.IsBar():
		what = fmt.Sprintf("bar%d", r.Bar)
	case r.Usage == UsagePadding:
		what = "padding"
	}

	return fmt.Sprintf("%s %s %s +%#x len %#x align %#x", r.Dev, what, r.Type, r.Offset, r.Length, r.Alignment)
}

// rest is the part of the length finer than the alignment, which only
// a padding node or an override can produce.
func (r *Resource) rest() uint64 {
	return r.Length & r.Alignment
}

// Insert adds n before the first child with a smaller alignment, or the
// same alignment and a larger remainder. Equal keys keep insertion order.
func (r *Resource) Insert(n *Resource) {
	i := len(r.Children)

	for j, c := range r.Children {
		// a smaller remainder packs first so the cursor stays aligned
		// for the zero-remainder nodes that follow
		if c.Alignment < n.Alignment || (c.Alignment == n.Alignment && c.rest() > n.rest()) {
			i = j

			break
		}
	}

	r.Children = append(r.Children, nil)
	copy(r.Children[i+1:], r.Children[i:])
	r.Children[i] = n
}

// moveAll empties from into to. With retag the moved nodes, and the
// device BARs they stand for, take on to's type.
func moveAll(from, to *Resource, retag bool) {
	for _, n := range from.Children {
		if retag {
			n.retype(to.Type)
		}

		to.Insert(n)
	}

	from.Children = nil
}

// retype moves r, and for a window everything laid out inside it, to
// type t. The device BARs follow so they name the space they decode in.
func (r *Resource) retype(t BarType) {
	r.Type = t

	if r.IsBar() && r.Dev != nil {
		r.Dev.Bars[r.Bar].Type = t
	}

	for _, c := range r.Children {
		c.retype(t)
	}
}

// Pools are the five typed resource pools of one bridge.
type Pools struct {
	IO     *Resource
	Mem32  *Resource
	PMem32 *Resource
	Mem64  *Resource
	PMem64 *Resource
}

// NewPools returns empty pools owned by bridge.
func NewPools(bridge *Device, ioAlignment, memAlignment uint64) *Pools {
	return &Pools{
		IO:     newRangeResource(bridge, BarIO16, ioAlignment),
		Mem32:  newRangeResource(bridge, BarMem32, memAlignment),
		PMem32: newRangeResource(bridge, BarPMem32, memAlignment),
		Mem64:  newRangeResource(bridge, BarMem64, memAlignment),
		PMem64: newRangeResource(bridge, BarPMem64, memAlignment),
	}
}

// Of returns the pool collecting resources of type t.
func (p *Pools) Of(t BarType) *Resource {
	switch t {
	case BarIO16, BarIO32:
		return p.IO
	case BarMem32:
		return p.Mem32
	case BarPMem32:
		return p.PMem32
	case BarMem64:
		return p.Mem64
	case BarPMem64:
		return p.PMem64
	default:
		return nil
	}
}

// All returns the pools in allocation order.
func (p *Pools) All() []*Resource {
	return []*Resource{p.IO, p.Mem32, p.PMem32, p.Mem64, p.PMem64}
}
