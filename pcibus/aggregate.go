package pcibus

import "fmt"

// Root and PCI-PCI bridge pools are aligned to the bridge window
// granularity; CardBus windows are 4 KiB memory and 4 byte I/O.
const (
	bridgeMemAlignment  = 0xfffff
	cardBusMemAlignment = 0xfff
	cardBusIOAlignment  = 0x3
)

// Minimum windows kept open below a CardBus bridge for the cards that
// may show up later.
const (
	cardBusMemPadding = 0x2000000
	cardBusIOPadding  = 0x100
)

func (e *Enumerator) track(n *Resource) error {
	e.nodes++

	if e.opts.MaxResources > 0 && e.nodes > e.opts.MaxResources {
		return fmt.Errorf("%d nodes at %s: %w", e.nodes, n.Dev, ErrOutOfResources)
	}

	return nil
}

func (e *Enumerator) newPools(bridge *Device, ioAlignment, memAlignment uint64) (*Pools, error) {
	pools := NewPools(bridge, ioAlignment, memAlignment)

	for _, p := range pools.All() {
		if err := e.track(p); err != nil {
			return nil, err
		}
	}

	return pools, nil
}

func (e *Enumerator) rootPools(root *Device) (*Pools, error) {
	return e.newPools(root, root.BridgeIOAlignment, bridgeMemAlignment)
}

// CreateResourceMap fills pools with the requests of everything below
// bridge: device BARs directly, child bridges as one window node per
// type aggregating their own subtree. Each pool is then degraded and
// packed.
func (e *Enumerator) CreateResourceMap(bridge *Device, pools *Pools) error {
	if e.opts.Padding != nil && bridge.Padding == nil {
		bridge.Padding = e.opts.Padding.ResourcePadding(bridge)
	}

	for _, child := range bridge.Children {
		if err := e.resourceFromDevice(child, pools); err != nil {
			return err
		}

		if !child.IsBridge() {
			continue
		}

		windows, err := e.bridgeWindows(child)
		if err != nil {
			return err
		}

		if err := e.CreateResourceMap(child, windows); err != nil {
			return fmt.Errorf("%v: %w", child.Address, err)
		}

		for _, w := range windows.All() {
			if w.Requested() {
				pools.Of(w.Type).Insert(w)
			}
		}
	}

	if err := e.applyPadding(bridge, pools); err != nil {
		return err
	}

	e.DegradeResource(bridge, pools)

	for _, p := range pools.All() {
		e.CalculateResourceAperture(p)
	}

	return nil
}

// resourceFromDevice adds one node per present BAR of dev. A device
// without any request has nothing to program and counts as allocated.
func (e *Enumerator) resourceFromDevice(dev *Device, pools *Pools) error {
	requested := false

	for i, b := range dev.Bars {
		if !b.Present() {
			continue
		}

		n := newBarResource(dev, i)
		if err := e.track(n); err != nil {
			return err
		}

		pools.Of(b.Type).Insert(n)

		requested = true
	}

	if !requested && !dev.IsBridge() {
		dev.Allocated = true
	}

	return nil
}

// bridgeWindows creates the five window nodes of a child bridge, with
// the fixed CardBus minimums already inside.
func (e *Enumerator) bridgeWindows(dev *Device) (*Pools, error) {
	if dev.Kind != KindCardBus {
		return e.newPools(dev, dev.BridgeIOAlignment, bridgeMemAlignment)
	}

	pools, err := e.newPools(dev, cardBusIOAlignment, cardBusMemAlignment)
	if err != nil {
		return nil, err
	}

	for _, p := range []struct {
		pool   *Resource
		length uint64
	}{
		{pools.Mem32, cardBusMemPadding},
		{pools.PMem32, cardBusMemPadding},
		{pools.IO, cardBusIOPadding},
		{pools.IO, cardBusIOPadding},
	} {
		n := &Resource{
			Dev:       dev,
			Bar:       p.pool.Bar,
			Type:      p.pool.Type,
			Length:    p.length,
			Alignment: p.length - 1,
			Usage:     UsagePadding,
		}

		if err := e.track(n); err != nil {
			return nil, err
		}

		p.pool.Insert(n)
	}

	return pools, nil
}
