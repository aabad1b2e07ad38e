package pcibus

// DegradeResource moves requests the bridge cannot forward into a pool
// type it can. Prefetchable requests fall back to non-prefetchable ones
// and 64-bit requests to 32-bit ones; Mem32 always stays.
func (e *Enumerator) DegradeResource(bridge *Device, pools *Pools) {
	d := bridge.Decodes

	switch {
	case !d.Has(DecodePMem64):
		e.merge(bridge, pools.PMem64, pools.PMem32, true)
	case len(pools.PMem32.Children) > 0 && !bridge.IsRoot():
		// one prefetchable window below 4 GiB can hold both
		e.merge(bridge, pools.PMem64, pools.PMem32, true)
	}

	if !d.Has(DecodeMem64) {
		e.merge(bridge, pools.Mem64, pools.Mem32, true)
	}

	if !d.Has(DecodePMem32) {
		e.merge(bridge, pools.PMem32, pools.Mem32, true)
	}

	if d.Has(DecodePMemMemCombine) {
		e.merge(bridge, pools.PMem32, pools.Mem32, false)
		e.merge(bridge, pools.PMem64, pools.Mem64, false)
	}
}

func (e *Enumerator) merge(bridge *Device, from, to *Resource, retag bool) {
	if len(from.Children) == 0 {
		return
	}

	e.log.Debug("degrading", "bridge", bridge, "from", from.Type, "to", to.Type, "count", len(from.Children))
	moveAll(from, to, retag)
}
