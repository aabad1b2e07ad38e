package pcibus

// ioWindow is an inclusive range repeated in every 1 KiB block of I/O
// space, since the legacy decoders look at ten address bits only.
type ioWindow struct {
	lo, hi uint64
}

var (
	isaAliases = []ioWindow{{0x100, 0x3ff}}
	vgaWindows = []ioWindow{{0x3b0, 0x3bb}, {0x3c0, 0x3df}}
)

// Largest node that can still be placed between the windows.
const (
	isaMaxLength = 0x100
	vgaMaxLength = 0x3d0
)

const legacySkipLimit = 64

func alignUp(v, alignment uint64) uint64 {
	if pad := v & alignment; pad != 0 {
		v += alignment + 1 - pad
	}

	return v
}

// CalculateResourceAperture lays out the children of pool in order and
// sets the pool's length and alignment. Padding nodes are laid out on
// their own cursor: they only raise the length floor and never displace
// a real request.
func (e *Enumerator) CalculateResourceAperture(pool *Resource) {
	var typical, padding uint64

	for _, n := range pool.Children {
		cursor := &typical
		if n.Usage == UsagePadding {
			cursor = &padding
		}

		off := alignUp(*cursor, n.Alignment)
		if pool.Type.IsIO() && n.Usage == UsageTypical && (n.Dev == nil || !n.Dev.IsBridge()) {
			off = e.skipLegacy(off, n)
		}

		n.Offset = off
		*cursor = off + n.Length
	}

	pool.Length = max(pool.Length, alignUp(typical, pool.Alignment), alignUp(padding, pool.Alignment))

	if len(pool.Children) > 0 {
		pool.Alignment = max(pool.Alignment, pool.Children[0].Alignment)
	}
}

func (e *Enumerator) skipLegacy(off uint64, n *Resource) uint64 {
	var (
		windows []ioWindow
		limit   uint64
	)

	switch e.opts.Legacy {
	case LegacyISA:
		windows, limit = isaAliases, isaMaxLength
	case LegacyVGA:
		windows, limit = vgaWindows, vgaMaxLength
	default:
		return off
	}

	if n.Length == 0 || n.Length > limit {
		return off
	}

	for i := 0; i < legacySkipLimit; i++ {
		next, hit := intersectWindow(off, n.Length, windows)
		if !hit {
			return off
		}

		off = alignUp(next, n.Alignment)
	}

	e.log.Warn("no legacy-free I/O offset", "node", n)

	return off
}

// intersectWindow returns the end of the first window [off, off+length)
// overlaps.
func intersectWindow(off, length uint64, windows []ioWindow) (uint64, bool) {
	end := off + length

	for block := off &^ 0x3ff; block < end; block += 0x400 {
		for _, w := range windows {
			lo, hi := block+w.lo, block+w.hi+1
			if off < hi && lo < end {
				return hi, true
			}
		}
	}

	return 0, false
}
