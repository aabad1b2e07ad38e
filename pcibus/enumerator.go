// Package pcibus enumerates a PCI hierarchy and allocates its resources:
// it walks the buses depth-first, sizes every BAR, aggregates requests
// into per-bridge typed pools, degrades types a bridge cannot forward,
// packs each pool into an aperture and finally programs BARs and bridge
// windows from the bases a system allocator grants.
package pcibus

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/bobuhiro11/gopcibus/pci"
	"github.com/charmbracelet/log"
)

// Allocator grants system address space for one root pool.
type Allocator interface {
	Allocate(t BarType, length, alignment uint64) (uint64, error)
}

// Options tunes an Enumerator. The zero value is a rescan with no
// overrides, no padding and no legacy I/O policy.
type Options struct {
	Mode   Mode
	Logger *log.Logger

	// ProbeLock is held around every write-ones/read/restore sequence.
	// Share it with anything else that touches configuration space.
	ProbeLock sync.Locker

	Incompatible IncompatibleDevices
	Padding      PaddingProvider
	Legacy       LegacyIO

	// BridgeIOAlignment overrides the 4 KiB I/O window granularity of
	// PCI-PCI bridges (as an alignment mask, e.g. 0x3ff).
	BridgeIOAlignment uint64

	// MaxResources bounds the number of resource nodes one enumeration
	// may create. Zero means unlimited.
	MaxResources int
}

type Enumerator struct {
	cfg   pci.ConfigAccess
	opts  Options
	lock  sync.Locker
	log   *log.Logger
	nodes int
}

func New(cfg pci.ConfigAccess, opts Options) *Enumerator {
	e := &Enumerator{
		cfg:  cfg,
		opts: opts,
		lock: opts.ProbeLock,
		log:  opts.Logger,
	}

	if e.lock == nil {
		e.lock = &sync.Mutex{}
	}

	if e.log == nil {
		e.log = log.New(io.Discard)
	}

	if e.opts.BridgeIOAlignment == 0 {
		e.opts.BridgeIOAlignment = pci.BridgeIOGranularity - 1
	}

	return e
}

// Result is what one enumeration pass produced.
type Result struct {
	Root  *Device
	Pools *Pools
	// Bases holds the granted base of every root pool that was programmed.
	Bases map[BarType]uint64
}

// Enumerate runs the whole pipeline below root. Allocation or programming
// failures of one root pool leave that pool unprogrammed; they are joined
// into the returned error alongside the partial result.
func (e *Enumerator) Enumerate(root *Device, alloc Allocator) (*Result, error) {
	if root == nil || !root.IsRoot() {
		return nil, ErrNotRootBridge
	}

	if alloc == nil {
		return nil, ErrNoAllocator
	}

	e.nodes = 0
	root.Children = nil

	if e.opts.Mode == ModeFull {
		if err := e.AssignBusNumbers(root); err != nil {
			return nil, fmt.Errorf("assign bus numbers: %w", err)
		}
	}

	if err := e.CollectDevices(root, root.SecondaryBus); err != nil {
		return nil, fmt.Errorf("collect devices on bus %02x: %w", root.SecondaryBus, err)
	}

	pools, err := e.rootPools(root)
	if err != nil {
		return nil, err
	}

	if err := e.CreateResourceMap(root, pools); err != nil {
		return nil, fmt.Errorf("create resource map: %w", err)
	}

	res := &Result{Root: root, Pools: pools, Bases: map[BarType]uint64{}}

	var errs []error

	for _, pool := range pools.All() {
		if !pool.Requested() {
			continue
		}

		base, err := alloc.Allocate(pool.Type, pool.Length, pool.Alignment)
		if err != nil {
			e.log.Warn("pool not allocated", "type", pool.Type, "length", hex(pool.Length), "err", err)
			errs = append(errs, fmt.Errorf("allocate %s pool of %#x: %w", pool.Type, pool.Length, err))

			continue
		}

		e.log.Info("pool allocated", "type", pool.Type, "base", hex(base), "length", hex(pool.Length))

		if err := e.ProgramResource(base, pool); err != nil {
			errs = append(errs, fmt.Errorf("program %s pool: %w", pool.Type, err))

			continue
		}

		res.Bases[pool.Type] = base
	}

	return res, errors.Join(errs...)
}

func hex(v uint64) string {
	return fmt.Sprintf("%#x", v)
}
