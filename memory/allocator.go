// Package memory hands out system address space to the root bridge
// pools of an enumeration.
package memory

import (
	"fmt"
	"sync"

	"github.com/bobuhiro11/gopcibus/pcibus"
)

// Window is the part of system address space routed to a root bridge
// for one resource type.
type Window struct {
	Type  pcibus.BarType
	Base  uint64
	Limit uint64
}

// Allocator is a first-fit pcibus.Allocator over fixed windows. A
// request for a type without its own window is served from the window
// it degrades to: PMem64 from Mem64, PMem32, then Mem32.
type Allocator struct {
	mu     sync.Mutex
	spaces map[pcibus.BarType]*AddressSpace
}

func NewAllocator(windows ...Window) (*Allocator, error) {
	a := &Allocator{spaces: map[pcibus.BarType]*AddressSpace{}}

	for _, w := range windows {
		t := w.Type
		if t == pcibus.BarIO32 {
			t = pcibus.BarIO16
		}

		if w.Limit < w.Base {
			return nil, fmt.Errorf("%s window [%#x-%#x]: %w", w.Type, w.Base, w.Limit, errOutOfRange)
		}

		if _, ok := a.spaces[t]; ok {
			return nil, fmt.Errorf("%s window: %w", w.Type, errAddrSpaceOccupied)
		}

		a.spaces[t] = NewAddressSpace(t.String(), w.Base, w.Limit-w.Base+1)
	}

	return a, nil
}

var fallbacks = map[pcibus.BarType][]pcibus.BarType{
	pcibus.BarIO16:   {pcibus.BarIO16},
	pcibus.BarIO32:   {pcibus.BarIO16},
	pcibus.BarMem32:  {pcibus.BarMem32},
	pcibus.BarPMem32: {pcibus.BarPMem32, pcibus.BarMem32},
	pcibus.BarMem64:  {pcibus.BarMem64, pcibus.BarMem32},
	pcibus.BarPMem64: {pcibus.BarPMem64, pcibus.BarMem64, pcibus.BarPMem32, pcibus.BarMem32},
}

func (a *Allocator) Allocate(t pcibus.BarType, length, alignment uint64) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, ft := range fallbacks[t] {
		space, ok := a.spaces[ft]
		if !ok {
			continue
		}

		base, ok := space.FirstFit(length, alignment)
		if !ok {
			continue
		}

		if err := space.AddAddress(NewAddressSpace(t.String(), base, length)); err != nil {
			return 0, err
		}

		return base, nil
	}

	return 0, fmt.Errorf("%s length %#x align %#x: %w", t, length, alignment, pcibus.ErrOutOfResources)
}

// Claims returns what has been handed out of the window serving t.
func (a *Allocator) Claims(t pcibus.BarType) []*AddressSpace {
	a.mu.Lock()
	defer a.mu.Unlock()

	space, ok := a.spaces[t]
	if !ok {
		return nil
	}

	return append([]*AddressSpace(nil), space.Addresses...)
}
