package memory

import (
	"errors"
	"fmt"
	"sort"
)

var (
	errAddrSpaceOccupied = errors.New("address space occupied")
	errOutOfRange        = errors.New("address outside of address space")
)

// AddressSpace is a range of system address space and the claims made
// inside it, kept sorted by start.
type AddressSpace struct {
	Name      string
	Start     uint64
	Size      uint64
	Addresses []*AddressSpace
}

func NewAddressSpace(name string, start, size uint64) *AddressSpace {
	return &AddressSpace{
		Name:  name,
		Start: start,
		Size:  size,
	}
}

// End is the last address inside a.
func (a *AddressSpace) End() uint64 {
	return a.Start + a.Size - 1
}

func (a *AddressSpace) AddAddress(addr *AddressSpace) error {
	if !a.InRange(addr) {
		return fmt.Errorf("%s [%#x-%#x] in %s: %w", addr.Name, addr.Start, addr.End(), a.Name, errOutOfRange)
	}

	if !a.IsFree(addr) {
		return fmt.Errorf("%s [%#x-%#x] in %s: %w", addr.Name, addr.Start, addr.End(), a.Name, errAddrSpaceOccupied)
	}

	a.Addresses = append(a.Addresses, addr)
	sort.Slice(a.Addresses, func(i, j int) bool { return a.Addresses[i].Start < a.Addresses[j].Start })

	return nil
}

func (a *AddressSpace) InRange(addr *AddressSpace) bool {
	return addr.Size != 0 && addr.Start >= a.Start && addr.End() >= addr.Start && addr.End() <= a.End()
}

func (a *AddressSpace) IsFree(ad *AddressSpace) bool {
	for _, addr := range a.Addresses {
		if ad.Start <= addr.End() && addr.Start <= ad.End() {
			return false
		}
	}

	return true
}

// FirstFit returns the lowest address inside a where size bytes aligned
// to alignment+1 do not collide with an existing claim.
func (a *AddressSpace) FirstFit(size, alignment uint64) (uint64, bool) {
	if size == 0 || size > a.Size {
		return 0, false
	}

	cand := alignUp(a.Start, alignment)

	for _, used := range a.Addresses {
		if cand+size-1 < used.Start {
			break
		}

		if used.End() >= cand {
			cand = alignUp(used.End()+1, alignment)
		}
	}

	if cand < a.Start || cand+size-1 < cand || cand+size-1 > a.End() {
		return 0, false
	}

	return cand, true
}

func alignUp(v, alignment uint64) uint64 {
	if pad := v & alignment; pad != 0 {
		v += alignment + 1 - pad
	}

	return v
}
