package pcibus_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/bobuhiro11/gopcibus/pci"
	"github.com/bobuhiro11/gopcibus/pcibus"
	"github.com/bobuhiro11/gopcibus/sim"
	"github.com/stretchr/testify/require"
)

var errNoSpace = errors.New("no space")

func addr(bus, dev, fn uint8) pci.Address {
	return pci.Address{Bus: bus, Device: dev, Function: fn}
}

func newSegment(t *testing.T, specs ...sim.FunctionSpec) *sim.Segment {
	t.Helper()

	seg, err := sim.New(specs...)
	require.NoError(t, err)

	return seg
}

func endpoint(a pci.Address, bars ...sim.BARSpec) sim.FunctionSpec {
	return sim.FunctionSpec{
		Address:  a,
		VendorID: 0x8086,
		DeviceID: 0x100e,
		Class:    0x02,
		BARs:     bars,
	}
}

func ppb(a pci.Address, primary, secondary, subordinate uint8) sim.FunctionSpec {
	return sim.FunctionSpec{
		Address:        a,
		VendorID:       0x1b36,
		DeviceID:       0x0001,
		Class:          pci.ClassBridge,
		Subclass:       pci.SubclassPCIBridge,
		HeaderType:     pci.HeaderTypeBridge,
		PrimaryBus:     primary,
		SecondaryBus:   secondary,
		SubordinateBus: subordinate,
		IOWindow:       true,
		PrefetchWindow: true,
	}
}

// fixedAllocator hands out one preset base per pool type and records
// what it was asked for.
type fixedAllocator struct {
	bases    map[pcibus.BarType]uint64
	requests map[pcibus.BarType][2]uint64
}

func newFixedAllocator(bases map[pcibus.BarType]uint64) *fixedAllocator {
	return &fixedAllocator{bases: bases, requests: map[pcibus.BarType][2]uint64{}}
}

func (a *fixedAllocator) Allocate(t pcibus.BarType, length, alignment uint64) (uint64, error) {
	a.requests[t] = [2]uint64{length, alignment}

	base, ok := a.bases[t]
	if !ok {
		return 0, errNoSpace
	}

	return base, nil
}

// countingLocker records how often the probe lock was taken.
type countingLocker struct {
	mu sync.Mutex
	n  int
}

func (l *countingLocker) Lock() {
	l.mu.Lock()
	l.n++
}

func (l *countingLocker) Unlock() {
	l.mu.Unlock()
}
