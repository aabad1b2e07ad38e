package pcibus_test

import (
	"testing"

	"github.com/bobuhiro11/gopcibus/pci"
	"github.com/bobuhiro11/gopcibus/pcibus"
	"github.com/bobuhiro11/gopcibus/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectDevicesSingleFunctionSkip(t *testing.T) {
	t.Parallel()

	seg := newSegment(t, endpoint(addr(0, 1, 0)))
	e := pcibus.New(seg, pcibus.Options{})
	root := pcibus.NewRootBridge(0, 0)

	require.NoError(t, e.CollectDevices(root, 0))
	require.Len(t, root.Children, 1)

	assert.Equal(t, 1, seg.Probes(addr(0, 1, 0)))

	for f := uint8(1); f <= pci.MaxFunction; f++ {
		assert.Zero(t, seg.Probes(addr(0, 1, f)), "function %d probed", f)
	}

	// empty slots are probed at function 0 only
	for d := uint8(0); d <= pci.MaxDevice; d++ {
		assert.Equal(t, 1, seg.Probes(addr(0, d, 0)), "device %d", d)
		assert.Zero(t, seg.Probes(addr(0, d, 1)), "device %d", d)
	}

	assert.Equal(t, int(pci.MaxDevice)+1, seg.TotalProbes())
}

func TestCollectDevicesMultiFunction(t *testing.T) {
	t.Parallel()

	f0 := endpoint(addr(0, 2, 0))
	f0.MultiFunction = true
	f5 := endpoint(addr(0, 2, 5))
	f5.DeviceID = 0x2922

	seg := newSegment(t, f0, f5)
	e := pcibus.New(seg, pcibus.Options{})
	root := pcibus.NewRootBridge(0, 0)

	require.NoError(t, e.CollectDevices(root, 0))
	require.Len(t, root.Children, 2)

	assert.Equal(t, addr(0, 2, 0), root.Children[0].Address)
	assert.Equal(t, addr(0, 2, 5), root.Children[1].Address)
	assert.Equal(t, uint16(0x2922), root.Children[1].DeviceID)

	for f := uint8(0); f <= pci.MaxFunction; f++ {
		assert.Equal(t, 1, seg.Probes(addr(0, 2, f)), "function %d", f)
	}
}

func TestCollectDevicesBehindBridge(t *testing.T) {
	t.Parallel()

	seg := newSegment(t,
		ppb(addr(0, 1, 0), 0, 1, 2),
		endpoint(addr(1, 0, 0), sim.BARSpec{Kind: sim.BARMem32, Size: 0x1000}),
		ppb(addr(1, 1, 0), 1, 2, 2),
		endpoint(addr(2, 3, 0), sim.BARSpec{Kind: sim.BARIO16, Size: 0x10}),
		endpoint(addr(0, 4, 0)),
	)
	e := pcibus.New(seg, pcibus.Options{})
	root := pcibus.NewRootBridge(0, 0)

	require.NoError(t, e.CollectDevices(root, 0))

	var got []pci.Address

	depths := map[pci.Address]int{}

	root.Walk(func(dev *pcibus.Device, depth int) {
		if !dev.IsRoot() {
			got = append(got, dev.Address)
			depths[dev.Address] = depth
		}
	})

	assert.Equal(t, []pci.Address{
		addr(0, 1, 0), addr(1, 0, 0), addr(1, 1, 0), addr(2, 3, 0), addr(0, 4, 0),
	}, got)
	assert.Equal(t, 3, depths[addr(2, 3, 0)])

	br := root.Find(addr(0, 1, 0))
	require.NotNil(t, br)
	assert.Equal(t, pcibus.KindBridge, br.Kind)
	assert.Equal(t, uint8(1), br.SecondaryBus)
	assert.Equal(t, uint8(2), br.SubordinateBus)
	assert.True(t, br.Decodes.Has(pcibus.DecodeIO16|pcibus.DecodeMem32|pcibus.DecodePMem32))
	assert.False(t, br.Decodes.Has(pcibus.DecodeIO32))
	assert.False(t, br.Decodes.Has(pcibus.DecodePMem64))

	dev := root.Find(addr(2, 3, 0))
	require.NotNil(t, dev)
	assert.Equal(t, pcibus.BarIO16, dev.Bars[0].Type)
}

func TestCollectDevicesUnconfiguredBridge(t *testing.T) {
	t.Parallel()

	seg := newSegment(t,
		ppb(addr(0, 1, 0), 0, 0, 0),
		endpoint(addr(1, 0, 0)),
	)
	e := pcibus.New(seg, pcibus.Options{})
	root := pcibus.NewRootBridge(0, 0)

	require.NoError(t, e.CollectDevices(root, 0))
	require.Len(t, root.Children, 1)
	assert.Empty(t, root.Children[0].Children)
	assert.Zero(t, seg.Probes(addr(1, 0, 0)))
}

func TestCollectDevicesSecondaryBusFailure(t *testing.T) {
	t.Parallel()

	seg := newSegment(t,
		endpoint(addr(0, 0, 0)),
		ppb(addr(0, 1, 0), 0, 1, 1),
		endpoint(addr(1, 0, 0)),
	)
	seg.FailReads(addr(0, 1, 0), pci.SecondaryBusOffset)

	e := pcibus.New(seg, pcibus.Options{})
	root := pcibus.NewRootBridge(0, 0)

	err := e.CollectDevices(root, 0)
	require.ErrorIs(t, err, pcibus.ErrSecondaryBus)
	require.ErrorIs(t, err, sim.ErrInjected)

	require.Len(t, root.Children, 1)
	assert.Equal(t, addr(0, 0, 0), root.Children[0].Address)
	assert.Zero(t, seg.Probes(addr(1, 0, 0)))
}

func TestCollectDevicesNestedFailureKeepsSiblings(t *testing.T) {
	t.Parallel()

	seg := newSegment(t,
		ppb(addr(0, 1, 0), 0, 1, 2),
		endpoint(addr(1, 0, 0)),
		ppb(addr(1, 1, 0), 1, 2, 2),
		endpoint(addr(0, 2, 0)),
	)
	seg.FailReads(addr(1, 1, 0), pci.SecondaryBusOffset)

	e := pcibus.New(seg, pcibus.Options{})
	root := pcibus.NewRootBridge(0, 0)

	require.NoError(t, e.CollectDevices(root, 0))
	require.Len(t, root.Children, 2)

	br := root.Children[0]
	require.Len(t, br.Children, 1)
	assert.Equal(t, addr(1, 0, 0), br.Children[0].Address)
	assert.Equal(t, addr(0, 2, 0), root.Children[1].Address)
}

func TestCollectDevicesSkipsBrokenFunction(t *testing.T) {
	t.Parallel()

	unknown := sim.FunctionSpec{Address: addr(0, 1, 0), VendorID: 0x1234, HeaderType: 0x03}
	broken := endpoint(addr(0, 2, 0), sim.BARSpec{Kind: sim.BARMem32, Size: 0x1000})

	seg := newSegment(t, unknown, broken, endpoint(addr(0, 3, 0)))
	seg.FailReads(addr(0, 2, 0), pci.BAR0Offset)

	e := pcibus.New(seg, pcibus.Options{})
	root := pcibus.NewRootBridge(0, 0)

	require.NoError(t, e.CollectDevices(root, 0))
	require.Len(t, root.Children, 1)
	assert.Equal(t, addr(0, 3, 0), root.Children[0].Address)
}

func TestCollectDevicesCardBus(t *testing.T) {
	t.Parallel()

	seg := newSegment(t, sim.FunctionSpec{
		Address:      addr(0, 5, 0),
		VendorID:     0x104c,
		DeviceID:     0xac56,
		Class:        pci.ClassBridge,
		Subclass:     pci.SubclassCardBus,
		HeaderType:   pci.HeaderTypeCardBus,
		SecondaryBus: 3,
		BARs:         []sim.BARSpec{{Kind: sim.BARMem32, Size: 0x1000}},
	})
	e := pcibus.New(seg, pcibus.Options{})
	root := pcibus.NewRootBridge(0, 0)

	require.NoError(t, e.CollectDevices(root, 0))
	require.Len(t, root.Children, 1)

	cb := root.Children[0]
	assert.Equal(t, pcibus.KindCardBus, cb.Kind)
	assert.Len(t, cb.Bars, pci.CardBusBARCount)
	assert.Equal(t, uint8(3), cb.SecondaryBus)
	assert.True(t, cb.Decodes.Has(pcibus.DecodeMem32|pcibus.DecodePMem32|pcibus.DecodeIO32))
	assert.Equal(t, 1, seg.Probes(addr(3, 0, 0)))
}
