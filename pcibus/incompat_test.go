package pcibus_test

import (
	"testing"

	"github.com/bobuhiro11/gopcibus/pcibus"
	"github.com/bobuhiro11/gopcibus/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetNewAlign(t *testing.T) {
	t.Parallel()

	tests := []struct {
		alignment, factor, expected uint64
	}{
		{0xfff, 2, 0x1fff},
		{0xfff, 4, 0x3fff},
		{0xfff, 8, 0x7fff},
		{0x1fff, 2, 0x1fff},
		{0x2fff, 4, 0x3fff},
		{0x5fff, 8, 0x7fff},
		{0xf, 2, 0x1f},
		{0xffffffffffffffff, 2, 0xffffffffffffffff},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, pcibus.SetNewAlign(tt.alignment, tt.factor),
			"SetNewAlign(%#x, %d)", tt.alignment, tt.factor)
	}
}

func TestApplyOverrides(t *testing.T) {
	t.Parallel()

	newDev := func() *pcibus.Device {
		return &pcibus.Device{Bars: []pcibus.Bar{
			{Offset: 0x10, Type: pcibus.BarMem32, Length: 0x1000, Alignment: 0xfff},
			{Offset: 0x14, Type: pcibus.BarIO16, Length: 0x20, Alignment: 0x1f},
			{Offset: 0x18, Type: pcibus.BarPMem64, Length: 0x4000, Alignment: 0x3fff, Wide: true},
			{Offset: 0x20},
		}}
	}

	t.Run("all memory bars even", func(t *testing.T) {
		t.Parallel()

		dev := newDev()
		pcibus.ApplyOverrides(dev, []pcibus.BarOverride{{Bar: pcibus.BarAll, Class: pcibus.ClassMemory, Align: pcibus.AlignEven}})

		assert.Equal(t, uint64(0x1fff), dev.Bars[0].Alignment)
		assert.Equal(t, uint64(0x1f), dev.Bars[1].Alignment)
		// 0x4 is already even
		assert.Equal(t, uint64(0x3fff), dev.Bars[2].Alignment)
		assert.False(t, dev.Bars[3].Present())
	})

	t.Run("io length", func(t *testing.T) {
		t.Parallel()

		dev := newDev()
		pcibus.ApplyOverrides(dev, []pcibus.BarOverride{{Bar: 1, Class: pcibus.ClassIO, Length: 0x100}})

		assert.Equal(t, uint64(0x100), dev.Bars[1].Length)
		assert.Equal(t, uint64(0xff), dev.Bars[1].Alignment)
		assert.Equal(t, uint64(0x1000), dev.Bars[0].Length)
	})

	t.Run("explicit alignment", func(t *testing.T) {
		t.Parallel()

		dev := newDev()
		pcibus.ApplyOverrides(dev, []pcibus.BarOverride{{Bar: 0, Align: pcibus.AlignExplicit, Alignment: 0xffff}})

		assert.Equal(t, uint64(0xffff), dev.Bars[0].Alignment)
		assert.Equal(t, uint64(0x3fff), dev.Bars[2].Alignment)
	})

	t.Run("granularity", func(t *testing.T) {
		t.Parallel()

		dev := newDev()
		pcibus.ApplyOverrides(dev, []pcibus.BarOverride{{Bar: 2, Granularity: 32}})

		assert.Equal(t, pcibus.BarPMem32, dev.Bars[2].Type)
		assert.True(t, dev.Bars[2].Fixed)
		assert.True(t, dev.Bars[2].Wide)

		dev = newDev()
		pcibus.ApplyOverrides(dev, []pcibus.BarOverride{{Bar: pcibus.BarAll, Granularity: 64}})

		assert.Equal(t, pcibus.BarPMem64, dev.Bars[2].Type)
		assert.True(t, dev.Bars[2].Fixed)
		assert.False(t, dev.Bars[0].Fixed)
	})
}

func TestOverrideTableLookup(t *testing.T) {
	t.Parallel()

	table := pcibus.OverrideTable{
		{
			Identity:  pcibus.Identity{VendorID: 0x1002, DeviceID: pcibus.Any, RevisionID: 0xff, SubsystemVendorID: pcibus.Any, SubsystemID: pcibus.Any},
			Overrides: []pcibus.BarOverride{{Bar: pcibus.BarAll, Align: pcibus.AlignSquad}},
		},
		{
			Identity:  pcibus.Identity{VendorID: 0x1002, DeviceID: 0x5159, RevisionID: 0x01},
			Overrides: []pcibus.BarOverride{{Bar: 0, Length: 0x8000000}},
		},
	}

	assert.Len(t, table.Lookup(pcibus.Identity{VendorID: 0x1002, DeviceID: 0x5159, RevisionID: 0x01}), 2)
	assert.Len(t, table.Lookup(pcibus.Identity{VendorID: 0x1002, DeviceID: 0x5159, RevisionID: 0x02}), 1)
	assert.Empty(t, table.Lookup(pcibus.Identity{VendorID: 0x8086, DeviceID: 0x5159}))
}

func TestIncompatibleDeviceDuringCollect(t *testing.T) {
	t.Parallel()

	spec := endpoint(addr(0, 3, 0),
		sim.BARSpec{Kind: sim.BARMem32, Size: 0x1000},
		sim.BARSpec{Kind: sim.BARIO16, Size: 0x8},
	)
	spec.SubsystemVendorID = 0x1af4
	spec.SubsystemID = 0x0001

	seg := newSegment(t, spec)
	e := pcibus.New(seg, pcibus.Options{Incompatible: pcibus.OverrideTable{{
		Identity: pcibus.Identity{
			VendorID:          spec.VendorID,
			DeviceID:          spec.DeviceID,
			SubsystemVendorID: 0x1af4,
			SubsystemID:       0x0001,
		},
		Overrides: []pcibus.BarOverride{{Bar: pcibus.BarAll, Class: pcibus.ClassMemory, Align: pcibus.AlignDQuad}},
	}}})

	root := pcibus.NewRootBridge(0, 0)
	require.NoError(t, e.CollectDevices(root, 0))
	require.Len(t, root.Children, 1)

	dev := root.Children[0]
	assert.Equal(t, uint16(0x1af4), dev.SubsystemVendorID)
	assert.Equal(t, uint64(0x7fff), dev.Bars[0].Alignment)
	assert.Equal(t, uint64(0x7), dev.Bars[1].Alignment)
}
