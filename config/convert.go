package config

import (
	"fmt"
	"strconv"

	"github.com/bobuhiro11/gopcibus/memory"
	"github.com/bobuhiro11/gopcibus/pci"
	"github.com/bobuhiro11/gopcibus/pcibus"
	"github.com/bobuhiro11/gopcibus/sim"
	"github.com/charmbracelet/log"
)

// EnumeratorOptions turns the document into pcibus.Options. The config
// is expected to have passed Validate.
func (c *Config) EnumeratorOptions(logger *log.Logger) (pcibus.Options, error) {
	mode, err := pcibus.ParseMode(c.Mode)
	if err != nil {
		return pcibus.Options{}, err
	}

	legacy, err := pcibus.ParseLegacyIO(c.LegacyIO)
	if err != nil {
		return pcibus.Options{}, err
	}

	overrides, err := c.Overrides()
	if err != nil {
		return pcibus.Options{}, err
	}

	padding, err := c.PaddingTable()
	if err != nil {
		return pcibus.Options{}, err
	}

	opts := pcibus.Options{
		Mode:              mode,
		Logger:            logger,
		Legacy:            legacy,
		BridgeIOAlignment: uint64(c.BridgeIOAlignment),
		MaxResources:      c.MaxResources,
	}

	// leave the hooks nil rather than holding typed nils
	if overrides != nil {
		opts.Incompatible = overrides
	}

	if padding != nil {
		opts.Padding = padding
	}

	return opts, nil
}

func (c *Config) rootDecodes() (pcibus.Decode, error) {
	var d pcibus.Decode

	for _, s := range c.Root.Decodes {
		f, err := pcibus.ParseDecode(s)
		if err != nil {
			return 0, err
		}

		d |= f
	}

	return d, nil
}

// RootBridge returns the root bridge record the walk starts at.
func (c *Config) RootBridge() (*pcibus.Device, error) {
	d, err := c.rootDecodes()
	if err != nil {
		return nil, err
	}

	return pcibus.NewRootBridge(c.Root.Bus, d), nil
}

// Windows returns the system address windows of the root bridge.
func (c *Config) Windows() ([]memory.Window, error) {
	ws := make([]memory.Window, 0, len(c.Root.Windows))

	for _, w := range c.Root.Windows {
		t, err := pcibus.ParseBarType(w.Type)
		if err != nil {
			return nil, err
		}

		if w.Limit < w.Base {
			return nil, fmt.Errorf("%s window limit %#x below base %#x", w.Type, w.Limit, w.Base)
		}

		ws = append(ws, memory.Window{Type: t, Base: uint64(w.Base), Limit: uint64(w.Limit)})
	}

	return ws, nil
}

// Allocator builds the first-fit allocator over the root windows.
func (c *Config) Allocator() (*memory.Allocator, error) {
	ws, err := c.Windows()
	if err != nil {
		return nil, err
	}

	return memory.NewAllocator(ws...)
}

// Overrides returns the incompatible-device table, nil when empty.
func (c *Config) Overrides() (pcibus.OverrideTable, error) {
	if len(c.Incompatible) == 0 {
		return nil, nil
	}

	t := make(pcibus.OverrideTable, 0, len(c.Incompatible))

	for i, in := range c.Incompatible {
		e := pcibus.OverrideEntry{
			Identity: pcibus.Identity{
				VendorID:          orAny(in.VendorID),
				DeviceID:          orAny(in.DeviceID),
				RevisionID:        0xff,
				SubsystemVendorID: orAny(in.SubsystemVendorID),
				SubsystemID:       orAny(in.SubsystemID),
			},
		}

		if in.RevisionID != nil {
			e.RevisionID = *in.RevisionID
		}

		for j, o := range in.Overrides {
			bo, err := o.barOverride()
			if err != nil {
				return nil, fmt.Errorf("entry %d override %d: %w", i, j, err)
			}

			e.Overrides = append(e.Overrides, bo)
		}

		t = append(t, e)
	}

	return t, nil
}

func orAny(v *uint16) uint16 {
	if v == nil {
		return pcibus.Any
	}

	return *v
}

func (o Override) barOverride() (pcibus.BarOverride, error) {
	bo := pcibus.BarOverride{Length: uint64(o.Length), Granularity: o.Granularity}

	switch o.Bar {
	case "all", "":
		bo.Bar = pcibus.BarAll
	default:
		n, err := strconv.Atoi(o.Bar)
		if err != nil || n < 0 || n >= pci.DeviceBARCount {
			return bo, fmt.Errorf("bar %q: want 0-%d or all", o.Bar, pci.DeviceBARCount-1)
		}

		bo.Bar = n
	}

	switch o.Class {
	case "memory", "mem", "":
		bo.Class = pcibus.ClassMemory
	case "io":
		bo.Class = pcibus.ClassIO
	default:
		return bo, fmt.Errorf("class %q: want memory or io", o.Class)
	}

	switch o.Align {
	case "keep", "":
		bo.Align = pcibus.AlignKeep
	case "even":
		bo.Align = pcibus.AlignEven
	case "squad":
		bo.Align = pcibus.AlignSquad
	case "dquad":
		bo.Align = pcibus.AlignDQuad
	default:
		a, err := ParseSize(o.Align, "")
		if err != nil {
			return bo, fmt.Errorf("align %q: %w", o.Align, err)
		}

		if a&(a+1) != 0 {
			return bo, fmt.Errorf("align %#x is not a power of two minus one", a)
		}

		bo.Align = pcibus.AlignExplicit
		bo.Alignment = a
	}

	if o.Length != 0 {
		if err := checkPowerOfTwo(uint64(o.Length)); err != nil {
			return bo, fmt.Errorf("length: %w", err)
		}
	}

	switch o.Granularity {
	case 0, 32, 64:
	default:
		return bo, fmt.Errorf("granularity %d: want 32 or 64", o.Granularity)
	}

	return bo, nil
}

// PaddingTable returns the per-bridge padding, nil when empty.
func (c *Config) PaddingTable() (*pcibus.PaddingTable, error) {
	if len(c.Padding) == 0 {
		return nil, nil
	}

	t := &pcibus.PaddingTable{Bridges: map[pci.Address][]pcibus.PaddingDescriptor{}}

	for _, p := range c.Padding {
		var ds []pcibus.PaddingDescriptor

		for _, r := range p.Resources {
			typ, err := pcibus.ParseBarType(r.Type)
			if err != nil {
				return nil, fmt.Errorf("padding %s: %w", p.Bridge, err)
			}

			if err := checkPowerOfTwo(uint64(r.Length)); err != nil {
				return nil, fmt.Errorf("padding %s %s length: %w", p.Bridge, r.Type, err)
			}

			align := uint64(r.Alignment)
			if align == 0 {
				align = uint64(r.Length) - 1
			}

			ds = append(ds, pcibus.PaddingDescriptor{Type: typ, Length: uint64(r.Length), Alignment: align})
		}

		if p.Bridge == "root" {
			t.Root = append(t.Root, ds...)

			continue
		}

		a, err := pci.ParseAddress(p.Bridge)
		if err != nil {
			return nil, fmt.Errorf("padding: %w", err)
		}

		t.Bridges[a] = append(t.Bridges[a], ds...)
	}

	return t, nil
}

var barKinds = map[string]sim.BARKind{
	"none":  sim.BARNone,
	"":      sim.BARNone,
	"io16":  sim.BARIO16,
	"io":    sim.BARIO16,
	"io32":  sim.BARIO32,
	"mem32": sim.BARMem32,
	"mem64": sim.BARMem64,
}

var headerTypes = map[string]uint8{
	"device":  pci.HeaderTypeNormal,
	"":        pci.HeaderTypeNormal,
	"bridge":  pci.HeaderTypeBridge,
	"cardbus": pci.HeaderTypeCardBus,
}

// Functions converts the topology into emulated function specs.
func (c *Config) Functions() ([]sim.FunctionSpec, error) {
	if _, err := parseAddresses(c.Topology); err != nil {
		return nil, err
	}

	specs := make([]sim.FunctionSpec, 0, len(c.Topology))

	for _, f := range c.Topology {
		s, err := f.spec()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Address, err)
		}

		specs = append(specs, s)
	}

	return specs, nil
}

func (f Function) spec() (sim.FunctionSpec, error) {
	addr, err := pci.ParseAddress(f.Address)
	if err != nil {
		return sim.FunctionSpec{}, err
	}

	header, ok := headerTypes[f.Header]
	if !ok {
		return sim.FunctionSpec{}, fmt.Errorf("header %q: want device, bridge or cardbus", f.Header)
	}

	s := sim.FunctionSpec{
		Address:           addr,
		VendorID:          f.VendorID,
		DeviceID:          f.DeviceID,
		RevisionID:        f.RevisionID,
		Class:             f.Class,
		Subclass:          f.Subclass,
		HeaderType:        header,
		MultiFunction:     f.MultiFunction,
		SubsystemVendorID: f.SubsystemVendor,
		SubsystemID:       f.Subsystem,
		PrimaryBus:        f.PrimaryBus,
		SecondaryBus:      f.SecondaryBus,
		SubordinateBus:    f.SubordinateBus,
		IOWindow:          f.IOWindow,
		IO32:              f.IO32,
		PrefetchWindow:    f.PrefetchWindow,
		Prefetch64:        f.Prefetch64,
	}

	for i, b := range f.BARs {
		k, ok := barKinds[b.Kind]
		if !ok {
			return sim.FunctionSpec{}, fmt.Errorf("bar %d kind %q", i, b.Kind)
		}

		if k != sim.BARNone {
			if err := checkPowerOfTwo(uint64(b.Size)); err != nil {
				return sim.FunctionSpec{}, fmt.Errorf("bar %d size: %w", i, err)
			}
		}

		s.BARs = append(s.BARs, sim.BARSpec{
			Kind:         k,
			Size:         uint64(b.Size),
			Prefetchable: b.Prefetchable,
			Base:         uint64(b.Base),
		})
	}

	return s, nil
}

// Segment builds the emulated configuration space of the topology.
func (c *Config) Segment() (*sim.Segment, error) {
	specs, err := c.Functions()
	if err != nil {
		return nil, err
	}

	return sim.New(specs...)
}
