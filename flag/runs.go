package flag

import (
	"fmt"
	"io"
	"os"

	"github.com/bobuhiro11/gopcibus/config"
	"github.com/bobuhiro11/gopcibus/iodev"
	"github.com/bobuhiro11/gopcibus/logging"
	"github.com/bobuhiro11/gopcibus/pci"
	"github.com/bobuhiro11/gopcibus/pcibus"
	"github.com/bobuhiro11/gopcibus/report"
	"github.com/bobuhiro11/gopcibus/sim"
	"github.com/charmbracelet/log"
)

func Parse() error {
	c := CLI{}

	parser, err := newParser(&c)
	if err != nil {
		return err
	}

	ctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	return ctx.Run()
}

// session is everything a command needs once flags and config are merged.
type session struct {
	cfg    *config.Config
	logger *log.Logger
	seg    *sim.Segment
	access pci.ConfigAccess
}

// open applies the common flags, then set, over the loaded config.
func (c *Common) open(stderr io.Writer, set func(cfg *config.Config)) (*session, error) {
	cfg, err := config.NewLoader(c.Config).Load()
	if err != nil {
		return nil, err
	}

	if c.LogLevel != "" {
		cfg.LogLevel = c.LogLevel
	}

	if c.NoColor {
		cfg.NoColor = true
	}

	set(cfg)

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	lopts := logging.DefaultOptions()
	lopts.Level = cfg.LogLevel
	lopts.Output = stderr
	lopts.NoColor = cfg.NoColor

	logger, err := logging.New(lopts)
	if err != nil {
		return nil, err
	}

	seg, err := cfg.Segment()
	if err != nil {
		return nil, err
	}

	access, err := attach(seg, c.Access)
	if err != nil {
		return nil, err
	}

	logger.Debug("segment ready", "functions", len(cfg.Topology), "access", c.Access)

	return &session{cfg: cfg, logger: logger, seg: seg, access: access}, nil
}

// attach puts seg behind the requested access mechanism: the CF8/CFC
// ports of a host bridge on an I/O bus, or a memory-mapped ECAM window.
func attach(seg *sim.Segment, mechanism string) (pci.ConfigAccess, error) {
	switch mechanism {
	case "ecam":
		return pci.NewECAM(seg.ECAMWindow()), nil
	case "mechanism1", "":
		bus := iodev.NewBus()

		for _, d := range sim.NewHostBridge(seg).Devices() {
			if err := bus.Register(d); err != nil {
				return nil, err
			}
		}

		return pci.NewMechanism1(bus), nil
	}

	return nil, fmt.Errorf("unknown access mechanism %q", mechanism)
}

func (s *EnumerateCMD) Run() error {
	return s.run(os.Stdout, os.Stderr)
}

func (s *EnumerateCMD) run(stdout, stderr io.Writer) error {
	sess, err := s.open(stderr, func(cfg *config.Config) {
		if s.Mode != "" {
			cfg.Mode = s.Mode
		}

		if s.LegacyIO != "" {
			cfg.LegacyIO = s.LegacyIO
		}

		if s.MaxResources != 0 {
			cfg.MaxResources = s.MaxResources
		}
	})
	if err != nil {
		return err
	}

	root, err := sess.cfg.RootBridge()
	if err != nil {
		return err
	}

	alloc, err := sess.cfg.Allocator()
	if err != nil {
		return err
	}

	opts, err := sess.cfg.EnumeratorOptions(sess.logger)
	if err != nil {
		return err
	}

	res, err := pcibus.New(sess.access, opts).Enumerate(root, alloc)
	if res == nil {
		return err
	}

	if rerr := report.Render(stdout, res, sess.cfg.NoColor); rerr != nil {
		return rerr
	}

	return err
}

func (d *ProbeCMD) Run() error {
	return d.run(os.Stdout, os.Stderr)
}

func (d *ProbeCMD) run(stdout, stderr io.Writer) error {
	sess, err := d.open(stderr, func(cfg *config.Config) {
		if d.Mode != "" {
			cfg.Mode = d.Mode
		}
	})
	if err != nil {
		return err
	}

	root, err := sess.cfg.RootBridge()
	if err != nil {
		return err
	}

	opts, err := sess.cfg.EnumeratorOptions(sess.logger)
	if err != nil {
		return err
	}

	e := pcibus.New(sess.access, opts)

	if opts.Mode == pcibus.ModeFull {
		if err := e.AssignBusNumbers(root); err != nil {
			return err
		}
	}

	if err := e.CollectDevices(root, root.SecondaryBus); err != nil {
		return err
	}

	return report.Tree(stdout, root, sess.cfg.NoColor)
}
