// Package flag is the command line of gopcibus.
package flag

import (
	"github.com/alecthomas/kong"
)

// CLI is the kong grammar.
type CLI struct {
	Enumerate EnumerateCMD `cmd:"" default:"withargs" help:"Enumerate the emulated segment, allocate and program resources, print the tree."`
	Probe     ProbeCMD     `cmd:"" help:"Walk the emulated segment and list the functions found, without touching resources."`
}

// Common are the flags every command takes. Unset flags fall back to
// the config file, then the GOPCIBUS_ environment, then the defaults.
type Common struct {
	Config   string `short:"c" type:"path" help:"YAML file describing the run and the emulated topology."`
	LogLevel string `short:"l" help:"Log level: debug, info, warn or error."`
	NoColor  bool   `help:"Disable colors in the log and the report."`
	Access   string `short:"a" enum:"mechanism1,ecam" default:"mechanism1" help:"Configuration access mechanism: ${enum}."`
}

type EnumerateCMD struct {
	Common `embed:""`

	Mode         string `short:"m" help:"full (assign bus numbers, quiesce devices) or rescan."`
	LegacyIO     string `help:"Legacy I/O ranges to keep device apertures off: none, isa or vga."`
	MaxResources int    `help:"Bound on resource nodes per enumeration, 0 for no bound."`
}

type ProbeCMD struct {
	Common `embed:""`

	Mode string `short:"m" help:"full assigns bus numbers before walking, rescan trusts the bridges."`
}

func newParser(c *CLI, options ...kong.Option) (*kong.Kong, error) {
	programName := "gopcibus"
	programDesc := "gopcibus enumerates an emulated PCI segment and assigns bus numbers, memory and I/O resources"

	options = append([]kong.Option{
		kong.Name(programName),
		kong.Description(programDesc),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}),
	}, options...)

	return kong.New(c, options...)
}
