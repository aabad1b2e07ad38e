package flag

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alecthomas/kong"
)

func parse(t *testing.T, args ...string) (*CLI, *kong.Context, error) {
	t.Helper()

	c := &CLI{}

	parser, err := newParser(c, kong.Exit(func(int) { t.Fatal("parser exited") }))
	if err != nil {
		t.Fatal(err)
	}

	ctx, err := parser.Parse(args)

	return c, ctx, err
}

func TestParseEnumerate(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "run.yaml")

	c, ctx, err := parse(t,
		"enumerate",
		"-c", path,
		"-l", "debug",
		"--no-color",
		"-a", "ecam",
		"-m", "rescan",
		"--legacy-io", "isa",
		"--max-resources", "32",
	)
	if err != nil {
		t.Fatal(err)
	}

	if ctx.Command() != "enumerate" {
		t.Errorf("command: %q", ctx.Command())
	}

	e := c.Enumerate
	if e.Config != path {
		t.Errorf("config path: %q", e.Config)
	}

	if e.LogLevel != "debug" || !e.NoColor || e.Access != "ecam" {
		t.Errorf("common flags: %+v", e.Common)
	}

	if e.Mode != "rescan" || e.LegacyIO != "isa" || e.MaxResources != 32 {
		t.Errorf("enumerate flags: %+v", e)
	}
}

func TestParseProbeDefaults(t *testing.T) {
	t.Parallel()

	c, ctx, err := parse(t, "probe")
	if err != nil {
		t.Fatal(err)
	}

	if ctx.Command() != "probe" {
		t.Errorf("command: %q", ctx.Command())
	}

	if c.Probe.Access != "mechanism1" {
		t.Errorf("default access: %q", c.Probe.Access)
	}
}

func TestParseRejectsUnknownAccess(t *testing.T) {
	t.Parallel()

	if _, _, err := parse(t, "probe", "-a", "pio"); err == nil {
		t.Fatal("pio accepted as an access mechanism")
	}
}

func writeTopology(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "run.yaml")
	body := `
log_level: error
topology:
  - {address: "00:00.0", vendor: 0x8086, device: 0x1237, class: 6}
  - {address: "00:02.0", header: bridge, vendor: 0x1b36, device: 0x0001, class: 6, subclass: 4, io_window: true}
  - address: "01:00.0"
    vendor: 0x8086
    device: 0x100e
    class: 2
    bars:
      - {kind: mem32, size: 128K}
      - {kind: io16, size: 0x40}
`

	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	return path
}

func TestEnumerateRun(t *testing.T) {
	t.Parallel()

	for _, access := range []string{"mechanism1", "ecam"} {
		var stdout, stderr bytes.Buffer

		cmd := &EnumerateCMD{Common: Common{Config: writeTopology(t), NoColor: true, Access: access}}
		if err := cmd.run(&stdout, &stderr); err != nil {
			t.Fatalf("%s: %v", access, err)
		}

		out := stdout.String()
		for _, want := range []string{
			"00:02.0 [1b36:0001] ppb bus 01-01",
			"01:00.0 [8086:100e] device\n",
			"  window mem32  0x80000000-0x800fffff",
		} {
			if !strings.Contains(out, want) {
				t.Errorf("%s: %q missing from\n%s", access, want, out)
			}
		}
	}
}

func TestProbeRun(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer

	cmd := &ProbeCMD{Common: Common{Config: writeTopology(t), NoColor: true}}
	if err := cmd.run(&stdout, &stderr); err != nil {
		t.Fatal(err)
	}

	want := "root bridge (bus 00)\n" +
		"├── 00:00.0 [8086:1237] device\n" +
		"└── 00:02.0 [1b36:0001] ppb bus 01-01\n" +
		"    └── 01:00.0 [8086:100e] device\n"

	if got := stdout.String(); got != want {
		t.Errorf("probe output:\n%s\nwant:\n%s", got, want)
	}
}

func TestRunRejectsBadConfig(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer

	cmd := &EnumerateCMD{Common: Common{Config: writeTopology(t), LogLevel: "chatty"}}
	if err := cmd.run(&stdout, &stderr); err == nil {
		t.Fatal("bad log level accepted")
	}
}
