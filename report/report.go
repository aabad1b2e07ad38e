// Package report renders the outcome of an enumeration as a device tree
// with the BARs and bridge windows that were assigned.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/bobuhiro11/gopcibus/pcibus"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

var (
	colorDevice  = lipgloss.AdaptiveColor{Light: "#1F2937", Dark: "#F9FAFB"}
	colorBridge  = lipgloss.AdaptiveColor{Light: "#0EA5E9", Dark: "#38BDF8"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"}
	colorWarning = lipgloss.AdaptiveColor{Light: "#EAB308", Dark: "#FACC15"}
)

type styles struct {
	device, bridge, muted, warning, header lipgloss.Style
}

func newStyles(w io.Writer, noColor bool) styles {
	r := lipgloss.NewRenderer(w)

	if noColor {
		r.SetColorProfile(termenv.Ascii)
		plain := r.NewStyle()

		return styles{plain, plain, plain, plain, plain}
	}

	return styles{
		device:  r.NewStyle().Foreground(colorDevice),
		bridge:  r.NewStyle().Foreground(colorBridge).Bold(true),
		muted:   r.NewStyle().Foreground(colorMuted),
		warning: r.NewStyle().Foreground(colorWarning),
		header:  r.NewStyle().Bold(true).Underline(true),
	}
}

// Window is an address range granted to a bridge.
type Window struct {
	Type         pcibus.BarType
	Base, Length uint64
}

// Windows returns the granted bridge windows below res, keyed by bridge.
// Pools that were not allocated contribute nothing.
func Windows(res *pcibus.Result) map[*pcibus.Device][]Window {
	out := map[*pcibus.Device][]Window{}

	for _, pool := range res.Pools.All() {
		base, ok := res.Bases[pool.Type]
		if !ok {
			continue
		}

		collect(out, base, pool)
	}

	return out
}

func collect(out map[*pcibus.Device][]Window, base uint64, pool *pcibus.Resource) {
	for _, n := range pool.Children {
		if !n.IsWindow() || n.Length == 0 {
			continue
		}

		out[n.Dev] = append(out[n.Dev], Window{Type: n.Type, Base: base + n.Offset, Length: n.Length})
		collect(out, base+n.Offset, n)
	}
}

// Render writes the tree to w.
func Render(w io.Writer, res *pcibus.Result, noColor bool) error {
	s := newStyles(w, noColor)
	wins := Windows(res)

	var b strings.Builder

	b.WriteString(s.header.Render(res.Root.String()))
	b.WriteByte('\n')

	for _, pool := range res.Pools.All() {
		if !pool.Requested() {
			continue
		}

		line := fmt.Sprintf("  %-6s len %#x align %#x", pool.Type, pool.Length, pool.Alignment)
		if base, ok := res.Bases[pool.Type]; ok {
			line += fmt.Sprintf(" at %#x", base)
		} else {
			line += " " + s.warning.Render("[unassigned]")
		}

		b.WriteString(s.muted.Render(line))
		b.WriteByte('\n')
	}

	renderChildren(&b, s, wins, res.Root, "", true)

	_, err := io.WriteString(w, b.String())

	return err
}

// Tree renders only the device hierarchy below root, as found by a walk
// that assigned nothing.
func Tree(w io.Writer, root *pcibus.Device, noColor bool) error {
	s := newStyles(w, noColor)

	var b strings.Builder

	b.WriteString(s.header.Render(root.String()))
	b.WriteByte('\n')

	renderChildren(&b, s, nil, root, "", false)

	_, err := io.WriteString(w, b.String())

	return err
}

// renderChildren writes one line per device below dev. With detail the
// assignment state, windows and BARs follow each device.
func renderChildren(b *strings.Builder, s styles, wins map[*pcibus.Device][]Window, dev *pcibus.Device, indent string, detail bool) {
	for i, c := range dev.Children {
		branch, next := "├── ", "│   "
		if i == len(dev.Children)-1 {
			branch, next = "└── ", "    "
		}

		name := s.device.Render(c.String())
		if c.IsBridge() {
			name = s.bridge.Render(c.String())
		}

		b.WriteString(indent + branch + name)

		if c.IsBridge() {
			b.WriteString(s.muted.Render(fmt.Sprintf(" bus %02x-%02x", c.SecondaryBus, c.SubordinateBus)))
		}

		if detail && !c.Allocated && !c.IsBridge() {
			b.WriteString(" " + s.warning.Render("[unassigned]"))
		}

		b.WriteByte('\n')

		for _, win := range wins[c] {
			b.WriteString(indent + next + s.muted.Render(fmt.Sprintf("  window %-6s %#x-%#x", win.Type, win.Base, win.Base+win.Length-1)))
			b.WriteByte('\n')
		}

		for _, bar := range c.Bars {
			if !detail || !bar.Present() {
				continue
			}

			b.WriteString(indent + next + s.muted.Render("  "+bar.String()))
			b.WriteByte('\n')
		}

		renderChildren(b, s, wins, c, indent+next, detail)
	}
}
