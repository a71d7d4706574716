// Package report renders diff reports for people: a summary line followed
// by one section per entity family.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"abicheck/internal/abi"
	"abicheck/internal/diff"
)

// Options controls Text.
type Options struct {
	Color bool
	// Details prints one line per changed attribute under each record.
	Details bool
	// MinLevel hides records below it; LevelUnset shows everything.
	MinLevel diff.Level
	// Width clips old/new values; 0 keeps them whole.
	Width int
}

var sections = []struct {
	entity abi.EntityKind
	title  string
}{
	{abi.EntityFunction, "Functions"},
	{abi.EntityGlobalVar, "Global variables"},
	{abi.EntityType, "Types"},
	{abi.EntityElfFunction, "ELF functions"},
	{abi.EntityElfObject, "ELF objects"},
}

type styles struct {
	title, bad, ext, adv, dim *color.Color
}

func newStyles(enabled bool) styles {
	s := styles{
		title: color.New(color.Bold, color.Underline),
		bad:   color.New(color.FgRed, color.Bold),
		ext:   color.New(color.FgGreen),
		adv:   color.New(color.FgYellow),
		dim:   color.New(color.Faint),
	}
	for _, c := range []*color.Color{s.title, s.bad, s.ext, s.adv, s.dim} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return s
}

func (s styles) level(l diff.Level) *color.Color {
	switch l {
	case diff.LevelIncompatible:
		return s.bad
	case diff.LevelExtension:
		return s.ext
	case diff.LevelAdvisory:
		return s.adv
	default:
		return s.dim
	}
}

// Text writes rep in human-readable form.
func Text(w io.Writer, rep *diff.Report, opts Options) error {
	st := newStyles(opts.Color)
	var b strings.Builder

	fmt.Fprintf(&b, "%s (%s): %s\n", rep.LibName, rep.Arch, st.level(statusLevel(rep.Status)).Sprint(rep.Status.String()))

	shown := 0
	for _, sec := range sections {
		recs := visible(rep.ByEntity(sec.entity), opts.MinLevel)
		if len(recs) == 0 {
			continue
		}
		shown += len(recs)
		b.WriteByte('\n')
		b.WriteString(st.title.Sprint(sec.title))
		fmt.Fprintf(&b, " (%d)\n", len(recs))

		width := 0
		for i := range recs {
			width = max(width, runewidth.StringWidth(recs[i].Kind.String()))
		}
		for i := range recs {
			rec := &recs[i]
			kind := runewidth.FillRight(rec.Kind.String(), width)
			fmt.Fprintf(&b, "  %s  %s", st.level(rec.Level).Sprint(kind), rec.Path())
			if rec.Name != rec.LinkerSetKey && rec.LinkerSetKey != "" {
				b.WriteString(st.dim.Sprint(" [" + rec.LinkerSetKey + "]"))
			}
			if rec.Unreferenced {
				b.WriteString(st.dim.Sprint(" (unreferenced)"))
			}
			b.WriteByte('\n')
			if opts.Details {
				writeDetails(&b, st, rec.Details, opts.Width)
			}
		}
	}
	if shown == 0 {
		b.WriteString("\nno ABI changes\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func writeDetails(b *strings.Builder, st styles, details []diff.Detail, width int) {
	for _, d := range details {
		b.WriteString("      ")
		b.WriteString(st.level(d.Level).Sprint(string(d.Change)))
		if d.Path != "" {
			b.WriteString(" " + d.Path)
		}
		switch {
		case d.Old != "" && d.New != "":
			fmt.Fprintf(b, ": %s -> %s", clip(d.Old, width), clip(d.New, width))
		case d.Old != "":
			fmt.Fprintf(b, ": %s", clip(d.Old, width))
		case d.New != "":
			fmt.Fprintf(b, ": %s", clip(d.New, width))
		}
		b.WriteByte('\n')
	}
}

func visible(recs []diff.Record, floor diff.Level) []diff.Record {
	if floor == diff.LevelUnset {
		return recs
	}
	out := recs[:0:0]
	for _, r := range recs {
		if r.Level >= floor {
			out = append(out, r)
		}
	}
	return out
}

func statusLevel(s diff.Status) diff.Level {
	switch {
	case s.Has(diff.StatusIncompatible), s.Has(diff.StatusElfIncompatible):
		return diff.LevelIncompatible
	case s.Has(diff.StatusExtension):
		return diff.LevelExtension
	case s.Has(diff.StatusUnreferencedChanges):
		return diff.LevelAdvisory
	}
	return diff.LevelIgnore
}

func clip(s string, width int) string {
	if width <= 0 || runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "...")
}
