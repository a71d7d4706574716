package diagfmt

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"abicheck/internal/diag"
)

type palette struct {
	err, warn, info, note, loc, code *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		err:  color.New(color.FgRed, color.Bold),
		warn: color.New(color.FgYellow, color.Bold),
		info: color.New(color.FgCyan),
		note: color.New(color.FgBlue),
		loc:  color.New(color.Bold),
		code: color.New(color.Faint),
	}
	for _, c := range []*color.Color{p.err, p.warn, p.info, p.note, p.loc, p.code} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func (p palette) severity(s diag.Severity) *color.Color {
	switch s {
	case diag.SevError:
		return p.err
	case diag.SevWarning:
		return p.warn
	default:
		return p.info
	}
}

// Pretty форматирует диагностики в человекочитаемый вид.
// Идёт по bag.Items() (ожидается bag.Sort() заранее).
// Для каждого diag печатает:
// <location>: <SEV> <CODE>: <Message>
// затем Notes с отступом.
func Pretty(w io.Writer, bag *diag.Bag, opts PrettyOpts) error {
	if bag == nil {
		return nil
	}
	p := newPalette(opts.Color)
	for _, d := range bag.Items() {
		var b strings.Builder
		if loc := location(d.Primary, opts.PathMode, opts.BaseDir); loc != "" {
			b.WriteString(p.loc.Sprint(loc))
			b.WriteString(": ")
		}
		b.WriteString(p.severity(d.Severity).Sprint(d.Severity.String()))
		b.WriteByte(' ')
		b.WriteString(p.code.Sprint(d.Code.ID()))
		b.WriteString(": ")
		b.WriteString(clip(d.Message, opts.Width))
		b.WriteByte('\n')
		if opts.ShowNotes || d.Code == diag.ObsTimings {
			for _, n := range d.Notes {
				b.WriteString("  ")
				b.WriteString(p.note.Sprint("note"))
				if loc := location(n.Loc, opts.PathMode, opts.BaseDir); loc != "" {
					b.WriteString(" ")
					b.WriteString(loc)
				}
				b.WriteString(": ")
				b.WriteString(clip(n.Msg, opts.Width))
				b.WriteByte('\n')
			}
		}
		if _, err := io.WriteString(w, b.String()); err != nil {
			return err
		}
	}
	if n := bag.Dropped(); n > 0 {
		if _, err := fmt.Fprintf(w, "... %d more diagnostics dropped\n", n); err != nil {
			return err
		}
	}
	return nil
}

func location(l diag.Location, mode PathMode, base string) string {
	switch {
	case l.File != "" && l.Line > 0:
		return formatPath(l.File, mode, base) + ":" + strconv.FormatUint(uint64(l.Line), 10)
	case l.File != "":
		return formatPath(l.File, mode, base)
	default:
		return l.Entity
	}
}

func clip(msg string, width uint8) string {
	msg = strings.Join(strings.Fields(msg), " ")
	if width == 0 || runewidth.StringWidth(msg) <= int(width) {
		return msg
	}
	return runewidth.Truncate(msg, int(width), "…")
}
