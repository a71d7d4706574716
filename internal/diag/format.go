package diag

import (
	"path/filepath"
	"strings"
)

// FormatShort renders diagnostics one per line:
//
//	warning BLD1001 include/foo.h:12 unsupported type kind "vector"
//
// Notes follow their diagnostic with the "note" label when includeNotes is set.
// The input order is kept; call Bag.Sort first for stable output.
func FormatShort(diags []Diagnostic, includeNotes bool) string {
	if len(diags) == 0 {
		return ""
	}
	var b strings.Builder
	for i, d := range diags {
		if i > 0 {
			b.WriteByte('\n')
		}
		writeLine(&b, d.Severity.label(), d.Code, d.Primary, d.Message)
		if !includeNotes {
			continue
		}
		for _, n := range d.Notes {
			b.WriteByte('\n')
			writeLine(&b, "note", d.Code, n.Loc, n.Msg)
		}
	}
	return b.String()
}

func writeLine(b *strings.Builder, label string, code Code, loc Location, msg string) {
	b.WriteString(label)
	b.WriteByte(' ')
	b.WriteString(code.ID())
	if !loc.IsZero() {
		b.WriteByte(' ')
		loc.File = normalizePath(loc.File)
		b.WriteString(loc.String())
	}
	b.WriteByte(' ')
	b.WriteString(sanitizeMessage(msg))
}

func normalizePath(path string) string {
	if path == "" {
		return ""
	}
	p := filepath.ToSlash(path)
	for strings.HasPrefix(p, "./") {
		p = strings.TrimPrefix(p, "./")
	}
	return p
}

func sanitizeMessage(msg string) string {
	msg = strings.ReplaceAll(msg, "\r\n", "\n")
	msg = strings.ReplaceAll(msg, "\r", "\n")
	msg = strings.ReplaceAll(msg, "\n", " ")
	return strings.TrimSpace(msg)
}
