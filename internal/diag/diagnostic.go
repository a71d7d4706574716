package diag

import "strconv"

// Location points at the origin of a finding: a header position when the
// frontend supplied one, otherwise the entity (mangled name or type id)
// the finding is about.
type Location struct {
	File   string
	Line   uint32
	Entity string
}

func (l Location) String() string {
	switch {
	case l.File != "" && l.Line > 0:
		return l.File + ":" + strconv.FormatUint(uint64(l.Line), 10)
	case l.File != "":
		return l.File
	default:
		return l.Entity
	}
}

// IsZero reports whether the location carries no information.
func (l Location) IsZero() bool {
	return l.File == "" && l.Line == 0 && l.Entity == ""
}

type Note struct {
	Loc Location
	Msg string
}

type Diagnostic struct {
	Severity Severity
	Code     Code
	Message  string
	Primary  Location
	Notes    []Note
}

func New(sev Severity, code Code, primary Location, msg string) Diagnostic {
	return Diagnostic{
		Severity: sev,
		Code:     code,
		Primary:  primary,
		Message:  msg,
	}
}

func NewError(code Code, primary Location, msg string) Diagnostic {
	return New(SevError, code, primary, msg)
}

func NewWarning(code Code, primary Location, msg string) Diagnostic {
	return New(SevWarning, code, primary, msg)
}

func (d Diagnostic) WithNote(loc Location, msg string) Diagnostic {
	d.Notes = append(d.Notes, Note{Loc: loc, Msg: msg})
	return d
}
