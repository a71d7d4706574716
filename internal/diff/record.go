package diff

import (
	"strings"

	"abicheck/internal/abi"
	"abicheck/internal/diag"
)

// Kind is the overall verdict on one element.
type Kind uint8

const (
	KindUnknown Kind = iota
	Added
	Removed
	Extended
	Incompatible
)

func (k Kind) String() string {
	switch k {
	case Added:
		return "added"
	case Removed:
		return "removed"
	case Extended:
		return "extended"
	case Incompatible:
		return "incompatible"
	default:
		return "unknown"
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, bool) {
	for k := Added; k <= Incompatible; k++ {
		if k.String() == s {
			return k, true
		}
	}
	return KindUnknown, false
}

// Detail is one attribute that differs between the old and new element.
type Detail struct {
	// Path locates the attribute inside the element, e.g. "fields[1].type".
	Path   string
	Change Change
	Old    string
	New    string
	Level  Level
}

// Record is the diff of one linkable element.
type Record struct {
	Entity abi.EntityKind
	// TypeKind tells records from enums when Entity is EntityType.
	TypeKind     abi.Kind
	Name         string
	LinkerSetKey string
	Kind         Kind
	Level        Level
	// Unreferenced marks records and enums that no exported function or
	// variable reaches.
	Unreferenced bool
	// TypeStack names the elements through which a nested type was reached,
	// outermost first.
	TypeStack []string
	Details   []Detail
}

// Incompatible reports whether the record breaks the ABI after classification.
func (r *Record) Incompatible() bool { return r.Level == LevelIncompatible }

// Path joins the type stack with the element name.
func (r *Record) Path() string {
	if len(r.TypeStack) == 0 {
		return r.Name
	}
	return strings.Join(r.TypeStack, " -> ") + " -> " + r.Name
}

// Status summarizes a report.
type Status uint8

// StatusCompatible is the empty mask.
const StatusCompatible Status = 0

const (
	StatusUnreferencedChanges Status = 1 << iota
	StatusExtension
	StatusIncompatible
	StatusElfIncompatible
)

func (s Status) Has(flag Status) bool { return s&flag != 0 }

func (s Status) String() string {
	if s == StatusCompatible {
		return "compatible"
	}
	var parts []string
	if s.Has(StatusIncompatible) {
		parts = append(parts, "incompatible")
	}
	if s.Has(StatusElfIncompatible) {
		parts = append(parts, "elf_incompatible")
	}
	if s.Has(StatusExtension) {
		parts = append(parts, "extension")
	}
	if s.Has(StatusUnreferencedChanges) {
		parts = append(parts, "unreferenced_changes")
	}
	return strings.Join(parts, "|")
}

// ParseStatus reads the String form back.
func ParseStatus(s string) (Status, bool) {
	if s == "" || s == "compatible" {
		return StatusCompatible, true
	}
	var st Status
	for _, part := range strings.Split(s, "|") {
		switch part {
		case "incompatible":
			st |= StatusIncompatible
		case "elf_incompatible":
			st |= StatusElfIncompatible
		case "extension":
			st |= StatusExtension
		case "unreferenced_changes":
			st |= StatusUnreferencedChanges
		default:
			return 0, false
		}
	}
	return st, true
}

// Report is the filtered result of diffing two modules.
type Report struct {
	LibName string
	Arch    string
	Status  Status
	// Records are ordered by entity kind, then by linker_set_key.
	Records     []Record
	Diagnostics *diag.Bag
}

// ByEntity returns the records of one entity kind.
func (r *Report) ByEntity(kind abi.EntityKind) []Record {
	var out []Record
	for i := range r.Records {
		if r.Records[i].Entity == kind {
			out = append(out, r.Records[i])
		}
	}
	return out
}

// HasIncompatible reports whether any record is incompatible.
func (r *Report) HasIncompatible() bool {
	for i := range r.Records {
		if r.Records[i].Incompatible() {
			return true
		}
	}
	return false
}

// Empty reports whether nothing survived the filter.
func (r *Report) Empty() bool { return len(r.Records) == 0 }

// ComputeStatus derives the bitmask from the records.
func ComputeStatus(records []Record) Status {
	var st Status
	for i := range records {
		rec := &records[i]
		elf := rec.Entity == abi.EntityElfFunction || rec.Entity == abi.EntityElfObject
		switch {
		case rec.Level == LevelIncompatible && elf:
			st |= StatusElfIncompatible
		case rec.Level == LevelIncompatible:
			st |= StatusIncompatible
		case rec.Level == LevelExtension:
			st |= StatusExtension
		}
		if rec.Unreferenced {
			st |= StatusUnreferencedChanges
		}
	}
	return st
}
