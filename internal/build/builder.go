// Package build converts a frontend declaration unit into an abi.Module.
package build

import (
	"fmt"

	"abicheck/internal/abi"
	"abicheck/internal/decl"
	"abicheck/internal/diag"
)

// Options configure a Builder.
type Options struct {
	LibName        string
	Arch           string
	DataModel      abi.DataModel
	MaxDiagnostics int
}

func (o Options) pointerSize() uint64 {
	if o.DataModel == abi.ILP32 {
		return 4
	}
	return 8
}

// Builder owns one Module for the lifetime of one unit. It is not safe for
// concurrent use; build units in parallel with Units.
type Builder struct {
	opts     Options
	unit     *decl.Unit
	index    map[int64]*decl.Type
	mod      *abi.Module
	bag      *diag.Bag
	reporter diag.Reporter

	// frontend id -> self_type
	cache map[int64]string
	// abi.StructuralKey -> self_type for derived types
	structural map[string]string
	// linker_set_key -> self_type for records and enums emitted by this unit
	userKeys map[string]string
	// linker_set_key -> frontend id of the complete definition
	definitions map[string]int64
	// frontend ids that could not be represented
	failed map[int64]struct{}
	// self_type -> display name, filled when the id is allocated so that
	// types under construction can already be named
	names map[string]string
	sizes map[string]uint64
	// non-record frontend ids being converted since the innermost record
	resolving map[int64]struct{}
}

// New prepares a Builder for unit.
func New(unit *decl.Unit, opts Options) *Builder {
	if opts.DataModel == 0 {
		opts.DataModel = abi.LP64
	}
	bag := diag.NewBag(opts.MaxDiagnostics)
	b := &Builder{
		opts:        opts,
		unit:        unit,
		index:       unit.Index(),
		mod:         abi.NewModule(opts.LibName, opts.Arch),
		bag:         bag,
		reporter:    diag.NewDedupReporter(diag.BagReporter{Bag: bag}),
		cache:       make(map[int64]string, len(unit.Types)),
		structural:  make(map[string]string, len(unit.Types)/2),
		userKeys:    make(map[string]string),
		definitions: make(map[string]int64),
		failed:      make(map[int64]struct{}),
		names:       make(map[string]string, len(unit.Types)),
		sizes:       make(map[string]uint64, len(unit.Types)),
		resolving:   make(map[int64]struct{}),
	}
	for i := range unit.Types {
		t := &unit.Types[i]
		if t.Kind != decl.TypeRecord || !t.Complete {
			continue
		}
		key := recordKey(t)
		if _, ok := b.definitions[key]; !ok {
			b.definitions[key] = t.ID
		}
	}
	return b
}

// BuildUnit runs every declaration of unit through a fresh Builder.
func BuildUnit(unit *decl.Unit, opts Options) (*abi.Module, *diag.Bag) {
	b := New(unit, opts)
	for _, d := range unit.Decls {
		b.AddDecl(d)
	}
	return b.Finish()
}

// Finish returns the built Module and the diagnostics gathered so far.
// The Builder must not be used afterwards.
func (b *Builder) Finish() (*abi.Module, *diag.Bag) {
	b.bag.Sort()
	return b.mod, b.bag
}

// AddDecl converts one declaration. It returns the emitted (or reused)
// entity, or nil when the declaration was skipped; skips are recorded as
// warnings and never stop the build.
func (b *Builder) AddDecl(d decl.Decl) abi.Linkable {
	switch d.Kind {
	case decl.DeclFunction, decl.DeclMethod:
		if f := b.addFunction(d); f != nil {
			return f
		}
	case decl.DeclVar:
		if v := b.addVar(d); v != nil {
			return v
		}
	case decl.DeclType:
		id, ok := b.typeID(d.Type)
		if !ok {
			b.skipDecl(d, "type is not representable")
			return nil
		}
		t, _ := b.mod.LookupType(id)
		return t
	default:
		diag.ReportWarning(b.reporter, diag.BuildUnsupportedDecl, declLocation(d),
			fmt.Sprintf("unsupported declaration kind %q", d.Kind)).Emit()
	}
	return nil
}

func (b *Builder) skipDecl(d decl.Decl, why string) {
	diag.ReportWarning(b.reporter, diag.BuildUnsupportedDecl, declLocation(d),
		fmt.Sprintf("skipping %s %s: %s", d.Kind, declName(d), why)).Emit()
}

func (b *Builder) warnType(code diag.Code, t *decl.Type, msg string) {
	diag.ReportWarning(b.reporter, code, typeLocation(t), msg).Emit()
}

func declName(d decl.Decl) string {
	if d.Name != "" {
		return d.Name
	}
	return d.Mangled
}

func declLocation(d decl.Decl) diag.Location {
	return diag.Location{File: d.File, Line: d.Line, Entity: declName(d)}
}

func typeLocation(t *decl.Type) diag.Location {
	entity := t.Name
	if entity == "" {
		entity = fmt.Sprintf("#%d", t.ID)
	}
	return diag.Location{File: t.File, Line: t.Line, Entity: entity}
}
