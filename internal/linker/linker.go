// Package linker merges per-unit modules into one library module and
// filters it down to what the library exports.
package linker

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"abicheck/internal/abi"
	"abicheck/internal/diag"
	"abicheck/internal/diff"
	"abicheck/internal/symbols"
)

// Options configure a Linker.
type Options struct {
	LibName string
	Arch    string
	// ExportedDirs limits declarations to headers under these directories.
	// Empty keeps everything.
	ExportedDirs []string
	// Symbols is the exported symbol set; nil keeps every declaration.
	Symbols        *symbols.Set
	MaxDiagnostics int
}

// Linker accumulates units. It is not safe for concurrent use.
type Linker struct {
	opts     Options
	mod      *abi.Module
	bag      *diag.Bag
	reporter diag.Reporter
	dirs     []string

	// abi.StructuralKey -> self_type in mod
	structural map[string]string
}

// New returns an empty Linker.
func New(opts Options) *Linker {
	bag := diag.NewBag(opts.MaxDiagnostics)
	l := &Linker{
		opts:       opts,
		mod:        abi.NewModule(opts.LibName, opts.Arch),
		bag:        bag,
		reporter:   diag.NewDedupReporter(diag.BagReporter{Bag: bag}),
		structural: make(map[string]string, 256),
	}
	for _, d := range opts.ExportedDirs {
		if d = strings.TrimSpace(d); d != "" {
			l.dirs = append(l.dirs, filepath.Clean(d))
		}
	}
	return l
}

// Module returns the merged, unfiltered module.
func (l *Linker) Module() *abi.Module { return l.mod }

// Diagnostics returns what the linker reported so far.
func (l *Linker) Diagnostics() *diag.Bag { return l.bag }

// merge is the per-unit state of Add: unit self_type -> library self_type.
type merge struct {
	l    *Linker
	unit *abi.Module
	ids  map[string]string
	err  error
}

// Add merges one unit module. Records and enums reuse an existing
// definition under the same linker_set_key when the two are identical;
// otherwise the definition is added beside it and the key's ODR list
// grows. Derived types collapse by shape, builtins keep their ids.
func (l *Linker) Add(unit *abi.Module) error {
	if unit == nil {
		return nil
	}
	m := &merge{l: l, unit: unit, ids: make(map[string]string, unit.Stats().Types)}
	for _, t := range unit.Types() {
		if _, err := m.typeID(t.SelfType); err != nil {
			return err
		}
	}

	for _, f := range unit.Functions() {
		if prev, ok := l.mod.Function(f.LinkerSetKey); ok {
			l.checkDuplicate(unit, prev, f)
			continue
		}
		c := f.Clone()
		c.Remap(m.remap)
		if m.err != nil {
			return m.err
		}
		if err := l.mod.AddFunction(c); err != nil {
			return err
		}
	}
	for _, v := range unit.GlobalVars() {
		if _, ok := l.mod.GlobalVar(v.LinkerSetKey); ok {
			continue
		}
		c := *v
		if c.Type, m.err = m.typeID(v.Type); m.err != nil {
			return m.err
		}
		if err := l.mod.AddGlobalVar(&c); err != nil {
			return err
		}
	}
	for _, s := range append(unit.ElfFunctions(), unit.ElfObjects()...) {
		if l.mod.HasElfSymbol(s.Name) {
			continue
		}
		c := *s
		if err := l.mod.AddElfSymbol(&c); err != nil {
			return err
		}
	}
	return nil
}

func (l *Linker) checkDuplicate(unit *abi.Module, prev, f *abi.Function) {
	// a parameter record that changed layout shows up only as a nested record
	h := diff.NewHelper(l.mod, unit, nil)
	rec := h.DiffFunction(prev, f)
	if len(rec.Details) == 0 && len(h.Nested()) == 0 {
		return
	}
	diag.ReportWarning(l.reporter, diag.LinkDuplicateDecl, diag.Location{File: f.SourceFile, Entity: f.LinkerSetKey},
		fmt.Sprintf("%s is declared differently in %s; keeping the first declaration", f.Name, unit.LibName)).Emit()
}

func (m *merge) remap(id string) string {
	if id == "" || m.err != nil {
		return id
	}
	g, err := m.typeID(id)
	if err != nil {
		m.err = err
		return id
	}
	return g
}

func (m *merge) typeID(id string) (string, error) {
	if g, ok := m.ids[id]; ok {
		return g, nil
	}
	t, ok := m.unit.LookupType(id)
	if !ok {
		return "", fmt.Errorf("unit %s: type %q: %w", m.unit.LibName, id, abi.ErrDanglingReference)
	}
	switch t.Kind {
	case abi.KindBuiltin:
		m.ids[id] = id
		if _, ok := m.l.mod.LookupType(id); !ok {
			if err := m.l.mod.AddType(t.Clone()); err != nil {
				return "", err
			}
		}
		return id, nil
	case abi.KindRecord, abi.KindEnum:
		return m.userType(t)
	default:
		return m.derived(t)
	}
}

func (m *merge) userType(t *abi.Type) (string, error) {
	lib := m.l.mod
	candidates := lib.TypesByKey(t.LinkerSetKey)
	for _, cand := range candidates {
		ct, ok := lib.LookupType(cand)
		if !ok || ct.Kind != t.Kind {
			continue
		}
		if ct.Kind == abi.KindRecord && ct.Record != nil && t.Record != nil && ct.Record.Opaque && !t.Record.Opaque {
			// a definition completes the declaration in place
			m.ids[t.SelfType] = cand
			c := t.Clone()
			c.SelfType, c.ReferencedType = cand, cand
			c.Remap(m.remap)
			if m.err != nil {
				return "", m.err
			}
			*ct = *c
			return cand, nil
		}
		if diff.NewHelper(lib, m.unit, nil).Equivalent(cand, t.SelfType) {
			m.ids[t.SelfType] = cand
			return cand, nil
		}
	}

	nid := lib.NewTypeID()
	m.ids[t.SelfType] = nid
	c := t.Clone()
	c.SelfType, c.ReferencedType = nid, nid
	c.Remap(m.remap)
	if m.err != nil {
		return "", m.err
	}
	if err := lib.AddType(c); err != nil {
		return "", err
	}
	if len(candidates) > 0 {
		diag.ReportInfo(m.l.reporter, diag.LinkODRViolation, diag.Location{File: t.SourceFile, Entity: t.LinkerSetKey},
			fmt.Sprintf("%s has %d differing definitions", t.Name, len(lib.TypesByKey(t.LinkerSetKey)))).Emit()
	}
	return nid, nil
}

func (m *merge) derived(t *abi.Type) (string, error) {
	c := t.Clone()
	c.Remap(m.remap)
	if m.err != nil {
		return "", m.err
	}
	// the same shape may have been merged while resolving the references
	if g, ok := m.ids[t.SelfType]; ok {
		return g, nil
	}
	key := abi.StructuralKey(c)
	if key != "" {
		if g, ok := m.l.structural[key]; ok {
			m.ids[t.SelfType] = g
			return g, nil
		}
	}
	c.SelfType = m.l.mod.NewTypeID()
	if err := m.l.mod.AddType(c); err != nil {
		return "", err
	}
	if key != "" {
		m.l.structural[key] = c.SelfType
	}
	m.ids[t.SelfType] = c.SelfType
	return c.SelfType, nil
}

// Exported reports whether a declaration from file lies under the
// exported directories. Entities without a source file always pass.
func (l *Linker) Exported(file string) bool {
	if len(l.dirs) == 0 || file == "" {
		return true
	}
	file = filepath.Clean(file)
	for _, d := range l.dirs {
		if file == d || strings.HasPrefix(file, d+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (l *Linker) symbolExported(key string) bool {
	return l.opts.Symbols == nil || l.opts.Symbols.Has(key)
}

// ErrInvalidModule is returned by Finish when the linked module does not
// validate.
var ErrInvalidModule = errors.New("linked module is invalid")

// Finish returns the library module: declarations that are exported by the
// symbol set and declared under the exported directories, the records and
// enums of the exported headers, and every type they reach. The symbol set,
// when given, becomes the module's ELF tables.
func (l *Linker) Finish() (*abi.Module, *diag.Bag, error) {
	out := abi.NewModule(l.opts.LibName, l.opts.Arch)
	var roots []string

	for _, f := range l.mod.Functions() {
		if !l.Exported(f.SourceFile) || !l.symbolExported(f.LinkerSetKey) {
			continue
		}
		if err := out.AddFunction(f.Clone()); err != nil {
			return nil, l.bag, err
		}
		roots = append(roots, f.References()...)
	}
	for _, v := range l.mod.GlobalVars() {
		if !l.Exported(v.SourceFile) || !l.symbolExported(v.LinkerSetKey) {
			continue
		}
		c := *v
		if err := out.AddGlobalVar(&c); err != nil {
			return nil, l.bag, err
		}
		roots = append(roots, v.Type)
	}
	for _, t := range l.mod.Types() {
		if t.Kind.IsUserDefined() && l.Exported(t.SourceFile) && (len(l.dirs) > 0 || l.opts.Symbols == nil) {
			roots = append(roots, t.SelfType)
		}
	}

	seen := make(map[string]struct{}, len(roots))
	for len(roots) > 0 {
		id := roots[len(roots)-1]
		roots = roots[:len(roots)-1]
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		t, ok := l.mod.LookupType(id)
		if !ok {
			continue // Validate reports it
		}
		if err := out.AddType(t.Clone()); err != nil {
			return nil, l.bag, err
		}
		roots = append(roots, t.References()...)
	}

	if l.opts.Symbols != nil {
		for _, s := range l.opts.Symbols.ElfSymbols() {
			if err := out.AddElfSymbol(s); err != nil {
				return nil, l.bag, err
			}
			if !l.mod.HasKey(s.Name) {
				diag.ReportInfo(l.reporter, diag.LinkSymbolNoDecl, diag.Location{Entity: s.Name},
					fmt.Sprintf("exported symbol %s has no declaration in the headers", s.Name)).Emit()
			}
		}
	} else {
		for _, s := range append(l.mod.ElfFunctions(), l.mod.ElfObjects()...) {
			c := *s
			if err := out.AddElfSymbol(&c); err != nil {
				return nil, l.bag, err
			}
		}
	}

	if err := out.Validate(); err != nil {
		diag.ReportError(l.reporter, diag.LinkValidateFailure, diag.Location{}, err.Error()).Emit()
		return nil, l.bag, fmt.Errorf("%w: %w", ErrInvalidModule, err)
	}
	return out, l.bag, nil
}
