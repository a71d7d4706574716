package abi

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrDuplicateKey is returned when an entity with the same key is already present.
var ErrDuplicateKey = errors.New("duplicate key")

const typeIDPrefix = "type-"

// Module owns every entity of one ABI graph. Entities refer to each other
// by id only; the Module is the single arena that resolves them.
type Module struct {
	LibName string
	Arch    string

	types      map[string]*Type
	odr        map[string][]string
	functions  map[string]*Function
	globals    map[string]*GlobalVar
	elfFuncs   map[string]*ElfSymbol
	elfObjects map[string]*ElfSymbol

	nextID uint64
}

// NewModule returns an empty Module.
func NewModule(libName, arch string) *Module {
	return &Module{
		LibName:    libName,
		Arch:       arch,
		types:      make(map[string]*Type, 64),
		odr:        make(map[string][]string, 64),
		functions:  make(map[string]*Function, 32),
		globals:    make(map[string]*GlobalVar, 8),
		elfFuncs:   make(map[string]*ElfSymbol, 32),
		elfObjects: make(map[string]*ElfSymbol, 8),
	}
}

// NewTypeID allocates a fresh self_type id. The counter only grows.
func (m *Module) NewTypeID() string {
	m.nextID++
	return typeIDPrefix + strconv.FormatUint(m.nextID, 10)
}

// reserveID keeps the counter above ids inserted from outside (read-back).
func (m *Module) reserveID(id string) {
	rest, ok := strings.CutPrefix(id, typeIDPrefix)
	if !ok {
		return
	}
	n, err := strconv.ParseUint(rest, 10, 64)
	if err != nil {
		return
	}
	if n > m.nextID {
		m.nextID = n
	}
}

// AddLinkable inserts a header-derived entity.
func (m *Module) AddLinkable(l Linkable) error {
	switch v := l.(type) {
	case *Type:
		return m.AddType(v)
	case *Function:
		return m.AddFunction(v)
	case *GlobalVar:
		return m.AddGlobalVar(v)
	case *ElfSymbol:
		return m.AddElfSymbol(v)
	default:
		return fmt.Errorf("abi: unsupported linkable %T", l)
	}
}

// AddType inserts t under its self_type and appends it to the ODR list of
// its linker_set_key.
func (m *Module) AddType(t *Type) error {
	if t == nil || t.SelfType == "" {
		return fmt.Errorf("abi: type without self_type")
	}
	if t.Kind == KindInvalid {
		return fmt.Errorf("abi: type %s has no kind", t.SelfType)
	}
	if _, ok := m.types[t.SelfType]; ok {
		return fmt.Errorf("type %s: %w", t.SelfType, ErrDuplicateKey)
	}
	normalizeType(t)
	m.types[t.SelfType] = t
	m.odr[t.LinkerSetKey] = append(m.odr[t.LinkerSetKey], t.SelfType)
	m.reserveID(t.SelfType)
	return nil
}

// AddFunction inserts f under its mangled name.
func (m *Module) AddFunction(f *Function) error {
	if f == nil || f.LinkerSetKey == "" {
		return fmt.Errorf("abi: function without linker_set_key")
	}
	if _, ok := m.functions[f.LinkerSetKey]; ok {
		return fmt.Errorf("function %s: %w", f.LinkerSetKey, ErrDuplicateKey)
	}
	if f.Access == 0 {
		f.Access = AccessPublic
	}
	m.functions[f.LinkerSetKey] = f
	return nil
}

// AddGlobalVar inserts v under its mangled name.
func (m *Module) AddGlobalVar(v *GlobalVar) error {
	if v == nil || v.LinkerSetKey == "" {
		return fmt.Errorf("abi: global var without linker_set_key")
	}
	if _, ok := m.globals[v.LinkerSetKey]; ok {
		return fmt.Errorf("global var %s: %w", v.LinkerSetKey, ErrDuplicateKey)
	}
	if v.Access == 0 {
		v.Access = AccessPublic
	}
	m.globals[v.LinkerSetKey] = v
	return nil
}

// AddElfSymbol inserts a symbol-table entry into the function or object map.
func (m *Module) AddElfSymbol(s *ElfSymbol) error {
	if s == nil || s.Name == "" {
		return fmt.Errorf("abi: elf symbol without name")
	}
	if s.Kind == 0 {
		s.Kind = SymbolFunction
	}
	target := m.elfFuncs
	if s.Kind == SymbolObject {
		target = m.elfObjects
	}
	if _, ok := target[s.Name]; ok {
		return fmt.Errorf("elf symbol %s: %w", s.Name, ErrDuplicateKey)
	}
	if s.Binding == 0 {
		s.Binding = BindingGlobal
	}
	target[s.Name] = s
	return nil
}

// LookupType resolves a self_type id.
func (m *Module) LookupType(id string) (*Type, bool) {
	t, ok := m.types[id]
	return t, ok
}

// TypesByKey returns the ODR list for a linker_set_key: every self_type
// registered under it, in insertion order.
func (m *Module) TypesByKey(key string) []string {
	return m.odr[key]
}

// Function returns the function with the given mangled name.
func (m *Module) Function(key string) (*Function, bool) {
	f, ok := m.functions[key]
	return f, ok
}

// GlobalVar returns the variable with the given mangled name.
func (m *Module) GlobalVar(key string) (*GlobalVar, bool) {
	v, ok := m.globals[key]
	return v, ok
}

// ElfFunction returns the ELF function symbol with the given name.
func (m *Module) ElfFunction(name string) (*ElfSymbol, bool) {
	s, ok := m.elfFuncs[name]
	return s, ok
}

// ElfObject returns the ELF object symbol with the given name.
func (m *Module) ElfObject(name string) (*ElfSymbol, bool) {
	s, ok := m.elfObjects[name]
	return s, ok
}

// HasElfSymbol reports whether name is exported as either kind.
func (m *Module) HasElfSymbol(name string) bool {
	if _, ok := m.elfFuncs[name]; ok {
		return true
	}
	_, ok := m.elfObjects[name]
	return ok
}

// HasKey reports whether any entity family knows key. Used to validate ignore lists.
func (m *Module) HasKey(key string) bool {
	if _, ok := m.odr[key]; ok {
		return true
	}
	if _, ok := m.functions[key]; ok {
		return true
	}
	if _, ok := m.globals[key]; ok {
		return true
	}
	return m.HasElfSymbol(key)
}

// Types returns every type sorted by self_type.
func (m *Module) Types() []*Type {
	out := make([]*Type, 0, len(m.types))
	for _, t := range m.types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return lessID(out[i].SelfType, out[j].SelfType) })
	return out
}

// Functions returns every function sorted by mangled name.
func (m *Module) Functions() []*Function {
	out := make([]*Function, 0, len(m.functions))
	for _, f := range m.functions {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LinkerSetKey < out[j].LinkerSetKey })
	return out
}

// GlobalVars returns every variable sorted by mangled name.
func (m *Module) GlobalVars() []*GlobalVar {
	out := make([]*GlobalVar, 0, len(m.globals))
	for _, v := range m.globals {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LinkerSetKey < out[j].LinkerSetKey })
	return out
}

// ElfFunctions returns ELF function symbols sorted by name.
func (m *Module) ElfFunctions() []*ElfSymbol { return sortedSymbols(m.elfFuncs) }

// ElfObjects returns ELF object symbols sorted by name.
func (m *Module) ElfObjects() []*ElfSymbol { return sortedSymbols(m.elfObjects) }

// Stats is a cheap summary used by the CLI and traces.
type Stats struct {
	Types, Functions, GlobalVars, ElfFunctions, ElfObjects int
}

func (m *Module) Stats() Stats {
	return Stats{
		Types:        len(m.types),
		Functions:    len(m.functions),
		GlobalVars:   len(m.globals),
		ElfFunctions: len(m.elfFuncs),
		ElfObjects:   len(m.elfObjects),
	}
}

func sortedSymbols(in map[string]*ElfSymbol) []*ElfSymbol {
	out := make([]*ElfSymbol, 0, len(in))
	for _, s := range in {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// lessID orders generated ids numerically ("type-2" before "type-10")
// and everything else lexically after them.
func lessID(a, b string) bool {
	na, aok := idNumber(a)
	nb, bok := idNumber(b)
	switch {
	case aok && bok:
		return na < nb
	case aok != bok:
		return aok
	default:
		return a < b
	}
}

// CompareIDs is the self_type order used by every sorted accessor.
func CompareIDs(a, b string) int {
	switch {
	case a == b:
		return 0
	case lessID(a, b):
		return -1
	default:
		return 1
	}
}

func idNumber(id string) (uint64, bool) {
	rest, ok := strings.CutPrefix(id, typeIDPrefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(rest, 10, 64)
	return n, err == nil
}

// normalizeType fills zero-valued enums with their defaults so that a type
// survives a dump/read cycle unchanged.
func normalizeType(t *Type) {
	if t.Access == 0 {
		t.Access = AccessPublic
	}
	if t.Record != nil {
		if t.Record.Kind == 0 {
			t.Record.Kind = RecordStruct
		}
		for i := range t.Record.Fields {
			if t.Record.Fields[i].Access == 0 {
				t.Record.Fields[i].Access = AccessPublic
			}
		}
		for i := range t.Record.Bases {
			if t.Record.Bases[i].Access == 0 {
				t.Record.Bases[i].Access = AccessPublic
			}
		}
	}
}
