// Package symbols reads the exported symbol set of a library: from the
// dynamic symbol table of a shared object, a plain symbol list or a linker
// version script.
package symbols

import (
	"slices"
	"strings"

	"abicheck/internal/abi"
)

// Symbol is one exported name.
type Symbol struct {
	Name    string
	Kind    abi.SymbolKind
	Binding abi.Binding
	Version string
}

// Set is an exported symbol set keyed by name.
type Set struct {
	syms map[string]Symbol
}

// NewSet returns an empty set.
func NewSet() *Set {
	return &Set{syms: make(map[string]Symbol, 64)}
}

// Add inserts sym. A name already present keeps its first entry, except
// that a GLOBAL binding replaces a WEAK one.
func (s *Set) Add(sym Symbol) {
	if sym.Name == "" {
		return
	}
	if sym.Kind == 0 {
		sym.Kind = abi.SymbolFunction
	}
	if sym.Binding == 0 {
		sym.Binding = abi.BindingGlobal
	}
	if prev, ok := s.syms[sym.Name]; ok {
		if prev.Binding == abi.BindingWeak && sym.Binding == abi.BindingGlobal {
			prev.Binding = abi.BindingGlobal
			s.syms[sym.Name] = prev
		}
		return
	}
	s.syms[sym.Name] = sym
}

// Has reports whether name is exported.
func (s *Set) Has(name string) bool {
	if s == nil {
		return false
	}
	_, ok := s.syms[name]
	return ok
}

// Lookup returns the entry for name.
func (s *Set) Lookup(name string) (Symbol, bool) {
	if s == nil {
		return Symbol{}, false
	}
	sym, ok := s.syms[name]
	return sym, ok
}

// Len is the number of symbols.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.syms)
}

// Functions returns the function symbols sorted by name.
func (s *Set) Functions() []Symbol { return s.filter(abi.SymbolFunction) }

// Objects returns the object symbols sorted by name.
func (s *Set) Objects() []Symbol { return s.filter(abi.SymbolObject) }

func (s *Set) filter(kind abi.SymbolKind) []Symbol {
	if s == nil {
		return nil
	}
	out := make([]Symbol, 0, len(s.syms))
	for _, sym := range s.syms {
		if sym.Kind == kind {
			out = append(out, sym)
		}
	}
	slices.SortFunc(out, func(a, b Symbol) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// ElfSymbols converts the set to IR symbol-table entries, functions first.
func (s *Set) ElfSymbols() []*abi.ElfSymbol {
	out := make([]*abi.ElfSymbol, 0, s.Len())
	for _, sym := range append(s.Functions(), s.Objects()...) {
		out = append(out, &abi.ElfSymbol{Name: sym.Name, Kind: sym.Kind, Binding: sym.Binding, Version: sym.Version})
	}
	return out
}

// Intersect keeps the symbols present in both sets. Entries take kind,
// binding and version from a. A nil side leaves the other unchanged.
func Intersect(a, b *Set) *Set {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	out := NewSet()
	for name, sym := range a.syms {
		if _, ok := b.syms[name]; ok {
			out.syms[name] = sym
		}
	}
	return out
}
