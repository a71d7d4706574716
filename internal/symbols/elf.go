package symbols

import (
	"debug/elf"
	"errors"
	"fmt"

	"abicheck/internal/abi"
)

// ErrNotShared is returned for ELF files without a dynamic symbol table.
var ErrNotShared = errors.New("no dynamic symbol table")

// STT_GNU_IFUNC is not named by debug/elf.
const sttGNUIFunc = elf.SymType(10)

// ReadELF returns the defined GLOBAL and WEAK symbols of the shared
// object's dynamic symbol table. FUNC and IFUNC become functions; OBJECT,
// TLS and COMMON become objects.
func ReadELF(path string) (*Set, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open shared object: %w", err)
	}
	defer f.Close()

	syms, err := f.DynamicSymbols()
	if err != nil {
		if errors.Is(err, elf.ErrNoSymbols) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotShared)
		}
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return fromELF(syms), nil
}

func fromELF(syms []elf.Symbol) *Set {
	set := NewSet()
	for i := range syms {
		sym := &syms[i]
		if sym.Section == elf.SHN_UNDEF || sym.Name == "" {
			continue
		}
		var binding abi.Binding
		switch elf.ST_BIND(sym.Info) {
		case elf.STB_GLOBAL, elf.STB_LOOS: // STB_GNU_UNIQUE
			binding = abi.BindingGlobal
		case elf.STB_WEAK:
			binding = abi.BindingWeak
		default:
			continue
		}
		var kind abi.SymbolKind
		switch elf.ST_TYPE(sym.Info) {
		case elf.STT_FUNC, sttGNUIFunc:
			kind = abi.SymbolFunction
		case elf.STT_OBJECT, elf.STT_TLS, elf.STT_COMMON:
			kind = abi.SymbolObject
		default:
			continue
		}
		set.Add(Symbol{Name: sym.Name, Kind: kind, Binding: binding, Version: sym.Version})
	}
	return set
}
