package abi

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
)

// ErrDanglingReference marks a referenced_type id with no entry in its Module.
var ErrDanglingReference = errors.New("dangling type reference")

// ErrMissingPayload marks a type whose Kind requires a payload it does not carry.
var ErrMissingPayload = errors.New("missing kind payload")

// ErrDerivedCycle marks a reference cycle that passes through no record or
// enum, e.g. a pointer to itself. No C or C++ type has that shape.
var ErrDerivedCycle = errors.New("type cycle without a record or enum")

// Validate checks that every reference in the Module resolves to exactly
// one type and that every type carries the payload its Kind demands.
// Entities are visited in sorted order so the first error is stable.
func (m *Module) Validate() error {
	for _, t := range m.Types() {
		switch t.Kind {
		case KindRecord:
			if t.Record == nil {
				return fmt.Errorf("type %s: %w", t.SelfType, ErrMissingPayload)
			}
		case KindEnum:
			if t.Enum == nil {
				return fmt.Errorf("type %s: %w", t.SelfType, ErrMissingPayload)
			}
		case KindFunction:
			if t.Func == nil {
				return fmt.Errorf("type %s: %w", t.SelfType, ErrMissingPayload)
			}
		}
		for _, ref := range t.References() {
			if _, ok := m.types[ref]; !ok {
				return fmt.Errorf("type %s references %q: %w", t.SelfType, ref, ErrDanglingReference)
			}
		}
	}
	for _, f := range m.Functions() {
		for _, ref := range f.References() {
			if _, ok := m.types[ref]; !ok {
				return fmt.Errorf("function %s references %q: %w", f.LinkerSetKey, ref, ErrDanglingReference)
			}
		}
	}
	for _, v := range m.GlobalVars() {
		if _, ok := m.types[v.Type]; !ok {
			return fmt.Errorf("global var %s references %q: %w", v.LinkerSetKey, v.Type, ErrDanglingReference)
		}
	}
	return m.checkDerivedCycles()
}

// checkDerivedCycles walks the reference graph with records and enums
// cut out. Any cycle left is one the diff could never terminate on.
func (m *Module) checkDerivedCycles() error {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(m.types))
	var visit func(t *Type) error
	visit = func(t *Type) error {
		color[t.SelfType] = grey
		for _, ref := range t.References() {
			next := m.types[ref]
			if next.Kind.IsUserDefined() {
				continue
			}
			switch color[ref] {
			case grey:
				return fmt.Errorf("type %s references %s: %w", t.SelfType, ref, ErrDerivedCycle)
			case white:
				if err := visit(next); err != nil {
					return err
				}
			}
		}
		color[t.SelfType] = black
		return nil
	}
	for _, t := range m.Types() {
		if t.Kind.IsUserDefined() || color[t.SelfType] != white {
			continue
		}
		if err := visit(t); err != nil {
			return err
		}
	}
	return nil
}

// Equal reports structural equality: same metadata, same entity sets
// under the same ids, same list order inside every entity.
func (m *Module) Equal(other *Module) bool {
	if m == nil || other == nil {
		return m == other
	}
	if m.LibName != other.LibName || m.Arch != other.Arch {
		return false
	}
	if !reflect.DeepEqual(m.types, other.types) ||
		!reflect.DeepEqual(m.functions, other.functions) ||
		!reflect.DeepEqual(m.globals, other.globals) ||
		!reflect.DeepEqual(m.elfFuncs, other.elfFuncs) ||
		!reflect.DeepEqual(m.elfObjects, other.elfObjects) {
		return false
	}
	if len(m.odr) != len(other.odr) {
		return false
	}
	for key, ids := range m.odr {
		if !sameIDSet(ids, other.odr[key]) {
			return false
		}
	}
	return true
}

func sameIDSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa := append([]string(nil), a...)
	sb := append([]string(nil), b...)
	sort.Strings(sa)
	sort.Strings(sb)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}
