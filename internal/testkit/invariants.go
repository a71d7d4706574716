package testkit

import (
	"fmt"

	"abicheck/internal/abi"
)

// CheckModuleInvariants runs a minimal set of structural checks on a module:
// 1) every reference resolves (Module.Validate)
// 2) every user-defined type is listed in the ODR list of its key
// 3) records and enums refer to themselves through ReferencedType
// 4) sorted accessors return strictly increasing keys
func CheckModuleInvariants(m *abi.Module) error {
	if m == nil {
		return fmt.Errorf("nil module")
	}
	if err := m.Validate(); err != nil {
		return err
	}

	// 2) and 3)
	for _, t := range m.Types() {
		if !t.Kind.IsUserDefined() {
			continue
		}
		if t.ReferencedType != t.SelfType {
			return fmt.Errorf("%s %s: referenced_type %q is not its own id", t.Kind, t.SelfType, t.ReferencedType)
		}
		found := false
		for _, id := range m.TypesByKey(t.LinkerSetKey) {
			if id == t.SelfType {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%s is missing from the ODR list of %q", t.SelfType, t.LinkerSetKey)
		}
	}

	// 4) accessor order
	var prev string
	for i, f := range m.Functions() {
		if i > 0 && f.LinkerSetKey <= prev {
			return fmt.Errorf("functions out of order: %q after %q", f.LinkerSetKey, prev)
		}
		prev = f.LinkerSetKey
	}
	prev = ""
	for i, v := range m.GlobalVars() {
		if i > 0 && v.LinkerSetKey <= prev {
			return fmt.Errorf("global vars out of order: %q after %q", v.LinkerSetKey, prev)
		}
		prev = v.LinkerSetKey
	}
	return nil
}
