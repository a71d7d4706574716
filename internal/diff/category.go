package diff

import (
	"fmt"
	"maps"
	"slices"
)

// Level is how seriously a change is taken. Levels are ordered: the level
// of a record is the highest level among its details.
type Level uint8

const (
	LevelUnset Level = iota
	LevelIgnore
	LevelAdvisory
	LevelExtension
	LevelIncompatible
)

func (l Level) String() string {
	switch l {
	case LevelIgnore:
		return "ignore"
	case LevelAdvisory:
		return "advisory"
	case LevelExtension:
		return "extension"
	case LevelIncompatible:
		return "incompatible"
	default:
		return "unset"
	}
}

// ParseLevel accepts the String form of a level.
func ParseLevel(s string) (Level, error) {
	for l := LevelIgnore; l <= LevelIncompatible; l++ {
		if l.String() == s {
			return l, nil
		}
	}
	return LevelUnset, fmt.Errorf("unknown level %q", s)
}

// Change is the category of one detail.
type Change string

const (
	// record layout
	RecordSizeGrew         Change = "record_size_grew"
	RecordSizeChanged      Change = "record_size_changed"
	RecordAlignmentChanged Change = "record_alignment_changed"
	RecordKindChanged      Change = "record_kind_changed"
	AccessNarrowed         Change = "access_narrowed"
	AccessWidened          Change = "access_widened"

	FieldAdded           Change = "field_added"
	FieldRemoved         Change = "field_removed"
	FieldOffsetChanged   Change = "field_offset_changed"
	FieldTypeChanged     Change = "field_type_changed"
	FieldRenamed         Change = "field_renamed"
	FieldBitfieldChanged Change = "field_bitfield_changed"

	BaseAdded   Change = "base_added"
	BaseRemoved Change = "base_removed"
	BaseChanged Change = "base_changed"

	VTableSlotAppended Change = "vtable_slot_appended"
	VTableSlotRemoved  Change = "vtable_slot_removed"
	VTableSlotChanged  Change = "vtable_slot_changed"

	TemplateArgsChanged Change = "template_args_changed"

	// enums
	EnumeratorAdded           Change = "enumerator_added"
	EnumeratorRemoved         Change = "enumerator_removed"
	EnumeratorValueChanged    Change = "enumerator_value_changed"
	EnumeratorRenamed         Change = "enumerator_renamed"
	EnumUnderlyingTypeChanged Change = "enum_underlying_type_changed"

	// functions and variables
	ReturnTypeChanged        Change = "return_type_changed"
	ParameterTypeChanged     Change = "parameter_type_changed"
	ParameterCountChanged    Change = "parameter_count_changed"
	ParameterQualifiersAdded Change = "parameter_qualifiers_added"
	ReturnQualifiersRemoved  Change = "return_qualifiers_removed"
	DefaultArgChanged        Change = "default_arg_changed"
	TemplateKindChanged      Change = "template_kind_changed"
	GlobalVarTypeChanged     Change = "global_var_type_changed"

	// lone elements
	FunctionRemoved  Change = "function_removed"
	FunctionAdded    Change = "function_added"
	GlobalVarRemoved Change = "global_var_removed"
	GlobalVarAdded   Change = "global_var_added"
	TypeRemoved      Change = "type_removed"
	TypeAdded        Change = "type_added"
	ElfSymbolRemoved Change = "elf_symbol_removed"
	ElfSymbolAdded   Change = "elf_symbol_added"
)

// DefaultLevels is the policy table used when nothing overrides it.
// Reordering-style changes inside a record are incompatible even when the
// size is preserved: positions carry the layout.
var DefaultLevels = map[Change]Level{
	RecordSizeGrew:         LevelExtension,
	RecordSizeChanged:      LevelIncompatible,
	RecordAlignmentChanged: LevelIncompatible,
	RecordKindChanged:      LevelIncompatible,
	AccessNarrowed:         LevelIncompatible,
	AccessWidened:          LevelExtension,

	FieldAdded:           LevelExtension,
	FieldRemoved:         LevelIncompatible,
	FieldOffsetChanged:   LevelIncompatible,
	FieldTypeChanged:     LevelIncompatible,
	FieldRenamed:         LevelAdvisory,
	FieldBitfieldChanged: LevelIncompatible,

	BaseAdded:   LevelIncompatible,
	BaseRemoved: LevelIncompatible,
	BaseChanged: LevelIncompatible,

	VTableSlotAppended: LevelExtension,
	VTableSlotRemoved:  LevelIncompatible,
	VTableSlotChanged:  LevelIncompatible,

	TemplateArgsChanged: LevelIncompatible,

	EnumeratorAdded:           LevelExtension,
	EnumeratorRemoved:         LevelIncompatible,
	EnumeratorValueChanged:    LevelIncompatible,
	EnumeratorRenamed:         LevelAdvisory,
	EnumUnderlyingTypeChanged: LevelIncompatible,

	ReturnTypeChanged:        LevelIncompatible,
	ParameterTypeChanged:     LevelIncompatible,
	ParameterCountChanged:    LevelIncompatible,
	ParameterQualifiersAdded: LevelExtension,
	ReturnQualifiersRemoved:  LevelExtension,
	DefaultArgChanged:        LevelAdvisory,
	TemplateKindChanged:      LevelAdvisory,
	GlobalVarTypeChanged:     LevelIncompatible,

	FunctionRemoved:  LevelIncompatible,
	FunctionAdded:    LevelExtension,
	GlobalVarRemoved: LevelIncompatible,
	GlobalVarAdded:   LevelExtension,
	TypeRemoved:      LevelAdvisory,
	TypeAdded:        LevelAdvisory,
	ElfSymbolRemoved: LevelIncompatible,
	ElfSymbolAdded:   LevelExtension,
}

// fixed categories keep their default level whatever the configuration says.
var fixed = map[Change]struct{}{
	VTableSlotRemoved:    {},
	VTableSlotChanged:    {},
	ParameterTypeChanged: {},
	FunctionRemoved:      {},
	ElfSymbolRemoved:     {},
}

// IsFixed reports whether c cannot be overridden.
func IsFixed(c Change) bool {
	_, ok := fixed[c]
	return ok
}

// Known reports whether c is a category of the policy table.
func Known(c Change) bool {
	_, ok := DefaultLevels[c]
	return ok
}

// Changes lists every category in sorted order.
func Changes() []Change {
	return slices.Sorted(maps.Keys(DefaultLevels))
}
