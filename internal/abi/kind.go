package abi

import "fmt"

// Kind discriminates the Type variants.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindBuiltin
	KindPointer
	KindLValueReference
	KindRValueReference
	KindQualified
	KindArray
	KindRecord
	KindEnum
	KindFunction
)

func (k Kind) String() string {
	switch k {
	case KindBuiltin:
		return "builtin"
	case KindPointer:
		return "pointer"
	case KindLValueReference:
		return "lvalue_reference"
	case KindRValueReference:
		return "rvalue_reference"
	case KindQualified:
		return "qualified"
	case KindArray:
		return "array"
	case KindRecord:
		return "record"
	case KindEnum:
		return "enum"
	case KindFunction:
		return "function"
	default:
		return "invalid"
	}
}

// IsUserDefined reports whether types of this kind carry their own
// linkage identity and are subject to ODR merging.
func (k Kind) IsUserDefined() bool {
	return k == KindRecord || k == KindEnum
}

// Access is a C++ access specifier. The numeric order is the
// visibility order: a larger value is less visible.
type Access uint8

const (
	AccessPublic Access = iota + 1
	AccessProtected
	AccessPrivate
)

func (a Access) String() string {
	switch a {
	case AccessPublic:
		return "public"
	case AccessProtected:
		return "protected"
	case AccessPrivate:
		return "private"
	default:
		return "unknown"
	}
}

// ParseAccess converts a wire string to Access. The empty string is public.
func ParseAccess(s string) (Access, error) {
	switch s {
	case "", "public":
		return AccessPublic, nil
	case "protected":
		return AccessProtected, nil
	case "private":
		return AccessPrivate, nil
	default:
		return 0, fmt.Errorf("unknown access %q", s)
	}
}

// RecordKind is struct, class or union.
type RecordKind uint8

const (
	RecordStruct RecordKind = iota + 1
	RecordClass
	RecordUnion
)

func (k RecordKind) String() string {
	switch k {
	case RecordStruct:
		return "struct"
	case RecordClass:
		return "class"
	case RecordUnion:
		return "union"
	default:
		return "unknown"
	}
}

// ParseRecordKind converts a wire string to RecordKind. The empty string is struct.
func ParseRecordKind(s string) (RecordKind, error) {
	switch s {
	case "", "struct":
		return RecordStruct, nil
	case "class":
		return RecordClass, nil
	case "union":
		return RecordUnion, nil
	default:
		return 0, fmt.Errorf("unknown record kind %q", s)
	}
}

// TemplateKind tells whether a function is a template instantiation or
// an explicit specialization.
type TemplateKind uint8

const (
	TemplateNone TemplateKind = iota
	TemplateInstantiation
	TemplateSpecialization
)

func (k TemplateKind) String() string {
	switch k {
	case TemplateNone:
		return "none"
	case TemplateInstantiation:
		return "instantiation"
	case TemplateSpecialization:
		return "specialization"
	default:
		return "unknown"
	}
}

// ParseTemplateKind converts a wire string to TemplateKind.
func ParseTemplateKind(s string) (TemplateKind, error) {
	switch s {
	case "", "none":
		return TemplateNone, nil
	case "instantiation":
		return TemplateInstantiation, nil
	case "specialization":
		return TemplateSpecialization, nil
	default:
		return 0, fmt.Errorf("unknown template kind %q", s)
	}
}

// VTableComponentKind classifies a vtable slot.
type VTableComponentKind uint8

const (
	VTableVCallOffset VTableComponentKind = iota + 1
	VTableVBaseOffset
	VTableOffsetToTop
	VTableRTTI
	VTableFunctionPointer
	VTableCompleteDtorPointer
	VTableDeletingDtorPointer
	VTableUnusedFunctionPointer
)

var vtableKindNames = map[VTableComponentKind]string{
	VTableVCallOffset:           "vcall_offset",
	VTableVBaseOffset:           "vbase_offset",
	VTableOffsetToTop:           "offset_to_top",
	VTableRTTI:                  "rtti",
	VTableFunctionPointer:       "function_pointer",
	VTableCompleteDtorPointer:   "complete_dtor_pointer",
	VTableDeletingDtorPointer:   "deleting_dtor_pointer",
	VTableUnusedFunctionPointer: "unused_function_pointer",
}

func (k VTableComponentKind) String() string {
	if name, ok := vtableKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// IsFunction reports whether the slot holds a code address.
func (k VTableComponentKind) IsFunction() bool {
	switch k {
	case VTableFunctionPointer, VTableCompleteDtorPointer, VTableDeletingDtorPointer, VTableUnusedFunctionPointer:
		return true
	}
	return false
}

// ParseVTableComponentKind converts a wire string to VTableComponentKind.
func ParseVTableComponentKind(s string) (VTableComponentKind, error) {
	for k, name := range vtableKindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown vtable component kind %q", s)
}

// Binding is the ELF symbol binding.
type Binding uint8

const (
	BindingGlobal Binding = iota + 1
	BindingWeak
)

func (b Binding) String() string {
	switch b {
	case BindingGlobal:
		return "global"
	case BindingWeak:
		return "weak"
	default:
		return "unknown"
	}
}

// ParseBinding converts a wire string to Binding. Matching is case-insensitive
// for the two spellings found in readelf output and dump files.
func ParseBinding(s string) (Binding, error) {
	switch s {
	case "", "global", "GLOBAL", "Global":
		return BindingGlobal, nil
	case "weak", "WEAK", "Weak":
		return BindingWeak, nil
	default:
		return 0, fmt.Errorf("unknown symbol binding %q", s)
	}
}

// SymbolKind tells ELF functions from ELF objects.
type SymbolKind uint8

const (
	SymbolFunction SymbolKind = iota + 1
	SymbolObject
)

func (k SymbolKind) String() string {
	switch k {
	case SymbolFunction:
		return "function"
	case SymbolObject:
		return "object"
	default:
		return "unknown"
	}
}
