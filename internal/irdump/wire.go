package irdump

// Wire types shared by every backend. The msgpack backend reads the json
// tags; yaml needs its own.

// document is the root of a module dump. entity_count comes last so that a
// document cut short is detected even when the cut falls between entries.
type document struct {
	SchemaVersion        int             `json:"schema_version" yaml:"schema_version"`
	LibName              string          `json:"lib_name" yaml:"lib_name"`
	Arch                 string          `json:"arch" yaml:"arch"`
	BuiltinTypes         []builtinType   `json:"builtin_types,omitempty" yaml:"builtin_types,omitempty"`
	PointerTypes         []derivedType   `json:"pointer_types,omitempty" yaml:"pointer_types,omitempty"`
	LValueReferenceTypes []derivedType   `json:"lvalue_reference_types,omitempty" yaml:"lvalue_reference_types,omitempty"`
	RValueReferenceTypes []derivedType   `json:"rvalue_reference_types,omitempty" yaml:"rvalue_reference_types,omitempty"`
	QualifiedTypes       []qualifiedType `json:"qualified_types,omitempty" yaml:"qualified_types,omitempty"`
	ArrayTypes           []arrayType     `json:"array_types,omitempty" yaml:"array_types,omitempty"`
	RecordTypes          []recordType    `json:"record_types,omitempty" yaml:"record_types,omitempty"`
	EnumTypes            []enumType      `json:"enum_types,omitempty" yaml:"enum_types,omitempty"`
	FunctionTypes        []functionType  `json:"function_types,omitempty" yaml:"function_types,omitempty"`
	Functions            []function      `json:"functions,omitempty" yaml:"functions,omitempty"`
	GlobalVars           []globalVar     `json:"global_vars,omitempty" yaml:"global_vars,omitempty"`
	ElfFunctions         []elfSymbol     `json:"elf_functions,omitempty" yaml:"elf_functions,omitempty"`
	ElfObjects           []elfSymbol     `json:"elf_objects,omitempty" yaml:"elf_objects,omitempty"`
	EntityCount          int             `json:"entity_count" yaml:"entity_count"`
}

// typeBase holds the attributes every type list shares.
type typeBase struct {
	Name           string `json:"name" yaml:"name"`
	Size           uint64 `json:"size,omitempty" yaml:"size,omitempty"`
	Alignment      uint64 `json:"alignment,omitempty" yaml:"alignment,omitempty"`
	ReferencedType string `json:"referenced_type" yaml:"referenced_type"`
	SelfType       string `json:"self_type" yaml:"self_type"`
	LinkerSetKey   string `json:"linker_set_key" yaml:"linker_set_key"`
	SourceFile     string `json:"source_file,omitempty" yaml:"source_file,omitempty"`
	Access         string `json:"access,omitempty" yaml:"access,omitempty"`
}

type builtinType struct {
	typeBase `yaml:",inline"`

	IsUnsigned bool `json:"is_unsigned,omitempty" yaml:"is_unsigned,omitempty"`
	IsIntegral bool `json:"is_integral,omitempty" yaml:"is_integral,omitempty"`
}

type derivedType struct {
	typeBase `yaml:",inline"`
}

type qualifiedType struct {
	typeBase `yaml:",inline"`

	IsConst      bool `json:"is_const,omitempty" yaml:"is_const,omitempty"`
	IsVolatile   bool `json:"is_volatile,omitempty" yaml:"is_volatile,omitempty"`
	IsRestricted bool `json:"is_restricted,omitempty" yaml:"is_restricted,omitempty"`
}

type arrayType struct {
	typeBase `yaml:",inline"`

	Length uint64 `json:"length,omitempty" yaml:"length,omitempty"`
}

type recordType struct {
	typeBase `yaml:",inline"`

	RecordKind       string            `json:"record_kind,omitempty" yaml:"record_kind,omitempty"`
	Fields           []recordField     `json:"fields,omitempty" yaml:"fields,omitempty"`
	BaseSpecifiers   []baseSpecifier   `json:"base_specifiers,omitempty" yaml:"base_specifiers,omitempty"`
	VTableComponents []vtableComponent `json:"vtable_components,omitempty" yaml:"vtable_components,omitempty"`
	TemplateArgs     []string          `json:"template_args,omitempty" yaml:"template_args,omitempty"`
	IsAnonymous      bool              `json:"is_anonymous,omitempty" yaml:"is_anonymous,omitempty"`
	IsOpaque         bool              `json:"is_opaque,omitempty" yaml:"is_opaque,omitempty"`
}

// recordField carries its offset in bits.
type recordField struct {
	FieldName      string `json:"field_name" yaml:"field_name"`
	ReferencedType string `json:"referenced_type" yaml:"referenced_type"`
	FieldOffset    uint64 `json:"field_offset" yaml:"field_offset"`
	BitWidth       uint64 `json:"bit_width,omitempty" yaml:"bit_width,omitempty"`
	Access         string `json:"access,omitempty" yaml:"access,omitempty"`
}

type baseSpecifier struct {
	ReferencedType string `json:"referenced_type" yaml:"referenced_type"`
	IsVirtual      bool   `json:"is_virtual,omitempty" yaml:"is_virtual,omitempty"`
	Access         string `json:"access,omitempty" yaml:"access,omitempty"`
}

type vtableComponent struct {
	Kind                 string `json:"kind" yaml:"kind"`
	MangledComponentName string `json:"mangled_component_name,omitempty" yaml:"mangled_component_name,omitempty"`
	ComponentValue       int64  `json:"component_value,omitempty" yaml:"component_value,omitempty"`
	IsPure               bool   `json:"is_pure,omitempty" yaml:"is_pure,omitempty"`
}

type enumType struct {
	typeBase `yaml:",inline"`

	UnderlyingType string      `json:"underlying_type" yaml:"underlying_type"`
	EnumFields     []enumField `json:"enum_fields,omitempty" yaml:"enum_fields,omitempty"`
}

// enumField keeps the raw 64 bits; is_unsigned tells how to read them.
type enumField struct {
	Name           string `json:"name" yaml:"name"`
	EnumFieldValue int64  `json:"enum_field_value" yaml:"enum_field_value"`
	IsUnsigned     bool   `json:"is_unsigned,omitempty" yaml:"is_unsigned,omitempty"`
}

type functionType struct {
	typeBase `yaml:",inline"`

	ReturnType string      `json:"return_type" yaml:"return_type"`
	Parameters []parameter `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

type parameter struct {
	ReferencedType string `json:"referenced_type" yaml:"referenced_type"`
	DefaultArg     bool   `json:"default_arg,omitempty" yaml:"default_arg,omitempty"`
	IsThisPtr      bool   `json:"is_this_ptr,omitempty" yaml:"is_this_ptr,omitempty"`
}

type function struct {
	FunctionName string      `json:"function_name" yaml:"function_name"`
	LinkerSetKey string      `json:"linker_set_key" yaml:"linker_set_key"`
	SourceFile   string      `json:"source_file,omitempty" yaml:"source_file,omitempty"`
	ReturnType   string      `json:"return_type" yaml:"return_type"`
	Parameters   []parameter `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Access       string      `json:"access,omitempty" yaml:"access,omitempty"`
	TemplateKind string      `json:"template_kind,omitempty" yaml:"template_kind,omitempty"`
	TemplateArgs []string    `json:"template_args,omitempty" yaml:"template_args,omitempty"`
}

type globalVar struct {
	Name           string `json:"name" yaml:"name"`
	LinkerSetKey   string `json:"linker_set_key" yaml:"linker_set_key"`
	SourceFile     string `json:"source_file,omitempty" yaml:"source_file,omitempty"`
	ReferencedType string `json:"referenced_type" yaml:"referenced_type"`
	Access         string `json:"access,omitempty" yaml:"access,omitempty"`
}

type elfSymbol struct {
	Name    string `json:"name" yaml:"name"`
	Binding string `json:"binding,omitempty" yaml:"binding,omitempty"`
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
}

// reportDocument is the root of a diff report.
type reportDocument struct {
	SchemaVersion       int          `json:"schema_version" yaml:"schema_version"`
	LibName             string       `json:"lib_name" yaml:"lib_name"`
	Arch                string       `json:"arch" yaml:"arch"`
	CompatibilityStatus string       `json:"compatibility_status" yaml:"compatibility_status"`
	FunctionDiffs       []diffRecord `json:"function_diffs,omitempty" yaml:"function_diffs,omitempty"`
	GlobalVarDiffs      []diffRecord `json:"global_var_diffs,omitempty" yaml:"global_var_diffs,omitempty"`
	RecordTypeDiffs     []diffRecord `json:"record_type_diffs,omitempty" yaml:"record_type_diffs,omitempty"`
	EnumTypeDiffs       []diffRecord `json:"enum_type_diffs,omitempty" yaml:"enum_type_diffs,omitempty"`
	ElfFunctionDiffs    []diffRecord `json:"elf_function_diffs,omitempty" yaml:"elf_function_diffs,omitempty"`
	ElfObjectDiffs      []diffRecord `json:"elf_object_diffs,omitempty" yaml:"elf_object_diffs,omitempty"`
	RecordCount         int          `json:"record_count" yaml:"record_count"`
}

type diffRecord struct {
	Name         string       `json:"name" yaml:"name"`
	LinkerSetKey string       `json:"linker_set_key" yaml:"linker_set_key"`
	Kind         string       `json:"kind" yaml:"kind"`
	Level        string       `json:"level" yaml:"level"`
	Unreferenced bool         `json:"unreferenced,omitempty" yaml:"unreferenced,omitempty"`
	TypeStack    []string     `json:"type_stack,omitempty" yaml:"type_stack,omitempty"`
	Details      []diffDetail `json:"details,omitempty" yaml:"details,omitempty"`
}

type diffDetail struct {
	Path   string `json:"path,omitempty" yaml:"path,omitempty"`
	Change string `json:"change" yaml:"change"`
	Old    string `json:"old,omitempty" yaml:"old,omitempty"`
	New    string `json:"new,omitempty" yaml:"new,omitempty"`
	Level  string `json:"level" yaml:"level"`
}
