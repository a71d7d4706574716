// Package decl is the boundary to the C/C++ frontend. A frontend emits one
// Unit per translation unit: the types it saw, keyed by its own integer
// ids, and the declarations found in the parsed headers.
package decl

// TypeKind is the frontend's type classification. Kinds the IR has no
// variant for (vector, member_pointer, block_pointer, ...) pass through
// unchanged and are skipped by the builder.
type TypeKind string

const (
	TypeBuiltin         TypeKind = "builtin"
	TypePointer         TypeKind = "pointer"
	TypeLValueReference TypeKind = "lvalue_reference"
	TypeRValueReference TypeKind = "rvalue_reference"
	TypeQualified       TypeKind = "qualified"
	TypeArray           TypeKind = "array"
	TypeRecord          TypeKind = "record"
	TypeEnum            TypeKind = "enum"
	TypeFunctionProto   TypeKind = "function_proto"
	TypeTypedef         TypeKind = "typedef"
)

// Kind of a top-level declaration.
type Kind string

const (
	DeclFunction Kind = "function"
	DeclMethod   Kind = "method"
	DeclVar      Kind = "var"
	DeclType     Kind = "type"
)

// Unit is one translation unit's worth of declarations.
type Unit struct {
	Source string `json:"source"`
	Types  []Type `json:"types"`
	Decls  []Decl `json:"decls"`
}

// Type is a frontend type node. Only the fields relevant to Kind are set.
// Sizes and offsets are signed because frontends report unknown layout as -1.
type Type struct {
	ID   int64    `json:"id"`
	Kind TypeKind `json:"kind"`
	Name string   `json:"name,omitempty"`
	// Mangled is the RTTI name of records and enums ("_ZTI3Foo").
	Mangled string `json:"mangled,omitempty"`
	File    string `json:"file,omitempty"`
	Line    uint32 `json:"line,omitempty"`
	Access  string `json:"access,omitempty"`
	Size    int64  `json:"size,omitempty"`
	Align   int64  `json:"align,omitempty"`

	// pointer, reference, qualified, typedef, array element
	Pointee    int64 `json:"pointee,omitempty"`
	Underlying int64 `json:"underlying,omitempty"`
	Element    int64 `json:"element,omitempty"`
	Count      int64 `json:"count,omitempty"`

	Const    bool `json:"const,omitempty"`
	Volatile bool `json:"volatile,omitempty"`
	Restrict bool `json:"restrict,omitempty"`

	// record
	RecordKind   string      `json:"record_kind,omitempty"`
	Complete     bool        `json:"complete,omitempty"`
	Anonymous    bool        `json:"anonymous,omitempty"`
	Fields       []Field     `json:"fields,omitempty"`
	Bases        []Base      `json:"bases,omitempty"`
	VTable       []VTableRow `json:"vtable,omitempty"`
	TemplateArgs []int64     `json:"template_args,omitempty"`

	// enum
	Enumerators []Enumerator `json:"enumerators,omitempty"`

	// function_proto
	Return int64   `json:"return,omitempty"`
	Params []int64 `json:"params,omitempty"`
}

type Field struct {
	Name       string `json:"name"`
	Type       int64  `json:"type"`
	OffsetBits int64  `json:"offset_bits"`
	BitWidth   int64  `json:"bit_width,omitempty"`
	Access     string `json:"access,omitempty"`
}

type Base struct {
	Type    int64  `json:"type"`
	Virtual bool   `json:"virtual,omitempty"`
	Access  string `json:"access,omitempty"`
}

type VTableRow struct {
	Kind    string `json:"kind"`
	Mangled string `json:"mangled,omitempty"`
	Value   int64  `json:"value,omitempty"`
	Pure    bool   `json:"pure,omitempty"`
}

// Enumerator values arrive as decimal strings so that the full uint64 range
// survives JSON.
type Enumerator struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Decl is one declaration found in the parsed headers.
type Decl struct {
	Kind    Kind   `json:"kind"`
	Name    string `json:"name,omitempty"`
	Mangled string `json:"mangled,omitempty"`
	File    string `json:"file,omitempty"`
	Line    uint32 `json:"line,omitempty"`
	Access  string `json:"access,omitempty"`

	// function, method
	Return       int64   `json:"return,omitempty"`
	Params       []Param `json:"params,omitempty"`
	TemplateKind string  `json:"template_kind,omitempty"`
	TemplateArgs []int64 `json:"template_args,omitempty"`
	// Parent is the record type of a method; its implicit this pointer is
	// listed first in Params with This set.
	Parent int64 `json:"parent,omitempty"`

	// var, type
	Type int64 `json:"type,omitempty"`
}

type Param struct {
	Type       int64 `json:"type"`
	HasDefault bool  `json:"default,omitempty"`
	This       bool  `json:"this,omitempty"`
}
