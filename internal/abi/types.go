package abi

// Type is one node of the type graph. Kind selects which payload is
// meaningful; references to other types are always ids, never pointers.
type Type struct {
	Kind           Kind
	SelfType       string
	Name           string
	LinkerSetKey   string
	SourceFile     string
	Size           uint64
	Alignment      uint32
	ReferencedType string
	Access         Access

	// builtin
	IsUnsigned bool
	IsIntegral bool

	// qualified
	IsConst      bool
	IsVolatile   bool
	IsRestricted bool

	// array
	Length uint64

	Record *RecordInfo
	Enum   *EnumInfo
	Func   *FuncSig
}

// RecordInfo is the payload of KindRecord.
type RecordInfo struct {
	Kind         RecordKind
	Fields       []Field
	Bases        []BaseSpecifier
	VTable       []VTableComponent
	TemplateArgs []string
	Anonymous    bool
	Opaque       bool
}

// Field is a data member. Offset is in bytes; bitfields additionally
// carry the bit position inside that byte and their width.
type Field struct {
	Name      string
	Type      string
	Offset    uint64
	BitOffset uint32
	BitWidth  uint32
	Access    Access
}

// IsBitField reports whether the field has an explicit bit width.
func (f Field) IsBitField() bool { return f.BitWidth > 0 }

// BaseSpecifier is one entry of a record's base list.
type BaseSpecifier struct {
	Type      string
	IsVirtual bool
	Access    Access
}

// VTableComponent is one vtable slot.
type VTableComponent struct {
	Kind        VTableComponentKind
	MangledName string
	Value       int64
	IsPure      bool
}

// EnumInfo is the payload of KindEnum.
type EnumInfo struct {
	UnderlyingType string
	Enumerators    []Enumerator
}

// Enumerator holds a 64-bit value. Unsigned marks values that must be
// read as uint64.
type Enumerator struct {
	Name     string
	Value    int64
	Unsigned bool
}

// FuncSig is the payload of KindFunction and the signature part of Function.
type FuncSig struct {
	ReturnType string
	Params     []Param
}

// Param is one formal parameter.
type Param struct {
	Type       string
	HasDefault bool
	IsThis     bool
}

// Key implements Linkable.
func (t *Type) Key() string { return t.LinkerSetKey }

// EntityKind implements Linkable.
func (t *Type) EntityKind() EntityKind { return EntityType }

// References returns every type id the node refers to, in a stable order.
// A record or enum referring to itself is left out; for every other kind
// a self reference is kept so that Validate can reject it.
func (t *Type) References() []string {
	var refs []string
	userDefined := t.Kind.IsUserDefined()
	add := func(id string) {
		if id != "" && (id != t.SelfType || !userDefined) {
			refs = append(refs, id)
		}
	}
	switch t.Kind {
	case KindPointer, KindLValueReference, KindRValueReference, KindQualified, KindArray:
		add(t.ReferencedType)
	case KindRecord:
		if t.Record != nil {
			for _, f := range t.Record.Fields {
				add(f.Type)
			}
			for _, b := range t.Record.Bases {
				add(b.Type)
			}
			for _, a := range t.Record.TemplateArgs {
				add(a)
			}
		}
	case KindEnum:
		if t.Enum != nil {
			add(t.Enum.UnderlyingType)
		}
	case KindFunction:
		if t.Func != nil {
			add(t.Func.ReturnType)
			for _, p := range t.Func.Params {
				add(p.Type)
			}
		}
	}
	return refs
}

// Clone returns a deep copy that shares no slices with t.
func (t *Type) Clone() *Type {
	c := *t
	if t.Record != nil {
		r := *t.Record
		r.Fields = append([]Field(nil), t.Record.Fields...)
		r.Bases = append([]BaseSpecifier(nil), t.Record.Bases...)
		r.VTable = append([]VTableComponent(nil), t.Record.VTable...)
		r.TemplateArgs = append([]string(nil), t.Record.TemplateArgs...)
		c.Record = &r
	}
	if t.Enum != nil {
		e := *t.Enum
		e.Enumerators = append([]Enumerator(nil), t.Enum.Enumerators...)
		c.Enum = &e
	}
	if t.Func != nil {
		f := *t.Func
		f.Params = append([]Param(nil), t.Func.Params...)
		c.Func = &f
	}
	return &c
}

// Remap rewrites every type reference through fn. The self id of
// records and enums is left untouched.
func (t *Type) Remap(fn func(string) string) {
	switch t.Kind {
	case KindPointer, KindLValueReference, KindRValueReference, KindQualified, KindArray:
		t.ReferencedType = fn(t.ReferencedType)
	case KindRecord:
		if t.Record != nil {
			for i := range t.Record.Fields {
				t.Record.Fields[i].Type = fn(t.Record.Fields[i].Type)
			}
			for i := range t.Record.Bases {
				t.Record.Bases[i].Type = fn(t.Record.Bases[i].Type)
			}
			for i := range t.Record.TemplateArgs {
				t.Record.TemplateArgs[i] = fn(t.Record.TemplateArgs[i])
			}
		}
	case KindEnum:
		if t.Enum != nil {
			t.Enum.UnderlyingType = fn(t.Enum.UnderlyingType)
		}
	case KindFunction:
		if t.Func != nil {
			t.Func.ReturnType = fn(t.Func.ReturnType)
			for i := range t.Func.Params {
				t.Func.Params[i].Type = fn(t.Func.Params[i].Type)
			}
		}
	}
}
