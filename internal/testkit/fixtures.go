// Package testkit holds fixtures shared by package tests.
package testkit

import (
	"testing"

	"abicheck/internal/abi"
)

// Fixture builds a Module by hand. Every insertion failure stops the test.
type Fixture struct {
	t       testing.TB
	Mod     *abi.Module
	pending map[string]string
}

// NewFixture starts an empty LP64 module.
func NewFixture(t testing.TB, lib string) *Fixture {
	t.Helper()
	return &Fixture{t: t, Mod: abi.NewModule(lib, "x86_64"), pending: make(map[string]string)}
}

func (f *Fixture) add(l abi.Linkable) {
	f.t.Helper()
	if err := f.Mod.AddLinkable(l); err != nil {
		f.t.Fatalf("fixture: %v", err)
	}
}

// Builtin adds a builtin by name once and returns its id.
func (f *Fixture) Builtin(name string) string {
	f.t.Helper()
	bt, ok := abi.LookupBuiltin(abi.LP64, name)
	if !ok {
		f.t.Fatalf("fixture: unknown builtin %q", name)
	}
	if _, exists := f.Mod.LookupType(bt.SelfType); !exists {
		f.add(bt)
	}
	return bt.SelfType
}

// Int is Builtin("int").
func (f *Fixture) Int() string { return f.Builtin("int") }

func (f *Fixture) name(id string) string {
	if t, ok := f.Mod.LookupType(id); ok {
		return t.Name
	}
	if n, ok := f.pending[id]; ok {
		return n
	}
	return id
}

func (f *Fixture) derived(t *abi.Type) string {
	f.t.Helper()
	t.SelfType = f.Mod.NewTypeID()
	if t.Name == "" {
		t.Name = abi.DerivedName(t, f.name(t.ReferencedType))
	}
	t.LinkerSetKey = t.Name
	f.add(t)
	return t.SelfType
}

// Pointer adds an 8-byte pointer to id.
func (f *Fixture) Pointer(to string) string {
	return f.derived(&abi.Type{Kind: abi.KindPointer, ReferencedType: to, Size: 8, Alignment: 8})
}

// Const adds a const-qualified id.
func (f *Fixture) Const(of string) string {
	t, _ := f.Mod.LookupType(of)
	var size uint64
	if t != nil {
		size = t.Size
	}
	return f.derived(&abi.Type{Kind: abi.KindQualified, ReferencedType: of, IsConst: true, Size: size})
}

// Field is a shorthand for record members; offsets are in bytes.
func Field(name, typ string, offset uint64) abi.Field {
	return abi.Field{Name: name, Type: typ, Offset: offset, Access: abi.AccessPublic}
}

// Record adds a struct named and keyed key and returns its id.
func (f *Fixture) Record(key string, size uint64, fields ...abi.Field) string {
	f.t.Helper()
	id := f.Declare(key)
	f.Define(id, key, size, fields...)
	return id
}

// Declare reserves an id for a record displayed as name, so that pointers
// to it can be created before Define. Use it for self-referential records.
func (f *Fixture) Declare(name string) string {
	id := f.Mod.NewTypeID()
	f.pending[id] = name
	return id
}

// Define inserts a record reserved by Declare under key.
func (f *Fixture) Define(id, key string, size uint64, fields ...abi.Field) *abi.Type {
	f.t.Helper()
	name := key
	if n, ok := f.pending[id]; ok {
		name = n
		delete(f.pending, id)
	}
	t := &abi.Type{
		Kind: abi.KindRecord, SelfType: id, ReferencedType: id, Name: name, LinkerSetKey: key,
		Size: size, Alignment: 4, Record: &abi.RecordInfo{Kind: abi.RecordStruct, Fields: fields},
	}
	f.add(t)
	return t
}

// Enum adds an int-based enum under key.
func (f *Fixture) Enum(key string, values ...abi.Enumerator) string {
	f.t.Helper()
	under := f.Int()
	id := f.Mod.NewTypeID()
	f.add(&abi.Type{
		Kind: abi.KindEnum, SelfType: id, ReferencedType: id, Name: key, LinkerSetKey: key,
		Size: 4, Alignment: 4, Enum: &abi.EnumInfo{UnderlyingType: under, Enumerators: values},
	})
	return id
}

// Function adds a function with the given return and parameter types.
func (f *Fixture) Function(key, ret string, params ...string) *abi.Function {
	f.t.Helper()
	fn := &abi.Function{Name: key, LinkerSetKey: key, ReturnType: ret}
	for _, p := range params {
		fn.Params = append(fn.Params, abi.Param{Type: p})
	}
	f.add(fn)
	return fn
}

// Var adds a global variable.
func (f *Fixture) Var(key, typ string) *abi.GlobalVar {
	f.t.Helper()
	v := &abi.GlobalVar{Name: key, LinkerSetKey: key, Type: typ}
	f.add(v)
	return v
}

// ElfFunc adds a global function symbol.
func (f *Fixture) ElfFunc(name string) {
	f.t.Helper()
	f.add(&abi.ElfSymbol{Name: name, Kind: abi.SymbolFunction, Binding: abi.BindingGlobal})
}

// ElfObject adds a global object symbol.
func (f *Fixture) ElfObject(name string) {
	f.t.Helper()
	f.add(&abi.ElfSymbol{Name: name, Kind: abi.SymbolObject, Binding: abi.BindingGlobal})
}

// WeakFunc adds a weak function symbol.
func (f *Fixture) WeakFunc(name string) {
	f.t.Helper()
	f.add(&abi.ElfSymbol{Name: name, Kind: abi.SymbolFunction, Binding: abi.BindingWeak})
}

// Sample builds a small library exercising every type kind: a
// self-referential record with a vtable and a base, an enum, an array,
// a qualified type and a function type.
func Sample(t testing.TB) *abi.Module {
	t.Helper()
	f := NewFixture(t, "libsample")
	i := f.Int()
	ch := f.Builtin("char")
	ccp := f.Pointer(f.Const(ch))

	base := f.Record("_ZTI4Base", 8, Field("vptr", f.Pointer(f.Builtin("void")), 0))
	node := f.Declare("Node")
	next := f.Pointer(node)
	arr := f.derived(&abi.Type{Kind: abi.KindArray, ReferencedType: i, Length: 4, Size: 16, Alignment: 4})
	fnType := f.derived(&abi.Type{
		Kind: abi.KindFunction, Name: "int (Node *)", Func: &abi.FuncSig{ReturnType: i, Params: []abi.Param{{Type: next}}},
	})
	rec := f.Define(node, "_ZTI4Node", 40,
		Field("next", next, 8), Field("vals", arr, 16), Field("cb", f.Pointer(fnType), 32))
	rec.Record.Bases = []abi.BaseSpecifier{{Type: base, Access: abi.AccessPublic}}
	rec.Record.VTable = []abi.VTableComponent{
		{Kind: abi.VTableOffsetToTop},
		{Kind: abi.VTableRTTI, MangledName: "_ZTI4Node"},
		{Kind: abi.VTableFunctionPointer, MangledName: "_ZN4Node3runEv"},
		{Kind: abi.VTableFunctionPointer, MangledName: "_ZN4Node4stopEv", IsPure: true},
	}
	color := f.Enum("_ZTI5Color", abi.Enumerator{Name: "Red"}, abi.Enumerator{Name: "Max", Value: -1, Unsigned: true})

	f.Function("_Z4pushP4Node", i, next)
	f.Function("_Z5paint5ColorPKc", f.Builtin("void"), color, ccp)
	f.Var("g_count", i)
	f.ElfFunc("_Z4pushP4Node")
	f.ElfFunc("_Z5paint5ColorPKc")
	f.ElfObject("g_count")
	return f.Mod
}
