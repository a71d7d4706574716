package abi

import (
	"errors"
	"testing"
)

func TestNewTypeIDIsMonotonic(t *testing.T) {
	m := NewModule("libfoo", "arm64")
	a := m.NewTypeID()
	b := m.NewTypeID()
	if a == b {
		t.Fatalf("ids must differ, got %q twice", a)
	}
	if err := m.AddType(&Type{Kind: KindPointer, SelfType: "type-40", ReferencedType: a}); err != nil {
		t.Fatalf("AddType: %v", err)
	}
	if got := m.NewTypeID(); got != "type-41" {
		t.Fatalf("counter must resume above inserted ids, got %q", got)
	}
}

func TestAddTypeRejectsDuplicates(t *testing.T) {
	m := NewModule("", "")
	ty := &Type{Kind: KindRecord, SelfType: "type-1", LinkerSetKey: "_ZTI3Foo", Record: &RecordInfo{}}
	if err := m.AddType(ty); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	err := m.AddType(ty.Clone())
	if !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestODRListKeepsEverySelfType(t *testing.T) {
	m := NewModule("", "")
	for _, id := range []string{"type-1", "type-2"} {
		if err := m.AddType(&Type{Kind: KindEnum, SelfType: id, LinkerSetKey: "_ZTI1E", Enum: &EnumInfo{}}); err != nil {
			t.Fatalf("AddType(%s): %v", id, err)
		}
	}
	if got := m.TypesByKey("_ZTI1E"); len(got) != 2 {
		t.Fatalf("ODR list = %v, want two entries", got)
	}
}

func TestValidateReportsDanglingReference(t *testing.T) {
	m := NewModule("", "")
	if err := m.AddType(&Type{Kind: KindPointer, SelfType: "type-1", ReferencedType: "type-9"}); err != nil {
		t.Fatalf("AddType: %v", err)
	}
	if err := m.Validate(); !errors.Is(err, ErrDanglingReference) {
		t.Fatalf("expected dangling reference, got %v", err)
	}
}

func TestValidateAcceptsSelfReferentialRecord(t *testing.T) {
	m := NewModule("", "")
	rec := &Type{
		Kind: KindRecord, SelfType: "type-1", ReferencedType: "type-1", LinkerSetKey: "_ZTI4Node", Name: "Node",
		Record: &RecordInfo{Fields: []Field{{Name: "next", Type: "type-2"}}},
	}
	ptr := &Type{Kind: KindPointer, SelfType: "type-2", ReferencedType: "type-1", Name: "Node *", LinkerSetKey: "Node *"}
	for _, ty := range []*Type{rec, ptr} {
		if err := m.AddType(ty); err != nil {
			t.Fatalf("AddType: %v", err)
		}
	}
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejectsDerivedCycle(t *testing.T) {
	tests := []struct {
		name  string
		types []*Type
	}{
		{"self pointer", []*Type{
			{Kind: KindPointer, SelfType: "type-1", ReferencedType: "type-1", LinkerSetKey: "p"},
		}},
		{"pointer and qualified", []*Type{
			{Kind: KindPointer, SelfType: "type-1", ReferencedType: "type-2", LinkerSetKey: "p"},
			{Kind: KindQualified, SelfType: "type-2", ReferencedType: "type-1", LinkerSetKey: "const p", IsConst: true},
		}},
		{"function returning itself", []*Type{
			{Kind: KindFunction, SelfType: "type-1", LinkerSetKey: "fn", Func: &FuncSig{ReturnType: "type-2"}},
			{Kind: KindPointer, SelfType: "type-2", ReferencedType: "type-1", LinkerSetKey: "fn *"},
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := NewModule("", "")
			for _, ty := range tc.types {
				if err := m.AddType(ty); err != nil {
					t.Fatalf("AddType: %v", err)
				}
			}
			if err := m.Validate(); !errors.Is(err, ErrDerivedCycle) {
				t.Fatalf("Validate = %v, want ErrDerivedCycle", err)
			}
		})
	}
}

func TestBuiltinKeysAreStableAcrossDataModels(t *testing.T) {
	lp, ok := LookupBuiltin(LP64, "long")
	if !ok {
		t.Fatalf("long missing from LP64 registry")
	}
	ilp, ok := LookupBuiltin(ILP32, "long int")
	if !ok {
		t.Fatalf("long int alias missing from ILP32 registry")
	}
	if lp.LinkerSetKey != ilp.LinkerSetKey || lp.SelfType != "_ZTIl" {
		t.Fatalf("keys differ: %q vs %q", lp.LinkerSetKey, ilp.LinkerSetKey)
	}
	if lp.Size != 8 || ilp.Size != 4 {
		t.Fatalf("sizes = %d/%d, want 8/4", lp.Size, ilp.Size)
	}
	lp.Size = 99
	again, _ := LookupBuiltin(LP64, "long")
	if again.Size != 8 {
		t.Fatalf("registry entry was mutated through a lookup copy")
	}
}

func TestStructuralKeyCollapsesIdenticalShapes(t *testing.T) {
	a := &Type{Kind: KindPointer, SelfType: "type-1", ReferencedType: "_ZTIi", Size: 8}
	b := &Type{Kind: KindPointer, SelfType: "type-7", ReferencedType: "_ZTIi", Size: 8}
	c := &Type{Kind: KindQualified, SelfType: "type-8", ReferencedType: "_ZTIi", IsConst: true}
	if StructuralKey(a) != StructuralKey(b) {
		t.Fatalf("identical pointers must share a key")
	}
	if StructuralKey(a) == StructuralKey(c) {
		t.Fatalf("pointer and qualified type must not share a key")
	}
	rec := &Type{Kind: KindRecord, SelfType: "type-2", Record: &RecordInfo{}}
	if StructuralKey(rec) != "" {
		t.Fatalf("records have no structural key")
	}
}

func TestTypesAreSortedNumerically(t *testing.T) {
	m := NewModule("", "")
	for _, id := range []string{"type-10", "type-2", "_ZTIi"} {
		ty := &Type{Kind: KindPointer, SelfType: id, ReferencedType: "_ZTIi"}
		if id == "_ZTIi" {
			ty = &Type{Kind: KindBuiltin, SelfType: id, LinkerSetKey: id}
		}
		if err := m.AddType(ty); err != nil {
			t.Fatalf("AddType(%s): %v", id, err)
		}
	}
	got := m.Types()
	want := []string{"type-2", "type-10", "_ZTIi"}
	for i, ty := range got {
		if ty.SelfType != want[i] {
			t.Fatalf("order[%d] = %s, want %s", i, ty.SelfType, want[i])
		}
	}
}

func TestEqualIgnoresODRInsertionOrder(t *testing.T) {
	build := func(order []string) *Module {
		m := NewModule("lib", "x86_64")
		for _, id := range order {
			_ = m.AddType(&Type{Kind: KindEnum, SelfType: id, LinkerSetKey: "_ZTI1E", Enum: &EnumInfo{UnderlyingType: id}})
		}
		return m
	}
	a := build([]string{"type-1", "type-2"})
	b := build([]string{"type-2", "type-1"})
	if !a.Equal(b) {
		t.Fatalf("modules with the same entities must be equal")
	}
	b.LibName = "other"
	if a.Equal(b) {
		t.Fatalf("lib name is part of equality")
	}
}
