package build

import (
	"context"
	"fmt"
	"testing"

	"abicheck/internal/abi"
	"abicheck/internal/decl"
	"abicheck/internal/diag"
)

func mustBuild(t *testing.T, u *decl.Unit) (*abi.Module, *diag.Bag) {
	t.Helper()
	mod, bag := BuildUnit(u, Options{LibName: "libfoo", Arch: "x86_64"})
	if err := mod.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return mod, bag
}

func hasCode(bag *diag.Bag, code diag.Code) bool {
	for _, d := range bag.Items() {
		if d.Code == code {
			return true
		}
	}
	return false
}

func TestSameFrontendIDYieldsOneNode(t *testing.T) {
	u := &decl.Unit{
		Types: []decl.Type{
			{ID: 1, Kind: decl.TypeBuiltin, Name: "int"},
			{ID: 2, Kind: decl.TypePointer, Pointee: 1},
			{ID: 3, Kind: decl.TypePointer, Pointee: 1},
		},
		Decls: []decl.Decl{
			{Kind: decl.DeclFunction, Name: "f", Mangled: "_Z1fPi", Return: 1, Params: []decl.Param{{Type: 2}}},
			{Kind: decl.DeclFunction, Name: "g", Mangled: "_Z1gPi", Return: 1, Params: []decl.Param{{Type: 3}, {Type: 2}}},
		},
	}
	mod, _ := mustBuild(t, u)

	f, ok := mod.Function("_Z1fPi")
	if !ok {
		t.Fatalf("f missing")
	}
	g, ok := mod.Function("_Z1gPi")
	if !ok {
		t.Fatalf("g missing")
	}
	if f.Params[0].Type != g.Params[0].Type || g.Params[0].Type != g.Params[1].Type {
		t.Fatalf("pointer types not collapsed: %v %v", f.Params, g.Params)
	}
	if f.ReturnType != abi.BuiltinKey("i") {
		t.Fatalf("return type = %q", f.ReturnType)
	}
	ptr, _ := mod.LookupType(f.Params[0].Type)
	if ptr.Name != "int *" || ptr.Size != 8 {
		t.Fatalf("pointer = %+v", ptr)
	}
	if got := mod.Stats().Types; got != 2 {
		t.Fatalf("types = %d, want 2", got)
	}
}

func TestSelfReferentialRecord(t *testing.T) {
	u := &decl.Unit{
		Types: []decl.Type{
			{ID: 1, Kind: decl.TypeRecord, Name: "Node", Mangled: "_ZTI4Node", Size: 8, Align: 8, Complete: true,
				Fields: []decl.Field{{Name: "next", Type: 2}}},
			{ID: 2, Kind: decl.TypePointer, Pointee: 1},
		},
		Decls: []decl.Decl{{Kind: decl.DeclType, Type: 1}},
	}
	mod, bag := mustBuild(t, u)
	if bag.HasWarnings() {
		t.Fatalf("unexpected diagnostics: %s", diag.FormatShort(bag.Items(), false))
	}
	ids := mod.TypesByKey("_ZTI4Node")
	if len(ids) != 1 {
		t.Fatalf("odr list = %v", ids)
	}
	rec, _ := mod.LookupType(ids[0])
	if rec.Record == nil || len(rec.Record.Fields) != 1 {
		t.Fatalf("record = %+v", rec)
	}
	ptr, _ := mod.LookupType(rec.Record.Fields[0].Type)
	if ptr.Kind != abi.KindPointer || ptr.ReferencedType != rec.SelfType {
		t.Fatalf("field type = %+v", ptr)
	}
	if ptr.Name != "Node *" {
		t.Fatalf("pointer name = %q", ptr.Name)
	}
}

func TestUnsupportedTypeSkipsDeclaration(t *testing.T) {
	u := &decl.Unit{
		Types: []decl.Type{
			{ID: 1, Kind: decl.TypeBuiltin, Name: "int"},
			{ID: 2, Kind: "vector", Name: "__m128"},
		},
		Decls: []decl.Decl{
			{Kind: decl.DeclFunction, Name: "simd", Mangled: "_Z4simdDv4_f", Return: 1, Params: []decl.Param{{Type: 2}}},
			{Kind: decl.DeclFunction, Name: "plain", Mangled: "_Z5plaini", Return: 1, Params: []decl.Param{{Type: 1}}},
		},
	}
	mod, bag := mustBuild(t, u)
	if _, ok := mod.Function("_Z4simdDv4_f"); ok {
		t.Fatalf("function with unsupported parameter was emitted")
	}
	if _, ok := mod.Function("_Z5plaini"); !ok {
		t.Fatalf("plain function missing")
	}
	if !hasCode(bag, diag.BuildUnsupportedType) || !hasCode(bag, diag.BuildUnsupportedDecl) {
		t.Fatalf("diagnostics: %s", diag.FormatShort(bag.Items(), false))
	}
	if bag.HasErrors() {
		t.Fatalf("skips must not be errors")
	}
}

func TestIncompleteRecordUsesDefinition(t *testing.T) {
	u := &decl.Unit{
		Types: []decl.Type{
			{ID: 1, Kind: decl.TypeRecord, Name: "Foo", Mangled: "_ZTI3Foo"},
			{ID: 2, Kind: decl.TypePointer, Pointee: 1},
			{ID: 3, Kind: decl.TypeBuiltin, Name: "void"},
			{ID: 4, Kind: decl.TypeBuiltin, Name: "int"},
			{ID: 5, Kind: decl.TypeRecord, Name: "Foo", Mangled: "_ZTI3Foo", Size: 4, Align: 4, Complete: true,
				Fields: []decl.Field{{Name: "x", Type: 4}}},
		},
		Decls: []decl.Decl{
			{Kind: decl.DeclFunction, Name: "use", Mangled: "_Z3useP3Foo", Return: 3, Params: []decl.Param{{Type: 2}}},
		},
	}
	mod, _ := mustBuild(t, u)
	ids := mod.TypesByKey("_ZTI3Foo")
	if len(ids) != 1 {
		t.Fatalf("odr list = %v", ids)
	}
	rec, _ := mod.LookupType(ids[0])
	if rec.Record.Opaque || rec.Size != 4 {
		t.Fatalf("record = %+v", rec.Record)
	}
}

func TestOpaqueRecordWithoutDefinition(t *testing.T) {
	u := &decl.Unit{
		Types: []decl.Type{
			{ID: 1, Kind: decl.TypeRecord, Name: "Handle", Mangled: "_ZTI6Handle"},
			{ID: 2, Kind: decl.TypePointer, Pointee: 1},
		},
		Decls: []decl.Decl{{Kind: decl.DeclVar, Name: "h", Mangled: "h", Type: 2}},
	}
	mod, _ := mustBuild(t, u)
	rec, _ := mod.LookupType(mod.TypesByKey("_ZTI6Handle")[0])
	if !rec.Record.Opaque {
		t.Fatalf("expected opaque record")
	}
}

func TestTypedefResolvesToCanonicalType(t *testing.T) {
	u := &decl.Unit{
		Types: []decl.Type{
			{ID: 1, Kind: decl.TypeBuiltin, Name: "unsigned long int"},
			{ID: 2, Kind: decl.TypeTypedef, Name: "size_t", Underlying: 1},
			{ID: 3, Kind: decl.TypeTypedef, Name: "loop", Underlying: 3},
		},
		Decls: []decl.Decl{
			{Kind: decl.DeclVar, Name: "n", Mangled: "n", Type: 2},
			{Kind: decl.DeclVar, Name: "bad", Mangled: "bad", Type: 3},
		},
	}
	mod, bag := mustBuild(t, u)
	v, ok := mod.GlobalVar("n")
	if !ok || v.Type != abi.BuiltinKey("m") {
		t.Fatalf("n = %+v", v)
	}
	if _, ok := mod.GlobalVar("bad"); ok {
		t.Fatalf("cyclic typedef produced a variable")
	}
	if !hasCode(bag, diag.BuildTypeCycle) {
		t.Fatalf("diagnostics: %s", diag.FormatShort(bag.Items(), false))
	}
}

func TestTypeCyclesAreSkipped(t *testing.T) {
	tests := []struct{ name, unit string }{
		{"pointer pair", `{"types":[{"id":1,"kind":"pointer","pointee":2},{"id":2,"kind":"pointer","pointee":1}],
"decls":[{"kind":"var","name":"v","mangled":"v","type":1}]}`},
		{"enum over itself", `{"types":[{"id":1,"kind":"enum","name":"E","mangled":"_ZTI1E","underlying":1}],
"decls":[{"kind":"var","name":"v","mangled":"v","type":1}]}`},
		{"function returning its own pointer", `{"types":[{"id":1,"kind":"function_proto","return":2},{"id":2,"kind":"pointer","pointee":1}],
"decls":[{"kind":"var","name":"v","mangled":"v","type":2}]}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			u, err := decl.DecodeBytes([]byte(tc.unit))
			if err != nil {
				t.Fatalf("DecodeBytes: %v", err)
			}
			mod, bag := mustBuild(t, u)
			if _, ok := mod.GlobalVar("v"); ok {
				t.Fatalf("variable of cyclic type was kept")
			}
			if !hasCode(bag, diag.BuildTypeCycle) {
				t.Fatalf("diagnostics: %s", diag.FormatShort(bag.Items(), false))
			}
		})
	}
}

func TestPointerCycleThroughRecordIsKept(t *testing.T) {
	u := &decl.Unit{
		Types: []decl.Type{
			{ID: 1, Kind: decl.TypePointer, Pointee: 2},
			{ID: 2, Kind: decl.TypeRecord, Name: "Node", Mangled: "_ZTI4Node", Size: 8, Align: 8, Complete: true,
				Fields: []decl.Field{{Name: "next", Type: 1}}},
		},
		Decls: []decl.Decl{{Kind: decl.DeclVar, Name: "head", Mangled: "head", Type: 1}},
	}
	mod, bag := mustBuild(t, u)
	if _, ok := mod.GlobalVar("head"); !ok {
		t.Fatalf("head missing: %s", diag.FormatShort(bag.Items(), false))
	}
	if hasCode(bag, diag.BuildTypeCycle) {
		t.Fatalf("record cycle reported: %s", diag.FormatShort(bag.Items(), false))
	}
}

func TestBitfieldOffsets(t *testing.T) {
	u := &decl.Unit{
		Types: []decl.Type{
			{ID: 1, Kind: decl.TypeBuiltin, Name: "unsigned int"},
			{ID: 2, Kind: decl.TypeRecord, Name: "Flags", Mangled: "_ZTI5Flags", Size: 4, Align: 4, Complete: true,
				Fields: []decl.Field{
					{Name: "a", Type: 1, OffsetBits: 0, BitWidth: 3},
					{Name: "b", Type: 1, OffsetBits: 11, BitWidth: 5},
				}},
		},
		Decls: []decl.Decl{{Kind: decl.DeclType, Type: 2}},
	}
	mod, _ := mustBuild(t, u)
	rec, _ := mod.LookupType(mod.TypesByKey("_ZTI5Flags")[0])
	b := rec.Record.Fields[1]
	if b.Offset != 1 || b.BitOffset != 3 || b.BitWidth != 5 || !b.IsBitField() {
		t.Fatalf("field b = %+v", b)
	}
}

func TestEnumValues(t *testing.T) {
	u := &decl.Unit{
		Types: []decl.Type{
			{ID: 1, Kind: decl.TypeBuiltin, Name: "unsigned long long"},
			{ID: 2, Kind: decl.TypeEnum, Name: "Big", Mangled: "_ZTI3Big", Underlying: 1,
				Enumerators: []decl.Enumerator{{Name: "Lo", Value: "-1"}, {Name: "Hi", Value: "18446744073709551615"}}},
			{ID: 3, Kind: decl.TypeEnum, Name: "Huge", Mangled: "_ZTI4Huge", Underlying: 1,
				Enumerators: []decl.Enumerator{{Name: "X", Value: "99999999999999999999"}}},
		},
		Decls: []decl.Decl{{Kind: decl.DeclType, Type: 2}, {Kind: decl.DeclType, Type: 3}},
	}
	mod, bag := mustBuild(t, u)
	en, _ := mod.LookupType(mod.TypesByKey("_ZTI3Big")[0])
	if en.Size != 8 || len(en.Enum.Enumerators) != 2 {
		t.Fatalf("enum = %+v", en)
	}
	if e := en.Enum.Enumerators[0]; e.Value != -1 || e.Unsigned {
		t.Fatalf("Lo = %+v", e)
	}
	if e := en.Enum.Enumerators[1]; !e.Unsigned || uint64(e.Value) != 18446744073709551615 {
		t.Fatalf("Hi = %+v", e)
	}
	if len(mod.TypesByKey("_ZTI4Huge")) != 0 || !hasCode(bag, diag.BuildEnumeratorOverflow) {
		t.Fatalf("overflowing enum should be skipped")
	}
}

func TestUnitsKeepsOrder(t *testing.T) {
	units := make([]*decl.Unit, 0, 6)
	for i := range 6 {
		units = append(units, &decl.Unit{
			Source: fmt.Sprintf("u%d.cpp", i),
			Types:  []decl.Type{{ID: 1, Kind: decl.TypeBuiltin, Name: "int"}},
			Decls:  []decl.Decl{{Kind: decl.DeclVar, Name: fmt.Sprintf("v%d", i), Type: 1}},
		})
	}
	results, err := Units(context.Background(), units, Options{}, 3)
	if err != nil {
		t.Fatalf("Units: %v", err)
	}
	for i, r := range results {
		if r.Source != units[i].Source {
			t.Fatalf("result %d source = %q", i, r.Source)
		}
		if _, ok := r.Module.GlobalVar(fmt.Sprintf("v%d", i)); !ok {
			t.Fatalf("result %d lacks its variable", i)
		}
	}
}

func TestUnitsHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	units := []*decl.Unit{{Source: "a"}, {Source: "b"}}
	if _, err := Units(ctx, units, Options{}, 1); err == nil {
		t.Fatalf("expected context error")
	}
}
