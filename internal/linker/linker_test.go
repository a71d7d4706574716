package linker

import (
	"errors"
	"testing"

	"abicheck/internal/abi"
	"abicheck/internal/diag"
	"abicheck/internal/symbols"
	"abicheck/internal/testkit"
)

func fooUnit(t *testing.T, size uint64, fn string) *abi.Module {
	t.Helper()
	f := testkit.NewFixture(t, "unit")
	i := f.Int()
	fields := []abi.Field{testkit.Field("a", i, 0)}
	if size > 4 {
		fields = append(fields, testkit.Field("b", i, 4))
	}
	foo := f.Record("_ZTI3Foo", size, fields...)
	f.Function(fn, f.Builtin("void"), f.Pointer(foo))
	return f.Mod
}

func checkInvariants(t *testing.T, m *abi.Module) {
	t.Helper()
	if err := testkit.CheckModuleInvariants(m); err != nil {
		t.Fatalf("invariants: %v", err)
	}
}

func countCode(bag *diag.Bag, code diag.Code) int {
	n := 0
	for _, d := range bag.Items() {
		if d.Code == code {
			n++
		}
	}
	return n
}

func TestAddDeduplicatesIdenticalRecords(t *testing.T) {
	l := New(Options{LibName: "libfoo", Arch: "x86_64"})
	for _, fn := range []string{"_Z3useP3Foo", "_Z4use2P3Foo"} {
		if err := l.Add(fooUnit(t, 4, fn)); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	mod := l.Module()
	if ids := mod.TypesByKey("_ZTI3Foo"); len(ids) != 1 {
		t.Fatalf("ODR list = %v, want one definition", ids)
	}
	f1, _ := mod.Function("_Z3useP3Foo")
	f2, _ := mod.Function("_Z4use2P3Foo")
	if f1.Params[0].Type != f2.Params[0].Type {
		t.Fatalf("pointer types not collapsed: %s vs %s", f1.Params[0].Type, f2.Params[0].Type)
	}
	if countCode(l.Diagnostics(), diag.LinkODRViolation) != 0 {
		t.Fatalf("unexpected ODR report: %s", diag.FormatShort(l.Diagnostics().Items(), false))
	}
	checkInvariants(t, mod)
}

func TestAddKeepsDifferingDefinitions(t *testing.T) {
	l := New(Options{LibName: "libfoo"})
	if err := l.Add(fooUnit(t, 4, "_Z3useP3Foo")); err != nil {
		t.Fatal(err)
	}
	if err := l.Add(fooUnit(t, 8, "_Z4use2P3Foo")); err != nil {
		t.Fatal(err)
	}
	mod := l.Module()
	ids := mod.TypesByKey("_ZTI3Foo")
	if len(ids) != 2 {
		t.Fatalf("ODR list = %v, want two definitions", ids)
	}
	f2, _ := mod.Function("_Z4use2P3Foo")
	ptr, _ := mod.LookupType(f2.Params[0].Type)
	if ptr.ReferencedType != ids[1] {
		t.Fatalf("second unit points at %s, want %s", ptr.ReferencedType, ids[1])
	}
	if countCode(l.Diagnostics(), diag.LinkODRViolation) != 1 {
		t.Fatalf("ODR violation not reported")
	}
	checkInvariants(t, mod)
}

func TestAddWarnsOnRedeclarationWithChangedRecord(t *testing.T) {
	l := New(Options{LibName: "libfoo"})
	for _, size := range []uint64{4, 8} {
		if err := l.Add(fooUnit(t, size, "_Z3useP3Foo")); err != nil {
			t.Fatal(err)
		}
	}
	if n := countCode(l.Diagnostics(), diag.LinkDuplicateDecl); n != 1 {
		t.Fatalf("duplicate warnings = %d: %s", n, diag.FormatShort(l.Diagnostics().Items(), false))
	}
	use, _ := l.Module().Function("_Z3useP3Foo")
	ptr, _ := l.Module().LookupType(use.Params[0].Type)
	if ids := l.Module().TypesByKey("_ZTI3Foo"); ptr.ReferencedType != ids[0] {
		t.Fatalf("first declaration not kept: points at %s, ODR list %v", ptr.ReferencedType, ids)
	}

	same := New(Options{LibName: "libfoo"})
	for range 2 {
		if err := same.Add(fooUnit(t, 4, "_Z3useP3Foo")); err != nil {
			t.Fatal(err)
		}
	}
	if n := countCode(same.Diagnostics(), diag.LinkDuplicateDecl); n != 0 {
		t.Fatalf("identical redeclaration warned %d times", n)
	}
}

func TestAddSelfReferentialUnitTwice(t *testing.T) {
	unit := testkit.Sample(t)
	l := New(Options{LibName: "libsample", Arch: "x86_64"})
	for range 2 {
		if err := l.Add(unit); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	if got, want := l.Module().Stats(), unit.Stats(); got != want {
		t.Fatalf("stats = %+v, want %+v", got, want)
	}
	out, _, err := l.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if got, want := out.Stats(), unit.Stats(); got != want {
		t.Fatalf("finished stats = %+v, want %+v", got, want)
	}
	checkInvariants(t, out)
}

func TestAddCompletesOpaqueDeclaration(t *testing.T) {
	opaque := func() *abi.Module {
		f := testkit.NewFixture(t, "decl")
		id := f.Record("_ZTI3Foo", 0)
		rec, _ := f.Mod.LookupType(id)
		rec.Record.Opaque = true
		f.Function("_Z3getv", f.Pointer(id))
		return f.Mod
	}
	for _, order := range []string{"declaration first", "definition first"} {
		t.Run(order, func(t *testing.T) {
			l := New(Options{})
			units := []*abi.Module{opaque(), fooUnit(t, 8, "_Z3useP3Foo")}
			if order == "definition first" {
				units[0], units[1] = units[1], units[0]
			}
			for _, u := range units {
				if err := l.Add(u); err != nil {
					t.Fatal(err)
				}
			}
			ids := l.Module().TypesByKey("_ZTI3Foo")
			if len(ids) != 1 {
				t.Fatalf("ODR list = %v", ids)
			}
			rec, _ := l.Module().LookupType(ids[0])
			if rec.Record.Opaque || rec.Size != 8 || len(rec.Record.Fields) != 2 {
				t.Fatalf("record = %+v %+v", rec, rec.Record)
			}
			get, _ := l.Module().Function("_Z3getv")
			use, _ := l.Module().Function("_Z3useP3Foo")
			if get.ReturnType != use.Params[0].Type {
				t.Fatalf("pointers to Foo differ: %s vs %s", get.ReturnType, use.Params[0].Type)
			}
		})
	}
}

func TestFinishFiltersExports(t *testing.T) {
	f := testkit.NewFixture(t, "unit")
	source := func(id, file string) string {
		typ, _ := f.Mod.LookupType(id)
		typ.SourceFile = file
		return id
	}
	pub := source(f.Record("_ZTI3Pub", 4, testkit.Field("x", f.Int(), 0)), "include/pub.h")
	priv := source(f.Record("_ZTI4Priv", 4), "src/impl.h")
	source(f.Record("_ZTI6Hidden", 4), "src/impl.h")
	source(f.Record("_ZTI6Shared", 4), "include/shared.h")
	f.Function("_Z3pubv", f.Pointer(pub)).SourceFile = "include/pub.h"
	f.Function("_Z4privv", f.Pointer(priv)).SourceFile = "src/impl.h"
	f.Var("g_pub", f.Int()).SourceFile = "include/pub.h"

	set := symbols.NewSet()
	for _, name := range []string{"_Z3pubv", "_Z4privv", "_Z7missingv"} {
		set.Add(symbols.Symbol{Name: name})
	}
	set.Add(symbols.Symbol{Name: "g_pub", Kind: abi.SymbolObject})

	l := New(Options{LibName: "libfoo", ExportedDirs: []string{"include/"}, Symbols: set})
	if err := l.Add(f.Mod); err != nil {
		t.Fatal(err)
	}
	out, bag, err := l.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if _, ok := out.Function("_Z3pubv"); !ok {
		t.Fatalf("exported function dropped")
	}
	if _, ok := out.Function("_Z4privv"); ok {
		t.Fatalf("function outside exported headers kept")
	}
	if _, ok := out.GlobalVar("g_pub"); !ok {
		t.Fatalf("exported variable dropped")
	}
	for key, want := range map[string]bool{"_ZTI3Pub": true, "_ZTI6Shared": true, "_ZTI4Priv": false, "_ZTI6Hidden": false} {
		if got := len(out.TypesByKey(key)) > 0; got != want {
			t.Errorf("%s kept = %v, want %v", key, got, want)
		}
	}
	if len(out.ElfFunctions()) != 3 || len(out.ElfObjects()) != 1 {
		t.Fatalf("elf tables = %d functions, %d objects", len(out.ElfFunctions()), len(out.ElfObjects()))
	}
	if countCode(bag, diag.LinkSymbolNoDecl) != 1 {
		t.Fatalf("missing declaration not reported: %s", diag.FormatShort(bag.Items(), false))
	}
	checkInvariants(t, out)
}

func TestFinishSymbolsOnlyKeepsReachableTypes(t *testing.T) {
	f := testkit.NewFixture(t, "unit")
	used := f.Record("_ZTI4Used", 4)
	f.Record("_ZTI6Unused", 4)
	f.Function("_Z3usev", f.Builtin("void"), f.Pointer(used))
	f.Function("_Z6hiddenv", f.Builtin("void"))

	set := symbols.NewSet()
	set.Add(symbols.Symbol{Name: "_Z3usev"})
	l := New(Options{Symbols: set})
	if err := l.Add(f.Mod); err != nil {
		t.Fatal(err)
	}
	out, _, err := l.Finish()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := out.Function("_Z6hiddenv"); ok {
		t.Fatalf("unexported function kept")
	}
	if len(out.TypesByKey("_ZTI4Used")) != 1 || len(out.TypesByKey("_ZTI6Unused")) != 0 {
		t.Fatalf("types = %+v", out.Types())
	}
}

func TestAddRejectsDanglingReference(t *testing.T) {
	f := testkit.NewFixture(t, "broken")
	f.Function("_Z1fv", "type-404")
	err := New(Options{}).Add(f.Mod)
	if !errors.Is(err, abi.ErrDanglingReference) {
		t.Fatalf("err = %v, want ErrDanglingReference", err)
	}
}

func TestExported(t *testing.T) {
	l := New(Options{ExportedDirs: []string{"include", " ", "/abs/dir/"}})
	cases := map[string]bool{
		"":                   true,
		"include/a.h":        true,
		"include/sub/b.h":    true,
		"include":            true,
		"includes/a.h":       false,
		"src/a.h":            false,
		"/abs/dir/x.h":       true,
		"/abs/dir2/x.h":      false,
		"include/../src/x.h": false,
	}
	for file, want := range cases {
		if got := l.Exported(file); got != want {
			t.Errorf("Exported(%q) = %v, want %v", file, got, want)
		}
	}
}
