package symbols

import (
	"debug/elf"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"abicheck/internal/abi"
)

func TestReadList(t *testing.T) {
	in := `# exported by libfoo
_Z3foov
foo_count OBJECT
foo_hook  weak FUNC  LIBFOO_1.0

_Z3foov GLOBAL # repeated
`
	set, err := ReadList(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadList: %v", err)
	}
	if set.Len() != 3 {
		t.Fatalf("len = %d, want 3", set.Len())
	}
	hook, ok := set.Lookup("foo_hook")
	if !ok || hook.Binding != abi.BindingWeak || hook.Kind != abi.SymbolFunction || hook.Version != "LIBFOO_1.0" {
		t.Fatalf("foo_hook = %+v", hook)
	}
	objs := set.Objects()
	if len(objs) != 1 || objs[0].Name != "foo_count" {
		t.Fatalf("objects = %+v", objs)
	}
	fns := set.Functions()
	if len(fns) != 2 || fns[0].Name != "_Z3foov" || fns[1].Name != "foo_hook" {
		t.Fatalf("functions = %+v", fns)
	}

	if _, err := ReadList(strings.NewReader("a V1 V2\n")); err == nil {
		t.Fatalf("two versions accepted")
	}
}

func TestReadVersionScript(t *testing.T) {
	script := `LIBFOO_1.0 {
  global:
    foo;
    foo_count; # var
    foo_hook;  # weak
    foo_*;
    extern "C++" {
      "foo::Bar::*";
    };
  local:
    *;
};

LIBFOO_2.0 {
  global:
    foo2;
    foo2_tls; foo2_state; # var introduced=30
} LIBFOO_1.0;

LIBFOO_PRIVATE {
    foo_private;
};
`
	set, err := ReadVersionScript(strings.NewReader(script), "*_PRIVATE")
	if err != nil {
		t.Fatalf("ReadVersionScript: %v", err)
	}
	want := []string{"foo", "foo2", "foo_hook"}
	var got []string
	for _, s := range set.Functions() {
		got = append(got, s.Name)
	}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("functions = %v, want %v", got, want)
	}
	if set.Has("foo_private") {
		t.Fatalf("excluded version leaked")
	}
	if s, _ := set.Lookup("foo_hook"); s.Binding != abi.BindingWeak {
		t.Fatalf("weak tag lost: %+v", s)
	}
	// both entries on the tagged line are objects
	for _, name := range []string{"foo_count", "foo2_tls", "foo2_state"} {
		s, ok := set.Lookup(name)
		if !ok || s.Kind != abi.SymbolObject {
			t.Fatalf("%s = %+v", name, s)
		}
	}
	if s, _ := set.Lookup("foo2"); s.Version != "LIBFOO_2.0" {
		t.Fatalf("version = %q", s.Version)
	}
}

func TestReadVersionScriptErrors(t *testing.T) {
	cases := map[string]string{
		"unclosed":    "V1 { global: foo;",
		"no semi":     "V1 { global: foo bar; };",
		"stray colon": "V1 { : };",
		"no brace":    "V1 global: foo; };",
		"bad string":  "V1 { extern \"C++ { x; }; };",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ReadVersionScript(strings.NewReader(in))
			if !errors.Is(err, ErrVersionScript) {
				t.Fatalf("err = %v, want ErrVersionScript", err)
			}
		})
	}
}

func TestIntersect(t *testing.T) {
	so := NewSet()
	so.Add(Symbol{Name: "a", Version: "V1"})
	so.Add(Symbol{Name: "b", Kind: abi.SymbolObject})
	so.Add(Symbol{Name: "c"})
	vs := NewSet()
	vs.Add(Symbol{Name: "a"})
	vs.Add(Symbol{Name: "b", Kind: abi.SymbolObject})
	vs.Add(Symbol{Name: "d"})

	both := Intersect(so, vs)
	if both.Len() != 2 || !both.Has("a") || !both.Has("b") || both.Has("c") || both.Has("d") {
		t.Fatalf("intersection = %+v", both.ElfSymbols())
	}
	if s, _ := both.Lookup("a"); s.Version != "V1" {
		t.Fatalf("attributes not taken from the first set: %+v", s)
	}
	if Intersect(nil, vs) != vs || Intersect(so, nil) != so {
		t.Fatalf("nil side must pass the other through")
	}
	entries := both.ElfSymbols()
	if len(entries) != 2 || entries[0].Name != "a" || entries[1].Kind != abi.SymbolObject {
		t.Fatalf("elf symbols = %+v", entries)
	}
}

func TestAddPrefersGlobalBinding(t *testing.T) {
	set := NewSet()
	set.Add(Symbol{Name: "x", Binding: abi.BindingWeak})
	set.Add(Symbol{Name: "x", Binding: abi.BindingGlobal})
	if s, _ := set.Lookup("x"); s.Binding != abi.BindingGlobal {
		t.Fatalf("binding = %s", s.Binding)
	}
}

func TestFromELFFilters(t *testing.T) {
	info := func(b elf.SymBind, ty elf.SymType) byte { return elf.ST_INFO(b, ty) }
	syms := []elf.Symbol{
		{Name: "f", Info: info(elf.STB_GLOBAL, elf.STT_FUNC), Section: 12, Version: "V1"},
		{Name: "w", Info: info(elf.STB_WEAK, elf.STT_FUNC), Section: 12},
		{Name: "ifunc", Info: info(elf.STB_GLOBAL, sttGNUIFunc), Section: 12},
		{Name: "obj", Info: info(elf.STB_GLOBAL, elf.STT_OBJECT), Section: 20},
		{Name: "tls", Info: info(elf.STB_GLOBAL, elf.STT_TLS), Section: 21},
		{Name: "undef", Info: info(elf.STB_GLOBAL, elf.STT_FUNC), Section: elf.SHN_UNDEF},
		{Name: "local", Info: info(elf.STB_LOCAL, elf.STT_FUNC), Section: 12},
		{Name: "sect", Info: info(elf.STB_GLOBAL, elf.STT_SECTION), Section: 12},
	}
	set := fromELF(syms)
	for _, name := range []string{"undef", "local", "sect"} {
		if set.Has(name) {
			t.Errorf("%s should be filtered", name)
		}
	}
	if len(set.Functions()) != 3 || len(set.Objects()) != 2 {
		t.Fatalf("functions = %+v objects = %+v", set.Functions(), set.Objects())
	}
	if s, _ := set.Lookup("w"); s.Binding != abi.BindingWeak {
		t.Fatalf("weak = %+v", s)
	}
	if s, _ := set.Lookup("f"); s.Version != "V1" {
		t.Fatalf("version = %q", s.Version)
	}
}

func TestReadELFRejectsNonELF(t *testing.T) {
	p := filepath.Join(t.TempDir(), "libfoo.so")
	if err := os.WriteFile(p, []byte("not an elf file"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadELF(p); err == nil {
		t.Fatalf("ReadELF accepted a text file")
	}
}
