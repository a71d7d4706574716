package irdump

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"abicheck/internal/abi"
	"abicheck/internal/diff"
	"abicheck/internal/testkit"
)

func dump(t *testing.T, f Format, m *abi.Module) []byte {
	t.Helper()
	var buf bytes.Buffer
	d, err := NewDumper(f, &buf)
	if err != nil {
		t.Fatalf("NewDumper(%s): %v", f, err)
	}
	if err := d.Dump(m); err != nil {
		t.Fatalf("Dump(%s): %v", f, err)
	}
	return buf.Bytes()
}

func read(f Format, data []byte) (*abi.Module, error) {
	r, err := NewReader(f)
	if err != nil {
		return nil, err
	}
	if err := r.Read(bytes.NewReader(data)); err != nil {
		return nil, err
	}
	return r.Module(), nil
}

func TestRoundTripEveryFormat(t *testing.T) {
	for _, f := range Formats() {
		t.Run(f.String(), func(t *testing.T) {
			m := testkit.Sample(t)
			data := dump(t, f, m)
			back, err := read(f, data)
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if !back.Equal(m) {
				t.Fatalf("module changed after round trip\n%s", data)
			}
			if again := dump(t, f, back); !bytes.Equal(again, data) {
				t.Fatalf("re-dump differs:\n%s\n---\n%s", data, again)
			}
		})
	}
}

func TestDumpIsDeterministic(t *testing.T) {
	for _, f := range Formats() {
		first := dump(t, f, testkit.Sample(t))
		for range 5 {
			if next := dump(t, f, testkit.Sample(t)); !bytes.Equal(first, next) {
				t.Fatalf("%s dump is not deterministic", f)
			}
		}
	}
}

func TestDumperSkipsRepeatedEntities(t *testing.T) {
	m := testkit.Sample(t)
	var buf bytes.Buffer
	d, err := NewDumper(FormatJSON, &buf)
	if err != nil {
		t.Fatal(err)
	}
	for _, typ := range m.Types() {
		if err := d.AddLinkable(typ); err != nil {
			t.Fatal(err)
		}
	}
	fn, _ := m.Function("_Z4pushP4Node")
	for range 2 {
		if err := d.AddLinkable(fn); err != nil {
			t.Fatal(err)
		}
	}
	if err := d.Dump(m); err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(buf.String(), `"function_name": "_Z4pushP4Node"`); n != 1 {
		t.Fatalf("function written %d times", n)
	}
	back, err := read(FormatJSON, buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if !back.Equal(m) {
		t.Fatalf("module changed")
	}
}

func TestProtobufIsBinaryAlias(t *testing.T) {
	f, err := ParseFormat("protobuf")
	if err != nil || f != FormatMsgpack {
		t.Fatalf("ParseFormat(protobuf) = %v, %v", f, err)
	}
	if _, err := ParseFormat("xml"); !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("err = %v", err)
	}
	for path, want := range map[string]Format{"a.json": FormatJSON, "b.pb": FormatMsgpack, "c.YML": FormatYAML} {
		if got, err := FormatFromPath(path); err != nil || got != want {
			t.Errorf("FormatFromPath(%s) = %v, %v", path, got, err)
		}
	}
	if _, err := FormatFromPath("dump.txt"); !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("err = %v", err)
	}
}

func TestReadRejectsBrokenDocuments(t *testing.T) {
	valid := string(dump(t, FormatJSON, testkit.Sample(t)))
	cases := []struct {
		name string
		data string
		want error
	}{
		{"garbage", "{not json", ErrMalformed},
		{"truncated", valid[:len(valid)/2], ErrMalformed},
		{"trailing", valid + "{}", ErrMalformed},
		{"unknown field", strings.Replace(valid, `"arch"`, `"colour": 1, "arch"`, 1), ErrMalformed},
		{"schema", strings.Replace(valid, `"schema_version": 1`, `"schema_version": 7`, 1), ErrSchemaVersion},
		{"entity count", strings.Replace(valid, `"entity_count": `, `"entity_count": 1`, 1), ErrMalformed},
		{"access", strings.Replace(valid, `"access": "public"`, `"access": "friend"`, 1), ErrMalformed},
		{"empty", "", ErrMalformed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := read(FormatJSON, []byte(tc.data)); !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestReadRejectsDanglingAndDuplicate(t *testing.T) {
	f := testkit.NewFixture(t, "lib")
	f.Function("_Z1fv", f.Int())
	valid := string(dump(t, FormatJSON, f.Mod))

	dangling := strings.Replace(valid, `"return_type": "_ZTIi"`, `"return_type": "type-99"`, 1)
	_, err := read(FormatJSON, []byte(dangling))
	if !errors.Is(err, ErrMalformed) || !errors.Is(err, abi.ErrDanglingReference) {
		t.Fatalf("dangling: err = %v", err)
	}

	doc := `{"schema_version": 1, "lib_name": "lib", "arch": "x86_64",
"builtin_types": [
 {"name": "int", "referenced_type": "_ZTIi", "self_type": "_ZTIi", "linker_set_key": "_ZTIi"},
 {"name": "int", "referenced_type": "_ZTIi", "self_type": "_ZTIi", "linker_set_key": "_ZTIi"}
], "entity_count": 2}`
	_, err = read(FormatJSON, []byte(doc))
	if !errors.Is(err, ErrMalformed) || !errors.Is(err, abi.ErrDuplicateKey) {
		t.Fatalf("duplicate: err = %v", err)
	}
}

func TestReadRejectsDerivedWithoutTarget(t *testing.T) {
	doc := `{"schema_version": 1, "lib_name": "lib", "arch": "x86_64",
"pointer_types": [{"name": "int *", "referenced_type": "", "self_type": "type-1", "linker_set_key": "int *"}],
"entity_count": 1}`
	if _, err := read(FormatJSON, []byte(doc)); !errors.Is(err, ErrMalformed) {
		t.Fatalf("err = %v", err)
	}
}

func TestReadRejectsDerivedCycles(t *testing.T) {
	selfPointer := abi.NewModule("lib", "x86_64")
	if err := selfPointer.AddType(&abi.Type{Kind: abi.KindPointer, SelfType: "type-1", ReferencedType: "type-1",
		Name: "loop *", LinkerSetKey: "loop *", Size: 8}); err != nil {
		t.Fatal(err)
	}
	if err := selfPointer.AddFunction(&abi.Function{Name: "f", LinkerSetKey: "_Z1fv", ReturnType: "type-1"}); err != nil {
		t.Fatal(err)
	}
	for _, f := range Formats() {
		t.Run(f.String(), func(t *testing.T) {
			_, err := read(f, dump(t, f, selfPointer))
			if !errors.Is(err, ErrMalformed) || !errors.Is(err, abi.ErrDerivedCycle) {
				t.Fatalf("self pointer: err = %v", err)
			}
		})
	}

	twoStep := `{"schema_version": 1, "lib_name": "lib", "arch": "x86_64",
"pointer_types": [{"name": "a *", "referenced_type": "type-2", "self_type": "type-1", "linker_set_key": "a *"}],
"qualified_types": [{"name": "const a", "referenced_type": "type-1", "self_type": "type-2", "linker_set_key": "const a", "is_const": true}],
"entity_count": 2}`
	if _, err := read(FormatJSON, []byte(twoStep)); !errors.Is(err, abi.ErrDerivedCycle) {
		t.Fatalf("pointer/qualified cycle: err = %v", err)
	}

	// a cycle through a record is the normal linked-list shape
	f := testkit.NewFixture(t, "lib")
	node := f.Declare("Node")
	f.Define(node, "_ZTI4Node", 8, testkit.Field("next", f.Pointer(node), 0))
	f.Function("_Z4headv", f.Pointer(node))
	if _, err := read(FormatJSON, dump(t, FormatJSON, f.Mod)); err != nil {
		t.Fatalf("record cycle rejected: %v", err)
	}
}

func TestMsgpackRejectsTrailingBytes(t *testing.T) {
	data := append(dump(t, FormatMsgpack, testkit.Sample(t)), 0xc0)
	if _, err := read(FormatMsgpack, data); !errors.Is(err, ErrMalformed) {
		t.Fatalf("err = %v", err)
	}
}

func TestYAMLRejectsSecondDocument(t *testing.T) {
	data := dump(t, FormatYAML, testkit.Sample(t))
	data = append(append(data, "---\n"...), data...)
	if _, err := read(FormatYAML, data); !errors.Is(err, ErrMalformed) {
		t.Fatalf("err = %v", err)
	}
}

func TestBitFieldOffsets(t *testing.T) {
	f := testkit.NewFixture(t, "lib")
	u := f.Builtin("unsigned int")
	flags := abi.Field{Name: "flags", Type: u, Offset: 4, BitOffset: 3, BitWidth: 5, Access: abi.AccessPublic}
	f.Record("_ZTI4Bits", 8, testkit.Field("a", u, 0), flags)
	data := dump(t, FormatJSON, f.Mod)
	if !bytes.Contains(data, []byte(`"field_offset": 35`)) {
		t.Fatalf("bit offset not written in bits:\n%s", data)
	}
	back, err := read(FormatJSON, data)
	if err != nil {
		t.Fatal(err)
	}
	id := back.TypesByKey("_ZTI4Bits")[0]
	rec, _ := back.LookupType(id)
	if got := rec.Record.Fields[1]; got != flags {
		t.Fatalf("field = %+v, want %+v", got, flags)
	}
}

func TestWriteAndReadFile(t *testing.T) {
	dir := t.TempDir()
	m := testkit.Sample(t)
	for _, f := range Formats() {
		path := filepath.Join(dir, "sub", "libsample"+f.Extension())
		if err := WriteFile(path, f, m); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		back, err := ReadFile(path)
		if err != nil {
			t.Fatalf("ReadFile: %v", err)
		}
		if !back.Equal(m) {
			t.Fatalf("%s: module changed", f)
		}
	}
	entries, err := os.ReadDir(filepath.Join(dir, "sub"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != len(Formats()) {
		t.Fatalf("leftover temp files: %v", entries)
	}
	if _, err := ReadFile(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatalf("missing file read")
	}
}

func sampleReport(t *testing.T) *diff.Report {
	t.Helper()
	oldMod := testkit.Sample(t)
	f := testkit.NewFixture(t, "libsample")
	i := f.Int()
	node := f.Record("_ZTI4Node", 4, testkit.Field("next", i, 0))
	f.Enum("_ZTI5Color", abi.Enumerator{Name: "Red", Value: 1})
	f.Function("_Z4pushP4Node", f.Builtin("void"), f.Pointer(node))
	f.Function("_Z3newv", i)
	f.ElfFunc("_Z4pushP4Node")
	f.ElfFunc("_Z3newv")
	rep, err := diff.New(diff.Options{CheckAllTypes: true}).Diff(context.Background(), oldMod, f.Mod)
	if err != nil {
		t.Fatal(err)
	}
	return rep
}

func TestReportRoundTrip(t *testing.T) {
	rep := sampleReport(t)
	if rep.Empty() {
		t.Fatalf("fixture produced an empty report")
	}
	for _, f := range Formats() {
		t.Run(f.String(), func(t *testing.T) {
			var buf bytes.Buffer
			if err := WriteReport(f, &buf, rep); err != nil {
				t.Fatalf("WriteReport: %v", err)
			}
			back, err := ReadReport(f, &buf)
			if err != nil {
				t.Fatalf("ReadReport: %v", err)
			}
			if back.Status != rep.Status || len(back.Records) != len(rep.Records) {
				t.Fatalf("status %s/%s, records %d/%d", back.Status, rep.Status, len(back.Records), len(rep.Records))
			}
			for i := range rep.Records {
				a, b := rep.Records[i], back.Records[i]
				if a.Entity != b.Entity || a.LinkerSetKey != b.LinkerSetKey || a.Kind != b.Kind || a.Level != b.Level ||
					len(a.Details) != len(b.Details) {
					t.Fatalf("record %d: %+v vs %+v", i, a, b)
				}
				for j := range a.Details {
					if a.Details[j] != b.Details[j] {
						t.Fatalf("record %s detail %d: %+v vs %+v", a.LinkerSetKey, j, a.Details[j], b.Details[j])
					}
				}
			}
		})
	}
}

func TestReadReportChecksStatus(t *testing.T) {
	rep := sampleReport(t)
	var buf bytes.Buffer
	if err := WriteReport(FormatJSON, &buf, rep); err != nil {
		t.Fatal(err)
	}
	forged := strings.Replace(buf.String(), `"compatibility_status": "`+rep.Status.String()+`"`, `"compatibility_status": "compatible"`, 1)
	if _, err := ReadReport(FormatJSON, strings.NewReader(forged)); !errors.Is(err, ErrMalformed) {
		t.Fatalf("err = %v", err)
	}
}
