package policy

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"abicheck/internal/abi"
	"abicheck/internal/diag"
	"abicheck/internal/diff"
	"abicheck/internal/testkit"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func codes(bag *diag.Bag) map[diag.Code]int {
	out := make(map[diag.Code]int)
	for _, d := range bag.Items() {
		out[d.Code]++
	}
	return out
}

func TestIgnoreSetReadsListsAndGlobs(t *testing.T) {
	s := NewIgnoreSet()
	list := `# comment
_Z3foov
_ZN7private*   # everything in the private namespace

`
	if err := s.Read(strings.NewReader(list)); err != nil {
		t.Fatalf("Read: %v", err)
	}
	cases := map[string]bool{
		"_Z3foov":           true,
		"_Z3barv":           false,
		"_ZN7private3fooEv": true,
		"_ZN7publicv":       false,
		"":                  false,
	}
	for key, want := range cases {
		if got := s.Match(key); got != want {
			t.Errorf("Match(%q) = %v, want %v", key, got, want)
		}
	}
	if err := s.Read(strings.NewReader("bad[\n")); err == nil {
		t.Fatalf("malformed pattern accepted")
	}
}

func TestIgnoreGlobsSpanSlashes(t *testing.T) {
	s := NewIgnoreSet()
	for _, e := range []string{"(anonymous*", "(anonymous enum at include/*.h:?)"} {
		if err := s.Add(e); err != nil {
			t.Fatalf("Add(%q): %v", e, err)
		}
	}
	cases := map[string]bool{
		"(anonymous struct at include/x.h:3)":    true,
		"(anonymous enum at include/sub/y.h:12)": true,
		"_ZTI3Foo":                               false,
	}
	for key, want := range cases {
		if got := s.Match(key); got != want {
			t.Errorf("Match(%q) = %v, want %v", key, got, want)
		}
	}

	only := NewIgnoreSet()
	if err := only.Add("(anonymous enum at include/*.h:?)"); err != nil {
		t.Fatal(err)
	}
	if !only.Match("(anonymous enum at include/sub/y.h:1)") {
		t.Fatalf("* must cross directory separators")
	}
	if only.Match("(anonymous enum at include/y.h:12)") {
		t.Fatalf("? must match exactly one character")
	}
}

func TestIgnoreSuppressesRecords(t *testing.T) {
	of := testkit.NewFixture(t, "lib")
	of.ElfFunc("_Z4gonev")
	of.ElfFunc("_Z5othersv")
	nf := testkit.NewFixture(t, "lib")

	dir := t.TempDir()
	ignore := writeFile(t, dir, "abi.ignore", "_Z4gonev\n")
	p, err := New(nil, Options{IgnoreFiles: []string{ignore}}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rep, err := diff.New(diff.Options{Filter: p}).Diff(context.Background(), of.Mod, nf.Mod)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	for _, rec := range rep.Records {
		if rec.LinkerSetKey == "_Z4gonev" {
			t.Fatalf("ignored key reached the report")
		}
	}
	if len(rep.Records) != 1 || rep.Records[0].Name != "_Z5othersv" {
		t.Fatalf("records = %+v", rep.Records)
	}
}

func TestConfigOverridesAndWarnings(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "extra.ignore", "_Z5extrav\n")
	path := writeFile(t, dir, "abicheck.toml", `
[diff]
check_all_types = true
unreferenced_breaks = true

[ignore]
symbols = ["_Z3oldv"]
patterns = ["_ZN6detail*"]
files = ["extra.ignore"]

[policy]
field_added = "incompatible"
enumerator_renamed = "ignore"
vtable_slot_removed = "advisory"
no_such_change = "advisory"
record_size_grew = "fatal"

[colour]
mode = "on"
`)
	bag := diag.NewBag(0)
	rep := diag.BagReporter{Bag: bag}
	cfg, err := LoadConfig(path, rep)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if !cfg.Diff.CheckAllTypes || !cfg.Set.CheckAllTypes || cfg.Set.AllowWeak {
		t.Fatalf("diff section = %+v set = %+v", cfg.Diff, cfg.Set)
	}
	p, err := New(cfg, Options{}, rep)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if got := p.Level(diff.FieldAdded); got != diff.LevelIncompatible {
		t.Errorf("field_added = %s", got)
	}
	if got := p.Level(diff.EnumeratorRenamed); got != diff.LevelIgnore {
		t.Errorf("enumerator_renamed = %s", got)
	}
	if got := p.Level(diff.VTableSlotRemoved); got != diff.LevelIncompatible {
		t.Errorf("fixed category was downgraded to %s", got)
	}
	if got := p.Level(diff.RecordSizeGrew); got != diff.LevelExtension {
		t.Errorf("bad level changed record_size_grew to %s", got)
	}
	for _, key := range []string{"_Z3oldv", "_ZN6detail3fooEv", "_Z5extrav"} {
		if !p.Ignore.Match(key) {
			t.Errorf("%s not ignored", key)
		}
	}

	got := codes(bag)
	for _, c := range []diag.Code{diag.PolicyFixedCategory, diag.PolicyUnknownCategory, diag.PolicyUnknownLevel, diag.PolicyUnknownKey} {
		if got[c] == 0 {
			t.Errorf("missing %s in %s", c.ID(), diag.FormatShort(bag.Items(), false))
		}
	}
	if bag.HasErrors() {
		t.Fatalf("misconfiguration must not be an error")
	}
}

func TestApplyClassifiesAndIgnoresDetails(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "abicheck.toml", "[policy]\nfield_renamed = \"ignore\"\n")
	cfg, err := LoadConfig(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	p, err := New(cfg, Options{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	rec := diff.Record{
		Entity: abi.EntityType, Name: "Foo", LinkerSetKey: "_ZTI3Foo", Kind: diff.Extended,
		Details: []diff.Detail{{Path: "fields[0].name", Change: diff.FieldRenamed, Old: "a", New: "b"}},
	}
	if _, keep := p.Apply(rec); keep {
		t.Fatalf("record with only ignored details kept")
	}
	rec.Details = append(rec.Details, diff.Detail{Path: "fields[1]", Change: diff.FieldRemoved, Old: "c"})
	out, keep := p.Apply(rec)
	if !keep || out.Kind != diff.Incompatible || len(out.Details) != 1 || out.Details[0].Level != diff.LevelIncompatible {
		t.Fatalf("out = %+v", out)
	}
}

func TestUnmatchedIgnoreEntriesWarn(t *testing.T) {
	f := testkit.NewFixture(t, "lib")
	f.Function("_Z4realv", f.Int())
	p, err := New(&Config{Ignore: IgnoreSection{Symbols: []string{"_Z4realv", "_Z5ghostv"}, Patterns: []string{"_Z4r*", "_Znope*"}}}, Options{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	bag := diag.NewBag(0)
	p.CheckUnmatched(f.Mod, f.Mod, diag.BagReporter{Bag: bag})
	var entries []string
	for _, d := range bag.Items() {
		if d.Code != diag.PolicyUnmatchedIgnore || d.Severity != diag.SevWarning {
			t.Fatalf("unexpected diagnostic %+v", d)
		}
		entries = append(entries, d.Primary.Entity)
	}
	if len(entries) != 2 || entries[0] != "_Z5ghostv" || entries[1] != "_Znope*" {
		t.Fatalf("unmatched = %v", entries)
	}
}
