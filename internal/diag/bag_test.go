package diag

import "testing"

func TestBagLimitCountsDropped(t *testing.T) {
	b := NewBag(2)
	for i := 0; i < 3; i++ {
		b.Add(NewWarning(BuildUnsupportedType, Location{Entity: "t"}, "skip"))
	}
	if b.Len() != 2 || b.Dropped() != 1 {
		t.Fatalf("len=%d dropped=%d, want 2 and 1", b.Len(), b.Dropped())
	}
}

func TestBagSortAndDedup(t *testing.T) {
	b := NewBag(0)
	loc := Location{File: "include/b.h", Line: 3}
	b.Add(NewWarning(BuildUnsupportedDecl, loc, "skip"))
	b.Add(NewError(BuildMissingType, Location{File: "include/a.h", Line: 9}, "missing"))
	b.Add(NewWarning(BuildUnsupportedDecl, loc, "skip"))
	b.Dedup()
	b.Sort()
	items := b.Items()
	if len(items) != 2 {
		t.Fatalf("dedup kept %d items, want 2", len(items))
	}
	if items[0].Primary.File != "include/a.h" {
		t.Fatalf("sort by file failed: %+v", items[0])
	}
	if !b.HasErrors() {
		t.Fatalf("HasErrors must see the error")
	}
}

func TestMergeKeepsOrder(t *testing.T) {
	a := NewBag(1)
	a.Add(NewWarning(LinkODRViolation, Location{Entity: "_ZTI3Foo"}, "first"))
	other := NewBag(4)
	other.Add(NewWarning(LinkODRViolation, Location{Entity: "_ZTI3Bar"}, "second"))
	a.Merge(other)
	if a.Len() != 2 || a.Items()[1].Message != "second" {
		t.Fatalf("merge result = %+v", a.Items())
	}
}

func TestDedupReporterForwardsOnce(t *testing.T) {
	b := NewBag(10)
	r := NewDedupReporter(BagReporter{Bag: b})
	for i := 0; i < 3; i++ {
		ReportWarning(r, PolicyUnmatchedIgnore, Location{Entity: "_Z3foov"}, "ignore entry matches nothing").
			WithNote(Location{File: "abi.ignore"}, "listed here").
			Emit()
	}
	if b.Len() != 1 {
		t.Fatalf("dedup reporter forwarded %d diagnostics", b.Len())
	}
	if len(b.Items()[0].Notes) != 1 {
		t.Fatalf("note lost")
	}
}

func TestFormatShort(t *testing.T) {
	diags := []Diagnostic{
		NewWarning(BuildUnsupportedType, Location{File: "./include/foo.h", Line: 12}, "unsupported type kind \"vector\"\nskipped").
			WithNote(Location{Entity: "_Z3foov"}, "used by"),
		NewError(PolicyFixedCategory, Location{}, "vtable_slot_removed cannot be overridden"),
	}
	want := "warning BLD1001 include/foo.h:12 unsupported type kind \"vector\" skipped\n" +
		"note BLD1001 _Z3foov used by\n" +
		"error POL5003 vtable_slot_removed cannot be overridden"
	if got := FormatShort(diags, true); got != want {
		t.Fatalf("unexpected output:\nwant:\n%s\n\ngot:\n%s", want, got)
	}
}
