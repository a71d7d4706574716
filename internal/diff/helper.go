package diff

import (
	"fmt"
	"slices"
	"strconv"

	"abicheck/internal/abi"
	"abicheck/internal/diag"
)

// siteChange is what a referencing site sees of a type change. Changes
// inside a record or enum are reported on the nested type's own record and
// leave the site unchanged.
type siteChange uint8

const (
	siteSame siteChange = iota
	siteQualifiersAdded
	siteQualifiersRemoved
	siteChanged
)

func (s siteChange) join(o siteChange) siteChange {
	switch {
	case s == siteSame:
		return o
	case o == siteSame || o == s:
		return s
	default:
		return siteChanged
	}
}

type typePair struct{ old, new string }

// Helper compares one old/new pair of elements. It caches visited type
// pairs so cyclic graphs terminate, and collects the records of nested
// records and enums it walks into. A Helper is single-threaded.
type Helper struct {
	old, new *abi.Module
	reporter diag.Reporter
	visited  map[typePair]struct{}
	// derived pairs being compared; a repeat means a cycle Validate missed
	active map[typePair]struct{}
	stack  []string
	nested []Record
}

// NewHelper returns a Helper over two modules. Programming errors, such as
// an unknown type kind, go to r; pass nil to drop them.
func NewHelper(oldMod, newMod *abi.Module, r diag.Reporter) *Helper {
	if r == nil {
		r = diag.NopReporter{}
	}
	return &Helper{
		old:      oldMod,
		new:      newMod,
		reporter: r,
		visited:  make(map[typePair]struct{}),
		active:   make(map[typePair]struct{}),
	}
}

// Nested returns the records of nested types collected so far.
func (h *Helper) Nested() []Record { return h.nested }

// Equivalent reports whether two types are identical down to every nested
// record and enum, ignoring ids.
func (h *Helper) Equivalent(oldID, newID string) bool {
	before := len(h.nested)
	return h.compareType(oldID, newID) == siteSame && len(h.nested) == before
}

func (h *Helper) lookup(m *abi.Module, id string) (*abi.Type, bool) {
	t, ok := m.LookupType(id)
	if !ok {
		diag.ReportError(h.reporter, diag.DiffMissingType, diag.Location{Entity: id},
			fmt.Sprintf("type %s is not in module %s", id, m.LibName)).Emit()
	}
	return t, ok
}

func (h *Helper) typeName(m *abi.Module, id string) string {
	if t, ok := m.LookupType(id); ok {
		return t.Name
	}
	return id
}

// compareType classifies the change of a referenced type as seen from the
// referencing site and descends into nested records and enums.
func (h *Helper) compareType(oldID, newID string) siteChange {
	ot, ok := h.lookup(h.old, oldID)
	if !ok {
		return siteChanged
	}
	nt, ok := h.lookup(h.new, newID)
	if !ok {
		return siteChanged
	}
	if ot.Kind != nt.Kind {
		if nt.Kind == abi.KindQualified && h.compareType(oldID, nt.ReferencedType) == siteSame {
			return siteQualifiersAdded
		}
		if ot.Kind == abi.KindQualified && h.compareType(ot.ReferencedType, newID) == siteSame {
			return siteQualifiersRemoved
		}
		return siteChanged
	}
	if !ot.Kind.IsUserDefined() && ot.Kind != abi.KindBuiltin {
		pair := typePair{ot.SelfType, nt.SelfType}
		if _, ok := h.active[pair]; ok {
			return siteSame
		}
		h.active[pair] = struct{}{}
		defer delete(h.active, pair)
	}
	switch ot.Kind {
	case abi.KindBuiltin:
		if ot.SelfType != nt.SelfType || ot.Size != nt.Size {
			return siteChanged
		}
		return siteSame
	case abi.KindPointer, abi.KindLValueReference, abi.KindRValueReference:
		if ot.Size != nt.Size {
			return siteChanged
		}
		return h.compareType(ot.ReferencedType, nt.ReferencedType)
	case abi.KindQualified:
		q := compareQualifiers(ot, nt)
		return q.join(h.compareType(ot.ReferencedType, nt.ReferencedType))
	case abi.KindArray:
		if ot.Length != nt.Length || ot.Size != nt.Size {
			return siteChanged
		}
		return h.compareType(ot.ReferencedType, nt.ReferencedType)
	case abi.KindFunction:
		return h.compareSignature(ot.Func, nt.Func)
	case abi.KindRecord, abi.KindEnum:
		if ot.LinkerSetKey != nt.LinkerSetKey || ot.Name != nt.Name {
			return siteChanged
		}
		h.compareUserType(ot, nt)
		return siteSame
	default:
		diag.ReportError(h.reporter, diag.DiffUnknownKind, diag.Location{Entity: ot.Name},
			fmt.Sprintf("cannot compare type %s of kind %s", ot.SelfType, ot.Kind)).Emit()
		return siteSame
	}
}

func compareQualifiers(ot, nt *abi.Type) siteChange {
	oq := [3]bool{ot.IsConst, ot.IsVolatile, ot.IsRestricted}
	nq := [3]bool{nt.IsConst, nt.IsVolatile, nt.IsRestricted}
	if oq == nq {
		return siteSame
	}
	added, removed := false, false
	for i := range oq {
		if nq[i] && !oq[i] {
			added = true
		}
		if oq[i] && !nq[i] {
			removed = true
		}
	}
	switch {
	case added && !removed:
		return siteQualifiersAdded
	case removed && !added:
		return siteQualifiersRemoved
	default:
		return siteChanged
	}
}

func (h *Helper) compareSignature(of, nf *abi.FuncSig) siteChange {
	if of == nil || nf == nil {
		if of == nf {
			return siteSame
		}
		return siteChanged
	}
	if len(of.Params) != len(nf.Params) {
		return siteChanged
	}
	if h.compareType(of.ReturnType, nf.ReturnType) != siteSame {
		return siteChanged
	}
	for i := range of.Params {
		if h.compareType(of.Params[i].Type, nf.Params[i].Type) != siteSame {
			return siteChanged
		}
	}
	return siteSame
}

// compareUserType diffs a record or enum pair once and keeps the record
// if anything differs.
func (h *Helper) compareUserType(ot, nt *abi.Type) {
	pair := typePair{ot.SelfType, nt.SelfType}
	if _, seen := h.visited[pair]; seen {
		return
	}
	h.visited[pair] = struct{}{}

	var rec Record
	if ot.Kind == abi.KindRecord {
		rec = h.DiffRecordType(ot, nt)
	} else {
		rec = h.DiffEnumType(ot, nt)
	}
	if len(rec.Details) > 0 {
		h.nested = append(h.nested, rec)
	}
}

func (h *Helper) push(name string) { h.stack = append(h.stack, name) }
func (h *Helper) pop()             { h.stack = h.stack[:len(h.stack)-1] }

func (h *Helper) typeStack() []string {
	if len(h.stack) == 0 {
		return nil
	}
	return slices.Clone(h.stack)
}

func accessDetail(path string, o, n abi.Access) (Detail, bool) {
	if o == n {
		return Detail{}, false
	}
	change := AccessWidened
	if n > o {
		change = AccessNarrowed
	}
	return Detail{Path: path, Change: change, Old: o.String(), New: n.String()}, true
}

// DiffRecordType compares two records under the same key. Member lists
// are compared by position.
func (h *Helper) DiffRecordType(ot, nt *abi.Type) Record {
	rec := Record{
		Entity: abi.EntityType, TypeKind: abi.KindRecord, Name: nt.Name, LinkerSetKey: nt.LinkerSetKey,
		Kind: Extended, TypeStack: h.typeStack(),
	}
	h.visited[typePair{ot.SelfType, nt.SelfType}] = struct{}{}
	h.push(nt.Name)
	defer h.pop()

	add := func(path string, change Change, o, n string) {
		rec.Details = append(rec.Details, Detail{Path: path, Change: change, Old: o, New: n})
	}
	if d, ok := accessDetail("access", ot.Access, nt.Access); ok {
		rec.Details = append(rec.Details, d)
	}
	or, nr := ot.Record, nt.Record
	if or == nil || nr == nil {
		diag.ReportError(h.reporter, diag.DiffUnknownKind, diag.Location{Entity: nt.Name},
			fmt.Sprintf("record %s has no payload", nt.LinkerSetKey)).Emit()
		return Record{}
	}
	// Opaque records carry only their linkage identity.
	if or.Opaque || nr.Opaque {
		return rec
	}
	if ot.Size != nt.Size {
		change := RecordSizeChanged
		if nt.Size > ot.Size {
			change = RecordSizeGrew
		}
		add("size", change, u64(ot.Size), u64(nt.Size))
	}
	if ot.Alignment != nt.Alignment {
		add("alignment", RecordAlignmentChanged, u64(uint64(ot.Alignment)), u64(uint64(nt.Alignment)))
	}
	if or.Kind != nr.Kind {
		add("record_kind", RecordKindChanged, or.Kind.String(), nr.Kind.String())
	}

	common := min(len(or.Fields), len(nr.Fields))
	for i := range common {
		of, nf := or.Fields[i], nr.Fields[i]
		path := "fields[" + strconv.Itoa(i) + "]"
		site := h.compareType(of.Type, nf.Type)
		if site != siteSame {
			add(path+".type", FieldTypeChanged, h.typeName(h.old, of.Type), h.typeName(h.new, nf.Type))
		}
		if of.Offset != nf.Offset || of.BitOffset != nf.BitOffset {
			add(path+".offset", FieldOffsetChanged, fieldOffset(of), fieldOffset(nf))
		}
		if of.BitWidth != nf.BitWidth {
			add(path+".bit_width", FieldBitfieldChanged, u64(uint64(of.BitWidth)), u64(uint64(nf.BitWidth)))
		}
		if of.Name != nf.Name {
			add(path+".name", FieldRenamed, of.Name, nf.Name)
		}
		if d, ok := accessDetail(path+".access", of.Access, nf.Access); ok {
			rec.Details = append(rec.Details, d)
		}
	}
	h.movedFields(or.Fields, nr.Fields, add)
	for i := common; i < len(nr.Fields); i++ {
		add("fields["+strconv.Itoa(i)+"]", FieldAdded, "", nr.Fields[i].Name)
	}
	for i := common; i < len(or.Fields); i++ {
		add("fields["+strconv.Itoa(i)+"]", FieldRemoved, or.Fields[i].Name, "")
	}

	common = min(len(or.Bases), len(nr.Bases))
	for i := range common {
		ob, nb := or.Bases[i], nr.Bases[i]
		path := "bases[" + strconv.Itoa(i) + "]"
		if h.compareType(ob.Type, nb.Type) != siteSame || ob.IsVirtual != nb.IsVirtual {
			add(path, BaseChanged, baseString(h.typeName(h.old, ob.Type), ob), baseString(h.typeName(h.new, nb.Type), nb))
		}
		if d, ok := accessDetail(path+".access", ob.Access, nb.Access); ok {
			rec.Details = append(rec.Details, d)
		}
	}
	for i := common; i < len(nr.Bases); i++ {
		add("bases["+strconv.Itoa(i)+"]", BaseAdded, "", h.typeName(h.new, nr.Bases[i].Type))
	}
	for i := common; i < len(or.Bases); i++ {
		add("bases["+strconv.Itoa(i)+"]", BaseRemoved, h.typeName(h.old, or.Bases[i].Type), "")
	}

	common = min(len(or.VTable), len(nr.VTable))
	for i := range common {
		if or.VTable[i] != nr.VTable[i] {
			add("vtable["+strconv.Itoa(i)+"]", VTableSlotChanged, slotString(or.VTable[i]), slotString(nr.VTable[i]))
		}
	}
	for i := common; i < len(nr.VTable); i++ {
		add("vtable["+strconv.Itoa(i)+"]", VTableSlotAppended, "", slotString(nr.VTable[i]))
	}
	for i := common; i < len(or.VTable); i++ {
		add("vtable["+strconv.Itoa(i)+"]", VTableSlotRemoved, slotString(or.VTable[i]), "")
	}

	h.compareTemplateArgs(or.TemplateArgs, nr.TemplateArgs, func(path, o, n string) {
		add(path, TemplateArgsChanged, o, n)
	})
	return rec
}

// movedFields catches what positional comparison reads as a rename: a
// named field that now lives at another index and another offset.
func (h *Helper) movedFields(oldFields, newFields []abi.Field, add func(path string, change Change, o, n string)) {
	at := make(map[string]int, len(newFields))
	for i, f := range newFields {
		if f.Name != "" {
			at[f.Name] = i
		}
	}
	for i, of := range oldFields {
		j, ok := at[of.Name]
		if !ok || j == i || of.Name == "" {
			continue
		}
		nf := newFields[j]
		if nf.Offset != of.Offset || nf.BitOffset != of.BitOffset {
			add("fields["+strconv.Itoa(i)+"].offset", FieldOffsetChanged,
				of.Name+"@"+fieldOffset(of), nf.Name+"@"+fieldOffset(nf))
		}
	}
}

func (h *Helper) compareTemplateArgs(oargs, nargs []string, add func(path, o, n string)) {
	if len(oargs) != len(nargs) {
		add("template_args", strconv.Itoa(len(oargs)), strconv.Itoa(len(nargs)))
		return
	}
	for i := range oargs {
		if h.compareType(oargs[i], nargs[i]) != siteSame {
			add("template_args["+strconv.Itoa(i)+"]", h.typeName(h.old, oargs[i]), h.typeName(h.new, nargs[i]))
		}
	}
}

// DiffEnumType compares two enums under the same key.
func (h *Helper) DiffEnumType(ot, nt *abi.Type) Record {
	rec := Record{
		Entity: abi.EntityType, TypeKind: abi.KindEnum, Name: nt.Name, LinkerSetKey: nt.LinkerSetKey,
		Kind: Extended, TypeStack: h.typeStack(),
	}
	h.visited[typePair{ot.SelfType, nt.SelfType}] = struct{}{}
	oe, ne := ot.Enum, nt.Enum
	if oe == nil || ne == nil {
		diag.ReportError(h.reporter, diag.DiffUnknownKind, diag.Location{Entity: nt.Name},
			fmt.Sprintf("enum %s has no payload", nt.LinkerSetKey)).Emit()
		return Record{}
	}
	add := func(path string, change Change, o, n string) {
		rec.Details = append(rec.Details, Detail{Path: path, Change: change, Old: o, New: n})
	}
	if d, ok := accessDetail("access", ot.Access, nt.Access); ok {
		rec.Details = append(rec.Details, d)
	}
	if h.compareType(oe.UnderlyingType, ne.UnderlyingType) != siteSame || ot.Size != nt.Size {
		add("underlying_type", EnumUnderlyingTypeChanged,
			h.typeName(h.old, oe.UnderlyingType), h.typeName(h.new, ne.UnderlyingType))
	}
	common := min(len(oe.Enumerators), len(ne.Enumerators))
	for i := range common {
		o, n := oe.Enumerators[i], ne.Enumerators[i]
		path := "enumerators[" + strconv.Itoa(i) + "]"
		if o.Value != n.Value || o.Unsigned != n.Unsigned {
			add(path+".value", EnumeratorValueChanged, enumeratorString(o), enumeratorString(n))
			continue
		}
		if o.Name != n.Name {
			add(path+".name", EnumeratorRenamed, o.Name, n.Name)
		}
	}
	for i := common; i < len(ne.Enumerators); i++ {
		add("enumerators["+strconv.Itoa(i)+"]", EnumeratorAdded, "", enumeratorString(ne.Enumerators[i]))
	}
	for i := common; i < len(oe.Enumerators); i++ {
		add("enumerators["+strconv.Itoa(i)+"]", EnumeratorRemoved, enumeratorString(oe.Enumerators[i]), "")
	}
	return rec
}

// DiffFunction compares two functions under the same mangled name.
func (h *Helper) DiffFunction(of, nf *abi.Function) Record {
	rec := Record{Entity: abi.EntityFunction, Name: nf.Name, LinkerSetKey: nf.LinkerSetKey, Kind: Extended}
	h.push(nf.Name)
	defer h.pop()
	add := func(path string, change Change, o, n string) {
		rec.Details = append(rec.Details, Detail{Path: path, Change: change, Old: o, New: n})
	}
	if d, ok := accessDetail("access", of.Access, nf.Access); ok {
		rec.Details = append(rec.Details, d)
	}
	switch h.compareType(of.ReturnType, nf.ReturnType) {
	case siteSame:
	case siteQualifiersRemoved:
		add("return_type", ReturnQualifiersRemoved, h.typeName(h.old, of.ReturnType), h.typeName(h.new, nf.ReturnType))
	default:
		add("return_type", ReturnTypeChanged, h.typeName(h.old, of.ReturnType), h.typeName(h.new, nf.ReturnType))
	}
	if len(of.Params) != len(nf.Params) {
		add("parameters", ParameterCountChanged, strconv.Itoa(len(of.Params)), strconv.Itoa(len(nf.Params)))
	}
	for i := range min(len(of.Params), len(nf.Params)) {
		op, np := of.Params[i], nf.Params[i]
		path := "parameters[" + strconv.Itoa(i) + "]"
		switch site := h.compareType(op.Type, np.Type); {
		case site == siteQualifiersAdded && op.IsThis == np.IsThis:
			add(path+".type", ParameterQualifiersAdded, h.typeName(h.old, op.Type), h.typeName(h.new, np.Type))
		case site != siteSame || op.IsThis != np.IsThis:
			add(path+".type", ParameterTypeChanged, h.typeName(h.old, op.Type), h.typeName(h.new, np.Type))
		}
		if op.HasDefault != np.HasDefault {
			add(path+".default", DefaultArgChanged, strconv.FormatBool(op.HasDefault), strconv.FormatBool(np.HasDefault))
		}
	}
	if of.TemplateKind != nf.TemplateKind {
		add("template_kind", TemplateKindChanged, of.TemplateKind.String(), nf.TemplateKind.String())
	}
	h.compareTemplateArgs(of.TemplateArgs, nf.TemplateArgs, func(path, o, n string) {
		add(path, TemplateArgsChanged, o, n)
	})
	return rec
}

// DiffGlobalVar compares two variables under the same mangled name.
func (h *Helper) DiffGlobalVar(ov, nv *abi.GlobalVar) Record {
	rec := Record{Entity: abi.EntityGlobalVar, Name: nv.Name, LinkerSetKey: nv.LinkerSetKey, Kind: Extended}
	h.push(nv.Name)
	defer h.pop()
	if h.compareType(ov.Type, nv.Type) != siteSame {
		rec.Details = append(rec.Details, Detail{
			Path: "type", Change: GlobalVarTypeChanged,
			Old: h.typeName(h.old, ov.Type), New: h.typeName(h.new, nv.Type),
		})
	}
	if d, ok := accessDetail("access", ov.Access, nv.Access); ok {
		rec.Details = append(rec.Details, d)
	}
	return rec
}

func u64(v uint64) string { return strconv.FormatUint(v, 10) }

func fieldOffset(f abi.Field) string {
	if f.BitOffset == 0 {
		return u64(f.Offset)
	}
	return u64(f.Offset) + "+" + u64(uint64(f.BitOffset)) + "b"
}

func baseString(name string, b abi.BaseSpecifier) string {
	if b.IsVirtual {
		return "virtual " + name
	}
	return name
}

func slotString(c abi.VTableComponent) string {
	s := c.Kind.String()
	if c.MangledName != "" {
		s += " " + c.MangledName
	}
	if !c.Kind.IsFunction() && c.MangledName == "" {
		s += " " + strconv.FormatInt(c.Value, 10)
	}
	if c.IsPure {
		s += " (pure)"
	}
	return s
}

func enumeratorString(e abi.Enumerator) string {
	if e.Unsigned {
		return e.Name + "=" + strconv.FormatUint(uint64(e.Value), 10)
	}
	return e.Name + "=" + strconv.FormatInt(e.Value, 10)
}
