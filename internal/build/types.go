package build

import (
	"fmt"
	"strconv"
	"strings"

	"fortio.org/safecast"

	"abicheck/internal/abi"
	"abicheck/internal/decl"
	"abicheck/internal/diag"
)

// typeID returns the self_type for a frontend id, converting it on first use.
func (b *Builder) typeID(id int64) (string, bool) {
	if sid, ok := b.cache[id]; ok {
		return sid, true
	}
	if _, bad := b.failed[id]; bad {
		return "", false
	}
	t, ok := b.index[id]
	if !ok {
		diag.ReportWarning(b.reporter, diag.BuildMissingType, diag.Location{Entity: fmt.Sprintf("#%d", id)},
			fmt.Sprintf("reference to unknown type id %d", id)).Emit()
		b.failed[id] = struct{}{}
		return "", false
	}
	// Records register before visiting members; any other kind met again
	// while it is still converting means the chain never reaches one.
	if t.Kind != decl.TypeRecord {
		if _, busy := b.resolving[id]; busy {
			b.warnType(diag.BuildTypeCycle, t, fmt.Sprintf("%s type #%d refers to itself", t.Kind, id))
			b.failed[id] = struct{}{}
			return "", false
		}
		b.resolving[id] = struct{}{}
		defer delete(b.resolving, id)
	}
	sid, ok := b.convert(t)
	if !ok {
		b.failed[id] = struct{}{}
		return "", false
	}
	b.cache[id] = sid
	return sid, true
}

func (b *Builder) convert(t *decl.Type) (string, bool) {
	switch t.Kind {
	case decl.TypeBuiltin:
		return b.builtin(t)
	case decl.TypeTypedef:
		return b.typedef(t)
	case decl.TypePointer:
		return b.derived(t, abi.KindPointer, t.Pointee)
	case decl.TypeLValueReference:
		return b.derived(t, abi.KindLValueReference, t.Pointee)
	case decl.TypeRValueReference:
		return b.derived(t, abi.KindRValueReference, t.Pointee)
	case decl.TypeQualified:
		return b.derived(t, abi.KindQualified, t.Underlying)
	case decl.TypeArray:
		return b.derived(t, abi.KindArray, t.Element)
	case decl.TypeRecord:
		return b.record(t)
	case decl.TypeEnum:
		return b.enum(t)
	case decl.TypeFunctionProto:
		return b.functionType(t)
	default:
		b.warnType(diag.BuildUnsupportedType, t, fmt.Sprintf("unsupported type kind %q", t.Kind))
		return "", false
	}
}

func (b *Builder) builtin(t *decl.Type) (string, bool) {
	bt, ok := abi.LookupBuiltin(b.opts.DataModel, t.Name)
	if !ok {
		b.warnType(diag.BuildUnsupportedType, t, fmt.Sprintf("unknown builtin type %q", t.Name))
		return "", false
	}
	if _, exists := b.mod.LookupType(bt.SelfType); !exists {
		if err := b.mod.AddType(bt); err != nil {
			b.warnType(diag.BuildDuplicateKey, t, err.Error())
			return "", false
		}
	}
	b.names[bt.SelfType] = bt.Name
	b.sizes[bt.SelfType] = bt.Size
	return bt.SelfType, true
}

// typedef resolves to the canonical type; typedef names never enter the IR.
func (b *Builder) typedef(t *decl.Type) (string, bool) {
	return b.typeID(t.Underlying)
}

// derived builds pointers, references, qualified types and arrays.
// Identical shapes reached through different frontend ids collapse into
// the first emitted node.
func (b *Builder) derived(t *decl.Type, kind abi.Kind, ref int64) (string, bool) {
	refID, ok := b.typeID(ref)
	if !ok {
		return "", false
	}
	nt := &abi.Type{
		Kind:           kind,
		ReferencedType: refID,
		SourceFile:     t.File,
		IsConst:        t.Const,
		IsVolatile:     t.Volatile,
		IsRestricted:   t.Restrict,
	}
	switch kind {
	case abi.KindPointer, abi.KindLValueReference, abi.KindRValueReference:
		nt.Size = b.opts.pointerSize()
		nt.Alignment = uint32(nt.Size)
	case abi.KindQualified:
		nt.Size = b.sizes[refID]
	case abi.KindArray:
		length, err := safecast.Conv[uint64](t.Count)
		if err != nil {
			b.warnType(diag.BuildInvalidLayout, t, fmt.Sprintf("array length %d: %v", t.Count, err))
			return "", false
		}
		nt.Length = length
		nt.Size = length * b.sizes[refID]
	}
	if t.Size > 0 {
		size, err := safecast.Conv[uint64](t.Size)
		if err != nil {
			b.warnType(diag.BuildInvalidLayout, t, fmt.Sprintf("size %d: %v", t.Size, err))
			return "", false
		}
		nt.Size = size
	}
	if t.Align > 0 {
		align, err := safecast.Conv[uint32](t.Align)
		if err != nil {
			b.warnType(diag.BuildInvalidLayout, t, fmt.Sprintf("alignment %d: %v", t.Align, err))
			return "", false
		}
		nt.Alignment = align
	}
	nt.Name = abi.DerivedName(nt, b.names[refID])
	nt.LinkerSetKey = nt.Name
	return b.intern(nt)
}

func (b *Builder) functionType(t *decl.Type) (string, bool) {
	ret, ok := b.typeID(t.Return)
	if !ok {
		return "", false
	}
	sig := &abi.FuncSig{ReturnType: ret}
	parts := make([]string, 0, len(t.Params))
	for _, p := range t.Params {
		pid, ok := b.typeID(p)
		if !ok {
			return "", false
		}
		sig.Params = append(sig.Params, abi.Param{Type: pid})
		parts = append(parts, b.names[pid])
	}
	name := b.names[ret] + " (" + strings.Join(parts, ", ") + ")"
	nt := &abi.Type{
		Kind: abi.KindFunction, Name: name, LinkerSetKey: name, SourceFile: t.File, Func: sig,
	}
	return b.intern(nt)
}

// intern assigns an id to a derived type unless an identical one exists.
func (b *Builder) intern(nt *abi.Type) (string, bool) {
	key := abi.StructuralKey(nt)
	if id, ok := b.structural[key]; ok {
		return id, true
	}
	nt.SelfType = b.mod.NewTypeID()
	if err := b.mod.AddType(nt); err != nil {
		return "", false
	}
	b.structural[key] = nt.SelfType
	b.names[nt.SelfType] = nt.Name
	b.sizes[nt.SelfType] = nt.Size
	return nt.SelfType, true
}

func recordKey(t *decl.Type) string {
	if t.Mangled != "" {
		return t.Mangled
	}
	if t.Name != "" && !t.Anonymous {
		return t.Name
	}
	return anonymousName(t)
}

// anonymousName follows the frontend convention for unnamed records and
// enums; the " at " marker lets the diff skip such lone entities.
func anonymousName(t *decl.Type) string {
	what := t.RecordKind
	if t.Kind == decl.TypeEnum {
		what = "enum"
	}
	if what == "" {
		what = "struct"
	}
	return fmt.Sprintf("(anonymous %s at %s:%d)", what, t.File, t.Line)
}

func (b *Builder) record(t *decl.Type) (string, bool) {
	key := recordKey(t)
	if !t.Complete {
		if def, ok := b.definitions[key]; ok && def != t.ID {
			return b.typeID(def)
		}
	}
	if id, ok := b.userKeys[key]; ok {
		return id, true
	}
	rk, err := abi.ParseRecordKind(t.RecordKind)
	if err != nil {
		b.warnType(diag.BuildUnsupportedType, t, err.Error())
		return "", false
	}
	access, err := abi.ParseAccess(t.Access)
	if err != nil {
		b.warnType(diag.BuildUnsupportedType, t, err.Error())
		return "", false
	}
	name := t.Name
	if name == "" || t.Anonymous {
		name = anonymousName(t)
	}

	// Register the id before visiting members so that self references
	// through pointers resolve to this record.
	id := b.mod.NewTypeID()
	b.cache[t.ID] = id
	b.userKeys[key] = id
	b.names[id] = name

	nt := &abi.Type{
		Kind: abi.KindRecord, SelfType: id, ReferencedType: id, Name: name, LinkerSetKey: key,
		SourceFile: t.File, Access: access,
		Record: &abi.RecordInfo{Kind: rk, Anonymous: t.Anonymous},
	}
	if !t.Complete {
		diag.ReportInfo(b.reporter, diag.BuildIncompleteRecord, typeLocation(t),
			fmt.Sprintf("%s has no definition in this unit", name)).Emit()
		nt.Record.Opaque = true
	} else if why := b.fillMembers(t, nt); why != "" {
		b.warnType(diag.BuildInvalidLayout, t, fmt.Sprintf("%s kept as opaque: %s", name, why))
		nt.Record = &abi.RecordInfo{Kind: rk, Anonymous: t.Anonymous, Opaque: true}
		nt.Size, nt.Alignment = 0, 0
	}
	b.sizes[id] = nt.Size
	if err := b.mod.AddType(nt); err != nil {
		b.warnType(diag.BuildDuplicateKey, t, err.Error())
		return "", false
	}
	return id, true
}

// fillMembers runs fillRecord with a fresh in-progress set: a chain that
// passes through this record is a legal cycle.
func (b *Builder) fillMembers(t *decl.Type, nt *abi.Type) string {
	outer := b.resolving
	b.resolving = make(map[int64]struct{})
	defer func() { b.resolving = outer }()
	return b.fillRecord(t, nt)
}

// fillRecord converts layout and members. It returns a reason when some
// member cannot be represented; the caller then downgrades the record to
// its linkage identity.
func (b *Builder) fillRecord(t *decl.Type, nt *abi.Type) string {
	size, err := safecast.Conv[uint64](t.Size)
	if err != nil {
		return fmt.Sprintf("size %d", t.Size)
	}
	align, err := safecast.Conv[uint32](t.Align)
	if err != nil {
		return fmt.Sprintf("alignment %d", t.Align)
	}
	nt.Size, nt.Alignment = size, align
	b.sizes[nt.SelfType] = size

	ri := nt.Record
	for _, f := range t.Fields {
		ft, ok := b.typeID(f.Type)
		if !ok {
			return fmt.Sprintf("field %s has an unrepresentable type", f.Name)
		}
		bits, err := safecast.Conv[uint64](f.OffsetBits)
		if err != nil {
			return fmt.Sprintf("field %s offset %d", f.Name, f.OffsetBits)
		}
		width, err := safecast.Conv[uint32](f.BitWidth)
		if err != nil {
			return fmt.Sprintf("field %s bit width %d", f.Name, f.BitWidth)
		}
		access, err := abi.ParseAccess(f.Access)
		if err != nil {
			return err.Error()
		}
		ri.Fields = append(ri.Fields, abi.Field{
			Name: f.Name, Type: ft, Offset: bits / 8, BitOffset: uint32(bits % 8), BitWidth: width, Access: access,
		})
	}
	for i, base := range t.Bases {
		bt, ok := b.typeID(base.Type)
		if !ok {
			return fmt.Sprintf("base #%d is not representable", i)
		}
		access, err := abi.ParseAccess(base.Access)
		if err != nil {
			return err.Error()
		}
		ri.Bases = append(ri.Bases, abi.BaseSpecifier{Type: bt, IsVirtual: base.Virtual, Access: access})
	}
	for i, row := range t.VTable {
		kind, err := abi.ParseVTableComponentKind(row.Kind)
		if err != nil {
			b.warnType(diag.BuildUnsupportedVTable, t, fmt.Sprintf("vtable[%d]: %v", i, err))
			return fmt.Sprintf("vtable[%d]", i)
		}
		ri.VTable = append(ri.VTable, abi.VTableComponent{
			Kind: kind, MangledName: row.Mangled, Value: row.Value, IsPure: row.Pure,
		})
	}
	for i, arg := range t.TemplateArgs {
		at, ok := b.typeID(arg)
		if !ok {
			return fmt.Sprintf("template argument #%d is not representable", i)
		}
		ri.TemplateArgs = append(ri.TemplateArgs, at)
	}
	return ""
}

func (b *Builder) enum(t *decl.Type) (string, bool) {
	key := t.Mangled
	if key == "" {
		key = recordKey(t)
	}
	if id, ok := b.userKeys[key]; ok {
		return id, true
	}
	under, ok := b.typeID(t.Underlying)
	if !ok {
		return "", false
	}
	access, err := abi.ParseAccess(t.Access)
	if err != nil {
		b.warnType(diag.BuildUnsupportedType, t, err.Error())
		return "", false
	}
	info := &abi.EnumInfo{UnderlyingType: under}
	for _, e := range t.Enumerators {
		en, err := parseEnumerator(e)
		if err != nil {
			b.warnType(diag.BuildEnumeratorOverflow, t, err.Error())
			return "", false
		}
		info.Enumerators = append(info.Enumerators, en)
	}
	name := t.Name
	if name == "" || t.Anonymous {
		name = anonymousName(t)
	}
	size := b.sizes[under]
	if t.Size > 0 {
		if s, err := safecast.Conv[uint64](t.Size); err == nil {
			size = s
		}
	}
	align := uint32(size)
	if ut, ok := b.mod.LookupType(under); ok && ut.Alignment > 0 {
		align = ut.Alignment
	}
	id := b.mod.NewTypeID()
	nt := &abi.Type{
		Kind: abi.KindEnum, SelfType: id, ReferencedType: id, Name: name, LinkerSetKey: key,
		SourceFile: t.File, Access: access, Size: size, Alignment: align, Enum: info,
	}
	if err := b.mod.AddType(nt); err != nil {
		b.warnType(diag.BuildDuplicateKey, t, err.Error())
		return "", false
	}
	b.userKeys[key] = id
	b.names[id] = name
	b.sizes[id] = size
	return id, true
}

func parseEnumerator(e decl.Enumerator) (abi.Enumerator, error) {
	if v, err := strconv.ParseInt(e.Value, 10, 64); err == nil {
		return abi.Enumerator{Name: e.Name, Value: v}, nil
	}
	u, err := strconv.ParseUint(e.Value, 10, 64)
	if err != nil {
		return abi.Enumerator{}, fmt.Errorf("enumerator %s: value %q is not a 64-bit integer", e.Name, e.Value)
	}
	return abi.Enumerator{Name: e.Name, Value: int64(u), Unsigned: true}, nil
}
