package irdump

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"fortio.org/safecast"

	"abicheck/internal/abi"
)

func baseOf(t *abi.Type) typeBase {
	return typeBase{
		Name:           t.Name,
		Size:           t.Size,
		Alignment:      uint64(t.Alignment),
		ReferencedType: t.ReferencedType,
		SelfType:       t.SelfType,
		LinkerSetKey:   t.LinkerSetKey,
		SourceFile:     t.SourceFile,
		Access:         t.Access.String(),
	}
}

func paramsOf(ps []abi.Param) []parameter {
	if len(ps) == 0 {
		return nil
	}
	out := make([]parameter, len(ps))
	for i, p := range ps {
		out[i] = parameter{ReferencedType: p.Type, DefaultArg: p.HasDefault, IsThisPtr: p.IsThis}
	}
	return out
}

// addType files t under the list of its kind.
func (d *document) addType(t *abi.Type) error {
	switch t.Kind {
	case abi.KindBuiltin:
		d.BuiltinTypes = append(d.BuiltinTypes, builtinType{typeBase: baseOf(t), IsUnsigned: t.IsUnsigned, IsIntegral: t.IsIntegral})
	case abi.KindPointer:
		d.PointerTypes = append(d.PointerTypes, derivedType{baseOf(t)})
	case abi.KindLValueReference:
		d.LValueReferenceTypes = append(d.LValueReferenceTypes, derivedType{baseOf(t)})
	case abi.KindRValueReference:
		d.RValueReferenceTypes = append(d.RValueReferenceTypes, derivedType{baseOf(t)})
	case abi.KindQualified:
		d.QualifiedTypes = append(d.QualifiedTypes, qualifiedType{
			typeBase: baseOf(t), IsConst: t.IsConst, IsVolatile: t.IsVolatile, IsRestricted: t.IsRestricted,
		})
	case abi.KindArray:
		d.ArrayTypes = append(d.ArrayTypes, arrayType{typeBase: baseOf(t), Length: t.Length})
	case abi.KindRecord:
		rec, err := recordOf(t)
		if err != nil {
			return err
		}
		d.RecordTypes = append(d.RecordTypes, rec)
	case abi.KindEnum:
		et := enumType{typeBase: baseOf(t), UnderlyingType: t.Enum.UnderlyingType}
		for _, e := range t.Enum.Enumerators {
			et.EnumFields = append(et.EnumFields, enumField{Name: e.Name, EnumFieldValue: e.Value, IsUnsigned: e.Unsigned})
		}
		d.EnumTypes = append(d.EnumTypes, et)
	case abi.KindFunction:
		d.FunctionTypes = append(d.FunctionTypes, functionType{
			typeBase: baseOf(t), ReturnType: t.Func.ReturnType, Parameters: paramsOf(t.Func.Params),
		})
	default:
		return fmt.Errorf("type %s: cannot dump kind %s", t.SelfType, t.Kind)
	}
	return nil
}

func recordOf(t *abi.Type) (recordType, error) {
	r := t.Record
	rec := recordType{
		typeBase:     baseOf(t),
		RecordKind:   r.Kind.String(),
		TemplateArgs: slices.Clone(r.TemplateArgs),
		IsAnonymous:  r.Anonymous,
		IsOpaque:     r.Opaque,
	}
	for _, f := range r.Fields {
		if f.Offset > (math.MaxUint64-uint64(f.BitOffset))/8 {
			return recordType{}, fmt.Errorf("record %s: field %s offset overflows bits", t.LinkerSetKey, f.Name)
		}
		rec.Fields = append(rec.Fields, recordField{
			FieldName:      f.Name,
			ReferencedType: f.Type,
			FieldOffset:    f.Offset*8 + uint64(f.BitOffset),
			BitWidth:       uint64(f.BitWidth),
			Access:         f.Access.String(),
		})
	}
	for _, b := range r.Bases {
		rec.BaseSpecifiers = append(rec.BaseSpecifiers, baseSpecifier{ReferencedType: b.Type, IsVirtual: b.IsVirtual, Access: b.Access.String()})
	}
	for _, c := range r.VTable {
		rec.VTableComponents = append(rec.VTableComponents, vtableComponent{
			Kind: c.Kind.String(), MangledComponentName: c.MangledName, ComponentValue: c.Value, IsPure: c.IsPure,
		})
	}
	return rec, nil
}

func (d *document) addFunction(f *abi.Function) {
	fn := function{
		FunctionName: f.Name,
		LinkerSetKey: f.LinkerSetKey,
		SourceFile:   f.SourceFile,
		ReturnType:   f.ReturnType,
		Parameters:   paramsOf(f.Params),
		Access:       f.Access.String(),
		TemplateArgs: slices.Clone(f.TemplateArgs),
	}
	if f.TemplateKind != abi.TemplateNone {
		fn.TemplateKind = f.TemplateKind.String()
	}
	d.Functions = append(d.Functions, fn)
}

func (d *document) addGlobalVar(v *abi.GlobalVar) {
	d.GlobalVars = append(d.GlobalVars, globalVar{
		Name: v.Name, LinkerSetKey: v.LinkerSetKey, SourceFile: v.SourceFile, ReferencedType: v.Type, Access: v.Access.String(),
	})
}

func (d *document) addElfSymbol(s *abi.ElfSymbol) {
	sym := elfSymbol{Name: s.Name, Version: s.Version}
	if s.Binding == abi.BindingWeak {
		sym.Binding = s.Binding.String()
	}
	if s.Kind == abi.SymbolObject {
		d.ElfObjects = append(d.ElfObjects, sym)
	} else {
		d.ElfFunctions = append(d.ElfFunctions, sym)
	}
}

func byID[T any](id func(*T) string) func(a, b T) int {
	return func(a, b T) int { return abi.CompareIDs(id(&a), id(&b)) }
}

// normalize sorts every list so that a document is a function of its
// content only.
func (d *document) normalize() {
	slices.SortStableFunc(d.BuiltinTypes, byID(func(t *builtinType) string { return t.SelfType }))
	for _, list := range [][]derivedType{d.PointerTypes, d.LValueReferenceTypes, d.RValueReferenceTypes} {
		slices.SortStableFunc(list, byID(func(t *derivedType) string { return t.SelfType }))
	}
	slices.SortStableFunc(d.QualifiedTypes, byID(func(t *qualifiedType) string { return t.SelfType }))
	slices.SortStableFunc(d.ArrayTypes, byID(func(t *arrayType) string { return t.SelfType }))
	slices.SortStableFunc(d.RecordTypes, byID(func(t *recordType) string { return t.SelfType }))
	slices.SortStableFunc(d.EnumTypes, byID(func(t *enumType) string { return t.SelfType }))
	slices.SortStableFunc(d.FunctionTypes, byID(func(t *functionType) string { return t.SelfType }))
	slices.SortStableFunc(d.Functions, func(a, b function) int { return strings.Compare(a.LinkerSetKey, b.LinkerSetKey) })
	slices.SortStableFunc(d.GlobalVars, func(a, b globalVar) int { return strings.Compare(a.LinkerSetKey, b.LinkerSetKey) })
	slices.SortStableFunc(d.ElfFunctions, func(a, b elfSymbol) int { return strings.Compare(a.Name, b.Name) })
	slices.SortStableFunc(d.ElfObjects, func(a, b elfSymbol) int { return strings.Compare(a.Name, b.Name) })
	d.EntityCount = d.count()
}

func (d *document) count() int {
	return len(d.BuiltinTypes) + len(d.PointerTypes) + len(d.LValueReferenceTypes) + len(d.RValueReferenceTypes) +
		len(d.QualifiedTypes) + len(d.ArrayTypes) + len(d.RecordTypes) + len(d.EnumTypes) + len(d.FunctionTypes) +
		len(d.Functions) + len(d.GlobalVars) + len(d.ElfFunctions) + len(d.ElfObjects)
}

// decoder keeps the first conversion error in document order.
type decoder struct {
	mod *abi.Module
	err error
}

func (dc *decoder) fail(format string, args ...any) {
	if dc.err == nil {
		dc.err = fmt.Errorf(format, args...)
	}
}

func (dc *decoder) base(kind abi.Kind, b typeBase) *abi.Type {
	access, err := abi.ParseAccess(b.Access)
	if err != nil {
		dc.fail("type %s: %w", b.SelfType, err)
	}
	align, err := safecast.Conv[uint32](b.Alignment)
	if err != nil {
		dc.fail("type %s: alignment %d: %w", b.SelfType, b.Alignment, err)
	}
	if b.SelfType == "" {
		dc.fail("%s type %q without self_type", kind, b.Name)
	}
	return &abi.Type{
		Kind:           kind,
		SelfType:       b.SelfType,
		Name:           b.Name,
		LinkerSetKey:   b.LinkerSetKey,
		SourceFile:     b.SourceFile,
		Size:           b.Size,
		Alignment:      align,
		ReferencedType: b.ReferencedType,
		Access:         access,
	}
}

func (dc *decoder) add(t *abi.Type) {
	if dc.err != nil {
		return
	}
	switch t.Kind {
	case abi.KindPointer, abi.KindLValueReference, abi.KindRValueReference, abi.KindQualified, abi.KindArray:
		if t.ReferencedType == "" {
			dc.fail("%s type %s without referenced_type", t.Kind, t.SelfType)
			return
		}
	}
	if err := dc.mod.AddType(t); err != nil {
		dc.fail("%w", err)
	}
}

func (dc *decoder) params(ps []parameter) []abi.Param {
	if len(ps) == 0 {
		return nil
	}
	out := make([]abi.Param, len(ps))
	for i, p := range ps {
		if p.ReferencedType == "" {
			dc.fail("parameter %d without referenced_type", i)
		}
		out[i] = abi.Param{Type: p.ReferencedType, HasDefault: p.DefaultArg, IsThis: p.IsThisPtr}
	}
	return out
}

func nilIfEmpty[T any](s []T) []T {
	if len(s) == 0 {
		return nil
	}
	return s
}

func (dc *decoder) record(r recordType) *abi.Type {
	t := dc.base(abi.KindRecord, r.typeBase)
	kind, err := abi.ParseRecordKind(r.RecordKind)
	if err != nil {
		dc.fail("record %s: %w", r.SelfType, err)
	}
	info := &abi.RecordInfo{
		Kind: kind, TemplateArgs: nilIfEmpty(slices.Clone(r.TemplateArgs)), Anonymous: r.IsAnonymous, Opaque: r.IsOpaque,
	}
	for _, f := range r.Fields {
		access, err := abi.ParseAccess(f.Access)
		if err != nil {
			dc.fail("record %s field %s: %w", r.SelfType, f.FieldName, err)
		}
		width, err := safecast.Conv[uint32](f.BitWidth)
		if err != nil {
			dc.fail("record %s field %s: bit_width %d: %w", r.SelfType, f.FieldName, f.BitWidth, err)
		}
		bit, _ := safecast.Conv[uint32](f.FieldOffset % 8)
		if f.ReferencedType == "" {
			dc.fail("record %s field %s without referenced_type", r.SelfType, f.FieldName)
		}
		info.Fields = append(info.Fields, abi.Field{
			Name: f.FieldName, Type: f.ReferencedType, Offset: f.FieldOffset / 8, BitOffset: bit, BitWidth: width, Access: access,
		})
	}
	for _, b := range r.BaseSpecifiers {
		access, err := abi.ParseAccess(b.Access)
		if err != nil {
			dc.fail("record %s base: %w", r.SelfType, err)
		}
		info.Bases = append(info.Bases, abi.BaseSpecifier{Type: b.ReferencedType, IsVirtual: b.IsVirtual, Access: access})
	}
	for _, c := range r.VTableComponents {
		kind, err := abi.ParseVTableComponentKind(c.Kind)
		if err != nil {
			dc.fail("record %s vtable: %w", r.SelfType, err)
		}
		info.VTable = append(info.VTable, abi.VTableComponent{
			Kind: kind, MangledName: c.MangledComponentName, Value: c.ComponentValue, IsPure: c.IsPure,
		})
	}
	t.Record = info
	return t
}

func (dc *decoder) function(f function) {
	if dc.err != nil {
		return
	}
	access, err := abi.ParseAccess(f.Access)
	if err != nil {
		dc.fail("function %s: %w", f.LinkerSetKey, err)
	}
	tk, err := abi.ParseTemplateKind(f.TemplateKind)
	if err != nil {
		dc.fail("function %s: %w", f.LinkerSetKey, err)
	}
	fn := &abi.Function{
		Name:         f.FunctionName,
		LinkerSetKey: f.LinkerSetKey,
		SourceFile:   f.SourceFile,
		ReturnType:   f.ReturnType,
		Params:       dc.params(f.Parameters),
		Access:       access,
		TemplateKind: tk,
		TemplateArgs: nilIfEmpty(slices.Clone(f.TemplateArgs)),
	}
	if f.ReturnType == "" {
		dc.fail("function %s without return_type", f.LinkerSetKey)
	}
	if dc.err == nil {
		if err := dc.mod.AddFunction(fn); err != nil {
			dc.fail("%w", err)
		}
	}
}

func (dc *decoder) elf(s elfSymbol, kind abi.SymbolKind) {
	if dc.err != nil {
		return
	}
	binding, err := abi.ParseBinding(s.Binding)
	if err != nil {
		dc.fail("elf symbol %s: %w", s.Name, err)
		return
	}
	if err := dc.mod.AddElfSymbol(&abi.ElfSymbol{Name: s.Name, Kind: kind, Binding: binding, Version: s.Version}); err != nil {
		dc.fail("%w", err)
	}
}

var errTruncated = errors.New("entity count does not match the document (truncated?)")

// toModule rebuilds a Module from a decoded document and validates it.
func (d *document) toModule() (*abi.Module, error) {
	if d.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrSchemaVersion, d.SchemaVersion, SchemaVersion)
	}
	if d.EntityCount != d.count() {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, errTruncated)
	}
	dc := &decoder{mod: abi.NewModule(d.LibName, d.Arch)}

	for _, b := range d.BuiltinTypes {
		t := dc.base(abi.KindBuiltin, b.typeBase)
		t.IsUnsigned, t.IsIntegral = b.IsUnsigned, b.IsIntegral
		dc.add(t)
	}
	for _, p := range d.PointerTypes {
		dc.add(dc.base(abi.KindPointer, p.typeBase))
	}
	for _, r := range d.LValueReferenceTypes {
		dc.add(dc.base(abi.KindLValueReference, r.typeBase))
	}
	for _, r := range d.RValueReferenceTypes {
		dc.add(dc.base(abi.KindRValueReference, r.typeBase))
	}
	for _, q := range d.QualifiedTypes {
		t := dc.base(abi.KindQualified, q.typeBase)
		t.IsConst, t.IsVolatile, t.IsRestricted = q.IsConst, q.IsVolatile, q.IsRestricted
		dc.add(t)
	}
	for _, a := range d.ArrayTypes {
		t := dc.base(abi.KindArray, a.typeBase)
		t.Length = a.Length
		dc.add(t)
	}
	for _, r := range d.RecordTypes {
		dc.add(dc.record(r))
	}
	for _, e := range d.EnumTypes {
		t := dc.base(abi.KindEnum, e.typeBase)
		info := &abi.EnumInfo{UnderlyingType: e.UnderlyingType}
		for _, f := range e.EnumFields {
			info.Enumerators = append(info.Enumerators, abi.Enumerator{Name: f.Name, Value: f.EnumFieldValue, Unsigned: f.IsUnsigned})
		}
		t.Enum = info
		dc.add(t)
	}
	for _, f := range d.FunctionTypes {
		t := dc.base(abi.KindFunction, f.typeBase)
		t.Func = &abi.FuncSig{ReturnType: f.ReturnType, Params: dc.params(f.Parameters)}
		dc.add(t)
	}
	for _, f := range d.Functions {
		dc.function(f)
	}
	for _, v := range d.GlobalVars {
		if dc.err != nil {
			break
		}
		access, err := abi.ParseAccess(v.Access)
		if err != nil {
			dc.fail("global var %s: %w", v.LinkerSetKey, err)
			break
		}
		if err := dc.mod.AddGlobalVar(&abi.GlobalVar{
			Name: v.Name, LinkerSetKey: v.LinkerSetKey, SourceFile: v.SourceFile, Type: v.ReferencedType, Access: access,
		}); err != nil {
			dc.fail("%w", err)
		}
	}
	for _, s := range d.ElfFunctions {
		dc.elf(s, abi.SymbolFunction)
	}
	for _, s := range d.ElfObjects {
		dc.elf(s, abi.SymbolObject)
	}

	if dc.err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, dc.err)
	}
	if err := dc.mod.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return dc.mod, nil
}
