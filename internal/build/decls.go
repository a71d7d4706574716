package build

import (
	"fmt"

	"abicheck/internal/abi"
	"abicheck/internal/decl"
	"abicheck/internal/diag"
)

func declKey(d decl.Decl) string {
	if d.Mangled != "" {
		return d.Mangled
	}
	return d.Name
}

func (b *Builder) addFunction(d decl.Decl) *abi.Function {
	key := declKey(d)
	if key == "" {
		diag.ReportWarning(b.reporter, diag.BuildMissingName, declLocation(d), "function without a name").Emit()
		return nil
	}
	if f, ok := b.mod.Function(key); ok {
		return f
	}
	access, err := abi.ParseAccess(d.Access)
	if err != nil {
		b.skipDecl(d, err.Error())
		return nil
	}
	tk, err := abi.ParseTemplateKind(d.TemplateKind)
	if err != nil {
		b.skipDecl(d, err.Error())
		return nil
	}
	ret, ok := b.typeID(d.Return)
	if !ok {
		b.skipDecl(d, "return type is not representable")
		return nil
	}
	f := &abi.Function{
		Name:         d.Name,
		LinkerSetKey: key,
		SourceFile:   d.File,
		ReturnType:   ret,
		Access:       access,
		TemplateKind: tk,
	}
	if f.Name == "" {
		f.Name = key
	}
	for i, p := range d.Params {
		pt, ok := b.typeID(p.Type)
		if !ok {
			b.skipDecl(d, fmt.Sprintf("parameter %d is not representable", i))
			return nil
		}
		f.Params = append(f.Params, abi.Param{Type: pt, HasDefault: p.HasDefault, IsThis: p.This})
	}
	for i, arg := range d.TemplateArgs {
		at, ok := b.typeID(arg)
		if !ok {
			b.skipDecl(d, fmt.Sprintf("template argument %d is not representable", i))
			return nil
		}
		f.TemplateArgs = append(f.TemplateArgs, at)
	}
	if err := b.mod.AddFunction(f); err != nil {
		diag.ReportWarning(b.reporter, diag.BuildDuplicateKey, declLocation(d), err.Error()).Emit()
		return nil
	}
	return f
}

func (b *Builder) addVar(d decl.Decl) *abi.GlobalVar {
	key := declKey(d)
	if key == "" {
		diag.ReportWarning(b.reporter, diag.BuildMissingName, declLocation(d), "variable without a name").Emit()
		return nil
	}
	if v, ok := b.mod.GlobalVar(key); ok {
		return v
	}
	access, err := abi.ParseAccess(d.Access)
	if err != nil {
		b.skipDecl(d, err.Error())
		return nil
	}
	vt, ok := b.typeID(d.Type)
	if !ok {
		b.skipDecl(d, "type is not representable")
		return nil
	}
	v := &abi.GlobalVar{Name: d.Name, LinkerSetKey: key, SourceFile: d.File, Type: vt, Access: access}
	if v.Name == "" {
		v.Name = key
	}
	if err := b.mod.AddGlobalVar(v); err != nil {
		diag.ReportWarning(b.reporter, diag.BuildDuplicateKey, declLocation(d), err.Error()).Emit()
		return nil
	}
	return v
}
