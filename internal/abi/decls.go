package abi

// EntityKind names the top-level entity families of a Module.
type EntityKind uint8

const (
	EntityType EntityKind = iota + 1
	EntityFunction
	EntityGlobalVar
	EntityElfFunction
	EntityElfObject
)

func (k EntityKind) String() string {
	switch k {
	case EntityType:
		return "type"
	case EntityFunction:
		return "function"
	case EntityGlobalVar:
		return "global_var"
	case EntityElfFunction:
		return "elf_function"
	case EntityElfObject:
		return "elf_object"
	default:
		return "unknown"
	}
}

// Linkable is a header-derived entity that can be inserted into a Module.
type Linkable interface {
	Key() string
	EntityKind() EntityKind
}

// Function is an exported function or method. LinkerSetKey holds the
// mangled name.
type Function struct {
	Name         string
	LinkerSetKey string
	SourceFile   string
	ReturnType   string
	Params       []Param
	Access       Access
	TemplateKind TemplateKind
	TemplateArgs []string
}

func (f *Function) Key() string            { return f.LinkerSetKey }
func (f *Function) EntityKind() EntityKind { return EntityFunction }

// References returns the return type, the parameter types and the
// template arguments, in that order.
func (f *Function) References() []string {
	refs := make([]string, 0, len(f.Params)+len(f.TemplateArgs)+1)
	refs = append(refs, f.ReturnType)
	for _, p := range f.Params {
		refs = append(refs, p.Type)
	}
	return append(refs, f.TemplateArgs...)
}

// Remap rewrites every type reference through fn.
func (f *Function) Remap(fn func(string) string) {
	f.ReturnType = fn(f.ReturnType)
	for i := range f.Params {
		f.Params[i].Type = fn(f.Params[i].Type)
	}
	for i := range f.TemplateArgs {
		f.TemplateArgs[i] = fn(f.TemplateArgs[i])
	}
}

// Clone returns a deep copy.
func (f *Function) Clone() *Function {
	c := *f
	c.Params = append([]Param(nil), f.Params...)
	c.TemplateArgs = append([]string(nil), f.TemplateArgs...)
	return &c
}

// GlobalVar is an exported variable.
type GlobalVar struct {
	Name         string
	LinkerSetKey string
	SourceFile   string
	Type         string
	Access       Access
}

func (v *GlobalVar) Key() string            { return v.LinkerSetKey }
func (v *GlobalVar) EntityKind() EntityKind { return EntityGlobalVar }

// ElfSymbol is an entry of the library's dynamic symbol table.
type ElfSymbol struct {
	Name    string
	Binding Binding
	Kind    SymbolKind
	Version string
}

func (s *ElfSymbol) Key() string { return s.Name }

func (s *ElfSymbol) EntityKind() EntityKind {
	if s.Kind == SymbolObject {
		return EntityElfObject
	}
	return EntityElfFunction
}
