package abi

import (
	"fmt"
	"sort"
	"strings"
)

// DataModel selects the sizes of the fundamental types.
type DataModel uint8

const (
	LP64 DataModel = iota + 1
	ILP32
)

func (d DataModel) String() string {
	switch d {
	case LP64:
		return "lp64"
	case ILP32:
		return "ilp32"
	default:
		return "unknown"
	}
}

// DataModelForArch maps an architecture name to its data model.
func DataModelForArch(arch string) (DataModel, error) {
	switch strings.ToLower(arch) {
	case "", "arm64", "aarch64", "x86_64", "amd64", "riscv64", "lp64":
		return LP64, nil
	case "arm", "armv7", "x86", "i386", "i686", "ilp32":
		return ILP32, nil
	default:
		return 0, fmt.Errorf("unknown architecture %q", arch)
	}
}

type builtinSpec struct {
	name     string
	code     string
	size64   uint64
	size32   uint64
	align64  uint32
	align32  uint32
	unsigned bool
	integral bool
}

// Codes follow the Itanium mangling of fundamental types so the keys
// match the RTTI names a C++ frontend reports.
var builtinSpecs = []builtinSpec{
	{name: "void", code: "v"},
	{name: "bool", code: "b", size64: 1, size32: 1, align64: 1, align32: 1, unsigned: true, integral: true},
	{name: "char", code: "c", size64: 1, size32: 1, align64: 1, align32: 1, integral: true},
	{name: "signed char", code: "a", size64: 1, size32: 1, align64: 1, align32: 1, integral: true},
	{name: "unsigned char", code: "h", size64: 1, size32: 1, align64: 1, align32: 1, unsigned: true, integral: true},
	{name: "short", code: "s", size64: 2, size32: 2, align64: 2, align32: 2, integral: true},
	{name: "unsigned short", code: "t", size64: 2, size32: 2, align64: 2, align32: 2, unsigned: true, integral: true},
	{name: "int", code: "i", size64: 4, size32: 4, align64: 4, align32: 4, integral: true},
	{name: "unsigned int", code: "j", size64: 4, size32: 4, align64: 4, align32: 4, unsigned: true, integral: true},
	{name: "long", code: "l", size64: 8, size32: 4, align64: 8, align32: 4, integral: true},
	{name: "unsigned long", code: "m", size64: 8, size32: 4, align64: 8, align32: 4, unsigned: true, integral: true},
	{name: "long long", code: "x", size64: 8, size32: 8, align64: 8, align32: 8, integral: true},
	{name: "unsigned long long", code: "y", size64: 8, size32: 8, align64: 8, align32: 8, unsigned: true, integral: true},
	{name: "__int128", code: "n", size64: 16, size32: 16, align64: 16, align32: 16, integral: true},
	{name: "unsigned __int128", code: "o", size64: 16, size32: 16, align64: 16, align32: 16, unsigned: true, integral: true},
	{name: "float", code: "f", size64: 4, size32: 4, align64: 4, align32: 4},
	{name: "double", code: "d", size64: 8, size32: 8, align64: 8, align32: 8},
	{name: "long double", code: "e", size64: 16, size32: 8, align64: 16, align32: 8},
	{name: "wchar_t", code: "w", size64: 4, size32: 4, align64: 4, align32: 4, integral: true},
	{name: "char8_t", code: "Du", size64: 1, size32: 1, align64: 1, align32: 1, unsigned: true, integral: true},
	{name: "char16_t", code: "Ds", size64: 2, size32: 2, align64: 2, align32: 2, unsigned: true, integral: true},
	{name: "char32_t", code: "Di", size64: 4, size32: 4, align64: 4, align32: 4, unsigned: true, integral: true},
	{name: "std::nullptr_t", code: "Dn", size64: 8, size32: 4, align64: 8, align32: 4},
}

// aliases lets a frontend spell a builtin the long way.
var builtinAliases = map[string]string{
	"signed":                 "int",
	"signed int":             "int",
	"unsigned":               "unsigned int",
	"short int":              "short",
	"signed short":           "short",
	"unsigned short int":     "unsigned short",
	"long int":               "long",
	"signed long":            "long",
	"unsigned long int":      "unsigned long",
	"long long int":          "long long",
	"unsigned long long int": "unsigned long long",
	"_Bool":                  "bool",
	"nullptr_t":              "std::nullptr_t",
	"decltype(nullptr)":      "std::nullptr_t",
}

// The registry is filled once in init and never written afterwards, so
// concurrent builders can read it without locking.
var builtinRegistry map[DataModel]map[string]*Type

func init() {
	builtinRegistry = map[DataModel]map[string]*Type{
		LP64:  make(map[string]*Type, len(builtinSpecs)),
		ILP32: make(map[string]*Type, len(builtinSpecs)),
	}
	for _, s := range builtinSpecs {
		key := BuiltinKey(s.code)
		builtinRegistry[LP64][s.name] = &Type{
			Kind: KindBuiltin, SelfType: key, LinkerSetKey: key, ReferencedType: key, Name: s.name,
			Size: s.size64, Alignment: s.align64, IsUnsigned: s.unsigned, IsIntegral: s.integral,
			Access: AccessPublic,
		}
		builtinRegistry[ILP32][s.name] = &Type{
			Kind: KindBuiltin, SelfType: key, LinkerSetKey: key, ReferencedType: key, Name: s.name,
			Size: s.size32, Alignment: s.align32, IsUnsigned: s.unsigned, IsIntegral: s.integral,
			Access: AccessPublic,
		}
	}
}

// BuiltinKey is the registry key for an Itanium fundamental type code.
func BuiltinKey(code string) string { return "_ZTI" + code }

// LookupBuiltin returns a fresh copy of the registry entry for name.
// Callers own the copy; the registry entry itself is never handed out.
func LookupBuiltin(model DataModel, name string) (*Type, bool) {
	table, ok := builtinRegistry[model]
	if !ok {
		return nil, false
	}
	name = strings.TrimSpace(name)
	if canonical, ok := builtinAliases[name]; ok {
		name = canonical
	}
	t, ok := table[name]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// BuiltinNames lists the registered builtin names in sorted order.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtinSpecs))
	for _, s := range builtinSpecs {
		names = append(names, s.name)
	}
	sort.Strings(names)
	return names
}
