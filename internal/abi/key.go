package abi

import (
	"strconv"
	"strings"
)

// StructuralKey identifies derived types (pointers, references, qualified,
// arrays, function types) by shape. Two such types with the same key are
// interchangeable and are collapsed into one node. Builtins key by their
// registry id. Records and enums have their own linkage identity and
// return the empty string.
func StructuralKey(t *Type) string {
	var sb strings.Builder
	sb.WriteString(t.Kind.String())
	sb.WriteByte('|')
	switch t.Kind {
	case KindBuiltin:
		sb.WriteString(t.SelfType)
	case KindPointer, KindLValueReference, KindRValueReference:
		sb.WriteString(t.ReferencedType)
		sb.WriteByte('|')
		sb.WriteString(strconv.FormatUint(t.Size, 10))
	case KindQualified:
		sb.WriteString(t.ReferencedType)
		sb.WriteByte('|')
		sb.WriteString(qualifierString(t))
	case KindArray:
		sb.WriteString(t.ReferencedType)
		sb.WriteByte('|')
		sb.WriteString(strconv.FormatUint(t.Length, 10))
		sb.WriteByte('|')
		sb.WriteString(strconv.FormatUint(t.Size, 10))
	case KindFunction:
		if t.Func == nil {
			return ""
		}
		sb.WriteString(t.Func.ReturnType)
		sb.WriteByte('(')
		for i, p := range t.Func.Params {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(p.Type)
		}
		sb.WriteByte(')')
	default:
		return ""
	}
	return sb.String()
}

func qualifierString(t *Type) string {
	var parts []string
	if t.IsConst {
		parts = append(parts, "const")
	}
	if t.IsVolatile {
		parts = append(parts, "volatile")
	}
	if t.IsRestricted {
		parts = append(parts, "restrict")
	}
	return strings.Join(parts, " ")
}

// QualifierString renders the cv-qualifiers of a qualified type.
func QualifierString(t *Type) string { return qualifierString(t) }

// DerivedName renders the display name of a derived type from the name
// of the type it refers to.
func DerivedName(t *Type, referencedName string) string {
	switch t.Kind {
	case KindPointer:
		return referencedName + " *"
	case KindLValueReference:
		return referencedName + " &"
	case KindRValueReference:
		return referencedName + " &&"
	case KindQualified:
		return qualifierString(t) + " " + referencedName
	case KindArray:
		return referencedName + "[" + strconv.FormatUint(t.Length, 10) + "]"
	default:
		return referencedName
	}
}
