package diag

import (
	"fmt"
)

type Code uint16

const (
	// Неизвестная ошибка
	UnknownCode Code = 0

	// Построение IR из деклараций
	BuildInfo               Code = 1000
	BuildUnsupportedType    Code = 1001
	BuildUnsupportedDecl    Code = 1002
	BuildMissingType        Code = 1003
	BuildInvalidLayout      Code = 1004
	BuildDuplicateKey       Code = 1005
	BuildMissingName        Code = 1006
	BuildIncompleteRecord   Code = 1007
	BuildUnitDecodeFailed   Code = 1008
	BuildCacheUnavailable   Code = 1009
	BuildTypeCycle          Code = 1010
	BuildUnsupportedVTable  Code = 1011
	BuildEnumeratorOverflow Code = 1012

	// Линковка единиц трансляции
	LinkInfo            Code = 2000
	LinkODRViolation    Code = 2001
	LinkDuplicateDecl   Code = 2002
	LinkNotExported     Code = 2003
	LinkSymbolNoDecl    Code = 2004
	LinkOutsideHeaders  Code = 2005
	LinkValidateFailure Code = 2006

	// Символы
	SymInfo             Code = 3000
	SymMalformedLine    Code = 3001
	SymDuplicate        Code = 3002
	SymUnknownKind      Code = 3003
	SymUnbalancedScript Code = 3004

	// Сравнение
	DiffInfo             Code = 4000
	DiffUnknownKind      Code = 4001
	DiffThunkMismatch    Code = 4002
	DiffMissingType      Code = 4003
	DiffODRAmbiguous     Code = 4004
	DiffSkippedAnonymous Code = 4005

	// Политика и ignore-списки
	PolicyInfo            Code = 5000
	PolicyUnmatchedIgnore Code = 5001
	PolicyUnknownCategory Code = 5002
	PolicyFixedCategory   Code = 5003
	PolicyUnknownLevel    Code = 5004
	PolicyUnknownKey      Code = 5005
	PolicyBadPattern      Code = 5006

	// Наблюдаемость
	ObsInfo    Code = 6000
	ObsTimings Code = 6001
)

var (
	codeDescription = map[Code]string{
		UnknownCode:             "Unknown error",
		BuildInfo:               "Build information",
		BuildUnsupportedType:    "Unsupported type kind",
		BuildUnsupportedDecl:    "Unsupported declaration kind",
		BuildMissingType:        "Reference to an unknown type",
		BuildInvalidLayout:      "Invalid layout value",
		BuildDuplicateKey:       "Duplicate linker set key",
		BuildMissingName:        "Declaration without a name",
		BuildIncompleteRecord:   "Record has no definition in this unit",
		BuildUnitDecodeFailed:   "Declaration unit could not be decoded",
		BuildCacheUnavailable:   "Unit cache unavailable",
		BuildTypeCycle:          "Type chain does not terminate",
		BuildUnsupportedVTable:  "Unsupported vtable component",
		BuildEnumeratorOverflow: "Enumerator value out of range",
		LinkInfo:                "Link information",
		LinkODRViolation:        "Conflicting definitions under one linker set key",
		LinkDuplicateDecl:       "Declaration already linked",
		LinkNotExported:         "Declaration is not exported",
		LinkSymbolNoDecl:        "Exported symbol has no declaration",
		LinkOutsideHeaders:      "Declaration outside exported headers",
		LinkValidateFailure:     "Linked module failed validation",
		SymInfo:                 "Symbol information",
		SymMalformedLine:        "Malformed symbol line",
		SymDuplicate:            "Duplicate symbol",
		SymUnknownKind:          "Unknown symbol kind",
		SymUnbalancedScript:     "Unbalanced version script block",
		DiffInfo:                "Diff information",
		DiffUnknownKind:         "Comparator received an unknown kind",
		DiffThunkMismatch:       "Vtable thunk prefix differs",
		DiffMissingType:         "Referenced type missing during diff",
		DiffODRAmbiguous:        "Several definitions share one key",
		DiffSkippedAnonymous:    "Anonymous element skipped",
		PolicyInfo:              "Policy information",
		PolicyUnmatchedIgnore:   "Ignore entry matches nothing",
		PolicyUnknownCategory:   "Unknown change category",
		PolicyFixedCategory:     "Change category cannot be overridden",
		PolicyUnknownLevel:      "Unknown policy level",
		PolicyUnknownKey:        "Unknown configuration key",
		PolicyBadPattern:        "Malformed ignore pattern",
		ObsInfo:                 "Observability information",
		ObsTimings:              "Pipeline timings",
	}
)

func (c Code) ID() string {
	switch ic := int(c); {
	case ic >= 1000 && ic < 2000:
		return fmt.Sprintf("BLD%04d", ic)
	case ic >= 2000 && ic < 3000:
		return fmt.Sprintf("LNK%04d", ic)
	case ic >= 3000 && ic < 4000:
		return fmt.Sprintf("SYM%04d", ic)
	case ic >= 4000 && ic < 5000:
		return fmt.Sprintf("DIF%04d", ic)
	case ic >= 5000 && ic < 6000:
		return fmt.Sprintf("POL%04d", ic)
	case ic >= 6000 && ic < 7000:
		return fmt.Sprintf("OBS%04d", ic)
	}
	return "E0000"
}

func (c Code) Title() string {
	desc, ok := codeDescription[c]
	if !ok {
		return codeDescription[Code(0)]
	}
	return desc
}

func (c Code) String() string {
	return fmt.Sprintf("[%s]: %s", c.ID(), c.Title())
}
