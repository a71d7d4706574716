package symbols

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"abicheck/internal/abi"
)

// ReadList parses a text symbol list. Each line is
//
//	name [FUNC|OBJECT] [GLOBAL|WEAK] [version]
//
// with the attributes in any order; '#' starts a comment.
func ReadList(r io.Reader) (*Set, error) {
	set := NewSet()
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}
		sym := Symbol{Name: fields[0]}
		for _, attr := range fields[1:] {
			switch strings.ToUpper(attr) {
			case "FUNC":
				sym.Kind = abi.SymbolFunction
			case "OBJECT", "VAR":
				sym.Kind = abi.SymbolObject
			case "GLOBAL":
				sym.Binding = abi.BindingGlobal
			case "WEAK":
				sym.Binding = abi.BindingWeak
			default:
				if sym.Version != "" {
					return nil, fmt.Errorf("line %d: unexpected %q after version %q", line, attr, sym.Version)
				}
				sym.Version = attr
			}
		}
		set.Add(sym)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return set, nil
}

// ReadListFile opens path and parses it with ReadList.
func ReadListFile(path string) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open symbol list: %w", err)
	}
	defer f.Close()
	set, err := ReadList(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return set, nil
}
