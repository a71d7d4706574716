package symbols

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"abicheck/internal/abi"
)

// ErrVersionScript wraps every version script syntax error.
var ErrVersionScript = errors.New("malformed version script")

type vsToken struct {
	text string
	line int
	// tags of the line the token is on: "# var", "# weak"
	isVar, isWeak bool
}

func tokenizeVersionScript(r io.Reader) ([]vsToken, error) {
	var toks []vsToken
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		code, comment, _ := strings.Cut(sc.Text(), "#")
		var isVar, isWeak bool
		for _, tag := range strings.Fields(comment) {
			switch tag {
			case "var":
				isVar = true
			case "weak":
				isWeak = true
			}
		}
		emit := func(s string) {
			toks = append(toks, vsToken{text: s, line: line, isVar: isVar, isWeak: isWeak})
		}
		start := -1
		for i := 0; i < len(code); i++ {
			c := code[i]
			switch {
			case c == '"':
				if start >= 0 {
					emit(code[start:i])
					start = -1
				}
				end := strings.IndexByte(code[i+1:], '"')
				if end < 0 {
					return nil, fmt.Errorf("line %d: unterminated string: %w", line, ErrVersionScript)
				}
				emit(code[i : i+end+2])
				i += end + 1
			case c == '{' || c == '}' || c == ';' || c == ':' || c == ' ' || c == '\t' || c == '\r':
				if start >= 0 {
					emit(code[start:i])
					start = -1
				}
				if c != ' ' && c != '\t' && c != '\r' {
					emit(string(c))
				}
			default:
				if start < 0 {
					start = i
				}
			}
		}
		if start >= 0 {
			emit(code[start:])
		}
	}
	return toks, sc.Err()
}

// ReadVersionScript collects the global symbols of a linker version script:
//
//	LIBFOO_1.0 {
//	  global:
//	    foo;
//	    foo_count; # var
//	    foo_hook;  # weak
//	  local:
//	    *;
//	};
//
// Symbols default to functions; the "var" and "weak" comment tags mark
// objects and weak bindings. Wildcard and extern "C++" entries cannot name
// a symbol and are skipped. Nodes whose version matches one of
// excludeVersions (path.Match globs) contribute nothing.
func ReadVersionScript(r io.Reader, excludeVersions ...string) (*Set, error) {
	toks, err := tokenizeVersionScript(r)
	if err != nil {
		return nil, err
	}
	for _, p := range excludeVersions {
		if _, err := path.Match(p, ""); err != nil {
			return nil, fmt.Errorf("exclude version %q: %w", p, err)
		}
	}
	excluded := func(version string) bool {
		for _, p := range excludeVersions {
			if ok, _ := path.Match(p, version); ok {
				return true
			}
		}
		return false
	}

	set := NewSet()
	p := &vsParser{toks: toks}
	for !p.done() {
		version := ""
		if p.peek() != "{" {
			version = p.next().text
		}
		if err := p.expect("{"); err != nil {
			return nil, err
		}
		if err := p.node(set, version, excluded(version)); err != nil {
			return nil, err
		}
	}
	return set, nil
}

// ReadVersionScriptFile opens path and parses it with ReadVersionScript.
func ReadVersionScriptFile(path string, excludeVersions ...string) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open version script: %w", err)
	}
	defer f.Close()
	set, err := ReadVersionScript(f, excludeVersions...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return set, nil
}

type vsParser struct {
	toks []vsToken
	pos  int
}

func (p *vsParser) done() bool { return p.pos >= len(p.toks) }

func (p *vsParser) peek() string {
	if p.done() {
		return ""
	}
	return p.toks[p.pos].text
}

func (p *vsParser) next() vsToken {
	t := p.toks[p.pos]
	p.pos++
	return t
}

func (p *vsParser) expect(text string) error {
	if p.done() {
		return p.errorf("expected %q, got end of file", text)
	}
	if tok := p.next(); tok.text != text {
		return p.errorfAt(tok, "expected %q, got %q", text, tok.text)
	}
	return nil
}

// node reads the body of one version node up to and including its
// closing "};".
func (p *vsParser) node(set *Set, version string, skip bool) error {
	global := true
	for {
		if p.done() {
			return p.errorf("unexpected end of file in node %q", version)
		}
		tok := p.next()
		switch tok.text {
		case "}":
			// optional parent version list
			for !p.done() && p.peek() != ";" {
				p.next()
			}
			return p.expect(";")
		case "global", "local":
			if p.peek() != ":" {
				break
			}
			p.next()
			global = tok.text == "global"
			continue
		case "extern":
			if err := p.skipExtern(); err != nil {
				return err
			}
			continue
		case "{", ";", ":":
			return p.errorfAt(tok, "unexpected %q", tok.text)
		}
		if err := p.expect(";"); err != nil {
			return err
		}
		if skip || !global || strings.ContainsAny(tok.text, "*?[") {
			continue
		}
		sym := Symbol{Name: tok.text, Kind: abi.SymbolFunction, Version: version}
		if tok.isVar {
			sym.Kind = abi.SymbolObject
		}
		if tok.isWeak {
			sym.Binding = abi.BindingWeak
		}
		set.Add(sym)
	}
}

// skipExtern consumes `"lang" { ... };` after the extern keyword.
func (p *vsParser) skipExtern() error {
	if p.done() {
		return p.errorf("unexpected end of file after extern")
	}
	p.next() // language string
	if err := p.expect("{"); err != nil {
		return err
	}
	for {
		if p.done() {
			return p.errorf("unexpected end of file in extern block")
		}
		if p.next().text == "}" {
			break
		}
	}
	if p.peek() == ";" {
		p.next()
	}
	return nil
}

func (p *vsParser) errorf(format string, args ...any) error {
	line := 0
	if n := len(p.toks); n > 0 {
		line = p.toks[n-1].line
	}
	return fmt.Errorf("line %d: %s: %w", line, fmt.Sprintf(format, args...), ErrVersionScript)
}

func (p *vsParser) errorfAt(tok vsToken, format string, args ...any) error {
	return fmt.Errorf("line %d: %s: %w", tok.line, fmt.Sprintf(format, args...), ErrVersionScript)
}
