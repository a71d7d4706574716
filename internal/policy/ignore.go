// Package policy decides which diff records reach the final report and at
// which level.
package policy

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path"
	"slices"
	"strings"

	"abicheck/internal/abi"
)

// IgnoreSet holds linker_set_keys to drop from reports: exact names and
// path.Match globs in which '/' is an ordinary character.
type IgnoreSet struct {
	exact    map[string]struct{}
	patterns []string
}

// NewIgnoreSet returns an empty set.
func NewIgnoreSet() *IgnoreSet {
	return &IgnoreSet{exact: make(map[string]struct{})}
}

func isPattern(s string) bool { return strings.ContainsAny(s, "*?[") }

// globMatch is path.Match without the separator rule, so that * also spans
// the include path inside keys such as "(anonymous struct at include/x.h:3)".
func globMatch(pattern, key string) (bool, error) {
	return path.Match(hideSlashes(pattern), hideSlashes(key))
}

func hideSlashes(s string) string { return strings.ReplaceAll(s, "/", "\x00") }

// Add inserts one entry. Entries containing glob metacharacters are
// patterns and must be well-formed.
func (s *IgnoreSet) Add(entry string) error {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return nil
	}
	if !isPattern(entry) {
		s.exact[entry] = struct{}{}
		return nil
	}
	if _, err := globMatch(entry, ""); err != nil {
		return fmt.Errorf("ignore pattern %q: %w", entry, err)
	}
	if !slices.Contains(s.patterns, entry) {
		s.patterns = append(s.patterns, entry)
	}
	return nil
}

// AddPattern inserts a glob even when it has no metacharacters.
func (s *IgnoreSet) AddPattern(p string) error {
	if _, err := globMatch(p, ""); err != nil {
		return fmt.Errorf("ignore pattern %q: %w", p, err)
	}
	if !slices.Contains(s.patterns, p) {
		s.patterns = append(s.patterns, p)
	}
	return nil
}

// Read adds every entry of an ignore list: one entry per line, '#' starts
// a comment.
func (s *IgnoreSet) Read(r io.Reader) error {
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		if err := s.Add(text); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
	return sc.Err()
}

// LoadFile reads an ignore list from disk.
func (s *IgnoreSet) LoadFile(p string) error {
	f, err := os.Open(p)
	if err != nil {
		return fmt.Errorf("failed to open ignore list: %w", err)
	}
	defer f.Close()
	if err := s.Read(f); err != nil {
		return fmt.Errorf("%s: %w", p, err)
	}
	return nil
}

// Match reports whether key is ignored.
func (s *IgnoreSet) Match(key string) bool {
	if s == nil || key == "" {
		return false
	}
	if _, ok := s.exact[key]; ok {
		return true
	}
	for _, p := range s.patterns {
		if ok, _ := globMatch(p, key); ok {
			return true
		}
	}
	return false
}

// Len is the number of entries.
func (s *IgnoreSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.exact) + len(s.patterns)
}

// Entries lists exact names then patterns, sorted.
func (s *IgnoreSet) Entries() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, s.Len())
	for k := range s.exact {
		out = append(out, k)
	}
	slices.Sort(out)
	pats := slices.Clone(s.patterns)
	slices.Sort(pats)
	return append(out, pats...)
}

// Unmatched returns the entries that name nothing in any of the modules.
func (s *IgnoreSet) Unmatched(mods ...*abi.Module) []string {
	if s.Len() == 0 {
		return nil
	}
	var keys []string
	for _, m := range mods {
		if m == nil {
			continue
		}
		for _, f := range m.Functions() {
			keys = append(keys, f.LinkerSetKey)
		}
		for _, v := range m.GlobalVars() {
			keys = append(keys, v.LinkerSetKey)
		}
		for _, t := range m.Types() {
			if t.Kind.IsUserDefined() {
				keys = append(keys, t.LinkerSetKey)
			}
		}
		for _, e := range m.ElfFunctions() {
			keys = append(keys, e.Name)
		}
		for _, e := range m.ElfObjects() {
			keys = append(keys, e.Name)
		}
	}
	known := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		known[k] = struct{}{}
	}

	var out []string
	for _, e := range s.Entries() {
		if !isPattern(e) && !slices.Contains(s.patterns, e) {
			if _, ok := known[e]; !ok {
				out = append(out, e)
			}
			continue
		}
		matched := false
		for _, k := range keys {
			if ok, _ := globMatch(e, k); ok {
				matched = true
				break
			}
		}
		if !matched {
			out = append(out, e)
		}
	}
	return out
}
