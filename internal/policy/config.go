package policy

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"abicheck/internal/diag"
)

// Config is the decoded abicheck.toml.
type Config struct {
	Diff   DiffSection       `toml:"diff"`
	Ignore IgnoreSection     `toml:"ignore"`
	Policy map[string]string `toml:"policy"`

	// Path is the file the config was read from; ignore files resolve
	// relative to its directory.
	Path string `toml:"-"`
	// Set records which diff options the file defined so that command-line
	// flags only fill in the rest.
	Set struct {
		AllowWeak, CheckAllTypes, UnreferencedBreaks bool
	} `toml:"-"`
}

type DiffSection struct {
	AllowWeakSymbolChanges bool `toml:"allow_weak_symbol_changes"`
	CheckAllTypes          bool `toml:"check_all_types"`
	UnreferencedBreaks     bool `toml:"unreferenced_breaks"`
}

type IgnoreSection struct {
	Symbols  []string `toml:"symbols"`
	Patterns []string `toml:"patterns"`
	Files    []string `toml:"files"`
}

// LoadConfig parses a config file. Keys the schema does not know are
// reported as warnings on r and otherwise ignored.
func LoadConfig(path string, r diag.Reporter) (*Config, error) {
	var cfg Config
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	cfg.Path = path
	cfg.Set.AllowWeak = meta.IsDefined("diff", "allow_weak_symbol_changes")
	cfg.Set.CheckAllTypes = meta.IsDefined("diff", "check_all_types")
	cfg.Set.UnreferencedBreaks = meta.IsDefined("diff", "unreferenced_breaks")
	if r != nil {
		for _, key := range meta.Undecoded() {
			diag.ReportWarning(r, diag.PolicyUnknownKey, diag.Location{File: path},
				fmt.Sprintf("unknown config key %q", key.String())).Emit()
		}
	}
	return &cfg, nil
}

// IgnoreFiles returns the configured ignore lists resolved against the
// config's directory.
func (c *Config) IgnoreFiles() []string {
	if c == nil {
		return nil
	}
	base := filepath.Dir(c.Path)
	out := make([]string, 0, len(c.Ignore.Files))
	for _, f := range c.Ignore.Files {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if !filepath.IsAbs(f) && c.Path != "" {
			f = filepath.Join(base, f)
		}
		out = append(out, f)
	}
	return out
}
