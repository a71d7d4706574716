package policy

import (
	"fmt"
	"maps"
	"slices"

	"abicheck/internal/abi"
	"abicheck/internal/diag"
	"abicheck/internal/diff"
)

// Policy is the diff.Filter used by the CLI: ignore-set suppression
// followed by classification with the effective level table.
type Policy struct {
	Ignore     *IgnoreSet
	classifier diff.Classifier
	// effective level per category, after overrides
	levels map[diff.Change]diff.Level
}

// Options are the inputs of New besides the config file.
type Options struct {
	IgnoreFiles        []string
	UnreferencedBreaks bool
}

// New builds a Policy from an optional config and extra ignore files.
// Misconfiguration is reported on r as warnings; only unreadable ignore
// files are errors.
func New(cfg *Config, opts Options, r diag.Reporter) (*Policy, error) {
	if r == nil {
		r = diag.NopReporter{}
	}
	p := &Policy{Ignore: NewIgnoreSet(), levels: maps.Clone(diff.DefaultLevels)}
	unrefBreaks := opts.UnreferencedBreaks
	files := slices.Clone(opts.IgnoreFiles)
	if cfg != nil {
		loc := diag.Location{File: cfg.Path}
		for _, s := range cfg.Ignore.Symbols {
			if err := p.Ignore.Add(s); err != nil {
				diag.ReportWarning(r, diag.PolicyBadPattern, loc, err.Error()).Emit()
			}
		}
		for _, s := range cfg.Ignore.Patterns {
			if err := p.Ignore.AddPattern(s); err != nil {
				diag.ReportWarning(r, diag.PolicyBadPattern, loc, err.Error()).Emit()
			}
		}
		files = append(files, cfg.IgnoreFiles()...)
		if cfg.Set.UnreferencedBreaks {
			unrefBreaks = cfg.Diff.UnreferencedBreaks
		}
		p.override(cfg, r)
	}
	for _, f := range files {
		if err := p.Ignore.LoadFile(f); err != nil {
			return nil, err
		}
	}
	p.classifier = diff.Classifier{Levels: p.levels, UnreferencedBreaks: unrefBreaks}
	return p, nil
}

func (p *Policy) override(cfg *Config, r diag.Reporter) {
	loc := diag.Location{File: cfg.Path}
	for _, name := range slices.Sorted(maps.Keys(cfg.Policy)) {
		change := diff.Change(name)
		if !diff.Known(change) {
			diag.ReportWarning(r, diag.PolicyUnknownCategory, loc,
				fmt.Sprintf("unknown change category %q", name)).Emit()
			continue
		}
		lvl, err := diff.ParseLevel(cfg.Policy[name])
		if err != nil {
			diag.ReportWarning(r, diag.PolicyUnknownLevel, loc,
				fmt.Sprintf("%s: %v", name, err)).Emit()
			continue
		}
		if diff.IsFixed(change) {
			if lvl != diff.DefaultLevels[change] {
				diag.ReportWarning(r, diag.PolicyFixedCategory, loc,
					fmt.Sprintf("%s is always %s; override to %s ignored", name, diff.DefaultLevels[change], lvl)).Emit()
			}
			continue
		}
		p.levels[change] = lvl
	}
}

// Level returns the effective level of a category.
func (p *Policy) Level(c diff.Change) diff.Level { return p.levels[c] }

// Apply implements diff.Filter.
func (p *Policy) Apply(rec diff.Record) (diff.Record, bool) {
	if p.Ignore.Match(rec.LinkerSetKey) || (rec.Name != rec.LinkerSetKey && p.Ignore.Match(rec.Name)) {
		return diff.Record{}, false
	}
	return p.classifier.Classify(rec)
}

// CheckUnmatched warns about ignore entries that name nothing in either
// module.
func (p *Policy) CheckUnmatched(oldMod, newMod *abi.Module, r diag.Reporter) {
	for _, e := range p.Ignore.Unmatched(oldMod, newMod) {
		diag.ReportWarning(r, diag.PolicyUnmatchedIgnore, diag.Location{Entity: e},
			fmt.Sprintf("ignore entry %q matches nothing in either module", e)).Emit()
	}
}
