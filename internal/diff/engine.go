package diff

import (
	"context"
	"runtime"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"abicheck/internal/abi"
	"abicheck/internal/diag"
	"abicheck/internal/trace"
)

// Options configure an Engine.
type Options struct {
	// AllowWeakSymbolChanges skips added and removed weak symbols.
	AllowWeakSymbolChanges bool
	// CheckAllTypes also diffs records and enums no exported element
	// reaches, as long as their key is unique on both sides.
	CheckAllTypes bool
	// Jobs bounds concurrent comparisons; 0 means GOMAXPROCS.
	Jobs           int
	Filter         Filter
	MaxDiagnostics int
}

// Engine diffs two modules.
type Engine struct {
	opts Options
}

// New returns an Engine. A nil Filter means DefaultFilter.
func New(opts Options) *Engine {
	if opts.Filter == nil {
		opts.Filter = DefaultFilter()
	}
	if opts.Jobs <= 0 {
		opts.Jobs = runtime.GOMAXPROCS(0)
	}
	return &Engine{opts: opts}
}

// slot is what one comparison task produces.
type slot struct {
	primary *Record
	nested  []Record
	bag     *diag.Bag
}

type task func(h *Helper) *Record

// Diff compares old against new. Both modules must be fully loaded and are
// only read.
func (e *Engine) Diff(ctx context.Context, oldMod, newMod *abi.Module) (*Report, error) {
	var tasks []task
	var removedAdded []Record

	oldFuncs, newFuncs := oldMod.Functions(), newMod.Functions()
	for _, of := range oldFuncs {
		if nf, ok := newMod.Function(of.LinkerSetKey); ok {
			tasks = append(tasks, func(h *Helper) *Record {
				rec := h.DiffFunction(of, nf)
				return &rec
			})
		} else if e.reportLone(of.LinkerSetKey, oldMod, newMod) {
			removedAdded = append(removedAdded, lone(abi.EntityFunction, of.Name, of.LinkerSetKey, Removed, FunctionRemoved))
		}
	}
	for _, nf := range newFuncs {
		if _, ok := oldMod.Function(nf.LinkerSetKey); !ok && e.reportLone(nf.LinkerSetKey, newMod, oldMod) {
			removedAdded = append(removedAdded, lone(abi.EntityFunction, nf.Name, nf.LinkerSetKey, Added, FunctionAdded))
		}
	}
	for _, ov := range oldMod.GlobalVars() {
		if nv, ok := newMod.GlobalVar(ov.LinkerSetKey); ok {
			tasks = append(tasks, func(h *Helper) *Record {
				rec := h.DiffGlobalVar(ov, nv)
				return &rec
			})
		} else if e.reportLone(ov.LinkerSetKey, oldMod, newMod) {
			removedAdded = append(removedAdded, lone(abi.EntityGlobalVar, ov.Name, ov.LinkerSetKey, Removed, GlobalVarRemoved))
		}
	}
	for _, nv := range newMod.GlobalVars() {
		if _, ok := oldMod.GlobalVar(nv.LinkerSetKey); !ok && e.reportLone(nv.LinkerSetKey, newMod, oldMod) {
			removedAdded = append(removedAdded, lone(abi.EntityGlobalVar, nv.Name, nv.LinkerSetKey, Added, GlobalVarAdded))
		}
	}
	if e.opts.CheckAllTypes {
		tasks = append(tasks, e.typeTasks(oldMod, newMod, &removedAdded)...)
	}
	removedAdded = append(removedAdded, e.elfRecords(oldMod.ElfFunctions(), newMod, abi.EntityElfFunction, Removed)...)
	removedAdded = append(removedAdded, e.elfRecords(newMod.ElfFunctions(), oldMod, abi.EntityElfFunction, Added)...)
	removedAdded = append(removedAdded, e.elfRecords(oldMod.ElfObjects(), newMod, abi.EntityElfObject, Removed)...)
	removedAdded = append(removedAdded, e.elfRecords(newMod.ElfObjects(), oldMod, abi.EntityElfObject, Added)...)

	slots, err := e.run(ctx, oldMod, newMod, tasks)
	if err != nil {
		return nil, err
	}
	return e.aggregate(oldMod, newMod, slots, removedAdded), nil
}

// reportLone applies the lone-element rules: anonymous source-located keys
// are skipped, and so are declarations whose symbol is still exported by
// the other side. Weak symbols are skipped when allowed.
func (e *Engine) reportLone(key string, side, other *abi.Module) bool {
	if strings.Contains(key, " at ") {
		return false
	}
	if other.HasElfSymbol(key) {
		return false
	}
	if e.opts.AllowWeakSymbolChanges && isWeak(side, key) {
		return false
	}
	return true
}

func isWeak(m *abi.Module, name string) bool {
	if s, ok := m.ElfFunction(name); ok {
		return s.Binding == abi.BindingWeak
	}
	if s, ok := m.ElfObject(name); ok {
		return s.Binding == abi.BindingWeak
	}
	return false
}

func lone(entity abi.EntityKind, name, key string, kind Kind, change Change) Record {
	d := Detail{Change: change}
	if kind == Removed {
		d.Old = name
	} else {
		d.New = name
	}
	return Record{Entity: entity, Name: name, LinkerSetKey: key, Kind: kind, Details: []Detail{d}}
}

func (e *Engine) elfRecords(syms []*abi.ElfSymbol, other *abi.Module, entity abi.EntityKind, kind Kind) []Record {
	change := ElfSymbolAdded
	if kind == Removed {
		change = ElfSymbolRemoved
	}
	var out []Record
	for _, s := range syms {
		var present bool
		if entity == abi.EntityElfObject {
			_, present = other.ElfObject(s.Name)
		} else {
			_, present = other.ElfFunction(s.Name)
		}
		if present {
			continue
		}
		if e.opts.AllowWeakSymbolChanges && s.Binding == abi.BindingWeak {
			continue
		}
		out = append(out, lone(entity, s.Name, s.Name, kind, change))
	}
	return out
}

// typeTasks pairs records and enums whose key is unique on both sides.
func (e *Engine) typeTasks(oldMod, newMod *abi.Module, lones *[]Record) []task {
	var tasks []task
	seen := make(map[string]struct{})
	for _, ot := range oldMod.Types() {
		if !ot.Kind.IsUserDefined() {
			continue
		}
		key := ot.LinkerSetKey
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		oids := oldMod.TypesByKey(key)
		nids := newMod.TypesByKey(key)
		switch {
		case len(nids) == 0:
			if !strings.Contains(key, " at ") && len(oids) == 1 {
				rec := lone(abi.EntityType, ot.Name, key, Removed, TypeRemoved)
				rec.TypeKind = ot.Kind
				rec.Unreferenced = true
				*lones = append(*lones, rec)
			}
		case len(oids) == 1 && len(nids) == 1:
			nt, _ := newMod.LookupType(nids[0])
			if nt.Kind != ot.Kind {
				continue
			}
			tasks = append(tasks, func(h *Helper) *Record {
				var rec Record
				if ot.Kind == abi.KindRecord {
					rec = h.DiffRecordType(ot, nt)
				} else {
					rec = h.DiffEnumType(ot, nt)
				}
				rec.Unreferenced = true
				for i := range h.nested {
					h.nested[i].Unreferenced = true
				}
				return &rec
			})
		}
	}
	for _, nt := range newMod.Types() {
		if !nt.Kind.IsUserDefined() {
			continue
		}
		key := nt.LinkerSetKey
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if len(oldMod.TypesByKey(key)) == 0 && len(newMod.TypesByKey(key)) == 1 && !strings.Contains(key, " at ") {
			rec := lone(abi.EntityType, nt.Name, key, Added, TypeAdded)
			rec.TypeKind = nt.Kind
			rec.Unreferenced = true
			*lones = append(*lones, rec)
		}
	}
	return tasks
}

func (e *Engine) run(ctx context.Context, oldMod, newMod *abi.Module, tasks []task) ([]slot, error) {
	slots := make([]slot, len(tasks))
	if len(tasks) == 0 {
		return slots, ctx.Err()
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(e.opts.Jobs, len(tasks)))
	for i, t := range tasks {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			_, span := trace.StartSpan(gctx, trace.ScopeEntity, "compare")
			bag := diag.NewBag(e.opts.MaxDiagnostics)
			h := NewHelper(oldMod, newMod, diag.BagReporter{Bag: bag})
			slots[i] = slot{primary: t(h), nested: h.Nested(), bag: bag}
			if p := slots[i].primary; p != nil {
				span.WithExtra("key", p.LinkerSetKey).WithExtra("kind", p.Kind.String())
			}
			span.End("")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return slots, nil
}

var entityOrder = map[abi.EntityKind]int{
	abi.EntityFunction:    0,
	abi.EntityGlobalVar:   1,
	abi.EntityType:        2,
	abi.EntityElfFunction: 3,
	abi.EntityElfObject:   4,
}

// aggregate is the single point where raw records become report entries.
// Nested type records reached from several elements are kept once, in
// task order.
func (e *Engine) aggregate(oldMod, newMod *abi.Module, slots []slot, lones []Record) *Report {
	rep := &Report{LibName: newMod.LibName, Arch: newMod.Arch, Diagnostics: diag.NewBag(e.opts.MaxDiagnostics)}
	if rep.LibName == "" {
		rep.LibName = oldMod.LibName
	}
	byEntity := make([][]Record, len(entityOrder))
	seenTypes := make(map[string]int)

	accept := func(rec Record) {
		if rec.Entity == abi.EntityType {
			if idx, ok := seenTypes[rec.LinkerSetKey]; ok {
				// referenced beats unreferenced
				prev := &byEntity[entityOrder[abi.EntityType]][idx]
				if prev.Unreferenced && !rec.Unreferenced {
					filtered, keep := e.opts.Filter.Apply(rec)
					if keep {
						*prev = filtered
					}
				}
				return
			}
		}
		filtered, keep := e.opts.Filter.Apply(rec)
		if !keep {
			return
		}
		group := entityOrder[filtered.Entity]
		if filtered.Entity == abi.EntityType {
			seenTypes[filtered.LinkerSetKey] = len(byEntity[group])
		}
		byEntity[group] = append(byEntity[group], filtered)
	}

	for _, s := range slots {
		rep.Diagnostics.Merge(s.bag)
		for _, rec := range s.nested {
			accept(rec)
		}
	}
	for _, s := range slots {
		if s.primary != nil && len(s.primary.Details) > 0 {
			accept(*s.primary)
		}
	}
	for _, rec := range lones {
		accept(rec)
	}
	for _, group := range byEntity {
		SortRecords(group)
		rep.Records = append(rep.Records, group...)
	}
	rep.Status = ComputeStatus(rep.Records)
	rep.Diagnostics.Sort()
	return rep
}

// SortRecords orders the records of one entity group by key, then kind.
func SortRecords(recs []Record) {
	slices.SortStableFunc(recs, func(a, b Record) int {
		if c := strings.Compare(a.LinkerSetKey, b.LinkerSetKey); c != 0 {
			return c
		}
		return int(a.Kind) - int(b.Kind)
	})
}
