// Package pipeline runs abicheck end to end: declaration units to a
// library dump, and two dumps to a diff report.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"abicheck/internal/abi"
	"abicheck/internal/build"
	"abicheck/internal/decl"
	"abicheck/internal/diag"
	"abicheck/internal/irdump"
	"abicheck/internal/linker"
	"abicheck/internal/observ"
	"abicheck/internal/symbols"
	"abicheck/internal/trace"
	"abicheck/internal/unitcache"
)

// DumpRequest configures Dump.
type DumpRequest struct {
	Units   []string
	LibName string
	Arch    string
	// Output is the dump path; empty skips the write stage.
	Output       string
	Format       irdump.Format
	ExportedDirs []string
	// Symbols is the exported symbol set; nil keeps every declaration.
	Symbols        *symbols.Set
	Jobs           int
	MaxDiagnostics int
	// Cache is optional; nil builds every unit.
	Cache    *unitcache.Cache
	Progress ProgressSink
	// Timer, when set, receives one phase per stage.
	Timer *observ.Timer
}

// DumpResult captures the linked module and what the run reported.
type DumpResult struct {
	Module      *abi.Module
	Diagnostics *diag.Bag
	Timings     Timings
	CacheHits   int
}

// ErrBuildFailed is returned when a unit produced error diagnostics.
var ErrBuildFailed = errors.New("units reported errors")

type unitInput struct {
	path   string
	data   []byte
	digest unitcache.Digest
	mod    *abi.Module
	bag    *diag.Bag
	cached bool
}

// Dump reads, builds and links units and writes the library dump.
func Dump(ctx context.Context, req *DumpRequest) (DumpResult, error) {
	var result DumpResult
	if ctx == nil {
		ctx = context.Background()
	}
	if req == nil {
		return result, fmt.Errorf("missing dump request")
	}
	if len(req.Units) == 0 {
		return result, fmt.Errorf("no declaration units given")
	}
	if req.Format == "" {
		req.Format = irdump.FormatJSON
	}
	model, err := abi.DataModelForArch(req.Arch)
	if err != nil {
		return result, err
	}
	result.Diagnostics = diag.NewBag(req.MaxDiagnostics)
	timer := req.Timer
	if timer == nil {
		timer = observ.NewTimer()
	}
	for _, u := range req.Units {
		emit(req.Progress, Event{Unit: u, Stage: StageRead, Status: StatusQueued})
	}

	// read
	var inputs []*unitInput
	err = runStage(ctx, req.Progress, timer, &result.Timings, StageRead, func(ctx context.Context) (string, error) {
		var err error
		inputs, err = readUnits(ctx, req, model)
		return strconv.Itoa(len(inputs)) + " units", err
	})
	if err != nil {
		return result, err
	}

	// build
	err = runStage(ctx, req.Progress, timer, &result.Timings, StageBuild, func(ctx context.Context) (string, error) {
		hits, err := buildUnits(ctx, req, model, inputs)
		result.CacheHits = hits
		return fmt.Sprintf("%d built, %d cached", len(inputs)-hits, hits), err
	})
	if err != nil {
		return result, err
	}
	for _, in := range inputs {
		result.Diagnostics.Merge(in.bag)
	}
	if result.Diagnostics.HasErrors() {
		emitStage(req.Progress, nil, StageBuild, StatusError, ErrBuildFailed, 0)
		return result, ErrBuildFailed
	}

	// link
	err = runStage(ctx, req.Progress, timer, &result.Timings, StageLink, func(ctx context.Context) (string, error) {
		l := linker.New(linker.Options{
			LibName:        req.LibName,
			Arch:           req.Arch,
			ExportedDirs:   req.ExportedDirs,
			Symbols:        req.Symbols,
			MaxDiagnostics: req.MaxDiagnostics,
		})
		for _, in := range inputs {
			if err := ctx.Err(); err != nil {
				return "", err
			}
			if err := l.Add(in.mod); err != nil {
				return "", fmt.Errorf("link %s: %w", in.path, err)
			}
		}
		mod, bag, err := l.Finish()
		result.Diagnostics.Merge(bag)
		if err != nil {
			return "", err
		}
		result.Module = mod
		st := mod.Stats()
		return fmt.Sprintf("%d types, %d functions", st.Types, st.Functions), nil
	})
	if err != nil {
		return result, err
	}

	if req.Output == "" {
		return result, nil
	}
	err = runStage(ctx, req.Progress, timer, &result.Timings, StageWrite, func(context.Context) (string, error) {
		return string(req.Format), irdump.WriteFile(req.Output, req.Format, result.Module)
	})
	return result, err
}

// runStage wraps one stage in a trace span, a timer phase and progress events.
func runStage(ctx context.Context, sink ProgressSink, timer *observ.Timer, timings *Timings, stage Stage,
	fn func(ctx context.Context) (string, error),
) error {
	ctx, span := trace.StartSpan(ctx, trace.ScopeStage, string(stage))
	idx := timer.Begin(string(stage))
	start := time.Now()
	emitStage(sink, nil, stage, StatusWorking, nil, 0)

	note, err := fn(ctx)
	elapsed := time.Since(start)
	timer.End(idx, note)
	timings.Set(stage, elapsed)
	if err != nil {
		span.End(err.Error())
		emitStage(sink, nil, stage, StatusError, err, elapsed)
		return err
	}
	span.End(note)
	emitStage(sink, nil, stage, StatusDone, nil, elapsed)
	return nil
}

func readUnits(ctx context.Context, req *DumpRequest, model abi.DataModel) ([]*unitInput, error) {
	inputs := make([]*unitInput, len(req.Units))
	for i, path := range req.Units {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path) // #nosec G304 -- unit paths come from the command line
		if err != nil {
			emit(req.Progress, Event{Unit: path, Stage: StageRead, Status: StatusError, Err: err})
			return nil, fmt.Errorf("failed to read unit: %w", err)
		}
		inputs[i] = &unitInput{path: path, data: data, digest: unitcache.Compute(data, model, req.Arch)}
		emit(req.Progress, Event{Unit: path, Stage: StageRead, Status: StatusDone})
	}
	return inputs, nil
}

// buildUnits fills every input's module, from the cache when possible.
// Each goroutine writes only its own input.
func buildUnits(ctx context.Context, req *DumpRequest, model abi.DataModel, inputs []*unitInput) (int, error) {
	jobs := req.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	opts := build.Options{LibName: req.LibName, Arch: req.Arch, DataModel: model, MaxDiagnostics: req.MaxDiagnostics}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(inputs)))
	for _, in := range inputs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return buildOne(gctx, req, opts, in)
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	hits := 0
	for _, in := range inputs {
		if in.cached {
			hits++
		}
	}
	return hits, nil
}

func buildOne(ctx context.Context, req *DumpRequest, opts build.Options, in *unitInput) error {
	_, span := trace.StartSpan(ctx, trace.ScopeUnit, "unit:"+in.path)
	start := time.Now()
	emit(req.Progress, Event{Unit: in.path, Stage: StageBuild, Status: StatusWorking})
	in.bag = diag.NewBag(req.MaxDiagnostics)

	if mod, ok, err := req.Cache.Get(in.digest); err != nil {
		diag.ReportWarning(diag.BagReporter{Bag: in.bag}, diag.BuildCacheUnavailable, diag.Location{File: in.path},
			fmt.Sprintf("unit cache: %v", err)).Emit()
	} else if ok {
		in.mod, in.cached = mod, true
		span.End("cached")
		emit(req.Progress, Event{Unit: in.path, Stage: StageBuild, Status: StatusCached, Elapsed: time.Since(start)})
		return nil
	}

	unit, err := decl.DecodeBytes(in.data)
	if err != nil {
		diag.ReportError(diag.BagReporter{Bag: in.bag}, diag.BuildUnitDecodeFailed, diag.Location{File: in.path}, err.Error()).Emit()
		span.End(err.Error())
		emit(req.Progress, Event{Unit: in.path, Stage: StageBuild, Status: StatusError, Err: err})
		return nil
	}
	if unit.Source == "" {
		unit.Source = in.path
	}
	mod, bag := build.BuildUnit(unit, opts)
	in.bag.Merge(bag)
	in.mod = mod

	// units with diagnostics are rebuilt next time so the diagnostics repeat
	if bag.Len() == 0 {
		if err := req.Cache.Put(in.digest, in.path, mod); err != nil {
			diag.ReportWarning(diag.BagReporter{Bag: in.bag}, diag.BuildCacheUnavailable, diag.Location{File: in.path},
				fmt.Sprintf("unit cache: %v", err)).Emit()
		}
	}
	span.WithExtra("types", strconv.Itoa(mod.Stats().Types)).End("")

	status := StatusDone
	if bag.HasErrors() {
		status = StatusError
	}
	emit(req.Progress, Event{Unit: in.path, Stage: StageBuild, Status: status, Elapsed: time.Since(start)})
	return nil
}
