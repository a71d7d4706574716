package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"abicheck/internal/abi"
	"abicheck/internal/diag"
	"abicheck/internal/diff"
	"abicheck/internal/irdump"
	"abicheck/internal/observ"
	"abicheck/internal/policy"
)

// DiffRequest configures Diff. Values the config file sets win over the
// matching flags here.
type DiffRequest struct {
	Old, New string
	// Config is optional.
	Config             *policy.Config
	IgnoreFiles        []string
	AllowWeak          bool
	CheckAllTypes      bool
	UnreferencedBreaks bool
	Jobs               int
	MaxDiagnostics     int
	// Report is the report path; empty skips the write stage.
	Report       string
	ReportFormat irdump.Format
	Progress     ProgressSink
	Timer        *observ.Timer
}

// DiffResult carries the report and what the policy and diff reported.
type DiffResult struct {
	Report      *diff.Report
	Old, New    *abi.Module
	Diagnostics *diag.Bag
	Timings     Timings
}

// Diff reads two dumps, compares them under the policy and writes the
// report.
func Diff(ctx context.Context, req *DiffRequest) (DiffResult, error) {
	var result DiffResult
	if ctx == nil {
		ctx = context.Background()
	}
	if req == nil {
		return result, fmt.Errorf("missing diff request")
	}
	if req.Old == "" || req.New == "" {
		return result, fmt.Errorf("both dumps are required")
	}
	result.Diagnostics = diag.NewBag(req.MaxDiagnostics)
	timer := req.Timer
	if timer == nil {
		timer = observ.NewTimer()
	}
	r := diag.NewDedupReporter(diag.BagReporter{Bag: result.Diagnostics})

	opts := diff.Options{
		AllowWeakSymbolChanges: req.AllowWeak,
		CheckAllTypes:          req.CheckAllTypes,
		Jobs:                   req.Jobs,
		MaxDiagnostics:         req.MaxDiagnostics,
	}
	if cfg := req.Config; cfg != nil {
		if cfg.Set.AllowWeak {
			opts.AllowWeakSymbolChanges = cfg.Diff.AllowWeakSymbolChanges
		}
		if cfg.Set.CheckAllTypes {
			opts.CheckAllTypes = cfg.Diff.CheckAllTypes
		}
	}
	pol, err := policy.New(req.Config, policy.Options{IgnoreFiles: req.IgnoreFiles, UnreferencedBreaks: req.UnreferencedBreaks}, r)
	if err != nil {
		return result, err
	}
	opts.Filter = pol

	err = runStage(ctx, req.Progress, timer, &result.Timings, StageRead, func(ctx context.Context) (string, error) {
		g, _ := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			result.Old, err = readDump(req.Progress, req.Old)
			return err
		})
		g.Go(func() error {
			var err error
			result.New, err = readDump(req.Progress, req.New)
			return err
		})
		return "2 dumps", g.Wait()
	})
	if err != nil {
		return result, err
	}
	pol.CheckUnmatched(result.Old, result.New, r)

	err = runStage(ctx, req.Progress, timer, &result.Timings, StageDiff, func(ctx context.Context) (string, error) {
		rep, err := diff.New(opts).Diff(ctx, result.Old, result.New)
		if err != nil {
			return "", err
		}
		result.Report = rep
		result.Diagnostics.Merge(rep.Diagnostics)
		return fmt.Sprintf("%d records, %s", len(rep.Records), rep.Status), nil
	})
	if err != nil {
		return result, err
	}
	result.Diagnostics.Sort()

	if req.Report == "" {
		return result, nil
	}
	format := req.ReportFormat
	if format == "" {
		if format, err = irdump.FormatFromPath(req.Report); err != nil {
			format = irdump.FormatJSON
		}
	}
	err = runStage(ctx, req.Progress, timer, &result.Timings, StageWrite, func(context.Context) (string, error) {
		return string(format), writeReport(req.Report, format, result.Report)
	})
	return result, err
}

func readDump(sink ProgressSink, path string) (*abi.Module, error) {
	emit(sink, Event{Unit: path, Stage: StageRead, Status: StatusWorking})
	m, err := irdump.ReadFile(path)
	if err != nil {
		emit(sink, Event{Unit: path, Stage: StageRead, Status: StatusError, Err: err})
		return nil, err
	}
	emit(sink, Event{Unit: path, Stage: StageRead, Status: StatusDone})
	return m, nil
}

func writeReport(path string, f irdump.Format, rep *diff.Report) (err error) {
	dir := filepath.Dir(path)
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".report-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()
	if err = irdump.WriteReport(f, tmp, rep); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
