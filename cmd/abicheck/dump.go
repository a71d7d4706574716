package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"abicheck/internal/diag"
	"abicheck/internal/irdump"
	"abicheck/internal/observ"
	"abicheck/internal/pipeline"
	"abicheck/internal/symbols"
	"abicheck/internal/trace"
	"abicheck/internal/unitcache"
)

var dumpCmd = &cobra.Command{
	Use:   "dump [flags] <unit.json>...",
	Short: "Build a library ABI dump from declaration units",
	Long: `Build one ABI dump from the declaration units of a library. Units are
built in parallel, merged, filtered by the exported symbol set and headers,
and written in the selected format.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDump,
}

func init() {
	dumpCmd.Flags().StringP("output", "o", "", "dump file to write")
	dumpCmd.Flags().String("format", "", "dump format (json|msgpack|protobuf|yaml); default from the output extension")
	dumpCmd.Flags().String("lib-name", "", "library name recorded in the dump (default: output base name)")
	dumpCmd.Flags().String("arch", "x86_64", "target architecture")
	dumpCmd.Flags().String("so", "", "shared object whose dynamic symbols are exported")
	dumpCmd.Flags().String("symbol-list", "", "text list of exported symbols")
	dumpCmd.Flags().String("version-script", "", "linker version script naming exported symbols")
	dumpCmd.Flags().StringSlice("exclude-symbol-version", nil, "version nodes of the version script to skip")
	dumpCmd.Flags().StringArray("exported-dir", nil, "header directory whose declarations are exported (repeatable)")
	dumpCmd.Flags().Int("jobs", 0, "max parallel unit builds (0=auto)")
	dumpCmd.Flags().Bool("cache", false, "reuse built units from the unit cache")
	dumpCmd.Flags().String("cache-dir", "", "unit cache directory (default: user cache dir)")
	dumpCmd.Flags().String("ui", "auto", "progress view (auto|on|off)")
	_ = dumpCmd.MarkFlagRequired("output")
}

func runDump(cmd *cobra.Command, args []string) error {
	defer dumpTraceOnPanic()
	ctx, span := trace.StartSpan(cmd.Context(), trace.ScopeCommand, "dump")
	defer span.End("")

	output, err := cmd.Flags().GetString("output")
	if err != nil {
		return fmt.Errorf("failed to get output flag: %w", err)
	}
	formatStr, err := cmd.Flags().GetString("format")
	if err != nil {
		return fmt.Errorf("failed to get format flag: %w", err)
	}
	libName, err := cmd.Flags().GetString("lib-name")
	if err != nil {
		return fmt.Errorf("failed to get lib-name flag: %w", err)
	}
	arch, err := cmd.Flags().GetString("arch")
	if err != nil {
		return fmt.Errorf("failed to get arch flag: %w", err)
	}
	soPath, err := cmd.Flags().GetString("so")
	if err != nil {
		return fmt.Errorf("failed to get so flag: %w", err)
	}
	listPath, err := cmd.Flags().GetString("symbol-list")
	if err != nil {
		return fmt.Errorf("failed to get symbol-list flag: %w", err)
	}
	scriptPath, err := cmd.Flags().GetString("version-script")
	if err != nil {
		return fmt.Errorf("failed to get version-script flag: %w", err)
	}
	excludeVersions, err := cmd.Flags().GetStringSlice("exclude-symbol-version")
	if err != nil {
		return fmt.Errorf("failed to get exclude-symbol-version flag: %w", err)
	}
	exportedDirs, err := cmd.Flags().GetStringArray("exported-dir")
	if err != nil {
		return fmt.Errorf("failed to get exported-dir flag: %w", err)
	}
	jobs, err := cmd.Flags().GetInt("jobs")
	if err != nil {
		return fmt.Errorf("failed to get jobs flag: %w", err)
	}
	useCache, err := cmd.Flags().GetBool("cache")
	if err != nil {
		return fmt.Errorf("failed to get cache flag: %w", err)
	}
	cacheDir, err := cmd.Flags().GetString("cache-dir")
	if err != nil {
		return fmt.Errorf("failed to get cache-dir flag: %w", err)
	}
	uiFlag, err := cmd.Flags().GetString("ui")
	if err != nil {
		return fmt.Errorf("failed to get ui flag: %w", err)
	}
	maxDiagnostics, err := cmd.Root().PersistentFlags().GetInt("max-diagnostics")
	if err != nil {
		return fmt.Errorf("failed to get max-diagnostics flag: %w", err)
	}
	quiet, err := cmd.Root().PersistentFlags().GetBool("quiet")
	if err != nil {
		return fmt.Errorf("failed to get quiet flag: %w", err)
	}

	mode, err := readUIMode(uiFlag)
	if err != nil {
		return err
	}
	format, err := dumpFormat(formatStr, output)
	if err != nil {
		return err
	}
	if libName == "" {
		libName = strings.TrimSuffix(filepath.Base(output), filepath.Ext(output))
	}
	syms, err := loadSymbols(soPath, listPath, scriptPath, excludeVersions)
	if err != nil {
		return err
	}

	diags := diag.NewBag(maxDiagnostics)
	var cache *unitcache.Cache
	if useCache {
		var cerr error
		if cache, cerr = unitcache.Open(cacheDir); cerr != nil {
			diag.ReportWarning(diag.BagReporter{Bag: diags}, diag.BuildCacheUnavailable, diag.Location{File: cacheDir},
				fmt.Sprintf("unit cache disabled: %v", cerr)).Emit()
		}
	}

	timer := observ.NewTimer()
	req := &pipeline.DumpRequest{
		Units:          args,
		LibName:        libName,
		Arch:           arch,
		Output:         output,
		Format:         format,
		ExportedDirs:   exportedDirs,
		Symbols:        syms,
		Jobs:           jobs,
		MaxDiagnostics: maxDiagnostics,
		Cache:          cache,
		Timer:          timer,
	}
	var res pipeline.DumpResult
	if shouldUseTUI(mode, len(args), quiet) {
		res, err = runDumpWithUI(ctx, "dump "+libName, req)
	} else {
		res, err = pipeline.Dump(ctx, req)
	}
	diags.Merge(res.Diagnostics)
	if perr := printDiagnostics(cmd, diags, append([]string{"dump"}, args...)); perr != nil {
		return perr
	}
	if terr := printTimings(cmd, timer, res.Timings); terr != nil {
		return terr
	}
	if err != nil {
		return err
	}

	if !quiet {
		st := res.Module.Stats()
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s: %d types, %d functions, %d variables, %d ELF symbols (%d units, %d cached)\n",
			output, st.Types, st.Functions, st.GlobalVars, st.ElfFunctions+st.ElfObjects, len(args), res.CacheHits)
	}
	return nil
}

// dumpFormat resolves --format, falling back to the output extension and
// then to json.
func dumpFormat(flag, output string) (irdump.Format, error) {
	if flag != "" {
		return irdump.ParseFormat(flag)
	}
	if f, err := irdump.FormatFromPath(output); err == nil {
		return f, nil
	}
	return irdump.FormatJSON, nil
}

// loadSymbols intersects every symbol source given; nil means no
// symbol filtering.
func loadSymbols(soPath, listPath, scriptPath string, excludeVersions []string) (*symbols.Set, error) {
	var set *symbols.Set
	if soPath != "" {
		s, err := symbols.ReadELF(soPath)
		if err != nil {
			return nil, err
		}
		set = symbols.Intersect(set, s)
	}
	if listPath != "" {
		s, err := symbols.ReadListFile(listPath)
		if err != nil {
			return nil, err
		}
		set = symbols.Intersect(set, s)
	}
	if scriptPath != "" {
		s, err := symbols.ReadVersionScriptFile(scriptPath, excludeVersions...)
		if err != nil {
			return nil, err
		}
		set = symbols.Intersect(set, s)
	}
	return set, nil
}
