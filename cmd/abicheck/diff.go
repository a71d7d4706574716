package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"abicheck/internal/diag"
	"abicheck/internal/diff"
	"abicheck/internal/irdump"
	"abicheck/internal/observ"
	"abicheck/internal/pipeline"
	"abicheck/internal/policy"
	"abicheck/internal/report"
	"abicheck/internal/trace"
)

var diffCmd = &cobra.Command{
	Use:   "diff --old <dump> --new <dump> [flags]",
	Short: "Compare two ABI dumps",
	Long: `Compare an old and a new ABI dump of the same library. The exit status
is 1 when the change set is incompatible and 2 when the check itself failed.`,
	Args: cobra.NoArgs,
	RunE: runDiff,
}

func init() {
	diffCmd.Flags().String("old", "", "old dump")
	diffCmd.Flags().String("new", "", "new dump")
	diffCmd.Flags().StringP("report", "o", "", "write the machine-readable report here")
	diffCmd.Flags().String("report-format", "", "report format (json|msgpack|protobuf|yaml); default from the report extension")
	diffCmd.Flags().StringArray("ignore", nil, "ignore-list file (repeatable)")
	diffCmd.Flags().String("config", "", "policy config (TOML)")
	diffCmd.Flags().Bool("allow-weak", false, "treat changes of weak symbols as compatible")
	diffCmd.Flags().Bool("check-all-types", false, "report changes in types no public entity reaches")
	diffCmd.Flags().Bool("unreferenced-breaks", false, "unreferenced type changes keep their level")
	diffCmd.Flags().String("format", "pretty", "stdout format (pretty|json|none)")
	diffCmd.Flags().Bool("details", false, "print every changed attribute")
	diffCmd.Flags().String("min-level", "", "hide records below this level (ignore|advisory|extension|incompatible)")
	diffCmd.Flags().Int("jobs", 0, "max parallel comparisons (0=auto)")
	_ = diffCmd.MarkFlagRequired("old")
	_ = diffCmd.MarkFlagRequired("new")
}

func runDiff(cmd *cobra.Command, _ []string) error {
	defer dumpTraceOnPanic()
	ctx, span := trace.StartSpan(cmd.Context(), trace.ScopeCommand, "diff")
	defer span.End("")

	oldPath, err := cmd.Flags().GetString("old")
	if err != nil {
		return fmt.Errorf("failed to get old flag: %w", err)
	}
	newPath, err := cmd.Flags().GetString("new")
	if err != nil {
		return fmt.Errorf("failed to get new flag: %w", err)
	}
	reportPath, err := cmd.Flags().GetString("report")
	if err != nil {
		return fmt.Errorf("failed to get report flag: %w", err)
	}
	reportFormatStr, err := cmd.Flags().GetString("report-format")
	if err != nil {
		return fmt.Errorf("failed to get report-format flag: %w", err)
	}
	ignoreFiles, err := cmd.Flags().GetStringArray("ignore")
	if err != nil {
		return fmt.Errorf("failed to get ignore flag: %w", err)
	}
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}
	allowWeak, err := cmd.Flags().GetBool("allow-weak")
	if err != nil {
		return fmt.Errorf("failed to get allow-weak flag: %w", err)
	}
	checkAllTypes, err := cmd.Flags().GetBool("check-all-types")
	if err != nil {
		return fmt.Errorf("failed to get check-all-types flag: %w", err)
	}
	unreferencedBreaks, err := cmd.Flags().GetBool("unreferenced-breaks")
	if err != nil {
		return fmt.Errorf("failed to get unreferenced-breaks flag: %w", err)
	}
	outFormat, err := cmd.Flags().GetString("format")
	if err != nil {
		return fmt.Errorf("failed to get format flag: %w", err)
	}
	details, err := cmd.Flags().GetBool("details")
	if err != nil {
		return fmt.Errorf("failed to get details flag: %w", err)
	}
	minLevelStr, err := cmd.Flags().GetString("min-level")
	if err != nil {
		return fmt.Errorf("failed to get min-level flag: %w", err)
	}
	jobs, err := cmd.Flags().GetInt("jobs")
	if err != nil {
		return fmt.Errorf("failed to get jobs flag: %w", err)
	}
	maxDiagnostics, err := cmd.Root().PersistentFlags().GetInt("max-diagnostics")
	if err != nil {
		return fmt.Errorf("failed to get max-diagnostics flag: %w", err)
	}

	outFormat = strings.ToLower(outFormat)
	switch outFormat {
	case "pretty", "json", "none":
	default:
		return fmt.Errorf("unknown --format %q (expected pretty|json|none)", outFormat)
	}
	minLevel := diff.LevelUnset
	if minLevelStr != "" {
		if minLevel, err = diff.ParseLevel(minLevelStr); err != nil {
			return err
		}
	}
	var reportFormat irdump.Format
	if reportFormatStr != "" {
		if reportFormat, err = irdump.ParseFormat(reportFormatStr); err != nil {
			return err
		}
	}

	diags := diag.NewBag(maxDiagnostics)
	var cfg *policy.Config
	if configPath != "" {
		if cfg, err = policy.LoadConfig(configPath, diag.BagReporter{Bag: diags}); err != nil {
			return err
		}
	}

	timer := observ.NewTimer()
	res, err := pipeline.Diff(ctx, &pipeline.DiffRequest{
		Old:                oldPath,
		New:                newPath,
		Config:             cfg,
		IgnoreFiles:        ignoreFiles,
		AllowWeak:          allowWeak,
		CheckAllTypes:      checkAllTypes,
		UnreferencedBreaks: unreferencedBreaks,
		Jobs:               jobs,
		MaxDiagnostics:     maxDiagnostics,
		Report:             reportPath,
		ReportFormat:       reportFormat,
		Timer:              timer,
	})
	diags.Merge(res.Diagnostics)
	if perr := printDiagnostics(cmd, diags, []string{"diff", "--old", oldPath, "--new", newPath}); perr != nil {
		return perr
	}
	if terr := printTimings(cmd, timer, res.Timings); terr != nil {
		return terr
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch outFormat {
	case "pretty":
		err = report.Text(out, res.Report, report.Options{Color: !color.NoColor, Details: details, MinLevel: minLevel})
	case "json":
		err = irdump.WriteReport(irdump.FormatJSON, out, res.Report)
	}
	if err != nil {
		return err
	}

	if incompatible(res.Report) {
		return &exitError{code: exitIncompatible}
	}
	return nil
}

func incompatible(rep *diff.Report) bool {
	if rep == nil {
		return false
	}
	return rep.Status.Has(diff.StatusIncompatible) || rep.Status.Has(diff.StatusElfIncompatible) || rep.HasIncompatible()
}
