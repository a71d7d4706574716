package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"abicheck/internal/observ"
	"abicheck/internal/pipeline"
)

// printTimings honors --timings and --timings-format. Quiet runs get the
// one-line stage summary instead of the table.
func printTimings(cmd *cobra.Command, timer *observ.Timer, timings pipeline.Timings) error {
	flags := cmd.Root().PersistentFlags()
	show, err := flags.GetBool("timings")
	if err != nil {
		return fmt.Errorf("failed to get timings flag: %w", err)
	}
	if !show || timer == nil {
		return nil
	}
	format, err := flags.GetString("timings-format")
	if err != nil {
		return fmt.Errorf("failed to get timings-format flag: %w", err)
	}
	quiet, err := flags.GetBool("quiet")
	if err != nil {
		return fmt.Errorf("failed to get quiet flag: %w", err)
	}
	out := cmd.ErrOrStderr()
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(timer.Report())
	case "text", "":
		if quiet {
			printStageTimings(out, timings)
			return nil
		}
		_, err := io.WriteString(out, timer.Summary())
		return err
	default:
		return fmt.Errorf("unknown timings format %q (expected text|json)", format)
	}
}

func printStageTimings(out io.Writer, timings pipeline.Timings) {
	if out == nil {
		return
	}
	var parts []string
	for _, st := range pipeline.Stages() {
		if timings.Has(st) {
			parts = append(parts, fmt.Sprintf("%s %.1f ms", st, toMillis(timings.Duration(st))))
		}
	}
	if len(parts) > 0 {
		_, _ = fmt.Fprintln(out, strings.Join(parts, ", "))
	}
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
