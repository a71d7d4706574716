package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"abicheck/internal/diag"
	"abicheck/internal/diagfmt"
	"abicheck/internal/version"
)

// printDiagnostics renders bag on stderr in the --diag-format format.
// With --quiet only errors are shown.
func printDiagnostics(cmd *cobra.Command, bag *diag.Bag, args []string) error {
	if bag == nil || bag.Len() == 0 {
		return nil
	}
	flags := cmd.Root().PersistentFlags()
	format, err := flags.GetString("diag-format")
	if err != nil {
		return fmt.Errorf("failed to get diag-format flag: %w", err)
	}
	withNotes, err := flags.GetBool("with-notes")
	if err != nil {
		return fmt.Errorf("failed to get with-notes flag: %w", err)
	}
	pathModeStr, err := flags.GetString("path-mode")
	if err != nil {
		return fmt.Errorf("failed to get path-mode flag: %w", err)
	}
	quiet, err := flags.GetBool("quiet")
	if err != nil {
		return fmt.Errorf("failed to get quiet flag: %w", err)
	}
	pathMode, ok := diagfmt.ParsePathMode(pathModeStr)
	if !ok {
		return fmt.Errorf("invalid --path-mode value %q", pathModeStr)
	}

	shown := bag
	if quiet {
		shown = diag.NewBag(0)
		for _, d := range bag.Items() {
			if d.Severity == diag.SevError {
				shown.Add(d)
			}
		}
	}
	shown.Sort()

	out := cmd.ErrOrStderr()
	switch strings.ToLower(format) {
	case "pretty":
		return diagfmt.Pretty(out, shown, diagfmt.PrettyOpts{Color: !color.NoColor, PathMode: pathMode, ShowNotes: withNotes})
	case "short":
		if shown.Len() == 0 {
			return nil
		}
		_, err := io.WriteString(out, diag.FormatShort(shown.Items(), withNotes)+"\n")
		return err
	case "json":
		return diagfmt.JSON(out, shown, diagfmt.JSONOpts{PathMode: pathMode, IncludeNotes: withNotes})
	case "sarif":
		return diagfmt.Sarif(out, shown, diagfmt.SarifRunMeta{
			ToolName:       "abicheck",
			ToolVersion:    version.Version,
			InvocationArgs: args,
		})
	default:
		return fmt.Errorf("unknown diagnostics format %q (expected pretty|short|json|sarif)", format)
	}
}
