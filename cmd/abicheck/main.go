package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"abicheck/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "abicheck",
	Short: "ABI dump and compatibility checker for C/C++ shared libraries",
	Long: `abicheck turns parsed header declarations into a library ABI dump and
compares two dumps under a configurable compatibility policy.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: preRun,
}

// exitError carries a non-default exit status out of RunE.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

const (
	exitIncompatible = 1
	exitFailure      = 2
)

func init() {
	// Глобальные флаги
	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	rootCmd.PersistentFlags().Bool("quiet", false, "suppress non-essential output")
	rootCmd.PersistentFlags().Bool("timings", false, "show timing information")
	rootCmd.PersistentFlags().String("timings-format", "text", "timing output format (text|json)")
	rootCmd.PersistentFlags().Int("max-diagnostics", 100, "maximum number of diagnostics to keep")
	rootCmd.PersistentFlags().String("diag-format", "pretty", "diagnostics format (pretty|short|json|sarif)")
	rootCmd.PersistentFlags().Bool("with-notes", false, "include diagnostic notes in output")
	rootCmd.PersistentFlags().String("path-mode", "auto", "diagnostic paths (auto|absolute|relative|basename)")

	rootCmd.PersistentFlags().String("trace", "", "write trace events to file (- for stderr)")
	rootCmd.PersistentFlags().String("trace-level", "off", "trace level (off|error|stage|unit|debug)")
	rootCmd.PersistentFlags().String("trace-mode", "stream", "trace storage (stream|ring|both)")
	rootCmd.PersistentFlags().Int("trace-ring-size", 4096, "events kept in ring mode")
	rootCmd.PersistentFlags().Duration("trace-heartbeat", 0, "emit heartbeat events at this interval (0 disables)")

	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs the CLI and maps the outcome to an exit status.
func execute(args []string, stdout, stderr io.Writer) int {
	// Устанавливаем версию для автоматического флага --version
	rootCmd.Version = version.Version
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.Execute()
	var ee *exitError
	if err != nil && !errors.As(err, &ee) {
		dumpRing(stderr, "command failed")
	}
	runCleanup()
	if err == nil {
		return 0
	}
	if ee != nil {
		if ee.msg != "" {
			fmt.Fprintln(stderr, ee.msg)
		}
		return ee.code
	}
	fmt.Fprintf(stderr, "abicheck: %v\n", err)
	return exitFailure
}

func preRun(cmd *cobra.Command, _ []string) error {
	colorMode, err := cmd.Root().PersistentFlags().GetString("color")
	if err != nil {
		return fmt.Errorf("failed to get color flag: %w", err)
	}
	switch colorMode {
	case "on":
		color.NoColor = false
	case "off":
		color.NoColor = true
	case "auto":
		color.NoColor = !isTerminal(os.Stdout)
	default:
		return fmt.Errorf("invalid --color value %q (expected auto|on|off)", colorMode)
	}

	cleanup, err := setupTracing(cmd)
	if err != nil {
		return err
	}
	pendingCleanup = cleanup
	return nil
}

// pendingCleanup flushes the tracer after the command returns.
var pendingCleanup func()

func runCleanup() {
	if pendingCleanup != nil {
		pendingCleanup()
		pendingCleanup = nil
	}
}

// isTerminal проверяет, является ли файл терминалом
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
