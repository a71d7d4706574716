package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"abicheck/internal/irdump"
)

var convertCmd = &cobra.Command{
	Use:   "convert <dump> -o <dump>",
	Short: "Rewrite a dump in another format",
	Args:  cobra.ExactArgs(1),
	RunE:  runConvert,
}

func init() {
	convertCmd.Flags().StringP("output", "o", "", "dump file to write")
	convertCmd.Flags().String("to", "", "target format (json|msgpack|protobuf|yaml); default from the output extension")
	_ = convertCmd.MarkFlagRequired("output")
}

func runConvert(cmd *cobra.Command, args []string) error {
	output, err := cmd.Flags().GetString("output")
	if err != nil {
		return fmt.Errorf("failed to get output flag: %w", err)
	}
	to, err := cmd.Flags().GetString("to")
	if err != nil {
		return fmt.Errorf("failed to get to flag: %w", err)
	}
	format, err := dumpFormat(to, output)
	if err != nil {
		return err
	}

	m, err := irdump.ReadFile(args[0])
	if err != nil {
		return err
	}
	if err := irdump.WriteFile(output, format, m); err != nil {
		return fmt.Errorf("failed to write %q: %w", output, err)
	}
	quiet, err := cmd.Root().PersistentFlags().GetBool("quiet")
	if err != nil {
		return fmt.Errorf("failed to get quiet flag: %w", err)
	}
	if !quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "converted %s -> %s (%s)\n", args[0], output, format)
	}
	return nil
}
