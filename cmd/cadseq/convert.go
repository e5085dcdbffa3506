package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Sternrassler/cadseq/pkg/convert"
	"github.com/spf13/cobra"
)

var (
	convertOutput  string
	convertName    string
	convertMode    = convert.Continue
	convertKernel  string
	convertWorkers int
)

var convertCmd = &cobra.Command{
	Use:   "convert <record.json|dir>",
	Short: "Convert design-history records into artifacts",
	Long: `Builds the artifact of one record, or of every *.json record in a
directory, with the configured geometry kernel. The mode decides what
happens when the target exists: new allocates a fresh name, replace
overwrites it and continue skips it.`,
	Args: cobra.ExactArgs(1),
	RunE: runConvert,
}

func init() {
	convertCmd.Flags().StringVarP(&convertOutput, "output", "o", "", "output directory (default: <source dir>/step)")
	convertCmd.Flags().StringVar(&convertName, "name", "", "artifact name for a single record (default: record file name)")
	convertCmd.Flags().Var(&convertMode, "mode", "new, replace or continue (default from config)")
	convertCmd.Flags().StringVar(&convertKernel, "kernel", "", "geometry kernel command (default from config)")
	convertCmd.Flags().IntVarP(&convertWorkers, "workers", "w", 0, "concurrent conversions for a directory (default from config)")
	rootCmd.AddCommand(convertCmd)
}

// newDispatcher builds a dispatcher around the configured kernel.
func newDispatcher(kernel string) (*convert.Dispatcher, error) {
	command := cfg.Convert.Command
	if kernel != "" {
		command = strings.Fields(kernel)
	}
	if len(command) == 0 {
		return nil, errors.New("no geometry kernel configured (set convert.command or --kernel)")
	}
	builder, err := convert.NewCommandBuilder(command, cfg.Convert.Extension)
	if err != nil {
		return nil, err
	}
	return convert.NewDispatcher(builder, nil), nil
}

// configuredMode returns the --mode flag when set and the config mode otherwise.
func configuredMode(cmd *cobra.Command, flag convert.Mode) (convert.Mode, error) {
	if f := cmd.Flags().Lookup("mode"); f != nil && f.Changed {
		return flag, nil
	}
	return convert.ParseMode(cfg.Convert.Mode)
}

func runConvert(cmd *cobra.Command, args []string) error {
	src := args[0]
	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	mode, err := configuredMode(cmd, convertMode)
	if err != nil {
		return err
	}
	dispatcher, err := newDispatcher(convertKernel)
	if err != nil {
		return err
	}

	if ext := convert.Suffix(convertOutput); ext != "" {
		return fmt.Errorf("output %q must be a directory, not a %s file", convertOutput, ext)
	}

	if info.IsDir() {
		output := firstNonEmpty(convertOutput, filepath.Join(src, "step"))
		report, err := dispatcher.ConvertDir(cmd.Context(), src, output, mode, firstPositive(convertWorkers, cfg.Convert.Workers))
		if err != nil {
			return err
		}
		printDirReport(cmd, report)
		if report.Failures > 0 {
			return fmt.Errorf("%d of %d conversions failed", report.Failures, report.Total)
		}
		return nil
	}

	output := firstNonEmpty(convertOutput, filepath.Join(filepath.Dir(src), "step"))
	res := dispatcher.Convert(cmd.Context(), convert.FromPath(src), output, convertName, mode)
	cmd.Println(res.String())
	if res.Failed() {
		return fmt.Errorf("conversion failed: %w", res.Err)
	}
	return nil
}

func printDirReport(cmd *cobra.Command, report *convert.DirReport) {
	counts := make(map[convert.ResultKind]int)
	for _, res := range report.Results {
		counts[res.Kind]++
	}
	cmd.Printf("Converted: %d records, %d failed\n", report.Total, report.Failures)
	for _, kind := range []convert.ResultKind{convert.Success, convert.AlreadyExists, convert.LoadFailure, convert.BuildFailure, convert.WriteFailure} {
		if counts[kind] > 0 {
			cmd.Printf("  %s: %d\n", kind, counts[kind])
		}
	}
}
