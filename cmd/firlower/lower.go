package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"firlower/internal/config"
	"firlower/internal/firrtl"
	"firlower/internal/lowertypes"
	"firlower/internal/observ"
	"firlower/internal/snapshot"
)

var lowerCmd = &cobra.Command{
	Use:   "lower <input.fsnap>",
	Short: "Lower aggregate types in a circuit snapshot",
	Long: `Lower reads a circuit snapshot, replaces bundle and vector types with
ground types, re-points hierarchical paths, and writes the result.`,
	Args: cobra.ExactArgs(1),
	RunE: runLower,
}

func init() {
	lowerCmd.Flags().StringP("output", "o", "", "write the lowered snapshot to this file")
	lowerCmd.Flags().Bool("preserve-aggregate", false, "keep passive aggregate declarations and ports")
	lowerCmd.Flags().Bool("preserve-public-types", false, "with --preserve-aggregate, still lower ports of public and external modules")
	lowerCmd.Flags().IntP("jobs", "j", 0, "modules lowered concurrently (0 = GOMAXPROCS)")
	lowerCmd.Flags().Bool("dump", false, "print the lowered circuit")
	lowerCmd.Flags().Bool("stats", false, "print op counts before and after lowering")
}

var (
	summaryLabel = color.New(color.FgCyan, color.Bold)
	summaryOK    = color.New(color.FgGreen, color.Bold)
)

func runLower(cmd *cobra.Command, args []string) (err error) {
	settings, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	session, err := setupTracing(cmd, settings.Trace)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			session.fail(err)
			session.close("failed")
			return
		}
		session.close("")
	}()

	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return fmt.Errorf("failed to get output flag: %w", err)
	}
	dump, err := cmd.Flags().GetBool("dump")
	if err != nil {
		return fmt.Errorf("failed to get dump flag: %w", err)
	}
	showStats, err := cmd.Flags().GetBool("stats")
	if err != nil {
		return fmt.Errorf("failed to get stats flag: %w", err)
	}
	quiet, _ := cmd.Root().PersistentFlags().GetBool("quiet")
	timings, _ := cmd.Root().PersistentFlags().GetBool("timings")

	timer := observ.NewTimer()
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()

	var circuit *firrtl.Circuit
	if err := timer.Measure("read", func() error {
		circuit, err = snapshot.ReadFile(args[0])
		return err
	}); err != nil {
		return err
	}
	if err := timer.Measure("validate-input", func() error {
		return firrtl.Validate(circuit)
	}); err != nil {
		return fmt.Errorf("%s: invalid input: %w", args[0], err)
	}
	before := firrtl.CollectStats(circuit)

	var res *lowertypes.Result
	err = timer.Measure("lower-types", func() error {
		res, err = lowertypes.Run(cmd.Context(), circuit, settings.LowerOptions())
		return err
	})
	if err != nil {
		return err
	}

	if err := timer.Measure("validate-output", func() error {
		return checkOutput(circuit, settings)
	}); err != nil {
		return fmt.Errorf("lowered circuit is invalid: %w", err)
	}

	if outputPath != "" {
		if err := timer.Measure("write", func() error {
			return snapshot.WriteFile(outputPath, circuit)
		}); err != nil {
			return err
		}
	}
	if dump {
		if err := firrtl.Dump(out, circuit); err != nil {
			return err
		}
	}

	if !quiet {
		printSummary(errOut, res)
		if showStats {
			fmt.Fprintf(errOut, "%s %s\n", summaryLabel.Sprint("before:"), before)
			fmt.Fprintf(errOut, "%s %s\n", summaryLabel.Sprint("after: "), firrtl.CollectStats(circuit))
		}
	}
	if timings {
		fmt.Fprint(errOut, timer.Summary())
	}
	return nil
}

// checkOutput validates the lowered circuit. Without aggregate preservation
// every port and result must also be ground.
func checkOutput(c *firrtl.Circuit, settings config.Options) error {
	if err := firrtl.Validate(c); err != nil {
		return err
	}
	if settings.Lower.PreserveAggregate {
		return nil
	}
	return firrtl.VerifyGround(c)
}

func printSummary(w io.Writer, res *lowertypes.Result) {
	fmt.Fprintf(w, "%s %d module(s) lowered, %d symbol(s) split, %d path(s) rewritten, %d path(s) added\n",
		summaryOK.Sprint("ok:"), res.ModulesLowered, len(res.Renames), res.PathsRewritten, res.PathsAdded)
}
