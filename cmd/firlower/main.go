package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"firlower/internal/lowertypes"
	"firlower/internal/version"
)

var rootCmd = &cobra.Command{
	Use:           "firlower",
	Short:         "Lower aggregate types in FIRRTL circuit snapshots",
	Long:          `firlower replaces bundle and vector types in a circuit snapshot with ground types`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return applyColorMode(cmd)
	},
}

func init() {
	rootCmd.AddCommand(lowerCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(versionCmd)

	// Глобальные флаги
	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	rootCmd.PersistentFlags().Bool("quiet", false, "suppress non-essential output")
	rootCmd.PersistentFlags().Bool("timings", false, "show timing information")
	rootCmd.PersistentFlags().String("config", "", "read settings from a TOML or YAML file")
	rootCmd.PersistentFlags().String("trace", "", "trace output file (- for stderr)")
	rootCmd.PersistentFlags().String("trace-level", "off", "trace level (off|error|phase|detail|debug)")
	rootCmd.PersistentFlags().String("trace-mode", "stream", "trace storage mode (stream|ring|both); ring keeps the last events and prints them on failure")
	rootCmd.PersistentFlags().String("trace-format", "auto", "trace output format (auto|text|ndjson)")
	rootCmd.PersistentFlags().Int("trace-ring-size", 4096, "events kept by the ring tracer")
	rootCmd.PersistentFlags().Duration("trace-heartbeat", 0, "emit a heartbeat event at this interval (0 disables)")
}

// main sets the command version and executes the root command. If execution
// returns an error, the process exits with status 1.
func main() {
	// Устанавливаем версию для автоматического флага --version
	rootCmd.Version = version.Version

	if err := rootCmd.Execute(); err != nil {
		printFailure(os.Stderr, err)
		os.Exit(1)
	}
}

var failureLabel = color.New(color.FgRed, color.Bold)

func printFailure(w io.Writer, err error) {
	label := "error:"
	if lowertypes.IsInvariantError(err) {
		label = "internal error:"
	}
	fmt.Fprintf(w, "%s %v\n", failureLabel.Sprint(label), err)
}

func applyColorMode(cmd *cobra.Command) error {
	colorFlag, err := cmd.Root().PersistentFlags().GetString("color")
	if err != nil {
		return err
	}
	switch colorFlag {
	case "on":
		color.NoColor = false
	case "off":
		color.NoColor = true
	case "auto":
		color.NoColor = !isTerminal(os.Stdout)
	default:
		return errInvalidColor(colorFlag)
	}
	return nil
}

// isTerminal проверяет, является ли файл терминалом
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
