package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"firlower/internal/firrtl"
	"firlower/internal/snapshot"
)

var dumpCmd = &cobra.Command{
	Use:   "dump <input.fsnap>",
	Short: "Print a circuit snapshot in text form",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		module, err := cmd.Flags().GetString("module")
		if err != nil {
			return fmt.Errorf("failed to get module flag: %w", err)
		}
		stats, err := cmd.Flags().GetBool("stats")
		if err != nil {
			return fmt.Errorf("failed to get stats flag: %w", err)
		}

		c, err := snapshot.ReadFile(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if stats {
			_, err = fmt.Fprintln(out, firrtl.CollectStats(c))
			return err
		}
		if module == "" {
			return firrtl.Dump(out, c)
		}
		m := c.Module(module)
		if m == nil {
			return fmt.Errorf("%s: no module named %q", args[0], module)
		}
		return firrtl.DumpModule(out, c.Types, m)
	},
}

func init() {
	dumpCmd.Flags().String("module", "", "print only this module")
	dumpCmd.Flags().Bool("stats", false, "print op counts instead of the circuit")
}
