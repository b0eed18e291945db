package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"firlower/internal/config"
)

func errInvalidColor(value string) error {
	return fmt.Errorf("invalid --color value %q (expected auto|on|off)", value)
}

// loadSettings reads --config when given and applies every flag the user
// set explicitly on top of it.
func loadSettings(cmd *cobra.Command) (config.Options, error) {
	opts := config.Default()
	path, err := cmd.Root().PersistentFlags().GetString("config")
	if err != nil {
		return opts, fmt.Errorf("failed to get config flag: %w", err)
	}
	if path != "" {
		if opts, err = config.Load(path); err != nil {
			return opts, err
		}
	}

	pf := cmd.Root().PersistentFlags()
	if pf.Changed("trace") {
		opts.Trace.Output, _ = pf.GetString("trace")
	}
	if pf.Changed("trace-level") {
		opts.Trace.Level, _ = pf.GetString("trace-level")
	}
	if pf.Changed("trace-mode") {
		opts.Trace.Mode, _ = pf.GetString("trace-mode")
	}
	if pf.Changed("trace-format") {
		opts.Trace.Format, _ = pf.GetString("trace-format")
	}
	if pf.Changed("trace-ring-size") {
		opts.Trace.RingSize, _ = pf.GetInt("trace-ring-size")
	}

	fl := cmd.Flags()
	if fl.Lookup("preserve-aggregate") != nil && fl.Changed("preserve-aggregate") {
		opts.Lower.PreserveAggregate, _ = fl.GetBool("preserve-aggregate")
	}
	if fl.Lookup("preserve-public-types") != nil && fl.Changed("preserve-public-types") {
		opts.Lower.PreservePublicTypes, _ = fl.GetBool("preserve-public-types")
	}
	if fl.Lookup("jobs") != nil && fl.Changed("jobs") {
		opts.Lower.Jobs, _ = fl.GetInt("jobs")
	}

	if err := opts.Validate(); err != nil {
		return opts, fmt.Errorf("invalid settings: %w", err)
	}
	return opts, nil
}
