// Package config loads firlower settings from a TOML or YAML file.
//
//	[lower]
//	preserve_aggregate = true
//	preserve_public_types = true
//	jobs = 4
//
//	[trace]
//	level = "phase"
//	mode = "stream"
//	format = "auto"
//	output = "trace.ndjson"
//	ring_size = 4096
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"firlower/internal/lowertypes"
	"firlower/internal/trace"
)

// Options is the file representation of the command line settings.
type Options struct {
	Lower Lower `toml:"lower" yaml:"lower"`
	Trace Trace `toml:"trace" yaml:"trace"`
}

type Lower struct {
	PreserveAggregate   bool `toml:"preserve_aggregate" yaml:"preserve_aggregate"`
	PreservePublicTypes bool `toml:"preserve_public_types" yaml:"preserve_public_types"`
	Jobs                int  `toml:"jobs" yaml:"jobs"`
}

type Trace struct {
	Level    string `toml:"level" yaml:"level"`
	Mode     string `toml:"mode" yaml:"mode"`
	Format   string `toml:"format" yaml:"format"`
	Output   string `toml:"output" yaml:"output"`
	RingSize int    `toml:"ring_size" yaml:"ring_size"`
}

// Default returns the settings used when no file is given.
func Default() Options {
	return Options{
		Trace: Trace{
			Level:    "off",
			Mode:     "stream",
			Format:   "auto",
			Output:   "",
			RingSize: 4096,
		},
	}
}

// Load reads path, choosing the decoder by extension (.toml, .yaml, .yml).
// Keys the Options struct does not know are rejected.
func Load(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, err
	}
	var opts Options
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		opts, err = decodeTOML(data)
	case ".yaml", ".yml":
		opts, err = decodeYAML(data)
	default:
		return Options{}, fmt.Errorf("%s: unsupported config format %q", path, ext)
	}
	if err != nil {
		return Options{}, fmt.Errorf("%s: %w", path, err)
	}
	if err := opts.Validate(); err != nil {
		return Options{}, fmt.Errorf("%s: %w", path, err)
	}
	return opts, nil
}

func decodeTOML(data []byte) (Options, error) {
	opts := Default()
	meta, err := toml.Decode(string(data), &opts)
	if err != nil {
		return Options{}, fmt.Errorf("failed to parse TOML: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Options{}, fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	return opts, nil
}

func decodeYAML(data []byte) (Options, error) {
	opts := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&opts); err != nil {
		// An empty document keeps the defaults.
		if errors.Is(err, io.EOF) {
			return opts, nil
		}
		return Options{}, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return opts, nil
}

// Validate checks value ranges.
func (o Options) Validate() error {
	var errs []error
	if o.Lower.Jobs < 0 {
		errs = append(errs, fmt.Errorf("lower.jobs must not be negative, got %d", o.Lower.Jobs))
	}
	if _, err := trace.ParseLevel(o.Trace.Level); err != nil {
		errs = append(errs, fmt.Errorf("trace.level: %w", err))
	}
	if _, err := trace.ParseMode(o.Trace.Mode); err != nil {
		errs = append(errs, fmt.Errorf("trace.mode: %w", err))
	}
	if _, err := trace.ParseFormat(o.Trace.Format); err != nil {
		errs = append(errs, fmt.Errorf("trace.format: %w", err))
	}
	if o.Trace.RingSize <= 0 {
		errs = append(errs, fmt.Errorf("trace.ring_size must be positive, got %d", o.Trace.RingSize))
	}
	return errors.Join(errs...)
}

// LowerOptions converts the [lower] table into pass options.
func (o Options) LowerOptions() lowertypes.Options {
	return lowertypes.Options{
		PreserveAggregate:   o.Lower.PreserveAggregate,
		PreservePublicTypes: o.Lower.PreservePublicTypes,
		Jobs:                o.Lower.Jobs,
	}
}
