package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"firlower/internal/config"
	"firlower/internal/trace"
)

// failureTail is how many recorded events a failed run prints.
const failureTail = 32

// traceSession is the tracer of one command with its root span.
type traceSession struct {
	tracer    trace.Tracer
	root      *trace.Span
	heartbeat *trace.Heartbeat
	format    trace.Format
	errOut    io.Writer
}

var traceLabel = color.New(color.FgYellow)

// setupTracing builds the tracer described by settings, opens the command
// span and attaches both to the command context.
func setupTracing(cmd *cobra.Command, settings config.Trace) (*traceSession, error) {
	heartbeatInterval, err := cmd.Root().PersistentFlags().GetDuration("trace-heartbeat")
	if err != nil {
		return nil, fmt.Errorf("failed to get trace-heartbeat flag: %w", err)
	}
	level, err := trace.ParseLevel(settings.Level)
	if err != nil {
		return nil, err
	}
	mode, err := trace.ParseMode(settings.Mode)
	if err != nil {
		return nil, err
	}
	format, err := trace.ParseFormat(settings.Format)
	if err != nil {
		return nil, err
	}

	tracer, err := trace.New(trace.Config{
		Level:    level,
		Mode:     mode,
		Format:   format,
		Output:   settings.Output,
		RingSize: settings.RingSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer: %w", err)
	}

	s := &traceSession{tracer: tracer, format: format, errOut: cmd.ErrOrStderr()}
	if s.format == trace.FormatAuto {
		s.format = trace.FormatText
	}
	s.root = trace.Begin(tracer, trace.ScopeDriver, cmd.CommandPath(), 0)
	ctx := trace.WithTracer(cmd.Context(), tracer)
	ctx = trace.WithParent(ctx, s.root.ID())
	cmd.SetContext(ctx)
	s.heartbeat = trace.StartHeartbeat(tracer, heartbeatInterval)
	return s, nil
}

// fail records err and prints the newest recorded events, when the tracer
// keeps any, so the failure can be read in context.
func (s *traceSession) fail(err error) {
	trace.Fail(s.tracer, trace.ScopeDriver, "lower", err, s.root.ID())
	rec := trace.RecorderOf(s.tracer)
	if rec == nil {
		return
	}
	events := rec.Tail(failureTail)
	if len(events) == 0 {
		return
	}
	fmt.Fprintf(s.errOut, "%s last %d trace event(s):\n", traceLabel.Sprint("trace:"), len(events))
	if err := rec.WriteTail(s.errOut, failureTail, s.format); err != nil {
		fmt.Fprintf(s.errOut, "trace: %v\n", err)
	}
}

// close ends the command span and releases the tracer.
func (s *traceSession) close(detail string) {
	s.heartbeat.Stop()
	s.root.End(detail)
	if err := s.tracer.Flush(); err != nil {
		fmt.Fprintf(s.errOut, "trace: flush error: %v\n", err)
	}
	if err := s.tracer.Close(); err != nil {
		fmt.Fprintf(s.errOut, "trace: close error: %v\n", err)
	}
}
