// Package klog builds the structured logger shared by the kernel and its
// devices. Events are JSON lines written to a hal.Logger.
package klog

import (
	"bytes"

	"kestrel/hal"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is the logger type accepted throughout the kernel.
type Logger = logiface.Logger[logiface.Event]

// New returns a logger writing events at or above level to sink.
func New(sink hal.Logger, level logiface.Level) *Logger {
	return stumpy.L.New(
		stumpy.L.WithStumpy(
			stumpy.WithWriter(lineWriter{sink: sink}),
			stumpy.WithTimeField("time"),
		),
		stumpy.L.WithLevel(level),
	).Logger()
}

// Level maps the host's verbosity flag to a log level.
func Level(verbose bool) logiface.Level {
	if verbose {
		return logiface.LevelDebug
	}
	return logiface.LevelInformational
}

// lineWriter adapts a hal.Logger to the io.Writer stumpy encodes into. Each
// Write carries one newline-terminated event.
type lineWriter struct {
	sink hal.Logger
}

func (w lineWriter) Write(p []byte) (int, error) {
	w.sink.WriteLineBytes(bytes.TrimRight(p, "\n"))
	return len(p), nil
}
