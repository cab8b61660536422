// Package logging builds the component loggers used across tend.
//
// Interactive commands own the terminal, so when a log file is
// configured all components write there through size-based rotation;
// otherwise they log to stderr. Every process run gets a short id so
// lines from one invocation can be correlated.
package logging

import (
	"io"
	"log"
	"os"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"
)

// runID identifies this process run in log lines.
var runID = uuid.NewString()[:8]

// RunID returns the identifier for this process run.
func RunID() string {
	return runID
}

// Writer returns the shared log destination. An empty file means
// stderr; anything else is a rotated log file.
func Writer(file string) io.Writer {
	if file == "" {
		return os.Stderr
	}
	return &lumberjack.Logger{
		Filename:   file,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     30, // days
	}
}

// New creates a component logger writing to w with the conventional
// "[component run] " prefix.
func New(component string, w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	return log.New(w, "["+component+" "+runID+"] ", log.LstdFlags)
}
