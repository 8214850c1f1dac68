// Package log provides the leveled, colorized loggers used throughout
// nostrkit: log.T (trace), log.D (debug), log.I (info), log.W (warn) and
// log.E (error), each exposing an .F(format, args...) method. Grounded on
// the teacher's orly.dev/pkg/utils/log package of the same shape, which is
// absent from the retrieval pack; colorization via github.com/fatih/color
// matches the teacher's declared go.mod dependency.
package log

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/fatih/color"
)

// Level is a log verbosity threshold.
type Level int

// Levels, from least to most verbose.
const (
	Off Level = iota
	Error
	Warn
	Info
	Debug
	Trace
)

var threshold atomic.Int32

func init() { threshold.Store(int32(Info)) }

// SetLevel sets the minimum level that will be printed.
func SetLevel(l Level) { threshold.Store(int32(l)) }

// Logger prints lines at a single fixed level.
type Logger struct {
	level  Level
	prefix string
	color  *color.Color
	out    io.Writer
}

var (
	// T logs at Trace level.
	T = &Logger{level: Trace, prefix: "TRC", color: color.New(color.FgHiBlack), out: os.Stderr}
	// D logs at Debug level.
	D = &Logger{level: Debug, prefix: "DBG", color: color.New(color.FgCyan), out: os.Stderr}
	// I logs at Info level.
	I = &Logger{level: Info, prefix: "INF", color: color.New(color.FgGreen), out: os.Stderr}
	// W logs at Warn level.
	W = &Logger{level: Warn, prefix: "WRN", color: color.New(color.FgYellow), out: os.Stderr}
	// E logs at Error level.
	E = &Logger{level: Error, prefix: "ERR", color: color.New(color.FgRed)}
)

func init() { E.out = os.Stderr }

// F formats and prints a line if its level is within the current threshold.
func (l *Logger) F(format string, args ...any) {
	if Level(threshold.Load()) < l.level {
		return
	}
	msg := fmt.Sprintf(format, args...)
	l.color.Fprintf(l.out, "[%s] %s\n", l.prefix, msg)
}
