// Package monitoring holds the sampler's diagnostic logging hooks.
package monitoring

import (
	"log"
	"sync/atomic"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

var verbose atomic.Bool

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetVerbose turns Debugf output on or off.
func SetVerbose(on bool) { verbose.Store(on) }

// Warnf logs a recoverable problem the user should know about.
func Warnf(format string, v ...interface{}) {
	Logf("WARNING: "+format, v...)
}

// Debugf logs only when verbose output is enabled.
func Debugf(format string, v ...interface{}) {
	if verbose.Load() {
		Logf(format, v...)
	}
}
