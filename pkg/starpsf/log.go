package starpsf

import "log"

// Logf receives stage diagnostics when Options.Verbose is set. It defaults
// to the standard logger. Use SetLogger to replace it.
var Logf = log.Printf

// SetLogger replaces Logf. A nil function silences diagnostics. Logf is
// read without locking, so call SetLogger before any measurement starts.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

func (o *Options) logf(format string, v ...interface{}) {
	if o.Verbose {
		Logf(format, v...)
	}
}
