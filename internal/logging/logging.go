// Package logging provides the small prefixed-logger convention used across
// every subsystem of the ledger, matching the teacher's
// "[component] message" style (see kernel/internal/audit/streamer.go).
package logging

import "log"

// Logger writes single-line, prefixed messages via the standard log package.
// No structured logging library is introduced: the teacher's entire stack
// logs through log.Printf, and this repo keeps that idiom rather than
// importing one for its own sake.
type Logger struct {
	prefix string
}

// New returns a Logger that prefixes every line with "[component] ".
func New(component string) *Logger {
	return &Logger{prefix: "[" + component + "] "}
}

func (l *Logger) Printf(format string, args ...interface{}) {
	log.Printf(l.prefix+format, args...)
}

func (l *Logger) Println(args ...interface{}) {
	log.Println(append([]interface{}{l.prefix}, args...)...)
}
