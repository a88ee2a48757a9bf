// Package logger is a thin wrapper around zap: a global sugared logger
// writing console lines to stderr, context helpers
// (ToContext/FromContext/WithName/WithKV/WithFields) and leveled
// convenience functions (InfoKV, Errorf, ...).
//
// Every long-running component takes a context and logs through it, so a
// component's entries carry its dotted name and bound fields.
package logger
