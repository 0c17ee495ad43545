// Package logger implements a structured, multi-transport logger.
//
// Each call merges its arguments into one JSON record, which is routed to
// every configured stream whose level and filters accept it. Console streams
// pretty-print the record; file, rotating-file and remote streams receive the
// JSON bytes.
package logger

// Logger is the leveled logging contract used across the module.
// Arguments may mix strings, errors, maps, structs, *Request and *Response;
// see Merge for how they combine.
type Logger interface {
	Info(args ...any)
	Warn(args ...any)
	Error(args ...any)
	WithFields(fields map[string]any) Logger
}
