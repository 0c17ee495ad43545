// Package debug provides namespaced diagnostic loggers toggled by the DEBUG
// environment variable.
//
// Namespaces are "<alias>:<name>", where alias is the last element of the
// main module path. DEBUG holds comma or space separated glob patterns;
// a leading "-" excludes matching namespaces:
//
//	DEBUG='go-ignition:*,-go-ignition:server'
package debug

import (
	"io"
	"os"
	"path"
	rdebug "runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EnvVar names the environment variable holding the enabled patterns.
const EnvVar = "DEBUG"

const undefinedAlias = "undefined"

// Output receives enabled debug loggers' output.
var Output io.Writer = os.Stderr

var aliasOnce = sync.OnceValue(func() string {
	info, ok := rdebug.ReadBuildInfo()
	if !ok {
		return undefinedAlias
	}
	return aliasFor(info.Main.Path)
})

// Alias returns the namespace prefix for this program.
func Alias() string {
	return aliasOnce()
}

// Namespace returns the full namespace for name.
func Namespace(name string) string {
	return Alias() + ":" + name
}

// New returns a console logger for Namespace(name) when DEBUG enables it,
// otherwise a disabled logger. DEBUG is read on every call.
func New(name string) *zerolog.Logger {
	ns := Namespace(name)
	if !Enabled(os.Getenv(EnvVar), ns) {
		nop := zerolog.Nop()
		return &nop
	}
	w := zerolog.ConsoleWriter{Out: Output, TimeFormat: time.RFC3339}
	l := zerolog.New(w).Level(zerolog.TraceLevel).With().Timestamp().Str("ns", ns).Logger()
	return &l
}

// Enabled reports whether the patterns enable namespace.
// Exclusions win over inclusions regardless of order. Malformed patterns
// match nothing.
func Enabled(patterns, namespace string) bool {
	enabled := false
	for _, pattern := range strings.FieldsFunc(patterns, isSeparator) {
		if exclude, ok := strings.CutPrefix(pattern, "-"); ok {
			if match(exclude, namespace) {
				return false
			}
			continue
		}
		if !enabled && match(pattern, namespace) {
			enabled = true
		}
	}
	return enabled
}

func match(pattern, namespace string) bool {
	ok, err := path.Match(pattern, namespace)
	return err == nil && ok
}

func isSeparator(r rune) bool {
	return r == ',' || r == ' ' || r == '\t' || r == '\n'
}

func aliasFor(modulePath string) string {
	if modulePath == "" || modulePath == "command-line-arguments" {
		return undefinedAlias
	}
	return path.Base(modulePath)
}
