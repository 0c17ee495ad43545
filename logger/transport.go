package logger

import (
	"bytes"
	"encoding/json"
	"io"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/rs/zerolog"

	"github.com/gaborage/go-ignition/apperrors"
)

// Transport names accepted in Options.Transports.
const (
	TransportStdout = "stdout"
	TransportStderr = "stderr"
	TransportFile   = "file"
	TransportLoggly = "loggly"
	TransportAMQP   = "amqp"
	TransportOTel   = "otel"
)

// StreamKind classifies a stream's sink.
type StreamKind string

const (
	KindConsoleOut   StreamKind = "console-out"
	KindConsoleErr   StreamKind = "console-err"
	KindFile         StreamKind = "file"
	KindRotatingFile StreamKind = "rotating-file"
	KindRemote       StreamKind = "remote"
)

const matchTimeout = 100 * time.Millisecond

// Stream is one named sink with its own minimum level and optional filter.
type Stream struct {
	Name  string
	Kind  StreamKind
	Level Level
	match *regexp2.Regexp
	w     io.Writer
}

// StreamInfo describes a built stream.
type StreamInfo struct {
	Name  string
	Kind  StreamKind
	Level Level
	Match string
}

func (s *Stream) info() StreamInfo {
	info := StreamInfo{Name: s.Name, Kind: s.Kind, Level: s.Level}
	if s.match != nil {
		info.Match = s.match.String()
	}
	return info
}

// supportedTransports lists the accepted transport names in documentation order.
var supportedTransports = []string{
	TransportStdout, TransportStderr, TransportFile, TransportLoggly, TransportAMQP, TransportOTel,
}

type transportFactory func(c *core) error

var transportFactories map[string]transportFactory

func init() {
	transportFactories = map[string]transportFactory{
		TransportStdout: buildStdout,
		TransportStderr: buildStderr,
		TransportFile:   buildFile,
		TransportLoggly: buildLoggly,
		TransportAMQP:   buildAMQP,
		TransportOTel:   buildOTel,
	}
}

// normalizeTransports puts stdout first and adds it when only stderr is
// configured, so construction warnings are always visible. Duplicates are dropped.
func normalizeTransports(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names)+1)
	hasStdout, hasStderr := false, false
	for _, n := range names {
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		switch n {
		case TransportStdout:
			hasStdout = true
			continue
		case TransportStderr:
			hasStderr = true
		}
		out = append(out, n)
	}
	if hasStdout || hasStderr {
		out = append([]string{TransportStdout}, out...)
	}
	return out
}

func buildStdout(c *core) error {
	c.addStream(&Stream{
		Name:  TransportStdout,
		Kind:  KindConsoleOut,
		Level: c.level,
		w:     NewPrettyWriter(c.opts.Stdout, c.opts.Mode),
	})
	return nil
}

func buildStderr(c *core) error {
	c.addStream(&Stream{
		Name:  TransportStderr,
		Kind:  KindConsoleErr,
		Level: LevelError,
		w:     NewPrettyWriter(c.opts.Stderr, c.opts.Mode),
	})
	return nil
}

// compileMatch compiles a remote stream filter. Patterns use the ECMAScript
// dialect so look-around assertions are available.
func compileMatch(transport, pattern string) (*regexp2.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	re, err := regexp2.Compile(pattern, regexp2.ECMAScript)
	if err != nil {
		return nil, apperrors.New(apperrors.IncorrectUsageError,
			apperrors.WithMessage("Invalid match pattern for transport "+transport+"."),
			apperrors.WithContext(pattern),
			apperrors.WithCause(err),
		)
	}
	re.MatchTimeout = matchTimeout
	return re, nil
}

// dispatcher is the zerolog.LevelWriter that routes encoded records.
type dispatcher struct {
	c *core
}

var _ zerolog.LevelWriter = dispatcher{}

func (d dispatcher) Write(p []byte) (int, error) {
	return d.WriteLevel(zerolog.InfoLevel, p)
}

// WriteLevel hands each qualifying stream its own copy of p. Sink failures
// are swallowed so the remaining streams still receive the record.
func (d dispatcher) WriteLevel(zl zerolog.Level, p []byte) (int, error) {
	level := levelFromZerolog(zl)
	isError := level >= LevelError

	var (
		errText    string
		errTextSet bool
	)
	for _, s := range d.c.streams {
		if level < s.Level {
			continue
		}
		if s.Kind == KindConsoleOut && isError && d.c.hasStderr {
			continue
		}
		if s.match != nil && isError {
			if !errTextSet {
				errText, errTextSet = matchSubject(p), true
			}
			if !matches(s.match, errText) {
				continue
			}
		}
		buf := make([]byte, len(p))
		copy(buf, p)
		writeSafely(s, buf)
	}
	return len(p), nil
}

func writeSafely(s *Stream, p []byte) {
	defer func() {
		_ = recover()
	}()
	_, _ = s.w.Write(p)
}

// matchSubject is the record's "err" object as compact JSON with every
// double quote removed, or "" when the record has no error.
func matchSubject(p []byte) string {
	var rec struct {
		Err json.RawMessage `json:"err"`
	}
	if err := json.Unmarshal(p, &rec); err != nil || len(rec.Err) == 0 {
		return ""
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, rec.Err); err != nil {
		return ""
	}
	return string(bytes.ReplaceAll(compact.Bytes(), []byte(`"`), nil))
}

// matches fails open: a pattern that times out lets the record through.
func matches(re *regexp2.Regexp, s string) bool {
	ok, err := re.MatchString(s)
	if err != nil {
		return true
	}
	return ok
}
