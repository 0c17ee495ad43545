package logger

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/gaborage/go-ignition/apperrors"
)

// ZeroLogger encodes records with zerolog and fans them out to its streams.
type ZeroLogger struct {
	core   *core
	fields Fields
}

// Ensure ZeroLogger implements the interface
var _ Logger = (*ZeroLogger)(nil)

// core is shared by a logger and all loggers derived with WithFields.
// streams is only appended to while New runs.
type core struct {
	opts       Options
	level      Level
	transports []string
	streams    []*Stream
	hasStderr  bool
	zlog       zerolog.Logger
	closers    []io.Closer
	closeOnce  sync.Once
	closeErr   error
}

// New builds a logger and all of its streams. Configuration errors, such as
// an unknown transport name or an invalid match pattern, are returned before
// any stream is left open.
func New(opts Options) (*ZeroLogger, error) {
	opts = opts.withDefaults().withEnvOverrides(os.Getenv)
	if err := opts.validate(); err != nil {
		return nil, err
	}
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, apperrors.New(apperrors.IncorrectUsageError, apperrors.WithMessage(err.Error()))
	}

	names := normalizeTransports(opts.Transports)
	for _, name := range names {
		if _, ok := transportFactories[name]; !ok {
			return nil, apperrors.New(apperrors.IncorrectUsageError,
				apperrors.WithMessage(fmt.Sprintf("Transport %s is not supported.", name)),
				apperrors.WithHelp("Supported transports: "+strings.Join(supportedTransports, ", ")+"."),
			)
		}
	}

	c := &core{
		opts:       opts,
		level:      level,
		transports: names,
	}
	c.zlog = zerolog.New(dispatcher{c: c}).Level(zerolog.TraceLevel).With().Timestamp().Logger()

	for _, name := range names {
		if err := transportFactories[name](c); err != nil {
			_ = c.close()
			return nil, err
		}
	}
	return &ZeroLogger{core: c}, nil
}

// Info logs at info level.
func (l *ZeroLogger) Info(args ...any) {
	l.log(LevelInfo, args)
}

// Warn logs at warn level.
func (l *ZeroLogger) Warn(args ...any) {
	l.log(LevelWarn, args)
}

// Error logs at error level.
func (l *ZeroLogger) Error(args ...any) {
	l.log(LevelError, args)
}

// WithFields returns a logger whose records always carry fields. The
// call's own arguments are merged after them.
func (l *ZeroLogger) WithFields(fields map[string]any) Logger {
	merged := make(Fields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &ZeroLogger{core: l.core, fields: merged}
}

// Transports returns the normalized transport names in stream order.
func (l *ZeroLogger) Transports() []string {
	return append([]string(nil), l.core.transports...)
}

// StreamNames returns the names of the streams that were actually built.
func (l *ZeroLogger) StreamNames() []string {
	names := make([]string, 0, len(l.core.streams))
	for _, s := range l.core.streams {
		names = append(names, s.Name)
	}
	return names
}

// Streams returns a description of every stream.
func (l *ZeroLogger) Streams() []StreamInfo {
	out := make([]StreamInfo, 0, len(l.core.streams))
	for _, s := range l.core.streams {
		out = append(out, s.info())
	}
	return out
}

// Close releases files, connections and owned providers. It is safe to
// call more than once; loggers derived with WithFields share the result.
func (l *ZeroLogger) Close() error {
	return l.core.close()
}

func (l *ZeroLogger) log(level Level, args []any) {
	defer func() {
		// Logging calls never panic.
		_ = recover()
	}()

	all := args
	if len(l.fields) > 0 {
		all = make([]any, 0, len(args)+1)
		all = append(all, l.fields)
		all = append(all, args...)
	}
	rec := l.core.record(Merge(all...))
	l.core.zlog.WithLevel(level.zerolog()).Fields(rec).Send()
}

// record serializes merged fields: err, req and res through their
// serializers, everything else through the redactor.
func (c *core) record(merged Fields) map[string]any {
	out := make(map[string]any, len(merged))
	for k, v := range merged {
		if v == nil {
			continue
		}
		switch k {
		case KeyError:
			if e := c.serializeError(v); e != nil {
				out[k] = e
			}
		case KeyRequest:
			if r := SerializeRequest(v); r != nil {
				out[k] = r
			}
		case KeyResponse:
			if r := SerializeResponse(v); r != nil {
				out[k] = r
			}
		case KeyMessage:
			if s, ok := v.(string); ok {
				out[k] = s
			} else {
				out[k] = fmt.Sprint(v)
			}
		case zerolog.LevelFieldName, zerolog.TimestampFieldName:
			// owned by the encoder.
			continue
		default:
			if defaultRedactor.IsSensitive(k) {
				continue
			}
			out[k] = Redact(v)
		}
	}
	return out
}

func (c *core) serializeError(v any) any {
	switch e := v.(type) {
	case error:
		return SerializeError(e, c.opts.Domain)
	case map[string]any:
		return Redact(e)
	case string:
		return SerializeError(errors.New(e), c.opts.Domain)
	default:
		return nil
	}
}

// warn logs through whatever streams exist at the time of the call.
func (c *core) warn(msg string) {
	(&ZeroLogger{core: c}).Warn(msg)
}

func (c *core) addStream(s *Stream) {
	c.streams = append(c.streams, s)
	if s.Kind == KindConsoleErr {
		c.hasStderr = true
	}
	if closer, ok := s.w.(io.Closer); ok {
		c.closers = append(c.closers, closer)
	}
}

func (c *core) close() error {
	c.closeOnce.Do(func() {
		var errs []error
		for _, closer := range c.closers {
			if err := closer.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		c.closeErr = errors.Join(errs...)
	})
	return c.closeErr
}
