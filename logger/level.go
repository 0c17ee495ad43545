package logger

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// Level is the numeric severity of a record. Higher is more severe.
type Level int

const (
	LevelInfo  Level = 30
	LevelWarn  Level = 40
	LevelError Level = 50
)

// String returns the lowercase level name, or the number for other levels.
func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return strconv.Itoa(int(l))
	}
}

// ParseLevel accepts "info", "warn", "error" (any case).
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

// parseRecordLevel reads a record's "level" value, numeric or named.
func parseRecordLevel(v any) (Level, bool) {
	switch lv := v.(type) {
	case string:
		if l, err := ParseLevel(lv); err == nil {
			return l, true
		}
		if n, err := strconv.Atoi(lv); err == nil {
			return Level(n), true
		}
	case float64:
		return Level(int(lv)), true
	case int:
		return Level(lv), true
	case interface{ Int64() (int64, error) }:
		if n, err := lv.Int64(); err == nil {
			return Level(n), true
		}
	}
	return 0, false
}

func (l Level) zerolog() zerolog.Level {
	switch {
	case l >= LevelError:
		return zerolog.ErrorLevel
	case l >= LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.InfoLevel
	}
}

func levelFromZerolog(l zerolog.Level) Level {
	switch {
	case l >= zerolog.ErrorLevel:
		return LevelError
	case l == zerolog.WarnLevel:
		return LevelWarn
	default:
		return LevelInfo
	}
}
