package config

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	maxInt = int(^uint(0) >> 1)
	minInt = -maxInt - 1

	errMsgUnsupportedType = "unsupported type %T"
)

var errEmptyString = errors.New("empty string")

// toInt converts numbers and numeric strings with overflow protection.
// Values from env vars and argv always arrive as strings.
func toInt(value any) (int, error) {
	n, err := toInt64(value)
	if err != nil {
		return 0, err
	}
	if n > int64(maxInt) || n < int64(minInt) {
		return 0, fmt.Errorf("value %d overflows int", n)
	}
	return int(n), nil
}

func toInt64(value any) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, fmt.Errorf("value %d overflows int64", v)
		}
		return int64(v), nil //#nosec G115 -- checked above
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) || math.Trunc(v) != v {
			return 0, fmt.Errorf("value %v is not an integer", v)
		}
		if v >= math.MaxInt64 || v < math.MinInt64 {
			return 0, fmt.Errorf("value %v overflows int64", v)
		}
		return int64(v), nil
	case string:
		str := strings.TrimSpace(v)
		if str == "" {
			return 0, errEmptyString
		}
		return strconv.ParseInt(str, 10, 64)
	default:
		return 0, fmt.Errorf(errMsgUnsupportedType, value)
	}
}

func toBool(value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		str := strings.TrimSpace(v)
		if str == "" {
			return false, errEmptyString
		}
		return strconv.ParseBool(str)
	default:
		n, err := toInt64(v)
		if err != nil {
			return false, fmt.Errorf(errMsgUnsupportedType, value)
		}
		return n != 0, nil
	}
}

// toDuration accepts Go duration strings or plain millisecond counts.
func toDuration(value any) (time.Duration, error) {
	if d, ok := value.(time.Duration); ok {
		return d, nil
	}
	if s, ok := value.(string); ok {
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, errEmptyString
		}
		if d, err := time.ParseDuration(s); err == nil {
			return d, nil
		}
	}
	ms, err := toInt64(value)
	if err != nil {
		return 0, err
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func toStringSlice(value any) []string {
	switch v := value.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case string:
		if strings.TrimSpace(v) == "" {
			return []string{}
		}
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	default:
		return []string{fmt.Sprint(v)}
	}
}
