package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"
)

const prettyTimeLayout = "2006-01-02 15:04:05"

// PrettyFormatter renders JSON records as colored, human-readable text.
// Short mode prints one summary line plus an error block when present; long
// mode adds the request and response details.
type PrettyFormatter struct {
	Mode string
}

// Format renders one JSON record. Malformed input is returned unchanged.
func (f PrettyFormatter) Format(line []byte) string {
	rec, err := decodeOrdered(line)
	if err != nil {
		return string(line)
	}
	return f.format(rec)
}

func (f PrettyFormatter) format(rec *orderedMap) string {
	long := f.Mode == ModeLong

	lvlValue, _ := rec.get("level")
	level, ok := parseRecordLevel(lvlValue)
	if !ok {
		level = LevelInfo
	}
	color := levelColor(level)
	label := colorize(color, levelLabel(level))
	ts := formatRecordTime(rec)

	req := rec.getMap(KeyRequest)
	res := rec.getMap(KeyResponse)
	errRec := rec.getMap(KeyError)

	var b strings.Builder
	switch {
	case req != nil && res != nil:
		status := res.getString("statusCode")
		if code, convErr := strconv.Atoi(status); convErr == nil {
			if c := statusColor(code); c != 0 {
				status = colorize(c, status)
			}
		}
		fmt.Fprintf(&b, "%s [%s] \"%s %s\" %s %s\n",
			label, ts, strings.ToUpper(req.getString("method")), req.getString("originalUrl"),
			status, res.getString("responseTime"))
	case errRec != nil:
		fmt.Fprintf(&b, "[%s] %s\n", ts, label)
	default:
		if _, hasMsg := rec.get(KeyMessage); hasMsg {
			fmt.Fprintf(&b, "[%s] %s %s\n", ts, label, rec.getString(KeyMessage))
		} else {
			fmt.Fprintf(&b, "[%s] %s\n", ts, label)
		}
	}

	if errRec != nil {
		b.WriteString(f.errorBlock(errRec, color, long))
	}

	if long && (errRec != nil || (req != nil && res != nil)) {
		b.WriteString(colorize(colorGrey, detailBlock(req, res)))
		b.WriteByte('\n')
	}
	return b.String()
}

func (f PrettyFormatter) errorBlock(errRec *orderedMap, color int, long bool) string {
	var b strings.Builder
	b.WriteByte('\n')

	if code := errRec.getString("code"); code != "" && !long {
		b.WriteString(colorize(color, "CODE: "+code))
		b.WriteByte('\n')
	}
	b.WriteString(colorize(color, "MESSAGE: "+errRec.getString("message")))
	b.WriteByte('\n')
	if ctx := errRec.getString("context"); ctx != "" {
		b.WriteString(colorize(color, "CONTEXT: "+ctx))
		b.WriteByte('\n')
	}
	if help := errRec.getString("help"); help != "" {
		b.WriteString(colorize(color, "HELP: "+help))
		b.WriteByte('\n')
	}

	if details, ok := errRec.get("errorDetails"); ok && !isEmptyValue(details) {
		var entries []string
		if list, isList := details.([]any); isList {
			for _, d := range list {
				entries = append(entries, renderEntry(d, 4))
			}
		} else {
			entries = append(entries, renderEntry(details, 4))
		}
		b.WriteByte('\n')
		b.WriteString(colorize(color, "ERROR DETAILS:\n"+strings.Join(entries, "\n")))
		b.WriteByte('\n')
	}

	hideStack := false
	if v, ok := errRec.get("hideStack"); ok {
		hideStack, _ = v.(bool)
	}
	if stack := errRec.getString("stack"); stack != "" && !hideStack {
		b.WriteByte('\n')
		b.WriteString(colorize(colorWhite, stack))
		b.WriteByte('\n')
	}

	return colorize(color, b.String()) + "\n"
}

// detailBlock is the long-mode REQ/RES dump; empty unless both are present.
func detailBlock(req, res *orderedMap) string {
	if req == nil || res == nil {
		return ""
	}
	r := renderer{colored: true}
	var b strings.Builder
	b.WriteByte('\n')
	b.WriteString(colorize(colorYellow, "REQ"))
	b.WriteByte('\n')
	b.WriteString(r.render(req.pick("ip", "originalUrl", "method", "body"), 0))
	b.WriteString("\n\n")
	b.WriteString(colorize(colorYellow, "RES"))
	b.WriteByte('\n')
	b.WriteString(r.render(res.pick("responseTime"), 0))
	b.WriteByte('\n')
	return b.String()
}

func renderEntry(v any, indent int) string {
	r := renderer{}
	if isContainer(v) {
		return r.render(v, indent)
	}
	return strings.Repeat(" ", indent) + scalarString(v)
}

// formatRecordTime prints RFC3339 and unix times in local time; anything else verbatim.
func formatRecordTime(rec *orderedMap) string {
	v, ok := rec.get("time")
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed.Local().Format(prettyTimeLayout)
		}
		return t
	case json.Number:
		if n, err := t.Int64(); err == nil {
			if n > 1e12 {
				return time.UnixMilli(n).Local().Format(prettyTimeLayout)
			}
			return time.Unix(n, 0).Local().Format(prettyTimeLayout)
		}
		return t.String()
	default:
		return scalarString(v)
	}
}

// renderer lays out nested values as aligned "key: value" lines. Keys are
// padded to the longest sibling, nested containers are indented by two
// spaces and array items are prefixed with "- ".
type renderer struct {
	colored bool
}

func (r renderer) render(v any, indent int) string {
	return strings.Join(r.lines(v, indent), "\n")
}

func (r renderer) lines(v any, indent int) []string {
	pad := strings.Repeat(" ", indent)
	switch val := v.(type) {
	case *orderedMap:
		if val.len() == 0 {
			return []string{pad + "{}"}
		}
		width := 0
		for _, k := range val.keys {
			width = max(width, len(k))
		}
		var out []string
		for _, k := range val.keys {
			child := val.values[k]
			label := r.key(k + ": ")
			if isContainer(child) && !isEmptyValue(child) {
				out = append(out, pad+label)
				out = append(out, r.lines(child, indent+2)...)
				continue
			}
			out = append(out, pad+label+strings.Repeat(" ", width-len(k))+scalarString(child))
		}
		return out
	case []any:
		if len(val) == 0 {
			return []string{pad + "(empty array)"}
		}
		var out []string
		dash := r.key("- ")
		for _, item := range val {
			if isContainer(item) && !isEmptyValue(item) {
				out = append(out, pad+dash)
				out = append(out, r.lines(item, indent+2)...)
				continue
			}
			out = append(out, pad+dash+scalarString(item))
		}
		return out
	default:
		return []string{pad + scalarString(v)}
	}
}

func (r renderer) key(s string) string {
	if r.colored {
		return colorize(colorGreen, s)
	}
	return s
}

func isContainer(v any) bool {
	switch v.(type) {
	case *orderedMap, []any:
		return true
	}
	return false
}

func isEmptyValue(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case *orderedMap:
		return val.len() == 0
	case []any:
		return len(val) == 0
	}
	return false
}

func scalarString(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case *orderedMap:
		if val.len() == 0 {
			return "{}"
		}
		return renderer{}.render(val, 0)
	case []any:
		if len(val) == 0 {
			return "(empty array)"
		}
		return renderer{}.render(val, 0)
	default:
		return fmt.Sprint(val)
	}
}

// PrettyWriter formats every written JSON record before passing it on.
// Write never fails: unparsable input is forwarded raw, and a record whose
// formatting panics is dropped.
type PrettyWriter struct {
	mu        sync.Mutex
	out       io.Writer
	formatter PrettyFormatter
}

// NewPrettyWriter wraps out with a formatter in the given mode.
func NewPrettyWriter(out io.Writer, mode string) *PrettyWriter {
	return &PrettyWriter{out: out, formatter: PrettyFormatter{Mode: mode}}
}

// Write formats one JSON record to the underlying writer. Records that
// cannot be formatted are dropped.
func (w *PrettyWriter) Write(p []byte) (int, error) {
	text, ok := w.safeFormat(p)
	if !ok {
		return len(p), nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, _ = io.WriteString(w.out, text)
	return len(p), nil
}

func (w *PrettyWriter) safeFormat(p []byte) (text string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			text, ok = "", false
		}
	}()
	return w.formatter.Format(p), true
}
