package logger

import "strconv"

// ANSI foreground colors. Every span is closed with the default-foreground
// code 39 so nested spans never bleed into the following text.
const (
	colorRed    = 31
	colorGreen  = 32
	colorYellow = 33
	colorCyan   = 36
	colorWhite  = 37
	colorGrey   = 90

	colorClose = "\x1b[39m"
)

func colorize(color int, s string) string {
	return "\x1b[" + strconv.Itoa(color) + "m" + s + colorClose
}

func levelColor(l Level) int {
	switch {
	case l >= LevelError:
		return colorRed
	case l >= LevelWarn:
		return colorYellow
	default:
		return colorCyan
	}
}

func statusColor(status int) int {
	switch {
	case status >= 500:
		return colorRed
	case status >= 400:
		return colorYellow
	case status >= 200:
		return colorGreen
	default:
		return 0
	}
}

func levelLabel(l Level) string {
	switch {
	case l >= 60:
		return "FATAL"
	case l >= LevelError:
		return "ERROR"
	case l >= LevelWarn:
		return "WARN"
	case l >= LevelInfo:
		return "INFO"
	case l >= 20:
		return "DEBUG"
	default:
		return "TRACE"
	}
}
