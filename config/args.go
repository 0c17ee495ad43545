package config

import (
	"strings"
)

// parseArgs turns "--key=value", "--key value" and bare "--flag" arguments into
// a flat koanf map. Nested keys use dots (--server.port=3000) or the env
// separator (--server__port=3000). Positional arguments are ignored.
//
// pflag is not used here because it rejects flags that were not declared up
// front, and configuration keys are open-ended.
func parseArgs(args []string) (map[string]any, error) {
	out := make(map[string]any)
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			break
		}
		if !strings.HasPrefix(arg, "--") || len(arg) == 2 {
			continue
		}

		name, value, hasValue := strings.Cut(arg[2:], "=")
		if name == "" {
			return nil, NewValidationError("argv", "empty flag name in "+arg)
		}
		if !hasValue {
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "--") {
				value = args[i+1]
				i++
			} else {
				out[argKey(name)] = true
				continue
			}
		}
		out[argKey(name)] = value
	}
	return out, nil
}

func argKey(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, KeySeparator, "."))
}
