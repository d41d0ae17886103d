package envutil

import (
	"os"
	"strconv"
	"strings"

	"github.com/voxpipe/voxpipe/internal/platform/logger"
)

// String, Int, Float and Bool read an environment variable with a default,
// optionally logging the outcome (pass a nil logger to read silently).

func String(key, def string, log *logger.Logger) string {
	if log != nil {
		log = log.With("env_var", key)
	}
	val, ok := os.LookupEnv(key)
	if !ok {
		if log != nil {
			log.Debug("environment variable not found, using default", "default", def)
		}
		return def
	}
	if log != nil {
		log.Debug("environment variable found", "value", val)
	}
	return val
}

func Int(key string, def int, log *logger.Logger) int {
	if log != nil {
		log = log.With("env_var", key)
	}
	valStr, ok := os.LookupEnv(key)
	if !ok {
		if log != nil {
			log.Debug("environment variable not found, using default", "default", def)
		}
		return def
	}
	i, err := strconv.Atoi(valStr)
	if err != nil {
		if log != nil {
			log.Debug("environment variable could not be parsed as int, using default", "provided", valStr, "default", def, "error", err)
		}
		return def
	}
	return i
}

func Float(key string, def float64, log *logger.Logger) float64 {
	if log != nil {
		log = log.With("env_var", key)
	}
	valStr, ok := os.LookupEnv(key)
	if !ok {
		if log != nil {
			log.Debug("environment variable not found, using default", "default", def)
		}
		return def
	}
	f, err := strconv.ParseFloat(valStr, 64)
	if err != nil {
		if log != nil {
			log.Debug("environment variable could not be parsed as float, using default", "provided", valStr, "default", def, "error", err)
		}
		return def
	}
	return f
}

func Bool(key string, def bool, log *logger.Logger) bool {
	valStr, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(valStr)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		if log != nil {
			log.Debug("environment variable could not be parsed as bool, using default", "provided", valStr, "default", def)
		}
		return def
	}
}

// StringSlice splits a comma-separated environment variable, trimming
// whitespace from each element and dropping empties.
func StringSlice(key string, def []string, log *logger.Logger) []string {
	valStr, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(valStr) == "" {
		return def
	}
	parts := strings.Split(valStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
