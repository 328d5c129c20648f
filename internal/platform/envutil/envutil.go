package envutil

import (
	"os"
	"strconv"
	"strings"

	"github.com/brightforge/modelengine/internal/platform/logger"
)

func Int(name string, def int) int {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

// GetEnv reads a string env var, logging (at Debug) whether it fell back to
// def. log may be nil.
func GetEnv(key, defaultVal string, log *logger.Logger) string {
	if log != nil {
		log = log.With("env_var", key)
	}
	val, ok := os.LookupEnv(key)
	if !ok {
		if log != nil {
			log.Debug("environment variable not found, using default", "default", defaultVal)
		}
		return defaultVal
	}
	if log != nil {
		log.Debug("environment variable found, using environment", "environment", val)
	}
	return val
}
