package featureflags

import (
	"os"
	"strings"
)

// Known flags
const (
	// SelfRegistration opens POST /api/auth/register to anonymous callers (viewer role)
	SelfRegistration = "SELF_REGISTRATION"
	// AllowPartialSubmit lets members submit before completing the ordered total
	AllowPartialSubmit = "ALLOW_PARTIAL_SUBMIT"
)

// Enabled returns true if a flag is enabled via environment variable.
// Flags are read from env as FLAG_<NAME>=true/1/yes (case-insensitive)
func Enabled(name string) bool {
	v := os.Getenv("FLAG_" + strings.ToUpper(name))
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// Source answers flag lookups; services take one so tests can pin values
type Source func(name string) bool

// Env reads flags from the environment
var Env Source = Enabled

// Static returns a Source with fixed values; unknown flags are off
func Static(values map[string]bool) Source {
	return func(name string) bool {
		return values[strings.ToUpper(name)]
	}
}
