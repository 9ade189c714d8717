package logging

import (
	"fmt"
	"os"
	"strings"
)

// LOGLEVEL holds comma-separated directives. A bare level sets the default,
// "tag=level" overrides it for one tag, e.g. LOGLEVEL=info,serve=debug,stream=trace
const envVar = "LOGLEVEL"

type tagLevel struct {
	tag   string
	level Level
}

var tagLevels []tagLevel

func init() {
	if err := Configure(os.Getenv(envVar)); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", envVar, err)
	}
}

// Configure parses level directives in the LOGLEVEL format and applies them to
// DefaultLogger. Loggers already derived with WithTag keep their level.
// Invalid directives are skipped and reported in the returned error.
func Configure(directives string) error {
	var bad []string
	for _, d := range strings.Split(directives, ",") {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		v := strings.SplitN(d, "=", 2)
		level, err := parseLevel(v[len(v)-1])
		if err != nil {
			bad = append(bad, fmt.Sprintf("'%s': %s", d, err))
			continue
		}
		if len(v) == 1 {
			defaultLevel = level
		} else {
			tagLevels = append(tagLevels, tagLevel{v[0], level})
		}
	}

	DefaultLogger.Level = defaultLevel

	if len(bad) > 0 {
		return fmt.Errorf("invalid directives: %s", strings.Join(bad, ", "))
	}
	return nil
}

func determineLevel(tag string, fallback Level) Level {
	for i := len(tagLevels) - 1; i >= 0; i-- {
		if tagLevels[i].tag == tag {
			return tagLevels[i].level
		}
	}
	return fallback
}
