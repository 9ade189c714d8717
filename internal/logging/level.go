package logging

import (
	"strconv"
	"strings"

	"github.com/fatih/color"
	errors "golang.org/x/xerrors"
)

// Level is a logging verbosity. Levels above Debug are numbered trace levels;
// per-frame events log at those.
type Level int

const (
	Error Level = iota - 2
	Warn
	Info
	Debug

	MaxLevel Level = 9
)

// Changed by LOGLEVEL, see Configure.
var defaultLevel = Info

type levelStyle struct {
	name  string
	color *color.Color
}

// Indexed by level - Error.
var levelStyles = [...]levelStyle{
	{"Error", color.New(color.FgRed, color.Bold)},
	{"Warn", color.New(color.FgRed)},
	{"Info", color.New(color.Reset)},
	{"Debug", color.New(color.FgGreen)},
}

var traceColor = color.New(color.FgYellow)

func (l Level) named() bool {
	return l >= Error && l <= Debug
}

// parseLevel accepts a level name, its first letter, "trace", or a number in
// [Error, MaxLevel].
func parseLevel(s string) (Level, error) {
	if strings.EqualFold(s, "t") || strings.EqualFold(s, "trace") {
		return MaxLevel, nil
	}
	for i, style := range levelStyles {
		if strings.EqualFold(s, style.name) || strings.EqualFold(s, style.name[:1]) {
			return Error + Level(i), nil
		}
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Errorf("invalid logging level %q", s)
	}
	if l := Level(n); l >= Error && l <= MaxLevel {
		return l, nil
	}
	return 0, errors.Errorf("logging level %d out of range [%d, %d]", n, Error, MaxLevel)
}

func (l Level) String() string {
	if l.named() {
		return levelStyles[l-Error].name
	}
	return strconv.Itoa(int(l))
}

// letter is the one-character level shown in each log line.
func (l Level) letter() byte {
	if l.named() {
		return levelStyles[l-Error].name[0]
	}
	return byte('0' + l)
}

func (l Level) color() *color.Color {
	if l.named() {
		return levelStyles[l-Error].color
	}
	return traceColor
}
