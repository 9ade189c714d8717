package logging

import (
	"github.com/fatih/color"
)

// color.NoColor is set automatically when the output is not a terminal, in
// which case these render as plain text. Level colors live in level.go.
var colorTimestamp = color.New(color.FgWhite)
