package shared

import (
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Package-level color variables
var (
	ColorInfo    = color.New(color.FgCyan)
	ColorSuccess = color.New(color.FgGreen)
	ColorWarning = color.New(color.FgYellow)
	ColorError   = color.New(color.FgRed)
	ColorMuted   = color.New(color.FgHiBlack)
	ColorHeading = color.New(color.FgBlue, color.Bold)
)

// InitializeColors enables color output only on a TTY, unless forced off.
func InitializeColors(disable bool) {
	color.NoColor = disable || !isatty.IsTerminal(os.Stdout.Fd())
}
