// Package term provides the color profile, text styles, and terminal
// detection shared by logging and display.
//
// Styles are package-level because several packages render with them.
// [Configure] sets them once during startup; with colors disabled the
// renderer uses the ASCII profile and every style renders plain text.
package term

import (
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/backmassage/clipmaster/internal/config"
)

// Level styles plus a few display styles.
var (
	Info    lipgloss.Style
	Success lipgloss.Style
	Warn    lipgloss.Style
	Error   lipgloss.Style
	Render  lipgloss.Style
	Debug   lipgloss.Style
	Title   lipgloss.Style
	Muted   lipgloss.Style
)

var (
	mu      sync.RWMutex
	enabled bool
)

func init() { Configure(config.ColorNever) }

// Configure resolves the color mode and rebuilds the styles. Call once
// during startup (from [logging.NewLogger]).
func Configure(mode config.ColorMode) {
	on := resolve(mode)
	r := lipgloss.NewRenderer(os.Stdout)
	if on {
		r.SetColorProfile(termenv.ANSI256)
	} else {
		r.SetColorProfile(termenv.Ascii)
	}

	mu.Lock()
	defer mu.Unlock()
	enabled = on
	Info = r.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	Success = r.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	Warn = r.NewStyle().Bold(true).Foreground(lipgloss.Color("220"))
	Error = r.NewStyle().Bold(true).Foreground(lipgloss.Color("203"))
	Render = r.NewStyle().Bold(true).Foreground(lipgloss.Color("213"))
	Debug = r.NewStyle().Foreground(lipgloss.Color("51"))
	Title = r.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	Muted = r.NewStyle().Foreground(lipgloss.Color("245"))
}

// Enabled reports whether colors are currently active.
func Enabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

// resolve determines whether colors should be enabled based on the configured
// mode, TTY detection, and the NO_COLOR env var (https://no-color.org).
func resolve(mode config.ColorMode) bool {
	switch mode {
	case config.ColorAlways:
		return true
	case config.ColorNever:
		return false
	default: // ColorAuto
		return IsTerminal(os.Stdout) &&
			os.Getenv("NO_COLOR") == "" &&
			strings.ToLower(os.Getenv("TERM")) != "dumb"
	}
}

// IsTerminal reports whether f is attached to a TTY (character device).
func IsTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
