package output

import (
	"github.com/fatih/color"
)

// ColorScheme defines the colors used for different elements in the output
type ColorScheme struct {
	Title     *color.Color
	Label     *color.Color
	Value     *color.Color
	Latency   *color.Color
	Phase     *color.Color
	Success   *color.Color
	Warn      *color.Color
	Error     *color.Color
	Rule      *color.Color
	Highlight *color.Color
}

// DefaultColorScheme returns the default color scheme
func DefaultColorScheme() *ColorScheme {
	return &ColorScheme{
		Title:     color.New(color.Bold),
		Label:     color.New(color.FgWhite),
		Value:     color.New(color.FgCyan),
		Latency:   color.New(color.FgBlue),
		Phase:     color.New(color.FgMagenta),
		Success:   color.New(color.FgGreen),
		Warn:      color.New(color.FgYellow),
		Error:     color.New(color.FgRed),
		Rule:      color.New(color.FgCyan),
		Highlight: color.New(color.FgMagenta, color.Bold),
	}
}

// NoColorScheme returns a color scheme with all colors disabled
func NoColorScheme() *ColorScheme {
	scheme := DefaultColorScheme()
	scheme.each((*color.Color).DisableColor)
	return scheme
}

// ForcedColorScheme returns the default scheme with colors enabled even when
// stdout is not a terminal.
func ForcedColorScheme() *ColorScheme {
	scheme := DefaultColorScheme()
	scheme.each((*color.Color).EnableColor)
	return scheme
}

func (s *ColorScheme) each(fn func(*color.Color)) {
	for _, c := range []*color.Color{
		s.Title, s.Label, s.Value, s.Latency, s.Phase,
		s.Success, s.Warn, s.Error, s.Rule, s.Highlight,
	} {
		fn(c)
	}
}

// rateColor picks a color for a failure-like rate: green below 1%, yellow
// below 5%, red above.
func (s *ColorScheme) rateColor(rate float64) *color.Color {
	switch {
	case rate > 0.05:
		return s.Error
	case rate > 0.01:
		return s.Warn
	default:
		return s.Success
	}
}

// SuccessIcon returns a checkmark symbol with appropriate color
func SuccessIcon(noColor bool) string {
	if noColor {
		return "✓"
	}
	return color.New(color.FgGreen).Sprint("✓")
}

// ErrorIcon returns an X symbol with appropriate color
func ErrorIcon(noColor bool) string {
	if noColor {
		return "✗"
	}
	return color.New(color.FgRed).Sprint("✗")
}

// WarningIcon returns a warning symbol with appropriate color
func WarningIcon(noColor bool) string {
	if noColor {
		return "⚠"
	}
	return color.New(color.FgYellow).Sprint("⚠")
}
