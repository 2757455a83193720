package output

import (
	"github.com/fatih/color"
)

// ColorScheme defines the colors used for the different parts of a report.
type ColorScheme struct {
	Title     *color.Color
	Rule      *color.Color
	Label     *color.Color
	Value     *color.Color
	Success   *color.Color
	Duplicate *color.Color
	Warn      *color.Color
	Error     *color.Color
	Muted     *color.Color
}

// DefaultColorScheme returns the default color scheme with colors forced
// on, regardless of where the output goes.
func DefaultColorScheme() *ColorScheme {
	scheme := newScheme()
	for _, c := range scheme.all() {
		c.EnableColor()
	}
	return scheme
}

// NoColorScheme returns a color scheme with all colors disabled
func NoColorScheme() *ColorScheme {
	scheme := newScheme()
	for _, c := range scheme.all() {
		c.DisableColor()
	}
	return scheme
}

func newScheme() *ColorScheme {
	return &ColorScheme{
		Title:     color.New(color.FgCyan, color.Bold),
		Rule:      color.New(color.FgCyan),
		Label:     color.New(color.Bold),
		Value:     color.New(color.FgCyan),
		Success:   color.New(color.FgGreen),
		Duplicate: color.New(color.FgBlue),
		Warn:      color.New(color.FgYellow),
		Error:     color.New(color.FgRed),
		Muted:     color.New(color.Faint),
	}
}

func (s *ColorScheme) all() []*color.Color {
	return []*color.Color{s.Title, s.Rule, s.Label, s.Value, s.Success, s.Duplicate, s.Warn, s.Error, s.Muted}
}
