// Package render turns assistant replies into terminal-ready text.
package render

import "github.com/diogo/aceorbit/internal/config"

// Styles bundled with glamour
const (
	StyleDark  = "dark"
	StyleLight = "light"
	StyleNoTTY = "notty"
	StyleASCII = "ascii"
)

// Options configures the markdown renderer
type Options struct {
	// Width is the word wrap column (default: 80)
	Width int

	// Style is a bundled style name or a path to a glamour JSON style
	Style string

	// PreserveNewLines keeps the reply's own line breaks
	PreserveNewLines bool
}

// DefaultOptions returns the default configuration
func DefaultOptions() Options {
	return Options{
		Width:            80,
		Style:            StyleDark,
		PreserveNewLines: true,
	}
}

// FromConfig returns the default options with the configured style
func FromConfig(cfg config.Config) Options {
	opts := DefaultOptions()
	if cfg.MarkdownStyle != "" {
		opts.Style = cfg.MarkdownStyle
	}
	return opts
}

// WithWidth returns Options with the specified width
func (o Options) WithWidth(width int) Options {
	o.Width = width
	return o
}

// WithStyle returns Options with the specified style
func (o Options) WithStyle(style string) Options {
	o.Style = style
	return o
}

func isStandardStyle(style string) bool {
	switch style {
	case StyleDark, StyleLight, StyleNoTTY, StyleASCII:
		return true
	}
	return false
}
