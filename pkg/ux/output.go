// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux provides terminal styling for the snapdiff CLI.
//
// Colour is decided once per process by ColorEnabled and carried in a
// Theme. A disabled Theme returns text unchanged, so renderers never
// branch on colour themselves.
package ux

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

// Color names a palette entry.
type Color int

const (
	// ColorNone leaves text unstyled.
	ColorNone Color = iota
	ColorRed
	ColorGreen
	ColorYellow
	ColorCyan
)

// Palette maps colours to the basic ANSI set so output matches what CI
// log viewers render.
var Palette = map[Color]lipgloss.Color{
	ColorRed:    lipgloss.Color("1"),
	ColorGreen:  lipgloss.Color("2"),
	ColorYellow: lipgloss.Color("3"),
	ColorCyan:   lipgloss.Color("6"),
}

// Icon is a status glyph.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
)

// Theme renders styled text.
//
// Thread Safety: Safe for concurrent use after creation.
type Theme struct {
	enabled bool
	colors  map[Color]lipgloss.Style
	bold    lipgloss.Style
}

// NewTheme creates a theme. A disabled theme never emits escape codes.
func NewTheme(enabled bool) *Theme {
	r := lipgloss.NewRenderer(io.Discard)
	if enabled {
		r.SetColorProfile(termenv.ANSI)
	} else {
		r.SetColorProfile(termenv.Ascii)
	}

	t := &Theme{
		enabled: enabled,
		colors:  make(map[Color]lipgloss.Style, len(Palette)),
		bold:    r.NewStyle().Bold(true),
	}
	for c, fg := range Palette {
		t.colors[c] = r.NewStyle().Foreground(fg)
	}
	return t
}

// Plain returns a theme with colour disabled.
func Plain() *Theme { return NewTheme(false) }

// Enabled reports whether the theme emits colour.
func (t *Theme) Enabled() bool { return t.enabled }

// Paint renders text in colour c.
func (t *Theme) Paint(c Color, text string) string {
	if !t.enabled || c == ColorNone {
		return text
	}
	return t.colors[c].Render(text)
}

// Bold renders text in bold.
func (t *Theme) Bold(text string) string {
	if !t.enabled {
		return text
	}
	return t.bold.Render(text)
}

// Heading renders text bold and in colour c.
func (t *Theme) Heading(c Color, text string) string {
	if !t.enabled {
		return text
	}
	return t.colors[c].Bold(true).Render(text)
}

// Icon renders a status glyph in its semantic colour.
func (t *Theme) Icon(i Icon) string {
	switch i {
	case IconSuccess:
		return t.Paint(ColorGreen, string(i))
	case IconWarning:
		return t.Paint(ColorYellow, string(i))
	case IconError:
		return t.Paint(ColorRed, string(i))
	default:
		return string(i)
	}
}

// ColorEnabled reports whether output to w should be coloured: not
// disabled by --plain, NO_COLOR unset (any value, even empty, disables)
// and w a terminal.
func ColorEnabled(plain bool, w io.Writer) bool {
	if plain {
		return false
	}
	if _, set := os.LookupEnv("NO_COLOR"); set {
		return false
	}
	return IsTerminal(w)
}

// IsTerminal reports whether w is a terminal file descriptor.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
