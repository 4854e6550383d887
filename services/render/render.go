// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package render writes human-readable snapdiff output.
//
// A Printer writes to one io.Writer with one ux.Theme. The formats match
// the long-standing console layout of the tool so that CI log scrapers
// keep working: section titles, entry prefixes and the Summary Metrics
// table are stable.
package render

import (
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/AleutianAI/snapdiff/pkg/ux"
)

// SectionLimit caps the entries printed per section.
const SectionLimit = 20

// Printer writes styled lines.
//
// Thread Safety: Not safe for concurrent use.
type Printer struct {
	w     io.Writer
	theme *ux.Theme
}

// NewPrinter creates a Printer. A nil theme prints plain text.
func NewPrinter(w io.Writer, theme *ux.Theme) *Printer {
	if theme == nil {
		theme = ux.Plain()
	}
	return &Printer{w: w, theme: theme}
}

func (p *Printer) line(c ux.Color, format string, args ...any) {
	fmt.Fprintln(p.w, p.theme.Paint(c, fmt.Sprintf(format, args...)))
}

func (p *Printer) raw(s string) {
	fmt.Fprintln(p.w, s)
}

// -----------------------------------------------------------------------------
// Test id display
// -----------------------------------------------------------------------------

// ShortName returns the part of id after its last "::".
func ShortName(id string) string {
	if i := strings.LastIndex(id, "::"); i >= 0 {
		return id[i+2:]
	}
	return id
}

// fileStem returns the file name of the part of id before its first "::".
func fileStem(id string) string {
	file, _, _ := strings.Cut(id, "::")
	if i := strings.LastIndex(file, "/"); i >= 0 {
		return file[i+1:]
	}
	return file
}

// idNamer maps ids to display names. Short names that collide are
// prefixed with their file stem.
type idNamer struct {
	full   bool
	counts map[string]int
}

func newIDNamer(full bool, groups ...[]string) *idNamer {
	n := &idNamer{full: full, counts: make(map[string]int)}
	if full {
		return n
	}
	for _, g := range groups {
		for _, id := range g {
			n.counts[ShortName(id)]++
		}
	}
	return n
}

func (n *idNamer) name(id string) string {
	if n.full {
		return id
	}
	s := ShortName(id)
	if n.counts[s] > 1 {
		return fileStem(id) + "::" + s
	}
	return s
}

// ShortenPath reduces "dir/file.py::name" to "file::name", and a bare
// path to its base name.
func ShortenPath(id string) string {
	if file, rest, ok := strings.Cut(id, "::"); ok {
		base := path.Base(strings.ReplaceAll(file, "\\", "/"))
		base = strings.TrimSuffix(base, ".py")
		return base + "::" + rest
	}
	return path.Base(id)
}

// Truncate shortens s to at most max runes (minimum 10) by replacing
// its middle with "…". The first 60% of the budget is kept from the
// start.
func Truncate(s string, max int) string {
	if max < 10 {
		max = 10
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	head := int(float64(max) * 0.6)
	tail := max - head - 1
	return string(r[:head]) + "…" + string(r[len(r)-tail:])
}

// pyFloat formats a threshold the way it is written in config files:
// shortest form, always with a decimal point.
func pyFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEn") {
		s += ".0"
	}
	return s
}
