// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package snapshot

import (
	"fmt"
	"path"
	"strings"
)

// NormalizeMode controls how runner test ids are rewritten before they
// are recorded, so that snapshots taken from different checkouts or
// parametrizations line up.
type NormalizeMode string

const (
	// NormalizeOff keeps ids verbatim.
	NormalizeOff NormalizeMode = "off"

	// NormalizeBasename strips directories from the file part of
	// "path/to/file::name" ids.
	NormalizeBasename NormalizeMode = "basename"

	// NormalizeNoParams strips a trailing "[...]" parametrization suffix.
	NormalizeNoParams NormalizeMode = "noparams"
)

// ParseNormalizeMode validates a mode name. The empty string means off.
func ParseNormalizeMode(s string) (NormalizeMode, error) {
	switch NormalizeMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", NormalizeOff:
		return NormalizeOff, nil
	case NormalizeBasename:
		return NormalizeBasename, nil
	case NormalizeNoParams:
		return NormalizeNoParams, nil
	default:
		return NormalizeOff, fmt.Errorf("unknown normalization mode %q", s)
	}
}

// NormalizeID rewrites id according to mode.
func NormalizeID(id string, mode NormalizeMode) string {
	switch mode {
	case NormalizeBasename:
		file, rest, found := strings.Cut(id, "::")
		if !found {
			return id
		}
		return path.Base(strings.ReplaceAll(file, "\\", "/")) + "::" + rest
	case NormalizeNoParams:
		if strings.HasSuffix(id, "]") {
			if i := strings.LastIndex(id, "["); i > 0 {
				return id[:i]
			}
		}
		return id
	default:
		return id
	}
}
