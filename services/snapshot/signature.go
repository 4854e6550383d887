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
	"crypto/sha1"
	"encoding/hex"
	"strings"
)

const (
	signatureMaxLine = 500
	signatureLength  = 12
)

// FailureSignature derives a short, stable fingerprint of a failure.
//
// Description:
//
//	Takes the first line of the failure report, trims it, truncates it to
//	500 characters and returns the first 12 hex characters of its SHA-1.
//	Two failures with the same leading error line share a signature even
//	when their tracebacks differ.
//
// Outputs:
//
//	string - 12 hex characters, or "" when the report or its first line
//	  is blank.
func FailureSignature(report string) string {
	if report == "" {
		return ""
	}
	first, _, _ := strings.Cut(report, "\n")
	first = strings.TrimSpace(strings.TrimSuffix(first, "\r"))
	if first == "" {
		return ""
	}
	if runes := []rune(first); len(runes) > signatureMaxLine {
		first = string(runes[:signatureMaxLine])
	}
	sum := sha1.Sum([]byte(first))
	return hex.EncodeToString(sum[:])[:signatureLength]
}
