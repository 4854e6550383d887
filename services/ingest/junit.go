// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ingest

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/AleutianAI/snapdiff/services/snapshot"
)

type junitResult struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Text    string `xml:",chardata"`
}

type junitCase struct {
	ClassName string       `xml:"classname,attr"`
	Name      string       `xml:"name,attr"`
	Time      string       `xml:"time,attr"`
	Failure   *junitResult `xml:"failure"`
	Error     *junitResult `xml:"error"`
	Skipped   *junitResult `xml:"skipped"`
}

// FromJUnit parses JUnit XML.
//
// Description:
//
//	Every <testcase> at any nesting depth becomes a record with id
//	"<classname>::<name>", or just the name when classname is empty.
//	<failure> and <error> mean failed, <skipped> means skipped, anything
//	else passed. The signature comes from the failure message, falling
//	back to the element text. An unparsable time is recorded as 0.
//
// Inputs:
//
//	r - The XML document.
//	opts - Normalization and logging.
//
// Outputs:
//
//	*snapshot.Snapshot - Records in document order.
//	error - ErrNoTests when no test cases were found, or a parse error.
func FromJUnit(r io.Reader, opts Options) (*snapshot.Snapshot, error) {
	logger := opts.logger()
	c := newCollector(opts.Normalize)
	dec := xml.NewDecoder(r)

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse junit: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "testcase" {
			continue
		}

		var tc junitCase
		if err := dec.DecodeElement(&tc, &start); err != nil {
			return nil, fmt.Errorf("parse junit testcase: %w", err)
		}
		if tc.Name == "" {
			logger.Warn("skipping testcase without name", slog.String("classname", tc.ClassName))
			continue
		}
		c.add(junitRecord(tc))
	}
	return c.snapshot()
}

func junitRecord(tc junitCase) snapshot.TestRecord {
	id := tc.Name
	if tc.ClassName != "" {
		id = tc.ClassName + "::" + tc.Name
	}
	rec := snapshot.TestRecord{ID: id, Outcome: snapshot.RawPassed}

	if tc.Time != "" {
		if d, err := strconv.ParseFloat(strings.TrimSpace(tc.Time), 64); err == nil && d >= 0 {
			rec.Duration = d
		}
	}

	switch {
	case tc.Failure != nil:
		rec.Outcome = snapshot.RawFailed
		rec.Sig = junitSignature(tc.Failure)
	case tc.Error != nil:
		rec.Outcome = snapshot.RawFailed
		rec.Sig = junitSignature(tc.Error)
	case tc.Skipped != nil:
		rec.Outcome = snapshot.RawSkipped
	}
	return rec
}

func junitSignature(res *junitResult) string {
	if msg := strings.TrimSpace(res.Message); msg != "" {
		return snapshot.FailureSignature(msg)
	}
	return snapshot.FailureSignature(strings.TrimSpace(res.Text))
}
