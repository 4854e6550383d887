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

// Index is an ordered lookup from test id to record.
//
// Ids iterate in first-seen order. When an id occurs more than once the
// last record wins but keeps the position of the first occurrence.
// An Index is never mutated after BuildIndex returns.
type Index struct {
	order []string
	byID  map[string]TestRecord
}

// BuildIndex builds an Index over records. Outcomes are not validated.
func BuildIndex(records []TestRecord) *Index {
	idx := &Index{
		order: make([]string, 0, len(records)),
		byID:  make(map[string]TestRecord, len(records)),
	}
	for _, rec := range records {
		if _, seen := idx.byID[rec.ID]; !seen {
			idx.order = append(idx.order, rec.ID)
		}
		idx.byID[rec.ID] = rec
	}
	return idx
}

// IndexOf builds an Index for a snapshot; a nil snapshot yields an empty index.
func IndexOf(s *Snapshot) *Index {
	if s == nil {
		return BuildIndex(nil)
	}
	return BuildIndex(s.Tests)
}

// Get returns the record for id.
func (idx *Index) Get(id string) (TestRecord, bool) {
	rec, ok := idx.byID[id]
	return rec, ok
}

// Has reports whether id is present.
func (idx *Index) Has(id string) bool {
	_, ok := idx.byID[id]
	return ok
}

// IDs returns the ids in first-seen order. The slice must not be modified.
func (idx *Index) IDs() []string {
	return idx.order
}

// Len returns the number of distinct ids.
func (idx *Index) Len() int {
	return len(idx.order)
}
