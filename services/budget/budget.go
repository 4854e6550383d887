// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package budget evaluates per-test performance budgets.
//
// A budget file declares the p95 duration each test may not exceed. YAML
// and JSON are both accepted:
//
//	default_p95: 2.0
//	budgets:
//	  - id: "tests/test_perf.py::test_fast"
//	    p95: 0.2
//	  - pattern: "tests/test_perf.py::test_io_*"
//	    p95: 0.5
//
// An exact id wins over patterns; patterns are tried in file order;
// default_p95 applies to every other test when set.
package budget

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path"
	"sort"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/snapdiff/services/diff"
	"github.com/AleutianAI/snapdiff/services/snapshot"
)

// ErrInvalidBudgets indicates a budget file that cannot be parsed or
// fails validation.
var ErrInvalidBudgets = errors.New("invalid budget file")

var budgetValidate *validator.Validate

func init() {
	budgetValidate = validator.New()
	_ = budgetValidate.RegisterValidation("glob", validateGlob)
}

// validateGlob rejects patterns path.Match cannot compile.
func validateGlob(fl validator.FieldLevel) bool {
	_, err := path.Match(fl.Field().String(), "")
	return err == nil
}

// Entry is one budget line.
type Entry struct {
	ID      string  `yaml:"id" json:"id" validate:"required_without=Pattern"`
	Pattern string  `yaml:"pattern" json:"pattern" validate:"omitempty,glob"`
	P95     float64 `yaml:"p95" json:"p95" validate:"gt=0"`
}

// Spec is a parsed budget file.
type Spec struct {
	DefaultP95 float64 `yaml:"default_p95" json:"default_p95" validate:"gte=0"`
	Budgets    []Entry `yaml:"budgets" json:"budgets" validate:"dive"`
}

// Parse decodes and validates a budget document.
func Parse(data []byte) (*Spec, error) {
	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBudgets, err)
	}
	if err := budgetValidate.Struct(&spec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBudgets, err)
	}
	return &spec, nil
}

// Load reads and parses the budget file at path.
func Load(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read budgets: %w", err)
	}
	spec, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return spec, nil
}

// Empty reports whether the spec declares no budget at all.
func (s *Spec) Empty() bool {
	return s == nil || (len(s.Budgets) == 0 && s.DefaultP95 == 0)
}

// BudgetFor returns the p95 budget for id.
func (s *Spec) BudgetFor(id string) (float64, bool) {
	if s == nil {
		return 0, false
	}
	for _, e := range s.Budgets {
		if e.ID != "" && e.ID == id {
			return e.P95, true
		}
	}
	for _, e := range s.Budgets {
		if e.Pattern == "" {
			continue
		}
		if ok, _ := path.Match(e.Pattern, id); ok {
			return e.P95, true
		}
	}
	if s.DefaultP95 > 0 {
		return s.DefaultP95, true
	}
	return 0, false
}

// Evaluate returns a violation for every observed test whose p95 duration
// exceeds its budget, ordered by test id.
//
// Inputs:
//
//	observed - Duration samples per test id, in seconds.
func (s *Spec) Evaluate(observed map[string][]float64) []diff.BudgetViolation {
	if s.Empty() {
		return nil
	}

	ids := make([]string, 0, len(observed))
	for id := range observed {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var violations []diff.BudgetViolation
	for _, id := range ids {
		samples := observed[id]
		if len(samples) == 0 {
			continue
		}
		limit, ok := s.BudgetFor(id)
		if !ok {
			continue
		}
		p95 := Percentile(samples, 95)
		if p95 > limit {
			violations = append(violations, diff.BudgetViolation{
				ID:          id,
				BudgetP95:   limit,
				ObservedP95: snapshot.Round(p95, 6),
				Samples:     len(samples),
			})
		}
	}
	return violations
}

// Percentile returns the nearest-rank percentile p (0-100] of samples.
// samples is not modified. Zero is returned for no samples.
func Percentile(samples []float64, p float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}

// Observe collects the valid durations of a snapshot per test id, merged
// after any prior samples (for example from run history).
func Observe(s *snapshot.Snapshot, prior map[string][]float64) map[string][]float64 {
	out := make(map[string][]float64, len(prior))
	for id, samples := range prior {
		out[id] = append([]float64(nil), samples...)
	}
	if s == nil {
		return out
	}
	for _, rec := range s.Tests {
		if rec.ValidDuration() {
			out[rec.ID] = append(out[rec.ID], rec.Duration)
		}
	}
	return out
}
