// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package diff classifies the differences between two test suite snapshots.
//
// Diff is the engine used for CI gating: it partitions every test id of a
// baseline and a current snapshot into change categories (new failures,
// fixed failures, flaky suspects, slower tests and so on), drops entries
// that are explained by known flakiness, caps every bucket and computes a
// scalar impact score.
//
// Compare is the offline variant behind `snapdiff diff`: it reports the
// full transition matrix between two stored snapshots, including
// persistent outcomes and faster tests, without flake filtering or caps.
//
// Both functions are pure. They perform no I/O, hold no state and are
// safe to call concurrently.
package diff

// AlgorithmVersion identifies the classification rules implemented by Diff.
// It is written to every Report so stored reports can be interpreted later.
const AlgorithmVersion = 1

// Defaults for Options.
const (
	DefaultSlowerRatio    = 1.30
	DefaultSlowerAbs      = 0.20
	DefaultFlakeThreshold = 0.15

	// BucketCap is the maximum number of entries kept per report bucket.
	BucketCap = 50
)

// ImpactWeights weights the summary counts that make up Report.ImpactScore.
type ImpactWeights struct {
	NewFailure int `json:"new_failure" yaml:"new_failure"`
	Budget     int `json:"budget" yaml:"budget"`
	Slower     int `json:"slower" yaml:"slower"`
}

// DefaultImpactWeights returns weights 3 per new failure, 2 per budget
// violation and 1 per slower test.
func DefaultImpactWeights() ImpactWeights {
	return ImpactWeights{NewFailure: 3, Budget: 2, Slower: 1}
}

// Options configures Diff.
//
// Start from DefaultOptions. A zero SlowerRatio or zero Weights are
// replaced by their defaults; every other field is used as given.
type Options struct {
	// SlowerRatio is the relative slowdown threshold, e.g. 1.30 for +30%.
	SlowerRatio float64

	// SlowerAbs is the absolute slowdown threshold in seconds.
	SlowerAbs float64

	// FlakeScores maps test id to a flakiness score in [0,1]. Ids not in
	// the map score 0. An empty map means no scores were supplied and
	// disables flake filtering.
	FlakeScores map[string]float64

	// FlakeThreshold drops new failures, slower tests and budget
	// violations whose flake score is at or above it. 1.0 or more
	// disables filtering.
	FlakeThreshold float64

	// MinCount is carried for the caller's noise gate; Diff ignores it.
	MinCount int

	// Budgets are precomputed performance budget violations.
	Budgets []BudgetViolation

	// Weights for the impact score.
	Weights ImpactWeights
}

// DefaultOptions returns the default thresholds with no flake scores or
// budgets.
func DefaultOptions() Options {
	return Options{
		SlowerRatio:    DefaultSlowerRatio,
		SlowerAbs:      DefaultSlowerAbs,
		FlakeThreshold: DefaultFlakeThreshold,
		Weights:        DefaultImpactWeights(),
	}
}

func (o Options) normalized() Options {
	if o.SlowerRatio <= 0 {
		o.SlowerRatio = DefaultSlowerRatio
	}
	if o.Weights == (ImpactWeights{}) {
		o.Weights = DefaultImpactWeights()
	}
	return o
}

func (o Options) filtering() bool {
	return len(o.FlakeScores) > 0 && o.FlakeThreshold < 1.0
}

func (o Options) flakeScore(id string) float64 {
	return o.FlakeScores[id]
}
