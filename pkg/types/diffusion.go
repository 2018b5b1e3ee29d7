// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// DiffusionStage records one completed iteration of the diffusion loop.
// A record is appended when seed selection succeeds and backfilled with
// the relevance outcome after scoring completes; it is not modified after
// that.
type DiffusionStage struct {
	// Stage is the 1-based stage number.
	Stage int `json:"stage" yaml:"stage"`

	// SeedDOIs lists the expansion seeds used for this stage.
	SeedDOIs []string `json:"seed_dois" yaml:"seed_dois"`

	// ForwardFound and BackwardFound count the raw papers fetched per
	// traversal direction before corpus dedup.
	ForwardFound  int `json:"forward_found" yaml:"forward_found"`
	BackwardFound int `json:"backward_found" yaml:"backward_found"`

	// NewRelevant lists the DOIs accepted into the corpus this stage,
	// including co-citation auto-accepts.
	NewRelevant []string `json:"new_relevant" yaml:"new_relevant"`

	// NewRejected lists the DOIs rejected by relevance scoring this stage.
	NewRejected []string `json:"new_rejected" yaml:"new_rejected"`

	// CoverageDelta is relevant / (relevant + rejected) for this stage,
	// 0.0 when the stage produced no candidates.
	CoverageDelta float64 `json:"coverage_delta" yaml:"coverage_delta"`
}

// DiffusionState tracks the progress of a discovery run across stages.
// It is mutated only by the controller driving the run.
type DiffusionState struct {
	// CurrentStage starts at 0 and increments when a stage's seeds are
	// selected. It never decreases.
	CurrentStage int `json:"current_stage" yaml:"current_stage"`

	// MaxStages is the configured stage ceiling.
	MaxStages int `json:"max_stages" yaml:"max_stages"`

	// SaturationThreshold is the minimum coverage delta a stage must
	// reach to avoid counting as low coverage.
	SaturationThreshold float64 `json:"saturation_threshold" yaml:"saturation_threshold"`

	// ConsecutiveLowCoverage counts low-coverage stages in a row; two in
	// a row saturate the run.
	ConsecutiveLowCoverage int `json:"consecutive_low_coverage" yaml:"consecutive_low_coverage"`

	// IsSaturated is set once a termination condition fires; no further
	// stage starts after that.
	IsSaturated bool `json:"is_saturated" yaml:"is_saturated"`

	// SaturationReason is a human-readable explanation of why the run
	// stopped.
	SaturationReason string `json:"saturation_reason,omitempty" yaml:"saturation_reason,omitempty"`

	// Cumulative counts across all stages.
	TotalDiscovered int `json:"total_discovered" yaml:"total_discovered"`
	TotalRelevant   int `json:"total_relevant" yaml:"total_relevant"`
	TotalRejected   int `json:"total_rejected" yaml:"total_rejected"`

	// Stages holds one record per completed stage, in order.
	Stages []DiffusionStage `json:"stages" yaml:"stages"`
}
