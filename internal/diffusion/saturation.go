// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package diffusion

// maxConsecutiveLowCoverage is how many low-coverage stages in a row
// saturate the run.
const maxConsecutiveLowCoverage = 2

// Saturation reasons reported in DiffusionState.SaturationReason.
const (
	ReasonNoSeeds      = "No discovery seeds provided"
	ReasonNoCandidates = "No expansion candidates available"
	ReasonMaxStages    = "Maximum stages reached"
	ReasonCorpusBudget = "Corpus budget reached"
	ReasonLowCoverage  = "Consecutive low-coverage stages"
)

// limitReached reports the saturation reason when a loop-terminating
// limit has been hit, or "" to continue. Candidate exhaustion is checked
// separately and takes precedence over these.
func (c *Controller) limitReached(r *run) string {
	switch {
	case r.state.CurrentStage >= r.state.MaxStages:
		return ReasonMaxStages
	case len(r.corpus) >= r.effectiveMax:
		return ReasonCorpusBudget
	case r.state.ConsecutiveLowCoverage >= maxConsecutiveLowCoverage:
		return ReasonLowCoverage
	}
	return ""
}
