// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"io"
	"time"
)

// HTTPConfig holds shared HTTP settings for stages that make network requests.
type HTTPConfig struct {
	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "discovery-engine/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// Default quality settings used when the caller leaves a field unset.
const (
	DefaultMaxStages           = 3
	DefaultMaxPapers           = 100
	DefaultSaturationThreshold = 0.12
	DefaultMinCitationsFilter  = 5
	DefaultRecencyYears        = 3
)

// QualitySettings controls the diffusion loop: how many stages to run, how
// large the corpus may grow, and when the run is considered saturated.
type QualitySettings struct {
	// MaxStages is the diffusion stage ceiling (default 3).
	MaxStages int `json:"max_stages" yaml:"max_stages"`

	// MaxPapers is the corpus size budget (default 100).
	MaxPapers int `json:"max_papers" yaml:"max_papers"`

	// SaturationThreshold is the minimum fraction of newly-relevant over
	// total candidates a stage must reach to avoid being counted as low
	// coverage (default 0.12).
	SaturationThreshold float64 `json:"saturation_threshold" yaml:"saturation_threshold"`

	// MinCitationsFilter is the minimum external citation count for
	// non-recent forward citations (default 5).
	MinCitationsFilter int `json:"min_citations_filter" yaml:"min_citations_filter"`

	// RecencyYears is the window within which forward citations skip the
	// citation-count filter (default 3).
	RecencyYears int `json:"recency_years" yaml:"recency_years"`

	// UseBatchAPI enables chunked batch relevance scoring.
	UseBatchAPI bool `json:"use_batch_api" yaml:"use_batch_api"`
}

// WithDefaults returns a copy with zero-valued fields replaced by the
// documented defaults. Each substitution is logged to w as a warning;
// missing settings are never an error.
func (q QualitySettings) WithDefaults(w io.Writer) QualitySettings {
	if q.MaxStages <= 0 {
		fmt.Fprintf(w, "warning: max_stages not set, using default %d\n", DefaultMaxStages)
		q.MaxStages = DefaultMaxStages
	}
	if q.MaxPapers <= 0 {
		fmt.Fprintf(w, "warning: max_papers not set, using default %d\n", DefaultMaxPapers)
		q.MaxPapers = DefaultMaxPapers
	}
	if q.SaturationThreshold <= 0 {
		fmt.Fprintf(w, "warning: saturation_threshold not set, using default %g\n", DefaultSaturationThreshold)
		q.SaturationThreshold = DefaultSaturationThreshold
	}
	if q.MinCitationsFilter < 0 {
		q.MinCitationsFilter = DefaultMinCitationsFilter
	}
	if q.RecencyYears <= 0 {
		q.RecencyYears = DefaultRecencyYears
	}
	return q
}

// QualityTier names a preset bundle of quality settings.
type QualityTier string

const (
	TierDraft    QualityTier = "draft"
	TierStandard QualityTier = "standard"
	TierThorough QualityTier = "thorough"
)

// qualityTiers is the preset table. Constructed once; callers receive
// copies, never pointers into the table.
var qualityTiers = map[QualityTier]QualitySettings{
	TierDraft: {
		MaxStages:           2,
		MaxPapers:           50,
		SaturationThreshold: 0.15,
		MinCitationsFilter:  10,
		RecencyYears:        3,
	},
	TierStandard: {
		MaxStages:           3,
		MaxPapers:           100,
		SaturationThreshold: 0.12,
		MinCitationsFilter:  5,
		RecencyYears:        3,
		UseBatchAPI:         true,
	},
	TierThorough: {
		MaxStages:           5,
		MaxPapers:           250,
		SaturationThreshold: 0.08,
		MinCitationsFilter:  2,
		RecencyYears:        5,
		UseBatchAPI:         true,
	},
}

// TierSettings returns the preset for the named tier and whether the tier
// exists. The returned value is a copy.
func TierSettings(tier QualityTier) (QualitySettings, bool) {
	q, ok := qualityTiers[tier]
	return q, ok
}

// LanguageConfig describes the target output language of the owning
// workflow. A non-English target inflates the internal corpus budget to
// compensate for downstream language-verification rejections.
type LanguageConfig struct {
	// Code is the ISO 639-1 code (e.g. "en", "de").
	Code string `json:"code" yaml:"code"`

	// Name is the human-readable language name.
	Name string `json:"name" yaml:"name"`
}

// IsEnglish reports whether the target language is English. A nil or
// empty config counts as English.
func (l *LanguageConfig) IsEnglish() bool {
	return l == nil || l.Code == "" || l.Code == "en"
}

// FetchConfig holds settings for the citation fetch stage.
type FetchConfig struct {
	HTTPConfig `yaml:",inline"`

	// Provider selects the bibliographic backend: "semantic_scholar" or
	// "openalex" (default "semantic_scholar").
	Provider string `json:"provider" yaml:"provider"`

	// MaxConcurrentSeeds bounds simultaneous per-seed fetches (default 5).
	MaxConcurrentSeeds int `json:"max_concurrent_seeds" yaml:"max_concurrent_seeds"`

	// PerSeedLimit caps the papers fetched per seed per direction (default 50).
	PerSeedLimit int `json:"per_seed_limit" yaml:"per_seed_limit"`

	// SemanticScholarAPIKey is an optional API key for higher rate limits.
	SemanticScholarAPIKey string `json:"semantic_scholar_api_key,omitempty" yaml:"semantic_scholar_api_key,omitempty"`

	// OpenAlexEmail is sent as the mailto parameter for polite pool access.
	OpenAlexEmail string `json:"openalex_email,omitempty" yaml:"openalex_email,omitempty"`
}

// ScoringConfig holds settings for LLM relevance scoring.
type ScoringConfig struct {
	// Model is the AI model identifier (e.g. "claude-sonnet-4-5-20250929").
	Model string `json:"model" yaml:"model"`

	// APIKey is the authentication key for the AI API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// Threshold is the relevance acceptance threshold (default 0.6).
	Threshold float64 `json:"threshold" yaml:"threshold"`

	// FallbackThreshold is the floor of the fallback band (default 0.5).
	FallbackThreshold float64 `json:"fallback_threshold" yaml:"fallback_threshold"`

	// MaxConcurrent bounds in-flight individual scoring calls (default 10).
	MaxConcurrent int `json:"max_concurrent" yaml:"max_concurrent"`

	// ChunkSize is the papers per batch scoring call (default 10).
	ChunkSize int `json:"chunk_size" yaml:"chunk_size"`
}

// EngineConfig groups the stage configurations for a discovery run.
type EngineConfig struct {
	Quality QualitySettings `json:"quality" yaml:"quality"`
	Fetch   FetchConfig     `json:"fetch" yaml:"fetch"`
	Scoring ScoringConfig   `json:"scoring" yaml:"scoring"`

	// ArchiveDir is the directory holding the run archive database
	// (default "runs").
	ArchiveDir string `json:"archive_dir" yaml:"archive_dir"`
}
