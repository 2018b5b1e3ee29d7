// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package score partitions candidate papers by topical relevance using an
// LLM backend. Two execution strategies sit behind one Scorer interface:
// per-paper calls with bounded concurrency, and chunked batch calls that
// score several papers per request.
package score

import (
	"context"
	"io"

	"github.com/pdiddy/discovery-engine/pkg/types"
)

// Default scoring thresholds and bounds.
const (
	DefaultThreshold         = 0.6
	DefaultFallbackThreshold = 0.5
	DefaultMaxConcurrent     = 10
	DefaultChunkSize         = 10

	// batchMinPapers is the smallest input for which batch mode is worth
	// a chunked call; below it the individual path runs even when batch
	// mode is enabled.
	batchMinPapers = 5

	// failureScore is assigned when scoring infrastructure fails for a
	// paper. The paper lands in the fallback partition; an infrastructure
	// error must never reject a possibly-relevant paper.
	failureScore = 0.5
)

// Partition is the three-way outcome of relevance scoring. Every input
// paper appears in exactly one of the slices, with RelevanceScore set and
// clamped to [0,1].
type Partition struct {
	// Relevant holds papers scoring at or above the threshold.
	Relevant []types.Paper

	// Fallback holds papers inside the fallback band, plus any paper
	// whose scoring call failed.
	Fallback []types.Paper

	// Rejected holds papers scoring below the fallback threshold.
	Rejected []types.Paper
}

// Total returns the number of partitioned papers.
func (p Partition) Total() int {
	return len(p.Relevant) + len(p.Fallback) + len(p.Rejected)
}

// Scorer partitions a batch of candidate papers by relevance to a topic.
// Implementations write progress and warnings to w.
type Scorer interface {
	Score(ctx context.Context, papers []types.Paper, w io.Writer) (Partition, error)
}

// Request carries the topic context shared by every scoring call in a run.
type Request struct {
	Topic     string
	Questions []string
}

// Backend abstracts the LLM scoring provider so tests can supply a mock.
type Backend interface {
	// ScorePaper returns the relevance of a single paper to the topic.
	ScorePaper(ctx context.Context, req Request, paper types.Paper) (float64, error)

	// ScoreChunk scores several papers in one call, returning a map from
	// normalized DOI to relevance. A DOI missing from the map is treated
	// as a per-paper failure by the caller.
	ScoreChunk(ctx context.Context, req Request, papers []types.Paper) (map[string]float64, error)
}

// New returns a Scorer that picks the execution strategy per call: the
// chunked batch path when useBatch is set and the input is large enough,
// the bounded-concurrency individual path otherwise.
func New(backend Backend, req Request, cfg types.ScoringConfig, useBatch bool) Scorer {
	cfg = withScoringDefaults(cfg)
	return &autoScorer{
		individual: &individualScorer{backend: backend, req: req, cfg: cfg},
		batch:      &batchScorer{backend: backend, req: req, cfg: cfg},
		useBatch:   useBatch,
	}
}

type autoScorer struct {
	individual *individualScorer
	batch      *batchScorer
	useBatch   bool
}

func (a *autoScorer) Score(ctx context.Context, papers []types.Paper, w io.Writer) (Partition, error) {
	if a.useBatch && len(papers) >= batchMinPapers {
		return a.batch.Score(ctx, papers, w)
	}
	return a.individual.Score(ctx, papers, w)
}

func withScoringDefaults(cfg types.ScoringConfig) types.ScoringConfig {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.FallbackThreshold <= 0 {
		cfg.FallbackThreshold = DefaultFallbackThreshold
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	return cfg
}

// clampScore forces a model-returned score into [0,1].
func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// outcome is the per-paper scoring result gathered from worker calls
// before partitioning.
type outcome struct {
	paper  types.Paper
	score  float64
	failed bool
}

// partition sorts outcomes into the three bands. Failed papers carry the
// failure score and always land in fallback regardless of thresholds.
func partition(outcomes []outcome, cfg types.ScoringConfig) Partition {
	var p Partition
	for _, o := range outcomes {
		paper := o.paper
		paper.RelevanceScore = clampScore(o.score)
		switch {
		case o.failed:
			p.Fallback = append(p.Fallback, paper)
		case paper.RelevanceScore >= cfg.Threshold:
			p.Relevant = append(p.Relevant, paper)
		case paper.RelevanceScore >= cfg.FallbackThreshold:
			p.Fallback = append(p.Fallback, paper)
		default:
			p.Rejected = append(p.Rejected, paper)
		}
	}
	return p
}
