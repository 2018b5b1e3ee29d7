// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package diffusion drives the stage loop that grows a paper corpus by
// following citation links outward from discovery seeds.
package diffusion

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/pdiddy/discovery-engine/internal/citefetch"
	"github.com/pdiddy/discovery-engine/internal/citegraph"
	"github.com/pdiddy/discovery-engine/internal/score"
	"github.com/pdiddy/discovery-engine/pkg/types"
)

const (
	// CocitationThreshold is the shared-edge count at which a candidate is
	// accepted on graph structure alone, without relevance scoring.
	CocitationThreshold = 3

	// cocitationScore is the relevance assigned to auto-accepted papers.
	cocitationScore = 0.7

	// maxSeedsPerStage caps expansion seed selection regardless of budget.
	maxSeedsPerStage = 20

	// languageBudgetMultiplier inflates the corpus budget for non-English
	// targets, anticipating downstream language-verification rejections.
	languageBudgetMultiplier = 1.5
)

// Fetcher is the citation fetch stage as the controller sees it.
// *citefetch.Fetcher satisfies it.
type Fetcher interface {
	FetchStage(ctx context.Context, seeds []string, known map[string]bool, w io.Writer) (*citefetch.Result, error)
}

// Resolver looks up metadata for seed DOIs at initialization.
// citefetch.Provider satisfies it.
type Resolver interface {
	Lookup(ctx context.Context, doi string) (types.Paper, error)
}

// Request carries the inputs for one discovery run.
type Request struct {
	// Seeds are the discovery seed DOIs from the keyword-search phase.
	Seeds []string

	// Corpus is the pre-existing corpus, keyed by DOI. May be nil.
	Corpus map[string]types.Paper

	// Topic and Questions guide relevance scoring.
	Topic     string
	Questions []string

	// Quality controls stage count, budget, and saturation. Zero-valued
	// fields fall back to documented defaults with a logged warning.
	Quality types.QualitySettings

	// Language is the target output language; a non-English target
	// inflates the internal corpus budget. Nil means English.
	Language *types.LanguageConfig
}

// Result is the outcome of a discovery run.
type Result struct {
	// FinalCorpusDOIs is the budget-trimmed corpus, best papers first.
	FinalCorpusDOIs []string

	// PaperCorpus maps DOI to metadata for every retained paper,
	// including near-threshold papers kept for the fallback queue.
	PaperCorpus map[string]types.Paper

	// Graph is the citation graph accumulated across stages.
	Graph *citegraph.Graph

	// Diffusion is the per-stage state record.
	Diffusion types.DiffusionState

	// FallbackQueue holds near-threshold and overflow candidates, sorted
	// by descending relevance.
	FallbackQueue []types.FallbackCandidate
}

// Controller owns all corpus, graph, and state mutation for a run.
// Fetch and scoring workers return data; the controller merges serially,
// so no locking is ever needed on the run state.
type Controller struct {
	fetcher  Fetcher
	scorer   score.Scorer
	resolver Resolver
}

// New returns a Controller. resolver may be nil, in which case seeds
// missing from the corpus enter as bare DOI records.
func New(fetcher Fetcher, scorer score.Scorer, resolver Resolver) *Controller {
	return &Controller{fetcher: fetcher, scorer: scorer, resolver: resolver}
}

// run carries the mutable state of one discovery run.
type run struct {
	corpus       map[string]types.Paper
	fallbackMeta map[string]types.Paper
	graph        *citegraph.Graph
	state        types.DiffusionState
	queue        []types.FallbackCandidate
	usedSeeds    map[string]bool
	effectiveMax int
}

// Run executes the diffusion loop until saturation. Expected failures
// (provider errors, scoring errors, empty inputs) degrade the affected
// stage's yield; the only error Run itself returns is context
// cancellation.
func (c *Controller) Run(ctx context.Context, req Request, w io.Writer) (*Result, error) {
	quality := req.Quality.WithDefaults(w)

	r := &run{
		corpus:       make(map[string]types.Paper),
		fallbackMeta: make(map[string]types.Paper),
		graph:        citegraph.New(),
		usedSeeds:    make(map[string]bool),
		effectiveMax: quality.MaxPapers,
		state: types.DiffusionState{
			MaxStages:           quality.MaxStages,
			SaturationThreshold: quality.SaturationThreshold,
		},
	}
	if !req.Language.IsEnglish() {
		r.effectiveMax = int(float64(quality.MaxPapers) * languageBudgetMultiplier)
		fmt.Fprintf(w, "non-English target %q: corpus budget inflated to %d\n", req.Language.Code, r.effectiveMax)
	}

	for doi, p := range req.Corpus {
		c.admit(r, types.NormalizeDOI(doi), p)
	}

	seeds := c.initializeSeeds(ctx, r, req.Seeds, w)
	if len(seeds) == 0 {
		r.state.IsSaturated = true
		r.state.SaturationReason = ReasonNoSeeds
		return c.finalize(r, w), nil
	}

	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		// Candidate exhaustion is checked before the stage and budget
		// limits: a run that cannot expand further reports that fact
		// even when a limit was also reached.
		stageSeeds := c.selectSeeds(r, quality, seeds)
		seeds = nil // only the first stage uses the discovery seeds directly
		if len(stageSeeds) == 0 {
			r.state.IsSaturated = true
			r.state.SaturationReason = ReasonNoCandidates
			break
		}
		if reason := c.limitReached(r); reason != "" {
			r.state.IsSaturated = true
			r.state.SaturationReason = reason
			break
		}

		r.state.CurrentStage++
		for _, doi := range stageSeeds {
			r.usedSeeds[doi] = true
		}
		if err := c.runStage(ctx, r, stageSeeds, w); err != nil {
			return nil, err
		}
	}

	return c.finalize(r, w), nil
}

// initializeSeeds normalizes and deduplicates the discovery seeds and
// admits them to the corpus, resolving metadata when a resolver is
// available. Resolution failure degrades to a bare DOI record.
func (c *Controller) initializeSeeds(ctx context.Context, r *run, seeds []string, w io.Writer) []string {
	var out []string
	seen := make(map[string]bool, len(seeds))
	for _, s := range seeds {
		doi := types.NormalizeDOI(s)
		if doi == "" || seen[doi] {
			continue
		}
		seen[doi] = true
		out = append(out, doi)

		if _, ok := r.corpus[doi]; ok {
			continue
		}
		paper := types.Paper{DOI: doi, DiscoveryMethod: types.DiscoveryKeyword}
		if c.resolver != nil {
			resolved, err := c.resolver.Lookup(ctx, doi)
			if err != nil {
				fmt.Fprintf(w, "warning: could not resolve seed %s: %v\n", doi, err)
			} else {
				resolved.DOI = doi
				resolved.DiscoveryMethod = types.DiscoveryKeyword
				paper = resolved
			}
		}
		c.admit(r, doi, paper)
	}
	return out
}

// selectSeeds picks the next stage's expansion seeds. The first stage
// uses the discovery seeds themselves; later stages ask the graph for
// ranked expansion candidates, excluding seeds already used. Selection
// is bounded by min(maxSeedsPerStage, budget/10).
func (c *Controller) selectSeeds(r *run, quality types.QualitySettings, discovery []string) []string {
	bound := quality.MaxPapers / 10
	if bound > maxSeedsPerStage {
		bound = maxSeedsPerStage
	}
	if bound < 1 {
		bound = 1
	}

	ranked := discovery
	if len(ranked) == 0 {
		ranked = r.graph.ExpansionCandidates(quality.MaxPapers, false)
	}

	var selected []string
	for _, doi := range ranked {
		if r.usedSeeds[doi] {
			continue
		}
		selected = append(selected, doi)
		if len(selected) == bound {
			break
		}
	}
	return selected
}

// runStage executes fetch, co-citation filter, scoring, and the corpus
// and graph update for one stage.
func (c *Controller) runStage(ctx context.Context, r *run, stageSeeds []string, w io.Writer) error {
	stage := types.DiffusionStage{
		Stage:    r.state.CurrentStage,
		SeedDOIs: stageSeeds,
	}

	corpusSet := make(map[string]bool, len(r.corpus))
	for doi := range r.corpus {
		corpusSet[doi] = true
	}

	// Papers already queued for fallback are dropped from fetch results
	// like corpus members: re-discovering one would re-score it and leave
	// a duplicate queue entry behind. Co-citation overlap below still
	// counts against the corpus alone.
	known := make(map[string]bool, len(r.corpus)+len(r.fallbackMeta))
	for doi := range corpusSet {
		known[doi] = true
	}
	for doi := range r.fallbackMeta {
		known[doi] = true
	}

	fetched, err := c.fetcher.FetchStage(ctx, stageSeeds, known, w)
	if err != nil {
		// The fetcher absorbs per-seed failures; an error here means the
		// run itself was cancelled.
		return err
	}
	stage.ForwardFound = fetched.ForwardCount
	stage.BackwardFound = fetched.BackwardCount

	// Edges enter the graph before the co-citation check so candidate
	// overlap counts see this stage's links. Nodes follow on acceptance.
	for _, e := range fetched.Edges {
		r.graph.AddCitation(e.CitingDOI, e.CitedDOI, e.EdgeType)
	}

	var autoIncluded, remainder []types.Paper
	for _, p := range fetched.Papers {
		if r.graph.IsCocitationCandidate(p.DOI, corpusSet, CocitationThreshold) {
			p.RelevanceScore = cocitationScore
			p.DiscoveryMethod = types.DiscoveryDiffusion
			autoIncluded = append(autoIncluded, p)
		} else {
			remainder = append(remainder, p)
		}
	}

	var part score.Partition
	if len(remainder) > 0 {
		part, err = c.scorer.Score(ctx, remainder, w)
		if err != nil {
			return err
		}
	}

	for _, p := range autoIncluded {
		c.acceptPaper(r, &stage, p)
	}
	for _, p := range part.Relevant {
		c.acceptPaper(r, &stage, p)
	}
	for _, p := range part.Fallback {
		doi := types.NormalizeDOI(p.DOI)
		r.fallbackMeta[doi] = p
		r.queue = append(r.queue, types.FallbackCandidate{
			DOI:            doi,
			RelevanceScore: p.RelevanceScore,
			Source:         types.SourceNearThreshold,
		})
	}
	for _, p := range part.Rejected {
		stage.NewRejected = append(stage.NewRejected, types.NormalizeDOI(p.DOI))
	}

	relevant := len(stage.NewRelevant)
	rejected := len(stage.NewRejected)
	if relevant+rejected > 0 {
		stage.CoverageDelta = float64(relevant) / float64(relevant+rejected)
	}
	// A stage with zero candidates contributes 0.0 and still counts
	// toward the consecutive-low-coverage counter: finding nothing is
	// itself evidence of diminishing returns.
	if stage.CoverageDelta < r.state.SaturationThreshold {
		r.state.ConsecutiveLowCoverage++
	} else {
		r.state.ConsecutiveLowCoverage = 0
	}

	r.state.TotalDiscovered += len(fetched.Papers)
	r.state.TotalRelevant += relevant
	r.state.TotalRejected += rejected
	r.state.Stages = append(r.state.Stages, stage)
	return nil
}

// acceptPaper merges one accepted paper into the corpus, graph, and
// stage record.
func (c *Controller) acceptPaper(r *run, stage *types.DiffusionStage, p types.Paper) {
	doi := types.NormalizeDOI(p.DOI)
	if doi == "" {
		return
	}
	if _, ok := r.corpus[doi]; ok {
		return
	}
	p.DOI = doi
	p.DiscoveryStage = stage.Stage
	if p.DiscoveryMethod == "" {
		p.DiscoveryMethod = types.DiscoveryCitation
	}
	c.admit(r, doi, p)
	stage.NewRelevant = append(stage.NewRelevant, doi)
}

// admit inserts a paper into the corpus and graph unconditionally.
func (c *Controller) admit(r *run, doi string, p types.Paper) {
	if doi == "" {
		return
	}
	p.DOI = doi
	r.corpus[doi] = p
	r.graph.AddPaper(doi, p)
}

// finalize trims the corpus to the effective budget, moves overflow into
// the fallback queue, and assembles the result. An empty corpus is a
// valid outcome, not an error.
func (c *Controller) finalize(r *run, w io.Writer) *Result {
	ranked := make([]types.Paper, 0, len(r.corpus))
	for _, p := range r.corpus {
		ranked = append(ranked, p)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].RelevanceScore != ranked[j].RelevanceScore {
			return ranked[i].RelevanceScore > ranked[j].RelevanceScore
		}
		return ranked[i].DOI < ranked[j].DOI
	})

	kept := ranked
	if len(ranked) > r.effectiveMax {
		kept = ranked[:r.effectiveMax]
		for _, p := range ranked[r.effectiveMax:] {
			r.fallbackMeta[p.DOI] = p
			r.queue = append(r.queue, types.FallbackCandidate{
				DOI:            p.DOI,
				RelevanceScore: p.RelevanceScore,
				Source:         types.SourceOverflow,
			})
		}
		fmt.Fprintf(w, "trimmed corpus from %d to %d papers, %d moved to fallback queue\n",
			len(ranked), len(kept), len(ranked)-len(kept))
	}

	final := make([]string, len(kept))
	paperCorpus := make(map[string]types.Paper, len(kept)+len(r.fallbackMeta))
	for i, p := range kept {
		final[i] = p.DOI
		paperCorpus[p.DOI] = p
	}
	for doi, p := range r.fallbackMeta {
		paperCorpus[doi] = p
	}

	sort.Slice(r.queue, func(i, j int) bool {
		if r.queue[i].RelevanceScore != r.queue[j].RelevanceScore {
			return r.queue[i].RelevanceScore > r.queue[j].RelevanceScore
		}
		return r.queue[i].DOI < r.queue[j].DOI
	})

	return &Result{
		FinalCorpusDOIs: final,
		PaperCorpus:     paperCorpus,
		Graph:           r.graph,
		Diffusion:       r.state,
		FallbackQueue:   r.queue,
	}
}
