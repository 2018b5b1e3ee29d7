// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package citefetch retrieves forward and backward citations for seed
// papers from bibliographic APIs.
package citefetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/discovery-engine/pkg/types"
)

// Defaults for the fetch stage when the caller leaves a field unset.
const (
	DefaultMaxConcurrentSeeds = 5
	DefaultPerSeedLimit       = 50
)

// Provider is the bibliographic backend interface. Implementations query
// a citation index for one paper at a time.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// Lookup resolves a DOI to its paper metadata.
	Lookup(ctx context.Context, doi string) (types.Paper, error)

	// ForwardCitations returns papers that cite doi.
	ForwardCitations(ctx context.Context, doi string, limit int) ([]types.Paper, error)

	// BackwardCitations returns papers that doi cites (its references).
	BackwardCitations(ctx context.Context, doi string, limit int) ([]types.Paper, error)
}

// NewProvider constructs the provider named in cfg. An empty name selects
// Semantic Scholar.
func NewProvider(cfg types.FetchConfig) (Provider, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	switch cfg.Provider {
	case "", "semantic_scholar":
		return &SemanticScholarProvider{Client: client, APIKey: cfg.SemanticScholarAPIKey, UserAgent: cfg.UserAgent}, nil
	case "openalex":
		return &OpenAlexProvider{Client: client, Email: cfg.OpenAlexEmail, UserAgent: cfg.UserAgent}, nil
	default:
		return nil, fmt.Errorf("unknown citation provider %q", cfg.Provider)
	}
}

// Result is the outcome of one fetch stage across all seeds.
type Result struct {
	// Papers are the newly discovered papers, deduplicated by normalized
	// DOI and excluding DOIs the caller already knows.
	Papers []types.Paper

	// Edges are the citation relationships observed, including edges that
	// point at already-known papers.
	Edges []types.CitationEdge

	// ForwardCount and BackwardCount tally raw citations per direction
	// before filtering and deduplication.
	ForwardCount  int
	BackwardCount int

	// FailedSeeds lists seeds whose fetch failed entirely.
	FailedSeeds []string
}

// Fetcher runs per-seed citation fetches concurrently and merges the
// results into a single deduplicated set.
type Fetcher struct {
	provider Provider
	quality  types.QualitySettings
	cfg      types.FetchConfig
}

// New returns a Fetcher using the given provider. Zero-valued concurrency
// and limit settings fall back to the package defaults.
func New(provider Provider, quality types.QualitySettings, cfg types.FetchConfig) *Fetcher {
	if cfg.MaxConcurrentSeeds <= 0 {
		cfg.MaxConcurrentSeeds = DefaultMaxConcurrentSeeds
	}
	if cfg.PerSeedLimit <= 0 {
		cfg.PerSeedLimit = DefaultPerSeedLimit
	}
	return &Fetcher{provider: provider, quality: quality, cfg: cfg}
}

// seedFetch holds the raw per-seed results before merging.
type seedFetch struct {
	seed     string
	forward  []types.Paper
	backward []types.Paper
	err      error
}

// FetchStage fetches citations for every seed. known maps normalized DOIs
// already in the corpus; papers matching it are excluded from
// Result.Papers but their edges are still recorded. A seed whose fetch
// fails is logged as a warning and skipped; FetchStage fails only when
// the context is cancelled.
func (f *Fetcher) FetchStage(ctx context.Context, seeds []string, known map[string]bool, w io.Writer) (*Result, error) {
	fetches := make([]seedFetch, len(seeds))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.MaxConcurrentSeeds)
	for i, seed := range seeds {
		g.Go(func() error {
			fetches[i] = f.fetchSeed(gctx, seed)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	res := &Result{}
	seen := make(map[string]bool)
	for _, sf := range fetches {
		if sf.err != nil {
			fmt.Fprintf(w, "warning: citation fetch failed for seed %s: %v\n", sf.seed, sf.err)
			res.FailedSeeds = append(res.FailedSeeds, sf.seed)
			continue
		}

		res.ForwardCount += len(sf.forward)
		res.BackwardCount += len(sf.backward)

		for _, p := range f.filterForward(sf.forward) {
			doi := types.NormalizeDOI(p.DOI)
			if doi == "" {
				continue
			}
			res.Edges = append(res.Edges, types.CitationEdge{
				CitingDOI: doi,
				CitedDOI:  sf.seed,
				EdgeType:  types.EdgeForward,
			})
			f.collect(res, seen, known, p, types.DiscoveryCitation)
		}
		for _, p := range sf.backward {
			doi := types.NormalizeDOI(p.DOI)
			if doi == "" {
				continue
			}
			res.Edges = append(res.Edges, types.CitationEdge{
				CitingDOI: sf.seed,
				CitedDOI:  doi,
				EdgeType:  types.EdgeBackward,
			})
			f.collect(res, seen, known, p, types.DiscoveryCitation)
		}
	}

	// Deterministic output order regardless of seed scheduling.
	sort.Slice(res.Papers, func(i, j int) bool { return res.Papers[i].DOI < res.Papers[j].DOI })
	return res, nil
}

// fetchSeed retrieves both citation directions for one seed.
func (f *Fetcher) fetchSeed(ctx context.Context, seed string) seedFetch {
	sf := seedFetch{seed: seed}

	forward, err := f.provider.ForwardCitations(ctx, seed, f.cfg.PerSeedLimit)
	if err != nil {
		sf.err = fmt.Errorf("forward citations: %w", err)
		return sf
	}
	sf.forward = forward

	backward, err := f.provider.BackwardCitations(ctx, seed, f.cfg.PerSeedLimit)
	if err != nil {
		sf.err = fmt.Errorf("backward citations: %w", err)
		return sf
	}
	sf.backward = backward
	return sf
}

// filterForward applies the citation-count quality filter to forward
// citations. Papers published within the recency window pass unfiltered;
// older papers must carry at least MinCitationsFilter citations. Backward
// citations (the seed's own references) are never filtered.
func (f *Fetcher) filterForward(papers []types.Paper) []types.Paper {
	cutoff := time.Now().Year() - f.quality.RecencyYears
	var kept []types.Paper
	for _, p := range papers {
		if p.Year >= cutoff || p.CitationCount >= f.quality.MinCitationsFilter {
			kept = append(kept, p)
		}
	}
	return kept
}

// collect adds p to the result unless its DOI is empty, already known to
// the caller, or already collected this stage.
func (f *Fetcher) collect(res *Result, seen, known map[string]bool, p types.Paper, method types.DiscoveryMethod) {
	doi := types.NormalizeDOI(p.DOI)
	if doi == "" || known[doi] || seen[doi] {
		return
	}
	seen[doi] = true
	p.DOI = doi
	p.DiscoveryMethod = method
	res.Papers = append(res.Papers, p)
}
