// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package citefetch

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pdiddy/discovery-engine/pkg/types"
)

// mockProvider serves canned citation fixtures per seed DOI.
type mockProvider struct {
	forward  map[string][]types.Paper
	backward map[string][]types.Paper
	failDOIs map[string]bool
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) Lookup(_ context.Context, doi string) (types.Paper, error) {
	if m.failDOIs[doi] {
		return types.Paper{}, fmt.Errorf("lookup failed")
	}
	return types.Paper{DOI: doi, Title: "seed " + doi}, nil
}

func (m *mockProvider) ForwardCitations(_ context.Context, doi string, _ int) ([]types.Paper, error) {
	if m.failDOIs[doi] {
		return nil, fmt.Errorf("provider unavailable")
	}
	return m.forward[doi], nil
}

func (m *mockProvider) BackwardCitations(_ context.Context, doi string, _ int) ([]types.Paper, error) {
	if m.failDOIs[doi] {
		return nil, fmt.Errorf("provider unavailable")
	}
	return m.backward[doi], nil
}

func testQuality() types.QualitySettings {
	return types.QualitySettings{
		MaxStages:           3,
		MaxPapers:           100,
		SaturationThreshold: 0.12,
		MinCitationsFilter:  5,
		RecencyYears:        3,
	}
}

func TestFetchStageBothDirections(t *testing.T) {
	thisYear := time.Now().Year()
	provider := &mockProvider{
		forward: map[string][]types.Paper{
			"10.1/seed": {{DOI: "10.1/fwd", Year: thisYear, CitationCount: 1}},
		},
		backward: map[string][]types.Paper{
			"10.1/seed": {{DOI: "10.1/back", Year: 2015, CitationCount: 0}},
		},
	}
	f := New(provider, testQuality(), types.FetchConfig{})

	var buf bytes.Buffer
	res, err := f.FetchStage(context.Background(), []string{"10.1/seed"}, nil, &buf)
	if err != nil {
		t.Fatalf("FetchStage: %v", err)
	}

	if len(res.Papers) != 2 {
		t.Fatalf("len(Papers) = %d, want 2", len(res.Papers))
	}
	// Sorted by DOI: back before fwd.
	if res.Papers[0].DOI != "10.1/back" || res.Papers[1].DOI != "10.1/fwd" {
		t.Errorf("Papers = %v", res.Papers)
	}
	for _, p := range res.Papers {
		if p.DiscoveryMethod != types.DiscoveryCitation {
			t.Errorf("DiscoveryMethod = %q, want citation", p.DiscoveryMethod)
		}
	}

	if len(res.Edges) != 2 {
		t.Fatalf("len(Edges) = %d, want 2", len(res.Edges))
	}
	var sawForward, sawBackward bool
	for _, e := range res.Edges {
		switch e.EdgeType {
		case types.EdgeForward:
			sawForward = true
			if e.CitingDOI != "10.1/fwd" || e.CitedDOI != "10.1/seed" {
				t.Errorf("forward edge = %+v", e)
			}
		case types.EdgeBackward:
			sawBackward = true
			if e.CitingDOI != "10.1/seed" || e.CitedDOI != "10.1/back" {
				t.Errorf("backward edge = %+v", e)
			}
		}
	}
	if !sawForward || !sawBackward {
		t.Error("expected one forward and one backward edge")
	}
	if res.ForwardCount != 1 || res.BackwardCount != 1 {
		t.Errorf("counts = %d/%d, want 1/1", res.ForwardCount, res.BackwardCount)
	}
}

func TestFetchStageForwardFilter(t *testing.T) {
	thisYear := time.Now().Year()
	provider := &mockProvider{
		forward: map[string][]types.Paper{
			"10.1/seed": {
				// Recent: kept regardless of citation count.
				{DOI: "10.1/recent", Year: thisYear - 1, CitationCount: 0},
				// Old but cited enough: kept.
				{DOI: "10.1/old-cited", Year: 2010, CitationCount: 12},
				// Old and barely cited: dropped.
				{DOI: "10.1/old-quiet", Year: 2010, CitationCount: 2},
			},
		},
	}
	f := New(provider, testQuality(), types.FetchConfig{})

	var buf bytes.Buffer
	res, err := f.FetchStage(context.Background(), []string{"10.1/seed"}, nil, &buf)
	if err != nil {
		t.Fatalf("FetchStage: %v", err)
	}
	if len(res.Papers) != 2 {
		t.Fatalf("len(Papers) = %d, want 2: %v", len(res.Papers), res.Papers)
	}
	for _, p := range res.Papers {
		if p.DOI == "10.1/old-quiet" {
			t.Error("low-citation old paper should have been filtered")
		}
	}
	// The filter drops the paper before edge recording too.
	if len(res.Edges) != 2 {
		t.Errorf("len(Edges) = %d, want 2", len(res.Edges))
	}
}

func TestFetchStageBackwardUnfiltered(t *testing.T) {
	provider := &mockProvider{
		backward: map[string][]types.Paper{
			"10.1/seed": {{DOI: "10.1/venerable", Year: 1998, CitationCount: 0}},
		},
	}
	f := New(provider, testQuality(), types.FetchConfig{})

	var buf bytes.Buffer
	res, err := f.FetchStage(context.Background(), []string{"10.1/seed"}, nil, &buf)
	if err != nil {
		t.Fatalf("FetchStage: %v", err)
	}
	if len(res.Papers) != 1 {
		t.Errorf("references are never citation-count filtered, got %v", res.Papers)
	}
}

func TestFetchStageDedupAndKnown(t *testing.T) {
	provider := &mockProvider{
		forward: map[string][]types.Paper{
			"10.1/s1": {{DOI: "https://doi.org/10.1/Shared", Year: 2025}},
			"10.1/s2": {{DOI: "10.1/shared", Year: 2025}, {DOI: "10.1/known", Year: 2025}},
		},
	}
	f := New(provider, testQuality(), types.FetchConfig{})

	known := map[string]bool{"10.1/known": true}
	var buf bytes.Buffer
	res, err := f.FetchStage(context.Background(), []string{"10.1/s1", "10.1/s2"}, known, &buf)
	if err != nil {
		t.Fatalf("FetchStage: %v", err)
	}

	if len(res.Papers) != 1 || res.Papers[0].DOI != "10.1/shared" {
		t.Errorf("Papers = %v, want the single deduplicated unknown paper", res.Papers)
	}
	// Edges survive dedup: one per observed citation link.
	if len(res.Edges) != 3 {
		t.Errorf("len(Edges) = %d, want 3", len(res.Edges))
	}
}

func TestFetchStageSeedFailureIsNonFatal(t *testing.T) {
	provider := &mockProvider{
		forward: map[string][]types.Paper{
			"10.1/ok": {{DOI: "10.1/found", Year: 2025}},
		},
		failDOIs: map[string]bool{"10.1/bad": true},
	}
	f := New(provider, testQuality(), types.FetchConfig{})

	var buf bytes.Buffer
	res, err := f.FetchStage(context.Background(), []string{"10.1/ok", "10.1/bad"}, nil, &buf)
	if err != nil {
		t.Fatalf("FetchStage should tolerate per-seed failures: %v", err)
	}
	if len(res.Papers) != 1 {
		t.Errorf("len(Papers) = %d, want 1", len(res.Papers))
	}
	if len(res.FailedSeeds) != 1 || res.FailedSeeds[0] != "10.1/bad" {
		t.Errorf("FailedSeeds = %v", res.FailedSeeds)
	}
	if !strings.Contains(buf.String(), "warning:") {
		t.Error("failed seed should be logged as a warning")
	}
}

func TestFetchStageEmptyResults(t *testing.T) {
	f := New(&mockProvider{}, testQuality(), types.FetchConfig{})
	var buf bytes.Buffer
	res, err := f.FetchStage(context.Background(), []string{"10.1/seed"}, nil, &buf)
	if err != nil {
		t.Fatalf("FetchStage: %v", err)
	}
	if len(res.Papers) != 0 || len(res.Edges) != 0 || len(res.FailedSeeds) != 0 {
		t.Errorf("empty provider result should yield an empty stage, got %+v", res)
	}
}

func TestNewProviderSelection(t *testing.T) {
	p, err := NewProvider(types.FetchConfig{})
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	if p.Name() != "semantic_scholar" {
		t.Errorf("default provider = %q, want semantic_scholar", p.Name())
	}

	p, err = NewProvider(types.FetchConfig{Provider: "openalex"})
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	if p.Name() != "openalex" {
		t.Errorf("provider = %q, want openalex", p.Name())
	}

	if _, err := NewProvider(types.FetchConfig{Provider: "scopus"}); err == nil {
		t.Error("unknown provider should be an error")
	}
}

// --- Semantic Scholar provider ---

func TestSemanticScholarCitations(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/paper/DOI:10.1/seed/citations") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "sk-test" {
			t.Errorf("x-api-key = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"offset": 0, "data": [
			{"citingPaper": {"paperId": "p1", "title": "Citing One", "year": 2024,
				"venue": "NeurIPS", "citationCount": 7,
				"authors": [{"authorId": "a1", "name": "Ada Lovelace"}],
				"externalIds": {"DOI": "10.1/C1"}}}
		]}`)
	}))
	defer ts.Close()

	old := semanticGraphBase
	semanticGraphBase = ts.URL
	defer func() { semanticGraphBase = old }()

	p := &SemanticScholarProvider{Client: ts.Client(), APIKey: "sk-test"}
	papers, err := p.ForwardCitations(context.Background(), "10.1/seed", 50)
	if err != nil {
		t.Fatalf("ForwardCitations: %v", err)
	}
	if len(papers) != 1 {
		t.Fatalf("len(papers) = %d, want 1", len(papers))
	}
	got := papers[0]
	if got.DOI != "10.1/c1" {
		t.Errorf("DOI = %q, want normalized 10.1/c1", got.DOI)
	}
	if got.Title != "Citing One" || got.Year != 2024 || got.Venue != "NeurIPS" || got.CitationCount != 7 {
		t.Errorf("paper = %+v", got)
	}
	if len(got.Authors) != 1 || got.Authors[0] != "Ada Lovelace" {
		t.Errorf("Authors = %v", got.Authors)
	}
}

func TestSemanticScholarReferences(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/references") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data": [
			{"citedPaper": {"title": "Referenced", "year": 2018, "externalIds": {"DOI": "10.1/r1"}}},
			{"citedPaper": {"title": "", "externalIds": {}}}
		]}`)
	}))
	defer ts.Close()

	old := semanticGraphBase
	semanticGraphBase = ts.URL
	defer func() { semanticGraphBase = old }()

	p := &SemanticScholarProvider{Client: ts.Client()}
	papers, err := p.BackwardCitations(context.Background(), "10.1/seed", 50)
	if err != nil {
		t.Fatalf("BackwardCitations: %v", err)
	}
	// The empty entry (no title, no DOI) is skipped.
	if len(papers) != 1 || papers[0].DOI != "10.1/r1" {
		t.Errorf("papers = %v", papers)
	}
}

func TestSemanticScholarHTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	old := semanticGraphBase
	semanticGraphBase = ts.URL
	defer func() { semanticGraphBase = old }()

	p := &SemanticScholarProvider{Client: ts.Client()}
	if _, err := p.ForwardCitations(context.Background(), "10.1/missing", 50); err == nil {
		t.Error("expected error for HTTP 404")
	}
}

// --- OpenAlex provider ---

func TestOpenAlexForwardCitations(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(r.URL.Path, "doi.org") {
			// DOI lookup.
			fmt.Fprint(w, `{"id": "https://openalex.org/W100", "title": "Seed",
				"doi": "https://doi.org/10.1/seed", "publication_year": 2020}`)
			return
		}
		if got := r.URL.Query().Get("filter"); got != "cites:W100" {
			t.Errorf("filter = %q, want cites:W100", got)
		}
		fmt.Fprint(w, `{"meta": {"count": 1}, "results": [
			{"id": "https://openalex.org/W200", "title": "Citing",
			 "doi": "https://doi.org/10.1/c1", "publication_year": 2024,
			 "cited_by_count": 3,
			 "authorships": [{"author": {"display_name": "Grace Hopper"}}],
			 "primary_location": {"source": {"display_name": "ICML"}}}
		]}`)
	}))
	defer ts.Close()

	old := openAlexBase
	openAlexBase = ts.URL
	defer func() { openAlexBase = old }()

	p := &OpenAlexProvider{Client: ts.Client(), Email: "team@example.org"}
	papers, err := p.ForwardCitations(context.Background(), "10.1/seed", 50)
	if err != nil {
		t.Fatalf("ForwardCitations: %v", err)
	}
	if len(papers) != 1 {
		t.Fatalf("len(papers) = %d, want 1", len(papers))
	}
	got := papers[0]
	if got.DOI != "10.1/c1" || got.Title != "Citing" || got.Venue != "ICML" || got.CitationCount != 3 {
		t.Errorf("paper = %+v", got)
	}
}

func TestOpenAlexBackwardCitations(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(r.URL.Path, "doi.org") {
			fmt.Fprint(w, `{"id": "https://openalex.org/W100",
				"referenced_works": ["https://openalex.org/W5", "https://openalex.org/W6"]}`)
			return
		}
		if got := r.URL.Query().Get("filter"); got != "openalex_id:W5|W6" {
			t.Errorf("filter = %q, want openalex_id:W5|W6", got)
		}
		fmt.Fprint(w, `{"results": [
			{"id": "https://openalex.org/W5", "doi": "https://doi.org/10.1/r1", "title": "Ref One"},
			{"id": "https://openalex.org/W6", "doi": "https://doi.org/10.1/r2", "title": "Ref Two"}
		]}`)
	}))
	defer ts.Close()

	old := openAlexBase
	openAlexBase = ts.URL
	defer func() { openAlexBase = old }()

	p := &OpenAlexProvider{Client: ts.Client()}
	papers, err := p.BackwardCitations(context.Background(), "10.1/seed", 50)
	if err != nil {
		t.Fatalf("BackwardCitations: %v", err)
	}
	if len(papers) != 2 {
		t.Fatalf("len(papers) = %d, want 2", len(papers))
	}
	if papers[0].DOI != "10.1/r1" || papers[1].DOI != "10.1/r2" {
		t.Errorf("papers = %v", papers)
	}
}

func TestOpenAlexAbstractReconstruction(t *testing.T) {
	idx := map[string][]int{
		"graphs": {2},
		"neural": {0},
		"meet":   {1},
	}
	if got := reconstructAbstract(idx); got != "neural meet graphs" {
		t.Errorf("reconstructAbstract = %q", got)
	}
	if got := reconstructAbstract(nil); got != "" {
		t.Errorf("empty index should yield empty string, got %q", got)
	}
}
