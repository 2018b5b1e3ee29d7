// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package citefetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/pdiddy/discovery-engine/internal/httputil"
	"github.com/pdiddy/discovery-engine/pkg/types"
)

// openAlexBase is the OpenAlex Works endpoint. Declared as a var so tests
// can substitute an httptest server.
var openAlexBase = "https://api.openalex.org/works"

// OpenAlexProvider fetches citation links from the OpenAlex API.
// OpenAlex identifies works by internal W-ids, so forward and backward
// traversal both start with a DOI lookup.
type OpenAlexProvider struct {
	Client *http.Client
	// Email is sent as mailto parameter for polite pool access.
	Email     string
	UserAgent string
}

// Name returns the provider identifier.
func (p *OpenAlexProvider) Name() string { return "openalex" }

// Lookup resolves a DOI to its paper metadata.
func (p *OpenAlexProvider) Lookup(ctx context.Context, doi string) (types.Paper, error) {
	work, err := p.lookupWork(ctx, doi)
	if err != nil {
		return types.Paper{}, err
	}
	return work.toPaper(), nil
}

// ForwardCitations returns papers that cite doi, via the cites: filter.
func (p *OpenAlexProvider) ForwardCitations(ctx context.Context, doi string, limit int) ([]types.Paper, error) {
	work, err := p.lookupWork(ctx, doi)
	if err != nil {
		return nil, err
	}
	if work.ID == "" {
		return nil, nil
	}
	return p.list(ctx, url.Values{
		"filter":   {"cites:" + workID(work.ID)},
		"per_page": {fmt.Sprintf("%d", clampPageSize(limit))},
	})
}

// BackwardCitations returns the papers doi references. OpenAlex lists
// them as referenced_works W-ids, which are resolved in one batched
// openalex_id filter query.
func (p *OpenAlexProvider) BackwardCitations(ctx context.Context, doi string, limit int) ([]types.Paper, error) {
	work, err := p.lookupWork(ctx, doi)
	if err != nil {
		return nil, err
	}
	refs := work.ReferencedWorks
	if len(refs) == 0 {
		return nil, nil
	}
	if limit > 0 && len(refs) > limit {
		refs = refs[:limit]
	}

	ids := make([]string, len(refs))
	for i, ref := range refs {
		ids[i] = workID(ref)
	}
	return p.list(ctx, url.Values{
		"filter":   {"openalex_id:" + strings.Join(ids, "|")},
		"per_page": {fmt.Sprintf("%d", clampPageSize(len(ids)))},
	})
}

// lookupWork resolves a DOI to an OpenAlex work record.
func (p *OpenAlexProvider) lookupWork(ctx context.Context, doi string) (openAlexWork, error) {
	// OpenAlex accepts bare DOI URLs as work identifiers.
	reqURL := openAlexBase + "/https://doi.org/" + types.NormalizeDOI(doi)
	if p.Email != "" {
		reqURL += "?mailto=" + url.QueryEscape(p.Email)
	}
	var work openAlexWork
	if err := p.get(ctx, reqURL, &work); err != nil {
		return openAlexWork{}, err
	}
	return work, nil
}

// list runs a filtered works query and converts the results.
func (p *OpenAlexProvider) list(ctx context.Context, params url.Values) ([]types.Paper, error) {
	if p.Email != "" {
		params.Set("mailto", p.Email)
	}
	var oar openAlexResponse
	if err := p.get(ctx, openAlexBase+"?"+params.Encode(), &oar); err != nil {
		return nil, err
	}
	var papers []types.Paper
	for _, work := range oar.Results {
		papers = append(papers, work.toPaper())
	}
	return papers, nil
}

// get performs a rate-limit-aware GET and decodes the JSON body into out.
func (p *OpenAlexProvider) get(ctx context.Context, reqURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", p.UserAgent)

	resp, err := httputil.DoWithRetry(ctx, p.Client, req, 0)
	if err != nil {
		return fmt.Errorf("OpenAlex API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("OpenAlex API returned HTTP %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parsing OpenAlex response: %w", err)
	}
	return nil
}

// workID strips the https://openalex.org/ prefix from a work URL.
func workID(id string) string {
	return strings.TrimPrefix(id, "https://openalex.org/")
}

// clampPageSize keeps per_page inside OpenAlex's 1..200 bounds.
func clampPageSize(n int) int {
	if n <= 0 {
		return 25
	}
	if n > 200 {
		return 200
	}
	return n
}

// OpenAlex API JSON structures.
type openAlexResponse struct {
	Meta    openAlexMeta   `json:"meta"`
	Results []openAlexWork `json:"results"`
}

type openAlexMeta struct {
	Count   int `json:"count"`
	PerPage int `json:"per_page"`
	Page    int `json:"page"`
}

type openAlexWork struct {
	ID                    string               `json:"id"`
	Title                 string               `json:"title"`
	DOI                   string               `json:"doi"`
	PublicationYear       int                  `json:"publication_year"`
	CitedByCount          int                  `json:"cited_by_count"`
	Authorships           []openAlexAuthorship `json:"authorships"`
	AbstractInvertedIndex map[string][]int     `json:"abstract_inverted_index"`
	ReferencedWorks       []string             `json:"referenced_works"`
	PrimaryLocation       openAlexLocation     `json:"primary_location"`
}

type openAlexLocation struct {
	Source openAlexSource `json:"source"`
}

type openAlexSource struct {
	DisplayName string `json:"display_name"`
}

type openAlexAuthorship struct {
	Author openAlexAuthor `json:"author"`
}

type openAlexAuthor struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

func (w openAlexWork) toPaper() types.Paper {
	p := types.Paper{
		DOI:           types.NormalizeDOI(w.DOI),
		Title:         w.Title,
		Year:          w.PublicationYear,
		Venue:         w.PrimaryLocation.Source.DisplayName,
		CitationCount: w.CitedByCount,
		Abstract:      reconstructAbstract(w.AbstractInvertedIndex),
	}
	for _, authorship := range w.Authorships {
		if authorship.Author.DisplayName != "" {
			p.Authors = append(p.Authors, authorship.Author.DisplayName)
		}
	}
	return p
}

// reconstructAbstract converts OpenAlex's abstract_inverted_index back to
// plain text. The inverted index maps each word to the positions where it
// appears.
func reconstructAbstract(invertedIndex map[string][]int) string {
	if len(invertedIndex) == 0 {
		return ""
	}

	type posWord struct {
		pos  int
		word string
	}
	var pairs []posWord
	for word, positions := range invertedIndex {
		for _, pos := range positions {
			pairs = append(pairs, posWord{pos: pos, word: word})
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].pos < pairs[j].pos
	})

	words := make([]string, len(pairs))
	for i, p := range pairs {
		words[i] = p.word
	}
	return strings.Join(words, " ")
}
