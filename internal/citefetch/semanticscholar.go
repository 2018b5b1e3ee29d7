// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package citefetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/pdiddy/discovery-engine/internal/httputil"
	"github.com/pdiddy/discovery-engine/pkg/types"
)

// semanticGraphBase is the Semantic Scholar Graph API base URL. Declared
// as a var so tests can substitute an httptest server.
var semanticGraphBase = "https://api.semanticscholar.org/graph/v1"

const semanticCitationFields = "title,abstract,authors,externalIds,year,venue,citationCount"

// SemanticScholarProvider fetches citation links from the Semantic
// Scholar Graph API.
type SemanticScholarProvider struct {
	Client    *http.Client
	APIKey    string
	UserAgent string
}

// Name returns the provider identifier.
func (p *SemanticScholarProvider) Name() string { return "semantic_scholar" }

// Lookup resolves a DOI to its paper metadata.
func (p *SemanticScholarProvider) Lookup(ctx context.Context, doi string) (types.Paper, error) {
	reqURL := fmt.Sprintf("%s/paper/DOI:%s?fields=%s",
		semanticGraphBase, types.NormalizeDOI(doi), url.QueryEscape(semanticCitationFields))

	var sp semanticGraphPaper
	if err := p.get(ctx, reqURL, &sp); err != nil {
		return types.Paper{}, err
	}
	paper := sp.toPaper()
	if paper.DOI == "" {
		paper.DOI = types.NormalizeDOI(doi)
	}
	return paper, nil
}

// ForwardCitations returns papers that cite doi.
func (p *SemanticScholarProvider) ForwardCitations(ctx context.Context, doi string, limit int) ([]types.Paper, error) {
	return p.links(ctx, doi, "citations", limit)
}

// BackwardCitations returns the papers doi references.
func (p *SemanticScholarProvider) BackwardCitations(ctx context.Context, doi string, limit int) ([]types.Paper, error) {
	return p.links(ctx, doi, "references", limit)
}

// links queries /paper/DOI:{doi}/{endpoint}. The Graph API wraps each
// linked paper in a citingPaper or citedPaper envelope depending on the
// endpoint.
func (p *SemanticScholarProvider) links(ctx context.Context, doi, endpoint string, limit int) ([]types.Paper, error) {
	params := url.Values{
		"fields": {semanticCitationFields},
		"limit":  {fmt.Sprintf("%d", limit)},
	}
	reqURL := fmt.Sprintf("%s/paper/DOI:%s/%s?%s",
		semanticGraphBase, types.NormalizeDOI(doi), endpoint, params.Encode())

	var lr semanticLinkResponse
	if err := p.get(ctx, reqURL, &lr); err != nil {
		return nil, err
	}

	var papers []types.Paper
	for _, entry := range lr.Data {
		sp := entry.CitingPaper
		if endpoint == "references" {
			sp = entry.CitedPaper
		}
		paper := sp.toPaper()
		if paper.Title == "" && paper.DOI == "" {
			continue
		}
		papers = append(papers, paper)
	}
	return papers, nil
}

// get performs a rate-limit-aware GET and decodes the JSON body into out.
func (p *SemanticScholarProvider) get(ctx context.Context, reqURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", p.UserAgent)
	if p.APIKey != "" {
		req.Header.Set("x-api-key", p.APIKey)
	}

	resp, err := httputil.DoWithRetry(ctx, p.Client, req, 0)
	if err != nil {
		return fmt.Errorf("Semantic Scholar API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Semantic Scholar API returned HTTP %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parsing Semantic Scholar response: %w", err)
	}
	return nil
}

// Semantic Scholar Graph API JSON structures.
type semanticLinkResponse struct {
	Offset int                 `json:"offset"`
	Next   int                 `json:"next"`
	Data   []semanticLinkEntry `json:"data"`
}

type semanticLinkEntry struct {
	CitingPaper semanticGraphPaper `json:"citingPaper"`
	CitedPaper  semanticGraphPaper `json:"citedPaper"`
}

type semanticGraphPaper struct {
	PaperID       string              `json:"paperId"`
	Title         string              `json:"title"`
	Abstract      string              `json:"abstract"`
	Year          int                 `json:"year"`
	Venue         string              `json:"venue"`
	CitationCount int                 `json:"citationCount"`
	Authors       []semanticAuthor    `json:"authors"`
	ExternalIDs   semanticExternalIDs `json:"externalIds"`
}

type semanticAuthor struct {
	AuthorID string `json:"authorId"`
	Name     string `json:"name"`
}

type semanticExternalIDs struct {
	DOI      string `json:"DOI"`
	ArXiv    string `json:"ArXiv"`
	CorpusID int    `json:"CorpusId"`
}

func (sp semanticGraphPaper) toPaper() types.Paper {
	p := types.Paper{
		DOI:           types.NormalizeDOI(sp.ExternalIDs.DOI),
		Title:         sp.Title,
		Abstract:      sp.Abstract,
		Year:          sp.Year,
		Venue:         sp.Venue,
		CitationCount: sp.CitationCount,
	}
	for _, a := range sp.Authors {
		p.Authors = append(p.Authors, a.Name)
	}
	return p
}
