// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the discovery engine:
// papers, citation edges, diffusion state, and configuration.
package types

import (
	"strings"
	"time"
)

// DiscoveryMethod identifies how a paper entered the corpus.
type DiscoveryMethod string

const (
	DiscoveryKeyword   DiscoveryMethod = "keyword"
	DiscoveryCitation  DiscoveryMethod = "citation"
	DiscoveryDiffusion DiscoveryMethod = "diffusion"
)

// Paper holds the metadata for a discovered paper. Papers are keyed by
// normalized DOI everywhere; two Paper values with the same DOI describe
// the same work.
type Paper struct {
	// DOI is the normalized Digital Object Identifier (lowercase, no
	// https://doi.org/ prefix). It is the unique key for the corpus map
	// and the citation graph.
	DOI string `json:"doi" yaml:"doi"`

	// Title is the paper title.
	Title string `json:"title" yaml:"title"`

	// Authors lists the paper authors in source order.
	Authors []string `json:"authors" yaml:"authors"`

	// Year is the publication year (0 if unknown).
	Year int `json:"year" yaml:"year"`

	// Venue is the journal or conference name.
	Venue string `json:"venue,omitempty" yaml:"venue,omitempty"`

	// Abstract is the paper abstract; empty when the source had none.
	Abstract string `json:"abstract,omitempty" yaml:"abstract,omitempty"`

	// CitationCount is the total external citation count reported by the
	// bibliographic provider, not the in-corpus in-degree.
	CitationCount int `json:"citation_count" yaml:"citation_count"`

	// RelevanceScore is the topical relevance in [0,1] assigned during
	// filtering. Zero until scored; co-citation auto-accepted papers carry
	// the auto-accept score.
	RelevanceScore float64 `json:"relevance_score" yaml:"relevance_score"`

	// DiscoveryStage is the diffusion stage that found this paper
	// (0 for the initial seeds).
	DiscoveryStage int `json:"discovery_stage" yaml:"discovery_stage"`

	// DiscoveryMethod records how the paper was found.
	DiscoveryMethod DiscoveryMethod `json:"discovery_method" yaml:"discovery_method"`
}

// EdgeType indicates which traversal direction discovered a citation edge.
type EdgeType string

const (
	// EdgeForward marks an edge found by asking "who cites the seed".
	EdgeForward EdgeType = "forward"

	// EdgeBackward marks an edge found in the seed's reference list.
	EdgeBackward EdgeType = "backward"
)

// CitationEdge is a directed citation: CitingDOI cites CitedDOI. Edges
// reference papers by DOI only; an edge may be recorded before both
// endpoints exist as Paper nodes.
type CitationEdge struct {
	CitingDOI    string    `json:"citing_doi" yaml:"citing_doi"`
	CitedDOI     string    `json:"cited_doi" yaml:"cited_doi"`
	EdgeType     EdgeType  `json:"edge_type" yaml:"edge_type"`
	DiscoveredAt time.Time `json:"discovered_at" yaml:"discovered_at"`
}

// FallbackSource classifies why a paper landed in the fallback queue.
type FallbackSource string

const (
	// SourceOverflow marks papers trimmed from the corpus by the
	// max-papers budget at finalize.
	SourceOverflow FallbackSource = "overflow"

	// SourceNearThreshold marks papers scored inside the fallback band,
	// below the relevance threshold but above the rejection floor.
	SourceNearThreshold FallbackSource = "near_threshold"
)

// FallbackCandidate is a near-miss or overflow paper retained for
// substitution when a selected paper fails downstream processing.
type FallbackCandidate struct {
	DOI            string         `json:"doi" yaml:"doi"`
	RelevanceScore float64        `json:"relevance_score" yaml:"relevance_score"`
	Source         FallbackSource `json:"source" yaml:"source"`
}

// NormalizeDOI returns the canonical form of a DOI: lowercased, trimmed,
// with any https://doi.org/ (or http, or bare doi.org/) prefix and a
// leading "doi:" tag stripped. An empty input stays empty.
func NormalizeDOI(doi string) string {
	d := strings.TrimSpace(strings.ToLower(doi))
	d = strings.TrimPrefix(d, "https://doi.org/")
	d = strings.TrimPrefix(d, "http://doi.org/")
	d = strings.TrimPrefix(d, "doi.org/")
	d = strings.TrimPrefix(d, "doi:")
	return d
}
