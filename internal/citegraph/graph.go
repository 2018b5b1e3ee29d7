// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package citegraph maintains the directed citation graph accumulated
// during a discovery run and answers the ranking queries the diffusion
// controller uses to pick expansion seeds.
package citegraph

import (
	"sort"
	"time"

	"github.com/pdiddy/discovery-engine/pkg/types"
)

// Node holds the per-paper attributes the graph queries need. InDegree is
// computed from edge inserts and is independent of the external citation
// count reported by the bibliographic provider.
type Node struct {
	DOI           string
	Year          int
	CitationCount int
	InDegree      int

	// Cluster is the community id assigned by IdentifyClusters, -1 until
	// clustering has run.
	Cluster int
}

// Graph is a directed citation graph keyed by normalized DOI. It is
// constructed once per discovery run and only grows; papers and edges are
// never removed. All mutation happens on the controller goroutine, so the
// graph carries no locking.
type Graph struct {
	nodes map[string]*Node
	out   map[string]map[string]bool // citing → set of cited
	in    map[string]map[string]bool // cited → set of citing
	edges []types.CitationEdge

	// bridging caches the betweenness ranking after the first
	// BridgingPapers call. Mutating the graph afterwards does not refresh
	// it; callers query rankings only between stage batches.
	bridging     []string
	bridgingDone bool
}

// New returns an empty citation graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]*Node),
		out:   make(map[string]map[string]bool),
		in:    make(map[string]map[string]bool),
	}
}

// AddPaper upserts a node for the paper. The call is idempotent: a second
// insert with the same DOI refreshes metadata fields but never resets the
// accumulated in-degree or cluster assignment.
func (g *Graph) AddPaper(doi string, p types.Paper) {
	doi = types.NormalizeDOI(doi)
	if doi == "" {
		return
	}
	if n, ok := g.nodes[doi]; ok {
		if n.Year == 0 {
			n.Year = p.Year
		}
		if p.CitationCount > n.CitationCount {
			n.CitationCount = p.CitationCount
		}
		return
	}
	n := &Node{DOI: doi, Year: p.Year, CitationCount: p.CitationCount, Cluster: -1}
	// An edge may have arrived before the node; fold in the pending degree.
	n.InDegree = len(g.in[doi])
	g.nodes[doi] = n
}

// AddCitation inserts the directed edge citing → cited and increments the
// in-degree of cited. Duplicate inserts of the same pair are no-ops
// regardless of edge type, so re-discovering a citation from the other
// traversal direction never double-counts.
func (g *Graph) AddCitation(citingDOI, citedDOI string, edgeType types.EdgeType) {
	citing := types.NormalizeDOI(citingDOI)
	cited := types.NormalizeDOI(citedDOI)
	if citing == "" || cited == "" || citing == cited {
		return
	}
	if g.out[citing][cited] {
		return
	}
	if g.out[citing] == nil {
		g.out[citing] = make(map[string]bool)
	}
	if g.in[cited] == nil {
		g.in[cited] = make(map[string]bool)
	}
	g.out[citing][cited] = true
	g.in[cited][citing] = true
	g.edges = append(g.edges, types.CitationEdge{
		CitingDOI:    citing,
		CitedDOI:     cited,
		EdgeType:     edgeType,
		DiscoveredAt: time.Now().UTC(),
	})
	if n, ok := g.nodes[cited]; ok {
		n.InDegree++
	}
}

// HasNode reports whether the DOI exists as a node.
func (g *Graph) HasNode(doi string) bool {
	_, ok := g.nodes[types.NormalizeDOI(doi)]
	return ok
}

// Node returns the node for the DOI, or nil. The returned pointer is
// owned by the graph.
func (g *Graph) Node(doi string) *Node {
	return g.nodes[types.NormalizeDOI(doi)]
}

// NodeCount returns the number of materialized paper nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of distinct citation edges.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// Edges returns the accumulated edge records in insertion order. The
// returned slice is owned by the graph.
func (g *Graph) Edges() []types.CitationEdge { return g.edges }

// InDegree returns the in-corpus citation count of the DOI. A DOI with no
// node or edges has degree zero.
func (g *Graph) InDegree(doi string) int {
	return len(g.in[types.NormalizeDOI(doi)])
}

// SeminalPapers returns up to topN DOIs ranked by in-degree descending,
// tie-broken by external citation count descending and then by DOI so the
// ordering is deterministic.
func (g *Graph) SeminalPapers(topN int) []string {
	nodes := g.sortedNodes(func(a, b *Node) bool {
		if a.InDegree != b.InDegree {
			return a.InDegree > b.InDegree
		}
		if a.CitationCount != b.CitationCount {
			return a.CitationCount > b.CitationCount
		}
		return a.DOI < b.DOI
	})
	return topDOIs(nodes, topN)
}

// RecentImpactful returns up to topN DOIs published within years of
// currentYear, ranked by citation velocity: in-degree divided by paper
// age (floored at one year). Papers outside the window, or with no known
// year, are excluded entirely.
func (g *Graph) RecentImpactful(years, topN, currentYear int) []string {
	type ranked struct {
		doi      string
		velocity float64
	}
	var rs []ranked
	for _, n := range g.nodes {
		if n.Year <= 0 || currentYear-n.Year > years {
			continue
		}
		age := currentYear - n.Year
		if age < 1 {
			age = 1
		}
		rs = append(rs, ranked{doi: n.DOI, velocity: float64(n.InDegree) / float64(age)})
	}
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].velocity != rs[j].velocity {
			return rs[i].velocity > rs[j].velocity
		}
		return rs[i].doi < rs[j].doi
	})
	if topN > 0 && len(rs) > topN {
		rs = rs[:topN]
	}
	dois := make([]string, len(rs))
	for i, r := range rs {
		dois[i] = r.doi
	}
	return dois
}

// CorpusOverlapCount counts the distinct corpus papers linked to the
// paper in either citation direction. A corpus paper that both cites
// and is cited by the paper counts once.
func (g *Graph) CorpusOverlapCount(doi string, corpus map[string]bool) int {
	d := types.NormalizeDOI(doi)
	linked := make(map[string]bool)
	for cited := range g.out[d] {
		if corpus[cited] {
			linked[cited] = true
		}
	}
	for citing := range g.in[d] {
		if corpus[citing] {
			linked[citing] = true
		}
	}
	return len(linked)
}

// IsCocitationCandidate reports whether the paper shares at least
// threshold citation links with the corpus. Used to auto-accept
// candidates without LLM scoring.
func (g *Graph) IsCocitationCandidate(doi string, corpus map[string]bool, threshold int) bool {
	return g.CorpusOverlapCount(doi, corpus) >= threshold
}

// Expansion weighting: membership in each ranking list contributes
// additively, so a paper that is both seminal and bridging outranks one
// that is only seminal.
const (
	weightSeminal  = 3
	weightBridging = 2
	weightRecent   = 2
)

// ExpansionCandidates ranks graph papers for use as next-stage seeds by
// combining the seminal, bridging, and recent-impactful lists. When
// prioritizeRecent is set the recent list carries the seminal weight
// instead of its own.
func (g *Graph) ExpansionCandidates(maxPapers int, prioritizeRecent bool) []string {
	if maxPapers <= 0 || len(g.nodes) == 0 {
		return nil
	}

	recentWeight := weightRecent
	if prioritizeRecent {
		recentWeight = weightSeminal
	}

	pool := maxPapers * 2
	scores := make(map[string]int)
	for _, doi := range g.SeminalPapers(pool) {
		scores[doi] += weightSeminal
	}
	for _, doi := range g.BridgingPapers(pool) {
		scores[doi] += weightBridging
	}
	for _, doi := range g.RecentImpactful(expansionRecencyYears, pool, time.Now().Year()) {
		scores[doi] += recentWeight
	}

	dois := make([]string, 0, len(scores))
	for doi := range scores {
		dois = append(dois, doi)
	}
	sort.Slice(dois, func(i, j int) bool {
		if scores[dois[i]] != scores[dois[j]] {
			return scores[dois[i]] > scores[dois[j]]
		}
		return dois[i] < dois[j]
	})
	if len(dois) > maxPapers {
		dois = dois[:maxPapers]
	}
	return dois
}

// expansionRecencyYears is the window used for the recent-impactful
// component of seed selection.
const expansionRecencyYears = 5

// sortedNodes returns all nodes ordered by less.
func (g *Graph) sortedNodes(less func(a, b *Node) bool) []*Node {
	nodes := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return less(nodes[i], nodes[j]) })
	return nodes
}

func topDOIs(nodes []*Node, topN int) []string {
	if topN > 0 && len(nodes) > topN {
		nodes = nodes[:topN]
	}
	dois := make([]string, len(nodes))
	for i, n := range nodes {
		dois[i] = n.DOI
	}
	return dois
}

// neighbors returns the undirected neighbor set of a DOI.
func (g *Graph) neighbors(doi string) map[string]bool {
	ns := make(map[string]bool, len(g.out[doi])+len(g.in[doi]))
	for d := range g.out[doi] {
		ns[d] = true
	}
	for d := range g.in[doi] {
		ns[d] = true
	}
	return ns
}
