// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package citegraph

import (
	"fmt"
	"sort"
)

// Clustering algorithm names accepted by IdentifyClusters.
const (
	AlgorithmLouvain          = "louvain"
	AlgorithmLabelPropagation = "label_propagation"
)

// maxClusterIterations bounds both algorithms; community assignments on
// citation graphs settle in a handful of passes.
const maxClusterIterations = 20

// IdentifyClusters runs community detection over the undirected
// projection of the graph and annotates every node with its cluster id.
// "louvain" runs a modularity local-moving pass and falls back to label
// propagation if it cannot produce a partition; "label_propagation" runs
// that algorithm directly. Cluster ids are renumbered to be dense and
// deterministic. The returned map is cluster id → sorted member DOIs.
func (g *Graph) IdentifyClusters(algorithm string) (map[int][]string, error) {
	if len(g.nodes) == 0 {
		return map[int][]string{}, nil
	}

	var assignment map[string]int
	switch algorithm {
	case AlgorithmLouvain:
		assignment = g.louvain()
		if assignment == nil {
			assignment = g.labelPropagation()
		}
	case AlgorithmLabelPropagation:
		assignment = g.labelPropagation()
	default:
		return nil, fmt.Errorf("unknown clustering algorithm %q", algorithm)
	}

	// Renumber cluster ids densely, in order of each cluster's smallest
	// member DOI, so repeated runs produce identical ids.
	members := make(map[int][]string)
	for doi, c := range assignment {
		members[c] = append(members[c], doi)
	}
	reps := make([]string, 0, len(members))
	repCluster := make(map[string]int)
	for c, ms := range members {
		sort.Strings(ms)
		members[c] = ms
		reps = append(reps, ms[0])
		repCluster[ms[0]] = c
	}
	sort.Strings(reps)

	clusters := make(map[int][]string, len(reps))
	for newID, rep := range reps {
		old := repCluster[rep]
		clusters[newID] = members[old]
		for _, doi := range members[old] {
			g.nodes[doi].Cluster = newID
		}
	}
	return clusters, nil
}

// sortedDOIs returns all node DOIs in lexical order. Both algorithms
// iterate nodes in this order so results are reproducible.
func (g *Graph) sortedDOIs() []string {
	dois := make([]string, 0, len(g.nodes))
	for doi := range g.nodes {
		dois = append(dois, doi)
	}
	sort.Strings(dois)
	return dois
}

// labelPropagation assigns each node its own label and then repeatedly
// adopts the most common label among neighbors until no label changes.
// Ties go to the smallest label.
func (g *Graph) labelPropagation() map[string]int {
	dois := g.sortedDOIs()
	labels := make(map[string]int, len(dois))
	for i, doi := range dois {
		labels[doi] = i
	}

	for iter := 0; iter < maxClusterIterations; iter++ {
		changed := false
		for _, doi := range dois {
			counts := make(map[int]int)
			for nb := range g.neighbors(doi) {
				if l, ok := labels[nb]; ok {
					counts[l]++
				}
			}
			if len(counts) == 0 {
				continue
			}
			best, bestCount := labels[doi], 0
			for l, c := range counts {
				if c > bestCount || (c == bestCount && l < best) {
					best, bestCount = l, c
				}
			}
			if best != labels[doi] {
				labels[doi] = best
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return labels
}

// louvain runs single-level modularity local moving: each node moves to
// the neighboring community with the largest positive modularity gain
// until no move improves. Returns nil when the graph has no edges, in
// which case the caller falls back to label propagation.
func (g *Graph) louvain() map[string]int {
	dois := g.sortedDOIs()

	// Undirected degree and total edge weight.
	degree := make(map[string]float64, len(dois))
	var m float64
	for _, doi := range dois {
		d := float64(len(g.neighbors(doi)))
		degree[doi] = d
		m += d
	}
	m /= 2
	if m == 0 {
		return nil
	}

	community := make(map[string]int, len(dois))
	commDegree := make(map[int]float64, len(dois))
	for i, doi := range dois {
		community[doi] = i
		commDegree[i] = degree[doi]
	}

	for iter := 0; iter < maxClusterIterations; iter++ {
		moved := false
		for _, doi := range dois {
			current := community[doi]

			// Edge counts from this node into each neighboring community.
			links := make(map[int]float64)
			for nb := range g.neighbors(doi) {
				if c, ok := community[nb]; ok {
					links[c]++
				}
			}

			commDegree[current] -= degree[doi]

			bestComm, bestGain := current, 0.0
			for c, l := range links {
				gain := l - degree[doi]*commDegree[c]/(2*m)
				if gain > bestGain || (gain == bestGain && gain > 0 && c < bestComm) {
					bestComm, bestGain = c, gain
				}
			}

			commDegree[bestComm] += degree[doi]
			if bestComm != current {
				community[doi] = bestComm
				moved = true
			}
		}
		if !moved {
			break
		}
	}
	return community
}
