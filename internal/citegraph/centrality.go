// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package citegraph

import "sort"

// betweennessSampleSize caps the number of BFS sources used for the
// betweenness approximation. Exact Brandes on every node is quadratic in
// the node count and the ranking only feeds seed selection, so a sample
// is enough.
const betweennessSampleSize = 200

// BridgingPapers returns up to topN DOIs ranked by approximate
// betweenness centrality over the undirected projection of the graph.
//
// The ranking is computed lazily on the first call and cached for the
// lifetime of the graph. Mutations after that do not refresh the cache;
// the diffusion controller only queries rankings between stage batches,
// where the staleness window is empty. Internal failures yield an empty
// list, never a panic.
func (g *Graph) BridgingPapers(topN int) []string {
	if !g.bridgingDone {
		g.bridging = g.computeBridging()
		g.bridgingDone = true
	}
	if topN > 0 && len(g.bridging) > topN {
		return g.bridging[:topN]
	}
	return g.bridging
}

func (g *Graph) computeBridging() (ranked []string) {
	defer func() {
		if r := recover(); r != nil {
			ranked = nil
		}
	}()

	scores := g.betweenness(betweennessSampleSize)

	type pair struct {
		doi   string
		score float64
	}
	ps := make([]pair, 0, len(scores))
	for doi, s := range scores {
		if s > 0 {
			ps = append(ps, pair{doi: doi, score: s})
		}
	}
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].score != ps[j].score {
			return ps[i].score > ps[j].score
		}
		return ps[i].doi < ps[j].doi
	})

	ranked = make([]string, len(ps))
	for i, p := range ps {
		ranked[i] = p.doi
	}
	return ranked
}

// betweenness runs Brandes' accumulation over the undirected projection,
// BFS from each source. When sampleSize is smaller than the node count, a
// deterministic subset of sources is used and the scores are rescaled.
func (g *Graph) betweenness(sampleSize int) map[string]float64 {
	dois := make([]string, 0, len(g.nodes))
	for doi := range g.nodes {
		dois = append(dois, doi)
	}
	sort.Strings(dois)

	scores := make(map[string]float64, len(dois))
	for _, d := range dois {
		scores[d] = 0
	}

	sources := dois
	if sampleSize > 0 && sampleSize < len(dois) {
		// Evenly strided sample over the sorted DOI list keeps the
		// result reproducible across runs.
		stride := len(dois) / sampleSize
		sources = make([]string, 0, sampleSize)
		for i := 0; i < len(dois) && len(sources) < sampleSize; i += stride {
			sources = append(sources, dois[i])
		}
	}

	for _, source := range sources {
		dist := map[string]int{source: 0}
		paths := map[string]int{source: 1}
		pred := make(map[string][]string)

		queue := []string{source}
		order := []string{source}

		for len(queue) > 0 {
			curr := queue[0]
			queue = queue[1:]

			for nb := range g.neighbors(curr) {
				if _, ok := g.nodes[nb]; !ok {
					// Edge endpoint not yet materialized as a node;
					// treat as absent from the graph.
					continue
				}
				if _, seen := dist[nb]; !seen {
					dist[nb] = dist[curr] + 1
					queue = append(queue, nb)
					order = append(order, nb)
				}
				if dist[nb] == dist[curr]+1 {
					paths[nb] += paths[curr]
					pred[nb] = append(pred[nb], curr)
				}
			}
		}

		delta := make(map[string]float64)
		for i := len(order) - 1; i >= 0; i-- {
			w := order[i]
			for _, v := range pred[w] {
				if paths[w] > 0 {
					delta[v] += (float64(paths[v]) / float64(paths[w])) * (1 + delta[w])
				}
			}
			if w != source {
				scores[w] += delta[w]
			}
		}
	}

	scale := 1.0
	if len(sources) < len(dois) && len(sources) > 0 {
		scale = float64(len(dois)) / float64(len(sources))
	}
	for doi := range scores {
		scores[doi] *= scale / 2.0 // undirected: each path counted twice
	}
	return scores
}
