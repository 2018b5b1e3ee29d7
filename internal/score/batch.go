// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package score

import (
	"context"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/discovery-engine/pkg/types"
)

// batchScorer groups papers into fixed-size chunks and scores each chunk
// with a single backend call. Failure granularity is the chunk: when a
// chunk call fails or its response cannot be matched, every paper in that
// chunk falls back to the failure score, not just the unmatched ones.
type batchScorer struct {
	backend Backend
	req     Request
	cfg     types.ScoringConfig
}

func (s *batchScorer) Score(ctx context.Context, papers []types.Paper, w io.Writer) (Partition, error) {
	chunks := chunkPapers(papers, s.cfg.ChunkSize)
	results := make([]map[string]float64, len(chunks))
	failed := make([]bool, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	// Chunk calls are few but still bounded, so a pathological run with
	// hundreds of chunks does not flood the backend.
	g.SetLimit(s.cfg.MaxConcurrent)

	var mu sync.Mutex
	var warnings []string
	warnf := func(format string, args ...any) {
		mu.Lock()
		warnings = append(warnings, fmt.Sprintf(format, args...))
		mu.Unlock()
	}

	for ci, chunk := range chunks {
		g.Go(func() error {
			scores, err := s.backend.ScoreChunk(gctx, s.req, chunk)
			if err != nil {
				warnf("warning: batch chunk %d failed (%v), defaulting %d papers to %.1f (fallback)", ci, err, len(chunk), failureScore)
				failed[ci] = true
				return nil
			}
			results[ci] = scores
			return nil
		})
	}
	_ = g.Wait()

	for _, msg := range warnings {
		fmt.Fprintln(w, msg)
	}

	var outcomes []outcome
	for ci, chunk := range chunks {
		for _, paper := range chunk {
			if failed[ci] {
				outcomes = append(outcomes, outcome{paper: paper, score: failureScore, failed: true})
				continue
			}
			sc, ok := results[ci][types.NormalizeDOI(paper.DOI)]
			if !ok {
				// The model omitted this DOI from the chunk response.
				fmt.Fprintf(w, "warning: chunk %d response missing %s, defaulting to %.1f (fallback)\n", ci, paper.DOI, failureScore)
				outcomes = append(outcomes, outcome{paper: paper, score: failureScore, failed: true})
				continue
			}
			outcomes = append(outcomes, outcome{paper: paper, score: sc})
		}
	}

	return partition(outcomes, s.cfg), nil
}

// chunkPapers splits papers into slices of at most size.
func chunkPapers(papers []types.Paper, size int) [][]types.Paper {
	var chunks [][]types.Paper
	for start := 0; start < len(papers); start += size {
		end := start + size
		if end > len(papers) {
			end = len(papers)
		}
		chunks = append(chunks, papers[start:end])
	}
	return chunks
}
