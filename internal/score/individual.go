// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package score

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/discovery-engine/pkg/types"
)

// individualScorer issues one backend call per paper with a bounded
// number in flight. A failed call defaults that paper alone to the
// failure score; sibling calls are unaffected.
type individualScorer struct {
	backend Backend
	req     Request
	cfg     types.ScoringConfig
}

func (s *individualScorer) Score(ctx context.Context, papers []types.Paper, w io.Writer) (Partition, error) {
	outcomes := make([]outcome, len(papers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxConcurrent)

	for i, paper := range papers {
		g.Go(func() error {
			score, err := s.backend.ScorePaper(gctx, s.req, paper)
			if err != nil {
				outcomes[i] = outcome{paper: paper, score: failureScore, failed: true}
				return nil
			}
			outcomes[i] = outcome{paper: paper, score: score}
			return nil
		})
	}
	// Workers never return errors; failures become fallback outcomes.
	_ = g.Wait()

	for _, o := range outcomes {
		if o.failed {
			fmt.Fprintf(w, "warning: scoring failed for %s, defaulting to %.1f (fallback)\n", o.paper.DOI, failureScore)
		}
	}

	return partition(outcomes, s.cfg), nil
}
