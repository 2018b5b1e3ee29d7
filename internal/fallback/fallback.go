// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fallback manages the queue of near-miss and overflow papers
// used to substitute for papers that fail downstream processing.
package fallback

import (
	"fmt"
	"io"
	"sort"

	"github.com/pdiddy/discovery-engine/pkg/types"
)

// Substitution records one fallback replacement.
type Substitution struct {
	FailedDOI   string               `json:"failed_doi" yaml:"failed_doi"`
	FallbackDOI string               `json:"fallback_doi" yaml:"fallback_doi"`
	Source      types.FallbackSource `json:"source" yaml:"source"`
	Reason      string               `json:"reason" yaml:"reason"`
	Stage       int                  `json:"stage" yaml:"stage"`
}

// Manager hands out fallback candidates one at a time, highest relevance
// first. Each candidate is used at most once for the life of the manager.
// Managers are driven by a single goroutine, matching the engine's
// serial-mutation model, and need no locking.
type Manager struct {
	queue         []types.FallbackCandidate
	corpus        map[string]types.Paper
	next          int
	substitutions []Substitution
}

// NewManager builds a manager from the candidate queue and the corpus
// that holds the candidates' full metadata. The queue is re-sorted by
// descending relevance (DOI ascending on ties) so callers need not
// pre-sort.
func NewManager(queue []types.FallbackCandidate, corpus map[string]types.Paper) *Manager {
	sorted := make([]types.FallbackCandidate, len(queue))
	copy(sorted, queue)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].RelevanceScore != sorted[j].RelevanceScore {
			return sorted[i].RelevanceScore > sorted[j].RelevanceScore
		}
		return sorted[i].DOI < sorted[j].DOI
	})
	return &Manager{queue: sorted, corpus: corpus}
}

// Remaining reports how many unused candidates are left.
func (m *Manager) Remaining() int { return len(m.queue) - m.next }

// Substitutions returns the substitution records made so far, in order.
func (m *Manager) Substitutions() []Substitution { return m.substitutions }

// GetFallbackFor pops the next unused candidate, records the substitution
// and returns the candidate's full paper metadata. It returns ok=false
// and logs an exhaustion warning when the queue is empty. A candidate
// whose metadata is missing from the corpus is skipped with a warning.
func (m *Manager) GetFallbackFor(failedDOI, reason string, stage int, w io.Writer) (types.Paper, bool) {
	failedDOI = types.NormalizeDOI(failedDOI)
	for m.next < len(m.queue) {
		cand := m.queue[m.next]
		m.next++

		paper, ok := m.corpus[types.NormalizeDOI(cand.DOI)]
		if !ok {
			fmt.Fprintf(w, "warning: fallback candidate %s has no corpus entry, skipping\n", cand.DOI)
			continue
		}

		m.substitutions = append(m.substitutions, Substitution{
			FailedDOI:   failedDOI,
			FallbackDOI: paper.DOI,
			Source:      cand.Source,
			Reason:      reason,
			Stage:       stage,
		})
		return paper, true
	}

	fmt.Fprintf(w, "warning: fallback queue exhausted, no substitute for %s (%s)\n", failedDOI, reason)
	return types.Paper{}, false
}
