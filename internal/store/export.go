// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/discovery-engine/pkg/types"
)

// RunExport is the serialized form of one archived run.
type RunExport struct {
	ID               int64                     `json:"id" yaml:"id"`
	CreatedAt        string                    `json:"created_at" yaml:"created_at"`
	Topic            string                    `json:"topic" yaml:"topic"`
	SaturationReason string                    `json:"saturation_reason" yaml:"saturation_reason"`
	Corpus           []types.Paper             `json:"corpus" yaml:"corpus"`
	Stages           []types.DiffusionStage    `json:"stages" yaml:"stages"`
	FallbackQueue    []types.FallbackCandidate `json:"fallback_queue" yaml:"fallback_queue"`
}

// ExportYAML writes a run's corpus, stage history, and fallback queue to
// path as YAML.
func (s *Store) ExportYAML(ctx context.Context, runID int64, path string) error {
	export, err := s.exportRun(ctx, runID)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(export)
	if err != nil {
		return fmt.Errorf("marshaling YAML: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ExportJSON writes a run's corpus, stage history, and fallback queue to
// path as indented JSON.
func (s *Store) ExportJSON(ctx context.Context, runID int64, path string) error {
	export, err := s.exportRun(ctx, runID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func (s *Store) exportRun(ctx context.Context, runID int64) (*RunExport, error) {
	runs, err := s.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	export := &RunExport{ID: runID}
	found := false
	for _, r := range runs {
		if r.ID == runID {
			export.CreatedAt = r.CreatedAt
			export.Topic = r.Topic
			export.SaturationReason = r.SaturationReason
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("run %d not found", runID)
	}

	if export.Corpus, err = s.RunPapers(ctx, runID, true); err != nil {
		return nil, err
	}
	if export.Stages, err = s.RunStages(ctx, runID); err != nil {
		return nil, err
	}
	if export.FallbackQueue, err = s.RunFallbackQueue(ctx, runID); err != nil {
		return nil, err
	}
	return export, nil
}
