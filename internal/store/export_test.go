// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"go.yaml.in/yaml/v3"
)

func TestExportYAML(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	id, err := s.SaveRun(ctx, "spiking neural networks", testResult())
	if err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	path := filepath.Join(t.TempDir(), "export.yaml")
	if err := s.ExportYAML(ctx, id, path); err != nil {
		t.Fatalf("ExportYAML: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var export RunExport
	if err := yaml.Unmarshal(data, &export); err != nil {
		t.Fatalf("unmarshaling export: %v", err)
	}

	if export.ID != id || export.Topic != "spiking neural networks" {
		t.Errorf("export header = %+v", export)
	}
	// Export covers the final corpus only.
	if len(export.Corpus) != 2 {
		t.Fatalf("len(Corpus) = %d, want 2", len(export.Corpus))
	}
	if export.Corpus[0].DOI != "10.1/a" {
		t.Errorf("Corpus[0].DOI = %q", export.Corpus[0].DOI)
	}
	if len(export.Stages) != 1 || len(export.FallbackQueue) != 1 {
		t.Errorf("stages = %d, queue = %d", len(export.Stages), len(export.FallbackQueue))
	}
}

func TestExportJSON(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	id, err := s.SaveRun(ctx, "topic", testResult())
	if err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	path := filepath.Join(t.TempDir(), "export.json")
	if err := s.ExportJSON(ctx, id, path); err != nil {
		t.Fatalf("ExportJSON: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var export RunExport
	if err := json.Unmarshal(data, &export); err != nil {
		t.Fatalf("unmarshaling export: %v", err)
	}
	if export.SaturationReason == "" {
		t.Error("SaturationReason should round-trip")
	}
}

func TestExportUnknownRun(t *testing.T) {
	s := testStore(t)

	err := s.ExportYAML(context.Background(), 42, filepath.Join(t.TempDir(), "x.yaml"))
	if err == nil {
		t.Fatal("expected error for unknown run")
	}
}
