// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"bytes"
	"strings"
	"testing"
)

func TestNormalizeDOI(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"10.1234/ABC", "10.1234/abc"},
		{"https://doi.org/10.1234/abc", "10.1234/abc"},
		{"http://doi.org/10.1234/abc", "10.1234/abc"},
		{"doi.org/10.1234/abc", "10.1234/abc"},
		{"doi:10.1234/abc", "10.1234/abc"},
		{"  10.1234/abc \n", "10.1234/abc"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeDOI(tt.in); got != tt.want {
			t.Errorf("NormalizeDOI(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestQualitySettingsWithDefaults(t *testing.T) {
	var buf bytes.Buffer
	q := QualitySettings{}.WithDefaults(&buf)

	if q.MaxStages != DefaultMaxStages {
		t.Errorf("MaxStages = %d", q.MaxStages)
	}
	if q.MaxPapers != DefaultMaxPapers {
		t.Errorf("MaxPapers = %d", q.MaxPapers)
	}
	if q.SaturationThreshold != DefaultSaturationThreshold {
		t.Errorf("SaturationThreshold = %g", q.SaturationThreshold)
	}
	if q.MinCitationsFilter != 0 {
		t.Errorf("MinCitationsFilter = %d, want 0 kept as-is", q.MinCitationsFilter)
	}
	if q.RecencyYears != DefaultRecencyYears {
		t.Errorf("RecencyYears = %d", q.RecencyYears)
	}

	out := buf.String()
	if !strings.Contains(out, "warning: max_stages not set") {
		t.Errorf("missing max_stages warning in %q", out)
	}
	if !strings.Contains(out, "warning: max_papers not set") {
		t.Errorf("missing max_papers warning in %q", out)
	}
}

func TestQualitySettingsWithDefaultsKeepsExplicit(t *testing.T) {
	var buf bytes.Buffer
	q := QualitySettings{
		MaxStages:           5,
		MaxPapers:           250,
		SaturationThreshold: 0.08,
		MinCitationsFilter:  2,
		RecencyYears:        5,
	}.WithDefaults(&buf)

	if q.MaxStages != 5 || q.MaxPapers != 250 || q.SaturationThreshold != 0.08 {
		t.Errorf("explicit settings changed: %+v", q)
	}
	if buf.Len() != 0 {
		t.Errorf("unexpected warnings: %q", buf.String())
	}
}

func TestTierSettings(t *testing.T) {
	draft, ok := TierSettings(TierDraft)
	if !ok {
		t.Fatal("draft tier should exist")
	}
	if draft.MaxStages != 2 || draft.MaxPapers != 50 || draft.UseBatchAPI {
		t.Errorf("draft = %+v", draft)
	}

	thorough, ok := TierSettings(TierThorough)
	if !ok {
		t.Fatal("thorough tier should exist")
	}
	if thorough.MaxStages != 5 || thorough.MaxPapers != 250 || !thorough.UseBatchAPI {
		t.Errorf("thorough = %+v", thorough)
	}

	if _, ok := TierSettings("extreme"); ok {
		t.Error("unknown tier should not resolve")
	}

	// Presets are copies; mutating one must not poison the table.
	draft.MaxPapers = 1
	again, _ := TierSettings(TierDraft)
	if again.MaxPapers != 50 {
		t.Error("tier table mutated through a returned copy")
	}
}

func TestLanguageConfigIsEnglish(t *testing.T) {
	var nilLang *LanguageConfig
	if !nilLang.IsEnglish() {
		t.Error("nil config should count as English")
	}
	if !(&LanguageConfig{}).IsEnglish() {
		t.Error("empty code should count as English")
	}
	if !(&LanguageConfig{Code: "en"}).IsEnglish() {
		t.Error("en should be English")
	}
	if (&LanguageConfig{Code: "de", Name: "German"}).IsEnglish() {
		t.Error("de should not be English")
	}
}
