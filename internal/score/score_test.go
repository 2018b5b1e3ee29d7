package score

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/pdiddy/discovery-engine/pkg/types"
)

// --- mock backend ---

type mockBackend struct {
	scores      map[string]float64 // DOI → score
	paperErr    error
	chunkErr    error
	omitDOIs    map[string]bool // DOIs to leave out of chunk responses
	paperCalls  int32
	chunkCalls  int32
}

func (m *mockBackend) ScorePaper(_ context.Context, _ Request, p types.Paper) (float64, error) {
	atomic.AddInt32(&m.paperCalls, 1)
	if m.paperErr != nil {
		return 0, m.paperErr
	}
	return m.scores[p.DOI], nil
}

func (m *mockBackend) ScoreChunk(_ context.Context, _ Request, papers []types.Paper) (map[string]float64, error) {
	atomic.AddInt32(&m.chunkCalls, 1)
	if m.chunkErr != nil {
		return nil, m.chunkErr
	}
	out := make(map[string]float64)
	for _, p := range papers {
		if m.omitDOIs[p.DOI] {
			continue
		}
		out[p.DOI] = m.scores[p.DOI]
	}
	return out, nil
}

func testPapers(n int) []types.Paper {
	papers := make([]types.Paper, n)
	for i := range papers {
		papers[i] = types.Paper{DOI: fmt.Sprintf("10.1/p%02d", i), Title: fmt.Sprintf("Paper %d", i)}
	}
	return papers
}

func testReq() Request {
	return Request{Topic: "graph neural networks", Questions: []string{"How do GNNs scale?"}}
}

// --- partitioning ---

func TestScoreThresholdBands(t *testing.T) {
	backend := &mockBackend{scores: map[string]float64{
		"10.1/hi":  0.65,
		"10.1/mid": 0.55,
		"10.1/lo":  0.3,
	}}
	s := New(backend, testReq(), types.ScoringConfig{}, false)

	papers := []types.Paper{{DOI: "10.1/hi"}, {DOI: "10.1/mid"}, {DOI: "10.1/lo"}}
	var buf bytes.Buffer
	p, err := s.Score(context.Background(), papers, &buf)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}

	if len(p.Relevant) != 1 || p.Relevant[0].DOI != "10.1/hi" {
		t.Errorf("Relevant = %v, want [10.1/hi]", p.Relevant)
	}
	if len(p.Fallback) != 1 || p.Fallback[0].DOI != "10.1/mid" {
		t.Errorf("Fallback = %v, want [10.1/mid]", p.Fallback)
	}
	if len(p.Rejected) != 1 || p.Rejected[0].DOI != "10.1/lo" {
		t.Errorf("Rejected = %v, want [10.1/lo]", p.Rejected)
	}
	if p.Relevant[0].RelevanceScore != 0.65 {
		t.Errorf("RelevanceScore = %f, want 0.65", p.Relevant[0].RelevanceScore)
	}
}

func TestScorePartitionComplete(t *testing.T) {
	backend := &mockBackend{scores: map[string]float64{}}
	for useBatch, n := range map[bool]int{false: 7, true: 23} {
		s := New(backend, testReq(), types.ScoringConfig{}, useBatch)
		var buf bytes.Buffer
		p, err := s.Score(context.Background(), testPapers(n), &buf)
		if err != nil {
			t.Fatalf("Score: %v", err)
		}
		if p.Total() != n {
			t.Errorf("useBatch=%v: Total = %d, want %d", useBatch, p.Total(), n)
		}
	}
}

func TestScoreClampsOutOfRange(t *testing.T) {
	backend := &mockBackend{scores: map[string]float64{
		"10.1/big":   1.7,
		"10.1/small": -0.4,
	}}
	s := New(backend, testReq(), types.ScoringConfig{}, false)

	var buf bytes.Buffer
	p, err := s.Score(context.Background(), []types.Paper{{DOI: "10.1/big"}, {DOI: "10.1/small"}}, &buf)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if len(p.Relevant) != 1 || p.Relevant[0].RelevanceScore != 1.0 {
		t.Errorf("over-range score should clamp to 1.0, got %v", p.Relevant)
	}
	if len(p.Rejected) != 1 || p.Rejected[0].RelevanceScore != 0.0 {
		t.Errorf("under-range score should clamp to 0.0, got %v", p.Rejected)
	}
}

// --- failure policy ---

func TestIndividualFailureLandsInFallback(t *testing.T) {
	backend := &mockBackend{paperErr: fmt.Errorf("llm unavailable")}
	s := New(backend, testReq(), types.ScoringConfig{}, false)

	var buf bytes.Buffer
	p, err := s.Score(context.Background(), testPapers(3), &buf)
	if err != nil {
		t.Fatalf("Score should not fail on backend errors: %v", err)
	}
	if len(p.Fallback) != 3 {
		t.Fatalf("len(Fallback) = %d, want 3", len(p.Fallback))
	}
	for _, paper := range p.Fallback {
		if paper.RelevanceScore != 0.5 {
			t.Errorf("failed paper score = %f, want 0.5", paper.RelevanceScore)
		}
	}
	if len(p.Rejected) != 0 {
		t.Error("infrastructure failure must never reject a paper")
	}
	if !strings.Contains(buf.String(), "warning:") {
		t.Error("failures should be logged as warnings")
	}
}

func TestBatchChunkFailureDefaultsWholeChunk(t *testing.T) {
	backend := &mockBackend{chunkErr: fmt.Errorf("truncated JSON")}
	s := New(backend, testReq(), types.ScoringConfig{ChunkSize: 10}, true)

	var buf bytes.Buffer
	p, err := s.Score(context.Background(), testPapers(10), &buf)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if len(p.Fallback) != 10 {
		t.Errorf("len(Fallback) = %d, want 10 (whole chunk)", len(p.Fallback))
	}
	if len(p.Rejected) != 0 || len(p.Relevant) != 0 {
		t.Error("all papers of a failed chunk belong in fallback")
	}
	for _, paper := range p.Fallback {
		if paper.RelevanceScore != 0.5 {
			t.Errorf("score = %f, want 0.5", paper.RelevanceScore)
		}
	}
}

func TestBatchMissingDOIDefaultsToFallback(t *testing.T) {
	papers := testPapers(6)
	scores := make(map[string]float64)
	for _, p := range papers {
		scores[p.DOI] = 0.9
	}
	backend := &mockBackend{
		scores:   scores,
		omitDOIs: map[string]bool{papers[2].DOI: true},
	}
	s := New(backend, testReq(), types.ScoringConfig{}, true)

	var buf bytes.Buffer
	p, err := s.Score(context.Background(), papers, &buf)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if len(p.Relevant) != 5 {
		t.Errorf("len(Relevant) = %d, want 5", len(p.Relevant))
	}
	if len(p.Fallback) != 1 || p.Fallback[0].DOI != papers[2].DOI {
		t.Fatalf("Fallback = %v, want the omitted paper", p.Fallback)
	}
	if p.Fallback[0].RelevanceScore != 0.5 {
		t.Errorf("omitted paper score = %f, want 0.5", p.Fallback[0].RelevanceScore)
	}
	if !strings.Contains(buf.String(), "missing") {
		t.Error("omitted DOI should produce a warning")
	}
}

// --- strategy selection ---

func TestStrategySelection(t *testing.T) {
	tests := []struct {
		name       string
		useBatch   bool
		papers     int
		wantChunks int32
		wantPapers int32
	}{
		{"batch disabled", false, 12, 0, 12},
		{"batch small input", true, 4, 0, 4},
		{"batch large input", true, 12, 2, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &mockBackend{scores: map[string]float64{}}
			s := New(backend, testReq(), types.ScoringConfig{ChunkSize: 10}, tt.useBatch)
			var buf bytes.Buffer
			if _, err := s.Score(context.Background(), testPapers(tt.papers), &buf); err != nil {
				t.Fatalf("Score: %v", err)
			}
			if got := atomic.LoadInt32(&backend.chunkCalls); got != tt.wantChunks {
				t.Errorf("chunkCalls = %d, want %d", got, tt.wantChunks)
			}
			if got := atomic.LoadInt32(&backend.paperCalls); got != tt.wantPapers {
				t.Errorf("paperCalls = %d, want %d", got, tt.wantPapers)
			}
		})
	}
}

func TestChunkPapers(t *testing.T) {
	chunks := chunkPapers(testPapers(23), 10)
	if len(chunks) != 3 {
		t.Fatalf("len(chunks) = %d, want 3", len(chunks))
	}
	if len(chunks[2]) != 3 {
		t.Errorf("last chunk size = %d, want 3", len(chunks[2]))
	}
}

// --- Claude backend ---

func TestClaudeBackendScorePaper(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"content": [{"type": "text", "text": "{\"relevance_score\": 0.72, \"reasoning\": \"directly on topic\"}"}]}`)
	}))
	defer ts.Close()

	old := claudeAPIURL
	claudeAPIURL = ts.URL
	defer func() { claudeAPIURL = old }()

	b := &ClaudeBackend{APIKey: "test", Model: "test-model", Client: ts.Client()}
	score, err := b.ScorePaper(context.Background(), testReq(), types.Paper{DOI: "10.1/a", Title: "A Paper"})
	if err != nil {
		t.Fatalf("ScorePaper: %v", err)
	}
	if score != 0.72 {
		t.Errorf("score = %f, want 0.72", score)
	}
}

func TestClaudeBackendScoreChunk(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"content": [{"type": "text", "text": "[{\"doi\": \"10.1/a\", \"relevance_score\": 0.8}, {\"doi\": \"10.1/b\", \"relevance_score\": 0.2}]"}]}`)
	}))
	defer ts.Close()

	old := claudeAPIURL
	claudeAPIURL = ts.URL
	defer func() { claudeAPIURL = old }()

	b := &ClaudeBackend{APIKey: "test", Model: "test-model", Client: ts.Client()}
	scores, err := b.ScoreChunk(context.Background(), testReq(), []types.Paper{{DOI: "10.1/a"}, {DOI: "10.1/b"}})
	if err != nil {
		t.Fatalf("ScoreChunk: %v", err)
	}
	if scores["10.1/a"] != 0.8 || scores["10.1/b"] != 0.2 {
		t.Errorf("scores = %v", scores)
	}
}

func TestClaudeBackendMalformedJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"content": [{"type": "text", "text": "not json at all"}]}`)
	}))
	defer ts.Close()

	old := claudeAPIURL
	claudeAPIURL = ts.URL
	defer func() { claudeAPIURL = old }()

	b := &ClaudeBackend{APIKey: "test", Model: "test-model", Client: ts.Client()}
	if _, err := b.ScorePaper(context.Background(), testReq(), types.Paper{DOI: "10.1/a"}); err == nil {
		t.Error("expected parse error for malformed response")
	}
}
