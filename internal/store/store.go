// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store archives completed discovery runs in a SQLite database
// so they can be listed and inspected after the fact.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/discovery-engine/internal/diffusion"
	"github.com/pdiddy/discovery-engine/pkg/types"
)

const dbFile = "discovery.db"

// Store manages the run archive SQLite database.
type Store struct {
	db *sql.DB
}

// NewStore opens or creates the archive database at dir/discovery.db,
// creating the schema if it does not exist.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}

	dbPath := filepath.Join(dir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at TEXT NOT NULL,
			topic TEXT NOT NULL,
			saturation_reason TEXT,
			stages INTEGER,
			total_discovered INTEGER,
			total_relevant INTEGER,
			total_rejected INTEGER,
			final_corpus_size INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS papers (
			run_id INTEGER NOT NULL REFERENCES runs(id),
			doi TEXT NOT NULL,
			title TEXT,
			authors TEXT,
			year INTEGER,
			venue TEXT,
			abstract TEXT,
			citation_count INTEGER,
			relevance_score REAL,
			discovery_stage INTEGER,
			discovery_method TEXT,
			in_final INTEGER NOT NULL,
			PRIMARY KEY (run_id, doi)
		)`,
		`CREATE TABLE IF NOT EXISTS edges (
			run_id INTEGER NOT NULL REFERENCES runs(id),
			citing_doi TEXT NOT NULL,
			cited_doi TEXT NOT NULL,
			edge_type TEXT NOT NULL,
			PRIMARY KEY (run_id, citing_doi, cited_doi)
		)`,
		`CREATE TABLE IF NOT EXISTS stages (
			run_id INTEGER NOT NULL REFERENCES runs(id),
			stage INTEGER NOT NULL,
			seed_dois TEXT,
			forward_found INTEGER,
			backward_found INTEGER,
			new_relevant TEXT,
			new_rejected TEXT,
			coverage_delta REAL,
			PRIMARY KEY (run_id, stage)
		)`,
		`CREATE TABLE IF NOT EXISTS fallback_queue (
			run_id INTEGER NOT NULL REFERENCES runs(id),
			position INTEGER NOT NULL,
			doi TEXT NOT NULL,
			relevance_score REAL,
			source TEXT,
			PRIMARY KEY (run_id, position)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_papers_run ON papers(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_edges_run ON edges(run_id)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// SaveRun archives one completed discovery run and returns its id.
func (s *Store) SaveRun(ctx context.Context, topic string, res *diffusion.Result) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	d := res.Diffusion
	result, err := tx.ExecContext(ctx,
		`INSERT INTO runs (created_at, topic, saturation_reason, stages,
			total_discovered, total_relevant, total_rejected, final_corpus_size)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339), topic, d.SaturationReason,
		len(d.Stages), d.TotalDiscovered, d.TotalRelevant, d.TotalRejected,
		len(res.FinalCorpusDOIs),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting run: %w", err)
	}
	runID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading run id: %w", err)
	}

	inFinal := make(map[string]bool, len(res.FinalCorpusDOIs))
	for _, doi := range res.FinalCorpusDOIs {
		inFinal[doi] = true
	}

	paperStmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO papers (run_id, doi, title, authors, year, venue,
			abstract, citation_count, relevance_score, discovery_stage,
			discovery_method, in_final)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("preparing paper insert: %w", err)
	}
	defer paperStmt.Close()

	for doi, p := range res.PaperCorpus {
		authorsJSON, _ := json.Marshal(p.Authors)
		final := 0
		if inFinal[doi] {
			final = 1
		}
		if _, err := paperStmt.ExecContext(ctx,
			runID, doi, p.Title, string(authorsJSON), p.Year, p.Venue,
			p.Abstract, p.CitationCount, p.RelevanceScore, p.DiscoveryStage,
			string(p.DiscoveryMethod), final,
		); err != nil {
			return 0, fmt.Errorf("inserting paper %s: %w", doi, err)
		}
	}

	if res.Graph != nil {
		edgeStmt, err := tx.PrepareContext(ctx,
			`INSERT OR IGNORE INTO edges (run_id, citing_doi, cited_doi, edge_type)
			 VALUES (?, ?, ?, ?)`)
		if err != nil {
			return 0, fmt.Errorf("preparing edge insert: %w", err)
		}
		defer edgeStmt.Close()

		for _, e := range res.Graph.Edges() {
			if _, err := edgeStmt.ExecContext(ctx,
				runID, e.CitingDOI, e.CitedDOI, string(e.EdgeType),
			); err != nil {
				return 0, fmt.Errorf("inserting edge %s->%s: %w", e.CitingDOI, e.CitedDOI, err)
			}
		}
	}

	for _, st := range d.Stages {
		seedsJSON, _ := json.Marshal(st.SeedDOIs)
		relevantJSON, _ := json.Marshal(st.NewRelevant)
		rejectedJSON, _ := json.Marshal(st.NewRejected)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO stages (run_id, stage, seed_dois, forward_found,
				backward_found, new_relevant, new_rejected, coverage_delta)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, st.Stage, string(seedsJSON), st.ForwardFound,
			st.BackwardFound, string(relevantJSON), string(rejectedJSON),
			st.CoverageDelta,
		); err != nil {
			return 0, fmt.Errorf("inserting stage %d: %w", st.Stage, err)
		}
	}

	for i, cand := range res.FallbackQueue {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO fallback_queue (run_id, position, doi, relevance_score, source)
			 VALUES (?, ?, ?, ?, ?)`,
			runID, i, cand.DOI, cand.RelevanceScore, string(cand.Source),
		); err != nil {
			return 0, fmt.Errorf("inserting fallback candidate %s: %w", cand.DOI, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing run: %w", err)
	}
	return runID, nil
}

// RunSummary is one row of the run listing.
type RunSummary struct {
	ID               int64
	CreatedAt        string
	Topic            string
	SaturationReason string
	Stages           int
	TotalRelevant    int
	FinalCorpusSize  int
}

// ListRuns returns all archived runs, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, topic, saturation_reason, stages, total_relevant, final_corpus_size
		 FROM runs ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.ID, &r.CreatedAt, &r.Topic, &r.SaturationReason,
			&r.Stages, &r.TotalRelevant, &r.FinalCorpusSize); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RunPapers returns the papers of a run, optionally only the final
// corpus, ordered by relevance score descending then DOI.
func (s *Store) RunPapers(ctx context.Context, runID int64, finalOnly bool) ([]types.Paper, error) {
	query := `SELECT doi, title, authors, year, venue, abstract, citation_count,
			relevance_score, discovery_stage, discovery_method
		 FROM papers WHERE run_id = ?`
	if finalOnly {
		query += ` AND in_final = 1`
	}
	query += ` ORDER BY relevance_score DESC, doi ASC`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("querying papers: %w", err)
	}
	defer rows.Close()

	var papers []types.Paper
	for rows.Next() {
		var p types.Paper
		var authorsJSON, method string
		if err := rows.Scan(&p.DOI, &p.Title, &authorsJSON, &p.Year, &p.Venue,
			&p.Abstract, &p.CitationCount, &p.RelevanceScore,
			&p.DiscoveryStage, &method); err != nil {
			return nil, fmt.Errorf("scanning paper: %w", err)
		}
		json.Unmarshal([]byte(authorsJSON), &p.Authors)
		p.DiscoveryMethod = types.DiscoveryMethod(method)
		papers = append(papers, p)
	}
	return papers, rows.Err()
}

// RunEdges returns the citation edges recorded for a run.
func (s *Store) RunEdges(ctx context.Context, runID int64) ([]types.CitationEdge, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT citing_doi, cited_doi, edge_type FROM edges
		 WHERE run_id = ? ORDER BY citing_doi, cited_doi`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying edges: %w", err)
	}
	defer rows.Close()

	var edges []types.CitationEdge
	for rows.Next() {
		var e types.CitationEdge
		var edgeType string
		if err := rows.Scan(&e.CitingDOI, &e.CitedDOI, &edgeType); err != nil {
			return nil, fmt.Errorf("scanning edge: %w", err)
		}
		e.EdgeType = types.EdgeType(edgeType)
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// RunStages returns the per-stage records of a run in stage order.
func (s *Store) RunStages(ctx context.Context, runID int64) ([]types.DiffusionStage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT stage, seed_dois, forward_found, backward_found,
			new_relevant, new_rejected, coverage_delta
		 FROM stages WHERE run_id = ? ORDER BY stage`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying stages: %w", err)
	}
	defer rows.Close()

	var stages []types.DiffusionStage
	for rows.Next() {
		var st types.DiffusionStage
		var seedsJSON, relevantJSON, rejectedJSON string
		if err := rows.Scan(&st.Stage, &seedsJSON, &st.ForwardFound,
			&st.BackwardFound, &relevantJSON, &rejectedJSON, &st.CoverageDelta); err != nil {
			return nil, fmt.Errorf("scanning stage: %w", err)
		}
		json.Unmarshal([]byte(seedsJSON), &st.SeedDOIs)
		json.Unmarshal([]byte(relevantJSON), &st.NewRelevant)
		json.Unmarshal([]byte(rejectedJSON), &st.NewRejected)
		stages = append(stages, st)
	}
	return stages, rows.Err()
}

// RunFallbackQueue returns a run's archived fallback queue in priority
// order.
func (s *Store) RunFallbackQueue(ctx context.Context, runID int64) ([]types.FallbackCandidate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doi, relevance_score, source FROM fallback_queue
		 WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying fallback queue: %w", err)
	}
	defer rows.Close()

	var queue []types.FallbackCandidate
	for rows.Next() {
		var c types.FallbackCandidate
		var source string
		if err := rows.Scan(&c.DOI, &c.RelevanceScore, &source); err != nil {
			return nil, fmt.Errorf("scanning fallback candidate: %w", err)
		}
		c.Source = types.FallbackSource(source)
		queue = append(queue, c)
	}
	return queue, rows.Err()
}
